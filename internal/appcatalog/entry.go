// Package appcatalog discovers installed applications, keeps the
// in-memory catalog current against filesystem changes, and streams the
// transactional application feed to the remote channel. All catalog
// state is owned by a single worker goroutine; the compositor thread
// talks to it only through a request-reply rendezvous.
package appcatalog

import (
	"sort"

	"github.com/IcebergThings/railshell/internal/icon"
)

// Entry is one installed application.
type Entry struct {
	// Key is unique in the catalog; derived from the descriptor
	// filename.
	Key string

	Name       string
	Exec       string
	TryExec    string
	WorkingDir string

	IconName string
	IconPath string
	// IconImage is nil until resolution succeeds. Entries with a nil
	// image and a retry count below icon.MaxIconRetry are rescanned on
	// the retry timer.
	IconImage      *icon.Image
	IconRetryCount int

	// Path is the descriptor file this entry was parsed from.
	Path string
}

// ExecPath is the executable path published on the feed; TryExec takes
// precedence when present.
func (e *Entry) ExecPath() string {
	if e.TryExec != "" {
		return e.TryExec
	}
	return e.Exec
}

// Catalog maps keys to entries. Storage order is irrelevant; the initial
// sync enumerates keys sorted so the emitted transaction is
// deterministic.
type Catalog struct {
	entries map[string]*Entry
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]*Entry)}
}

// Get returns the entry for key, or nil.
func (c *Catalog) Get(key string) *Entry {
	return c.entries[key]
}

// Upsert inserts or replaces the entry for its key and returns the
// replaced entry, if any.
func (c *Catalog) Upsert(e *Entry) *Entry {
	prev := c.entries[e.Key]
	c.entries[e.Key] = e
	return prev
}

// Delete removes the entry for key and returns it, or nil.
func (c *Catalog) Delete(key string) *Entry {
	e := c.entries[key]
	delete(c.entries, key)
	return e
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// OrderedKeys returns every key in sorted order.
func (c *Catalog) OrderedKeys() []string {
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clear empties the catalog, returning the removed entries.
func (c *Catalog) Clear() []*Entry {
	removed := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		removed = append(removed, e)
	}
	c.entries = make(map[string]*Entry)
	return removed
}
