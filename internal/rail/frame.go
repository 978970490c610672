package rail

import (
	"errors"

	"github.com/IcebergThings/railshell/internal/icon"
)

// AppListFrame is one frame of the application-list feed. Exactly one of
// the three mode flags is set per frame; the sync flags are set only
// when InSync is set.
type AppListFrame struct {
	NewAppID          bool `json:"newAppId"`
	DeleteAppID       bool `json:"deleteAppId"`
	DeleteAppProvider bool `json:"deleteAppProvider"`

	InSync    bool `json:"inSync"`
	SyncStart bool `json:"syncStart"`
	SyncEnd   bool `json:"syncEnd"`

	AppProvider   string `json:"appProvider"`
	AppID         string `json:"appId,omitempty"`
	AppGroup      string `json:"appGroup,omitempty"`
	AppExecPath   string `json:"appExecPath,omitempty"`
	AppWorkingDir string `json:"appWorkingDir,omitempty"`
	AppDesc       string `json:"appDesc,omitempty"`

	AppIcon *icon.Image `json:"-"`
}

var (
	errFrameMode = errors.New("rail: frame must set exactly one mode flag")
	errFrameSync = errors.New("rail: sync flags require inSync")
)

// Validate enforces the frame invariants of the wire contract.
func (f *AppListFrame) Validate() error {
	modes := 0
	for _, set := range []bool{f.NewAppID, f.DeleteAppID, f.DeleteAppProvider} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		return errFrameMode
	}
	if (f.SyncStart || f.SyncEnd) && !f.InSync {
		return errFrameSync
	}
	return nil
}
