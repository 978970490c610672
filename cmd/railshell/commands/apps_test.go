package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IcebergThings/railshell/internal/desktop"
	"github.com/IcebergThings/railshell/internal/icon"
	"github.com/IcebergThings/railshell/internal/nsgate"
)

func TestScanAppDirsCollectsUnderGate(t *testing.T) {
	dir := t.TempDir()
	content := "[Desktop Entry]\nType=Application\nName=Editor\nExec=/usr/bin/editor %U\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "editor.desktop"), []byte(content), 0o644))

	gate := nsgate.New("")
	defer gate.Close()
	store := icon.NewStore(icon.PNGRaster{}, icon.StoreConfig{})

	rows, err := scanAppDirs(gate, []string{dir}, desktop.Options{}, store)
	require.NoError(t, err)
	require.Contains(t, rows, "editor")
	assert.Equal(t, "Editor", rows["editor"].Name)
	assert.Equal(t, "/usr/bin/editor", rows["editor"].Exec)
}

func TestScanAppDirsSkipsUnreadableDir(t *testing.T) {
	gate := nsgate.New("")
	defer gate.Close()
	store := icon.NewStore(icon.PNGRaster{}, icon.StoreConfig{})

	rows, err := scanAppDirs(gate, []string{"/nonexistent-path"}, desktop.Options{}, store)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
