package app_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"circman/internal/app"
	"circman/internal/backup"
	"circman/internal/config"
	"circman/internal/platform"
)

type fakeEnumerator struct {
	mounts []platform.Mount
}

func (f *fakeEnumerator) ListMounts() ([]platform.Mount, error) {
	return f.mounts, nil
}

// newTestApp builds an App around temp directories: a fake mount table
// exposing deviceDir as a labeled board, an isolated backup root, and
// captured output.
func newTestApp(t *testing.T, deviceDir string) (*app.App, *bytes.Buffer) {
	t.Helper()

	backupRoot := filepath.Join(t.TempDir(), "archives")
	cfg := &config.Config{
		DeviceLabels: []string{"CIRCUITPY"},
		BackupRoot:   backupRoot,
		Source:       "src",
	}

	out := &bytes.Buffer{}
	a := &app.App{
		Config: cfg,
		Enum: &fakeEnumerator{mounts: []platform.Mount{
			{Device: "/dev/nvme0n1p2", Mountpoint: "/", FSType: "ext4"},
			{Device: "/dev/sda1", Mountpoint: deviceDir, Label: "CIRCUITPY", FSType: "vfat"},
		}},
		Store: backup.NewStore(backupRoot),
		Out:   out,
	}
	return a, out
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestDeploy_BacksUpThenMirrors(t *testing.T) {
	deviceDir := t.TempDir()
	writeFile(t, filepath.Join(deviceDir, "old.py"), "previous project")

	source := t.TempDir()
	writeFile(t, filepath.Join(source, "code.py"), "import board")
	writeFile(t, filepath.Join(source, "lib", "foo.py"), "foo")

	a, out := newTestApp(t, deviceDir)
	require.NoError(t, a.Deploy("", source))

	// The backup mirrors the device's prior contents.
	backups, err := a.Store.List()
	require.NoError(t, err)
	require.Len(t, backups, 1)
	data, err := os.ReadFile(filepath.Join(backups[0].Path, "old.py"))
	require.NoError(t, err)
	assert.Equal(t, "previous project", string(data))

	// The device carries the project and nothing else.
	data, err = os.ReadFile(filepath.Join(deviceDir, "code.py"))
	require.NoError(t, err)
	assert.Equal(t, "import board", string(data))
	data, err = os.ReadFile(filepath.Join(deviceDir, "lib", "foo.py"))
	require.NoError(t, err)
	assert.Equal(t, "foo", string(data))
	_, err = os.Stat(filepath.Join(deviceDir, "old.py"))
	assert.True(t, os.IsNotExist(err), "files absent from the project must be removed")

	assert.Contains(t, out.String(), "Archived device")
	assert.Contains(t, out.String(), "Deployed")
}

func TestDeploy_ExplicitDevicePathSkipsDiscovery(t *testing.T) {
	deviceDir := t.TempDir()
	source := t.TempDir()
	writeFile(t, filepath.Join(source, "code.py"), "x")

	a, _ := newTestApp(t, filepath.Join(t.TempDir(), "ignored"))
	require.NoError(t, a.Deploy(deviceDir, source))

	_, err := os.Stat(filepath.Join(deviceDir, "code.py"))
	assert.NoError(t, err)
}

func TestDeploy_AbortsWhenBackupFails(t *testing.T) {
	deviceDir := t.TempDir()
	writeFile(t, filepath.Join(deviceDir, "keep.py"), "keep")
	// Unreadable entry on the device makes the snapshot fail.
	require.NoError(t, os.Symlink(filepath.Join(deviceDir, "nowhere"), filepath.Join(deviceDir, "vanished.py")))

	source := t.TempDir()
	writeFile(t, filepath.Join(source, "code.py"), "new")

	a, _ := newTestApp(t, deviceDir)
	err := a.Deploy("", source)
	require.Error(t, err)

	// Backup-then-copy ordering: the device was never written.
	_, err = os.Stat(filepath.Join(deviceDir, "code.py"))
	assert.True(t, os.IsNotExist(err))
	data, err := os.ReadFile(filepath.Join(deviceDir, "keep.py"))
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))
}

func TestDeploy_MissingSource(t *testing.T) {
	a, _ := newTestApp(t, t.TempDir())
	err := a.Deploy("", filepath.Join(t.TempDir(), "no-such-dir"))
	require.Error(t, err)

	backups, listErr := a.Store.List()
	require.NoError(t, listErr)
	assert.Empty(t, backups, "no backup should be taken for a bad source")
}

func TestRestore_EmptyStoreTouchesNothing(t *testing.T) {
	deviceDir := t.TempDir()
	writeFile(t, filepath.Join(deviceDir, "code.py"), "untouched")

	a, _ := newTestApp(t, deviceDir)
	err := a.Restore("", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, backup.ErrNoBackup)

	data, err := os.ReadFile(filepath.Join(deviceDir, "code.py"))
	require.NoError(t, err)
	assert.Equal(t, "untouched", string(data))
}

func TestRestore_MostRecentBackupWins(t *testing.T) {
	deviceDir := t.TempDir()
	writeFile(t, filepath.Join(deviceDir, "code.py"), "current")

	a, _ := newTestApp(t, deviceDir)
	writeFile(t, filepath.Join(a.Store.Root, "20240101T000000", "code.py"), "january")
	writeFile(t, filepath.Join(a.Store.Root, "20240601T120000", "code.py"), "june")

	require.NoError(t, a.Restore("", 1))

	data, err := os.ReadFile(filepath.Join(deviceDir, "code.py"))
	require.NoError(t, err)
	assert.Equal(t, "june", string(data))
}

func TestRestore_ByIndexPicksOlder(t *testing.T) {
	deviceDir := t.TempDir()

	a, _ := newTestApp(t, deviceDir)
	writeFile(t, filepath.Join(a.Store.Root, "20240101T000000", "code.py"), "january")
	writeFile(t, filepath.Join(a.Store.Root, "20240601T120000", "code.py"), "june")

	require.NoError(t, a.Restore("", 2))

	data, err := os.ReadFile(filepath.Join(deviceDir, "code.py"))
	require.NoError(t, err)
	assert.Equal(t, "january", string(data))
}

func TestPull_CopiesDeviceWithoutDeleting(t *testing.T) {
	deviceDir := t.TempDir()
	writeFile(t, filepath.Join(deviceDir, "code.py"), "edited on device")

	dest := t.TempDir()
	writeFile(t, filepath.Join(dest, "notes.txt"), "host only")

	a, _ := newTestApp(t, deviceDir)
	require.NoError(t, a.Pull("", dest))

	data, err := os.ReadFile(filepath.Join(dest, "code.py"))
	require.NoError(t, err)
	assert.Equal(t, "edited on device", string(data))
	data, err = os.ReadFile(filepath.Join(dest, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "host only", string(data))
}

func TestBackups_ListsRecentNewestLast(t *testing.T) {
	a, out := newTestApp(t, t.TempDir())
	names := []string{
		"20240101T000000",
		"20240201T000000",
		"20240301T000000",
		"20240401T000000",
		"20240501T000000",
		"20240601T000000",
	}
	for _, name := range names {
		require.NoError(t, os.MkdirAll(filepath.Join(a.Store.Root, name), 0755))
	}

	require.NoError(t, a.Backups())

	assert.Contains(t, out.String(), "Backups:")
	assert.NotContains(t, out.String(), "20240101T000000", "capped to the five most recent")
	assert.Contains(t, out.String(), "1 - 2024-06-01 00:00:00 - 20240601T000000")
	assert.Contains(t, out.String(), "5 - 2024-02-01 00:00:00 - 20240201T000000")
}

func TestBackups_EmptyStore(t *testing.T) {
	a, out := newTestApp(t, t.TempDir())
	require.NoError(t, a.Backups())
	assert.Equal(t, "Backups:\n", out.String())
}

func TestDevices_ShowsCandidatesAndSelection(t *testing.T) {
	deviceDir := t.TempDir()
	a, out := newTestApp(t, deviceDir)

	require.NoError(t, a.Devices())
	assert.Contains(t, out.String(), deviceDir)
	assert.Contains(t, out.String(), "Selected: "+deviceDir)
}
