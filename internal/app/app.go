// Package app sequences device discovery, the backup store and the
// tree synchronizer into the user-facing operations.
package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"circman/internal/backup"
	"circman/internal/config"
	"circman/internal/device"
	"circman/internal/logging"
	"circman/internal/mirror"
	"circman/internal/platform"
)

// recentListLimit caps how many backups the list operation shows.
const recentListLimit = 5

// App holds the collaborators for one command invocation. Each
// operation is independent; nothing carries over between calls.
type App struct {
	Config *config.Config
	Enum   platform.Enumerator
	Store  *backup.Store
	Out    io.Writer
}

// New wires an App against the real OS.
func New(cfg *config.Config) *App {
	return &App{
		Config: cfg,
		Enum:   platform.NewEnumerator(),
		Store:  backup.NewStore(cfg.BackupRoot),
		Out:    os.Stdout,
	}
}

// Deploy snapshots the device and then mirrors the project source onto
// it. The backup always happens first: if it fails, the device has not
// been touched.
func (a *App) Deploy(devicePath, source string) error {
	log := logging.GetLogger("deploy")

	handle, err := a.resolveDevice(devicePath)
	if err != nil {
		return err
	}

	if source == "" {
		source = a.Config.Source
	}
	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("source directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source %s is not a directory", source)
	}

	bkp, err := a.Store.Create(handle.Mountpoint)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Archived device to %s\n", bkp.Path)

	log.Info().Str("source", source).Str("device", handle.Mountpoint).Msg("Deploying")
	if err := mirror.Mirror(source, handle.Mountpoint); err != nil {
		return fmt.Errorf("%w\nthe device may be partially updated; a backup exists at %s, run `circman restore` to put it back", err, bkp.Path)
	}

	fmt.Fprintf(a.Out, "Deployed %s to %s\n", source, handle.Mountpoint)
	return nil
}

// Restore mirrors the nth most recent backup (1 = latest) back onto
// the device.
func (a *App) Restore(devicePath string, archive int) error {
	log := logging.GetLogger("restore")

	handle, err := a.resolveDevice(devicePath)
	if err != nil {
		return err
	}

	bkp, err := a.Store.ByIndex(archive)
	if err != nil {
		return err
	}

	log.Info().Str("backup", bkp.Name).Str("device", handle.Mountpoint).Msg("Restoring")
	if err := mirror.Mirror(bkp.Path, handle.Mountpoint); err != nil {
		return err
	}

	fmt.Fprintf(a.Out, "Restored %s to %s\n", bkp.Name, handle.Mountpoint)
	return nil
}

// Pull copies the device tree back into a host directory, overwriting
// without backing anything up. The inverse of deploy, for recovering
// work edited directly on the board.
func (a *App) Pull(devicePath, dest string) error {
	log := logging.GetLogger("pull")

	handle, err := a.resolveDevice(devicePath)
	if err != nil {
		return err
	}

	if dest == "" {
		dest = a.Config.Source
	}

	log.Info().Str("device", handle.Mountpoint).Str("dest", dest).Msg("Pulling device contents")
	if err := mirror.Copy(handle.Mountpoint, dest); err != nil {
		return err
	}

	fmt.Fprintf(a.Out, "Copied %s to %s\n", handle.Mountpoint, dest)
	return nil
}

// Backups prints the most recent backups, newest last, numbered so
// that 1 is the argument restore's -a flag wants for the latest.
func (a *App) Backups() error {
	backups, err := a.Store.List()
	if err != nil {
		return err
	}

	if len(backups) > recentListLimit {
		backups = backups[len(backups)-recentListLimit:]
	}

	fmt.Fprintln(a.Out, "Backups:")
	for i, bkp := range backups {
		fmt.Fprintf(a.Out, "%d - %s - %s\n", len(backups)-i, bkp.CreatedAt().Format("2006-01-02 15:04:05"), bkp.Name)
	}
	return nil
}

// Devices prints every mount the locator considers plausible and which
// one discovery would pick. Diagnostic aid when deploy cannot find the
// board.
func (a *App) Devices() error {
	mounts, err := a.Enum.ListMounts()
	if err != nil {
		return err
	}

	candidates := device.Candidates(mounts)
	fmt.Fprintln(a.Out, "Removable volumes:")
	for i, mount := range candidates {
		label := mount.Label
		if label == "" {
			label = "(no label)"
		}
		fmt.Fprintf(a.Out, "%d. %s (%s, %s)\n", i+1, mount.Mountpoint, label, mount.FSType)
	}

	handle, err := device.Find(mounts, a.Config.DeviceLabels)
	if err != nil {
		fmt.Fprintf(a.Out, "No device selected: %v\n", err)
		return nil
	}
	fmt.Fprintf(a.Out, "Selected: %s\n", handle.Mountpoint)
	return nil
}

// resolveDevice honors an explicit --device path, otherwise runs
// discovery over the live mount table.
func (a *App) resolveDevice(path string) (device.Handle, error) {
	if path == "" {
		return device.Locate(a.Enum, a.Config.DeviceLabels)
	}

	info, err := os.Stat(path)
	if err != nil {
		return device.Handle{}, fmt.Errorf("device path: %w", err)
	}
	if !info.IsDir() {
		return device.Handle{}, fmt.Errorf("device path %s is not a directory", path)
	}
	return device.Handle{Mountpoint: path, Label: filepath.Base(path)}, nil
}
