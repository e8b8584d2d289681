// Package backup keeps timestamped snapshots of a device's file tree
// under a host-side archive root.
package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/adrg/xdg"

	"circman/internal/logging"
	"circman/internal/mirror"
)

// ErrNoBackup is returned when an operation needs a backup and the
// store holds none.
var ErrNoBackup = errors.New("no backup available")

// stampLayout produces names that sort lexically in chronological
// order, so directory listing order is backup order and no metadata
// file is needed.
const stampLayout = "20060102T150405"

// Backup is one completed snapshot: a directory under the store root
// holding a full mirror of the device at capture time. Never mutated
// after creation.
type Backup struct {
	Name string
	Path string
}

// CreatedAt recovers the capture time from the backup's name.
func (b Backup) CreatedAt() time.Time {
	stamp := b.Name
	if len(stamp) > len(stampLayout) {
		stamp = stamp[:len(stampLayout)]
	}
	t, err := time.Parse(stampLayout, stamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Store manages the archive root. The root is passed in explicitly so
// tests can point it at a temporary directory.
type Store struct {
	Root string

	now func() time.Time
}

// NewStore creates a store over the given root. The root directory is
// created lazily on the first Create.
func NewStore(root string) *Store {
	return &Store{Root: root, now: time.Now}
}

// DefaultRoot is the OS-appropriate archive location, independent of
// any project directory so backups survive across projects.
func DefaultRoot() string {
	return filepath.Join(xdg.DataHome, "circman", "archives")
}

// Create snapshots the tree at devicePath into a new timestamp-named
// directory and returns it. On any copy error the partial directory is
// removed: a listed backup must always be a complete mirror, or
// restore would quietly push half a snapshot back onto the device.
func (s *Store) Create(devicePath string) (Backup, error) {
	log := logging.GetLogger("backup")

	if err := os.MkdirAll(s.Root, 0755); err != nil {
		return Backup{}, fmt.Errorf("creating backup root: %w", err)
	}

	name := s.now().UTC().Format(stampLayout)
	dir := filepath.Join(s.Root, name)

	// Two backups inside the same second get zero-padded -02, -03, …
	// suffixes so names keep sorting chronologically up to 99
	// collisions; an existing backup directory is never reused or
	// overwritten.
	for i := 2; ; i++ {
		if err := os.Mkdir(dir, 0755); err == nil {
			break
		} else if !errors.Is(err, os.ErrExist) {
			return Backup{}, fmt.Errorf("creating backup directory: %w", err)
		}
		name = fmt.Sprintf("%s-%02d", s.now().UTC().Format(stampLayout), i)
		dir = filepath.Join(s.Root, name)
	}

	log.Info().Str("backup", name).Str("device", devicePath).Msg("Archiving device")

	if err := mirror.Copy(devicePath, dir); err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			log.Warn().Err(rmErr).Str("path", dir).Msg("Could not remove partial backup")
		}
		return Backup{}, fmt.Errorf("backup failed: %w", err)
	}

	return Backup{Name: name, Path: dir}, nil
}

// List returns all backups oldest first. A missing or empty root is an
// empty store, not an error.
func (s *Store) List() ([]Backup, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup root: %w", err)
	}

	var backups []Backup
	for _, entry := range entries {
		if !entry.IsDir() || !validName(entry.Name()) {
			continue
		}
		backups = append(backups, Backup{
			Name: entry.Name(),
			Path: filepath.Join(s.Root, entry.Name()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Name < backups[j].Name
	})

	return backups, nil
}

// Latest returns the most recent backup.
func (s *Store) Latest() (Backup, error) {
	return s.ByIndex(1)
}

// ByIndex returns the nth most recent backup, 1 being the latest.
func (s *Store) ByIndex(n int) (Backup, error) {
	backups, err := s.List()
	if err != nil {
		return Backup{}, err
	}
	if len(backups) == 0 {
		return Backup{}, ErrNoBackup
	}
	if n < 1 || n > len(backups) {
		return Backup{}, fmt.Errorf("backup %d not found, %d available", n, len(backups))
	}
	return backups[len(backups)-n], nil
}

// validName accepts timestamp names with an optional collision suffix,
// so stray directories under the root are not mistaken for backups.
func validName(name string) bool {
	stamp := name
	if len(stamp) > len(stampLayout) {
		if stamp[len(stampLayout)] != '-' {
			return false
		}
		stamp = stamp[:len(stampLayout)]
	}
	_, err := time.Parse(stampLayout, stamp)
	return err == nil
}
