// Package mirror copies directory trees onto slow removable media.
// Destinations are typically FAT volumes: no symlinks, no ownership,
// and files may carry a read-only attribute that must be cleared before
// they can be replaced.
package mirror

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/xxh3"
)

// SyncError reports the first path that could not be read or written.
// A sync never continues past an error: a half-updated device that
// looks finished is worse than a clear failure.
type SyncError struct {
	Path string
	Err  error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync failed at %s: %v", e.Path, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Mirror makes dst an exact copy of src: files and directories present
// only in dst are removed, everything in src is copied or overwritten.
// Running it twice with an unchanged src is a no-op the second time.
func Mirror(src, dst string) error {
	if err := copyTree(src, dst); err != nil {
		return err
	}
	return prune(src, dst)
}

// Copy overlays src onto dst without deleting anything already there.
// Used for pulling a device's tree back onto the host.
func Copy(src, dst string) error {
	return copyTree(src, dst)
}

func copyTree(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return &SyncError{Path: src, Err: err}
	}

	if err := os.MkdirAll(dst, 0755); err != nil {
		return &SyncError{Path: dst, Err: err}
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		// Stat follows symlinks, so a link on the source side is
		// copied as whatever it points at. The device filesystem
		// cannot represent links.
		info, err := os.Stat(srcPath)
		if err != nil {
			return &SyncError{Path: srcPath, Err: err}
		}

		if info.IsDir() {
			if err := replaceIfFile(dstPath); err != nil {
				return err
			}
			if err := copyTree(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}

		if err := copyFile(srcPath, dstPath, info); err != nil {
			return err
		}
	}

	return nil
}

// copyFile writes src's contents to dst, skipping the write entirely
// when dst already holds identical content. The skip keeps repeated
// deploys from rewriting every file on media with limited write cycles.
func copyFile(src, dst string, info os.FileInfo) error {
	if same, err := identical(src, dst, info); err == nil && same {
		return nil
	}

	if dstInfo, err := os.Lstat(dst); err == nil {
		if dstInfo.IsDir() {
			if err := removeTree(dst); err != nil {
				return err
			}
		} else if dstInfo.Mode()&0200 == 0 {
			// FAT read-only attribute surfaces as a write-protected
			// file; clear it or the open below fails.
			if err := os.Chmod(dst, 0644); err != nil {
				return &SyncError{Path: dst, Err: err}
			}
		}
	}

	in, err := os.Open(src)
	if err != nil {
		return &SyncError{Path: src, Err: err}
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return &SyncError{Path: dst, Err: err}
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return &SyncError{Path: dst, Err: err}
	}

	if err := out.Close(); err != nil {
		return &SyncError{Path: dst, Err: err}
	}

	return nil
}

// identical reports whether dst exists as a regular file with the same
// size and content hash as src.
func identical(src, dst string, srcInfo os.FileInfo) (bool, error) {
	dstInfo, err := os.Lstat(dst)
	if err != nil {
		return false, err
	}
	if !dstInfo.Mode().IsRegular() || dstInfo.Size() != srcInfo.Size() {
		return false, nil
	}

	srcHash, err := hashFile(src)
	if err != nil {
		return false, err
	}
	dstHash, err := hashFile(dst)
	if err != nil {
		return false, err
	}
	return srcHash == dstHash, nil
}

func hashFile(path string) (xxh3.Uint128, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return xxh3.Uint128{}, err
	}
	return xxh3.Hash128(data), nil
}

// prune removes everything under dst that has no counterpart in src.
func prune(src, dst string) error {
	dstEntries, err := os.ReadDir(dst)
	if err != nil {
		return &SyncError{Path: dst, Err: err}
	}

	srcEntries, err := os.ReadDir(src)
	if err != nil {
		return &SyncError{Path: src, Err: err}
	}
	keep := make(map[string]bool, len(srcEntries))
	for _, entry := range srcEntries {
		keep[entry.Name()] = true
	}

	for _, entry := range dstEntries {
		name := entry.Name()
		dstPath := filepath.Join(dst, name)

		if !keep[name] {
			if err := removeTree(dstPath); err != nil {
				return err
			}
			continue
		}

		srcPath := filepath.Join(src, name)
		srcInfo, err := os.Stat(srcPath)
		if err != nil {
			return &SyncError{Path: srcPath, Err: err}
		}
		if srcInfo.IsDir() && entry.IsDir() {
			if err := prune(srcPath, dstPath); err != nil {
				return err
			}
		}
	}

	return nil
}

// removeTree deletes a file or directory tree, clearing read-only
// attributes as it goes so write-protected entries do not survive.
func removeTree(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return &SyncError{Path: path, Err: err}
	}

	if info.IsDir() {
		if info.Mode()&0200 == 0 {
			os.Chmod(path, 0755)
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return &SyncError{Path: path, Err: err}
		}
		for _, entry := range entries {
			if err := removeTree(filepath.Join(path, entry.Name())); err != nil {
				return err
			}
		}
	} else if info.Mode()&0200 == 0 {
		os.Chmod(path, 0644)
	}

	if err := os.Remove(path); err != nil {
		return &SyncError{Path: path, Err: err}
	}
	return nil
}

// replaceIfFile clears the way for a directory: when dst exists as a
// plain file it is removed so MkdirAll can succeed.
func replaceIfFile(dst string) error {
	info, err := os.Lstat(dst)
	if err != nil {
		return nil
	}
	if info.IsDir() {
		return nil
	}
	return removeTree(dst)
}
