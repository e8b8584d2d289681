//go:build linux
// +build linux

package platform

import (
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
)

type linuxEnumerator struct{}

func newEnumerator() Enumerator {
	return &linuxEnumerator{}
}

func (e *linuxEnumerator) ListMounts() ([]Mount, error) {
	// Physical filesystems only; tmpfs, proc and friends are never
	// deploy targets.
	partitions, err := disk.Partitions(false)
	if err != nil {
		return nil, err
	}

	labels := labelsByDevice()

	var mounts []Mount
	for _, partition := range partitions {
		if partition.Mountpoint == "" {
			continue
		}
		mounts = append(mounts, Mount{
			Device:     partition.Device,
			Mountpoint: partition.Mountpoint,
			Label:      labels[partition.Device],
			FSType:     partition.Fstype,
		})
	}

	return mounts, nil
}

// labelsByDevice resolves the /dev/disk/by-label symlinks into a
// device-path -> label map. Volumes without a label simply have no
// entry there.
func labelsByDevice() map[string]string {
	labels := make(map[string]string)

	labelDir := "/dev/disk/by-label"
	entries, err := os.ReadDir(labelDir)
	if err != nil {
		return labels
	}

	for _, entry := range entries {
		linkPath := filepath.Join(labelDir, entry.Name())
		target, err := os.Readlink(linkPath)
		if err != nil {
			continue
		}

		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(linkPath), target)
		}
		target = filepath.Clean(target)

		labels[target] = entry.Name()
	}

	return labels
}
