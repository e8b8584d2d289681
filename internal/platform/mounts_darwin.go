//go:build darwin
// +build darwin

package platform

import (
	"os/exec"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
	"howett.net/plist"
)

type macEnumerator struct{}

func newEnumerator() Enumerator {
	return &macEnumerator{}
}

type diskutilPartition struct {
	DeviceIdentifier string `plist:"DeviceIdentifier"`
	VolumeName       string `plist:"VolumeName"`
	MountPoint       string `plist:"MountPoint"`
}

type diskutilOutput struct {
	AllDisksAndPartitions []struct {
		Partitions []diskutilPartition `plist:"Partitions"`
	} `plist:"AllDisksAndPartitions"`
}

func (e *macEnumerator) ListMounts() ([]Mount, error) {
	partitions, err := disk.Partitions(false)
	if err != nil {
		return nil, err
	}

	labels := e.labelsByMountpoint()

	var mounts []Mount
	for _, partition := range partitions {
		if partition.Mountpoint == "" {
			continue
		}

		label, ok := labels[partition.Mountpoint]
		if !ok && filepath.Dir(partition.Mountpoint) == "/Volumes" {
			// diskutil unavailable or volume not external; the
			// mountpoint basename is the volume name on macOS.
			label = filepath.Base(partition.Mountpoint)
		}

		mounts = append(mounts, Mount{
			Device:     partition.Device,
			Mountpoint: partition.Mountpoint,
			Label:      label,
			FSType:     partition.Fstype,
		})
	}

	return mounts, nil
}

// labelsByMountpoint asks diskutil for external volumes and maps their
// mountpoints to volume names.
func (e *macEnumerator) labelsByMountpoint() map[string]string {
	labels := make(map[string]string)

	cmd := exec.Command("diskutil", "list", "-plist", "external")
	output, err := cmd.Output()
	if err != nil {
		return labels
	}

	var diskutil diskutilOutput
	if _, err := plist.Unmarshal(output, &diskutil); err != nil {
		return labels
	}

	for _, d := range diskutil.AllDisksAndPartitions {
		for _, partition := range d.Partitions {
			if partition.MountPoint != "" && partition.VolumeName != "" {
				labels[partition.MountPoint] = partition.VolumeName
			}
		}
	}

	return labels
}
