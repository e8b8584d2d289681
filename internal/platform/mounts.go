package platform

// Mount describes one entry of the host's mount table.
type Mount struct {
	Device     string // block device or volume path, e.g. /dev/sda1
	Mountpoint string
	Label      string // volume label, empty when the OS exposes none
	FSType     string // e.g. vfat, msdos, exfat
}

// Enumerator lists currently mounted filesystems. Implementations read
// the mount table fresh on every call; devices attach and detach between
// invocations, so nothing is cached.
type Enumerator interface {
	ListMounts() ([]Mount, error)
}

// NewEnumerator creates a platform-specific mount enumerator.
func NewEnumerator() Enumerator {
	return newEnumerator()
}
