package device

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"circman/internal/platform"
)

// ErrNotFound is returned when zero or more than one plausible device
// remains after filtering. Writing to a guessed volume is worse than
// failing, so ambiguity is an error.
var ErrNotFound = errors.New("device not found")

// DefaultLabels are the volume label prefixes recognized as deploy
// targets. CIRCUITPY is the CircuitPython convention, PYBFLASH the
// MicroPython one. Extendable via the config file.
var DefaultLabels = []string{"CIRCUITPY", "PYBFLASH"}

// fatTypes are the filesystem types a board's mass-storage volume shows
// up as, depending on OS and driver.
var fatTypes = map[string]bool{
	"vfat":  true,
	"fat":   true,
	"fat32": true,
	"msdos": true,
	"exfat": true,
}

// removableRoots are mountpoint prefixes under which desktop OSes place
// removable media.
var removableRoots = []string{"/media/", "/run/media/", "/Volumes/"}

// systemRoots hold FAT volumes that are never deploy targets, like the
// EFI system partition.
var systemRoots = []string{"/boot", "/efi"}

// Handle is a resolved deploy target: the device's mountpoint plus the
// label it was recognized by.
type Handle struct {
	Mountpoint string
	Label      string
}

// Find picks the one mount that is the board from the enumerator's
// output. Selection is pure over the mount records; labels is the
// allow-list of label prefixes (DefaultLabels when nil).
func Find(mounts []platform.Mount, labels []string) (Handle, error) {
	if labels == nil {
		labels = DefaultLabels
	}

	var candidates []platform.Mount
	for _, mount := range mounts {
		if plausible(mount) {
			candidates = append(candidates, mount)
		}
	}

	var labeled []platform.Mount
	for _, mount := range candidates {
		if labelMatch(mount.Label, labels) {
			labeled = append(labeled, mount)
		}
	}

	switch {
	case len(labeled) == 1:
		return Handle{Mountpoint: labeled[0].Mountpoint, Label: labeled[0].Label}, nil
	case len(labeled) > 1:
		return Handle{}, fmt.Errorf("%w: %d labeled volumes match, unplug all but one", ErrNotFound, len(labeled))
	case len(candidates) == 1 && candidates[0].Label == "":
		// A volume carrying some other label is somebody else's
		// stick; only a truly unlabeled lone candidate is accepted.
		return Handle{Mountpoint: candidates[0].Mountpoint, Label: candidates[0].Label}, nil
	case len(candidates) > 0:
		return Handle{}, fmt.Errorf("%w: %d removable volume(s) and none carries a known label", ErrNotFound, len(candidates))
	default:
		return Handle{}, fmt.Errorf("%w: no removable volume is mounted", ErrNotFound)
	}
}

// Locate runs discovery against the live mount table and verifies the
// chosen mountpoint is a writable directory before handing it out.
func Locate(enum platform.Enumerator, labels []string) (Handle, error) {
	mounts, err := enum.ListMounts()
	if err != nil {
		return Handle{}, fmt.Errorf("listing mounts: %w", err)
	}

	handle, err := Find(mounts, labels)
	if err != nil {
		return Handle{}, err
	}

	if err := checkWritableDir(handle.Mountpoint); err != nil {
		return Handle{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	return handle, nil
}

// Candidates reports which mounts pass the plausibility filter, for the
// device diagnostic command.
func Candidates(mounts []platform.Mount) []platform.Mount {
	var candidates []platform.Mount
	for _, mount := range mounts {
		if plausible(mount) {
			candidates = append(candidates, mount)
		}
	}
	return candidates
}

func plausible(mount platform.Mount) bool {
	for _, root := range systemRoots {
		if mount.Mountpoint == root || strings.HasPrefix(mount.Mountpoint, root+"/") {
			return false
		}
	}
	if fatTypes[strings.ToLower(mount.FSType)] {
		return true
	}
	for _, root := range removableRoots {
		if strings.HasPrefix(mount.Mountpoint, root) {
			return true
		}
	}
	return false
}

func labelMatch(label string, allow []string) bool {
	if label == "" {
		return false
	}
	for _, prefix := range allow {
		if strings.HasPrefix(label, prefix) {
			return true
		}
	}
	return false
}

// checkWritableDir verifies the mountpoint without touching its
// contents; discovery must stay read-only. Best effort: the device can
// still detach between this check and the first write.
func checkWritableDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	if err := unix.Access(path, unix.W_OK); err != nil {
		return fmt.Errorf("%s is not writable: %v", path, err)
	}
	return nil
}
