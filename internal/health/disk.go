package health

import (
	"fmt"
	"strconv"
	"strings"
)

// DiskInfo is one row of df -k output. Sizes are in 1K blocks.
type DiskInfo struct {
	Filesystem string
	Total      uint64
	Used       uint64
	Available  uint64
	UsePercent float64
	MountedOn  string
}

func (d DiskInfo) String() string {
	return fmt.Sprintf("(fs: %s, total: %d, used: %d, avail: %d, use %%: %.2f, mounted on: %s)",
		d.Filesystem, d.Total, d.Used, d.Available, d.UsePercent, d.MountedOn)
}

// ParseDF parses df -k output. The header line is skipped and every other
// non-blank line must have exactly six fields; any bad line fails the whole
// parse.
func ParseDF(out string) ([]DiskInfo, error) {
	lines := strings.Split(out, "\n")
	if len(lines) > 0 {
		lines = lines[1:]
	}

	disks := []DiskInfo{}
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 6 {
			return nil, fmt.Errorf("%w: df line %d has %d fields", ErrMalformed, i+2, len(fields))
		}

		total, err1 := strconv.ParseUint(fields[1], 10, 64)
		used, err2 := strconv.ParseUint(fields[2], 10, 64)
		avail, err3 := strconv.ParseUint(fields[3], 10, 64)
		use, err4 := strconv.ParseFloat(strings.TrimSuffix(fields[4], "%"), 64)
		for _, err := range []error{err1, err2, err3, err4} {
			if err != nil {
				return nil, fmt.Errorf("%w: df line %d: %v", ErrMalformed, i+2, err)
			}
		}

		disks = append(disks, DiskInfo{
			Filesystem: fields[0],
			Total:      total,
			Used:       used,
			Available:  avail,
			UsePercent: use,
			MountedOn:  fields[5],
		})
	}
	return disks, nil
}

// FindMount returns the first disk mounted on mount.
func FindMount(disks []DiskInfo, mount string) (DiskInfo, bool) {
	for _, d := range disks {
		if d.MountedOn == mount {
			return d, true
		}
	}
	return DiskInfo{}, false
}

// FindFilesystem returns the first disk whose device is fs.
func FindFilesystem(disks []DiskInfo, fs string) (DiskInfo, bool) {
	for _, d := range disks {
		if d.Filesystem == fs {
			return d, true
		}
	}
	return DiskInfo{}, false
}

// DiskTargets names the four storage areas reported in the beacon. Root and
// home are matched by mount point, SD and upgrade by device.
type DiskTargets struct {
	RootMount         string `toml:"root_mount" json:"root_mount"`
	HomeMount         string `toml:"home_mount" json:"home_mount"`
	SDFilesystem      string `toml:"sd_filesystem" json:"sd_filesystem"`
	UpgradeFilesystem string `toml:"upgrade_filesystem" json:"upgrade_filesystem"`
}

// DefaultDiskTargets returns the OBC storage layout.
func DefaultDiskTargets() DiskTargets {
	return DiskTargets{
		RootMount:         "/",
		HomeMount:         "/home",
		SDFilesystem:      "/dev/sda1",
		UpgradeFilesystem: "/dev/sda3",
	}
}
