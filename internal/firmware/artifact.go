// Package firmware models the binary payloads an upload writes to a device.
package firmware

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Segment is one binary payload and the flash offset it is written at.
type Segment struct {
	Path   string
	Offset uint32
}

// Artifact is the read-only input to an upload: one or more segments, plus
// whether the chip should be fully erased before any write.
type Artifact struct {
	Segments  []Segment
	FullErase bool
}

// Single builds an artifact from one file at one offset.
func Single(path string, offset uint32) Artifact {
	return Artifact{Segments: []Segment{{Path: path, Offset: offset}}}
}

// ParseSegment parses a "0xOFFSET:path" argument. A bare path is accepted
// and gets offset 0.
func ParseSegment(arg string) (Segment, error) {
	idx := strings.Index(arg, ":")
	// Windows drive letters look like "C:\..."; only treat the colon as a
	// separator when the prefix parses as a number.
	if idx > 0 {
		if off, err := parseOffset(arg[:idx]); err == nil {
			return Segment{Path: arg[idx+1:], Offset: off}, nil
		}
	}
	return Segment{Path: arg}, nil
}

func parseOffset(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("bad flash offset %q: %w", s, err)
	}
	return uint32(v), nil
}

// Validate checks the artifact is structurally sound: at least one segment,
// every file present and readable, no two segments at the same offset.
func (a Artifact) Validate() error {
	if len(a.Segments) == 0 {
		return fmt.Errorf("no firmware segments given")
	}

	seen := make(map[uint32]string, len(a.Segments))
	for _, seg := range a.Segments {
		info, err := os.Stat(seg.Path)
		if err != nil {
			return fmt.Errorf("firmware file %s: %w", seg.Path, err)
		}
		if info.IsDir() {
			return fmt.Errorf("firmware file %s is a directory", seg.Path)
		}
		if info.Size() == 0 {
			return fmt.Errorf("firmware file %s is empty", seg.Path)
		}
		if prev, dup := seen[seg.Offset]; dup {
			return fmt.Errorf("segments %s and %s share flash offset 0x%X",
				filepath.Base(prev), filepath.Base(seg.Path), seg.Offset)
		}
		seen[seg.Offset] = seg.Path
	}
	return nil
}

// Sorted returns the segments in ascending flash offset order. The flashing
// protocol requires ascending writes; out-of-order writes can corrupt the
// partition table.
func (a Artifact) Sorted() []Segment {
	segs := make([]Segment, len(a.Segments))
	copy(segs, a.Segments)
	sort.Slice(segs, func(i, j int) bool { return segs[i].Offset < segs[j].Offset })
	return segs
}

// TotalSize returns the summed size of all segment files, ignoring files
// that cannot be stat'd (Validate reports those).
func (a Artifact) TotalSize() int64 {
	var total int64
	for _, seg := range a.Segments {
		if info, err := os.Stat(seg.Path); err == nil {
			total += info.Size()
		}
	}
	return total
}

// ExpectedBootOffset returns the conventional bootloader offset for an ESP32
// chip variant: newer parts (S3/C3/C6/H2/C2) boot from 0x0, the classic
// ESP32 from 0x1000.
func ExpectedBootOffset(chip string) uint32 {
	upper := strings.ToUpper(chip)
	for _, variant := range []string{"S3", "C3", "C6", "H2", "C2"} {
		if strings.Contains(upper, variant) {
			return 0x0
		}
	}
	return 0x1000
}

// NormalizeBootloader fixes a bootloader segment whose offset does not match
// the chip family convention. It returns the (possibly corrected) artifact
// and whether a correction was applied. Unknown chip names leave the
// artifact untouched.
func (a Artifact) NormalizeBootloader(chip string) (Artifact, bool) {
	if chip == "" || strings.EqualFold(chip, "auto") {
		return a, false
	}

	want := ExpectedBootOffset(chip)
	for i, seg := range a.Segments {
		if !strings.Contains(strings.ToLower(filepath.Base(seg.Path)), "bootloader") {
			continue
		}
		if seg.Offset == want {
			return a, false
		}
		fixed := Artifact{Segments: make([]Segment, len(a.Segments)), FullErase: a.FullErase}
		copy(fixed.Segments, a.Segments)
		fixed.Segments[i].Offset = want
		return fixed, true
	}
	return a, false
}
