package flash

import (
	"regexp"
	"strconv"
	"strings"
)

var espWriteRe = regexp.MustCompile(`Writing at 0x[0-9a-fA-F]+\D+(\d{1,3})\s*%`)

// esp32Parser interprets esptool output line by line. esptool writes each
// segment in turn, so a per-segment percent has to be projected onto the
// whole upload; segments are weighted by file size.
type esp32Parser struct {
	rep   Reporter
	sizes []int64 // per segment, ascending offset order
	total int64

	seg           int // index of the segment being written
	verifiedCount int
	chip          string
	connectFailed bool
	errDetail     string
}

func newESP32Parser(rep Reporter, sizes []int64) *esp32Parser {
	p := &esp32Parser{rep: rep, sizes: sizes}
	for _, s := range sizes {
		p.total += s
	}
	return p
}

func (p *esp32Parser) observe(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	switch {
	case strings.HasPrefix(line, "Connecting"):
		p.rep.Phase(PhaseConnecting, "connecting")

	case strings.HasPrefix(line, "Chip is "):
		p.chip = strings.TrimPrefix(line, "Chip is ")
		p.rep.Message("detected " + p.chip)

	case strings.Contains(line, "Erasing flash"),
		strings.Contains(line, "Flash memory erased"),
		strings.Contains(line, "Chip erase completed"):
		p.rep.Phase(PhaseErasing, "erasing flash")

	case strings.Contains(line, "Hash of data verified"):
		p.verifiedCount++
		if p.seg < len(p.sizes)-1 {
			p.seg++
		} else {
			p.rep.Phase(PhaseVerifying, "hash verified")
		}

	case strings.Contains(line, "Hard resetting"):
		p.rep.Phase(PhaseResetting, "resetting board")

	case strings.Contains(line, "Failed to connect"),
		strings.Contains(line, "A fatal error occurred"):
		p.connectFailed = p.connectFailed || strings.Contains(line, "Failed to connect")
		if p.errDetail == "" {
			p.errDetail = line
		}

	default:
		if m := espWriteRe.FindStringSubmatch(line); m != nil {
			if pct, err := strconv.Atoi(m[1]); err == nil {
				p.rep.Phase(PhaseWriting, "")
				p.rep.Percent(p.overall(pct), "")
			}
		}
	}
}

// overall projects a percent within the current segment onto the upload as a
// whole, weighting segments by size.
func (p *esp32Parser) overall(segPct int) float64 {
	if p.total == 0 || p.seg >= len(p.sizes) {
		return float64(segPct)
	}
	var done int64
	for i := 0; i < p.seg; i++ {
		done += p.sizes[i]
	}
	written := float64(done) + float64(p.sizes[p.seg])*float64(segPct)/100
	return written / float64(p.total) * 100
}
