package flash

import (
	"regexp"
	"strconv"
	"strings"
)

var stm32PercentRe = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)\s*%`)

// stm32Parser interprets STM32_Programmer_CLI output line by line and drives
// the phase tracker. The tool prints banner noise, progress bars with block
// characters, and marker lines we key on.
type stm32Parser struct {
	rep Reporter

	verified   bool
	verifyFail bool
	errDetail  string
}

func (p *stm32Parser) observe(line string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "Note:") {
		return
	}

	switch {
	case strings.Contains(line, "Erasing memory"),
		strings.Contains(line, "Mass erase"),
		strings.Contains(line, "Sector erase"):
		p.rep.Phase(PhaseErasing, "erasing flash")

	case strings.Contains(line, "Download in Progress"),
		strings.Contains(line, "Memory Programming"):
		p.rep.Phase(PhaseWriting, "programming flash")

	case strings.Contains(line, "Download verified successfully"):
		p.verified = true
		p.rep.Phase(PhaseVerifying, "verification complete")

	case strings.Contains(line, "Error: Data mismatch"),
		strings.Contains(line, "verification failed"):
		p.verifyFail = true
		p.errDetail = line

	case strings.Contains(line, "Error:"):
		if p.errDetail == "" {
			p.errDetail = line
		}

	case strings.Contains(line, "Application is running"),
		strings.Contains(line, "RUNNING"):
		p.rep.Phase(PhaseResetting, "starting application")

	default:
		if m := stm32PercentRe.FindStringSubmatch(line); m != nil {
			if pct, err := strconv.ParseFloat(m[1], 64); err == nil && pct <= 100 {
				if p.rep.Current() == PhaseConnecting {
					p.rep.Phase(PhaseWriting, "programming flash")
				}
				p.rep.Percent(pct, "")
			}
		}
	}
}
