package flash

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/buckleypaul/surge/internal/config"
	"github.com/buckleypaul/surge/internal/device"
	"github.com/buckleypaul/surge/internal/firmware"
	"github.com/buckleypaul/surge/internal/transport"
)

// espFallbackBaud is what the upload drops to when the bridge chip cannot
// sync at the configured rate.
const espFallbackBaud = 115200

// ESP32Strategy flashes ESP32 targets by driving esptool. Segments are
// written ascending in one write_flash invocation; a full erase runs as a
// separate erase_flash invocation first.
type ESP32Strategy struct {
	cfg config.Config
	log *zap.Logger

	runner Runner
	probe  func(string) error
}

func NewESP32Strategy(cfg config.Config, log *zap.Logger) *ESP32Strategy {
	return &ESP32Strategy{
		cfg:    cfg,
		log:    log.Named("esp32"),
		runner: newExecRunner(),
		probe:  transport.Probe,
	}
}

func (s *ESP32Strategy) Family() device.Family { return device.FamilyESP32 }

func (s *ESP32Strategy) Prepare(ctx context.Context, t transport.Transport, art firmware.Artifact) (*Ready, error) {
	if err := art.Validate(); err != nil {
		return nil, newError(ErrArtifactInvalid, PhaseIdle, "%v", err)
	}

	tool, err := locateEsptool(s.cfg.Esptool)
	if err != nil {
		return nil, err
	}

	if chip := s.cfg.ESPChip; chip != "" && chip != "auto" {
		var fixed bool
		if art, fixed = art.NormalizeBootloader(chip); fixed {
			s.log.Warn("bootloader offset corrected for chip", zap.String("chip", chip))
		}
	}

	if err := s.probe(t.Name); err != nil {
		return nil, newError(ErrDeviceUnreachable, PhaseConnecting, "probe %s: %v", t.Name, err)
	}

	art.Segments = art.Sorted()
	args := s.baseArgs(t.Name, s.cfg.UploadBaud)
	args = append(args,
		"write_flash", "-z",
		"--flash_mode", "dio",
		"--flash_freq", "40m",
		"--flash_size", "detect",
	)
	for _, seg := range art.Segments {
		args = append(args, fmt.Sprintf("0x%X", seg.Offset), seg.Path)
	}

	return &Ready{
		Transport:    t,
		Artifact:     art,
		Tool:         tool,
		Args:         args,
		Baud:         s.cfg.UploadBaud,
		FullErase:    art.FullErase,
		PhaseTimeout: time.Duration(s.cfg.PhaseTimeoutSec) * time.Second,
	}, nil
}

func (s *ESP32Strategy) Execute(ctx context.Context, ready *Ready, rep Reporter) error {
	if err := rep.Phase(PhaseConnecting, "connecting to "+ready.Transport.Name); err != nil {
		return err
	}
	s.log.Info("starting upload",
		zap.String("port", ready.Transport.Name),
		zap.Int("baud", ready.Baud),
		zap.Int("segments", len(ready.Artifact.Segments)))

	if ready.FullErase {
		if err := s.eraseFirst(ctx, ready, rep); err != nil {
			return err
		}
	}

	err := s.writeOnce(ctx, ready, rep, ready.Args)
	if kindOfConnect(err) {
		// One shot at the safe baud before giving up. Cheap bridge chips
		// regularly fail to sync at 921600.
		rep.Message(fmt.Sprintf("retrying at %d baud", espFallbackBaud))
		s.log.Warn("sync failed, dropping baud", zap.Int("fallback", espFallbackBaud))
		err = s.writeOnce(ctx, ready, rep, argsWithBaud(ready.Args, espFallbackBaud))
	}
	return err
}

func (s *ESP32Strategy) writeOnce(ctx context.Context, ready *Ready, rep Reporter, args []string) error {
	watch := newStallWatch(ctx, ready.PhaseTimeout)
	defer watch.stop()

	parser := newESP32Parser(rep, segmentSizes(ready.Artifact.Segments))
	phase := rep.Current()
	code, err := s.runner.Run(watch.ctx, ready.Tool, args, func(line string) {
		watch.touch()
		parser.observe(line)
		if cur := rep.Current(); cur != phase {
			phase = cur
			watch.setTimeout(phaseDeadline(cur, ready.PhaseTimeout))
		}
	})

	switch {
	case err != nil:
		if watch.stalled() {
			return newError(ErrDeviceUnreachable, rep.Current(), "%v", errStalled)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return newError(ErrUnknown, rep.Current(), "esptool: %v", err)
	case watch.stalled():
		return newError(ErrDeviceUnreachable, rep.Current(), "%v", errStalled)
	case ctx.Err() != nil:
		return ctx.Err()
	case code != 0:
		detail := parser.errDetail
		if detail == "" {
			detail = fmt.Sprintf("esptool exited with code %d", code)
		}
		if parser.connectFailed {
			return newError(ErrDeviceUnreachable, PhaseConnecting, "%s", detail)
		}
		return newError(ErrUnknown, rep.Current(), "%s", detail)
	case parser.verifiedCount < len(ready.Artifact.Segments):
		return newError(ErrVerificationMismatch, PhaseVerifying,
			"%d of %d segments confirmed a verified hash",
			parser.verifiedCount, len(ready.Artifact.Segments))
	}
	return nil
}

// eraseFirst runs a standalone erase_flash before writing. The erase uses
// extra connect attempts and caps the baud: a full chip erase at high baud
// is the most sync-sensitive thing esptool does.
func (s *ESP32Strategy) eraseFirst(ctx context.Context, ready *Ready, rep Reporter) error {
	if err := rep.Phase(PhaseErasing, "erasing entire flash"); err != nil {
		return err
	}
	args := s.eraseArgs(ready.Transport.Name, "no-reset")
	return s.runErase(ctx, ready.Tool, args, 2*ready.PhaseTimeout, nil)
}

// Erase wipes the entire flash without writing anything. Lines of tool
// output are passed to onLine when non-nil.
func (s *ESP32Strategy) Erase(ctx context.Context, t transport.Transport, onLine func(string)) error {
	tool, err := locateEsptool(s.cfg.Esptool)
	if err != nil {
		return err
	}
	if err := s.probe(t.Name); err != nil {
		return newError(ErrDeviceUnreachable, PhaseConnecting, "probe %s: %v", t.Name, err)
	}
	timeout := 2 * time.Duration(s.cfg.PhaseTimeoutSec) * time.Second
	return s.runErase(ctx, tool, s.eraseArgs(t.Name, "hard-reset"), timeout, onLine)
}

func (s *ESP32Strategy) eraseArgs(port, after string) []string {
	baud := s.cfg.UploadBaud
	if baud > espFallbackBaud {
		baud = espFallbackBaud
	}
	args := s.baseArgs(port, baud)
	return append(args[:len(args)-2],
		"--after", after, "--connect-attempts", "3", "erase_flash")
}

func (s *ESP32Strategy) runErase(ctx context.Context, tool string, args []string, timeout time.Duration, onLine func(string)) error {
	watch := newStallWatch(ctx, timeout)
	defer watch.stop()

	var detail string
	code, err := s.runner.Run(watch.ctx, tool, args, func(line string) {
		watch.touch()
		if detail == "" && strings.Contains(strings.ToLower(line), "error") {
			detail = strings.TrimSpace(line)
		}
		if onLine != nil {
			onLine(line)
		}
	})
	if err != nil || code != 0 {
		if watch.stalled() {
			return newError(ErrDeviceUnreachable, PhaseErasing, "%v", errStalled)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if detail == "" {
			detail = fmt.Sprintf("erase_flash exited with code %d", code)
		}
		return newError(ErrDeviceUnreachable, PhaseErasing, "%s", detail)
	}
	return nil
}

func (s *ESP32Strategy) baseArgs(port string, baud int) []string {
	chip := s.cfg.ESPChip
	if chip == "" {
		chip = "auto"
	}
	return []string{
		"--chip", chip,
		"--port", port,
		"--baud", strconv.Itoa(baud),
		"--before", "default-reset",
		"--after", "hard-reset",
	}
}

func argsWithBaud(args []string, baud int) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i < len(out)-1; i++ {
		if out[i] == "--baud" {
			out[i+1] = strconv.Itoa(baud)
			break
		}
	}
	return out
}

func segmentSizes(segs []firmware.Segment) []int64 {
	sizes := make([]int64, len(segs))
	for i, seg := range segs {
		if info, err := os.Stat(seg.Path); err == nil {
			sizes[i] = info.Size()
		}
	}
	return sizes
}

// kindOfConnect reports whether err is a connect-phase device failure, the
// only class worth a baud-fallback retry.
func kindOfConnect(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == ErrDeviceUnreachable && PhaseOf(err) == PhaseConnecting
}
