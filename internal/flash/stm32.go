package flash

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/buckleypaul/surge/internal/config"
	"github.com/buckleypaul/surge/internal/device"
	"github.com/buckleypaul/surge/internal/firmware"
	"github.com/buckleypaul/surge/internal/transport"
)

// stm32DefaultAddr is where application images live on every STM32 part.
const stm32DefaultAddr = 0x08000000

// STM32Strategy flashes STM32 targets by driving STM32_Programmer_CLI.
// The tool handles the bootloader handshake itself; we connect in the
// configured mode, write with mandatory verify, then start the application
// with -s and release the SWD link in a follow-up invocation.
type STM32Strategy struct {
	cfg config.Config
	log *zap.Logger

	runner Runner
	probe  func(string) error
}

func NewSTM32Strategy(cfg config.Config, log *zap.Logger) *STM32Strategy {
	return &STM32Strategy{
		cfg:    cfg,
		log:    log.Named("stm32"),
		runner: newExecRunner(),
		probe:  transport.Probe,
	}
}

func (s *STM32Strategy) Family() device.Family { return device.FamilySTM32 }

func (s *STM32Strategy) Prepare(ctx context.Context, t transport.Transport, art firmware.Artifact) (*Ready, error) {
	if err := art.Validate(); err != nil {
		return nil, newError(ErrArtifactInvalid, PhaseIdle, "%v", err)
	}
	if len(art.Segments) != 1 {
		return nil, newError(ErrArtifactInvalid, PhaseIdle,
			"STM32 upload takes exactly one image, got %d segments", len(art.Segments))
	}

	tool, err := locateSTM32CLI(s.cfg.STM32Programmer)
	if err != nil {
		return nil, err
	}

	port := stm32Port(t)
	if port != "SWD" {
		if err := s.probe(t.Name); err != nil {
			return nil, newError(ErrDeviceUnreachable, PhaseConnecting, "probe %s: %v", t.Name, err)
		}
	}

	seg := art.Segments[0]
	addr := seg.Offset
	if addr == 0 {
		addr = stm32DefaultAddr
	}

	args := []string{"-c", "port=" + port, "-c", "mode=" + s.cfg.STM32Mode}
	if s.cfg.STM32FreqKHz > 0 {
		args = append(args, "-c", fmt.Sprintf("freq=%d", s.cfg.STM32FreqKHz))
	}
	if s.cfg.STM32HardReset {
		args = append(args, "-c", "reset=HWrst")
	}
	// -s starts the application afterwards, which also releases the debugger.
	args = append(args, "-w", seg.Path, fmt.Sprintf("0x%08X", addr), "-v", "-s")

	return &Ready{
		Transport:    t,
		Artifact:     art,
		Tool:         tool,
		Args:         args,
		PhaseTimeout: time.Duration(s.cfg.PhaseTimeoutSec) * time.Second,
	}, nil
}

func (s *STM32Strategy) Execute(ctx context.Context, ready *Ready, rep Reporter) error {
	if err := rep.Phase(PhaseConnecting, "connecting to "+stm32Port(ready.Transport)); err != nil {
		return err
	}
	s.log.Info("starting upload",
		zap.String("port", ready.Transport.Name),
		zap.String("image", filepath.Base(ready.Artifact.Segments[0].Path)))

	watch := newStallWatch(ctx, ready.PhaseTimeout)
	defer watch.stop()

	parser := &stm32Parser{rep: rep}
	phase := rep.Current()
	code, err := s.runner.Run(watch.ctx, ready.Tool, ready.Args, func(line string) {
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
		return newError(ErrUnknown, rep.Current(), "%s: %v", filepath.Base(ready.Tool), err)
	case watch.stalled():
		return newError(ErrDeviceUnreachable, rep.Current(), "%v", errStalled)
	case ctx.Err() != nil:
		return ctx.Err()
	case parser.verifyFail:
		return newError(ErrVerificationMismatch, PhaseVerifying, "%s", parser.errDetail)
	case code != 0:
		detail := parser.errDetail
		if detail == "" {
			detail = fmt.Sprintf("tool exited with code %d", code)
		}
		return newError(ErrDeviceUnreachable, rep.Current(), "%s", detail)
	case !parser.verified:
		return newError(ErrVerificationMismatch, PhaseVerifying,
			"tool exited cleanly but never confirmed verification")
	}

	rep.Phase(PhaseResetting, "starting application")
	s.releaseSWD(ctx, ready)
	return nil
}

// releaseSWD reconnects and software-resets so the next upload does not need
// a power cycle. Failure here is logged, never fatal: the firmware is
// already written and verified.
func (s *STM32Strategy) releaseSWD(ctx context.Context, ready *Ready) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	args := []string{
		"-c", "port=" + stm32Port(ready.Transport),
		"-c", "mode=" + s.cfg.STM32Mode,
		"-c", "reset=SWrst",
		"-s",
	}
	if code, err := s.runner.Run(ctx, ready.Tool, args, nil); err != nil || code != 0 {
		s.log.Warn("SWD release incomplete", zap.Int("code", code), zap.Error(err))
	}
}

// Erase mass-erases the target's flash. Lines of tool output are passed to
// onLine when non-nil.
func (s *STM32Strategy) Erase(ctx context.Context, t transport.Transport, onLine func(string)) error {
	tool, err := locateSTM32CLI(s.cfg.STM32Programmer)
	if err != nil {
		return err
	}

	args := []string{
		"-c", "port=" + stm32Port(t),
		"-c", "mode=" + s.cfg.STM32Mode,
		"-e", "all",
	}

	watch := newStallWatch(ctx, time.Duration(s.cfg.PhaseTimeoutSec)*time.Second)
	defer watch.stop()

	var detail string
	code, err := s.runner.Run(watch.ctx, tool, args, func(line string) {
		watch.touch()
		if detail == "" && strings.Contains(line, "Error:") {
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
			detail = fmt.Sprintf("mass erase exited with code %d", code)
		}
		return newError(ErrDeviceUnreachable, PhaseErasing, "%s", detail)
	}
	return nil
}

// stm32Port maps a transport onto the tool's port argument. An ST-Link
// presents a debug probe alongside its virtual COM port, and the tool wants
// "SWD" for it rather than the serial device.
func stm32Port(t transport.Transport) string {
	if strings.ToUpper(t.VID) == "0483" {
		switch strings.ToUpper(t.PID) {
		case "374B", "374E", "374F", "3748", "3752", "3753", "3754":
			return "SWD"
		}
	}
	if t.Name == "" || strings.EqualFold(t.Name, "SWD") {
		return "SWD"
	}
	return t.Name
}
