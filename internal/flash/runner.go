package flash

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// Runner executes an external flashing tool and streams its combined output
// line by line. Cancelling the context requests cooperative termination; if
// the tool ignores it, the process is forcibly killed after a grace period
// so no orphaned programmer ever keeps a serial port locked.
type Runner interface {
	Run(ctx context.Context, name string, args []string, onLine func(string)) (int, error)
}

// execRunner is the real subprocess-backed Runner.
type execRunner struct {
	grace time.Duration
}

func newExecRunner() *execRunner {
	return &execRunner{grace: 5 * time.Second}
}

func (r *execRunner) Run(ctx context.Context, name string, args []string, onLine func(string)) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	// Cooperative stop first; CommandContext's default is an immediate kill.
	cmd.Cancel = func() error {
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
	cmd.WaitDelay = r.grace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, fmt.Errorf("%s: %w", name, err)
	}
	cmd.Stderr = cmd.Stdout // merge stderr into stdout

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("%s: %w", name, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(scanToolLines)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" && onLine != nil {
			onLine(line)
		}
	}

	err = cmd.Wait()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("%s: %w", name, err)
	}
	return 0, nil
}

// scanToolLines splits on both LF and CR so in-place progress updates
// (esptool rewrites its "Writing at ..." line with bare carriage returns)
// surface as individual lines.
func scanToolLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, bytes.TrimSpace(data[:i]), nil
	}
	if atEOF {
		return len(data), bytes.TrimSpace(data), nil
	}
	return 0, nil, nil
}
