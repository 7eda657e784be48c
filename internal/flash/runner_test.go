package flash

import (
	"context"
	"runtime"
	"testing"
)

func TestScanToolLinesSplitsCarriageReturns(t *testing.T) {
	input := []byte("Connecting....\rWriting at 0x1000 (10 %)\nHash of data verified.")

	var lines []string
	data := input
	for len(data) > 0 {
		adv, tok, err := scanToolLines(data, true)
		if err != nil {
			t.Fatal(err)
		}
		if adv == 0 {
			break
		}
		if len(tok) > 0 {
			lines = append(lines, string(tok))
		}
		data = data[adv:]
	}

	want := []string{"Connecting....", "Writing at 0x1000 (10 %)", "Hash of data verified."}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines %q, want %d", len(lines), lines, len(want))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestExecRunnerExitCode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on sh")
	}
	r := newExecRunner()

	var lines []string
	code, err := r.Run(context.Background(), "sh", []string{"-c", "echo one; echo two; exit 3"}, func(l string) {
		lines = append(lines, l)
	})
	if err != nil {
		t.Fatal(err)
	}
	if code != 3 {
		t.Fatalf("exit code = %d, want 3", code)
	}
	if len(lines) != 2 || lines[0] != "one" || lines[1] != "two" {
		t.Fatalf("unexpected output lines %q", lines)
	}
}

func TestExecRunnerMissingTool(t *testing.T) {
	r := newExecRunner()
	if _, err := r.Run(context.Background(), "definitely-not-a-real-tool-xyz", nil, nil); err == nil {
		t.Fatal("expected error for missing executable")
	}
}
