package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/surge/internal/flash"
)

func TestFlashModelTracksEvents(t *testing.T) {
	m := NewFlashModel("/dev/ttyUSB0", "esp32", nil)

	updated, _ := m.Update(EventMsg{Phase: flash.PhaseWriting, Percent: 55, Message: "writing segment"})
	m = updated.(FlashModel)

	if m.phase != flash.PhaseWriting || m.percent != 55 {
		t.Fatalf("model = %s %d%%", m.phase, m.percent)
	}
	view := m.View()
	if !strings.Contains(view, "writing") || !strings.Contains(view, "55%") {
		t.Errorf("view missing progress: %q", view)
	}
}

func TestFlashModelCancelKeyRequestsCancelOnce(t *testing.T) {
	cancels := 0
	m := NewFlashModel("/dev/ttyUSB0", "esp32", func() { cancels++ })

	ctrlC := tea.KeyMsg{Type: tea.KeyCtrlC}
	updated, cmd := m.Update(ctrlC)
	m = updated.(FlashModel)
	if cmd != nil {
		t.Fatal("cancel must not quit while the job is running")
	}
	updated, _ = m.Update(ctrlC)
	m = updated.(FlashModel)

	if cancels != 1 {
		t.Fatalf("onCancel calls = %d, want 1", cancels)
	}
}

func TestFlashModelQuitsOnResult(t *testing.T) {
	m := NewFlashModel("/dev/ttyACM0", "stm32", nil)

	updated, cmd := m.Update(ResultMsg{Status: flash.StatusFailed, Err: errors.New("verification mismatch")})
	m = updated.(FlashModel)

	if cmd == nil {
		t.Fatal("expected quit command on result")
	}
	view := m.View()
	if !strings.Contains(view, "FAILED") || !strings.Contains(view, "verification mismatch") {
		t.Errorf("view missing failure detail: %q", view)
	}
	if m.Result() == nil || m.Result().Status != flash.StatusFailed {
		t.Errorf("result not recorded")
	}
}
