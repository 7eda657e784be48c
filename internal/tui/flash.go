// Package tui renders interactive terminal views for uploads.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/surge/internal/flash"
)

// EventMsg carries one job progress event into the model.
type EventMsg flash.Event

// ResultMsg carries the job's terminal result into the model.
type ResultMsg flash.Result

// FlashModel is a single-job upload view: phase, progress bar, and the last
// tool message. Ctrl+C requests cancellation rather than quitting outright;
// the view exits when the job reaches its terminal result.
type FlashModel struct {
	port   string
	family string

	bar  progress.Model
	spin spinner.Model

	phase   flash.Phase
	percent int
	message string

	cancelRequested bool
	result          *flash.Result
	onCancel        func()
}

func NewFlashModel(port, family string, onCancel func()) FlashModel {
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = PhaseStyle
	return FlashModel{
		port:     port,
		family:   family,
		bar:      progress.New(progress.WithDefaultGradient()),
		spin:     sp,
		phase:    flash.PhaseIdle,
		onCancel: onCancel,
	}
}

func (m FlashModel) Init() tea.Cmd {
	return m.spin.Tick
}

func (m FlashModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.result != nil {
				return m, tea.Quit
			}
			if !m.cancelRequested {
				m.cancelRequested = true
				m.message = "cancel requested, waiting for the tool to stop"
				if m.onCancel != nil {
					m.onCancel()
				}
			}
			return m, nil
		}

	case EventMsg:
		m.phase = msg.Phase
		m.percent = msg.Percent
		if msg.Message != "" {
			m.message = msg.Message
		}
		return m, m.bar.SetPercent(float64(msg.Percent) / 100)

	case ResultMsg:
		res := flash.Result(msg)
		m.result = &res
		return m, tea.Quit

	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		width := msg.Width - 8
		if width > 60 {
			width = 60
		}
		if width > 0 {
			m.bar.Width = width
		}
	}
	return m, nil
}

func (m FlashModel) View() string {
	var b strings.Builder
	b.WriteString(Title(fmt.Sprintf("Flashing %s (%s)", m.port, m.family)))
	b.WriteString("\n\n")

	if m.result != nil {
		switch m.result.Status {
		case flash.StatusSuccess:
			b.WriteString(SuccessBadge("DONE") + DimStyle.Render("  finished in "+m.result.Duration.Round(10*time.Millisecond).String()))
		case flash.StatusCancelled:
			b.WriteString(WarnBadge("CANCELLED"))
		default:
			b.WriteString(ErrorBadge("FAILED"))
			if m.result.Err != nil {
				b.WriteString("  " + m.result.Err.Error())
			}
		}
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(m.spin.View() + PhaseStyle.Render(string(m.phase)))
	b.WriteString(fmt.Sprintf(" %3d%%\n", m.percent))
	b.WriteString(m.bar.View() + "\n")
	if m.message != "" {
		b.WriteString(DimStyle.Render(m.message) + "\n")
	}
	b.WriteString(DimStyle.Render("ctrl+c to cancel") + "\n")
	return b.String()
}

// Result returns the terminal result once the view has quit, or nil when
// the program was interrupted before one arrived.
func (m FlashModel) Result() *flash.Result {
	return m.result
}

// RunFlash drives a FlashModel for one job, pumping its event stream into
// the program, and returns the job's result.
func RunFlash(job *flash.Job) (flash.Result, error) {
	model := NewFlashModel(job.Transport.Name, string(job.Family), job.Cancel)
	p := tea.NewProgram(model)

	go func() {
		for e := range job.Events {
			p.Send(EventMsg(e))
		}
		p.Send(ResultMsg(<-job.Result))
	}()

	final, err := p.Run()
	if err != nil {
		return flash.Result{}, err
	}
	if res := final.(FlashModel).Result(); res != nil {
		return *res, nil
	}
	// View quit before the job ended (terminal torn down); cancel the job
	// rather than leaving it running headless.
	job.Cancel()
	return flash.Result{JobID: job.ID, Status: flash.StatusCancelled}, nil
}
