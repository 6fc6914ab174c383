package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// StepStatus represents the current state of a step
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepComplete
	StepFailed
	StepSkipped
)

// Step is a single step in a multi-step operation
type Step struct {
	Number  int
	Name    string
	Status  StepStatus
	Message string // optional note, e.g. "10.0.0.7" or "1.2 MiB"
}

// Steps tracks the steps of an operation
type Steps struct {
	List    []Step
	Current int // 1-based, 0 before the first step starts
}

// NewSteps creates pending steps with the given names
func NewSteps(names ...string) *Steps {
	s := &Steps{List: make([]Step, len(names))}
	for i, name := range names {
		s.List[i] = Step{Number: i + 1, Name: name}
	}
	return s
}

// Update sets a step's status and note. Out of range numbers are ignored.
func (s *Steps) Update(number int, status StepStatus, message string) {
	if number < 1 || number > len(s.List) {
		return
	}
	s.List[number-1].Status = status
	s.List[number-1].Message = message
	if status == StepRunning {
		s.Current = number
	}
}

// Fraction is the share of steps that are complete or skipped
func (s *Steps) Fraction() float64 {
	if len(s.List) == 0 {
		return 0
	}
	done := 0
	for _, st := range s.List {
		if st.Status == StepComplete || st.Status == StepSkipped {
			done++
		}
	}
	return float64(done) / float64(len(s.List))
}

// RenderLine renders one step as "[n/total] name    marker  (note)"
func (s *Steps) RenderLine(step Step) string {
	var (
		marker string
		style  lipgloss.Style
	)
	switch step.Status {
	case StepComplete:
		marker, style = StepMarkerComplete, StepCompleteStyle
	case StepRunning:
		marker, style = StepMarkerRunning, StepRunningStyle
	case StepFailed:
		marker, style = FailureMarker, ErrorTitleStyle
	case StepSkipped:
		marker, style = StepMarkerSkipped, StepPendingStyle
	default:
		marker, style = StepMarkerPending, StepPendingStyle
	}

	var b strings.Builder
	fmt.Fprintf(&b, "  [%d/%d] ", step.Number, len(s.List))
	b.WriteString(style.Render(step.Name))
	b.WriteString(strings.Repeat(" ", max(40-lipgloss.Width(step.Name), 1)))
	b.WriteString(style.Render(marker))
	if step.Message != "" {
		b.WriteString("  ")
		b.WriteString(StepNoteStyle.Render("(" + step.Message + ")"))
	}
	return b.String()
}

// Render renders every step on its own line
func (s *Steps) Render() string {
	lines := make([]string, len(s.List))
	for i, st := range s.List {
		lines[i] = s.RenderLine(st)
	}
	return strings.Join(lines, "\n")
}

// StepMsg reports a step transition to a TaskModel
type StepMsg struct {
	Number  int
	Status  StepStatus
	Message string
}

// BytesMsg reports transfer progress to a TaskModel
type BytesMsg struct {
	Sent  int64
	Total int64
}

type doneMsg struct {
	details []Field
	err     error
}

// TaskModel is the Bubble Tea model shown while an operation runs: the
// step list plus a transfer bar once bytes start moving.
type TaskModel struct {
	Steps *Steps

	bar     progress.Model
	sent    int64
	total   int64
	started time.Time
	now     func() time.Time
	cancel  func()

	done    bool
	details []Field
	err     error
}

// NewTaskModel creates a model for the given steps. cancel is called when
// the user interrupts with ctrl+c.
func NewTaskModel(steps *Steps, cancel func()) TaskModel {
	return TaskModel{
		Steps:  steps,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		now:    time.Now,
		cancel: cancel,
	}
}

// Init implements tea.Model
func (m TaskModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m TaskModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case StepMsg:
		m.Steps.Update(msg.Number, msg.Status, msg.Message)
	case BytesMsg:
		if m.started.IsZero() {
			m.started = m.now()
		}
		m.sent, m.total = msg.Sent, msg.Total
	case doneMsg:
		m.done, m.details, m.err = true, msg.details, msg.err
		return m, tea.Quit
	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-40, 20), 50)
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" && m.cancel != nil {
			m.cancel()
		}
	}
	return m, nil
}

// View implements tea.Model
func (m TaskModel) View() string {
	var b strings.Builder
	b.WriteString(m.Steps.Render())
	b.WriteString("\n")
	if m.total > 0 {
		b.WriteString("\n")
		b.WriteString(m.transferLine())
		b.WriteString("\n")
	}
	return b.String()
}

func (m TaskModel) transferLine() string {
	pct := float64(m.sent) / float64(m.total)
	line := fmt.Sprintf("%s  %3.0f%%  %s / %s", m.bar.ViewAs(pct), pct*100, FormatBytes(m.sent), FormatBytes(m.total))
	if !m.started.IsZero() {
		if secs := m.now().Sub(m.started).Seconds(); secs > 0 {
			line += fmt.Sprintf("  %s/s", FormatBytes(int64(float64(m.sent)/secs)))
		}
	}
	return lipgloss.NewStyle().PaddingLeft(2).Render(line)
}

// FormatBytes renders a byte count with a binary unit
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
