package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Reporter receives progress from a running operation
type Reporter interface {
	Step(number int, status StepStatus, message string)
	Bytes(sent, total int64)
}

// Operation is the work a Runner displays. Returned details are shown in
// the success box.
type Operation func(ctx context.Context, r Reporter) ([]Field, error)

// RunnerConfig describes an operation for display
type RunnerConfig struct {
	Title     string // e.g., "Firmware Update"
	Command   string // e.g., "devadmin-cfg upload"
	Params    []Field
	StepNames []string

	// Output defaults to os.Stdout
	Output io.Writer

	// Interactive renders a live Bubble Tea view. Otherwise steps are
	// printed line by line, which suits logs and pipes.
	Interactive bool

	// Hint turns a failure into troubleshooting lines
	Hint func(error) []string
}

// Runner prints the header, tracks the operation's steps and prints the
// result box.
type Runner struct {
	cfg   RunnerConfig
	steps *Steps
	out   io.Writer
	width int
}

// NewRunner creates a runner for an operation
func NewRunner(cfg RunnerConfig) *Runner {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	return &Runner{
		cfg:   cfg,
		steps: NewSteps(cfg.StepNames...),
		out:   out,
		width: GetTerminalWidth(),
	}
}

// Run executes op and renders its progress. The operation's error is
// returned after the failure box has been printed.
func (r *Runner) Run(ctx context.Context, op Operation) error {
	start := time.Now()

	_, _ = fmt.Fprintln(r.out, NewHeader(r.cfg.Title, r.cfg.Command, r.cfg.Params...).SetWidth(r.width).Render())
	_, _ = fmt.Fprintln(r.out)

	var (
		details []Field
		err     error
	)
	if r.cfg.Interactive {
		details, err = r.runInteractive(ctx, op)
	} else {
		details, err = op(ctx, &lineReporter{r: r})
	}

	_, _ = fmt.Fprintln(r.out)
	if err != nil {
		var tips []string
		if r.cfg.Hint != nil {
			tips = r.cfg.Hint(err)
		}
		_, _ = fmt.Fprintln(r.out, NewFailureResult(r.cfg.Title+" failed", err, tips).SetWidth(r.width).Render())
		return err
	}

	details = append(details, Field{Key: "Duration", Value: time.Since(start).Round(time.Millisecond).String()})
	_, _ = fmt.Fprintln(r.out, NewSuccessResult(r.cfg.Title+" complete", details...).SetWidth(r.width).Render())
	return nil
}

func (r *Runner) runInteractive(ctx context.Context, op Operation) ([]Field, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewTaskModel(r.steps, cancel), tea.WithOutput(r.out))

	result := make(chan doneMsg, 1)
	go func() {
		details, err := op(ctx, &teaReporter{p: p})
		msg := doneMsg{details: details, err: err}
		result <- msg
		p.Send(msg)
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		res := <-result
		if res.err == nil {
			res.err = err
		}
		return res.details, res.err
	}
	res := <-result
	return res.details, res.err
}

type teaReporter struct {
	p *tea.Program
}

func (t *teaReporter) Step(number int, status StepStatus, message string) {
	t.p.Send(StepMsg{Number: number, Status: status, Message: message})
}

func (t *teaReporter) Bytes(sent, total int64) {
	t.p.Send(BytesMsg{Sent: sent, Total: total})
}

// lineReporter prints finished steps and transfer progress in 10% steps.
type lineReporter struct {
	r        *Runner
	lastTick int64
}

func (l *lineReporter) Step(number int, status StepStatus, message string) {
	l.r.steps.Update(number, status, message)
	if status == StepRunning || number < 1 || number > len(l.r.steps.List) {
		return
	}
	_, _ = fmt.Fprintln(l.r.out, l.r.steps.RenderLine(l.r.steps.List[number-1]))
}

func (l *lineReporter) Bytes(sent, total int64) {
	if total <= 0 {
		return
	}
	tick := sent * 10 / total
	if tick == l.lastTick && sent != total {
		return
	}
	l.lastTick = tick
	_, _ = fmt.Fprintf(l.r.out, "  %3d%%  %s / %s\n", sent*100/total, FormatBytes(sent), FormatBytes(total))
}

// PrintHeader prints a command header to stdout
func PrintHeader(title, command string, params ...Field) {
	fmt.Println(NewHeader(title, command, params...).Render())
	fmt.Println()
}

// PrintSuccess prints a success box to stdout
func PrintSuccess(title string, details ...Field) {
	fmt.Println(NewSuccessResult(title, details...).Render())
}

// PrintFailure prints a failure box to stdout
func PrintFailure(title string, err error, troubleshooting []string) {
	fmt.Println(NewFailureResult(title, err, troubleshooting).Render())
}

// PrintWarning prints a warning box to stdout
func PrintWarning(title string, details ...Field) {
	fmt.Println(NewWarningResult(title, details...).Render())
}
