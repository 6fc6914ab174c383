// Package ui renders terminal output for the devadmin-cfg CLI.
//
// Components follow a "run once and exit" pattern built on Lipgloss:
//
//   - Header: banner with the operation name and its parameters
//   - Steps and TaskModel: step list and transfer bar, driven by Bubble Tea
//   - Result: success, failure and warning boxes
//   - RenderTable: tabular listings such as discovered devices
//
// Runner ties them together. An operation reports through a Reporter and
// the Runner either drives a live Bubble Tea view (Interactive) or prints
// one line per finished step:
//
//	r := ui.NewRunner(ui.RunnerConfig{
//	    Title:       "Firmware Update",
//	    Command:     "devadmin-cfg upload",
//	    StepNames:   []string{"Check device", "Upload image", "Wait for restart"},
//	    Interactive: ui.IsTerminal(os.Stdout),
//	})
//	err := r.Run(ctx, func(ctx context.Context, rep ui.Reporter) ([]ui.Field, error) {
//	    rep.Step(1, ui.StepRunning, "")
//	    ...
//	})
//
// Logging stays silent unless DEVADMIN_LOG_LEVEL is set, so the styled
// output is not interleaved with log lines.
package ui
