package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestStepsUpdate(t *testing.T) {
	s := NewSteps("Check device", "Upload image", "Wait for restart")

	s.Update(1, StepRunning, "")
	if s.Current != 1 {
		t.Errorf("Current = %d, want 1", s.Current)
	}
	s.Update(1, StepComplete, "10.0.0.7")
	s.Update(2, StepSkipped, "")
	s.Update(9, StepFailed, "ignored")

	if got := s.Fraction(); got < 0.66 || got > 0.67 {
		t.Errorf("Fraction() = %v, want 2/3", got)
	}
	if s.List[0].Message != "10.0.0.7" {
		t.Errorf("Message = %q", s.List[0].Message)
	}

	line := s.RenderLine(s.List[0])
	for _, want := range []string{"[1/3]", "Check device", StepMarkerComplete, "(10.0.0.7)"} {
		if !strings.Contains(line, want) {
			t.Errorf("RenderLine() = %q, missing %q", line, want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 << 20, "5.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestTaskModelUpdate(t *testing.T) {
	cancelled := false
	m := NewTaskModel(NewSteps("Upload image"), func() { cancelled = true })

	next, _ := m.Update(StepMsg{Number: 1, Status: StepRunning})
	next, _ = next.Update(BytesMsg{Sent: 512, Total: 1024})
	view := next.View()
	if !strings.Contains(view, "50%") || !strings.Contains(view, "512 B / 1.0 KiB") {
		t.Errorf("View() = %q", view)
	}

	next, cmd := next.Update(doneMsg{err: errors.New("boom")})
	if cmd == nil {
		t.Error("done should quit the program")
	}
	if tm := next.(TaskModel); !tm.done || tm.err == nil {
		t.Errorf("model = %+v", tm)
	}
	if cancelled {
		t.Error("cancel should only run on ctrl+c")
	}
}

func TestHeaderAndResult(t *testing.T) {
	h := NewHeader("Firmware update", "devadmin-cfg upload",
		Field{Key: "Device", Value: "http://10.0.0.7"},
		Field{Key: "Image", Value: "fw.bin"},
	).SetWidth(80).Render()
	for _, want := range []string{"FIRMWARE UPDATE", "devadmin-cfg upload", "Device:", "fw.bin"} {
		if !strings.Contains(h, want) {
			t.Errorf("header missing %q", want)
		}
	}
	if strings.Index(h, "Device") > strings.Index(h, "Image") {
		t.Error("header params out of order")
	}

	fail := NewFailureResult("Upload failed", errors.New("refused"), []string{"check power"}).SetWidth(80).Render()
	for _, want := range []string{"FAILED", "Error: refused", "Troubleshooting:", "check power"} {
		if !strings.Contains(fail, want) {
			t.Errorf("failure box missing %q", want)
		}
	}

	ok := NewSuccessResult("Done").AddDetail("Digest", "abc").SetWidth(80).Render()
	if !strings.Contains(ok, "SUCCESS") || !strings.Contains(ok, "abc") {
		t.Errorf("success box = %q", ok)
	}
}

func TestHintLines(t *testing.T) {
	hint := "The device refused the connection.\nTroubleshooting:\n  • Verify the port\n  • Check the service"
	got := HintLines(hint)
	want := []string{"The device refused the connection.", "Verify the port", "Check the service"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("HintLines() = %q, want %q", got, want)
	}
}

func TestRunnerPlainOutput(t *testing.T) {
	var out bytes.Buffer
	r := NewRunner(RunnerConfig{
		Title:     "Firmware Update",
		Command:   "devadmin-cfg upload",
		StepNames: []string{"Upload image"},
		Output:    &out,
	})

	err := r.Run(context.Background(), func(ctx context.Context, rep Reporter) ([]Field, error) {
		rep.Step(1, StepRunning, "")
		for sent := int64(0); sent <= 100; sent += 25 {
			rep.Bytes(sent, 100)
		}
		rep.Step(1, StepComplete, "100 B")
		return []Field{{Key: "Digest", Value: "abc123"}}, nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	text := out.String()
	for _, want := range []string{"FIRMWARE UPDATE", "100%", "Upload image", "(100 B)", "Firmware Update complete", "abc123", "Duration"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestRunnerFailure(t *testing.T) {
	var out bytes.Buffer
	r := NewRunner(RunnerConfig{
		Title:  "Connect",
		Output: &out,
		Hint:   func(error) []string { return []string{"try again"} },
	})

	want := errors.New("timed out")
	if err := r.Run(context.Background(), func(ctx context.Context, rep Reporter) ([]Field, error) {
		return nil, want
	}); !errors.Is(err, want) {
		t.Fatalf("Run() error = %v, want %v", err, want)
	}
	if !strings.Contains(out.String(), "Connect failed") || !strings.Contains(out.String(), "try again") {
		t.Errorf("output = %s", out.String())
	}
}

func TestRenderTable(t *testing.T) {
	out := RenderTable([]string{"NAME", "ADDRESS"}, [][]string{{"kitchen", "10.0.0.7:80"}})
	for _, want := range []string{"NAME", "kitchen", "10.0.0.7:80"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q", want)
		}
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"yes\n", true},
		{"  yes  \n", true},
		{"y\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		if got := ConfirmFirmwareUpdate(strings.NewReader(tt.input), &out, "kitchen", "fw.bin"); got != tt.want {
			t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestClampWidth(t *testing.T) {
	if got := clampWidth(200, nil); got != MaxContentWidth {
		t.Errorf("clampWidth(200) = %d", got)
	}
	if got := clampWidth(80, errors.New("not a tty")); got != MinTerminalWidth {
		t.Errorf("clampWidth(err) = %d", got)
	}
}
