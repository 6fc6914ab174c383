package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/devadmin/internal/ui"
)

var (
	assumeYes   bool
	noWait      bool
	waitTimeout time.Duration
)

var uploadCmd = &cobra.Command{
	Use:   "upload <image>",
	Short: "Upload a firmware image",
	Long: `Stream a firmware image to the device's update endpoint.

The device stages the image, validates it and commits it in one step, then
restarts. Unless --no-wait is given, the command waits for the device to
come back and report the BLAKE3 digest of the image that was sent.`,
	Example: `  # Upload and wait for the restart
  devadmin-cfg upload build/firmware.bin --device 192.168.1.20

  # Upload without the confirmation prompt
  devadmin-cfg upload firmware.bin --device kitchen --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")
	uploadCmd.Flags().BoolVar(&noWait, "no-wait", false, "Return once the image is delivered")
	uploadCmd.Flags().DurationVar(&waitTimeout, "wait-timeout", 2*time.Minute, "How long to wait for the device to come back")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	image := args[0]

	info, err := os.Stat(image)
	if err != nil {
		return fmt.Errorf("cannot read image: %w", err)
	}

	c, err := newClient(ctx)
	if err != nil {
		return err
	}

	if !assumeYes && !ui.ConfirmFirmwareUpdate(os.Stdin, os.Stdout, c.BaseURL, filepath.Base(image)) {
		return fmt.Errorf("upload cancelled")
	}

	steps := []string{"Check device", "Upload image", "Wait for restart"}
	if noWait {
		steps = steps[:2]
	}

	runner := ui.NewRunner(ui.RunnerConfig{
		Title:   "Firmware update",
		Command: "devadmin-cfg upload",
		Params: []ui.Field{
			{Key: "Device", Value: c.BaseURL},
			{Key: "Image", Value: image},
			{Key: "Size", Value: ui.FormatBytes(info.Size())},
		},
		StepNames:   steps,
		Interactive: ui.IsTerminal(os.Stdout),
		Hint:        hintFor,
	})

	return runner.Run(ctx, func(ctx context.Context, rep ui.Reporter) ([]ui.Field, error) {
		rep.Step(1, ui.StepRunning, "")
		st, err := c.Status(ctx)
		if err != nil {
			rep.Step(1, ui.StepFailed, "")
			return nil, err
		}
		rep.Step(1, ui.StepComplete, st.Hostname+" "+st.Version)

		rep.Step(2, ui.StepRunning, "")
		res, err := c.Upload(ctx, image, rep.Bytes)
		if err != nil {
			rep.Step(2, ui.StepFailed, "")
			return nil, err
		}
		rep.Step(2, ui.StepComplete, ui.FormatBytes(res.Size))

		details := []ui.Field{
			{Key: "Session", Value: res.Progress.SessionID},
			{Key: "BLAKE3", Value: res.Digest},
		}
		if noWait {
			return details, nil
		}

		rep.Step(3, ui.StepRunning, "")
		waitCtx, cancel := context.WithTimeout(ctx, waitTimeout)
		defer cancel()
		after, err := c.WaitForImage(waitCtx, res.Digest, 0)
		if err != nil {
			rep.Step(3, ui.StepFailed, "")
			return details, err
		}
		rep.Step(3, ui.StepComplete, after.Mode.String())
		return append(details, ui.Field{Key: "Address", Value: after.Address}), nil
	})
}
