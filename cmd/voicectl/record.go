package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"voicespese/internal/capture"
	"voicespese/internal/cli"
	"voicespese/internal/orchestrator"
	"voicespese/internal/pipeline"
)

func newRecordCmd(a *app) *cobra.Command {
	var (
		token    string
		device   string
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record from the microphone until Enter, then save the spoken expenses",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if token == "" {
				token = os.Getenv("VOICESPESE_TOKEN")
			}
			api := cli.NewUpstream(a.cfg)
			extract, err := cli.NewExtractor(api, a.cfg, a.logger)
			if err != nil {
				return err
			}
			processor := pipeline.New(cli.NewTranscriber(api, a.cfg), extract, a.expenses, a.cfg.MinAudioBytes)

			out := cmd.OutOrStdout()
			session := capture.NewSession(capture.MalgoProvider{DeviceName: device},
				capture.WithMinBytes(a.cfg.MinAudioBytes),
				capture.WithLogger(a.logger))
			orch := orchestrator.New(a.tokens, session, processor, orchestrator.WithListener(statusPrinter(out)))
			defer orch.Release()

			ctx := cmd.Context()
			if err := orch.Start(ctx, token); err != nil {
				return err
			}
			if err := waitForStop(ctx, cmd.InOrStdin(), duration); err != nil {
				return err
			}

			res, err := orch.Stop(ctx)
			printResult(out, res)
			return err
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "API token (default $VOICESPESE_TOKEN)")
	cmd.Flags().StringVar(&device, "device", "", "substring of the input device name")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop automatically after this long")
	return cmd
}

func waitForStop(ctx context.Context, in io.Reader, d time.Duration) error {
	enter := make(chan struct{})
	go func() {
		_, _ = bufio.NewReader(in).ReadString('\n')
		close(enter)
	}()
	var timeout <-chan time.Time
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-enter:
	case <-timeout:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// statusPrinter renders transitions. Failures are reported once by main.
func statusPrinter(w io.Writer) orchestrator.Listener {
	return func(s orchestrator.Status) {
		switch s.State {
		case orchestrator.StateRecording:
			fmt.Fprintln(w, recordingStyle.Render("● recording")+dimStyle.Render("  press Enter to stop"))
		case orchestrator.StateTranscribing, orchestrator.StateExtracting, orchestrator.StateSaving:
			fmt.Fprintln(w, busyStyle.Render("… "+s.State.String()))
		}
	}
}

func printResult(w io.Writer, res pipeline.Result) {
	if res.Transcription != "" {
		fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("%q", res.Transcription)))
	}
	for _, r := range res.Expenses {
		line := amountStyle.Render(r.Expense.Amount.String()) + categoryStyle.Render(r.Expense.Category.String()) + "  " + r.Expense.Description
		if r.Duplicate {
			fmt.Fprintln(w, dimStyle.Render(line+"  (duplicate, skipped)"))
			continue
		}
		fmt.Fprintln(w, savedStyle.Render(line))
	}
	if res.Saved+res.Skipped+res.Failed > 0 {
		fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("saved %d, skipped %d, failed %d", res.Saved, res.Skipped, res.Failed)))
	}
}
