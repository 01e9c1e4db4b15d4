package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/storyreel/studio/internal/model"
	"github.com/storyreel/studio/internal/poller"
	"github.com/storyreel/studio/internal/status"
)

func newStartCommand(ctx *commandContext) *cobra.Command {
	var req model.GenerationStartRequest

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a generation for a script",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := ctx.apiClient().Start(cmd.Context(), &req)
			if err != nil {
				return fmt.Errorf("start generation: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.JobID)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.ScriptID, "script", "", "Script id")
	cmd.Flags().StringVar(&req.ChapterID, "chapter", "", "Chapter id")
	cmd.Flags().StringVar(&req.Title, "title", "", "Reel title")
	cmd.Flags().IntVar(&req.SceneCount, "scenes", 4, "Number of scenes")
	cmd.Flags().BoolVar(&req.LipSync, "lipsync", false, "Apply lip-sync after merging")
	_ = cmd.MarkFlagRequired("script")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status <jobId>",
		Short: "Show the current status of a generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := ctx.apiClient().FetchStatus(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("fetch status: %w", err)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderKeyValues(recordRows(rec)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw record")
	return cmd
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	cfg := poller.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "watch <jobId>",
		Short: "Poll a generation until it reaches a terminal stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.StopOnComplete = true
			return watch(cmd, ctx, args[0], cfg)
		},
	}

	cmd.Flags().IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Consecutive fetch failures tolerated")
	cmd.Flags().DurationVar(&cfg.RetryDelay, "retry-delay", cfg.RetryDelay, "Delay between failed fetches")
	cmd.Flags().DurationVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout, "Per-request timeout")
	return cmd
}

// errGenerationFailed is returned by watch when the job ends in failed.
var errGenerationFailed = errors.New("generation failed")

func watch(cmd *cobra.Command, ctx *commandContext, jobID string, cfg poller.Config) error {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	engine := poller.NewEngine(ctx.apiClient(),
		poller.WithDefaults(cfg),
		poller.WithLogger(ctx.log()),
	)
	defer engine.Close()

	done := make(chan error, 1)
	handler := poller.Callbacks{
		OnUpdate: func(rec *model.GenerationRecord) {
			fmt.Fprintln(out, progressLine(rec))
		},
		OnComplete: func(rec *model.GenerationRecord) {
			done <- finalOutcome(errOut, rec)
		},
		OnRetry: func(attempt int, err error) {
			fmt.Fprintf(errOut, "fetch failed (%d/%d): %v\n", attempt, cfg.MaxRetries, err)
		},
		OnError: func(err error) {
			done <- fmt.Errorf("polling stopped: %w", err)
		},
	}.Handler()

	if err := engine.StartPolling(jobID, handler); err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-cmd.Context().Done():
		return cmd.Context().Err()
	}
}

func finalOutcome(errOut io.Writer, rec *model.GenerationRecord) error {
	switch status.OutcomeOf(rec) {
	case status.OutcomeFailed:
		advice := status.Classify(rec.ErrorText())
		return fmt.Errorf("%w: %s (%s)", errGenerationFailed, rec.ErrorText(), advice.Guidance)
	case status.OutcomeDegraded:
		advice := status.Classify(rec.ErrorText())
		fmt.Fprintf(errOut, "video ready without lip-sync: %s\n", advice.Guidance)
	}
	return nil
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	var stage string
	var follow bool
	cfg := poller.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "retry <jobId>",
		Short: "Restart a failed generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &model.GenerationRetryRequest{}
			if stage != "" {
				parsed, ok := model.ParseStage(stage)
				if !ok || !model.IsRestartable(parsed) {
					return fmt.Errorf("invalid --stage %q", stage)
				}
				req.TargetStage = parsed
			}

			resp, err := ctx.apiClient().Retry(cmd.Context(), args[0], req)
			if err != nil {
				return fmt.Errorf("retry generation: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "retry %d queued from %s\n", resp.RetryCount, resp.FromStage)

			if !follow {
				return nil
			}
			return watch(cmd, ctx, args[0], cfg)
		},
	}

	cmd.Flags().StringVar(&stage, "stage", "", "Stage to restart from (default: after the last checkpoint)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Watch the generation after queueing the retry")
	cmd.Flags().DurationVar(&cfg.RetryDelay, "retry-delay", 2*time.Second, "Delay between failed fetches while following")
	return cmd
}

func newArtifactsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "artifacts <jobId>",
		Short: "List artifact URLs of a generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := ctx.apiClient().Artifacts(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("fetch artifacts: %w", err)
			}
			rows := [][2]string{{"Stage", string(resp.Stage)}}
			if a := resp.Artifacts; a != nil {
				rows = append(rows,
					[2]string{"Audio", a.AudioURL},
					[2]string{"Final video", a.FinalVideoURL},
					[2]string{"Lip-sync video", a.LipSyncVideoURL},
				)
				for _, scene := range a.SceneVideos {
					rows = append(rows, [2]string{fmt.Sprintf("Scene %d", scene.SceneIndex), scene.URL})
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderKeyValues(rows))
			return nil
		},
	}
}
