package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/accountsync/internal/batch"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the sync pollers",
		Long: `Start the sync template: both trigger flows poll their org every
polling.frequency milliseconds and sync what changed since the watermark.

Example:
  accountsync run --config sync.yaml
  ACCOUNTSYNC_POLLING_FREQUENCY=5000 accountsync run --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTemplate(opts, cmd)
		},
	}

	return cmd
}

func runTemplate(opts *RunOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	tpl, err := openTemplate(opts.RootOptions, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := tpl.Close(); closeErr != nil {
			logger.Error("error closing template", "error", closeErr)
		}
	}()

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := tpl.Start(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to start pollers", err)
	}
	cfg := tpl.Config()
	logger.Info("sync started",
		"polling_frequency", cfg.PollingFrequency,
		"watermark", cfg.WatermarkExpression(),
		"page_size", cfg.PageSize,
	)
	fmt.Fprintln(cmd.OutOrStdout(), "Sync started. Polling both orgs...")
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	<-ctx.Done()
	tpl.Stop()

	failed := 0
	for _, job := range tpl.Engine().Jobs() {
		if job.State() != batch.StateSucceeded {
			failed++
		}
	}
	logger.Info("sync stopped", "jobs", len(tpl.Engine().Jobs()), "unsuccessful", failed)
	return nil
}
