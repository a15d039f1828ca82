package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/accountsync/internal/batch"
	"github.com/roach88/accountsync/internal/flow"
	"github.com/roach88/accountsync/internal/org"
	"github.com/roach88/accountsync/internal/syncapp"
)

// PushOptions holds flags for the push command.
type PushOptions struct {
	*RootOptions
	Source       string
	Timeout      time.Duration
	PollInterval time.Duration
}

// NewPushCommand creates the push command.
func NewPushCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PushOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "push <envelope-file>",
		Short: "Deliver an outbound message to the push flow",
		Long: `Deliver a SOAP outbound-message envelope to triggerPushFlow as if the
org named by --source had sent it, then wait for the sync job.

Exit codes:
  0 - The sync job succeeded
  1 - The sync job failed or did not finish in time
  2 - Command error (unreadable file, bad properties, etc.)

Example:
  accountsync push --source A account.xml
  accountsync push --source B --timeout 2m account.xml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return pushEnvelope(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Source, "source", "", "system the message comes from (A|B)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", time.Minute, "how long to wait for the sync job")
	cmd.Flags().DurationVar(&opts.PollInterval, "poll-interval", 500*time.Millisecond, "how often to check the sync job")
	_ = cmd.MarkFlagRequired("source")

	return cmd
}

func pushEnvelope(opts *PushOptions, path string, cmd *cobra.Command) error {
	source, err := org.ParseSystem(opts.Source)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --source", err)
	}
	envelope, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read envelope", err)
	}

	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	tpl, err := openTemplate(opts.RootOptions, logger)
	if err != nil {
		return err
	}
	defer tpl.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	h, err := tpl.Registry().Resolve(flow.TriggerPush)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resolve push flow", err)
	}
	if err := h.Initialise(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to initialise push flow", err)
	}

	vars := map[string]string{syncapp.VarSourceSystem: string(source)}
	ev, err := flow.Invoke(ctx, h, envelope, vars)
	if err != nil {
		return WrapExitError(ExitFailure, "push failed", err)
	}
	job, ok := ev.Payload.(*batch.Job)
	if !ok {
		return NewExitError(ExitFailure, fmt.Sprintf("push flow replied with %T, not a sync job", ev.Payload))
	}

	formatter := newFormatter(opts.RootOptions, cmd)
	waiter := batch.NewWaiter(batch.SystemClock{}, logger)
	if err := waiter.AwaitAndAssert(ctx, job, opts.Timeout, opts.PollInterval); err != nil {
		return formatter.Fail(ExitFailure, CodeJob, "sync job did not succeed", err, job.Result())
	}

	res := job.Result()
	if opts.Format == "json" {
		return formatter.Success(res)
	}
	return formatter.Success(fmt.Sprintf("Pushed %d notification(s) from %s: %s (%d processed)",
		res.Total, source, res.State, res.Processed))
}
