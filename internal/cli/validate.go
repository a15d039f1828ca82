package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/accountsync/internal/config"
	"github.com/roach88/accountsync/internal/flow"
	"github.com/roach88/accountsync/internal/org"
	"github.com/roach88/accountsync/internal/syncapp"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Flows string // flow configuration overriding the properties
}

// ValidateResult summarises a successful validation.
type ValidateResult struct {
	PageSize         int      `json:"page_size"`
	PollingFrequency int64    `json:"polling_frequency_ms"`
	Watermark        string   `json:"watermark"`
	Flows            []string `json:"flows"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the properties and the flow configuration",
		Long: `Check that the properties describe a runnable template and that the
flow configuration defines every well-known flow and initialises cleanly.
Nothing is written to either org.

Example:
  accountsync validate --config sync.yaml
  accountsync validate --flows flows.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Flows, "flows", "", "flow configuration file (defaults to the properties' flows)")

	return cmd
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return formatter.Fail(ExitCommandError, CodeProperties, "failed to load properties", err, splitJoined(err))
	}
	if err := cfg.Validate(); err != nil {
		return formatter.Fail(ExitFailure, CodeProperties, "invalid properties", err, splitJoined(err))
	}
	formatter.VerboseLog("Properties valid: page.size=%d polling.frequency=%s", cfg.PageSize, cfg.PollingFrequency)

	flowsPath := opts.Flows
	if flowsPath == "" {
		flowsPath = cfg.Flows
	}
	var flows *flow.Config
	if flowsPath != "" {
		flows, err = flow.LoadConfig(flowsPath)
	} else {
		flows, err = flow.DefaultConfig()
	}
	if err != nil {
		return formatter.Fail(ExitCommandError, CodeFlows, "failed to load flow configuration", err, err.Error())
	}

	names, err := checkFlows(cmd.Context(), cfg, flows)
	if err != nil {
		return formatter.Fail(ExitFailure, CodeFlows, "invalid flow configuration", err, splitJoined(err))
	}

	result := ValidateResult{
		PageSize:         cfg.PageSize,
		PollingFrequency: cfg.PollingFrequency.Milliseconds(),
		Watermark:        cfg.WatermarkExpression(),
		Flows:            names,
	}
	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return formatter.Success(fmt.Sprintf("Valid: %d flows, watermark %s", len(names), result.Watermark))
}

// checkFlows builds the template over throwaway in-memory orgs so that
// every flow goes through the same Resolve and Initialise path as a run.
func checkFlows(ctx context.Context, cfg *config.Config, flows *flow.Config) ([]string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	orgs := make(map[org.System]*org.Org, len(org.Systems))
	for _, s := range org.Systems {
		o, err := org.Open(":memory:", s, org.WithLogger(quiet))
		if err != nil {
			return nil, err
		}
		defer o.Close()
		orgs[s] = o
	}

	tpl, err := syncapp.New(cfg, orgs[org.SystemA], orgs[org.SystemB],
		syncapp.WithLogger(quiet), syncapp.WithFlowConfig(flows))
	if err != nil {
		return nil, err
	}
	defer tpl.Close()

	registry := tpl.Registry()
	if err := registry.Validate(flow.WellKnown...); err != nil {
		return nil, err
	}

	var errs []error
	names := registry.Names()
	for _, name := range names {
		h, err := registry.Resolve(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := h.Initialise(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return names, nil
}

// splitJoined lists the individual messages of an errors.Join result.
func splitJoined(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
