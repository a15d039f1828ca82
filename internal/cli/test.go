package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/accountsync/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter       string        // glob over scenario file names, without extension
	Timeout      time.Duration // per sync job; 0 keeps the scenario's own
	PollInterval time.Duration
}

// ScenarioOutcome is the result of one scenario file.
type ScenarioOutcome struct {
	Name     string        `json:"name"`
	File     string        `json:"file"`
	Pass     bool          `json:"pass"`
	Elapsed  time.Duration `json:"elapsed_ns"`
	Errors   []string      `json:"errors,omitempty"`
	RunToken string        `json:"run_token,omitempty"`
}

// TestReport aggregates the outcomes of a test run.
type TestReport struct {
	Scenarios []ScenarioOutcome `json:"scenarios"`
	Passed    int               `json:"passed"`
	Failed    int               `json:"failed"`
	Total     int               `json:"total"`
}

func (r *TestReport) add(o ScenarioOutcome) {
	r.Scenarios = append(r.Scenarios, o)
	r.Total++
	if o.Pass {
		r.Passed++
	} else {
		r.Failed++
	}
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run sync scenarios against fresh sandboxes",
		Long: `Run scenario files against the sync template. Each scenario gets two
new in-memory orgs and the integration test properties; every record it
creates is deleted afterwards.

Exit codes:
  0 - Every scenario passed
  1 - At least one scenario failed or could not be loaded
  2 - Command error (missing directory, bad filter)

Examples:
  accountsync test ./scenarios
  accountsync test ./scenarios --filter "push_*"
  accountsync test ./scenarios --timeout 2m --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenario files whose name matches this glob")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "override how long to wait for each sync job")
	cmd.Flags().DurationVar(&opts.PollInterval, "poll-interval", 50*time.Millisecond, "how often to check sync jobs")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	files, err := scenarioFiles(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot list scenarios", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	w := cmd.OutOrStdout()
	text := opts.Format != "json"

	report := TestReport{Scenarios: make([]ScenarioOutcome, 0, len(files))}
	for _, file := range files {
		o := runScenarioFile(ctx, file, opts, cmd.ErrOrStderr())
		report.add(o)
		if text {
			printOutcome(w, o)
		}
	}

	switch {
	case !text:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	case report.Total == 0:
		fmt.Fprintln(w, "No scenarios found.")
	default:
		fmt.Fprintf(w, "\nResults: %d passed, %d failed, %d total\n", report.Passed, report.Failed, report.Total)
	}

	if report.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", report.Failed, report.Total))
	}
	return nil
}

// scenarioFiles lists the .yaml and .yml files under dir in lexical order.
func scenarioFiles(dir, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("bad --filter %q: %w", filter, err)
		}
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case d.IsDir():
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			if ok, _ := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext)); !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// runScenarioFile loads one file and runs it in its own sandbox. Load and
// set-up errors count as failures of that file only.
func runScenarioFile(ctx context.Context, file string, opts *TestOptions, logs io.Writer) ScenarioOutcome {
	start := time.Now()
	o := ScenarioOutcome{Name: filepath.Base(file), File: file}

	sc, err := harness.LoadScenario(file)
	if err != nil {
		o.Errors = []string{"Load error: " + err.Error()}
		o.Elapsed = time.Since(start)
		return o
	}
	o.Name = sc.Name
	o.RunToken = sc.RunToken

	suiteOpts := []harness.SuiteOption{
		harness.WithLogger(newLogger(opts.RootOptions, logs)),
		harness.WithPollInterval(opts.PollInterval),
	}
	if opts.Timeout > 0 {
		suiteOpts = append(suiteOpts, harness.WithTimeout(opts.Timeout))
	}

	result, err := harness.RunIsolated(ctx, sc, suiteOpts...)
	o.Elapsed = time.Since(start)
	if err != nil {
		o.Errors = []string{"Execution error: " + err.Error()}
		return o
	}
	o.Pass = result.Pass
	o.Errors = result.Errors
	return o
}

func printOutcome(w io.Writer, o ScenarioOutcome) {
	if o.Pass {
		fmt.Fprintf(w, "✓ %s (%s)\n", o.Name, o.Elapsed.Round(time.Millisecond))
		return
	}
	fmt.Fprintf(w, "✗ %s\n", o.Name)
	for _, e := range o.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}
