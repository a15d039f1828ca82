package harness

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/accountsync/internal/syncapp"
)

// TraceSnapshot captures the complete trace for a scenario execution.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	RunToken     string       `json:"run_token,omitempty"`
	Pass         bool         `json:"pass"`
	Trace        []TraceEvent `json:"trace"`
}

func (s TraceSnapshot) marshal() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// RunWithGolden executes a scenario against tpl and compares the trace
// against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// The trace is only reproducible when tpl uses deterministic clocks and
// identifiers and the scenario sets run_token.
func RunWithGolden(t *testing.T, scenario *Scenario, tpl *syncapp.Template, opts ...SuiteOption) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, tpl, opts...)
	if err != nil {
		return nil, err
	}

	snapshot := TraceSnapshot{
		ScenarioName: scenario.Name,
		RunToken:     scenario.RunToken,
		Pass:         result.Pass,
		Trace:        result.Trace,
	}
	traceJSON, err := snapshot.marshal()
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, traceJSON)
	return result, nil
}

// AssertGolden compares an already computed result's trace against a
// golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	traceJSON, err := TraceSnapshot{ScenarioName: name, Pass: result.Pass, Trace: result.Trace}.marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, traceJSON)
	return nil
}
