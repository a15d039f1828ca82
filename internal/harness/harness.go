package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/accountsync/internal/config"
	"github.com/roach88/accountsync/internal/notification"
	"github.com/roach88/accountsync/internal/org"
	"github.com/roach88/accountsync/internal/record"
	"github.com/roach88/accountsync/internal/syncapp"
)

// NewRunToken returns a short random token for ${run}.
func NewRunToken() string {
	id := uuid.NewString()
	return id[len(id)-8:]
}

// Run executes a scenario against tpl and returns the result.
//
// Execution flow:
//  1. SetUp: stop the trigger schedulers, resolve and initialise flows
//  2. create the setup records
//  3. run the flow steps, each waiting for its sync job
//  4. evaluate assertions
//  5. TearDown: delete every record created directly or by sync
//
// TearDown runs whatever happened before it. Errors in steps 1 and 2 are
// returned; a failing flow step or assertion only fails the result.
func Run(ctx context.Context, scenario *Scenario, tpl *syncapp.Template, opts ...SuiteOption) (result *Result, err error) {
	token := scenario.RunToken
	if token == "" {
		token = NewRunToken()
	}
	sc := scenario.withRunToken(token)

	result = NewResult()
	suiteOpts := append([]SuiteOption{WithTimeout(sc.TimeoutDuration())}, opts...)
	suite := NewSuite(tpl, append(suiteOpts, WithTrace(result))...)

	defer func() {
		if tdErr := suite.TearDown(ctx); tdErr != nil {
			if err == nil {
				result.AddError(fmt.Sprintf("tear down: %v", tdErr))
			} else {
				err = fmt.Errorf("%w (tear down: %v)", err, tdErr)
			}
		}
	}()

	if err := suite.SetUp(ctx); err != nil {
		return nil, err
	}

	for i, step := range sc.Setup {
		system, err := org.ParseSystem(step.Create)
		if err != nil {
			return nil, fmt.Errorf("setup[%d]: %w", i, err)
		}
		if _, err := suite.CreateAccount(ctx, system, record.Record(step.Record)); err != nil {
			return nil, fmt.Errorf("setup[%d]: %w", i, err)
		}
	}

	for i, step := range sc.Flow {
		if err := executeStep(ctx, suite, step); err != nil {
			result.AddError(fmt.Sprintf("flow[%d]: %v", i, err))
			return result, nil
		}
	}

	for _, msg := range EvaluateAssertions(ctx, suite, sc.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func executeStep(ctx context.Context, suite *Suite, step FlowStep) error {
	if step.Trigger != "" {
		_, err := suite.ExecuteWaitAndAssert(ctx, step.Trigger)
		return err
	}

	source, err := org.ParseSystem(step.Push.Source)
	if err != nil {
		return err
	}
	b := notification.SampleAccount()
	for _, name := range record.Fields(step.Push.Fields).Keys() {
		b = b.With(name, step.Push.Fields[name])
	}
	envelope, err := b.Build()
	if err != nil {
		return err
	}
	_, err = suite.PushNotification(ctx, envelope, source)
	return err
}

// RunIsolated executes a scenario against a fresh template over two
// in-memory sandboxes configured for a test run.
func RunIsolated(ctx context.Context, scenario *Scenario, opts ...SuiteOption) (*Result, error) {
	cfg := config.ForTestRun(time.Now())
	tpl, err := syncapp.Open(cfg, syncapp.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		return nil, fmt.Errorf("failed to open sandboxes: %w", err)
	}
	defer tpl.Close()

	return Run(ctx, scenario, tpl, opts...)
}
