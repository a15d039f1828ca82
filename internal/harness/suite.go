package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/accountsync/internal/batch"
	"github.com/roach88/accountsync/internal/flow"
	"github.com/roach88/accountsync/internal/org"
	"github.com/roach88/accountsync/internal/record"
	"github.com/roach88/accountsync/internal/syncapp"
)

// Defaults for waiting on sync jobs.
const (
	DefaultTimeout      = 60 * time.Second
	DefaultPollInterval = 500 * time.Millisecond
)

var (
	createFlows = map[org.System]string{org.SystemA: flow.CreateAccountInA, org.SystemB: flow.CreateAccountInB}
	queryFlows  = map[org.System]string{org.SystemA: flow.QueryAccountFromA, org.SystemB: flow.QueryAccountFromB}
	deleteFlows = map[org.System]string{org.SystemA: flow.DeleteAccountFromA, org.SystemB: flow.DeleteAccountFromB}

	// triggerFlows have their schedulers stopped so that tests run them
	// exactly when they choose to.
	triggerFlows = []string{flow.TriggerSyncFromA, flow.TriggerSyncFromB}
)

// Suite is the per-test context of an integration test against a sync
// template. It owns the flow handles, the waiter and the ledger of
// records to delete on TearDown.
//
// A Suite is not safe for concurrent use.
type Suite struct {
	tpl          *syncapp.Template
	waiter       *batch.Waiter
	ledger       *Ledger
	handles      map[string]*flow.Handle
	result       *Result
	logger       *slog.Logger
	timeout      time.Duration
	pollInterval time.Duration
}

// SuiteOption configures a Suite.
type SuiteOption func(*Suite)

// WithWaiter sets the batch waiter, e.g. one driven by a fake clock.
func WithWaiter(w *batch.Waiter) SuiteOption {
	return func(s *Suite) {
		s.waiter = w
	}
}

// WithTimeout sets how long to wait for a sync job.
func WithTimeout(d time.Duration) SuiteOption {
	return func(s *Suite) {
		s.timeout = d
	}
}

// WithPollInterval sets how often a sync job's state is checked.
func WithPollInterval(d time.Duration) SuiteOption {
	return func(s *Suite) {
		s.pollInterval = d
	}
}

// WithLogger sets the suite's logger.
func WithLogger(l *slog.Logger) SuiteOption {
	return func(s *Suite) {
		s.logger = l
	}
}

// WithTrace records every flow invocation of the suite into r.
func WithTrace(r *Result) SuiteOption {
	return func(s *Suite) {
		s.result = r
	}
}

// NewSuite creates a suite over tpl. Logs are discarded by default.
func NewSuite(tpl *syncapp.Template, opts ...SuiteOption) *Suite {
	s := &Suite{
		tpl:          tpl,
		ledger:       NewLedger(),
		handles:      make(map[string]*flow.Handle),
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		timeout:      DefaultTimeout,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.waiter == nil {
		s.waiter = batch.NewWaiter(batch.SystemClock{}, s.logger)
	}
	return s
}

// Ledger returns the records the suite will delete on TearDown.
func (s *Suite) Ledger() *Ledger {
	return s.ledger
}

// Template returns the template under test.
func (s *Suite) Template() *syncapp.Template {
	return s.tpl
}

// SetUp stops the trigger flows' schedulers and resolves and initialises
// every flow the suite invokes. Any failure is fatal to the test.
func (s *Suite) SetUp(ctx context.Context) error {
	registry := s.tpl.Registry()
	for _, name := range triggerFlows {
		if err := registry.StopSchedulers(name); err != nil {
			return fmt.Errorf("set up: %w", err)
		}
	}

	names := []string{flow.TriggerPush}
	for _, sys := range org.Systems {
		names = append(names, createFlows[sys], queryFlows[sys], deleteFlows[sys])
	}
	for _, name := range names {
		if _, err := s.handle(ctx, name); err != nil {
			return fmt.Errorf("set up: %w", err)
		}
	}
	s.logger.Debug("suite set up", "flows", len(s.handles))
	return nil
}

// handle resolves and initialises name once.
func (s *Suite) handle(ctx context.Context, name string) (*flow.Handle, error) {
	if h, ok := s.handles[name]; ok {
		return h, nil
	}
	h, err := s.tpl.Registry().Resolve(name)
	if err != nil {
		return nil, err
	}
	if err := h.Initialise(ctx); err != nil {
		return nil, err
	}
	s.handles[name] = h
	return h, nil
}

func (s *Suite) traceInvocation(name string, args any) {
	if s.result != nil {
		s.result.AddInvocationTrace(name, args)
	}
}

func (s *Suite) traceCompletion(name string, result any) {
	if s.result != nil {
		s.result.AddCompletionTrace(name, result)
	}
}

// CreateAccount creates r in system through its create flow and tracks
// the new record for deletion.
func (s *Suite) CreateAccount(ctx context.Context, system org.System, r record.Record) (string, error) {
	name := createFlows[system]
	h, err := s.handle(ctx, name)
	if err != nil {
		return "", err
	}

	s.traceInvocation(name, r)
	id, err := flow.InvokeCreate(ctx, h, r)
	if err != nil {
		return "", err
	}
	s.traceCompletion(name, id)

	s.ledger.Track(system, id)
	return id, nil
}

// QueryAccount runs system's query flow for criteria.
func (s *Suite) QueryAccount(ctx context.Context, system org.System, criteria record.Fields) (record.Fields, bool, error) {
	name := queryFlows[system]
	h, err := s.handle(ctx, name)
	if err != nil {
		return nil, false, err
	}

	s.traceInvocation(name, criteria)
	fields, found, err := flow.InvokeQuery(ctx, h, criteria)
	if err != nil {
		return nil, false, err
	}
	if found {
		s.traceCompletion(name, fields)
	} else {
		s.traceCompletion(name, "not found")
	}
	return fields, found, nil
}

// ExecuteWaitAndAssert runs the trigger flow once, waits for the sync job
// it submitted and asserts that the job succeeded. Records the job
// created are tracked for deletion, whether or not it succeeded.
func (s *Suite) ExecuteWaitAndAssert(ctx context.Context, trigger string) (*batch.Job, error) {
	s.traceInvocation(trigger, nil)
	ev, err := s.tpl.Registry().RunSchedulersOnce(ctx, trigger)
	if err != nil {
		return nil, err
	}
	return s.awaitJob(ctx, trigger, ev)
}

// PushNotification delivers envelope to the push flow as coming from
// source, waits for the sync job and asserts that it succeeded.
func (s *Suite) PushNotification(ctx context.Context, envelope string, source org.System) (*batch.Job, error) {
	h, err := s.handle(ctx, flow.TriggerPush)
	if err != nil {
		return nil, err
	}
	vars := map[string]string{syncapp.VarSourceSystem: string(source)}
	s.traceInvocation(flow.TriggerPush, vars)
	ev, err := flow.Invoke(ctx, h, envelope, vars)
	if err != nil {
		return nil, err
	}
	return s.awaitJob(ctx, flow.TriggerPush, ev)
}

func (s *Suite) awaitJob(ctx context.Context, name string, ev *flow.Event) (*batch.Job, error) {
	job, ok := ev.Payload.(*batch.Job)
	if !ok {
		return nil, flow.NewExecutionError(name, fmt.Errorf("expected a sync job, got %T", ev.Payload))
	}
	err := s.waiter.AwaitAndAssert(ctx, job, s.timeout, s.pollInterval)
	if batch.IsTimeout(err) {
		// The job keeps writing after the wait gives up.
		select {
		case <-job.Done():
		case <-ctx.Done():
			err = errors.Join(err, fmt.Errorf("%s still running, its records may not be cleaned up: %w", name, ctx.Err()))
		}
	} else {
		s.traceCompletion(name, summarize(job))
	}
	s.trackCreated(job)
	return job, err
}

// trackCreated tracks the records job created. Records it only updated
// existed before the test and are left alone.
func (s *Suite) trackCreated(job *batch.Job) {
	for _, out := range job.Outputs() {
		sys, err := org.ParseSystem(out.Label)
		if err != nil {
			s.logger.Warn("unknown system in job output", "job", job.ID(), "label", out.Label)
			continue
		}
		s.ledger.Track(sys, out.ID)
	}
}

// AssertSynchronized queries both systems for criteria and returns an
// *AssertionError naming every field that differs. Identifier fields and
// the named extra fields are not compared.
func (s *Suite) AssertSynchronized(ctx context.Context, criteria record.Fields, ignore ...string) error {
	found := map[org.System]record.Fields{}
	for _, sys := range org.Systems {
		fields, ok, err := s.QueryAccount(ctx, sys, criteria)
		if err != nil {
			return err
		}
		if !ok {
			return &AssertionError{
				Type:     AssertSynchronizedType,
				Expected: fmt.Sprintf("a record matching %s in both systems", formatCriteria(criteria)),
				Actual:   fmt.Sprintf("no record in system %s", sys),
				Trace:    s.trace(),
			}
		}
		found[sys] = fields
	}

	ignored := append(append([]string{}, record.IdentifierFields...), ignore...)
	diff := record.DiffIgnoring(found[org.SystemA], found[org.SystemB], ignored...)
	if diff.AreEqual() {
		return nil
	}
	return &AssertionError{
		Type:     AssertSynchronizedType,
		Expected: "identical records in A and B",
		Actual:   diff.String(),
		Fields:   diff.Fields(),
		Trace:    s.trace(),
	}
}

func (s *Suite) trace() []TraceEvent {
	if s.result == nil {
		return nil
	}
	return s.result.Trace
}

// TearDown deletes every tracked record with exactly one delete flow
// invocation per system, even when nothing was tracked. A failing delete
// flow is returned; ids the org could not delete are only logged.
func (s *Suite) TearDown(ctx context.Context) error {
	var errs []error
	for _, sys := range org.Systems {
		name := deleteFlows[sys]
		ids := s.ledger.Drain(sys)

		h, err := s.handle(ctx, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("tear down %s: %w", sys, err))
			continue
		}

		s.traceInvocation(name, ids)
		results, err := flow.InvokeDelete(ctx, h, ids)
		if err != nil {
			errs = append(errs, fmt.Errorf("tear down %s: %w", sys, err))
			continue
		}
		deleted := 0
		for _, r := range results {
			if r.Success {
				deleted++
				continue
			}
			s.logger.Warn("record not deleted", "system", string(sys), "id", r.ID, "errors", r.Errors)
		}
		s.traceCompletion(name, deleted)
	}
	return errors.Join(errs...)
}
