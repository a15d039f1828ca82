package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a job.
type State string

const (
	StateRunning   State = "running"
	StateSucceeded State = "completed-success"
	StateFailed    State = "completed-failure"
)

// Terminal reports whether the job can no longer change state.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// maxRecordedErrors bounds how many item errors a job keeps.
const maxRecordedErrors = 100

// Handle is what a Waiter needs from a job.
type Handle interface {
	ID() string
	State() State
	Errors() []string
}

// Result is a point-in-time snapshot of a job.
type Result struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	State     State     `json:"state"`
	Total     int       `json:"total"`
	Processed int       `json:"processed"`
	Failed    int       `json:"failed"`
	Errors    []string  `json:"errors,omitempty"`
	Outputs   []Output  `json:"outputs,omitempty"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished,omitempty"`
}

// Output is something a job item wrote, reported with Emit.
type Output struct {
	Label string `json:"label"`
	ID    string `json:"id"`
}

type jobKey struct{}

// Emit records an output on the job whose item is running under ctx.
// Outside a job it does nothing.
func Emit(ctx context.Context, label, id string) {
	if job, ok := ctx.Value(jobKey{}).(*Job); ok {
		job.mu.Lock()
		job.outputs = append(job.outputs, Output{Label: label, ID: id})
		job.mu.Unlock()
	}
}

// Job is one asynchronous batch run.
//
// Thread-safety: all accessors are safe for concurrent use; only the
// job's own goroutine mutates it.
type Job struct {
	id   string
	name string
	done chan struct{}

	mu        sync.Mutex
	state     State
	total     int
	processed int
	failed    int
	errors    []string
	outputs   []Output
	started   time.Time
	finished  time.Time
}

// ID returns the job id.
func (j *Job) ID() string {
	return j.id
}

// Name returns the name the job was submitted under.
func (j *Job) Name() string {
	return j.name
}

// State returns the current state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Errors returns a copy of the recorded item errors.
func (j *Job) Errors() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.errors))
	copy(out, j.errors)
	return out
}

// Outputs returns a copy of what the job's items emitted, in order.
func (j *Job) Outputs() []Output {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Output(nil), j.outputs...)
}

// Done is closed once the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Result returns a snapshot of the job's counters.
func (j *Job) Result() Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := make([]string, len(j.errors))
	copy(errs, j.errors)
	return Result{
		ID:        j.id,
		Name:      j.name,
		State:     j.state,
		Total:     j.total,
		Processed: j.processed,
		Failed:    j.failed,
		Errors:    errs,
		Outputs:   append([]Output(nil), j.outputs...),
		Started:   j.started,
		Finished:  j.finished,
	}
}

func (j *Job) record(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.processed++
	if err != nil {
		j.failed++
		if len(j.errors) < maxRecordedErrors {
			j.errors = append(j.errors, err.Error())
		}
	}
}

func (j *Job) finish(now time.Time) State {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finished = now
	if j.failed > 0 {
		j.state = StateFailed
	} else {
		j.state = StateSucceeded
	}
	close(j.done)
	return j.state
}

// DefaultBlockSize is the number of items processed between progress logs.
const DefaultBlockSize = 100

// Engine owns the jobs it starts and the goroutines running them.
type Engine struct {
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	blockSize int
	logger    *slog.Logger

	mu   sync.Mutex
	jobs []*Job
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithBlockSize sets how many items make up one processing block.
func WithBlockSize(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.blockSize = n
		}
	}
}

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates an engine. Close it to stop running jobs.
func NewEngine(opts ...EngineOption) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		ctx:       ctx,
		cancel:    cancel,
		blockSize: DefaultBlockSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit starts a job that applies step to every item, in order, on a new
// goroutine. A job with no items still runs and succeeds, so callers can
// always wait on what a trigger produced.
func Submit[T any](e *Engine, name string, items []T, step func(context.Context, T) error) *Job {
	job := &Job{
		id:      uuid.Must(uuid.NewV7()).String(),
		name:    name,
		done:    make(chan struct{}),
		state:   StateRunning,
		total:   len(items),
		started: time.Now().UTC(),
	}

	e.mu.Lock()
	e.jobs = append(e.jobs, job)
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(job, len(items), func(ctx context.Context, i int) error {
			return step(ctx, items[i])
		})
	}()

	e.logger.Info("batch job started", "job", job.id, "name", name, "items", len(items))
	return job
}

func (e *Engine) run(job *Job, n int, step func(context.Context, int) error) {
	ctx := context.WithValue(e.ctx, jobKey{}, job)
	for start := 0; start < n; start += e.blockSize {
		end := start + e.blockSize
		if end > n {
			end = n
		}
		for i := start; i < end; i++ {
			if err := ctx.Err(); err != nil {
				job.record(fmt.Errorf("item %d: %w", i, err))
				continue
			}
			if err := step(ctx, i); err != nil {
				e.logger.Warn("batch item failed", "job", job.id, "item", i, "error", err)
				job.record(fmt.Errorf("item %d: %w", i, err))
				continue
			}
			job.record(nil)
		}
		e.logger.Debug("batch block processed", "job", job.id, "from", start, "to", end)
	}

	state := job.finish(time.Now().UTC())
	res := job.Result()
	e.logger.Info("batch job finished",
		"job", job.id,
		"name", job.name,
		"state", string(state),
		"processed", res.Processed,
		"failed", res.Failed,
	)
}

// Jobs returns every job started by the engine, oldest first.
func (e *Engine) Jobs() []*Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Job, len(e.jobs))
	copy(out, e.jobs)
	return out
}

// Latest returns the most recently started job.
func (e *Engine) Latest() (*Job, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.jobs) == 0 {
		return nil, false
	}
	return e.jobs[len(e.jobs)-1], true
}

// Close cancels running jobs and waits for their goroutines to exit.
// Items not yet processed are counted as failed.
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
}
