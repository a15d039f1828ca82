package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Clock is the time source of a Waiter.
// Implemented by SystemClock (production) and testutil.FakeClock (tests).
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock uses the wall clock and blocks in Sleep.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// Sleep blocks for d or until ctx is done.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TimeoutError is returned when a job does not terminate in time.
type TimeoutError struct {
	JobID   string
	Timeout time.Duration
	Polls   int
	State   State
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("batch job %s did not terminate within %s (state=%s, polls=%d)",
		e.JobID, e.Timeout, e.State, e.Polls)
}

// AssertionError is returned when a job's outcome is not success.
type AssertionError struct {
	JobID  string
	State  State
	Errors []string
}

func (e *AssertionError) Error() string {
	msg := fmt.Sprintf("batch job %s was not successful (state=%s)", e.JobID, e.State)
	if len(e.Errors) > 0 {
		msg += ": " + strings.Join(e.Errors, "; ")
	}
	return msg
}

// IsTimeout reports whether err is a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsAssertion reports whether err is a job AssertionError.
func IsAssertion(err error) bool {
	var ae *AssertionError
	return errors.As(err, &ae)
}

// Waiter polls job state until termination.
type Waiter struct {
	clock  Clock
	logger *slog.Logger
}

// NewWaiter creates a waiter. A nil clock means SystemClock.
func NewWaiter(clock Clock, logger *slog.Logger) *Waiter {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Waiter{clock: clock, logger: logger}
}

// AwaitTermination polls h every pollInterval until it reaches a terminal
// state. When timeout elapses first it returns a *TimeoutError; it never
// returns more than one error per call. The state is checked once more at
// the deadline, so a job finishing exactly then is not reported late.
func (w *Waiter) AwaitTermination(ctx context.Context, h Handle, timeout, pollInterval time.Duration) error {
	if pollInterval <= 0 {
		return fmt.Errorf("await job %s: poll interval must be positive, got %s", h.ID(), pollInterval)
	}

	deadline := w.clock.Now().Add(timeout)
	polls := 0
	for {
		polls++
		state := h.State()
		if state.Terminal() {
			w.logger.Debug("batch job terminated", "job", h.ID(), "state", string(state), "polls", polls)
			return nil
		}
		if !w.clock.Now().Before(deadline) {
			return &TimeoutError{JobID: h.ID(), Timeout: timeout, Polls: polls, State: state}
		}
		if err := w.clock.Sleep(ctx, pollInterval); err != nil {
			return fmt.Errorf("await job %s: %w", h.ID(), err)
		}
	}
}

// AssertSuccessful returns an *AssertionError unless h terminated successfully.
func (w *Waiter) AssertSuccessful(h Handle) error {
	state := h.State()
	if state == StateSucceeded {
		return nil
	}
	return &AssertionError{JobID: h.ID(), State: state, Errors: h.Errors()}
}

// AwaitAndAssert runs AwaitTermination then AssertSuccessful.
func (w *Waiter) AwaitAndAssert(ctx context.Context, h Handle, timeout, pollInterval time.Duration) error {
	if err := w.AwaitTermination(ctx, h, timeout, pollInterval); err != nil {
		return err
	}
	return w.AssertSuccessful(h)
}
