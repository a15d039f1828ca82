package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Well-known flow names.
const (
	CreateAccountInA   = "createAccountInAFlow"
	CreateAccountInB   = "createAccountInBFlow"
	QueryAccountFromA  = "queryAccountFromAFlow"
	QueryAccountFromB  = "queryAccountFromBFlow"
	DeleteAccountFromA = "deleteAccountFromAFlow"
	DeleteAccountFromB = "deleteAccountFromBFlow"
	TriggerSyncFromA   = "triggerSyncFromAFlow"
	TriggerSyncFromB   = "triggerSyncFromBFlow"
	TriggerPush        = "triggerPushFlow"
)

// WellKnown lists every flow name the sync template must provide.
var WellKnown = []string{
	CreateAccountInA, CreateAccountInB,
	QueryAccountFromA, QueryAccountFromB,
	DeleteAccountFromA, DeleteAccountFromB,
	TriggerSyncFromA, TriggerSyncFromB,
	TriggerPush,
}

// Flow is a named executable unit.
type Flow interface {
	Name() string
	Process(ctx context.Context, ev *Event) (*Event, error)
}

// Initialiser is implemented by flows that must be prepared before use.
type Initialiser interface {
	Initialise(ctx context.Context) error
}

// Scheduled is implemented by flows driven by a poll scheduler.
type Scheduled interface {
	StartSchedulers(ctx context.Context) error
	StopSchedulers()
}

// Registry maps flow names to flows.
//
// Thread-safety: Registry is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	flows  map[string]Flow
	tokens TokenGenerator
	logger *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithTokenGenerator sets the generator used for event ids.
func WithTokenGenerator(g TokenGenerator) RegistryOption {
	return func(r *Registry) {
		r.tokens = g
	}
}

// WithLogger sets the registry's logger.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		flows:  make(map[string]Flow),
		tokens: UUIDv7Generator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds f. Registering a second flow under the same name is a
// configuration error.
func (r *Registry) Register(f Flow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := f.Name()
	if name == "" {
		return NewConfigurationError("", "flow has no name")
	}
	if _, ok := r.flows[name]; ok {
		return NewConfigurationError(name, "flow registered twice")
	}
	r.flows[name] = f
	return nil
}

// Names returns the registered flow names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.flows))
	for name := range r.flows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) lookup(name string) (Flow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.flows[name]
	if !ok {
		return nil, NewConfigurationError(name, "no flow of that name is registered")
	}
	return f, nil
}

// Resolve returns an uninitialised handle for the named flow.
func (r *Registry) Resolve(name string) (*Handle, error) {
	f, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return &Handle{flow: f, tokens: r.tokens, logger: r.logger}, nil
}

// Validate checks that every name resolves. All missing names are reported.
func (r *Registry) Validate(names ...string) error {
	var errs []error
	for _, name := range names {
		if _, err := r.lookup(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) scheduled(name string) (Scheduled, error) {
	f, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	s, ok := f.(Scheduled)
	if !ok {
		return nil, NewConfigurationError(name, "flow has no scheduler")
	}
	return s, nil
}

// StopSchedulers stops automatic triggering of the named poll flow.
// The flow can still be run by RunSchedulersOnce.
func (r *Registry) StopSchedulers(name string) error {
	s, err := r.scheduled(name)
	if err != nil {
		return err
	}
	s.StopSchedulers()
	r.logger.Debug("flow schedulers stopped", "flow", name)
	return nil
}

// StartSchedulers starts automatic triggering of the named poll flow.
func (r *Registry) StartSchedulers(ctx context.Context, name string) error {
	s, err := r.scheduled(name)
	if err != nil {
		return err
	}
	if err := s.StartSchedulers(ctx); err != nil {
		return NewExecutionError(name, fmt.Errorf("start schedulers: %w", err))
	}
	r.logger.Debug("flow schedulers started", "flow", name)
	return nil
}

// RunSchedulersOnce fires the named poll flow a single time, as its
// scheduler would, and returns the flow's result event.
func (r *Registry) RunSchedulersOnce(ctx context.Context, name string) (*Event, error) {
	if _, err := r.scheduled(name); err != nil {
		return nil, err
	}
	h, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	if err := h.Initialise(ctx); err != nil {
		return nil, err
	}
	return Invoke(ctx, h, nil, nil)
}

// Handle is a resolved reference to a flow.
//
// A handle must be initialised before it processes events. Handles are
// not mutated after initialisation.
type Handle struct {
	flow        Flow
	tokens      TokenGenerator
	logger      *slog.Logger
	mu          sync.Mutex
	initialised bool
}

// Name returns the flow name.
func (h *Handle) Name() string {
	return h.flow.Name()
}

// Initialise prepares the handle. Calling it again is a no-op.
// A malformed flow definition yields an initialisation error.
func (h *Handle) Initialise(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.initialised {
		return nil
	}
	if in, ok := h.flow.(Initialiser); ok {
		if err := in.Initialise(ctx); err != nil {
			var fe *Error
			if errors.As(err, &fe) && fe.Code == ErrCodeInitialization {
				return err
			}
			return NewInitializationError(h.Name(), err)
		}
	}
	h.initialised = true
	return nil
}

// Initialised reports whether Initialise succeeded.
func (h *Handle) Initialised() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.initialised
}

// Process runs the flow on ev. Faults are returned unwrapped; use Invoke
// for request-response semantics with execution error wrapping.
func (h *Handle) Process(ctx context.Context, ev *Event) (*Event, error) {
	if !h.Initialised() {
		return nil, &Error{
			Code:    ErrCodeInitialization,
			Flow:    h.Name(),
			Message: "handle used before Initialise",
		}
	}
	return h.flow.Process(ctx, ev)
}
