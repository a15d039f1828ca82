package syncapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/accountsync/internal/batch"
	"github.com/roach88/accountsync/internal/config"
	"github.com/roach88/accountsync/internal/flow"
	"github.com/roach88/accountsync/internal/org"
)

// OperatorUser is the user id that create flows write as. It is never an
// integration user, so records it writes are picked up by the pollers.
const OperatorUser = "005000000000OPERAT"

// Template is the running bidirectional sync application: two orgs, the
// batch engine and the registry of named flows wired to them.
type Template struct {
	cfg      *config.Config
	orgs     map[org.System]*org.Org
	ownsOrgs bool
	engine   *batch.Engine
	registry *flow.Registry
	polls    map[org.System]*pollFlow
	logger   *slog.Logger
}

type options struct {
	logger  *slog.Logger
	tokens  flow.TokenGenerator
	orgOpts []org.Option
	flows   *flow.Config
}

// Option configures a Template.
type Option func(*options)

// WithLogger sets the logger shared by the template's components.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithTokenGenerator sets the event id generator of the registry.
func WithTokenGenerator(g flow.TokenGenerator) Option {
	return func(o *options) {
		o.tokens = g
	}
}

// WithOrgOptions passes options to both orgs opened by Open.
func WithOrgOptions(opts ...org.Option) Option {
	return func(o *options) {
		o.orgOpts = append(o.orgOpts, opts...)
	}
}

// WithFlowConfig overrides the flow configuration named by the properties.
func WithFlowConfig(cfg *flow.Config) Option {
	return func(o *options) {
		o.flows = cfg
	}
}

func buildOptions(opts []Option) *options {
	o := &options{logger: slog.Default(), tokens: flow.UUIDv7Generator{}}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Open opens both orgs from the configured databases and builds the
// template. Both orgs share one MonotonicClock seeded at the watermark
// unless a clock is passed with WithOrgOptions.
func Open(cfg *config.Config, opts ...Option) (*Template, error) {
	o := buildOptions(opts)

	clock := org.NewMonotonicClock(nil, cfg.Watermark)
	orgOpts := append([]org.Option{org.WithClock(clock), org.WithLogger(o.logger)}, o.orgOpts...)

	orgs := make(map[org.System]*org.Org, len(org.Systems))
	for _, s := range org.Systems {
		db, err := org.Open(cfg.System(s).Database, s, orgOpts...)
		if err != nil {
			for _, opened := range orgs {
				opened.Close()
			}
			return nil, fmt.Errorf("open org %s: %w", s, err)
		}
		orgs[s] = db
	}

	t, err := New(cfg, orgs[org.SystemA], orgs[org.SystemB], opts...)
	if err != nil {
		for _, opened := range orgs {
			opened.Close()
		}
		return nil, err
	}
	t.ownsOrgs = true
	return t, nil
}

// New builds the template over already opened orgs. The caller keeps
// ownership of the orgs.
func New(cfg *config.Config, orgA, orgB *org.Org, opts ...Option) (*Template, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid properties: %w", err)
	}
	o := buildOptions(opts)

	flows := o.flows
	if flows == nil {
		var err error
		if cfg.Flows != "" {
			flows, err = flow.LoadConfig(cfg.Flows)
		} else {
			flows, err = flow.DefaultConfig()
		}
		if err != nil {
			return nil, err
		}
	}

	t := &Template{
		cfg:    cfg,
		orgs:   map[org.System]*org.Org{org.SystemA: orgA, org.SystemB: orgB},
		engine: batch.NewEngine(batch.WithLogger(o.logger)),
		registry: flow.NewRegistry(
			flow.WithLogger(o.logger),
			flow.WithTokenGenerator(o.tokens),
		),
		polls:  make(map[org.System]*pollFlow),
		logger: o.logger,
	}

	for _, def := range flows.Flows {
		f, err := t.newFlow(def)
		if err != nil {
			t.engine.Close()
			return nil, err
		}
		if err := t.registry.Register(f); err != nil {
			t.engine.Close()
			return nil, err
		}
	}
	return t, nil
}

func (t *Template) newFlow(def flow.Definition) (flow.Flow, error) {
	base := baseFlow{def: def, t: t}
	switch def.Kind {
	case flow.KindCreate:
		return &createFlow{base}, nil
	case flow.KindQuery:
		return &queryFlow{base}, nil
	case flow.KindDelete:
		return &deleteFlow{base}, nil
	case flow.KindPoll:
		p := newPollFlow(base, t.cfg.Watermark)
		if s, err := org.ParseSystem(def.System); err == nil {
			t.polls[s] = p
		}
		return p, nil
	case flow.KindPush:
		return &pushFlow{base}, nil
	default:
		// Registered anyway so the problem surfaces on Initialise.
		return &base, nil
	}
}

// Registry returns the named flows.
func (t *Template) Registry() *flow.Registry {
	return t.registry
}

// Engine returns the batch engine running sync jobs.
func (t *Template) Engine() *batch.Engine {
	return t.engine
}

// Org returns one side of the synchronisation.
func (t *Template) Org(s org.System) *org.Org {
	return t.orgs[s]
}

// Config returns the template's properties.
func (t *Template) Config() *config.Config {
	return t.cfg
}

// IntegrationUser returns the user id the template writes to s as.
func (t *Template) IntegrationUser(s org.System) string {
	return t.cfg.System(s).IntegrationUser
}

// Start starts the schedulers of every poll flow.
func (t *Template) Start(ctx context.Context) error {
	for _, name := range t.pollNames() {
		if err := t.registry.StartSchedulers(ctx, name); err != nil {
			t.Stop()
			return err
		}
	}
	return nil
}

// Stop stops the schedulers of every poll flow.
func (t *Template) Stop() {
	for _, name := range t.pollNames() {
		if err := t.registry.StopSchedulers(name); err != nil {
			t.logger.Warn("stop schedulers failed", "flow", name, "error", err)
		}
	}
}

func (t *Template) pollNames() []string {
	var names []string
	for _, s := range org.Systems {
		if p, ok := t.polls[s]; ok {
			names = append(names, p.Name())
		}
	}
	return names
}

// Close stops the schedulers, cancels running jobs and closes the orgs
// the template opened.
func (t *Template) Close() error {
	t.Stop()
	t.engine.Close()
	if !t.ownsOrgs {
		return nil
	}
	var errs []error
	for _, s := range org.Systems {
		if err := t.orgs[s].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close org %s: %w", s, err))
		}
	}
	return errors.Join(errs...)
}
