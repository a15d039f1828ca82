package syncapp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/accountsync/internal/batch"
	"github.com/roach88/accountsync/internal/flow"
	"github.com/roach88/accountsync/internal/notification"
	"github.com/roach88/accountsync/internal/org"
	"github.com/roach88/accountsync/internal/record"
)

// Flow variables.
const (
	VarSourceSystem = "sourceSystem"
	VarUser         = "userId"
)

// baseFlow carries a definition and validates it on Initialise. On its
// own it is the flow registered for an unknown kind.
type baseFlow struct {
	def flow.Definition
	t   *Template
}

func (f *baseFlow) Name() string {
	return f.def.Name
}

func (f *baseFlow) Initialise(context.Context) error {
	return f.def.Validate()
}

func (f *baseFlow) Process(context.Context, *flow.Event) (*flow.Event, error) {
	return nil, fmt.Errorf("flow kind %q cannot process events", f.def.Kind)
}

func (f *baseFlow) target() *org.Org {
	return f.t.orgs[f.def.TargetSystem()]
}

// createFlow inserts []record.Record and replies with []org.SaveResult.
type createFlow struct{ baseFlow }

func (f *createFlow) Process(ctx context.Context, ev *flow.Event) (*flow.Event, error) {
	var records []record.Record
	switch p := ev.Payload.(type) {
	case []record.Record:
		records = p
	case record.Record:
		records = []record.Record{p}
	default:
		return nil, fmt.Errorf("create expects records, got %T", ev.Payload)
	}

	by := ev.Variable(VarUser)
	if by == "" {
		by = OperatorUser
	}
	results, err := f.target().Create(ctx, records, by)
	if err != nil {
		return nil, err
	}
	return ev.Reply(results), nil
}

// queryFlow replies with the projected fields of the first match, or a
// nil payload when nothing matches.
type queryFlow struct{ baseFlow }

func (f *queryFlow) Process(ctx context.Context, ev *flow.Event) (*flow.Event, error) {
	var criteria record.Fields
	switch p := ev.Payload.(type) {
	case record.Fields:
		criteria = p
	case record.Record:
		criteria = p.Fields()
	default:
		return nil, fmt.Errorf("query expects criteria, got %T", ev.Payload)
	}

	fields, found, err := f.target().Query(ctx, criteria, f.def.Fields)
	if err != nil {
		return nil, err
	}
	if !found {
		return ev.Reply(nil), nil
	}
	return ev.Reply(fields), nil
}

// deleteFlow removes []string ids and replies with []org.DeleteResult.
type deleteFlow struct{ baseFlow }

func (f *deleteFlow) Process(ctx context.Context, ev *flow.Event) (*flow.Event, error) {
	ids, ok := ev.Payload.([]string)
	if !ok && ev.Payload != nil {
		return nil, fmt.Errorf("delete expects ids, got %T", ev.Payload)
	}
	results, err := f.target().Delete(ctx, ids)
	if err != nil {
		return nil, err
	}
	return ev.Reply(results), nil
}

// pollFlow fetches the source org's changes since its watermark and
// submits them as one sync job. It replies with the *batch.Job.
type pollFlow struct {
	baseFlow

	mu        sync.Mutex
	watermark time.Time
	poller    *poller
}

func newPollFlow(base baseFlow, watermark time.Time) *pollFlow {
	p := &pollFlow{baseFlow: base, watermark: watermark}
	p.poller = newPoller(base.def.Name, base.t.cfg.PollingFrequency, p.fire, base.t.logger)
	return p
}

// Watermark returns the LastModifiedDate boundary of the next poll.
func (p *pollFlow) Watermark() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watermark
}

func (p *pollFlow) Process(ctx context.Context, ev *flow.Event) (*flow.Event, error) {
	job, err := p.poll(ctx)
	if err != nil {
		return nil, err
	}
	return ev.Reply(job), nil
}

func (p *pollFlow) fire(ctx context.Context) error {
	_, err := p.poll(ctx)
	return err
}

// poll is serialised so two triggers never read the same window.
func (p *pollFlow) poll(ctx context.Context) (*batch.Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	source := p.def.TargetSystem()
	src, ok := p.t.orgs[source]
	if !ok || src == nil {
		return nil, fmt.Errorf("poll flow %s: no org for system %q", p.def.Name, p.def.System)
	}
	accounts, err := src.ChangedSince(ctx, p.watermark, p.t.cfg.PageSize)
	if err != nil {
		return nil, err
	}
	for _, a := range accounts {
		if a.LastModifiedDate.After(p.watermark) {
			p.watermark = a.LastModifiedDate
		}
	}

	p.t.logger.Debug("poll fetched changes",
		"flow", p.def.Name,
		"source", string(source),
		"changes", len(accounts),
		"watermark", record.FormatTime(p.watermark),
	)

	changes := make([]change, 0, len(accounts))
	for _, a := range accounts {
		changes = append(changes, changeFromAccount(a))
	}
	return p.t.submit(p.def.Name, source, changes), nil
}

func (p *pollFlow) StartSchedulers(ctx context.Context) error {
	return p.poller.Start(ctx)
}

func (p *pollFlow) StopSchedulers() {
	p.poller.Stop()
}

// pushFlow applies an outbound-message envelope from the system named by
// the sourceSystem variable. It replies with the *batch.Job.
type pushFlow struct{ baseFlow }

func (f *pushFlow) Process(_ context.Context, ev *flow.Event) (*flow.Event, error) {
	source, err := org.ParseSystem(ev.Variable(VarSourceSystem))
	if err != nil {
		return nil, fmt.Errorf("flow variable %s: %w", VarSourceSystem, err)
	}

	var data []byte
	switch p := ev.Payload.(type) {
	case string:
		data = []byte(p)
	case []byte:
		data = p
	default:
		return nil, fmt.Errorf("push expects an envelope, got %T", ev.Payload)
	}

	msg, err := notification.Parse(data)
	if err != nil {
		return nil, err
	}

	changes := make([]change, 0, len(msg.Notifications))
	for _, n := range msg.Notifications {
		if n.ObjectType != notification.DefaultObjectType {
			return nil, fmt.Errorf("notification %s: unsupported object type %q", n.ID, n.ObjectType)
		}
		c, err := changeFromNotification(n)
		if err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return ev.Reply(f.t.submit(f.def.Name, source, changes)), nil
}
