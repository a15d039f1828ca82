package syncapp

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/accountsync/internal/batch"
	"github.com/roach88/accountsync/internal/config"
	"github.com/roach88/accountsync/internal/flow"
	"github.com/roach88/accountsync/internal/notification"
	"github.com/roach88/accountsync/internal/org"
	"github.com/roach88/accountsync/internal/record"
	"github.com/roach88/accountsync/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestTemplate builds a template over two in-memory orgs sharing one
// fake clock, so every write gets a distinct, increasing timestamp.
func newTestTemplate(t *testing.T, opts ...Option) (*Template, *testutil.FakeClock) {
	t.Helper()
	clock := testutil.NewFakeClock().AutoAdvance(time.Millisecond)
	cfg := config.ForTestRun(clock.Now())
	return newTestTemplateWith(t, cfg, clock, opts...), clock
}

func newTestTemplateWith(t *testing.T, cfg *config.Config, clock *testutil.FakeClock, opts ...Option) *Template {
	t.Helper()
	orgs := map[org.System]*org.Org{}
	for _, s := range org.Systems {
		o, err := org.Open(":memory:", s,
			org.WithClock(clock),
			org.WithIDGenerator(testutil.NewSequenceIDs(string(s))),
			org.WithLogger(discardLogger()),
		)
		require.NoError(t, err)
		t.Cleanup(func() { o.Close() })
		orgs[s] = o
	}

	tpl, err := New(cfg, orgs[org.SystemA], orgs[org.SystemB], append([]Option{WithLogger(discardLogger())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { tpl.Close() })
	return tpl
}

func resolve(t *testing.T, tpl *Template, name string) *flow.Handle {
	t.Helper()
	h, err := tpl.Registry().Resolve(name)
	require.NoError(t, err)
	require.NoError(t, h.Initialise(context.Background()))
	return h
}

func create(t *testing.T, tpl *Template, name string, r record.Record) string {
	t.Helper()
	id, err := flow.InvokeCreate(context.Background(), resolve(t, tpl, name), r)
	require.NoError(t, err)
	return id
}

func runJob(t *testing.T, ev *flow.Event) *batch.Job {
	t.Helper()
	job, ok := ev.Payload.(*batch.Job)
	require.True(t, ok, "payload is %T", ev.Payload)
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("job %s did not finish", job.ID())
	}
	return job
}

func trigger(t *testing.T, tpl *Template, name string) *batch.Job {
	t.Helper()
	ev, err := tpl.Registry().RunSchedulersOnce(context.Background(), name)
	require.NoError(t, err)
	return runJob(t, ev)
}

func TestNew_RegistersEveryWellKnownFlow(t *testing.T) {
	tpl, _ := newTestTemplate(t)
	require.NoError(t, tpl.Registry().Validate(flow.WellKnown...))
	for _, name := range flow.WellKnown {
		resolve(t, tpl, name)
	}
}

func TestPoll_NewerSourceUpdatesTarget(t *testing.T) {
	tpl, _ := newTestTemplate(t)
	ctx := context.Background()

	account := record.AnAccount().With("Name", "Acme").With("Phone", "123456789")
	create(t, tpl, flow.CreateAccountInA, account.With("Description", "Old description").Build())
	create(t, tpl, flow.CreateAccountInB, account.With("Description", "Some nice description").Build())

	job := trigger(t, tpl, flow.TriggerSyncFromB)
	assert.Equal(t, batch.StateSucceeded, job.State())
	assert.Equal(t, 1, job.Result().Total)

	a, found, err := tpl.Org(org.SystemA).Find(ctx, record.Fields{"Name": "Acme"})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Some nice description", a.Fields["Description"])
	assert.Equal(t, tpl.IntegrationUser(org.SystemA), a.LastModifiedByID)

	count, err := tpl.Org(org.SystemA).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "matched by Name, not duplicated")
	assert.Empty(t, job.Outputs(), "updates are not reported as created")
}

func TestPoll_MissingTargetIsCreated(t *testing.T) {
	tpl, _ := newTestTemplate(t)
	ctx := context.Background()

	create(t, tpl, flow.CreateAccountInA, record.AnAccount().With("Name", "Only in A").With("Industry", "Apparel").Build())

	job := trigger(t, tpl, flow.TriggerSyncFromA)

	b, found, err := tpl.Org(org.SystemB).Find(ctx, record.Fields{"Name": "Only in A"})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Apparel", b.Fields["Industry"])
	assert.Equal(t, tpl.IntegrationUser(org.SystemB), b.LastModifiedByID)
	assert.Equal(t, []batch.Output{{Label: "B", ID: b.ID}}, job.Outputs(), "created records are reported on the job")
}

func TestPoll_EchoesAreSuppressed(t *testing.T) {
	tpl, _ := newTestTemplate(t)
	ctx := context.Background()

	id := create(t, tpl, flow.CreateAccountInA, record.AnAccount().With("Name", "Ping").Build())
	trigger(t, tpl, flow.TriggerSyncFromA)

	// B's copy was written by B's integration user; syncing B back must
	// not touch A.
	job := trigger(t, tpl, flow.TriggerSyncFromB)
	assert.Equal(t, batch.StateSucceeded, job.State())
	assert.Equal(t, 1, job.Result().Total)

	a, err := tpl.Org(org.SystemA).Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, OperatorUser, a.LastModifiedByID)
}

func TestPoll_OlderSourceIsSkipped(t *testing.T) {
	tpl, _ := newTestTemplate(t)
	ctx := context.Background()

	create(t, tpl, flow.CreateAccountInB, record.AnAccount().With("Name", "Tie").With("Rating", "Cold").Build())
	create(t, tpl, flow.CreateAccountInA, record.AnAccount().With("Name", "Tie").With("Rating", "Hot").Build())

	trigger(t, tpl, flow.TriggerSyncFromB)

	a, _, err := tpl.Org(org.SystemA).Find(ctx, record.Fields{"Name": "Tie"})
	require.NoError(t, err)
	assert.Equal(t, "Hot", a.Fields["Rating"])
}

func TestPoll_WatermarkAdvances(t *testing.T) {
	tpl, _ := newTestTemplate(t)

	create(t, tpl, flow.CreateAccountInA, record.AnAccount().With("Name", "once").Build())

	first := trigger(t, tpl, flow.TriggerSyncFromA)
	assert.Equal(t, 1, first.Result().Total)

	second := trigger(t, tpl, flow.TriggerSyncFromA)
	assert.Equal(t, 0, second.Result().Total)
	assert.Equal(t, batch.StateSucceeded, second.State(), "an empty poll still produces a job")

	p := tpl.polls[org.SystemA]
	assert.True(t, p.Watermark().After(tpl.Config().Watermark))
}

func TestPoll_RecordsBeforeWatermarkIgnored(t *testing.T) {
	clock := testutil.NewFakeClock().AutoAdvance(time.Millisecond)
	cfg := config.ForTestRun(testutil.Epoch.Add(time.Hour))
	tpl := newTestTemplateWith(t, cfg, clock)

	create(t, tpl, flow.CreateAccountInA, record.AnAccount().With("Name", "stale").Build())
	job := trigger(t, tpl, flow.TriggerSyncFromA)
	assert.Equal(t, 0, job.Result().Total)
}

func TestPush_CreatesInOtherSystem(t *testing.T) {
	tpl, _ := newTestTemplate(t)
	ctx := context.Background()

	h := resolve(t, tpl, flow.TriggerPush)
	ev, err := flow.Invoke(ctx, h, notification.SampleAccount().MustBuild(), map[string]string{VarSourceSystem: "A"})
	require.NoError(t, err)
	job := runJob(t, ev)
	require.Equal(t, batch.StateSucceeded, job.State(), job.Errors())

	got, found, err := flow.InvokeQuery(ctx, resolve(t, tpl, flow.QueryAccountFromB), record.Fields{"Name": "Account bbbb"})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Account bbbb", got["Name"])
	assert.Equal(t, "Apparel", got["Industry"])

	b, _, err := tpl.Org(org.SystemB).Find(ctx, record.Fields{"Name": "Account bbbb"})
	require.NoError(t, err)
	assert.Equal(t, "10000", b.Fields["AnnualRevenue"])
	assert.NotContains(t, b.Fields, "SystemModstamp")

	count, err := tpl.Org(org.SystemA).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPush_UpdatesOnlyWhenNewer(t *testing.T) {
	tpl, clock := newTestTemplate(t)
	ctx := context.Background()

	// The sample was modified at Epoch; a B record written later wins.
	clock.Advance(time.Hour)
	create(t, tpl, flow.CreateAccountInB, record.AnAccount().With("Name", "Account bbbb").With("Industry", "Banking").Build())

	ev, err := flow.Invoke(ctx, resolve(t, tpl, flow.TriggerPush), notification.SampleAccount().MustBuild(), map[string]string{VarSourceSystem: "A"})
	require.NoError(t, err)
	runJob(t, ev)

	b, _, err := tpl.Org(org.SystemB).Find(ctx, record.Fields{"Name": "Account bbbb"})
	require.NoError(t, err)
	assert.Equal(t, "Banking", b.Fields["Industry"])

	// A newer notification overwrites it.
	newer := notification.SampleAccount().With("LastModifiedDate", "2014-06-03T13:00:00.000Z")
	ev, err = flow.Invoke(ctx, resolve(t, tpl, flow.TriggerPush), newer.MustBuild(), map[string]string{VarSourceSystem: "A"})
	require.NoError(t, err)
	assert.Empty(t, runJob(t, ev).Outputs())

	b, _, err = tpl.Org(org.SystemB).Find(ctx, record.Fields{"Name": "Account bbbb"})
	require.NoError(t, err)
	assert.Equal(t, "Apparel", b.Fields["Industry"])
}

func TestPush_EchoFromIntegrationUserSkipped(t *testing.T) {
	tpl, _ := newTestTemplate(t)
	ctx := context.Background()

	env := notification.SampleAccount().With("LastModifiedById", tpl.IntegrationUser(org.SystemB)).MustBuild()
	ev, err := flow.Invoke(ctx, resolve(t, tpl, flow.TriggerPush), env, map[string]string{VarSourceSystem: "B"})
	require.NoError(t, err)
	job := runJob(t, ev)
	assert.Equal(t, batch.StateSucceeded, job.State())

	count, err := tpl.Org(org.SystemA).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPush_Errors(t *testing.T) {
	tpl, _ := newTestTemplate(t)
	h := resolve(t, tpl, flow.TriggerPush)
	ctx := context.Background()

	_, err := flow.Invoke(ctx, h, notification.SampleAccount().MustBuild(), nil)
	assert.True(t, flow.IsExecutionError(err))
	assert.ErrorContains(t, err, VarSourceSystem)

	_, err = flow.Invoke(ctx, h, "<garbage", map[string]string{VarSourceSystem: "A"})
	assert.True(t, flow.IsExecutionError(err))

	_, err = flow.Invoke(ctx, h, 42, map[string]string{VarSourceSystem: "A"})
	assert.ErrorContains(t, err, "expects an envelope")
}

func TestInitialise_MalformedDefinitions(t *testing.T) {
	cfg, err := flow.ParseConfig([]byte(`
flows:
  - {name: queryAccountFromAFlow, kind: query, system: A}
  - {name: createAccountInCFlow, kind: create, system: C}
  - {name: mystery, kind: upsert, system: A}
`))
	require.NoError(t, err)
	tpl, _ := newTestTemplate(t, WithFlowConfig(cfg))

	for _, name := range []string{"queryAccountFromAFlow", "createAccountInCFlow", "mystery"} {
		h, err := tpl.Registry().Resolve(name)
		require.NoError(t, err)
		err = h.Initialise(context.Background())
		assert.True(t, flow.IsInitializationError(err), name)
	}

	_, err = tpl.Registry().Resolve(flow.TriggerPush)
	assert.True(t, flow.IsConfigurationError(err))
}

func TestDeleteFlow(t *testing.T) {
	tpl, _ := newTestTemplate(t)
	ctx := context.Background()

	id := create(t, tpl, flow.CreateAccountInA, record.AnAccount().With("Name", "doomed").Build())
	results, err := flow.InvokeDelete(ctx, resolve(t, tpl, flow.DeleteAccountFromA), []string{id})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)

	results, err = flow.InvokeDelete(ctx, resolve(t, tpl, flow.DeleteAccountFromB), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSchedulers_PollAutomatically(t *testing.T) {
	clock := testutil.NewFakeClock().AutoAdvance(time.Millisecond)
	cfg := config.ForTestRun(clock.Now())
	cfg.PollingFrequency = 10 * time.Millisecond
	tpl := newTestTemplateWith(t, cfg, clock)
	ctx := context.Background()

	require.NoError(t, tpl.Start(ctx))
	assert.True(t, tpl.polls[org.SystemA].poller.Running())

	create(t, tpl, flow.CreateAccountInA, record.AnAccount().With("Name", "auto").Build())
	require.Eventually(t, func() bool {
		_, found, err := tpl.Org(org.SystemB).Find(ctx, record.Fields{"Name": "auto"})
		return err == nil && found
	}, 5*time.Second, 10*time.Millisecond)

	tpl.Stop()
	assert.False(t, tpl.polls[org.SystemA].poller.Running())
	assert.False(t, tpl.polls[org.SystemB].poller.Running())
}

func TestOpen_FileBackedOrgs(t *testing.T) {
	cfg := config.ForTestRun(time.Now())
	dir := t.TempDir()
	cfg.Systems[org.SystemA] = config.SystemConfig{Database: dir + "/a.db", IntegrationUser: "005A000000000000IU"}
	cfg.Systems[org.SystemB] = config.SystemConfig{Database: dir + "/b.db", IntegrationUser: "005B000000000000IU"}

	tpl, err := Open(cfg, WithLogger(discardLogger()))
	require.NoError(t, err)

	create(t, tpl, flow.CreateAccountInA, record.AnAccount().With("Name", "real clock").Build())
	job := trigger(t, tpl, flow.TriggerSyncFromA)
	assert.Equal(t, batch.StateSucceeded, job.State())
	require.NoError(t, tpl.Close())
}
