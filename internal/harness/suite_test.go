package harness

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
	"github.com/roach88/accountsync/internal/syncapp"
	"github.com/roach88/accountsync/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestTemplate builds a template over two in-memory orgs with
// predictable ids and a shared fake clock.
func newTestTemplate(t *testing.T, opts ...syncapp.Option) *syncapp.Template {
	t.Helper()
	clock := testutil.NewFakeClock().AutoAdvance(time.Millisecond)
	cfg := config.ForTestRun(clock.Now())

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

	tpl, err := syncapp.New(cfg, orgs[org.SystemA], orgs[org.SystemB],
		append([]syncapp.Option{syncapp.WithLogger(discardLogger())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { tpl.Close() })
	return tpl
}

// fastWaits keeps sync job polling short for in-memory sandboxes.
func fastWaits() []SuiteOption {
	return []SuiteOption{
		WithTimeout(5 * time.Second),
		WithPollInterval(5 * time.Millisecond),
	}
}

func newTestSuite(t *testing.T, tpl *syncapp.Template, opts ...SuiteOption) *Suite {
	t.Helper()
	s := NewSuite(tpl, append(fastWaits(), opts...)...)
	require.NoError(t, s.SetUp(context.Background()))
	return s
}

func count(t *testing.T, tpl *syncapp.Template, s org.System) int {
	t.Helper()
	n, err := tpl.Org(s).Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestSuite_UpdateFromBConverges(t *testing.T) {
	tpl := newTestTemplate(t)
	s := newTestSuite(t, tpl)
	ctx := context.Background()

	account := record.AnAccount().With("Name", "Acme").With("Phone", "123456789")
	_, err := s.CreateAccount(ctx, org.SystemA, account.With("Description", "Old description").Build())
	require.NoError(t, err)
	_, err = s.CreateAccount(ctx, org.SystemB, account.With("Description", "Some nice description").Build())
	require.NoError(t, err)

	job, err := s.ExecuteWaitAndAssert(ctx, flow.TriggerSyncFromB)
	require.NoError(t, err)
	assert.Equal(t, batch.StateSucceeded, job.State())

	require.NoError(t, s.AssertSynchronized(ctx, record.Fields{"Name": "Acme"}))
	for _, sys := range org.Systems {
		fields, found, err := s.QueryAccount(ctx, sys, record.Fields{"Name": "Acme"})
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "Some nice description", fields["Description"], "system %s", sys)
	}

	require.NoError(t, s.TearDown(ctx))
	assert.Equal(t, 0, count(t, tpl, org.SystemA))
	assert.Equal(t, 0, count(t, tpl, org.SystemB))
}

func TestSuite_PushFromAReachesB(t *testing.T) {
	tpl := newTestTemplate(t)
	s := newTestSuite(t, tpl)
	ctx := context.Background()

	job, err := s.PushNotification(ctx, notification.SampleAccount().MustBuild(), org.SystemA)
	require.NoError(t, err)
	assert.Equal(t, 1, job.Result().Processed)

	fields, found, err := s.QueryAccount(ctx, org.SystemB, record.Fields{"Name": "Account bbbb"})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Apparel", fields["Industry"])
	assert.Equal(t, "4564564", fields["AccountNumber"])
	assert.NotEqual(t, "001d000001XD5XKAA1", fields["Id"], "B assigns its own id")

	_, found, err = s.QueryAccount(ctx, org.SystemA, record.Fields{"Name": "Account bbbb"})
	require.NoError(t, err)
	assert.False(t, found)

	assert.Empty(t, s.Ledger().IDs(org.SystemA))
	assert.Equal(t, []string{fields["Id"]}, s.Ledger().IDs(org.SystemB), "record created by sync is tracked")

	require.NoError(t, s.TearDown(ctx))
	assert.Equal(t, 0, count(t, tpl, org.SystemB))
}

func TestSuite_TriggerTracksCounterparts(t *testing.T) {
	tpl := newTestTemplate(t)
	s := newTestSuite(t, tpl)
	ctx := context.Background()

	id, err := s.CreateAccount(ctx, org.SystemA, record.AnAccount().With("Name", "Only in A").Build())
	require.NoError(t, err)
	assert.Equal(t, []string{id}, s.Ledger().IDs(org.SystemA))
	assert.Empty(t, s.Ledger().IDs(org.SystemB))

	_, err = s.ExecuteWaitAndAssert(ctx, flow.TriggerSyncFromA)
	require.NoError(t, err)
	assert.Len(t, s.Ledger().IDs(org.SystemB), 1)

	require.NoError(t, s.TearDown(ctx))
	assert.Equal(t, 0, count(t, tpl, org.SystemA))
	assert.Equal(t, 0, count(t, tpl, org.SystemB))
	assert.Equal(t, 0, s.Ledger().Len())
}

func TestSuite_PreExistingRecordsSurviveTearDown(t *testing.T) {
	tpl := newTestTemplate(t)
	ctx := context.Background()

	inA, err := tpl.Org(org.SystemA).Create(ctx, []record.Record{
		record.AnAccount().With("Name", "Account bbbb").Build(),
	}, "005000000000000USR")
	require.NoError(t, err)
	require.True(t, inA[0].Success)
	inB, err := tpl.Org(org.SystemB).Create(ctx, []record.Record{
		record.AnAccount().With("Name", "Kept in B").With("Description", "before").Build(),
	}, "005000000000000USR")
	require.NoError(t, err)
	require.True(t, inB[0].Success)

	s := newTestSuite(t, tpl)
	_, err = s.PushNotification(ctx, notification.SampleAccount().MustBuild(), org.SystemA)
	require.NoError(t, err)

	// A newer B-side update of a record the test did not create.
	newer := notification.SampleAccount().
		With("Name", "Kept in B").
		With("LastModifiedDate", record.FormatTime(time.Now().Add(time.Hour)))
	_, err = s.PushNotification(ctx, newer.MustBuild(), org.SystemA)
	require.NoError(t, err)

	assert.Empty(t, s.Ledger().IDs(org.SystemA))
	assert.Len(t, s.Ledger().IDs(org.SystemB), 1, "only the record the push created")

	require.NoError(t, s.TearDown(ctx))
	_, err = tpl.Org(org.SystemA).Get(ctx, inA[0].ID)
	assert.NoError(t, err, "record created outside the test is kept")
	kept, err := tpl.Org(org.SystemB).Get(ctx, inB[0].ID)
	require.NoError(t, err, "record only updated by sync is kept")
	assert.Equal(t, "Apparel", kept.Fields["Industry"])
	assert.Equal(t, 1, count(t, tpl, org.SystemB))
}

func TestSuite_TimedOutJobStillCleansUp(t *testing.T) {
	tpl := newTestTemplate(t)
	s := newTestSuite(t, tpl, WithTimeout(0))
	ctx := context.Background()

	_, err := s.CreateAccount(ctx, org.SystemA, record.AnAccount().With("Name", "Slow to sync").Build())
	require.NoError(t, err)

	job, err := s.ExecuteWaitAndAssert(ctx, flow.TriggerSyncFromA)
	require.NotNil(t, job)
	if err != nil {
		assert.True(t, batch.IsTimeout(err))
	}
	assert.True(t, job.State().Terminal(), "the suite waits for the job before tracking")
	assert.Len(t, s.Ledger().IDs(org.SystemB), 1)

	require.NoError(t, s.TearDown(ctx))
	assert.Equal(t, 0, count(t, tpl, org.SystemA))
	assert.Equal(t, 0, count(t, tpl, org.SystemB))
}

func TestSuite_EmptyTearDownInvokesEachDeleteFlowOnce(t *testing.T) {
	tpl := newTestTemplate(t)
	result := NewResult()
	s := newTestSuite(t, tpl, WithTrace(result))

	require.NoError(t, s.TearDown(context.Background()))

	var invoked []string
	for _, ev := range result.Trace {
		if ev.Type != EventInvocation {
			continue
		}
		invoked = append(invoked, ev.Flow)
		assert.Equal(t, []string{}, ev.Args)
	}
	assert.Equal(t, []string{flow.DeleteAccountFromA, flow.DeleteAccountFromB}, invoked)
}

func TestSuite_TearDownPropagatesDeleteFailure(t *testing.T) {
	tpl := newTestTemplate(t)
	s := newTestSuite(t, tpl)
	ctx := context.Background()

	_, err := s.CreateAccount(ctx, org.SystemA, record.AnAccount().With("Name", "In A").Build())
	require.NoError(t, err)
	_, err = s.CreateAccount(ctx, org.SystemB, record.AnAccount().With("Name", "In B").Build())
	require.NoError(t, err)

	require.NoError(t, tpl.Org(org.SystemB).Close())

	err = s.TearDown(ctx)
	require.Error(t, err)
	assert.True(t, flow.IsExecutionError(err))
	assert.Contains(t, err.Error(), "tear down B")
	assert.Equal(t, 0, count(t, tpl, org.SystemA), "A is still cleaned up")
}

func TestSuite_AssertSynchronizedListsDifferingFields(t *testing.T) {
	tpl := newTestTemplate(t)
	s := newTestSuite(t, tpl)
	ctx := context.Background()

	account := record.AnAccount().With("Name", "Acme").With("Phone", "123456789")
	_, err := s.CreateAccount(ctx, org.SystemA, account.With("Description", "left").With("Industry", "Apparel").Build())
	require.NoError(t, err)
	_, err = s.CreateAccount(ctx, org.SystemB, account.With("Description", "right").With("Rating", "Hot").Build())
	require.NoError(t, err)

	err = s.AssertSynchronized(ctx, record.Fields{"Name": "Acme"})
	require.Error(t, err)
	require.True(t, IsAssertionError(err))

	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertSynchronizedType, ae.Type)
	assert.Equal(t, []string{"Description", "Industry", "Rating"}, ae.Fields)
	assert.Contains(t, ae.Error(), "Fields: Description, Industry, Rating")

	require.NoError(t, s.AssertSynchronized(ctx, record.Fields{"Name": "Acme"}, "Description", "Industry", "Rating"))
}

func TestSuite_AssertSynchronizedMissingSide(t *testing.T) {
	tpl := newTestTemplate(t)
	s := newTestSuite(t, tpl)
	ctx := context.Background()

	_, err := s.CreateAccount(ctx, org.SystemA, record.AnAccount().With("Name", "Lonely").Build())
	require.NoError(t, err)

	err = s.AssertSynchronized(ctx, record.Fields{"Name": "Lonely"})
	require.True(t, IsAssertionError(err))
	assert.Contains(t, err.Error(), "no record in system B")
}

func TestSuite_FailedJobIsAssertionError(t *testing.T) {
	tpl := newTestTemplate(t)
	s := newTestSuite(t, tpl)

	envelope := notification.SampleAccount().Without("Name").MustBuild()
	job, err := s.PushNotification(context.Background(), envelope, org.SystemA)
	require.Error(t, err)
	assert.True(t, batch.IsAssertion(err))
	require.NotNil(t, job)
	assert.Equal(t, batch.StateFailed, job.State())
}

func TestSuite_PushRequiresParsableEnvelope(t *testing.T) {
	tpl := newTestTemplate(t)
	s := newTestSuite(t, tpl)

	_, err := s.PushNotification(context.Background(), "<not-an-envelope", org.SystemA)
	require.Error(t, err)
}

func TestSuite_SetUpFailsOnMissingFlow(t *testing.T) {
	defaults, err := flow.DefaultConfig()
	require.NoError(t, err)

	partial := &flow.Config{}
	for _, def := range defaults.Flows {
		if def.Name != flow.CreateAccountInB {
			partial.Flows = append(partial.Flows, def)
		}
	}
	tpl := newTestTemplate(t, syncapp.WithFlowConfig(partial))

	err = NewSuite(tpl).SetUp(context.Background())
	require.Error(t, err)
	assert.True(t, flow.IsConfigurationError(err))
}

func TestSuite_StopsTriggerSchedulers(t *testing.T) {
	tpl := newTestTemplate(t)
	require.NoError(t, tpl.Start(context.Background()))

	s := newTestSuite(t, tpl)
	_, err := s.CreateAccount(context.Background(), org.SystemA, record.AnAccount().With("Name", "Manual").Build())
	require.NoError(t, err)

	assert.Empty(t, tpl.Engine().Jobs(), "no job runs until the test triggers one")
}
