package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradient/gradetrack/internal/entity"
	"github.com/gradient/gradetrack/internal/remote"
	"github.com/gradient/gradetrack/internal/store"
)

func newTestEngine(t *testing.T, opts Options) (*Engine, *store.Store, *remote.MemoryClient) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "sync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	client := remote.NewMemoryClient(remote.WithClock(func() time.Time {
		return time.UnixMilli(5000)
	}))

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.UnixMilli(9000) }
	}
	return NewEngine(st, client, opts), st, client
}

func seedSubject(t *testing.T, st *store.Store, id, name string) {
	t.Helper()
	err := st.UpsertSubject(context.Background(), entity.Subject{
		ID:        id,
		Name:      name,
		Icon:      "📖",
		UpdatedAt: 1000,
		Pending:   entity.OpInsert,
	})
	require.NoError(t, err)
}

func seedAssessment(t *testing.T, st *store.Store, a entity.Assessment) {
	t.Helper()
	require.NoError(t, st.UpsertAssessment(context.Background(), a))
}

func pendingQuiz(localID, subjectID string, op entity.PendingOp) entity.Assessment {
	return entity.Assessment{
		LocalID:   localID,
		SubjectID: subjectID,
		Period:    entity.PeriodPrelim,
		Type:      "Quiz",
		Score:     18,
		Total:     20,
		Weight:    0.2,
		Date:      "2025-02-14",
		UpdatedAt: 1500,
		Pending:   op,
	}
}

func TestRunOnce_SignedOutIsNoop(t *testing.T) {
	eng, st, client := newTestEngine(t, Options{})
	seedSubject(t, st, "s1", "Math")
	seedAssessment(t, st, pendingQuiz("a1", "s1", entity.OpInsert))

	res, err := eng.RunOnce(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, res)
	assert.Empty(t, client.Docs("", remote.KindAssessments))

	pending, err := st.PendingAssessments(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "pending rows must survive a signed-out run")
}

func TestRunOnce_PushesInsertAndMarksSynced(t *testing.T) {
	eng, st, client := newTestEngine(t, Options{})
	seedSubject(t, st, "s1", "Math")
	seedAssessment(t, st, pendingQuiz("a1", "s1", entity.OpInsert))

	res, err := eng.RunOnce(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, Result{Pushed: 2}, res) // subject + assessment

	docs := client.Docs("u1", remote.KindAssessments)
	require.Len(t, docs, 1)
	assert.Equal(t, "a1", docs[0].Fields["localId"])
	assert.Equal(t, "s1", docs[0].Fields["subjectId"])

	got, err := st.Assessment(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, entity.OpNone, got.Pending)
	assert.Equal(t, docs[0].ID, got.RemoteID)
	assert.EqualValues(t, 9000, got.UpdatedAt)

	subs := client.Docs("u1", remote.KindSubjects)
	require.Len(t, subs, 1)
	assert.Equal(t, "s1", subs[0].ID, "subject doc id is the local id")
	assert.Equal(t, "u1", subs[0].Fields["owner"])

	local, err := st.Subject(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "u1", local.OwnerID, "pushed subject records its owner locally")
	assert.Equal(t, entity.OpNone, local.Pending)
}

func TestRunOnce_InsertWithRemoteIDMergesInsteadOfCreating(t *testing.T) {
	// A crash after create but before synced-marking leaves pending_op=insert
	// with a remote id. The retry must merge, not create a duplicate.
	eng, st, client := newTestEngine(t, Options{})
	seedSubject(t, st, "s1", "Math")

	a := pendingQuiz("a1", "s1", entity.OpInsert)
	a.RemoteID = "doc-99"
	seedAssessment(t, st, a)

	_, err := eng.RunOnce(context.Background(), "u1")
	require.NoError(t, err)

	docs := client.Docs("u1", remote.KindAssessments)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc-99", docs[0].ID)
}

func TestRunOnce_SecondRunIsIdempotent(t *testing.T) {
	eng, st, client := newTestEngine(t, Options{})
	seedSubject(t, st, "s1", "Math")
	seedAssessment(t, st, pendingQuiz("a1", "s1", entity.OpInsert))

	_, err := eng.RunOnce(context.Background(), "u1")
	require.NoError(t, err)

	res, err := eng.RunOnce(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, res, "nothing pending on the second run")
	assert.Len(t, client.Docs("u1", remote.KindAssessments), 1)
}

func TestRunOnce_NetworkFailureLeavesRowPending(t *testing.T) {
	eng, st, client := newTestEngine(t, Options{})
	seedAssessment(t, st, pendingQuiz("a1", "s1", entity.OpInsert))

	client.FailNext("create", remote.ErrNetwork)

	res, err := eng.RunOnce(context.Background(), "u1")
	require.NoError(t, err, "per-row failures do not fail the run")
	assert.Equal(t, 1, res.Failed)

	got, err := st.Assessment(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, entity.OpInsert, got.Pending)
	assert.Zero(t, got.Attempts, "network failures do not consume attempts")

	// Next run succeeds.
	res, err = eng.RunOnce(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pushed)
}

func TestRunOnce_PermanentRejectionConsumesAttempts(t *testing.T) {
	eng, st, client := newTestEngine(t, Options{MaxAttempts: 2})
	seedAssessment(t, st, pendingQuiz("a1", "s1", entity.OpInsert))

	rejected := &remote.RejectedError{Op: "create", Reason: "schema violation", Permanent: true}

	for i := 0; i < 2; i++ {
		client.FailNext("create", rejected)
		res, err := eng.RunOnce(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, 1, res.Failed)
	}

	// Budget exhausted: the row no longer enters the drain.
	res, err := eng.RunOnce(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, res)

	got, err := st.Assessment(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, entity.OpInsert, got.Pending, "row stays visible locally")
}

func TestRunOnce_DeletePushesRemoteThenPurges(t *testing.T) {
	eng, st, client := newTestEngine(t, Options{})
	client.SetDocs("u1", remote.KindAssessments, []remote.Document{
		{ID: "r1", Fields: remote.Doc{"type": "Quiz"}},
	})

	a := pendingQuiz("a1", "s1", entity.OpDelete)
	a.RemoteID = "r1"
	seedAssessment(t, st, a)

	res, err := eng.RunOnce(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, Result{Pushed: 1}, res)
	assert.Empty(t, client.Docs("u1", remote.KindAssessments))

	_, err = st.Assessment(context.Background(), "a1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunOnce_DeleteWithoutRemoteIDPurgesLocally(t *testing.T) {
	eng, st, _ := newTestEngine(t, Options{})
	seedAssessment(t, st, pendingQuiz("a1", "s1", entity.OpDelete))

	res, err := eng.RunOnce(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: 1}, res)

	_, err = st.Assessment(context.Background(), "a1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunOnce_FailedDeleteKeepsTombstone(t *testing.T) {
	eng, st, client := newTestEngine(t, Options{})
	a := pendingQuiz("a1", "s1", entity.OpDelete)
	a.RemoteID = "r1"
	seedAssessment(t, st, a)

	client.FailNext("delete", remote.ErrNetwork)

	res, err := eng.RunOnce(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	got, err := st.Assessment(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, entity.OpDelete, got.Pending, "tombstone survives a failed remote delete")
}

func TestRunOnce_CancelledContext(t *testing.T) {
	eng, st, _ := newTestEngine(t, Options{})
	seedAssessment(t, st, pendingQuiz("a1", "s1", entity.OpInsert))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.RunOnce(ctx, "u1")
	assert.Error(t, err)
}

func TestRunner_CoalescesTriggers(t *testing.T) {
	eng, st, client := newTestEngine(t, Options{})
	seedSubject(t, st, "s1", "Math")

	runner := NewRunner(eng, func() string { return "u1" },
		WithRunnerLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	ctx, cancel := context.WithCancel(context.Background())
	runner.Start(ctx)
	runner.Start(ctx) // second start is a no-op

	for i := 0; i < 10; i++ {
		runner.Trigger()
	}

	require.Eventually(t, func() bool {
		return len(client.Docs("u1", remote.KindSubjects)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	runner.Wait()
}

func TestRunner_RetriesAfterFailure(t *testing.T) {
	eng, st, client := newTestEngine(t, Options{})
	seedAssessment(t, st, pendingQuiz("a1", "s1", entity.OpInsert))

	client.FailNext("create", remote.ErrNetwork)

	runner := NewRunner(eng, func() string { return "u1" },
		WithRetryDelay(10*time.Millisecond),
		WithRunnerLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	ctx, cancel := context.WithCancel(context.Background())
	runner.Start(ctx)
	runner.Trigger()

	require.Eventually(t, func() bool {
		return len(client.Docs("u1", remote.KindAssessments)) == 1
	}, 2*time.Second, 10*time.Millisecond, "retry must push the row after the injected failure")

	cancel()
	runner.Wait()
}

func TestRunOnce_ListFailureAfterClose(t *testing.T) {
	eng, st, _ := newTestEngine(t, Options{})
	require.NoError(t, st.Close())

	_, err := eng.RunOnce(context.Background(), "u1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, context.Canceled))
}
