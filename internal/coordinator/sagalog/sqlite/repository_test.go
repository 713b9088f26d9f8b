package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/quitq-checkout/internal/coordinator/sagalog"
)

func newRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "saga.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestRepository_SaveAndRead(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	started := sagalog.NewEntry(ctx, "saga-1", "", sagalog.StatusStarted, "", "PRICING", nil)
	started.Payload = `{"user_id":1}`
	require.NoError(t, repo.Save(ctx, started))
	require.NoError(t, repo.Save(ctx, sagalog.NewEntry(ctx, "saga-1", "order-1", sagalog.StatusStepDone, "Create_Order_Step", "ORDER_CREATED", nil)))
	require.NoError(t, repo.Save(ctx, sagalog.NewEntry(ctx, "saga-1", "order-1", sagalog.StatusFailed, "Record_Payment_Step", "ABORTED",
		[]string{"step Record_Payment_Step failed: boom"})))
	require.NoError(t, repo.Save(ctx, sagalog.NewEntry(ctx, "saga-2", "", sagalog.StatusStarted, "", "PRICING", nil)))

	latest, err := repo.GetLatest(ctx, "saga-1")
	require.NoError(t, err)
	assert.Equal(t, sagalog.StatusFailed, latest.Status)
	assert.Equal(t, "order-1", latest.OrderID)
	assert.Equal(t, "ABORTED", latest.State)
	assert.Equal(t, "Record_Payment_Step", latest.Step)
	assert.JSONEq(t, `["step Record_Payment_Step failed: boom"]`, latest.Errors)
	assert.Empty(t, latest.Payload)
	assert.Empty(t, latest.TraceID, "no active span")

	history, err := repo.History(ctx, "saga-1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, sagalog.StatusStarted, history[0].Status)
	assert.Equal(t, `{"user_id":1}`, history[0].Payload)
	assert.Equal(t, "[]", history[1].Errors)
	assert.False(t, history[0].UpdatedAt.IsZero())
}

func TestRepository_GetLatestUnknown(t *testing.T) {
	repo := newRepo(t)

	_, err := repo.GetLatest(context.Background(), "nope")
	assert.ErrorIs(t, err, sagalog.ErrNotFound)
}

func TestRepository_Ping(t *testing.T) {
	assert.NoError(t, newRepo(t).Ping(context.Background()))
}
