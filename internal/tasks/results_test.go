package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResultStore(t *testing.T) (*ResultStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewResultStore(rdb), mr
}

func TestResultStoreRoundTrip(t *testing.T) {
	store, _ := newTestResultStore(t)
	ctx := context.Background()

	want := Result{
		Status:      StatusSent,
		To:          "a@x.com",
		Subject:     "hello",
		CompletedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.Set(ctx, "task-1", want))

	got, found, err := store.Get(ctx, "task-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.To, got.To)
	assert.Equal(t, want.Subject, got.Subject)
	assert.True(t, want.CompletedAt.Equal(got.CompletedAt))
}

func TestResultStoreMissingReadsAsNotFound(t *testing.T) {
	store, _ := newTestResultStore(t)

	_, found, err := store.Get(context.Background(), "never-enqueued")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestResultStoreEntriesExpire(t *testing.T) {
	store, mr := newTestResultStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "task-1", Result{Status: StatusSent}))
	mr.FastForward(defaultResultTTL + time.Minute)

	_, found, err := store.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.False(t, found)
}
