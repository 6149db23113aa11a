package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pagescope/pagescope/internal/analysis"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func TestCache_SetGet(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	c := New(time.Hour, clock)

	require.NoError(t, c.Set(context.Background(), "abc-123", []byte(`{"status":"completed"}`)))

	got, err := c.Get(context.Background(), "abc-123")
	require.NoError(t, err)
	require.Equal(t, []byte(`{"status":"completed"}`), got)
}

func TestCache_MissReturnsNotFound(t *testing.T) {
	t.Parallel()

	c := New(time.Hour, &fakeClock{now: time.Unix(1000, 0)})

	_, err := c.Get(context.Background(), "unknown")
	require.ErrorIs(t, err, analysis.ErrNotFound)
}

func TestCache_TTLExpiry(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	c := New(time.Hour, clock)

	require.NoError(t, c.Set(context.Background(), "abc-123", []byte("snapshot")))

	clock.now = clock.now.Add(time.Hour + time.Second)
	_, err := c.Get(context.Background(), "abc-123")
	require.ErrorIs(t, err, analysis.ErrNotFound)
}

func TestCache_SetReplacesEntry(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	c := New(time.Hour, clock)

	require.NoError(t, c.Set(context.Background(), "abc-123", []byte("old")))
	require.NoError(t, c.Set(context.Background(), "abc-123", []byte("new")))

	got, err := c.Get(context.Background(), "abc-123")
	require.NoError(t, err)
	require.Equal(t, []byte("new"), got)
}

func TestCache_Del(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	c := New(time.Hour, clock)

	require.NoError(t, c.Set(context.Background(), "abc-123", []byte("snapshot")))
	require.NoError(t, c.Del(context.Background(), "abc-123", "missing"))

	_, err := c.Get(context.Background(), "abc-123")
	require.ErrorIs(t, err, analysis.ErrNotFound)
}
