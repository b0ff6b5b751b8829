package allocator

import (
	"context"
	"testing"

	"stockroom/internal/apperr"
	"stockroom/internal/testutil"
	"stockroom/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAllocator(t *testing.T) *Service {
	t.Helper()
	db := testutil.NewTestDB(t)
	svc, err := New(db, logger.Nop())
	require.NoError(t, err)
	return svc
}

func TestAcquireIssuesSequentialValues(t *testing.T) {
	alloc := newAllocator(t)
	ctx := context.Background()

	for want := int64(1); want <= 5; want++ {
		got, err := alloc.Acquire(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestReleasedValueIsReissuedSmallestFirst(t *testing.T) {
	alloc := newAllocator(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := alloc.Acquire(ctx) // 1, 2, 3
		require.NoError(t, err)
	}

	require.NoError(t, alloc.Release(ctx, 2))

	got, err := alloc.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got, "recycled value should be reissued before a fresh one")

	got, err = alloc.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got, "pool exhausted, counter continues past its high-water mark")
}

func TestReleaseMultipleReissuesInAscendingOrder(t *testing.T) {
	alloc := newAllocator(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := alloc.Acquire(ctx)
		require.NoError(t, err)
	}

	require.NoError(t, alloc.Release(ctx, 4))
	require.NoError(t, alloc.Release(ctx, 1))
	require.NoError(t, alloc.Release(ctx, 3))

	var got []int64
	for i := 0; i < 3; i++ {
		v, err := alloc.Acquire(ctx)
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.Equal(t, []int64{1, 3, 4}, got)
}

func TestDoubleReleaseIsConflict(t *testing.T) {
	alloc := newAllocator(t)
	ctx := context.Background()

	_, err := alloc.Acquire(ctx)
	require.NoError(t, err)

	require.NoError(t, alloc.Release(ctx, 1))

	err = alloc.Release(ctx, 1)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestReleaseRejectsNonPositiveValues(t *testing.T) {
	alloc := newAllocator(t)
	ctx := context.Background()

	for _, v := range []int64{0, -1} {
		err := alloc.Release(ctx, v)
		require.Error(t, err)
		assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	}
}

func TestPeekReportsStateWithoutMutating(t *testing.T) {
	alloc := newAllocator(t)
	ctx := context.Background()

	snap, err := alloc.Peek(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.Counter)
	assert.Equal(t, int64(0), snap.RecycledCount)
	assert.Equal(t, int64(1), snap.NextFresh)

	for i := 0; i < 3; i++ {
		_, err := alloc.Acquire(ctx)
		require.NoError(t, err)
	}
	require.NoError(t, alloc.Release(ctx, 2))

	snap, err = alloc.Peek(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.Counter)
	assert.Equal(t, int64(1), snap.RecycledCount)
	assert.Equal(t, int64(2), snap.NextFresh, "smallest recycled value is next")

	// Peek must not consume anything.
	got, err := alloc.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)
}
