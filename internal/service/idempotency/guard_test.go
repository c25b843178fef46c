package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
	"github.com/vladislavdragonenkov/shiftlab/internal/storage/memory"
)

func TestGuard_Lifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	guard := NewGuard(memory.NewIdempotencyRepository(), time.Hour, func() time.Time { return now })
	require.True(t, guard.Enabled())

	hash := RequestHash("create", []byte(`{"a":1}`))

	record, fresh, err := guard.Begin(ctx, " key-1 ", hash)
	require.NoError(t, err)
	require.True(t, fresh)
	assert.Equal(t, "key-1", record.Key)
	assert.WithinDuration(t, now.Add(time.Hour), record.TTLAt, time.Second)

	_, fresh, err = guard.Begin(ctx, "key-1", hash)
	require.ErrorIs(t, err, ErrInProgress)
	require.False(t, fresh)

	require.NoError(t, guard.Complete(ctx, "key-1", []byte(`{"ok":true}`), 201))

	record, fresh, err = guard.Begin(ctx, "key-1", hash)
	require.NoError(t, err)
	require.False(t, fresh)
	assert.Equal(t, domain.IdempotencyStatusDone, record.Status)
	assert.Equal(t, 201, record.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(record.ResponseBody))

	_, _, err = guard.Begin(ctx, "key-1", RequestHash("create", []byte(`{"a":2}`)))
	require.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)
}

func TestGuard_FailedReplay(t *testing.T) {
	ctx := context.Background()
	guard := NewGuard(memory.NewIdempotencyRepository(), 0, nil)
	hash := RequestHash("create", nil)

	_, fresh, err := guard.Begin(ctx, "key-2", hash)
	require.NoError(t, err)
	require.True(t, fresh)
	require.NoError(t, guard.Fail(ctx, "key-2", []byte(`{"code":3}`), 3))

	record, fresh, err := guard.Begin(ctx, "key-2", hash)
	require.NoError(t, err)
	require.False(t, fresh)
	assert.Equal(t, domain.IdempotencyStatusFailed, record.Status)
	assert.Equal(t, 3, record.StatusCode)
}

func TestGuard_Errors(t *testing.T) {
	guard := NewGuard(memory.NewIdempotencyRepository(), 0, nil)

	_, _, err := guard.Begin(context.Background(), "  ", "hash")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = guard.Begin(ctx, "key", "hash")
	require.True(t, errors.Is(err, context.Canceled))

	var nilGuard *Guard
	assert.False(t, nilGuard.Enabled())
	assert.False(t, NewGuard(nil, 0, nil).Enabled())
}

func TestRequestHash(t *testing.T) {
	a := RequestHash("create", []byte("x"))
	assert.Len(t, a, 64)
	assert.Equal(t, a, RequestHash("create", []byte("x")))
	assert.NotEqual(t, a, RequestHash("update", []byte("x")))
	assert.NotEqual(t, a, RequestHash("create", []byte("y")))
}

func TestDerivedID(t *testing.T) {
	a := DerivedID("key", "hash-1")
	assert.Equal(t, a, DerivedID(" key ", "hash-1"))
	assert.NotEqual(t, a, DerivedID("key", "hash-2"))
	assert.NotEqual(t, a, DerivedID("other", "hash-1"))
}
