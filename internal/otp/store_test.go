package otp

import (
	"context"
	"testing"
	"time"

	"github.com/safar/tapcart/internal/testutil/redistest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	store := NewRedisStore(redistest.Setup(t))
	ctx := context.Background()
	phone := "+919876543210"

	res, err := store.Check(ctx, phone, "h", 3)
	require.NoError(t, err)
	assert.Equal(t, CheckMissing, res)

	require.NoError(t, store.Save(ctx, phone, "h", time.Minute, time.Minute))
	assert.ErrorIs(t, store.Save(ctx, phone, "h2", time.Minute, time.Minute), ErrCooldown)

	res, err = store.Check(ctx, phone, "wrong", 3)
	require.NoError(t, err)
	assert.Equal(t, CheckMismatch, res)

	res, err = store.Check(ctx, phone, "h", 3)
	require.NoError(t, err)
	assert.Equal(t, CheckOK, res)

	res, err = store.Check(ctx, phone, "h", 3)
	require.NoError(t, err)
	assert.Equal(t, CheckMismatch, res, "spent code must not verify twice")

	ok, err := store.IsVerified(ctx, phone)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.MarkVerified(ctx, phone, time.Minute))
	ok, err = store.IsVerified(ctx, phone)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStoreBurnsCode(t *testing.T) {
	store := NewRedisStore(redistest.Setup(t))
	ctx := context.Background()
	phone := "+14155550100"

	require.NoError(t, store.Save(ctx, phone, "h", time.Minute, 0))

	for i := 0; i < 2; i++ {
		res, err := store.Check(ctx, phone, "bad", 3)
		require.NoError(t, err)
		assert.Equal(t, CheckMismatch, res)
	}
	res, err := store.Check(ctx, phone, "bad", 3)
	require.NoError(t, err)
	assert.Equal(t, CheckBurned, res)

	res, err = store.Check(ctx, phone, "h", 3)
	require.NoError(t, err)
	assert.Equal(t, CheckMissing, res)
}
