package memorystore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PaulFidika/mealkit/cache"
)

func TestCacheTakeAndDeletePrefix(t *testing.T) {
	ctx := context.Background()
	c := NewCache(time.Minute)
	require.NoError(t, c.Set(ctx, "servicepoint:a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "servicepoint:b", []byte("2"), 0))
	require.NoError(t, c.Set(ctx, "challenge:x", []byte("3"), time.Minute))

	v, err := c.Take(ctx, "challenge:x")
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), v)
	_, err = c.Take(ctx, "challenge:x")
	assert.ErrorIs(t, err, cache.ErrMiss)

	require.NoError(t, c.Set(ctx, "challenge:y", []byte("4"), time.Minute))
	require.NoError(t, c.DeletePrefix(ctx, "servicepoint:"))
	for _, k := range []string{"servicepoint:a", "servicepoint:b"} {
		_, err := c.Get(ctx, k)
		assert.ErrorIs(t, err, cache.ErrMiss, k)
	}
	_, err = c.Get(ctx, "challenge:y")
	assert.NoError(t, err)
}
