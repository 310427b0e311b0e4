package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authority/internal/platform/config"
	"authority/pkg/platform/sentinel"
)

func TestNew(t *testing.T) {
	t.Run("empty url means not configured", func(t *testing.T) {
		client, err := New(context.Background(), config.RedisConfig{})
		require.NoError(t, err)
		assert.Nil(t, client)
	})

	t.Run("connects and reports health", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client, err := New(context.Background(), config.RedisConfig{URL: "redis://" + mr.Addr(), PoolSize: 2})
		require.NoError(t, err)
		t.Cleanup(func() { _ = client.Close() })

		assert.NoError(t, client.Health(context.Background()))
	})

	t.Run("invalid url", func(t *testing.T) {
		_, err := New(context.Background(), config.RedisConfig{URL: "://bad"})
		assert.Error(t, err)
	})
}

func TestHealth(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := New(context.Background(), config.RedisConfig{
		URL:         "redis://" + mr.Addr(),
		DialTimeout: 200 * time.Millisecond,
		ReadTimeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	mr.Close()
	assert.ErrorIs(t, client.Health(context.Background()), sentinel.ErrUnavailable)

	var unset *Client
	assert.NoError(t, unset.Health(context.Background()))
}
