package credential

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"authority/pkg/platform/sentinel"
)

type RedisStoreSuite struct {
	suite.Suite
	server *miniredis.Miniredis
	client *redis.Client
	store  *RedisStore
}

func (s *RedisStoreSuite) SetupTest() {
	s.server = miniredis.RunT(s.T())
	s.client = redis.NewClient(&redis.Options{Addr: s.server.Addr()})
	s.store = NewRedisStore(s.client)
}

func (s *RedisStoreSuite) TearDownTest() {
	_ = s.client.Close()
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) TestSetGet() {
	ctx := context.Background()

	s.Run("stores value with ttl", func() {
		s.Require().NoError(s.store.Set(ctx, "k1", "v1", 2*time.Minute))

		got, err := s.store.Get(ctx, "k1")
		s.Require().NoError(err)
		s.Equal("v1", got)

		ttl := s.server.TTL("k1")
		s.True(ttl > 0 && ttl <= 2*time.Minute, "ttl %v", ttl)
	})

	s.Run("overwrites existing value", func() {
		s.Require().NoError(s.store.Set(ctx, "k2", "old", time.Minute))
		s.Require().NoError(s.store.Set(ctx, "k2", "new", time.Minute))

		got, err := s.store.Get(ctx, "k2")
		s.Require().NoError(err)
		s.Equal("new", got)
	})

	s.Run("missing key is not found", func() {
		_, err := s.store.Get(ctx, "missing")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("expired key is not found", func() {
		s.Require().NoError(s.store.Set(ctx, "short", "v", time.Second))
		s.server.FastForward(2 * time.Second)

		_, err := s.store.Get(ctx, "short")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("non positive ttl is rejected", func() {
		err := s.store.Set(ctx, "k", "v", 0)
		s.ErrorIs(err, sentinel.ErrInvalidState)
	})
}

func (s *RedisStoreSuite) TestSetMany() {
	ctx := context.Background()
	s.Require().NoError(s.store.SetMany(ctx, map[string]string{"a": "1", "b": "2"}, time.Minute))

	for _, k := range []string{"a", "b"} {
		ok, err := s.store.Exists(ctx, k)
		s.Require().NoError(err)
		s.True(ok, k)
		s.True(s.server.TTL(k) > 0)
	}

	s.NoError(s.store.SetMany(ctx, nil, time.Minute))
}

func (s *RedisStoreSuite) TestDeleteAndExists() {
	ctx := context.Background()
	s.Require().NoError(s.store.Set(ctx, "a", "1", time.Minute))
	s.Require().NoError(s.store.Set(ctx, "b", "1", time.Minute))

	s.Require().NoError(s.store.Delete(ctx, "a", "b", "never-set"))

	ok, err := s.store.Exists(ctx, "a")
	s.Require().NoError(err)
	s.False(ok)
	s.NoError(s.store.Delete(ctx))
}

func (s *RedisStoreSuite) TestKeyPrefix() {
	ctx := context.Background()
	store := NewRedisStore(s.client, WithKeyPrefix("authority:"))
	s.Require().NoError(store.Set(ctx, "k", "v", time.Minute))

	s.True(s.server.Exists("authority:k"))
	s.False(s.server.Exists("k"))
}

func (s *RedisStoreSuite) TestUnavailable() {
	ctx := context.Background()
	s.server.Close()

	_, err := s.store.Get(ctx, "k")
	s.ErrorIs(err, sentinel.ErrUnavailable)

	_, err = s.store.Exists(ctx, "k")
	s.ErrorIs(err, sentinel.ErrUnavailable)

	err = s.store.Set(ctx, "k", "v", time.Minute)
	s.ErrorIs(err, sentinel.ErrUnavailable)
}
