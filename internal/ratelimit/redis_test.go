package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

type RedisWindowSuite struct {
	suite.Suite
	mini   *miniredis.Miniredis
	clock  *fakeClock
	window *RedisWindow
	ctx    context.Context
}

func TestRedisWindowSuite(t *testing.T) {
	suite.Run(t, new(RedisWindowSuite))
}

func (s *RedisWindowSuite) SetupTest() {
	s.mini = miniredis.RunT(s.T())
	client := redis.NewClient(&redis.Options{Addr: s.mini.Addr()})
	s.clock = newFakeClock()
	s.window = NewRedisWindowWithClient(client, 10, time.Minute).WithClock(s.clock.Now)
	s.ctx = context.Background()
}

func (s *RedisWindowSuite) TearDownTest() {
	_ = s.window.Close()
	s.mini.Close()
}

func (s *RedisWindowSuite) TestEleventhDenied() {
	for i := 0; i < 10; i++ {
		d, err := s.window.Allow(s.ctx, "alice")
		s.Require().NoError(err)
		s.Require().True(d.Allowed, "submission %d", i+1)
		s.Equal(9-i, d.Remaining)
		s.clock.Advance(time.Second)
	}

	d, err := s.window.Allow(s.ctx, "alice")
	s.Require().NoError(err)
	s.False(d.Allowed)
	s.Equal(50*time.Second, d.RetryAfter)

	s.clock.Advance(50 * time.Second)
	d, err = s.window.Allow(s.ctx, "alice")
	s.Require().NoError(err)
	s.True(d.Allowed)
}

func (s *RedisWindowSuite) TestKeysAreIndependentAndExpire() {
	_, err := s.window.Allow(s.ctx, "alice")
	s.Require().NoError(err)

	s.True(s.mini.Exists(windowKey("alice")))
	s.False(s.mini.Exists(windowKey("bob")))
	s.Equal(time.Minute, s.mini.TTL(windowKey("alice")))

	d, err := s.window.Allow(s.ctx, "bob")
	s.Require().NoError(err)
	s.Equal(9, d.Remaining)
}

func (s *RedisWindowSuite) TestRedisErrorSurfaces() {
	s.mini.SetError("boom")
	_, err := s.window.Allow(s.ctx, "alice")
	s.Error(err)
}
