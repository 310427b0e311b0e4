package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"authority/pkg/platform/circuit"
	"authority/pkg/platform/sentinel"
)

// BreakerStore stops calling an unreachable backend. While the breaker is
// open every call fails at once with sentinel.ErrUnavailable, except one probe
// per cooldown. Only ErrUnavailable counts as a failure; ErrNotFound is a
// healthy answer.
type BreakerStore struct {
	next    Store
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func WithBreaker(next Store, breaker *circuit.Breaker, logger *slog.Logger) Store {
	if breaker == nil {
		return next
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BreakerStore{next: next, breaker: breaker, logger: logger}
}

func (s *BreakerStore) Get(ctx context.Context, key string) (string, error) {
	if err := s.allow(); err != nil {
		return "", err
	}
	v, err := s.next.Get(ctx, key)
	return v, s.record(ctx, err)
}

func (s *BreakerStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.allow(); err != nil {
		return err
	}
	return s.record(ctx, s.next.Set(ctx, key, value, ttl))
}

func (s *BreakerStore) SetMany(ctx context.Context, entries map[string]string, ttl time.Duration) error {
	if err := s.allow(); err != nil {
		return err
	}
	return s.record(ctx, s.next.SetMany(ctx, entries, ttl))
}

func (s *BreakerStore) Delete(ctx context.Context, keys ...string) error {
	if err := s.allow(); err != nil {
		return err
	}
	return s.record(ctx, s.next.Delete(ctx, keys...))
}

func (s *BreakerStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.allow(); err != nil {
		return false, err
	}
	ok, err := s.next.Exists(ctx, key)
	return ok, s.record(ctx, err)
}

func (s *BreakerStore) allow() error {
	if s.breaker.Allow() {
		return nil
	}
	return fmt.Errorf("circuit %s open: %w", s.breaker.Name(), sentinel.ErrUnavailable)
}

func (s *BreakerStore) record(ctx context.Context, err error) error {
	if errors.Is(err, sentinel.ErrUnavailable) {
		if _, change := s.breaker.RecordFailure(); change.Opened {
			s.logger.ErrorContext(ctx, "credential store circuit opened",
				"circuit", s.breaker.Name(),
				"error", err,
			)
		}
		return err
	}
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "credential store circuit closed", "circuit", s.breaker.Name())
	}
	return err
}
