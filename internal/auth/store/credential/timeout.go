package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"authority/pkg/platform/sentinel"
)

// TimeoutStore bounds every operation of the wrapped store. A call that runs
// past the bound fails with sentinel.ErrUnavailable so callers apply their
// degradation policy instead of hanging the request.
type TimeoutStore struct {
	next    Store
	timeout time.Duration
}

func WithTimeout(next Store, timeout time.Duration) Store {
	if timeout <= 0 {
		return next
	}
	return &TimeoutStore{next: next, timeout: timeout}
}

func (s *TimeoutStore) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	v, err := s.next.Get(ctx, key)
	return v, s.translate(ctx, err)
}

func (s *TimeoutStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.translate(ctx, s.next.Set(ctx, key, value, ttl))
}

func (s *TimeoutStore) SetMany(ctx context.Context, entries map[string]string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.translate(ctx, s.next.SetMany(ctx, entries, ttl))
}

func (s *TimeoutStore) Delete(ctx context.Context, keys ...string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.translate(ctx, s.next.Delete(ctx, keys...))
}

func (s *TimeoutStore) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ok, err := s.next.Exists(ctx, key)
	return ok, s.translate(ctx, err)
}

func (s *TimeoutStore) translate(_ context.Context, err error) error {
	if err == nil || errors.Is(err, sentinel.ErrUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("credential store timed out after %s: %w: %w", s.timeout, sentinel.ErrUnavailable, err)
	}
	return err
}
