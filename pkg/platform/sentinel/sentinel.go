package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and the credential cache
// return these (optionally wrapped) and services translate them into coded
// domain errors.
//
//   - ErrNotFound: record or cache key does not exist
//   - ErrExpired: cache entry or code outlived its TTL
//   - ErrInvalidState: input the store cannot accept (e.g. non-positive TTL)
//   - ErrUnavailable: backing store timed out or is unreachable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
