// Package password hashes and verifies user secrets with bcrypt.
package password

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	dErrors "authority/pkg/domain-errors"
)

// Hasher is a one-way salted hash and verify primitive.
type Hasher struct {
	cost  int
	dummy []byte
}

func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	// GenerateFromPassword only fails for oversized input or a bad cost,
	// neither possible here.
	dummy, _ := bcrypt.GenerateFromPassword([]byte("authority:unused"), cost)
	return &Hasher{cost: cost, dummy: dummy}
}

// Hash creates a bcrypt hash of the provided secret.
func (h *Hasher) Hash(ctx context.Context, secret string) (string, error) {
	if secret == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "secret cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "secret is too long")
		}
		return "", fmt.Errorf("could not hash secret: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether secret matches hash. A malformed hash or an empty
// input is a mismatch, never an error the caller has to branch on.
func (h *Hasher) Verify(ctx context.Context, secret, hash string) bool {
	if secret == "" || hash == "" || ctx.Err() != nil {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// VerifyDummy runs one comparison at the configured cost and always reports
// false. Callers use it when there is no stored hash to compare against, so
// a missing account costs as much time as a wrong secret.
func (h *Hasher) VerifyDummy(_ context.Context, secret string) bool {
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(secret))
	return false
}
