package service

import (
	"context"

	dErrors "authority/pkg/domain-errors"
)

// IssueOTP stores a fresh one-time code for identifier and returns it. Code
// delivery is the caller's concern.
func (s *Service) IssueOTP(ctx context.Context, identifier string) (string, error) {
	if s.otp == nil {
		return "", dErrors.New(dErrors.CodeConfigurationMissing, "otp is not configured")
	}
	return s.otp.Issue(ctx, identifier, 0)
}

func (s *Service) VerifyOTP(ctx context.Context, identifier, code string, consume bool) (bool, error) {
	if s.otp == nil {
		return false, dErrors.New(dErrors.CodeConfigurationMissing, "otp is not configured")
	}
	return s.otp.Verify(ctx, identifier, code, consume)
}
