package jwttoken

import (
	"authority/internal/auth/models"
	dErrors "authority/pkg/domain-errors"
)

// ToTokenRef converts verified claims into the reference the revocation
// registry checks. Subject and session_id must parse as IDs.
func ToTokenRef(raw string, claims *TokenClaims) (models.TokenRef, error) {
	userID, err := claims.UserID()
	if err != nil {
		return models.TokenRef{}, dErrors.Wrap(err, dErrors.CodeTokenMalformed, "invalid token subject")
	}
	sessionID, err := claims.Session()
	if err != nil {
		return models.TokenRef{}, dErrors.Wrap(err, dErrors.CodeTokenMalformed, "invalid token session")
	}
	return models.TokenRef{
		Raw:       raw,
		Kind:      claims.Type,
		JTI:       claims.ID,
		SessionID: sessionID,
		UserID:    userID,
	}, nil
}
