package jwttoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"authority/internal/auth/models"
	id "authority/pkg/domain"
	dErrors "authority/pkg/domain-errors"
)

type JWTServiceSuite struct {
	suite.Suite
	now     time.Time
	service *JWTService
	user    *models.User
}

func TestJWTServiceSuite(t *testing.T) {
	suite.Run(t, new(JWTServiceSuite))
}

func (s *JWTServiceSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.service = s.newService(func() time.Time { return s.now })
	s.user = &models.User{
		ID:          id.UserID(uuid.New()),
		Email:       "ada@example.com",
		Phone:       "+15551234567",
		FirstName:   "Ada",
		LastName:    "Lovelace",
		Preferences: map[string]string{"theme": "dark"},
		Status:      models.UserStatusActive,
		IsActive:    true,
		IsVerified:  true,
	}
}

func (s *JWTServiceSuite) newService(clock func() time.Time) *JWTService {
	svc, err := NewJWTService(testConfig(), WithClock(clock))
	s.Require().NoError(err)
	return svc
}

func testConfig() Config {
	return Config{
		Secret:     "test-secret-key",
		Algorithm:  "HS256",
		Issuer:     "authority",
		Audience:   "authority",
		AccessTTL:  15 * time.Minute,
		SessionTTL: time.Hour,
		RefreshTTL: 24 * time.Hour,
	}
}

func (s *JWTServiceSuite) TestNewJWTService() {
	s.Run("missing secret is a configuration error", func() {
		cfg := testConfig()
		cfg.Secret = ""
		_, err := NewJWTService(cfg)
		s.True(dErrors.HasCode(err, dErrors.CodeConfigurationMissing))
	})

	s.Run("unsupported algorithm is rejected", func() {
		cfg := testConfig()
		cfg.Algorithm = "RS256"
		_, err := NewJWTService(cfg)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("empty algorithm defaults to HS256", func() {
		cfg := testConfig()
		cfg.Algorithm = ""
		svc, err := NewJWTService(cfg)
		s.Require().NoError(err)
		s.Equal("HS256", svc.method.Alg())
	})

	s.Run("HS512 is accepted", func() {
		cfg := testConfig()
		cfg.Algorithm = "HS512"
		svc, err := NewJWTService(cfg)
		s.Require().NoError(err)
		tokens, err := svc.IssueAll(s.user, "")
		s.Require().NoError(err)
		_, err = svc.ParseAccess(tokens.AccessToken)
		s.NoError(err)
	})
}

func (s *JWTServiceSuite) TestIssueAll() {
	tokens, err := s.service.IssueAll(s.user, "https://app.example.com")
	s.Require().NoError(err)

	s.Run("all three share one session id", func() {
		access, err := s.service.ParseAccess(tokens.AccessToken)
		s.Require().NoError(err)
		refresh, err := s.service.ParseRefresh(tokens.RefreshToken)
		s.Require().NoError(err)
		session, err := s.service.ParseSession(tokens.SessionToken)
		s.Require().NoError(err)

		s.Equal(tokens.SessionID.String(), access.SessionID)
		s.Equal(tokens.SessionID.String(), refresh.SessionID)
		s.Equal(tokens.SessionID.String(), session.SessionID)
	})

	s.Run("jtis are distinct", func() {
		access, _ := s.service.ParseAccess(tokens.AccessToken)
		refresh, _ := s.service.ParseRefresh(tokens.RefreshToken)
		session, _ := s.service.ParseSession(tokens.SessionToken)
		s.NotEqual(access.ID, refresh.ID)
		s.NotEqual(access.ID, session.ID)
		s.NotEqual(refresh.ID, session.ID)
	})

	s.Run("expiries follow configured lifetimes", func() {
		s.Equal(s.now.Add(15*time.Minute), tokens.AccessExpiresAt)
		s.Equal(s.now.Add(time.Hour), tokens.SessionExpiresAt)
		s.Equal(s.now.Add(24*time.Hour), tokens.RefreshExpiresAt)
	})

	s.Run("access claims carry identity and flags", func() {
		access, err := s.service.ParseAccess(tokens.AccessToken)
		s.Require().NoError(err)
		s.Equal(s.user.ID.String(), access.Subject)
		s.Equal(s.user.Email, access.Email)
		s.Equal(models.TokenKindAccess, access.Type)
		s.Equal("https://app.example.com", access.Origin)
		s.Equal(SchemaVersion, access.Version)
		s.True(access.IsActive)
		s.True(access.IsVerified)
		s.Equal(jwt.ClaimStrings{"authority"}, access.Audience)
	})

	s.Run("session snapshot restores the profile", func() {
		session, err := s.service.ParseSession(tokens.SessionToken)
		s.Require().NoError(err)
		snap, err := session.Snapshot()
		s.Require().NoError(err)
		s.Equal(s.user.ID, snap.ID)
		s.Equal("Ada", snap.FirstName)
		s.Equal("dark", snap.Preferences["theme"])
		s.Equal(models.UserStatusActive, snap.Status)
		s.True(snap.IsActive)
	})

	s.Run("nil user is rejected", func() {
		_, err := s.service.IssueAll(nil, "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *JWTServiceSuite) TestOriginOmittedWhenEmpty() {
	tokens, err := s.service.IssueAll(s.user, "")
	s.Require().NoError(err)

	mapClaims := jwt.MapClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(tokens.AccessToken, mapClaims)
	s.Require().NoError(err)
	_, present := mapClaims["origin"]
	s.False(present)
	s.Equal("access", mapClaims["type"])
}

func (s *JWTServiceSuite) TestParseRejectsWrongKind() {
	tokens, err := s.service.IssueAll(s.user, "")
	s.Require().NoError(err)

	_, err = s.service.ParseAccess(tokens.RefreshToken)
	s.Require().ErrorIs(err, dErrors.New(dErrors.CodeTokenMalformed, "unexpected token type"))

	_, err = s.service.ParseRefresh(tokens.SessionToken)
	s.True(dErrors.HasCode(err, dErrors.CodeTokenMalformed))

	_, err = s.service.ParseSession(tokens.AccessToken)
	s.True(dErrors.HasCode(err, dErrors.CodeTokenMalformed))
}

func (s *JWTServiceSuite) TestParseDispatchesOnType() {
	tokens, err := s.service.IssueAll(s.user, "")
	s.Require().NoError(err)

	cases := []struct {
		raw  string
		kind models.TokenKind
	}{
		{tokens.AccessToken, models.TokenKindAccess},
		{tokens.RefreshToken, models.TokenKindRefresh},
		{tokens.SessionToken, models.TokenKindSession},
	}
	for _, tc := range cases {
		s.Run(string(tc.kind), func() {
			parsed, err := s.service.Parse(tc.raw)
			s.Require().NoError(err)
			s.Equal(tc.kind, parsed.Kind)
			s.Equal(tc.kind, parsed.Claims.Type)
			s.Equal(tc.kind == models.TokenKindAccess, parsed.Access != nil)
			s.Equal(tc.kind == models.TokenKindRefresh, parsed.Refresh != nil)
			s.Equal(tc.kind == models.TokenKindSession, parsed.Session != nil)
		})
	}
}

func (s *JWTServiceSuite) TestExpiredToken() {
	current := s.now
	svc := s.newService(func() time.Time { return current })
	tokens, err := svc.IssueAll(s.user, "")
	s.Require().NoError(err)

	current = s.now.Add(16 * time.Minute)
	_, err = svc.ParseAccess(tokens.AccessToken)
	s.Require().ErrorIs(err, dErrors.New(dErrors.CodeTokenExpired, "token has expired"))

	// session lifetime is longer, so it still verifies
	_, err = svc.ParseSession(tokens.SessionToken)
	s.NoError(err)
}

func (s *JWTServiceSuite) TestTamperedOrForeignTokens() {
	tokens, err := s.service.IssueAll(s.user, "")
	s.Require().NoError(err)

	s.Run("garbage", func() {
		_, err := s.service.Parse("not-a-jwt")
		s.True(dErrors.HasCode(err, dErrors.CodeTokenMalformed))
	})

	s.Run("different secret", func() {
		cfg := testConfig()
		cfg.Secret = "another-secret"
		other, err := NewJWTService(cfg, WithClock(func() time.Time { return s.now }))
		s.Require().NoError(err)
		_, err = other.ParseAccess(tokens.AccessToken)
		s.True(dErrors.HasCode(err, dErrors.CodeTokenMalformed))
	})

	s.Run("different audience", func() {
		cfg := testConfig()
		cfg.Audience = "someone-else"
		other, err := NewJWTService(cfg, WithClock(func() time.Time { return s.now }))
		s.Require().NoError(err)
		_, err = other.ParseAccess(tokens.AccessToken)
		s.True(dErrors.HasCode(err, dErrors.CodeTokenMalformed))
	})

	s.Run("wrong schema version", func() {
		claims := s.service.base(models.TokenKindAccess, s.user.ID, id.NewSessionID(), "", s.now, s.now.Add(time.Minute))
		claims.Version = SchemaVersion + 1
		raw, err := s.service.sign(AccessClaims{TokenClaims: claims})
		s.Require().NoError(err)
		_, err = s.service.ParseAccess(raw)
		s.Require().ErrorIs(err, dErrors.New(dErrors.CodeTokenMalformed, "invalid token claims"))
	})

	s.Run("unknown type", func() {
		claims := s.service.base("id_token", s.user.ID, id.NewSessionID(), "", s.now, s.now.Add(time.Minute))
		raw, err := s.service.sign(claims)
		s.Require().NoError(err)
		_, err = s.service.Parse(raw)
		s.Require().ErrorIs(err, dErrors.New(dErrors.CodeTokenMalformed, "unknown token type"))
	})
}

func TestToTokenRef(t *testing.T) {
	svc, err := NewJWTService(testConfig())
	require.NoError(t, err)
	user := &models.User{ID: id.UserID(uuid.New()), Email: "x@example.com", IsActive: true}
	tokens, err := svc.IssueAll(user, "")
	require.NoError(t, err)

	parsed, err := svc.Parse(tokens.RefreshToken)
	require.NoError(t, err)

	ref, err := ToTokenRef(tokens.RefreshToken, parsed.Claims)
	require.NoError(t, err)
	assert.Equal(t, user.ID, ref.UserID)
	assert.Equal(t, tokens.SessionID, ref.SessionID)
	assert.Equal(t, models.TokenKindRefresh, ref.Kind)
	assert.Equal(t, parsed.Claims.ID, ref.JTI)
	assert.Equal(t, tokens.RefreshToken, ref.Raw)

	_, err = ToTokenRef("raw", &TokenClaims{SessionID: "nope"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTokenMalformed))
}
