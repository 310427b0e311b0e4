package jwttoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"authority/internal/auth/models"
	id "authority/pkg/domain"
	dErrors "authority/pkg/domain-errors"
)

// Config carries the signing secret and the three token lifetimes.
type Config struct {
	Secret     string
	Algorithm  string
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	SessionTTL time.Duration
	RefreshTTL time.Duration
}

// JWTService handles token creation and validation for all three kinds.
type JWTService struct {
	signingKey []byte
	method     jwt.SigningMethod
	issuer     string
	audience   string
	accessTTL  time.Duration
	sessionTTL time.Duration
	refreshTTL time.Duration
	clock      func() time.Time
	newID      func() string
}

type Option func(*JWTService)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(s *JWTService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewJWTService fails with CodeConfigurationMissing when no secret is set.
func NewJWTService(cfg Config, opts ...Option) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, dErrors.New(dErrors.CodeConfigurationMissing, "token signing secret is not configured")
	}
	alg := cfg.Algorithm
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	var method jwt.SigningMethod
	switch alg {
	case jwt.SigningMethodHS256.Alg():
		method = jwt.SigningMethodHS256
	case jwt.SigningMethodHS384.Alg():
		method = jwt.SigningMethodHS384
	case jwt.SigningMethodHS512.Alg():
		method = jwt.SigningMethodHS512
	default:
		return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unsupported signing algorithm %q", alg))
	}
	if cfg.AccessTTL <= 0 || cfg.SessionTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "token lifetimes must be positive")
	}

	s := &JWTService{
		signingKey: []byte(cfg.Secret),
		method:     method,
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		accessTTL:  cfg.AccessTTL,
		sessionTTL: cfg.SessionTTL,
		refreshTTL: cfg.RefreshTTL,
		clock:      time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// TTL returns the natural lifetime of a token kind.
func (s *JWTService) TTL(kind models.TokenKind) time.Duration {
	switch kind {
	case models.TokenKindAccess:
		return s.accessTTL
	case models.TokenKindSession:
		return s.sessionTTL
	default:
		return s.refreshTTL
	}
}

// IssueAll mints access, refresh and session tokens under one fresh
// session_id. Either all three are returned or none.
func (s *JWTService) IssueAll(user *models.User, origin string) (*models.CredentialTuple, error) {
	if user == nil || user.ID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "cannot issue tokens without a principal")
	}
	now := s.clock()
	sessionID := id.NewSessionID()

	accessExp := now.Add(s.accessTTL)
	access := AccessClaims{
		TokenClaims: s.base(models.TokenKindAccess, user.ID, sessionID, origin, now, accessExp),
		Email:       user.Email,
		Phone:       user.Phone,
		IsActive:    user.IsActive,
		IsVerified:  user.IsVerified,
	}

	refreshExp := now.Add(s.refreshTTL)
	refresh := RefreshClaims{
		TokenClaims: s.base(models.TokenKindRefresh, user.ID, sessionID, origin, now, refreshExp),
	}

	sessionExp := now.Add(s.sessionTTL)
	session := SessionClaims{
		TokenClaims: s.base(models.TokenKindSession, user.ID, sessionID, origin, now, sessionExp),
		Email:       user.Email,
		Phone:       user.Phone,
		Profile: SessionProfile{
			FirstName:   user.FirstName,
			LastName:    user.LastName,
			Email:       user.Email,
			Phone:       user.Phone,
			Preferences: user.Preferences,
			Status:      string(user.Status),
		},
		Flags: SessionFlags{IsActive: user.IsActive, IsVerified: user.IsVerified},
	}

	accessToken, err := s.sign(access)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.sign(refresh)
	if err != nil {
		return nil, err
	}
	sessionToken, err := s.sign(session)
	if err != nil {
		return nil, err
	}

	return &models.CredentialTuple{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		SessionToken:     sessionToken,
		SessionID:        sessionID,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		SessionExpiresAt: sessionExp,
	}, nil
}

func (s *JWTService) base(kind models.TokenKind, userID id.UserID, sessionID id.SessionID, origin string, now, exp time.Time) TokenClaims {
	claims := TokenClaims{
		Type:      kind,
		SessionID: sessionID.String(),
		Origin:    origin,
		Version:   SchemaVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ID:        s.newID(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    s.issuer,
		},
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}
	return claims
}

func (s *JWTService) sign(claims jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// -----------------------------------------------------------------------------
// Parsing
// -----------------------------------------------------------------------------

// Parsed is a verified token of any kind. Exactly one of Access, Refresh or
// Session is set, matching Kind.
type Parsed struct {
	Kind    models.TokenKind
	Claims  *TokenClaims
	Access  *AccessClaims
	Refresh *RefreshClaims
	Session *SessionClaims
}

func (s *JWTService) ParseAccess(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := s.parseInto(raw, claims, &claims.TokenClaims, models.TokenKindAccess); err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *JWTService) ParseRefresh(raw string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := s.parseInto(raw, claims, &claims.TokenClaims, models.TokenKindRefresh); err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *JWTService) ParseSession(raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if err := s.parseInto(raw, claims, &claims.TokenClaims, models.TokenKindSession); err != nil {
		return nil, err
	}
	return claims, nil
}

// Parse verifies a token of unknown kind, then decodes it into the one
// schema its "type" claim declares.
func (s *JWTService) Parse(raw string) (*Parsed, error) {
	peek := &TokenClaims{}
	if err := s.verify(raw, peek); err != nil {
		return nil, err
	}

	switch peek.Type {
	case models.TokenKindAccess:
		c, err := s.ParseAccess(raw)
		if err != nil {
			return nil, err
		}
		return &Parsed{Kind: peek.Type, Claims: &c.TokenClaims, Access: c}, nil
	case models.TokenKindRefresh:
		c, err := s.ParseRefresh(raw)
		if err != nil {
			return nil, err
		}
		return &Parsed{Kind: peek.Type, Claims: &c.TokenClaims, Refresh: c}, nil
	case models.TokenKindSession:
		c, err := s.ParseSession(raw)
		if err != nil {
			return nil, err
		}
		return &Parsed{Kind: peek.Type, Claims: &c.TokenClaims, Session: c}, nil
	default:
		return nil, dErrors.New(dErrors.CodeTokenMalformed, "unknown token type")
	}
}

func (s *JWTService) parseInto(raw string, claims jwt.Claims, common *TokenClaims, want models.TokenKind) error {
	if err := s.verify(raw, claims); err != nil {
		return err
	}
	if common.Type != want {
		return dErrors.New(dErrors.CodeTokenMalformed, "unexpected token type")
	}
	return nil
}

// verify checks signature, algorithm, expiry, issuer, audience and schema.
func (s *JWTService) verify(raw string, claims jwt.Claims) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithTimeFunc(s.clock),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}

	parsed, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.signingKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return dErrors.New(dErrors.CodeTokenExpired, "token has expired")
		}
		return dErrors.New(dErrors.CodeTokenMalformed, "invalid token")
	}
	if !parsed.Valid {
		return dErrors.New(dErrors.CodeTokenMalformed, "invalid token")
	}

	common, ok := commonClaims(claims)
	if !ok || common.Version != SchemaVersion || common.Subject == "" || common.SessionID == "" {
		return dErrors.New(dErrors.CodeTokenMalformed, "invalid token claims")
	}
	return nil
}

func commonClaims(claims jwt.Claims) (*TokenClaims, bool) {
	switch c := claims.(type) {
	case *TokenClaims:
		return c, true
	case *AccessClaims:
		return &c.TokenClaims, true
	case *RefreshClaims:
		return &c.TokenClaims, true
	case *SessionClaims:
		return &c.TokenClaims, true
	}
	return nil, false
}
