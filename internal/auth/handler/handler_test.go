package handler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"authority/internal/auth/handler/mocks"
	"authority/internal/auth/models"
	id "authority/pkg/domain"
	dErrors "authority/pkg/domain-errors"
	authmw "authority/pkg/platform/middleware/auth"
	"authority/pkg/platform/middleware/metadata"
	"authority/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

type stubValidator struct {
	resolved *authmw.ResolvedToken
	err      error
}

func (v stubValidator) ValidateRequestToken(context.Context, string) (*authmw.ResolvedToken, error) {
	return v.resolved, v.err
}

type HandlerSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	service   *mocks.MockService
	validator *stubValidator
	router    chi.Router

	userID    id.UserID
	sessionID id.SessionID
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.userID = id.UserID(uuid.New())
	s.sessionID = id.NewSessionID()
	s.validator = &stubValidator{resolved: &authmw.ResolvedToken{
		UserID:      s.userID,
		SessionID:   s.sessionID,
		Kind:        "access",
		Permissions: []string{"reports.view"},
	}}
	s.router = s.newRouter()
}

func (s *HandlerSuite) newRouter(opts ...Option) chi.Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	r.Use(metadata.ClientMetadata)
	New(s.service, s.validator, logger, opts...).Register(r)
	return r
}

func (s *HandlerSuite) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(s.T(), method, path, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return testutil.DoRequest(s.router, req)
}

func (s *HandlerSuite) authed() map[string]string {
	return map[string]string{"Authorization": "Bearer token"}
}

func (s *HandlerSuite) TestLogin() {
	s.Run("success passes origin through", func() {
		tokens := &models.CredentialTuple{AccessToken: "a", RefreshToken: "r", SessionToken: "s", SessionID: s.sessionID}
		s.service.EXPECT().
			AuthenticateWithTokens(gomock.Any(), "ada@example.com", "pw", "https://app.example.com").
			Return(&models.LoginResult{
				User:   &models.User{ID: s.userID, Email: "ada@example.com", PasswordHash: "secret-hash", IsActive: true},
				Tokens: tokens,
			}, nil)

		rec := s.do(http.MethodPost, "/auth/login",
			LoginRequest{Identifier: "ada@example.com", Password: "pw"},
			map[string]string{"Origin": "https://app.example.com"})
		s.Equal(http.StatusOK, rec.Code)
		s.NotContains(rec.Body.String(), "secret-hash")

		resp := testutil.UnmarshalResponse[LoginResponse](s.T(), rec)
		s.Equal(s.userID, resp.User.ID)
		s.Equal("a", resp.Tokens.AccessToken)
		s.Equal(s.sessionID, resp.Tokens.SessionID)
	})

	s.Run("missing password", func() {
		rec := s.do(http.MethodPost, "/auth/login", LoginRequest{Identifier: "ada@example.com"}, nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("malformed body", func() {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("no secret set looks like bad credentials", func() {
		s.service.EXPECT().AuthenticateWithTokens(gomock.Any(), "otp@example.com", "pw", "").
			Return(nil, dErrors.New(dErrors.CodeNoSecretSet, "no password set for this account"))

		rec := s.do(http.MethodPost, "/auth/login", LoginRequest{Identifier: "otp@example.com", Password: "pw"}, nil)
		testutil.AssertStatusAndError(s.T(), rec, http.StatusUnauthorized, string(dErrors.CodeInvalidCredentials))
	})

	s.Run("inactive account", func() {
		s.service.EXPECT().AuthenticateWithTokens(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeAccountInactive, "account is inactive"))

		rec := s.do(http.MethodPost, "/auth/login", LoginRequest{Identifier: "x@example.com", Password: "pw"}, nil)
		testutil.AssertStatusAndError(s.T(), rec, http.StatusForbidden, string(dErrors.CodeAccountInactive))
	})
}

func (s *HandlerSuite) TestRefresh() {
	s.service.EXPECT().Refresh(gomock.Any(), "old-refresh", "").
		Return(&models.LoginResult{
			User:   &models.User{ID: s.userID},
			Tokens: &models.CredentialTuple{RefreshToken: "new-refresh"},
		}, nil)

	rec := s.do(http.MethodPost, "/auth/refresh", RefreshRequest{RefreshToken: "old-refresh"}, nil)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "new-refresh")

	rec = s.do(http.MethodPost, "/auth/refresh", RefreshRequest{}, nil)
	s.Equal(http.StatusBadRequest, rec.Code)

	s.service.EXPECT().Refresh(gomock.Any(), "revoked", "").
		Return(nil, dErrors.New(dErrors.CodeTokenRevoked, "token has been revoked"))
	rec = s.do(http.MethodPost, "/auth/refresh", RefreshRequest{RefreshToken: "revoked"}, nil)
	testutil.AssertStatusAndError(s.T(), rec, http.StatusUnauthorized, string(dErrors.CodeTokenRevoked))
}

func (s *HandlerSuite) TestProtectedRoutesRequireToken() {
	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/auth/logout"},
		{http.MethodPost, "/auth/logout-all"},
		{http.MethodGet, "/auth/me"},
		{http.MethodGet, "/auth/permissions"},
	} {
		s.Run(route.path, func() {
			rec := s.do(route.method, route.path, nil, nil)
			s.Equal(http.StatusUnauthorized, rec.Code)
		})
	}
}

func (s *HandlerSuite) TestLogout() {
	s.service.EXPECT().LogoutSession(gomock.Any(), s.sessionID).Return(nil)
	rec := s.do(http.MethodPost, "/auth/logout", nil, s.authed())
	s.Equal(http.StatusNoContent, rec.Code)

	s.service.EXPECT().LogoutEverywhere(gomock.Any(), s.userID).Return(nil)
	rec = s.do(http.MethodPost, "/auth/logout-all", nil, s.authed())
	s.Equal(http.StatusNoContent, rec.Code)

	s.service.EXPECT().LogoutEverywhere(gomock.Any(), s.userID).
		Return(dErrors.New(dErrors.CodeInternal, "failed to revoke user tokens"))
	rec = s.do(http.MethodPost, "/auth/logout-all", nil, s.authed())
	s.Equal(http.StatusInternalServerError, rec.Code)
}

func (s *HandlerSuite) TestRevokedTokenIsRejected() {
	s.validator.resolved = nil
	s.validator.err = dErrors.New(dErrors.CodeTokenRevoked, "token has been revoked")

	rec := s.do(http.MethodGet, "/auth/me", nil, s.authed())
	testutil.AssertStatusAndError(s.T(), rec, http.StatusUnauthorized, string(dErrors.CodeTokenRevoked))
}

func (s *HandlerSuite) TestMe() {
	s.service.EXPECT().GetUser(gomock.Any(), s.userID).Return(&models.User{
		ID:             s.userID,
		Email:          "ada@example.com",
		ActiveSessions: []models.ActiveSession{{SessionID: s.sessionID, Device: "desktop"}},
	}, nil)

	rec := s.do(http.MethodGet, "/auth/me", nil, s.authed())
	s.Equal(http.StatusOK, rec.Code)

	resp := testutil.UnmarshalResponse[MeResponse](s.T(), rec)
	s.Equal(s.sessionID, resp.SessionID)
	s.Equal([]string{"reports.view"}, resp.Permissions)
	s.Require().Len(resp.ActiveSessions, 1)
}

func (s *HandlerSuite) TestPermissions() {
	s.service.EXPECT().GetPermissions(gomock.Any(), s.userID, true).Return([]string{"a", "b"}, nil)

	rec := s.do(http.MethodGet, "/auth/permissions?refresh=true", nil, s.authed())
	s.Equal(http.StatusOK, rec.Code)

	resp := testutil.UnmarshalResponse[PermissionsResponse](s.T(), rec)
	s.Equal([]string{"a", "b"}, resp.Permissions)
}

func (s *HandlerSuite) TestRefreshTokenCannotAuthorizeRequests() {
	s.validator.resolved.Kind = "refresh"
	rec := s.do(http.MethodGet, "/auth/me", nil, s.authed())
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *HandlerSuite) TestOTP() {
	s.Run("code is hidden by default", func() {
		s.service.EXPECT().IssueOTP(gomock.Any(), "ada@example.com").Return("123456", nil)
		rec := s.do(http.MethodPost, "/auth/otp", OTPRequest{Identifier: "ada@example.com"}, nil)
		s.Equal(http.StatusAccepted, rec.Code)
		s.NotContains(rec.Body.String(), "123456")
	})

	s.Run("code echo", func() {
		s.router = s.newRouter(WithOTPEcho(true))
		s.service.EXPECT().IssueOTP(gomock.Any(), "ada@example.com").Return("123456", nil)
		rec := s.do(http.MethodPost, "/auth/otp", OTPRequest{Identifier: "ada@example.com"}, nil)
		s.Equal(http.StatusAccepted, rec.Code)

		resp := testutil.UnmarshalResponse[OTPResponse](s.T(), rec)
		s.Equal("123456", resp.Code)
		s.Equal(600, resp.ExpiresIn)
	})

	s.Run("verify consumes by default", func() {
		s.service.EXPECT().VerifyOTP(gomock.Any(), "ada@example.com", "123456", true).Return(true, nil)
		rec := s.do(http.MethodPost, "/auth/otp/verify", OTPVerifyRequest{Identifier: "ada@example.com", Code: "123456"}, nil)
		s.Equal(http.StatusOK, rec.Code)
		s.JSONEq(`{"valid":true}`, rec.Body.String())
	})

	s.Run("verify can peek", func() {
		peek := false
		s.service.EXPECT().VerifyOTP(gomock.Any(), "ada@example.com", "000000", false).Return(false, nil)
		rec := s.do(http.MethodPost, "/auth/otp/verify",
			OTPVerifyRequest{Identifier: "ada@example.com", Code: "000000", Consume: &peek}, nil)
		s.Equal(http.StatusOK, rec.Code)
		s.JSONEq(`{"valid":false}`, rec.Body.String())
	})

	s.Run("locked out identifier", func() {
		s.service.EXPECT().VerifyOTP(gomock.Any(), "ada@example.com", "123456", true).
			Return(false, dErrors.New(dErrors.CodeRateLimited, "too many attempts, try again later"))
		rec := s.do(http.MethodPost, "/auth/otp/verify", OTPVerifyRequest{Identifier: "ada@example.com", Code: "123456"}, nil)
		testutil.AssertStatusAndError(s.T(), rec, http.StatusTooManyRequests, string(dErrors.CodeRateLimited))
	})

	s.Run("verify requires code", func() {
		rec := s.do(http.MethodPost, "/auth/otp/verify", OTPVerifyRequest{Identifier: "ada@example.com"}, nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestHandlersReadPrincipalFromContext() {
	h := New(s.service, s.validator, nil)
	other := id.NewSessionID()

	s.service.EXPECT().LogoutSession(gomock.Any(), other).Return(nil)
	req := testutil.WithPrincipal(testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/logout", nil), s.userID, other)
	rec := httptest.NewRecorder()
	h.HandleLogout(rec, req)
	s.Equal(http.StatusNoContent, rec.Code)

	s.service.EXPECT().GetUser(gomock.Any(), s.userID).Return(nil, dErrors.New(dErrors.CodeNotFound, "user not found"))
	req = testutil.WithPrincipal(testutil.NewJSONRequest(s.T(), http.MethodGet, "/auth/me", nil), s.userID, other)
	rec = httptest.NewRecorder()
	h.HandleMe(rec, req)
	testutil.AssertStatusAndError(s.T(), rec, http.StatusNotFound, string(dErrors.CodeNotFound))
}
