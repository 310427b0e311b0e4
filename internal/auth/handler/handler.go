package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"authority/internal/auth/models"
	id "authority/pkg/domain"
	dErrors "authority/pkg/domain-errors"
	"authority/pkg/platform/httputil"
	authmw "authority/pkg/platform/middleware/auth"
	"authority/pkg/requestcontext"
)

// Service is the slice of the auth facade the HTTP surface needs.
type Service interface {
	AuthenticateWithTokens(ctx context.Context, identifier, secret, origin string) (*models.LoginResult, error)
	Refresh(ctx context.Context, refreshToken, origin string) (*models.LoginResult, error)
	LogoutSession(ctx context.Context, sessionID id.SessionID) error
	LogoutEverywhere(ctx context.Context, userID id.UserID) error
	GetUser(ctx context.Context, userID id.UserID) (*models.User, error)
	GetPermissions(ctx context.Context, userID id.UserID, forceRefresh bool) ([]string, error)
	IssueOTP(ctx context.Context, identifier string) (string, error)
	VerifyOTP(ctx context.Context, identifier, code string, consume bool) (bool, error)
}

type Handler struct {
	auth      Service
	validator authmw.TokenValidator
	logger    *slog.Logger
	otpTTL    time.Duration
	echoOTP   bool
}

type Option func(*Handler)

// WithOTPEcho returns issued codes in the response body. Only for
// environments without a delivery channel.
func WithOTPEcho(enabled bool) Option {
	return func(h *Handler) {
		h.echoOTP = enabled
	}
}

func WithOTPTTL(ttl time.Duration) Option {
	return func(h *Handler) {
		if ttl > 0 {
			h.otpTTL = ttl
		}
	}
}

func New(auth Service, validator authmw.TokenValidator, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		auth:      auth,
		validator: validator,
		logger:    logger,
		otpTTL:    600 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Register mounts the auth routes. Login, refresh and OTP are public; the
// rest require a bearer token.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/login", h.HandleLogin)
	r.Post("/auth/refresh", h.HandleRefresh)
	r.Post("/auth/otp", h.HandleIssueOTP)
	r.Post("/auth/otp/verify", h.HandleVerifyOTP)

	r.Group(func(protected chi.Router) {
		protected.Use(authmw.RequireAuth(h.validator, h.logger))
		protected.Post("/auth/logout", h.HandleLogout)
		protected.Post("/auth/logout-all", h.HandleLogoutAll)
		protected.Get("/auth/me", h.HandleMe)
		protected.Get("/auth/permissions", h.HandlePermissions)
	})
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.auth.AuthenticateWithTokens(ctx, req.Identifier, req.Password, requestcontext.Origin(ctx))
	if err != nil {
		h.logger.WarnContext(ctx, "login failed",
			"request_id", requestID,
			"code", string(dErrors.CodeOf(err)),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, LoginResponse{
		User:   toUserResponse(result.User),
		Tokens: result.Tokens,
	})
}

func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RefreshRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "refresh_token is required"))
		return
	}

	result, err := h.auth.Refresh(ctx, req.RefreshToken, requestcontext.Origin(ctx))
	if err != nil {
		h.logger.WarnContext(ctx, "refresh failed",
			"request_id", requestcontext.RequestID(ctx),
			"code", string(dErrors.CodeOf(err)),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, LoginResponse{
		User:   toUserResponse(result.User),
		Tokens: result.Tokens,
	})
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.auth.LogoutSession(ctx, requestcontext.SessionID(ctx)); err != nil {
		h.logger.ErrorContext(ctx, "failed to log out session",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.auth.LogoutEverywhere(ctx, requestcontext.UserID(ctx)); err != nil {
		h.logger.ErrorContext(ctx, "failed to log out everywhere",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := h.auth.GetUser(ctx, requestcontext.UserID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	perms := requestcontext.Permissions(ctx)
	if perms == nil {
		perms = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, MeResponse{
		User:           toUserResponse(user),
		SessionID:      requestcontext.SessionID(ctx),
		ActiveSessions: user.ActiveSessions,
		Permissions:    perms,
	})
}

func (h *Handler) HandlePermissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	force, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	perms, err := h.auth.GetPermissions(ctx, requestcontext.UserID(ctx), force)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, PermissionsResponse{Permissions: perms})
}

func (h *Handler) HandleIssueOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req OTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	code, err := h.auth.IssueOTP(ctx, req.Identifier)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	resp := OTPResponse{ExpiresIn: int(h.otpTTL.Seconds())}
	if h.echoOTP {
		resp.Code = code
	}
	httputil.WriteJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req OTPVerifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Identifier == "" || req.Code == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "identifier and code are required"))
		return
	}
	consume := true
	if req.Consume != nil {
		consume = *req.Consume
	}

	ok, err := h.auth.VerifyOTP(ctx, req.Identifier, req.Code, consume)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, OTPVerifyResponse{Valid: ok})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.WarnContext(r.Context(), "invalid request body",
			"request_id", requestcontext.RequestID(r.Context()),
			"path", r.URL.Path,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}
