package authn

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/authgate/internal/platform/httpx"
	"github.com/odyssey-erp/authgate/internal/shared"
	"github.com/odyssey-erp/authgate/internal/users"
)

// LoginRecorder keeps an audit trail of successful logins.
type LoginRecorder interface {
	RecordLogin(ctx context.Context, sessionID string, userID int64, expiresAt time.Time, ip, ua string) error
}

// LoginObserver counts login attempts by outcome.
type LoginObserver interface {
	ObserveLogin(outcome string)
}

// HandlerConfig groups optional Handler collaborators.
type HandlerConfig struct {
	Tokens   *TokenIssuer
	Recorder LoginRecorder
	Observer LoginObserver
	Now      func() time.Time
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	validator      *validator.Validate
	tokens         *TokenIssuer
	recorder       LoginRecorder
	observer       LoginObserver
	now            func() time.Time
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, cfg HandlerConfig) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		validator:      validator.New(),
		tokens:         cfg.Tokens,
		recorder:       cfg.Recorder,
		observer:       cfg.Observer,
		now:            now,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/api/me", h.handleMe)
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type loginResponse struct {
	User      users.User `json:"user"`
	ExpiresAt time.Time  `json:"expires_at"`
	Token     string     `json:"token,omitempty"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed form")
		return
	}
	form := loginForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	if err := h.validator.Struct(form); err != nil {
		h.observeLogin("invalid")
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "email and password are required")
		return
	}

	user, err := h.service.Authenticate(r.Context(), form.Email, form.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			h.observeLogin("rejected")
			h.logger.Info("login rejected", slog.String("email", users.NormalizeEmail(form.Email)))
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid email or password")
			return
		}
		h.observeLogin("error")
		h.logger.Error("authenticate", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.observeLogin("error")
		h.logger.Error("session missing during login")
		httpx.RespondError(w, ErrNoSession)
		return
	}
	if err := h.sessionManager.Renew(r.Context(), sess); err != nil {
		h.observeLogin("error")
		h.logger.Error("renew session", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	userSession := NewUserSession(sess, h.now)
	record, err := userSession.SetUser(user)
	if err != nil {
		h.observeLogin("error")
		h.logger.Error("write session record", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if err := h.sessionManager.Save(r.Context(), sess); err != nil {
		userSession.Clear()
		h.observeLogin("error")
		h.logger.Error("persist session record", slog.Any("session", sess), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	resp := loginResponse{User: user, ExpiresAt: record.TTL}
	if h.tokens != nil {
		token, _, err := h.tokens.Issue(user)
		if err != nil {
			h.logger.Warn("issue bearer token", slog.Any("error", err))
		} else {
			resp.Token = token
		}
	}

	if h.recorder != nil {
		if err := h.recorder.RecordLogin(r.Context(), sess.ID, user.ID, record.TTL, r.RemoteAddr, r.UserAgent()); err != nil {
			h.logger.Warn("record login", slog.Any("error", err))
		}
	}

	h.observeLogin("success")
	h.logger.Info("login succeeded", slog.Int64("user_id", user.ID), slog.Any("session", sess))
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.sessionManager.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) observeLogin(outcome string) {
	if h.observer != nil {
		h.observer.ObserveLogin(outcome)
	}
}
