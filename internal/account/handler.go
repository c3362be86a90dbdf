package account

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/authgate/internal/authn"
	"github.com/odyssey-erp/authgate/internal/platform/httpx"
	"github.com/odyssey-erp/authgate/internal/shared"
)

// Handler exposes account endpoints.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// MountRoutes registers account routes. Everything below /api is expected
// to sit behind the auth middleware.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register", h.handleRegister)
	r.Route("/api/account", func(r chi.Router) {
		r.Post("/password", h.handleChangePassword)
		r.Post("/mfa", h.handleEnrollMFA)
		r.Delete("/mfa", h.handleDisableMFA)
		r.Post("/mfa/verify", h.handleVerifyMFA)
	})
}

type mfaResponse struct {
	MFAID     string `json:"mfa_id"`
	HasSecret bool   `json:"has_secret"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed form")
		return
	}
	user, err := h.service.Register(r.Context(), RegisterInput{
		Name:     r.PostFormValue("name"),
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	})
	if err != nil {
		h.fail(w, "register", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, user)
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := authn.UserFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	var in PasswordChange
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed json")
		return
	}
	if err := h.service.ChangePassword(r.Context(), user.ID, in); err != nil {
		h.fail(w, "change password", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleEnrollMFA(w http.ResponseWriter, r *http.Request) {
	user, ok := authn.UserFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	var in MFAInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed json")
		return
	}
	mfa, err := h.service.EnrollMFA(r.Context(), user.ID, in)
	if err != nil {
		h.fail(w, "enroll mfa", err)
		return
	}
	httpx.JSON(w, http.StatusOK, mfaResponse{MFAID: mfa.ID, HasSecret: mfa.HasSecret()})
}

func (h *Handler) handleVerifyMFA(w http.ResponseWriter, r *http.Request) {
	user, ok := authn.UserFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	var in MFACode
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed json")
		return
	}
	if err := h.service.VerifyMFA(r.Context(), user.ID, in); err != nil {
		h.fail(w, "verify mfa", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDisableMFA(w http.ResponseWriter, r *http.Request) {
	user, ok := authn.UserFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	if err := h.service.DisableMFA(r.Context(), user.ID); err != nil {
		h.fail(w, "disable mfa", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
