package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/exmoboty/starter/internal/flash"
	"github.com/exmoboty/starter/internal/model"
	"github.com/exmoboty/starter/internal/service"
)

// forgotNotice is shown for every accepted forgot-password request, whether
// or not the address belongs to an account.
const forgotNotice = "If an account with that email address exists, an e-mail has been sent with further instructions."

// ResetHandler handles the forgot-password and reset pages.
type ResetHandler struct {
	*Web
	service  *service.ResetService
	sessions *service.SessionManager
}

// NewResetHandler creates a new ResetHandler.
func NewResetHandler(web *Web, svc *service.ResetService, sessions *service.SessionManager) *ResetHandler {
	return &ResetHandler{Web: web, service: svc, sessions: sessions}
}

// HandleForgotPage handles GET /forgot requests.
func (h *ResetHandler) HandleForgotPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "forgot", "Forgot Password", nil)
}

// HandleForgot handles POST /forgot requests.
func (h *ResetHandler) HandleForgot(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}

	_, err := h.service.RequestReset(r.Context(), r.PostFormValue("email"))
	if err != nil {
		if _, ok := service.AsValidation(err); ok {
			h.formError(w, r, "/forgot", err)
			return
		}
		h.logger.ErrorContext(r.Context(), "request password reset", "error", err)
	}
	h.redirectWith(w, r, "/forgot", flash.Info(forgotNotice))
}

type resetPage struct {
	Action string
}

// HandleResetPage handles GET /reset/{token} requests.
func (h *ResetHandler) HandleResetPage(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	if _, err := h.service.ValidateToken(r.Context(), token); err != nil {
		if errors.Is(err, service.ErrTokenInvalidOrExpired) {
			h.formError(w, r, "/forgot", err)
			return
		}
		h.fail(w, r, err)
		return
	}

	h.render(w, r, http.StatusOK, "reset", "Reset Password", resetPage{Action: resetPath(token)})
}

// HandleReset handles POST /reset/{token} requests. A successful reset logs
// the user in.
func (h *ResetHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}
	token := chi.URLParam(r, "token")

	user, err := h.service.ConsumeToken(r.Context(), token, model.PasswordRequest{
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirmPassword"),
	})
	if err != nil {
		back := resetPath(token)
		if errors.Is(err, service.ErrTokenInvalidOrExpired) {
			back = "/forgot"
		}
		if h.formError(w, r, back, err) {
			return
		}
		h.fail(w, r, err)
		return
	}

	notice := flash.Success("Success! Your password has been changed.")
	sessionID, _, err := h.sessions.Create(r.Context(), user.ID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "start session after reset", "user_id", user.ID, "error", err)
		h.redirectWith(w, r, "/login", notice)
		return
	}
	if err := h.startSession(w, sessionID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.redirectWith(w, r, "/", notice)
}

func resetPath(token string) string {
	return "/reset/" + url.PathEscape(token)
}
