package handler

import (
	"net/http"

	"github.com/exmoboty/starter/internal/flash"
	"github.com/exmoboty/starter/internal/middleware"
	"github.com/exmoboty/starter/internal/model"
	"github.com/exmoboty/starter/internal/service"
)

// AuthHandler handles signup, login and logout pages.
type AuthHandler struct {
	*Web
	service *service.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(web *Web, svc *service.AuthService) *AuthHandler {
	return &AuthHandler{Web: web, service: svc}
}

// HandleSignupPage handles GET /signup requests.
func (h *AuthHandler) HandleSignupPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "signup", "Create Account", nil)
}

// HandleSignup handles POST /signup requests.
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}

	_, sessionID, err := h.service.Signup(r.Context(), model.SignupRequest{
		Email:           r.PostFormValue("email"),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirmPassword"),
		FullName:        r.PostFormValue("fullName"),
	})
	if err != nil {
		if h.formError(w, r, "/signup", err) {
			return
		}
		h.fail(w, r, err)
		return
	}

	if err := h.startSession(w, sessionID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.redirect(w, r, "/", nil)
}

// HandleLoginPage handles GET /login requests.
func (h *AuthHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "login", "Login", nil)
}

// HandleLogin handles POST /login requests.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}

	_, sessionID, err := h.service.Login(r.Context(), model.LoginRequest{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	})
	if err != nil {
		if h.formError(w, r, "/login", err) {
			return
		}
		h.fail(w, r, err)
		return
	}

	if err := h.startSession(w, sessionID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.redirectWith(w, r, "/", flash.Success("Success! You are logged in."))
}

// HandleLogout handles GET and POST /logout requests. It succeeds whether or
// not a session exists.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if sessionID, ok := middleware.SessionIDFromContext(r.Context()); ok {
		if err := h.service.Logout(r.Context(), sessionID); err != nil {
			h.logger.ErrorContext(r.Context(), "logout", "error", err)
		}
	}
	h.endSession(w)
	h.redirect(w, r, "/", nil)
}
