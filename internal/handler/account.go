package handler

import (
	"errors"
	"net/http"

	"github.com/exmoboty/starter/internal/flash"
	"github.com/exmoboty/starter/internal/middleware"
	"github.com/exmoboty/starter/internal/model"
	"github.com/exmoboty/starter/internal/service"
)

// AccountHandler handles the account management pages. Every route sits
// behind middleware.RequireAuth.
type AccountHandler struct {
	*Web
	service *service.AccountService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(web *Web, svc *service.AccountService) *AccountHandler {
	return &AccountHandler{Web: web, service: svc}
}

// currentUser returns the signed-in user ID or redirects to the login page.
func (h *AccountHandler) currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.redirect(w, r, "/login", nil)
		return "", false
	}
	return userID, true
}

// gone logs out a session whose user no longer exists. Other errors render
// the error page.
func (h *AccountHandler) gone(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, service.ErrNotFound) {
		h.endSession(w)
		h.redirect(w, r, "/login", nil)
		return
	}
	h.fail(w, r, err)
}

// HandleAccountPage handles GET /account requests.
func (h *AccountHandler) HandleAccountPage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		h.gone(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "account", "Account Management", user)
}

// HandleUpdateProfile handles POST /account/profile requests.
func (h *AccountHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok || !parseForm(w, r) {
		return
	}

	if err := h.service.UpdateProfile(r.Context(), userID, r.PostFormValue("fullName")); err != nil {
		if h.formError(w, r, "/account", err) {
			return
		}
		h.gone(w, r, err)
		return
	}
	h.redirectWith(w, r, "/account", flash.Success("Profile information has been updated."))
}

// HandleUpdatePassword handles POST /account/password requests.
func (h *AccountHandler) HandleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok || !parseForm(w, r) {
		return
	}

	err := h.service.ChangePassword(r.Context(), userID, model.PasswordRequest{
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirmPassword"),
	})
	if err != nil {
		if h.formError(w, r, "/account", err) {
			return
		}
		h.gone(w, r, err)
		return
	}
	h.redirectWith(w, r, "/account", flash.Success("Password has been changed."))
}

// HandleDeleteAccount handles POST /account/delete requests.
func (h *AccountHandler) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteAccount(r.Context(), userID); err != nil {
		h.gone(w, r, err)
		return
	}
	h.endSession(w)
	h.redirectWith(w, r, "/", flash.Info("Your account has been deleted."))
}
