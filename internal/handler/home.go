package handler

import (
	"net/http"

	"github.com/exmoboty/starter/internal/flash"
	"github.com/exmoboty/starter/internal/model"
	"github.com/exmoboty/starter/internal/service"
)

// PageHandler serves the public pages.
type PageHandler struct {
	*Web
	contact *service.ContactService
}

// NewPageHandler creates a new PageHandler.
func NewPageHandler(web *Web, contact *service.ContactService) *PageHandler {
	return &PageHandler{Web: web, contact: contact}
}

// HandleHome handles GET / requests.
func (h *PageHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "home", "Home", nil)
}

// HandleContactPage handles GET /contact requests.
func (h *PageHandler) HandleContactPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "contact", "Contact", nil)
}

// HandleContact handles POST /contact requests.
func (h *PageHandler) HandleContact(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}

	err := h.contact.Send(r.Context(), model.ContactRequest{
		Name:    r.PostFormValue("name"),
		Email:   r.PostFormValue("email"),
		Message: r.PostFormValue("message"),
	})
	if err != nil {
		if h.formError(w, r, "/contact", err) {
			return
		}
		h.fail(w, r, err)
		return
	}
	h.redirectWith(w, r, "/contact", flash.Success("Email has been sent successfully!"))
}

// HandleNotFound renders the 404 page.
func (h *PageHandler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusNotFound, "error", "Page Not Found", "The page you are looking for does not exist.")
}
