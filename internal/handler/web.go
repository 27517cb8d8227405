package handler

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/exmoboty/starter/internal/flash"
	"github.com/exmoboty/starter/internal/middleware"
	"github.com/exmoboty/starter/internal/service"
	"github.com/exmoboty/starter/internal/sessioncookie"
)

//go:embed templates/*.html
var templateFS embed.FS

const maxFormBytes = 1 << 20 // 1MB

var pages = []string{"home", "signup", "login", "forgot", "reset", "account", "contact", "error"}

// Web holds the rendering and cookie plumbing shared by every page handler.
type Web struct {
	templates map[string]*template.Template
	cookie    sessioncookie.Config
	codec     middleware.CookieCodec
	appName   string
	logger    *slog.Logger
}

// NewWeb parses the embedded templates.
func NewWeb(cookie sessioncookie.Config, codec middleware.CookieCodec, appName string, logger *slog.Logger) (*Web, error) {
	templates := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+page+".html")
		if err != nil {
			return nil, err
		}
		templates[page] = t
	}
	return &Web{
		templates: templates,
		cookie:    cookie,
		codec:     codec,
		appName:   appName,
		logger:    logger,
	}, nil
}

type pageData struct {
	AppName  string
	Title    string
	LoggedIn bool
	Flash    *flash.Notice
	Data     any
}

func (wb *Web) render(w http.ResponseWriter, r *http.Request, status int, page, title string, data any) {
	t, ok := wb.templates[page]
	if !ok {
		wb.logger.ErrorContext(r.Context(), "unknown template", "page", page)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pd := pageData{AppName: wb.appName, Title: title, Data: data}
	_, pd.LoggedIn = middleware.UserIDFromContext(r.Context())
	if notice, ok := flash.ReadAndClear(w, r, wb.cookie.Secure); ok {
		pd.Flash = &notice
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", pd); err != nil {
		wb.logger.ErrorContext(r.Context(), "render template", "page", page, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// redirect answers a form POST with a 303 and an optional notice.
func (wb *Web) redirect(w http.ResponseWriter, r *http.Request, to string, notice *flash.Notice) {
	if notice != nil {
		flash.Write(w, wb.cookie.Secure, *notice)
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}

func (wb *Web) redirectWith(w http.ResponseWriter, r *http.Request, to string, notice flash.Notice) {
	wb.redirect(w, r, to, &notice)
}

// fail logs err and renders the generic error page.
func (wb *Web) fail(w http.ResponseWriter, r *http.Request, err error) {
	wb.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	wb.render(w, r, http.StatusInternalServerError, "error", "Error", nil)
}

// formError turns a user-facing service error into a notice and redirect to
// back. It reports false when err is not one the user can fix.
func (wb *Web) formError(w http.ResponseWriter, r *http.Request, back string, err error) bool {
	if ve, ok := service.AsValidation(err); ok {
		wb.redirectWith(w, r, back, flash.Error(ve.Messages()...))
		return true
	}
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		wb.redirectWith(w, r, back, flash.Error("Invalid email or password."))
	case errors.Is(err, service.ErrDuplicateAccount):
		wb.redirectWith(w, r, back, flash.Error("Account with that email address already exists."))
	case errors.Is(err, service.ErrTokenInvalidOrExpired):
		wb.redirectWith(w, r, back, flash.Error("Password reset token is invalid or has expired."))
	case errors.Is(err, service.ErrMailDelivery):
		wb.redirectWith(w, r, back, flash.Error("Your message could not be sent. Please try again later."))
	default:
		return false
	}
	return true
}

// parseForm limits and parses the request body, answering 400 on failure.
func parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		http.Error(w, "invalid form submission", http.StatusBadRequest)
		return false
	}
	return true
}

// startSession writes the signed session cookie for sessionID.
func (wb *Web) startSession(w http.ResponseWriter, sessionID string) error {
	value, err := wb.codec.Sign(sessionID, wb.cookie.Expiry(time.Now()))
	if err != nil {
		return err
	}
	wb.cookie.Write(w, value)
	return nil
}

func (wb *Web) endSession(w http.ResponseWriter) {
	wb.cookie.Clear(w)
}
