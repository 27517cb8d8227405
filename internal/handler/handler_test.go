package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exmoboty/starter/internal/crypto"
	"github.com/exmoboty/starter/internal/flash"
	"github.com/exmoboty/starter/internal/mail"
	"github.com/exmoboty/starter/internal/middleware"
	"github.com/exmoboty/starter/internal/model"
	"github.com/exmoboty/starter/internal/repository"
	"github.com/exmoboty/starter/internal/service"
	"github.com/exmoboty/starter/internal/sessioncookie"
)

type captureMailer struct {
	mu   sync.Mutex
	msgs []mail.Message
}

func (m *captureMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
	return nil
}

type testEnv struct {
	users    *repository.MemoryUserRepository
	sessions *service.SessionManager
	signer   *crypto.CookieSigner
	cookie   sessioncookie.Config
	mailer   *captureMailer
	auth     *AuthHandler
	reset    *ResetHandler
	account  *AccountHandler
	pages    *PageHandler
	authSvc  *service.AuthService
	resetSvc *service.ResetService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	hasher, err := crypto.NewHasher(crypto.MinCost)
	require.NoError(t, err)

	env := &testEnv{
		users:  repository.NewMemoryUserRepository(),
		signer: crypto.NewCookieSigner("test-secret"),
		cookie: sessioncookie.Config{Name: "starter.sid", MaxAge: time.Hour},
		mailer: &captureMailer{},
	}
	env.sessions = service.NewSessionManager(repository.NewMemorySessionRepository(), time.Hour)
	env.authSvc = service.NewAuthService(env.users, env.sessions, hasher, service.DefaultPasswordPolicy)
	env.resetSvc = service.NewResetService(env.users, hasher, env.mailer, service.DefaultPasswordPolicy, service.ResetConfig{
		BaseURL: "http://localhost:3000",
		From:    "no-reply@example.com",
	})
	accountSvc := service.NewAccountService(env.users, env.sessions, hasher, service.DefaultPasswordPolicy)
	contactSvc := service.NewContactService(env.mailer, "contact@example.com", "no-reply@example.com")

	web, err := NewWeb(env.cookie, env.signer, "Starter", slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	env.auth = NewAuthHandler(web, env.authSvc)
	env.reset = NewResetHandler(web, env.resetSvc, env.sessions)
	env.account = NewAccountHandler(web, accountSvc)
	env.pages = NewPageHandler(web, contactSvc)
	return env
}

func postForm(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func readFlash(t *testing.T, rr *httptest.ResponseRecorder) flash.Notice {
	t.Helper()
	c := findCookie(rr, flash.CookieName)
	require.NotNil(t, c, "expected a flash cookie")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	notice, ok := flash.ReadAndClear(nil, req, false)
	require.True(t, ok)
	return notice
}

func withUser(req *http.Request, sessionID, userID string) *http.Request {
	return req.WithContext(middleware.WithSession(req.Context(), sessionID, userID))
}

func signupForm() url.Values {
	return url.Values{
		"email":           {"a@b.com"},
		"password":        {"longenough1"},
		"confirmPassword": {"longenough1"},
		"fullName":        {"Ada Lovelace"},
	}
}

func TestHandleSignup_SetsSessionCookie(t *testing.T) {
	env := newTestEnv(t)
	rr := httptest.NewRecorder()

	env.auth.HandleSignup(rr, postForm("/signup", signupForm()))

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))

	c := findCookie(rr, "starter.sid")
	require.NotNil(t, c)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, 3600, c.MaxAge)

	id, err := env.signer.Parse(c.Value)
	require.NoError(t, err)
	_, err = env.sessions.Get(context.Background(), id)
	assert.NoError(t, err)
}

func TestHandleSignup_ValidationFlash(t *testing.T) {
	env := newTestEnv(t)
	form := signupForm()
	form.Set("confirmPassword", "mismatch")
	rr := httptest.NewRecorder()

	env.auth.HandleSignup(rr, postForm("/signup", form))

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/signup", rr.Header().Get("Location"))
	assert.Nil(t, findCookie(rr, "starter.sid"))
	notice := readFlash(t, rr)
	assert.Equal(t, flash.KindError, notice.Kind)
	assert.Equal(t, []string{"Passwords do not match"}, notice.Messages)
}

func TestHandleSignup_Duplicate(t *testing.T) {
	env := newTestEnv(t)
	env.auth.HandleSignup(httptest.NewRecorder(), postForm("/signup", signupForm()))

	rr := httptest.NewRecorder()
	env.auth.HandleSignup(rr, postForm("/signup", signupForm()))

	assert.Equal(t, "/signup", rr.Header().Get("Location"))
	assert.Equal(t, []string{"Account with that email address already exists."}, readFlash(t, rr).Messages)
}

func TestHandleLogin_FailuresLookTheSame(t *testing.T) {
	env := newTestEnv(t)
	env.auth.HandleSignup(httptest.NewRecorder(), postForm("/signup", signupForm()))

	unknown := httptest.NewRecorder()
	env.auth.HandleLogin(unknown, postForm("/login", url.Values{"email": {"x@b.com"}, "password": {"longenough1"}}))
	wrong := httptest.NewRecorder()
	env.auth.HandleLogin(wrong, postForm("/login", url.Values{"email": {"a@b.com"}, "password": {"nope-nope"}}))

	assert.Equal(t, unknown.Code, wrong.Code)
	assert.Equal(t, unknown.Header().Get("Location"), wrong.Header().Get("Location"))
	assert.Equal(t, readFlash(t, unknown), readFlash(t, wrong))
}

func TestHandleLogin_Success(t *testing.T) {
	env := newTestEnv(t)
	env.auth.HandleSignup(httptest.NewRecorder(), postForm("/signup", signupForm()))

	rr := httptest.NewRecorder()
	env.auth.HandleLogin(rr, postForm("/login", url.Values{"email": {"a@b.com"}, "password": {"longenough1"}}))

	assert.Equal(t, "/", rr.Header().Get("Location"))
	assert.NotNil(t, findCookie(rr, "starter.sid"))
	assert.Equal(t, flash.KindSuccess, readFlash(t, rr).Kind)
}

func TestHandleLogout_ClearsCookieEvenWithoutSession(t *testing.T) {
	env := newTestEnv(t)

	for range 2 {
		rr := httptest.NewRecorder()
		env.auth.HandleLogout(rr, httptest.NewRequest(http.MethodPost, "/logout", nil))
		assert.Equal(t, http.StatusSeeOther, rr.Code)
		c := findCookie(rr, "starter.sid")
		require.NotNil(t, c)
		assert.Negative(t, c.MaxAge)
	}
}

func TestHandleLogout_DestroysSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, sessionID, err := env.authSvc.Signup(ctx, model.SignupRequest{
		Email: "a@b.com", Password: "longenough1", ConfirmPassword: "longenough1", FullName: "Ada",
	})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	env.auth.HandleLogout(rr, withUser(httptest.NewRequest(http.MethodGet, "/logout", nil), sessionID, user.ID))

	_, err = env.sessions.Get(ctx, sessionID)
	assert.ErrorIs(t, err, service.ErrSessionNotFound)
}

func TestHandleForgot_SameResponseForUnknownEmail(t *testing.T) {
	env := newTestEnv(t)
	env.auth.HandleSignup(httptest.NewRecorder(), postForm("/signup", signupForm()))

	known := httptest.NewRecorder()
	env.reset.HandleForgot(known, postForm("/forgot", url.Values{"email": {"a@b.com"}}))
	unknown := httptest.NewRecorder()
	env.reset.HandleForgot(unknown, postForm("/forgot", url.Values{"email": {"ghost@b.com"}}))

	assert.Equal(t, known.Code, unknown.Code)
	assert.Equal(t, known.Header().Get("Location"), unknown.Header().Get("Location"))
	assert.Equal(t, readFlash(t, known), readFlash(t, unknown))
	env.resetSvc.Wait()
	assert.Len(t, env.mailer.msgs, 1)
}

func TestHandleForgot_InvalidEmail(t *testing.T) {
	env := newTestEnv(t)
	rr := httptest.NewRecorder()

	env.reset.HandleForgot(rr, postForm("/forgot", url.Values{"email": {"nope"}}))

	assert.Equal(t, []string{"Email is not valid"}, readFlash(t, rr).Messages)
}

func resetRouter(env *testEnv) http.Handler {
	r := chi.NewRouter()
	r.Get("/reset/{token}", env.reset.HandleResetPage)
	r.Post("/reset/{token}", env.reset.HandleReset)
	return r
}

func TestHandleResetPage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.auth.HandleSignup(httptest.NewRecorder(), postForm("/signup", signupForm()))
	token, err := env.resetSvc.RequestReset(ctx, "a@b.com")
	require.NoError(t, err)
	router := resetRouter(env)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reset/"+token, nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `action="/reset/`+token+`"`)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reset/not-a-token", nil))
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/forgot", rr.Header().Get("Location"))
	assert.Equal(t, []string{"Password reset token is invalid or has expired."}, readFlash(t, rr).Messages)
}

func TestHandleReset_LogsInOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.auth.HandleSignup(httptest.NewRecorder(), postForm("/signup", signupForm()))
	token, err := env.resetSvc.RequestReset(ctx, "a@b.com")
	require.NoError(t, err)
	router := resetRouter(env)
	form := url.Values{"password": {"brandnew123"}, "confirmPassword": {"brandnew123"}}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, postForm("/reset/"+token, form))
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))
	assert.NotNil(t, findCookie(rr, "starter.sid"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, postForm("/reset/"+token, form))
	assert.Equal(t, "/forgot", rr.Header().Get("Location"))
	assert.Nil(t, findCookie(rr, "starter.sid"))
}

func TestHandleReset_ValidationStaysOnPage(t *testing.T) {
	env := newTestEnv(t)
	env.auth.HandleSignup(httptest.NewRecorder(), postForm("/signup", signupForm()))
	token, err := env.resetSvc.RequestReset(context.Background(), "a@b.com")
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	resetRouter(env).ServeHTTP(rr, postForm("/reset/"+token, url.Values{"password": {"short"}, "confirmPassword": {"short"}}))

	assert.Equal(t, "/reset/"+token, rr.Header().Get("Location"))
}

func TestHandleAccountPage_EscapesProfile(t *testing.T) {
	env := newTestEnv(t)
	user, sessionID, err := env.authSvc.Signup(context.Background(), model.SignupRequest{
		Email: "a@b.com", Password: "longenough1", ConfirmPassword: "longenough1", FullName: `<script>alert(1)</script>`,
	})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	env.account.HandleAccountPage(rr, withUser(httptest.NewRequest(http.MethodGet, "/account", nil), sessionID, user.ID))

	assert.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "a@b.com")
	assert.NotContains(t, body, "<script>alert(1)</script>")
	assert.Contains(t, body, "&lt;script&gt;")
}

func TestHandleAccount_UpdateAndDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, sessionID, err := env.authSvc.Signup(ctx, model.SignupRequest{
		Email: "a@b.com", Password: "longenough1", ConfirmPassword: "longenough1", FullName: "Ada",
	})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	env.account.HandleUpdateProfile(rr, withUser(postForm("/account/profile", url.Values{"fullName": {"Grace"}}), sessionID, user.ID))
	assert.Equal(t, "/account", rr.Header().Get("Location"))
	assert.Equal(t, []string{"Profile information has been updated."}, readFlash(t, rr).Messages)

	rr = httptest.NewRecorder()
	env.account.HandleUpdatePassword(rr, withUser(postForm("/account/password", url.Values{"password": {"a"}, "confirmPassword": {"b"}}), sessionID, user.ID))
	assert.Equal(t, flash.KindError, readFlash(t, rr).Kind)

	rr = httptest.NewRecorder()
	env.account.HandleDeleteAccount(rr, withUser(httptest.NewRequest(http.MethodPost, "/account/delete", nil), sessionID, user.ID))
	assert.Equal(t, "/", rr.Header().Get("Location"))
	_, err = env.users.FindByID(ctx, user.ID)
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
	_, err = env.sessions.Get(ctx, sessionID)
	assert.ErrorIs(t, err, service.ErrSessionNotFound)

	// A stale session for the deleted user is sent back to login.
	rr = httptest.NewRecorder()
	env.account.HandleAccountPage(rr, withUser(httptest.NewRequest(http.MethodGet, "/account", nil), sessionID, user.ID))
	assert.Equal(t, "/login", rr.Header().Get("Location"))
}

func TestHandleContact(t *testing.T) {
	env := newTestEnv(t)
	rr := httptest.NewRecorder()

	env.pages.HandleContact(rr, postForm("/contact", url.Values{"name": {"Ada"}, "email": {"ada@example.com"}, "message": {"Hi"}}))

	assert.Equal(t, "/contact", rr.Header().Get("Location"))
	assert.Equal(t, flash.KindSuccess, readFlash(t, rr).Kind)
	require.Len(t, env.mailer.msgs, 1)
	assert.Equal(t, "contact@example.com", env.mailer.msgs[0].To)
}

func TestRenderShowsAndClearsFlash(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	setter := httptest.NewRecorder()
	flash.Write(setter, false, flash.Info("Your account has been deleted."))
	req.AddCookie(findCookie(setter, flash.CookieName))

	rr := httptest.NewRecorder()
	env.pages.HandleHome(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Your account has been deleted.")
	c := findCookie(rr, flash.CookieName)
	require.NotNil(t, c)
	assert.Negative(t, c.MaxAge)
}

func TestParseFormTooLarge(t *testing.T) {
	env := newTestEnv(t)
	big := url.Values{"email": {strings.Repeat("a", maxFormBytes+1)}}
	rr := httptest.NewRecorder()

	env.auth.HandleLogin(rr, postForm("/login", big))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestHandleHealth(t *testing.T) {
	ok := NewHealthHandler(PingFunc(func(context.Context) error { return nil }))
	rr := httptest.NewRecorder()
	ok.HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	down := NewHealthHandler(PingFunc(func(context.Context) error { return errors.New("down") }))
	rr = httptest.NewRecorder()
	down.HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestHandleNotFound(t *testing.T) {
	env := newTestEnv(t)
	rr := httptest.NewRecorder()

	env.pages.HandleNotFound(rr, httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "Page Not Found")
}
