package sessioncookie

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWriteSetsAttributes(t *testing.T) {
	c := Config{Name: "starter.sid", Secure: true, MaxAge: time.Hour}
	rr := httptest.NewRecorder()

	c.Write(rr, " value ")

	cookie, err := http.ParseSetCookie(rr.Header().Get("Set-Cookie"))
	if err != nil {
		t.Fatalf("ParseSetCookie() error = %v", err)
	}
	if cookie.Name != "starter.sid" || cookie.Value != "value" {
		t.Fatalf("cookie = %s=%s", cookie.Name, cookie.Value)
	}
	if !cookie.HttpOnly || !cookie.Secure {
		t.Fatalf("cookie HttpOnly=%v Secure=%v, want both", cookie.HttpOnly, cookie.Secure)
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Fatalf("cookie.SameSite = %v", cookie.SameSite)
	}
	if cookie.MaxAge != 3600 {
		t.Fatalf("cookie.MaxAge = %d, want 3600", cookie.MaxAge)
	}
}

func TestWriteBrowserSession(t *testing.T) {
	c := Config{Name: "sid"}
	rr := httptest.NewRecorder()

	c.Write(rr, "v")

	cookie, err := http.ParseSetCookie(rr.Header().Get("Set-Cookie"))
	if err != nil {
		t.Fatalf("ParseSetCookie() error = %v", err)
	}
	if cookie.MaxAge != 0 || cookie.Secure {
		t.Fatalf("cookie MaxAge=%d Secure=%v, want 0 and false", cookie.MaxAge, cookie.Secure)
	}
	if !c.Expiry(time.Now()).IsZero() {
		t.Fatal("Expiry() should be zero for a browser session cookie")
	}
}

func TestReadAndClear(t *testing.T) {
	c := Config{Name: "sid"}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := c.Read(req); ok {
		t.Fatal("Read() ok = true without a cookie")
	}

	req.AddCookie(&http.Cookie{Name: "sid", Value: "  abc "})
	value, ok := c.Read(req)
	if !ok || value != "abc" {
		t.Fatalf("Read() = %q, %v", value, ok)
	}

	rr := httptest.NewRecorder()
	c.Clear(rr)
	cookie, err := http.ParseSetCookie(rr.Header().Get("Set-Cookie"))
	if err != nil {
		t.Fatalf("ParseSetCookie() error = %v", err)
	}
	if cookie.MaxAge >= 0 {
		t.Fatalf("cookie.MaxAge = %d, want negative", cookie.MaxAge)
	}
}
