package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lifeapp/authbridge/endpoint"
)

func newTestProcessor(t *testing.T, opts ...SessionProcessorOption) *SessionProcessor {
	t.Helper()
	p, err := NewSessionProcessor("k1", testKeys(), append([]SessionProcessorOption{
		WithSessionCookieOptions(WithSecure(false)),
	}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func serve(p *SessionProcessor, fn endpoint.EndpointFunc[struct{}], r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	endpoint.HandleFunc(fn, p).ServeHTTP(w, r)
	return w
}

func TestSession_AnonymousByDefault(t *testing.T) {
	p := newTestProcessor(t)

	w := serve(p, func(w http.ResponseWriter, r *http.Request, _ struct{}) (endpoint.Renderer, error) {
		sess, ok := SessionFromContext(r.Context())
		if !ok {
			t.Fatal("expected session in context")
		}
		if _, loggedIn := sess.UserID(); loggedIn {
			t.Error("expected anonymous session")
		}
		return &endpoint.NoContentRenderer{}, nil
	}, httptest.NewRequest("GET", "/", nil))

	if len(w.Result().Cookies()) != 0 {
		t.Error("anonymous request without a cookie should not set one")
	}
}

func TestSession_LoginSetsCookie(t *testing.T) {
	p := newTestProcessor(t)

	w := serve(p, func(w http.ResponseWriter, r *http.Request, _ struct{}) (endpoint.Renderer, error) {
		sess, _ := SessionFromContext(r.Context())
		if err := sess.Login("u1", "subj-1", "Tan"); err != nil {
			t.Fatal(err)
		}
		return &endpoint.NoContentRenderer{}, nil
	}, httptest.NewRequest("GET", "/", nil))

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 session cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != DefaultSessionCookieName {
		t.Errorf("unexpected cookie name %q", c.Name)
	}
	if !c.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}
	if c.MaxAge <= 0 || c.MaxAge > int(DefaultSessionTTL.Seconds()) {
		t.Errorf("unexpected MaxAge %d", c.MaxAge)
	}
}

func TestSession_RoundTrip(t *testing.T) {
	p := newTestProcessor(t)

	w := serve(p, func(w http.ResponseWriter, r *http.Request, _ struct{}) (endpoint.Renderer, error) {
		sess, _ := SessionFromContext(r.Context())
		sess.Login("u1", "subj-1", "Tan")
		return &endpoint.NoContentRenderer{}, nil
	}, httptest.NewRequest("GET", "/", nil))
	c := w.Result().Cookies()[0]

	r2 := httptest.NewRequest("GET", "/", nil)
	r2.AddCookie(c)
	serve(p, func(w http.ResponseWriter, r *http.Request, _ struct{}) (endpoint.Renderer, error) {
		sess, _ := SessionFromContext(r.Context())
		uid, ok := sess.UserID()
		if !ok || uid != "u1" {
			t.Errorf("expected logged-in user u1, got %q (%v)", uid, ok)
		}
		if sess.Subject() != "subj-1" {
			t.Errorf("unexpected subject %q", sess.Subject())
		}
		if sess.DisplayName() != "Tan" {
			t.Errorf("unexpected display name %q", sess.DisplayName())
		}
		if sess.ID() == "" {
			t.Error("expected non-empty session id")
		}
		return &endpoint.NoContentRenderer{}, nil
	}, r2)
}

func TestSession_TamperedCookieClearedAndAnonymous(t *testing.T) {
	p := newTestProcessor(t)

	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: DefaultSessionCookieName, Value: "k1.garbage"})

	w := serve(p, func(w http.ResponseWriter, r *http.Request, _ struct{}) (endpoint.Renderer, error) {
		sess, _ := SessionFromContext(r.Context())
		if _, loggedIn := sess.UserID(); loggedIn {
			t.Error("tampered cookie must not authenticate")
		}
		return &endpoint.NoContentRenderer{}, nil
	}, r)

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge != -1 {
		t.Errorf("expected clearing Set-Cookie, got %v", cookies)
	}
}

func TestSession_ExpiredCookieRejected(t *testing.T) {
	p := newTestProcessor(t, WithSessionTTL(1*time.Second))

	w := serve(p, func(w http.ResponseWriter, r *http.Request, _ struct{}) (endpoint.Renderer, error) {
		sess, _ := SessionFromContext(r.Context())
		sess.Login("u1", "s", "n")
		return &endpoint.NoContentRenderer{}, nil
	}, httptest.NewRequest("GET", "/", nil))
	c := w.Result().Cookies()[0]

	time.Sleep(1100 * time.Millisecond)

	r2 := httptest.NewRequest("GET", "/", nil)
	r2.AddCookie(c)
	w2 := serve(p, func(w http.ResponseWriter, r *http.Request, _ struct{}) (endpoint.Renderer, error) {
		sess, _ := SessionFromContext(r.Context())
		if _, loggedIn := sess.UserID(); loggedIn {
			t.Error("expired session must be rejected")
		}
		return &endpoint.NoContentRenderer{}, nil
	}, r2)

	cookies := w2.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge != -1 {
		t.Errorf("expected expired cookie cleared, got %v", cookies)
	}
}

func TestSession_LoginRegeneratesID(t *testing.T) {
	p := newTestProcessor(t)

	var first, second string
	w := serve(p, func(w http.ResponseWriter, r *http.Request, _ struct{}) (endpoint.Renderer, error) {
		sess, _ := SessionFromContext(r.Context())
		sess.Login("u1", "s", "n")
		first = sess.ID()
		return &endpoint.NoContentRenderer{}, nil
	}, httptest.NewRequest("GET", "/", nil))

	r2 := httptest.NewRequest("GET", "/", nil)
	r2.AddCookie(w.Result().Cookies()[0])
	serve(p, func(w http.ResponseWriter, r *http.Request, _ struct{}) (endpoint.Renderer, error) {
		sess, _ := SessionFromContext(r.Context())
		sess.Login("u1", "s", "n")
		second = sess.ID()
		return &endpoint.NoContentRenderer{}, nil
	}, r2)

	if first == "" || second == "" || first == second {
		t.Errorf("expected fresh session id per login, got %q and %q", first, second)
	}
}

func TestSession_Logout(t *testing.T) {
	p := newTestProcessor(t)

	w := serve(p, func(w http.ResponseWriter, r *http.Request, _ struct{}) (endpoint.Renderer, error) {
		sess, _ := SessionFromContext(r.Context())
		sess.Login("u1", "s", "n")
		return &endpoint.NoContentRenderer{}, nil
	}, httptest.NewRequest("GET", "/", nil))

	r2 := httptest.NewRequest("GET", "/", nil)
	r2.AddCookie(w.Result().Cookies()[0])
	w2 := serve(p, func(w http.ResponseWriter, r *http.Request, _ struct{}) (endpoint.Renderer, error) {
		sess, _ := SessionFromContext(r.Context())
		sess.Logout()
		return &endpoint.NoContentRenderer{}, nil
	}, r2)

	cookies := w2.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge != -1 {
		t.Errorf("expected logout to clear cookie, got %v", cookies)
	}
}

func TestSecurityHeaders_Defaults(t *testing.T) {
	p := NewSecurityHeadersProcessor()
	w := httptest.NewRecorder()
	endpoint.HandleFunc(func(w http.ResponseWriter, r *http.Request, _ struct{}) (endpoint.Renderer, error) {
		return &endpoint.NoContentRenderer{}, nil
	}, p).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	h := w.Header()
	if h.Get("Strict-Transport-Security") == "" {
		t.Error("expected HSTS header")
	}
	if h.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected nosniff")
	}
	if h.Get("X-Frame-Options") != "DENY" {
		t.Error("expected frame deny")
	}
}
