package endpoint

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandler_RendersResponse(t *testing.T) {
	h := HandleFunc(func(w http.ResponseWriter, r *http.Request, params struct {
		Name string `query:"name"`
	}) (Renderer, error) {
		return &StringRenderer{Body: "hello " + params.Name}, nil
	})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/?name=tan", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Body.String(); got != "hello tan" {
		t.Errorf("unexpected body %q", got)
	}
}

func TestHandler_EndpointErrorStatus(t *testing.T) {
	h := HandleFunc(func(w http.ResponseWriter, r *http.Request, _ struct{}) (Renderer, error) {
		return nil, Error(http.StatusForbidden, "nope", nil)
	})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "nope") {
		t.Errorf("expected message in body, got %q", w.Body.String())
	}
}

func TestHandler_PlainErrorIs500(t *testing.T) {
	h := HandleFunc(func(w http.ResponseWriter, r *http.Request, _ struct{}) (Renderer, error) {
		return nil, errors.New("boom")
	})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestError_NoDoubleWrap(t *testing.T) {
	inner := Error(http.StatusNotFound, "missing", nil)
	outer := Error(http.StatusInternalServerError, "wrapped", inner)

	var ee *EndpointError
	if !errors.As(outer, &ee) {
		t.Fatal("expected EndpointError")
	}
	if ee.Status != http.StatusNotFound {
		t.Errorf("expected inner status preserved, got %d", ee.Status)
	}
}

func TestProcessor_ShortCircuit(t *testing.T) {
	called := false
	block := ProcessorFunc(func(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
		return Error(http.StatusUnauthorized, "denied", nil)
	})
	h := HandleFunc(func(w http.ResponseWriter, r *http.Request, _ struct{}) (Renderer, error) {
		called = true
		return &NoContentRenderer{}, nil
	}, block)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if called {
		t.Error("endpoint should not run after processor short-circuit")
	}
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestDefer_RunsBeforeHeaders(t *testing.T) {
	h := HandleFunc(func(w http.ResponseWriter, r *http.Request, _ struct{}) (Renderer, error) {
		Defer(r.Context(), func(w http.ResponseWriter) {
			http.SetCookie(w, &http.Cookie{Name: "late", Value: "1"})
		})
		return &StringRenderer{Body: "ok"}, nil
	})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "late" {
		t.Errorf("expected deferred cookie to be set, got %v", cookies)
	}
}

func TestDefer_RunsOnErrorPathToo(t *testing.T) {
	h := HandleFunc(func(w http.ResponseWriter, r *http.Request, _ struct{}) (Renderer, error) {
		Defer(r.Context(), func(w http.ResponseWriter) {
			http.SetCookie(w, &http.Cookie{Name: "cleanup", Value: "1"})
		})
		return nil, Error(http.StatusBadRequest, "bad", nil)
	})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if len(w.Result().Cookies()) != 1 {
		t.Error("deferred hooks must run even when the endpoint errors")
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}
