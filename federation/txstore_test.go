package federation

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testKeys() map[string][]byte {
	return map[string][]byte{"k1": make([]byte, 32)}
}

func newTestStore(t *testing.T, ttl time.Duration) *TransactionStore {
	t.Helper()
	s, err := NewTransactionStore("k1", testKeys(), ttl)
	if err != nil {
		t.Fatalf("NewTransactionStore: %v", err)
	}
	return s
}

// saveTransaction seals tx and returns the resulting cookies.
func saveTransaction(t *testing.T, s *TransactionStore, tx *Transaction) []*http.Cookie {
	t.Helper()
	w := httptest.NewRecorder()
	if err := s.Save(w, tx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 3 {
		t.Fatalf("Save set %d cookies, want 3", len(cookies))
	}
	return cookies
}

func TestTransactionStoreRoundTrip(t *testing.T) {
	s := newTestStore(t, 10*time.Minute)
	tx, err := BeginTransaction()
	if err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}

	cookies := saveTransaction(t, s, tx)
	for _, c := range cookies {
		if !c.HttpOnly {
			t.Errorf("cookie %s is not HttpOnly", c.Name)
		}
		if c.MaxAge != 600 {
			t.Errorf("cookie %s MaxAge = %d, want 600", c.Name, c.MaxAge)
		}
	}

	r := httptest.NewRequest("GET", "/auth/callback", nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}
	got, ok := s.Load(r)
	if !ok {
		t.Fatal("Load reported transaction absent")
	}
	if got.Verifier != tx.Verifier || got.Nonce != tx.Nonce || got.State != tx.State {
		t.Errorf("Load = %+v, want %+v", got, tx)
	}
}

func TestTransactionStoreAllOrNothing(t *testing.T) {
	s := newTestStore(t, 10*time.Minute)
	tx, err := BeginTransaction()
	if err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	cookies := saveTransaction(t, s, tx)

	for drop := range cookies {
		r := httptest.NewRequest("GET", "/auth/callback", nil)
		for i, c := range cookies {
			if i != drop {
				r.AddCookie(c)
			}
		}
		if _, ok := s.Load(r); ok {
			t.Errorf("Load succeeded with cookie %s missing", cookies[drop].Name)
		}
	}
}

func TestTransactionStoreTamperedCookie(t *testing.T) {
	s := newTestStore(t, 10*time.Minute)
	tx, err := BeginTransaction()
	if err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	cookies := saveTransaction(t, s, tx)

	r := httptest.NewRequest("GET", "/auth/callback", nil)
	for i, c := range cookies {
		if i == 0 {
			c = &http.Cookie{Name: c.Name, Value: c.Value + "x"}
		}
		r.AddCookie(c)
	}
	if _, ok := s.Load(r); ok {
		t.Error("Load succeeded with a tampered cookie")
	}
}

func TestTransactionStoreExpiry(t *testing.T) {
	s := newTestStore(t, 20*time.Millisecond)
	tx, err := BeginTransaction()
	if err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	cookies := saveTransaction(t, s, tx)

	r := httptest.NewRequest("GET", "/auth/callback", nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}
	if _, ok := s.Load(r); !ok {
		t.Fatal("Load failed before expiry")
	}

	time.Sleep(40 * time.Millisecond)
	if _, ok := s.Load(r); ok {
		t.Error("Load succeeded after the sealed expiry passed")
	}
}

func TestTransactionStoreClear(t *testing.T) {
	s := newTestStore(t, 10*time.Minute)
	w := httptest.NewRecorder()
	s.Clear(w)

	cookies := w.Result().Cookies()
	if len(cookies) != 3 {
		t.Fatalf("Clear set %d cookies, want 3", len(cookies))
	}
	names := map[string]bool{}
	for _, c := range cookies {
		names[c.Name] = true
		if c.MaxAge >= 0 || c.Value != "" {
			t.Errorf("cookie %s not cleared: MaxAge=%d Value=%q", c.Name, c.MaxAge, c.Value)
		}
	}
	for _, name := range []string{VerifierCookieName, NonceCookieName, StateCookieName} {
		if !names[name] {
			t.Errorf("Clear did not touch %s", name)
		}
	}
}
