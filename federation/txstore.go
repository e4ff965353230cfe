package federation

import (
	"net/http"
	"time"

	"github.com/lifeapp/authbridge/middleware"
)

// Transaction cookie names. Three separate sealed cookies carry the
// verifier, nonce, and state; the verifier treats a missing or unreadable
// member as the whole transaction being absent.
const (
	VerifierCookieName = "lb_txv"
	NonceCookieName    = "lb_txn"
	StateCookieName    = "lb_txs"
)

// txEntry is the sealed payload of one transaction cookie. The expiry
// inside the ciphertext is authoritative: a browser that keeps a cookie
// past its MaxAge still cannot extend the attempt.
type txEntry struct {
	Value     string    `cbor:"1,keyasint"`
	ExpiresAt time.Time `cbor:"2,keyasint"`
}

// TransactionStore keeps one in-flight Transaction per browser context,
// sealed into HTTP-only cookies with a bounded TTL.
//
// Load is all-or-nothing: unless every value decodes and is unexpired, the
// transaction is absent. There is no partial success.
type TransactionStore struct {
	verifier *middleware.SecureCookie
	nonce    *middleware.SecureCookie
	state    *middleware.SecureCookie
	ttl      time.Duration
}

// NewTransactionStore creates a TransactionStore sealing with the given
// keys. ttl bounds one login attempt.
func NewTransactionStore(keyID string, keys map[string][]byte, ttl time.Duration, opts ...middleware.SecureCookieOption) (*TransactionStore, error) {
	verifier, err := middleware.NewSecureCookie(VerifierCookieName, keyID, keys, opts...)
	if err != nil {
		return nil, err
	}
	nonce, err := middleware.NewSecureCookie(NonceCookieName, keyID, keys, opts...)
	if err != nil {
		return nil, err
	}
	state, err := middleware.NewSecureCookie(StateCookieName, keyID, keys, opts...)
	if err != nil {
		return nil, err
	}
	return &TransactionStore{verifier: verifier, nonce: nonce, state: state, ttl: ttl}, nil
}

// Save seals tx into the response's transaction cookies.
func (s *TransactionStore) Save(w http.ResponseWriter, tx *Transaction) error {
	maxAge := int(s.ttl.Seconds())
	expires := time.Now().Add(s.ttl)

	for _, pair := range []struct {
		cookie *middleware.SecureCookie
		value  string
	}{
		{s.verifier, tx.Verifier},
		{s.nonce, tx.Nonce},
		{s.state, tx.State},
	} {
		c, err := pair.cookie.Encode(txEntry{Value: pair.value, ExpiresAt: expires}, maxAge)
		if err != nil {
			return err
		}
		http.SetCookie(w, c)
	}
	return nil
}

// Load reads the transaction from the request. ok is false when any value
// is missing, unreadable, or expired. The returned Transaction has no
// Challenge: it is not needed after the redirect out.
func (s *TransactionStore) Load(r *http.Request) (*Transaction, bool) {
	now := time.Now()
	verifier, ok := s.loadOne(r, s.verifier, now)
	if !ok {
		return nil, false
	}
	nonce, ok := s.loadOne(r, s.nonce, now)
	if !ok {
		return nil, false
	}
	state, ok := s.loadOne(r, s.state, now)
	if !ok {
		return nil, false
	}
	return &Transaction{Verifier: verifier, Nonce: nonce, State: state}, true
}

func (s *TransactionStore) loadOne(r *http.Request, cookie *middleware.SecureCookie, now time.Time) (string, bool) {
	c, err := r.Cookie(cookie.Name())
	if err != nil {
		return "", false
	}
	var entry txEntry
	if err := cookie.Decode(c, &entry); err != nil {
		return "", false
	}
	if entry.Value == "" || entry.ExpiresAt.IsZero() || now.After(entry.ExpiresAt) {
		return "", false
	}
	return entry.Value, true
}

// Clear removes all transaction cookies. It runs on success and on every
// terminal failure so no verifier survives past one attempt.
func (s *TransactionStore) Clear(w http.ResponseWriter) {
	http.SetCookie(w, s.verifier.Clear())
	http.SetCookie(w, s.nonce.Clear())
	http.SetCookie(w, s.state.Clear())
}
