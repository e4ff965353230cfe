package middleware

// Session middleware for the endpoint processor chain.
//
// A session is the credential issued after a completed login: it records
// which local user authenticated and until when. Unlike general-purpose web
// sessions it has a fixed lifetime: it is never extended on use, only
// reissued by a fresh authentication.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/lifeapp/authbridge/endpoint"
)

var ErrNilSession = errors.New("nil session")

// sessionIDBytes is the entropy of a session identifier.
// 16 bytes -> 22 chars raw URL base64.
const sessionIDBytes = 16

// DefaultSessionTTL is the session lifetime. Sessions are renewable only by
// re-authenticating, so this is also the maximum lifetime.
const DefaultSessionTTL = time.Hour

// DefaultSessionCookieName is the default name for the session cookie.
const DefaultSessionCookieName = "lbs"

// Session is the request-scoped view of the caller's authentication state.
type Session interface {
	// ID returns the session identifier, or "" when not logged in.
	ID() string
	// UserID returns the authenticated local user id. The second value
	// reports whether the caller is logged in.
	UserID() (string, bool)
	// Subject returns the identity provider's stable subject for the
	// logged-in user, or "" when not logged in.
	Subject() string
	// DisplayName returns the user's display name, or "" when not logged in.
	DisplayName() string
	// Expires returns the absolute expiry, or the zero time when not
	// logged in.
	Expires() time.Time
	// Login replaces any existing session with a fresh one for the given
	// user. A new session ID is always generated (session fixation).
	Login(userID, subject, displayName string) error
	// Logout discards the session. The cookie is cleared when the
	// response is written.
	Logout() error
}

// sessionData is the sealed cookie payload.
type sessionData struct {
	ID          string    `cbor:"1,keyasint"`
	UserID      string    `cbor:"2,keyasint"`
	Subject     string    `cbor:"3,keyasint,omitempty"`
	DisplayName string    `cbor:"4,keyasint,omitempty"`
	Expires     time.Time `cbor:"5,keyasint"`
}

func (sd *sessionData) valid(now time.Time) bool {
	if sd == nil || sd.UserID == "" {
		return false
	}
	if sd.Expires.IsZero() || !now.Before(sd.Expires) {
		return false
	}
	return true
}

type session struct {
	data  *sessionData
	ttl   time.Duration
	dirty bool
}

func (s *session) ID() string {
	if s == nil || s.data == nil {
		return ""
	}
	return s.data.ID
}

func (s *session) UserID() (string, bool) {
	if s == nil || s.data == nil {
		return "", false
	}
	return s.data.UserID, true
}

func (s *session) Subject() string {
	if s == nil || s.data == nil {
		return ""
	}
	return s.data.Subject
}

func (s *session) DisplayName() string {
	if s == nil || s.data == nil {
		return ""
	}
	return s.data.DisplayName
}

func (s *session) Expires() time.Time {
	if s == nil || s.data == nil {
		return time.Time{}
	}
	return s.data.Expires
}

func (s *session) Login(userID, subject, displayName string) error {
	if s == nil {
		return ErrNilSession
	}
	if userID == "" {
		return errors.New("session: empty user id")
	}
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return err
	}
	ttl := s.ttl
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	s.data = &sessionData{
		ID:          base64.RawURLEncoding.EncodeToString(b),
		UserID:      userID,
		Subject:     subject,
		DisplayName: displayName,
		Expires:     time.Now().Truncate(time.Second).Add(ttl),
	}
	s.dirty = true
	return nil
}

func (s *session) Logout() error {
	if s == nil {
		return ErrNilSession
	}
	s.data = nil
	s.dirty = true
	return nil
}

type sessionContextKey struct{}

// WithSession stores sess in ctx.
func WithSession(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext returns the Session stored in ctx, if any.
func SessionFromContext(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(Session)
	if !ok || sess == nil {
		return nil, false
	}
	return sess, true
}

// SessionProcessor reads, validates and persists the session cookie around
// each request.
//
// An unreadable, tampered or expired cookie yields an unauthenticated
// session AND clears the stale cookie in the response; the processor never
// guesses an identity from a cookie it cannot fully verify.
type SessionProcessor struct {
	cookie *SecureCookie
	ttl    time.Duration
}

// SessionProcessorOption configures a SessionProcessor.
type SessionProcessorOption func(*sessionProcessorConfig)

type sessionProcessorConfig struct {
	cookieName    string
	cookieOptions []SecureCookieOption
	ttl           time.Duration
}

// WithSessionCookieName overrides the session cookie name.
func WithSessionCookieName(name string) SessionProcessorOption {
	return func(c *sessionProcessorConfig) { c.cookieName = name }
}

// WithSessionCookieOptions forwards options to the underlying SecureCookie.
func WithSessionCookieOptions(opts ...SecureCookieOption) SessionProcessorOption {
	return func(c *sessionProcessorConfig) { c.cookieOptions = append(c.cookieOptions, opts...) }
}

// WithSessionTTL overrides the session lifetime.
func WithSessionTTL(d time.Duration) SessionProcessorOption {
	return func(c *sessionProcessorConfig) { c.ttl = d }
}

// NewSessionProcessor creates a SessionProcessor sealing sessions with the
// given keys.
func NewSessionProcessor(keyID string, keys map[string][]byte, opts ...SessionProcessorOption) (*SessionProcessor, error) {
	cfg := sessionProcessorConfig{
		cookieName: DefaultSessionCookieName,
		ttl:        DefaultSessionTTL,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cookie, err := NewSecureCookie(cfg.cookieName, keyID, keys, cfg.cookieOptions...)
	if err != nil {
		return nil, err
	}
	return &SessionProcessor{cookie: cookie, ttl: cfg.ttl}, nil
}

// Process implements endpoint.Processor.
func (p *SessionProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	if p == nil || p.cookie == nil {
		return errors.New("session processor requires a secure cookie")
	}

	sess := &session{ttl: p.ttl}

	if c, err := r.Cookie(p.cookie.Name()); err == nil {
		var data sessionData
		if decErr := p.cookie.Decode(c, &data); decErr == nil && data.valid(time.Now()) {
			sess.data = &data
		} else {
			// Present but unusable: clear it when the response goes out.
			sess.dirty = true
		}
	}

	endpoint.Defer(r.Context(), func(w http.ResponseWriter) {
		p.persist(w, sess)
	})

	*r = *r.WithContext(WithSession(r.Context(), sess))
	return next(w, r)
}

func (p *SessionProcessor) persist(w http.ResponseWriter, sess *session) {
	if sess == nil || !sess.dirty {
		return
	}
	if sess.data == nil {
		http.SetCookie(w, p.cookie.Clear())
		return
	}
	maxAge := int(time.Until(sess.data.Expires).Seconds())
	if maxAge <= 0 {
		http.SetCookie(w, p.cookie.Clear())
		return
	}
	if c, err := p.cookie.Encode(*sess.data, maxAge); err == nil {
		http.SetCookie(w, c)
	}
}

var _ endpoint.Processor = (*SessionProcessor)(nil)
var _ Session = (*session)(nil)
