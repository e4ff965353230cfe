package federation

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"time"

	"github.com/lifeapp/authbridge/endpoint"
	"github.com/lifeapp/authbridge/identity"
	"github.com/lifeapp/authbridge/middleware"
)

// UserIDCookieName is the non-HTTP-only cookie carrying the internal user
// id after a successful login, for browser-side consumers. It grants no
// authority; the session cookie remains the credential.
const UserIDCookieName = "lb_uid"

// Handler mounts the flow's HTTP endpoints:
//
//	GET {base}/login     start a login attempt and redirect to the provider
//	GET {base}/callback  complete (or fail) the attempt
//	GET {base}/logout    discard the session
//
// Success redirects to the dashboard URL; every terminal failure redirects
// to the login URL with a coarse error code. Transaction cookies are
// cleared on both paths.
type Handler struct {
	mux      *http.ServeMux
	cfg      Config
	provider *Provider
	tx       *TransactionStore
	sessions *middleware.SessionProcessor
	rec      *Reconciler
	store    identity.Store
	logger   *slog.Logger

	processors []endpoint.Processor
}

// Option configures the Handler.
type Option func(*Handler)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithProcessors appends middleware processors to every flow endpoint.
func WithProcessors(p ...endpoint.Processor) Option {
	return func(h *Handler) { h.processors = append(h.processors, p...) }
}

// NewHandler wires the flow together. keys seal both the transaction and
// session cookies; keyID selects the sealing key.
func NewHandler(cfg Config, provider *Provider, store identity.Store, keyID string, keys map[string][]byte, opts ...Option) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	h := &Handler{
		mux:      http.NewServeMux(),
		cfg:      cfg,
		provider: provider,
		rec:      NewReconciler(store),
		store:    store,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}

	tx, err := NewTransactionStore(keyID, keys, cfg.TransactionTTL,
		middleware.WithSecure(cfg.CookieSecure),
	)
	if err != nil {
		return nil, err
	}
	h.tx = tx

	sessions, err := middleware.NewSessionProcessor(keyID, keys,
		middleware.WithSessionTTL(cfg.SessionTTL),
		middleware.WithSessionCookieOptions(middleware.WithSecure(cfg.CookieSecure)),
	)
	if err != nil {
		return nil, err
	}
	h.sessions = sessions

	chain := append([]endpoint.Processor{sessions}, h.processors...)
	base := path.Join("/", cfg.BasePath)
	h.mux.HandleFunc("GET "+path.Join(base, "login"), endpoint.HandleFunc(h.login, chain...))
	h.mux.HandleFunc("GET "+path.Join(base, "callback"), endpoint.HandleFunc(h.callback, chain...))
	h.mux.HandleFunc("GET "+path.Join(base, "logout"), endpoint.HandleFunc(h.logout, chain...))
	return h, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Sessions exposes the session processor so the application can guard its
// own routes with the same sessions the flow issues.
func (h *Handler) Sessions() *middleware.SessionProcessor {
	return h.sessions
}

// CurrentUser resolves the request's session to the stored identity
// record. It returns identity.ErrNotFound both for anonymous requests and
// for sessions whose user no longer resolves.
func (h *Handler) CurrentUser(ctx context.Context) (identity.User, error) {
	sess, ok := middleware.SessionFromContext(ctx)
	if !ok {
		return identity.User{}, identity.ErrNotFound
	}
	if _, loggedIn := sess.UserID(); !loggedIn {
		return identity.User{}, identity.ErrNotFound
	}
	return h.store.FindBySubject(ctx, sess.Subject())
}

// login starts a new attempt: generate the transaction, seal it into the
// browser's cookies, and send the user to the provider.
func (h *Handler) login(w http.ResponseWriter, r *http.Request, _ struct{}) (endpoint.Renderer, error) {
	tx, err := BeginTransaction()
	if err != nil {
		return nil, endpoint.Error(http.StatusInternalServerError, "failed to start login", err)
	}
	if err := h.tx.Save(w, tx); err != nil {
		return nil, endpoint.Error(http.StatusInternalServerError, "failed to save login state", err)
	}
	return &endpoint.RedirectRenderer{URL: h.provider.AuthorizationURL(tx), Status: http.StatusFound}, nil
}

// callback completes the attempt. Transaction cookies are cleared first
// thing so no verifier outlives this request, whatever the outcome.
func (h *Handler) callback(w http.ResponseWriter, r *http.Request, params CallbackParams) (endpoint.Renderer, error) {
	tx, present := h.tx.Load(r)
	h.tx.Clear(w)

	verified, ferr := verifyCallback(params, tx, present)
	if ferr != nil {
		return h.fail(w, r, ferr)
	}

	ctx := r.Context()
	if h.cfg.ExchangeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.ExchangeTimeout)
		defer cancel()
	}
	claims, ferr := h.provider.Exchange(ctx, verified.code, verified.verifier, verified.nonce, h.logger)
	if ferr != nil {
		return h.fail(w, r, ferr)
	}

	user, ferr := h.rec.Reconcile(r.Context(), claims)
	if ferr != nil {
		return h.fail(w, r, ferr)
	}

	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		return h.fail(w, r, flowErr(KindPersistenceError, errors.New("no session in context")))
	}
	if err := sess.Login(user.ID, user.Subject, user.Name); err != nil {
		return h.fail(w, r, flowErr(KindPersistenceError, err))
	}
	h.setUserIDCookie(w, user.ID)

	return &endpoint.RedirectRenderer{URL: h.cfg.DashboardURL, Status: http.StatusFound}, nil
}

// logout discards the session and the user-id cookie.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request, _ struct{}) (endpoint.Renderer, error) {
	if sess, ok := middleware.SessionFromContext(r.Context()); ok {
		_ = sess.Logout()
	}
	h.clearUserIDCookie(w)
	return &endpoint.RedirectRenderer{URL: h.cfg.LoginURL, Status: http.StatusFound}, nil
}

// fail maps a flow failure onto the login-page redirect. State mismatches
// are logged louder than the rest: they are the signal a forged or replayed
// callback would leave.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, ferr *FlowError) (endpoint.Renderer, error) {
	switch ferr.Kind {
	case KindInvalidState:
		h.logger.Warn("login callback state mismatch",
			"outcome", ferr.Kind.String(),
			"remote", r.RemoteAddr,
		)
	default:
		h.logger.Info("login attempt failed",
			"outcome", ferr.Kind.String(),
			"err", ferr.Error(),
		)
	}
	h.clearUserIDCookie(w)
	return &endpoint.RedirectRenderer{URL: h.cfg.failureURL(ferr.Kind), Status: http.StatusFound}, nil
}

func (h *Handler) setUserIDCookie(w http.ResponseWriter, userID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     UserIDCookieName,
		Value:    userID,
		Path:     "/",
		MaxAge:   int(h.cfg.SessionTTL.Seconds()),
		Expires:  time.Now().Add(h.cfg.SessionTTL),
		Secure:   h.cfg.CookieSecure,
		HttpOnly: false,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearUserIDCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     UserIDCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
