// Command server is a runnable demonstration of the login flow: it mounts
// the federation endpoints next to a minimal login page and dashboard.
//
// Configuration comes from AUTHBRIDGE_* environment variables (a .env file
// is honored). Point it at any OpenID Connect provider:
//
//	AUTHBRIDGE_ISSUER=https://accounts.google.com
//	AUTHBRIDGE_CLIENT_ID=...
//	AUTHBRIDGE_CLIENT_SECRET=...
//	AUTHBRIDGE_PUBLIC_URL=http://localhost:8080
//	AUTHBRIDGE_COOKIE_SECURE=false
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"html/template"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/lifeapp/authbridge/endpoint"
	"github.com/lifeapp/authbridge/federation"
	"github.com/lifeapp/authbridge/identity"
	"github.com/lifeapp/authbridge/identity/sqlite"
	"github.com/lifeapp/authbridge/middleware"
)

const loginPage = `
<!DOCTYPE html>
<html>
<head><title>Sign in</title></head>
<body>
	<h1>Sign in</h1>
	{{if .Error}}<p>Login failed: {{.Error}}</p>{{end}}
	<a href="/auth/login">Sign in with your identity provider</a>
</body>
</html>
`

const dashboardPage = `
<!DOCTYPE html>
<html>
<head><title>Dashboard</title></head>
<body>
	<h1>Dashboard</h1>
	<p>Welcome, {{.Name}}{{if .Email}} ({{.Email}}){{end}}.</p>
	<a href="/auth/logout">Sign out</a>
</body>
</html>
`

// LoginParams carry the coarse error code a failed attempt redirects with.
type LoginParams struct {
	Error string `query:"error"`
}

func loginEndpoint(tmpl *template.Template) endpoint.EndpointFunc[LoginParams] {
	return func(w http.ResponseWriter, r *http.Request, params LoginParams) (endpoint.Renderer, error) {
		return &endpoint.HTMLTemplateRenderer{
			Template: tmpl,
			Values:   struct{ Error string }{Error: params.Error},
		}, nil
	}
}

func dashboardEndpoint(h *federation.Handler, tmpl *template.Template) endpoint.EndpointFunc[struct{}] {
	return func(w http.ResponseWriter, r *http.Request, _ struct{}) (endpoint.Renderer, error) {
		user, err := h.CurrentUser(r.Context())
		if err != nil {
			return &endpoint.RedirectRenderer{URL: "/login", Status: http.StatusFound}, nil
		}
		return &endpoint.HTMLTemplateRenderer{
			Template: tmpl,
			Values:   user,
		}, nil
	}
}

// cookieKeys loads the sealing key from AUTHBRIDGE_COOKIE_KEY (base64url,
// 32 bytes) or generates a throwaway one. A generated key invalidates all
// cookies on restart, which is fine for a demo and nothing else.
func cookieKeys(logger *slog.Logger) (map[string][]byte, error) {
	if raw := os.Getenv("AUTHBRIDGE_COOKIE_KEY"); raw != "" {
		key, err := base64.RawURLEncoding.DecodeString(raw)
		if err != nil {
			return nil, err
		}
		return map[string][]byte{"k1": key}, nil
	}
	logger.Warn("AUTHBRIDGE_COOKIE_KEY not set, generating an ephemeral key")
	key := make([]byte, middleware.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return map[string][]byte{"k1": key}, nil
}

func openStore(logger *slog.Logger) (identity.Store, func(), error) {
	dbPath := os.Getenv("AUTHBRIDGE_DB")
	if dbPath == "" {
		logger.Warn("AUTHBRIDGE_DB not set, users will not survive a restart")
		return identity.NewMemStore(), func() {}, nil
	}
	store, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}

	cfg, err := federation.FromEnv()
	if err != nil {
		logger.Error("load configuration", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	keys, err := cookieKeys(logger)
	if err != nil {
		logger.Error("load cookie key", "err", err)
		os.Exit(1)
	}

	store, closeStore, err := openStore(logger)
	if err != nil {
		logger.Error("open identity store", "err", err)
		os.Exit(1)
	}
	defer closeStore()

	provider, err := federation.Discover(context.Background(), cfg)
	if err != nil {
		logger.Error("provider discovery", "err", err)
		os.Exit(1)
	}

	headers := middleware.NewSecurityHeadersProcessor()
	authHandler, err := federation.NewHandler(cfg, provider, store, "k1", keys,
		federation.WithLogger(logger),
		federation.WithProcessors(headers),
	)
	if err != nil {
		logger.Error("build auth handler", "err", err)
		os.Exit(1)
	}

	loginTmpl := template.Must(template.New("login").Parse(loginPage))
	dashTmpl := template.Must(template.New("dashboard").Parse(dashboardPage))

	mux := http.NewServeMux()
	mux.Handle("/auth/", authHandler)
	mux.HandleFunc("GET /login", endpoint.HandleFunc(loginEndpoint(loginTmpl), headers))
	mux.HandleFunc("GET /dashboard", endpoint.HandleFunc(dashboardEndpoint(authHandler, dashTmpl), authHandler.Sessions(), headers))
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusFound)
	})

	addr := os.Getenv("AUTHBRIDGE_LISTEN")
	if addr == "" {
		addr = ":8080"
	}
	logger.Info("listening", "addr", addr, "issuer", cfg.Issuer)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("server exited", "err", err)
		os.Exit(1)
	}
}
