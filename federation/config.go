package federation

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries everything the flow needs about the provider and this
// deployment. It is passed explicitly into each component rather than read
// from process-wide state, so tests can point the flow at a mock provider.
type Config struct {
	// Issuer is the provider's OIDC issuer URL, used for discovery and
	// ID-token issuer validation.
	Issuer string `env:"AUTHBRIDGE_ISSUER"`
	// ClientID and ClientSecret identify this relying party.
	ClientID     string `env:"AUTHBRIDGE_CLIENT_ID"`
	ClientSecret string `env:"AUTHBRIDGE_CLIENT_SECRET"`

	// PublicURL is the externally visible base URL of this application,
	// e.g. "https://app.example.com".
	PublicURL string `env:"AUTHBRIDGE_PUBLIC_URL"`
	// BasePath is where the flow's endpoints are mounted.
	BasePath string `env:"AUTHBRIDGE_BASE_PATH" envDefault:"/auth"`

	// Scopes requested from the provider, space-delimited on the wire.
	Scopes []string `env:"AUTHBRIDGE_SCOPES" envSeparator:"," envDefault:"openid,profile,email"`

	// LoginURL receives failed attempts (with an error query parameter);
	// DashboardURL receives successful ones.
	LoginURL     string `env:"AUTHBRIDGE_LOGIN_URL" envDefault:"/login"`
	DashboardURL string `env:"AUTHBRIDGE_DASHBOARD_URL" envDefault:"/dashboard"`

	// TransactionTTL bounds one login attempt; SessionTTL bounds the
	// issued session. Sessions are renewable only by re-authenticating.
	TransactionTTL time.Duration `env:"AUTHBRIDGE_TRANSACTION_TTL" envDefault:"10m"`
	SessionTTL     time.Duration `env:"AUTHBRIDGE_SESSION_TTL" envDefault:"1h"`

	// ExchangeTimeout caps the token-exchange round trip; on expiry the
	// attempt fails with an upstream error and its state is cleared.
	ExchangeTimeout time.Duration `env:"AUTHBRIDGE_EXCHANGE_TIMEOUT" envDefault:"10s"`

	// CookieSecure marks all flow cookies Secure. Disable only for local
	// plain-HTTP development.
	CookieSecure bool `env:"AUTHBRIDGE_COOKIE_SECURE" envDefault:"true"`
}

// FromEnv loads a Config from AUTHBRIDGE_* environment variables.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate reports missing or malformed required fields. It runs at
// construction time so a misconfigured deployment fails fast instead of
// emitting broken authorization URLs to users.
func (c Config) Validate() error {
	var problems []error
	if strings.TrimSpace(c.Issuer) == "" {
		problems = append(problems, errors.New("issuer is required"))
	}
	if strings.TrimSpace(c.ClientID) == "" {
		problems = append(problems, errors.New("client id is required"))
	}
	if strings.TrimSpace(c.PublicURL) == "" {
		problems = append(problems, errors.New("public URL is required"))
	} else if u, err := url.Parse(c.PublicURL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, fmt.Errorf("public URL %q must be absolute", c.PublicURL))
	}
	if len(c.Scopes) == 0 {
		problems = append(problems, errors.New("at least one scope is required"))
	}
	if c.TransactionTTL <= 0 {
		problems = append(problems, errors.New("transaction TTL must be positive"))
	}
	if c.SessionTTL <= 0 {
		problems = append(problems, errors.New("session TTL must be positive"))
	}
	return errors.Join(problems...)
}

// CallbackURL is the redirect URI registered with the provider.
func (c Config) CallbackURL() string {
	u, err := url.Parse(c.PublicURL)
	if err != nil {
		return strings.TrimRight(c.PublicURL, "/") + path.Join("/", c.BasePath, "callback")
	}
	u.Path = path.Join(u.Path, c.BasePath, "callback")
	return u.String()
}

// failureURL builds the login-page redirect for a failed attempt.
func (c Config) failureURL(kind Kind) string {
	sep := "?"
	if strings.Contains(c.LoginURL, "?") {
		sep = "&"
	}
	return c.LoginURL + sep + "error=" + kind.RedirectCode()
}
