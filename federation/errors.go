package federation

import "fmt"

// Kind classifies a login-flow failure. Every terminal failure in the
// callback path maps to exactly one Kind, and each Kind to the coarse error
// code carried on the redirect back to the login page; no internal or
// provider detail crosses to the browser.
type Kind int

const (
	// KindProviderError: the provider declined or the user cancelled.
	KindProviderError Kind = iota + 1
	// KindSessionExpired: transaction state missing or past its TTL; the
	// user must restart the flow.
	KindSessionExpired
	// KindInvalidState: the callback state does not match the stored one.
	// Treated as a suspected forgery; never retried.
	KindInvalidState
	// KindTokenValidationFailed: the exchange completed but the ID token
	// failed nonce/issuer/audience/signature checks.
	KindTokenValidationFailed
	// KindUpstreamUnavailable: network failure or timeout talking to the
	// provider.
	KindUpstreamUnavailable
	// KindPersistenceError: the identity store failed during
	// reconciliation; no session is issued.
	KindPersistenceError
)

func (k Kind) String() string {
	switch k {
	case KindProviderError:
		return "provider_error"
	case KindSessionExpired:
		return "session_expired"
	case KindInvalidState:
		return "invalid_state"
	case KindTokenValidationFailed:
		return "token_validation_failed"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	case KindPersistenceError:
		return "persistence_error"
	}
	return "unknown"
}

// RedirectCode is the coarse error code appended to the login-page redirect.
func (k Kind) RedirectCode() string {
	switch k {
	case KindProviderError:
		return "auth_failed"
	case KindSessionExpired:
		return "session_expired"
	case KindInvalidState:
		return "invalid_state"
	default:
		return "callback_failed"
	}
}

// FlowError is a classified login-flow failure.
type FlowError struct {
	Kind Kind
	// ProviderCode is the provider's error parameter, set only for
	// KindProviderError.
	ProviderCode string
	Err          error
}

func (e *FlowError) Error() string {
	if e == nil {
		return "federation: <nil>"
	}
	msg := "federation: " + e.Kind.String()
	if e.ProviderCode != "" {
		msg += ": provider returned " + e.ProviderCode
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FlowError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func flowErr(kind Kind, err error) *FlowError {
	return &FlowError{Kind: kind, Err: err}
}

func flowErrf(kind Kind, format string, args ...any) *FlowError {
	return &FlowError{Kind: kind, Err: fmt.Errorf(format, args...)}
}
