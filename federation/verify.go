package federation

import "crypto/subtle"

// CallbackParams are the provider-appended query parameters on the redirect
// back to this application.
type CallbackParams struct {
	Code      string `query:"code"`
	State     string `query:"state"`
	Error     string `query:"error"`
	ErrorDesc string `query:"error_description"`
}

// verifiedCallback is the input handed to the token exchange once the
// callback has been verified.
type verifiedCallback struct {
	code     string
	verifier string
	nonce    string
}

// verifyCallback runs the callback state machine. Transitions are evaluated
// in order and the first match wins:
//
//  1. provider-supplied error parameter -> ProviderError
//  2. transaction absent (any value missing, or TTL expired) -> SessionExpired
//  3. state parameter differs from the stored state -> InvalidState
//  4. otherwise -> verified
//
// The ordering is deliberate: provider declines and expired attempts must
// stay distinguishable from forged-state callbacks, which are the ones that
// warrant security monitoring.
func verifyCallback(params CallbackParams, tx *Transaction, present bool) (verifiedCallback, *FlowError) {
	if params.Error != "" {
		return verifiedCallback{}, &FlowError{Kind: KindProviderError, ProviderCode: params.Error}
	}
	if !present || tx == nil || tx.Verifier == "" || tx.Nonce == "" || tx.State == "" {
		return verifiedCallback{}, flowErrf(KindSessionExpired, "transaction state missing or expired")
	}
	if subtle.ConstantTimeCompare([]byte(params.State), []byte(tx.State)) != 1 {
		return verifiedCallback{}, flowErrf(KindInvalidState, "state parameter does not match stored state")
	}
	return verifiedCallback{code: params.Code, verifier: tx.Verifier, nonce: tx.Nonce}, nil
}
