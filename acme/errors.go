package acme

import (
	"fmt"

	acmeErrors "github.com/yourusername/acmehook/errors"
)

// CryptoError reports a failure to derive the key authorization from the
// account key. Always fatal. A signing failure inside the jose package is
// returned as that package's error, not as a CryptoError.
type CryptoError struct{ Err error }

func (e *CryptoError) Error() string { return fmt.Sprintf("acme: crypto error: %v", e.Err) }
func (e *CryptoError) Unwrap() error { return e.Err }

// NetworkError reports a context cancellation observed while polling.
// Transport failures and non-2xx responses are returned as the jose
// package's errors, not as a NetworkError.
type NetworkError struct{ Err error }

func (e *NetworkError) Error() string { return fmt.Sprintf("acme: network error: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// ProtocolError reports invalid Input or an unusable CA response seen
// by the order driver or session: an undecodable body, a missing
// Location header, no challenge of the requested type, or an unexpected
// poll status. Raised while polling an authorization or order it drops
// only the owning order; elsewhere it is fatal. A missing Replay-Nonce
// header is reported by the jose package's own error, and directory
// fields are not checked up front.
type ProtocolError struct{ Err error }

func (e *ProtocolError) Error() string { return fmt.Sprintf("acme: protocol error: %v", e.Err) }
func (e *ProtocolError) Unwrap() error { return e.Err }

// ErrNoMatchingChallenge is a ProtocolError raised when an
// authorization offers no challenge of the requested type. The source
// this core is modeled on leaves that case undefined; this is the
// explicit failure a port must raise instead.
func ErrNoMatchingChallenge(domain, challengeType string) error {
	return wrapProtocol(fmt.Errorf("no %s challenge offered for %s", challengeType, domain))
}

// PollingTimeoutError reports that an authorization or order did not
// reach a terminal state within the polling cap. Scoped to the order
// being polled.
type PollingTimeoutError struct {
	Resource string
	URL      string
}

func (e *PollingTimeoutError) Error() string {
	return fmt.Sprintf("acme: polling timeout waiting on %s %s", e.Resource, e.URL)
}

// AuthorizationFailureError reports that an authorization reached a
// terminal state other than valid. Scoped: only the owning order is
// dropped.
type AuthorizationFailureError struct {
	Domain string
	Status string
}

func (e *AuthorizationFailureError) Error() string {
	return fmt.Sprintf("acme: authorization for %s ended in status %q", e.Domain, e.Status)
}

// CheckHookFailureError reports a non-fatal check-hook failure. Scoped:
// only the owning order is dropped.
type CheckHookFailureError struct {
	Domain string
	Err    error
}

func (e *CheckHookFailureError) Error() string {
	return fmt.Sprintf("acme: check hook failed for %s: %v", e.Domain, e.Err)
}
func (e *CheckHookFailureError) Unwrap() error { return e.Err }

// HookFailureError reports a failure of setup, activate, remove,
// finish, or write. Always fatal.
type HookFailureError struct {
	Verb string
	Err  error
}

func (e *HookFailureError) Error() string {
	return fmt.Sprintf("acme: hook %s failed: %v", e.Verb, e.Err)
}
func (e *HookFailureError) Unwrap() error { return e.Err }

// FinalizeFailureError reports that an order's terminal status after
// finalize was invalid. Scoped: only that CSR is dropped.
type FinalizeFailureError struct {
	CSRID string
}

func (e *FinalizeFailureError) Error() string {
	return fmt.Sprintf("acme: finalize failed for csr %s", e.CSRID)
}

func wrapCrypto(err error) error   { return acmeErrors.Wrap(&CryptoError{Err: err}) }
func wrapNetwork(err error) error  { return acmeErrors.Wrap(&NetworkError{Err: err}) }
func wrapProtocol(err error) error { return acmeErrors.Wrap(&ProtocolError{Err: err}) }
