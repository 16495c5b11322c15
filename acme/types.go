// Package acme implements the ACME v2 issuance core: it registers an
// account, drives one order per CSR through authorization, challenge
// response, finalization, and certificate download, delegating the
// physical placement of challenge content to an external hook.
package acme

import (
	"log/slog"

	"github.com/yourusername/acmehook/internal/hook"
	"github.com/yourusername/acmehook/internal/jose"
)

// CSR is one certificate signing request to submit, opaque apart from
// the DNS names the caller has already extracted from it.
type CSR struct {
	// ID is a caller-chosen label used only for correlation: log lines
	// and the path handed to the write hook verb.
	ID string
	// DER is the raw PKCS#10 request bytes.
	DER []byte
	// DNSNames are the subject names this CSR covers.
	DNSNames []string
}

// Input is the entire configuration surface of the core.
type Input struct {
	// AccountKey signs every JWS envelope and derives the account JWK.
	AccountKey jose.Signer
	// CSRs is the set of certificate requests to submit in one session.
	CSRs []CSR
	// DirectoryURL is the CA's ACME directory endpoint.
	DirectoryURL string
	// Contact is an optional list of contact URIs, e.g. "mailto:...".
	Contact []string
	// HookPath is the executable invoked for setup/activate/check/
	// remove/finish/write.
	HookPath string
	// HookArgs are static arguments prepended before the verb on every
	// hook invocation.
	HookArgs []string
	// ChallengeType selects which challenge the driver looks for on
	// each authorization: "http-01" or "dns-01".
	ChallengeType string
	// DisableCheck skips the check hook verb entirely when true.
	DisableCheck bool

	// HookRunner overrides the default hook.Hook process invoker. Tests
	// substitute an in-process fake here instead of spawning a real
	// executable.
	HookRunner hook.Runner

	Logger *slog.Logger
}

// Result is one successfully issued certificate.
type Result struct {
	ID                  string
	CertificateChainPEM []byte
}

// orderStatus models the lifecycle of a single CSR's order as it moves
// through the session, replacing the pattern of deleting an order from
// a shared mutable list when something about it fails.
type orderStatus int

const (
	orderPending orderStatus = iota
	orderCheckFailed
	orderAuthFailed
	orderFinalized
	orderFinalizeFailed
)

func (s orderStatus) String() string {
	switch s {
	case orderPending:
		return "pending"
	case orderCheckFailed:
		return "checkFailed"
	case orderAuthFailed:
		return "authFailed"
	case orderFinalized:
		return "finalized"
	case orderFinalizeFailed:
		return "finalizeFailed"
	default:
		return "unknown"
	}
}

// orderState tracks one CSR's progress through the session.
type orderState struct {
	csr      CSR
	order    jose.Order
	orderURL string
	status   orderStatus
	cert     []byte
}

// challengeTask is the ephemeral record created once a challenge has
// been selected and its setup hook invoked, and discarded once its
// remove hook has run.
type challengeTask struct {
	domain        string
	token         string
	content       string
	challengeURL  string
	authURL       string
	owningOrderID string // CSR.ID of the order this task belongs to
}
