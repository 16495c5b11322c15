// Package jose implements the JWS-over-HTTP transport that an ACME v2
// client drives: request signing, nonce management, and the wire types
// exchanged with the CA.
package jose

import "fmt"

// Directory is fetched once per session from the CA's directory URL.
// https://datatracker.ietf.org/doc/html/rfc8555#section-7.1.1
type Directory struct {
	NewNonceURL   string `json:"newNonce,omitempty"`
	NewAccountURL string `json:"newAccount,omitempty"`
	NewOrderURL   string `json:"newOrder,omitempty"`
	NewAuthz      string `json:"newAuthz,omitempty"`
	RevokeCert    string `json:"revokeCert,omitempty"`
	KeyChange     string `json:"keyChange,omitempty"`
}

// Identifier names a subject the account wants to prove control over.
// https://datatracker.ietf.org/doc/html/rfc8555#section-7.1.3
type Identifier struct {
	Type  string `json:"type,omitempty"`
	Value string `json:"value,omitempty"`
}

// Account is the newAccount request/response body.
// https://datatracker.ietf.org/doc/html/rfc8555#section-7.1.2
type Account struct {
	Contact              []string `json:"contact,omitempty"`
	TermsOfServiceAgreed bool     `json:"termsOfServiceAgreed,omitempty"`
	Status               string   `json:"status,omitempty"`
	Orders               string   `json:"orders,omitempty"`
	OnlyReturnExisting   bool     `json:"onlyReturnExisting,omitempty"`
}

func (a Account) String() string {
	return fmt.Sprintf("account{Status: %s, Contact: %s, Orders: %s}", a.Status, a.Contact, a.Orders)
}

// Order tracks a client's request for a certificate.
// https://datatracker.ietf.org/doc/html/rfc8555#section-7.1.3
type Order struct {
	Identifiers    []Identifier `json:"identifiers,omitempty"`
	Authorizations []string     `json:"authorizations,omitempty"`
	Status         string       `json:"status"`
	FinalizeURL    string       `json:"finalize"`
	CertificateURL string       `json:"certificate"`
	Expires        string       `json:"expires,omitempty"`
	NotBefore      string       `json:"notBefore,omitempty"`
	NotAfter       string       `json:"notAfter,omitempty"`
	Error          *ProblemDetails `json:"error,omitempty"`
}

func (o Order) String() string {
	return fmt.Sprintf("order{Status: %s, Identifiers: %v, FinalizeURL: %s}", o.Status, o.Identifiers, o.FinalizeURL)
}

// Challenge is one proposed way to demonstrate control of an identifier.
// https://datatracker.ietf.org/doc/html/rfc8555#section-8
type Challenge struct {
	Type      string          `json:"type,omitempty"`
	Url       string          `json:"url"`
	Status    string          `json:"status"`
	Token     string          `json:"token,omitempty"`
	Validated string          `json:"validated,omitempty"`
	Error     *ProblemDetails `json:"error,omitempty"`
}

func (c Challenge) String() string {
	return fmt.Sprintf("challenge{Type: %s, Status: %s, Token: %s}", c.Type, c.Status, c.Token)
}

// Authorization represents proof of control over a single identifier.
// https://datatracker.ietf.org/doc/html/rfc8555#section-7.1.4
type Authorization struct {
	Identifier Identifier  `json:"identifier,omitempty"`
	Status     string      `json:"status,omitempty"`
	Challenges []Challenge `json:"challenges,omitempty"`
	Expires    string      `json:"expires,omitempty"`
	Wildcard   bool        `json:"wildcard,omitempty"`
}

func (a Authorization) String() string {
	return fmt.Sprintf("authorization{Identifier: %v, Status: %s}", a.Identifier, a.Status)
}

// Protected is the JWS protected header.
// https://datatracker.ietf.org/doc/html/rfc8555#section-6.2
type Protected struct {
	Alg   string `json:"alg,omitempty"`
	Nonce string `json:"nonce,omitempty"`
	Url   string `json:"url,omitempty"`

	// Jwk and Kid are mutually exclusive; the server rejects requests
	// carrying both. Pointers keep an absent field out of the JSON entirely.
	Jwk *JWK   `json:"jwk,omitempty"`
	Kid string `json:"kid,omitempty"`
}

// JWK is the canonical RSA public key encoding used for the account
// thumbprint. Field order is significant: e, kty, n.
// https://datatracker.ietf.org/doc/html/rfc7638#section-3.3
type JWK struct {
	E   string `json:"e"`
	Kty string `json:"kty"`
	N   string `json:"n"`
}

// JSONWebSignature is the envelope POSTed to the CA for every signed request.
type JSONWebSignature struct {
	Protected string `json:"protected,omitempty"`
	// Payload must not be omitempty: POST-as-GET requires an explicit
	// empty string, not an absent field.
	Payload   string `json:"payload"`
	Signature string `json:"signature,omitempty"`
}

// CertificateRequest is the finalize request body.
// https://datatracker.ietf.org/doc/html/rfc8555#section-7.4
type CertificateRequest struct {
	CSR string `json:"csr,omitempty"`
}

// StatusResponse is the only field the order/authorization driver cares
// about on a POST-as-GET poll.
type StatusResponse struct {
	Status string `json:"status,omitempty"`
}

// ProblemDetails is an RFC 7807 problem document, as returned by ACME
// servers on any non-2xx response.
// https://datatracker.ietf.org/doc/html/rfc8555#section-6.7
type ProblemDetails struct {
	Type     string `json:"type,omitempty"`
	Detail   string `json:"detail,omitempty"`
	Title    string `json:"title,omitempty"`
	Instance string `json:"instance,omitempty"`
	// RespCode is the HTTP status code that carried this problem document.
	// It is not part of the RFC 7807 JSON; callers set it from the response.
	RespCode int `json:"-"`
}

func (p *ProblemDetails) Error() string {
	return fmt.Sprintf("acme: %s: %s (http %d)", p.Type, p.Detail, p.RespCode)
}

// IsBadNonce reports whether p is the retryable badNonce error.
// https://datatracker.ietf.org/doc/html/rfc8555#section-6.7
func (p *ProblemDetails) IsBadNonce() bool {
	return p != nil && p.Type == "urn:ietf:params:acme:error:badNonce"
}
