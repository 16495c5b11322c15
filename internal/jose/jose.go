package jose

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	acmeErrors "github.com/yourusername/acmehook/errors"
)

// sha256Sum hashes the JWS signing input before it reaches the signer,
// since RS256 signs a digest rather than the raw bytes.
func sha256Sum(s string) []byte {
	sum := sha256.Sum256([]byte(s))
	return sum[:]
}

// maxBadNonceRetries bounds the total number of attempts Signed makes,
// each with a fresh nonce; after that many consecutive badNonce
// responses it gives up.
// https://datatracker.ietf.org/doc/html/rfc8555#section-6.5
const maxBadNonceRetries = 100

// Client drives the signed-request protocol over a Transport: nonce
// management, jwk/kid toggling, and badNonce retry. It holds no order
// or authorization state of its own — that belongs to the caller.
type Client struct {
	Transport *Transport
	Signer    Signer
	Directory Directory
	Logger    *slog.Logger

	// KeyID is the account's kid, set by the caller once newAccount has
	// returned a Location header. Every signed request uses jwk while
	// KeyID is empty and kid afterwards; the toggle lives here, not in
	// the request-building code, so the caller controls exactly when it
	// flips.
	KeyID string
}

// FetchDirectory GETs directoryURL and populates c.Directory.
// https://datatracker.ietf.org/doc/html/rfc8555#section-7.1.1
func (c *Client) FetchDirectory(ctx context.Context, directoryURL string) error {
	res, err := c.Transport.Request(ctx, "getDirectory", http.MethodGet, directoryURL, nil)
	if err != nil {
		return err
	}
	if res.Status != http.StatusOK {
		return acmeErrors.Wrap(problemFrom(res))
	}
	var d Directory
	if err := decodeJSON(res.Body, &d); err != nil {
		return acmeErrors.Wrap(fmt.Errorf("acme: malformed directory response: %w", err))
	}
	c.Directory = d
	return nil
}

// nonce fetches a fresh anti-replay token via the newNonce endpoint.
// https://datatracker.ietf.org/doc/html/rfc8555#section-7.2
func (c *Client) nonce(ctx context.Context) (string, error) {
	res, err := c.Transport.Request(ctx, "getNonce", http.MethodHead, c.Directory.NewNonceURL, nil)
	if err != nil {
		return "", err
	}
	if res.Status != http.StatusOK {
		return "", acmeErrors.Wrap(problemFrom(res))
	}
	n := res.Header.Get("Replay-Nonce")
	if n == "" {
		return "", acmeErrors.Wrap(fmt.Errorf("acme: newNonce response carried no Replay-Nonce header"))
	}
	return n, nil
}

// Signed performs a JWS-signed request against url. payload == nil
// means POST-as-GET: the JWS payload field is the empty string, not the
// JSON encoding of any value. A 400 response whose body is the
// badNonce problem type is retried transparently with a fresh nonce, for
// at most [maxBadNonceRetries] attempts in total.
func (c *Client) Signed(ctx context.Context, url string, payload []byte, purpose string) (Response, error) {
	for attempt := 0; attempt < maxBadNonceRetries; attempt++ {
		body, err := c.prepBody(ctx, url, payload)
		if err != nil {
			return Response{}, err
		}

		res, err := c.Transport.Request(ctx, purpose, http.MethodPost, url, body)
		if err != nil {
			return Response{}, err
		}

		switch res.Status {
		case http.StatusOK, http.StatusCreated, http.StatusNoContent:
			return res, nil
		}

		prob := problemFrom(res)
		if res.Status == http.StatusBadRequest && prob.IsBadNonce() {
			c.Logger.Info("acme badNonce retry", "purpose", purpose, "attempt", attempt+1)
			continue
		}

		return Response{}, acmeErrors.Wrap(fmt.Errorf("acme: %s: %w", purpose, prob))
	}

	return Response{}, acmeErrors.Wrap(fmt.Errorf("acme: %s: gave up after %d consecutive badNonce responses", purpose, maxBadNonceRetries))
}

func (c *Client) prepBody(ctx context.Context, url string, payload []byte) ([]byte, error) {
	nonce, err := c.nonce(ctx)
	if err != nil {
		return nil, err
	}

	prot := Protected{
		Alg:   "RS256",
		Nonce: nonce,
		Url:   url,
	}
	if c.KeyID == "" {
		jwk := EncodeJWK(c.Signer.Public())
		prot.Jwk = &jwk
	} else {
		prot.Kid = c.KeyID
	}

	protBytes, err := json.Marshal(prot)
	if err != nil {
		return nil, acmeErrors.Wrap(err)
	}
	prot64 := base64.RawURLEncoding.EncodeToString(protBytes)

	// POST-as-GET requires payload64 to be the literal empty string, not
	// the base64 of "null" or "{}".
	// https://datatracker.ietf.org/doc/html/rfc8555#section-6.3
	payload64 := ""
	if len(payload) != 0 {
		payload64 = base64.RawURLEncoding.EncodeToString(payload)
	}

	signingInput := prot64 + "." + payload64
	digest := sha256Sum(signingInput)
	sig, err := c.Signer.Sign(digest)
	if err != nil {
		return nil, err
	}

	jws := JSONWebSignature{
		Protected: prot64,
		Payload:   payload64,
		Signature: base64.RawURLEncoding.EncodeToString(sig),
	}

	b, err := json.Marshal(jws)
	if err != nil {
		return nil, acmeErrors.Wrap(err)
	}
	return b, nil
}

// problemFrom decodes res.Body as an RFC 7807 problem document. A body
// that fails to decode becomes a problem carrying the raw text as its
// detail, so callers always have something readable to log.
func problemFrom(res Response) *ProblemDetails {
	p := &ProblemDetails{}
	if err := decodeJSON(res.Body, p); err != nil {
		p.Detail = string(res.Body)
	}
	p.RespCode = res.Status
	return p
}
