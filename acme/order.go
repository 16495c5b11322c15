package acme

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	acmeErrors "github.com/yourusername/acmehook/errors"
	"github.com/yourusername/acmehook/internal/hook"
	"github.com/yourusername/acmehook/internal/jose"
)

// pollInterval and pollCap implement the fixed polling policy: query
// immediately, then every 2 seconds, until the resource leaves its
// in-progress set or pollCap elapses. Tests override these to avoid
// waiting out a real hour on the timeout scenario.
var (
	pollInterval = 2 * time.Second
	pollCap      = 3600 * time.Second
)

var tokenSanitizer = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// sanitizeToken replaces every character outside [A-Za-z0-9_-] with an
// underscore. Tokens are already base64url-safe; this is defensive so
// the hook boundary never sees a shell-special character.
func sanitizeToken(token string) string {
	return tokenSanitizer.ReplaceAllString(token, "_")
}

// createOrder submits the identifiers list for names and returns the
// order body together with its Location URL.
// https://datatracker.ietf.org/doc/html/rfc8555#section-7.4
func createOrder(ctx context.Context, c *jose.Client, names []string) (jose.Order, string, error) {
	idents := make([]jose.Identifier, 0, len(names))
	for _, n := range names {
		idents = append(idents, jose.Identifier{Type: "dns", Value: n})
	}

	payload, err := json.Marshal(struct {
		Identifiers []jose.Identifier `json:"identifiers"`
	}{Identifiers: idents})
	if err != nil {
		return jose.Order{}, "", wrapProtocol(err)
	}

	res, err := c.Signed(ctx, c.Directory.NewOrderURL, payload, "newOrder")
	if err != nil {
		return jose.Order{}, "", err
	}

	var ord jose.Order
	if err := json.Unmarshal(res.Body, &ord); err != nil {
		return jose.Order{}, "", wrapProtocol(fmt.Errorf("malformed newOrder response: %w", err))
	}

	return ord, res.Header.Get("Location"), nil
}

// enumerateAuthorizations walks ord's authorizations, selects the
// challenge matching challengeType on each one that is not already
// valid, and invokes the setup hook verb for it. Authorizations already
// valid are skipped.
func enumerateAuthorizations(
	ctx context.Context,
	c *jose.Client,
	ord jose.Order,
	challengeType string,
	runner hook.Runner,
	ownerID string,
) ([]challengeTask, error) {
	var tasks []challengeTask

	for _, authURL := range ord.Authorizations {
		res, err := c.Signed(ctx, authURL, nil, "getAuthorization")
		if err != nil {
			return nil, err
		}

		var auth jose.Authorization
		if err := json.Unmarshal(res.Body, &auth); err != nil {
			return nil, wrapProtocol(fmt.Errorf("malformed authorization response: %w", err))
		}

		if auth.Status == "valid" {
			continue
		}

		var chal *jose.Challenge
		for i := range auth.Challenges {
			if auth.Challenges[i].Type == challengeType {
				chal = &auth.Challenges[i]
				break
			}
		}
		if chal == nil {
			return nil, ErrNoMatchingChallenge(auth.Identifier.Value, challengeType)
		}

		token := sanitizeToken(chal.Token)
		keyAuth, err := jose.KeyAuthorization(token, c.Signer.Public())
		if err != nil {
			return nil, wrapCrypto(err)
		}

		var content string
		switch challengeType {
		case "http-01":
			content = keyAuth
		case "dns-01":
			content = jose.DNS01Content(keyAuth)
		default:
			return nil, wrapProtocol(fmt.Errorf("unsupported challenge type %q", challengeType))
		}

		if _, err := runner.Run(ctx, hook.Setup, []string{auth.Identifier.Value, token, content}, nil); err != nil {
			return nil, acmeErrors.Wrap(&HookFailureError{Verb: "setup", Err: err})
		}

		tasks = append(tasks, challengeTask{
			domain:        auth.Identifier.Value,
			token:         token,
			content:       content,
			challengeURL:  chal.Url,
			authURL:       authURL,
			owningOrderID: ownerID,
		})
	}

	return tasks, nil
}

// submitAndPollChallenge tells the CA the challenge is ready to verify,
// then polls its authorization until it leaves "pending".
func submitAndPollChallenge(ctx context.Context, c *jose.Client, task challengeTask) error {
	if _, err := c.Signed(ctx, task.challengeURL, []byte("{}"), "respondToChallenge"); err != nil {
		return err
	}

	status, _, err := pollUntilNotMulti(ctx, c, task.authURL, "pollAuthorization", "pending")
	if err != nil {
		return err
	}
	if status != "valid" {
		return acmeErrors.Wrap(&AuthorizationFailureError{Domain: task.domain, Status: status})
	}
	return nil
}

// finalizeAndDownload submits csrDER to ord's finalize URL, polls for a
// terminal order status, and downloads the certificate chain on success.
func finalizeAndDownload(ctx context.Context, c *jose.Client, st *orderState) ([]byte, error) {
	payload, err := json.Marshal(jose.CertificateRequest{
		CSR: base64.RawURLEncoding.EncodeToString(st.csr.DER),
	})
	if err != nil {
		return nil, wrapProtocol(err)
	}

	if _, err := c.Signed(ctx, st.order.FinalizeURL, payload, "finalize"); err != nil {
		return nil, err
	}

	status, body, err := pollUntilNotMulti(ctx, c, st.orderURL, "pollOrder", "pending", "processing")
	if err != nil {
		return nil, err
	}
	if status != "valid" {
		return nil, acmeErrors.Wrap(&FinalizeFailureError{CSRID: st.csr.ID})
	}

	var finalOrder jose.Order
	if err := json.Unmarshal(body, &finalOrder); err != nil {
		return nil, wrapProtocol(fmt.Errorf("malformed order response: %w", err))
	}

	res, err := c.Signed(ctx, finalOrder.CertificateURL, nil, "downloadCertificate")
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

// pollUntilNotMulti repeatedly POST-as-GETs url until the decoded status
// is no longer one of inProgress, per the fixed polling policy. Order
// polling passes both "pending" and "processing"; authorization polling
// passes only "pending".
func pollUntilNotMulti(ctx context.Context, c *jose.Client, url, purpose string, inProgress ...string) (string, []byte, error) {
	deadline := time.Now().Add(pollCap)
	first := true

	for {
		if !first {
			select {
			case <-ctx.Done():
				return "", nil, wrapNetwork(ctx.Err())
			case <-time.After(pollInterval):
			}
		}
		first = false

		res, err := c.Signed(ctx, url, nil, purpose)
		if err != nil {
			return "", nil, err
		}
		if res.Status != http.StatusOK {
			return "", nil, wrapProtocol(fmt.Errorf("%s: unexpected status %d", purpose, res.Status))
		}

		var sr jose.StatusResponse
		if err := json.Unmarshal(res.Body, &sr); err != nil {
			return "", nil, wrapProtocol(fmt.Errorf("%s: malformed response: %w", purpose, err))
		}

		stillInProgress := false
		for _, s := range inProgress {
			if sr.Status == s {
				stillInProgress = true
				break
			}
		}
		if !stillInProgress {
			return sr.Status, res.Body, nil
		}

		if time.Now().After(deadline) {
			return "", nil, acmeErrors.Wrap(&PollingTimeoutError{Resource: purpose, URL: url})
		}
	}
}
