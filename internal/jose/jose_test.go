package jose

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"go.akshayshah.org/attest"
)

func TestFetchDirectory(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Directory{
			NewNonceURL:   fmt.Sprintf("http://%s/new-nonce", r.Host),
			NewAccountURL: fmt.Sprintf("http://%s/new-acct", r.Host),
			NewOrderURL:   fmt.Sprintf("http://%s/new-order", r.Host),
		})
	}))
	defer srv.Close()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	attest.Ok(t, err)
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := &Client{Transport: NewTransport(0, l), Signer: RSASigner{Key: key}, Logger: l}

	err = c.FetchDirectory(context.Background(), srv.URL)
	attest.Ok(t, err)
	attest.True(t, strings.HasSuffix(c.Directory.NewAccountURL, "/new-acct"))
}

func TestSignedNonceAndJwkKidToggle(t *testing.T) {
	t.Parallel()

	var nonceCount, sawJwk, sawKid int32

	mux := http.NewServeMux()
	mux.HandleFunc("/new-nonce", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&nonceCount, 1)
		w.Header().Set("Replay-Nonce", fmt.Sprintf("nonce-%d", n))
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/target", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var jws JSONWebSignature
		_ = json.Unmarshal(body, &jws)
		protected := decodeB64(jws.Protected)

		if strings.Contains(protected, `"jwk"`) {
			atomic.AddInt32(&sawJwk, 1)
		}
		if strings.Contains(protected, `"kid"`) {
			atomic.AddInt32(&sawKid, 1)
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	attest.Ok(t, err)
	l := slog.New(slog.NewTextHandler(io.Discard, nil))

	c := &Client{
		Transport: NewTransport(0, l),
		Signer:    RSASigner{Key: key},
		Logger:    l,
		Directory: Directory{NewNonceURL: srv.URL + "/new-nonce"},
	}

	_, err = c.Signed(context.Background(), srv.URL+"/target", nil, "first")
	attest.Ok(t, err)
	attest.Equal(t, sawJwk, int32(1))

	c.KeyID = "https://example.invalid/acct/1"
	_, err = c.Signed(context.Background(), srv.URL+"/target", nil, "second")
	attest.Ok(t, err)
	attest.Equal(t, sawKid, int32(1))

	attest.True(t, nonceCount >= 2)
}

func TestSignedBadNonceRetry(t *testing.T) {
	t.Parallel()

	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/new-nonce", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Replay-Nonce", "some-nonce")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/target", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(ProblemDetails{Type: "urn:ietf:params:acme:error:badNonce"})
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	attest.Ok(t, err)
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := &Client{
		Transport: NewTransport(0, l),
		Signer:    RSASigner{Key: key},
		Logger:    l,
		Directory: Directory{NewNonceURL: srv.URL + "/new-nonce"},
	}

	_, err = c.Signed(context.Background(), srv.URL+"/target", nil, "retryme")
	attest.Ok(t, err)
	attest.Equal(t, calls, int32(2))
}

func TestSignedFatalProtocolError(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/new-nonce", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Replay-Nonce", "some-nonce")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/target", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(ProblemDetails{Type: "urn:ietf:params:acme:error:unauthorized", Detail: "nope"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	attest.Ok(t, err)
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := &Client{
		Transport: NewTransport(0, l),
		Signer:    RSASigner{Key: key},
		Logger:    l,
		Directory: Directory{NewNonceURL: srv.URL + "/new-nonce"},
	}

	_, err = c.Signed(context.Background(), srv.URL+"/target", nil, "willfail")
	attest.Error(t, err)
	attest.Subsequence(t, err.Error(), "nope")
}

func decodeB64(s string) string {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return ""
	}
	return string(b)
}
