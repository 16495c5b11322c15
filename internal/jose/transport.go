package jose

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	acmeErrors "github.com/yourusername/acmehook/errors"

	"github.com/rs/dnscache"
)

const (
	// ACME clients MUST send a User-Agent header field.
	// https://datatracker.ietf.org/doc/html/rfc8555#section-6.1
	userAgent = "name=acmehook. version=v1. url=https://github.com/yourusername/acmehook"
	// ACME clients must have the Content-Type header field set to
	// "application/jose+json" on every signed request.
	// https://datatracker.ietf.org/doc/html/rfc8555#section-6.2
	contentType = "application/jose+json"

	maxNumOfCertsInChain = 5
	maxCertSize          = 3072 * 4
	maxCertChainSize     = maxNumOfCertsInChain * maxCertSize
)

type requestTypeKey string

const requestTypeCtxKey = requestTypeKey("acmehook-requestType")

func withRequestType(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, requestTypeCtxKey, name)
}

func getRequestType(ctx context.Context) string {
	if v := ctx.Value(requestTypeCtxKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return "unknown"
}

// Response is the result of one Transport call: the raw body, the HTTP
// status code, and the response header (the caller needs Replay-Nonce
// and Location from it).
type Response struct {
	Body   []byte
	Status int
	Header http.Header
}

// Transport performs HTTP requests against the CA. It owns the
// connection pool and the DNS cache; an ACME session talks to the same
// two or three hostnames dozens of times, so caching lookups avoids
// redundant resolution on every nonce fetch.
type Transport struct {
	client *http.Client
}

// NewTransport builds a Transport with a caching resolver and a
// request/response logging round-tripper.
func NewTransport(timeout time.Duration, l *slog.Logger) *Transport {
	resolver := &dnscache.Resolver{}

	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 3 * timeout,
	}

	dialContext := func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}

		ips, err := resolver.LookupHost(ctx, host)
		if err != nil {
			return nil, err
		}

		var lastErr error
		for _, ip := range ips {
			conn, dialErr := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
			if dialErr == nil {
				return conn, nil
			}
			lastErr = dialErr
		}
		return nil, lastErr
	}

	t := &http.Transport{
		DialContext:           dialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       5 * timeout,
		TLSHandshakeTimeout:   timeout,
		ExpectContinueTimeout: timeout / 5,
	}

	return &Transport{
		client: &http.Client{
			Transport: &logRoundTripper{Transport: t, l: l},
			Timeout:   timeout,
		},
	}
}

// logRoundTripper logs a request's method, URL, type tag and duration at
// error level when it fails or gets a >=400 status. Successful requests
// are not logged.
type logRoundTripper struct {
	*http.Transport
	l *slog.Logger
}

func (lt *logRoundTripper) RoundTrip(req *http.Request) (res *http.Response, err error) {
	ctx := req.Context()
	requestType := getRequestType(ctx)
	start := time.Now()
	url := req.URL.Redacted()

	defer func() {
		fields := []any{
			"method", req.Method,
			"url", url,
			"requestType", requestType,
			"durationMS", time.Since(start).Milliseconds(),
		}
		if err != nil {
			lt.l.Error("acmehook_http_client", append(fields, "err", err)...)
		} else if res.StatusCode > 399 {
			lt.l.Error("acmehook_http_client", append(fields, "code", res.StatusCode, "status", res.Status)...)
		}
	}()

	return lt.Transport.RoundTrip(req)
}

// Request performs an HTTP request and returns the response body, the
// status code, and the response header. At most maxCertChainSize bytes
// of the body are read; anything beyond that is dropped. A non-JSON body (the
// raw certificate chain) is returned as-is; it is the caller's job to
// decide whether to parse it.
func (t *Transport) Request(ctx context.Context, requestType, method, url string, body []byte) (Response, error) {
	ctx = withRequestType(ctx, requestType)

	var br io.Reader
	if len(body) != 0 {
		br = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, br)
	if err != nil {
		return Response{}, acmeErrors.Wrap(err)
	}
	req.Header.Set("User-Agent", userAgent)
	if len(body) != 0 {
		req.Header.Set("Content-Type", contentType)
	}

	res, err := t.client.Do(req)
	if err != nil {
		return Response{}, acmeErrors.Wrap(err)
	}
	defer func() { _ = res.Body.Close() }()

	limited := io.LimitReader(res.Body, maxCertChainSize)
	b, err := io.ReadAll(limited)
	if err != nil {
		return Response{}, acmeErrors.Wrap(err)
	}

	return Response{Body: b, Status: res.StatusCode, Header: res.Header}, nil
}

// decodeJSON opportunistically unmarshals b into v; callers that expect
// a structured body treat a decode failure as a protocol error.
func decodeJSON(b []byte, v any) error {
	return json.Unmarshal(b, v)
}
