// Package transport builds the HTTP clients used for upstream calls.
//
// Storefront endpoints of the commerce platform sit behind a CDN that rate
// limits by TLS fingerprint. Clients for those endpoints can present a
// Chrome-like ClientHello through uTLS, negotiating h2 or http/1.1 via ALPN
// and framing HTTP/2 with x/net/http2.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// Fingerprint selects the TLS ClientHello presented upstream.
type Fingerprint string

const (
	FingerprintDefault Fingerprint = "default"
	FingerprintChrome  Fingerprint = "chrome"
)

// ParseFingerprint maps a config value to a Fingerprint. Unknown values use the Go default.
func ParseFingerprint(s string) Fingerprint {
	if Fingerprint(s) == FingerprintChrome {
		return FingerprintChrome
	}
	return FingerprintDefault
}

// NewHTTPClient returns a client bounded by timeout that presents the given fingerprint.
func NewHTTPClient(timeout time.Duration, fp Fingerprint) *http.Client {
	if fp == FingerprintChrome {
		return &http.Client{Timeout: timeout, Transport: NewChromeTransport(timeout)}
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: timeout}).DialContext,
			TLSHandshakeTimeout: timeout,
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}
}

// NewChromeTransport creates an http.RoundTripper that presents Chrome's TLS
// fingerprint on https requests. Plain http requests are sent unchanged.
func NewChromeTransport(timeout time.Duration) http.RoundTripper {
	dialer := &net.Dialer{Timeout: timeout}

	h2 := &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr, "h2")
		},
	}
	h1 := &http.Transport{
		DialContext: dialer.DialContext,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr, "")
		},
		ForceAttemptHTTP2: false,
	}
	return &chromeTransport{h2: h2, h1: h1}
}

type chromeTransport struct {
	h2 *http2.Transport
	h1 *http.Transport
}

// RoundTrip tries HTTP/2 first and falls back to HTTP/1.1 when the server
// does not negotiate h2. Requests with a body that was already consumed are
// not retried.
func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.h1.RoundTrip(req)
	}
	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, err
		}
		body, gerr := req.GetBody()
		if gerr != nil {
			return nil, err
		}
		req = req.Clone(req.Context())
		req.Body = body
	}
	return t.h1.RoundTrip(req)
}

func (t *chromeTransport) CloseIdleConnections() {
	t.h2.CloseIdleConnections()
	t.h1.CloseIdleConnections()
}

// dialChromeTLS establishes a TLS connection with Chrome's ClientHello and
// default ALPN offer. When want is set, a different negotiated protocol fails
// the dial so the caller can fall back to another transport.
func dialChromeTLS(ctx context.Context, dialer *net.Dialer, network, addr, want string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	uconn := utls.UClient(conn, &utls.Config{ServerName: host}, utls.HelloChrome_Auto)
	if err := uconn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}
	if want != "" && uconn.ConnectionState().NegotiatedProtocol != want {
		uconn.Close()
		return nil, fmt.Errorf("server did not negotiate %s", want)
	}
	return uconn, nil
}
