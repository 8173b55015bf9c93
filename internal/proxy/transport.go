package proxy

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	xproxy "golang.org/x/net/proxy"
	"h12.io/socks"
)

type TransportOptions struct {
	ConnectTimeout time.Duration
	InsecureTLS    bool
}

// NewTransport builds an HTTP transport that dials through e, or directly
// when e is nil. Each transport is fresh: no connections are shared
// between proxies.
func NewTransport(e *Entry, opts TransportOptions) (*http.Transport, error) {
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 10 * time.Second
	}

	dialer := &net.Dialer{Timeout: opts.ConnectTimeout, KeepAlive: 30 * time.Second}

	t := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: opts.InsecureTLS},
		TLSHandshakeTimeout: opts.ConnectTimeout,
		MaxIdleConns:        10,
		IdleConnTimeout:     30 * time.Second,
	}

	if e == nil {
		return t, nil
	}

	switch e.Protocol {
	case "", ProtocolHTTP, ProtocolHTTPS:
		t.Proxy = http.ProxyURL(e.URL())

	case ProtocolSOCKS5:
		var auth *xproxy.Auth
		if e.Username != "" {
			auth = &xproxy.Auth{User: e.Username, Password: e.Password}
		}
		d, err := xproxy.SOCKS5("tcp", e.Endpoint(), auth, dialer)
		if err != nil {
			return nil, fmt.Errorf("failed to create socks5 dialer: %w", err)
		}
		if cd, ok := d.(xproxy.ContextDialer); ok {
			t.DialContext = cd.DialContext
		} else {
			t.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return d.Dial(network, addr)
			}
		}

	case ProtocolSOCKS4:
		dial := socks.Dial(fmt.Sprintf("socks4://%s?timeout=%s", e.Endpoint(), opts.ConnectTimeout))
		t.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
			return dial(network, addr)
		}

	default:
		return nil, fmt.Errorf("unsupported proxy protocol %q", e.Protocol)
	}

	return t, nil
}
