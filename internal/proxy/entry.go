// Package proxy maintains a rotating pool of forward proxies fed by
// public proxy-list providers and a manual list.
package proxy

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

type Protocol string

const (
	ProtocolHTTP   Protocol = "http"
	ProtocolHTTPS  Protocol = "https"
	ProtocolSOCKS4 Protocol = "socks4"
	ProtocolSOCKS5 Protocol = "socks5"
)

var ErrNoProxies = errors.New("no proxies available")

// Entry is one forward proxy. Endpoint() identifies it across the pool
// and provider caches.
type Entry struct {
	Host      string   `json:"ip"`
	Port      int      `json:"port"`
	Protocol  Protocol `json:"protocol"`
	Username  string   `json:"username,omitempty"`
	Password  string   `json:"password,omitempty"`
	Anonymity string   `json:"anonymity,omitempty"`
	Country   string   `json:"country,omitempty"`
	Provider  string   `json:"provider,omitempty"`
}

func (e Entry) Endpoint() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// URL returns the proxy URL used for dialing. HTTPS-capable proxies are
// still spoken to in plain HTTP and tunnel with CONNECT.
func (e Entry) URL() *url.URL {
	scheme := string(e.Protocol)
	if e.Protocol == "" || e.Protocol == ProtocolHTTPS {
		scheme = string(ProtocolHTTP)
	}

	u := &url.URL{Scheme: scheme, Host: e.Endpoint()}
	if e.Username != "" {
		u.User = url.UserPassword(e.Username, e.Password)
	}
	return u
}

func (e Entry) String() string {
	return string(e.Protocol) + "://" + e.Endpoint()
}

// ParseManual parses "host:port" or "scheme://[user:pass@]host:port".
func ParseManual(line string) (Entry, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Entry{}, fmt.Errorf("empty proxy line")
	}
	if !strings.Contains(line, "://") {
		line = "http://" + line
	}

	u, err := url.Parse(line)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to parse proxy %q: %w", line, err)
	}

	protocol := Protocol(strings.ToLower(u.Scheme))
	switch protocol {
	case ProtocolHTTP, ProtocolHTTPS, ProtocolSOCKS4, ProtocolSOCKS5:
	default:
		return Entry{}, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}

	port, err := strconv.Atoi(u.Port())
	if err != nil || port <= 0 || port > 65535 {
		return Entry{}, fmt.Errorf("invalid port in proxy %q", line)
	}
	if u.Hostname() == "" {
		return Entry{}, fmt.Errorf("missing host in proxy %q", line)
	}

	e := Entry{Host: u.Hostname(), Port: port, Protocol: protocol}
	if u.User != nil {
		e.Username = u.User.Username()
		e.Password, _ = u.User.Password()
	}
	return e, nil
}
