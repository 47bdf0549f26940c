package types

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Endpoint is the normalized location of the Secure API.
type Endpoint struct {
	Host   string `json:"host" yaml:"host"`
	Port   int    `json:"port,omitempty" yaml:"port,omitempty"`
	Scheme string `json:"scheme" yaml:"scheme"`
}

// BaseURL returns scheme://host[:port] without a trailing slash.
func (e Endpoint) BaseURL() string {
	host := e.Host
	if e.Port != 0 {
		host = net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
	}
	return e.Scheme + "://" + host
}

// ParseAuthority accepts a host, host:port, or full URL and normalizes it into
// an Endpoint. Bare authorities default to https.
func ParseAuthority(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, fmt.Errorf("authority cannot be empty")
	}

	if strings.Contains(raw, "://") {
		return parseURL(raw)
	}

	raw = strings.TrimSuffix(raw, "/")
	host, portStr, err := net.SplitHostPort(raw)
	if err == nil {
		port, err := parsePort(portStr)
		if err != nil {
			return Endpoint{}, err
		}
		return Endpoint{Host: host, Port: port, Scheme: "https"}, nil
	}

	if strings.ContainsAny(raw, "/?#") {
		return Endpoint{}, fmt.Errorf("authority %q must not contain a path", raw)
	}

	return Endpoint{Host: raw, Scheme: "https"}, nil
}

func parseURL(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid URL %q: %w", raw, err)
	}

	if u.Hostname() == "" {
		return Endpoint{}, fmt.Errorf("URL %q has no hostname", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Endpoint{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	e := Endpoint{Host: u.Hostname(), Scheme: u.Scheme}
	if u.Port() != "" {
		port, err := parsePort(u.Port())
		if err != nil {
			return Endpoint{}, err
		}
		e.Port = port
	}
	return e, nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", s, err)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range (1-65535)", port)
	}
	return port, nil
}
