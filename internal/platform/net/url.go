// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package net holds URL helpers shared by the fetch path.
package net

import (
	"net"
	"net/url"
	"strings"
)

// SanitizeURL removes user info and query parameters for safe logging.
// Feed URLs often carry access tokens in the query string.
func SanitizeURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsedURL.User = nil
	parsedURL.RawQuery = ""
	parsedURL.Fragment = ""
	return parsedURL.String()
}

// HostKey returns the lower-cased host:port of u, filling in the default
// port for http and https. URLs that only differ in case or an explicit
// default port map to the same key.
func HostKey(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" {
		switch strings.ToLower(u.Scheme) {
		case "https":
			port = "443"
		case "http":
			port = "80"
		}
	}
	if port == "" {
		return host
	}
	return net.JoinHostPort(host, port)
}
