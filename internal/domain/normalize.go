package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"strings"
	"time"
)

// UnknownValue stands in for an unresolvable IP or country.
const UnknownValue = "Unknown"

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeHost reduces raw input (a bare host, a host with port/path, or a
// full URL) to the normalized domain key: lowercase host, scheme and path
// dropped, leading "www." stripped. Returns "" when no host can be parsed.
func NormalizeHost(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	return host
}

// NormalizeHostList splits a comma-separated filter and normalizes each
// entry the same way ingestion does. Empty and duplicate entries drop out.
func NormalizeHostList(csv string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, part := range strings.Split(csv, ",") {
		host := NormalizeHost(part)
		if host == "" {
			continue
		}
		if _, ok := seen[host]; ok {
			continue
		}
		seen[host] = struct{}{}
		out = append(out, host)
	}
	return out
}

// FingerprintUA returns the truncated user-agent hash used for visitor
// fingerprinting: first 16 hex chars of SHA-1. Collisions are an accepted
// tradeoff; this is not a security boundary.
func FingerprintUA(ua string) string {
	sum := sha1.Sum([]byte(ua))
	return hex.EncodeToString(sum[:])[:16]
}

// DateOf is the UTC calendar date key for t.
func DateOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
