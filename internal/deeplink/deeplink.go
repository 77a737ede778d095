// Package deeplink encodes and decodes the attribution payload carried by
// first-contact deep links.
//
// The payload is an ampersand-joined key=value string, base64url-encoded
// with padding stripped. Decoding is best-effort: malformed input degrades
// to an empty attribution map and is never surfaced as an error to the user.
package deeplink

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Decode parses a deep-link start payload into a flat attribution map.
// Any failure (bad base64, bad pair syntax) yields an empty map.
func Decode(payload string) map[string]string {
	attribution := make(map[string]string)
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return attribution
	}

	raw, err := decodeBase64URL(payload)
	if err != nil {
		slog.Debug("deeplink payload is not valid base64url, ignoring", "error", err)
		return attribution
	}
	if !utf8.Valid(raw) {
		slog.Debug("deeplink payload decodes to non-UTF-8 bytes, ignoring")
		return attribution
	}

	for _, pair := range strings.Split(string(raw), "&") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			slog.Debug("deeplink payload pair malformed, ignoring payload", "pair", pair)
			return map[string]string{}
		}
		attribution[key] = value
	}
	return attribution
}

// Encode builds the base64url payload (padding stripped) for the given
// attribution values. Keys are emitted in the given order.
func Encode(pairs [][2]string) string {
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, p[0]+"="+p[1])
	}
	return base64.RawURLEncoding.EncodeToString([]byte(strings.Join(parts, "&")))
}

// Link builds the full bot deep link carrying the encoded attribution.
func Link(botName string, pairs [][2]string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", url.PathEscape(botName), Encode(pairs))
}

// decodeBase64URL accepts payloads with or without padding, since link
// generators strip the trailing '=' characters.
func decodeBase64URL(s string) ([]byte, error) {
	if raw, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return raw, nil
	}
	return base64.URLEncoding.DecodeString(s)
}
