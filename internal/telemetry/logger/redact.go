package logger

import (
	"log/slog"
	"strings"
)

// tokenPrefix marks invitation tokens (see domain.TokenPrefix).
const tokenPrefix = "mgv_"

// Attribute keys whose non-empty string values are always redacted.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"credential",
	"dsn",
}

const redactedValue = "***REDACTED***"

// redactSensitive masks token values wherever they appear and fully
// redacts values stored under sensitive keys.
func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		v := a.Value.String()
		if strings.HasPrefix(v, tokenPrefix) {
			return slog.String(a.Key, maskValue(v))
		}
		if v != "" && IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
	case slog.KindGroup:
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	return a
}

// maskValue keeps the prefix and three characters at each end of the body.
func maskValue(value string) string {
	body := value[len(tokenPrefix):]
	if len(body) <= 6 {
		return tokenPrefix + "***"
	}
	return tokenPrefix + body[:3] + "..." + body[len(body)-3:]
}

// RedactToken returns the masked form of an invitation token. Values
// without the token prefix are fully redacted, since callers only pass
// credentials here.
func RedactToken(token string) string {
	if strings.HasPrefix(token, tokenPrefix) {
		return maskValue(token)
	}
	if token == "" {
		return ""
	}
	return redactedValue
}

// IsSensitiveKey checks if a key name suggests sensitive content.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(k, pattern) {
			return true
		}
	}
	return false
}
