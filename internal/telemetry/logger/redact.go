package logger

import (
	"log/slog"
	"net/url"
	"strings"
)

// Key fragments whose values are never logged in secure mode.
var sensitiveKeyPatterns = []string{
	"pepper",
	"conn_info",
	"query",
	"password",
	"secret",
	"private_key",
	"encryption_key",
	"session_key",
	"credential",
}

// Values with these prefixes are connection URLs whose password is masked
// whatever key they are logged under.
var urlValuePrefixes = []string{
	"postgres://",
	"postgresql://",
}

const redactedValue = "***REDACTED***"

func redactSensitive(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}

	if IsSensitiveKey(a.Key) && !isZero(a.Value) {
		return slog.String(a.Key, redactedValue)
	}
	if a.Value.Kind() == slog.KindString {
		if s := a.Value.String(); IsSensitiveValue(s) {
			return slog.String(a.Key, RedactString(s))
		}
	}
	return a
}

func isZero(v slog.Value) bool {
	switch v.Kind() {
	case slog.KindString:
		return v.String() == ""
	case slog.KindAny:
		switch x := v.Any().(type) {
		case nil:
			return true
		case []byte:
			return len(x) == 0
		}
	}
	return false
}

// RedactString masks the password of a connection URL. Other values are
// returned unchanged.
func RedactString(value string) string {
	if !IsSensitiveValue(value) {
		return value
	}
	u, err := url.Parse(value)
	if err != nil {
		return redactedValue
	}
	return u.Redacted()
}

// IsSensitiveKey reports whether a key name suggests secret content.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(k, pattern) {
			return true
		}
	}
	return false
}

// IsSensitiveValue reports whether a value looks like a connection URL.
func IsSensitiveValue(value string) bool {
	for _, prefix := range urlValuePrefixes {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}
