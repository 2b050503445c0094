package config

import "strings"

// Sanitize returns a copy of the config with secrets masked, for logging.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg
	sanitized.Auth.Banned = append([]uint64(nil), cfg.Auth.Banned...)
	sanitized.Admin.AllowList = append([]string(nil), cfg.Admin.AllowList...)

	sanitized.Auth.Pepper = maskSecret(sanitized.Auth.Pepper)
	sanitized.Auth.ConnInfo = maskSecret(sanitized.Auth.ConnInfo)
	sanitized.Auth.Query = maskSecret(sanitized.Auth.Query)
	sanitized.Storage.EncryptionKey = maskSecret(sanitized.Storage.EncryptionKey)

	return &sanitized
}

// maskSecret keeps the first and last two characters of s.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
