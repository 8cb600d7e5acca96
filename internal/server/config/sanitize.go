package config

import "strings"

// Sanitize returns a copy of the config with passwords masked, for logging.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg
	sanitized.Auth.UserBlacklist = append([]string(nil), cfg.Auth.UserBlacklist...)

	if sanitized.Auth.RequirePass != "" {
		sanitized.Auth.RequirePass = maskSecret(sanitized.Auth.RequirePass)
	}
	if sanitized.Auth.UserPass != "" {
		sanitized.Auth.UserPass = maskSecret(sanitized.Auth.UserPass)
	}
	return &sanitized
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
