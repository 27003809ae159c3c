package config

import (
	"net/url"
	"strings"
)

// Sanitize returns a copy of the config with secrets masked, for
// `config show` and startup logs.
func Sanitize(cfg *Config) *Config {
	sanitized := *cfg
	sanitized.Issuer.Groups = append([]GroupSection(nil), cfg.Issuer.Groups...)

	if sanitized.Mail.Password != "" {
		sanitized.Mail.Password = maskSecret(sanitized.Mail.Password)
	}
	if sanitized.Redeemer.BotToken != "" {
		sanitized.Redeemer.BotToken = maskSecret(sanitized.Redeemer.BotToken)
	}
	if sanitized.Storage.DSN != "" {
		sanitized.Storage.DSN = maskDSN(sanitized.Storage.DSN)
	}
	return &sanitized
}

// maskSecret masks a secret value for safe display.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

// maskDSN masks the password of a URL-style DSN. Other forms are masked
// entirely.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "****"
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
