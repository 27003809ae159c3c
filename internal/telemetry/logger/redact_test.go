package logger

import (
	"log/slog"
	"testing"
)

func TestRedactSensitive(t *testing.T) {
	tests := []struct {
		name string
		attr slog.Attr
		want string
	}{
		{"token value masked under any key", slog.String("msg_body", "mgv_0123456789abcdef"), "mgv_012...def"},
		{"short token value", slog.String("t", "mgv_ab"), "mgv_***"},
		{"sensitive key", slog.String("password", "hunter2"), redactedValue},
		{"sensitive key case", slog.String("SMTP_Password", "hunter2"), redactedValue},
		{"dsn key", slog.String("dsn", "postgres://u:p@h/db"), redactedValue},
		{"empty sensitive value kept", slog.String("token", ""), ""},
		{"normal value", slog.String("email", "a@x.com"), "a@x.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := redactSensitive(tt.attr)
			if got.Value.String() != tt.want {
				t.Errorf("redactSensitive() = %q, want %q", got.Value.String(), tt.want)
			}
		})
	}
}

func TestRedactSensitive_Group(t *testing.T) {
	a := slog.Group("mail", slog.String("password", "x"), slog.String("host", "smtp"))
	got := redactSensitive(a)

	attrs := got.Value.Group()
	if attrs[0].Value.String() != redactedValue {
		t.Errorf("mail.password = %q, want redacted", attrs[0].Value.String())
	}
	if attrs[1].Value.String() != "smtp" {
		t.Errorf("mail.host = %q, want smtp", attrs[1].Value.String())
	}
}

func TestRedactToken(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"mgv_abcdefghij", "mgv_abc...hij"},
		{"T1", redactedValue},
		{"", ""},
	}
	for _, tt := range tests {
		if got := RedactToken(tt.in); got != tt.want {
			t.Errorf("RedactToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsSensitiveKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"bot_token", true},
		{"client_secret", true},
		{"password", true},
		{"email", false},
		{"group", false},
	}
	for _, tt := range tests {
		if got := IsSensitiveKey(tt.key); got != tt.want {
			t.Errorf("IsSensitiveKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}
