package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yndnr/memgate-go/internal/storage"
	"github.com/yndnr/memgate-go/internal/telemetry/logger"
)

// VerifyIssuer validates the sections memgate-issuer needs. It reports
// every problem, not just the first.
func VerifyIssuer(cfg *Config) error {
	return errors.Join(
		verifyStorage(&cfg.Storage),
		verifyLog(&cfg.Log),
		verifyMail(&cfg.Mail),
		verifyIssuer(&cfg.Issuer),
	)
}

// VerifyRedeemer validates the sections memgate-redeemer needs.
func VerifyRedeemer(cfg *Config) error {
	return errors.Join(
		verifyStorage(&cfg.Storage),
		verifyLog(&cfg.Log),
		verifyRedeemer(&cfg.Redeemer),
	)
}

// VerifyStorage validates the storage section only (db init, member queries).
func VerifyStorage(cfg *Config) error {
	return errors.Join(verifyStorage(&cfg.Storage), verifyLog(&cfg.Log))
}

func verifyStorage(s *StorageSection) error {
	if !storage.IsKnownDriver(s.Driver) {
		return fmt.Errorf("storage.driver %q is not one of %s", s.Driver, strings.Join(storage.Drivers, ", "))
	}
	switch strings.ToLower(s.Driver) {
	case "", storage.DriverSQLite, storage.DriverBadger:
		if strings.TrimSpace(s.Path) == "" {
			return errors.New("storage.path is required")
		}
	case storage.DriverPostgres:
		if strings.TrimSpace(s.DSN) == "" {
			return errors.New("storage.dsn is required for postgres")
		}
	}
	if s.GCInterval < 0 {
		return errors.New("storage.gc_interval must not be negative")
	}
	return nil
}

func verifyLog(l *LogSection) error {
	if _, err := logger.ParseLevel(l.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch strings.ToLower(l.Format) {
	case "", "json", "text":
		return nil
	default:
		return fmt.Errorf("log.format %q is not json or text", l.Format)
	}
}

func verifyMail(m *MailSection) error {
	var errs []error
	if strings.TrimSpace(m.Host) == "" {
		errs = append(errs, errors.New("mail.host is required"))
	}
	if strings.TrimSpace(m.FromAddress) == "" {
		errs = append(errs, errors.New("mail.from_address is required"))
	}
	if m.Port < 0 || m.Port > 65535 {
		errs = append(errs, fmt.Errorf("mail.port %d out of range", m.Port))
	}
	switch strings.ToLower(m.TLS) {
	case "", "implicit", "starttls", "none":
	default:
		errs = append(errs, fmt.Errorf("mail.tls %q is not implicit, starttls or none", m.TLS))
	}
	return errors.Join(errs...)
}

func verifyIssuer(s *IssuerSection) error {
	var errs []error
	if len(s.Groups) == 0 {
		errs = append(errs, errors.New("issuer.groups must not be empty"))
	}
	seen := make(map[string]struct{}, len(s.Groups))
	for i, g := range s.Groups {
		prefix := fmt.Sprintf("issuer.groups[%d]", i)
		if strings.TrimSpace(g.Name) == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else if _, dup := seen[g.Name]; dup {
			errs = append(errs, fmt.Errorf("%s.name %q is duplicated", prefix, g.Name))
		}
		seen[g.Name] = struct{}{}
		if g.RosterFile == "" {
			errs = append(errs, fmt.Errorf("%s.roster_file is required", prefix))
		}
		if g.TemplateFile == "" {
			errs = append(errs, fmt.Errorf("%s.template_file is required", prefix))
		}
		if g.PrivilegeID == "" {
			errs = append(errs, fmt.Errorf("%s.privilege_id is required", prefix))
		}
	}
	if _, err := s.Pacing.Pacer(); err != nil {
		errs = append(errs, err)
	}
	if s.Pacing.Delay < 0 {
		errs = append(errs, errors.New("issuer.pacing.delay must not be negative"))
	}
	return errors.Join(errs...)
}

func verifyRedeemer(r *RedeemerSection) error {
	var errs []error
	required := []struct{ key, value string }{
		{"redeemer.bot_token", r.BotToken},
		{"redeemer.guild_id", r.GuildID},
		{"redeemer.channel_id", r.ChannelID},
		{"redeemer.command", r.Command},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", f.key))
		}
	}
	if strings.ContainsAny(r.Command, " \t") {
		errs = append(errs, errors.New("redeemer.command must be a single word"))
	}
	if r.UsageTTL < 0 || r.ErrorTTL < 0 || r.WelcomeTTL < 0 {
		errs = append(errs, errors.New("redeemer reply ttls must not be negative"))
	}
	return errors.Join(errs...)
}
