package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/yndnr/memgate-go/internal/core/service"
	"github.com/yndnr/memgate-go/internal/infra/confloader"
)

// Load reads path (optional) and MEMGATE_ environment variables over the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	loader := confloader.NewLoader(confloader.WithConfigFile(path))
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		cfg.BaseDir = filepath.Dir(abs)
	}
	return cfg, nil
}

// ServiceGroups converts the configured groups.
func (s IssuerSection) ServiceGroups() []service.Group {
	out := make([]service.Group, 0, len(s.Groups))
	for _, g := range s.Groups {
		out = append(out, service.Group{
			Name:         g.Name,
			RosterFile:   g.RosterFile,
			TemplateFile: g.TemplateFile,
			PrivilegeID:  g.PrivilegeID,
		})
	}
	return out
}

// Pacer builds the configured pacing policy.
func (p PacingSection) Pacer() (service.Pacer, error) {
	switch strings.ToLower(p.Mode) {
	case "", PacingFixed:
		if p.Delay <= 0 {
			return service.NoPacing{}, nil
		}
		return service.NewFixedDelay(p.Delay), nil
	case PacingTokenBucket:
		if p.Rate <= 0 {
			return nil, fmt.Errorf("issuer.pacing.rate must be positive for %s", PacingTokenBucket)
		}
		return service.NewTokenBucket(p.Rate, p.Burst), nil
	case PacingNone:
		return service.NoPacing{}, nil
	default:
		return nil, fmt.Errorf("unknown issuer.pacing.mode %q", p.Mode)
	}
}
