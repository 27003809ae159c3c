package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yndnr/memgate-go/internal/core/service"
	"github.com/yndnr/memgate-go/internal/storage/badger"
	"github.com/yndnr/memgate-go/internal/storage/memory"
	"github.com/yndnr/memgate-go/internal/storage/postgres"
	"github.com/yndnr/memgate-go/internal/storage/sqlite"
	"github.com/yndnr/memgate-go/internal/telemetry/logger"
)

// Driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
	DriverMemory   = "memory"
)

// Drivers lists the supported driver names.
var Drivers = []string{DriverSQLite, DriverPostgres, DriverBadger, DriverMemory}

// Config selects a backend.
type Config struct {
	Driver string
	// Path is the sqlite file or the badger directory.
	Path string
	// DSN is the postgres connection string.
	DSN string

	GCInterval time.Duration
	Logger     logger.Logger
}

// Open opens the backend named by cfg.Driver. The schema is not created;
// callers run CreateSchema.
func Open(ctx context.Context, cfg Config) (service.MemberRepository, error) {
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	var (
		repo service.MemberRepository
		err  error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverSQLite:
		var s *sqlite.Store
		if s, err = sqlite.Open(cfg.Path); err == nil {
			repo = s
		}
	case DriverPostgres:
		var s *postgres.Store
		if s, err = postgres.Open(ctx, cfg.DSN); err == nil {
			repo = s
		}
	case DriverBadger:
		var s *badger.Store
		if s, err = badger.Open(badger.Config{
			Dir:        cfg.Path,
			GCInterval: cfg.GCInterval,
			Logger:     cfg.Logger,
		}); err == nil {
			repo = s
		}
	case DriverMemory:
		repo = memory.New()
	default:
		err = fmt.Errorf("storage: unknown driver %q (want one of %s)",
			cfg.Driver, strings.Join(Drivers, ", "))
	}
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// IsKnownDriver reports whether name selects a backend.
func IsKnownDriver(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return true
	}
	for _, d := range Drivers {
		if d == name {
			return true
		}
	}
	return false
}
