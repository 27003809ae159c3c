package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/memgate-go/internal/cli/output"
	"github.com/yndnr/memgate-go/internal/config"
	"github.com/yndnr/memgate-go/internal/core/service"
	"github.com/yndnr/memgate-go/internal/infra/buildinfo"
	"github.com/yndnr/memgate-go/internal/mail"
	"github.com/yndnr/memgate-go/internal/storage"
	"github.com/yndnr/memgate-go/internal/telemetry/logger"
)

const metaEnv = "env"

// Env holds the collaborators commands use. Tests replace them.
type Env struct {
	Stdout io.Writer
	Stderr io.Writer

	OpenStore    func(ctx context.Context, cfg *config.Config, log logger.Logger) (service.MemberRepository, error)
	NewTransport func(cfg *config.Config) (service.Transport, error)

	// set in Before
	cfg *config.Config
	log logger.Logger
}

// DefaultEnv wires the real store and SMTP transport.
func DefaultEnv() *Env {
	return &Env{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		OpenStore: func(ctx context.Context, cfg *config.Config, log logger.Logger) (service.MemberRepository, error) {
			return storage.Open(ctx, storage.Config{
				Driver:     cfg.Storage.Driver,
				Path:       cfg.Storage.Path,
				DSN:        cfg.Storage.DSN,
				GCInterval: cfg.Storage.GCInterval,
				Logger:     log,
			})
		},
		NewTransport: func(cfg *config.Config) (service.Transport, error) {
			return mail.New(mail.Config{
				Host:        cfg.Mail.Host,
				Port:        cfg.Mail.Port,
				TLS:         cfg.Mail.TLS,
				Username:    cfg.Mail.Username,
				Password:    cfg.Mail.Password,
				FromAddress: cfg.Mail.FromAddress,
				FromName:    cfg.Mail.FromName,
				Timeout:     cfg.Mail.Timeout,
			})
		},
	}
}

// App creates the memgate-issuer application.
func App(env *Env) *cli.App {
	return &cli.App{
		Name:    "memgate-issuer",
		Usage:   "Invite roster members and manage the member store",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			DBCommand(),
			InviteCommand(),
			MemberCommand(),
			ConfigCommand(),
		},
		Writer:    env.Stdout,
		ErrWriter: env.Stderr,
		Metadata:  map[string]any{metaEnv: env},
		Before: func(c *cli.Context) error {
			if _, err := output.ParseFormat(c.String("output")); err != nil {
				return err
			}
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			level := cfg.Log.Level
			if c.Bool("verbose") {
				level = "debug"
			}
			log, err := logger.New(logger.Config{Level: level, Format: cfg.Log.Format, Output: env.Stderr})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			logger.SetDefault(log)
			env.cfg, env.log = cfg, log
			return nil
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file (defaults and environment only when empty)",
			EnvVars: []string{"MEMGATE_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable debug logging",
		},
	}
}

func envFrom(c *cli.Context) *Env {
	env, _ := c.App.Metadata[metaEnv].(*Env)
	return env
}

// printResult writes data in the --output format.
func printResult(c *cli.Context, data any) error {
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		return err
	}
	return output.NewFormatter(format).Format(envFrom(c).Stdout, data)
}

// openStore verifies the storage section, opens the store and ensures
// the schema.
func openStore(c *cli.Context) (service.MemberRepository, error) {
	env := envFrom(c)
	if err := config.VerifyStorage(env.cfg); err != nil {
		return nil, err
	}
	repo, err := env.OpenStore(c.Context, env.cfg, env.log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := repo.CreateSchema(c.Context); err != nil {
		return nil, errors.Join(fmt.Errorf("create schema: %w", err), repo.Close())
	}
	return repo, nil
}
