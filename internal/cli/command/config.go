package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/memgate-go/internal/config"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration inspection",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Print the effective configuration with secrets masked",
				Action: configShow,
			},
			{
				Name:  "validate",
				Usage: "Check the configuration",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "for",
						Usage: "Component to validate: issuer, redeemer, all",
						Value: "all",
					},
				},
				Action: configValidate,
			},
		},
	}
}

func configShow(c *cli.Context) error {
	// No table form; the table formatter falls back to YAML.
	return printResult(c, config.Sanitize(envFrom(c).cfg))
}

func configValidate(c *cli.Context) error {
	cfg := envFrom(c).cfg

	var err error
	switch target := c.String("for"); target {
	case "issuer":
		err = config.VerifyIssuer(cfg)
	case "redeemer":
		err = config.VerifyRedeemer(cfg)
	case "all":
		if err = config.VerifyIssuer(cfg); err == nil {
			err = config.VerifyRedeemer(cfg)
		}
	default:
		return fmt.Errorf("unknown component %q (want issuer, redeemer or all)", target)
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("configuration invalid:\n%v", err), 1)
	}
	fmt.Fprintln(envFrom(c).Stdout, "configuration valid")
	return nil
}
