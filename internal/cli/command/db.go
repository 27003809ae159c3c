package command

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// DBCommand returns the db subcommand group.
func DBCommand() *cli.Command {
	return &cli.Command{
		Name:  "db",
		Usage: "Member store management",
		Subcommands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Create the member schema (idempotent)",
				Action: dbInit,
			},
		},
	}
}

func dbInit(c *cli.Context) error {
	repo, err := openStore(c)
	if err != nil {
		return err
	}
	defer repo.Close()

	env := envFrom(c)
	fmt.Fprintf(env.Stdout, "member store ready (%s)\n", env.cfg.Storage.Driver)
	return nil
}
