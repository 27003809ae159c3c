package command

import (
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/memgate-go/internal/cli/output"
	"github.com/yndnr/memgate-go/internal/config"
	"github.com/yndnr/memgate-go/internal/core/service"
	"github.com/yndnr/memgate-go/internal/roster"
)

// InviteCommand returns the invite subcommand group.
func InviteCommand() *cli.Command {
	return &cli.Command{
		Name:  "invite",
		Usage: "Send invitations",
		Subcommands: []*cli.Command{
			{
				Name:  "send",
				Usage: "Invite every new roster member (all groups by default)",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "group",
						Aliases: []string{"g"},
						Usage:   "Group to process (repeatable)",
					},
				},
				Action: inviteSend,
			},
		},
	}
}

func inviteSend(c *cli.Context) error {
	env := envFrom(c)
	if err := config.VerifyIssuer(env.cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	pacer, err := env.cfg.Issuer.Pacing.Pacer()
	if err != nil {
		return err
	}
	transport, err := env.NewTransport(env.cfg)
	if err != nil {
		return fmt.Errorf("init transport: %w", err)
	}
	repo, err := openStore(c)
	if err != nil {
		return err
	}
	defer repo.Close()

	issuer := service.NewIssuer(repo,
		roster.CSV{BaseDir: env.cfg.BaseDir},
		roster.Files{BaseDir: env.cfg.BaseDir},
		transport,
		service.IssuerConfig{
			Groups:     env.cfg.Issuer.ServiceGroups(),
			InviteLink: env.cfg.Issuer.InviteLink,
			Subject:    env.cfg.Issuer.Subject,
			Pacer:      pacer,
			Logger:     env.log,
		})

	report, err := issuer.Run(c.Context, c.StringSlice("group")...)
	if report != nil {
		if perr := printResult(c, reportView{*report}); perr != nil {
			return perr
		}
	}
	if err != nil {
		return err
	}
	if total := report.Total(); total.Failed() > 0 {
		return cli.Exit(fmt.Sprintf("%d invitations failed", total.Failed()), 2)
	}
	return nil
}

// reportView renders a BatchReport.
type reportView struct {
	service.BatchReport `yaml:",inline"`
}

func (r reportView) Table() *output.Table {
	t := output.NewTable("GROUP", "SENT", "ALREADY", "INVALID", "DUPLICATE", "LOOKUP_FAILED", "SEND_FAILED", "INSERT_FAILED", "NOTE")
	add := func(g service.GroupReport) {
		t.AddRow(g.Group,
			strconv.Itoa(g.Sent),
			strconv.Itoa(g.AlreadyInvited),
			strconv.Itoa(g.Invalid),
			strconv.Itoa(g.Duplicate),
			strconv.Itoa(g.LookupFailed),
			strconv.Itoa(g.SendFailed),
			strconv.Itoa(g.InsertFailed),
			g.Skipped,
		)
	}
	for _, g := range r.Groups {
		add(g)
	}
	if len(r.Groups) > 1 {
		add(r.Total())
	}
	return t
}
