package command

import (
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/memgate-go/internal/cli/output"
	"github.com/yndnr/memgate-go/internal/core/domain"
	"github.com/yndnr/memgate-go/internal/core/service"
)

// MemberCommand returns the member subcommand group.
func MemberCommand() *cli.Command {
	return &cli.Command{
		Name:  "member",
		Usage: "Inspect members",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List members",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "verified", Usage: "Only verified members"},
					&cli.BoolFlag{Name: "pending", Usage: "Only pending members"},
					&cli.StringFlag{Name: "group", Aliases: []string{"g"}, Usage: "Only members of this group"},
					&cli.IntFlag{Name: "limit", Usage: "Maximum number of members (0 = all)"},
				},
				Action: memberList,
			},
			{
				Name:      "show",
				Usage:     "Show one member",
				ArgsUsage: "EMAIL",
				Action:    memberShow,
			},
		},
	}
}

func memberList(c *cli.Context) error {
	if c.Bool("verified") && c.Bool("pending") {
		return errors.New("--verified and --pending are mutually exclusive")
	}
	filter := service.ListFilter{RoleLabel: c.String("group"), Limit: c.Int("limit")}
	switch {
	case c.Bool("verified"):
		v := true
		filter.Verified = &v
	case c.Bool("pending"):
		v := false
		filter.Verified = &v
	}

	repo, err := openStore(c)
	if err != nil {
		return err
	}
	defer repo.Close()

	members, err := repo.List(c.Context, filter)
	if err != nil {
		return err
	}
	if members == nil {
		members = []*domain.Member{}
	}
	return printResult(c, memberRows(members))
}

func memberShow(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("usage: member show EMAIL")
	}
	repo, err := openStore(c)
	if err != nil {
		return err
	}
	defer repo.Close()

	m, err := repo.FindByContact(c.Context, domain.NormalizeEmail(c.Args().First()))
	if errors.Is(err, domain.ErrMemberNotFound) {
		return fmt.Errorf("no member with email %q", c.Args().First())
	}
	if err != nil {
		return err
	}
	return printResult(c, memberDetail{*m})
}

// memberRows renders members as rows.
type memberRows []*domain.Member

func (l memberRows) Table() *output.Table {
	t := output.NewTable("ID", "EMAIL", "NAME", "GROUP", "STATE", "CREATED")
	for _, m := range l {
		t.AddRow(m.ID, m.Email, m.DisplayName(), m.RoleLabel, state(m), formatMillis(m.CreatedAt))
	}
	return t
}

// memberDetail renders one member as field/value pairs.
type memberDetail struct {
	domain.Member `yaml:",inline"`
}

func (d memberDetail) Table() *output.Table {
	m := &d.Member
	t := output.NewTable("FIELD", "VALUE")
	t.AddRow("id", m.ID)
	t.AddRow("email", m.Email)
	t.AddRow("name", m.DisplayName())
	t.AddRow("group", m.RoleLabel)
	t.AddRow("privilege_id", m.PrivilegeID)
	t.AddRow("state", state(m))
	t.AddRow("external_id", m.ExternalID)
	t.AddRow("created_at", formatMillis(m.CreatedAt))
	t.AddRow("verified_at", formatMillis(m.VerifiedAt))
	return t
}

func state(m *domain.Member) string {
	if m.Verified {
		return "verified"
	}
	return "pending"
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04")
}
