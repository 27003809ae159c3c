package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/yndnr/memgate-go/internal/core/domain"
	"github.com/yndnr/memgate-go/internal/telemetry/logger"
)

// Row outcomes, also used as metric labels.
const (
	OutcomeSent           = "sent"
	OutcomeAlreadyInvited = "already_invited"
	OutcomeInvalid        = "invalid"
	OutcomeDuplicate      = "duplicate_in_roster"
	OutcomeLookupFailed   = "lookup_failed"
	OutcomeSendFailed     = "send_failed"
	OutcomeInsertFailed   = "insert_failed"
)

// IssuerConfig configures an Issuer.
type IssuerConfig struct {
	// Groups are processed in order.
	Groups []Group

	// InviteLink is substituted for {{INVITE_LINK}}.
	InviteLink string

	// Subject is the subject template. Empty means DefaultSubject.
	Subject string

	// Pacer spaces dispatches. Nil means no pacing.
	Pacer Pacer

	Logger  logger.Logger
	Metrics Metrics
}

// Issuer invites roster candidates and records them as pending members.
//
// It is sequential; one Issuer must not run two batches at once.
type Issuer struct {
	repo      IssuerRepository
	roster    RosterSource
	templates TemplateSource
	transport Transport
	cfg       IssuerConfig

	newToken func() (string, error)
}

// NewIssuer creates a new Issuer.
func NewIssuer(repo IssuerRepository, roster RosterSource, templates TemplateSource, transport Transport, cfg IssuerConfig) *Issuer {
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.Pacer == nil {
		cfg.Pacer = NoPacing{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}
	return &Issuer{
		repo:      repo,
		roster:    roster,
		templates: templates,
		transport: transport,
		cfg:       cfg,
		newToken:  domain.GenerateToken,
	}
}

// ============================================================================
// Reports
// ============================================================================

// RowProblem describes a row that was not invited.
type RowProblem struct {
	Line    int    `json:"line" yaml:"line"`
	Email   string `json:"email,omitempty" yaml:"email,omitempty"`
	Outcome string `json:"outcome" yaml:"outcome"`
	Reason  string `json:"reason" yaml:"reason"`
}

// GroupReport counts the outcomes of one group.
type GroupReport struct {
	Group          string       `json:"group" yaml:"group"`
	Sent           int          `json:"sent" yaml:"sent"`
	AlreadyInvited int          `json:"already_invited" yaml:"already_invited"`
	Invalid        int          `json:"invalid" yaml:"invalid"`
	Duplicate      int          `json:"duplicate_in_roster" yaml:"duplicate_in_roster"`
	LookupFailed   int          `json:"lookup_failed" yaml:"lookup_failed"`
	SendFailed     int          `json:"send_failed" yaml:"send_failed"`
	InsertFailed   int          `json:"insert_failed" yaml:"insert_failed"`
	Skipped        string       `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Problems       []RowProblem `json:"problems,omitempty" yaml:"problems,omitempty"`
}

func (g *GroupReport) record(outcome string, p *RowProblem) {
	switch outcome {
	case OutcomeSent:
		g.Sent++
	case OutcomeAlreadyInvited:
		g.AlreadyInvited++
	case OutcomeInvalid:
		g.Invalid++
	case OutcomeDuplicate:
		g.Duplicate++
	case OutcomeLookupFailed:
		g.LookupFailed++
	case OutcomeSendFailed:
		g.SendFailed++
	case OutcomeInsertFailed:
		g.InsertFailed++
	}
	if p != nil {
		p.Outcome = outcome
		g.Problems = append(g.Problems, *p)
	}
}

// Failed returns the number of rows that hit an operator-level failure.
func (g *GroupReport) Failed() int {
	return g.LookupFailed + g.SendFailed + g.InsertFailed
}

// BatchReport is the result of one Issuer run.
type BatchReport struct {
	Groups []GroupReport `json:"groups" yaml:"groups"`
}

// Total sums every group.
func (b *BatchReport) Total() GroupReport {
	t := GroupReport{Group: "total"}
	for _, g := range b.Groups {
		t.Sent += g.Sent
		t.AlreadyInvited += g.AlreadyInvited
		t.Invalid += g.Invalid
		t.Duplicate += g.Duplicate
		t.LookupFailed += g.LookupFailed
		t.SendFailed += g.SendFailed
		t.InsertFailed += g.InsertFailed
	}
	return t
}

// ============================================================================
// Run
// ============================================================================

// Run processes the named groups, or every configured group when names
// is empty. Row and group failures are reported, not returned; the
// error is non-nil only for unknown group names or a cancelled context.
func (i *Issuer) Run(ctx context.Context, names ...string) (*BatchReport, error) {
	groups, err := i.selectGroups(names)
	if err != nil {
		return nil, err
	}

	report := &BatchReport{}
	seen := make(map[string]struct{})
	for _, g := range groups {
		gr := i.runGroup(ctx, g, seen)
		report.Groups = append(report.Groups, gr)
		if err := ctx.Err(); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (i *Issuer) selectGroups(names []string) ([]Group, error) {
	if len(names) == 0 {
		return i.cfg.Groups, nil
	}
	byName := make(map[string]Group, len(i.cfg.Groups))
	for _, g := range i.cfg.Groups {
		byName[g.Name] = g
	}
	out := make([]Group, 0, len(names))
	for _, n := range names {
		g, ok := byName[n]
		if !ok {
			return nil, domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("unknown group %q", n))
		}
		out = append(out, g)
	}
	return out, nil
}

func (i *Issuer) runGroup(ctx context.Context, g Group, seen map[string]struct{}) GroupReport {
	gr := GroupReport{Group: g.Name}
	log := i.cfg.Logger.With("group", g.Name)

	rows, err := i.roster.Rows(ctx, g)
	if err != nil {
		log.Error("roster unavailable, skipping group", "error", err)
		gr.Skipped = err.Error()
		return gr
	}
	tmpl, err := i.templates.Template(ctx, g)
	if err != nil {
		log.Error("template unavailable, skipping group", "error", err)
		gr.Skipped = err.Error()
		return gr
	}

	for _, row := range rows {
		if ctx.Err() != nil {
			break
		}
		if row.IsBlank() {
			continue
		}
		outcome, problem := i.processRow(ctx, log, g, tmpl, row, seen)
		gr.record(outcome, problem)
		i.cfg.Metrics.InviteOutcome(g.Name, outcome)
	}

	log.Info("group processed",
		"sent", gr.Sent,
		"already_invited", gr.AlreadyInvited,
		"invalid", gr.Invalid,
		"duplicate", gr.Duplicate,
		"failed", gr.Failed(),
	)
	return gr
}

func (i *Issuer) processRow(ctx context.Context, log logger.Logger, g Group, tmpl *Template, row domain.RosterRow, seen map[string]struct{}) (string, *RowProblem) {
	cand, err := row.Normalize(g.Name)
	if err != nil {
		log.Info("invalid roster row", "line", row.Line, "error", err)
		return OutcomeInvalid, &RowProblem{Line: row.Line, Email: row.Email, Reason: err.Error()}
	}
	log = log.With("line", row.Line, "email", cand.Email)

	if _, dup := seen[cand.Email]; dup {
		log.Info("contact already processed in this run")
		return OutcomeDuplicate, &RowProblem{Line: row.Line, Email: cand.Email, Reason: "contact appears earlier in this run"}
	}
	seen[cand.Email] = struct{}{}

	_, err = i.repo.FindByContact(ctx, cand.Email)
	switch {
	case err == nil:
		log.Debug("already invited")
		return OutcomeAlreadyInvited, nil
	case !errors.Is(err, domain.ErrMemberNotFound):
		log.Error("contact lookup failed", "error", err)
		return OutcomeLookupFailed, &RowProblem{Line: row.Line, Email: cand.Email, Reason: err.Error()}
	}

	tok, err := i.newToken()
	if err != nil {
		log.Error("token generation failed", "error", err)
		return OutcomeSendFailed, &RowProblem{Line: row.Line, Email: cand.Email, Reason: err.Error()}
	}

	vars := TemplateVars{
		Token:      tok,
		FirstName:  cand.FirstName,
		LastName:   cand.LastName,
		InviteLink: i.cfg.InviteLink,
		Role:       g.Name,
	}
	msg := Message{
		To:       cand.Email,
		Subject:  Render(i.cfg.Subject, vars),
		HTMLBody: Render(tmpl.Body, vars),
	}

	if err := i.cfg.Pacer.Wait(ctx); err != nil {
		return OutcomeSendFailed, &RowProblem{Line: row.Line, Email: cand.Email, Reason: err.Error()}
	}
	if err := i.transport.Send(ctx, msg); err != nil {
		log.Error("notification not dispatched", "error", err)
		i.cfg.Metrics.CapabilityError("send", KindOf(err).String())
		return OutcomeSendFailed, &RowProblem{Line: row.Line, Email: cand.Email, Reason: err.Error()}
	}

	m, err := domain.NewMember(cand, g.PrivilegeID, tok)
	if err == nil {
		err = i.repo.Insert(ctx, m)
	}
	if err != nil {
		// The notification is out; the candidate holds a token the store
		// does not know. Operators must reconcile by hand.
		log.Error("notification sent but record not stored", "error", err)
		return OutcomeInsertFailed, &RowProblem{Line: row.Line, Email: cand.Email, Reason: err.Error()}
	}

	log.Info("invitation sent", "member_id", m.ID)
	return OutcomeSent, nil
}
