package service

import (
	"context"
	"sync"
	"time"

	"github.com/yndnr/memgate-go/internal/core/domain"
)

// fakeRepo is an in-memory member store for service tests.
type fakeRepo struct {
	mu      sync.Mutex
	byEmail map[string]*domain.Member
	byToken map[string]*domain.Member

	findErr    error
	insertErr  error
	markErr    error
	lookups    int
	inserts    int
	markCalls  int
	beforeMark func()

	// honorCtx makes MarkVerified fail on a done context, like a SQL driver.
	honorCtx bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		byEmail: make(map[string]*domain.Member),
		byToken: make(map[string]*domain.Member),
	}
}

func (f *fakeRepo) FindByContact(ctx context.Context, email string) (*domain.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.findErr != nil {
		return nil, f.findErr
	}
	m, ok := f.byEmail[email]
	if !ok {
		return nil, domain.ErrMemberNotFound
	}
	return m.Clone(), nil
}

func (f *fakeRepo) Insert(ctx context.Context, m *domain.Member) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	if _, ok := f.byEmail[m.Email]; ok {
		return domain.ErrDuplicateContact
	}
	if _, ok := f.byToken[m.Token]; ok {
		return domain.ErrDuplicateToken
	}
	c := m.Clone()
	f.byEmail[c.Email] = c
	f.byToken[c.Token] = c
	f.inserts++
	return nil
}

func (f *fakeRepo) FindByToken(ctx context.Context, token string) (*domain.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.findErr != nil {
		return nil, f.findErr
	}
	m, ok := f.byToken[token]
	if !ok {
		return nil, domain.ErrMemberNotFound
	}
	return m.Clone(), nil
}

func (f *fakeRepo) MarkVerified(ctx context.Context, token, externalID string) (bool, error) {
	if f.beforeMark != nil {
		f.beforeMark()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls++
	if f.honorCtx && ctx.Err() != nil {
		return false, domain.ErrStorage.WithCause(ctx.Err())
	}
	if f.markErr != nil {
		return false, f.markErr
	}
	m, ok := f.byToken[token]
	if !ok {
		return false, domain.ErrMemberNotFound
	}
	return m.MarkVerified(externalID, time.Now()), nil
}

func (f *fakeRepo) seed(m *domain.Member) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := m.Clone()
	f.byEmail[c.Email] = c
	f.byToken[c.Token] = c
}

func (f *fakeRepo) get(token string) *domain.Member {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byToken[token].Clone()
}

// fakeTransport records sent messages.
type fakeTransport struct {
	mu     sync.Mutex
	sent   []Message
	failTo map[string]bool
	kind   Kind
}

func (f *fakeTransport) Send(ctx context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo[msg.To] {
		return &CapabilityError{Op: "send", Kind: f.kind, Err: domain.ErrTransportFailure.WithDetails("smtp: 451 try later")}
	}
	f.sent = append(f.sent, msg)
	return nil
}

// fakeRoster serves rows per group name.
type fakeRoster struct {
	rows map[string][]domain.RosterRow
	errs map[string]error
}

func (f *fakeRoster) Rows(ctx context.Context, g Group) ([]domain.RosterRow, error) {
	if err := f.errs[g.Name]; err != nil {
		return nil, err
	}
	return f.rows[g.Name], nil
}

// fakeTemplates serves one body for every group unless an error is set.
type fakeTemplates struct {
	body string
	errs map[string]error
}

func (f *fakeTemplates) Template(ctx context.Context, g Group) (*Template, error) {
	if err := f.errs[g.Name]; err != nil {
		return nil, err
	}
	return &Template{Name: g.Name, Body: f.body}, nil
}

// fakeChat records platform calls.
type fakeChat struct {
	mu         sync.Mutex
	privileges map[string]Privilege

	resolveErr error
	grantErr   error
	nickErr    error
	deleteErr  error

	deleted  []string
	notified []string
	replies  []fakeReply
	grants   []string
	nicks    map[string]string

	// honorCtx makes calls fail once ctx is done, like an HTTP-backed platform.
	honorCtx    bool
	beforeGrant func(ctx context.Context)
}

func (f *fakeChat) ctxErr(ctx context.Context, op string) error {
	if f.honorCtx && ctx.Err() != nil {
		return &CapabilityError{Op: op, Kind: KindUnavailable, Err: ctx.Err()}
	}
	return nil
}

type fakeReply struct {
	channel string
	text    string
	ttl     time.Duration
}

func newFakeChat() *fakeChat {
	return &fakeChat{
		privileges: map[string]Privilege{"R1": {ID: "R1", Name: "Engineering"}},
		nicks:      make(map[string]string),
	}
}

func (f *fakeChat) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if err := f.ctxErr(ctx, "delete_message"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return f.deleteErr
}

func (f *fakeChat) Notify(ctx context.Context, principalID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, principalID)
	return nil
}

func (f *fakeChat) Reply(ctx context.Context, channelID, text string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, fakeReply{channel: channelID, text: text, ttl: ttl})
	return nil
}

func (f *fakeChat) ResolvePrivilege(ctx context.Context, id string) (Privilege, error) {
	if f.resolveErr != nil {
		return Privilege{}, f.resolveErr
	}
	p, ok := f.privileges[id]
	if !ok {
		return Privilege{}, &CapabilityError{Op: "resolve_privilege", Kind: KindNotFound}
	}
	return p, nil
}

func (f *fakeChat) GrantPrivilege(ctx context.Context, principalID, privilegeID string) error {
	if f.beforeGrant != nil {
		f.beforeGrant(ctx)
	}
	if err := f.ctxErr(ctx, "grant_privilege"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.grantErr != nil {
		return f.grantErr
	}
	f.grants = append(f.grants, principalID+":"+privilegeID)
	return nil
}

func (f *fakeChat) SetDisplayName(ctx context.Context, principalID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nickErr != nil {
		return f.nickErr
	}
	f.nicks[principalID] = name
	return nil
}

func (f *fakeChat) Mention(principalID string) string {
	return "<@" + principalID + ">"
}

func (f *fakeChat) lastReply() fakeReply {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return fakeReply{}
	}
	return f.replies[len(f.replies)-1]
}

// fakeMetrics counts outcomes.
type fakeMetrics struct {
	mu          sync.Mutex
	invites     map[string]int
	redemptions map[string]int
	capErrors   map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		invites:     make(map[string]int),
		redemptions: make(map[string]int),
		capErrors:   make(map[string]int),
	}
}

func (f *fakeMetrics) InviteOutcome(group, outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invites[group+"/"+outcome]++
}

func (f *fakeMetrics) RedemptionOutcome(outcome string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redemptions[outcome]++
}

func (f *fakeMetrics) CapabilityError(op, kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.capErrors[op+"/"+kind]++
}
