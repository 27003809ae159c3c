package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/memgate-go/internal/core/domain"
	"github.com/yndnr/memgate-go/internal/telemetry/logger"
)

const verifyChannel = "C-verify"

type redeemerFixture struct {
	repo     *fakeRepo
	chat     *fakeChat
	metrics  *fakeMetrics
	redeemer *Redeemer
}

func newRedeemerFixture() *redeemerFixture {
	f := &redeemerFixture{
		repo:    newFakeRepo(),
		chat:    newFakeChat(),
		metrics: newFakeMetrics(),
	}
	f.repo.seed(&domain.Member{
		ID:          "mbr-1",
		Email:       "a@x.com",
		FirstName:   "Ada",
		LastName:    "Lovelace",
		RoleLabel:   "Engineering",
		PrivilegeID: "R1",
		Token:       "T1",
	})
	f.redeemer = NewRedeemer(f.repo, f.chat, RedeemerConfig{
		ChannelID:     verifyChannel,
		CommunityName: "Example",
		Logger:        logger.Discard(),
		Metrics:       f.metrics,
	})
	return f
}

func request(token string) RedemptionRequest {
	return RedemptionRequest{ChannelID: verifyChannel, MessageID: "M1", PrincipalID: "U1", Token: token}
}

func TestRedeemer_Handle_Success(t *testing.T) {
	f := newRedeemerFixture()

	if err := f.redeemer.Handle(context.Background(), request("T1")); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	m := f.repo.get("T1")
	if !m.Verified || m.ExternalID != "U1" || m.VerifiedAt == 0 {
		t.Errorf("member after redemption = %+v", m)
	}
	if len(f.chat.grants) != 1 || f.chat.grants[0] != "U1:R1" {
		t.Errorf("grants = %v, want [U1:R1]", f.chat.grants)
	}
	reply := f.chat.lastReply()
	if !strings.Contains(reply.text, "**Engineering**") || !strings.Contains(reply.text, "<@U1>") {
		t.Errorf("welcome reply = %q", reply.text)
	}
	if reply.ttl != DefaultWelcomeTTL {
		t.Errorf("welcome ttl = %v, want %v", reply.ttl, DefaultWelcomeTTL)
	}
	if f.chat.nicks["U1"] != "Ada" {
		t.Errorf("display name = %q, want Ada", f.chat.nicks["U1"])
	}
	if len(f.chat.deleted) != 1 || f.chat.deleted[0] != "M1" {
		t.Errorf("deleted = %v, want [M1]", f.chat.deleted)
	}
	if f.metrics.redemptions[RedeemSuccess] != 1 {
		t.Errorf("redemption metric = %v", f.metrics.redemptions)
	}
}

func TestRedeemer_Handle_SecondRedemption(t *testing.T) {
	f := newRedeemerFixture()
	ctx := context.Background()

	if err := f.redeemer.Handle(ctx, request("T1")); err != nil {
		t.Fatalf("first Handle() error = %v", err)
	}
	req := request("T1")
	req.PrincipalID = "U2"
	if err := f.redeemer.Handle(ctx, req); !errors.Is(err, domain.ErrAlreadyRedeemed) {
		t.Fatalf("second Handle() error = %v, want ErrAlreadyRedeemed", err)
	}

	if m := f.repo.get("T1"); m.ExternalID != "U1" {
		t.Errorf("ExternalID = %q, want U1", m.ExternalID)
	}
	if len(f.chat.grants) != 1 {
		t.Errorf("grants = %v, want exactly one", f.chat.grants)
	}
	if len(f.chat.deleted) != 2 {
		t.Errorf("deleted = %v, want both request messages", f.chat.deleted)
	}
}

func TestRedeemer_Handle_Outcomes(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(f *redeemerFixture)
		req       RedemptionRequest
		wantErr   *domain.DomainError
		wantGrant bool
		wantReply string
	}{
		{
			name:      "missing token",
			req:       request("   "),
			wantErr:   domain.ErrMissingToken,
			wantReply: "Usage: !verify YOUR_TOKEN",
		},
		{
			name:      "unknown token",
			req:       request("T9"),
			wantErr:   domain.ErrInvalidToken,
			wantReply: "that token is invalid",
		},
		{
			name: "privilege missing on platform",
			setup: func(f *redeemerFixture) {
				delete(f.chat.privileges, "R1")
			},
			req:       request("T1"),
			wantErr:   domain.ErrPrivilegeNotFound,
			wantReply: "An internal error occurred",
		},
		{
			name: "grant permission denied",
			setup: func(f *redeemerFixture) {
				f.chat.grantErr = &CapabilityError{Op: "grant_privilege", Kind: KindPermissionDenied}
			},
			req:       request("T1"),
			wantErr:   domain.ErrCapabilityPermissionDenied,
			wantReply: "An internal error occurred",
		},
		{
			name: "grant transport failure",
			setup: func(f *redeemerFixture) {
				f.chat.grantErr = errors.New("connection reset")
			},
			req:       request("T1"),
			wantErr:   domain.ErrInternal,
			wantReply: "An internal error occurred",
		},
		{
			name: "store lookup failure",
			setup: func(f *redeemerFixture) {
				f.repo.findErr = errors.New("database is locked")
			},
			req:       request("T1"),
			wantErr:   domain.ErrStorage,
			wantReply: "A database error occurred",
		},
		{
			name: "mark failure after grant",
			setup: func(f *redeemerFixture) {
				f.repo.markErr = errors.New("database is locked")
			},
			req:       request("T1"),
			wantErr:   domain.ErrStorage,
			wantGrant: true,
			wantReply: "A database error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRedeemerFixture()
			if tt.setup != nil {
				tt.setup(f)
			}

			err := f.redeemer.Handle(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Handle() error = %v, want %v", err, tt.wantErr)
			}
			if got := len(f.chat.grants) > 0; got != tt.wantGrant {
				t.Errorf("granted = %v, want %v", got, tt.wantGrant)
			}
			if reply := f.chat.lastReply(); !strings.Contains(reply.text, tt.wantReply) {
				t.Errorf("reply = %q, want substring %q", reply.text, tt.wantReply)
			}
			if strings.Contains(f.chat.lastReply().text, "R1") {
				t.Error("reply discloses the privilege id")
			}
			if m := f.repo.get("T1"); m.Verified {
				t.Error("member marked verified on a failed redemption")
			}
			if len(f.chat.deleted) != 1 {
				t.Errorf("deleted = %v, want the request message", f.chat.deleted)
			}
		})
	}
}

func TestRedeemer_Handle_WrongContext(t *testing.T) {
	f := newRedeemerFixture()
	req := request("T1")
	req.ChannelID = "C-general"

	err := f.redeemer.Handle(context.Background(), req)
	if !errors.Is(err, domain.ErrWrongContext) {
		t.Fatalf("Handle() error = %v, want ErrWrongContext", err)
	}
	if f.repo.lookups != 0 || f.repo.markCalls != 0 {
		t.Errorf("store touched: lookups = %d, marks = %d", f.repo.lookups, f.repo.markCalls)
	}
	if len(f.chat.notified) != 1 || f.chat.notified[0] != "U1" {
		t.Errorf("notified = %v, want [U1]", f.chat.notified)
	}
	if len(f.chat.replies) != 0 {
		t.Errorf("replies = %v, want none in the wrong channel", f.chat.replies)
	}
	if len(f.chat.deleted) != 1 {
		t.Errorf("deleted = %v, want the request message", f.chat.deleted)
	}
	if f.repo.get("T1").Verified {
		t.Error("wrong-context request mutated the store")
	}
}

func TestRedeemer_Handle_DisplayNameFailureIsBestEffort(t *testing.T) {
	f := newRedeemerFixture()
	f.chat.nickErr = &CapabilityError{Op: "set_display_name", Kind: KindPermissionDenied}

	if err := f.redeemer.Handle(context.Background(), request("T1")); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if f.metrics.capErrors["set_display_name/permission_denied"] != 1 {
		t.Errorf("capability metric = %v", f.metrics.capErrors)
	}
}

func TestRedeemer_Handle_ScrubFailureDoesNotChangeOutcome(t *testing.T) {
	f := newRedeemerFixture()
	f.chat.deleteErr = &CapabilityError{Op: "delete_message", Kind: KindPermissionDenied}

	if err := f.redeemer.Handle(context.Background(), request("T1")); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
}

func TestRedeemer_Handle_ScrubAfterDeadline(t *testing.T) {
	f := newRedeemerFixture()
	f.chat.honorCtx = true
	f.chat.beforeGrant = func(ctx context.Context) { <-ctx.Done() }

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := f.redeemer.Handle(ctx, request("T1")); err == nil {
		t.Fatal("Handle() error = nil, want grant failure")
	}
	if len(f.chat.deleted) != 1 || f.chat.deleted[0] != "M1" {
		t.Errorf("deleted = %v, want the request message after the deadline", f.chat.deleted)
	}
	if f.repo.get("T1").Verified {
		t.Error("failed grant marked the record verified")
	}
}

func TestRedeemer_Handle_CommitAfterCancelDuringGrant(t *testing.T) {
	f := newRedeemerFixture()
	f.chat.honorCtx = true
	f.repo.honorCtx = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// The grant has gone through when the request is cancelled.
	var once sync.Once
	f.repo.beforeMark = func() { once.Do(cancel) }

	if err := f.redeemer.Handle(ctx, request("T1")); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	m := f.repo.get("T1")
	if !m.Verified || m.ExternalID != "U1" {
		t.Errorf("member = %+v, want verified by U1", m)
	}
	if len(f.chat.deleted) != 1 {
		t.Errorf("deleted = %v, want the request message", f.chat.deleted)
	}
}

func TestRedeemer_Handle_ConcurrentRedemption(t *testing.T) {
	f := newRedeemerFixture()

	const n = 16
	// Hold every caller at MarkVerified until all have been granted, so
	// they all pass the verified check before anyone transitions.
	var granted sync.WaitGroup
	granted.Add(n)
	f.repo.beforeMark = func() {
		granted.Done()
		granted.Wait()
	}

	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := request("T1")
			req.PrincipalID = "U" + string(rune('A'+i))
			errs[i] = f.redeemer.Handle(context.Background(), req)
		}(i)
	}
	wg.Wait()

	var ok, already int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrAlreadyRedeemed):
			already++
		default:
			t.Errorf("unexpected Handle() error = %v", err)
		}
	}
	if ok != 1 || already != n-1 {
		t.Errorf("success = %d, already redeemed = %d, want 1, %d", ok, already, n-1)
	}
	if f.metrics.redemptions[RedeemAlreadyRedeemed] != n-1 {
		t.Errorf("redemption metric = %v", f.metrics.redemptions)
	}
}

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, RedeemSuccess},
		{domain.ErrWrongContext, RedeemWrongContext},
		{domain.ErrMissingToken, RedeemMissingToken},
		{domain.ErrInvalidToken, RedeemInvalidToken},
		{domain.ErrAlreadyRedeemed, RedeemAlreadyRedeemed},
		{domain.ErrPrivilegeNotFound.WithDetails("R1"), RedeemPrivilegeNotFound},
		{domain.ErrStorage.WithCause(errors.New("x")), RedeemStoreError},
		{domain.ErrCapabilityPermissionDenied, RedeemGrantFailed},
	}
	for _, tt := range tests {
		if got := outcomeOf(tt.err); got != tt.want {
			t.Errorf("outcomeOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	wrapped := errors.Join(errors.New("ctx"), &CapabilityError{Op: "grant_privilege", Kind: KindNotFound})
	if got := KindOf(wrapped); got != KindNotFound {
		t.Errorf("KindOf() = %v, want not_found", got)
	}
	if got := KindOf(errors.New("plain")); got != KindUnavailable {
		t.Errorf("KindOf(plain) = %v, want unavailable", got)
	}
}
