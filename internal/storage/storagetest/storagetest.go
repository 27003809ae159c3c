// Package storagetest holds the behaviour every member store must share.
//
// Backend tests call Run with a factory returning a fresh, empty store.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/yndnr/memgate-go/internal/core/domain"
	"github.com/yndnr/memgate-go/internal/core/service"
)

// Factory returns a fresh, empty store. Run closes it.
type Factory func(t *testing.T) service.MemberRepository

// Run executes the conformance suite against stores built by newRepo.
func Run(t *testing.T, newRepo Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, repo service.MemberRepository)
	}{
		{"CreateSchemaIdempotent", testCreateSchemaIdempotent},
		{"RoundTrip", testRoundTrip},
		{"NotFound", testNotFound},
		{"DuplicateContact", testDuplicateContact},
		{"DuplicateToken", testDuplicateToken},
		{"InsertValidates", testInsertValidates},
		{"MarkVerifiedOnce", testMarkVerifiedOnce},
		{"MarkVerifiedUnknownToken", testMarkVerifiedUnknownToken},
		{"MarkVerifiedRequiresExternalID", testMarkVerifiedRequiresExternalID},
		{"ConcurrentMarkVerified", testConcurrentMarkVerified},
		{"List", testList},
		{"CountByStateEmpty", testCountByStateEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newRepo(t)
			t.Cleanup(func() { _ = repo.Close() })
			if err := repo.CreateSchema(context.Background()); err != nil {
				t.Fatalf("CreateSchema() error = %v", err)
			}
			tt.fn(t, repo)
		})
	}
}

var seq atomic.Int64

// NewMember returns a valid pending member. CreatedAt increases per call.
func NewMember(email, token, privilegeID string) *domain.Member {
	n := 1700000000000 + seq.Add(1)
	return &domain.Member{
		ID:          fmt.Sprintf("mbr-%d", n),
		Email:       email,
		FirstName:   "First",
		LastName:    "Last",
		RoleLabel:   "Engineering",
		PrivilegeID: privilegeID,
		Token:       token,
		CreatedAt:   n,
	}
}

func mustInsert(t *testing.T, repo service.MemberRepository, m *domain.Member) {
	t.Helper()
	if err := repo.Insert(context.Background(), m); err != nil {
		t.Fatalf("Insert(%s) error = %v", m.Email, err)
	}
}

func testCreateSchemaIdempotent(t *testing.T, repo service.MemberRepository) {
	ctx := context.Background()
	mustInsert(t, repo, NewMember("keep@x.com", "T-keep", "R1"))
	for i := 0; i < 2; i++ {
		if err := repo.CreateSchema(ctx); err != nil {
			t.Fatalf("CreateSchema() again error = %v", err)
		}
	}
	if _, err := repo.FindByContact(ctx, "keep@x.com"); err != nil {
		t.Errorf("CreateSchema() dropped data: %v", err)
	}
}

func testRoundTrip(t *testing.T, repo service.MemberRepository) {
	ctx := context.Background()
	in := NewMember("a@x.com", "T1", "R1")
	mustInsert(t, repo, in)

	byToken, err := repo.FindByToken(ctx, "T1")
	if err != nil {
		t.Fatalf("FindByToken() error = %v", err)
	}
	if *byToken != *in {
		t.Errorf("FindByToken() = %+v, want %+v", byToken, in)
	}

	byContact, err := repo.FindByContact(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("FindByContact() error = %v", err)
	}
	if byContact.ID != in.ID || byContact.Verified {
		t.Errorf("FindByContact() = %+v", byContact)
	}

	ok, err := repo.MarkVerified(ctx, "T1", "U1")
	if err != nil || !ok {
		t.Fatalf("MarkVerified() = %v, %v, want true, nil", ok, err)
	}

	after, err := repo.FindByToken(ctx, "T1")
	if err != nil {
		t.Fatalf("FindByToken() after mark error = %v", err)
	}
	if !after.Verified || after.ExternalID != "U1" {
		t.Errorf("after MarkVerified() = %+v", after)
	}
	if after.VerifiedAt == 0 {
		t.Error("VerifiedAt not recorded")
	}
	if after.Email != in.Email || after.PrivilegeID != "R1" || after.CreatedAt != in.CreatedAt {
		t.Errorf("MarkVerified() changed other fields: %+v", after)
	}
}

func testNotFound(t *testing.T, repo service.MemberRepository) {
	ctx := context.Background()
	if _, err := repo.FindByToken(ctx, "nope"); !errors.Is(err, domain.ErrMemberNotFound) {
		t.Errorf("FindByToken() error = %v, want ErrMemberNotFound", err)
	}
	if _, err := repo.FindByContact(ctx, "nobody@x.com"); !errors.Is(err, domain.ErrMemberNotFound) {
		t.Errorf("FindByContact() error = %v, want ErrMemberNotFound", err)
	}
}

func testDuplicateContact(t *testing.T, repo service.MemberRepository) {
	ctx := context.Background()
	mustInsert(t, repo, NewMember("b@y.com", "T1", "R1"))

	err := repo.Insert(ctx, NewMember("b@y.com", "T2", "R1"))
	if !errors.Is(err, domain.ErrDuplicateContact) {
		t.Fatalf("Insert() duplicate email error = %v, want ErrDuplicateContact", err)
	}
	if _, err := repo.FindByToken(ctx, "T2"); !errors.Is(err, domain.ErrMemberNotFound) {
		t.Errorf("rejected insert left token T2 behind: %v", err)
	}
}

func testDuplicateToken(t *testing.T, repo service.MemberRepository) {
	ctx := context.Background()
	mustInsert(t, repo, NewMember("a@x.com", "T1", "R1"))

	err := repo.Insert(ctx, NewMember("c@x.com", "T1", "R1"))
	if !errors.Is(err, domain.ErrDuplicateToken) {
		t.Fatalf("Insert() duplicate token error = %v, want ErrDuplicateToken", err)
	}
	if _, err := repo.FindByContact(ctx, "c@x.com"); !errors.Is(err, domain.ErrMemberNotFound) {
		t.Errorf("rejected insert left contact behind: %v", err)
	}
}

func testInsertValidates(t *testing.T, repo service.MemberRepository) {
	m := NewMember("a@x.com", "", "R1")
	if err := repo.Insert(context.Background(), m); !errors.Is(err, domain.ErrMemberValidation) {
		t.Errorf("Insert() without token error = %v, want ErrMemberValidation", err)
	}
}

func testMarkVerifiedOnce(t *testing.T, repo service.MemberRepository) {
	ctx := context.Background()
	mustInsert(t, repo, NewMember("a@x.com", "T1", "R1"))

	first, err := repo.MarkVerified(ctx, "T1", "U1")
	if err != nil || !first {
		t.Fatalf("first MarkVerified() = %v, %v", first, err)
	}
	second, err := repo.MarkVerified(ctx, "T1", "U2")
	if err != nil {
		t.Fatalf("second MarkVerified() error = %v", err)
	}
	if second {
		t.Error("second MarkVerified() = true, want false")
	}

	m, _ := repo.FindByToken(ctx, "T1")
	if m.ExternalID != "U1" {
		t.Errorf("ExternalID = %q, want U1", m.ExternalID)
	}
}

func testMarkVerifiedUnknownToken(t *testing.T, repo service.MemberRepository) {
	ctx := context.Background()
	mustInsert(t, repo, NewMember("a@x.com", "T1", "R1"))

	ok, err := repo.MarkVerified(ctx, "T9", "U1")
	if ok || !errors.Is(err, domain.ErrMemberNotFound) {
		t.Errorf("MarkVerified(unknown) = %v, %v, want false, ErrMemberNotFound", ok, err)
	}
	m, _ := repo.FindByToken(ctx, "T1")
	if m.Verified {
		t.Error("unknown token mutated another record")
	}
}

func testMarkVerifiedRequiresExternalID(t *testing.T, repo service.MemberRepository) {
	ctx := context.Background()
	mustInsert(t, repo, NewMember("a@x.com", "T1", "R1"))

	for _, id := range []string{"", "   "} {
		ok, err := repo.MarkVerified(ctx, "T1", id)
		if ok || !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("MarkVerified(%q) = %v, %v, want false, ErrInvalidArgument", id, ok, err)
		}
	}
	m, err := repo.FindByToken(ctx, "T1")
	if err != nil {
		t.Fatalf("FindByToken() error = %v", err)
	}
	if m.Verified || m.ExternalID != "" {
		t.Errorf("record = verified %v, external id %q, want pending", m.Verified, m.ExternalID)
	}
}

func testCountByStateEmpty(t *testing.T, repo service.MemberRepository) {
	counts, err := service.CountByState(context.Background(), repo)
	if err != nil {
		t.Fatalf("CountByState() error = %v", err)
	}
	if len(counts) != 2 || counts["pending"] != 0 || counts["verified"] != 0 {
		t.Errorf("CountByState() = %v, want zero pending and verified", counts)
	}
}

func testConcurrentMarkVerified(t *testing.T, repo service.MemberRepository) {
	ctx := context.Background()
	mustInsert(t, repo, NewMember("a@x.com", "T1", "R1"))

	const n = 12
	results := make([]bool, n)
	errs := make([]error, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = repo.MarkVerified(ctx, "T1", fmt.Sprintf("U%d", i))
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	winner := ""
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Errorf("MarkVerified() goroutine %d error = %v", i, errs[i])
		}
		if results[i] {
			winners++
			winner = fmt.Sprintf("U%d", i)
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}

	m, _ := repo.FindByToken(ctx, "T1")
	if m.ExternalID != winner {
		t.Errorf("ExternalID = %q, want winner %q", m.ExternalID, winner)
	}
}

func testList(t *testing.T, repo service.MemberRepository) {
	ctx := context.Background()
	a := NewMember("a@x.com", "T1", "R1")
	b := NewMember("b@x.com", "T2", "R2")
	b.RoleLabel = "Design"
	c := NewMember("c@x.com", "T3", "R1")
	for _, m := range []*domain.Member{c, a, b} {
		mustInsert(t, repo, m)
	}
	if _, err := repo.MarkVerified(ctx, "T1", "U1"); err != nil {
		t.Fatalf("MarkVerified() error = %v", err)
	}

	verified, pending := true, false
	tests := []struct {
		name   string
		filter service.ListFilter
		want   []string
	}{
		{"all ordered by creation", service.ListFilter{}, []string{"a@x.com", "b@x.com", "c@x.com"}},
		{"verified", service.ListFilter{Verified: &verified}, []string{"a@x.com"}},
		{"pending", service.ListFilter{Verified: &pending}, []string{"b@x.com", "c@x.com"}},
		{"role label", service.ListFilter{RoleLabel: "Design"}, []string{"b@x.com"}},
		{"limit", service.ListFilter{Limit: 2}, []string{"a@x.com", "b@x.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("List() returned %d members, want %d", len(got), len(tt.want))
			}
			for i, m := range got {
				if m.Email != tt.want[i] {
					t.Errorf("List()[%d] = %s, want %s", i, m.Email, tt.want[i])
				}
			}
		})
	}

	counts, err := service.CountByState(ctx, repo)
	if err != nil {
		t.Fatalf("CountByState() error = %v", err)
	}
	if counts["verified"] != 1 || counts["pending"] != 2 {
		t.Errorf("CountByState() = %v", counts)
	}
}
