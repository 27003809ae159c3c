package service

import (
	"context"

	"github.com/yndnr/memgate-go/internal/core/domain"
)

// IssuerRepository is the part of the store the issuer uses.
type IssuerRepository interface {
	// FindByContact returns the member with the given normalized email,
	// or domain.ErrMemberNotFound.
	FindByContact(ctx context.Context, email string) (*domain.Member, error)

	// Insert persists a new unverified member. Uniqueness violations
	// return domain.ErrDuplicateContact or domain.ErrDuplicateToken.
	Insert(ctx context.Context, m *domain.Member) error
}

// RedemptionRepository is the part of the store the redeemer uses.
type RedemptionRepository interface {
	// FindByToken returns the member holding token, or domain.ErrMemberNotFound.
	FindByToken(ctx context.Context, token string) (*domain.Member, error)

	// MarkVerified atomically moves the member holding token from pending
	// to verified and records externalID. It reports true only for the
	// call that performed the transition; an unknown token returns
	// domain.ErrMemberNotFound.
	MarkVerified(ctx context.Context, token, externalID string) (bool, error)
}

// MemberRepository is the full store contract implemented by every backend.
type MemberRepository interface {
	IssuerRepository
	RedemptionRepository

	// CreateSchema prepares the backing storage. Safe to call on every start.
	CreateSchema(ctx context.Context) error

	// List returns members matching filter ordered by creation time.
	List(ctx context.Context, filter ListFilter) ([]*domain.Member, error)

	// Close releases the storage handle.
	Close() error
}

// ListFilter defines filter criteria for member listings.
type ListFilter struct {
	Verified  *bool  // nil means any state
	RoleLabel string // empty means any group
	Limit     int    // 0 means no limit
}

// Matches reports whether m passes the filter, ignoring Limit.
func (f ListFilter) Matches(m *domain.Member) bool {
	if f.Verified != nil && m.Verified != *f.Verified {
		return false
	}
	if f.RoleLabel != "" && m.RoleLabel != f.RoleLabel {
		return false
	}
	return true
}

// StateCounter is implemented by backends that can count members per
// state without loading them.
type StateCounter interface {
	CountByState(ctx context.Context) (map[string]int, error)
}

// CountByState counts members per state for reporting, keyed "pending"
// and "verified".
func CountByState(ctx context.Context, repo MemberRepository) (map[string]int, error) {
	if c, ok := repo.(StateCounter); ok {
		return c.CountByState(ctx)
	}
	members, err := repo.List(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}
	counts := map[string]int{"pending": 0, "verified": 0}
	for _, m := range members {
		if m.Verified {
			counts["verified"]++
		} else {
			counts["pending"]++
		}
	}
	return counts, nil
}
