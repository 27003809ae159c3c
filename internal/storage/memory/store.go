package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yndnr/memgate-go/internal/core/domain"
	"github.com/yndnr/memgate-go/internal/core/service"
)

// Store provides in-memory member storage with email and token indexes.
type Store struct {
	mu sync.RWMutex

	// Primary index: ID -> Member
	members map[string]*domain.Member

	// Secondary indexes: email -> ID, token -> ID
	emails map[string]string
	tokens map[string]string

	closed bool
	now    func() time.Time
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		members: make(map[string]*domain.Member),
		emails:  make(map[string]string),
		tokens:  make(map[string]string),
		now:     time.Now,
	}
}

// CreateSchema is a no-op for the memory store.
func (s *Store) CreateSchema(ctx context.Context) error {
	return ctx.Err()
}

// FindByContact retrieves a member by normalized email.
func (s *Store) FindByContact(_ context.Context, email string) (*domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errClosed
	}
	id, ok := s.emails[email]
	if !ok {
		return nil, domain.ErrMemberNotFound
	}
	return s.members[id].Clone(), nil
}

// FindByToken retrieves a member by token.
func (s *Store) FindByToken(_ context.Context, token string) (*domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errClosed
	}
	id, ok := s.tokens[token]
	if !ok {
		return nil, domain.ErrMemberNotFound
	}
	return s.members[id].Clone(), nil
}

// Insert stores a new pending member.
func (s *Store) Insert(_ context.Context, m *domain.Member) error {
	if err := m.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed
	}
	if _, ok := s.emails[m.Email]; ok {
		return domain.ErrDuplicateContact.WithDetails(m.Email)
	}
	if _, ok := s.tokens[m.Token]; ok {
		return domain.ErrDuplicateToken
	}
	if _, ok := s.members[m.ID]; ok {
		return domain.ErrMemberValidation.WithDetails("id already exists")
	}

	clone := m.Clone()
	s.members[clone.ID] = clone
	s.emails[clone.Email] = clone.ID
	s.tokens[clone.Token] = clone.ID
	return nil
}

// MarkVerified performs the pending -> verified transition under the write lock.
func (s *Store) MarkVerified(_ context.Context, token, externalID string) (bool, error) {
	if err := domain.ValidateExternalID(externalID); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, errClosed
	}
	id, ok := s.tokens[token]
	if !ok {
		return false, domain.ErrMemberNotFound
	}
	return s.members[id].MarkVerified(externalID, s.now()), nil
}

// List returns members matching filter ordered by creation time.
func (s *Store) List(_ context.Context, filter service.ListFilter) ([]*domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errClosed
	}
	out := make([]*domain.Member, 0, len(s.members))
	for _, m := range s.members {
		if filter.Matches(m) {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// CountByState counts members per state.
func (s *Store) CountByState(_ context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errClosed
	}
	counts := map[string]int{"pending": 0, "verified": 0}
	for _, m := range s.members {
		if m.Verified {
			counts["verified"]++
		} else {
			counts["pending"]++
		}
	}
	return counts, nil
}

// Close marks the store closed. Later calls fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var errClosed = domain.ErrStorage.WithDetails("store closed")

var (
	_ service.MemberRepository = (*Store)(nil)
	_ service.StateCounter     = (*Store)(nil)
)
