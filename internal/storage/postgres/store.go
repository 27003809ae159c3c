// Package postgres provides the PostgreSQL-backed member store (sqlx + lib/pq).
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/yndnr/memgate-go/internal/core/domain"
	"github.com/yndnr/memgate-go/internal/core/service"
	"github.com/yndnr/memgate-go/internal/storage/migrate"
	"github.com/yndnr/memgate-go/internal/storage/postgres/migrations"
)

// Unique constraint names from 001_members.sql.
const (
	emailConstraint = "members_email_key"
	tokenConstraint = "members_token_key"
	uniqueViolation = "23505"
)

// Store persists members in PostgreSQL.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Open connects to dsn. It does not create the schema; call CreateSchema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres: dsn is required")
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// CreateSchema applies the embedded migrations.
func (s *Store) CreateSchema(ctx context.Context) error {
	if err := migrate.Apply(ctx, s.db, migrations.FS); err != nil {
		return domain.ErrStorage.WithCause(err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const selectMember = `SELECT id, email, first_name, last_name, role_label, privilege_id, token, verified,
       COALESCE(external_id, '') AS external_id, created_at, COALESCE(verified_at, 0) AS verified_at
  FROM members`

// FindByContact returns the member with the given email.
func (s *Store) FindByContact(ctx context.Context, email string) (*domain.Member, error) {
	return s.getOne(ctx, selectMember+` WHERE email = $1`, email)
}

// FindByToken returns the member holding token.
func (s *Store) FindByToken(ctx context.Context, token string) (*domain.Member, error) {
	return s.getOne(ctx, selectMember+` WHERE token = $1`, token)
}

func (s *Store) getOne(ctx context.Context, query string, arg any) (*domain.Member, error) {
	var m domain.Member
	err := s.db.GetContext(ctx, &m, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMemberNotFound
	}
	if err != nil {
		return nil, domain.ErrStorage.WithCause(err)
	}
	return &m, nil
}

// Insert stores a new pending member.
func (s *Store) Insert(ctx context.Context, m *domain.Member) error {
	if err := m.Validate(); err != nil {
		return err
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO members (
		   id, email, first_name, last_name, role_label, privilege_id, token, verified, created_at
		 ) VALUES (
		   :id, :email, :first_name, :last_name, :role_label, :privilege_id, :token, FALSE, :created_at
		 )`, m)
	if err != nil {
		return classifyInsertError(err, m)
	}
	return nil
}

// MarkVerified performs the pending -> verified transition in one
// conditional UPDATE; PostgreSQL row locking serialises racing callers.
func (s *Store) MarkVerified(ctx context.Context, token, externalID string) (bool, error) {
	if err := domain.ValidateExternalID(externalID); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE members SET verified = TRUE, external_id = $1, verified_at = $2
		  WHERE token = $3 AND verified = FALSE`,
		externalID, s.now().UnixMilli(), token,
	)
	if err != nil {
		return false, domain.ErrStorage.WithCause(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, domain.ErrStorage.WithCause(err)
	}
	if n == 1 {
		return true, nil
	}

	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM members WHERE token = $1)`, token); err != nil {
		return false, domain.ErrStorage.WithCause(err)
	}
	if !exists {
		return false, domain.ErrMemberNotFound
	}
	return false, nil
}

// List returns members matching filter ordered by creation time.
func (s *Store) List(ctx context.Context, filter service.ListFilter) ([]*domain.Member, error) {
	var (
		where []string
		args  []any
	)
	if filter.Verified != nil {
		where = append(where, "verified = ?")
		args = append(args, *filter.Verified)
	}
	if filter.RoleLabel != "" {
		where = append(where, "role_label = ?")
		args = append(args, filter.RoleLabel)
	}
	query := selectMember
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var out []*domain.Member
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), args...); err != nil {
		return nil, domain.ErrStorage.WithCause(err)
	}
	return out, nil
}

// CountByState counts members per state with a single aggregate query.
func (s *Store) CountByState(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Verified bool `db:"verified"`
		N        int  `db:"n"`
	}
	err := s.db.SelectContext(ctx, &rows,
		`SELECT verified, COUNT(*) AS n FROM members GROUP BY verified`)
	if err != nil {
		return nil, domain.ErrStorage.WithCause(err)
	}
	counts := map[string]int{"pending": 0, "verified": 0}
	for _, r := range rows {
		if r.Verified {
			counts["verified"] = r.N
		} else {
			counts["pending"] = r.N
		}
	}
	return counts, nil
}

func classifyInsertError(err error, m *domain.Member) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		switch pqErr.Constraint {
		case emailConstraint:
			return domain.ErrDuplicateContact.WithDetails(m.Email)
		case tokenConstraint:
			return domain.ErrDuplicateToken
		case "members_pkey":
			return domain.ErrMemberValidation.WithDetails("id already exists")
		}
	}
	return domain.ErrStorage.WithCause(fmt.Errorf("insert member: %w", err))
}

var (
	_ service.MemberRepository = (*Store)(nil)
	_ service.StateCounter     = (*Store)(nil)
)
