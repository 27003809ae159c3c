// Package sqlite provides the SQLite-backed member store (modernc.org/sqlite).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/yndnr/memgate-go/internal/core/domain"
	"github.com/yndnr/memgate-go/internal/core/service"
	"github.com/yndnr/memgate-go/internal/storage/migrate"
	"github.com/yndnr/memgate-go/internal/storage/sqlite/migrations"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// Store persists members in SQLite.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Open opens a SQLite member store at path. It does not create the schema;
// call CreateSchema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"
	db, err := sqlx.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping db: %w", err)
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

// Close closes the SQLite handle.
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
	return s.getOne(ctx, selectMember+` WHERE email = ?`, email)
}

// FindByToken returns the member holding token.
func (s *Store) FindByToken(ctx context.Context, token string) (*domain.Member, error) {
	return s.getOne(ctx, selectMember+` WHERE token = ?`, token)
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
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO members (
		   id, email, first_name, last_name, role_label, privilege_id, token, verified, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		m.ID, m.Email, m.FirstName, m.LastName, m.RoleLabel, m.PrivilegeID, m.Token, m.CreatedAt,
	)
	if err != nil {
		return classifyInsertError(err, m)
	}
	return nil
}

// MarkVerified performs the pending -> verified transition in one
// conditional UPDATE. Zero affected rows means the token is unknown or
// already consumed; a follow-up read tells the two apart.
func (s *Store) MarkVerified(ctx context.Context, token, externalID string) (bool, error) {
	if err := domain.ValidateExternalID(externalID); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE members SET verified = 1, external_id = ?, verified_at = ?
		  WHERE token = ? AND verified = 0`,
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

	var exists int
	err = s.db.GetContext(ctx, &exists, `SELECT 1 FROM members WHERE token = ?`, token)
	if errors.Is(err, sql.ErrNoRows) {
		return false, domain.ErrMemberNotFound
	}
	if err != nil {
		return false, domain.ErrStorage.WithCause(err)
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
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
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
	var sqliteErr *msqlite.Error
	unique := false
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
			unique = true
		}
	}
	msg := strings.ToLower(err.Error())
	if unique || strings.Contains(msg, "unique constraint failed") {
		switch {
		case strings.Contains(msg, "members.email"):
			return domain.ErrDuplicateContact.WithDetails(m.Email)
		case strings.Contains(msg, "members.token"):
			return domain.ErrDuplicateToken
		case strings.Contains(msg, "members.id"):
			return domain.ErrMemberValidation.WithDetails("id already exists")
		}
	}
	return domain.ErrStorage.WithCause(fmt.Errorf("insert member: %w", err))
}

var (
	_ service.MemberRepository = (*Store)(nil)
	_ service.StateCounter     = (*Store)(nil)
)
