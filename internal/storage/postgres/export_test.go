package postgres

import "context"

// Truncate empties the members table. Test helper only.
func (s *Store) Truncate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `TRUNCATE members`)
	return err
}
