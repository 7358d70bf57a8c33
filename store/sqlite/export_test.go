package sqlite

import "context"

// ExecRaw runs a statement directly against the database, bypassing the
// store API. Tests use it to plant corrupt rows.
func (s *Store) ExecRaw(ctx context.Context, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}
