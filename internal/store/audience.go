package store

import (
	"context"
	"fmt"
)

// AddAudienceMember subscribes member to a notification handler
func (s *Store) AddAudienceMember(ctx context.Context, handler, member string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audience (handler, member_id) VALUES (?, ?)
		ON CONFLICT (handler, member_id) DO NOTHING
	`, handler, member)
	if err != nil {
		return fmt.Errorf("failed to add audience member: %w", err)
	}
	return nil
}

// RemoveAudienceMember unsubscribes member
func (s *Store) RemoveAudienceMember(ctx context.Context, handler, member string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM audience WHERE handler = ? AND member_id = ?`, handler, member); err != nil {
		return fmt.Errorf("failed to remove audience member: %w", err)
	}
	return nil
}

// AudienceMembers lists the members subscribed to handler
func (s *Store) AudienceMembers(ctx context.Context, handler string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT member_id FROM audience WHERE handler = ? ORDER BY member_id`, handler)
	if err != nil {
		return nil, fmt.Errorf("failed to query audience: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("failed to scan audience member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
