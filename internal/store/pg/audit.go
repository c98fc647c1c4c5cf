package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"inventra.io/internal/audit"
)

// Append persists an audit entry.
func (s *Store) Append(ctx context.Context, e audit.Entry) error {
	if s.db == nil {
		return errNoDB
	}
	details := []byte("{}")
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshal details: %w", err)
		}
		details = b
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_logs (id, occurred_at, action, user_id, actor_id, entity_type, entity_id, ip, user_agent, details)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, e.OccurredAt, e.Action,
		nullIfEmpty(e.UserID), nullIfEmpty(e.ActorID),
		e.EntityType, nullIfEmpty(e.EntityID),
		nullIfEmpty(e.IP), nullIfEmpty(e.UserAgent), details)
	return err
}
