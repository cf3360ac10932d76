// Package inbox deduplicates lifecycle events delivered more than once.
package inbox

import (
	"context"
	"fmt"

	"github.com/md-rashed-zaman/clinicbook/libs/db"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record claims eventID. It reports false when the event was already handled.
func (r *Repository) Record(ctx context.Context, eventID, eventType string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("record %s: %w", eventID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Forget releases a claim whose handler gave up, so redelivery runs it again.
func (r *Repository) Forget(ctx context.Context, eventID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM inbox_events WHERE event_id = $1`, eventID); err != nil {
		return fmt.Errorf("forget %s: %w", eventID, err)
	}
	return nil
}
