package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ActionLog records who did what to which entity. Distinct from the
// approval trail: this captures every mutation, not only decisions.
type ActionLog struct {
	ActorID  int64
	Role     Role
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// ActionRecorder writes records into action_logs.
type ActionRecorder struct {
	pool *pgxpool.Pool
}

// NewActionRecorder returns a new ActionRecorder.
func NewActionRecorder(pool *pgxpool.Pool) *ActionRecorder {
	return &ActionRecorder{pool: pool}
}

// Record persists the log entry.
func (r *ActionRecorder) Record(ctx context.Context, log ActionLog) error {
	if r == nil {
		return errors.New("action recorder not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("action log requires action/entity/entity_id")
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	if log.At.IsZero() {
		log.At = time.Now().UTC()
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO action_logs (actor_id, role, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		log.ActorID, string(log.Role), log.Action, log.Entity, log.EntityID, metaJSON, log.At)
	return err
}
