package shared

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Decision enumerates the append-only approval trail entries.
type Decision string

const (
	// DecisionProposition marks a proposed quantity revision.
	DecisionProposition Decision = "PROPOSITION"
	// DecisionApproved marks a full approval at requested quantities.
	DecisionApproved Decision = "APPROUVE"
	// DecisionRejected marks a rejection.
	DecisionRejected Decision = "REJETE"
	// DecisionModified marks an approval where at least one quantity differed.
	DecisionModified Decision = "MODIFIE"
	// DecisionDisputeApproved marks a dispute resolved in the requester's favour.
	DecisionDisputeApproved Decision = "LITIGE_RESOLU_APPROUVE"
	// DecisionDisputeRejected marks a dispute resolved against the requester.
	DecisionDisputeRejected Decision = "LITIGE_RESOLU_REJETE"
)

// ApprovalEntry is a single record of the audit trail. Entries are never
// mutated or deleted.
type ApprovalEntry struct {
	ID       int64
	Module   string
	RefID    uuid.UUID
	ActorID  int64
	Role     Role
	Decision Decision
	Comment  string
	At       time.Time
}

// ApprovalTrail persists approval history.
type ApprovalTrail struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewApprovalTrail constructs ApprovalTrail.
func NewApprovalTrail(pool *pgxpool.Pool, logger *slog.Logger) *ApprovalTrail {
	return &ApprovalTrail{pool: pool, logger: logger}
}

// ApprovalRef derives the stable trail reference for a module entity.
func ApprovalRef(module string, id int64) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("%s:%d", module, id)))
}

// Record appends an approval entry.
func (t *ApprovalTrail) Record(ctx context.Context, entry ApprovalEntry) error {
	if t == nil {
		return errors.New("approval trail not initialised")
	}
	if entry.Module == "" {
		return errors.New("approval module required")
	}
	if entry.ActorID == 0 {
		return errors.New("approval actor required")
	}
	if entry.RefID == uuid.Nil {
		return errors.New("approval ref id required")
	}
	if entry.Decision == "" {
		return errors.New("approval decision required")
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	_, err := t.pool.Exec(ctx, `INSERT INTO approvals (module, ref_id, actor_id, role, decision, comment, at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.Module, entry.RefID, entry.ActorID, string(entry.Role), string(entry.Decision), entry.Comment, entry.At)
	if err != nil {
		t.logger.Error("record approval", slog.Any("error", err))
		return err
	}
	return nil
}

// List returns entries for module/ref ordered by timestamp for display.
func (t *ApprovalTrail) List(ctx context.Context, module string, ref uuid.UUID) ([]ApprovalEntry, error) {
	if t == nil {
		return nil, errors.New("approval trail not initialised")
	}
	rows, err := t.pool.Query(ctx, `SELECT id, module, ref_id, actor_id, role, decision, comment, at
FROM approvals WHERE module=$1 AND ref_id=$2 ORDER BY at ASC`, module, ref)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []ApprovalEntry
	for rows.Next() {
		var e ApprovalEntry
		var role, decision string
		if err := rows.Scan(&e.ID, &e.Module, &e.RefID, &e.ActorID, &role, &decision, &e.Comment, &e.At); err != nil {
			return nil, err
		}
		e.Role = Role(role)
		e.Decision = Decision(decision)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
