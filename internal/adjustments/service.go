package adjustments

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stockflow-erp/stockflow/internal/audits"
	"github.com/stockflow-erp/stockflow/internal/inventory"
	"github.com/stockflow-erp/stockflow/internal/shared"
)

// ModuleName keys the approval trail and action log entries for adjustments.
const ModuleName = "ADJUSTMENT"

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Adjustment, error)
	List(ctx context.Context, filter ListFilter) ([]Adjustment, int64, error)
	OpenCount(ctx context.Context, auditID int64) (int64, error)
}

// InventoryPort posts stock movements inside the adjustment transaction.
type InventoryPort interface {
	Apply(ctx context.Context, tx pgx.Tx, m inventory.Movement) error
}

// ApprovalPort appends and reads the append-only decision trail.
type ApprovalPort interface {
	Record(ctx context.Context, entry shared.ApprovalEntry) error
	List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalEntry, error)
}

// ActionPort records mutations in the action log.
type ActionPort interface {
	Record(ctx context.Context, log shared.ActionLog) error
}

// AuditCloser closes an audit once its reconciliation queue is empty.
// Implemented by the audits service; bound after construction because the
// two services reference each other.
type AuditCloser interface {
	CheckAndClose(ctx context.Context, auditID int64) (bool, error)
}

// Service owns stock adjustments: admin direct corrections, storekeeper
// proposals and the reconciliation queue fed by inventory audits.
type Service struct {
	repo    RepositoryPort
	inv     InventoryPort
	trail   ApprovalPort
	actions ActionPort
	sink    EventSink
	cache   CachePort
	audits  AuditCloser
}

// NewService constructs the adjustment service.
func NewService(repo RepositoryPort, inv InventoryPort, trail ApprovalPort, actions ActionPort, sink EventSink, cache CachePort) *Service {
	return &Service{repo: repo, inv: inv, trail: trail, actions: actions, sink: sink, cache: cache}
}

// BindAuditCloser wires the audits service in after both services exist.
func (s *Service) BindAuditCloser(closer AuditCloser) {
	s.audits = closer
}

// DirectInput sets a product's on-hand quantity to an absolute value.
type DirectInput struct {
	ProductID   int64
	NewQuantity int64
	Reason      string
}

// Direct applies an admin stock correction immediately. The stored
// adjustment is created already approved, with the admin as both requester
// and decider, and the delta is posted to the movement ledger.
func (s *Service) Direct(ctx context.Context, principal shared.Principal, input DirectInput) (Adjustment, error) {
	if principal.Role != shared.RoleAdmin {
		return Adjustment{}, fmt.Errorf("direct adjustment: %w", shared.ErrForbidden)
	}
	if input.NewQuantity < 0 {
		return Adjustment{}, shared.Validationf("newQuantity", "quantity cannot be negative")
	}
	if input.Reason == "" {
		return Adjustment{}, shared.Validationf("reason", "a reason is required")
	}

	var created Adjustment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.ProductQuantity(ctx, input.ProductID)
		if err != nil {
			return err
		}
		delta := input.NewQuantity - current
		if delta == 0 {
			return shared.StateConflictf("product %d is already at quantity %d", input.ProductID, current)
		}
		mvType := inventory.MovementIn
		qty := delta
		if delta < 0 {
			mvType = inventory.MovementOut
			qty = -delta
		}

		now := time.Now().UTC()
		created = Adjustment{
			ProductID:   input.ProductID,
			Type:        mvType,
			Quantity:    qty,
			Reason:      input.Reason,
			Status:      StatusApproved,
			RequestedBy: principal.UserID,
			DecidedBy:   &principal.UserID,
			DecidedAt:   &now,
			CreatedAt:   now,
		}
		created.ID, err = tx.Insert(ctx, created)
		if err != nil {
			return err
		}
		return s.inv.Apply(ctx, tx.Tx(), inventory.Movement{
			ProductID: input.ProductID,
			Type:      mvType,
			Source:    inventory.SourceAdjustment,
			SourceRef: fmt.Sprintf("ADJ-%d", created.ID),
			Quantity:  qty,
			ActorID:   principal.UserID,
			Note:      input.Reason,
		})
	})
	if err != nil {
		return Adjustment{}, err
	}

	s.recordAction(ctx, principal, "adjustment.direct", created.ID, map[string]any{
		"productId":   input.ProductID,
		"newQuantity": input.NewQuantity,
	})
	s.emit(ctx, Event{
		Kind:          EventStockAdjusted,
		AdjustmentID:  created.ID,
		ProductID:     input.ProductID,
		Message:       fmt.Sprintf("Le stock du produit %d a été ajusté à %d.", input.ProductID, input.NewQuantity),
		RecipientRole: shared.RoleStorekeeper,
	})
	return created, nil
}

// ProposalInput is a storekeeper-initiated adjustment awaiting approval.
type ProposalInput struct {
	ProductID int64
	Type      inventory.MovementType
	Quantity  int64
	Reason    string
}

// Propose creates a pending adjustment for the approver queue.
func (s *Service) Propose(ctx context.Context, principal shared.Principal, input ProposalInput) (Adjustment, error) {
	if !principal.HasRole(shared.RoleStorekeeper) {
		return Adjustment{}, fmt.Errorf("propose adjustment: %w", shared.ErrForbidden)
	}
	if input.Type != inventory.MovementIn && input.Type != inventory.MovementOut {
		return Adjustment{}, shared.Validationf("type", "type must be ENTREE or SORTIE")
	}
	if input.Quantity <= 0 {
		return Adjustment{}, shared.Validationf("quantity", "quantity must be positive")
	}
	if input.Reason == "" {
		return Adjustment{}, shared.Validationf("reason", "a reason is required")
	}

	var created Adjustment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.ProductQuantity(ctx, input.ProductID); err != nil {
			return err
		}
		created = Adjustment{
			ProductID:   input.ProductID,
			Type:        input.Type,
			Quantity:    input.Quantity,
			Reason:      input.Reason,
			Status:      StatusPending,
			RequestedBy: principal.UserID,
			CreatedAt:   time.Now().UTC(),
		}
		var err error
		created.ID, err = tx.Insert(ctx, created)
		return err
	})
	if err != nil {
		return Adjustment{}, err
	}

	s.recordAction(ctx, principal, "adjustment.propose", created.ID, map[string]any{"productId": input.ProductID})
	s.emit(ctx, Event{
		Kind:          EventPendingApproval,
		AdjustmentID:  created.ID,
		ProductID:     input.ProductID,
		Message:       fmt.Sprintf("Nouvelle demande d'ajustement de stock (produit %d) en attente d'approbation.", input.ProductID),
		RecipientRole: shared.RoleApprover,
	})
	return created, nil
}

// Approve applies a pending adjustment: the movement is posted to the
// ledger and the product quantity changes.
func (s *Service) Approve(ctx context.Context, principal shared.Principal, id int64, comment string) (Adjustment, error) {
	return s.decide(ctx, principal, id, StatusApproved, shared.DecisionApproved, comment)
}

// Reject declines a pending adjustment without touching stock.
func (s *Service) Reject(ctx context.Context, principal shared.Principal, id int64, comment string) (Adjustment, error) {
	return s.decide(ctx, principal, id, StatusRejected, shared.DecisionRejected, comment)
}

func (s *Service) decide(ctx context.Context, principal shared.Principal, id int64, status Status, decision shared.Decision, comment string) (Adjustment, error) {
	if !principal.HasRole(shared.RoleApprover, shared.RoleAdmin) {
		return Adjustment{}, fmt.Errorf("decide adjustment: %w", shared.ErrForbidden)
	}

	var decided Adjustment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		adj, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if adj.Status != StatusPending {
			return shared.StateConflictf("adjustment %d is already %s", id, adj.Status)
		}

		if status == StatusApproved {
			err = s.inv.Apply(ctx, tx.Tx(), inventory.Movement{
				ProductID: adj.ProductID,
				Type:      adj.Type,
				Source:    inventory.SourceAdjustment,
				SourceRef: fmt.Sprintf("ADJ-%d", adj.ID),
				Quantity:  adj.Quantity,
				ActorID:   principal.UserID,
				Note:      adj.Reason,
			})
			if err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		if err := tx.Decide(ctx, id, status, principal.UserID, now); err != nil {
			return err
		}
		adj.Status = status
		adj.DecidedBy = &principal.UserID
		adj.DecidedAt = &now
		decided = adj
		return nil
	})
	if err != nil {
		return Adjustment{}, err
	}

	s.recordApproval(ctx, principal, id, decision, comment)
	s.recordAction(ctx, principal, "adjustment.decide", id, map[string]any{"status": string(status)})
	s.emit(ctx, Event{
		Kind:         EventDecided,
		AdjustmentID: id,
		ProductID:    decided.ProductID,
		Message:      fmt.Sprintf("Votre demande d'ajustement pour le produit %s a été %s.", decided.ProductName, decisionLabel(status)),
		RecipientID:  decided.RequestedBy,
	})

	// The periodic close scan backstops a failed check here.
	if s.audits != nil && decided.AuditID != nil {
		_, _ = s.audits.CheckAndClose(ctx, *decided.AuditID)
	}
	return decided, nil
}

func decisionLabel(status Status) string {
	if status == StatusApproved {
		return "approuvée"
	}
	return "rejetée"
}

// Get returns one adjustment. Storekeepers only see their own.
func (s *Service) Get(ctx context.Context, principal shared.Principal, id int64) (Adjustment, error) {
	if !principal.Role.Valid() {
		return Adjustment{}, fmt.Errorf("get adjustment: %w", shared.ErrForbidden)
	}
	adj, err := s.repo.Get(ctx, id)
	if err != nil {
		return Adjustment{}, err
	}
	if principal.Role == shared.RoleStorekeeper && adj.RequestedBy != principal.UserID {
		return Adjustment{}, fmt.Errorf("get adjustment: %w", shared.ErrForbidden)
	}
	return adj, nil
}

// List returns adjustments visible to the caller. Approvers default to
// their pending queue; storekeepers are scoped to their own proposals.
func (s *Service) List(ctx context.Context, principal shared.Principal, filter ListFilter) ([]Adjustment, int64, error) {
	switch principal.Role {
	case shared.RoleAdmin, shared.RoleObserver:
	case shared.RoleApprover:
		if len(filter.Statuses) == 0 {
			filter.Statuses = []Status{StatusPending}
		}
	case shared.RoleStorekeeper:
		filter.RequestedBy = principal.UserID
	default:
		return nil, 0, fmt.Errorf("list adjustments: %w", shared.ErrForbidden)
	}
	if s.cache == nil {
		return s.repo.List(ctx, filter)
	}
	key, err := s.cache.BuildKey(ctx, CacheScope, "list", listCacheKey(filter))
	if err != nil {
		return nil, 0, err
	}
	var page listPage
	loader := func(ctx context.Context) (any, error) {
		items, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		return listPage{Items: items, Total: total}, nil
	}
	if err := s.cache.FetchJSON(ctx, key, &page, loader); err != nil {
		return nil, 0, err
	}
	return page.Items, page.Total, nil
}

// listPage is the cached shape of one list response.
type listPage struct {
	Items []Adjustment
	Total int64
}

// listCacheKey fingerprints the effective filter so each role's view caches
// under its own key.
func listCacheKey(filter ListFilter) string {
	parts := make([]string, 0, len(filter.Statuses)+3)
	for _, st := range filter.Statuses {
		parts = append(parts, string(st))
	}
	audit := "all"
	if filter.AuditID != nil {
		audit = strconv.FormatInt(*filter.AuditID, 10)
	}
	parts = append(parts, audit, strconv.FormatInt(filter.RequestedBy, 10),
		strconv.Itoa(filter.Pagination.Page), strconv.Itoa(filter.Pagination.PerPage))
	return strings.Join(parts, ":")
}

// History returns the decision trail for one adjustment.
func (s *Service) History(ctx context.Context, principal shared.Principal, id int64) ([]shared.ApprovalEntry, error) {
	if _, err := s.Get(ctx, principal, id); err != nil {
		return nil, err
	}
	if s.trail == nil {
		return nil, nil
	}
	return s.trail.List(ctx, ModuleName, shared.ApprovalRef(ModuleName, id))
}

// CreatePending inserts one PENDING reconciliation adjustment inside the
// audit's transaction. Implements the audits reconciliation port.
func (s *Service) CreatePending(ctx context.Context, tx pgx.Tx, adj audits.ReconciliationAdjustment) error {
	_, err := insertAdjustment(ctx, tx, fromReconciliation(adj))
	return err
}

// OpenCount implements the audits reconciliation port.
func (s *Service) OpenCount(ctx context.Context, auditID int64) (int64, error) {
	return s.repo.OpenCount(ctx, auditID)
}

// fromReconciliation maps an audit discrepancy to a pending adjustment:
// overage becomes an inbound movement, shortage an outbound one.
func fromReconciliation(adj audits.ReconciliationAdjustment) Adjustment {
	mvType := inventory.MovementIn
	qty := adj.Delta
	if adj.Delta < 0 {
		mvType = inventory.MovementOut
		qty = -adj.Delta
	}
	auditID := adj.AuditID
	return Adjustment{
		ProductID:   adj.ProductID,
		Type:        mvType,
		Quantity:    qty,
		Reason:      fmt.Sprintf("Réconciliation suite à l'audit d'inventaire %s", adj.AuditNumber),
		Status:      StatusPending,
		AuditID:     &auditID,
		RequestedBy: adj.RequestedBy,
	}
}

func (s *Service) recordApproval(ctx context.Context, principal shared.Principal, id int64, decision shared.Decision, comment string) {
	if s.trail == nil {
		return
	}
	_ = s.trail.Record(ctx, shared.ApprovalEntry{
		Module:   ModuleName,
		RefID:    shared.ApprovalRef(ModuleName, id),
		ActorID:  principal.UserID,
		Role:     principal.Role,
		Decision: decision,
		Comment:  comment,
	})
}

func (s *Service) recordAction(ctx context.Context, principal shared.Principal, action string, id int64, meta map[string]any) {
	if s.actions == nil {
		return
	}
	_ = s.actions.Record(ctx, shared.ActionLog{
		ActorID:  principal.UserID,
		Role:     principal.Role,
		Action:   action,
		Entity:   ModuleName,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}

func (s *Service) emit(ctx context.Context, evt Event) {
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, CacheScope)
	}
	if s.sink != nil {
		s.sink.AdjustmentEvent(ctx, evt)
	}
}
