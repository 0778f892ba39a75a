package audits

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/stockflow-erp/stockflow/internal/shared"
)

// ModuleName keys the action log entries for audits.
const ModuleName = "AUDIT"

// CacheScope is the read-model scope covering audit lists and details.
const CacheScope = "audits"

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Audit, error)
	List(ctx context.Context, filter ListFilter) ([]Audit, int64, error)
	ListOpenForClose(ctx context.Context) ([]int64, error)
}

// ReconciliationAdjustment is one pending stock correction handed to the
// adjustments queue: positive Delta for overage, negative for shortage.
type ReconciliationAdjustment struct {
	AuditID     int64
	AuditNumber string
	ProductID   int64
	Delta       int64
	RequestedBy int64
}

// ReconciliationPort hands discrepancies to the adjustments module and
// reports how many are still awaiting a decision.
type ReconciliationPort interface {
	CreatePending(ctx context.Context, tx pgx.Tx, adj ReconciliationAdjustment) error
	OpenCount(ctx context.Context, auditID int64) (int64, error)
}

// ActionPort records mutations in the action log.
type ActionPort interface {
	Record(ctx context.Context, log shared.ActionLog) error
}

// NumberPort allocates document numbers inside the transaction.
type NumberPort interface {
	Next(ctx context.Context, tx pgx.Tx, prefix string) (string, error)
}

// CachePort is the versioned read-model cache serving audit lists and
// dropping them after every successful transition.
type CachePort interface {
	BuildKey(ctx context.Context, scope string, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
	Invalidate(ctx context.Context, scopes ...string) error
}

// Service owns the inventory audit lifecycle.
type Service struct {
	repo           RepositoryPort
	reconciliation ReconciliationPort
	numbers        NumberPort
	actions        ActionPort
	sink           EventSink
	cache          CachePort
}

// NewService constructs the audit service.
func NewService(repo RepositoryPort, reconciliation ReconciliationPort, actions ActionPort, sink EventSink, cache CachePort) *Service {
	return &Service{repo: repo, reconciliation: reconciliation, numbers: shared.TxNumberAllocator{}, actions: actions, sink: sink, cache: cache}
}

// Create opens a new audit, snapshotting the current system quantity of
// every active product.
func (s *Service) Create(ctx context.Context, principal shared.Principal) (Audit, error) {
	if !principal.HasRole(shared.RoleStorekeeper, shared.RoleAdmin) {
		return Audit{}, fmt.Errorf("create audit: %w", shared.ErrForbidden)
	}

	var created Audit
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		products, err := tx.ActiveProducts(ctx)
		if err != nil {
			return err
		}
		if len(products) == 0 {
			return shared.Validationf("products", "no active products to audit")
		}

		number, err := s.numbers.Next(ctx, tx.Tx(), shared.NumberPrefixAudit)
		if err != nil {
			return err
		}
		audit := Audit{
			Number:      number,
			Status:      StatusInProgress,
			CreatorID:   principal.UserID,
			CreatorName: principal.Name,
		}
		id, err := tx.InsertAudit(ctx, audit)
		if err != nil {
			return err
		}
		for _, p := range products {
			if err := tx.InsertItem(ctx, AuditItem{AuditID: id, ProductID: p.ProductID, SystemQty: p.Quantity}); err != nil {
				return err
			}
		}
		created = audit
		created.ID = id
		return nil
	})
	if err != nil {
		return Audit{}, err
	}

	s.recordAction(ctx, principal, "AUDIT_CREATE", created.ID, map[string]any{"number": created.Number})
	s.invalidate(ctx)
	return created, nil
}

// CountInput is one counted line.
type CountInput struct {
	ProductID  int64
	CountedQty int64
}

// RecordCounts upserts counted quantities while the audit is in progress.
// Partial progress is fine; the call may be repeated.
func (s *Service) RecordCounts(ctx context.Context, principal shared.Principal, id int64, counts []CountInput) error {
	if !principal.HasRole(shared.RoleStorekeeper, shared.RoleAdmin) {
		return fmt.Errorf("record counts: %w", shared.ErrForbidden)
	}
	if len(counts) == 0 {
		return shared.Validationf("items", "at least one count is required")
	}
	for _, c := range counts {
		if c.CountedQty < 0 {
			return shared.ItemValidationf("product "+strconv.FormatInt(c.ProductID, 10), "countedQuantity", "counted quantity cannot be negative")
		}
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		audit, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if audit.Status != StatusInProgress {
			return shared.StateConflictf("audit %s is no longer accepting counts in state %s", audit.Number, audit.Status)
		}
		for _, c := range counts {
			ok, err := tx.RecordCount(ctx, id, c.ProductID, c.CountedQty)
			if err != nil {
				return err
			}
			if !ok {
				return shared.ItemValidationf("product "+strconv.FormatInt(c.ProductID, 10), "productId", "product is not part of this audit")
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.recordAction(ctx, principal, "AUDIT_COUNT", id, map[string]any{"items": len(counts)})
	s.invalidate(ctx)
	return nil
}

// Complete closes the counting phase. Every item must have a counted
// quantity; the error names each missing product.
func (s *Service) Complete(ctx context.Context, principal shared.Principal, id int64) error {
	var audit Audit
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		audit, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next, err := Transition(audit.Status, ActionComplete, principal.Role)
		if err != nil {
			return err
		}

		var missing []string
		for _, item := range audit.Items {
			if item.CountedQty == nil {
				missing = append(missing, item.ProductName)
			}
		}
		if len(missing) > 0 {
			return shared.ItemValidationf(strings.Join(missing, ", "), "countedQuantity", "every product must be counted before completion")
		}

		if err := tx.SetCompleted(ctx, id, time.Now().UTC()); err != nil {
			return err
		}
		return tx.UpdateStatus(ctx, id, next)
	})
	if err != nil {
		return err
	}

	s.recordAction(ctx, principal, "AUDIT_COMPLETE", id, map[string]any{"number": audit.Number})
	s.invalidate(ctx)
	return nil
}

// RequestReconciliation hands non-zero discrepancies to the adjustments
// queue. An audit without discrepancies closes directly.
func (s *Service) RequestReconciliation(ctx context.Context, principal shared.Principal, id int64) (Status, error) {
	var final Status
	var number string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		audit, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		number = audit.Number
		next, err := Transition(audit.Status, ActionRequestReconciliation, principal.Role)
		if err != nil {
			return err
		}

		var discrepancies []ReconciliationAdjustment
		for _, item := range audit.Items {
			delta, ok := item.Discrepancy()
			if !ok || delta == 0 {
				continue
			}
			discrepancies = append(discrepancies, ReconciliationAdjustment{
				AuditID:     id,
				AuditNumber: audit.Number,
				ProductID:   item.ProductID,
				Delta:       delta,
				RequestedBy: principal.UserID,
			})
		}

		if len(discrepancies) == 0 {
			next, err = Transition(audit.Status, ActionClose, principal.Role)
			if err != nil {
				return err
			}
			final = next
			return tx.UpdateStatus(ctx, id, next)
		}

		for _, adj := range discrepancies {
			if err := s.reconciliation.CreatePending(ctx, tx.Tx(), adj); err != nil {
				return err
			}
		}
		final = next
		return tx.UpdateStatus(ctx, id, next)
	})
	if err != nil {
		return "", err
	}

	s.recordAction(ctx, principal, "AUDIT_REQUEST_RECONCILIATION", id, map[string]any{"result": string(final)})
	s.invalidate(ctx)
	if final == StatusReconciliationPending && s.sink != nil {
		s.sink.AuditEvent(ctx, Event{
			Kind:          EventReconciliationRequested,
			AuditID:       id,
			Number:        number,
			Message:       fmt.Sprintf("De nouvelles demandes d'ajustement de stock suite à l'audit %s sont en attente de votre approbation.", number),
			RecipientRole: shared.RoleApprover,
		})
	}
	return final, nil
}

// CheckAndClose closes the audit once every linked adjustment has been
// decided. Called after each adjustment decision and by the periodic scan.
func (s *Service) CheckAndClose(ctx context.Context, id int64) (bool, error) {
	open, err := s.reconciliation.OpenCount(ctx, id)
	if err != nil {
		return false, err
	}
	if open > 0 {
		return false, nil
	}

	closed := false
	var number string
	var creatorID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		audit, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if audit.Status != StatusReconciliationPending {
			return nil
		}
		next, err := Transition(audit.Status, ActionClose, RoleSystem)
		if err != nil {
			return err
		}
		closed = true
		number = audit.Number
		creatorID = audit.CreatorID
		return tx.UpdateStatus(ctx, id, next)
	})
	if err != nil {
		return false, err
	}
	if closed {
		s.invalidate(ctx)
		if s.sink != nil {
			s.sink.AuditEvent(ctx, Event{
				Kind:        EventClosed,
				AuditID:     id,
				Number:      number,
				Message:     fmt.Sprintf("Le processus de réconciliation pour l'audit %s est terminé et l'audit est maintenant clôturé.", number),
				RecipientID: creatorID,
			})
		}
	}
	return closed, nil
}

// CloseScan sweeps audits stuck in reconciliation and closes the resolved
// ones. Run periodically by the worker.
func (s *Service) CloseScan(ctx context.Context) (int, error) {
	ids, err := s.repo.ListOpenForClose(ctx)
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, id := range ids {
		ok, err := s.CheckAndClose(ctx, id)
		if err != nil {
			return closed, err
		}
		if ok {
			closed++
		}
	}
	return closed, nil
}

// Get returns one audit with items and per-item discrepancies.
func (s *Service) Get(ctx context.Context, principal shared.Principal, id int64) (Audit, error) {
	if !principal.Role.Valid() {
		return Audit{}, fmt.Errorf("get audit: %w", shared.ErrForbidden)
	}
	return s.repo.Get(ctx, id)
}

// List returns audits visible to the caller.
func (s *Service) List(ctx context.Context, principal shared.Principal, filter ListFilter) ([]Audit, int64, error) {
	if !principal.HasRole(shared.RoleStorekeeper, shared.RoleAdmin, shared.RoleApprover, shared.RoleObserver) {
		return nil, 0, fmt.Errorf("list audits: %w", shared.ErrForbidden)
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
	Items []Audit
	Total int64
}

// listCacheKey fingerprints the filter so each view caches under its own
// key.
func listCacheKey(filter ListFilter) string {
	parts := make([]string, 0, len(filter.Statuses)+2)
	for _, st := range filter.Statuses {
		parts = append(parts, string(st))
	}
	parts = append(parts, strconv.Itoa(filter.Pagination.Page), strconv.Itoa(filter.Pagination.PerPage))
	return strings.Join(parts, ":")
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

func (s *Service) invalidate(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, CacheScope)
	}
}
