package purchasing

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/stockflow-erp/stockflow/internal/inventory"
	"github.com/stockflow-erp/stockflow/internal/shared"
)

// ModuleName keys the approval trail and action log entries for orders.
const ModuleName = "PURCHASE_ORDER"

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (PurchaseOrder, error)
	List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int64, error)
}

// InventoryPort posts receipt movements inside the order transaction.
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

// NumberPort allocates document numbers inside the transaction.
type NumberPort interface {
	Next(ctx context.Context, tx pgx.Tx, prefix string) (string, error)
}

// IdempotencyPort guards the close posting against double application.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service owns the purchase order lifecycle.
type Service struct {
	repo        RepositoryPort
	inv         InventoryPort
	numbers     NumberPort
	trail       ApprovalPort
	actions     ActionPort
	idempotency IdempotencyPort
	sink        EventSink
	cache       CachePort
}

// NewService constructs the purchase order service.
func NewService(repo RepositoryPort, inv InventoryPort, trail ApprovalPort, actions ActionPort, idem IdempotencyPort, sink EventSink, cache CachePort) *Service {
	return &Service{repo: repo, inv: inv, numbers: shared.TxNumberAllocator{}, trail: trail, actions: actions, idempotency: idem, sink: sink, cache: cache}
}

// ItemInput is one order line from the caller.
type ItemInput struct {
	ProductID int64
	Quantity  int64
	UnitPrice decimal.Decimal
}

// CreateInput is the creation payload.
type CreateInput struct {
	SupplierName string
	Items        []ItemInput
}

func validateItems(items []ItemInput) ([]PurchaseOrderItem, error) {
	if len(items) == 0 {
		return nil, shared.Validationf("items", "at least one item is required")
	}
	out := make([]PurchaseOrderItem, 0, len(items))
	for _, item := range items {
		name := "product " + strconv.FormatInt(item.ProductID, 10)
		if item.ProductID <= 0 {
			return nil, shared.ItemValidationf(name, "productId", "product reference is required")
		}
		if item.Quantity <= 0 {
			return nil, shared.ItemValidationf(name, "quantity", "quantity must be positive")
		}
		if item.UnitPrice.IsNegative() {
			return nil, shared.ItemValidationf(name, "unitPrice", "unit price cannot be negative")
		}
		out = append(out, PurchaseOrderItem{
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			TotalPrice: item.UnitPrice.Mul(decimal.NewFromInt(item.Quantity)),
		})
	}
	return out, nil
}

// Create opens a new order in DRAFT.
func (s *Service) Create(ctx context.Context, principal shared.Principal, input CreateInput) (PurchaseOrder, error) {
	if !principal.HasRole(shared.RoleStorekeeper, shared.RoleAdmin) {
		return PurchaseOrder{}, fmt.Errorf("create purchase order: %w", shared.ErrForbidden)
	}
	items, err := validateItems(input.Items)
	if err != nil {
		return PurchaseOrder{}, err
	}

	var created PurchaseOrder
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := s.numbers.Next(ctx, tx.Tx(), shared.NumberPrefixPurchaseOrder)
		if err != nil {
			return err
		}
		po := PurchaseOrder{
			Number:       number,
			Status:       StatusDraft,
			SupplierName: input.SupplierName,
			CreatorID:    principal.UserID,
			CreatorName:  principal.Name,
			TotalAmount:  ComputeTotal(items),
		}
		id, err := tx.InsertOrder(ctx, po)
		if err != nil {
			return err
		}
		for _, item := range items {
			item.OrderID = id
			if err := tx.InsertItem(ctx, item); err != nil {
				return err
			}
		}
		created = po
		created.ID = id
		created.Items = items
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}

	s.recordAction(ctx, principal, "PO_CREATE", created.ID, map[string]any{"number": created.Number})
	s.invalidate(ctx)
	return created, nil
}

// Edit replaces the item list and supplier while the order is still the
// creator's to change. A late edit is a state conflict requiring a refetch.
func (s *Service) Edit(ctx context.Context, principal shared.Principal, id int64, input CreateInput) error {
	items, err := validateItems(input.Items)
	if err != nil {
		return err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := requireCreator(principal, po); err != nil {
			return err
		}
		if !po.Status.Editable() {
			return shared.StateConflictf("order %s is no longer editable in state %s", po.Number, po.Status)
		}
		if err := tx.DeleteItems(ctx, id); err != nil {
			return err
		}
		for _, item := range items {
			item.OrderID = id
			if err := tx.InsertItem(ctx, item); err != nil {
				return err
			}
		}
		return tx.UpdateHeader(ctx, id, input.SupplierName, ComputeTotal(items))
	})
	if err != nil {
		return err
	}

	s.recordAction(ctx, principal, "PO_EDIT", id, nil)
	s.invalidate(ctx)
	return nil
}

// Delete removes a draft or revisable order entirely.
func (s *Service) Delete(ctx context.Context, principal shared.Principal, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := requireCreator(principal, po); err != nil {
			return err
		}
		if !po.Status.Editable() {
			return shared.StateConflictf("order %s can no longer be deleted in state %s", po.Number, po.Status)
		}
		return tx.DeleteOrder(ctx, id)
	})
	if err != nil {
		return err
	}

	s.recordAction(ctx, principal, "PO_DELETE", id, nil)
	s.invalidate(ctx)
	return nil
}

// Submit sends the order to the approver queue.
func (s *Service) Submit(ctx context.Context, principal shared.Principal, id int64) error {
	var po PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next, err := Transition(po.Status, ActionSubmit, principal.Role)
		if err != nil {
			return err
		}
		if err := requireCreator(principal, po); err != nil {
			return err
		}
		return tx.UpdateStatus(ctx, id, next)
	})
	if err != nil {
		return err
	}

	s.recordAction(ctx, principal, "PO_SUBMIT", id, nil)
	s.emit(ctx, Event{
		Kind:          EventSubmitted,
		OrderID:       id,
		Number:        po.Number,
		Message:       fmt.Sprintf("Bon de commande %s en attente d'approbation", po.Number),
		RecipientRole: shared.RoleApprover,
	})
	return nil
}

// Approve accepts the order as submitted.
func (s *Service) Approve(ctx context.Context, principal shared.Principal, id int64) error {
	var po PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next, err := Transition(po.Status, ActionApprove, principal.Role)
		if err != nil {
			return err
		}
		if err := tx.SetApproval(ctx, id, principal.UserID, time.Now().UTC()); err != nil {
			return err
		}
		return tx.UpdateStatus(ctx, id, next)
	})
	if err != nil {
		return err
	}

	s.recordApproval(ctx, principal, id, shared.DecisionApproved, "")
	s.recordAction(ctx, principal, "PO_APPROVE", id, nil)
	s.emit(ctx, Event{
		Kind:        EventDecisionMade,
		OrderID:     id,
		Number:      po.Number,
		Message:     fmt.Sprintf("Bon de commande %s approuvé", po.Number),
		RecipientID: po.CreatorID,
	})
	return nil
}

// RequestRevision returns the order to its creator with a comment.
func (s *Service) RequestRevision(ctx context.Context, principal shared.Principal, id int64, comment string) error {
	if comment == "" {
		return shared.Validationf("comment", "a revision comment is required")
	}

	var po PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next, err := Transition(po.Status, ActionRequestRevision, principal.Role)
		if err != nil {
			return err
		}
		if err := tx.SetRevisionComment(ctx, id, comment); err != nil {
			return err
		}
		return tx.UpdateStatus(ctx, id, next)
	})
	if err != nil {
		return err
	}

	s.recordApproval(ctx, principal, id, shared.DecisionProposition, comment)
	s.recordAction(ctx, principal, "PO_REQUEST_REVISION", id, nil)
	s.emit(ctx, Event{
		Kind:        EventRevisionRequested,
		OrderID:     id,
		Number:      po.Number,
		Message:     fmt.Sprintf("Bon de commande %s à revoir: %s", po.Number, comment),
		RecipientID: po.CreatorID,
	})
	return nil
}

// MarkOrdered records that the order went out to the supplier.
func (s *Service) MarkOrdered(ctx context.Context, principal shared.Principal, id int64) error {
	var po PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next, err := Transition(po.Status, ActionMarkOrdered, principal.Role)
		if err != nil {
			return err
		}
		if err := tx.SetOrdered(ctx, id, time.Now().UTC()); err != nil {
			return err
		}
		return tx.UpdateStatus(ctx, id, next)
	})
	if err != nil {
		return err
	}

	s.recordAction(ctx, principal, "PO_MARK_ORDERED", id, nil)
	s.emit(ctx, Event{
		Kind:        EventOrdered,
		OrderID:     id,
		Number:      po.Number,
		Message:     fmt.Sprintf("Bon de commande %s transmis au fournisseur", po.Number),
		RecipientID: po.CreatorID,
	})
	return nil
}

// Close confirms the supplier delivery. Stock is incremented and ENTREE
// movements are written in the same transaction; an idempotency key keeps a
// retried close from posting the receipt twice.
func (s *Service) Close(ctx context.Context, principal shared.Principal, id int64) error {
	idemKey := fmt.Sprintf("po-close-%d", id)
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, ModuleName); err != nil {
			return shared.StateConflictf("order %d close already in progress", id)
		}
	}

	var po PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next, err := Transition(po.Status, ActionClose, principal.Role)
		if err != nil {
			return err
		}

		for _, item := range po.Items {
			err := s.inv.Apply(ctx, tx.Tx(), inventory.Movement{
				ProductID: item.ProductID,
				Type:      inventory.MovementIn,
				Source:    inventory.SourceReceipt,
				SourceRef: po.Number,
				Quantity:  item.Quantity,
				ActorID:   principal.UserID,
			})
			if err != nil {
				return err
			}
		}

		if err := tx.SetClosed(ctx, id, time.Now().UTC()); err != nil {
			return err
		}
		return tx.UpdateStatus(ctx, id, next)
	})
	if err != nil {
		if s.idempotency != nil {
			_ = s.idempotency.Delete(ctx, idemKey)
		}
		return err
	}

	s.recordAction(ctx, principal, "PO_CLOSE", id, map[string]any{"number": po.Number})
	s.emit(ctx, Event{
		Kind:        EventClosed,
		OrderID:     id,
		Number:      po.Number,
		Message:     fmt.Sprintf("Bon de commande %s clôturé, stock réceptionné", po.Number),
		RecipientID: po.CreatorID,
	})
	return nil
}

// Cancel terminates the order from any non-terminal state.
func (s *Service) Cancel(ctx context.Context, principal shared.Principal, id int64) error {
	var po PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next, err := Transition(po.Status, ActionCancel, principal.Role)
		if err != nil {
			return err
		}
		return tx.UpdateStatus(ctx, id, next)
	})
	if err != nil {
		return err
	}

	s.recordAction(ctx, principal, "PO_CANCEL", id, nil)
	s.emit(ctx, Event{
		Kind:        EventCancelled,
		OrderID:     id,
		Number:      po.Number,
		Message:     fmt.Sprintf("Bon de commande %s annulé", po.Number),
		RecipientID: po.CreatorID,
	})
	return nil
}

// Get returns one order, enforcing per-role visibility.
func (s *Service) Get(ctx context.Context, principal shared.Principal, id int64) (PurchaseOrder, error) {
	if !principal.Role.Valid() {
		return PurchaseOrder{}, fmt.Errorf("get purchase order: %w", shared.ErrForbidden)
	}
	return s.repo.Get(ctx, id)
}

// List returns the orders visible to the caller. The approver defaults to
// the pending queue; other roles see everything they are entitled to.
func (s *Service) List(ctx context.Context, principal shared.Principal, filter ListFilter) ([]PurchaseOrder, int64, error) {
	switch principal.Role {
	case shared.RoleApprover:
		if len(filter.Statuses) == 0 {
			filter.Statuses = []Status{StatusPendingApproval}
		}
	case shared.RoleStorekeeper, shared.RoleAdmin, shared.RoleObserver:
		// unrestricted
	default:
		return nil, 0, fmt.Errorf("list purchase orders: %w", shared.ErrForbidden)
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
	Items []PurchaseOrder
	Total int64
}

// listCacheKey fingerprints the effective filter so each role's view caches
// under its own key.
func listCacheKey(filter ListFilter) string {
	parts := make([]string, 0, len(filter.Statuses)+4)
	for _, st := range filter.Statuses {
		parts = append(parts, string(st))
	}
	creator := "all"
	if filter.CreatorID != nil {
		creator = strconv.FormatInt(*filter.CreatorID, 10)
	}
	parts = append(parts, creator, filter.Search,
		strconv.Itoa(filter.Pagination.Page), strconv.Itoa(filter.Pagination.PerPage))
	return strings.Join(parts, ":")
}

// History returns the append-only approval trail.
func (s *Service) History(ctx context.Context, principal shared.Principal, id int64) ([]shared.ApprovalEntry, error) {
	if _, err := s.Get(ctx, principal, id); err != nil {
		return nil, err
	}
	if s.trail == nil {
		return nil, nil
	}
	return s.trail.List(ctx, ModuleName, shared.ApprovalRef(ModuleName, id))
}

func requireCreator(principal shared.Principal, po PurchaseOrder) error {
	if principal.Role == shared.RoleAdmin {
		return nil
	}
	if po.CreatorID != principal.UserID {
		return fmt.Errorf("order %s belongs to another creator: %w", po.Number, shared.ErrForbidden)
	}
	return nil
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

func (s *Service) invalidate(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, CacheScope)
	}
}

func (s *Service) emit(ctx context.Context, evt Event) {
	s.invalidate(ctx)
	if s.sink != nil {
		s.sink.OrderEvent(ctx, evt)
	}
}
