package requests

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stockflow-erp/stockflow/internal/inventory"
	"github.com/stockflow-erp/stockflow/internal/shared"
)

// ModuleName keys the approval trail and action log entries for requests.
const ModuleName = "REQUEST"

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Request, error)
	List(ctx context.Context, filter ListFilter) ([]Request, int64, error)
}

// InventoryPort posts stock movements inside the request transaction.
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

// Service owns the stock request lifecycle.
type Service struct {
	repo    RepositoryPort
	inv     InventoryPort
	numbers NumberPort
	trail   ApprovalPort
	actions ActionPort
	sink    EventSink
	cache   CachePort
}

// NewService constructs the request lifecycle service.
func NewService(repo RepositoryPort, inv InventoryPort, trail ApprovalPort, actions ActionPort, sink EventSink, cache CachePort) *Service {
	return &Service{repo: repo, inv: inv, numbers: shared.TxNumberAllocator{}, trail: trail, actions: actions, sink: sink, cache: cache}
}

// ItemInput is one requested line at creation time.
type ItemInput struct {
	ProductID int64
	Quantity  int64
}

// CreateInput is the creation payload.
type CreateInput struct {
	Observation string
	Items       []ItemInput
}

// Create opens a new request. Creation folds submit and forward into one
// step: department head requests go straight to the approver queue, so the
// stored status is TRANSMISE.
func (s *Service) Create(ctx context.Context, principal shared.Principal, input CreateInput) (Request, error) {
	if principal.Role != shared.RoleRequester {
		return Request{}, fmt.Errorf("create request: %w", shared.ErrForbidden)
	}
	if len(input.Items) == 0 {
		return Request{}, shared.Validationf("items", "at least one item is required")
	}
	seen := make(map[int64]struct{}, len(input.Items))
	for _, item := range input.Items {
		name := "product " + strconv.FormatInt(item.ProductID, 10)
		if item.ProductID <= 0 {
			return Request{}, shared.ItemValidationf(name, "productId", "product reference is required")
		}
		if item.Quantity <= 0 {
			return Request{}, shared.ItemValidationf(name, "requestedQty", "quantity must be positive")
		}
		if _, dup := seen[item.ProductID]; dup {
			return Request{}, shared.ItemValidationf(name, "productId", "product listed twice")
		}
		seen[item.ProductID] = struct{}{}
	}

	var created Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		productIDs := make([]int64, 0, len(input.Items))
		for _, item := range input.Items {
			productIDs = append(productIDs, item.ProductID)
		}
		available, err := tx.ProductQuantities(ctx, productIDs)
		if err != nil {
			return err
		}
		for _, item := range input.Items {
			stock, ok := available[item.ProductID]
			name := "product " + strconv.FormatInt(item.ProductID, 10)
			if !ok {
				return shared.ItemValidationf(name, "productId", "unknown or inactive product")
			}
			if item.Quantity > stock {
				return shared.ItemValidationf(name, "requestedQty", "requested %d but only %d in stock", item.Quantity, stock)
			}
		}

		number, err := s.numbers.Next(ctx, tx.Tx(), shared.NumberPrefixRequest)
		if err != nil {
			return err
		}
		req := Request{
			Number:        number,
			Status:        StatusForwarded,
			RequesterID:   principal.UserID,
			RequesterName: principal.Name,
			Observation:   input.Observation,
		}
		id, err := tx.InsertRequest(ctx, req)
		if err != nil {
			return err
		}
		for _, item := range input.Items {
			if err := tx.InsertItem(ctx, RequestItem{RequestID: id, ProductID: item.ProductID, RequestedQty: item.Quantity}); err != nil {
				return err
			}
		}
		created = req
		created.ID = id
		return nil
	})
	if err != nil {
		return Request{}, err
	}

	s.recordAction(ctx, principal, "REQUEST_CREATE", created.ID, map[string]any{"number": created.Number})
	s.emit(ctx, Event{
		Kind:          EventApprovalRequested,
		RequestID:     created.ID,
		Number:        created.Number,
		Message:       fmt.Sprintf("Demande %s en attente d'approbation", created.Number),
		RecipientRole: shared.RoleApprover,
	})
	return created, nil
}

// ItemDecision carries one approved quantity.
type ItemDecision struct {
	ItemID      int64
	ApprovedQty int64
}

// ApproveInput is the approval payload. An empty Items slice approves every
// line at its requested quantity.
type ApproveInput struct {
	Items   []ItemDecision
	Comment string
}

// Approve applies an all-or-nothing approval from TRANSMISE. The recorded
// decision is APPROUVE when every quantity matches the request and MODIFIE
// when any line was revised.
func (s *Service) Approve(ctx context.Context, principal shared.Principal, id int64, input ApproveInput) error {
	var (
		req      Request
		decision shared.Decision
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		req, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next, err := Transition(req.Status, ActionApprove, principal.Role)
		if err != nil {
			return err
		}

		decided := make(map[int64]int64, len(req.Items))
		if len(input.Items) == 0 {
			for _, item := range req.Items {
				decided[item.ID] = item.RequestedQty
			}
		} else {
			known := make(map[int64]struct{}, len(req.Items))
			for _, item := range req.Items {
				known[item.ID] = struct{}{}
			}
			for _, d := range input.Items {
				if _, ok := known[d.ItemID]; !ok {
					return shared.ItemValidationf("item "+strconv.FormatInt(d.ItemID, 10), "itemId", "item does not belong to this request")
				}
				decided[d.ItemID] = d.ApprovedQty
			}
		}

		productIDs := make([]int64, 0, len(req.Items))
		for _, item := range req.Items {
			productIDs = append(productIDs, item.ProductID)
		}
		available, err := tx.ProductQuantities(ctx, productIDs)
		if err != nil {
			return err
		}

		decision = shared.DecisionApproved
		for _, item := range req.Items {
			qty, ok := decided[item.ID]
			if !ok {
				return shared.ItemValidationf(item.ProductName, "approvedQty", "every item needs an approved quantity")
			}
			if qty <= 0 {
				return shared.ItemValidationf(item.ProductName, "approvedQty", "approved quantity must be positive")
			}
			if qty > item.RequestedQty {
				return shared.ItemValidationf(item.ProductName, "approvedQty", "approved %d exceeds requested %d", qty, item.RequestedQty)
			}
			if stock := available[item.ProductID]; qty > stock {
				return shared.ItemValidationf(item.ProductName, "approvedQty", "approved %d but only %d in stock", qty, stock)
			}
			if qty != item.RequestedQty {
				decision = shared.DecisionModified
			}
			if err := tx.SetItemApproval(ctx, item.ID, qty); err != nil {
				return err
			}
		}

		if err := tx.SetApproval(ctx, id, principal.UserID, time.Now().UTC()); err != nil {
			return err
		}
		return tx.UpdateStatus(ctx, id, next)
	})
	if err != nil {
		return err
	}

	s.recordApproval(ctx, principal, id, decision, input.Comment)
	s.recordAction(ctx, principal, "REQUEST_APPROVE", id, map[string]any{"decision": string(decision)})
	s.emit(ctx, Event{
		Kind:        EventDecisionMade,
		RequestID:   id,
		Number:      req.Number,
		Message:     fmt.Sprintf("Demande %s approuvée", req.Number),
		RecipientID: req.RequesterID,
	})
	return nil
}

// Reject declines the request from TRANSMISE, terminally.
func (s *Service) Reject(ctx context.Context, principal shared.Principal, id int64, comment string) error {
	var req Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		req, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next, err := Transition(req.Status, ActionReject, principal.Role)
		if err != nil {
			return err
		}
		return tx.UpdateStatus(ctx, id, next)
	})
	if err != nil {
		return err
	}

	s.recordApproval(ctx, principal, id, shared.DecisionRejected, comment)
	s.recordAction(ctx, principal, "REQUEST_REJECT", id, nil)
	s.emit(ctx, Event{
		Kind:        EventDecisionMade,
		RequestID:   id,
		Number:      req.Number,
		Message:     fmt.Sprintf("Demande %s rejetée", req.Number),
		RecipientID: req.RequesterID,
	})
	return nil
}

// Deliver hands the approved goods out of the store. Stock is decremented
// and SORTIE movements are written in the same transaction, so a shortfall
// on any line rolls the whole delivery back.
func (s *Service) Deliver(ctx context.Context, principal shared.Principal, id int64) error {
	var req Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		req, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next, err := Transition(req.Status, ActionDeliver, principal.Role)
		if err != nil {
			return err
		}

		for _, item := range req.Items {
			if item.ApprovedQty == nil || *item.ApprovedQty <= 0 {
				continue
			}
			err := s.inv.Apply(ctx, tx.Tx(), inventory.Movement{
				ProductID: item.ProductID,
				Type:      inventory.MovementOut,
				Source:    inventory.SourceRequest,
				SourceRef: req.Number,
				Quantity:  *item.ApprovedQty,
				ActorID:   principal.UserID,
			})
			if err != nil {
				return err
			}
		}

		if err := tx.SetDelivery(ctx, id, principal.UserID, time.Now().UTC()); err != nil {
			return err
		}
		return tx.UpdateStatus(ctx, id, next)
	})
	if err != nil {
		return err
	}

	s.recordAction(ctx, principal, "REQUEST_DELIVER", id, map[string]any{"number": req.Number})
	s.emit(ctx, Event{
		Kind:        EventDelivered,
		RequestID:   id,
		Number:      req.Number,
		Message:     fmt.Sprintf("Demande %s livrée, confirmation attendue", req.Number),
		RecipientID: req.RequesterID,
	})
	return nil
}

// ConfirmReception closes the request once the requester accepts the
// delivery. Blocked while any item dispute is still open.
func (s *Service) ConfirmReception(ctx context.Context, principal shared.Principal, id int64) error {
	var req Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		req, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next, err := Transition(req.Status, ActionConfirm, principal.Role)
		if err != nil {
			return err
		}
		if err := s.requireOwnership(principal, req); err != nil {
			return err
		}
		if req.HasReportedDispute() {
			return shared.StateConflictf("request %s has an unresolved dispute", req.Number)
		}
		if err := tx.SetReception(ctx, id, time.Now().UTC()); err != nil {
			return err
		}
		return tx.UpdateStatus(ctx, id, next)
	})
	if err != nil {
		return err
	}

	s.recordAction(ctx, principal, "REQUEST_CONFIRM", id, nil)
	s.emit(ctx, Event{
		Kind:          EventReceptionDone,
		RequestID:     id,
		Number:        req.Number,
		Message:       fmt.Sprintf("Réception de la demande %s confirmée", req.Number),
		RecipientRole: shared.RoleStorekeeper,
	})
	return nil
}

// DisputeInput reports one item problem.
type DisputeInput struct {
	ItemID  int64
	Reason  DisputeReason
	Comment string
}

// ReportIssue opens receipt disputes on the listed items and moves the
// request to LITIGE_RECEPTION. Additional disputes may be filed while the
// request is already disputed.
func (s *Service) ReportIssue(ctx context.Context, principal shared.Principal, id int64, disputes []DisputeInput) error {
	if len(disputes) == 0 {
		return shared.Validationf("items", "at least one disputed item is required")
	}

	var req Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		req, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next, err := Transition(req.Status, ActionReportIssue, principal.Role)
		if err != nil {
			return err
		}
		if err := s.requireOwnership(principal, req); err != nil {
			return err
		}

		byID := make(map[int64]RequestItem, len(req.Items))
		for _, item := range req.Items {
			byID[item.ID] = item
		}
		for _, d := range disputes {
			item, ok := byID[d.ItemID]
			if !ok {
				return shared.ItemValidationf("item "+strconv.FormatInt(d.ItemID, 10), "itemId", "item does not belong to this request")
			}
			if !d.Reason.Valid() {
				return shared.ItemValidationf(item.ProductName, "reason", "dispute reason is required")
			}
			if d.Reason == ReasonOther && d.Comment == "" {
				return shared.ItemValidationf(item.ProductName, "comment", "a comment is required for reason AUTRE")
			}
			if item.DisputeStatus == DisputeReported {
				return shared.StateConflictf("item %s is already under dispute", item.ProductName)
			}
			reason := d.Reason
			if err := tx.SetItemDispute(ctx, d.ItemID, DisputeReported, &reason, d.Comment); err != nil {
				return err
			}
		}
		return tx.UpdateStatus(ctx, id, next)
	})
	if err != nil {
		return err
	}

	s.recordAction(ctx, principal, "REQUEST_DISPUTE", id, map[string]any{"items": len(disputes)})
	s.emit(ctx, Event{
		Kind:          EventDisputeReported,
		RequestID:     id,
		Number:        req.Number,
		Message:       fmt.Sprintf("Litige signalé sur la demande %s", req.Number),
		RecipientRole: shared.RoleApprover,
	})
	return nil
}

// ResolveDispute settles every open item dispute in one decision.
// RESOLVE_APPROVE returns the request to the receivable state so the
// requester can confirm; RESOLVE_REJECT rejects the request terminally.
func (s *Service) ResolveDispute(ctx context.Context, principal shared.Principal, id int64, decision ResolveDecision, comment string) error {
	var action Action
	var itemResolution ItemDisputeStatus
	var trailDecision shared.Decision
	switch decision {
	case ResolveApprove:
		action, itemResolution, trailDecision = ActionResolveApprove, DisputeResolvedApproved, shared.DecisionDisputeApproved
	case ResolveReject:
		action, itemResolution, trailDecision = ActionResolveReject, DisputeResolvedRejected, shared.DecisionDisputeRejected
	default:
		return shared.Validationf("decision", "decision must be RESOLVE_APPROVE or RESOLVE_REJECT")
	}

	var req Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		req, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next, err := Transition(req.Status, action, principal.Role)
		if err != nil {
			return err
		}
		if err := tx.ResolveReportedItems(ctx, id, itemResolution); err != nil {
			return err
		}
		return tx.UpdateStatus(ctx, id, next)
	})
	if err != nil {
		return err
	}

	s.recordApproval(ctx, principal, id, trailDecision, comment)
	s.recordAction(ctx, principal, "REQUEST_RESOLVE_DISPUTE", id, map[string]any{"decision": string(decision)})
	s.emit(ctx, Event{
		Kind:        EventDisputeResolved,
		RequestID:   id,
		Number:      req.Number,
		Message:     fmt.Sprintf("Litige sur la demande %s résolu", req.Number),
		RecipientID: req.RequesterID,
	})
	return nil
}

// Cancel withdraws the request before delivery.
func (s *Service) Cancel(ctx context.Context, principal shared.Principal, id int64) error {
	var req Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		req, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next, err := Transition(req.Status, ActionCancel, principal.Role)
		if err != nil {
			return err
		}
		if err := s.requireOwnership(principal, req); err != nil {
			return err
		}
		return tx.UpdateStatus(ctx, id, next)
	})
	if err != nil {
		return err
	}

	s.recordAction(ctx, principal, "REQUEST_CANCEL", id, nil)
	s.emit(ctx, Event{
		Kind:          EventCancelled,
		RequestID:     id,
		Number:        req.Number,
		Message:       fmt.Sprintf("Demande %s annulée", req.Number),
		RecipientRole: shared.RoleApprover,
	})
	return nil
}

// Get returns one request, enforcing per-role visibility.
func (s *Service) Get(ctx context.Context, principal shared.Principal, id int64) (Request, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if principal.Role == shared.RoleRequester && req.RequesterID != principal.UserID {
		return Request{}, fmt.Errorf("request %d: %w", id, shared.ErrForbidden)
	}
	return req, nil
}

// List returns the requests visible to the caller's role. Requesters see
// their own, the approver sees the decision queue, the storekeeper sees the
// fulfilment pipeline, admin and observer see everything.
func (s *Service) List(ctx context.Context, principal shared.Principal, filter ListFilter) ([]Request, int64, error) {
	switch principal.Role {
	case shared.RoleRequester:
		filter.RequesterID = &principal.UserID
	case shared.RoleApprover:
		if len(filter.Statuses) == 0 {
			filter.Statuses = []Status{StatusForwarded, StatusDisputed}
		}
	case shared.RoleStorekeeper:
		if len(filter.Statuses) == 0 {
			filter.Statuses = []Status{StatusApproved, StatusDelivered, StatusDisputed, StatusReceptionConfirmed}
		}
	case shared.RoleAdmin, shared.RoleObserver:
		// unrestricted
	default:
		return nil, 0, fmt.Errorf("list requests: %w", shared.ErrForbidden)
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
	Items []Request
	Total int64
}

// listCacheKey fingerprints the effective filter so each role's view caches
// under its own key.
func listCacheKey(filter ListFilter) string {
	parts := make([]string, 0, len(filter.Statuses)+4)
	for _, st := range filter.Statuses {
		parts = append(parts, string(st))
	}
	requester := "all"
	if filter.RequesterID != nil {
		requester = strconv.FormatInt(*filter.RequesterID, 10)
	}
	parts = append(parts, requester, filter.Search,
		strconv.Itoa(filter.Pagination.Page), strconv.Itoa(filter.Pagination.PerPage))
	return strings.Join(parts, ":")
}

// History returns the append-only approval trail for display.
func (s *Service) History(ctx context.Context, principal shared.Principal, id int64) ([]shared.ApprovalEntry, error) {
	if _, err := s.Get(ctx, principal, id); err != nil {
		return nil, err
	}
	if s.trail == nil {
		return nil, nil
	}
	return s.trail.List(ctx, ModuleName, shared.ApprovalRef(ModuleName, id))
}

// Note builds the read-only delivery note projection for a delivered
// request.
func (s *Service) Note(ctx context.Context, principal shared.Principal, id int64) (DeliveryNote, error) {
	req, err := s.Get(ctx, principal, id)
	if err != nil {
		return DeliveryNote{}, err
	}
	if req.DeliveredAt == nil || req.DelivererID == nil {
		return DeliveryNote{}, shared.StateConflictf("request %s has not been delivered", req.Number)
	}
	note := DeliveryNote{
		RequestNumber: req.Number,
		RequesterName: req.RequesterName,
		DelivererID:   *req.DelivererID,
		DeliveredAt:   *req.DeliveredAt,
	}
	for _, item := range req.Items {
		if item.ApprovedQty == nil || *item.ApprovedQty <= 0 {
			continue
		}
		note.Lines = append(note.Lines, DeliveryNoteLine{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			DeliveredQty: *item.ApprovedQty,
		})
	}
	return note, nil
}

// requireOwnership restricts requester actions to the request's author.
func (s *Service) requireOwnership(principal shared.Principal, req Request) error {
	if principal.Role == shared.RoleAdmin {
		return nil
	}
	if req.RequesterID != principal.UserID {
		return fmt.Errorf("request %s belongs to another requester: %w", req.Number, shared.ErrForbidden)
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

func (s *Service) emit(ctx context.Context, evt Event) {
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, CacheScope)
	}
	if s.sink != nil {
		s.sink.RequestEvent(ctx, evt)
	}
}
