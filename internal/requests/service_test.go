package requests

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/stockflow-erp/stockflow/internal/inventory"
	"github.com/stockflow-erp/stockflow/internal/shared"
)

type memoryRepo struct {
	requests     map[int64]Request
	items        map[int64][]RequestItem
	products     map[int64]int64
	productNames map[int64]string
	nextID       int64
	listCalls    int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		requests:     make(map[int64]Request),
		items:        make(map[int64][]RequestItem),
		products:     make(map[int64]int64),
		productNames: map[int64]string{1: "Clavier"},
	}
}

type memoryTx struct {
	repo *memoryRepo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Request, error) {
	req, ok := r.requests[id]
	if !ok {
		return Request{}, shared.ErrNotFound
	}
	req.Items = append([]RequestItem(nil), r.items[id]...)
	// The real repository hydrates ProductName via JOIN products on read.
	for i := range req.Items {
		req.Items[i].ProductName = r.productNames[req.Items[i].ProductID]
	}
	return req, nil
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Request, int64, error) {
	r.listCalls++
	var out []Request
	for id := range r.requests {
		req, _ := r.Get(ctx, id)
		if filter.RequesterID != nil && req.RequesterID != *filter.RequesterID {
			continue
		}
		if len(filter.Statuses) > 0 {
			match := false
			for _, s := range filter.Statuses {
				if req.Status == s {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, req)
	}
	return out, int64(len(out)), nil
}

func (tx *memoryTx) Tx() pgx.Tx { return nil }

func (tx *memoryTx) InsertRequest(ctx context.Context, req Request) (int64, error) {
	tx.repo.nextID++
	req.ID = tx.repo.nextID
	req.CreatedAt = time.Now()
	req.UpdatedAt = req.CreatedAt
	tx.repo.requests[req.ID] = req
	return req.ID, nil
}

func (tx *memoryTx) InsertItem(ctx context.Context, item RequestItem) error {
	tx.repo.nextID++
	item.ID = tx.repo.nextID
	item.DisputeStatus = DisputeNone
	tx.repo.items[item.RequestID] = append(tx.repo.items[item.RequestID], item)
	return nil
}

func (tx *memoryTx) GetForUpdate(ctx context.Context, id int64) (Request, error) {
	return tx.repo.Get(ctx, id)
}

func (tx *memoryTx) UpdateStatus(ctx context.Context, id int64, status Status) error {
	req := tx.repo.requests[id]
	req.Status = status
	tx.repo.requests[id] = req
	return nil
}

func (tx *memoryTx) SetApproval(ctx context.Context, id int64, approverID int64, at time.Time) error {
	req := tx.repo.requests[id]
	req.ApproverID = &approverID
	req.ApprovedAt = &at
	tx.repo.requests[id] = req
	return nil
}

func (tx *memoryTx) SetDelivery(ctx context.Context, id int64, delivererID int64, at time.Time) error {
	req := tx.repo.requests[id]
	req.DelivererID = &delivererID
	req.DeliveredAt = &at
	tx.repo.requests[id] = req
	return nil
}

func (tx *memoryTx) SetReception(ctx context.Context, id int64, at time.Time) error {
	req := tx.repo.requests[id]
	req.ReceivedAt = &at
	tx.repo.requests[id] = req
	return nil
}

func (tx *memoryTx) mutateItem(itemID int64, fn func(*RequestItem)) error {
	for reqID, items := range tx.repo.items {
		for i := range items {
			if items[i].ID == itemID {
				fn(&items[i])
				tx.repo.items[reqID] = items
				return nil
			}
		}
	}
	return shared.ErrNotFound
}

func (tx *memoryTx) SetItemApproval(ctx context.Context, itemID int64, approvedQty int64) error {
	return tx.mutateItem(itemID, func(item *RequestItem) {
		qty := approvedQty
		item.ApprovedQty = &qty
	})
}

func (tx *memoryTx) SetItemDispute(ctx context.Context, itemID int64, status ItemDisputeStatus, reason *DisputeReason, comment string) error {
	return tx.mutateItem(itemID, func(item *RequestItem) {
		item.DisputeStatus = status
		item.DisputeReason = reason
		item.DisputeComment = comment
	})
}

func (tx *memoryTx) ResolveReportedItems(ctx context.Context, requestID int64, resolution ItemDisputeStatus) error {
	items := tx.repo.items[requestID]
	for i := range items {
		if items[i].DisputeStatus == DisputeReported {
			items[i].DisputeStatus = resolution
		}
	}
	tx.repo.items[requestID] = items
	return nil
}

func (tx *memoryTx) ProductQuantities(ctx context.Context, productIDs []int64) (map[int64]int64, error) {
	out := make(map[int64]int64)
	for _, id := range productIDs {
		if qty, ok := tx.repo.products[id]; ok {
			out[id] = qty
		}
	}
	return out, nil
}

type memoryInventory struct {
	repo      *memoryRepo
	movements []inventory.Movement
}

func (m *memoryInventory) Apply(ctx context.Context, tx pgx.Tx, mv inventory.Movement) error {
	current := m.repo.products[mv.ProductID]
	if mv.Type == inventory.MovementOut && current < mv.Quantity {
		return shared.StateConflictf("insufficient stock for product %d", mv.ProductID)
	}
	if mv.Type == inventory.MovementOut {
		m.repo.products[mv.ProductID] = current - mv.Quantity
	} else {
		m.repo.products[mv.ProductID] = current + mv.Quantity
	}
	m.movements = append(m.movements, mv)
	return nil
}

type memoryTrail struct {
	entries []shared.ApprovalEntry
}

func (t *memoryTrail) Record(ctx context.Context, entry shared.ApprovalEntry) error {
	t.entries = append(t.entries, entry)
	return nil
}

func (t *memoryTrail) List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalEntry, error) {
	var out []shared.ApprovalEntry
	for _, e := range t.entries {
		if e.Module == module && e.RefID == ref {
			out = append(out, e)
		}
	}
	return out, nil
}

type memorySink struct {
	events []Event
}

func (s *memorySink) RequestEvent(ctx context.Context, evt Event) {
	s.events = append(s.events, evt)
}

type fakeNumbers struct {
	seq int64
}

func (n *fakeNumbers) Next(ctx context.Context, tx pgx.Tx, prefix string) (string, error) {
	n.seq++
	return fmt.Sprintf("%s-2026-%05d", prefix, n.seq), nil
}

type fixture struct {
	repo    *memoryRepo
	inv     *memoryInventory
	trail   *memoryTrail
	sink    *memorySink
	service *Service
}

func newFixture() *fixture {
	repo := newMemoryRepo()
	inv := &memoryInventory{repo: repo}
	trail := &memoryTrail{}
	sink := &memorySink{}
	svc := NewService(repo, inv, trail, nil, sink, nil)
	svc.numbers = &fakeNumbers{}
	return &fixture{repo: repo, inv: inv, trail: trail, sink: sink, service: svc}
}

var (
	requester   = shared.Principal{UserID: 10, Name: "Awa Diop", Role: shared.RoleRequester}
	approver    = shared.Principal{UserID: 20, Name: "Moussa Ba", Role: shared.RoleApprover}
	storekeeper = shared.Principal{UserID: 30, Name: "Omar Sy", Role: shared.RoleStorekeeper}
)

func (f *fixture) createRequest(t *testing.T, qty int64) Request {
	t.Helper()
	f.repo.products[1] = 100
	created, err := f.service.Create(context.Background(), requester, CreateInput{
		Items: []ItemInput{{ProductID: 1, Quantity: qty}},
	})
	require.NoError(t, err)
	return created
}

func TestCreateForwardsImmediately(t *testing.T) {
	f := newFixture()
	created := f.createRequest(t, 5)

	require.Equal(t, StatusForwarded, created.Status)
	require.Equal(t, "COM-2026-00001", created.Number)
	require.Len(t, f.sink.events, 1)
	require.Equal(t, EventApprovalRequested, f.sink.events[0].Kind)
	require.Equal(t, shared.RoleApprover, f.sink.events[0].RecipientRole)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture()
	f.repo.products[1] = 10

	_, err := f.service.Create(context.Background(), requester, CreateInput{})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.service.Create(context.Background(), requester, CreateInput{Items: []ItemInput{{ProductID: 1, Quantity: 0}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.service.Create(context.Background(), requester, CreateInput{Items: []ItemInput{{ProductID: 1, Quantity: 50}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.service.Create(context.Background(), storekeeper, CreateInput{Items: []ItemInput{{ProductID: 1, Quantity: 1}}})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestApprovePartialRecordsModified(t *testing.T) {
	f := newFixture()
	created := f.createRequest(t, 5)
	itemID := f.repo.items[created.ID][0].ID

	err := f.service.Approve(context.Background(), approver, created.ID, ApproveInput{
		Items:   []ItemDecision{{ItemID: itemID, ApprovedQty: 3}},
		Comment: "partial stock",
	})
	require.NoError(t, err)

	req, _ := f.repo.Get(context.Background(), created.ID)
	require.Equal(t, StatusApproved, req.Status)
	require.NotNil(t, req.Items[0].ApprovedQty)
	require.EqualValues(t, 3, *req.Items[0].ApprovedQty)

	require.Len(t, f.trail.entries, 1)
	require.Equal(t, shared.DecisionModified, f.trail.entries[0].Decision)
	require.Equal(t, "partial stock", f.trail.entries[0].Comment)
}

func TestApproveAllAtRequestedRecordsApproved(t *testing.T) {
	f := newFixture()
	created := f.createRequest(t, 5)

	require.NoError(t, f.service.Approve(context.Background(), approver, created.ID, ApproveInput{}))

	req, _ := f.repo.Get(context.Background(), created.ID)
	require.EqualValues(t, 5, *req.Items[0].ApprovedQty)
	require.Equal(t, shared.DecisionApproved, f.trail.entries[0].Decision)
}

func TestApproveIsAllOrNothing(t *testing.T) {
	f := newFixture()
	created := f.createRequest(t, 5)
	itemID := f.repo.items[created.ID][0].ID

	err := f.service.Approve(context.Background(), approver, created.ID, ApproveInput{
		Items: []ItemDecision{{ItemID: itemID, ApprovedQty: 6}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	req, _ := f.repo.Get(context.Background(), created.ID)
	require.Equal(t, StatusForwarded, req.Status)
	require.Empty(t, f.trail.entries)

	err = f.service.Approve(context.Background(), approver, created.ID, ApproveInput{
		Items: []ItemDecision{{ItemID: itemID, ApprovedQty: 0}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestApproveGating(t *testing.T) {
	f := newFixture()
	created := f.createRequest(t, 5)

	err := f.service.Approve(context.Background(), storekeeper, created.ID, ApproveInput{})
	require.ErrorIs(t, err, shared.ErrForbidden)

	require.NoError(t, f.service.Approve(context.Background(), approver, created.ID, ApproveInput{}))
	err = f.service.Approve(context.Background(), approver, created.ID, ApproveInput{})
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

func TestDeliverPostsOutboundMovements(t *testing.T) {
	f := newFixture()
	created := f.createRequest(t, 5)
	require.NoError(t, f.service.Approve(context.Background(), approver, created.ID, ApproveInput{}))

	require.NoError(t, f.service.Deliver(context.Background(), storekeeper, created.ID))

	req, _ := f.repo.Get(context.Background(), created.ID)
	require.Equal(t, StatusDelivered, req.Status)
	require.NotNil(t, req.DeliveredAt)
	require.Len(t, f.inv.movements, 1)
	require.Equal(t, inventory.MovementOut, f.inv.movements[0].Type)
	require.Equal(t, inventory.SourceRequest, f.inv.movements[0].Source)
	require.EqualValues(t, 5, f.inv.movements[0].Quantity)
	require.EqualValues(t, 95, f.repo.products[1])
}

func deliveredFixture(t *testing.T) (*fixture, Request) {
	t.Helper()
	f := newFixture()
	created := f.createRequest(t, 5)
	require.NoError(t, f.service.Approve(context.Background(), approver, created.ID, ApproveInput{}))
	require.NoError(t, f.service.Deliver(context.Background(), storekeeper, created.ID))
	return f, created
}

func TestConfirmReception(t *testing.T) {
	f, created := deliveredFixture(t)

	require.NoError(t, f.service.ConfirmReception(context.Background(), requester, created.ID))

	req, _ := f.repo.Get(context.Background(), created.ID)
	require.Equal(t, StatusReceptionConfirmed, req.Status)
	require.NotNil(t, req.ReceivedAt)
}

func TestConfirmBlockedByOpenDispute(t *testing.T) {
	f, created := deliveredFixture(t)
	itemID := f.repo.items[created.ID][0].ID

	require.NoError(t, f.service.ReportIssue(context.Background(), requester, created.ID, []DisputeInput{
		{ItemID: itemID, Reason: ReasonWrongQuantity},
	}))

	req, _ := f.repo.Get(context.Background(), created.ID)
	require.Equal(t, StatusDisputed, req.Status)
	require.Equal(t, DisputeReported, req.Items[0].DisputeStatus)

	err := f.service.ConfirmReception(context.Background(), requester, created.ID)
	require.ErrorIs(t, err, shared.ErrStateConflict)

	require.NoError(t, f.service.ResolveDispute(context.Background(), approver, created.ID, ResolveApprove, "recount done"))
	req, _ = f.repo.Get(context.Background(), created.ID)
	require.Equal(t, StatusDelivered, req.Status)
	require.Equal(t, DisputeResolvedApproved, req.Items[0].DisputeStatus)

	require.NoError(t, f.service.ConfirmReception(context.Background(), requester, created.ID))
}

func TestReportIssueValidation(t *testing.T) {
	f, created := deliveredFixture(t)
	itemID := f.repo.items[created.ID][0].ID

	err := f.service.ReportIssue(context.Background(), requester, created.ID, nil)
	require.ErrorIs(t, err, shared.ErrValidation)

	err = f.service.ReportIssue(context.Background(), requester, created.ID, []DisputeInput{{ItemID: itemID}})
	require.ErrorIs(t, err, shared.ErrValidation)

	err = f.service.ReportIssue(context.Background(), requester, created.ID, []DisputeInput{
		{ItemID: itemID, Reason: ReasonOther},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	var vErr *shared.ValidationError
	require.ErrorAs(t, err, &vErr)
	require.NotEmpty(t, vErr.Item)

	req, _ := f.repo.Get(context.Background(), created.ID)
	require.Equal(t, StatusDelivered, req.Status)
	require.Equal(t, DisputeNone, req.Items[0].DisputeStatus)
}

func TestResolveDisputeReject(t *testing.T) {
	f, created := deliveredFixture(t)
	itemID := f.repo.items[created.ID][0].ID

	require.NoError(t, f.service.ReportIssue(context.Background(), requester, created.ID, []DisputeInput{
		{ItemID: itemID, Reason: ReasonOther, Comment: "emballage ouvert"},
	}))
	require.NoError(t, f.service.ResolveDispute(context.Background(), approver, created.ID, ResolveReject, ""))

	req, _ := f.repo.Get(context.Background(), created.ID)
	require.Equal(t, StatusRejected, req.Status)
	require.Equal(t, DisputeResolvedRejected, req.Items[0].DisputeStatus)

	last := f.trail.entries[len(f.trail.entries)-1]
	require.Equal(t, shared.DecisionDisputeRejected, last.Decision)
}

func TestCancelWindow(t *testing.T) {
	f := newFixture()
	created := f.createRequest(t, 5)

	require.NoError(t, f.service.Cancel(context.Background(), requester, created.ID))
	req, _ := f.repo.Get(context.Background(), created.ID)
	require.Equal(t, StatusCancelled, req.Status)

	f2, delivered := deliveredFixture(t)
	err := f2.service.Cancel(context.Background(), requester, delivered.ID)
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

func TestOwnershipEnforced(t *testing.T) {
	f, created := deliveredFixture(t)
	other := shared.Principal{UserID: 99, Name: "Autre Chef", Role: shared.RoleRequester}

	err := f.service.ConfirmReception(context.Background(), other, created.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = f.service.Get(context.Background(), other, created.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestDeliveryNoteProjection(t *testing.T) {
	f, created := deliveredFixture(t)

	note, err := f.service.Note(context.Background(), requester, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.Number, note.RequestNumber)
	require.Len(t, note.Lines, 1)
	require.EqualValues(t, 5, note.Lines[0].DeliveredQty)

	f2 := newFixture()
	pending := f2.createRequest(t, 2)
	_, err = f2.service.Note(context.Background(), requester, pending.ID)
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

type memoryCache struct {
	version int64
	store   map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{version: 1, store: make(map[string][]byte)}
}

func (c *memoryCache) BuildKey(ctx context.Context, scope string, parts ...string) (string, error) {
	return fmt.Sprintf("%s:%s:%d", scope, strings.Join(parts, ":"), c.version), nil
}

func (c *memoryCache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if raw, ok := c.store[key]; ok {
		return json.Unmarshal(raw, dest)
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.store[key] = raw
	return json.Unmarshal(raw, dest)
}

func (c *memoryCache) Invalidate(ctx context.Context, scopes ...string) error {
	c.version++
	return nil
}

func TestApproveRejectsUnknownItem(t *testing.T) {
	f := newFixture()
	created := f.createRequest(t, 5)

	err := f.service.Approve(context.Background(), approver, created.ID, ApproveInput{
		Items: []ItemDecision{{ItemID: 9999, ApprovedQty: 2}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.ErrorContains(t, err, "does not belong")

	req, _ := f.repo.Get(context.Background(), created.ID)
	require.Equal(t, StatusForwarded, req.Status)
}

func TestListServesFromReadModel(t *testing.T) {
	f := newFixture()
	f.service.cache = newMemoryCache()
	created := f.createRequest(t, 5)

	ctx := context.Background()
	first, _, err := f.service.List(ctx, approver, ListFilter{})
	require.NoError(t, err)
	require.Len(t, first, 1)
	calls := f.repo.listCalls

	second, _, err := f.service.List(ctx, approver, ListFilter{})
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, calls, f.repo.listCalls, "repeat read must come from the cache")

	itemID := f.repo.items[created.ID][0].ID
	require.NoError(t, f.service.Approve(ctx, approver, created.ID, ApproveInput{
		Items: []ItemDecision{{ItemID: itemID, ApprovedQty: 5}},
	}))

	_, _, err = f.service.List(ctx, approver, ListFilter{})
	require.NoError(t, err)
	require.Equal(t, calls+1, f.repo.listCalls, "transition must drop the cached page")
}
