package purchasing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stockflow-erp/stockflow/internal/inventory"
	"github.com/stockflow-erp/stockflow/internal/shared"
)

type memoryRepo struct {
	orders map[int64]PurchaseOrder
	items  map[int64][]PurchaseOrderItem
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{orders: make(map[int64]PurchaseOrder), items: make(map[int64][]PurchaseOrderItem)}
}

type memoryTx struct {
	repo *memoryRepo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, ok := r.orders[id]
	if !ok {
		return PurchaseOrder{}, shared.ErrNotFound
	}
	po.Items = append([]PurchaseOrderItem(nil), r.items[id]...)
	return po, nil
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int64, error) {
	var out []PurchaseOrder
	for id := range r.orders {
		po, _ := r.Get(ctx, id)
		if len(filter.Statuses) > 0 {
			match := false
			for _, s := range filter.Statuses {
				if po.Status == s {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, po)
	}
	return out, int64(len(out)), nil
}

func (tx *memoryTx) Tx() pgx.Tx { return nil }

func (tx *memoryTx) InsertOrder(ctx context.Context, po PurchaseOrder) (int64, error) {
	tx.repo.nextID++
	po.ID = tx.repo.nextID
	po.CreatedAt = time.Now()
	po.UpdatedAt = po.CreatedAt
	tx.repo.orders[po.ID] = po
	return po.ID, nil
}

func (tx *memoryTx) InsertItem(ctx context.Context, item PurchaseOrderItem) error {
	tx.repo.nextID++
	item.ID = tx.repo.nextID
	tx.repo.items[item.OrderID] = append(tx.repo.items[item.OrderID], item)
	return nil
}

func (tx *memoryTx) DeleteItems(ctx context.Context, orderID int64) error {
	delete(tx.repo.items, orderID)
	return nil
}

func (tx *memoryTx) GetForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	return tx.repo.Get(ctx, id)
}

func (tx *memoryTx) mutate(id int64, fn func(*PurchaseOrder)) error {
	po, ok := tx.repo.orders[id]
	if !ok {
		return shared.ErrNotFound
	}
	fn(&po)
	tx.repo.orders[id] = po
	return nil
}

func (tx *memoryTx) UpdateStatus(ctx context.Context, id int64, status Status) error {
	return tx.mutate(id, func(po *PurchaseOrder) { po.Status = status })
}

func (tx *memoryTx) UpdateHeader(ctx context.Context, id int64, supplierName string, total decimal.Decimal) error {
	return tx.mutate(id, func(po *PurchaseOrder) {
		po.SupplierName = supplierName
		po.TotalAmount = total
	})
}

func (tx *memoryTx) SetApproval(ctx context.Context, id int64, approverID int64, at time.Time) error {
	return tx.mutate(id, func(po *PurchaseOrder) {
		po.ApproverID = &approverID
		po.ApprovedAt = &at
	})
}

func (tx *memoryTx) SetRevisionComment(ctx context.Context, id int64, comment string) error {
	return tx.mutate(id, func(po *PurchaseOrder) { po.RevisionComment = comment })
}

func (tx *memoryTx) SetOrdered(ctx context.Context, id int64, at time.Time) error {
	return tx.mutate(id, func(po *PurchaseOrder) { po.OrderedAt = &at })
}

func (tx *memoryTx) SetClosed(ctx context.Context, id int64, at time.Time) error {
	return tx.mutate(id, func(po *PurchaseOrder) { po.ClosedAt = &at })
}

func (tx *memoryTx) DeleteOrder(ctx context.Context, id int64) error {
	delete(tx.repo.orders, id)
	delete(tx.repo.items, id)
	return nil
}

type memoryInventory struct {
	movements []inventory.Movement
}

func (m *memoryInventory) Apply(ctx context.Context, tx pgx.Tx, mv inventory.Movement) error {
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
	return t.entries, nil
}

type memorySink struct {
	events []Event
}

func (s *memorySink) OrderEvent(ctx context.Context, evt Event) {
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
	inv := &memoryInventory{}
	trail := &memoryTrail{}
	sink := &memorySink{}
	svc := NewService(repo, inv, trail, nil, nil, sink, nil)
	svc.numbers = &fakeNumbers{}
	return &fixture{repo: repo, inv: inv, trail: trail, sink: sink, service: svc}
}

var (
	storekeeper = shared.Principal{UserID: 30, Name: "Omar Sy", Role: shared.RoleStorekeeper}
	approver    = shared.Principal{UserID: 20, Name: "Moussa Ba", Role: shared.RoleApprover}
	admin       = shared.Principal{UserID: 1, Name: "Root", Role: shared.RoleAdmin}
)

func price(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func (f *fixture) createOrder(t *testing.T) PurchaseOrder {
	t.Helper()
	created, err := f.service.Create(context.Background(), storekeeper, CreateInput{
		SupplierName: "Fournisseur SARL",
		Items: []ItemInput{
			{ProductID: 1, Quantity: 2, UnitPrice: price("1000")},
			{ProductID: 2, Quantity: 1, UnitPrice: price("500")},
		},
	})
	require.NoError(t, err)
	return created
}

func TestCreateComputesTotal(t *testing.T) {
	f := newFixture()
	created := f.createOrder(t)

	require.Equal(t, StatusDraft, created.Status)
	require.Equal(t, "BC-2026-00001", created.Number)
	require.True(t, created.TotalAmount.Equal(price("2500")), "total %s", created.TotalAmount)

	// Re-deriving from the same items yields the same value.
	require.True(t, ComputeTotal(created.Items).Equal(created.TotalAmount))
}

func TestCreateValidation(t *testing.T) {
	f := newFixture()

	_, err := f.service.Create(context.Background(), storekeeper, CreateInput{})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.service.Create(context.Background(), storekeeper, CreateInput{
		Items: []ItemInput{{ProductID: 1, Quantity: 0, UnitPrice: price("10")}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.service.Create(context.Background(), storekeeper, CreateInput{
		Items: []ItemInput{{ProductID: 1, Quantity: 1, UnitPrice: price("-1")}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	requester := shared.Principal{UserID: 5, Role: shared.RoleRequester}
	_, err = f.service.Create(context.Background(), requester, CreateInput{
		Items: []ItemInput{{ProductID: 1, Quantity: 1, UnitPrice: price("10")}},
	})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestEditRecomputesTotal(t *testing.T) {
	f := newFixture()
	created := f.createOrder(t)

	err := f.service.Edit(context.Background(), storekeeper, created.ID, CreateInput{
		SupplierName: "Autre SARL",
		Items:        []ItemInput{{ProductID: 1, Quantity: 3, UnitPrice: price("200")}},
	})
	require.NoError(t, err)

	po, _ := f.repo.Get(context.Background(), created.ID)
	require.True(t, po.TotalAmount.Equal(price("600")))
	require.Len(t, po.Items, 1)
}

func TestEditGating(t *testing.T) {
	f := newFixture()
	created := f.createOrder(t)

	other := shared.Principal{UserID: 77, Name: "Autre", Role: shared.RoleStorekeeper}
	err := f.service.Edit(context.Background(), other, created.ID, CreateInput{
		Items: []ItemInput{{ProductID: 1, Quantity: 1, UnitPrice: price("10")}},
	})
	require.ErrorIs(t, err, shared.ErrForbidden)

	require.NoError(t, f.service.Submit(context.Background(), storekeeper, created.ID))
	err = f.service.Edit(context.Background(), storekeeper, created.ID, CreateInput{
		Items: []ItemInput{{ProductID: 1, Quantity: 1, UnitPrice: price("10")}},
	})
	require.ErrorIs(t, err, shared.ErrStateConflict)

	err = f.service.Delete(context.Background(), storekeeper, created.ID)
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

func TestRevisionRoundTrip(t *testing.T) {
	f := newFixture()
	created := f.createOrder(t)

	require.NoError(t, f.service.Submit(context.Background(), storekeeper, created.ID))

	err := f.service.RequestRevision(context.Background(), approver, created.ID, "")
	require.ErrorIs(t, err, shared.ErrValidation)

	require.NoError(t, f.service.RequestRevision(context.Background(), approver, created.ID, "prix trop élevé"))
	po, _ := f.repo.Get(context.Background(), created.ID)
	require.Equal(t, StatusNeedsRevision, po.Status)
	require.Equal(t, "prix trop élevé", po.RevisionComment)

	// Back to the creator: editable again, then resubmit.
	require.NoError(t, f.service.Edit(context.Background(), storekeeper, created.ID, CreateInput{
		Items: []ItemInput{{ProductID: 1, Quantity: 2, UnitPrice: price("900")}},
	}))
	require.NoError(t, f.service.Submit(context.Background(), storekeeper, created.ID))
	require.NoError(t, f.service.Approve(context.Background(), approver, created.ID))

	po, _ = f.repo.Get(context.Background(), created.ID)
	require.Equal(t, StatusApproved, po.Status)
	require.NotNil(t, po.ApprovedAt)
	require.Equal(t, shared.DecisionProposition, f.trail.entries[0].Decision)
	require.Equal(t, shared.DecisionApproved, f.trail.entries[1].Decision)
}

func TestCloseInventoryPosting(t *testing.T) {
	f := newFixture()
	created := f.createOrder(t)

	require.NoError(t, f.service.Submit(context.Background(), storekeeper, created.ID))
	require.NoError(t, f.service.Approve(context.Background(), approver, created.ID))
	require.NoError(t, f.service.MarkOrdered(context.Background(), storekeeper, created.ID))
	require.NoError(t, f.service.Close(context.Background(), storekeeper, created.ID))

	po, _ := f.repo.Get(context.Background(), created.ID)
	require.Equal(t, StatusClosed, po.Status)
	require.NotNil(t, po.ClosedAt)

	require.Len(t, f.inv.movements, 2)
	for _, m := range f.inv.movements {
		require.Equal(t, inventory.MovementIn, m.Type)
		require.Equal(t, inventory.SourceReceipt, m.Source)
		require.Equal(t, created.Number, m.SourceRef)
	}
}

func TestCancelTerminality(t *testing.T) {
	f := newFixture()
	created := f.createOrder(t)

	require.NoError(t, f.service.Cancel(context.Background(), admin, created.ID))
	po, _ := f.repo.Get(context.Background(), created.ID)
	require.Equal(t, StatusCancelled, po.Status)

	err := f.service.Submit(context.Background(), storekeeper, created.ID)
	require.ErrorIs(t, err, shared.ErrStateConflict)
	err = f.service.Edit(context.Background(), storekeeper, created.ID, CreateInput{
		Items: []ItemInput{{ProductID: 1, Quantity: 1, UnitPrice: price("10")}},
	})
	require.ErrorIs(t, err, shared.ErrStateConflict)
	err = f.service.Cancel(context.Background(), admin, created.ID)
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

func TestCancelRoleGate(t *testing.T) {
	f := newFixture()
	created := f.createOrder(t)

	err := f.service.Cancel(context.Background(), storekeeper, created.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)

	require.NoError(t, f.service.Cancel(context.Background(), approver, created.ID))
}
