package audits

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/stockflow-erp/stockflow/internal/shared"
)

type memoryRepo struct {
	audits   map[int64]Audit
	items    map[int64][]AuditItem
	products []ProductSnapshot
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{audits: make(map[int64]Audit), items: make(map[int64][]AuditItem)}
}

type memoryTx struct {
	repo *memoryRepo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Audit, error) {
	audit, ok := r.audits[id]
	if !ok {
		return Audit{}, shared.ErrNotFound
	}
	audit.Items = append([]AuditItem(nil), r.items[id]...)
	// The real repository hydrates ProductName via JOIN products on read.
	for i := range audit.Items {
		for _, p := range r.products {
			if p.ProductID == audit.Items[i].ProductID {
				audit.Items[i].ProductName = p.Name
			}
		}
	}
	return audit, nil
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Audit, int64, error) {
	var out []Audit
	for id := range r.audits {
		audit, _ := r.Get(ctx, id)
		out = append(out, audit)
	}
	return out, int64(len(out)), nil
}

func (r *memoryRepo) ListOpenForClose(ctx context.Context) ([]int64, error) {
	var ids []int64
	for id, audit := range r.audits {
		if audit.Status == StatusReconciliationPending {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (tx *memoryTx) Tx() pgx.Tx { return nil }

func (tx *memoryTx) ActiveProducts(ctx context.Context) ([]ProductSnapshot, error) {
	return tx.repo.products, nil
}

func (tx *memoryTx) InsertAudit(ctx context.Context, audit Audit) (int64, error) {
	tx.repo.nextID++
	audit.ID = tx.repo.nextID
	audit.CreatedAt = time.Now()
	tx.repo.audits[audit.ID] = audit
	return audit.ID, nil
}

func (tx *memoryTx) InsertItem(ctx context.Context, item AuditItem) error {
	tx.repo.nextID++
	item.ID = tx.repo.nextID
	tx.repo.items[item.AuditID] = append(tx.repo.items[item.AuditID], item)
	return nil
}

func (tx *memoryTx) GetForUpdate(ctx context.Context, id int64) (Audit, error) {
	return tx.repo.Get(ctx, id)
}

func (tx *memoryTx) UpdateStatus(ctx context.Context, id int64, status Status) error {
	audit := tx.repo.audits[id]
	audit.Status = status
	tx.repo.audits[id] = audit
	return nil
}

func (tx *memoryTx) SetCompleted(ctx context.Context, id int64, at time.Time) error {
	audit := tx.repo.audits[id]
	audit.CompletedAt = &at
	tx.repo.audits[id] = audit
	return nil
}

func (tx *memoryTx) RecordCount(ctx context.Context, auditID, productID, counted int64) (bool, error) {
	items := tx.repo.items[auditID]
	for i := range items {
		if items[i].ProductID == productID {
			qty := counted
			items[i].CountedQty = &qty
			tx.repo.items[auditID] = items
			return true, nil
		}
	}
	return false, nil
}

type memoryReconciliation struct {
	created []ReconciliationAdjustment
	open    map[int64]int64
}

func (m *memoryReconciliation) CreatePending(ctx context.Context, tx pgx.Tx, adj ReconciliationAdjustment) error {
	m.created = append(m.created, adj)
	m.open[adj.AuditID]++
	return nil
}

func (m *memoryReconciliation) OpenCount(ctx context.Context, auditID int64) (int64, error) {
	return m.open[auditID], nil
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
	rec     *memoryReconciliation
	service *Service
}

func newFixture() *fixture {
	repo := newMemoryRepo()
	repo.products = []ProductSnapshot{
		{ProductID: 1, Name: "Clavier", Quantity: 10},
		{ProductID: 2, Name: "Souris", Quantity: 4},
		{ProductID: 3, Name: "Ecran", Quantity: 7},
	}
	rec := &memoryReconciliation{open: make(map[int64]int64)}
	svc := NewService(repo, rec, nil, nil, nil)
	svc.numbers = &fakeNumbers{}
	return &fixture{repo: repo, rec: rec, service: svc}
}

var storekeeper = shared.Principal{UserID: 30, Name: "Omar Sy", Role: shared.RoleStorekeeper}

func TestCreateSnapshotsActiveProducts(t *testing.T) {
	f := newFixture()
	created, err := f.service.Create(context.Background(), storekeeper)
	require.NoError(t, err)

	require.Equal(t, StatusInProgress, created.Status)
	require.Equal(t, "AUDIT-2026-00001", created.Number)

	audit, _ := f.repo.Get(context.Background(), created.ID)
	require.Len(t, audit.Items, 3)
	require.EqualValues(t, 10, audit.Items[0].SystemQty)
	require.Nil(t, audit.Items[0].CountedQty)

	requester := shared.Principal{UserID: 5, Role: shared.RoleRequester}
	_, err = f.service.Create(context.Background(), requester)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestCompleteRequiresEveryCount(t *testing.T) {
	f := newFixture()
	created, _ := f.service.Create(context.Background(), storekeeper)

	// 3 products, 2 counted: completion must fail naming the missing one.
	require.NoError(t, f.service.RecordCounts(context.Background(), storekeeper, created.ID, []CountInput{
		{ProductID: 1, CountedQty: 8},
		{ProductID: 2, CountedQty: 4},
	}))

	err := f.service.Complete(context.Background(), storekeeper, created.ID)
	require.ErrorIs(t, err, shared.ErrValidation)
	var vErr *shared.ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Contains(t, vErr.Item, "Ecran")

	audit, _ := f.repo.Get(context.Background(), created.ID)
	require.Equal(t, StatusInProgress, audit.Status)

	require.NoError(t, f.service.RecordCounts(context.Background(), storekeeper, created.ID, []CountInput{
		{ProductID: 3, CountedQty: 7},
	}))
	require.NoError(t, f.service.Complete(context.Background(), storekeeper, created.ID))

	audit, _ = f.repo.Get(context.Background(), created.ID)
	require.Equal(t, StatusCompleted, audit.Status)
	require.NotNil(t, audit.CompletedAt)
}

func TestRecordCountValidation(t *testing.T) {
	f := newFixture()
	created, _ := f.service.Create(context.Background(), storekeeper)

	err := f.service.RecordCounts(context.Background(), storekeeper, created.ID, nil)
	require.ErrorIs(t, err, shared.ErrValidation)

	err = f.service.RecordCounts(context.Background(), storekeeper, created.ID, []CountInput{{ProductID: 1, CountedQty: -1}})
	require.ErrorIs(t, err, shared.ErrValidation)

	err = f.service.RecordCounts(context.Background(), storekeeper, created.ID, []CountInput{{ProductID: 99, CountedQty: 1}})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDiscrepancyComputation(t *testing.T) {
	counted := int64(8)
	item := AuditItem{SystemQty: 10, CountedQty: &counted}
	delta, ok := item.Discrepancy()
	require.True(t, ok)
	require.EqualValues(t, -2, delta)

	_, ok = AuditItem{SystemQty: 10}.Discrepancy()
	require.False(t, ok)
}

func (f *fixture) completedAudit(t *testing.T, counts []CountInput) Audit {
	t.Helper()
	created, err := f.service.Create(context.Background(), storekeeper)
	require.NoError(t, err)
	require.NoError(t, f.service.RecordCounts(context.Background(), storekeeper, created.ID, counts))
	require.NoError(t, f.service.Complete(context.Background(), storekeeper, created.ID))
	return created
}

func TestReconciliationCreatesAdjustments(t *testing.T) {
	f := newFixture()
	created := f.completedAudit(t, []CountInput{
		{ProductID: 1, CountedQty: 8},  // shortage of 2
		{ProductID: 2, CountedQty: 6},  // overage of 2
		{ProductID: 3, CountedQty: 7},  // exact
	})

	final, err := f.service.RequestReconciliation(context.Background(), storekeeper, created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReconciliationPending, final)
	require.Len(t, f.rec.created, 2)
	require.EqualValues(t, -2, f.rec.created[0].Delta)
	require.EqualValues(t, 2, f.rec.created[1].Delta)

	// Still waiting on two decisions.
	closed, err := f.service.CheckAndClose(context.Background(), created.ID)
	require.NoError(t, err)
	require.False(t, closed)

	f.rec.open[created.ID] = 0
	closed, err = f.service.CheckAndClose(context.Background(), created.ID)
	require.NoError(t, err)
	require.True(t, closed)

	audit, _ := f.repo.Get(context.Background(), created.ID)
	require.Equal(t, StatusClosed, audit.Status)
}

func TestReconciliationWithoutDiscrepanciesClosesDirectly(t *testing.T) {
	f := newFixture()
	created := f.completedAudit(t, []CountInput{
		{ProductID: 1, CountedQty: 10},
		{ProductID: 2, CountedQty: 4},
		{ProductID: 3, CountedQty: 7},
	})

	final, err := f.service.RequestReconciliation(context.Background(), storekeeper, created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, final)
	require.Empty(t, f.rec.created)
}

func TestCloseScan(t *testing.T) {
	f := newFixture()
	created := f.completedAudit(t, []CountInput{
		{ProductID: 1, CountedQty: 9},
		{ProductID: 2, CountedQty: 4},
		{ProductID: 3, CountedQty: 7},
	})
	_, err := f.service.RequestReconciliation(context.Background(), storekeeper, created.ID)
	require.NoError(t, err)

	n, err := f.service.CloseScan(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)

	f.rec.open[created.ID] = 0
	n, err = f.service.CloseScan(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestForwardOnlyTransitions(t *testing.T) {
	f := newFixture()
	created, _ := f.service.Create(context.Background(), storekeeper)

	_, err := f.service.RequestReconciliation(context.Background(), storekeeper, created.ID)
	require.ErrorIs(t, err, shared.ErrStateConflict)

	err = f.service.Complete(context.Background(), storekeeper, created.ID)
	require.ErrorIs(t, err, shared.ErrValidation) // nothing counted yet

	requester := shared.Principal{UserID: 5, Role: shared.RoleRequester}
	err = f.service.Complete(context.Background(), requester, created.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)
}
