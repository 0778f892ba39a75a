package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/stockflow-erp/stockflow/internal/requests"
	"github.com/stockflow-erp/stockflow/internal/shared"
)

type memoryRepo struct {
	notifications map[int64]*Notification
	nextID        int64
	counts        Counts
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{notifications: make(map[int64]*Notification), nextID: 1}
}

func (r *memoryRepo) Insert(_ context.Context, n Notification) (int64, error) {
	n.ID = r.nextID
	r.nextID++
	r.notifications[n.ID] = &n
	return n.ID, nil
}

func (r *memoryRepo) Get(_ context.Context, id int64) (Notification, error) {
	n, ok := r.notifications[id]
	if !ok {
		return Notification{}, shared.ErrNotFound
	}
	return *n, nil
}

func (r *memoryRepo) ListForUser(_ context.Context, userID int64, unreadOnly bool, _ int) ([]Notification, error) {
	var out []Notification
	for _, n := range r.notifications {
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.ReadAt != nil {
			continue
		}
		out = append(out, *n)
	}
	return out, nil
}

func (r *memoryRepo) MarkRead(ctx context.Context, userID, id int64) error {
	n, ok := r.notifications[id]
	if !ok || n.UserID != userID {
		return shared.ErrNotFound
	}
	now := n.CreatedAt
	n.ReadAt = &now
	return nil
}

func (r *memoryRepo) MarkAllRead(_ context.Context, userID int64) error {
	for _, n := range r.notifications {
		if n.UserID == userID {
			at := n.CreatedAt
			n.ReadAt = &at
		}
	}
	return nil
}

func (r *memoryRepo) UnreadCount(_ context.Context, userID int64) (int64, error) {
	var count int64
	for _, n := range r.notifications {
		if n.UserID == userID && n.ReadAt == nil {
			count++
		}
	}
	return count, nil
}

func (r *memoryRepo) PendingCounts(context.Context, shared.Principal) (Counts, error) {
	return r.counts, nil
}

type fakeDirectory struct {
	byRole map[shared.Role][]int64
}

func (d *fakeDirectory) ListIDsByRole(_ context.Context, role shared.Role) ([]int64, error) {
	return d.byRole[role], nil
}

type fakePublisher struct {
	published map[string][][]byte
}

func (p *fakePublisher) Publish(_ context.Context, channel string, payload []byte) error {
	if p.published == nil {
		p.published = make(map[string][][]byte)
	}
	p.published[channel] = append(p.published[channel], payload)
	return nil
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (e *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRoleFanOut(t *testing.T) {
	repo := newMemoryRepo()
	directory := &fakeDirectory{byRole: map[shared.Role][]int64{shared.RoleApprover: {20, 21}}}
	publisher := &fakePublisher{}
	svc := NewService(testLogger(), repo, directory, publisher, nil)

	svc.RequestEvent(context.Background(), requests.Event{
		Kind:          requests.EventApprovalRequested,
		RequestID:     5,
		Number:        "COM-2026-00005",
		Message:       "Nouvelle demande en attente d'approbation.",
		RecipientRole: shared.RoleApprover,
	})

	require.Len(t, repo.notifications, 2)
	require.Len(t, publisher.published[ChannelForUser(20)], 1)
	require.Len(t, publisher.published[ChannelForUser(21)], 1)

	var envelope struct {
		Kind      string `json:"type"`
		Message   string `json:"message"`
		RefModule string `json:"refModule"`
		RefID     int64  `json:"refId"`
	}
	require.NoError(t, json.Unmarshal(publisher.published[ChannelForUser(20)][0], &envelope))
	require.Equal(t, string(requests.EventApprovalRequested), envelope.Kind)
	require.Equal(t, requests.ModuleName, envelope.RefModule)
	require.EqualValues(t, 5, envelope.RefID)
	require.Contains(t, envelope.Message, "approbation")
}

func TestDirectRecipient(t *testing.T) {
	repo := newMemoryRepo()
	publisher := &fakePublisher{}
	svc := NewService(testLogger(), repo, &fakeDirectory{}, publisher, nil)

	svc.RequestEvent(context.Background(), requests.Event{
		Kind:        requests.EventDelivered,
		RequestID:   7,
		Message:     "Votre demande a été livrée.",
		RecipientID: 10,
	})

	require.Len(t, repo.notifications, 1)
	require.Len(t, publisher.published[ChannelForUser(10)], 1)
}

func TestEnqueuerDefersDelivery(t *testing.T) {
	repo := newMemoryRepo()
	publisher := &fakePublisher{}
	enqueuer := &fakeEnqueuer{}
	svc := NewService(testLogger(), repo, &fakeDirectory{}, publisher, enqueuer)

	svc.RequestEvent(context.Background(), requests.Event{
		Kind:        requests.EventDecisionMade,
		RequestID:   3,
		Message:     "Votre demande a été approuvée.",
		RecipientID: 10,
	})

	require.Empty(t, publisher.published, "publish waits for the worker")
	require.Len(t, enqueuer.tasks, 1)
	require.Equal(t, TaskDispatch, enqueuer.tasks[0].Type())

	var payload DispatchPayload
	require.NoError(t, json.Unmarshal(enqueuer.tasks[0].Payload(), &payload))
	require.NoError(t, svc.Dispatch(context.Background(), payload.NotificationID))
	require.Len(t, publisher.published[ChannelForUser(10)], 1)
}

func TestMarkReadOwnership(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(testLogger(), repo, &fakeDirectory{}, nil, nil)
	owner := shared.Principal{UserID: 10, Role: shared.RoleRequester}
	stranger := shared.Principal{UserID: 99, Role: shared.RoleRequester}

	id, err := repo.Insert(context.Background(), Notification{UserID: 10, Kind: "DECISION", Message: "ok"})
	require.NoError(t, err)

	require.ErrorIs(t, svc.MarkRead(context.Background(), stranger, id), shared.ErrNotFound)
	require.NoError(t, svc.MarkRead(context.Background(), owner, id))

	unread, err := svc.List(context.Background(), owner, true, 0)
	require.NoError(t, err)
	require.Empty(t, unread)
}

func TestPendingCountsIncludeUnreadBadge(t *testing.T) {
	repo := newMemoryRepo()
	repo.counts = Counts{PendingRequests: 2, PendingPurchaseOrders: 1}
	svc := NewService(testLogger(), repo, &fakeDirectory{}, nil, nil)
	approver := shared.Principal{UserID: 20, Role: shared.RoleApprover}

	_, err := repo.Insert(context.Background(), Notification{UserID: 20, Kind: "PO_DECISION", Message: "x"})
	require.NoError(t, err)

	counts, err := svc.PendingCounts(context.Background(), approver)
	require.NoError(t, err)
	require.EqualValues(t, 2, counts.PendingRequests)
	require.EqualValues(t, 1, counts.PendingPurchaseOrders)
	require.EqualValues(t, 1, counts.UnreadNotifications)
}
