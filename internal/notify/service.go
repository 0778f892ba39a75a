package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stockflow-erp/stockflow/internal/adjustments"
	"github.com/stockflow-erp/stockflow/internal/audits"
	"github.com/stockflow-erp/stockflow/internal/purchasing"
	"github.com/stockflow-erp/stockflow/internal/requests"
	"github.com/stockflow-erp/stockflow/internal/shared"
)

// TaskDispatch is the asynq task type delivering one stored notification.
const TaskDispatch = "notify:dispatch"

// DispatchPayload identifies the notification to deliver.
type DispatchPayload struct {
	NotificationID int64 `json:"notificationId"`
}

// NewDispatchTask builds the asynq task for one notification.
func NewDispatchTask(notificationID int64) (*asynq.Task, error) {
	data, err := json.Marshal(DispatchPayload{NotificationID: notificationID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDispatch, data), nil
}

// ChannelForUser names the redis pub/sub channel carrying a user's
// notifications.
func ChannelForUser(userID int64) string {
	return "notify:user:" + strconv.FormatInt(userID, 10)
}

// RepositoryPort describes persistence used by Service.
type RepositoryPort interface {
	Insert(ctx context.Context, n Notification) (int64, error)
	Get(ctx context.Context, id int64) (Notification, error)
	ListForUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, userID, id int64) error
	MarkAllRead(ctx context.Context, userID int64) error
	UnreadCount(ctx context.Context, userID int64) (int64, error)
	PendingCounts(ctx context.Context, principal shared.Principal) (Counts, error)
}

// UserDirectory resolves a role to the active users holding it.
type UserDirectory interface {
	ListIDsByRole(ctx context.Context, role shared.Role) ([]int64, error)
}

// Publisher pushes a payload on a pub/sub channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Enqueuer hands a task to the background worker. Satisfied by
// *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Service stores and delivers transition notifications. It implements the
// event sinks of the lifecycle modules: every event becomes one stored row
// per recipient, delivered over pub/sub either inline or through the
// worker when an enqueuer is configured.
type Service struct {
	logger    *slog.Logger
	repo      RepositoryPort
	users     UserDirectory
	publisher Publisher
	enqueuer  Enqueuer
}

// NewService constructs the notification service. publisher and enqueuer
// may be nil; missing pieces degrade to store-only behaviour.
func NewService(logger *slog.Logger, repo RepositoryPort, users UserDirectory, publisher Publisher, enqueuer Enqueuer) *Service {
	return &Service{logger: logger, repo: repo, users: users, publisher: publisher, enqueuer: enqueuer}
}

// RequestEvent implements the requests event sink.
func (s *Service) RequestEvent(ctx context.Context, evt requests.Event) {
	s.fan(ctx, string(evt.Kind), requests.ModuleName, evt.RequestID, evt.Message, evt.RecipientID, evt.RecipientRole)
}

// OrderEvent implements the purchasing event sink.
func (s *Service) OrderEvent(ctx context.Context, evt purchasing.Event) {
	s.fan(ctx, string(evt.Kind), purchasing.ModuleName, evt.OrderID, evt.Message, evt.RecipientID, evt.RecipientRole)
}

// AdjustmentEvent implements the adjustments event sink.
func (s *Service) AdjustmentEvent(ctx context.Context, evt adjustments.Event) {
	s.fan(ctx, string(evt.Kind), adjustments.ModuleName, evt.AdjustmentID, evt.Message, evt.RecipientID, evt.RecipientRole)
}

// AuditEvent implements the audits event sink.
func (s *Service) AuditEvent(ctx context.Context, evt audits.Event) {
	s.fan(ctx, string(evt.Kind), audits.ModuleName, evt.AuditID, evt.Message, evt.RecipientID, evt.RecipientRole)
}

// Broadcast stores one notification per user holding the given role. Used
// by the reminder cron, which has no lifecycle event to hang a message on.
func (s *Service) Broadcast(ctx context.Context, kind, module, message string, role shared.Role) {
	s.fan(ctx, kind, module, 0, message, 0, role)
}

// fan resolves the recipients and stores one notification per user.
// Failures are logged, never propagated: notification delivery must not
// fail the transition that produced the event.
func (s *Service) fan(ctx context.Context, kind, module string, refID int64, message string, recipientID int64, role shared.Role) {
	var userIDs []int64
	switch {
	case recipientID != 0:
		userIDs = []int64{recipientID}
	case role != "" && s.users != nil:
		ids, err := s.users.ListIDsByRole(ctx, role)
		if err != nil {
			s.logger.Error("notify: resolve role recipients", slog.String("role", string(role)), slog.Any("error", err))
			return
		}
		userIDs = ids
	default:
		return
	}

	for _, userID := range userIDs {
		id, err := s.repo.Insert(ctx, Notification{
			UserID:    userID,
			Kind:      kind,
			Message:   message,
			RefModule: module,
			RefID:     refID,
		})
		if err != nil {
			s.logger.Error("notify: store notification", slog.Int64("user_id", userID), slog.Any("error", err))
			continue
		}
		s.deliver(ctx, id)
	}
}

func (s *Service) deliver(ctx context.Context, id int64) {
	if s.enqueuer != nil {
		task, err := NewDispatchTask(id)
		if err == nil {
			_, err = s.enqueuer.EnqueueContext(ctx, task)
		}
		if err != nil {
			s.logger.Error("notify: enqueue dispatch", slog.Int64("id", id), slog.Any("error", err))
		}
		return
	}
	if err := s.Dispatch(ctx, id); err != nil {
		s.logger.Error("notify: dispatch", slog.Int64("id", id), slog.Any("error", err))
	}
}

type wireEnvelope struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"type"`
	Message   string    `json:"message"`
	RefModule string    `json:"refModule"`
	RefID     int64     `json:"refId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Dispatch publishes one stored notification on its user's channel. Called
// inline when no worker is configured, otherwise from the worker's
// dispatch handler.
func (s *Service) Dispatch(ctx context.Context, id int64) error {
	if s.publisher == nil {
		return nil
	}
	n, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(wireEnvelope{
		ID:        n.ID,
		Kind:      n.Kind,
		Message:   n.Message,
		RefModule: n.RefModule,
		RefID:     n.RefID,
		CreatedAt: n.CreatedAt,
	})
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, ChannelForUser(n.UserID), payload)
}

// List returns the caller's notifications.
func (s *Service) List(ctx context.Context, principal shared.Principal, unreadOnly bool, limit int) ([]Notification, error) {
	if !principal.Role.Valid() {
		return nil, shared.ErrForbidden
	}
	return s.repo.ListForUser(ctx, principal.UserID, unreadOnly, limit)
}

// MarkRead flags one of the caller's notifications as read.
func (s *Service) MarkRead(ctx context.Context, principal shared.Principal, id int64) error {
	if !principal.Role.Valid() {
		return shared.ErrForbidden
	}
	return s.repo.MarkRead(ctx, principal.UserID, id)
}

// MarkAllRead flags all of the caller's notifications as read.
func (s *Service) MarkAllRead(ctx context.Context, principal shared.Principal) error {
	if !principal.Role.Valid() {
		return shared.ErrForbidden
	}
	return s.repo.MarkAllRead(ctx, principal.UserID)
}

// PendingCounts returns the caller's work queues plus the unread badge.
func (s *Service) PendingCounts(ctx context.Context, principal shared.Principal) (Counts, error) {
	if !principal.Role.Valid() {
		return Counts{}, shared.ErrForbidden
	}
	counts, err := s.repo.PendingCounts(ctx, principal)
	if err != nil {
		return Counts{}, err
	}
	counts.UnreadNotifications, err = s.repo.UnreadCount(ctx, principal.UserID)
	if err != nil {
		return Counts{}, err
	}
	return counts, nil
}
