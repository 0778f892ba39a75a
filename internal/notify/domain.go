package notify

import "time"

// Notification is one persisted message for one user. The Kind mirrors the
// event kind of the module that produced it so the client can route the
// toast; RefModule/RefID link back to the entity.
type Notification struct {
	ID        int64
	UserID    int64
	Kind      string
	Message   string
	RefModule string
	RefID     int64
	ReadAt    *time.Time
	CreatedAt time.Time
}

// Counts summarises the actions waiting on a user, computed from the live
// lifecycle tables rather than from stored notifications. Which fields are
// populated depends on the caller's role.
type Counts struct {
	PendingRequests       int64 `json:"pendingRequests"`
	PendingPurchaseOrders int64 `json:"pendingPurchaseOrders"`
	PendingAdjustments    int64 `json:"pendingAdjustments"`
	RequestsToDeliver     int64 `json:"requestsToDeliver"`
	RequestsToConfirm     int64 `json:"requestsToConfirm"`
	UnreadNotifications   int64 `json:"unreadNotifications"`
}
