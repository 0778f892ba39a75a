package requests

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stockflow-erp/stockflow/internal/shared"
)

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		name    string
		from    Status
		action  Action
		role    shared.Role
		want    Status
		wantErr error
	}{
		{"approve from forwarded", StatusForwarded, ActionApprove, shared.RoleApprover, StatusApproved, nil},
		{"reject from forwarded", StatusForwarded, ActionReject, shared.RoleApprover, StatusRejected, nil},
		{"deliver from approved", StatusApproved, ActionDeliver, shared.RoleStorekeeper, StatusDelivered, nil},
		{"confirm from delivered", StatusDelivered, ActionConfirm, shared.RoleRequester, StatusReceptionConfirmed, nil},
		{"dispute from delivered", StatusDelivered, ActionReportIssue, shared.RoleRequester, StatusDisputed, nil},
		{"second dispute while disputed", StatusDisputed, ActionReportIssue, shared.RoleRequester, StatusDisputed, nil},
		{"resolve approve returns to delivered", StatusDisputed, ActionResolveApprove, shared.RoleApprover, StatusDelivered, nil},
		{"resolve reject terminal", StatusDisputed, ActionResolveReject, shared.RoleApprover, StatusRejected, nil},
		{"cancel before decision", StatusForwarded, ActionCancel, shared.RoleRequester, StatusCancelled, nil},
		{"admin may approve", StatusForwarded, ActionApprove, shared.RoleAdmin, StatusApproved, nil},

		{"approve by storekeeper forbidden", StatusForwarded, ActionApprove, shared.RoleStorekeeper, "", shared.ErrForbidden},
		{"deliver by requester forbidden", StatusApproved, ActionDeliver, shared.RoleRequester, "", shared.ErrForbidden},
		{"observer may do nothing", StatusForwarded, ActionReject, shared.RoleObserver, "", shared.ErrForbidden},

		{"approve from approved conflicts", StatusApproved, ActionApprove, shared.RoleApprover, "", shared.ErrStateConflict},
		{"deliver before approval conflicts", StatusForwarded, ActionDeliver, shared.RoleStorekeeper, "", shared.ErrStateConflict},
		{"cancel after delivery conflicts", StatusDelivered, ActionCancel, shared.RoleRequester, "", shared.ErrStateConflict},
		{"rejected is terminal", StatusRejected, ActionDeliver, shared.RoleStorekeeper, "", shared.ErrStateConflict},
		{"confirmed is terminal", StatusReceptionConfirmed, ActionReportIssue, shared.RoleRequester, "", shared.ErrStateConflict},
		{"cancelled is terminal", StatusCancelled, ActionApprove, shared.RoleApprover, "", shared.ErrStateConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Transition(tc.from, tc.action, tc.role)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, next)
		})
	}
}

func TestTerminalStatuses(t *testing.T) {
	require.True(t, StatusRejected.Terminal())
	require.True(t, StatusReceptionConfirmed.Terminal())
	require.True(t, StatusCancelled.Terminal())
	require.False(t, StatusForwarded.Terminal())
	require.False(t, StatusDisputed.Terminal())
}
