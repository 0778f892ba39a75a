package purchasing

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
		{"submit draft", StatusDraft, ActionSubmit, shared.RoleStorekeeper, StatusPendingApproval, nil},
		{"resubmit after revision", StatusNeedsRevision, ActionSubmit, shared.RoleStorekeeper, StatusPendingApproval, nil},
		{"approve pending", StatusPendingApproval, ActionApprove, shared.RoleApprover, StatusApproved, nil},
		{"revision from pending", StatusPendingApproval, ActionRequestRevision, shared.RoleApprover, StatusNeedsRevision, nil},
		{"mark ordered", StatusApproved, ActionMarkOrdered, shared.RoleStorekeeper, StatusOrdered, nil},
		{"close ordered", StatusOrdered, ActionClose, shared.RoleStorekeeper, StatusClosed, nil},
		{"cancel draft", StatusDraft, ActionCancel, shared.RoleApprover, StatusCancelled, nil},
		{"cancel ordered", StatusOrdered, ActionCancel, shared.RoleAdmin, StatusCancelled, nil},

		{"submit by approver forbidden", StatusDraft, ActionSubmit, shared.RoleApprover, "", shared.ErrForbidden},
		{"approve by storekeeper forbidden", StatusPendingApproval, ActionApprove, shared.RoleStorekeeper, "", shared.ErrForbidden},
		{"cancel by storekeeper forbidden", StatusDraft, ActionCancel, shared.RoleStorekeeper, "", shared.ErrForbidden},

		{"approve draft conflicts", StatusDraft, ActionApprove, shared.RoleApprover, "", shared.ErrStateConflict},
		{"close before ordering conflicts", StatusApproved, ActionClose, shared.RoleStorekeeper, "", shared.ErrStateConflict},
		{"closed is terminal", StatusClosed, ActionCancel, shared.RoleAdmin, "", shared.ErrStateConflict},
		{"cancelled is terminal", StatusCancelled, ActionSubmit, shared.RoleStorekeeper, "", shared.ErrStateConflict},
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

func TestEditableWindow(t *testing.T) {
	require.True(t, StatusDraft.Editable())
	require.True(t, StatusNeedsRevision.Editable())
	require.False(t, StatusPendingApproval.Editable())
	require.False(t, StatusOrdered.Editable())
	require.True(t, StatusClosed.Terminal())
	require.True(t, StatusCancelled.Terminal())
}
