package audits

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
		{"complete by storekeeper", StatusInProgress, ActionComplete, shared.RoleStorekeeper, StatusCompleted, nil},
		{"complete by admin", StatusInProgress, ActionComplete, shared.RoleAdmin, StatusCompleted, nil},
		{"request reconciliation", StatusCompleted, ActionRequestReconciliation, shared.RoleStorekeeper, StatusReconciliationPending, nil},
		{"close clean audit", StatusCompleted, ActionClose, shared.RoleAdmin, StatusClosed, nil},
		{"system closes after reconciliation", StatusReconciliationPending, ActionClose, RoleSystem, StatusClosed, nil},

		{"complete by requester forbidden", StatusInProgress, ActionComplete, shared.RoleRequester, "", shared.ErrForbidden},
		{"approver cannot complete", StatusInProgress, ActionComplete, shared.RoleApprover, "", shared.ErrForbidden},
		{"user cannot close pending reconciliation", StatusReconciliationPending, ActionClose, shared.RoleStorekeeper, "", shared.ErrForbidden},

		{"close before completion conflicts", StatusInProgress, ActionClose, shared.RoleAdmin, "", shared.ErrStateConflict},
		{"reconciliation before completion conflicts", StatusInProgress, ActionRequestReconciliation, shared.RoleStorekeeper, "", shared.ErrStateConflict},
		{"closed is terminal", StatusClosed, ActionComplete, shared.RoleAdmin, "", shared.ErrStateConflict},
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
