package audits

import (
	"fmt"

	"github.com/stockflow-erp/stockflow/internal/shared"
)

// Action labels a lifecycle operation for the transition table.
type Action string

const (
	ActionComplete              Action = "COMPLETE"
	ActionRequestReconciliation Action = "REQUEST_RECONCILIATION"
	ActionClose                 Action = "CLOSE"
)

type transitionRule struct {
	next  Status
	roles []shared.Role
}

// RoleSystem marks transitions driven by the service itself (the close scan
// after reconciliation) rather than by a user.
const RoleSystem shared.Role = "SYSTEM"

var transitions = map[Status]map[Action]transitionRule{
	StatusInProgress: {
		ActionComplete: {next: StatusCompleted, roles: []shared.Role{shared.RoleStorekeeper, shared.RoleAdmin}},
	},
	StatusCompleted: {
		ActionRequestReconciliation: {next: StatusReconciliationPending, roles: []shared.Role{shared.RoleStorekeeper, shared.RoleAdmin}},
		// An audit with no discrepancy closes without a reconciliation step.
		ActionClose: {next: StatusClosed, roles: []shared.Role{shared.RoleStorekeeper, shared.RoleAdmin, RoleSystem}},
	},
	StatusReconciliationPending: {
		ActionClose: {next: StatusClosed, roles: []shared.Role{RoleSystem}},
	},
}

// Transition resolves (state, action, role) to the next state.
func Transition(current Status, action Action, role shared.Role) (Status, error) {
	rules, ok := transitions[current]
	if !ok {
		return "", shared.StateConflictf("audit in state %s accepts no further actions", current)
	}
	rule, ok := rules[action]
	if !ok {
		return "", shared.StateConflictf("action %s is not valid from state %s", action, current)
	}
	for _, allowed := range rule.roles {
		if role == allowed {
			return rule.next, nil
		}
	}
	return "", fmt.Errorf("role %s may not %s an audit: %w", role, action, shared.ErrForbidden)
}
