package purchasing

import (
	"fmt"

	"github.com/stockflow-erp/stockflow/internal/shared"
)

// Action labels a lifecycle operation for the transition table.
type Action string

const (
	ActionSubmit          Action = "SUBMIT"
	ActionApprove         Action = "APPROVE"
	ActionRequestRevision Action = "REQUEST_REVISION"
	ActionMarkOrdered     Action = "MARK_ORDERED"
	ActionClose           Action = "CLOSE"
	ActionCancel          Action = "CANCEL"
)

type transitionRule struct {
	next  Status
	roles []shared.Role
}

var cancelRule = transitionRule{next: StatusCancelled, roles: []shared.Role{shared.RoleAdmin, shared.RoleApprover}}

// transitions is the authoritative transition table. Cancellation is
// allowed from every non-terminal state; item edits and deletion are not
// transitions and are gated by Status.Editable in the service.
var transitions = map[Status]map[Action]transitionRule{
	StatusDraft: {
		ActionSubmit: {next: StatusPendingApproval, roles: []shared.Role{shared.RoleStorekeeper, shared.RoleAdmin}},
		ActionCancel: cancelRule,
	},
	StatusNeedsRevision: {
		ActionSubmit: {next: StatusPendingApproval, roles: []shared.Role{shared.RoleStorekeeper, shared.RoleAdmin}},
		ActionCancel: cancelRule,
	},
	StatusPendingApproval: {
		ActionApprove:         {next: StatusApproved, roles: []shared.Role{shared.RoleApprover, shared.RoleAdmin}},
		ActionRequestRevision: {next: StatusNeedsRevision, roles: []shared.Role{shared.RoleApprover, shared.RoleAdmin}},
		ActionCancel:          cancelRule,
	},
	StatusApproved: {
		ActionMarkOrdered: {next: StatusOrdered, roles: []shared.Role{shared.RoleStorekeeper, shared.RoleAdmin}},
		ActionCancel:      cancelRule,
	},
	StatusOrdered: {
		ActionClose:  {next: StatusClosed, roles: []shared.Role{shared.RoleStorekeeper, shared.RoleAdmin}},
		ActionCancel: cancelRule,
	},
}

// Transition resolves (state, action, role) to the next state.
func Transition(current Status, action Action, role shared.Role) (Status, error) {
	rules, ok := transitions[current]
	if !ok {
		return "", shared.StateConflictf("order in state %s accepts no further actions", current)
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
	return "", fmt.Errorf("role %s may not %s a purchase order: %w", role, action, shared.ErrForbidden)
}
