package requests

import (
	"fmt"

	"github.com/stockflow-erp/stockflow/internal/shared"
)

// Action labels a lifecycle operation for the transition table.
type Action string

const (
	ActionApprove        Action = "APPROVE"
	ActionReject         Action = "REJECT"
	ActionDeliver        Action = "DELIVER"
	ActionConfirm        Action = "CONFIRM_RECEPTION"
	ActionReportIssue    Action = "REPORT_ISSUE"
	ActionResolveApprove Action = "RESOLVE_APPROVE"
	ActionResolveReject  Action = "RESOLVE_REJECT"
	ActionCancel         Action = "CANCEL"
)

type transitionRule struct {
	next  Status
	roles []shared.Role
}

// transitions is the single source of truth for which action moves which
// state where, and which roles may trigger it. Everything not listed is a
// state conflict; a listed pair attempted by the wrong role is forbidden.
var transitions = map[Status]map[Action]transitionRule{
	StatusDraft: {
		ActionCancel: {next: StatusCancelled, roles: []shared.Role{shared.RoleRequester, shared.RoleAdmin}},
	},
	StatusSubmitted: {
		ActionCancel: {next: StatusCancelled, roles: []shared.Role{shared.RoleRequester, shared.RoleAdmin}},
	},
	StatusForwarded: {
		ActionApprove: {next: StatusApproved, roles: []shared.Role{shared.RoleApprover, shared.RoleAdmin}},
		ActionReject:  {next: StatusRejected, roles: []shared.Role{shared.RoleApprover, shared.RoleAdmin}},
		ActionCancel:  {next: StatusCancelled, roles: []shared.Role{shared.RoleRequester, shared.RoleAdmin}},
	},
	StatusApproved: {
		ActionDeliver: {next: StatusDelivered, roles: []shared.Role{shared.RoleStorekeeper, shared.RoleAdmin}},
	},
	StatusDelivered: {
		ActionConfirm:     {next: StatusReceptionConfirmed, roles: []shared.Role{shared.RoleRequester, shared.RoleAdmin}},
		ActionReportIssue: {next: StatusDisputed, roles: []shared.Role{shared.RoleRequester, shared.RoleAdmin}},
	},
	StatusDisputed: {
		// Further disputes may be added while earlier ones await resolution.
		ActionReportIssue:    {next: StatusDisputed, roles: []shared.Role{shared.RoleRequester, shared.RoleAdmin}},
		ActionResolveApprove: {next: StatusDelivered, roles: []shared.Role{shared.RoleApprover, shared.RoleAdmin}},
		ActionResolveReject:  {next: StatusRejected, roles: []shared.Role{shared.RoleApprover, shared.RoleAdmin}},
	},
}

// Transition resolves (state, action, role) to the next state. An action
// undefined for the state returns ErrStateConflict so a stale client view
// surfaces as a refetchable conflict; a defined action attempted by a role
// outside its gate returns ErrForbidden.
func Transition(current Status, action Action, role shared.Role) (Status, error) {
	rules, ok := transitions[current]
	if !ok {
		return "", shared.StateConflictf("request in state %s accepts no further actions", current)
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
	return "", fmt.Errorf("role %s may not %s a request: %w", role, action, shared.ErrForbidden)
}
