package access

import (
	"context"
	"errors"
	"fmt"

	"worktrack.org/internal/auth"
)

// Action is the closed set of operations the gate decides on.
type Action string

const (
	ActionCreateTeam        Action = "create_team"
	ActionManageTeamMembers Action = "manage_team_members"
	ActionCreateProject     Action = "create_project"
	ActionCreateTask        Action = "create_task"
	ActionAssignTask        Action = "assign_task"
	ActionUpdateTaskStatus  Action = "update_task_status"
	ActionViewEntity        Action = "view_entity"
	ActionUpdateEntity      Action = "update_entity"
	ActionDeleteEntity      Action = "delete_entity"
	ActionManageUsers       Action = "manage_users"
)

// Actions lists every action.
func Actions() []Action {
	return []Action{
		ActionCreateTeam,
		ActionManageTeamMembers,
		ActionCreateProject,
		ActionCreateTask,
		ActionAssignTask,
		ActionUpdateTaskStatus,
		ActionViewEntity,
		ActionUpdateEntity,
		ActionDeleteEntity,
		ActionManageUsers,
	}
}

// Decision is the outcome of Authorize. Reason is nil when Allowed and one of
// auth.ErrInsufficientRole, auth.ErrNotTeamMember or auth.ErrInvalidRole otherwise.
type Decision struct {
	Allowed bool
	Reason  error
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason error) Decision { return Decision{Reason: reason} }

// Err returns nil for an allow and the denial reason otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	if d.Reason == nil {
		return auth.ErrInsufficientRole
	}
	return d.Reason
}

// Outcome is "allow" or "deny".
func (d Decision) Outcome() string {
	if d.Allowed {
		return "allow"
	}
	return "deny"
}

// ReasonLabel is a short stable name for the decision reason, suitable as a
// metrics label.
func (d Decision) ReasonLabel() string {
	switch {
	case d.Allowed:
		return "none"
	case errors.Is(d.Reason, auth.ErrInvalidRole):
		return "invalid_role"
	case errors.Is(d.Reason, auth.ErrNotTeamMember):
		return "not_team_member"
	default:
		return "insufficient_role"
	}
}

// DecisionObserver is notified of every decision.
type DecisionObserver func(action Action, d Decision)

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithDecisionObserver registers a callback for metrics or auditing.
func WithDecisionObserver(fn DecisionObserver) GateOption {
	return func(g *Gate) { g.observer = fn }
}

// Gate is the single authorization decision point.
type Gate struct {
	membership Membership
	observer   DecisionObserver
}

// NewGate builds a gate over the given membership source.
func NewGate(m Membership, opts ...GateOption) *Gate {
	g := &Gate{membership: m}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize decides whether p may perform action on t. The error is non-nil
// only when the membership source fails; denials are reported in Decision.
func (g *Gate) Authorize(ctx context.Context, p auth.Principal, action Action, t Target) (Decision, error) {
	d, err := g.decide(ctx, p, action, t)
	if err != nil {
		return Decision{}, err
	}
	if g.observer != nil {
		g.observer(action, d)
	}
	return d, nil
}

// Require is Authorize folded into a single error: nil on allow, the denial
// reason on deny, or the storage error.
func (g *Gate) Require(ctx context.Context, p auth.Principal, action Action, t Target) error {
	d, err := g.Authorize(ctx, p, action, t)
	if err != nil {
		return err
	}
	return d.Err()
}

func (g *Gate) decide(ctx context.Context, p auth.Principal, action Action, t Target) (Decision, error) {
	if !p.Role.Valid() {
		return deny(fmt.Errorf("%w: %q", auth.ErrInvalidRole, string(p.Role))), nil
	}
	if p.IsAdmin() {
		return allow(), nil
	}
	manages := p.Role == auth.RoleManager && t.TeamManagerID != "" && t.TeamManagerID == p.ID

	switch action {
	case ActionCreateTeam:
		if p.AtLeast(auth.RoleManager) {
			return allow(), nil
		}
		return deny(auth.ErrInsufficientRole), nil

	case ActionCreateProject, ActionCreateTask, ActionAssignTask, ActionManageTeamMembers:
		if manages {
			return allow(), nil
		}
		return deny(auth.ErrInsufficientRole), nil

	case ActionUpdateEntity:
		if manages {
			return allow(), nil
		}
		if t.Kind == KindUser {
			return deny(auth.ErrInsufficientRole), nil
		}
		return g.membershipDenial(ctx, p, t)

	case ActionUpdateTaskStatus:
		if p.Is(t.AssigneeID) || p.Is(t.CreatorID) || manages {
			return allow(), nil
		}
		return g.membershipDenial(ctx, p, t)

	case ActionViewEntity:
		scope, err := For(p, t.Kind)
		if err != nil {
			return Decision{}, err
		}
		ok, err := scope.Matches(ctx, t, g.membership)
		if err != nil {
			return Decision{}, err
		}
		if ok {
			return allow(), nil
		}
		if t.Kind == KindUser {
			return deny(auth.ErrInsufficientRole), nil
		}
		return g.membershipDenial(ctx, p, t)

	case ActionDeleteEntity, ActionManageUsers:
		return deny(auth.ErrInsufficientRole), nil
	}
	return deny(auth.ErrInsufficientRole), nil
}

// membershipDenial picks the reason for a denied team-scoped mutation:
// members lack the role, outsiders lack the membership.
func (g *Gate) membershipDenial(ctx context.Context, p auth.Principal, t Target) (Decision, error) {
	if t.TeamID == "" || g.membership == nil {
		return deny(auth.ErrNotTeamMember), nil
	}
	member, err := g.membership.IsTeamMember(ctx, t.TeamID, p.ID)
	if err != nil {
		return Decision{}, err
	}
	if member {
		return deny(auth.ErrInsufficientRole), nil
	}
	return deny(auth.ErrNotTeamMember), nil
}
