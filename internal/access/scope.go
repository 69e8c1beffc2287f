// Package access decides what a principal may see and do. Scope describes the
// visible subset of an entity kind; Gate turns an action on a target into an
// allow or deny decision.
package access

import (
	"context"
	"fmt"
	"strings"

	"worktrack.org/internal/auth"
)

// Kind names an entity kind subject to visibility rules.
type Kind string

const (
	KindTeam    Kind = "team"
	KindProject Kind = "project"
	KindTask    Kind = "task"
	KindUser    Kind = "user"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindTeam, KindProject, KindTask, KindUser:
		return true
	}
	return false
}

// Scope is a disjunction of row predicates over one entity kind, relative to
// UserID. A scope with no clause set matches nothing.
//
//	All      every row
//	Managed  the row's team is managed by UserID (users: member of such a team)
//	Member   UserID is a member of the row's team
//	Involved UserID created the task or is its assignee
//	Self     the row is the user UserID
type Scope struct {
	Kind     Kind
	UserID   string
	All      bool
	Managed  bool
	Member   bool
	Involved bool
	Self     bool
}

// Empty reports whether the scope admits no row.
func (s Scope) Empty() bool {
	return !s.All && !s.Managed && !s.Member && !s.Involved && !s.Self
}

func (s Scope) String() string {
	if s.All {
		return string(s.Kind) + ":all"
	}
	var parts []string
	for _, c := range []struct {
		on   bool
		name string
	}{{s.Managed, "managed"}, {s.Member, "member"}, {s.Involved, "involved"}, {s.Self, "self"}} {
		if c.on {
			parts = append(parts, c.name)
		}
	}
	if len(parts) == 0 {
		return string(s.Kind) + ":none"
	}
	return fmt.Sprintf("%s:%s(%s)", s.Kind, strings.Join(parts, "|"), s.UserID)
}

// For returns the visibility scope of p over kind.
func For(p auth.Principal, kind Kind) (Scope, error) {
	if !kind.Valid() {
		return Scope{}, fmt.Errorf("%w: unknown entity kind %q", auth.ErrInvalidInput, string(kind))
	}
	if !p.Role.Valid() {
		return Scope{}, fmt.Errorf("%w: %q", auth.ErrInvalidRole, string(p.Role))
	}
	s := Scope{Kind: kind, UserID: p.ID}
	switch p.Role {
	case auth.RoleAdmin:
		s.All = true
	case auth.RoleManager:
		s.Managed = true
		s.Self = kind == KindUser
		s.Involved = kind == KindTask
	case auth.RoleEmployee:
		switch kind {
		case KindUser:
			s.Self = true
		case KindTask:
			s.Member = true
			s.Involved = true
		default:
			s.Member = true
		}
	}
	return s, nil
}

// Membership answers the relationship questions a scope or gate cannot
// answer from the target alone.
type Membership interface {
	IsTeamMember(ctx context.Context, teamID, userID string) (bool, error)
	ManagesUser(ctx context.Context, managerID, userID string) (bool, error)
}

// Target is the entity an action applies to, flattened to the fields the
// rules read. For teams TeamID equals ID; for users TeamID is empty.
type Target struct {
	Kind          Kind
	ID            string
	TeamID        string
	TeamManagerID string
	CreatorID     string
	AssigneeID    string
}

// Matches evaluates s against a single target.
func (s Scope) Matches(ctx context.Context, t Target, m Membership) (bool, error) {
	if s.All {
		return true, nil
	}
	if t.Kind != s.Kind || s.UserID == "" {
		return false, nil
	}
	if s.Self && t.Kind == KindUser && t.ID == s.UserID {
		return true, nil
	}
	if s.Involved && (t.CreatorID == s.UserID || t.AssigneeID == s.UserID) {
		return true, nil
	}
	if s.Managed {
		if t.Kind == KindUser && m != nil {
			ok, err := m.ManagesUser(ctx, s.UserID, t.ID)
			if err != nil || ok {
				return ok, err
			}
		} else if t.TeamManagerID != "" && t.TeamManagerID == s.UserID {
			return true, nil
		}
	}
	if s.Member && t.TeamID != "" && m != nil {
		return m.IsTeamMember(ctx, t.TeamID, s.UserID)
	}
	return false, nil
}
