package tracker

import (
	"context"
	"time"

	"worktrack.org/internal/access"
	"worktrack.org/internal/auth"
)

// Store persists teams, projects and tasks. List methods apply the scope
// inside the query. Missing rows yield auth.ErrNotFound and unique
// violations auth.ErrConflict.
type Store interface {
	access.Membership

	CreateTeam(ctx context.Context, t *Team) error
	// GetTeam returns the team with Members populated.
	GetTeam(ctx context.Context, id string) (Team, error)
	ListTeams(ctx context.Context, scope access.Scope, page Page) ([]Team, error)
	AddTeamMember(ctx context.Context, teamID, userID string, at time.Time) error
	// RemoveTeamMember deletes the membership and unassigns the member's
	// tasks in that team in the same transaction.
	RemoveTeamMember(ctx context.Context, teamID, userID string, at time.Time) error
	CountManagedTeams(ctx context.Context, userID string) (int, error)
	// UpdateTeam writes name, description, manager and updated time.
	UpdateTeam(ctx context.Context, t Team) error
	DeleteTeam(ctx context.Context, id string) error

	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id string) (Project, error)
	ListProjects(ctx context.Context, scope access.Scope, f ProjectFilter) ([]Project, error)
	// UpdateProject writes name, description, status, priority and updated time.
	UpdateProject(ctx context.Context, p Project) error
	DeleteProject(ctx context.Context, id string) error

	// CreateTask and AssignTask reject an assignee that is not a member of
	// the task's team with auth.ErrAssigneeNotMember, checked in the write
	// itself.
	CreateTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, id string) (Task, error)
	ListTasks(ctx context.Context, scope access.Scope, f TaskFilter) ([]Task, error)
	AssignTask(ctx context.Context, taskID, assigneeID string, at time.Time) (Task, error)
	// UpdateTaskStatus applies the status and its timestamps as Task.SetStatus does.
	UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, at time.Time) (Task, error)
	// UpdateTask writes title, description, priority, due time and updated time.
	UpdateTask(ctx context.Context, t Task) error
	DeleteTask(ctx context.Context, id string) error
	// CountTasks aggregates the tasks matching scope and filter. Paging is ignored.
	CountTasks(ctx context.Context, scope access.Scope, f TaskFilter) (TaskCounts, error)

	AddComment(ctx context.Context, c *Comment) error
	// ListComments returns the comments of a task, oldest first.
	ListComments(ctx context.Context, taskID string, page Page) ([]Comment, error)

	ListUsers(ctx context.Context, scope access.Scope, page Page) ([]auth.User, error)
}
