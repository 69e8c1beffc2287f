// Package tracker implements team, project, task and user administration on
// top of the access gate. Every operation takes the acting principal and asks
// the gate before reading a single entity or writing anything; list
// operations push the principal's visibility scope into the store query.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"worktrack.org/internal/access"
	"worktrack.org/internal/auth"
	"worktrack.org/internal/ids"
)

// Accounts creates users on behalf of an administrator.
type Accounts interface {
	Register(ctx context.Context, in auth.Registration) (auth.User, error)
}

// Sessions revokes every session of a user.
type Sessions interface {
	RevokeAll(ctx context.Context, userID string) (int, error)
}

// Service coordinates the store and the gate.
type Service struct {
	store    Store
	users    auth.UserStore
	gate     *access.Gate
	accounts Accounts
	sessions Sessions
	now      func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithAccounts enables CreateUser.
func WithAccounts(a Accounts) Option {
	return func(s *Service) { s.accounts = a }
}

// WithSessions makes DeactivateUser revoke the user's sessions.
func WithSessions(sess Sessions) Option {
	return func(s *Service) { s.sessions = sess }
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService wires the tracker.
func NewService(store Store, users auth.UserStore, gate *access.Gate, opts ...Option) (*Service, error) {
	if store == nil || users == nil || gate == nil {
		return nil, errors.New("tracker: store, users and gate are required")
	}
	s := &Service{store: store, users: users, gate: gate, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) clock() time.Time { return s.now().UTC() }

// Teams

func (s *Service) CreateTeam(ctx context.Context, p auth.Principal, in NewTeam) (Team, error) {
	if err := s.gate.Require(ctx, p, access.ActionCreateTeam, access.Target{Kind: access.KindTeam}); err != nil {
		return Team{}, err
	}
	name, err := requireText("name", in.Name, 200)
	if err != nil {
		return Team{}, err
	}
	managerID := strings.TrimSpace(in.ManagerID)
	if managerID == "" {
		managerID = p.ID
	}
	if managerID != p.ID && !p.IsAdmin() {
		return Team{}, auth.ErrInsufficientRole
	}
	if err := s.requireManager(ctx, managerID); err != nil {
		return Team{}, err
	}
	now := s.clock()
	t := Team{
		ID:          ids.New(),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		ManagerID:   managerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateTeam(ctx, &t); err != nil {
		return Team{}, err
	}
	return t, nil
}

func (s *Service) GetTeam(ctx context.Context, p auth.Principal, id string) (Team, error) {
	t, err := s.store.GetTeam(ctx, id)
	if err != nil {
		return Team{}, err
	}
	if err := s.gate.Require(ctx, p, access.ActionViewEntity, teamTarget(t)); err != nil {
		return Team{}, err
	}
	return t, nil
}

func (s *Service) ListTeams(ctx context.Context, p auth.Principal, page Page) ([]Team, error) {
	page, err := page.Normalize()
	if err != nil {
		return nil, err
	}
	scope, err := access.For(p, access.KindTeam)
	if err != nil {
		return nil, err
	}
	return s.store.ListTeams(ctx, scope, page)
}

func (s *Service) AddTeamMember(ctx context.Context, p auth.Principal, teamID, userID string) error {
	t, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if err := s.gate.Require(ctx, p, access.ActionManageTeamMembers, teamTarget(t)); err != nil {
		return err
	}
	u, err := s.users.GetUser(ctx, strings.TrimSpace(userID))
	if err != nil {
		return err
	}
	if !u.Active {
		return fmt.Errorf("%w: user is deactivated", auth.ErrInvalidInput)
	}
	return s.store.AddTeamMember(ctx, t.ID, u.ID, s.clock())
}

func (s *Service) RemoveTeamMember(ctx context.Context, p auth.Principal, teamID, userID string) error {
	t, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if err := s.gate.Require(ctx, p, access.ActionManageTeamMembers, teamTarget(t)); err != nil {
		return err
	}
	return s.store.RemoveTeamMember(ctx, t.ID, strings.TrimSpace(userID), s.clock())
}

// UpdateTeam edits a team. Handing the team to another manager is reserved
// to admins.
func (s *Service) UpdateTeam(ctx context.Context, p auth.Principal, id string, in TeamUpdate) (Team, error) {
	t, err := s.store.GetTeam(ctx, strings.TrimSpace(id))
	if err != nil {
		return Team{}, err
	}
	if err := s.gate.Require(ctx, p, access.ActionUpdateEntity, teamTarget(t)); err != nil {
		return Team{}, err
	}
	if in.Name != nil {
		if t.Name, err = requireText("name", *in.Name, 200); err != nil {
			return Team{}, err
		}
	}
	if in.Description != nil {
		t.Description = strings.TrimSpace(*in.Description)
	}
	if in.ManagerID != nil {
		managerID := strings.TrimSpace(*in.ManagerID)
		if managerID != t.ManagerID {
			if !p.IsAdmin() {
				return Team{}, auth.ErrInsufficientRole
			}
			if err := s.requireManager(ctx, managerID); err != nil {
				return Team{}, err
			}
			t.ManagerID = managerID
		}
	}
	t.UpdatedAt = s.clock()
	if err := s.store.UpdateTeam(ctx, t); err != nil {
		return Team{}, err
	}
	return t, nil
}

func (s *Service) DeleteTeam(ctx context.Context, p auth.Principal, id string) error {
	t, err := s.store.GetTeam(ctx, id)
	if err != nil {
		return err
	}
	if err := s.gate.Require(ctx, p, access.ActionDeleteEntity, teamTarget(t)); err != nil {
		return err
	}
	return s.store.DeleteTeam(ctx, t.ID)
}

// Projects

func (s *Service) CreateProject(ctx context.Context, p auth.Principal, in NewProject) (Project, error) {
	t, err := s.store.GetTeam(ctx, strings.TrimSpace(in.TeamID))
	if err != nil {
		return Project{}, err
	}
	if err := s.gate.Require(ctx, p, access.ActionCreateProject, teamTarget(t)); err != nil {
		return Project{}, err
	}
	name, err := requireText("name", in.Name, 200)
	if err != nil {
		return Project{}, err
	}
	status := in.Status
	if status == "" {
		status = ProjectPlanning
	}
	if !status.Valid() {
		return Project{}, fmt.Errorf("%w: unknown project status %q", auth.ErrInvalidInput, string(status))
	}
	priority, err := defaultPriority(in.Priority)
	if err != nil {
		return Project{}, err
	}
	now := s.clock()
	proj := Project{
		ID:          ids.New(),
		TeamID:      t.ID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		CreatedBy:   p.ID,
		Status:      status,
		Priority:    priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateProject(ctx, &proj); err != nil {
		return Project{}, err
	}
	return proj, nil
}

func (s *Service) GetProject(ctx context.Context, p auth.Principal, id string) (Project, error) {
	proj, target, err := s.projectTarget(ctx, id)
	if err != nil {
		return Project{}, err
	}
	if err := s.gate.Require(ctx, p, access.ActionViewEntity, target); err != nil {
		return Project{}, err
	}
	return proj, nil
}

func (s *Service) ListProjects(ctx context.Context, p auth.Principal, f ProjectFilter) ([]Project, error) {
	page, err := f.Page.Normalize()
	if err != nil {
		return nil, err
	}
	f.Page = page
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown project status %q", auth.ErrInvalidInput, string(f.Status))
	}
	if f.Priority != "" && !f.Priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", auth.ErrInvalidInput, string(f.Priority))
	}
	scope, err := access.For(p, access.KindProject)
	if err != nil {
		return nil, err
	}
	return s.store.ListProjects(ctx, scope, f)
}

// UpdateProject edits a project of a team the caller manages.
func (s *Service) UpdateProject(ctx context.Context, p auth.Principal, id string, in ProjectUpdate) (Project, error) {
	proj, target, err := s.projectTarget(ctx, id)
	if err != nil {
		return Project{}, err
	}
	if err := s.gate.Require(ctx, p, access.ActionUpdateEntity, target); err != nil {
		return Project{}, err
	}
	if in.Name != nil {
		if proj.Name, err = requireText("name", *in.Name, 200); err != nil {
			return Project{}, err
		}
	}
	if in.Description != nil {
		proj.Description = strings.TrimSpace(*in.Description)
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return Project{}, fmt.Errorf("%w: unknown project status %q", auth.ErrInvalidInput, string(*in.Status))
		}
		proj.Status = *in.Status
	}
	if in.Priority != nil {
		if !in.Priority.Valid() {
			return Project{}, fmt.Errorf("%w: unknown priority %q", auth.ErrInvalidInput, string(*in.Priority))
		}
		proj.Priority = *in.Priority
	}
	proj.UpdatedAt = s.clock()
	if err := s.store.UpdateProject(ctx, proj); err != nil {
		return Project{}, err
	}
	return proj, nil
}

func (s *Service) UpdateProjectStatus(ctx context.Context, p auth.Principal, id string, status ProjectStatus) (Project, error) {
	return s.UpdateProject(ctx, p, id, ProjectUpdate{Status: &status})
}

// ProjectStatistics counts the project's tasks visible to the caller.
func (s *Service) ProjectStatistics(ctx context.Context, p auth.Principal, id string) (ProjectStatistics, error) {
	proj, target, err := s.projectTarget(ctx, id)
	if err != nil {
		return ProjectStatistics{}, err
	}
	if err := s.gate.Require(ctx, p, access.ActionViewEntity, target); err != nil {
		return ProjectStatistics{}, err
	}
	counts, err := s.countTasks(ctx, p, TaskFilter{ProjectID: proj.ID})
	if err != nil {
		return ProjectStatistics{}, err
	}
	return ProjectStatistics{
		ProjectID: proj.ID,
		Name:      proj.Name,
		Status:    proj.Status,
		Progress:  counts.Progress(),
		Tasks:     counts,
	}, nil
}

func (s *Service) DeleteProject(ctx context.Context, p auth.Principal, id string) error {
	proj, target, err := s.projectTarget(ctx, id)
	if err != nil {
		return err
	}
	if err := s.gate.Require(ctx, p, access.ActionDeleteEntity, target); err != nil {
		return err
	}
	return s.store.DeleteProject(ctx, proj.ID)
}

// Tasks

func (s *Service) CreateTask(ctx context.Context, p auth.Principal, in NewTask) (Task, error) {
	proj, err := s.store.GetProject(ctx, strings.TrimSpace(in.ProjectID))
	if err != nil {
		return Task{}, err
	}
	t, err := s.store.GetTeam(ctx, proj.TeamID)
	if err != nil {
		return Task{}, err
	}
	target := access.Target{Kind: access.KindTask, TeamID: t.ID, TeamManagerID: t.ManagerID}
	if err := s.gate.Require(ctx, p, access.ActionCreateTask, target); err != nil {
		return Task{}, err
	}
	assignee := strings.TrimSpace(in.AssigneeID)
	if assignee != "" {
		if err := s.gate.Require(ctx, p, access.ActionAssignTask, target); err != nil {
			return Task{}, err
		}
		if err := s.requireActiveAssignee(ctx, assignee); err != nil {
			return Task{}, err
		}
	}
	title, err := requireText("title", in.Title, 300)
	if err != nil {
		return Task{}, err
	}
	priority, err := defaultPriority(in.Priority)
	if err != nil {
		return Task{}, err
	}
	now := s.clock()
	task := Task{
		ID:          ids.New(),
		ProjectID:   proj.ID,
		TeamID:      t.ID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		CreatedBy:   p.ID,
		AssigneeID:  assignee,
		Status:      TaskTodo,
		Priority:    priority,
		DueAt:       in.DueAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if task.DueAt != nil {
		due := task.DueAt.UTC()
		task.DueAt = &due
	}
	if err := s.store.CreateTask(ctx, &task); err != nil {
		return Task{}, err
	}
	return task, nil
}

func (s *Service) GetTask(ctx context.Context, p auth.Principal, id string) (Task, error) {
	task, target, err := s.taskTarget(ctx, id)
	if err != nil {
		return Task{}, err
	}
	if err := s.gate.Require(ctx, p, access.ActionViewEntity, target); err != nil {
		return Task{}, err
	}
	return task, nil
}

func (s *Service) ListTasks(ctx context.Context, p auth.Principal, f TaskFilter) ([]Task, error) {
	page, err := f.Page.Normalize()
	if err != nil {
		return nil, err
	}
	f.Page = page
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown task status %q", auth.ErrInvalidInput, string(f.Status))
	}
	if f.Priority != "" && !f.Priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", auth.ErrInvalidInput, string(f.Priority))
	}
	if f.Overdue && f.Now.IsZero() {
		f.Now = s.clock()
	}
	scope, err := access.For(p, access.KindTask)
	if err != nil {
		return nil, err
	}
	return s.store.ListTasks(ctx, scope, f)
}

// AssignTask sets or clears the assignee. A non-empty assignee must be a
// member of the task's team whatever the caller's role.
func (s *Service) AssignTask(ctx context.Context, p auth.Principal, taskID, assigneeID string) (Task, error) {
	_, target, err := s.taskTarget(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	if err := s.gate.Require(ctx, p, access.ActionAssignTask, target); err != nil {
		return Task{}, err
	}
	assignee := strings.TrimSpace(assigneeID)
	if assignee != "" {
		if err := s.requireActiveAssignee(ctx, assignee); err != nil {
			return Task{}, err
		}
	}
	return s.store.AssignTask(ctx, target.ID, assignee, s.clock())
}

func (s *Service) UpdateTaskStatus(ctx context.Context, p auth.Principal, taskID string, status TaskStatus) (Task, error) {
	if !status.Valid() {
		return Task{}, fmt.Errorf("%w: unknown task status %q", auth.ErrInvalidInput, string(status))
	}
	_, target, err := s.taskTarget(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	if err := s.gate.Require(ctx, p, access.ActionUpdateTaskStatus, target); err != nil {
		return Task{}, err
	}
	return s.store.UpdateTaskStatus(ctx, target.ID, status, s.clock())
}

// UpdateTask edits the descriptive fields of a task in a team the caller
// manages.
func (s *Service) UpdateTask(ctx context.Context, p auth.Principal, id string, in TaskUpdate) (Task, error) {
	if in.ClearDueAt && in.DueAt != nil {
		return Task{}, fmt.Errorf("%w: due_at and clear_due_at are exclusive", auth.ErrInvalidInput)
	}
	task, target, err := s.taskTarget(ctx, id)
	if err != nil {
		return Task{}, err
	}
	if err := s.gate.Require(ctx, p, access.ActionUpdateEntity, target); err != nil {
		return Task{}, err
	}
	if in.Title != nil {
		if task.Title, err = requireText("title", *in.Title, 300); err != nil {
			return Task{}, err
		}
	}
	if in.Description != nil {
		task.Description = strings.TrimSpace(*in.Description)
	}
	if in.Priority != nil {
		if !in.Priority.Valid() {
			return Task{}, fmt.Errorf("%w: unknown priority %q", auth.ErrInvalidInput, string(*in.Priority))
		}
		task.Priority = *in.Priority
	}
	switch {
	case in.ClearDueAt:
		task.DueAt = nil
	case in.DueAt != nil:
		due := in.DueAt.UTC()
		task.DueAt = &due
	}
	task.UpdatedAt = s.clock()
	if err := s.store.UpdateTask(ctx, task); err != nil {
		return Task{}, err
	}
	return task, nil
}

// TaskStatistics counts the visible tasks assigned to and created by the caller.
func (s *Service) TaskStatistics(ctx context.Context, p auth.Principal) (TaskStatistics, error) {
	assigned, err := s.countTasks(ctx, p, TaskFilter{AssigneeID: p.ID})
	if err != nil {
		return TaskStatistics{}, err
	}
	created, err := s.countTasks(ctx, p, TaskFilter{CreatorID: p.ID})
	if err != nil {
		return TaskStatistics{}, err
	}
	return TaskStatistics{Assigned: assigned, Created: created}, nil
}

func (s *Service) countTasks(ctx context.Context, p auth.Principal, f TaskFilter) (TaskCounts, error) {
	scope, err := access.For(p, access.KindTask)
	if err != nil {
		return TaskCounts{}, err
	}
	f.Now = s.clock()
	counts, err := s.store.CountTasks(ctx, scope, f)
	if err != nil {
		return TaskCounts{}, err
	}
	if counts.ByStatus == nil {
		counts.ByStatus = map[TaskStatus]int{}
	}
	return counts, nil
}

// Comments

// AddComment records a comment on a task the caller can see.
func (s *Service) AddComment(ctx context.Context, p auth.Principal, taskID, body string) (Comment, error) {
	_, target, err := s.taskTarget(ctx, taskID)
	if err != nil {
		return Comment{}, err
	}
	if err := s.gate.Require(ctx, p, access.ActionViewEntity, target); err != nil {
		return Comment{}, err
	}
	text, err := requireText("body", body, 5000)
	if err != nil {
		return Comment{}, err
	}
	c := Comment{
		ID:        ids.New(),
		TaskID:    target.ID,
		AuthorID:  p.ID,
		Body:      text,
		CreatedAt: s.clock(),
	}
	if err := s.store.AddComment(ctx, &c); err != nil {
		return Comment{}, err
	}
	return c, nil
}

func (s *Service) ListComments(ctx context.Context, p auth.Principal, taskID string, page Page) ([]Comment, error) {
	page, err := page.Normalize()
	if err != nil {
		return nil, err
	}
	_, target, err := s.taskTarget(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Require(ctx, p, access.ActionViewEntity, target); err != nil {
		return nil, err
	}
	return s.store.ListComments(ctx, target.ID, page)
}

func (s *Service) DeleteTask(ctx context.Context, p auth.Principal, id string) error {
	_, target, err := s.taskTarget(ctx, id)
	if err != nil {
		return err
	}
	if err := s.gate.Require(ctx, p, access.ActionDeleteEntity, target); err != nil {
		return err
	}
	return s.store.DeleteTask(ctx, target.ID)
}

// Users

// CreateUser registers an account with an explicit role.
func (s *Service) CreateUser(ctx context.Context, p auth.Principal, in auth.Registration) (auth.User, error) {
	if err := s.gate.Require(ctx, p, access.ActionManageUsers, access.Target{Kind: access.KindUser}); err != nil {
		return auth.User{}, err
	}
	if s.accounts == nil {
		return auth.User{}, errors.New("tracker: account registration is not configured")
	}
	return s.accounts.Register(ctx, in)
}

func (s *Service) GetUser(ctx context.Context, p auth.Principal, id string) (auth.User, error) {
	u, err := s.users.GetUser(ctx, strings.TrimSpace(id))
	if err != nil {
		return auth.User{}, err
	}
	if err := s.gate.Require(ctx, p, access.ActionViewEntity, access.Target{Kind: access.KindUser, ID: u.ID}); err != nil {
		return auth.User{}, err
	}
	return u, nil
}

func (s *Service) ListUsers(ctx context.Context, p auth.Principal, page Page) ([]auth.User, error) {
	page, err := page.Normalize()
	if err != nil {
		return nil, err
	}
	scope, err := access.For(p, access.KindUser)
	if err != nil {
		return nil, err
	}
	return s.store.ListUsers(ctx, scope, page)
}

// SetUserRole changes a role. Demoting a user who still manages a team to
// employee is rejected so every team keeps a manager-level manager.
func (s *Service) SetUserRole(ctx context.Context, p auth.Principal, userID string, raw string) (auth.User, error) {
	u, err := s.users.GetUser(ctx, strings.TrimSpace(userID))
	if err != nil {
		return auth.User{}, err
	}
	if err := s.gate.Require(ctx, p, access.ActionManageUsers, access.Target{Kind: access.KindUser, ID: u.ID}); err != nil {
		return auth.User{}, err
	}
	role, err := auth.ParseRole(raw)
	if err != nil {
		return auth.User{}, err
	}
	if p.Is(u.ID) {
		return auth.User{}, fmt.Errorf("%w: cannot change your own role", auth.ErrInvalidInput)
	}
	if role == auth.RoleEmployee && u.Role != auth.RoleEmployee {
		n, err := s.store.CountManagedTeams(ctx, u.ID)
		if err != nil {
			return auth.User{}, err
		}
		if n > 0 {
			return auth.User{}, fmt.Errorf("%w: user still manages %d team(s)", auth.ErrConflict, n)
		}
	}
	if err := s.users.SetRole(ctx, u.ID, role); err != nil {
		return auth.User{}, err
	}
	u.Role = role
	return u, nil
}

// DeactivateUser soft-deletes an account and ends its sessions.
func (s *Service) DeactivateUser(ctx context.Context, p auth.Principal, userID string) error {
	u, err := s.users.GetUser(ctx, strings.TrimSpace(userID))
	if err != nil {
		return err
	}
	if err := s.gate.Require(ctx, p, access.ActionManageUsers, access.Target{Kind: access.KindUser, ID: u.ID}); err != nil {
		return err
	}
	if p.Is(u.ID) {
		return fmt.Errorf("%w: cannot deactivate yourself", auth.ErrInvalidInput)
	}
	if err := s.users.SetActive(ctx, u.ID, false); err != nil {
		return err
	}
	if s.sessions != nil {
		if _, err := s.sessions.RevokeAll(ctx, u.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) projectTarget(ctx context.Context, id string) (Project, access.Target, error) {
	proj, err := s.store.GetProject(ctx, strings.TrimSpace(id))
	if err != nil {
		return Project{}, access.Target{}, err
	}
	t, err := s.store.GetTeam(ctx, proj.TeamID)
	if err != nil {
		return Project{}, access.Target{}, err
	}
	return proj, access.Target{
		Kind:          access.KindProject,
		ID:            proj.ID,
		TeamID:        t.ID,
		TeamManagerID: t.ManagerID,
		CreatorID:     proj.CreatedBy,
	}, nil
}

func (s *Service) taskTarget(ctx context.Context, id string) (Task, access.Target, error) {
	task, err := s.store.GetTask(ctx, strings.TrimSpace(id))
	if err != nil {
		return Task{}, access.Target{}, err
	}
	t, err := s.store.GetTeam(ctx, task.TeamID)
	if err != nil {
		return Task{}, access.Target{}, err
	}
	return task, access.Target{
		Kind:          access.KindTask,
		ID:            task.ID,
		TeamID:        t.ID,
		TeamManagerID: t.ManagerID,
		CreatorID:     task.CreatedBy,
		AssigneeID:    task.AssigneeID,
	}, nil
}

// requireManager checks that id names an active manager or admin.
func (s *Service) requireManager(ctx context.Context, id string) error {
	manager, err := s.users.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return fmt.Errorf("%w: manager does not exist", auth.ErrInvalidInput)
		}
		return err
	}
	if !manager.Active || !manager.Principal().AtLeast(auth.RoleManager) {
		return fmt.Errorf("%w: team manager must be an active manager or admin", auth.ErrInvalidInput)
	}
	return nil
}

// requireActiveAssignee rejects deactivated accounts and reports unknown ids
// as non-members.
func (s *Service) requireActiveAssignee(ctx context.Context, id string) error {
	u, err := s.users.GetUser(ctx, id)
	switch {
	case errors.Is(err, auth.ErrNotFound):
		return auth.ErrAssigneeNotMember
	case err != nil:
		return err
	case !u.Active:
		return fmt.Errorf("%w: assignee is deactivated", auth.ErrInvalidInput)
	}
	return nil
}

func teamTarget(t Team) access.Target {
	return access.Target{Kind: access.KindTeam, ID: t.ID, TeamID: t.ID, TeamManagerID: t.ManagerID}
}

func defaultPriority(p Priority) (Priority, error) {
	if p == "" {
		return PriorityMedium, nil
	}
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown priority %q", auth.ErrInvalidInput, string(p))
	}
	return p, nil
}
