// Package memory is an in-process implementation of the user and tracker
// stores. List queries walk the rows once and apply the visibility scope per
// row, the same predicate the SQL store renders into its WHERE clause.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"worktrack.org/internal/access"
	"worktrack.org/internal/auth"
	"worktrack.org/internal/ids"
	"worktrack.org/internal/tracker"
)

var (
	_ tracker.Store        = (*Store)(nil)
	_ auth.UserStore       = (*Store)(nil)
	_ auth.PasswordHistory = (*Store)(nil)
)

type passwordRecord struct {
	hash string
	at   time.Time
}

// Store keeps every entity in maps guarded by one RWMutex.
type Store struct {
	mu       sync.RWMutex
	now      func() time.Time
	users    map[string]auth.User
	emails   map[string]string
	history  map[string][]passwordRecord
	teams    map[string]tracker.Team
	members  map[string]map[string]time.Time
	projects map[string]tracker.Project
	tasks    map[string]tracker.Task
	comments map[string][]tracker.Comment
}

// New creates an empty store.
func New() *Store {
	return &Store{
		now:      time.Now,
		users:    make(map[string]auth.User),
		emails:   make(map[string]string),
		history:  make(map[string][]passwordRecord),
		teams:    make(map[string]tracker.Team),
		members:  make(map[string]map[string]time.Time),
		projects: make(map[string]tracker.Project),
		tasks:    make(map[string]tracker.Task),
		comments: make(map[string][]tracker.Comment),
	}
}

// Users

func (s *Store) CreateUser(_ context.Context, u *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(strings.TrimSpace(u.Email))
	if _, ok := s.emails[email]; ok {
		return auth.ErrConflict
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	now := s.now().UTC()
	u.Email = email
	u.CreatedAt, u.UpdatedAt = now, now
	s.users[u.ID] = *u
	s.emails[email] = u.ID
	s.history[u.ID] = []passwordRecord{{hash: u.PasswordHash, at: now}}
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return u, nil
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) UpdatePassword(_ context.Context, userID, hash string) error {
	return s.mutateUser(userID, func(u *auth.User, now time.Time) {
		u.PasswordHash = hash
		s.history[userID] = append([]passwordRecord{{hash: hash, at: now}}, s.history[userID]...)
	})
}

func (s *Store) SetRole(_ context.Context, userID string, role auth.Role) error {
	if !role.Valid() {
		return auth.ErrInvalidRole
	}
	return s.mutateUser(userID, func(u *auth.User, _ time.Time) { u.Role = role })
}

func (s *Store) SetActive(_ context.Context, userID string, active bool) error {
	return s.mutateUser(userID, func(u *auth.User, _ time.Time) { u.Active = active })
}

func (s *Store) UpdateName(_ context.Context, userID, first, last string) error {
	return s.mutateUser(userID, func(u *auth.User, _ time.Time) {
		u.FirstName, u.LastName = first, last
	})
}

func (s *Store) mutateUser(userID string, fn func(*auth.User, time.Time)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	now := s.now().UTC()
	fn(&u, now)
	u.UpdatedAt = now
	s.users[userID] = u
	return nil
}

func (s *Store) RecentPasswordHashes(_ context.Context, userID string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.history[userID]
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.hash)
	}
	return out, nil
}

func (s *Store) ListUsers(_ context.Context, scope access.Scope, page tracker.Page) ([]auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []auth.User
	for _, u := range s.users {
		if s.userVisible(scope, u.ID) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, page), nil
}

// Membership

func (s *Store) IsTeamMember(_ context.Context, teamID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isMember(teamID, userID), nil
}

func (s *Store) ManagesUser(_ context.Context, managerID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.managesUser(managerID, userID), nil
}

func (s *Store) isMember(teamID, userID string) bool {
	_, ok := s.members[teamID][userID]
	return ok
}

func (s *Store) managesUser(managerID, userID string) bool {
	for id, t := range s.teams {
		if t.ManagerID == managerID && s.isMember(id, userID) {
			return true
		}
	}
	return false
}

// Teams

func (s *Store) CreateTeam(_ context.Context, t *tracker.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[t.ID]; ok {
		return auth.ErrConflict
	}
	if _, ok := s.users[t.ManagerID]; !ok {
		return auth.ErrNotFound
	}
	stored := *t
	stored.Members = nil
	s.teams[t.ID] = stored
	s.members[t.ID] = make(map[string]time.Time)
	return nil
}

func (s *Store) GetTeam(_ context.Context, id string) (tracker.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.teams[id]
	if !ok {
		return tracker.Team{}, auth.ErrNotFound
	}
	t.Members = make([]string, 0, len(s.members[id]))
	for uid := range s.members[id] {
		t.Members = append(t.Members, uid)
	}
	sort.Strings(t.Members)
	return t, nil
}

func (s *Store) ListTeams(_ context.Context, scope access.Scope, page tracker.Page) ([]tracker.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []tracker.Team
	for _, t := range s.teams {
		if s.rowVisible(scope, t.ID, "", "") {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, page), nil
}

func (s *Store) AddTeamMember(_ context.Context, teamID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[teamID]; !ok {
		return auth.ErrNotFound
	}
	if _, ok := s.users[userID]; !ok {
		return auth.ErrNotFound
	}
	if s.isMember(teamID, userID) {
		return auth.ErrConflict
	}
	s.members[teamID][userID] = at
	return nil
}

func (s *Store) RemoveTeamMember(_ context.Context, teamID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isMember(teamID, userID) {
		return auth.ErrNotFound
	}
	delete(s.members[teamID], userID)
	for id, task := range s.tasks {
		if task.TeamID == teamID && task.AssigneeID == userID {
			task.AssigneeID = ""
			task.UpdatedAt = at
			s.tasks[id] = task
		}
	}
	return nil
}

func (s *Store) CountManagedTeams(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, t := range s.teams {
		if t.ManagerID == userID {
			n++
		}
	}
	return n, nil
}

func (s *Store) UpdateTeam(_ context.Context, t tracker.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.teams[t.ID]
	if !ok {
		return auth.ErrNotFound
	}
	if _, ok := s.users[t.ManagerID]; !ok {
		return auth.ErrNotFound
	}
	stored.Name, stored.Description, stored.ManagerID = t.Name, t.Description, t.ManagerID
	stored.UpdatedAt = t.UpdatedAt
	s.teams[t.ID] = stored
	return nil
}

func (s *Store) DeleteTeam(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.teams, id)
	delete(s.members, id)
	for pid, p := range s.projects {
		if p.TeamID == id {
			delete(s.projects, pid)
		}
	}
	for tid, t := range s.tasks {
		if t.TeamID == id {
			delete(s.tasks, tid)
			delete(s.comments, tid)
		}
	}
	return nil
}

// Projects

func (s *Store) CreateProject(_ context.Context, p *tracker.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[p.TeamID]; !ok {
		return auth.ErrNotFound
	}
	if _, ok := s.projects[p.ID]; ok {
		return auth.ErrConflict
	}
	s.projects[p.ID] = *p
	return nil
}

func (s *Store) GetProject(_ context.Context, id string) (tracker.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return tracker.Project{}, auth.ErrNotFound
	}
	return p, nil
}

func (s *Store) ListProjects(_ context.Context, scope access.Scope, f tracker.ProjectFilter) ([]tracker.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []tracker.Project
	for _, p := range s.projects {
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.Priority != "" && p.Priority != f.Priority {
			continue
		}
		if f.TeamID != "" && p.TeamID != f.TeamID {
			continue
		}
		if s.rowVisible(scope, p.TeamID, "", "") {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, f.Page), nil
}

func (s *Store) UpdateProject(_ context.Context, p tracker.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.projects[p.ID]
	if !ok {
		return auth.ErrNotFound
	}
	stored.Name, stored.Description = p.Name, p.Description
	stored.Status, stored.Priority = p.Status, p.Priority
	stored.UpdatedAt = p.UpdatedAt
	s.projects[p.ID] = stored
	return nil
}

func (s *Store) DeleteProject(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.projects, id)
	for tid, t := range s.tasks {
		if t.ProjectID == id {
			delete(s.tasks, tid)
			delete(s.comments, tid)
		}
	}
	return nil
}

// Tasks

func (s *Store) CreateTask(_ context.Context, t *tracker.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[t.ProjectID]
	if !ok {
		return auth.ErrNotFound
	}
	if _, ok := s.tasks[t.ID]; ok {
		return auth.ErrConflict
	}
	t.TeamID = p.TeamID
	if t.AssigneeID != "" && !s.isMember(t.TeamID, t.AssigneeID) {
		return auth.ErrAssigneeNotMember
	}
	s.tasks[t.ID] = *t
	return nil
}

func (s *Store) GetTask(_ context.Context, id string) (tracker.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return tracker.Task{}, auth.ErrNotFound
	}
	return t, nil
}

func (s *Store) ListTasks(_ context.Context, scope access.Scope, f tracker.TaskFilter) ([]tracker.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []tracker.Task
	for _, t := range s.tasks {
		if s.taskSelected(scope, f, t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, f.Page), nil
}

func (s *Store) CountTasks(_ context.Context, scope access.Scope, f tracker.TaskFilter) (tracker.TaskCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var counts tracker.TaskCounts
	for _, t := range s.tasks {
		if !s.taskSelected(scope, f, t) {
			continue
		}
		overdue := 0
		if t.Overdue(f.Now) {
			overdue = 1
		}
		counts.Add(t.Status, 1, overdue)
	}
	return counts, nil
}

// taskSelected applies filter and scope to one task. Callers hold the lock.
func (s *Store) taskSelected(scope access.Scope, f tracker.TaskFilter, t tracker.Task) bool {
	switch {
	case f.Status != "" && t.Status != f.Status,
		f.Priority != "" && t.Priority != f.Priority,
		f.ProjectID != "" && t.ProjectID != f.ProjectID,
		f.TeamID != "" && t.TeamID != f.TeamID,
		f.AssigneeID != "" && t.AssigneeID != f.AssigneeID,
		f.CreatorID != "" && t.CreatedBy != f.CreatorID,
		f.Overdue && !t.Overdue(f.Now):
		return false
	}
	return s.rowVisible(scope, t.TeamID, t.CreatedBy, t.AssigneeID)
}

func (s *Store) AssignTask(_ context.Context, taskID, assigneeID string, at time.Time) (tracker.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return tracker.Task{}, auth.ErrNotFound
	}
	if assigneeID != "" && !s.isMember(t.TeamID, assigneeID) {
		return tracker.Task{}, auth.ErrAssigneeNotMember
	}
	t.AssigneeID = assigneeID
	t.UpdatedAt = at
	s.tasks[taskID] = t
	return t, nil
}

func (s *Store) UpdateTaskStatus(_ context.Context, taskID string, status tracker.TaskStatus, at time.Time) (tracker.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return tracker.Task{}, auth.ErrNotFound
	}
	t.SetStatus(status, at)
	s.tasks[taskID] = t
	return t, nil
}

func (s *Store) UpdateTask(_ context.Context, t tracker.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.tasks[t.ID]
	if !ok {
		return auth.ErrNotFound
	}
	stored.Title, stored.Description = t.Title, t.Description
	stored.Priority, stored.DueAt = t.Priority, t.DueAt
	stored.UpdatedAt = t.UpdatedAt
	s.tasks[t.ID] = stored
	return nil
}

func (s *Store) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.tasks, id)
	delete(s.comments, id)
	return nil
}

// Comments

func (s *Store) AddComment(_ context.Context, c *tracker.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[c.TaskID]; !ok {
		return auth.ErrNotFound
	}
	if _, ok := s.users[c.AuthorID]; !ok {
		return auth.ErrNotFound
	}
	s.comments[c.TaskID] = append(s.comments[c.TaskID], *c)
	return nil
}

func (s *Store) ListComments(_ context.Context, taskID string, page tracker.Page) ([]tracker.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]tracker.Comment(nil), s.comments[taskID]...)
	return paginate(out, page), nil
}

// rowVisible evaluates a team-scoped scope against one row. Callers hold the lock.
func (s *Store) rowVisible(scope access.Scope, teamID, creatorID, assigneeID string) bool {
	if scope.All {
		return true
	}
	uid := scope.UserID
	if uid == "" {
		return false
	}
	if scope.Involved && (creatorID == uid || assigneeID == uid) {
		return true
	}
	if scope.Managed && s.teams[teamID].ManagerID == uid {
		return true
	}
	return scope.Member && s.isMember(teamID, uid)
}

func (s *Store) userVisible(scope access.Scope, userID string) bool {
	switch {
	case scope.All:
		return true
	case scope.UserID == "":
		return false
	case scope.Self && userID == scope.UserID:
		return true
	case scope.Managed && s.managesUser(scope.UserID, userID):
		return true
	}
	return false
}

func paginate[T any](rows []T, page tracker.Page) []T {
	if page.Offset >= len(rows) {
		return []T{}
	}
	rows = rows[page.Offset:]
	if page.Limit > 0 && len(rows) > page.Limit {
		rows = rows[:page.Limit]
	}
	return rows
}
