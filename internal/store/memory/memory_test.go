package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worktrack.org/internal/access"
	"worktrack.org/internal/auth"
	"worktrack.org/internal/tracker"
)

func seedUser(t *testing.T, s *Store, id string, role auth.Role) {
	t.Helper()
	require.NoError(t, s.CreateUser(context.Background(), &auth.User{ID: id, Email: id + "@example.com", Role: role, Active: true, PasswordHash: "h-" + id}))
}

func seed(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s := New()
	seedUser(t, s, "mgr", auth.RoleManager)
	seedUser(t, s, "emp", auth.RoleEmployee)
	seedUser(t, s, "out", auth.RoleEmployee)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateTeam(ctx, &tracker.Team{ID: "team-a", Name: "A", ManagerID: "mgr"}))
	require.NoError(t, s.CreateTeam(ctx, &tracker.Team{ID: "team-b", Name: "B", ManagerID: "mgr"}))
	require.NoError(t, s.AddTeamMember(ctx, "team-a", "emp", now))
	require.NoError(t, s.CreateProject(ctx, &tracker.Project{ID: "p-a", TeamID: "team-a", Name: "pa", Status: tracker.ProjectActive, Priority: tracker.PriorityHigh}))
	require.NoError(t, s.CreateProject(ctx, &tracker.Project{ID: "p-b", TeamID: "team-b", Name: "pb", Status: tracker.ProjectPlanning, Priority: tracker.PriorityLow}))

	past := now.Add(-time.Hour)
	require.NoError(t, s.CreateTask(ctx, &tracker.Task{ID: "t1", ProjectID: "p-a", Title: "one", CreatedBy: "mgr", AssigneeID: "emp", Status: tracker.TaskTodo, Priority: tracker.PriorityHigh, DueAt: &past}))
	require.NoError(t, s.CreateTask(ctx, &tracker.Task{ID: "t2", ProjectID: "p-a", Title: "two", CreatedBy: "mgr", Status: tracker.TaskCompleted, Priority: tracker.PriorityLow, DueAt: &past}))
	require.NoError(t, s.CreateTask(ctx, &tracker.Task{ID: "t3", ProjectID: "p-b", Title: "three", CreatedBy: "out", Status: tracker.TaskTodo, Priority: tracker.PriorityLow}))
	return s
}

func taskIDs(tasks []tracker.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

func TestListTasksAppliesScope(t *testing.T) {
	ctx := context.Background()
	s := seed(t)

	emp, err := access.For(auth.Principal{ID: "emp", Role: auth.RoleEmployee}, access.KindTask)
	require.NoError(t, err)
	tasks, err := s.ListTasks(ctx, emp, tracker.TaskFilter{Page: tracker.Page{Limit: 50}})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, taskIDs(tasks))

	out, err := access.For(auth.Principal{ID: "out", Role: auth.RoleEmployee}, access.KindTask)
	require.NoError(t, err)
	tasks, err = s.ListTasks(ctx, out, tracker.TaskFilter{Page: tracker.Page{Limit: 50}})
	require.NoError(t, err)
	assert.Equal(t, []string{"t3"}, taskIDs(tasks), "creator sees own task outside their teams")

	mgr, err := access.For(auth.Principal{ID: "mgr", Role: auth.RoleManager}, access.KindTask)
	require.NoError(t, err)
	tasks, err = s.ListTasks(ctx, mgr, tracker.TaskFilter{
		Overdue: true,
		Now:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Page:    tracker.Page{Limit: 50},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, taskIDs(tasks), "completed tasks are never overdue")

	tasks, err = s.ListTasks(ctx, mgr, tracker.TaskFilter{Priority: tracker.PriorityLow, Page: tracker.Page{Limit: 1, Offset: 1}})
	require.NoError(t, err)
	assert.Equal(t, []string{"t3"}, taskIDs(tasks))

	none, err := s.ListTasks(ctx, access.Scope{Kind: access.KindTask, UserID: "emp"}, tracker.TaskFilter{Page: tracker.Page{Limit: 50}})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListTeamsProjectsAndUsers(t *testing.T) {
	ctx := context.Background()
	s := seed(t)

	empTeams, _ := access.For(auth.Principal{ID: "emp", Role: auth.RoleEmployee}, access.KindTeam)
	teams, err := s.ListTeams(ctx, empTeams, tracker.Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.Equal(t, "team-a", teams[0].ID)

	mgrProjects, _ := access.For(auth.Principal{ID: "mgr", Role: auth.RoleManager}, access.KindProject)
	projects, err := s.ListProjects(ctx, mgrProjects, tracker.ProjectFilter{Status: tracker.ProjectPlanning, Page: tracker.Page{Limit: 10}})
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "p-b", projects[0].ID)

	mgrUsers, _ := access.For(auth.Principal{ID: "mgr", Role: auth.RoleManager}, access.KindUser)
	users, err := s.ListUsers(ctx, mgrUsers, tracker.Page{Limit: 10})
	require.NoError(t, err)
	var ids []string
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	assert.Equal(t, []string{"emp", "mgr"}, ids)
}

func TestAssignmentRequiresMembership(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	at := time.Now()

	_, err := s.AssignTask(ctx, "t3", "emp", at)
	assert.ErrorIs(t, err, auth.ErrAssigneeNotMember)

	err = s.CreateTask(ctx, &tracker.Task{ID: "t4", ProjectID: "p-b", Title: "four", AssigneeID: "emp"})
	assert.ErrorIs(t, err, auth.ErrAssigneeNotMember)

	task, err := s.AssignTask(ctx, "t2", "emp", at)
	require.NoError(t, err)
	assert.Equal(t, "emp", task.AssigneeID)

	_, err = s.AssignTask(ctx, "missing", "emp", at)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestRemoveMemberUnassignsTasks(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	require.NoError(t, s.RemoveTeamMember(ctx, "team-a", "emp", time.Now()))

	task, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, task.AssigneeID)

	ok, err := s.IsTeamMember(ctx, "team-a", "emp")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, s.RemoveTeamMember(ctx, "team-a", "emp", time.Now()), auth.ErrNotFound)
	assert.ErrorIs(t, s.AddTeamMember(ctx, "team-a", "ghost", time.Now()), auth.ErrNotFound)
}

func TestDeleteTeamCascades(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	require.NoError(t, s.DeleteTeam(ctx, "team-a"))
	_, err := s.GetProject(ctx, "p-a")
	assert.ErrorIs(t, err, auth.ErrNotFound)
	_, err = s.GetTask(ctx, "t1")
	assert.ErrorIs(t, err, auth.ErrNotFound)
	n, err := s.CountManagedTeams(ctx, "mgr")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUsersAndPasswordHistory(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := &auth.User{Email: "Kim@Example.com", Role: auth.RoleEmployee, Active: true, PasswordHash: "h1"}
	require.NoError(t, s.CreateUser(ctx, u))
	assert.NotEmpty(t, u.ID)
	assert.ErrorIs(t, s.CreateUser(ctx, &auth.User{Email: "kim@example.com", Role: auth.RoleEmployee}), auth.ErrConflict)

	found, err := s.FindUserByEmail(ctx, "KIM@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	require.NoError(t, s.UpdatePassword(ctx, u.ID, "h2"))
	require.NoError(t, s.UpdatePassword(ctx, u.ID, "h3"))
	hashes, err := s.RecentPasswordHashes(ctx, u.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"h3", "h2"}, hashes)

	require.NoError(t, s.SetRole(ctx, u.ID, auth.RoleManager))
	require.NoError(t, s.SetActive(ctx, u.ID, false))
	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleManager, got.Role)
	assert.False(t, got.Active)
	assert.ErrorIs(t, s.SetRole(ctx, u.ID, auth.Role("root")), auth.ErrInvalidRole)
}

func TestCountTasksComposesScopeAndFilter(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mgr, _ := access.For(auth.Principal{ID: "mgr", Role: auth.RoleManager}, access.KindTask)
	counts, err := s.CountTasks(ctx, mgr, tracker.TaskFilter{Now: now})
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Total)
	assert.Equal(t, 1, counts.Completed)
	assert.Equal(t, 2, counts.Pending)
	assert.Equal(t, 1, counts.Overdue)
	assert.Equal(t, map[tracker.TaskStatus]int{tracker.TaskTodo: 2, tracker.TaskCompleted: 1}, counts.ByStatus)

	emp, _ := access.For(auth.Principal{ID: "emp", Role: auth.RoleEmployee}, access.KindTask)
	counts, err = s.CountTasks(ctx, emp, tracker.TaskFilter{Now: now, AssigneeID: "emp"})
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Total)

	counts, err = s.CountTasks(ctx, emp, tracker.TaskFilter{Now: now, ProjectID: "p-b"})
	require.NoError(t, err)
	assert.Zero(t, counts.Total, "tasks outside the scope are not counted")
}

func TestUpdateTaskStatusRecordsTimestamps(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	task, err := s.UpdateTaskStatus(ctx, "t1", tracker.TaskInProgress, start)
	require.NoError(t, err)
	require.NotNil(t, task.StartedAt)
	assert.Equal(t, start, *task.StartedAt)
	assert.Nil(t, task.CompletedAt)

	done := start.Add(2 * time.Hour)
	task, err = s.UpdateTaskStatus(ctx, "t1", tracker.TaskCompleted, done)
	require.NoError(t, err)
	require.NotNil(t, task.CompletedAt)
	assert.Equal(t, done, *task.CompletedAt)

	task, err = s.UpdateTaskStatus(ctx, "t1", tracker.TaskInProgress, done.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, start, *task.StartedAt, "first start is kept")
	assert.Nil(t, task.CompletedAt)
}

func TestCommentsFollowTheirTask(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	at := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.AddComment(ctx, &tracker.Comment{ID: "c1", TaskID: "t1", AuthorID: "emp", Body: "first", CreatedAt: at}))
	require.NoError(t, s.AddComment(ctx, &tracker.Comment{ID: "c2", TaskID: "t1", AuthorID: "mgr", Body: "second", CreatedAt: at.Add(time.Minute)}))
	assert.ErrorIs(t, s.AddComment(ctx, &tracker.Comment{ID: "c3", TaskID: "missing", AuthorID: "emp", Body: "x"}), auth.ErrNotFound)

	comments, err := s.ListComments(ctx, "t1", tracker.Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "c1", comments[0].ID)

	require.NoError(t, s.DeleteTask(ctx, "t1"))
	comments, err = s.ListComments(ctx, "t1", tracker.Page{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, comments)
}

func TestUpdateEntities(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	at := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	team, err := s.GetTeam(ctx, "team-a")
	require.NoError(t, err)
	team.Name, team.UpdatedAt = "Renamed", at
	require.NoError(t, s.UpdateTeam(ctx, team))
	team.ManagerID = "ghost"
	assert.ErrorIs(t, s.UpdateTeam(ctx, team), auth.ErrNotFound)
	got, err := s.GetTeam(ctx, "team-a")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, "mgr", got.ManagerID)

	require.NoError(t, s.UpdateProject(ctx, tracker.Project{ID: "p-a", Name: "pa", Status: tracker.ProjectOnHold, Priority: tracker.PriorityHigh, UpdatedAt: at}))
	proj, err := s.GetProject(ctx, "p-a")
	require.NoError(t, err)
	assert.Equal(t, tracker.ProjectOnHold, proj.Status)
	assert.Equal(t, "team-a", proj.TeamID)

	require.NoError(t, s.UpdateTask(ctx, tracker.Task{ID: "t1", Title: "one, renamed", Priority: tracker.PriorityUrgent, UpdatedAt: at}))
	task, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "one, renamed", task.Title)
	assert.Nil(t, task.DueAt)
	assert.Equal(t, "emp", task.AssigneeID, "assignee is not touched by edits")
	assert.ErrorIs(t, s.UpdateTask(ctx, tracker.Task{ID: "missing"}), auth.ErrNotFound)

	require.NoError(t, s.UpdateName(ctx, "emp", "Eli", "Park"))
	u, err := s.GetUser(ctx, "emp")
	require.NoError(t, err)
	assert.Equal(t, "Eli Park", u.FullName())
}
