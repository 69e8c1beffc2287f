package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"worktrack.org/internal/access"
	"worktrack.org/internal/auth"
	"worktrack.org/internal/tracker"
)

var _ tracker.Store = (*Store)(nil)

const (
	teamColumnsSQL    = `t.id, t.name, t.description, t.manager_id, t.created_at, t.updated_at`
	projectColumnsSQL = `p.id, p.team_id, p.name, p.description, p.created_by, p.status, p.priority, p.created_at, p.updated_at`
	taskColumnsSQL    = `k.id, k.project_id, k.team_id, k.title, k.description, k.created_by, k.assignee_id, k.status, k.priority, k.due_at, k.started_at, k.completed_at, k.created_at, k.updated_at`
	commentColumnsSQL = `c.id, c.task_id, c.author_id, c.body, c.created_at`
)

func scanTeam(row rowScanner) (tracker.Team, error) {
	var t tracker.Team
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.ManagerID, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func scanProject(row rowScanner) (tracker.Project, error) {
	var (
		p                tracker.Project
		status, priority string
	)
	if err := row.Scan(&p.ID, &p.TeamID, &p.Name, &p.Description, &p.CreatedBy, &status, &priority, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return tracker.Project{}, err
	}
	p.Status = tracker.ProjectStatus(status)
	p.Priority = tracker.Priority(priority)
	return p, nil
}

func scanTask(row rowScanner) (tracker.Task, error) {
	var (
		t                tracker.Task
		assignee                  sql.NullString
		status, priority          string
		due, started, completedAt sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.ProjectID, &t.TeamID, &t.Title, &t.Description, &t.CreatedBy, &assignee, &status, &priority,
		&due, &started, &completedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return tracker.Task{}, err
	}
	t.AssigneeID = assignee.String
	t.Status = tracker.TaskStatus(status)
	t.Priority = tracker.Priority(priority)
	t.DueAt = timePtr(due)
	t.StartedAt = timePtr(started)
	t.CompletedAt = timePtr(completedAt)
	return t, nil
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time.UTC()
	return &v
}

func scanComment(row rowScanner) (tracker.Comment, error) {
	var c tracker.Comment
	err := row.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Body, &c.CreatedAt)
	return c, err
}

// Teams

func (s *Store) CreateTeam(ctx context.Context, t *tracker.Team) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		insert into teams (id, name, description, manager_id, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6)
	`, t.ID, t.Name, t.Description, t.ManagerID, t.CreatedAt, t.UpdatedAt)
	return translate(err)
}

func (s *Store) GetTeam(ctx context.Context, id string) (tracker.Team, error) {
	if err := s.ready(); err != nil {
		return tracker.Team{}, err
	}
	t, err := scanTeam(s.db.QueryRowContext(ctx, `select `+teamColumnsSQL+` from teams t where t.id = $1`, id))
	if err != nil {
		return tracker.Team{}, translate(err)
	}
	rows, err := s.db.QueryContext(ctx, `select user_id from team_members where team_id = $1 order by user_id`, id)
	if err != nil {
		return tracker.Team{}, err
	}
	defer rows.Close()
	t.Members = []string{}
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return tracker.Team{}, err
		}
		t.Members = append(t.Members, uid)
	}
	return t, rows.Err()
}

func (s *Store) ListTeams(ctx context.Context, scope access.Scope, page tracker.Page) ([]tracker.Team, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var q query
	q.where(scopeCondition(&q, scope, teamColumns))
	stmt := `select ` + teamColumnsSQL + ` from teams t` + q.clause() + ` order by t.id` + q.page(page.Limit, page.Offset)
	rows, err := s.db.QueryContext(ctx, stmt, q.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var teams []tracker.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

func (s *Store) AddTeamMember(ctx context.Context, teamID, userID string, at time.Time) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		insert into team_members (team_id, user_id, joined_at) values ($1, $2, $3)
	`, teamID, userID, at)
	return translate(err)
}

// RemoveTeamMember drops the membership and clears the member's assignments
// in that team inside one transaction.
func (s *Store) RemoveTeamMember(ctx context.Context, teamID, userID string, at time.Time) error {
	if err := s.ready(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `delete from team_members where team_id = $1 and user_id = $2`, teamID, userID)
	if err != nil {
		return err
	}
	if err := expectOne(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		update tasks set assignee_id = null, updated_at = $3
		where team_id = $1 and assignee_id = $2
	`, teamID, userID, at); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) CountManagedTeams(ctx context.Context, userID string) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from teams where manager_id = $1`, userID).Scan(&n)
	return n, err
}

func (s *Store) UpdateTeam(ctx context.Context, t tracker.Team) error {
	if err := s.ready(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		update teams set name = $2, description = $3, manager_id = $4, updated_at = $5
		where id = $1
	`, t.ID, t.Name, t.Description, t.ManagerID, t.UpdatedAt)
	if err != nil {
		return translate(err)
	}
	return expectOne(res)
}

func (s *Store) DeleteTeam(ctx context.Context, id string) error {
	return s.deleteByID(ctx, `delete from teams where id = $1`, id)
}

// Projects

func (s *Store) CreateProject(ctx context.Context, p *tracker.Project) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		insert into projects (id, team_id, name, description, created_by, status, priority, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.ID, p.TeamID, p.Name, p.Description, p.CreatedBy, string(p.Status), string(p.Priority), p.CreatedAt, p.UpdatedAt)
	return translate(err)
}

func (s *Store) GetProject(ctx context.Context, id string) (tracker.Project, error) {
	if err := s.ready(); err != nil {
		return tracker.Project{}, err
	}
	p, err := scanProject(s.db.QueryRowContext(ctx, `select `+projectColumnsSQL+` from projects p where p.id = $1`, id))
	if err != nil {
		return tracker.Project{}, translate(err)
	}
	return p, nil
}

func (s *Store) ListProjects(ctx context.Context, scope access.Scope, f tracker.ProjectFilter) ([]tracker.Project, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var q query
	q.where(scopeCondition(&q, scope, projectColumns))
	if f.Status != "" {
		q.where("p.status = " + q.arg(string(f.Status)))
	}
	if f.Priority != "" {
		q.where("p.priority = " + q.arg(string(f.Priority)))
	}
	if f.TeamID != "" {
		q.where("p.team_id = " + q.arg(f.TeamID))
	}
	stmt := `select ` + projectColumnsSQL + ` from projects p` + q.clause() + ` order by p.id` + q.page(f.Limit, f.Offset)
	rows, err := s.db.QueryContext(ctx, stmt, q.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var projects []tracker.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (s *Store) UpdateProject(ctx context.Context, p tracker.Project) error {
	if err := s.ready(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		update projects set name = $2, description = $3, status = $4, priority = $5, updated_at = $6
		where id = $1
	`, p.ID, p.Name, p.Description, string(p.Status), string(p.Priority), p.UpdatedAt)
	if err != nil {
		return translate(err)
	}
	return expectOne(res)
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	return s.deleteByID(ctx, `delete from projects where id = $1`, id)
}

// Tasks

// CreateTask copies team_id from the project. The assignee's membership row
// is held for key share until commit, so a concurrent RemoveTeamMember either
// waits for the insert and unassigns it, or wins and the insert is refused.
func (s *Store) CreateTask(ctx context.Context, t *tracker.Task) error {
	if err := s.ready(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.QueryRowContext(ctx, `select team_id from projects where id = $1`, t.ProjectID).Scan(&t.TeamID); err != nil {
		return translate(err)
	}
	if err := lockMembership(ctx, tx, t.TeamID, t.AssigneeID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into tasks (id, project_id, team_id, title, description, created_by, assignee_id, status, priority, due_at, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`, t.ID, t.ProjectID, t.TeamID, t.Title, t.Description, t.CreatedBy, nullIfEmpty(t.AssigneeID),
		string(t.Status), string(t.Priority), nullTime(t.DueAt), t.CreatedAt); err != nil {
		return translate(err)
	}
	return tx.Commit()
}

// lockMembership takes a key-share lock on the membership row of userID in
// teamID, reporting auth.ErrAssigneeNotMember when there is none. An empty
// user id locks nothing.
func lockMembership(ctx context.Context, tx *sql.Tx, teamID, userID string) error {
	if userID == "" {
		return nil
	}
	var one int
	err := tx.QueryRowContext(ctx, `
		select 1 from team_members where team_id = $1 and user_id = $2 for key share
	`, teamID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ErrAssigneeNotMember
	}
	return err
}

func (s *Store) GetTask(ctx context.Context, id string) (tracker.Task, error) {
	if err := s.ready(); err != nil {
		return tracker.Task{}, err
	}
	t, err := scanTask(s.db.QueryRowContext(ctx, `select `+taskColumnsSQL+` from tasks k where k.id = $1`, id))
	if err != nil {
		return tracker.Task{}, translate(err)
	}
	return t, nil
}

func (s *Store) ListTasks(ctx context.Context, scope access.Scope, f tracker.TaskFilter) ([]tracker.Task, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var q query
	taskConditions(&q, scope, f)
	stmt := `select ` + taskColumnsSQL + ` from tasks k` + q.clause() + ` order by k.id` + q.page(f.Limit, f.Offset)
	rows, err := s.db.QueryContext(ctx, stmt, q.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tasks []tracker.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CountTasks groups the selected tasks by status in one query.
func (s *Store) CountTasks(ctx context.Context, scope access.Scope, f tracker.TaskFilter) (tracker.TaskCounts, error) {
	var counts tracker.TaskCounts
	if err := s.ready(); err != nil {
		return counts, err
	}
	var q query
	taskConditions(&q, scope, f)
	now := q.arg(f.Now)
	stmt := `select k.status, count(*), count(*) filter (where k.due_at < ` + now + ` and k.status not in ('completed', 'cancelled'))` +
		` from tasks k` + q.clause() + ` group by k.status`
	rows, err := s.db.QueryContext(ctx, stmt, q.args...)
	if err != nil {
		return counts, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status     string
			n, overdue int
		)
		if err := rows.Scan(&status, &n, &overdue); err != nil {
			return counts, err
		}
		counts.Add(tracker.TaskStatus(status), n, overdue)
	}
	return counts, rows.Err()
}

func taskConditions(q *query, scope access.Scope, f tracker.TaskFilter) {
	q.where(scopeCondition(q, scope, taskColumns))
	if f.Status != "" {
		q.where("k.status = " + q.arg(string(f.Status)))
	}
	if f.Priority != "" {
		q.where("k.priority = " + q.arg(string(f.Priority)))
	}
	if f.ProjectID != "" {
		q.where("k.project_id = " + q.arg(f.ProjectID))
	}
	if f.TeamID != "" {
		q.where("k.team_id = " + q.arg(f.TeamID))
	}
	if f.AssigneeID != "" {
		q.where("k.assignee_id = " + q.arg(f.AssigneeID))
	}
	if f.CreatorID != "" {
		q.where("k.created_by = " + q.arg(f.CreatorID))
	}
	if f.Overdue {
		q.where("k.due_at < " + q.arg(f.Now) + " and k.status not in ('completed', 'cancelled')")
	}
}

// AssignTask sets or clears the assignee. A new assignee's membership row is
// locked as in CreateTask before the task row is written, the same order
// RemoveTeamMember takes them in.
func (s *Store) AssignTask(ctx context.Context, taskID, assigneeID string, at time.Time) (tracker.Task, error) {
	if err := s.ready(); err != nil {
		return tracker.Task{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return tracker.Task{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var teamID string
	if err := tx.QueryRowContext(ctx, `select team_id from tasks where id = $1`, taskID).Scan(&teamID); err != nil {
		return tracker.Task{}, translate(err)
	}
	if err := lockMembership(ctx, tx, teamID, assigneeID); err != nil {
		return tracker.Task{}, err
	}
	t, err := scanTask(tx.QueryRowContext(ctx, `
		update tasks k set assignee_id = $2, updated_at = $3
		where k.id = $1
		returning `+taskColumnsSQL, taskID, nullIfEmpty(assigneeID), at))
	if err != nil {
		return tracker.Task{}, translate(err)
	}
	if err := tx.Commit(); err != nil {
		return tracker.Task{}, err
	}
	return t, nil
}

func (s *Store) UpdateTaskStatus(ctx context.Context, taskID string, status tracker.TaskStatus, at time.Time) (tracker.Task, error) {
	if err := s.ready(); err != nil {
		return tracker.Task{}, err
	}
	t, err := scanTask(s.db.QueryRowContext(ctx, `
		update tasks k set status = $2, updated_at = $3,
			started_at = case when $2 = 'in_progress' and k.started_at is null then $3 else k.started_at end,
			completed_at = case when $2 <> 'completed' then null when k.completed_at is null then $3 else k.completed_at end
		where k.id = $1
		returning `+taskColumnsSQL, taskID, string(status), at))
	if err != nil {
		return tracker.Task{}, translate(err)
	}
	return t, nil
}

func (s *Store) UpdateTask(ctx context.Context, t tracker.Task) error {
	if err := s.ready(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		update tasks set title = $2, description = $3, priority = $4, due_at = $5, updated_at = $6
		where id = $1
	`, t.ID, t.Title, t.Description, string(t.Priority), nullTime(t.DueAt), t.UpdatedAt)
	if err != nil {
		return translate(err)
	}
	return expectOne(res)
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	return s.deleteByID(ctx, `delete from tasks where id = $1`, id)
}

// Comments

func (s *Store) AddComment(ctx context.Context, c *tracker.Comment) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		insert into task_comments (id, task_id, author_id, body, created_at)
		values ($1, $2, $3, $4, $5)
	`, c.ID, c.TaskID, c.AuthorID, c.Body, c.CreatedAt)
	return translate(err)
}

func (s *Store) ListComments(ctx context.Context, taskID string, page tracker.Page) ([]tracker.Comment, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var q query
	q.where("c.task_id = " + q.arg(taskID))
	stmt := `select ` + commentColumnsSQL + ` from task_comments c` + q.clause() + ` order by c.created_at, c.id` + q.page(page.Limit, page.Offset)
	rows, err := s.db.QueryContext(ctx, stmt, q.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	comments := []tracker.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (s *Store) deleteByID(ctx context.Context, stmt, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, stmt, id)
	if err != nil {
		return translate(err)
	}
	return expectOne(res)
}
