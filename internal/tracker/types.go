package tracker

import (
	"fmt"
	"strings"
	"time"

	"worktrack.org/internal/auth"
)

// Team groups users under one manager.
type Team struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ManagerID   string    `json:"manager_id"`
	Members     []string  `json:"members,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Project belongs to exactly one team.
type Project struct {
	ID          string        `json:"id"`
	TeamID      string        `json:"team_id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	CreatedBy   string        `json:"created_by"`
	Status      ProjectStatus `json:"status"`
	Priority    Priority      `json:"priority"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Task belongs to one project. TeamID is copied from the project on creation.
type Task struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	TeamID      string     `json:"team_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	CreatedBy   string     `json:"created_by"`
	AssigneeID  string     `json:"assignee_id,omitempty"`
	Status      TaskStatus `json:"status"`
	Priority    Priority   `json:"priority"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// SetStatus moves the task to status at the given time. StartedAt records
// the first move into progress; CompletedAt is set while the task is
// completed and cleared when it leaves that state.
func (t *Task) SetStatus(status TaskStatus, at time.Time) {
	if status == TaskInProgress && t.StartedAt == nil {
		t.StartedAt = &at
	}
	switch {
	case status != TaskCompleted:
		t.CompletedAt = nil
	case t.CompletedAt == nil:
		t.CompletedAt = &at
	}
	t.Status = status
	t.UpdatedAt = at
}

// Overdue reports whether the task is open and past its due time.
func (t Task) Overdue(now time.Time) bool {
	return t.DueAt != nil && now.After(*t.DueAt) && !t.Status.Closed()
}

type ProjectStatus string

const (
	ProjectPlanning  ProjectStatus = "planning"
	ProjectActive    ProjectStatus = "active"
	ProjectOnHold    ProjectStatus = "on_hold"
	ProjectCompleted ProjectStatus = "completed"
	ProjectCancelled ProjectStatus = "cancelled"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectPlanning, ProjectActive, ProjectOnHold, ProjectCompleted, ProjectCancelled:
		return true
	}
	return false
}

type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskReview     TaskStatus = "review"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskTodo, TaskInProgress, TaskReview, TaskCompleted, TaskCancelled:
		return true
	}
	return false
}

// Closed reports whether no further work is expected.
func (s TaskStatus) Closed() bool {
	return s == TaskCompleted || s == TaskCancelled
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Page bounds a list query.
type Page struct {
	Limit  int
	Offset int
}

// Normalize applies the default limit and validates bounds.
func (p Page) Normalize() (Page, error) {
	if p.Offset < 0 {
		return Page{}, fmt.Errorf("%w: offset must not be negative", auth.ErrInvalidInput)
	}
	switch {
	case p.Limit <= 0:
		p.Limit = DefaultLimit
	case p.Limit > MaxLimit:
		p.Limit = MaxLimit
	}
	return p, nil
}

// ProjectFilter narrows ListProjects. Empty fields do not filter.
type ProjectFilter struct {
	Status   ProjectStatus
	Priority Priority
	TeamID   string
	Page
}

// TaskFilter narrows ListTasks and task statistics. Empty fields do not
// filter. Overdue selects open tasks whose due time is before Now.
type TaskFilter struct {
	Status     TaskStatus
	Priority   Priority
	ProjectID  string
	TeamID     string
	AssigneeID string
	CreatorID  string
	Overdue    bool
	Now        time.Time
	Page
}

// NewTeam is the input of CreateTeam. ManagerID defaults to the caller.
type NewTeam struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ManagerID   string `json:"manager_id"`
}

// NewProject is the input of CreateProject.
type NewProject struct {
	TeamID      string        `json:"team_id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Status      ProjectStatus `json:"status"`
	Priority    Priority      `json:"priority"`
}

// NewTask is the input of CreateTask.
type NewTask struct {
	ProjectID   string     `json:"project_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    Priority   `json:"priority"`
	AssigneeID  string     `json:"assignee_id"`
	DueAt       *time.Time `json:"due_at"`
}

// TeamUpdate changes a team. Nil fields are left as they are. Only admins
// may hand the team to another manager.
type TeamUpdate struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	ManagerID   *string `json:"manager_id"`
}

// ProjectUpdate changes a project. Nil fields are left as they are.
type ProjectUpdate struct {
	Name        *string        `json:"name"`
	Description *string        `json:"description"`
	Status      *ProjectStatus `json:"status"`
	Priority    *Priority      `json:"priority"`
}

// TaskUpdate changes the descriptive fields of a task. Status and assignee
// have their own operations. ClearDueAt removes the due time.
type TaskUpdate struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Priority    *Priority  `json:"priority"`
	DueAt       *time.Time `json:"due_at"`
	ClearDueAt  bool       `json:"clear_due_at"`
}

// Comment is a note left on a task by a user who can see it.
type Comment struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskCounts aggregates a set of tasks. Pending is every task that is not
// completed, cancelled ones included.
type TaskCounts struct {
	Total     int                `json:"total"`
	Completed int                `json:"completed"`
	Pending   int                `json:"pending"`
	Overdue   int                `json:"overdue"`
	ByStatus  map[TaskStatus]int `json:"by_status"`
}

// Add counts n tasks in status, of which overdue are past due.
func (c *TaskCounts) Add(status TaskStatus, n, overdue int) {
	if c.ByStatus == nil {
		c.ByStatus = make(map[TaskStatus]int)
	}
	c.ByStatus[status] += n
	c.Total += n
	c.Overdue += overdue
	if status == TaskCompleted {
		c.Completed += n
	} else {
		c.Pending += n
	}
}

// Progress is the completed share of all tasks as a whole percentage.
func (c TaskCounts) Progress() int {
	if c.Total == 0 {
		return 0
	}
	return c.Completed * 100 / c.Total
}

// TaskStatistics summarises the tasks assigned to and created by one user.
type TaskStatistics struct {
	Assigned TaskCounts `json:"assigned"`
	Created  TaskCounts `json:"created"`
}

// ProjectStatistics summarises the tasks of one project.
type ProjectStatistics struct {
	ProjectID string        `json:"project_id"`
	Name      string        `json:"name"`
	Status    ProjectStatus `json:"status"`
	Progress  int           `json:"progress_percentage"`
	Tasks     TaskCounts    `json:"tasks"`
}

func requireText(field, value string, max int) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%w: %s is required", auth.ErrInvalidInput, field)
	}
	if len([]rune(value)) > max {
		return "", fmt.Errorf("%w: %s must be at most %d characters", auth.ErrInvalidInput, field, max)
	}
	return value, nil
}
