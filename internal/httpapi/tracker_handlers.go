package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"worktrack.org/internal/audit"
	"worktrack.org/internal/tracker"
)

type assignRequest struct {
	AssigneeID string `json:"assignee_id"`
}

type statusRequest struct {
	Status tracker.TaskStatus `json:"status"`
}

type projectStatusRequest struct {
	Status tracker.ProjectStatus `json:"status"`
}

type commentRequest struct {
	Body string `json:"body"`
}

// Teams

func (a *API) handleListTeams(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	teams, err := a.tracker.ListTeams(r.Context(), principal(r), page)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(teams, page))
}

func (a *API) handleCreateTeam(w http.ResponseWriter, r *http.Request) {
	var req tracker.NewTeam
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	t, err := a.tracker.CreateTeam(r.Context(), principal(r), req)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "team.created", map[string]any{"team_id": t.ID, "manager_id": t.ManagerID})
	w.Header().Set("Location", "/v1/teams/"+t.ID)
	writeJSON(w, http.StatusCreated, t)
}

func (a *API) handleGetTeam(w http.ResponseWriter, r *http.Request) {
	t, err := a.tracker.GetTeam(r.Context(), principal(r), mux.Vars(r)["id"])
	if err != nil {
		respondLookupErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) handleUpdateTeam(w http.ResponseWriter, r *http.Request) {
	var req tracker.TeamUpdate
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	t, err := a.tracker.UpdateTeam(r.Context(), principal(r), mux.Vars(r)["id"], req)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "team.updated", map[string]any{"team_id": t.ID, "manager_id": t.ManagerID})
	writeJSON(w, http.StatusOK, t)
}

func (a *API) handleDeleteTeam(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := a.tracker.DeleteTeam(r.Context(), principal(r), id); err != nil {
		respondErr(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "team.deleted", map[string]any{"team_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAddTeamMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := a.tracker.AddTeamMember(r.Context(), principal(r), vars["id"], vars["userID"]); err != nil {
		respondErr(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "team.member_added", map[string]any{"team_id": vars["id"], "member_id": vars["userID"]})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRemoveTeamMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := a.tracker.RemoveTeamMember(r.Context(), principal(r), vars["id"], vars["userID"]); err != nil {
		respondErr(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "team.member_removed", map[string]any{"team_id": vars["id"], "member_id": vars["userID"]})
	w.WriteHeader(http.StatusNoContent)
}

// Projects

func (a *API) handleListProjects(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	q := r.URL.Query()
	projects, err := a.tracker.ListProjects(r.Context(), principal(r), tracker.ProjectFilter{
		Status:   tracker.ProjectStatus(strings.TrimSpace(q.Get("status"))),
		Priority: tracker.Priority(strings.TrimSpace(q.Get("priority"))),
		TeamID:   strings.TrimSpace(q.Get("team_id")),
		Page:     page,
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(projects, page))
}

func (a *API) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req tracker.NewProject
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	p, err := a.tracker.CreateProject(r.Context(), principal(r), req)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/projects/"+p.ID)
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := a.tracker.GetProject(r.Context(), principal(r), mux.Vars(r)["id"])
	if err != nil {
		respondLookupErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var req tracker.ProjectUpdate
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	p, err := a.tracker.UpdateProject(r.Context(), principal(r), mux.Vars(r)["id"], req)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleUpdateProjectStatus(w http.ResponseWriter, r *http.Request) {
	var req projectStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	p, err := a.tracker.UpdateProjectStatus(r.Context(), principal(r), mux.Vars(r)["id"], req.Status)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "project.status_changed", map[string]any{"project_id": p.ID, "status": p.Status})
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleProjectStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := a.tracker.ProjectStatistics(r.Context(), principal(r), mux.Vars(r)["id"])
	if err != nil {
		respondLookupErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := a.tracker.DeleteProject(r.Context(), principal(r), id); err != nil {
		respondErr(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "project.deleted", map[string]any{"project_id": id})
	w.WriteHeader(http.StatusNoContent)
}

// Tasks

func (a *API) handleListTasks(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	q := r.URL.Query()
	overdue, err := queryBool(q.Get("overdue"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	tasks, err := a.tracker.ListTasks(r.Context(), principal(r), tracker.TaskFilter{
		Status:     tracker.TaskStatus(strings.TrimSpace(q.Get("status"))),
		Priority:   tracker.Priority(strings.TrimSpace(q.Get("priority"))),
		ProjectID:  strings.TrimSpace(q.Get("project_id")),
		TeamID:     strings.TrimSpace(q.Get("team_id")),
		AssigneeID: strings.TrimSpace(q.Get("assignee_id")),
		CreatorID:  strings.TrimSpace(q.Get("created_by")),
		Overdue:    overdue,
		Page:       page,
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(tasks, page))
}

func (a *API) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req tracker.NewTask
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	t, err := a.tracker.CreateTask(r.Context(), principal(r), req)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/tasks/"+t.ID)
	writeJSON(w, http.StatusCreated, t)
}

func (a *API) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, err := a.tracker.GetTask(r.Context(), principal(r), mux.Vars(r)["id"])
	if err != nil {
		respondLookupErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var req tracker.TaskUpdate
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	t, err := a.tracker.UpdateTask(r.Context(), principal(r), mux.Vars(r)["id"], req)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) handleTaskStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := a.tracker.TaskStatistics(r.Context(), principal(r))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := a.tracker.DeleteTask(r.Context(), principal(r), id); err != nil {
		respondErr(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "task.deleted", map[string]any{"task_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAssignTask(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	t, err := a.tracker.AssignTask(r.Context(), principal(r), mux.Vars(r)["id"], req.AssigneeID)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "task.assigned", map[string]any{"task_id": t.ID, "assignee_id": t.AssigneeID})
	writeJSON(w, http.StatusOK, t)
}

func (a *API) handleUpdateTaskStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	t, err := a.tracker.UpdateTaskStatus(r.Context(), principal(r), mux.Vars(r)["id"], req.Status)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Comments

func (a *API) handleListComments(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	comments, err := a.tracker.ListComments(r.Context(), principal(r), mux.Vars(r)["id"], page)
	if err != nil {
		respondLookupErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(comments, page))
}

func (a *API) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	c, err := a.tracker.AddComment(r.Context(), principal(r), mux.Vars(r)["id"], req.Body)
	if err != nil {
		respondLookupErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}
