package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"worktrack.org/internal/audit"
	"worktrack.org/internal/auth"
)

type createUserRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

type setRoleRequest struct {
	Role string `json:"role"`
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	users, err := a.tracker.ListUsers(r.Context(), principal(r), page)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(users, page))
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	in := auth.Registration{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}
	if strings.TrimSpace(req.Role) != "" {
		role, err := auth.ParseRole(req.Role)
		if err != nil {
			respondErr(w, r, err)
			return
		}
		in.Role = role
	}
	u, err := a.tracker.CreateUser(r.Context(), principal(r), in)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.created", map[string]any{"target_user_id": u.ID, "role": string(u.Role)})
	w.Header().Set("Location", "/v1/users/"+u.ID)
	writeJSON(w, http.StatusCreated, u)
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := a.tracker.GetUser(r.Context(), principal(r), mux.Vars(r)["id"])
	if err != nil {
		respondLookupErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) handleSetUserRole(w http.ResponseWriter, r *http.Request) {
	var req setRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	u, err := a.tracker.SetUserRole(r.Context(), principal(r), mux.Vars(r)["id"], req.Role)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.role_changed", map[string]any{"target_user_id": u.ID, "role": string(u.Role)})
	writeJSON(w, http.StatusOK, u)
}

func (a *API) handleDeactivateUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := a.tracker.DeactivateUser(r.Context(), principal(r), id); err != nil {
		respondErr(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.deactivated", map[string]any{"target_user_id": id})
	w.WriteHeader(http.StatusNoContent)
}
