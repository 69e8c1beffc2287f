package httpapi

import (
	"net/http"

	"worktrack.org/internal/audit"
	"worktrack.org/internal/auth"
)

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type sessionResponse struct {
	auth.TokenPair
	TokenType string     `json:"token_type"`
	User      *auth.User `json:"user,omitempty"`
}

// handleRegister is public self-registration; it always creates employees.
func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	u, err := a.accounts.Register(r.Context(), auth.Registration{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      auth.RoleEmployee,
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.registered", map[string]any{"user_id": u.ID})
	w.Header().Set("Location", "/v1/users/"+u.ID)
	writeJSON(w, http.StatusCreated, u)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	pair, u, err := a.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		_ = audit.LogEvent(r.Context(), "auth.login_failed", map[string]any{"remote_ip": clientIP(r)})
		respondErr(w, r, err)
		return
	}
	ctx := auth.ContextWithPrincipal(r.Context(), u.Principal())
	_ = audit.LogEvent(ctx, "auth.login", map[string]any{"remote_ip": clientIP(r)})
	writeJSON(w, http.StatusOK, sessionResponse{TokenPair: pair, TokenType: "Bearer", User: &u})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	pair, err := a.accounts.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if auth.IsTokenFailure(err) {
			_ = audit.LogEvent(r.Context(), "auth.refresh_rejected", map[string]any{"reason": err.Error()})
		}
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{TokenPair: pair, TokenType: "Bearer"})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	if err := a.accounts.Logout(r.Context(), req.RefreshToken); err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	u, err := a.accounts.Profile(r.Context(), principal(r).ID)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req auth.ProfileUpdate
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	u, err := a.accounts.UpdateProfile(r.Context(), principal(r).ID, req)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	if err := a.accounts.ChangePassword(r.Context(), principal(r).ID, req.CurrentPassword, req.NewPassword); err != nil {
		respondErr(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.password_changed", nil)
	w.WriteHeader(http.StatusNoContent)
}
