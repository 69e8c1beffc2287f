package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"worktrack.org/internal/audit"
	"worktrack.org/internal/auth"
	"worktrack.org/internal/obs"
	"worktrack.org/internal/tracker"
)

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, errorBody{
		Error:     msg,
		Code:      code,
		RequestID: audit.RequestIDFromContext(r.Context()),
	})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", auth.ErrInvalidInput)
		}
		return fmt.Errorf("%w: malformed JSON body", auth.ErrInvalidInput)
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected trailing data", auth.ErrInvalidInput)
	}
	return nil
}

// classify maps an error kind onto an HTTP status and a stable code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized, "token_expired"
	case errors.Is(err, auth.ErrTokenReused):
		return http.StatusUnauthorized, "token_reused"
	case errors.Is(err, auth.ErrTokenInvalid):
		return http.StatusUnauthorized, "token_invalid"
	case errors.Is(err, auth.ErrInsufficientRole):
		return http.StatusForbidden, "insufficient_role"
	case errors.Is(err, auth.ErrNotTeamMember):
		return http.StatusForbidden, "not_team_member"
	case errors.Is(err, auth.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, auth.ErrWeakPassword):
		return http.StatusUnprocessableEntity, "weak_password"
	case errors.Is(err, auth.ErrPasswordReused):
		return http.StatusUnprocessableEntity, "password_reused"
	case errors.Is(err, auth.ErrAssigneeNotMember):
		return http.StatusUnprocessableEntity, "assignee_not_member"
	case errors.Is(err, auth.ErrInvalidRole):
		return http.StatusBadRequest, "invalid_role"
	case errors.Is(err, auth.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, auth.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, auth.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// respondErr writes err with its mapped status. Denials are audited.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	switch {
	case status == http.StatusInternalServerError:
		obs.Logger().WithError(err).WithField("request_id", audit.RequestIDFromContext(r.Context())).Error("request failed")
		writeError(w, r, status, code, "internal error")
		return
	case status == http.StatusServiceUnavailable:
		obs.Logger().WithError(err).Warn("dependency unavailable")
		writeError(w, r, status, code, "service temporarily unavailable")
		return
	case status == http.StatusForbidden:
		auditDenied(r, code)
	}
	writeError(w, r, status, code, message(err))
}

// respondLookupErr is respondErr for detail reads: a denial is reported as
// not found so callers cannot discover ids outside their visibility.
func respondLookupErr(w http.ResponseWriter, r *http.Request, err error) {
	if auth.IsDenied(err) {
		_, code := classify(err)
		auditDenied(r, code)
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	respondErr(w, r, err)
}

func auditDenied(r *http.Request, reason string) {
	_ = audit.LogEvent(r.Context(), "authz.denied", map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
		"reason": reason,
	})
}

func message(err error) string {
	return strings.TrimPrefix(err.Error(), "auth: ")
}

func parsePage(r *http.Request) (tracker.Page, error) {
	q := r.URL.Query()
	var p tracker.Page
	var err error
	if p.Limit, err = queryInt(q.Get("limit")); err != nil {
		return tracker.Page{}, fmt.Errorf("%w: limit must be an integer", auth.ErrInvalidInput)
	}
	if p.Offset, err = queryInt(q.Get("offset")); err != nil {
		return tracker.Page{}, fmt.Errorf("%w: offset must be an integer", auth.ErrInvalidInput)
	}
	return p, nil
}

func queryInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func queryBool(raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: expected a boolean, got %q", auth.ErrInvalidInput, raw)
	}
	return b, nil
}

type listResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func newList[T any](items []T, p tracker.Page) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	norm, err := p.Normalize()
	if err != nil {
		norm = p
	}
	return listResponse[T]{Items: items, Limit: norm.Limit, Offset: norm.Offset}
}
