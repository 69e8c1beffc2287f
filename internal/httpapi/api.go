// Package httpapi exposes the account and tracker services over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"worktrack.org/internal/auth"
	"worktrack.org/internal/obs"
	"worktrack.org/internal/tracker"
)

const serviceName = "worktrack-api"

// Checker reports whether a dependency can serve traffic.
type Checker interface {
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to Checker.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// ReadyProbe runs every named checker; the first failure makes the service
// not ready.
type ReadyProbe map[string]Checker

func (rp ReadyProbe) Check(ctx context.Context) error {
	for name, c := range rp {
		if c == nil {
			continue
		}
		if err := c.Check(ctx); err != nil {
			return errors.New(name + ": " + err.Error())
		}
	}
	return nil
}

// Deps are the services behind the HTTP surface.
type Deps struct {
	Accounts *auth.Service
	Tracker  *tracker.Service
	Ready    ReadyProbe
	Version  string
}

// API is the HTTP layer.
type API struct {
	router   *mux.Router
	accounts *auth.Service
	tracker  *tracker.Service
	ready    ReadyProbe
	version  string

	rateBurst    int
	ratePerSec   int
	maxBodyBytes int64
}

// Option tunes API limits.
type Option func(*API)

// WithRateLimit sets the per-client token bucket on the public auth endpoints.
func WithRateLimit(burst, perSecond int) Option {
	return func(a *API) {
		if burst > 0 && perSecond > 0 {
			a.rateBurst, a.ratePerSec = burst, perSecond
		}
	}
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBodyBytes = n
		}
	}
}

func New(deps Deps, opts ...Option) (*API, error) {
	if deps.Accounts == nil || deps.Tracker == nil {
		return nil, errors.New("httpapi: accounts and tracker services are required")
	}
	a := &API{
		router:       mux.NewRouter(),
		accounts:     deps.Accounts,
		tracker:      deps.Tracker,
		ready:        deps.Ready,
		version:      deps.Version,
		rateBurst:    10,
		ratePerSec:   5,
		maxBodyBytes: 1 << 20,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.routes()
	return a, nil
}

func (a *API) routes() {
	r := a.router
	limit := newIPLimiter(a.rateBurst, a.ratePerSec).Middleware
	authed := func(h http.HandlerFunc) http.Handler { return a.withAuth(h) }

	r.HandleFunc("/healthz", a.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.Ready).Methods(http.MethodGet)
	r.HandleFunc("/v1/info", a.Info).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	r.Handle("/v1/auth/register", limit(http.HandlerFunc(a.handleRegister))).Methods(http.MethodPost)
	r.Handle("/v1/auth/login", limit(http.HandlerFunc(a.handleLogin))).Methods(http.MethodPost)
	r.Handle("/v1/auth/refresh", limit(http.HandlerFunc(a.handleRefresh))).Methods(http.MethodPost)
	r.Handle("/v1/auth/logout", limit(http.HandlerFunc(a.handleLogout))).Methods(http.MethodPost)
	r.Handle("/v1/auth/profile", authed(a.handleProfile)).Methods(http.MethodGet)
	r.Handle("/v1/auth/profile", authed(a.handleUpdateProfile)).Methods(http.MethodPatch)
	r.Handle("/v1/auth/password", authed(a.handleChangePassword)).Methods(http.MethodPost)

	r.Handle("/v1/users", authed(a.handleListUsers)).Methods(http.MethodGet)
	r.Handle("/v1/users", authed(a.handleCreateUser)).Methods(http.MethodPost)
	r.Handle("/v1/users/{id}", authed(a.handleGetUser)).Methods(http.MethodGet)
	r.Handle("/v1/users/{id}/role", authed(a.handleSetUserRole)).Methods(http.MethodPatch)
	r.Handle("/v1/users/{id}/deactivate", authed(a.handleDeactivateUser)).Methods(http.MethodPost)

	r.Handle("/v1/teams", authed(a.handleListTeams)).Methods(http.MethodGet)
	r.Handle("/v1/teams", authed(a.handleCreateTeam)).Methods(http.MethodPost)
	r.Handle("/v1/teams/{id}", authed(a.handleGetTeam)).Methods(http.MethodGet)
	r.Handle("/v1/teams/{id}", authed(a.handleUpdateTeam)).Methods(http.MethodPatch)
	r.Handle("/v1/teams/{id}", authed(a.handleDeleteTeam)).Methods(http.MethodDelete)
	r.Handle("/v1/teams/{id}/members/{userID}", authed(a.handleAddTeamMember)).Methods(http.MethodPost)
	r.Handle("/v1/teams/{id}/members/{userID}", authed(a.handleRemoveTeamMember)).Methods(http.MethodDelete)

	r.Handle("/v1/projects", authed(a.handleListProjects)).Methods(http.MethodGet)
	r.Handle("/v1/projects", authed(a.handleCreateProject)).Methods(http.MethodPost)
	r.Handle("/v1/projects/{id}", authed(a.handleGetProject)).Methods(http.MethodGet)
	r.Handle("/v1/projects/{id}", authed(a.handleUpdateProject)).Methods(http.MethodPatch)
	r.Handle("/v1/projects/{id}", authed(a.handleDeleteProject)).Methods(http.MethodDelete)
	r.Handle("/v1/projects/{id}/status", authed(a.handleUpdateProjectStatus)).Methods(http.MethodPatch)
	r.Handle("/v1/projects/{id}/statistics", authed(a.handleProjectStatistics)).Methods(http.MethodGet)

	r.Handle("/v1/tasks", authed(a.handleListTasks)).Methods(http.MethodGet)
	r.Handle("/v1/tasks", authed(a.handleCreateTask)).Methods(http.MethodPost)
	r.Handle("/v1/tasks/statistics", authed(a.handleTaskStatistics)).Methods(http.MethodGet)
	r.Handle("/v1/tasks/{id}", authed(a.handleGetTask)).Methods(http.MethodGet)
	r.Handle("/v1/tasks/{id}", authed(a.handleUpdateTask)).Methods(http.MethodPatch)
	r.Handle("/v1/tasks/{id}", authed(a.handleDeleteTask)).Methods(http.MethodDelete)
	r.Handle("/v1/tasks/{id}/assign", authed(a.handleAssignTask)).Methods(http.MethodPost)
	r.Handle("/v1/tasks/{id}/status", authed(a.handleUpdateTaskStatus)).Methods(http.MethodPatch)
	r.Handle("/v1/tasks/{id}/comments", authed(a.handleListComments)).Methods(http.MethodGet)
	r.Handle("/v1/tasks/{id}/comments", authed(a.handleAddComment)).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
}

// Handler returns the router wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.ready.Check(ctx); err != nil {
		obs.Logger().WithError(err).Warn("readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
