package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"worktrack.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var errMissingBearer = errors.New("missing bearer token")

// withAuth verifies the access token and stores the principal in the
// request context. Access tokens are checked by signature only.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="worktrack"`)
			writeError(w, r, http.StatusUnauthorized, "unauthenticated", err.Error())
			return
		}
		principal, err := a.accounts.Authenticate(token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="worktrack", error="invalid_token"`)
			respondErr(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
	})
}

// principal returns the authenticated caller. withAuth guarantees presence on
// protected routes.
func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMissingBearer
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errMissingBearer
	}
	return token, nil
}
