package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"distributor.app/internal/auth"
	"distributor.app/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// withBearer requires an Authorization bearer header and stores the raw
// token in the request context without resolving the session.
func withBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			obs.ObserveResolveFailure(auth.KindInvalidCredentials)
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, r, http.StatusUnauthorized, auth.KindInvalidCredentials, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithToken(r.Context(), token)))
	})
}

// withAuth resolves the bearer token and stores the principal and token in
// the request context.
func (a *API) withAuth(next http.HandlerFunc) http.Handler {
	return withBearer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, _ := auth.TokenFromContext(r.Context())
		principal, err := a.sessions.Resolve(r.Context(), token)
		if err != nil {
			obs.ObserveResolveFailure(auth.KindOf(err))
			a.writeAuthError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
	}))
}

// principal returns the caller placed in the context by withAuth.
func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}

// mappedPrincipal extends the caller with the Microinvest identity and live
// user level.
func (a *API) mappedPrincipal(w http.ResponseWriter, r *http.Request) (auth.PrincipalWithMapping, bool) {
	pwm, err := a.mapper.AttachMapping(r.Context(), principal(r))
	if err != nil {
		a.writeAuthError(w, r, err)
		return auth.PrincipalWithMapping{}, false
	}
	return pwm, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("not authenticated")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("not authenticated")
	}
	return token, nil
}
