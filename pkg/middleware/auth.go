package middleware

import (
	"net/http"

	"medislot/pkg/auth"
	apperrors "medislot/pkg/errors"
	httputil "medislot/pkg/http"
	"medislot/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

// Guard attaches the verified principal to protected routes.
type Guard struct {
	authenticator auth.Authenticator
	cookieName    string
	log           *logger.Logger
}

func NewGuard(authenticator auth.Authenticator, cookieName string, log *logger.Logger) *Guard {
	return &Guard{
		authenticator: authenticator,
		cookieName:    cookieName,
		log:           log,
	}
}

// Authenticated admits any verified actor.
func (g *Guard) Authenticated(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		token := g.credential(r)
		if token == "" {
			g.reject(w, r, apperrors.Unauthorized("Access denied. No token provided"))
			return
		}

		principal, err := g.authenticator.VerifyIdentity(r.Context(), token)
		if err != nil {
			g.reject(w, r, err)
			return
		}

		next(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)), ps)
	}
}

// RequireRole admits only actors holding role.
func (g *Guard) RequireRole(role auth.Role, next httprouter.Handle) httprouter.Handle {
	return g.Authenticated(func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		principal, _ := auth.PrincipalFrom(r.Context())
		if principal.Role != role {
			g.reject(w, r, apperrors.Forbidden(roleDeniedMessage(role)))
			return
		}
		next(w, r, ps)
	})
}

func roleDeniedMessage(role auth.Role) string {
	switch role {
	case auth.RoleAdmin:
		return "Admin access required"
	case auth.RolePatient:
		return "Patient access required"
	default:
		return "Access denied"
	}
}

// credential prefers the session cookie and falls back to a bearer token.
func (g *Guard) credential(r *http.Request) string {
	if c, err := r.Cookie(g.cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return httputil.BearerToken(r)
}

func (g *Guard) reject(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.AsAppError(err)
	g.log.Warn("Request rejected by identity gate",
		"request_id", RequestID(r.Context()),
		"code", appErr.Code,
		"path", r.URL.Path,
	)
	if writeErr := apperrors.WriteError(w, appErr); writeErr != nil {
		g.log.Error("failed to write error response", "handler", "Guard", "operation", "WriteError", "error", writeErr)
	}
}
