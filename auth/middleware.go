package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/c360studio/taskhub/access"
	"github.com/c360studio/taskhub/workflow"
)

// Messages returned to clients on authentication failures.
const (
	MsgTokenRequired = "Token requerido"
	MsgTokenInvalid  = "Token inválido"
	MsgTokenExpired  = "Token expirado"
	MsgUserInactive  = "Usuario inactivo o no encontrado"
	MsgForbidden     = "No tienes permisos para realizar esta acción"
)

// UserLookup loads the user named by a token.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*workflow.User, error)
}

// RoleLookup loads a global role by ID.
type RoleLookup interface {
	GetRole(ctx context.Context, id string) (*workflow.Role, error)
}

// DenyFunc writes an authentication or authorization failure.
type DenyFunc func(w http.ResponseWriter, r *http.Request, status int, message string)

// Principal is the authenticated user attached to a request.
type Principal struct {
	User  *workflow.User
	Token string
}

// Actor returns the access-control view of the principal.
func (p *Principal) Actor() access.Actor {
	if p == nil || p.User == nil {
		return access.Actor{}
	}
	return access.Actor{UserID: p.User.ID, Role: p.User.RoleName}
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by the middleware, or nil.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

// Middleware authenticates bearer tokens.
type Middleware struct {
	Issuer *Issuer
	Users  UserLookup
	Deny   DenyFunc

	// Roles, when set, re-resolves the user's global role on every
	// request. A missing or inactive role grants no role privileges.
	Roles RoleLookup
}

// Authenticate requires a valid bearer token for an active user.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			m.Deny(w, r, http.StatusUnauthorized, MsgTokenRequired)
			return
		}
		claims, err := m.Issuer.Verify(raw)
		if errors.Is(err, ErrTokenExpired) {
			m.Deny(w, r, http.StatusUnauthorized, MsgTokenExpired)
			return
		}
		if err != nil {
			m.Deny(w, r, http.StatusUnauthorized, MsgTokenInvalid)
			return
		}
		user, err := m.Users.GetUser(r.Context(), claims.UserID)
		if err != nil || !user.IsActive {
			m.Deny(w, r, http.StatusUnauthorized, MsgUserInactive)
			return
		}
		if m.Roles != nil {
			user = m.withCurrentRole(r.Context(), user)
		}
		ctx := WithPrincipal(r.Context(), &Principal{User: user, Token: raw})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole admits only principals whose global role is one of roles.
// It must run after Authenticate.
func (m *Middleware) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := FromContext(r.Context())
			if p == nil {
				m.Deny(w, r, http.StatusUnauthorized, MsgTokenRequired)
				return
			}
			if !slices.Contains(roles, p.User.RoleName) {
				m.Deny(w, r, http.StatusForbidden, MsgForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// withCurrentRole returns a copy of u whose RoleName reflects the stored
// role rather than the name cached on the user.
func (m *Middleware) withCurrentRole(ctx context.Context, u *workflow.User) *workflow.User {
	cp := *u
	cp.RoleName = ""
	if cp.GlobalRole == "" {
		return &cp
	}
	role, err := m.Roles.GetRole(ctx, cp.GlobalRole)
	if err == nil && role.IsActive {
		cp.RoleName = role.Name
	}
	return &cp
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}
