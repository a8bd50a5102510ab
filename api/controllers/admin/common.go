package admin

import (
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/settlecore-backend/api/middleware"
	"github.com/angelmondragon/settlecore-backend/api/validators"
	"github.com/angelmondragon/settlecore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlecore-backend/pkg/errors"
	"github.com/angelmondragon/settlecore-backend/pkg/pagination"
)

// actor is the privileged caller as established by the auth middleware. The
// role travels with every admin mutation so the audit row records which tier
// acted.
type actor struct {
	ID   uuid.UUID
	Role enums.Role
}

func adminActor(r *http.Request) (actor, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	parsed, err := uuid.Parse(userID)
	if err != nil {
		return actor{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}
	role, err := enums.ParseRole(middleware.RoleFromContext(r.Context()))
	if err != nil {
		return actor{}, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	return actor{ID: parsed, Role: role}, nil
}

func pathUUID(r *http.Request, param, label string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, param))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, label+" is required")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+label)
	}
	return parsed, nil
}

func pageParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}

// clientIP recovers the caller address for the audit trail. Proxy headers
// win over the socket peer because the API sits behind the platform router.
func clientIP(r *http.Request) *string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return &ip
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return &real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		return nil
	}
	return &host
}
