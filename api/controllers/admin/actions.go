package admin

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlecore-backend/api/responses"
	"github.com/angelmondragon/settlecore-backend/internal/audit"
	"github.com/angelmondragon/settlecore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlecore-backend/pkg/errors"
	"github.com/angelmondragon/settlecore-backend/pkg/logger"
	"github.com/angelmondragon/settlecore-backend/pkg/pagination"
)

type actionLog interface {
	List(ctx context.Context, params pagination.Params, filters audit.Filters) (*audit.ActionList, error)
}

// ListActions returns the admin audit trail, newest first.
func ListActions(svc actionLog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "audit service unavailable"))
			return
		}

		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filters, err := buildActionFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func buildActionFilters(r *http.Request) (audit.Filters, error) {
	var filters audit.Filters

	if raw := strings.TrimSpace(r.URL.Query().Get("actor_id")); raw != "" {
		actorID, err := uuid.Parse(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid actor id")
		}
		filters.ActorID = &actorID
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("action_type")); raw != "" {
		actionType, err := enums.ParseAdminActionType(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid action type")
		}
		filters.ActionType = &actionType
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("target_type")); raw != "" {
		targetType, err := enums.ParseTargetType(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target type")
		}
		filters.TargetType = &targetType
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("target_id")); raw != "" {
		targetID, err := uuid.Parse(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target id")
		}
		filters.TargetID = &targetID
	}

	return filters, nil
}
