package admin

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/settlecore-backend/api/responses"
	"github.com/angelmondragon/settlecore-backend/api/validators"
	"github.com/angelmondragon/settlecore-backend/internal/platformconfig"
	"github.com/angelmondragon/settlecore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/settlecore-backend/pkg/errors"
	"github.com/angelmondragon/settlecore-backend/pkg/logger"
)

type configStore interface {
	All(ctx context.Context) ([]models.PlatformConfigEntry, error)
	Update(ctx context.Context, input platformconfig.UpdateInput) (*models.PlatformConfigEntry, error)
}

// ListConfig returns every runtime setting with its current value.
func ListConfig(svc configStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "config service unavailable"))
			return
		}

		entries, err := svc.All(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, entries)
	}
}

type updateConfigRequest struct {
	Value  string `json:"value" validate:"required,max=255"`
	Reason string `json:"reason" validate:"required,min=3,max=1000"`
}

// UpdateConfig changes one runtime setting. The write is audited and the
// read cache expires within its TTL, so running transitions pick the new
// value up without a restart.
func UpdateConfig(svc configStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "config service unavailable"))
			return
		}

		caller, err := adminActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		key := strings.TrimSpace(chi.URLParam(r, "key"))
		if key == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "config key is required"))
			return
		}

		var payload updateConfigRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entry, err := svc.Update(r.Context(), platformconfig.UpdateInput{
			Key:       key,
			Value:     strings.TrimSpace(payload.Value),
			ActorID:   caller.ID,
			ActorRole: caller.Role,
			Reason:    validators.SanitizeString(payload.Reason, 1000),
			IPAddress: clientIP(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, entry)
	}
}
