package admin

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/settlecore-backend/api/responses"
	"github.com/angelmondragon/settlecore-backend/api/validators"
	"github.com/angelmondragon/settlecore-backend/internal/disputes"
	internalorders "github.com/angelmondragon/settlecore-backend/internal/orders"
	"github.com/angelmondragon/settlecore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/settlecore-backend/pkg/errors"
	"github.com/angelmondragon/settlecore-backend/pkg/logger"
)

// windowExtender is the slice of the order surface the deadline extension
// writes through. Extension moves no money so it bypasses the step-up gate.
type windowExtender interface {
	ExtendDisputeWindow(ctx context.Context, input internalorders.ExtendDisputeWindowInput) (*models.Order, error)
}

type overrideRequest struct {
	Reason   string `json:"reason" validate:"required,min=3,max=1000"`
	Password string `json:"password,omitempty"`
	Phrase   string `json:"phrase,omitempty"`
}

// ForceComplete settles a delivered or disputed order to the seller by admin
// override.
func ForceComplete(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return overrideHandler(svc, logg, func(ctx context.Context, svc disputes.Service, input disputes.OverrideInput) (*models.Order, error) {
		return svc.ForceComplete(ctx, input)
	})
}

// ForceRefund returns escrow to the buyer by admin override.
func ForceRefund(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return overrideHandler(svc, logg, func(ctx context.Context, svc disputes.Service, input disputes.OverrideInput) (*models.Order, error) {
		return svc.ForceRefund(ctx, input)
	})
}

func overrideHandler(svc disputes.Service, logg *logger.Logger, call func(ctx context.Context, svc disputes.Service, input disputes.OverrideInput) (*models.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dispute service unavailable"))
			return
		}

		caller, err := adminActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := pathUUID(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload overrideRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := call(r.Context(), svc, disputes.OverrideInput{
			OrderID:   orderID,
			ActorID:   caller.ID,
			ActorRole: caller.Role,
			Reason:    validators.SanitizeString(payload.Reason, 1000),
			IPAddress: clientIP(r),
			Confirmation: disputes.Confirmation{
				Password: payload.Password,
				Phrase:   strings.TrimSpace(payload.Phrase),
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

type extendWindowRequest struct {
	AdditionalHours int    `json:"additional_hours" validate:"required,min=1,max=720"`
	Reason          string `json:"reason" validate:"required,min=3,max=1000"`
}

// ExtendDisputeWindow pushes the dispute deadline of a delivered order
// forward by whole hours. Seller protection shifts with it.
func ExtendDisputeWindow(svc windowExtender, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		caller, err := adminActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := pathUUID(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload extendWindowRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.ExtendDisputeWindow(r.Context(), internalorders.ExtendDisputeWindowInput{
			Admin: internalorders.AdminContext{
				ActorID:   caller.ID,
				ActorRole: caller.Role,
				Reason:    validators.SanitizeString(payload.Reason, 1000),
				IPAddress: clientIP(r),
			},
			OrderID:         orderID,
			AdditionalHours: payload.AdditionalHours,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}
