package admin

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/angelmondragon/settlecore-backend/api/responses"
	"github.com/angelmondragon/settlecore-backend/api/validators"
	"github.com/angelmondragon/settlecore-backend/internal/disputes"
	internalorders "github.com/angelmondragon/settlecore-backend/internal/orders"
	"github.com/angelmondragon/settlecore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlecore-backend/pkg/errors"
	"github.com/angelmondragon/settlecore-backend/pkg/logger"
	"github.com/angelmondragon/settlecore-backend/pkg/pagination"
)

// disputeQueue is the slice of the order surface the dispute list reads.
type disputeQueue interface {
	ListDisputes(ctx context.Context, filters internalorders.DisputeFilters, params pagination.Params) (*internalorders.DisputeList, error)
}

// ListDisputes returns the dispute queue, open ones first in the default
// view. open=true narrows to unresolved, open=false to resolved.
func ListDisputes(svc disputeQueue, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var filters internalorders.DisputeFilters
		if raw := strings.TrimSpace(r.URL.Query().Get("open")); raw != "" {
			open, err := strconv.ParseBool(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "open must be true or false"))
				return
			}
			filters.Open = &open
		}

		list, err := svc.ListDisputes(r.Context(), filters, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

type resolveDisputeRequest struct {
	Resolution  string  `json:"resolution" validate:"required"`
	Note        *string `json:"note,omitempty"`
	RefundCents int64   `json:"refund_cents,omitempty" validate:"omitempty,min=0"`
	PayoutCents int64   `json:"payout_cents,omitempty" validate:"omitempty,min=0"`
	Reason      string  `json:"reason" validate:"required,min=3,max=1000"`
	Password    string  `json:"password,omitempty"`
	Phrase      string  `json:"phrase,omitempty"`
}

// ResolveDispute applies an admin resolution to a disputed order. The
// step-up factors ride in the body and are verified before any money moves.
func ResolveDispute(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
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

		var payload resolveDisputeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resolution, err := enums.ParseDisputeResolution(payload.Resolution)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid resolution"))
			return
		}

		var note *string
		if payload.Note != nil {
			clean := validators.SanitizeString(*payload.Note, 2000)
			note = &clean
		}

		order, err := svc.Resolve(r.Context(), disputes.ResolveInput{
			OrderID:     orderID,
			ActorID:     caller.ID,
			ActorRole:   caller.Role,
			Reason:      validators.SanitizeString(payload.Reason, 1000),
			IPAddress:   clientIP(r),
			Resolution:  resolution,
			RefundCents: payload.RefundCents,
			PayoutCents: payload.PayoutCents,
			Note:        note,
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
