package admin

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlecore-backend/api/responses"
	"github.com/angelmondragon/settlecore-backend/api/validators"
	"github.com/angelmondragon/settlecore-backend/internal/disputes"
	"github.com/angelmondragon/settlecore-backend/internal/wallets"
	"github.com/angelmondragon/settlecore-backend/pkg/db/models"
	"github.com/angelmondragon/settlecore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlecore-backend/pkg/errors"
	"github.com/angelmondragon/settlecore-backend/pkg/logger"
	"github.com/angelmondragon/settlecore-backend/pkg/pagination"
)

// withdrawalDesk is the slice of the wallet surface the payout review
// routes drive.
type withdrawalDesk interface {
	ListWithdrawals(ctx context.Context, filters wallets.WithdrawalFilters, params pagination.Params) (*wallets.WithdrawalList, error)
	ProcessWithdrawal(ctx context.Context, input wallets.ProcessWithdrawalInput) (*models.WithdrawalRequest, error)
}

// ListWithdrawals returns the payout queue across all accounts.
func ListWithdrawals(svc withdrawalDesk, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}

		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var filters wallets.WithdrawalFilters
		if raw := strings.TrimSpace(r.URL.Query().Get("account_id")); raw != "" {
			accountID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid account id"))
				return
			}
			filters.AccountID = &accountID
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseWithdrawalStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			filters.Status = &status
		}

		list, err := svc.ListWithdrawals(r.Context(), filters, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

type processWithdrawalRequest struct {
	Decision        string  `json:"decision" validate:"required,oneof=approve reject"`
	RejectionReason string  `json:"rejection_reason,omitempty" validate:"omitempty,max=1000"`
	AdminNotes      *string `json:"admin_notes,omitempty"`
	Reason          string  `json:"reason" validate:"required,min=3,max=1000"`
	Password        string  `json:"password,omitempty"`
	Phrase          string  `json:"phrase,omitempty"`
}

// ProcessWithdrawal settles a pending withdrawal. Approval pays the frozen
// hold out; rejection returns it to the available balance.
func ProcessWithdrawal(svc withdrawalDesk, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}

		caller, err := adminActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		withdrawalID, err := pathUUID(r, "withdrawalId", "withdrawal id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload processWithdrawalRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var notes *string
		if payload.AdminNotes != nil {
			clean := validators.SanitizeString(*payload.AdminNotes, 2000)
			notes = &clean
		}

		withdrawal, err := svc.ProcessWithdrawal(r.Context(), wallets.ProcessWithdrawalInput{
			WithdrawalID:    withdrawalID,
			ActorID:         caller.ID,
			ActorRole:       caller.Role,
			Reason:          validators.SanitizeString(payload.Reason, 1000),
			IPAddress:       clientIP(r),
			Decision:        wallets.WithdrawalDecision(payload.Decision),
			RejectionReason: validators.SanitizeString(payload.RejectionReason, 1000),
			AdminNotes:      notes,
			Confirmation: disputes.Confirmation{
				Password: payload.Password,
				Phrase:   strings.TrimSpace(payload.Phrase),
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, withdrawal)
	}
}
