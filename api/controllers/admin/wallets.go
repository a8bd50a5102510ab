package admin

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlecore-backend/api/responses"
	"github.com/angelmondragon/settlecore-backend/api/validators"
	"github.com/angelmondragon/settlecore-backend/internal/disputes"
	"github.com/angelmondragon/settlecore-backend/internal/ledger"
	"github.com/angelmondragon/settlecore-backend/internal/wallets"
	"github.com/angelmondragon/settlecore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/settlecore-backend/pkg/errors"
	"github.com/angelmondragon/settlecore-backend/pkg/logger"
	"github.com/angelmondragon/settlecore-backend/pkg/pagination"
)

// walletAdmin is the slice of the wallet surface the privileged balance
// routes drive.
type walletAdmin interface {
	AdminCredit(ctx context.Context, input wallets.AdjustInput) ([]models.LedgerEntry, error)
	AdminDebit(ctx context.Context, input wallets.AdjustInput) ([]models.LedgerEntry, error)
	Freeze(ctx context.Context, input wallets.AdjustInput) ([]models.LedgerEntry, error)
	Unfreeze(ctx context.Context, input wallets.AdjustInput) ([]models.LedgerEntry, error)
	Balance(ctx context.Context, accountID uuid.UUID) (*ledger.Balance, error)
	History(ctx context.Context, accountID uuid.UUID, params pagination.Params) (*ledger.EntryList, error)
}

type adjustRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"required,min=1"`
	Reason      string `json:"reason" validate:"required,min=3,max=1000"`
	Password    string `json:"password,omitempty"`
	Phrase      string `json:"phrase,omitempty"`
}

// Credit adds funds to an account's available balance by admin action.
func Credit(svc walletAdmin, logg *logger.Logger) http.HandlerFunc {
	return adjustHandler(svc, logg, func(ctx context.Context, svc walletAdmin, input wallets.AdjustInput) ([]models.LedgerEntry, error) {
		return svc.AdminCredit(ctx, input)
	})
}

// Debit removes funds from an account's available balance by admin action.
func Debit(svc walletAdmin, logg *logger.Logger) http.HandlerFunc {
	return adjustHandler(svc, logg, func(ctx context.Context, svc walletAdmin, input wallets.AdjustInput) ([]models.LedgerEntry, error) {
		return svc.AdminDebit(ctx, input)
	})
}

// Freeze moves available funds into the frozen bucket pending review.
func Freeze(svc walletAdmin, logg *logger.Logger) http.HandlerFunc {
	return adjustHandler(svc, logg, func(ctx context.Context, svc walletAdmin, input wallets.AdjustInput) ([]models.LedgerEntry, error) {
		return svc.Freeze(ctx, input)
	})
}

// Unfreeze returns frozen funds to the available bucket.
func Unfreeze(svc walletAdmin, logg *logger.Logger) http.HandlerFunc {
	return adjustHandler(svc, logg, func(ctx context.Context, svc walletAdmin, input wallets.AdjustInput) ([]models.LedgerEntry, error) {
		return svc.Unfreeze(ctx, input)
	})
}

func adjustHandler(svc walletAdmin, logg *logger.Logger, call func(ctx context.Context, svc walletAdmin, input wallets.AdjustInput) ([]models.LedgerEntry, error)) http.HandlerFunc {
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

		accountID, err := pathUUID(r, "accountId", "account id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload adjustRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, err := call(r.Context(), svc, wallets.AdjustInput{
			AccountID:      accountID,
			AmountCents:    payload.AmountCents,
			IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
			ActorID:        caller.ID,
			ActorRole:      caller.Role,
			Reason:         validators.SanitizeString(payload.Reason, 1000),
			IPAddress:      clientIP(r),
			Confirmation: disputes.Confirmation{
				Password: payload.Password,
				Phrase:   strings.TrimSpace(payload.Phrase),
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, entries)
	}
}

// Balance returns any account's balance projection for support work.
func Balance(svc walletAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}

		accountID, err := pathUUID(r, "accountId", "account id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := svc.Balance(r.Context(), accountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balance)
	}
}

// History returns any account's ledger history for support work.
func History(svc walletAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}

		accountID, err := pathUUID(r, "accountId", "account id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		history, err := svc.History(r.Context(), accountID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, history)
	}
}
