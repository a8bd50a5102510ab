package admin

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/settlecore-backend/api/responses"
	"github.com/angelmondragon/settlecore-backend/api/validators"
	"github.com/angelmondragon/settlecore-backend/internal/disputes"
	"github.com/angelmondragon/settlecore-backend/internal/wallets"
	"github.com/angelmondragon/settlecore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/settlecore-backend/pkg/errors"
	"github.com/angelmondragon/settlecore-backend/pkg/logger"
)

type giftCardIssuer interface {
	IssueGiftCard(ctx context.Context, input wallets.IssueGiftCardInput) (*models.GiftCard, error)
}

type issueGiftCardRequest struct {
	AmountCents int64      `json:"amount_cents" validate:"required,min=1"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Reason      string     `json:"reason" validate:"required,min=3,max=1000"`
	Password    string     `json:"password,omitempty"`
	Phrase      string     `json:"phrase,omitempty"`
}

// IssueGiftCard mints a redeemable code worth the given amount. The code is
// returned once in the response and never listed again.
func IssueGiftCard(svc giftCardIssuer, logg *logger.Logger) http.HandlerFunc {
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

		var payload issueGiftCardRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		card, err := svc.IssueGiftCard(r.Context(), wallets.IssueGiftCardInput{
			ActorID:     caller.ID,
			ActorRole:   caller.Role,
			Reason:      validators.SanitizeString(payload.Reason, 1000),
			IPAddress:   clientIP(r),
			AmountCents: payload.AmountCents,
			ExpiresAt:   payload.ExpiresAt,
			Confirmation: disputes.Confirmation{
				Password: payload.Password,
				Phrase:   strings.TrimSpace(payload.Phrase),
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, card)
	}
}
