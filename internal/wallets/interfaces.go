package wallets

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlecore-backend/pkg/db/models"
	"github.com/angelmondragon/settlecore-backend/pkg/enums"
	"github.com/angelmondragon/settlecore-backend/pkg/pagination"
)

// Repository manages persistence for withdrawal requests and gift cards.
// Balance and entry persistence belongs to the ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateWithdrawal(ctx context.Context, withdrawal *models.WithdrawalRequest) (*models.WithdrawalRequest, error)
	FindWithdrawal(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error)
	// TransitionWithdrawal applies updates only while the row still holds the
	// expected status. False means another writer got there first.
	TransitionWithdrawal(ctx context.Context, id uuid.UUID, from enums.WithdrawalStatus, updates map[string]any) (bool, error)
	SetWithdrawalLedgerEntry(ctx context.Context, id, entryID uuid.UUID) error
	ListWithdrawals(ctx context.Context, filters WithdrawalFilters, params pagination.Params) (*WithdrawalList, error)

	CreateGiftCard(ctx context.Context, card *models.GiftCard) (*models.GiftCard, error)
	// FindGiftCardByCode locks the row for update when lock is set, so a
	// redemption holds the card until its transaction resolves.
	FindGiftCardByCode(ctx context.Context, code string, lock bool) (*models.GiftCard, error)
	FindGiftCard(ctx context.Context, id uuid.UUID) (*models.GiftCard, error)
	RedeemGiftCardRow(ctx context.Context, id, redeemedBy uuid.UUID, redeemedAt time.Time) (bool, error)
}
