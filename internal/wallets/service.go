package wallets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlecore-backend/internal/audit"
	"github.com/angelmondragon/settlecore-backend/internal/disputes"
	"github.com/angelmondragon/settlecore-backend/internal/ledger"
	"github.com/angelmondragon/settlecore-backend/pkg/db"
	"github.com/angelmondragon/settlecore-backend/pkg/db/models"
	"github.com/angelmondragon/settlecore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlecore-backend/pkg/errors"
	"github.com/angelmondragon/settlecore-backend/pkg/outbox"
	"github.com/angelmondragon/settlecore-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/settlecore-backend/pkg/pagination"
	"github.com/angelmondragon/settlecore-backend/pkg/security"
	"github.com/angelmondragon/settlecore-backend/pkg/types"
)

const giftCardCodeAttempts = 3

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type walletLedger interface {
	AppendTx(ctx context.Context, tx *gorm.DB, input ledger.AppendInput) ([]models.LedgerEntry, error)
	FindOperation(ctx context.Context, operationKey string) ([]models.LedgerEntry, error)
	Balance(ctx context.Context, accountID uuid.UUID) (*ledger.Balance, error)
	History(ctx context.Context, accountID uuid.UUID, params pagination.Params) (*ledger.EntryList, error)
}

type stepUpGuard interface {
	Confirm(ctx context.Context, input disputes.ConfirmInput) (*enums.ConfirmationMethod, error)
}

// Service owns every wallet movement that is not an order settlement:
// deposits, the withdrawal lifecycle, gift cards and privileged adjustments.
// All money flows through the ledger; rows here only describe intent.
type Service interface {
	Deposit(ctx context.Context, input DepositInput) (*models.LedgerEntry, error)
	Balance(ctx context.Context, accountID uuid.UUID) (*ledger.Balance, error)
	History(ctx context.Context, accountID uuid.UUID, params pagination.Params) (*ledger.EntryList, error)

	RequestWithdrawal(ctx context.Context, input RequestWithdrawalInput) (*models.WithdrawalRequest, error)
	CancelWithdrawal(ctx context.Context, input CancelWithdrawalInput) (*models.WithdrawalRequest, error)
	ProcessWithdrawal(ctx context.Context, input ProcessWithdrawalInput) (*models.WithdrawalRequest, error)
	GetWithdrawal(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error)
	ListWithdrawals(ctx context.Context, filters WithdrawalFilters, params pagination.Params) (*WithdrawalList, error)

	RedeemGiftCard(ctx context.Context, input RedeemGiftCardInput) (*models.GiftCard, error)
	IssueGiftCard(ctx context.Context, input IssueGiftCardInput) (*models.GiftCard, error)

	AdminCredit(ctx context.Context, input AdjustInput) ([]models.LedgerEntry, error)
	AdminDebit(ctx context.Context, input AdjustInput) ([]models.LedgerEntry, error)
	Freeze(ctx context.Context, input AdjustInput) ([]models.LedgerEntry, error)
	Unfreeze(ctx context.Context, input AdjustInput) ([]models.LedgerEntry, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	ledger  walletLedger
	guard   stepUpGuard
	auditor audit.Recorder
	outbox  outboxPublisher
	now     func() time.Time
}

// NewService wires the wallet service with its collaborators.
func NewService(
	repo Repository,
	tx txRunner,
	ledgerSvc walletLedger,
	guard stepUpGuard,
	auditor audit.Recorder,
	outboxSvc outboxPublisher,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if guard == nil {
		return nil, fmt.Errorf("step-up guard required")
	}
	if auditor == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		ledger:  ledgerSvc,
		guard:   guard,
		auditor: auditor,
		outbox:  outboxSvc,
		now:     time.Now,
	}, nil
}

func depositOperationKey(idempotencyKey string) string {
	return "wallet/deposit/" + idempotencyKey
}

func adjustOperationKey(idempotencyKey string) string {
	return "wallet/adjust/" + idempotencyKey
}

func redeemOperationKey(idempotencyKey string) string {
	return "giftcard/redeem/" + idempotencyKey
}

func requestOperationKey(idempotencyKey string) string {
	return "withdrawal/request/" + idempotencyKey
}

func withdrawalOperationKey(id uuid.UUID, step string) string {
	return fmt.Sprintf("withdrawal/%s/%s", id, step)
}

// withdrawalID derives a stable id from the requester and their idempotency
// key, so a retried request collides with the original row instead of
// locking funds twice.
func withdrawalID(accountID uuid.UUID, idempotencyKey string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("withdrawal:"+accountID.String()+"/"+idempotencyKey))
}

func (s *service) Deposit(ctx context.Context, input DepositInput) (*models.LedgerEntry, error) {
	if input.AccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	key := strings.TrimSpace(input.IdempotencyKey)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key required")
	}

	opKey := depositOperationKey(key)
	var entry models.LedgerEntry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		entries, err := s.ledger.AppendTx(ctx, tx, ledger.AppendInput{
			OperationKey: opKey,
			ActorID:      &input.AccountID,
			Entries: []ledger.EntryInput{{
				AccountID:   input.AccountID,
				AmountCents: input.AmountCents,
				Bucket:      enums.LedgerBucketAvailable,
				Reason:      enums.LedgerReasonDeposit,
			}},
		})
		if err != nil {
			return err
		}
		entry = entries[0]

		// The entry id keys the event, so repeat deposits to one account
		// never collide on the outbox dedupe index.
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWalletDeposited,
			AggregateType: enums.AggregateWallet,
			AggregateID:   entry.ID,
			Actor:         buildActor(input.AccountID, enums.RoleUser),
			Data: payloads.WalletDepositedEvent{
				AccountID:   input.AccountID,
				EntryID:     entry.ID,
				AmountCents: input.AmountCents,
			},
		})
	})
	if err != nil {
		if isCode(err, pkgerrors.CodeIdempotency) {
			return s.replayDeposit(ctx, opKey, input)
		}
		return nil, err
	}
	return &entry, nil
}

// replayDeposit resolves an idempotency collision: when the original
// operation was the same deposit, the retry succeeds with the original entry.
func (s *service) replayDeposit(ctx context.Context, opKey string, input DepositInput) (*models.LedgerEntry, error) {
	entries, err := s.ledger.FindOperation(ctx, opKey)
	if err != nil {
		return nil, err
	}
	if len(entries) == 1 {
		original := entries[0]
		if original.AccountID == input.AccountID &&
			original.AmountCents == input.AmountCents &&
			original.Reason == enums.LedgerReasonDeposit {
			return &original, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key already used by another operation")
}

func (s *service) Balance(ctx context.Context, accountID uuid.UUID) (*ledger.Balance, error) {
	return s.ledger.Balance(ctx, accountID)
}

func (s *service) History(ctx context.Context, accountID uuid.UUID, params pagination.Params) (*ledger.EntryList, error) {
	return s.ledger.History(ctx, accountID, params)
}

func (s *service) RequestWithdrawal(ctx context.Context, input RequestWithdrawalInput) (*models.WithdrawalRequest, error) {
	if input.AccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	method := strings.TrimSpace(input.PaymentMethod)
	if method == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method required")
	}
	key := strings.TrimSpace(input.IdempotencyKey)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key required")
	}

	id := withdrawalID(input.AccountID, key)
	var created *models.WithdrawalRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		row := &models.WithdrawalRequest{
			ID:             id,
			AccountID:      input.AccountID,
			AmountCents:    input.AmountCents,
			PaymentMethod:  method,
			PaymentDetails: input.PaymentDetails,
			Status:         enums.WithdrawalStatusPending,
		}
		if _, err := repo.CreateWithdrawal(ctx, row); err != nil {
			if db.IsUniqueViolation(err, "withdrawal_requests") {
				return pkgerrors.Wrap(pkgerrors.CodeIdempotency, err, "withdrawal already requested with this key")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create withdrawal request")
		}

		// Funds sit in frozen while the request is pending; value leaves the
		// ledger only on approval.
		if _, err := s.ledger.AppendTx(ctx, tx, ledger.AppendInput{
			OperationKey: requestOperationKey(key),
			ActorID:      &input.AccountID,
			Entries: []ledger.EntryInput{
				{
					AccountID:   input.AccountID,
					AmountCents: -input.AmountCents,
					Bucket:      enums.LedgerBucketAvailable,
					Reason:      enums.LedgerReasonWithdrawal,
				},
				{
					AccountID:   input.AccountID,
					AmountCents: input.AmountCents,
					Bucket:      enums.LedgerBucketFrozen,
					Reason:      enums.LedgerReasonWithdrawal,
				},
			},
		}); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWithdrawalRequested,
			AggregateType: enums.AggregateWithdrawal,
			AggregateID:   row.ID,
			Actor:         buildActor(input.AccountID, enums.RoleUser),
			Data: payloads.WithdrawalRequestedEvent{
				WithdrawalID:  row.ID,
				AccountID:     input.AccountID,
				AmountCents:   input.AmountCents,
				PaymentMethod: method,
			},
		}); err != nil {
			return err
		}

		created = row
		return nil
	})
	if err != nil {
		if isCode(err, pkgerrors.CodeIdempotency) {
			return s.replayWithdrawal(ctx, id, input.AmountCents, method)
		}
		return nil, err
	}
	return created, nil
}

func (s *service) replayWithdrawal(ctx context.Context, id uuid.UUID, amountCents int64, method string) (*models.WithdrawalRequest, error) {
	original, err := s.repo.FindWithdrawal(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			// The ledger key exists but no request row does: the key was
			// spent by a different account or operation.
			return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key already used by another operation")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load withdrawal request")
	}
	if original.AmountCents != amountCents || original.PaymentMethod != method {
		return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key already used by another operation")
	}
	return original, nil
}

func (s *service) CancelWithdrawal(ctx context.Context, input CancelWithdrawalInput) (*models.WithdrawalRequest, error) {
	if input.AccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "account identity missing")
	}
	if input.WithdrawalID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "withdrawal id required")
	}

	var result *models.WithdrawalRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := repo.FindWithdrawal(ctx, input.WithdrawalID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load withdrawal request")
		}
		if current.AccountID != input.AccountID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "withdrawal belongs to another account")
		}
		if current.Status == enums.WithdrawalStatusCancelled {
			result = current
			return nil
		}
		if current.Status != enums.WithdrawalStatusPending {
			return pkgerrors.New(pkgerrors.CodeConflict, "withdrawal already processed")
		}

		updated, err := repo.TransitionWithdrawal(ctx, current.ID, enums.WithdrawalStatusPending, map[string]any{
			"status": enums.WithdrawalStatusCancelled,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel withdrawal")
		}
		if !updated {
			return pkgerrors.New(pkgerrors.CodeConflict, "withdrawal already processed")
		}

		if _, err := s.ledger.AppendTx(ctx, tx, ledger.AppendInput{
			OperationKey: withdrawalOperationKey(current.ID, "cancel"),
			ActorID:      &input.AccountID,
			Entries: []ledger.EntryInput{
				{
					AccountID:   current.AccountID,
					AmountCents: current.AmountCents,
					Bucket:      enums.LedgerBucketAvailable,
					Reason:      enums.LedgerReasonWithdrawal,
				},
				{
					AccountID:   current.AccountID,
					AmountCents: -current.AmountCents,
					Bucket:      enums.LedgerBucketFrozen,
					Reason:      enums.LedgerReasonWithdrawal,
				},
			},
		}); err != nil {
			return err
		}

		result, err = repo.FindWithdrawal(ctx, current.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) ProcessWithdrawal(ctx context.Context, input ProcessWithdrawalInput) (*models.WithdrawalRequest, error) {
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "admin identity missing")
	}
	if !input.ActorRole.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "privileged action requires an admin role")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason required")
	}
	if input.Decision != WithdrawalDecisionApprove && input.Decision != WithdrawalDecisionReject {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown withdrawal decision")
	}
	rejection := strings.TrimSpace(input.RejectionReason)
	if input.Decision == WithdrawalDecisionReject && rejection == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason required")
	}

	current, err := s.repo.FindWithdrawal(ctx, input.WithdrawalID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load withdrawal request")
	}
	if current.Status != enums.WithdrawalStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "withdrawal already processed")
	}

	method, err := s.guard.Confirm(ctx, disputes.ConfirmInput{
		ActorID:      input.ActorID,
		ActorRole:    input.ActorRole,
		AmountCents:  current.AmountCents,
		Confirmation: input.Confirmation,
	})
	if err != nil {
		return nil, err
	}

	var result *models.WithdrawalRequest
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		processedAt := s.now()

		updates := map[string]any{
			"processed_by": input.ActorID,
			"processed_at": processedAt,
			"admin_notes":  input.AdminNotes,
		}
		if input.Decision == WithdrawalDecisionApprove {
			updates["status"] = enums.WithdrawalStatusApproved
		} else {
			updates["status"] = enums.WithdrawalStatusRejected
			updates["rejection_reason"] = rejection
		}

		// The status guard serializes concurrent processing: the loser
		// updates zero rows and the money moves exactly once.
		updated, err := repo.TransitionWithdrawal(ctx, current.ID, enums.WithdrawalStatusPending, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "process withdrawal")
		}
		if !updated {
			return pkgerrors.New(pkgerrors.CodeConflict, "withdrawal already processed")
		}

		if input.Decision == WithdrawalDecisionApprove {
			entries, err := s.ledger.AppendTx(ctx, tx, ledger.AppendInput{
				OperationKey: withdrawalOperationKey(current.ID, "approve"),
				ActorID:      &input.ActorID,
				Entries: []ledger.EntryInput{{
					AccountID:   current.AccountID,
					AmountCents: -current.AmountCents,
					Bucket:      enums.LedgerBucketFrozen,
					Reason:      enums.LedgerReasonWithdrawal,
				}},
			})
			if err != nil {
				return err
			}
			if err := repo.SetWithdrawalLedgerEntry(ctx, current.ID, entries[0].ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link payout entry")
			}
		} else {
			if _, err := s.ledger.AppendTx(ctx, tx, ledger.AppendInput{
				OperationKey: withdrawalOperationKey(current.ID, "reject"),
				ActorID:      &input.ActorID,
				Entries: []ledger.EntryInput{
					{
						AccountID:   current.AccountID,
						AmountCents: current.AmountCents,
						Bucket:      enums.LedgerBucketAvailable,
						Reason:      enums.LedgerReasonWithdrawal,
					},
					{
						AccountID:   current.AccountID,
						AmountCents: -current.AmountCents,
						Bucket:      enums.LedgerBucketFrozen,
						Reason:      enums.LedgerReasonWithdrawal,
					},
				},
			}); err != nil {
				return err
			}
		}

		if _, err := s.auditor.Record(ctx, tx, audit.Entry{
			ActorID:            input.ActorID,
			ActorRole:          input.ActorRole,
			ActionType:         enums.AdminActionWithdrawalProcessed,
			TargetType:         enums.TargetTypeWithdrawal,
			TargetID:           current.ID,
			Reason:             reason,
			IPAddress:          input.IPAddress,
			ConfirmationMethod: method,
			Details: types.JSONMap{
				"decision":     string(input.Decision),
				"account_id":   current.AccountID.String(),
				"amount_cents": current.AmountCents,
			},
		}); err != nil {
			return err
		}

		var event outbox.DomainEvent
		if input.Decision == WithdrawalDecisionApprove {
			event = outbox.DomainEvent{
				EventType:     enums.EventWithdrawalApproved,
				AggregateType: enums.AggregateWithdrawal,
				AggregateID:   current.ID,
				Actor:         buildActor(input.ActorID, input.ActorRole),
				Data: payloads.WithdrawalApprovedEvent{
					WithdrawalID: current.ID,
					AccountID:    current.AccountID,
					AmountCents:  current.AmountCents,
					ProcessedBy:  input.ActorID,
					ProcessedAt:  processedAt,
				},
			}
		} else {
			event = outbox.DomainEvent{
				EventType:     enums.EventWithdrawalRejected,
				AggregateType: enums.AggregateWithdrawal,
				AggregateID:   current.ID,
				Actor:         buildActor(input.ActorID, input.ActorRole),
				Data: payloads.WithdrawalRejectedEvent{
					WithdrawalID: current.ID,
					AccountID:    current.AccountID,
					AmountCents:  current.AmountCents,
					Reason:       rejection,
				},
			}
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}

		result, err = repo.FindWithdrawal(ctx, current.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) GetWithdrawal(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "withdrawal id required")
	}
	withdrawal, err := s.repo.FindWithdrawal(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load withdrawal request")
	}
	return withdrawal, nil
}

func (s *service) ListWithdrawals(ctx context.Context, filters WithdrawalFilters, params pagination.Params) (*WithdrawalList, error) {
	list, err := s.repo.ListWithdrawals(ctx, filters, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list withdrawal requests")
	}
	return list, nil
}

func (s *service) RedeemGiftCard(ctx context.Context, input RedeemGiftCardInput) (*models.GiftCard, error) {
	if input.AccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	code := strings.ToUpper(strings.TrimSpace(input.Code))
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gift card code required")
	}
	key := strings.TrimSpace(input.IdempotencyKey)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key required")
	}

	var card *models.GiftCard
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		found, err := repo.FindGiftCardByCode(ctx, code, true)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "gift card not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gift card")
		}

		redeemedAt := s.now()
		switch found.Status {
		case enums.GiftCardStatusRedeemed:
			if found.RedeemedBy != nil && *found.RedeemedBy == input.AccountID {
				// Replay of a successful redemption.
				card = found
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeConflict, "gift card already redeemed")
		case enums.GiftCardStatusVoid:
			return pkgerrors.New(pkgerrors.CodeConflict, "gift card is no longer redeemable")
		}
		if found.ExpiresAt != nil && !redeemedAt.Before(*found.ExpiresAt) {
			return pkgerrors.New(pkgerrors.CodeValidation, "gift card expired")
		}

		updated, err := repo.RedeemGiftCardRow(ctx, found.ID, input.AccountID, redeemedAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redeem gift card")
		}
		if !updated {
			return pkgerrors.New(pkgerrors.CodeConflict, "gift card already redeemed")
		}

		if _, err := s.ledger.AppendTx(ctx, tx, ledger.AppendInput{
			OperationKey: redeemOperationKey(key),
			ActorID:      &input.AccountID,
			Entries: []ledger.EntryInput{{
				AccountID:   input.AccountID,
				AmountCents: found.AmountCents,
				Bucket:      enums.LedgerBucketAvailable,
				Reason:      enums.LedgerReasonGiftCardRedeem,
			}},
		}); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventGiftCardRedeemed,
			AggregateType: enums.AggregateGiftCard,
			AggregateID:   found.ID,
			Actor:         buildActor(input.AccountID, enums.RoleUser),
			Data: payloads.GiftCardRedeemedEvent{
				GiftCardID:  found.ID,
				AccountID:   input.AccountID,
				AmountCents: found.AmountCents,
				RedeemedAt:  redeemedAt,
			},
		}); err != nil {
			return err
		}

		found.Status = enums.GiftCardStatusRedeemed
		found.RedeemedBy = &input.AccountID
		found.RedeemedAt = &redeemedAt
		card = found
		return nil
	})
	if err != nil {
		if isCode(err, pkgerrors.CodeIdempotency) {
			return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key already used by another operation")
		}
		return nil, err
	}
	return card, nil
}

func (s *service) IssueGiftCard(ctx context.Context, input IssueGiftCardInput) (*models.GiftCard, error) {
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "expiry must be in the future")
	}
	admin, err := s.clearAdmin(ctx, input.ActorID, input.ActorRole, input.Reason, input.AmountCents, "", input.Confirmation)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		code, err := generateGiftCardCode()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate gift card code")
		}

		card := &models.GiftCard{
			ID:          uuid.New(),
			Code:        code,
			AmountCents: input.AmountCents,
			Status:      enums.GiftCardStatusActive,
			ExpiresAt:   input.ExpiresAt,
			CreatedBy:   input.ActorID,
		}

		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if _, err := repo.CreateGiftCard(ctx, card); err != nil {
				return err
			}
			_, err := s.auditor.Record(ctx, tx, audit.Entry{
				ActorID:            input.ActorID,
				ActorRole:          input.ActorRole,
				ActionType:         enums.AdminActionGiftCardIssued,
				TargetType:         enums.TargetTypeGiftCard,
				TargetID:           card.ID,
				Reason:             admin.reason,
				IPAddress:          input.IPAddress,
				ConfirmationMethod: admin.method,
				Details: types.JSONMap{
					"amount_cents": input.AmountCents,
					"expires_at":   formatTimePtr(input.ExpiresAt),
				},
			})
			return err
		})
		if err != nil {
			if db.IsUniqueViolation(err, "gift_cards") && attempt < giftCardCodeAttempts {
				continue
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "issue gift card")
		}
		return card, nil
	}
}

func (s *service) AdminCredit(ctx context.Context, input AdjustInput) ([]models.LedgerEntry, error) {
	return s.adjust(ctx, input, adjustSpec{
		action: enums.AdminActionWalletCredit,
		reason: enums.LedgerReasonAdminCredit,
		legs: func(accountID uuid.UUID, amount int64) []ledger.EntryInput {
			return []ledger.EntryInput{{
				AccountID:   accountID,
				AmountCents: amount,
				Bucket:      enums.LedgerBucketAvailable,
				Reason:      enums.LedgerReasonAdminCredit,
			}}
		},
	})
}

func (s *service) AdminDebit(ctx context.Context, input AdjustInput) ([]models.LedgerEntry, error) {
	return s.adjust(ctx, input, adjustSpec{
		action: enums.AdminActionWalletDebit,
		reason: enums.LedgerReasonAdminDebit,
		phrase: disputes.PhraseConfirmDebit,
		legs: func(accountID uuid.UUID, amount int64) []ledger.EntryInput {
			return []ledger.EntryInput{{
				AccountID:   accountID,
				AmountCents: -amount,
				Bucket:      enums.LedgerBucketAvailable,
				Reason:      enums.LedgerReasonAdminDebit,
			}}
		},
	})
}

func (s *service) Freeze(ctx context.Context, input AdjustInput) ([]models.LedgerEntry, error) {
	return s.adjust(ctx, input, adjustSpec{
		action: enums.AdminActionWalletFreeze,
		reason: enums.LedgerReasonAdminFreeze,
		phrase: disputes.PhraseConfirmFreeze,
		legs: func(accountID uuid.UUID, amount int64) []ledger.EntryInput {
			return []ledger.EntryInput{
				{
					AccountID:   accountID,
					AmountCents: -amount,
					Bucket:      enums.LedgerBucketAvailable,
					Reason:      enums.LedgerReasonAdminFreeze,
				},
				{
					AccountID:   accountID,
					AmountCents: amount,
					Bucket:      enums.LedgerBucketFrozen,
					Reason:      enums.LedgerReasonAdminFreeze,
				},
			}
		},
	})
}

func (s *service) Unfreeze(ctx context.Context, input AdjustInput) ([]models.LedgerEntry, error) {
	return s.adjust(ctx, input, adjustSpec{
		action: enums.AdminActionWalletUnfreeze,
		reason: enums.LedgerReasonAdminUnfreeze,
		legs: func(accountID uuid.UUID, amount int64) []ledger.EntryInput {
			return []ledger.EntryInput{
				{
					AccountID:   accountID,
					AmountCents: -amount,
					Bucket:      enums.LedgerBucketFrozen,
					Reason:      enums.LedgerReasonAdminUnfreeze,
				},
				{
					AccountID:   accountID,
					AmountCents: amount,
					Bucket:      enums.LedgerBucketAvailable,
					Reason:      enums.LedgerReasonAdminUnfreeze,
				},
			}
		},
	})
}

type adjustSpec struct {
	action enums.AdminActionType
	reason enums.LedgerReason
	phrase string
	legs   func(accountID uuid.UUID, amount int64) []ledger.EntryInput
}

func (s *service) adjust(ctx context.Context, input AdjustInput, spec adjustSpec) ([]models.LedgerEntry, error) {
	if input.AccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	key := strings.TrimSpace(input.IdempotencyKey)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key required")
	}
	admin, err := s.clearAdmin(ctx, input.ActorID, input.ActorRole, input.Reason, input.AmountCents, spec.phrase, input.Confirmation)
	if err != nil {
		return nil, err
	}

	opKey := adjustOperationKey(key)
	legs := spec.legs(input.AccountID, input.AmountCents)
	var entries []models.LedgerEntry
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		appended, err := s.ledger.AppendTx(ctx, tx, ledger.AppendInput{
			OperationKey: opKey,
			ActorID:      &input.ActorID,
			Entries:      legs,
		})
		if err != nil {
			return err
		}
		entries = appended

		action, err := s.auditor.Record(ctx, tx, audit.Entry{
			ActorID:            input.ActorID,
			ActorRole:          input.ActorRole,
			ActionType:         spec.action,
			TargetType:         enums.TargetTypeAccount,
			TargetID:           input.AccountID,
			Reason:             admin.reason,
			IPAddress:          input.IPAddress,
			ConfirmationMethod: admin.method,
			Details: types.JSONMap{
				"amount_cents":  input.AmountCents,
				"ledger_reason": string(spec.reason),
			},
		})
		if err != nil {
			return err
		}

		// The action id keys the event, so repeat adjustments of one account
		// never collide on the outbox dedupe index.
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWalletAdjusted,
			AggregateType: enums.AggregateWallet,
			AggregateID:   action.ID,
			Actor:         buildActor(input.ActorID, input.ActorRole),
			Data: payloads.WalletAdjustedEvent{
				AccountID:   input.AccountID,
				Action:      spec.action,
				AmountCents: input.AmountCents,
				Reason:      admin.reason,
			},
		})
	})
	if err != nil {
		if isCode(err, pkgerrors.CodeIdempotency) {
			return s.replayAdjust(ctx, opKey, legs)
		}
		return nil, err
	}
	return entries, nil
}

func (s *service) replayAdjust(ctx context.Context, opKey string, legs []ledger.EntryInput) ([]models.LedgerEntry, error) {
	entries, err := s.ledger.FindOperation(ctx, opKey)
	if err != nil {
		return nil, err
	}
	if len(entries) == len(legs) {
		match := true
		for i, leg := range legs {
			if entries[i].AccountID != leg.AccountID ||
				entries[i].AmountCents != leg.AmountCents ||
				entries[i].Bucket != leg.Bucket ||
				entries[i].Reason != leg.Reason {
				match = false
				break
			}
		}
		if match {
			return entries, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key already used by another operation")
}

type clearedAdmin struct {
	reason string
	method *enums.ConfirmationMethod
}

func (s *service) clearAdmin(
	ctx context.Context,
	actorID uuid.UUID,
	role enums.Role,
	reason string,
	amountCents int64,
	phrase string,
	confirmation disputes.Confirmation,
) (clearedAdmin, error) {
	if actorID == uuid.Nil {
		return clearedAdmin{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "admin identity missing")
	}
	if !role.IsAdmin() {
		return clearedAdmin{}, pkgerrors.New(pkgerrors.CodeForbidden, "privileged action requires an admin role")
	}
	trimmed := strings.TrimSpace(reason)
	if trimmed == "" {
		return clearedAdmin{}, pkgerrors.New(pkgerrors.CodeValidation, "reason required")
	}

	method, err := s.guard.Confirm(ctx, disputes.ConfirmInput{
		ActorID:        actorID,
		ActorRole:      role,
		AmountCents:    amountCents,
		RequiredPhrase: phrase,
		Confirmation:   confirmation,
	})
	if err != nil {
		return clearedAdmin{}, err
	}
	return clearedAdmin{reason: trimmed, method: method}, nil
}

func generateGiftCardCode() (string, error) {
	raw, err := security.GenerateTempPassword(16)
	if err != nil {
		return "", err
	}
	upper := strings.ToUpper(raw)

	var b strings.Builder
	for i, r := range upper {
		if i > 0 && i%4 == 0 {
			b.WriteByte('-')
		}
		b.WriteRune(r)
	}
	return b.String(), nil
}

func buildActor(userID uuid.UUID, role enums.Role) *outbox.ActorRef {
	if userID == uuid.Nil {
		return nil
	}
	ref := &outbox.ActorRef{UserID: userID}
	if role != "" {
		ref.Role = string(role)
	}
	return ref
}

func isCode(err error, code pkgerrors.Code) bool {
	typed := pkgerrors.As(err)
	return typed != nil && typed.Code() == code
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
