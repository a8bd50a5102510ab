package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlecore-backend/pkg/db"
	"github.com/angelmondragon/settlecore-backend/pkg/db/models"
	"github.com/angelmondragon/settlecore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlecore-backend/pkg/errors"
	"github.com/angelmondragon/settlecore-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// EntryInput is one leg of an atomic append.
type EntryInput struct {
	AccountID       uuid.UUID
	AmountCents     int64
	Bucket          enums.LedgerBucket
	Reason          enums.LedgerReason
	RelatedOrderID  *uuid.UUID
	ReversesEntryID *uuid.UUID
	Memo            *string
}

// AppendInput groups the legs of one money movement. Either every entry
// commits or none do. Per-entry idempotency keys derive from the operation
// key, so replaying the same operation appends nothing.
type AppendInput struct {
	OperationKey string
	ActorID      *uuid.UUID
	Entries      []EntryInput
}

// Balance is the projected position of one account across all buckets.
type Balance struct {
	AccountID        uuid.UUID `json:"account_id"`
	AvailableCents   int64     `json:"available_cents"`
	PendingCents     int64     `json:"pending_cents"`
	FrozenCents      int64     `json:"frozen_cents"`
	EscrowHeldCents  int64     `json:"escrow_held_cents"`
	PlatformFeeCents int64     `json:"platform_fee_cents"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// BucketDelta is one bucket's projection-vs-entries comparison.
type BucketDelta struct {
	Bucket         enums.LedgerBucket
	ProjectedCents int64
	DerivedCents   int64
}

// DeltaCents is the projection drift; zero when the bucket reconciles.
func (d BucketDelta) DeltaCents() int64 {
	return d.ProjectedCents - d.DerivedCents
}

// ReconcileReport compares the balance projection against the signed entry
// sums, the authoritative value.
type ReconcileReport struct {
	AccountID uuid.UUID
	Balanced  bool
	Deltas    []BucketDelta
}

// Service is the append-only wallet ledger. Entries are immutable; the only
// correction path is appending a reversing entry.
type Service interface {
	Append(ctx context.Context, input AppendInput) ([]models.LedgerEntry, error)
	AppendTx(ctx context.Context, tx *gorm.DB, input AppendInput) ([]models.LedgerEntry, error)
	Balance(ctx context.Context, accountID uuid.UUID) (*Balance, error)
	History(ctx context.Context, accountID uuid.UUID, params pagination.Params) (*EntryList, error)
	EntriesForOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error)
	FindOperation(ctx context.Context, operationKey string) ([]models.LedgerEntry, error)
	Reconcile(ctx context.Context, accountID uuid.UUID) (*ReconcileReport, error)
	ReconcileAll(ctx context.Context, batchSize int, fn func(report *ReconcileReport) error) error
}

type service struct {
	repo Repository
	tx   txRunner
}

// NewService wires a ledger service with the provided repository and
// transaction runner.
func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

func (s *service) Append(ctx context.Context, input AppendInput) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		appended, err := s.AppendTx(ctx, tx, input)
		if err != nil {
			return err
		}
		entries = appended
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// AppendTx appends inside the caller's transaction. Projection rows are
// locked in sorted account order before any write, so concurrent appends
// serialize per account and never deadlock against each other.
func (s *service) AppendTx(ctx context.Context, tx *gorm.DB, input AppendInput) ([]models.LedgerEntry, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger append requires a transaction")
	}
	if err := validateAppend(input); err != nil {
		return nil, err
	}

	repo := s.repo.WithTx(tx)

	entries := make([]models.LedgerEntry, 0, len(input.Entries))
	for i, leg := range input.Entries {
		entries = append(entries, models.LedgerEntry{
			ID:              uuid.New(),
			AccountID:       leg.AccountID,
			AmountCents:     leg.AmountCents,
			Bucket:          leg.Bucket,
			Reason:          leg.Reason,
			RelatedOrderID:  leg.RelatedOrderID,
			OperationKey:    input.OperationKey,
			IdempotencyKey:  fmt.Sprintf("%s/%d", input.OperationKey, i),
			ReversesEntryID: leg.ReversesEntryID,
			Memo:            leg.Memo,
			ActorID:         input.ActorID,
		})
	}

	balances, err := repo.LockBalances(ctx, sortedAccountIDs(input.Entries))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock wallet balances")
	}

	for _, leg := range input.Entries {
		balance, ok := balances[leg.AccountID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "wallet balance row missing after lock")
		}
		if err := applyLeg(balance, leg); err != nil {
			return nil, err
		}
	}

	if err := repo.CreateEntries(ctx, entries); err != nil {
		if db.IsUniqueViolation(err, "idempotency_key") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeIdempotency, err, fmt.Sprintf("operation %q already applied", input.OperationKey))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append ledger entries")
	}

	for _, balance := range balances {
		if err := repo.SaveBalance(ctx, balance); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update wallet balance")
		}
	}

	return entries, nil
}

func (s *service) Balance(ctx context.Context, accountID uuid.UUID) (*Balance, error) {
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}

	row, err := s.repo.FindBalance(ctx, accountID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			// An account with no ledger history holds zero everywhere.
			return &Balance{AccountID: accountID}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet balance")
	}

	return &Balance{
		AccountID:        row.AccountID,
		AvailableCents:   row.AvailableCents,
		PendingCents:     row.PendingCents,
		FrozenCents:      row.FrozenCents,
		EscrowHeldCents:  row.EscrowHeldCents,
		PlatformFeeCents: row.PlatformFeeCents,
		UpdatedAt:        row.UpdatedAt,
	}, nil
}

func (s *service) History(ctx context.Context, accountID uuid.UUID, params pagination.Params) (*EntryList, error) {
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	list, err := s.repo.ListByAccount(ctx, accountID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger entries")
	}
	return list, nil
}

func (s *service) EntriesForOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	entries, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order ledger entries")
	}
	return entries, nil
}

func (s *service) FindOperation(ctx context.Context, operationKey string) ([]models.LedgerEntry, error) {
	if operationKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "operation key required")
	}
	entries, err := s.repo.FindByOperationKey(ctx, operationKey)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find ledger operation")
	}
	return entries, nil
}

func (s *service) Reconcile(ctx context.Context, accountID uuid.UUID) (*ReconcileReport, error) {
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}

	projected := &models.WalletBalance{AccountID: accountID}
	row, err := s.repo.FindBalance(ctx, accountID)
	if err == nil {
		projected = row
	} else if err != gorm.ErrRecordNotFound {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet balance")
	}

	derived, err := s.repo.SumBuckets(ctx, accountID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum ledger entries")
	}

	report := &ReconcileReport{AccountID: accountID, Balanced: true}
	for _, bucket := range enums.LedgerBuckets() {
		delta := BucketDelta{
			Bucket:         bucket,
			ProjectedCents: projectedCents(projected, bucket),
			DerivedCents:   derived[bucket],
		}
		if delta.DeltaCents() != 0 {
			report.Balanced = false
		}
		report.Deltas = append(report.Deltas, delta)
	}
	return report, nil
}

func (s *service) ReconcileAll(ctx context.Context, batchSize int, fn func(report *ReconcileReport) error) error {
	if fn == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "reconcile callback required")
	}

	afterID := uuid.Nil
	for {
		ids, err := s.repo.ListAccountIDs(ctx, afterID, batchSize)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger accounts")
		}
		if len(ids) == 0 {
			return nil
		}
		for _, id := range ids {
			report, err := s.Reconcile(ctx, id)
			if err != nil {
				return err
			}
			if err := fn(report); err != nil {
				return err
			}
		}
		afterID = ids[len(ids)-1]
	}
}

func validateAppend(input AppendInput) error {
	if input.OperationKey == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "operation key required")
	}
	if len(input.Entries) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one entry required")
	}
	for i, leg := range input.Entries {
		if leg.AccountID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("entry %d: account id required", i))
		}
		if leg.AmountCents == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("entry %d: amount must be non-zero", i))
		}
		if !leg.Bucket.IsValid() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("entry %d: invalid bucket %q", i, leg.Bucket))
		}
		if !leg.Reason.IsValid() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("entry %d: invalid reason %q", i, leg.Reason))
		}
	}
	return nil
}

func sortedAccountIDs(entries []EntryInput) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(entries))
	ids := make([]uuid.UUID, 0, len(entries))
	for _, leg := range entries {
		if _, ok := seen[leg.AccountID]; ok {
			continue
		}
		seen[leg.AccountID] = struct{}{}
		ids = append(ids, leg.AccountID)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].String() < ids[j].String()
	})
	return ids
}

func applyLeg(balance *models.WalletBalance, leg EntryInput) error {
	switch leg.Bucket {
	case enums.LedgerBucketAvailable:
		balance.AvailableCents += leg.AmountCents
		if balance.AvailableCents < 0 {
			return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "available balance cannot go negative").
				WithDetails(map[string]any{"account_id": leg.AccountID, "amount_cents": leg.AmountCents})
		}
	case enums.LedgerBucketPending:
		balance.PendingCents += leg.AmountCents
		if balance.PendingCents < 0 {
			return bucketUnderflow(leg)
		}
	case enums.LedgerBucketFrozen:
		balance.FrozenCents += leg.AmountCents
		if balance.FrozenCents < 0 {
			return bucketUnderflow(leg)
		}
	case enums.LedgerBucketEscrowHeld:
		balance.EscrowHeldCents += leg.AmountCents
		if balance.EscrowHeldCents < 0 {
			return bucketUnderflow(leg)
		}
	case enums.LedgerBucketPlatformFee:
		balance.PlatformFeeCents += leg.AmountCents
		if balance.PlatformFeeCents < 0 {
			return bucketUnderflow(leg)
		}
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid bucket %q", leg.Bucket))
	}
	return nil
}

// bucketUnderflow covers the internal buckets. A negative pending, frozen,
// escrow or fee balance means a caller bug, not a user-facing funds problem.
func bucketUnderflow(leg EntryInput) error {
	return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("%s balance cannot go negative", leg.Bucket)).
		WithDetails(map[string]any{"account_id": leg.AccountID, "amount_cents": leg.AmountCents})
}

func projectedCents(balance *models.WalletBalance, bucket enums.LedgerBucket) int64 {
	switch bucket {
	case enums.LedgerBucketAvailable:
		return balance.AvailableCents
	case enums.LedgerBucketPending:
		return balance.PendingCents
	case enums.LedgerBucketFrozen:
		return balance.FrozenCents
	case enums.LedgerBucketEscrowHeld:
		return balance.EscrowHeldCents
	case enums.LedgerBucketPlatformFee:
		return balance.PlatformFeeCents
	default:
		return 0
	}
}
