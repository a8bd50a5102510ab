package ledger

import (
	"context"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlecore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlecore-backend/pkg/errors"
	"github.com/angelmondragon/settlecore-backend/pkg/pagination"
)

const createLedgerEntriesTable = `
CREATE TABLE ledger_entries (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	amount_cents INTEGER NOT NULL,
	bucket TEXT NOT NULL,
	reason TEXT NOT NULL,
	related_order_id TEXT,
	operation_key TEXT NOT NULL,
	idempotency_key TEXT NOT NULL UNIQUE,
	reverses_entry_id TEXT,
	memo TEXT,
	actor_id TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

const createWalletBalancesTable = `
CREATE TABLE wallet_balances (
	account_id TEXT PRIMARY KEY,
	available_cents INTEGER NOT NULL DEFAULT 0,
	pending_cents INTEGER NOT NULL DEFAULT 0,
	frozen_cents INTEGER NOT NULL DEFAULT 0,
	escrow_held_cents INTEGER NOT NULL DEFAULT 0,
	platform_fee_cents INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	for _, stmt := range []string{
		`DROP TABLE IF EXISTS ledger_entries`,
		`DROP TABLE IF EXISTS wallet_balances`,
		createLedgerEntriesTable,
		createWalletBalancesTable,
	} {
		require.NoError(t, gdb.Exec(stmt).Error)
	}
	return gdb
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newSQLiteService(t *testing.T, gdb *gorm.DB) Service {
	t.Helper()

	svc, err := NewService(NewRepository(gdb), gormTxRunner{db: gdb})
	require.NoError(t, err)
	return svc
}

func countRows(t *testing.T, gdb *gorm.DB, table string) int64 {
	t.Helper()

	var count int64
	require.NoError(t, gdb.Table(table).Count(&count).Error)
	return count
}

func deposit(t *testing.T, svc Service, accountID uuid.UUID, amountCents int64, opKey string) {
	t.Helper()

	_, err := svc.Append(context.Background(), AppendInput{
		OperationKey: opKey,
		Entries: []EntryInput{{
			AccountID:   accountID,
			AmountCents: amountCents,
			Bucket:      enums.LedgerBucketAvailable,
			Reason:      enums.LedgerReasonDeposit,
		}},
	})
	require.NoError(t, err)
}

func TestRepositoryLockBalances_CreatesMissingRows(t *testing.T) {
	gdb := setupLedgerTestDB(t)
	repo := NewRepository(gdb)
	ctx := context.Background()

	a := uuid.New()
	b := uuid.New()

	balances, err := repo.LockBalances(ctx, []uuid.UUID{a, b})
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, int64(0), balances[a].AvailableCents)
	assert.Equal(t, int64(0), balances[b].EscrowHeldCents)

	balances[a].AvailableCents = 1234
	require.NoError(t, repo.SaveBalance(ctx, balances[a]))

	found, err := repo.FindBalance(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), found.AvailableCents)

	// Relocking must reuse the existing row, not reset it.
	again, err := repo.LockBalances(ctx, []uuid.UUID{a})
	require.NoError(t, err)
	assert.Equal(t, int64(1234), again[a].AvailableCents)
}

func TestAppend_MovesFundsBetweenBuckets(t *testing.T) {
	gdb := setupLedgerTestDB(t)
	svc := newSQLiteService(t, gdb)
	ctx := context.Background()

	buyer := uuid.New()
	deposit(t, svc, buyer, 10000, "wallet/"+buyer.String()+"/deposit/dep-1")

	orderID := uuid.New()
	_, err := svc.Append(ctx, AppendInput{
		OperationKey: "order/" + orderID.String() + "/hold",
		Entries: []EntryInput{
			{AccountID: buyer, AmountCents: -4999, Bucket: enums.LedgerBucketAvailable, Reason: enums.LedgerReasonOrderHold, RelatedOrderID: &orderID},
			{AccountID: buyer, AmountCents: 4999, Bucket: enums.LedgerBucketEscrowHeld, Reason: enums.LedgerReasonOrderHold, RelatedOrderID: &orderID},
		},
	})
	require.NoError(t, err)

	balance, err := svc.Balance(ctx, buyer)
	require.NoError(t, err)
	assert.Equal(t, int64(5001), balance.AvailableCents)
	assert.Equal(t, int64(4999), balance.EscrowHeldCents)
	assert.Equal(t, int64(3), countRows(t, gdb, "ledger_entries"))
}

func TestAppend_InsufficientFundsRollsBackEverything(t *testing.T) {
	gdb := setupLedgerTestDB(t)
	svc := newSQLiteService(t, gdb)
	ctx := context.Background()

	buyer := uuid.New()
	orderID := uuid.New()
	_, err := svc.Append(ctx, AppendInput{
		OperationKey: "order/" + orderID.String() + "/hold",
		Entries: []EntryInput{
			{AccountID: buyer, AmountCents: -4999, Bucket: enums.LedgerBucketAvailable, Reason: enums.LedgerReasonOrderHold, RelatedOrderID: &orderID},
			{AccountID: buyer, AmountCents: 4999, Bucket: enums.LedgerBucketEscrowHeld, Reason: enums.LedgerReasonOrderHold, RelatedOrderID: &orderID},
		},
	})
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientFunds, typed.Code())

	assert.Equal(t, int64(0), countRows(t, gdb, "ledger_entries"))
	assert.Equal(t, int64(0), countRows(t, gdb, "wallet_balances"))
}

func TestAppend_ReplayAppendsNothing(t *testing.T) {
	gdb := setupLedgerTestDB(t)
	svc := newSQLiteService(t, gdb)
	ctx := context.Background()

	buyer := uuid.New()
	opKey := "wallet/" + buyer.String() + "/deposit/dep-1"
	deposit(t, svc, buyer, 10000, opKey)

	_, err := svc.Append(ctx, AppendInput{
		OperationKey: opKey,
		Entries: []EntryInput{{
			AccountID:   buyer,
			AmountCents: 10000,
			Bucket:      enums.LedgerBucketAvailable,
			Reason:      enums.LedgerReasonDeposit,
		}},
	})
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeIdempotency, typed.Code())

	assert.Equal(t, int64(1), countRows(t, gdb, "ledger_entries"))

	balance, err := svc.Balance(ctx, buyer)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), balance.AvailableCents)

	existing, err := svc.FindOperation(ctx, opKey)
	require.NoError(t, err)
	require.Len(t, existing, 1)
	assert.Equal(t, opKey+"/0", existing[0].IdempotencyKey)
}

func TestAppend_OrderEntriesSumToZero(t *testing.T) {
	gdb := setupLedgerTestDB(t)
	svc := newSQLiteService(t, gdb)
	ctx := context.Background()

	buyer := uuid.New()
	seller := uuid.New()
	platform := uuid.New()
	orderID := uuid.New()

	deposit(t, svc, buyer, 10000, "wallet/"+buyer.String()+"/deposit/dep-1")

	_, err := svc.Append(ctx, AppendInput{
		OperationKey: "order/" + orderID.String() + "/hold",
		Entries: []EntryInput{
			{AccountID: buyer, AmountCents: -4999, Bucket: enums.LedgerBucketAvailable, Reason: enums.LedgerReasonOrderHold, RelatedOrderID: &orderID},
			{AccountID: buyer, AmountCents: 4999, Bucket: enums.LedgerBucketEscrowHeld, Reason: enums.LedgerReasonOrderHold, RelatedOrderID: &orderID},
		},
	})
	require.NoError(t, err)

	_, err = svc.Append(ctx, AppendInput{
		OperationKey: "order/" + orderID.String() + "/release",
		Entries: []EntryInput{
			{AccountID: buyer, AmountCents: -4999, Bucket: enums.LedgerBucketEscrowHeld, Reason: enums.LedgerReasonOrderRelease, RelatedOrderID: &orderID},
			{AccountID: seller, AmountCents: 4749, Bucket: enums.LedgerBucketPending, Reason: enums.LedgerReasonOrderRelease, RelatedOrderID: &orderID},
			{AccountID: platform, AmountCents: 250, Bucket: enums.LedgerBucketPlatformFee, Reason: enums.LedgerReasonFee, RelatedOrderID: &orderID},
		},
	})
	require.NoError(t, err)

	entries, err := svc.EntriesForOrder(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, entries, 5)

	var sum int64
	for _, entry := range entries {
		sum += entry.AmountCents
	}
	assert.Equal(t, int64(0), sum)

	sellerBalance, err := svc.Balance(ctx, seller)
	require.NoError(t, err)
	assert.Equal(t, int64(4749), sellerBalance.PendingCents)

	platformBalance, err := svc.Balance(ctx, platform)
	require.NoError(t, err)
	assert.Equal(t, int64(250), platformBalance.PlatformFeeCents)
}

func TestHistory_PaginatesNewestFirst(t *testing.T) {
	gdb := setupLedgerTestDB(t)
	svc := newSQLiteService(t, gdb)
	ctx := context.Background()

	account := uuid.New()
	for i := 0; i < 3; i++ {
		deposit(t, svc, account, 100, "wallet/"+account.String()+"/deposit/dep-"+uuid.NewString())
	}

	first, err := svc.History(ctx, account, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Entries, 2)
	require.NotEmpty(t, first.NextCursor)

	second, err := svc.History(ctx, account, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Entries, 1)
	assert.Empty(t, second.NextCursor)

	seen := map[string]struct{}{}
	for _, entry := range append(first.Entries, second.Entries...) {
		seen[entry.IdempotencyKey] = struct{}{}
	}
	assert.Len(t, seen, 3)
}

func TestReconcile_DetectsProjectionSkew(t *testing.T) {
	gdb := setupLedgerTestDB(t)
	svc := newSQLiteService(t, gdb)
	ctx := context.Background()

	account := uuid.New()
	deposit(t, svc, account, 10000, "wallet/"+account.String()+"/deposit/dep-1")

	report, err := svc.Reconcile(ctx, account)
	require.NoError(t, err)
	assert.True(t, report.Balanced)

	require.NoError(t, gdb.Exec(
		`UPDATE wallet_balances SET available_cents = available_cents + 7 WHERE account_id = ?`,
		account,
	).Error)

	report, err = svc.Reconcile(ctx, account)
	require.NoError(t, err)
	assert.False(t, report.Balanced)

	for _, delta := range report.Deltas {
		if delta.Bucket == enums.LedgerBucketAvailable {
			assert.Equal(t, int64(7), delta.DeltaCents())
			assert.Equal(t, int64(10007), delta.ProjectedCents)
			assert.Equal(t, int64(10000), delta.DerivedCents)
		} else {
			assert.Equal(t, int64(0), delta.DeltaCents())
		}
	}
}

func TestReconcileAll_VisitsEveryAccount(t *testing.T) {
	gdb := setupLedgerTestDB(t)
	svc := newSQLiteService(t, gdb)
	ctx := context.Background()

	accounts := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, account := range accounts {
		deposit(t, svc, account, 500, "wallet/"+account.String()+"/deposit/dep-1")
	}

	visited := map[uuid.UUID]bool{}
	err := svc.ReconcileAll(ctx, 2, func(report *ReconcileReport) error {
		visited[report.AccountID] = report.Balanced
		return nil
	})
	require.NoError(t, err)
	require.Len(t, visited, 3)
	for _, account := range accounts {
		assert.True(t, visited[account])
	}
}

// TestAppend_RandomSequencesStayReconciled drives the ledger with a long
// random mix of deposits, holds, refunds, releases and freezes, then checks
// that the stored projection matches both the signed entry sums and an
// independently tracked model for every account and bucket.
func TestAppend_RandomSequencesStayReconciled(t *testing.T) {
	gdb := setupLedgerTestDB(t)
	svc := newSQLiteService(t, gdb)
	ctx := context.Background()

	rng := rand.New(rand.NewSource(20251103))

	accounts := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	expected := map[uuid.UUID]map[enums.LedgerBucket]int64{}
	for _, account := range accounts {
		expected[account] = map[enums.LedgerBucket]int64{}
	}

	apply := func(opKey string, legs []EntryInput) {
		_, err := svc.Append(ctx, AppendInput{OperationKey: opKey, Entries: legs})
		require.NoError(t, err, "operation %s", opKey)
		for _, leg := range legs {
			expected[leg.AccountID][leg.Bucket] += leg.AmountCents
		}
	}

	amountWithin := func(bound int64) int64 {
		return rng.Int63n(bound) + 1
	}

	for i := 0; i < 120; i++ {
		account := accounts[rng.Intn(len(accounts))]
		opKey := "prop/" + uuid.NewString()

		switch rng.Intn(6) {
		case 0:
			apply(opKey, []EntryInput{
				{AccountID: account, AmountCents: amountWithin(5000), Bucket: enums.LedgerBucketAvailable, Reason: enums.LedgerReasonDeposit},
			})
		case 1:
			available := expected[account][enums.LedgerBucketAvailable]
			if available == 0 {
				continue
			}
			amount := amountWithin(available)
			apply(opKey, []EntryInput{
				{AccountID: account, AmountCents: -amount, Bucket: enums.LedgerBucketAvailable, Reason: enums.LedgerReasonOrderHold},
				{AccountID: account, AmountCents: amount, Bucket: enums.LedgerBucketEscrowHeld, Reason: enums.LedgerReasonOrderHold},
			})
		case 2:
			escrow := expected[account][enums.LedgerBucketEscrowHeld]
			if escrow == 0 {
				continue
			}
			amount := amountWithin(escrow)
			apply(opKey, []EntryInput{
				{AccountID: account, AmountCents: -amount, Bucket: enums.LedgerBucketEscrowHeld, Reason: enums.LedgerReasonOrderRefund},
				{AccountID: account, AmountCents: amount, Bucket: enums.LedgerBucketAvailable, Reason: enums.LedgerReasonOrderRefund},
			})
		case 3:
			// Escrow release split across a seller and a fee account.
			escrow := expected[account][enums.LedgerBucketEscrowHeld]
			if escrow == 0 {
				continue
			}
			seller := accounts[rng.Intn(len(accounts))]
			platform := accounts[rng.Intn(len(accounts))]
			amount := amountWithin(escrow)
			fee := amount * 5 / 100
			legs := []EntryInput{
				{AccountID: account, AmountCents: -amount, Bucket: enums.LedgerBucketEscrowHeld, Reason: enums.LedgerReasonOrderRelease},
				{AccountID: seller, AmountCents: amount - fee, Bucket: enums.LedgerBucketPending, Reason: enums.LedgerReasonOrderRelease},
			}
			if fee > 0 {
				legs = append(legs, EntryInput{AccountID: platform, AmountCents: fee, Bucket: enums.LedgerBucketPlatformFee, Reason: enums.LedgerReasonFee})
			}
			apply(opKey, legs)
		case 4:
			available := expected[account][enums.LedgerBucketAvailable]
			if available == 0 {
				continue
			}
			amount := amountWithin(available)
			apply(opKey, []EntryInput{
				{AccountID: account, AmountCents: -amount, Bucket: enums.LedgerBucketAvailable, Reason: enums.LedgerReasonAdminFreeze},
				{AccountID: account, AmountCents: amount, Bucket: enums.LedgerBucketFrozen, Reason: enums.LedgerReasonAdminFreeze},
			})
		case 5:
			frozen := expected[account][enums.LedgerBucketFrozen]
			if frozen == 0 {
				continue
			}
			amount := amountWithin(frozen)
			apply(opKey, []EntryInput{
				{AccountID: account, AmountCents: -amount, Bucket: enums.LedgerBucketFrozen, Reason: enums.LedgerReasonAdminUnfreeze},
				{AccountID: account, AmountCents: amount, Bucket: enums.LedgerBucketAvailable, Reason: enums.LedgerReasonAdminUnfreeze},
			})
		}
	}

	for _, account := range accounts {
		report, err := svc.Reconcile(ctx, account)
		require.NoError(t, err)
		assert.True(t, report.Balanced, "account %s drifted", account)
		for _, delta := range report.Deltas {
			assert.Equal(t, expected[account][delta.Bucket], delta.ProjectedCents,
				"account %s bucket %s projection", account, delta.Bucket)
			assert.Equal(t, expected[account][delta.Bucket], delta.DerivedCents,
				"account %s bucket %s entry sum", account, delta.Bucket)
		}
	}
}
