package wallets

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlecore-backend/internal/audit"
	"github.com/angelmondragon/settlecore-backend/internal/disputes"
	"github.com/angelmondragon/settlecore-backend/internal/ledger"
	"github.com/angelmondragon/settlecore-backend/pkg/config"
	"github.com/angelmondragon/settlecore-backend/pkg/db/models"
	"github.com/angelmondragon/settlecore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlecore-backend/pkg/errors"
	"github.com/angelmondragon/settlecore-backend/pkg/outbox"
	"github.com/angelmondragon/settlecore-backend/pkg/security"
)

const flowStepUpPassword = "copper-lantern-42"

var flowPasswordConfig = config.PasswordConfig{
	ArgonMemoryKB:    8192,
	ArgonTime:        1,
	ArgonParallelism: 1,
	ArgonSaltLen:     16,
	ArgonKeyLen:      32,
}

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

const createOutboxEventsTable = `
CREATE TABLE outbox_events (
	id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
	event_type TEXT NOT NULL,
	aggregate_type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	published_at DATETIME,
	attempt_count INTEGER NOT NULL DEFAULT 0,
	last_error TEXT
)`

const createAdminActionsTable = `
CREATE TABLE admin_actions (
	id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
	actor_id TEXT NOT NULL,
	actor_role TEXT NOT NULL,
	action_type TEXT NOT NULL,
	target_type TEXT NOT NULL,
	target_id TEXT NOT NULL,
	reason TEXT NOT NULL,
	ip_address TEXT,
	confirmation_method TEXT,
	details TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

const createAdminCredentialsTable = `
CREATE TABLE admin_credentials (
	account_id TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

func setupWalletFlowDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	for _, stmt := range []string{
		`DROP TABLE IF EXISTS ledger_entries`,
		`DROP TABLE IF EXISTS wallet_balances`,
		`DROP TABLE IF EXISTS withdrawal_requests`,
		`DROP TABLE IF EXISTS gift_cards`,
		`DROP TABLE IF EXISTS outbox_events`,
		`DROP TABLE IF EXISTS admin_actions`,
		`DROP TABLE IF EXISTS admin_credentials`,
		createLedgerEntriesTable,
		createWalletBalancesTable,
		createWithdrawalRequestsTable,
		createGiftCardsTable,
		createOutboxEventsTable,
		createAdminActionsTable,
		createAdminCredentialsTable,
		`CREATE UNIQUE INDEX ux_gift_cards_code ON gift_cards (code)`,
		`CREATE UNIQUE INDEX ux_outbox_events_event_aggregate ON outbox_events (event_type, aggregate_type, aggregate_id)`,
	} {
		require.NoError(t, gdb.Exec(stmt).Error)
	}
	return gdb
}

type sqlTxRunner struct {
	db *gorm.DB
}

func (r sqlTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type staticThresholds struct{}

func (staticThresholds) StepUpThresholdCents(context.Context) (int64, error) {
	return 100000, nil
}

func (staticThresholds) ConfirmPhraseThresholdCents(context.Context) (int64, error) {
	return 500000, nil
}

// walletStack wires the wallet service against real sqlite-backed
// collaborators so fund movement is asserted end to end.
type walletStack struct {
	t       *testing.T
	db      *gorm.DB
	svc     *service
	ledger  ledger.Service
	admin   uuid.UUID
	account uuid.UUID
	now     time.Time
}

func newWalletStack(t *testing.T) *walletStack {
	t.Helper()

	gdb := setupWalletFlowDB(t)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(gdb), sqlTxRunner{db: gdb})
	require.NoError(t, err)
	auditSvc, err := audit.NewService(audit.NewRepository(gdb))
	require.NoError(t, err)
	guard, err := disputes.NewGuard(disputes.NewRepository(gdb), staticThresholds{})
	require.NoError(t, err)

	stack := &walletStack{
		t:       t,
		db:      gdb,
		ledger:  ledgerSvc,
		admin:   uuid.New(),
		account: uuid.New(),
		now:     time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC),
	}

	hash, err := security.HashPassword(flowStepUpPassword, flowPasswordConfig)
	require.NoError(t, err)
	require.NoError(t, gdb.Create(&models.AdminCredential{
		AccountID:    stack.admin,
		PasswordHash: hash,
	}).Error)

	svc, err := NewService(
		NewRepository(gdb),
		sqlTxRunner{db: gdb},
		ledgerSvc,
		guard,
		auditSvc,
		outbox.NewService(outbox.NewRepository(gdb), nil),
	)
	require.NoError(t, err)
	stack.svc = svc.(*service)
	stack.svc.now = func() time.Time { return stack.now }
	return stack
}

func (s *walletStack) deposit(cents int64, key string) {
	s.t.Helper()

	_, err := s.svc.Deposit(context.Background(), DepositInput{
		AccountID:      s.account,
		AmountCents:    cents,
		IdempotencyKey: key,
	})
	require.NoError(s.t, err)
}

func (s *walletStack) balance() *ledger.Balance {
	s.t.Helper()

	balance, err := s.ledger.Balance(context.Background(), s.account)
	require.NoError(s.t, err)
	return balance
}

func (s *walletStack) tableCount(table string, query string, args ...any) int64 {
	s.t.Helper()

	var count int64
	q := s.db.Table(table)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(s.t, q.Count(&count).Error)
	return count
}

func TestWithdrawalFlow_Approve(t *testing.T) {
	stack := newWalletStack(t)
	ctx := context.Background()
	stack.deposit(250000, "fund-1")

	row, err := stack.svc.RequestWithdrawal(ctx, RequestWithdrawalInput{
		AccountID:      stack.account,
		AmountCents:    150000,
		PaymentMethod:  "bank_transfer",
		IdempotencyKey: "wd-1",
	})
	require.NoError(t, err)

	held := stack.balance()
	assert.Equal(t, int64(100000), held.AvailableCents)
	assert.Equal(t, int64(150000), held.FrozenCents)

	result, err := stack.svc.ProcessWithdrawal(ctx, ProcessWithdrawalInput{
		WithdrawalID: row.ID,
		ActorID:      stack.admin,
		ActorRole:    enums.RoleAdmin,
		Reason:       "payout batch 2025-06-02",
		Decision:     WithdrawalDecisionApprove,
		Confirmation: disputes.Confirmation{Password: flowStepUpPassword},
	})
	require.NoError(t, err)

	assert.Equal(t, enums.WithdrawalStatusApproved, result.Status)
	require.NotNil(t, result.ProcessedBy)
	assert.Equal(t, stack.admin, *result.ProcessedBy)
	require.NotNil(t, result.LedgerEntryID)

	// Value left the ledger exactly once; nothing returned to available.
	settled := stack.balance()
	assert.Equal(t, int64(100000), settled.AvailableCents)
	assert.Equal(t, int64(0), settled.FrozenCents)

	report, err := stack.ledger.Reconcile(ctx, stack.account)
	require.NoError(t, err)
	assert.True(t, report.Balanced)

	assert.Equal(t, int64(1), stack.tableCount("outbox_events", "event_type = ?", enums.EventWithdrawalRequested))
	assert.Equal(t, int64(1), stack.tableCount("outbox_events", "event_type = ?", enums.EventWithdrawalApproved))
	assert.Equal(t, int64(1), stack.tableCount("admin_actions", "action_type = ?", enums.AdminActionWithdrawalProcessed))
}

func TestWithdrawalFlow_WrongPasswordBlocksApproval(t *testing.T) {
	stack := newWalletStack(t)
	ctx := context.Background()
	stack.deposit(250000, "fund-1")

	row, err := stack.svc.RequestWithdrawal(ctx, RequestWithdrawalInput{
		AccountID:      stack.account,
		AmountCents:    150000,
		PaymentMethod:  "bank_transfer",
		IdempotencyKey: "wd-1",
	})
	require.NoError(t, err)

	_, err = stack.svc.ProcessWithdrawal(ctx, ProcessWithdrawalInput{
		WithdrawalID: row.ID,
		ActorID:      stack.admin,
		ActorRole:    enums.RoleAdmin,
		Reason:       "payout batch",
		Decision:     WithdrawalDecisionApprove,
		Confirmation: disputes.Confirmation{Password: "not-the-password"},
	})
	requireCode(t, err, pkgerrors.CodeStepUpRequired)

	reloaded, err := stack.svc.GetWithdrawal(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.WithdrawalStatusPending, reloaded.Status)
	assert.Equal(t, int64(150000), stack.balance().FrozenCents)
}

func TestWithdrawalFlow_RejectRestoresFunds(t *testing.T) {
	stack := newWalletStack(t)
	ctx := context.Background()
	stack.deposit(50000, "fund-1")

	row, err := stack.svc.RequestWithdrawal(ctx, RequestWithdrawalInput{
		AccountID:      stack.account,
		AmountCents:    30000,
		PaymentMethod:  "bank_transfer",
		IdempotencyKey: "wd-1",
	})
	require.NoError(t, err)

	result, err := stack.svc.ProcessWithdrawal(ctx, ProcessWithdrawalInput{
		WithdrawalID:    row.ID,
		ActorID:         stack.admin,
		ActorRole:       enums.RoleAdmin,
		Reason:          "verification failed",
		Decision:        WithdrawalDecisionReject,
		RejectionReason: "bank account name mismatch",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.WithdrawalStatusRejected, result.Status)

	restored := stack.balance()
	assert.Equal(t, int64(50000), restored.AvailableCents)
	assert.Equal(t, int64(0), restored.FrozenCents)

	assert.Equal(t, int64(1), stack.tableCount("outbox_events", "event_type = ?", enums.EventWithdrawalRejected))
}

func TestWithdrawalFlow_CancelRestoresFunds(t *testing.T) {
	stack := newWalletStack(t)
	ctx := context.Background()
	stack.deposit(50000, "fund-1")

	row, err := stack.svc.RequestWithdrawal(ctx, RequestWithdrawalInput{
		AccountID:      stack.account,
		AmountCents:    30000,
		PaymentMethod:  "bank_transfer",
		IdempotencyKey: "wd-1",
	})
	require.NoError(t, err)

	result, err := stack.svc.CancelWithdrawal(ctx, CancelWithdrawalInput{
		AccountID:    stack.account,
		WithdrawalID: row.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.WithdrawalStatusCancelled, result.Status)

	restored := stack.balance()
	assert.Equal(t, int64(50000), restored.AvailableCents)
	assert.Equal(t, int64(0), restored.FrozenCents)

	// Cancelling again is a quiet no-op.
	again, err := stack.svc.CancelWithdrawal(ctx, CancelWithdrawalInput{
		AccountID:    stack.account,
		WithdrawalID: row.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.WithdrawalStatusCancelled, again.Status)
	assert.Equal(t, int64(50000), stack.balance().AvailableCents)
}

func TestWithdrawalFlow_ReplayFreezesOnce(t *testing.T) {
	stack := newWalletStack(t)
	ctx := context.Background()
	stack.deposit(50000, "fund-1")

	first, err := stack.svc.RequestWithdrawal(ctx, RequestWithdrawalInput{
		AccountID:      stack.account,
		AmountCents:    30000,
		PaymentMethod:  "bank_transfer",
		IdempotencyKey: "wd-1",
	})
	require.NoError(t, err)

	second, err := stack.svc.RequestWithdrawal(ctx, RequestWithdrawalInput{
		AccountID:      stack.account,
		AmountCents:    30000,
		PaymentMethod:  "bank_transfer",
		IdempotencyKey: "wd-1",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	assert.Equal(t, int64(30000), stack.balance().FrozenCents)
	assert.Equal(t, int64(2), stack.tableCount("ledger_entries", "operation_key = ?", "withdrawal/request/wd-1"))
	assert.Equal(t, int64(1), stack.tableCount("withdrawal_requests", ""))
}

func TestGiftCardFlow_IssueAndRedeem(t *testing.T) {
	stack := newWalletStack(t)
	ctx := context.Background()

	card, err := stack.svc.IssueGiftCard(ctx, IssueGiftCardInput{
		ActorID:     stack.admin,
		ActorRole:   enums.RoleAdmin,
		Reason:      "promo batch Q2",
		AmountCents: 5000,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.GiftCardStatusActive, card.Status)
	assert.Equal(t, int64(1), stack.tableCount("admin_actions", "action_type = ?", enums.AdminActionGiftCardIssued))

	redeemed, err := stack.svc.RedeemGiftCard(ctx, RedeemGiftCardInput{
		AccountID:      stack.account,
		Code:           card.Code,
		IdempotencyKey: "gc-1",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.GiftCardStatusRedeemed, redeemed.Status)
	assert.Equal(t, int64(5000), stack.balance().AvailableCents)

	// A retry with a fresh key still cannot double-credit.
	again, err := stack.svc.RedeemGiftCard(ctx, RedeemGiftCardInput{
		AccountID:      stack.account,
		Code:           card.Code,
		IdempotencyKey: "gc-2",
	})
	require.NoError(t, err)
	assert.Equal(t, redeemed.ID, again.ID)
	assert.Equal(t, int64(5000), stack.balance().AvailableCents)

	_, err = stack.svc.RedeemGiftCard(ctx, RedeemGiftCardInput{
		AccountID:      uuid.New(),
		Code:           card.Code,
		IdempotencyKey: "gc-3",
	})
	requireCode(t, err, pkgerrors.CodeConflict)
}

func TestAdminAdjustFlow_Reconciles(t *testing.T) {
	stack := newWalletStack(t)
	ctx := context.Background()
	stack.deposit(10000, "fund-1")

	freeze := AdjustInput{
		AccountID:      stack.account,
		AmountCents:    4000,
		IdempotencyKey: "freeze-1",
		ActorID:        stack.admin,
		ActorRole:      enums.RoleAdmin,
		Reason:         "fraud review case 311",
	}
	_, err := stack.svc.Freeze(ctx, freeze)
	require.NoError(t, err)

	frozen := stack.balance()
	assert.Equal(t, int64(6000), frozen.AvailableCents)
	assert.Equal(t, int64(4000), frozen.FrozenCents)

	unfreeze := freeze
	unfreeze.IdempotencyKey = "unfreeze-1"
	unfreeze.Reason = "review cleared"
	_, err = stack.svc.Unfreeze(ctx, unfreeze)
	require.NoError(t, err)

	debit := freeze
	debit.IdempotencyKey = "debit-1"
	debit.AmountCents = 2500
	debit.Reason = "chargeback passthrough"
	_, err = stack.svc.AdminDebit(ctx, debit)
	require.NoError(t, err)

	final := stack.balance()
	assert.Equal(t, int64(7500), final.AvailableCents)
	assert.Equal(t, int64(0), final.FrozenCents)

	report, err := stack.ledger.Reconcile(ctx, stack.account)
	require.NoError(t, err)
	assert.True(t, report.Balanced)

	// Each adjustment keys its event off a distinct admin action row.
	assert.Equal(t, int64(3), stack.tableCount("outbox_events", "event_type = ?", enums.EventWalletAdjusted))
	assert.Equal(t, int64(3), stack.tableCount("admin_actions", "target_type = ?", enums.TargetTypeAccount))
}
