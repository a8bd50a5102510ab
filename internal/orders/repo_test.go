package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlecore-backend/pkg/db/models"
	"github.com/angelmondragon/settlecore-backend/pkg/enums"
	"github.com/angelmondragon/settlecore-backend/pkg/pagination"
)

const createOrdersTable = `
CREATE TABLE orders (
	id TEXT PRIMARY KEY,
	order_number TEXT NOT NULL UNIQUE,
	buyer_id TEXT NOT NULL,
	seller_id TEXT NOT NULL,
	listing_id TEXT NOT NULL,
	amount_cents INTEGER NOT NULL,
	platform_fee_cents INTEGER NOT NULL DEFAULT 0,
	seller_earnings_cents INTEGER NOT NULL DEFAULT 0,
	fee_percent TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'created',
	delivery_note TEXT,
	paid_at DATETIME,
	delivered_at DATETIME,
	dispute_opened_at DATETIME,
	dispute_deadline DATETIME,
	protection_release_at DATETIME,
	completed_at DATETIME,
	completed_by TEXT,
	earnings_released_at DATETIME,
	refunded_at DATETIME,
	cancelled_at DATETIME,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

const createDisputesTable = `
CREATE TABLE disputes (
	id TEXT PRIMARY KEY,
	order_id TEXT NOT NULL UNIQUE,
	opened_by TEXT NOT NULL,
	reason TEXT NOT NULL,
	opened_at DATETIME NOT NULL,
	resolution TEXT,
	resolved_by TEXT,
	resolved_at DATETIME,
	note TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

const createOrderCountersTable = `
CREATE TABLE order_counters (
	id INTEGER PRIMARY KEY,
	last_value INTEGER NOT NULL
)`

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	for _, stmt := range []string{
		`DROP TABLE IF EXISTS orders`,
		`DROP TABLE IF EXISTS disputes`,
		`DROP TABLE IF EXISTS order_counters`,
		createOrdersTable,
		createDisputesTable,
		createOrderCountersTable,
	} {
		require.NoError(t, gdb.Exec(stmt).Error)
	}
	return gdb
}

func seedCounter(t *testing.T, gdb *gorm.DB, lastValue int64) {
	t.Helper()
	require.NoError(t, gdb.Exec(`INSERT INTO order_counters (id, last_value) VALUES (1, ?)`, lastValue).Error)
}

func insertOrder(t *testing.T, gdb *gorm.DB, order *models.Order) *models.Order {
	t.Helper()

	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.OrderNumber == "" {
		order.OrderNumber = "SC" + order.ID.String()[:8]
	}
	if order.FeePercent == "" {
		order.FeePercent = "5"
	}
	require.NoError(t, gdb.Create(order).Error)
	return order
}

func TestRepositoryNextOrderNumber(t *testing.T) {
	gdb := setupOrdersTestDB(t)
	seedCounter(t, gdb, 999)
	repo := NewRepository(gdb)
	ctx := context.Background()

	first, err := repo.NextOrderNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SC1000", first)

	second, err := repo.NextOrderNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SC1001", second)

	var counter models.OrderCounter
	require.NoError(t, gdb.First(&counter, "id = ?", 1).Error)
	assert.Equal(t, int64(1001), counter.LastValue)
}

func TestRepositoryTransition_GuardsOnStatus(t *testing.T) {
	gdb := setupOrdersTestDB(t)
	repo := NewRepository(gdb)
	ctx := context.Background()

	order := insertOrder(t, gdb, &models.Order{
		BuyerID:     uuid.New(),
		SellerID:    uuid.New(),
		ListingID:   uuid.New(),
		AmountCents: 4999,
		Status:      enums.OrderStatusPaid,
	})

	deliveredAt := time.Now().UTC()
	updated, err := repo.Transition(ctx, order.ID, enums.OrderStatusPaid, map[string]any{
		"status":       enums.OrderStatusDelivered,
		"delivered_at": deliveredAt,
	})
	require.NoError(t, err)
	assert.True(t, updated)

	// The guard no longer matches once the row moved on.
	updated, err = repo.Transition(ctx, order.ID, enums.OrderStatusPaid, map[string]any{
		"status": enums.OrderStatusDelivered,
	})
	require.NoError(t, err)
	assert.False(t, updated)

	reloaded, err := repo.Find(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, reloaded.Status)
	require.NotNil(t, reloaded.DeliveredAt)
}

func TestRepositoryMarkEarningsReleased_OnlyOnce(t *testing.T) {
	gdb := setupOrdersTestDB(t)
	repo := NewRepository(gdb)
	ctx := context.Background()

	order := insertOrder(t, gdb, &models.Order{
		BuyerID:     uuid.New(),
		SellerID:    uuid.New(),
		ListingID:   uuid.New(),
		AmountCents: 4999,
		Status:      enums.OrderStatusCompleted,
	})

	releasedAt := time.Now().UTC()
	updated, err := repo.MarkEarningsReleased(ctx, order.ID, releasedAt)
	require.NoError(t, err)
	assert.True(t, updated)

	updated, err = repo.MarkEarningsReleased(ctx, order.ID, releasedAt.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestRepositoryResolveDisputeRow_GuardsOnOpen(t *testing.T) {
	gdb := setupOrdersTestDB(t)
	repo := NewRepository(gdb)
	ctx := context.Background()

	dispute, err := repo.CreateDispute(ctx, &models.Dispute{
		ID:       uuid.New(),
		OrderID:  uuid.New(),
		OpenedBy: uuid.New(),
		Reason:   "never arrived",
		OpenedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	admin := uuid.New()
	resolved, err := repo.ResolveDisputeRow(ctx, dispute.ID, map[string]any{
		"resolution":  enums.DisputeResolutionRefundBuyer,
		"resolved_by": admin,
		"resolved_at": time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.True(t, resolved)

	resolved, err = repo.ResolveDisputeRow(ctx, dispute.ID, map[string]any{
		"resolution": enums.DisputeResolutionReleaseSeller,
	})
	require.NoError(t, err)
	assert.False(t, resolved)

	reloaded, err := repo.FindDisputeByOrder(ctx, dispute.OrderID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.Resolution)
	assert.Equal(t, enums.DisputeResolutionRefundBuyer, *reloaded.Resolution)
}

func TestRepositoryListByAccount(t *testing.T) {
	gdb := setupOrdersTestDB(t)
	repo := NewRepository(gdb)
	ctx := context.Background()

	account := uuid.New()
	other := uuid.New()
	base := time.Now().UTC().Add(-time.Hour)

	asBuyer := insertOrder(t, gdb, &models.Order{
		BuyerID: account, SellerID: other, ListingID: uuid.New(),
		AmountCents: 100, Status: enums.OrderStatusPaid, CreatedAt: base,
	})
	asSeller := insertOrder(t, gdb, &models.Order{
		BuyerID: other, SellerID: account, ListingID: uuid.New(),
		AmountCents: 200, Status: enums.OrderStatusDelivered, CreatedAt: base.Add(time.Minute),
	})
	insertOrder(t, gdb, &models.Order{
		BuyerID: other, SellerID: uuid.New(), ListingID: uuid.New(),
		AmountCents: 300, Status: enums.OrderStatusPaid, CreatedAt: base.Add(2 * time.Minute),
	})

	all, err := repo.ListByAccount(ctx, account, ListFilters{}, pagination.Params{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all.Orders, 2)
	assert.Equal(t, asSeller.ID, all.Orders[0].ID)
	assert.Equal(t, asBuyer.ID, all.Orders[1].ID)

	buyerSide := OrderSideBuyer
	bought, err := repo.ListByAccount(ctx, account, ListFilters{Side: &buyerSide}, pagination.Params{Limit: 10})
	require.NoError(t, err)
	require.Len(t, bought.Orders, 1)
	assert.Equal(t, asBuyer.ID, bought.Orders[0].ID)

	delivered := enums.OrderStatusDelivered
	byStatus, err := repo.ListByAccount(ctx, account, ListFilters{Status: &delivered}, pagination.Params{Limit: 10})
	require.NoError(t, err)
	require.Len(t, byStatus.Orders, 1)
	assert.Equal(t, asSeller.ID, byStatus.Orders[0].ID)

	page, err := repo.ListByAccount(ctx, account, ListFilters{}, pagination.Params{Limit: 1})
	require.NoError(t, err)
	require.Len(t, page.Orders, 1)
	require.NotEmpty(t, page.NextCursor)

	rest, err := repo.ListByAccount(ctx, account, ListFilters{}, pagination.Params{Limit: 1, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest.Orders, 1)
	assert.NotEqual(t, page.Orders[0].ID, rest.Orders[0].ID)
}

func TestRepositoryListDisputes_OpenFilter(t *testing.T) {
	gdb := setupOrdersTestDB(t)
	repo := NewRepository(gdb)
	ctx := context.Background()

	open, err := repo.CreateDispute(ctx, &models.Dispute{
		ID: uuid.New(), OrderID: uuid.New(), OpenedBy: uuid.New(),
		Reason: "open case", OpenedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	resolution := enums.DisputeResolutionRefundBuyer
	_, err = repo.CreateDispute(ctx, &models.Dispute{
		ID: uuid.New(), OrderID: uuid.New(), OpenedBy: uuid.New(),
		Reason: "closed case", OpenedAt: time.Now().UTC(), Resolution: &resolution,
	})
	require.NoError(t, err)

	all, err := repo.ListDisputes(ctx, DisputeFilters{}, pagination.Params{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all.Disputes, 2)

	openOnly := true
	openList, err := repo.ListDisputes(ctx, DisputeFilters{Open: &openOnly}, pagination.Params{Limit: 10})
	require.NoError(t, err)
	require.Len(t, openList.Disputes, 1)
	assert.Equal(t, open.ID, openList.Disputes[0].ID)

	closedOnly := false
	closedList, err := repo.ListDisputes(ctx, DisputeFilters{Open: &closedOnly}, pagination.Params{Limit: 10})
	require.NoError(t, err)
	require.Len(t, closedList.Disputes, 1)
	assert.Equal(t, "closed case", closedList.Disputes[0].Reason)
}

func TestRepositoryFindDueAutoComplete(t *testing.T) {
	gdb := setupOrdersTestDB(t)
	repo := NewRepository(gdb)
	ctx := context.Background()

	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	due := insertOrder(t, gdb, &models.Order{
		BuyerID: uuid.New(), SellerID: uuid.New(), ListingID: uuid.New(),
		AmountCents: 100, Status: enums.OrderStatusDelivered, DisputeDeadline: &past,
	})
	insertOrder(t, gdb, &models.Order{
		BuyerID: uuid.New(), SellerID: uuid.New(), ListingID: uuid.New(),
		AmountCents: 200, Status: enums.OrderStatusDelivered, DisputeDeadline: &future,
	})
	insertOrder(t, gdb, &models.Order{
		BuyerID: uuid.New(), SellerID: uuid.New(), ListingID: uuid.New(),
		AmountCents: 300, Status: enums.OrderStatusDisputed, DisputeDeadline: &past,
	})

	rows, err := repo.FindDueAutoComplete(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, due.ID, rows[0].ID)
}

func TestRepositoryFindDueEarningsRelease(t *testing.T) {
	gdb := setupOrdersTestDB(t)
	repo := NewRepository(gdb)
	ctx := context.Background()

	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	released := now.Add(-30 * time.Minute)

	due := insertOrder(t, gdb, &models.Order{
		BuyerID: uuid.New(), SellerID: uuid.New(), ListingID: uuid.New(),
		AmountCents: 100, Status: enums.OrderStatusCompleted, ProtectionReleaseAt: &past,
	})
	insertOrder(t, gdb, &models.Order{
		BuyerID: uuid.New(), SellerID: uuid.New(), ListingID: uuid.New(),
		AmountCents: 200, Status: enums.OrderStatusCompleted, ProtectionReleaseAt: &future,
	})
	insertOrder(t, gdb, &models.Order{
		BuyerID: uuid.New(), SellerID: uuid.New(), ListingID: uuid.New(),
		AmountCents: 300, Status: enums.OrderStatusCompleted, ProtectionReleaseAt: &past, EarningsReleasedAt: &released,
	})

	rows, err := repo.FindDueEarningsRelease(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, due.ID, rows[0].ID)
}
