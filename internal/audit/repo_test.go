package audit

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
	"github.com/angelmondragon/settlecore-backend/pkg/types"
)

func setupAuditTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	adminActions := `
CREATE TABLE IF NOT EXISTS admin_actions (
  id TEXT PRIMARY KEY,
  actor_id TEXT NOT NULL,
  actor_role TEXT NOT NULL,
  action_type TEXT NOT NULL,
  target_type TEXT NOT NULL,
  target_id TEXT NOT NULL,
  reason TEXT NOT NULL,
  ip_address TEXT,
  confirmation_method TEXT,
  details TEXT,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(`DROP TABLE IF EXISTS admin_actions`).Error)
	require.NoError(t, db.Exec(adminActions).Error)
	return db
}

func createAction(t *testing.T, db *gorm.DB, actorID uuid.UUID, actionType enums.AdminActionType, targetType enums.TargetType, created time.Time) *models.AdminAction {
	t.Helper()

	action := &models.AdminAction{
		ID:         uuid.New(),
		ActorID:    actorID,
		ActorRole:  enums.RoleAdmin,
		ActionType: actionType,
		TargetType: targetType,
		TargetID:   uuid.New(),
		Reason:     "test action",
		Details:    types.JSONMap{"k": "v"},
		CreatedAt:  created,
	}
	require.NoError(t, db.Create(action).Error)
	return action
}

func TestRepositoryList_pagination(t *testing.T) {
	db := setupAuditTestDB(t)
	repo := NewRepository(db)

	actor := uuid.New()
	now := time.Now().UTC()
	createAction(t, db, actor, enums.AdminActionWalletCredit, enums.TargetTypeAccount, now.Add(-2*time.Hour))
	createAction(t, db, actor, enums.AdminActionWalletDebit, enums.TargetTypeAccount, now.Add(-time.Hour))
	newest := createAction(t, db, actor, enums.AdminActionResolveDispute, enums.TargetTypeDispute, now)

	first, err := repo.List(context.Background(), pagination.Params{Limit: 2}, Filters{})
	require.NoError(t, err)
	require.Len(t, first.Actions, 2)
	assert.Equal(t, newest.ID, first.Actions[0].ID)
	assert.NotEmpty(t, first.NextCursor)

	second, err := repo.List(context.Background(), pagination.Params{Limit: 2, Cursor: first.NextCursor}, Filters{})
	require.NoError(t, err)
	require.Len(t, second.Actions, 1)
	assert.Equal(t, enums.AdminActionWalletCredit, second.Actions[0].ActionType)
	assert.Empty(t, second.NextCursor)
}

func TestRepositoryList_filters(t *testing.T) {
	db := setupAuditTestDB(t)
	repo := NewRepository(db)

	actorA := uuid.New()
	actorB := uuid.New()
	now := time.Now().UTC()
	createAction(t, db, actorA, enums.AdminActionWalletFreeze, enums.TargetTypeAccount, now.Add(-time.Minute))
	target := createAction(t, db, actorB, enums.AdminActionResolveDispute, enums.TargetTypeDispute, now)

	byActor, err := repo.List(context.Background(), pagination.Params{Limit: 10}, Filters{ActorID: &actorB})
	require.NoError(t, err)
	require.Len(t, byActor.Actions, 1)
	assert.Equal(t, target.ID, byActor.Actions[0].ID)

	actionType := enums.AdminActionWalletFreeze
	byType, err := repo.List(context.Background(), pagination.Params{Limit: 10}, Filters{ActionType: &actionType})
	require.NoError(t, err)
	require.Len(t, byType.Actions, 1)
	assert.Equal(t, actorA, byType.Actions[0].ActorID)

	targetType := enums.TargetTypeDispute
	byTarget, err := repo.List(context.Background(), pagination.Params{Limit: 10}, Filters{TargetType: &targetType, TargetID: &target.TargetID})
	require.NoError(t, err)
	require.Len(t, byTarget.Actions, 1)
	assert.Equal(t, target.ID, byTarget.Actions[0].ID)
}

func TestRepositoryCreate_persistsDetails(t *testing.T) {
	db := setupAuditTestDB(t)
	repo := NewRepository(db)

	action := &models.AdminAction{
		ID:         uuid.New(),
		ActorID:    uuid.New(),
		ActorRole:  enums.RoleSuperAdmin,
		ActionType: enums.AdminActionConfigChange,
		TargetType: enums.TargetTypeConfig,
		TargetID:   uuid.New(),
		Reason:     "bump fee",
		Details:    types.JSONMap{"before": "5.0", "after": "6.0"},
	}
	require.NoError(t, repo.Create(context.Background(), action))

	var reloaded models.AdminAction
	require.NoError(t, db.Where("id = ?", action.ID).First(&reloaded).Error)
	assert.Equal(t, "bump fee", reloaded.Reason)
	assert.Equal(t, "5.0", reloaded.Details["before"])
	assert.Equal(t, "6.0", reloaded.Details["after"])
}
