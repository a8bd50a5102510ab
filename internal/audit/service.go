package audit

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlecore-backend/pkg/db/models"
	"github.com/angelmondragon/settlecore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlecore-backend/pkg/errors"
	"github.com/angelmondragon/settlecore-backend/pkg/pagination"
	"github.com/angelmondragon/settlecore-backend/pkg/types"
)

// Entry describes one privileged action to append to the audit trail.
type Entry struct {
	ActorID            uuid.UUID
	ActorRole          enums.Role
	ActionType         enums.AdminActionType
	TargetType         enums.TargetType
	TargetID           uuid.UUID
	Reason             string
	IPAddress          *string
	ConfirmationMethod *enums.ConfirmationMethod
	Details            types.JSONMap
}

// Recorder appends admin actions inside the caller's transaction. The action
// row must commit or roll back together with the mutation it describes, so a
// transaction handle is mandatory.
type Recorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry Entry) (*models.AdminAction, error)
}

// Service exposes the audit trail: recording and the query surface.
type Service interface {
	Recorder
	List(ctx context.Context, params pagination.Params, filters Filters) (*ActionList, error)
}

type service struct {
	repo Repository
}

// NewService wires an audit service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "audit repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Record(ctx context.Context, tx *gorm.DB, entry Entry) (*models.AdminAction, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "audit record requires a transaction")
	}
	if entry.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id required")
	}
	if !entry.ActorRole.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid actor role")
	}
	if !entry.ActionType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid action type")
	}
	if !entry.TargetType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid target type")
	}
	if entry.TargetID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "target id required")
	}
	if entry.Reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason required")
	}
	if entry.ConfirmationMethod != nil && !entry.ConfirmationMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid confirmation method")
	}

	action := &models.AdminAction{
		ID:                 uuid.New(),
		ActorID:            entry.ActorID,
		ActorRole:          entry.ActorRole,
		ActionType:         entry.ActionType,
		TargetType:         entry.TargetType,
		TargetID:           entry.TargetID,
		Reason:             entry.Reason,
		IPAddress:          entry.IPAddress,
		ConfirmationMethod: entry.ConfirmationMethod,
		Details:            entry.Details,
	}
	if err := s.repo.WithTx(tx).Create(ctx, action); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append admin action")
	}
	return action, nil
}

func (s *service) List(ctx context.Context, params pagination.Params, filters Filters) (*ActionList, error) {
	list, err := s.repo.List(ctx, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list admin actions")
	}
	return list, nil
}
