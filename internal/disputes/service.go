package disputes

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlecore-backend/internal/orders"
	"github.com/angelmondragon/settlecore-backend/pkg/db/models"
	"github.com/angelmondragon/settlecore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlecore-backend/pkg/errors"
)

type orderAdministrator interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ResolveDispute(ctx context.Context, input orders.ResolveDisputeInput) (*models.Order, error)
	ForceComplete(ctx context.Context, input orders.ForceCompleteInput) (*models.Order, error)
	ForceRefund(ctx context.Context, input orders.ForceRefundInput) (*models.Order, error)
}

// ResolveInput applies an admin resolution to a disputed order after step-up.
type ResolveInput struct {
	OrderID      uuid.UUID
	ActorID      uuid.UUID
	ActorRole    enums.Role
	Reason       string
	IPAddress    *string
	Resolution   enums.DisputeResolution
	RefundCents  int64
	PayoutCents  int64
	Note         *string
	Confirmation Confirmation
}

// OverrideInput force-completes or force-refunds an order by admin override.
type OverrideInput struct {
	OrderID      uuid.UUID
	ActorID      uuid.UUID
	ActorRole    enums.Role
	Reason       string
	IPAddress    *string
	Confirmation Confirmation
}

// Service is the privileged entry point for dispute resolution and order
// overrides. It layers the step-up guard over the order service; all money
// movement and auditing stays in one place underneath.
type Service interface {
	Resolve(ctx context.Context, input ResolveInput) (*models.Order, error)
	ForceComplete(ctx context.Context, input OverrideInput) (*models.Order, error)
	ForceRefund(ctx context.Context, input OverrideInput) (*models.Order, error)
}

type service struct {
	orders orderAdministrator
	guard  *Guard
}

// NewService wires the resolver against the order service and the step-up
// guard.
func NewService(ordersSvc orderAdministrator, guard *Guard) (Service, error) {
	if ordersSvc == nil {
		return nil, fmt.Errorf("order service is required")
	}
	if guard == nil {
		return nil, fmt.Errorf("step-up guard is required")
	}
	return &service{orders: ordersSvc, guard: guard}, nil
}

func (s *service) Resolve(ctx context.Context, input ResolveInput) (*models.Order, error) {
	if !input.Resolution.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown dispute resolution")
	}

	admin, err := s.clear(ctx, clearRequest{
		orderID:      input.OrderID,
		actorID:      input.ActorID,
		actorRole:    input.ActorRole,
		reason:       input.Reason,
		ipAddress:    input.IPAddress,
		phrase:       phraseFor(input.Resolution),
		confirmation: input.Confirmation,
	})
	if err != nil {
		return nil, err
	}

	return s.orders.ResolveDispute(ctx, orders.ResolveDisputeInput{
		Admin:       admin,
		OrderID:     input.OrderID,
		Resolution:  input.Resolution,
		Note:        input.Note,
		RefundCents: input.RefundCents,
		PayoutCents: input.PayoutCents,
	})
}

func (s *service) ForceComplete(ctx context.Context, input OverrideInput) (*models.Order, error) {
	admin, err := s.clear(ctx, clearRequest{
		orderID:      input.OrderID,
		actorID:      input.ActorID,
		actorRole:    input.ActorRole,
		reason:       input.Reason,
		ipAddress:    input.IPAddress,
		phrase:       PhraseConfirmComplete,
		confirmation: input.Confirmation,
	})
	if err != nil {
		return nil, err
	}

	return s.orders.ForceComplete(ctx, orders.ForceCompleteInput{Admin: admin, OrderID: input.OrderID})
}

func (s *service) ForceRefund(ctx context.Context, input OverrideInput) (*models.Order, error) {
	admin, err := s.clear(ctx, clearRequest{
		orderID:      input.OrderID,
		actorID:      input.ActorID,
		actorRole:    input.ActorRole,
		reason:       input.Reason,
		ipAddress:    input.IPAddress,
		phrase:       PhraseConfirmRefund,
		confirmation: input.Confirmation,
	})
	if err != nil {
		return nil, err
	}

	return s.orders.ForceRefund(ctx, orders.ForceRefundInput{Admin: admin, OrderID: input.OrderID})
}

type clearRequest struct {
	orderID      uuid.UUID
	actorID      uuid.UUID
	actorRole    enums.Role
	reason       string
	ipAddress    *string
	phrase       string
	confirmation Confirmation
}

// clear validates the caller, loads the order to size the step-up demand,
// and runs the guard. Identity and role are checked before the order is
// touched so an unprivileged caller learns nothing about order existence.
func (s *service) clear(ctx context.Context, req clearRequest) (orders.AdminContext, error) {
	if req.actorID == uuid.Nil {
		return orders.AdminContext{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "admin identity missing")
	}
	if !req.actorRole.IsAdmin() {
		return orders.AdminContext{}, pkgerrors.New(pkgerrors.CodeForbidden, "privileged action requires an admin role")
	}
	reason := strings.TrimSpace(req.reason)
	if reason == "" {
		return orders.AdminContext{}, pkgerrors.New(pkgerrors.CodeValidation, "reason required")
	}

	order, err := s.orders.Get(ctx, req.orderID)
	if err != nil {
		return orders.AdminContext{}, err
	}

	method, err := s.guard.Confirm(ctx, ConfirmInput{
		ActorID:        req.actorID,
		ActorRole:      req.actorRole,
		AmountCents:    order.AmountCents,
		RequiredPhrase: req.phrase,
		Confirmation:   req.confirmation,
	})
	if err != nil {
		return orders.AdminContext{}, err
	}

	return orders.AdminContext{
		ActorID:            req.actorID,
		ActorRole:          req.actorRole,
		Reason:             reason,
		IPAddress:          req.ipAddress,
		ConfirmationMethod: method,
	}, nil
}

func phraseFor(resolution enums.DisputeResolution) string {
	switch resolution {
	case enums.DisputeResolutionRefundBuyer:
		return PhraseConfirmRefund
	case enums.DisputeResolutionReleaseSeller:
		return PhraseConfirmRelease
	case enums.DisputeResolutionSplit:
		return PhraseConfirmSplit
	}
	return ""
}
