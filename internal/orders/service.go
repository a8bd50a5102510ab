package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlecore-backend/internal/audit"
	"github.com/angelmondragon/settlecore-backend/internal/fees"
	"github.com/angelmondragon/settlecore-backend/internal/ledger"
	"github.com/angelmondragon/settlecore-backend/internal/listings"
	"github.com/angelmondragon/settlecore-backend/pkg/db/models"
	"github.com/angelmondragon/settlecore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlecore-backend/pkg/errors"
	"github.com/angelmondragon/settlecore-backend/pkg/outbox"
	"github.com/angelmondragon/settlecore-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/settlecore-backend/pkg/pagination"
	"github.com/angelmondragon/settlecore-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ledgerAppender interface {
	AppendTx(ctx context.Context, tx *gorm.DB, input ledger.AppendInput) ([]models.LedgerEntry, error)
	FindOperation(ctx context.Context, operationKey string) ([]models.LedgerEntry, error)
}

type listingCatalog interface {
	Get(ctx context.Context, tx *gorm.DB, listingID uuid.UUID) (*listings.Info, error)
	MarkSold(ctx context.Context, tx *gorm.DB, listingID uuid.UUID) error
}

type settlementConfig interface {
	DefaultFeePercent(ctx context.Context) (decimal.Decimal, error)
	DisputeWindow(ctx context.Context) (time.Duration, error)
	SellerProtection(ctx context.Context) (time.Duration, error)
}

// Service drives the escrow order lifecycle. Every money-moving transition
// runs in one transaction: status change, ledger legs, audit row and outbox
// event commit together or not at all.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Order, error)
	Deliver(ctx context.Context, input DeliverInput) (*models.Order, error)
	Complete(ctx context.Context, input CompleteInput) (*models.Order, error)
	Dispute(ctx context.Context, input DisputeInput) (*models.Order, error)
	ResolveDispute(ctx context.Context, input ResolveDisputeInput) (*models.Order, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Order, error)
	ForceComplete(ctx context.Context, input ForceCompleteInput) (*models.Order, error)
	ForceRefund(ctx context.Context, input ForceRefundInput) (*models.Order, error)
	ExtendDisputeWindow(ctx context.Context, input ExtendDisputeWindowInput) (*models.Order, error)
	ReleaseEarnings(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetDispute(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, filters ListFilters, params pagination.Params) (*OrderList, error)
	ListDisputes(ctx context.Context, filters DisputeFilters, params pagination.Params) (*DisputeList, error)
	DueAutoComplete(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	DueEarningsRelease(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type service struct {
	repo              Repository
	tx                txRunner
	ledger            ledgerAppender
	listings          listingCatalog
	config            settlementConfig
	outbox            outboxPublisher
	auditor           audit.Recorder
	platformAccountID uuid.UUID
	now               func() time.Time
}

// NewService wires the order service with its collaborators. The platform
// account receives the fee leg of every settlement split.
func NewService(
	repo Repository,
	tx txRunner,
	ledgerSvc ledgerAppender,
	catalog listingCatalog,
	config settlementConfig,
	outboxSvc outboxPublisher,
	auditor audit.Recorder,
	platformAccountID uuid.UUID,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("listing catalog required")
	}
	if config == nil {
		return nil, fmt.Errorf("settlement config required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if auditor == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if platformAccountID == uuid.Nil {
		return nil, fmt.Errorf("platform account id required")
	}
	return &service{
		repo:              repo,
		tx:                tx,
		ledger:            ledgerSvc,
		listings:          catalog,
		config:            config,
		outbox:            outboxSvc,
		auditor:           auditor,
		platformAccountID: platformAccountID,
		now:               time.Now,
	}, nil
}

func createOperationKey(idempotencyKey string) string {
	return "order/create/" + idempotencyKey
}

func operationKey(orderID uuid.UUID, step string) string {
	return fmt.Sprintf("order/%s/%s", orderID, step)
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Order, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	}
	if input.ListingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing id required")
	}
	key := strings.TrimSpace(input.IdempotencyKey)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key required")
	}

	percent, err := s.config.DefaultFeePercent(ctx)
	if err != nil {
		return nil, err
	}

	opKey := createOperationKey(key)
	var order *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		info, err := s.listings.Get(ctx, tx, input.ListingID)
		if err != nil {
			return err
		}
		if !info.Purchasable {
			return pkgerrors.New(pkgerrors.CodeListingUnavailable, "listing is not purchasable")
		}
		if info.SellerID == input.BuyerID {
			return pkgerrors.New(pkgerrors.CodeValidation, "buyer cannot purchase own listing")
		}

		breakdown, err := fees.Compute(info.PriceCents, percent)
		if err != nil {
			return err
		}

		number, err := repo.NextOrderNumber(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate order number")
		}

		order = &models.Order{
			ID:                  uuid.New(),
			OrderNumber:         number,
			BuyerID:             input.BuyerID,
			SellerID:            info.SellerID,
			ListingID:           info.ID,
			AmountCents:         breakdown.AmountCents,
			PlatformFeeCents:    breakdown.FeeCents,
			SellerEarningsCents: breakdown.EarningsCents,
			FeePercent:          breakdown.Percent.String(),
			Status:              enums.OrderStatusCreated,
		}
		if _, err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		if _, err := s.ledger.AppendTx(ctx, tx, ledger.AppendInput{
			OperationKey: opKey,
			ActorID:      &input.BuyerID,
			Entries: []ledger.EntryInput{
				{AccountID: input.BuyerID, AmountCents: -order.AmountCents, Bucket: enums.LedgerBucketAvailable, Reason: enums.LedgerReasonOrderHold, RelatedOrderID: &order.ID},
				{AccountID: input.BuyerID, AmountCents: order.AmountCents, Bucket: enums.LedgerBucketEscrowHeld, Reason: enums.LedgerReasonOrderHold, RelatedOrderID: &order.ID},
			},
		}); err != nil {
			return err
		}

		paidAt := s.now()
		updated, err := repo.Transition(ctx, order.ID, enums.OrderStatusCreated, map[string]any{
			"status":  enums.OrderStatusPaid,
			"paid_at": paidAt,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		if !updated {
			return pkgerrors.New(pkgerrors.CodeStaleState, "order state changed, re-read and retry")
		}
		order.Status = enums.OrderStatusPaid
		order.PaidAt = &paidAt

		if err := s.listings.MarkSold(ctx, tx, info.ID); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         buildActor(input.BuyerID, enums.RoleUser),
			Data: payloads.OrderPaidEvent{
				OrderID:             order.ID,
				OrderNumber:         order.OrderNumber,
				BuyerID:             order.BuyerID,
				SellerID:            order.SellerID,
				ListingID:           order.ListingID,
				AmountCents:         order.AmountCents,
				PlatformFeeCents:    order.PlatformFeeCents,
				SellerEarningsCents: order.SellerEarningsCents,
				PaidAt:              paidAt,
			},
		})
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeIdempotency {
			return s.findByOperation(ctx, opKey)
		}
		return nil, err
	}
	return order, nil
}

// findByOperation recovers the order funded by a previously applied hold so
// a retried Create returns the original result.
func (s *service) findByOperation(ctx context.Context, opKey string) (*models.Order, error) {
	entries, err := s.ledger.FindOperation(ctx, opKey)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.RelatedOrderID != nil {
			return s.Get(ctx, *entry.RelatedOrderID)
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key already used by another operation")
}

func (s *service) Deliver(ctx context.Context, input DeliverInput) (*models.Order, error) {
	if input.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "seller identity missing")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	window, err := s.config.DisputeWindow(ctx)
	if err != nil {
		return nil, err
	}
	protection, err := s.config.SellerProtection(ctx)
	if err != nil {
		return nil, err
	}

	var order *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := s.load(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if current.SellerID != input.SellerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the seller can deliver this order")
		}
		if current.Status == enums.OrderStatusDelivered {
			order = current
			return nil
		}
		if current.Status != enums.OrderStatusPaid {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order cannot be delivered from its current state")
		}

		deliveredAt := s.now()
		deadline := deliveredAt.Add(window)
		release := deliveredAt.Add(protection)
		updated, err := repo.Transition(ctx, current.ID, enums.OrderStatusPaid, map[string]any{
			"status":                enums.OrderStatusDelivered,
			"delivered_at":          deliveredAt,
			"dispute_deadline":      deadline,
			"protection_release_at": release,
			"delivery_note":         input.DeliveryNote,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order delivered")
		}
		if !updated {
			order, err = s.reloadAfterLostRace(ctx, repo, current.ID, enums.OrderStatusDelivered)
			return err
		}

		current.Status = enums.OrderStatusDelivered
		current.DeliveredAt = &deliveredAt
		current.DisputeDeadline = &deadline
		current.ProtectionReleaseAt = &release
		current.DeliveryNote = input.DeliveryNote
		order = current

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderDelivered,
			AggregateType: enums.AggregateOrder,
			AggregateID:   current.ID,
			Version:       1,
			Actor:         buildActor(input.SellerID, enums.RoleUser),
			Data: payloads.OrderDeliveredEvent{
				OrderID:         current.ID,
				BuyerID:         current.BuyerID,
				SellerID:        current.SellerID,
				DeliveredAt:     deliveredAt,
				DisputeDeadline: deadline,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) Complete(ctx context.Context, input CompleteInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	switch input.By {
	case enums.CompletedByBuyer:
		if input.ActorID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
		}
	case enums.CompletedByAuto:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "admin completion goes through force-complete")
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := s.load(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if input.By == enums.CompletedByBuyer && current.BuyerID != input.ActorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can confirm completion")
		}
		if current.Status == enums.OrderStatusCompleted {
			order = current
			return nil
		}
		if current.Status != enums.OrderStatusDelivered {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order cannot be completed from its current state")
		}
		if input.By == enums.CompletedByAuto {
			if current.DisputeDeadline == nil || s.now().Before(*current.DisputeDeadline) {
				return pkgerrors.New(pkgerrors.CodeInvalidTransition, "dispute window still open")
			}
		}

		order, err = s.settle(ctx, tx, repo, current, enums.OrderStatusDelivered, input.By, buildActor(input.ActorID, enums.RoleUser))
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// settle transitions the order to completed and appends the escrow split.
// The guarded status update runs first so concurrent settlements serialize
// on the order row and exactly one split is ever appended.
func (s *service) settle(
	ctx context.Context,
	tx *gorm.DB,
	repo Repository,
	order *models.Order,
	from enums.OrderStatus,
	by enums.CompletedBy,
	actor *outbox.ActorRef,
) (*models.Order, error) {
	completedAt := s.now()
	updated, err := repo.Transition(ctx, order.ID, from, map[string]any{
		"status":       enums.OrderStatusCompleted,
		"completed_at": completedAt,
		"completed_by": by,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order completed")
	}
	if !updated {
		return s.reloadAfterLostRace(ctx, repo, order.ID, enums.OrderStatusCompleted)
	}

	legs := []ledger.EntryInput{{
		AccountID:      order.BuyerID,
		AmountCents:    -order.AmountCents,
		Bucket:         enums.LedgerBucketEscrowHeld,
		Reason:         enums.LedgerReasonOrderRelease,
		RelatedOrderID: &order.ID,
	}}
	if order.SellerEarningsCents > 0 {
		legs = append(legs, ledger.EntryInput{
			AccountID:      order.SellerID,
			AmountCents:    order.SellerEarningsCents,
			Bucket:         enums.LedgerBucketPending,
			Reason:         enums.LedgerReasonOrderRelease,
			RelatedOrderID: &order.ID,
		})
	}
	if order.PlatformFeeCents > 0 {
		legs = append(legs, ledger.EntryInput{
			AccountID:      s.platformAccountID,
			AmountCents:    order.PlatformFeeCents,
			Bucket:         enums.LedgerBucketPlatformFee,
			Reason:         enums.LedgerReasonFee,
			RelatedOrderID: &order.ID,
		})
	}
	var actorID *uuid.UUID
	if actor != nil {
		actorID = &actor.UserID
	}
	if _, err := s.ledger.AppendTx(ctx, tx, ledger.AppendInput{
		OperationKey: operationKey(order.ID, "release"),
		ActorID:      actorID,
		Entries:      legs,
	}); err != nil {
		return nil, err
	}

	order.Status = enums.OrderStatusCompleted
	order.CompletedAt = &completedAt
	order.CompletedBy = &by

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCompleted,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Version:       1,
		Actor:         actor,
		Data: payloads.OrderCompletedEvent{
			OrderID:             order.ID,
			BuyerID:             order.BuyerID,
			SellerID:            order.SellerID,
			CompletedBy:         by,
			PlatformFeeCents:    order.PlatformFeeCents,
			SellerEarningsCents: order.SellerEarningsCents,
			ProtectionReleaseAt: timeOrZero(order.ProtectionReleaseAt),
			CompletedAt:         completedAt,
		},
	}); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) Dispute(ctx context.Context, input DisputeInput) (*models.Order, error) {
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dispute reason required")
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := s.load(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if current.BuyerID != input.ActorID && current.SellerID != input.ActorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only an order party can open a dispute")
		}
		if current.Status == enums.OrderStatusDisputed {
			order = current
			return nil
		}
		if current.Status != enums.OrderStatusDelivered {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "only delivered orders can be disputed")
		}
		if current.DisputeDeadline == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "delivered order missing dispute deadline")
		}

		openedAt := s.now()
		if !openedAt.Before(*current.DisputeDeadline) {
			return pkgerrors.New(pkgerrors.CodeDisputeWindowClosed, "dispute window has closed")
		}

		dispute := &models.Dispute{
			ID:       uuid.New(),
			OrderID:  current.ID,
			OpenedBy: input.ActorID,
			Reason:   reason,
			OpenedAt: openedAt,
		}
		if _, err := repo.CreateDispute(ctx, dispute); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create dispute")
		}

		updated, err := repo.Transition(ctx, current.ID, enums.OrderStatusDelivered, map[string]any{
			"status":            enums.OrderStatusDisputed,
			"dispute_opened_at": openedAt,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order disputed")
		}
		if !updated {
			return pkgerrors.New(pkgerrors.CodeStaleState, "order state changed, re-read and retry")
		}

		current.Status = enums.OrderStatusDisputed
		current.DisputeOpenedAt = &openedAt
		order = current

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderDisputed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   current.ID,
			Version:       1,
			Actor:         buildActor(input.ActorID, enums.RoleUser),
			Data: payloads.OrderDisputedEvent{
				OrderID:   current.ID,
				DisputeID: dispute.ID,
				OpenedBy:  dispute.OpenedBy,
				Reason:    dispute.Reason,
				OpenedAt:  openedAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) ResolveDispute(ctx context.Context, input ResolveDisputeInput) (*models.Order, error) {
	if err := validateAdmin(input.Admin); err != nil {
		return nil, err
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Resolution.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid resolution %q", input.Resolution))
	}
	if input.Resolution == enums.DisputeResolutionSplit {
		if input.RefundCents < 0 || input.PayoutCents < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "split amounts cannot be negative")
		}
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := s.load(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}

		dispute, err := repo.FindDisputeByOrder(ctx, current.ID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "dispute not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load dispute")
		}

		if current.Status != enums.OrderStatusDisputed {
			if dispute.Resolution != nil && *dispute.Resolution == input.Resolution {
				order = current
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order is not disputed")
		}
		if dispute.Resolution != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "dispute already resolved")
		}

		resolvedAt := s.now()
		actor := buildActor(input.Admin.ActorID, input.Admin.ActorRole)

		var refund, payout, fee int64
		switch input.Resolution {
		case enums.DisputeResolutionRefundBuyer:
			refund = current.AmountCents
			order, err = s.refund(ctx, tx, repo, current, enums.OrderStatusDisputed, actor, &input.Resolution)
			if err != nil {
				return err
			}
		case enums.DisputeResolutionReleaseSeller:
			payout = current.SellerEarningsCents
			fee = current.PlatformFeeCents
			order, err = s.settle(ctx, tx, repo, current, enums.OrderStatusDisputed, enums.CompletedByAdmin, actor)
			if err != nil {
				return err
			}
		case enums.DisputeResolutionSplit:
			refund = input.RefundCents
			payout = input.PayoutCents
			fee = current.AmountCents - refund - payout
			if fee < 0 {
				return pkgerrors.New(pkgerrors.CodeValidation, "split amounts exceed the original hold")
			}
			order, err = s.splitSettle(ctx, tx, repo, current, refund, payout, fee, actor)
			if err != nil {
				return err
			}
		}

		resolved, err := repo.ResolveDisputeRow(ctx, dispute.ID, map[string]any{
			"resolution":  input.Resolution,
			"resolved_by": input.Admin.ActorID,
			"resolved_at": resolvedAt,
			"note":        input.Note,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve dispute row")
		}
		if !resolved {
			return pkgerrors.New(pkgerrors.CodeStaleState, "dispute state changed, re-read and retry")
		}

		_, err = s.auditor.Record(ctx, tx, audit.Entry{
			ActorID:            input.Admin.ActorID,
			ActorRole:          input.Admin.ActorRole,
			ActionType:         enums.AdminActionResolveDispute,
			TargetType:         enums.TargetTypeDispute,
			TargetID:           dispute.ID,
			Reason:             input.Admin.Reason,
			IPAddress:          input.Admin.IPAddress,
			ConfirmationMethod: input.Admin.ConfirmationMethod,
			Details: types.JSONMap{
				"order_id":     current.ID.String(),
				"resolution":   string(input.Resolution),
				"refund_cents": refund,
				"payout_cents": payout,
				"fee_cents":    fee,
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// refund returns the full escrow hold to the buyer and marks the order
// refunded.
func (s *service) refund(
	ctx context.Context,
	tx *gorm.DB,
	repo Repository,
	order *models.Order,
	from enums.OrderStatus,
	actor *outbox.ActorRef,
	resolution *enums.DisputeResolution,
) (*models.Order, error) {
	refundedAt := s.now()
	updated, err := repo.Transition(ctx, order.ID, from, map[string]any{
		"status":      enums.OrderStatusRefunded,
		"refunded_at": refundedAt,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order refunded")
	}
	if !updated {
		return s.reloadAfterLostRace(ctx, repo, order.ID, enums.OrderStatusRefunded)
	}

	var actorID *uuid.UUID
	if actor != nil {
		actorID = &actor.UserID
	}
	if _, err := s.ledger.AppendTx(ctx, tx, ledger.AppendInput{
		OperationKey: operationKey(order.ID, "refund"),
		ActorID:      actorID,
		Entries: []ledger.EntryInput{
			{AccountID: order.BuyerID, AmountCents: -order.AmountCents, Bucket: enums.LedgerBucketEscrowHeld, Reason: enums.LedgerReasonOrderRefund, RelatedOrderID: &order.ID},
			{AccountID: order.BuyerID, AmountCents: order.AmountCents, Bucket: enums.LedgerBucketAvailable, Reason: enums.LedgerReasonOrderRefund, RelatedOrderID: &order.ID},
		},
	}); err != nil {
		return nil, err
	}

	order.Status = enums.OrderStatusRefunded
	order.RefundedAt = &refundedAt

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderRefunded,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Version:       1,
		Actor:         actor,
		Data: payloads.OrderRefundedEvent{
			OrderID:     order.ID,
			BuyerID:     order.BuyerID,
			RefundCents: order.AmountCents,
			Resolution:  resolution,
			RefundedAt:  refundedAt,
		},
	}); err != nil {
		return nil, err
	}
	return order, nil
}

// splitSettle applies an explicit refund/payout/fee division of the escrow
// hold. Zero legs are omitted; the order's fee and earnings snapshots are
// rewritten to the split outcome.
func (s *service) splitSettle(
	ctx context.Context,
	tx *gorm.DB,
	repo Repository,
	order *models.Order,
	refund, payout, fee int64,
	actor *outbox.ActorRef,
) (*models.Order, error) {
	settledAt := s.now()

	target := enums.OrderStatusRefunded
	updates := map[string]any{
		"platform_fee_cents":    fee,
		"seller_earnings_cents": payout,
	}
	if payout > 0 {
		target = enums.OrderStatusCompleted
		updates["status"] = target
		updates["completed_at"] = settledAt
		updates["completed_by"] = enums.CompletedByAdmin
	} else {
		updates["status"] = target
		updates["refunded_at"] = settledAt
	}

	updated, err := repo.Transition(ctx, order.ID, enums.OrderStatusDisputed, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply split resolution")
	}
	if !updated {
		return s.reloadAfterLostRace(ctx, repo, order.ID, target)
	}

	legs := []ledger.EntryInput{{
		AccountID:      order.BuyerID,
		AmountCents:    -order.AmountCents,
		Bucket:         enums.LedgerBucketEscrowHeld,
		Reason:         enums.LedgerReasonOrderRelease,
		RelatedOrderID: &order.ID,
	}}
	if refund > 0 {
		legs = append(legs, ledger.EntryInput{
			AccountID:      order.BuyerID,
			AmountCents:    refund,
			Bucket:         enums.LedgerBucketAvailable,
			Reason:         enums.LedgerReasonOrderRefund,
			RelatedOrderID: &order.ID,
		})
	}
	if payout > 0 {
		legs = append(legs, ledger.EntryInput{
			AccountID:      order.SellerID,
			AmountCents:    payout,
			Bucket:         enums.LedgerBucketPending,
			Reason:         enums.LedgerReasonOrderRelease,
			RelatedOrderID: &order.ID,
		})
	}
	if fee > 0 {
		legs = append(legs, ledger.EntryInput{
			AccountID:      s.platformAccountID,
			AmountCents:    fee,
			Bucket:         enums.LedgerBucketPlatformFee,
			Reason:         enums.LedgerReasonFee,
			RelatedOrderID: &order.ID,
		})
	}
	var actorID *uuid.UUID
	if actor != nil {
		actorID = &actor.UserID
	}
	if _, err := s.ledger.AppendTx(ctx, tx, ledger.AppendInput{
		OperationKey: operationKey(order.ID, "split"),
		ActorID:      actorID,
		Entries:      legs,
	}); err != nil {
		return nil, err
	}

	order.PlatformFeeCents = fee
	order.SellerEarningsCents = payout
	order.Status = target

	var event outbox.DomainEvent
	if payout > 0 {
		by := enums.CompletedByAdmin
		order.CompletedAt = &settledAt
		order.CompletedBy = &by
		event = outbox.DomainEvent{
			EventType:     enums.EventOrderCompleted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         actor,
			Data: payloads.OrderCompletedEvent{
				OrderID:             order.ID,
				BuyerID:             order.BuyerID,
				SellerID:            order.SellerID,
				CompletedBy:         by,
				PlatformFeeCents:    fee,
				SellerEarningsCents: payout,
				ProtectionReleaseAt: timeOrZero(order.ProtectionReleaseAt),
				CompletedAt:         settledAt,
			},
		}
	} else {
		resolution := enums.DisputeResolutionSplit
		order.RefundedAt = &settledAt
		event = outbox.DomainEvent{
			EventType:     enums.EventOrderRefunded,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         actor,
			Data: payloads.OrderRefundedEvent{
				OrderID:     order.ID,
				BuyerID:     order.BuyerID,
				RefundCents: refund,
				Resolution:  &resolution,
				RefundedAt:  settledAt,
			},
		}
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Order, error) {
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := s.load(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if current.BuyerID != input.ActorID && current.SellerID != input.ActorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only an order party can cancel")
		}

		switch current.Status {
		case enums.OrderStatusCancelled, enums.OrderStatusRefunded:
			order = current
			return nil
		case enums.OrderStatusCreated:
			cancelledAt := s.now()
			updated, err := repo.Transition(ctx, current.ID, enums.OrderStatusCreated, map[string]any{
				"status":       enums.OrderStatusCancelled,
				"cancelled_at": cancelledAt,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
			}
			if !updated {
				order, err = s.reloadAfterLostRace(ctx, repo, current.ID, enums.OrderStatusCancelled)
				return err
			}
			current.Status = enums.OrderStatusCancelled
			current.CancelledAt = &cancelledAt
			order = current
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderCancelled,
				AggregateType: enums.AggregateOrder,
				AggregateID:   current.ID,
				Version:       1,
				Actor:         buildActor(input.ActorID, enums.RoleUser),
				Data: payloads.OrderCancelledEvent{
					OrderID:     current.ID,
					BuyerID:     current.BuyerID,
					SellerID:    current.SellerID,
					CancelledAt: cancelledAt,
				},
			})
		case enums.OrderStatusPaid:
			order, err = s.refund(ctx, tx, repo, current, enums.OrderStatusPaid, buildActor(input.ActorID, enums.RoleUser), nil)
			return err
		default:
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order can no longer be cancelled")
		}
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) ForceComplete(ctx context.Context, input ForceCompleteInput) (*models.Order, error) {
	if err := validateAdmin(input.Admin); err != nil {
		return nil, err
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := s.load(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if current.Status == enums.OrderStatusCompleted {
			order = current
			return nil
		}
		if current.Status != enums.OrderStatusDelivered && current.Status != enums.OrderStatusDisputed {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order cannot be force-completed from its current state")
		}

		if current.Status == enums.OrderStatusDisputed {
			if err := s.resolveOpenDispute(ctx, repo, current.ID, input.Admin, enums.DisputeResolutionReleaseSeller); err != nil {
				return err
			}
		}

		actor := buildActor(input.Admin.ActorID, input.Admin.ActorRole)
		order, err = s.settle(ctx, tx, repo, current, current.Status, enums.CompletedByAdmin, actor)
		if err != nil {
			return err
		}

		_, err = s.auditor.Record(ctx, tx, audit.Entry{
			ActorID:            input.Admin.ActorID,
			ActorRole:          input.Admin.ActorRole,
			ActionType:         enums.AdminActionForceComplete,
			TargetType:         enums.TargetTypeOrder,
			TargetID:           current.ID,
			Reason:             input.Admin.Reason,
			IPAddress:          input.Admin.IPAddress,
			ConfirmationMethod: input.Admin.ConfirmationMethod,
			Details: types.JSONMap{
				"payout_cents": order.SellerEarningsCents,
				"fee_cents":    order.PlatformFeeCents,
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) ForceRefund(ctx context.Context, input ForceRefundInput) (*models.Order, error) {
	if err := validateAdmin(input.Admin); err != nil {
		return nil, err
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := s.load(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if current.Status == enums.OrderStatusRefunded {
			order = current
			return nil
		}
		switch current.Status {
		case enums.OrderStatusPaid, enums.OrderStatusDelivered, enums.OrderStatusDisputed:
		default:
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order cannot be force-refunded from its current state")
		}

		if current.Status == enums.OrderStatusDisputed {
			if err := s.resolveOpenDispute(ctx, repo, current.ID, input.Admin, enums.DisputeResolutionRefundBuyer); err != nil {
				return err
			}
		}

		actor := buildActor(input.Admin.ActorID, input.Admin.ActorRole)
		order, err = s.refund(ctx, tx, repo, current, current.Status, actor, nil)
		if err != nil {
			return err
		}

		_, err = s.auditor.Record(ctx, tx, audit.Entry{
			ActorID:            input.Admin.ActorID,
			ActorRole:          input.Admin.ActorRole,
			ActionType:         enums.AdminActionForceRefund,
			TargetType:         enums.TargetTypeOrder,
			TargetID:           current.ID,
			Reason:             input.Admin.Reason,
			IPAddress:          input.Admin.IPAddress,
			ConfirmationMethod: input.Admin.ConfirmationMethod,
			Details: types.JSONMap{
				"refund_cents": current.AmountCents,
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// resolveOpenDispute closes the dispute row when an admin override settles a
// disputed order outside ResolveDispute.
func (s *service) resolveOpenDispute(ctx context.Context, repo Repository, orderID uuid.UUID, admin AdminContext, resolution enums.DisputeResolution) error {
	dispute, err := repo.FindDisputeByOrder(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "dispute not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load dispute")
	}
	if dispute.Resolution != nil {
		return pkgerrors.New(pkgerrors.CodeConflict, "dispute already resolved")
	}
	resolved, err := repo.ResolveDisputeRow(ctx, dispute.ID, map[string]any{
		"resolution":  resolution,
		"resolved_by": admin.ActorID,
		"resolved_at": s.now(),
		"note":        admin.Reason,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve dispute row")
	}
	if !resolved {
		return pkgerrors.New(pkgerrors.CodeStaleState, "dispute state changed, re-read and retry")
	}
	return nil
}

func (s *service) ExtendDisputeWindow(ctx context.Context, input ExtendDisputeWindowInput) (*models.Order, error) {
	if err := validateAdmin(input.Admin); err != nil {
		return nil, err
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.AdditionalHours <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "extension hours must be positive")
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := s.load(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if current.Status != enums.OrderStatusDelivered {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "only delivered orders accept a window extension")
		}
		if current.DisputeDeadline == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "delivered order missing dispute deadline")
		}

		extension := time.Duration(input.AdditionalHours) * time.Hour
		newDeadline := current.DisputeDeadline.Add(extension)
		updates := map[string]any{"dispute_deadline": newDeadline}
		var newRelease *time.Time
		if current.ProtectionReleaseAt != nil {
			shifted := current.ProtectionReleaseAt.Add(extension)
			newRelease = &shifted
			updates["protection_release_at"] = shifted
		}

		updated, err := repo.Transition(ctx, current.ID, enums.OrderStatusDelivered, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "extend dispute window")
		}
		if !updated {
			return pkgerrors.New(pkgerrors.CodeStaleState, "order state changed, re-read and retry")
		}

		details := types.JSONMap{
			"hours":           input.AdditionalHours,
			"deadline_before": current.DisputeDeadline.Format(time.RFC3339),
			"deadline_after":  newDeadline.Format(time.RFC3339),
		}
		current.DisputeDeadline = &newDeadline
		if newRelease != nil {
			current.ProtectionReleaseAt = newRelease
		}
		order = current

		_, err = s.auditor.Record(ctx, tx, audit.Entry{
			ActorID:            input.Admin.ActorID,
			ActorRole:          input.Admin.ActorRole,
			ActionType:         enums.AdminActionExtendDisputeWindow,
			TargetType:         enums.TargetTypeOrder,
			TargetID:           current.ID,
			Reason:             input.Admin.Reason,
			IPAddress:          input.Admin.IPAddress,
			ConfirmationMethod: input.Admin.ConfirmationMethod,
			Details:            details,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) ReleaseEarnings(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := s.load(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if current.EarningsReleasedAt != nil {
			order = current
			return nil
		}
		if current.Status != enums.OrderStatusCompleted {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "earnings release requires a completed order")
		}
		releasedAt := s.now()
		if current.ProtectionReleaseAt == nil || releasedAt.Before(*current.ProtectionReleaseAt) {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "seller protection has not elapsed")
		}

		updated, err := repo.MarkEarningsReleased(ctx, current.ID, releasedAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark earnings released")
		}
		if !updated {
			fresh, err := repo.Find(ctx, current.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
			}
			if fresh.EarningsReleasedAt != nil {
				order = fresh
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeStaleState, "order state changed, re-read and retry")
		}

		if current.SellerEarningsCents > 0 {
			if _, err := s.ledger.AppendTx(ctx, tx, ledger.AppendInput{
				OperationKey: operationKey(current.ID, "earnings"),
				Entries: []ledger.EntryInput{
					{AccountID: current.SellerID, AmountCents: -current.SellerEarningsCents, Bucket: enums.LedgerBucketPending, Reason: enums.LedgerReasonOrderRelease, RelatedOrderID: &current.ID},
					{AccountID: current.SellerID, AmountCents: current.SellerEarningsCents, Bucket: enums.LedgerBucketAvailable, Reason: enums.LedgerReasonOrderRelease, RelatedOrderID: &current.ID},
				},
			}); err != nil {
				return err
			}
		}

		current.EarningsReleasedAt = &releasedAt
		order = current

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEarningsReleased,
			AggregateType: enums.AggregateOrder,
			AggregateID:   current.ID,
			Version:       1,
			Data: payloads.EarningsReleasedEvent{
				OrderID:     current.ID,
				SellerID:    current.SellerID,
				AmountCents: current.SellerEarningsCents,
				ReleasedAt:  releasedAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	return s.load(ctx, s.repo, orderID)
}

func (s *service) GetDispute(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	dispute, err := s.repo.FindDisputeByOrder(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dispute not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load dispute")
	}
	return dispute, nil
}

func (s *service) ListByAccount(ctx context.Context, accountID uuid.UUID, filters ListFilters, params pagination.Params) (*OrderList, error) {
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	list, err := s.repo.ListByAccount(ctx, accountID, filters, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return list, nil
}

func (s *service) ListDisputes(ctx context.Context, filters DisputeFilters, params pagination.Params) (*DisputeList, error) {
	list, err := s.repo.ListDisputes(ctx, filters, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list disputes")
	}
	return list, nil
}

const defaultScanLimit = 100

func (s *service) DueAutoComplete(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = defaultScanLimit
	}
	rows, err := s.repo.FindDueAutoComplete(ctx, cutoff, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "scan auto-complete orders")
	}
	return rows, nil
}

func (s *service) DueEarningsRelease(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = defaultScanLimit
	}
	rows, err := s.repo.FindDueEarningsRelease(ctx, cutoff, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "scan earnings release orders")
	}
	return rows, nil
}

func (s *service) load(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.Find(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

// reloadAfterLostRace distinguishes an already-applied transition from a
// real conflict after a guarded update touched zero rows.
func (s *service) reloadAfterLostRace(ctx context.Context, repo Repository, orderID uuid.UUID, want enums.OrderStatus) (*models.Order, error) {
	fresh, err := repo.Find(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	if fresh.Status == want {
		return fresh, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeStaleState, "order state changed, re-read and retry")
}

func validateAdmin(admin AdminContext) error {
	if admin.ActorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "admin identity missing")
	}
	if !admin.ActorRole.IsAdmin() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "privileged action requires an admin role")
	}
	if strings.TrimSpace(admin.Reason) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "reason required")
	}
	return nil
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

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
