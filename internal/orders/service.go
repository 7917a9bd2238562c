package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/acavero/shopline-backend/internal/inventory"
	"github.com/acavero/shopline-backend/pkg/db"
	"github.com/acavero/shopline-backend/pkg/db/models"
	"github.com/acavero/shopline-backend/pkg/enums"
	pkgerrors "github.com/acavero/shopline-backend/pkg/errors"
	"github.com/acavero/shopline-backend/pkg/logger"
	"github.com/acavero/shopline-backend/pkg/metrics"
	"github.com/acavero/shopline-backend/pkg/outbox"
)

const defaultListLimit = 50

// Service owns the order lifecycle. Every status write funnels through the
// transition helpers here so legality is checked in exactly one place.
type Service interface {
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetForUser(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error)
	List(ctx context.Context, limit, offset int) ([]models.Order, error)

	Cancel(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error)

	MarkPaid(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, gatewayPaymentID string) error
	MarkPaymentFailed(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	MarkShipped(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	MarkDelivered(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	MarkRefunded(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, refundID string) error
}

type service struct {
	repo         Repository
	client       *db.Client
	inventorySvc inventory.Service
	events       *outbox.Service
	meters       *metrics.OrderMetrics
	logg         *logger.Logger
	cancelWindow time.Duration
	now          func() time.Time
}

// NewService wires the order service with its collaborators.
func NewService(
	repo Repository,
	client *db.Client,
	inventorySvc inventory.Service,
	events *outbox.Service,
	meters *metrics.OrderMetrics,
	logg *logger.Logger,
	cancelWindow time.Duration,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if inventorySvc == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	return &service{
		repo:         repo,
		client:       client,
		inventorySvc: inventorySvc,
		events:       events,
		meters:       meters,
		logg:         logg,
		cancelWindow: cancelWindow,
		now:          time.Now,
	}, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

// GetForUser hides other users' orders behind a not-found rather than leaking
// their existence.
func (s *service) GetForUser(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if userID == uuid.Nil || order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error) {
	if gatewayOrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway order id required")
	}
	order, err := s.repo.FindByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) List(ctx context.Context, limit, offset int) ([]models.Order, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return rows, nil
}

// Cancel moves the order to CANCELLED on behalf of its owner. Holds are
// returned only while the order is still PENDING; once payment committed the
// stock, putting it back is a deliberate warehouse action, not a side effect.
func (s *service) Cancel(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	order, err := s.GetForUser(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}

	if !CanTransition(order.Status, enums.OrderStatusCancelled) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order is %s, cannot cancel", order.Status)).
			WithDetails(map[string]any{"current_status": order.Status})
	}
	now := s.now()
	if !WithinCancelWindow(order.CreatedAt, now, s.cancelWindow) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cancellation window elapsed").
			WithDetails(map[string]any{"window": s.cancelWindow.String()})
	}

	wasPending := order.Status == enums.OrderStatusPending
	err = s.client.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		flipped, err := repo.UpdateStatusCAS(ctx, orderID, order.Status, enums.OrderStatusCancelled,
			map[string]any{"cancelled_at": now})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if !flipped {
			current, err := repo.FindByID(ctx, orderID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
			}
			if current.Status == enums.OrderStatusCancelled {
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("order is %s, cannot cancel", current.Status)).
				WithDetails(map[string]any{"current_status": current.Status})
		}

		if wasPending {
			if err := s.inventorySvc.ReleaseForOrder(ctx, tx, orderID); err != nil {
				return err
			}
		}

		if s.events != nil {
			return s.events.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderCancelled,
				AggregateType: enums.AggregateOrder,
				AggregateID:   orderID,
				Actor:         &outbox.ActorRef{UserID: userID, Role: "customer"},
				Data: map[string]any{
					"order_id":     orderID,
					"cancelled_at": now,
					"was_pending":  wasPending,
				},
				Version: 1,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.meters.IncCancellation()
	if s.logg != nil {
		s.logg.Info(s.logg.WithOrderID(ctx, orderID.String()), "order cancelled")
	}
	return s.Get(ctx, orderID)
}

// MarkPaid flips both status axes for a confirmed payment. Callers run it
// inside the same transaction that commits the reservations.
func (s *service) MarkPaid(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, gatewayPaymentID string) error {
	now := s.now()
	if err := s.transitionPayment(ctx, tx, orderID, enums.PaymentStatusPaid, map[string]any{
		"gateway_payment_id": gatewayPaymentID,
		"paid_at":            now,
	}); err != nil {
		return err
	}
	return s.transition(ctx, tx, orderID, enums.OrderStatusPaid, nil)
}

// MarkPaymentFailed records a terminal gateway failure; the order itself is
// closed out as cancelled so its holds can be returned.
func (s *service) MarkPaymentFailed(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	if err := s.transitionPayment(ctx, tx, orderID, enums.PaymentStatusFailed, nil); err != nil {
		return err
	}
	return s.transition(ctx, tx, orderID, enums.OrderStatusCancelled, map[string]any{
		"cancelled_at": s.now(),
	})
}

func (s *service) MarkShipped(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	return s.transition(ctx, tx, orderID, enums.OrderStatusShipped, nil)
}

func (s *service) MarkDelivered(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	return s.transition(ctx, tx, orderID, enums.OrderStatusDelivered, nil)
}

// MarkRefunded settles the payment axis only; a delivered order stays
// delivered after its money is returned.
func (s *service) MarkRefunded(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, refundID string) error {
	return s.transitionPayment(ctx, tx, orderID, enums.PaymentStatusRefunded, map[string]any{
		"refund_id":   refundID,
		"refunded_at": s.now(),
	})
}

// transition applies one fulfillment move. Repeating a move that already
// happened is a no-op so retried callbacks stay harmless.
func (s *service) transition(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, to enums.OrderStatus, updates map[string]any) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	repo := s.repo.WithTx(tx)
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Status == to {
		return nil
	}
	if !CanTransition(order.Status, to) {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order is %s, cannot move to %s", order.Status, to)).
			WithDetails(map[string]any{"current_status": order.Status, "requested_status": to})
	}
	flipped, err := repo.UpdateStatusCAS(ctx, orderID, order.Status, to, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if !flipped {
		current, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		if current.Status == to {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order is %s, cannot move to %s", current.Status, to)).
			WithDetails(map[string]any{"current_status": current.Status, "requested_status": to})
	}
	return nil
}

func (s *service) transitionPayment(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, to enums.PaymentStatus, updates map[string]any) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	repo := s.repo.WithTx(tx)
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.PaymentStatus == to {
		return nil
	}
	if !CanTransitionPayment(order.PaymentStatus, to) {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("payment is %s, cannot move to %s", order.PaymentStatus, to)).
			WithDetails(map[string]any{"current_payment_status": order.PaymentStatus, "requested_payment_status": to})
	}
	flipped, err := repo.UpdatePaymentStatusCAS(ctx, orderID, order.PaymentStatus, to, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
	}
	if !flipped {
		current, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		if current.PaymentStatus == to {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("payment is %s, cannot move to %s", current.PaymentStatus, to)).
			WithDetails(map[string]any{"current_payment_status": current.PaymentStatus, "requested_payment_status": to})
	}
	return nil
}
