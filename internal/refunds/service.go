package refunds

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/acavero/shopline-backend/internal/orders"
	"github.com/acavero/shopline-backend/internal/payments"
	"github.com/acavero/shopline-backend/pkg/db"
	"github.com/acavero/shopline-backend/pkg/db/models"
	"github.com/acavero/shopline-backend/pkg/enums"
	pkgerrors "github.com/acavero/shopline-backend/pkg/errors"
	"github.com/acavero/shopline-backend/pkg/logger"
	"github.com/acavero/shopline-backend/pkg/metrics"
	"github.com/acavero/shopline-backend/pkg/outbox"
)

// Input identifies the order to refund. AmountCents zero means the full
// order total.
type Input struct {
	OrderID     uuid.UUID
	AmountCents int
}

// Service issues gateway refunds against paid orders. Stock committed by the
// payment is never restocked here; returning goods to the shelf is a separate
// warehouse decision.
type Service interface {
	IssueRefund(ctx context.Context, input Input) (*models.Refund, error)
}

type service struct {
	client         *db.Client
	repo           Repository
	ordersSvc      orders.Service
	gateway        payments.Gateway
	events         *outbox.Service
	meters         *metrics.OrderMetrics
	logg           *logger.Logger
	gatewayTimeout time.Duration
}

// NewService wires the refund orchestrator.
func NewService(
	client *db.Client,
	repo Repository,
	ordersSvc orders.Service,
	gateway payments.Gateway,
	events *outbox.Service,
	meters *metrics.OrderMetrics,
	logg *logger.Logger,
	gatewayTimeout time.Duration,
) (Service, error) {
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if repo == nil {
		return nil, fmt.Errorf("refunds repository required")
	}
	if ordersSvc == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if gatewayTimeout <= 0 {
		gatewayTimeout = 10 * time.Second
	}
	return &service{
		client:         client,
		repo:           repo,
		ordersSvc:      ordersSvc,
		gateway:        gateway,
		events:         events,
		meters:         meters,
		logg:           logg,
		gatewayTimeout: gatewayTimeout,
	}, nil
}

func (s *service) IssueRefund(ctx context.Context, input Input) (*models.Refund, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.AmountCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must not be negative")
	}

	order, err := s.ordersSvc.Get(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}

	// A repeated request for an already-refunded order returns the existing
	// record instead of hitting the gateway again.
	if order.PaymentStatus == enums.PaymentStatusRefunded {
		existing, err := s.repo.FindByOrderID(ctx, order.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load refund record")
		}
		return existing, nil
	}
	if order.PaymentStatus != enums.PaymentStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("payment is %s, only paid orders can be refunded", order.PaymentStatus)).
			WithDetails(map[string]any{"current_payment_status": order.PaymentStatus})
	}
	if order.GatewayPaymentID == nil || *order.GatewayPaymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order has no gateway payment to refund")
	}

	amount := input.AmountCents
	if amount == 0 {
		amount = order.TotalCents
	}
	if amount > order.TotalCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund exceeds order total").
			WithDetails(map[string]any{"amount_cents": amount, "total_cents": order.TotalCents})
	}

	callCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()
	result, err := s.gateway.Refund(callCtx, payments.RefundRequest{
		GatewayPaymentID: *order.GatewayPaymentID,
		AmountCents:      amount,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "issue gateway refund")
	}

	refund := &models.Refund{
		ID:              uuid.New(),
		OrderID:         order.ID,
		GatewayRefundID: result.GatewayRefundID,
		AmountCents:     amount,
	}
	err = s.client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, refund); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund")
		}
		if err := s.ordersSvc.MarkRefunded(ctx, tx, order.ID, result.GatewayRefundID); err != nil {
			return err
		}
		if s.events != nil {
			return s.events.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderRefunded,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Data: map[string]any{
					"order_id":          order.ID,
					"gateway_refund_id": result.GatewayRefundID,
					"amount_cents":      amount,
				},
				Version: 1,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.meters.IncRefund()
	if s.logg != nil {
		s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "refund issued")
	}
	return refund, nil
}
