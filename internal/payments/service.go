package payments

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/acavero/shopline-backend/internal/inventory"
	"github.com/acavero/shopline-backend/internal/orders"
	"github.com/acavero/shopline-backend/pkg/db"
	"github.com/acavero/shopline-backend/pkg/enums"
	pkgerrors "github.com/acavero/shopline-backend/pkg/errors"
	"github.com/acavero/shopline-backend/pkg/logger"
	"github.com/acavero/shopline-backend/pkg/metrics"
	"github.com/acavero/shopline-backend/pkg/outbox"
)

// Callback event names as delivered by the gateway webhook.
const (
	EventCaptured = "payment.captured"
	EventFailed   = "payment.failed"
)

// CallbackInput is a gateway webhook delivery. Payload is the raw request
// body the signature was computed over. OrderID is the gateway's echo of our
// order id, present on most deliveries; when set it must match the order
// resolved by GatewayOrderID.
type CallbackInput struct {
	Event            string
	OrderID          string
	GatewayOrderID   string
	GatewayPaymentID string
	Payload          []byte
	Signature        string
}

// Service settles gateway callbacks against the order and the stock ledger.
type Service interface {
	VerifyCallback(ctx context.Context, input CallbackInput) error
}

type service struct {
	client        *db.Client
	ordersSvc     orders.Service
	inventorySvc  inventory.Service
	events        *outbox.Service
	meters        *metrics.OrderMetrics
	logg          *logger.Logger
	signingSecret string
}

// NewService wires the payment orchestrator.
func NewService(
	client *db.Client,
	ordersSvc orders.Service,
	inventorySvc inventory.Service,
	events *outbox.Service,
	meters *metrics.OrderMetrics,
	logg *logger.Logger,
	signingSecret string,
) (Service, error) {
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if ordersSvc == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if inventorySvc == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if signingSecret == "" {
		return nil, fmt.Errorf("signing secret required")
	}
	return &service{
		client:        client,
		ordersSvc:     ordersSvc,
		inventorySvc:  inventorySvc,
		events:        events,
		meters:        meters,
		logg:          logg,
		signingSecret: signingSecret,
	}, nil
}

// VerifyCallback authenticates the webhook and settles the order. Redelivered
// callbacks are no-ops: the commit and the status flip are both idempotent.
func (s *service) VerifyCallback(ctx context.Context, input CallbackInput) error {
	if !VerifySignature(s.signingSecret, input.Payload, input.Signature) {
		s.meters.ObservePayment("signature_invalid")
		return pkgerrors.New(pkgerrors.CodeSignature, "callback signature mismatch")
	}

	order, err := s.ordersSvc.FindByGatewayOrderID(ctx, input.GatewayOrderID)
	if err != nil {
		s.meters.ObservePayment("unknown_order")
		return err
	}
	if input.OrderID != "" && input.OrderID != order.ID.String() {
		s.meters.ObservePayment("order_mismatch")
		return pkgerrors.New(pkgerrors.CodeConflict, "callback order mismatch").
			WithDetails(map[string]any{
				"callback_order_id": input.OrderID,
				"resolved_order_id": order.ID,
			})
	}
	logCtx := ctx
	if s.logg != nil {
		logCtx = s.logg.WithOrderID(ctx, order.ID.String())
	}

	switch input.Event {
	case EventCaptured:
		if order.PaymentStatus == enums.PaymentStatusPaid {
			s.meters.ObservePayment("duplicate")
			return nil
		}
		err = s.client.WithTx(ctx, func(tx *gorm.DB) error {
			if err := s.inventorySvc.CommitForOrder(ctx, tx, order.ID); err != nil {
				return err
			}
			if err := s.ordersSvc.MarkPaid(ctx, tx, order.ID, input.GatewayPaymentID); err != nil {
				return err
			}
			if s.events != nil {
				return s.events.Emit(ctx, tx, outbox.DomainEvent{
					EventType:     enums.EventOrderPaid,
					AggregateType: enums.AggregateOrder,
					AggregateID:   order.ID,
					Data: map[string]any{
						"order_id":           order.ID,
						"gateway_payment_id": input.GatewayPaymentID,
						"amount_cents":       order.TotalCents,
					},
					Version: 1,
				})
			}
			return nil
		})
		if err != nil {
			s.meters.ObservePayment("error")
			return err
		}
		s.meters.ObservePayment("captured")
		if s.logg != nil {
			s.logg.Info(logCtx, "payment captured")
		}
		return nil

	case EventFailed:
		if order.PaymentStatus == enums.PaymentStatusFailed {
			s.meters.ObservePayment("duplicate")
			return nil
		}
		err = s.client.WithTx(ctx, func(tx *gorm.DB) error {
			if err := s.ordersSvc.MarkPaymentFailed(ctx, tx, order.ID); err != nil {
				return err
			}
			if err := s.inventorySvc.ReleaseForOrder(ctx, tx, order.ID); err != nil {
				return err
			}
			if s.events != nil {
				return s.events.Emit(ctx, tx, outbox.DomainEvent{
					EventType:     enums.EventOrderPaymentFailed,
					AggregateType: enums.AggregateOrder,
					AggregateID:   order.ID,
					Data:          map[string]any{"order_id": order.ID, "reason": "gateway_reported_failure"},
					Version:       1,
				})
			}
			return nil
		})
		if err != nil {
			s.meters.ObservePayment("error")
			return err
		}
		s.meters.ObservePayment("failed")
		if s.logg != nil {
			s.logg.Warn(logCtx, "payment failed, holds released")
		}
		return nil

	default:
		s.meters.ObservePayment("ignored")
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported callback event %q", input.Event))
	}
}
