package shipping

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/acavero/shopline-backend/internal/orders"
	"github.com/acavero/shopline-backend/pkg/db"
	"github.com/acavero/shopline-backend/pkg/db/models"
	"github.com/acavero/shopline-backend/pkg/enums"
	pkgerrors "github.com/acavero/shopline-backend/pkg/errors"
	"github.com/acavero/shopline-backend/pkg/logger"
	"github.com/acavero/shopline-backend/pkg/metrics"
	"github.com/acavero/shopline-backend/pkg/outbox"
	"github.com/acavero/shopline-backend/pkg/types"
)

// Config carries the carrier call knobs.
type Config struct {
	CallTimeout time.Duration
	PickupSite  string
}

// Service drives carrier operations for paid orders.
type Service interface {
	CreateShipment(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	Track(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	RequestPickup(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FetchLabel(ctx context.Context, orderID uuid.UUID) ([]byte, error)
}

type service struct {
	client    *db.Client
	ordersSvc orders.Service
	repo      orders.Repository
	carrier   Carrier
	events    *outbox.Service
	meters    *metrics.OrderMetrics
	logg      *logger.Logger
	cfg       Config
}

// NewService wires the shipping orchestrator.
func NewService(
	client *db.Client,
	ordersSvc orders.Service,
	repo orders.Repository,
	carrier Carrier,
	events *outbox.Service,
	meters *metrics.OrderMetrics,
	logg *logger.Logger,
	cfg Config,
) (Service, error) {
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if ordersSvc == nil || repo == nil {
		return nil, fmt.Errorf("orders collaborators required")
	}
	if carrier == nil {
		return nil, fmt.Errorf("carrier required")
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	return &service{
		client:    client,
		ordersSvc: ordersSvc,
		repo:      repo,
		carrier:   carrier,
		events:    events,
		meters:    meters,
		logg:      logg,
		cfg:       cfg,
	}, nil
}

// CreateShipment books the parcel for a paid order and moves it to SHIPPED.
// An order that already carries a tracking id is returned as-is so retried
// admin calls never double-book.
func (s *service) CreateShipment(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.ordersSvc.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.TrackingID != nil && *order.TrackingID != "" {
		s.meters.ObserveShipment("create", "duplicate")
		return order, nil
	}
	if order.Status != enums.OrderStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order is %s, only paid orders ship", order.Status)).
			WithDetails(map[string]any{"current_status": order.Status})
	}
	// The payment axis can move off PAID (refund) while status stays PAID.
	if order.PaymentStatus != enums.PaymentStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order payment is %s, only settled orders ship", order.PaymentStatus)).
			WithDetails(map[string]any{"current_payment_status": order.PaymentStatus})
	}

	parcel := buildParcel(order.Items)
	if parcel.Empty() {
		s.meters.ObserveShipment("create", "rejected")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order has no physical items to ship")
	}
	if err := order.Address.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "order address not shippable")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	shipment, err := s.carrier.CreateShipment(callCtx, ShipmentRequest{
		OrderID:            order.ID,
		Address:            order.Address,
		Parcel:             parcel,
		DeclaredValueCents: order.TotalCents,
	})
	if err != nil {
		s.meters.ObserveShipment("create", "error")
		s.recordCarrierError(ctx, orderID, err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create shipment")
	}

	err = s.client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).UpdateShippingFields(ctx, orderID, map[string]any{
			"shipping_provider": shipment.Provider,
			"tracking_id":       shipment.TrackingID,
			"tracking_url":      shipment.TrackingURL,
			"label_url":         shipment.LabelURL,
			"shipping_status":   enums.ShippingStatusCreated,
			"shipping_error":    nil,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record shipment")
		}
		if err := s.ordersSvc.MarkShipped(ctx, tx, orderID); err != nil {
			return err
		}
		if s.events != nil {
			return s.events.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderShipped,
				AggregateType: enums.AggregateOrder,
				AggregateID:   orderID,
				Data: map[string]any{
					"order_id":    orderID,
					"provider":    shipment.Provider,
					"tracking_id": shipment.TrackingID,
				},
				Version: 1,
			})
		}
		return nil
	})
	if err != nil {
		s.meters.ObserveShipment("create", "error")
		return nil, err
	}

	s.meters.ObserveShipment("create", "success")
	if s.logg != nil {
		s.logg.Info(s.logg.WithOrderID(ctx, orderID.String()), "shipment created")
	}
	return s.ordersSvc.Get(ctx, orderID)
}

// Track refreshes the carrier status; a terminal delivered update also closes
// the fulfillment axis.
func (s *service) Track(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.shippedOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	update, err := s.carrier.Track(callCtx, *order.TrackingID)
	if err != nil {
		s.meters.ObserveShipment("track", "error")
		s.recordCarrierError(ctx, orderID, err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "track shipment")
	}

	err = s.client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).UpdateShippingFields(ctx, orderID, map[string]any{
			"shipping_status": update.Status,
			"shipping_error":  nil,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record tracking status")
		}
		if update.Status != enums.ShippingStatusDelivered {
			return nil
		}
		if err := s.ordersSvc.MarkDelivered(ctx, tx, orderID); err != nil {
			return err
		}
		if s.events != nil {
			return s.events.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderDelivered,
				AggregateType: enums.AggregateOrder,
				AggregateID:   orderID,
				Data:          map[string]any{"order_id": orderID, "tracking_id": *order.TrackingID},
				Version:       1,
			})
		}
		return nil
	})
	if err != nil {
		s.meters.ObserveShipment("track", "error")
		return nil, err
	}

	s.meters.ObserveShipment("track", "success")
	return s.ordersSvc.Get(ctx, orderID)
}

// RequestPickup schedules the warehouse pickup for a booked shipment.
func (s *service) RequestPickup(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.shippedOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PickupRequestID != nil && *order.PickupRequestID != "" {
		s.meters.ObserveShipment("pickup", "duplicate")
		return order, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	pickup, err := s.carrier.RequestPickup(callCtx, PickupRequest{
		TrackingID: *order.TrackingID,
		Site:       s.cfg.PickupSite,
	})
	if err != nil {
		s.meters.ObserveShipment("pickup", "error")
		s.recordCarrierError(ctx, orderID, err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "request pickup")
	}

	if err := s.repo.UpdateShippingFields(ctx, orderID, map[string]any{
		"pickup_request_id": pickup.PickupRequestID,
		"shipping_error":    nil,
	}); err != nil {
		s.meters.ObserveShipment("pickup", "error")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record pickup")
	}

	s.meters.ObserveShipment("pickup", "success")
	return s.ordersSvc.Get(ctx, orderID)
}

// FetchLabel returns the carrier's label document for a booked shipment.
func (s *service) FetchLabel(ctx context.Context, orderID uuid.UUID) ([]byte, error) {
	order, err := s.shippedOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	label, err := s.carrier.FetchLabel(callCtx, *order.TrackingID)
	if err != nil {
		s.meters.ObserveShipment("label", "error")
		s.recordCarrierError(ctx, orderID, err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch label")
	}
	s.meters.ObserveShipment("label", "success")
	return label, nil
}

func (s *service) shippedOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.ordersSvc.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.TrackingID == nil || *order.TrackingID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no shipment").
			WithDetails(map[string]any{"order_id": orderID})
	}
	return order, nil
}

// recordCarrierError keeps the last carrier failure on the order for admins;
// the write is best-effort and never masks the original error.
func (s *service) recordCarrierError(ctx context.Context, orderID uuid.UUID, carrierErr error) {
	updates := map[string]any{"shipping_error": carrierErr.Error()}
	if err := s.repo.UpdateShippingFields(ctx, orderID, updates); err != nil && s.logg != nil {
		s.logg.Error(s.logg.WithOrderID(ctx, orderID.String()), "recording carrier error failed", err)
	}
}

func buildParcel(items []models.OrderLineItem) types.Parcel {
	var parcel types.Parcel
	for _, item := range items {
		if item.Kind != enums.LineItemKindPhysical || item.Dimensions == nil {
			continue
		}
		parcel.Add(*item.Dimensions, item.Qty)
	}
	return parcel
}
