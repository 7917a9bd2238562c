package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/acavero/shopline-backend/internal/inventory"
	"github.com/acavero/shopline-backend/internal/orders"
	"github.com/acavero/shopline-backend/internal/payments"
	"github.com/acavero/shopline-backend/pkg/db"
	"github.com/acavero/shopline-backend/pkg/db/models"
	"github.com/acavero/shopline-backend/pkg/enums"
	pkgerrors "github.com/acavero/shopline-backend/pkg/errors"
	"github.com/acavero/shopline-backend/pkg/logger"
	"github.com/acavero/shopline-backend/pkg/metrics"
	"github.com/acavero/shopline-backend/pkg/outbox"
	"github.com/acavero/shopline-backend/pkg/types"
)

// Line is one cart entry. Pricing is resolved from the catalog at checkout
// time, never taken from the client.
type Line struct {
	ProductID uuid.UUID
	Qty       int
}

// Input is a checkout request for one user cart.
type Input struct {
	UserID  uuid.UUID
	Lines   []Line
	Address types.Address
}

// Result is returned to the client so it can drive the gateway's payment UI.
type Result struct {
	OrderID        uuid.UUID
	GatewayOrderID string
	AmountCents    int
	Currency       enums.Currency
}

// Config carries the pricing and gateway knobs checkout needs.
type Config struct {
	TaxRateBasisPoints int
	Currency           enums.Currency
	GatewayTimeout     time.Duration
}

// Service coordinates the reserve -> order -> gateway-intent sequence.
type Service interface {
	Checkout(ctx context.Context, input Input) (*Result, error)
}

type service struct {
	client       *db.Client
	products     ProductRepository
	ordersRepo   orders.Repository
	ordersSvc    orders.Service
	inventorySvc inventory.Service
	gateway      payments.Gateway
	events       *outbox.Service
	meters       *metrics.OrderMetrics
	logg         *logger.Logger
	cfg          Config
}

// NewService wires the checkout coordinator.
func NewService(
	client *db.Client,
	products ProductRepository,
	ordersRepo orders.Repository,
	ordersSvc orders.Service,
	inventorySvc inventory.Service,
	gateway payments.Gateway,
	events *outbox.Service,
	meters *metrics.OrderMetrics,
	logg *logger.Logger,
	cfg Config,
) (Service, error) {
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if ordersRepo == nil || ordersSvc == nil {
		return nil, fmt.Errorf("orders collaborators required")
	}
	if inventorySvc == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if cfg.Currency == "" {
		cfg.Currency = enums.CurrencyINR
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	return &service{
		client:       client,
		products:     products,
		ordersRepo:   ordersRepo,
		ordersSvc:    ordersSvc,
		inventorySvc: inventorySvc,
		gateway:      gateway,
		events:       events,
		meters:       meters,
		logg:         logg,
		cfg:          cfg,
	}, nil
}

// Checkout reserves stock and creates the PENDING order in one transaction,
// then opens the gateway intent. A gateway failure compensates by releasing
// every hold and closing the order, so no dangling PENDING order survives.
func (s *service) Checkout(ctx context.Context, input Input) (*Result, error) {
	if err := validateInput(input); err != nil {
		s.meters.ObserveCheckout("invalid")
		return nil, err
	}

	products, err := s.loadProducts(ctx, input.Lines)
	if err != nil {
		s.meters.ObserveCheckout("invalid")
		return nil, err
	}

	subtotal := 0
	for _, line := range input.Lines {
		subtotal += lineTotalCents(products[line.ProductID].UnitPriceCents, line.Qty)
	}
	totals := computeTotals(subtotal, s.cfg.TaxRateBasisPoints)

	order := &models.Order{
		ID:            uuid.New(),
		UserID:        input.UserID,
		Status:        enums.OrderStatusPending,
		PaymentStatus: enums.PaymentStatusPending,
		SubtotalCents: totals.SubtotalCents,
		TaxCents:      totals.TaxCents,
		TotalCents:    totals.TotalCents,
		Currency:      s.cfg.Currency,
		Address:       input.Address.Normalized(),
	}

	err = s.client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.ordersRepo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		items := make([]models.OrderLineItem, 0, len(input.Lines))
		for _, line := range input.Lines {
			product := products[line.ProductID]

			// Service items carry no stock; only physical lines hold inventory.
			if product.Kind == enums.LineItemKindPhysical {
				if _, err := s.inventorySvc.Reserve(ctx, tx, order.ID, product.ID, line.Qty); err != nil {
					return err
				}
			}

			items = append(items, models.OrderLineItem{
				ID:             uuid.New(),
				OrderID:        order.ID,
				ProductID:      product.ID,
				Name:           product.Title,
				SKU:            product.SKU,
				Kind:           product.Kind,
				Qty:            line.Qty,
				UnitPriceCents: product.UnitPriceCents,
				TotalCents:     lineTotalCents(product.UnitPriceCents, line.Qty),
				Dimensions:     product.Dimensions,
			})
		}
		if err := s.ordersRepo.WithTx(tx).CreateLineItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "snapshot line items")
		}

		if s.events != nil {
			return s.events.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderCreated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         &outbox.ActorRef{UserID: input.UserID, Role: "customer"},
				Data: map[string]any{
					"order_id":    order.ID,
					"total_cents": totals.TotalCents,
					"currency":    s.cfg.Currency,
					"line_count":  len(items),
				},
				Version: 1,
			})
		}
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeInsufficientStock {
			s.meters.ObserveCheckout("insufficient_stock")
		} else {
			s.meters.ObserveCheckout("error")
		}
		return nil, err
	}

	intent, err := s.createIntent(ctx, order)
	if err != nil {
		s.meters.ObserveCheckout("gateway_failed")
		return nil, s.compensate(ctx, order.ID, err)
	}

	if err := s.ordersRepo.UpdateGatewayOrderID(ctx, order.ID, intent.GatewayOrderID); err != nil {
		s.meters.ObserveCheckout("error")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record gateway order id")
	}

	s.meters.ObserveCheckout("success")
	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		s.logg.Info(logCtx, "checkout completed")
	}
	return &Result{
		OrderID:        order.ID,
		GatewayOrderID: intent.GatewayOrderID,
		AmountCents:    totals.TotalCents,
		Currency:       s.cfg.Currency,
	}, nil
}

func (s *service) createIntent(ctx context.Context, order *models.Order) (*payments.Intent, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	return s.gateway.CreateIntent(callCtx, payments.IntentRequest{
		OrderID:     order.ID,
		AmountCents: order.TotalCents,
		Currency:    order.Currency,
		Receipt:     order.ID.String(),
	})
}

// compensate unwinds a checkout whose gateway call failed: every hold is
// released and the order is closed out, in one transaction.
func (s *service) compensate(ctx context.Context, orderID uuid.UUID, gatewayErr error) error {
	err := pkgerrors.Wrap(pkgerrors.CodeDependency, gatewayErr, "create gateway intent")
	compErr := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.ordersSvc.MarkPaymentFailed(ctx, tx, orderID); err != nil {
			return err
		}
		if err := s.inventorySvc.ReleaseForOrder(ctx, tx, orderID); err != nil {
			return err
		}
		if s.events != nil {
			return s.events.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderPaymentFailed,
				AggregateType: enums.AggregateOrder,
				AggregateID:   orderID,
				Data:          map[string]any{"order_id": orderID, "reason": "gateway_intent_failed"},
				Version:       1,
			})
		}
		return nil
	})
	if compErr != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithOrderID(ctx, orderID.String()), "checkout compensation failed", compErr)
		}
		return multierr.Append(err, compErr)
	}
	if s.logg != nil {
		s.logg.Warn(s.logg.WithOrderID(ctx, orderID.String()), "checkout compensated after gateway failure")
	}
	return err
}

func (s *service) loadProducts(ctx context.Context, lines []Line) (map[uuid.UUID]models.Product, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	rows, err := s.products.FindActiveByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	byID := make(map[uuid.UUID]models.Product, len(rows))
	for _, product := range rows {
		byID[product.ID] = product
	}
	for _, line := range lines {
		product, ok := byID[line.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart references unknown or inactive product").
				WithDetails(map[string]any{"product_id": line.ProductID})
		}
		if product.UnitPriceCents <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product has no resolved unit price").
				WithDetails(map[string]any{"product_id": line.ProductID})
		}
	}
	return byID, nil
}

func validateInput(input Input) error {
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if len(input.Lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	seen := make(map[uuid.UUID]struct{}, len(input.Lines))
	for _, line := range input.Lines {
		if line.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "line product id required")
		}
		if line.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "line qty must be positive").
				WithDetails(map[string]any{"product_id": line.ProductID})
		}
		if _, dup := seen[line.ProductID]; dup {
			return pkgerrors.New(pkgerrors.CodeValidation, "duplicate cart line").
				WithDetails(map[string]any{"product_id": line.ProductID})
		}
		seen[line.ProductID] = struct{}{}
	}
	if err := input.Address.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping address")
	}
	return nil
}
