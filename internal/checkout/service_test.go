package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/acavero/shopline-backend/internal/inventory"
	"github.com/acavero/shopline-backend/internal/orders"
	"github.com/acavero/shopline-backend/internal/payments"
	"github.com/acavero/shopline-backend/pkg/db"
	"github.com/acavero/shopline-backend/pkg/db/models"
	"github.com/acavero/shopline-backend/pkg/enums"
	pkgerrors "github.com/acavero/shopline-backend/pkg/errors"
	"github.com/acavero/shopline-backend/pkg/outbox"
	"github.com/acavero/shopline-backend/pkg/types"
)

type fakeGateway struct {
	intentErr error
	calls     int
}

func (g *fakeGateway) CreateIntent(ctx context.Context, req payments.IntentRequest) (*payments.Intent, error) {
	g.calls++
	if g.intentErr != nil {
		return nil, g.intentErr
	}
	return &payments.Intent{GatewayOrderID: "gw_" + req.OrderID.String()[:8]}, nil
}

func (g *fakeGateway) Refund(ctx context.Context, req payments.RefundRequest) (*payments.RefundResult, error) {
	return &payments.RefundResult{GatewayRefundID: "rfnd_test"}, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:checkout_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := conn.AutoMigrate(
		&models.Product{},
		&models.Order{},
		&models.OrderLineItem{},
		&models.InventoryItem{},
		&models.Reservation{},
		&models.OutboxEvent{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func newTestService(t *testing.T, conn *gorm.DB, gateway payments.Gateway, taxBPS int) Service {
	t.Helper()
	client := db.NewFromGorm(conn)
	invSvc, err := inventory.NewService(inventory.NewRepository(conn))
	if err != nil {
		t.Fatalf("inventory service: %v", err)
	}
	events := outbox.NewService(outbox.NewRepository(conn), nil)
	ordersRepo := orders.NewRepository(conn)
	ordersSvc, err := orders.NewService(ordersRepo, client, invSvc, events, nil, nil, 24*time.Hour)
	if err != nil {
		t.Fatalf("orders service: %v", err)
	}
	svc, err := NewService(client, NewProductRepository(conn), ordersRepo, ordersSvc, invSvc, gateway, events, nil, nil, Config{
		TaxRateBasisPoints: taxBPS,
		Currency:           enums.CurrencyINR,
		GatewayTimeout:     time.Second,
	})
	if err != nil {
		t.Fatalf("checkout service: %v", err)
	}
	return svc
}

func seedProduct(t *testing.T, conn *gorm.DB, kind enums.LineItemKind, priceCents, stock int) models.Product {
	t.Helper()
	product := models.Product{
		ID:             uuid.New(),
		SKU:            "sku-" + uuid.NewString()[:8],
		Title:          "Test Product",
		Kind:           kind,
		UnitPriceCents: priceCents,
		Active:         true,
	}
	if kind == enums.LineItemKindPhysical {
		product.Dimensions = &types.Dimensions{WeightGrams: 500, LengthCM: 20, WidthCM: 15, HeightCM: 5}
	}
	if err := conn.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if kind == enums.LineItemKindPhysical {
		if err := conn.Create(&models.InventoryItem{ProductID: product.ID, StockOnHand: stock}).Error; err != nil {
			t.Fatalf("seed inventory: %v", err)
		}
	}
	return product
}

func validAddress() types.Address {
	return types.Address{
		Name:       "Asha Rao",
		Phone:      "+91-9000000000",
		Line1:      "12 MG Road",
		City:       "Bengaluru",
		State:      "KA",
		PostalCode: "560001",
	}
}

func TestCheckoutCreatesOrderAndHolds(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	ctx := context.Background()
	gateway := &fakeGateway{}
	svc := newTestService(t, conn, gateway, 1800)

	productA := seedProduct(t, conn, enums.LineItemKindPhysical, 2500, 10)
	productB := seedProduct(t, conn, enums.LineItemKindPhysical, 1000, 5)
	userID := uuid.New()

	result, err := svc.Checkout(ctx, Input{
		UserID: userID,
		Lines: []Line{
			{ProductID: productA.ID, Qty: 2},
			{ProductID: productB.ID, Qty: 1},
		},
		Address: validAddress(),
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if result.GatewayOrderID == "" {
		t.Fatal("missing gateway order id")
	}
	// 6000 subtotal + 18% tax.
	if result.AmountCents != 7080 {
		t.Fatalf("amount = %d, want 7080", result.AmountCents)
	}

	var order models.Order
	if err := conn.Preload("Items").First(&order, "id = ?", result.OrderID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if order.Status != enums.OrderStatusPending || order.PaymentStatus != enums.PaymentStatusPending {
		t.Fatalf("unexpected state %s/%s", order.Status, order.PaymentStatus)
	}
	if order.GatewayOrderID == nil || *order.GatewayOrderID != result.GatewayOrderID {
		t.Fatalf("gateway order id not recorded: %+v", order.GatewayOrderID)
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected 2 line items, got %d", len(order.Items))
	}
	for _, item := range order.Items {
		if item.Name == "" || item.SKU == "" || item.UnitPriceCents == 0 {
			t.Fatalf("line item not snapshotted: %+v", item)
		}
	}

	var item models.InventoryItem
	if err := conn.First(&item, "product_id = ?", productA.ID).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	if item.ReservedQty != 2 || item.StockOnHand != 10 {
		t.Fatalf("unexpected hold: %+v", item)
	}

	var events int64
	if err := conn.Model(&models.OutboxEvent{}).
		Where("aggregate_id = ? AND event_type = ?", order.ID, enums.EventOrderCreated).
		Count(&events).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if events != 1 {
		t.Fatalf("expected one created event, got %d", events)
	}
}

func TestCheckoutInsufficientStockLeavesNothingBehind(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	gateway := &fakeGateway{}
	svc := newTestService(t, conn, gateway, 0)

	product := seedProduct(t, conn, enums.LineItemKindPhysical, 2500, 1)

	_, err := svc.Checkout(context.Background(), Input{
		UserID:  uuid.New(),
		Lines:   []Line{{ProductID: product.ID, Qty: 3}},
		Address: validAddress(),
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("unexpected error: %v", err)
	}

	var orderCount int64
	if err := conn.Model(&models.Order{}).Count(&orderCount).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if orderCount != 0 {
		t.Fatalf("rolled-back checkout left %d orders", orderCount)
	}
	var item models.InventoryItem
	if err := conn.First(&item, "product_id = ?", product.ID).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	if item.ReservedQty != 0 {
		t.Fatalf("rolled-back checkout left holds: %+v", item)
	}
	if gateway.calls != 0 {
		t.Fatalf("gateway called %d times for failed checkout", gateway.calls)
	}
}

func TestCheckoutGatewayFailureCompensates(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	gateway := &fakeGateway{intentErr: errors.New("gateway down")}
	svc := newTestService(t, conn, gateway, 0)

	product := seedProduct(t, conn, enums.LineItemKindPhysical, 2500, 10)

	_, err := svc.Checkout(context.Background(), Input{
		UserID:  uuid.New(),
		Lines:   []Line{{ProductID: product.ID, Qty: 2}},
		Address: validAddress(),
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("unexpected error: %v", err)
	}

	var order models.Order
	if err := conn.First(&order).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if order.Status != enums.OrderStatusCancelled {
		t.Fatalf("compensated order status = %s", order.Status)
	}
	if order.PaymentStatus != enums.PaymentStatusFailed {
		t.Fatalf("compensated payment status = %s", order.PaymentStatus)
	}

	var item models.InventoryItem
	if err := conn.First(&item, "product_id = ?", product.ID).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	if item.ReservedQty != 0 || item.StockOnHand != 10 {
		t.Fatalf("holds not released after compensation: %+v", item)
	}

	var events int64
	if err := conn.Model(&models.OutboxEvent{}).
		Where("aggregate_id = ? AND event_type = ?", order.ID, enums.EventOrderPaymentFailed).
		Count(&events).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if events != 1 {
		t.Fatalf("expected one payment-failed event, got %d", events)
	}
}

func TestCheckoutServiceLineSkipsInventory(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	gateway := &fakeGateway{}
	svc := newTestService(t, conn, gateway, 0)

	product := seedProduct(t, conn, enums.LineItemKindService, 5000, 0)

	result, err := svc.Checkout(context.Background(), Input{
		UserID:  uuid.New(),
		Lines:   []Line{{ProductID: product.ID, Qty: 1}},
		Address: validAddress(),
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if result.AmountCents != 5000 {
		t.Fatalf("amount = %d, want 5000", result.AmountCents)
	}

	var reservations int64
	if err := conn.Model(&models.Reservation{}).Count(&reservations).Error; err != nil {
		t.Fatalf("count reservations: %v", err)
	}
	if reservations != 0 {
		t.Fatalf("service line placed %d holds", reservations)
	}
}

func TestCheckoutRejectsUnpricedProduct(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	gateway := &fakeGateway{}
	svc := newTestService(t, conn, gateway, 0)

	product := seedProduct(t, conn, enums.LineItemKindPhysical, 0, 10)

	_, err := svc.Checkout(context.Background(), Input{
		UserID:  uuid.New(),
		Lines:   []Line{{ProductID: product.ID, Qty: 1}},
		Address: validAddress(),
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}

	var orderCount int64
	if err := conn.Model(&models.Order{}).Count(&orderCount).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if orderCount != 0 {
		t.Fatalf("unpriced checkout left %d orders", orderCount)
	}
	if gateway.calls != 0 {
		t.Fatalf("gateway called %d times for unpriced checkout", gateway.calls)
	}
}

func TestCheckoutValidation(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc := newTestService(t, conn, &fakeGateway{}, 0)
	product := seedProduct(t, conn, enums.LineItemKindPhysical, 1000, 10)

	cases := []struct {
		name  string
		input Input
	}{
		{"missing user", Input{Lines: []Line{{ProductID: product.ID, Qty: 1}}, Address: validAddress()}},
		{"empty cart", Input{UserID: uuid.New(), Address: validAddress()}},
		{"zero qty", Input{UserID: uuid.New(), Lines: []Line{{ProductID: product.ID, Qty: 0}}, Address: validAddress()}},
		{"duplicate line", Input{UserID: uuid.New(), Lines: []Line{{ProductID: product.ID, Qty: 1}, {ProductID: product.ID, Qty: 2}}, Address: validAddress()}},
		{"unknown product", Input{UserID: uuid.New(), Lines: []Line{{ProductID: uuid.New(), Qty: 1}}, Address: validAddress()}},
		{"bad address", Input{UserID: uuid.New(), Lines: []Line{{ProductID: product.ID, Qty: 1}}}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Checkout(context.Background(), tc.input)
			if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
