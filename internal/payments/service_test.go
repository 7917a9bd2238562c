package payments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/acavero/shopline-backend/internal/inventory"
	"github.com/acavero/shopline-backend/internal/orders"
	"github.com/acavero/shopline-backend/pkg/db"
	"github.com/acavero/shopline-backend/pkg/db/models"
	"github.com/acavero/shopline-backend/pkg/enums"
	pkgerrors "github.com/acavero/shopline-backend/pkg/errors"
	"github.com/acavero/shopline-backend/pkg/outbox"
)

const testSecret = "whsec_test"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:payments_" + uuid.NewString() + "?mode=memory&cache=shared"
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

func newTestService(t *testing.T, conn *gorm.DB) (Service, inventory.Service) {
	t.Helper()
	client := db.NewFromGorm(conn)
	invSvc, err := inventory.NewService(inventory.NewRepository(conn))
	if err != nil {
		t.Fatalf("inventory service: %v", err)
	}
	events := outbox.NewService(outbox.NewRepository(conn), nil)
	ordersSvc, err := orders.NewService(orders.NewRepository(conn), client, invSvc, events, nil, nil, 24*time.Hour)
	if err != nil {
		t.Fatalf("orders service: %v", err)
	}
	svc, err := NewService(client, ordersSvc, invSvc, events, nil, nil, testSecret)
	if err != nil {
		t.Fatalf("payments service: %v", err)
	}
	return svc, invSvc
}

// seedPendingOrder creates a pending order with one held reservation, the
// state checkout leaves behind before the gateway callback arrives.
func seedPendingOrder(t *testing.T, conn *gorm.DB, invSvc inventory.Service, stock, qty int) (*models.Order, uuid.UUID) {
	t.Helper()
	productID := uuid.New()
	if err := conn.Create(&models.InventoryItem{ProductID: productID, StockOnHand: stock}).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
	gatewayOrderID := "order_" + uuid.NewString()[:13]
	order := &models.Order{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		Status:         enums.OrderStatusPending,
		PaymentStatus:  enums.PaymentStatusPending,
		SubtotalCents:  qty * 1000,
		TotalCents:     qty * 1000,
		Currency:       enums.CurrencyINR,
		GatewayOrderID: &gatewayOrderID,
	}
	if err := conn.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	if _, err := invSvc.Reserve(context.Background(), nil, order.ID, productID, qty); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	return order, productID
}

func callback(order *models.Order, event, paymentID string) CallbackInput {
	payload := []byte(`{"event":"` + event + `","gateway_order_id":"` + *order.GatewayOrderID + `"}`)
	return CallbackInput{
		Event:            event,
		GatewayOrderID:   *order.GatewayOrderID,
		GatewayPaymentID: paymentID,
		Payload:          payload,
		Signature:        Sign(testSecret, payload),
	}
}

func TestVerifyCallbackRejectsBadSignature(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc, invSvc := newTestService(t, conn)
	order, productID := seedPendingOrder(t, conn, invSvc, 5, 2)

	input := callback(order, EventCaptured, "pay_1")
	input.Signature = "deadbeef"

	err := svc.VerifyCallback(context.Background(), input)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeSignature {
		t.Fatalf("unexpected error: %v", err)
	}

	// Nothing settled.
	var item models.InventoryItem
	if err := conn.First(&item, "product_id = ?", productID).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	if item.StockOnHand != 5 || item.ReservedQty != 2 {
		t.Fatalf("ledger touched on bad signature: %+v", item)
	}
}

func TestCapturedCallbackSettlesOrder(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	ctx := context.Background()
	svc, invSvc := newTestService(t, conn)
	order, productID := seedPendingOrder(t, conn, invSvc, 5, 2)

	if err := svc.VerifyCallback(ctx, callback(order, EventCaptured, "pay_1")); err != nil {
		t.Fatalf("verify: %v", err)
	}

	var got models.Order
	if err := conn.First(&got, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if got.Status != enums.OrderStatusPaid || got.PaymentStatus != enums.PaymentStatusPaid {
		t.Fatalf("unexpected state %s/%s", got.Status, got.PaymentStatus)
	}
	if got.GatewayPaymentID == nil || *got.GatewayPaymentID != "pay_1" {
		t.Fatalf("payment id not recorded: %+v", got.GatewayPaymentID)
	}

	var item models.InventoryItem
	if err := conn.First(&item, "product_id = ?", productID).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	if item.StockOnHand != 3 || item.ReservedQty != 0 {
		t.Fatalf("commit not applied: %+v", item)
	}

	// Gateway redelivery settles nothing twice.
	if err := svc.VerifyCallback(ctx, callback(order, EventCaptured, "pay_1")); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if err := conn.First(&item, "product_id = ?", productID).Error; err != nil {
		t.Fatalf("reload inventory: %v", err)
	}
	if item.StockOnHand != 3 || item.ReservedQty != 0 {
		t.Fatalf("redelivery changed the ledger: %+v", item)
	}

	var events int64
	if err := conn.Model(&models.OutboxEvent{}).
		Where("aggregate_id = ? AND event_type = ?", order.ID, enums.EventOrderPaid).
		Count(&events).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if events != 1 {
		t.Fatalf("expected one paid event, got %d", events)
	}
}

func TestFailedCallbackReleasesHolds(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc, invSvc := newTestService(t, conn)
	order, productID := seedPendingOrder(t, conn, invSvc, 5, 2)

	if err := svc.VerifyCallback(context.Background(), callback(order, EventFailed, "")); err != nil {
		t.Fatalf("verify: %v", err)
	}

	var got models.Order
	if err := conn.First(&got, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if got.PaymentStatus != enums.PaymentStatusFailed {
		t.Fatalf("unexpected payment status %s", got.PaymentStatus)
	}
	if got.Status != enums.OrderStatusCancelled {
		t.Fatalf("unexpected status %s", got.Status)
	}

	var item models.InventoryItem
	if err := conn.First(&item, "product_id = ?", productID).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	if item.StockOnHand != 5 || item.ReservedQty != 0 {
		t.Fatalf("holds not released: %+v", item)
	}
}

func TestCallbackUnknownOrder(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc, _ := newTestService(t, conn)

	payload := []byte(`{"event":"payment.captured","gateway_order_id":"order_missing"}`)
	err := svc.VerifyCallback(context.Background(), CallbackInput{
		Event:          EventCaptured,
		GatewayOrderID: "order_missing",
		Payload:        payload,
		Signature:      Sign(testSecret, payload),
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCallbackOrderMismatch(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc, invSvc := newTestService(t, conn)
	order, productID := seedPendingOrder(t, conn, invSvc, 5, 2)

	input := callback(order, EventCaptured, "pay_1")
	input.OrderID = uuid.NewString()

	err := svc.VerifyCallback(context.Background(), input)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("unexpected error: %v", err)
	}

	var got models.Order
	if err := conn.First(&got, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if got.PaymentStatus != enums.PaymentStatusPending {
		t.Fatalf("mismatched callback settled the order: %s", got.PaymentStatus)
	}
	var item models.InventoryItem
	if err := conn.First(&item, "product_id = ?", productID).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	if item.StockOnHand != 5 || item.ReservedQty != 2 {
		t.Fatalf("mismatched callback touched the ledger: %+v", item)
	}

	// A matching echo settles normally.
	input = callback(order, EventCaptured, "pay_1")
	input.OrderID = order.ID.String()
	if err := svc.VerifyCallback(context.Background(), input); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestCallbackUnsupportedEvent(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc, invSvc := newTestService(t, conn)
	order, _ := seedPendingOrder(t, conn, invSvc, 5, 1)

	err := svc.VerifyCallback(context.Background(), callback(order, "payment.pending", ""))
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}
}
