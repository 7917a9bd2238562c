package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/acavero/shopline-backend/internal/inventory"
	"github.com/acavero/shopline-backend/pkg/db"
	"github.com/acavero/shopline-backend/pkg/db/models"
	"github.com/acavero/shopline-backend/pkg/enums"
	pkgerrors "github.com/acavero/shopline-backend/pkg/errors"
	"github.com/acavero/shopline-backend/pkg/outbox"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
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

func newTestService(t *testing.T, conn *gorm.DB, window time.Duration) (Service, inventory.Service) {
	t.Helper()
	invSvc, err := inventory.NewService(inventory.NewRepository(conn))
	if err != nil {
		t.Fatalf("inventory service: %v", err)
	}
	events := outbox.NewService(outbox.NewRepository(conn), nil)
	svc, err := NewService(NewRepository(conn), db.NewFromGorm(conn), invSvc, events, nil, nil, window)
	if err != nil {
		t.Fatalf("orders service: %v", err)
	}
	return svc, invSvc
}

func seedOrder(t *testing.T, conn *gorm.DB, order *models.Order) *models.Order {
	t.Helper()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.UserID == uuid.Nil {
		order.UserID = uuid.New()
	}
	if order.Status == "" {
		order.Status = enums.OrderStatusPending
	}
	if order.PaymentStatus == "" {
		order.PaymentStatus = enums.PaymentStatusPending
	}
	if order.Currency == "" {
		order.Currency = enums.CurrencyINR
	}
	if err := conn.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

func loadOrder(t *testing.T, conn *gorm.DB, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	if err := conn.First(&order, "id = ?", id).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	return order
}

func TestCancelPendingReleasesHolds(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	ctx := context.Background()
	svc, invSvc := newTestService(t, conn, 24*time.Hour)

	productID := uuid.New()
	if err := conn.Create(&models.InventoryItem{ProductID: productID, StockOnHand: 10}).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
	order := seedOrder(t, conn, &models.Order{})
	if _, err := invSvc.Reserve(ctx, nil, order.ID, productID, 4); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	cancelled, err := svc.Cancel(ctx, order.ID, order.UserID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != enums.OrderStatusCancelled {
		t.Fatalf("unexpected status %s", cancelled.Status)
	}
	if cancelled.CancelledAt == nil {
		t.Fatal("cancelled_at not recorded")
	}

	var item models.InventoryItem
	if err := conn.First(&item, "product_id = ?", productID).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	if item.StockOnHand != 10 || item.ReservedQty != 0 {
		t.Fatalf("hold not returned: %+v", item)
	}

	var events int64
	if err := conn.Model(&models.OutboxEvent{}).
		Where("aggregate_id = ? AND event_type = ?", order.ID, enums.EventOrderCancelled).
		Count(&events).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if events != 1 {
		t.Fatalf("expected one cancellation event, got %d", events)
	}
}

func TestCancelPaidLeavesCommittedStock(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	ctx := context.Background()
	svc, _ := newTestService(t, conn, 24*time.Hour)

	// Stock already committed at payment time.
	productID := uuid.New()
	if err := conn.Create(&models.InventoryItem{ProductID: productID, StockOnHand: 6}).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
	order := seedOrder(t, conn, &models.Order{
		Status:        enums.OrderStatusPaid,
		PaymentStatus: enums.PaymentStatusPaid,
	})

	cancelled, err := svc.Cancel(ctx, order.ID, order.UserID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != enums.OrderStatusCancelled {
		t.Fatalf("unexpected status %s", cancelled.Status)
	}

	var item models.InventoryItem
	if err := conn.First(&item, "product_id = ?", productID).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	if item.StockOnHand != 6 || item.ReservedQty != 0 {
		t.Fatalf("cancel must not restock committed inventory: %+v", item)
	}
}

func TestCancelOutsideWindow(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc, _ := newTestService(t, conn, 24*time.Hour)

	order := seedOrder(t, conn, &models.Order{CreatedAt: time.Now().Add(-48 * time.Hour)})

	_, err := svc.Cancel(context.Background(), order.ID, order.UserID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := loadOrder(t, conn, order.ID); got.Status != enums.OrderStatusPending {
		t.Fatalf("order mutated: %s", got.Status)
	}
}

func TestCancelShippedOrderRejected(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc, _ := newTestService(t, conn, 24*time.Hour)

	order := seedOrder(t, conn, &models.Order{
		Status:        enums.OrderStatusShipped,
		PaymentStatus: enums.PaymentStatusPaid,
	})

	_, err := svc.Cancel(context.Background(), order.ID, order.UserID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCancelForeignOrderHidden(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc, _ := newTestService(t, conn, 24*time.Hour)

	order := seedOrder(t, conn, &models.Order{})

	_, err := svc.Cancel(context.Background(), order.ID, uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMarkPaidFlipsBothAxes(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	ctx := context.Background()
	svc, _ := newTestService(t, conn, 24*time.Hour)

	order := seedOrder(t, conn, &models.Order{})

	if err := svc.MarkPaid(ctx, nil, order.ID, "pay_123"); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	got := loadOrder(t, conn, order.ID)
	if got.Status != enums.OrderStatusPaid || got.PaymentStatus != enums.PaymentStatusPaid {
		t.Fatalf("unexpected state: %s/%s", got.Status, got.PaymentStatus)
	}
	if got.GatewayPaymentID == nil || *got.GatewayPaymentID != "pay_123" {
		t.Fatalf("gateway payment id not recorded: %+v", got.GatewayPaymentID)
	}
	if got.PaidAt == nil {
		t.Fatal("paid_at not recorded")
	}

	// Redelivered confirmation is a no-op.
	if err := svc.MarkPaid(ctx, nil, order.ID, "pay_123"); err != nil {
		t.Fatalf("repeat mark paid: %v", err)
	}
}

func TestMarkPaidAfterCancelRejected(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc, _ := newTestService(t, conn, 24*time.Hour)

	now := time.Now()
	order := seedOrder(t, conn, &models.Order{
		Status:      enums.OrderStatusCancelled,
		CancelledAt: &now,
	})

	err := svc.MarkPaid(context.Background(), nil, order.ID, "pay_123")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMarkPaymentFailedCancelsOrder(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc, _ := newTestService(t, conn, 24*time.Hour)

	order := seedOrder(t, conn, &models.Order{})

	if err := svc.MarkPaymentFailed(context.Background(), nil, order.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	got := loadOrder(t, conn, order.ID)
	if got.PaymentStatus != enums.PaymentStatusFailed {
		t.Fatalf("unexpected payment status %s", got.PaymentStatus)
	}
	if got.Status != enums.OrderStatusCancelled {
		t.Fatalf("unexpected status %s", got.Status)
	}
}

func TestMarkRefundedKeepsFulfillment(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc, _ := newTestService(t, conn, 24*time.Hour)

	order := seedOrder(t, conn, &models.Order{
		Status:        enums.OrderStatusDelivered,
		PaymentStatus: enums.PaymentStatusPaid,
	})

	if err := svc.MarkRefunded(context.Background(), nil, order.ID, "rfnd_9"); err != nil {
		t.Fatalf("mark refunded: %v", err)
	}
	got := loadOrder(t, conn, order.ID)
	if got.PaymentStatus != enums.PaymentStatusRefunded {
		t.Fatalf("unexpected payment status %s", got.PaymentStatus)
	}
	if got.Status != enums.OrderStatusDelivered {
		t.Fatalf("refund must not rewind fulfillment, got %s", got.Status)
	}
	if got.RefundID == nil || *got.RefundID != "rfnd_9" {
		t.Fatalf("refund id not recorded: %+v", got.RefundID)
	}
}

func TestMarkShippedRequiresPaidOrder(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc, _ := newTestService(t, conn, 24*time.Hour)

	order := seedOrder(t, conn, &models.Order{})

	err := svc.MarkShipped(context.Background(), nil, order.ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("unexpected error: %v", err)
	}
}
