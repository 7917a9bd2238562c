package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/acavero/shopline-backend/pkg/db/models"
	"github.com/acavero/shopline-backend/pkg/enums"
	pkgerrors "github.com/acavero/shopline-backend/pkg/errors"
)

// Service is the only writer of stock deltas. Reservations move HELD ->
// COMMITTED or HELD -> RELEASED exactly once; repeating a resolution is a
// no-op.
type Service interface {
	Reserve(ctx context.Context, tx *gorm.DB, orderID, productID uuid.UUID, qty int) (*models.Reservation, error)
	Commit(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID) error
	Release(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID) error
	CommitForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	ReleaseForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
}

type service struct {
	repo Repository
}

// NewService wires an inventory service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Reserve(ctx context.Context, tx *gorm.DB, orderID, productID uuid.UUID, qty int) (*models.Reservation, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation qty must be positive")
	}

	repo := s.repo.WithTx(tx)
	reserved, err := repo.ApplyReserve(ctx, productID, qty)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve inventory")
	}
	if !reserved {
		if _, err := repo.FindItem(ctx, productID); err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product has no inventory record").
					WithDetails(map[string]any{"product_id": productID})
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory item")
		}
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "not enough stock to reserve").
			WithDetails(map[string]any{"product_id": productID, "requested_qty": qty})
	}

	reservation := &models.Reservation{
		ID:        uuid.New(),
		OrderID:   orderID,
		ProductID: productID,
		Qty:       qty,
		State:     enums.ReservationStateHeld,
	}
	if err := repo.CreateReservation(ctx, reservation); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create reservation")
	}
	return reservation, nil
}

func (s *service) Commit(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID) error {
	return s.resolve(ctx, tx, reservationID, enums.ReservationStateCommitted)
}

func (s *service) Release(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID) error {
	return s.resolve(ctx, tx, reservationID, enums.ReservationStateReleased)
}

func (s *service) CommitForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	return s.resolveForOrder(ctx, tx, orderID, enums.ReservationStateCommitted)
}

func (s *service) ReleaseForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	return s.resolveForOrder(ctx, tx, orderID, enums.ReservationStateReleased)
}

func (s *service) resolveForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, target enums.ReservationState) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	repo := s.repo.WithTx(tx)
	reservations, err := repo.ListReservationsByOrder(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reservations")
	}
	for _, reservation := range reservations {
		if err := s.resolve(ctx, tx, reservation.ID, target); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) resolve(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID, target enums.ReservationState) error {
	if reservationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "reservation id required")
	}

	repo := s.repo.WithTx(tx)
	reservation, err := repo.FindReservation(ctx, reservationID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation")
	}

	// Repeating the same resolution is a no-op; crossing resolutions is a
	// lifecycle violation.
	if reservation.State == target {
		return nil
	}
	if reservation.State != enums.ReservationStateHeld {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("reservation already %s, cannot move to %s", reservation.State, target))
	}

	// Flip the row first; the guarded update means a concurrent resolver
	// observes zero rows and re-reads instead of double-applying counters.
	flipped, err := repo.TransitionReservation(ctx, reservationID, enums.ReservationStateHeld, target)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transition reservation")
	}
	if !flipped {
		current, err := repo.FindReservation(ctx, reservationID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload reservation")
		}
		if current.State == target {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("reservation already %s, cannot move to %s", current.State, target))
	}

	var applied bool
	switch target {
	case enums.ReservationStateCommitted:
		applied, err = repo.ApplyCommit(ctx, reservation.ProductID, reservation.Qty)
	case enums.ReservationStateReleased:
		applied, err = repo.ApplyRelease(ctx, reservation.ProductID, reservation.Qty)
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid target state %q", target))
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply inventory delta")
	}
	if !applied {
		return pkgerrors.New(pkgerrors.CodeDependency, "inventory counters out of sync with reservation").
			WithDetails(map[string]any{"reservation_id": reservationID, "product_id": reservation.ProductID})
	}
	return nil
}
