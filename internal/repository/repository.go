// Package repository is the storage boundary of the rental core. The state
// machine and the reservation intake only see the interfaces declared here.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/xelth-com/eckrentgo/internal/models"
)

var (
	// ErrNotFound is returned (wrapped with the entity and id) when a record does not exist
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict means the record changed since it was loaded
	ErrVersionConflict = errors.New("version conflict")
)

// StorageError wraps an infrastructure failure (database or disk unavailable)
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

func notFound(entity, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
}

// RentalRepository loads and persists rental records
type RentalRepository interface {
	Load(ctx context.Context, id string) (models.RentalRecord, error)
	// Save persists rec if its Version still matches the stored one, then
	// bumps Version and UpdatedAt on rec.
	Save(ctx context.Context, rec *models.RentalRecord) error
	Create(ctx context.Context, rec *models.RentalRecord) error
	ListByProperty(ctx context.Context, propertyID string) ([]models.RentalRecord, error)
	// ListMine returns records where the user is the tenant or appears as an actor in history
	ListMine(ctx context.Context, userID string) ([]models.RentalRecord, error)
	ListAll(ctx context.Context) ([]models.RentalRecord, error)
}

// ReservationRepository reads reservations and records collaborator references
type ReservationRepository interface {
	LoadReservation(ctx context.Context, id string) (models.Reservation, error)
	ListReservations(ctx context.Context, propertyID string) ([]models.Reservation, error)
	// UpdateReservationRefs sets the non-empty references, leaving the others untouched
	UpdateReservationRefs(ctx context.Context, id, invoiceRef, taskRef string) error
}

// Tx is the write view handed to RunInTransaction callbacks
type Tx interface {
	ListReservations(propertyID string) ([]models.Reservation, error)
	CreateReservation(res *models.Reservation) error
	CreateRental(rec *models.RentalRecord) error
}

// Store is the full persistence surface used by the rental core
type Store interface {
	RentalRepository
	ReservationRepository
	// RunInTransaction runs fn all-or-nothing. lockKey names the booking slot;
	// backends shared between processes serialize callers on it.
	RunInTransaction(ctx context.Context, lockKey string, fn func(Tx) error) error
}

var (
	_ Store = (*GormStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
