package repository

import (
	"context"
	"errors"

	"github.com/xelth-com/eckrentgo/internal/models"
	"gorm.io/gorm"
)

// GormStore keeps rentals and reservations in postgres or sqlite
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a store on top of an open connection
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) isPostgres() bool {
	return s.db.Dialector != nil && s.db.Dialector.Name() == "postgres"
}

// Load fetches one rental by id
func (s *GormStore) Load(ctx context.Context, id string) (models.RentalRecord, error) {
	var rec models.RentalRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.RentalRecord{}, notFound("rental", id)
	}
	if err != nil {
		return models.RentalRecord{}, storageErr("load rental", err)
	}
	return rec, nil
}

// Save writes every column guarded by the version the caller loaded
func (s *GormStore) Save(ctx context.Context, rec *models.RentalRecord) error {
	loaded := rec.Version
	next := *rec
	next.Version = loaded + 1
	next.UpdatedAt = s.db.NowFunc()

	res := s.db.WithContext(ctx).
		Model(&next).
		Where("version = ?", loaded).
		Select("*").
		Updates(&next)
	if res.Error != nil {
		return storageErr("save rental", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.RentalRecord{}).Where("id = ?", rec.ID).Count(&count).Error; err != nil {
			return storageErr("save rental", err)
		}
		if count == 0 {
			return notFound("rental", rec.ID)
		}
		return ErrVersionConflict
	}

	*rec = next
	return nil
}

// Create inserts a new rental
func (s *GormStore) Create(ctx context.Context, rec *models.RentalRecord) error {
	return storageErr("create rental", s.db.WithContext(ctx).Create(rec).Error)
}

// ListByProperty returns the rentals of one property, oldest first
func (s *GormStore) ListByProperty(ctx context.Context, propertyID string) ([]models.RentalRecord, error) {
	var recs []models.RentalRecord
	err := s.db.WithContext(ctx).
		Where("property_id = ?", propertyID).
		Order("created_at, id").
		Find(&recs).Error
	return recs, storageErr("list rentals by property", err)
}

// ListMine filters in Go because history is a JSON column whose query
// syntax differs between postgres and sqlite.
func (s *GormStore) ListMine(ctx context.Context, userID string) ([]models.RentalRecord, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	mine := make([]models.RentalRecord, 0)
	for _, rec := range all {
		if rec.HasParticipant(userID) {
			mine = append(mine, rec)
		}
	}
	return mine, nil
}

// ListAll returns every rental, oldest first
func (s *GormStore) ListAll(ctx context.Context) ([]models.RentalRecord, error) {
	var recs []models.RentalRecord
	err := s.db.WithContext(ctx).Order("created_at, id").Find(&recs).Error
	return recs, storageErr("list rentals", err)
}

// LoadReservation fetches one reservation by id
func (s *GormStore) LoadReservation(ctx context.Context, id string) (models.Reservation, error) {
	var res models.Reservation
	err := s.db.WithContext(ctx).First(&res, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Reservation{}, notFound("reservation", id)
	}
	if err != nil {
		return models.Reservation{}, storageErr("load reservation", err)
	}
	return res, nil
}

// ListReservations returns the reservations of a property
func (s *GormStore) ListReservations(ctx context.Context, propertyID string) ([]models.Reservation, error) {
	return listReservations(s.db.WithContext(ctx), propertyID)
}

func listReservations(db *gorm.DB, propertyID string) ([]models.Reservation, error) {
	var out []models.Reservation
	err := db.Where("property_id = ?", propertyID).Order("start_date, id").Find(&out).Error
	return out, storageErr("list reservations", err)
}

// UpdateReservationRefs stores invoice and task references
func (s *GormStore) UpdateReservationRefs(ctx context.Context, id, invoiceRef, taskRef string) error {
	updates := map[string]interface{}{"updated_at": s.db.NowFunc()}
	if invoiceRef != "" {
		updates["invoice_ref"] = invoiceRef
	}
	if taskRef != "" {
		updates["task_ref"] = taskRef
	}
	res := s.db.WithContext(ctx).Model(&models.Reservation{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return storageErr("update reservation refs", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("reservation", id)
	}
	return nil
}

// RunInTransaction wraps fn in a database transaction. On postgres the
// transaction also holds an advisory lock on lockKey until commit.
func (s *GormStore) RunInTransaction(ctx context.Context, lockKey string, fn func(Tx) error) error {
	var fnErr error
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if lockKey != "" && s.isPostgres() {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", lockKey).Error; err != nil {
				fnErr = storageErr("acquire booking lock", err)
				return fnErr
			}
		}
		fnErr = fn(&gormTx{db: tx})
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	return storageErr("commit", err)
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) ListReservations(propertyID string) ([]models.Reservation, error) {
	return listReservations(t.db, propertyID)
}

func (t *gormTx) CreateReservation(res *models.Reservation) error {
	return storageErr("create reservation", t.db.Create(res).Error)
}

func (t *gormTx) CreateRental(rec *models.RentalRecord) error {
	return storageErr("create rental", t.db.Create(rec).Error)
}
