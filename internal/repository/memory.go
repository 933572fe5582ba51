package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/xelth-com/eckrentgo/internal/models"
)

// Snapshot is the on-disk shape of a MemoryStore
type Snapshot struct {
	Rentals      map[string]models.RentalRecord `json:"rentals"`
	Reservations map[string]models.Reservation  `json:"reservations"`
	Counters     map[string]int64               `json:"counters,omitempty"`
}

// MemoryStore keeps everything in process memory. When a path is given the
// whole state is written to a JSON file after every committed write.
type MemoryStore struct {
	mu           sync.RWMutex
	rentals      map[string]models.RentalRecord
	reservations map[string]models.Reservation
	counters     map[string]int64
	path         string
	nowFn        func() time.Time
}

// NewMemoryStore creates a store, loading the snapshot at path when it exists.
// An empty path keeps the store purely in memory.
func NewMemoryStore(path string) (*MemoryStore, error) {
	s := &MemoryStore{
		rentals:      map[string]models.RentalRecord{},
		reservations: map[string]models.Reservation{},
		counters:     map[string]int64{},
		path:         path,
		nowFn:        func() time.Time { return time.Now().UTC() },
	}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, storageErr("read snapshot", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	for id, rec := range snap.Rentals {
		s.rentals[id] = rec
	}
	for id, res := range snap.Reservations {
		s.reservations[id] = res
	}
	for key, n := range snap.Counters {
		s.counters[key] = n
	}
	return s, nil
}

// SetNowFunc overrides the clock used for UpdatedAt
func (s *MemoryStore) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

// Path returns the snapshot file, empty for a pure in-memory store
func (s *MemoryStore) Path() string { return s.path }

// persist must be called with s.mu held
func (s *MemoryStore) persist(rentals map[string]models.RentalRecord, reservations map[string]models.Reservation) error {
	if s.path == "" {
		return nil
	}
	snap := Snapshot{Rentals: rentals, Reservations: reservations, Counters: s.counters}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return storageErr("encode snapshot", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return storageErr("write snapshot", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return storageErr("write snapshot", err)
	}
	return storageErr("write snapshot", os.Rename(tmp, s.path))
}

// Load fetches one rental by id
func (s *MemoryStore) Load(_ context.Context, id string) (models.RentalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rentals[id]
	if !ok {
		return models.RentalRecord{}, notFound("rental", id)
	}
	return rec.Clone(), nil
}

// Save replaces the stored rental if the version matches
func (s *MemoryStore) Save(_ context.Context, rec *models.RentalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.rentals[rec.ID]
	if !ok {
		return notFound("rental", rec.ID)
	}
	if stored.Version != rec.Version {
		return ErrVersionConflict
	}

	next := rec.Clone()
	next.Version++
	next.UpdatedAt = s.nowFn()
	s.rentals[rec.ID] = next
	if err := s.persist(s.rentals, s.reservations); err != nil {
		s.rentals[rec.ID] = stored
		return err
	}
	*rec = next.Clone()
	return nil
}

// Create inserts a new rental
func (s *MemoryStore) Create(_ context.Context, rec *models.RentalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rentals := copyMap(s.rentals)
	if err := createRental(rentals, rec, s.nowFn()); err != nil {
		return err
	}
	if err := s.persist(rentals, s.reservations); err != nil {
		return err
	}
	s.rentals = rentals
	return nil
}

// ListByProperty returns the rentals of one property, oldest first
func (s *MemoryStore) ListByProperty(_ context.Context, propertyID string) ([]models.RentalRecord, error) {
	return s.filterRentals(func(rec models.RentalRecord) bool { return rec.PropertyID == propertyID }), nil
}

// ListMine returns rentals the user takes part in
func (s *MemoryStore) ListMine(_ context.Context, userID string) ([]models.RentalRecord, error) {
	return s.filterRentals(func(rec models.RentalRecord) bool { return rec.HasParticipant(userID) }), nil
}

// ListAll returns every rental, oldest first
func (s *MemoryStore) ListAll(_ context.Context) ([]models.RentalRecord, error) {
	return s.filterRentals(func(models.RentalRecord) bool { return true }), nil
}

func (s *MemoryStore) filterRentals(keep func(models.RentalRecord) bool) []models.RentalRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.RentalRecord, 0)
	for _, rec := range s.rentals {
		if keep(rec) {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// IncrementCounter bumps a named counter and returns the new value. The
// counter is written with the snapshot; on a failed write it is rolled back.
func (s *MemoryStore) IncrementCounter(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.counters[key]
	s.counters[key] = prev + 1
	if err := s.persist(s.rentals, s.reservations); err != nil {
		if existed {
			s.counters[key] = prev
		} else {
			delete(s.counters, key)
		}
		return 0, err
	}
	return prev + 1, nil
}

// CounterValue returns the current value of a named counter, 0 when unset
func (s *MemoryStore) CounterValue(_ context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters[key], nil
}

// LoadReservation fetches one reservation by id
func (s *MemoryStore) LoadReservation(_ context.Context, id string) (models.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.reservations[id]
	if !ok {
		return models.Reservation{}, notFound("reservation", id)
	}
	return res, nil
}

// ListReservations returns the reservations of a property
func (s *MemoryStore) ListReservations(_ context.Context, propertyID string) ([]models.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reservationsFor(s.reservations, propertyID), nil
}

// UpdateReservationRefs stores invoice and task references
func (s *MemoryStore) UpdateReservationRefs(_ context.Context, id, invoiceRef, taskRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.reservations[id]
	if !ok {
		return notFound("reservation", id)
	}
	next := stored
	if invoiceRef != "" {
		next.InvoiceRef = invoiceRef
	}
	if taskRef != "" {
		next.TaskRef = taskRef
	}
	next.UpdatedAt = s.nowFn()
	s.reservations[id] = next
	if err := s.persist(s.rentals, s.reservations); err != nil {
		s.reservations[id] = stored
		return err
	}
	return nil
}

// RunInTransaction stages writes on copies of the maps and swaps them in
// only when fn succeeds and the snapshot (if any) is written.
func (s *MemoryStore) RunInTransaction(ctx context.Context, _ string, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		rentals:      copyMap(s.rentals),
		reservations: copyMap(s.reservations),
		now:          s.nowFn(),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.persist(tx.rentals, tx.reservations); err != nil {
		return err
	}
	s.rentals = tx.rentals
	s.reservations = tx.reservations
	return nil
}

type memoryTx struct {
	rentals      map[string]models.RentalRecord
	reservations map[string]models.Reservation
	now          time.Time
}

func (t *memoryTx) ListReservations(propertyID string) ([]models.Reservation, error) {
	return reservationsFor(t.reservations, propertyID), nil
}

func (t *memoryTx) CreateReservation(res *models.Reservation) error {
	if _, exists := t.reservations[res.ID]; exists {
		return fmt.Errorf("reservation %s already exists", res.ID)
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = t.now
	}
	if res.UpdatedAt.IsZero() {
		res.UpdatedAt = res.CreatedAt
	}
	t.reservations[res.ID] = *res
	return nil
}

func (t *memoryTx) CreateRental(rec *models.RentalRecord) error {
	return createRental(t.rentals, rec, t.now)
}

func createRental(rentals map[string]models.RentalRecord, rec *models.RentalRecord, now time.Time) error {
	if _, exists := rentals[rec.ID]; exists {
		return fmt.Errorf("rental %s already exists", rec.ID)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	rentals[rec.ID] = rec.Clone()
	return nil
}

func reservationsFor(all map[string]models.Reservation, propertyID string) []models.Reservation {
	out := make([]models.Reservation, 0)
	for _, res := range all {
		if res.PropertyID == propertyID {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
