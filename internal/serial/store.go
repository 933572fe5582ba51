package serial

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/xelth-com/eckrentgo/internal/models"
	"github.com/xelth-com/eckrentgo/internal/repository"
	"gorm.io/gorm"
)

// GormCounterStore keeps counters in the serial_counters table
type GormCounterStore struct {
	db *gorm.DB
}

// NewGormCounterStore creates a counter store on an open connection
func NewGormCounterStore(db *gorm.DB) *GormCounterStore {
	return &GormCounterStore{db: db}
}

// upsertCounter creates the row at 1 or bumps it by one in a single
// statement, so concurrent processes never read the same value.
const upsertCounter = `INSERT INTO serial_counters (entity_kind, year, counter, created_at, updated_at)
VALUES (?, ?, 1, ?, ?)
ON CONFLICT (entity_kind, year) DO UPDATE
SET counter = serial_counters.counter + 1, updated_at = excluded.updated_at
RETURNING counter`

// Increment bumps the counter for (kind, year) and returns the new value
func (s *GormCounterStore) Increment(ctx context.Context, kind EntityKind, year int) (int64, error) {
	now := s.db.NowFunc()
	var counter int64
	err := s.db.WithContext(ctx).Raw(upsertCounter, string(kind), year, now, now).Scan(&counter).Error
	if err != nil {
		return 0, &repository.StorageError{Op: "increment serial counter", Err: err}
	}
	if counter == 0 {
		return 0, &repository.StorageError{Op: "increment serial counter", Err: errors.New("no counter returned")}
	}
	return counter, nil
}

// Current returns the last issued value, 0 when nothing was issued yet
func (s *GormCounterStore) Current(ctx context.Context, kind EntityKind, year int) (int64, error) {
	var row models.SerialCounter
	err := s.db.WithContext(ctx).
		Where("entity_kind = ? AND year = ?", string(kind), year).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, &repository.StorageError{Op: "read serial counter", Err: err}
	}
	return row.Counter, nil
}

// KeyedCounters is a counter backend addressed by one string key, such as
// repository.MemoryStore which persists them in its snapshot file
type KeyedCounters interface {
	IncrementCounter(ctx context.Context, key string) (int64, error)
	CounterValue(ctx context.Context, key string) (int64, error)
}

// MemoryCounterStore maps (kind, year) onto a KeyedCounters backend
type MemoryCounterStore struct {
	keyed KeyedCounters
}

// NewMemoryCounterStore creates a store whose counters live only in this process
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{keyed: &localCounters{counters: map[string]int64{}}}
}

// NewSnapshotCounterStore creates a store on a persistent keyed backend
func NewSnapshotCounterStore(keyed KeyedCounters) *MemoryCounterStore {
	return &MemoryCounterStore{keyed: keyed}
}

// Increment bumps the counter for (kind, year)
func (s *MemoryCounterStore) Increment(ctx context.Context, kind EntityKind, year int) (int64, error) {
	return s.keyed.IncrementCounter(ctx, lockKey(kind, year))
}

// Current returns the last issued value
func (s *MemoryCounterStore) Current(ctx context.Context, kind EntityKind, year int) (int64, error) {
	return s.keyed.CounterValue(ctx, lockKey(kind, year))
}

type localCounters struct {
	mu       sync.Mutex
	counters map[string]int64
}

func (c *localCounters) IncrementCounter(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key]++
	return c.counters[key], nil
}

func (c *localCounters) CounterValue(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[key], nil
}

// GormAuditSink appends to serial_audit_logs
type GormAuditSink struct {
	db *gorm.DB
}

// NewGormAuditSink creates a sink on an open connection
func NewGormAuditSink(db *gorm.DB) *GormAuditSink {
	return &GormAuditSink{db: db}
}

// Record inserts the audit entry
func (s *GormAuditSink) Record(ctx context.Context, entry models.SerialAuditLog) error {
	return s.db.WithContext(ctx).Create(&entry).Error
}

// LogAuditSink writes audit entries to the process log
type LogAuditSink struct{}

// Record logs the entry
func (LogAuditSink) Record(_ context.Context, entry models.SerialAuditLog) error {
	log.Printf("🔢 Issued %s (actor=%s)", entry.Serial, entry.ActorID)
	return nil
}
