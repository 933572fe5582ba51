package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xelth-com/eckrentgo/internal/database"
	"github.com/xelth-com/eckrentgo/internal/models"
	"gorm.io/datatypes"
)

func newSQLiteStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))
	return NewGormStore(db.DB)
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	mem, err := NewMemoryStore("")
	require.NoError(t, err)
	return map[string]Store{
		"memory": mem,
		"sqlite": newSQLiteStore(t),
	}
}

func sampleRental(id, property, tenant string) models.RentalRecord {
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	done := created.Add(48 * time.Hour)
	return models.RentalRecord{
		ID:         id,
		PropertyID: property,
		TenantID:   tenant,
		Amount:     decimal.RequireFromString("1200.50"),
		Currency:   "EUR",
		State:      "reserved",
		Docs: datatypes.JSONSlice[models.RentalDocument]{
			{Kind: "passport", Path: "uploads/p1.pdf", Fields: datatypes.JSONMap{"number": "X123"}, UploadedBy: tenant, UploadedAt: created},
		},
		Handover: &models.Handover{
			Photos:        []string{"h/1.jpg"},
			MeterReadings: []models.MeterReading{{Meter: "water_cold", Value: "00123", ReadAt: created}},
			CompletedAt:   &done,
		},
		History: datatypes.JSONSlice[models.HistoryEntry]{
			{At: created, ActorID: "agent-1", Event: "reserve", To: "reserved"},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestLoadMissingIsNotFound(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Load(context.Background(), "nope")
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = store.LoadReservation(context.Background(), "nope")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestCreateLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			rec := sampleRental("r1", "P1", "tenant-1")
			require.NoError(t, store.Create(ctx, &rec))

			got, err := store.Load(ctx, "r1")
			require.NoError(t, err)
			assert.Equal(t, rec.State, got.State)
			assert.True(t, rec.Amount.Equal(got.Amount))
			require.Len(t, got.Docs, 1)
			assert.Equal(t, "uploads/p1.pdf", got.Docs[0].Path)
			assert.Equal(t, "X123", got.Docs[0].Fields["number"])
			require.Len(t, got.History, 1)
			assert.Equal(t, models.RentalEvent("reserve"), got.History[0].Event)
			assert.True(t, rec.History[0].At.Equal(got.History[0].At))
			require.NotNil(t, got.Handover)
			assert.Equal(t, []string{"h/1.jpg"}, got.Handover.Photos)
			require.Len(t, got.Handover.MeterReadings, 1)
			assert.Equal(t, "00123", got.Handover.MeterReadings[0].Value)
			require.NotNil(t, got.Handover.CompletedAt)
		})
	}
}

func TestSaveWithoutChangesOnlyTouchesUpdatedAt(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			rec := sampleRental("r1", "P1", "tenant-1")
			require.NoError(t, store.Create(ctx, &rec))

			before, err := store.Load(ctx, "r1")
			require.NoError(t, err)
			toSave := before.Clone()
			require.NoError(t, store.Save(ctx, &toSave))

			after, err := store.Load(ctx, "r1")
			require.NoError(t, err)
			assert.Equal(t, before.State, after.State)
			assert.Equal(t, before.Docs, after.Docs)
			assert.Equal(t, before.History, after.History)
			assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
			assert.Equal(t, before.Version+1, after.Version)
			assert.True(t, before.CreatedAt.Equal(after.CreatedAt))
		})
	}
}

func TestSaveStaleVersionConflicts(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			rec := sampleRental("r1", "P1", "tenant-1")
			require.NoError(t, store.Create(ctx, &rec))

			first, err := store.Load(ctx, "r1")
			require.NoError(t, err)
			second := first.Clone()

			first.State = "paid"
			require.NoError(t, store.Save(ctx, &first))

			second.State = "reserved"
			err = store.Save(ctx, &second)
			assert.ErrorIs(t, err, ErrVersionConflict)

			got, err := store.Load(ctx, "r1")
			require.NoError(t, err)
			assert.Equal(t, models.RentalState("paid"), got.State)

			ghost := sampleRental("ghost", "P1", "t")
			assert.ErrorIs(t, store.Save(ctx, &ghost), ErrNotFound)
		})
	}
}

func TestListings(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			a := sampleRental("a", "P1", "tenant-1")
			b := sampleRental("b", "P1", "tenant-2")
			b.CreatedAt = b.CreatedAt.Add(time.Hour)
			c := sampleRental("c", "P2", "tenant-3")
			c.CreatedAt = c.CreatedAt.Add(2 * time.Hour)
			c.History = append(c.History, models.HistoryEntry{At: c.CreatedAt, ActorID: "tenant-1", Event: "pay", To: "paid"})
			for _, rec := range []*models.RentalRecord{&a, &b, &c} {
				require.NoError(t, store.Create(ctx, rec))
			}

			byProp, err := store.ListByProperty(ctx, "P1")
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, ids(byProp))

			mine, err := store.ListMine(ctx, "tenant-1")
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "c"}, ids(mine))

			agent, err := store.ListMine(ctx, "agent-1")
			require.NoError(t, err)
			assert.Len(t, agent, 3)

			all, err := store.ListAll(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b", "c"}, ids(all))
		})
	}
}

func TestRunInTransactionIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := store.RunInTransaction(ctx, "P1/", func(tx Tx) error {
				res := models.Reservation{ID: "res-1", PropertyID: "P1", StartDate: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), Status: models.ReservationStatusPending}
				require.NoError(t, tx.CreateReservation(&res))
				rec := sampleRental("r1", "P1", "tenant-1")
				require.NoError(t, tx.CreateRental(&rec))

				listed, err := tx.ListReservations("P1")
				require.NoError(t, err)
				assert.Len(t, listed, 1)
				return boom
			})
			assert.ErrorIs(t, err, boom)

			listed, err := store.ListReservations(ctx, "P1")
			require.NoError(t, err)
			assert.Empty(t, listed)
			_, err = store.Load(ctx, "r1")
			assert.ErrorIs(t, err, ErrNotFound)

			err = store.RunInTransaction(ctx, "P1/", func(tx Tx) error {
				res := models.Reservation{ID: "res-1", PropertyID: "P1", StartDate: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), Status: models.ReservationStatusPending}
				return tx.CreateReservation(&res)
			})
			require.NoError(t, err)
			listed, err = store.ListReservations(ctx, "P1")
			require.NoError(t, err)
			assert.Len(t, listed, 1)
		})
	}
}

func TestUpdateReservationRefsKeepsExisting(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.RunInTransaction(ctx, "", func(tx Tx) error {
				return tx.CreateReservation(&models.Reservation{ID: "res-1", PropertyID: "P1", StartDate: time.Now().UTC(), Status: models.ReservationStatusPending})
			}))

			require.NoError(t, store.UpdateReservationRefs(ctx, "res-1", "INV-2025-000001", ""))
			require.NoError(t, store.UpdateReservationRefs(ctx, "res-1", "", "TSK-2025-000001"))

			got, err := store.LoadReservation(ctx, "res-1")
			require.NoError(t, err)
			assert.Equal(t, "INV-2025-000001", got.InvoiceRef)
			assert.Equal(t, "TSK-2025-000001", got.TaskRef)

			assert.ErrorIs(t, store.UpdateReservationRefs(ctx, "missing", "x", ""), ErrNotFound)
		})
	}
}

func TestMemoryStoreSnapshotSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "rentals.json")

	store, err := NewMemoryStore(path)
	require.NoError(t, err)
	rec := sampleRental("r1", "P1", "tenant-1")
	require.NoError(t, store.Create(ctx, &rec))
	loaded, err := store.Load(ctx, "r1")
	require.NoError(t, err)
	loaded.State = "paid"
	require.NoError(t, store.Save(ctx, &loaded))
	assert.FileExists(t, path)

	reopened, err := NewMemoryStore(path)
	require.NoError(t, err)
	got, err := reopened.Load(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.RentalState("paid"), got.State)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, loaded.Docs, got.Docs)
	assert.Equal(t, loaded.History, got.History)
}

func TestMemoryStoreCountersPersistWithSnapshot(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rentals.json")

	store, err := NewMemoryStore(path)
	require.NoError(t, err)
	for want := int64(1); want <= 3; want++ {
		n, err := store.IncrementCounter(ctx, "CONTRACT/2025")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	rec := sampleRental("r1", "P1", "tenant-1")
	require.NoError(t, store.Create(ctx, &rec))

	reopened, err := NewMemoryStore(path)
	require.NoError(t, err)
	n, err := reopened.CounterValue(ctx, "CONTRACT/2025")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	n, err = reopened.CounterValue(ctx, "INVOICE/2025")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryStoreCounterRollsBackOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rentals.json")

	store, err := NewMemoryStore(path)
	require.NoError(t, err)
	_, err = store.IncrementCounter(ctx, "TASK/2025")
	require.NoError(t, err)

	// a directory where the temp file goes makes every snapshot write fail
	require.NoError(t, os.Mkdir(path+".tmp", 0755))
	_, err = store.IncrementCounter(ctx, "TASK/2025")
	var se *StorageError
	require.True(t, errors.As(err, &se))
	_, err = store.IncrementCounter(ctx, "INVOICE/2025")
	require.Error(t, err)

	n, err := store.CounterValue(ctx, "TASK/2025")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = store.CounterValue(ctx, "INVOICE/2025")
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, os.Remove(path+".tmp"))
	n, err = store.IncrementCounter(ctx, "TASK/2025")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMemoryStoreLoadReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryStore("")
	require.NoError(t, err)
	rec := sampleRental("r1", "P1", "tenant-1")
	require.NoError(t, store.Create(ctx, &rec))

	got, err := store.Load(ctx, "r1")
	require.NoError(t, err)
	got.History[0].Note = "tampered"
	got.Handover.Photos[0] = "tampered"

	again, err := store.Load(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, again.History[0].Note)
	assert.Equal(t, "h/1.jpg", again.Handover.Photos[0])
}

func TestStorageErrorUnwraps(t *testing.T) {
	cause := errors.New("disk gone")
	err := storageErr("save rental", cause)

	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "save rental", se.Op)
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, storageErr("noop", nil))
}

func ids(recs []models.RentalRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
