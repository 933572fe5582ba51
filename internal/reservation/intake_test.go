package reservation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xelth-com/eckrentgo/internal/database"
	"github.com/xelth-com/eckrentgo/internal/models"
	"github.com/xelth-com/eckrentgo/internal/rental"
	"github.com/xelth-com/eckrentgo/internal/repository"
)

type fakeProperties struct{ err error }

func (f fakeProperties) Snapshot(_ context.Context, id string) (models.PropertySnapshot, error) {
	if f.err != nil {
		return models.PropertySnapshot{}, f.err
	}
	return models.PropertySnapshot{ID: id, Title: "Flat 3B", OwnerID: "owner-1", MonthlyRent: decimal.NewFromInt(800), Currency: "EUR"}, nil
}

type fakeInvoices struct {
	mu    sync.Mutex
	n     int
	err   error
	seen  []models.PropertySnapshot
	panic bool
}

func (f *fakeInvoices) IssueInvoice(_ context.Context, res models.Reservation, p models.PropertySnapshot) (string, error) {
	if f.panic {
		panic("printer on fire")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.n++
	f.seen = append(f.seen, p)
	return fmt.Sprintf("INV-2025-%06d", f.n), nil
}

type sentNotification struct {
	kind, target, message string
	data                  map[string]interface{}
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (f *fakeNotifier) Notify(_ context.Context, kind, target, message string, data map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotification{kind, target, message, data})
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeTasks struct {
	mu  sync.Mutex
	n   int
	due []time.Time
	err error
}

func (f *fakeTasks) CreateFollowUpTask(_ context.Context, title, description string, due time.Time, data map[string]interface{}) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.n++
	f.due = append(f.due, due)
	return fmt.Sprintf("TSK-2025-%06d", f.n), nil
}

type harness struct {
	intake   *Intake
	store    repository.Store
	invoices *fakeInvoices
	notifier *fakeNotifier
	tasks    *fakeTasks
}

func newHarness(t *testing.T, store repository.Store, opts Options) *harness {
	t.Helper()
	h := &harness{
		store:    store,
		invoices: &fakeInvoices{},
		notifier: &fakeNotifier{},
		tasks:    &fakeTasks{},
	}
	h.intake = NewIntake(store, Collaborators{
		Properties: fakeProperties{},
		Invoices:   h.invoices,
		Notifier:   h.notifier,
		Tasks:      h.tasks,
	}, opts)
	h.intake.SetClock(func() time.Time { return time.Date(2025, 2, 20, 8, 0, 0, 0, time.UTC) })
	return h
}

func memoryStore(t *testing.T) repository.Store {
	t.Helper()
	store, err := repository.NewMemoryStore("")
	require.NoError(t, err)
	return store
}

func sqliteStore(t *testing.T) repository.Store {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))
	return repository.NewGormStore(db.DB)
}

func validRequest() Request {
	return Request{
		PropertyID: "P1",
		TenantID:   "tenant-1",
		Contact:    models.Contact{Name: "Ana Petrova", Phone: "+359 88 123 4567"},
		StartDate:  "2025-03-01",
		Months:     12,
		Amount:     decimal.NewFromInt(9600),
		ActorID:    "agent-1",
	}
}

func TestReserveValidation(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Request)
		field  string
	}{
		"missing name":     {func(r *Request) { r.Contact.Name = " " }, "contact.name"},
		"missing phone":    {func(r *Request) { r.Contact.Phone = "" }, "contact.phone"},
		"bad date":         {func(r *Request) { r.StartDate = "next friday" }, "startDate"},
		"missing property": {func(r *Request) { r.PropertyID = "" }, "propertyId"},
		"negative months":  {func(r *Request) { r.Months = -1 }, "months"},
		"negative days":    {func(r *Request) { r.Months = 0; r.Days = -3 }, "days"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, memoryStore(t), Options{})
			req := validRequest()
			tc.mutate(&req)

			_, err := h.intake.Reserve(context.Background(), req)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tc.field, verr.Field)

			all, err := h.store.ListAll(context.Background())
			require.NoError(t, err)
			assert.Empty(t, all)
			assert.Equal(t, 0, h.notifier.count())
		})
	}
}

func TestReserveCreatesReservationAndRental(t *testing.T) {
	for name, store := range map[string]func(*testing.T) repository.Store{"memory": memoryStore, "sqlite": sqliteStore} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t, store(t), Options{TaskDueAfter: 48 * time.Hour})

			out, err := h.intake.Reserve(ctx, validRequest())
			require.NoError(t, err)

			assert.Equal(t, models.ReservationStatusPending, out.Reservation.Status)
			assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), out.Reservation.StartDate)
			assert.Equal(t, out.Rental.ID, out.Reservation.RentalID)
			assert.Equal(t, out.Reservation.ID, out.Rental.ReservationID)
			assert.Equal(t, rental.StateReserved, out.Rental.State)
			require.Len(t, out.Rental.History, 1)
			assert.Equal(t, "INV-2025-000001", out.Reservation.InvoiceRef)
			assert.Equal(t, "TSK-2025-000001", out.Reservation.TaskRef)

			stored, err := h.store.LoadReservation(ctx, out.Reservation.ID)
			require.NoError(t, err)
			assert.Equal(t, "INV-2025-000001", stored.InvoiceRef)
			assert.Equal(t, "TSK-2025-000001", stored.TaskRef)
			assert.Equal(t, "Ana Petrova", stored.Contact.Name)

			rec, err := h.store.Load(ctx, out.Rental.ID)
			require.NoError(t, err)
			assert.Equal(t, rental.StateReserved, rec.State)
			assert.True(t, decimal.NewFromInt(9600).Equal(rec.Amount))

			require.Len(t, h.invoices.seen, 1)
			assert.Equal(t, "Flat 3B", h.invoices.seen[0].Title)

			require.Equal(t, 1, h.notifier.count())
			note := h.notifier.sent[0]
			assert.Equal(t, "reservation_created", note.kind)
			assert.Equal(t, "owner-1", note.target)
			assert.Equal(t, "INV-2025-000001", note.data["invoiceRef"])

			require.Len(t, h.tasks.due, 1)
			assert.Equal(t, time.Date(2025, 2, 22, 8, 0, 0, 0, time.UTC), h.tasks.due[0])
		})
	}
}

func TestReserveConflictStoresNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memoryStore(t), Options{})

	first, err := h.intake.Reserve(ctx, validRequest())
	require.NoError(t, err)

	overlap := validRequest()
	overlap.StartDate = "2025-06-01"
	overlap.Months = 1
	_, err = h.intake.Reserve(ctx, overlap)
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	require.Len(t, conflict.Conflicts, 1)
	assert.Equal(t, first.Reservation.ID, conflict.Conflicts[0].ID)

	list, err := h.store.ListReservations(ctx, "P1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
	all, err := h.store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	after := validRequest()
	after.StartDate = "2026-03-01"
	_, err = h.intake.Reserve(ctx, after)
	require.NoError(t, err, "starts the day after the first one ends")
}

func TestReserveWithoutPeriodSkipsConflictCheck(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memoryStore(t), Options{})

	req := validRequest()
	req.Months = 0
	_, err := h.intake.Reserve(ctx, req)
	require.NoError(t, err)
	_, err = h.intake.Reserve(ctx, req)
	require.NoError(t, err)

	withPeriod := validRequest()
	withPeriod.Months = 0
	withPeriod.Days = 2
	_, err = h.intake.Reserve(ctx, withPeriod)
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Len(t, conflict.Conflicts, 2)
}

func TestDownstreamFailuresAreNotFatal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memoryStore(t), Options{})
	h.invoices.err = errors.New("billing down")

	out, err := h.intake.Reserve(ctx, validRequest())
	require.NoError(t, err)
	assert.Empty(t, out.Reservation.InvoiceRef)
	assert.Equal(t, "TSK-2025-000001", out.Reservation.TaskRef)

	stored, err := h.store.LoadReservation(ctx, out.Reservation.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.InvoiceRef)
	assert.Equal(t, 1, h.notifier.count())

	h.tasks.err = errors.New("tasks down")
	req := validRequest()
	req.StartDate = "2027-01-01"
	out, err = h.intake.Reserve(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, out.Reservation.TaskRef)
}

func TestPanickingCollaboratorIsContained(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memoryStore(t), Options{})
	h.invoices.panic = true

	out, err := h.intake.Reserve(ctx, validRequest())
	require.NoError(t, err)

	_, err = h.store.LoadReservation(ctx, out.Reservation.ID)
	require.NoError(t, err)
	_, err = h.store.Load(ctx, out.Rental.ID)
	require.NoError(t, err)
}

func TestPropertyLookupFailureSkipsInvoice(t *testing.T) {
	ctx := context.Background()
	store := memoryStore(t)
	invoices := &fakeInvoices{}
	notifier := &fakeNotifier{}
	in := NewIntake(store, Collaborators{
		Properties: fakeProperties{err: errors.New("no such property")},
		Invoices:   invoices,
		Notifier:   notifier,
	}, Options{})

	out, err := in.Reserve(ctx, validRequest())
	require.NoError(t, err)
	assert.Empty(t, out.Reservation.InvoiceRef)
	assert.Equal(t, 0, invoices.n)
	require.Equal(t, 1, notifier.count())
	assert.Equal(t, "agents", notifier.sent[0].target)
}

func TestAsyncFollowUpsDrainOnWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := newHarness(t, memoryStore(t), Options{Async: true})

	out, err := h.intake.Reserve(ctx, validRequest())
	require.NoError(t, err)
	cancel()
	h.intake.Wait()

	stored, err := h.store.LoadReservation(context.Background(), out.Reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-2025-000001", stored.InvoiceRef)
	assert.Equal(t, "TSK-2025-000001", stored.TaskRef)
	assert.Equal(t, 1, h.notifier.count())
}

func TestConcurrentOverlappingReservationsOneWins(t *testing.T) {
	for name, store := range map[string]func(*testing.T) repository.Store{"memory": memoryStore, "sqlite": sqliteStore} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, store(t), Options{Async: true})

			var wins, conflicts int32
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					req := validRequest()
					req.TenantID = fmt.Sprintf("tenant-%d", i)
					_, err := h.intake.Reserve(context.Background(), req)
					var conflict *ConflictError
					switch {
					case err == nil:
						atomic.AddInt32(&wins, 1)
					case errors.As(err, &conflict):
						atomic.AddInt32(&conflicts, 1)
					}
				}(i)
			}
			wg.Wait()
			h.intake.Wait()

			assert.Equal(t, int32(1), wins)
			assert.Equal(t, int32(19), conflicts)
			list, err := h.store.ListReservations(context.Background(), "P1")
			require.NoError(t, err)
			assert.Len(t, list, 1)
		})
	}
}

func TestDifferentUnitsDoNotConflict(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memoryStore(t), Options{})

	a := validRequest()
	a.UnitID = "A"
	b := validRequest()
	b.UnitID = "B"
	_, err := h.intake.Reserve(ctx, a)
	require.NoError(t, err)
	_, err = h.intake.Reserve(ctx, b)
	require.NoError(t, err)

	whole := validRequest()
	_, err = h.intake.Reserve(ctx, whole)
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Len(t, conflict.Conflicts, 2)
}

type panickingTxStore struct {
	repository.Store
	armed atomic.Bool
}

func (s *panickingTxStore) RunInTransaction(ctx context.Context, key string, fn func(repository.Tx) error) error {
	if s.armed.CompareAndSwap(true, false) {
		panic("transaction backend crashed")
	}
	return s.Store.RunInTransaction(ctx, key, fn)
}

func TestPanicInTransactionReleasesPropertyLock(t *testing.T) {
	store := &panickingTxStore{Store: memoryStore(t)}
	store.armed.Store(true)
	h := newHarness(t, store, Options{})

	assert.Panics(t, func() {
		_, _ = h.intake.Reserve(context.Background(), validRequest())
	})

	done := make(chan error, 1)
	go func() {
		_, err := h.intake.Reserve(context.Background(), validRequest())
		done <- err
	}()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("property lock still held after a panic")
	}
}
