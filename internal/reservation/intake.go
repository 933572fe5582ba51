// Package reservation turns a booking request into a stored reservation and
// a rental in its initial state, then hands off to invoicing, notification
// and task collaborators.
package reservation

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xelth-com/eckrentgo/internal/booking"
	"github.com/xelth-com/eckrentgo/internal/models"
	"github.com/xelth-com/eckrentgo/internal/rental"
	"github.com/xelth-com/eckrentgo/internal/repository"
	"github.com/xelth-com/eckrentgo/internal/utils"
)

// ValidationError reports malformed input. Nothing is stored.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError lists the reservations a request overlaps. Nothing is stored.
type ConflictError struct {
	Conflicts []models.Reservation
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("booking conflicts with %d existing reservation(s)", len(e.Conflicts))
}

// PropertyLookup provides the pricing view of a property
type PropertyLookup interface {
	Snapshot(ctx context.Context, propertyID string) (models.PropertySnapshot, error)
}

// InvoiceIssuer issues an invoice and returns its reference
type InvoiceIssuer interface {
	IssueInvoice(ctx context.Context, res models.Reservation, property models.PropertySnapshot) (string, error)
}

// Notifier delivers a message; delivery problems are its own concern
type Notifier interface {
	Notify(ctx context.Context, kind, target, message string, data map[string]interface{})
}

// TaskCreator opens a follow-up task and returns its reference
type TaskCreator interface {
	CreateFollowUpTask(ctx context.Context, title, description string, due time.Time, data map[string]interface{}) (string, error)
}

// Collaborators are the downstream services. Any of them may be nil.
type Collaborators struct {
	Properties PropertyLookup
	Invoices   InvoiceIssuer
	Notifier   Notifier
	Tasks      TaskCreator
}

// Options tune the intake
type Options struct {
	// Async runs follow-ups on a background goroutine after Reserve returns
	Async        bool
	TaskDueAfter time.Duration
}

// Request is a booking request
type Request struct {
	PropertyID string          `json:"propertyId"`
	UnitID     string          `json:"unitId,omitempty"`
	TenantID   string          `json:"tenantId,omitempty"`
	Contact    models.Contact  `json:"contact"`
	StartDate  string          `json:"startDate"`
	Months     int             `json:"months,omitempty"`
	Days       int             `json:"days,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency,omitempty"`
	Note       string          `json:"note,omitempty"`
	ActorID    string          `json:"-"`
}

// Result is what Reserve created. With synchronous follow-ups the
// reservation already carries its invoice and task references.
type Result struct {
	Reservation models.Reservation  `json:"reservation"`
	Rental      models.RentalRecord `json:"rental"`
}

// Intake is the reservation entry point
type Intake struct {
	store  repository.Store
	collab Collaborators
	opts   Options
	locks  *utils.KeyedMutex
	now    func() time.Time
	wg     sync.WaitGroup
}

// NewIntake wires the intake flow
func NewIntake(store repository.Store, collab Collaborators, opts Options) *Intake {
	if opts.TaskDueAfter <= 0 {
		opts.TaskDueAfter = 24 * time.Hour
	}
	return &Intake{
		store:  store,
		collab: collab,
		opts:   opts,
		locks:  utils.NewKeyedMutex(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the clock used for timestamps
func (in *Intake) SetClock(now func() time.Time) {
	in.now = now
}

// Wait blocks until background follow-ups have finished
func (in *Intake) Wait() {
	in.wg.Wait()
}

// LockKey is the critical-section key of a booking. Property level, because
// a booking without a unit overlaps every unit of the property.
func LockKey(propertyID string) string {
	return "booking:" + propertyID
}

func (r Request) validate() (time.Time, error) {
	if strings.TrimSpace(r.PropertyID) == "" {
		return time.Time{}, &ValidationError{Field: "propertyId", Reason: "required"}
	}
	if strings.TrimSpace(r.Contact.Name) == "" {
		return time.Time{}, &ValidationError{Field: "contact.name", Reason: "required"}
	}
	if strings.TrimSpace(r.Contact.Phone) == "" {
		return time.Time{}, &ValidationError{Field: "contact.phone", Reason: "required"}
	}
	if r.Months < 0 {
		return time.Time{}, &ValidationError{Field: "months", Reason: "must not be negative"}
	}
	if r.Days < 0 {
		return time.Time{}, &ValidationError{Field: "days", Reason: "must not be negative"}
	}
	start, err := booking.ParseDate(r.StartDate)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "startDate", Reason: err.Error()}
	}
	return start, nil
}

// Reserve validates the request, checks it against existing bookings and
// stores the reservation together with its rental. Follow-ups never fail
// the call.
func (in *Intake) Reserve(ctx context.Context, req Request) (Result, error) {
	start, err := req.validate()
	if err != nil {
		return Result{}, err
	}

	now := in.now()
	res := models.Reservation{
		ID:         uuid.New().String(),
		PropertyID: req.PropertyID,
		UnitID:     req.UnitID,
		StartDate:  start,
		Months:     req.Months,
		Days:       req.Days,
		Contact: models.Contact{
			Name:  strings.TrimSpace(req.Contact.Name),
			Phone: strings.TrimSpace(req.Contact.Phone),
			Email: strings.TrimSpace(req.Contact.Email),
		},
		Note:      req.Note,
		Status:    models.ReservationStatusPending,
		CreatedBy: req.ActorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	rec := rental.NewRecord(rental.OpenRequest{
		PropertyID:    req.PropertyID,
		UnitID:        req.UnitID,
		TenantID:      req.TenantID,
		ReservationID: res.ID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		ActorID:       req.ActorID,
		Note:          req.Note,
	}, now)
	res.RentalID = rec.ID

	query := booking.Query{PropertyID: req.PropertyID, UnitID: req.UnitID, Start: start, Months: req.Months, Days: req.Days}
	if err := in.commit(ctx, query, &res, &rec); err != nil {
		return Result{}, err
	}

	log.Printf("✅ Reservation %s stored for property %s (rental %s)", res.ID, res.PropertyID, rec.ID)

	result := Result{Reservation: res, Rental: rec}
	in.wg.Add(1)
	if in.opts.Async {
		go func() {
			defer in.wg.Done()
			in.followUp(context.WithoutCancel(ctx), res)
		}()
		return result, nil
	}
	defer in.wg.Done()
	result.Reservation = in.followUp(context.WithoutCancel(ctx), res)
	return result, nil
}

// commit checks for conflicts and writes both rows while holding the
// property lock
func (in *Intake) commit(ctx context.Context, query booking.Query, res *models.Reservation, rec *models.RentalRecord) error {
	key := LockKey(query.PropertyID)
	unlock := in.locks.Lock(key)
	defer unlock()
	return in.store.RunInTransaction(ctx, key, func(tx repository.Tx) error {
		if query.Months > 0 || query.Days > 0 {
			existing, err := tx.ListReservations(query.PropertyID)
			if err != nil {
				return err
			}
			if conflicts := booking.FindConflicts(query, existing); len(conflicts) > 0 {
				return &ConflictError{Conflicts: conflicts}
			}
		}
		if err := tx.CreateReservation(res); err != nil {
			return err
		}
		return tx.CreateRental(rec)
	})
}

// followUp runs invoice, notification and task creation in that order and
// returns the reservation with whatever references it obtained.
func (in *Intake) followUp(ctx context.Context, res models.Reservation) (out models.Reservation) {
	out = res
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Reservation %s follow-up panicked: %v", res.ID, r)
		}
	}()

	snapshot := models.PropertySnapshot{ID: res.PropertyID}
	haveSnapshot := in.collab.Properties == nil
	if in.collab.Properties != nil {
		s, err := in.collab.Properties.Snapshot(ctx, res.PropertyID)
		if err != nil {
			log.Printf("⚠️ Reservation %s: property snapshot failed: %v", res.ID, err)
		} else {
			snapshot, haveSnapshot = s, true
		}
	}

	if in.collab.Invoices != nil && haveSnapshot {
		ref, err := in.collab.Invoices.IssueInvoice(ctx, out, snapshot)
		if err != nil {
			log.Printf("⚠️ Reservation %s: invoice failed: %v", res.ID, err)
		} else if err := in.store.UpdateReservationRefs(ctx, res.ID, ref, ""); err != nil {
			log.Printf("⚠️ Reservation %s: storing invoice ref %s failed: %v", res.ID, ref, err)
		} else {
			out.InvoiceRef = ref
		}
	}

	data := map[string]interface{}{
		"reservationId": res.ID,
		"rentalId":      res.RentalID,
		"propertyId":    res.PropertyID,
		"startDate":     res.StartDate.Format("2006-01-02"),
	}
	if out.InvoiceRef != "" {
		data["invoiceRef"] = out.InvoiceRef
	}

	if in.collab.Notifier != nil {
		target := snapshot.OwnerID
		if target == "" {
			target = "agents"
		}
		msg := fmt.Sprintf("New reservation by %s for %s starting %s", res.Contact.Name, propertyLabel(snapshot), res.StartDate.Format("2006-01-02"))
		in.collab.Notifier.Notify(ctx, "reservation_created", target, msg, data)
	}

	if in.collab.Tasks != nil {
		title := fmt.Sprintf("Call %s about reservation", res.Contact.Name)
		desc := fmt.Sprintf("Confirm the reservation of %s with %s (%s).", propertyLabel(snapshot), res.Contact.Name, res.Contact.Phone)
		ref, err := in.collab.Tasks.CreateFollowUpTask(ctx, title, desc, in.now().Add(in.opts.TaskDueAfter), data)
		if err != nil {
			log.Printf("⚠️ Reservation %s: follow-up task failed: %v", res.ID, err)
		} else if err := in.store.UpdateReservationRefs(ctx, res.ID, "", ref); err != nil {
			log.Printf("⚠️ Reservation %s: storing task ref %s failed: %v", res.ID, ref, err)
		} else {
			out.TaskRef = ref
		}
	}
	return out
}

func propertyLabel(s models.PropertySnapshot) string {
	if s.Title != "" {
		return s.Title
	}
	return "property " + s.ID
}
