package rental

import (
	"context"
	"errors"
	"fmt"
	"log"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xelth-com/eckrentgo/internal/models"
	"github.com/xelth-com/eckrentgo/internal/repository"
	"github.com/xelth-com/eckrentgo/internal/serial"
	"github.com/xelth-com/eckrentgo/internal/utils"
	"gorm.io/datatypes"
)

// SerialIssuer numbers contracts when a record reaches contract_generated
type SerialIssuer interface {
	IssueNextSerial(ctx context.Context, kind serial.EntityKind, opts serial.Options) (serial.Serial, error)
}

const defaultSaveRetries = 3

// Machine applies lifecycle events to stored rentals. Calls for the same id
// are serialized in-process; saves are also version-checked so another
// process writing the same record forces a reload.
type Machine struct {
	repo    repository.RentalRepository
	serials SerialIssuer
	locks   *utils.KeyedMutex
	now     func() time.Time
	retries int
}

// NewMachine creates a machine. serials may be nil, in which case contracts
// are not numbered.
func NewMachine(repo repository.RentalRepository, serials SerialIssuer) *Machine {
	return &Machine{
		repo:    repo,
		serials: serials,
		locks:   utils.NewKeyedMutex(),
		now:     func() time.Time { return time.Now().UTC() },
		retries: defaultSaveRetries,
	}
}

// SetClock replaces the clock used for history timestamps
func (m *Machine) SetClock(now func() time.Time) {
	m.now = now
}

// OpenRequest carries what is known about a deal when it is reserved
type OpenRequest struct {
	ID            string
	PropertyID    string
	UnitID        string
	TenantID      string
	ReservationID string
	Amount        decimal.Decimal
	Currency      string
	ActorID       string
	Note          string
}

// NewRecord builds a record in the initial state with its creation entry
func NewRecord(req OpenRequest, now time.Time) models.RentalRecord {
	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}
	currency := req.Currency
	if currency == "" {
		currency = "EUR"
	}
	return models.RentalRecord{
		ID:            id,
		PropertyID:    req.PropertyID,
		UnitID:        req.UnitID,
		TenantID:      req.TenantID,
		ReservationID: req.ReservationID,
		Amount:        req.Amount,
		Currency:      currency,
		State:         InitialState,
		Docs:          datatypes.JSONSlice[models.RentalDocument]{},
		History: datatypes.JSONSlice[models.HistoryEntry]{
			{At: now, ActorID: req.ActorID, Event: EventReserve, To: InitialState, Note: req.Note},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Open creates and stores a new record in the initial state
func (m *Machine) Open(ctx context.Context, req OpenRequest) (models.RentalRecord, error) {
	if req.PropertyID == "" {
		return models.RentalRecord{}, errors.New("property id is required")
	}
	rec := NewRecord(req, m.now())
	if err := m.repo.Create(ctx, &rec); err != nil {
		return models.RentalRecord{}, err
	}
	return rec, nil
}

// Transition applies event to the record and returns the updated copy.
// The stored record is untouched when the event is not valid from its state.
func (m *Machine) Transition(ctx context.Context, id string, event Event, actorID, note string) (models.RentalRecord, error) {
	if _, ok := Transitions[event]; !ok {
		return models.RentalRecord{}, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}

	var contractSerial string
	return m.mutate(ctx, id, func(rec *models.RentalRecord) error {
		to, err := Next(rec.State, event)
		if err != nil {
			return err
		}

		if event == EventGenerateContract && m.serials != nil && rec.ContractSerial == "" {
			// issued once per call even if the save is retried
			if contractSerial == "" {
				s, err := m.serials.IssueNextSerial(ctx, serial.KindContract, serial.Options{ActorID: actorID})
				if err != nil {
					return err
				}
				contractSerial = s.Value
			}
			rec.ContractSerial = contractSerial
		}

		rec.State = to
		rec.History = append(rec.History, models.HistoryEntry{
			At:      m.now(),
			ActorID: actorID,
			Event:   event,
			To:      to,
			Note:    note,
		})
		return nil
	})
}

// AttachDocument appends a document reference. Documents are never removed.
func (m *Machine) AttachDocument(ctx context.Context, id string, doc models.RentalDocument, actorID string) (models.RentalRecord, error) {
	if doc.Path == "" {
		return models.RentalRecord{}, errors.New("document path is required")
	}
	return m.mutate(ctx, id, func(rec *models.RentalRecord) error {
		d := doc
		d.Fields = maps.Clone(doc.Fields)
		if d.UploadedBy == "" {
			d.UploadedBy = actorID
		}
		if d.UploadedAt.IsZero() {
			d.UploadedAt = m.now()
		}
		rec.Docs = append(rec.Docs, d)
		return nil
	})
}

// RecordHandover merges handover evidence into the record. Only allowed once
// the handover is prepared; earlier evidence is always kept.
func (m *Machine) RecordHandover(ctx context.Context, id string, h models.Handover, actorID string) (models.RentalRecord, error) {
	return m.mutate(ctx, id, func(rec *models.RentalRecord) error {
		if rec.State != StateHandoverReady && rec.State != StateHandoverCompleted {
			return &NotAllowedError{State: rec.State, Action: "record handover"}
		}
		merged := models.Handover{}
		if rec.Handover != nil {
			merged = rec.Handover.Clone()
		}
		merged.Photos = append(merged.Photos, h.Photos...)
		merged.UtilityBills = append(merged.UtilityBills, h.UtilityBills...)
		for _, r := range h.MeterReadings {
			if r.ReadAt.IsZero() {
				r.ReadAt = m.now()
			}
			merged.MeterReadings = append(merged.MeterReadings, r)
		}
		merged.Notes = append(merged.Notes, h.Notes...)
		if merged.CompletedAt == nil && h.CompletedAt != nil {
			t := *h.CompletedAt
			merged.CompletedAt = &t
		}
		rec.Handover = &merged
		return nil
	})
}

// mutate runs load -> fn -> save under the per-id lock, reloading when a
// save loses the version check
func (m *Machine) mutate(ctx context.Context, id string, fn func(*models.RentalRecord) error) (models.RentalRecord, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	for attempt := 0; ; attempt++ {
		rec, err := m.repo.Load(ctx, id)
		if err != nil {
			return models.RentalRecord{}, err
		}
		if err := fn(&rec); err != nil {
			return models.RentalRecord{}, err
		}
		err = m.repo.Save(ctx, &rec)
		if err == nil {
			return rec, nil
		}
		if errors.Is(err, repository.ErrVersionConflict) && attempt < m.retries {
			log.Printf("🔁 Rental %s changed concurrently, retrying (%d/%d)", id, attempt+1, m.retries)
			continue
		}
		return models.RentalRecord{}, err
	}
}
