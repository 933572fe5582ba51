package models

import (
	"maps"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// RentalState is one of the lifecycle states of a rental deal
type RentalState string

// RentalEvent names a lifecycle transition
type RentalEvent string

// RentalRecord represents one tenancy deal from reservation to handover
type RentalRecord struct {
	ID             string                              `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	PropertyID     string                              `gorm:"column:property_id;not null;index" json:"propertyId"`
	UnitID         string                              `gorm:"column:unit_id;index" json:"unitId,omitempty"`
	TenantID       string                              `gorm:"column:tenant_id;index" json:"tenantId"`
	ReservationID  string                              `gorm:"column:reservation_id;index" json:"reservationId,omitempty"`
	Amount         decimal.Decimal                     `gorm:"column:amount;type:numeric(14,2)" json:"amount"`
	Currency       string                              `gorm:"column:currency;type:varchar(3);default:'EUR'" json:"currency"`
	State          RentalState                         `gorm:"column:state;not null;index" json:"state"`
	Docs           datatypes.JSONSlice[RentalDocument] `gorm:"column:docs" json:"docs"`
	Handover       *Handover                           `gorm:"column:handover;type:text;serializer:json" json:"handover,omitempty"`
	History        datatypes.JSONSlice[HistoryEntry]   `gorm:"column:history" json:"history"`
	ContractSerial string                              `gorm:"column:contract_serial" json:"contractSerial,omitempty"`
	Version        int64                               `gorm:"column:version;not null;default:0" json:"version"`
	CreatedAt      time.Time                           `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt      time.Time                           `gorm:"column:updated_at" json:"updatedAt"`
}

// TableName specifies the table name
func (RentalRecord) TableName() string {
	return "rentals"
}

// RentalDocument references an uploaded file; the contents are never interpreted here
type RentalDocument struct {
	Kind       string            `json:"kind"` // passport, income_proof, contract_scan, ...
	Path       string            `json:"path"`
	Fields     datatypes.JSONMap `json:"fields,omitempty"` // OCR/AI extracted values, opaque
	UploadedBy string            `json:"uploadedBy,omitempty"`
	UploadedAt time.Time         `json:"uploadedAt"`
}

// Handover captures the physical handover evidence
type Handover struct {
	Photos        []string       `json:"photos,omitempty"`
	UtilityBills  []string       `json:"utilityBills,omitempty"`
	MeterReadings []MeterReading `json:"meterReadings,omitempty"`
	Notes         []string       `json:"notes,omitempty"`
	CompletedAt   *time.Time     `json:"completedAt,omitempty"`
}

// MeterReading is a single utility meter snapshot
type MeterReading struct {
	Meter     string    `json:"meter"` // electricity, water_cold, gas, ...
	Value     string    `json:"value"`
	ImagePath string    `json:"imagePath,omitempty"`
	ReadAt    time.Time `json:"readAt"`
}

// HistoryEntry is one line of the append-only audit trail
type HistoryEntry struct {
	At      time.Time   `json:"at"`
	ActorID string      `json:"actorId"`
	Event   RentalEvent `json:"event"`
	To      RentalState `json:"to"`
	Note    string      `json:"note,omitempty"`
}

// Clone returns a deep copy of the record
func (r RentalRecord) Clone() RentalRecord {
	cp := r
	if r.Docs != nil {
		docs := make([]RentalDocument, len(r.Docs))
		for i, d := range r.Docs {
			d.Fields = maps.Clone(d.Fields)
			docs[i] = d
		}
		cp.Docs = datatypes.JSONSlice[RentalDocument](docs)
	}
	if r.History != nil {
		cp.History = append(datatypes.JSONSlice[HistoryEntry](nil), r.History...)
	}
	if r.Handover != nil {
		h := r.Handover.Clone()
		cp.Handover = &h
	}
	return cp
}

// Clone returns a deep copy of the handover
func (h Handover) Clone() Handover {
	cp := h
	cp.Photos = append([]string(nil), h.Photos...)
	cp.UtilityBills = append([]string(nil), h.UtilityBills...)
	cp.MeterReadings = append([]MeterReading(nil), h.MeterReadings...)
	cp.Notes = append([]string(nil), h.Notes...)
	if h.CompletedAt != nil {
		t := *h.CompletedAt
		cp.CompletedAt = &t
	}
	return cp
}

// HasParticipant reports whether the user is the tenant or acted on the record
func (r RentalRecord) HasParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	if r.TenantID == userID {
		return true
	}
	for _, h := range r.History {
		if h.ActorID == userID {
			return true
		}
	}
	return false
}
