package models

import "time"

// Reservation status constants
const (
	ReservationStatusPending   = "pending"
	ReservationStatusCancelled = "cancelled"
)

// Contact is the person who requested a reservation
type Contact struct {
	Name  string `gorm:"column:name" json:"name"`
	Phone string `gorm:"column:phone" json:"phone"`
	Email string `gorm:"column:email" json:"email,omitempty"`
}

// Reservation is a booking request for a property (and optionally a unit)
type Reservation struct {
	ID         string    `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	PropertyID string    `gorm:"column:property_id;not null;index:idx_reservation_slot" json:"propertyId"`
	UnitID     string    `gorm:"column:unit_id;index:idx_reservation_slot" json:"unitId,omitempty"`
	StartDate  time.Time `gorm:"column:start_date;not null" json:"startDate"`
	Months     int       `gorm:"column:months;default:0" json:"months,omitempty"`
	Days       int       `gorm:"column:days;default:0" json:"days,omitempty"`
	Contact    Contact   `gorm:"embedded;embeddedPrefix:contact_" json:"contact"`
	Note       string    `gorm:"column:note;type:text" json:"note,omitempty"`
	Status     string    `gorm:"column:status;default:'pending';index" json:"status"`
	RentalID   string    `gorm:"column:rental_id;index" json:"rentalId,omitempty"`
	InvoiceRef string    `gorm:"column:invoice_ref" json:"invoiceRef,omitempty"`
	TaskRef    string    `gorm:"column:task_ref" json:"taskRef,omitempty"`
	CreatedBy  string    `gorm:"column:created_by" json:"createdBy,omitempty"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

// TableName specifies the table name
func (Reservation) TableName() string {
	return "reservations"
}
