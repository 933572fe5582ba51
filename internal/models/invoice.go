package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice status constants
const (
	InvoiceStatusIssued = "issued"
	InvoiceStatusPaid   = "paid"
	InvoiceStatusVoid   = "void"
)

// Invoice is issued for a reservation by the invoicing collaborator
type Invoice struct {
	ID            string          `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	Number        string          `gorm:"column:number;uniqueIndex;not null" json:"number"`
	ReservationID string          `gorm:"column:reservation_id;index" json:"reservationId"`
	PropertyID    string          `gorm:"column:property_id;index" json:"propertyId"`
	Description   string          `gorm:"column:description;type:text" json:"description"`
	Quantity      int             `gorm:"column:quantity" json:"quantity"`
	UnitPrice     decimal.Decimal `gorm:"column:unit_price;type:numeric(14,2)" json:"unitPrice"`
	Deposit       decimal.Decimal `gorm:"column:deposit;type:numeric(14,2)" json:"deposit"`
	Total         decimal.Decimal `gorm:"column:total;type:numeric(14,2)" json:"total"`
	Currency      string          `gorm:"column:currency;type:varchar(3)" json:"currency"`
	Status        string          `gorm:"column:status;default:'issued'" json:"status"`
	DueDate       time.Time       `gorm:"column:due_date" json:"dueDate"`
	PDFPath       string          `gorm:"column:pdf_path" json:"pdfPath,omitempty"`
	CreatedAt     time.Time       `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt     time.Time       `gorm:"column:updated_at" json:"updatedAt"`
}

// TableName specifies the table name
func (Invoice) TableName() string {
	return "invoices"
}
