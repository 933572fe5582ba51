package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Property is the pricing-relevant part of a listing. Listing CRUD lives
// outside the rental core; only the fields needed for invoicing are mapped.
type Property struct {
	ID          string          `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	Title       string          `gorm:"column:title" json:"title"`
	Address     string          `gorm:"column:address" json:"address,omitempty"`
	OwnerID     string          `gorm:"column:owner_id;index" json:"ownerId,omitempty"`
	MonthlyRent decimal.Decimal `gorm:"column:monthly_rent;type:numeric(14,2)" json:"monthlyRent"`
	DailyRent   decimal.Decimal `gorm:"column:daily_rent;type:numeric(14,2)" json:"dailyRent"`
	Deposit     decimal.Decimal `gorm:"column:deposit;type:numeric(14,2)" json:"deposit"`
	Currency    string          `gorm:"column:currency;type:varchar(3);default:'EUR'" json:"currency"`
	CreatedAt   time.Time       `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt   time.Time       `gorm:"column:updated_at" json:"updatedAt"`
}

// TableName specifies the table name
func (Property) TableName() string {
	return "properties"
}

// PropertySnapshot is the read-only pricing view handed to the invoice collaborator
type PropertySnapshot struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	OwnerID     string          `json:"ownerId,omitempty"`
	MonthlyRent decimal.Decimal `json:"monthlyRent"`
	DailyRent   decimal.Decimal `json:"dailyRent"`
	Deposit     decimal.Decimal `json:"deposit"`
	Currency    string          `json:"currency"`
}

// Snapshot returns the pricing view of the property
func (p Property) Snapshot() PropertySnapshot {
	return PropertySnapshot{
		ID:          p.ID,
		Title:       p.Title,
		OwnerID:     p.OwnerID,
		MonthlyRent: p.MonthlyRent,
		DailyRent:   p.DailyRent,
		Deposit:     p.Deposit,
		Currency:    p.Currency,
	}
}
