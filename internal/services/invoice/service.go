package invoice

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xelth-com/eckrentgo/internal/models"
	"github.com/xelth-com/eckrentgo/internal/repository"
	"github.com/xelth-com/eckrentgo/internal/serial"
	"gorm.io/gorm"
)

// Numberer issues invoice numbers
type Numberer interface {
	IssueNextSerial(ctx context.Context, kind serial.EntityKind, opts serial.Options) (serial.Serial, error)
}

// Config holds invoice settings
type Config struct {
	PDFDir          string // empty disables PDF rendering
	DueDays         int
	DefaultCurrency string
}

// Service issues invoices for reservations
type Service struct {
	db      *gorm.DB
	numbers Numberer
	cfg     Config
	now     func() time.Time
}

// NewService creates the invoice service
func NewService(db *gorm.DB, numbers Numberer, cfg Config) *Service {
	if cfg.DueDays <= 0 {
		cfg.DueDays = 7
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "EUR"
	}
	return &Service{
		db:      db,
		numbers: numbers,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Price returns quantity, unit price and description for a reservation:
// whole months at the monthly rent, else days at the daily rent, else one day.
func Price(res models.Reservation, p models.PropertySnapshot) (int, decimal.Decimal, string) {
	switch {
	case res.Months > 0:
		return res.Months, p.MonthlyRent, fmt.Sprintf("Rent %s, %d month(s) from %s", label(p), res.Months, res.StartDate.Format("2006-01-02"))
	case res.Days > 0:
		return res.Days, p.DailyRent, fmt.Sprintf("Rent %s, %d day(s) from %s", label(p), res.Days, res.StartDate.Format("2006-01-02"))
	default:
		return 1, p.DailyRent, fmt.Sprintf("Rent %s, 1 day on %s", label(p), res.StartDate.Format("2006-01-02"))
	}
}

func label(p models.PropertySnapshot) string {
	if p.Title != "" {
		return p.Title
	}
	return p.ID
}

// IssueInvoice numbers, stores and (optionally) renders the invoice and
// returns its number
func (s *Service) IssueInvoice(ctx context.Context, res models.Reservation, p models.PropertySnapshot) (string, error) {
	qty, unit, desc := Price(res, p)
	currency := p.Currency
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}

	number, err := s.numbers.IssueNextSerial(ctx, serial.KindInvoice, serial.Options{ActorID: res.CreatedBy})
	if err != nil {
		return "", fmt.Errorf("number invoice: %w", err)
	}

	now := s.now()
	inv := models.Invoice{
		ID:            uuid.New().String(),
		Number:        number.Value,
		ReservationID: res.ID,
		PropertyID:    res.PropertyID,
		Description:   desc,
		Quantity:      qty,
		UnitPrice:     unit,
		Deposit:       p.Deposit,
		Total:         unit.Mul(decimal.NewFromInt(int64(qty))).Add(p.Deposit),
		Currency:      currency,
		Status:        models.InvoiceStatusIssued,
		DueDate:       now.AddDate(0, 0, s.cfg.DueDays),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if s.cfg.PDFDir != "" {
		path, err := s.writePDF(inv, res)
		if err != nil {
			// the invoice stays valid without its printout
			log.Printf("⚠️ Invoice %s: PDF rendering failed: %v", inv.Number, err)
		} else {
			inv.PDFPath = path
		}
	}

	if err := s.db.WithContext(ctx).Create(&inv).Error; err != nil {
		return "", &repository.StorageError{Op: "create invoice", Err: err}
	}
	log.Printf("🧾 Invoice %s issued for reservation %s (%s %s)", inv.Number, res.ID, inv.Total.StringFixed(2), inv.Currency)
	return inv.Number, nil
}

func (s *Service) writePDF(inv models.Invoice, res models.Reservation) (string, error) {
	data, err := RenderPDF(inv, res)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.cfg.PDFDir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(s.cfg.PDFDir, inv.Number+".pdf")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// Get loads an invoice by number
func (s *Service) Get(ctx context.Context, number string) (models.Invoice, error) {
	var inv models.Invoice
	err := s.db.WithContext(ctx).First(&inv, "number = ?", number).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Invoice{}, fmt.Errorf("invoice %s: %w", number, repository.ErrNotFound)
	}
	if err != nil {
		return models.Invoice{}, &repository.StorageError{Op: "load invoice", Err: err}
	}
	return inv, nil
}
