package invoice

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"
	"github.com/xelth-com/eckrentgo/internal/models"
)

// RenderPDF lays out a one-page A4 invoice with a QR code carrying the
// invoice number and amount
func RenderPDF(inv models.Invoice, res models.Reservation) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	// Header
	pdf.SetFont("Arial", "B", 18)
	pdf.CellFormat(0, 10, "INVOICE "+inv.Number, "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, "Issued: "+inv.CreatedAt.Format("2006-01-02"), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Due: "+inv.DueDate.Format("2006-01-02"), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	// Bill to
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 6, "Bill to", "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 5, res.Contact.Name, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 5, res.Contact.Phone, "", 1, "L", false, 0, "")
	if res.Contact.Email != "" {
		pdf.CellFormat(0, 5, res.Contact.Email, "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	// Lines
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(100, 7, "Description", "1", 0, "L", false, 0, "")
	pdf.CellFormat(20, 7, "Qty", "1", 0, "R", false, 0, "")
	pdf.CellFormat(25, 7, "Unit", "1", 0, "R", false, 0, "")
	pdf.CellFormat(25, 7, "Amount", "1", 1, "R", false, 0, "")

	pdf.SetFont("Arial", "", 9)
	lineTotal := inv.Total.Sub(inv.Deposit)
	pdf.CellFormat(100, 7, inv.Description, "1", 0, "L", false, 0, "")
	pdf.CellFormat(20, 7, fmt.Sprintf("%d", inv.Quantity), "1", 0, "R", false, 0, "")
	pdf.CellFormat(25, 7, inv.UnitPrice.StringFixed(2), "1", 0, "R", false, 0, "")
	pdf.CellFormat(25, 7, lineTotal.StringFixed(2), "1", 1, "R", false, 0, "")
	if !inv.Deposit.IsZero() {
		pdf.CellFormat(145, 7, "Deposit", "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 7, inv.Deposit.StringFixed(2), "1", 1, "R", false, 0, "")
	}

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(145, 8, "Total "+inv.Currency, "1", 0, "R", false, 0, "")
	pdf.CellFormat(25, 8, inv.Total.StringFixed(2), "1", 1, "R", false, 0, "")

	// QR code, bottom right
	qrContent := fmt.Sprintf("INV:%s|%s %s|RES:%s", inv.Number, inv.Total.StringFixed(2), inv.Currency, inv.ReservationID)
	qrPng, err := qrcode.Encode(qrContent, qrcode.Medium, 256)
	if err != nil {
		return nil, err
	}
	imgOptions := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
	pdf.RegisterImageOptionsReader("qr", imgOptions, bytes.NewReader(qrPng))
	pdf.ImageOptions("qr", 150, 230, 40, 40, false, imgOptions, 0, "")
	pdf.SetXY(150, 271)
	pdf.SetFont("Arial", "", 7)
	pdf.CellFormat(40, 4, inv.Number, "", 0, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
