package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// ReceiptLine is a single settled installment on a receipt.
type ReceiptLine struct {
	Sequence    int
	PeriodLabel string
	DueDate     time.Time
	Amount      float64
	WasOverdue  bool
}

// ReceiptData carries everything needed to render a payment receipt.
type ReceiptData struct {
	PaymentID   string
	OrderID     string
	UserName    string
	UserEmail   string
	CourseName  string
	PaymentDate time.Time
	Currency    string
	Amount      float64
	Lines       []ReceiptLine
}

// ReceiptExporter renders payment receipts as PDF documents.
type ReceiptExporter struct{}

// NewReceiptExporter builds a receipt exporter.
func NewReceiptExporter() *ReceiptExporter {
	return &ReceiptExporter{}
}

// Render produces a PDF receipt for a settled payment.
func (e *ReceiptExporter) Render(data ReceiptData) ([]byte, error) {
	if data.PaymentID == "" {
		return nil, fmt.Errorf("receipt requires a payment id")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, "PAYMENT RECEIPT", "", 1, "C", false, 0, "")
	pdf.Ln(3)

	pdf.SetFont("Arial", "", 10)
	writeField := func(label, value string) {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(45, 7, label, "", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 7, value, "", 1, "", false, 0, "")
	}

	writeField("Receipt No.", data.PaymentID)
	writeField("Order Ref.", data.OrderID)
	writeField("Date", data.PaymentDate.Format("02 Jan 2006 15:04"))
	writeField("Billed To", fmt.Sprintf("%s (%s)", data.UserName, data.UserEmail))
	writeField("Course", data.CourseName)
	pdf.Ln(5)

	if len(data.Lines) > 0 {
		headers := []string{"#", "Period", "Due Date", "Amount", "Status"}
		widths := []float64{15, 50, 45, 45, 35}

		pdf.SetFont("Arial", "B", 10)
		for i, header := range headers {
			pdf.CellFormat(widths[i], 8, header, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Arial", "", 9)
		for _, line := range data.Lines {
			status := "on time"
			if line.WasOverdue {
				status = "overdue"
			}
			pdf.CellFormat(widths[0], 7, fmt.Sprintf("%d", line.Sequence), "1", 0, "C", false, 0, "")
			pdf.CellFormat(widths[1], 7, line.PeriodLabel, "1", 0, "", false, 0, "")
			pdf.CellFormat(widths[2], 7, line.DueDate.Format("02 Jan 2006"), "1", 0, "", false, 0, "")
			pdf.CellFormat(widths[3], 7, formatAmount(data.Currency, line.Amount), "1", 0, "R", false, 0, "")
			pdf.CellFormat(widths[4], 7, status, "1", 0, "C", false, 0, "")
			pdf.Ln(-1)
		}
		pdf.Ln(3)
	}

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 8, "Total Paid: "+formatAmount(data.Currency, data.Amount), "", 1, "R", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render receipt pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func formatAmount(currency string, amount float64) string {
	if currency == "" {
		currency = "INR"
	}
	return fmt.Sprintf("%s %s", strings.ToUpper(currency), fmt.Sprintf("%.2f", amount))
}
