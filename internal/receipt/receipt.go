// Package receipt renders printable order receipts.
package receipt

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"qrpos-order-services/internal/order"
	"qrpos-order-services/internal/utils"

	"github.com/phpdave11/gofpdf"
	"github.com/shopspring/decimal"
)

const timeLayout = "2006-01-02 15:04"

type Data struct {
	Outlet     order.Outlet
	Order      order.Order
	Payment    order.Payment
	TableLabel string
}

// RenderPDF draws the receipt from the order's snapshots only, so a reprint
// matches what the customer was charged even after menu edits.
func RenderPDF(data Data) ([]byte, error) {
	o, p, outlet := data.Order, data.Payment, data.Outlet
	money := func(v decimal.Decimal) string { return formatCurrency(v, outlet.Currency) }

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(12, 12, 12)
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 8, outlet.Name, "", 1, "C", false, 0, "")

	pdf.Ln(2)
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 6, fmt.Sprintf("Order %s", o.Code), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 5, string(o.Channel), "", 1, "C", false, 0, "")
	if data.TableLabel != "" {
		pdf.CellFormat(0, 5, fmt.Sprintf("Table %s", data.TableLabel), "", 1, "C", false, 0, "")
	}
	pdf.CellFormat(0, 5, fmt.Sprintf("Customer: %s", o.CustomerName), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 5, fmt.Sprintf("Placed: %s", utils.FormatInTimezone(o.CreatedAt, outlet.Timezone, timeLayout)), "", 1, "C", false, 0, "")
	if p.ConfirmedAt != nil {
		pdf.CellFormat(0, 5, fmt.Sprintf("Paid: %s", utils.FormatInTimezone(*p.ConfirmedAt, outlet.Timezone, timeLayout)), "", 1, "C", false, 0, "")
	}

	pdf.Ln(3)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(0, 6, "Items", "B", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	for _, item := range o.Items {
		name := item.NameSnapshot
		if item.VariantSnapshot != nil {
			name += " (" + *item.VariantSnapshot + ")"
		}
		pdf.CellFormat(140, 5, fmt.Sprintf("%dx %s", item.Quantity, name), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 5, money(item.LineTotal), "", 1, "R", false, 0, "")
		for _, addon := range item.AddonsSnapshot {
			pdf.CellFormat(0, 4, fmt.Sprintf("  + %s (%s)", addon.Name, money(addon.Price)), "", 1, "L", false, 0, "")
		}
		if item.Note != nil {
			pdf.MultiCell(0, 4, fmt.Sprintf("  Notes: %s", *item.Note), "", "L", false)
		}
		pdf.Ln(1)
	}

	pdf.Ln(2)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(0, 6, "Totals", "B", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	totalLine(pdf, "Subtotal", money(o.Subtotal))
	if o.Discount.IsPositive() {
		totalLine(pdf, "Discount", "-"+money(o.Discount))
	}
	if o.Tax.IsPositive() {
		totalLine(pdf, fmt.Sprintf("Tax (%s%%)", o.TaxRate.String()), money(o.Tax))
	}
	if o.Service.IsPositive() {
		totalLine(pdf, fmt.Sprintf("Service (%s%%)", o.ServiceRate.String()), money(o.Service))
	}
	pdf.SetFont("Arial", "B", 11)
	totalLine(pdf, "Total", money(o.Total))

	pdf.Ln(2)
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 5, fmt.Sprintf("Payment: %s", p.Method), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 5, fmt.Sprintf("Status: %s", p.Status), "", 1, "L", false, 0, "")
	if p.ConfirmedBy != nil {
		pdf.CellFormat(0, 5, fmt.Sprintf("Cashier: %s", *p.ConfirmedBy), "", 1, "L", false, 0, "")
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func totalLine(pdf *gofpdf.Fpdf, label, value string) {
	pdf.CellFormat(140, 5, label, "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 5, value, "", 1, "R", false, 0, "")
}

func formatCurrency(amount decimal.Decimal, currency string) string {
	if currency == "" || strings.EqualFold(currency, "IDR") {
		return "Rp" + amount.StringFixed(0)
	}
	return fmt.Sprintf("%s %s", currency, amount.StringFixed(2))
}

var unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

func Filename(outlet order.Outlet, o order.Order) string {
	clean := func(v string) string { return strings.Trim(unsafeFilename.ReplaceAllString(v, "_"), "_") }
	return fmt.Sprintf("receipt_%s_%s.pdf", clean(outlet.Code), clean(o.Code))
}
