package receipt

import (
	"bytes"
	"testing"
	"time"

	"qrpos-order-services/internal/order"

	"github.com/shopspring/decimal"
)

func sampleData() Data {
	confirmed := time.Date(2026, 4, 1, 5, 30, 0, 0, time.UTC)
	cashier := "cashier-7"
	jumbo := "Jumbo"
	return Data{
		Outlet: order.Outlet{ID: 1, Code: "DEMO", Name: "Warung Demo", Currency: "IDR", Timezone: "Asia/Jakarta"},
		Order: order.Order{
			Code:         "P-00012",
			Channel:      order.ChannelPOS,
			CustomerName: order.GuestCustomerName,
			Items: []order.LineItem{{
				Quantity:        1,
				NameSnapshot:    "Nasi Goreng",
				VariantSnapshot: &jumbo,
				AddonsSnapshot:  []order.AddonSnapshot{{AddonID: 1, Name: "Telur Ceplok", Price: decimal.NewFromInt(4000)}},
				LineTotal:       decimal.NewFromInt(34000),
			}},
			Subtotal:    decimal.NewFromInt(34000),
			Tax:         decimal.NewFromInt(3400),
			TaxRate:     decimal.NewFromInt(10),
			Service:     decimal.Zero,
			ServiceRate: decimal.Zero,
			Total:       decimal.NewFromInt(37400),
			CreatedAt:   confirmed.Add(-time.Minute),
		},
		Payment:    order.Payment{Method: order.MethodCash, Status: order.PaymentPaid, ConfirmedAt: &confirmed, ConfirmedBy: &cashier},
		TableLabel: "A1",
	}
}

func TestRenderPDF(t *testing.T) {
	out, err := RenderPDF(sampleData())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF")) {
		t.Fatalf("output is not a PDF")
	}
}

func TestFormatCurrency(t *testing.T) {
	cases := []struct {
		amount   decimal.Decimal
		currency string
		want     string
	}{
		{decimal.NewFromInt(38000), "IDR", "Rp38000"},
		{decimal.NewFromInt(38000), "", "Rp38000"},
		{decimal.RequireFromString("12.5"), "USD", "USD 12.50"},
	}
	for _, tc := range cases {
		if got := formatCurrency(tc.amount, tc.currency); got != tc.want {
			t.Fatalf("expected %q, got %q", tc.want, got)
		}
	}
}

func TestFilename(t *testing.T) {
	got := Filename(order.Outlet{Code: "Demo Outlet!"}, order.Order{Code: "P-00012"})
	if got != "receipt_Demo_Outlet_P-00012.pdf" {
		t.Fatalf("unexpected filename %q", got)
	}
}
