package order

import (
	"fmt"
	"strings"
	"time"

	"qrpos-order-services/internal/pricing"

	"github.com/shopspring/decimal"
)

type Channel string

const (
	ChannelQR  Channel = "QR"
	ChannelPOS Channel = "POS"
)

type OrderMode string

const (
	ModeQROnly   OrderMode = "QR_ONLY"
	ModePOSOnly  OrderMode = "POS_ONLY"
	ModeQRAndPOS OrderMode = "QR_AND_POS"
)

func (m OrderMode) Allows(channel Channel) bool {
	switch m {
	case ModeQROnly:
		return channel == ChannelQR
	case ModePOSOnly:
		return channel == ChannelPOS
	case ModeQRAndPOS, "":
		return channel == ChannelQR || channel == ChannelPOS
	}
	return false
}

type PaymentMethod string

const (
	MethodCash     PaymentMethod = "CASH"
	MethodTransfer PaymentMethod = "TRANSFER"
	MethodQR       PaymentMethod = "QR"
)

func ParsePaymentMethod(value string) (PaymentMethod, bool) {
	method := PaymentMethod(strings.ToUpper(strings.TrimSpace(value)))
	switch method {
	case MethodCash, MethodTransfer, MethodQR:
		return method, true
	}
	return "", false
}

const GuestCustomerName = "GUEST"

// FormatCode renders the human readable order code from the per-outlet,
// per-channel sequence, e.g. Q-00042.
func FormatCode(channel Channel, seq int64) string {
	prefix := "P"
	if channel == ChannelQR {
		prefix = "Q"
	}
	return fmt.Sprintf("%s-%05d", prefix, seq)
}

// Outlet carries the fiscal and ordering settings the core reads but never
// writes.
type Outlet struct {
	ID             int64
	Code           string
	Name           string
	Currency       string
	Timezone       string
	TaxRate        decimal.Decimal
	ServiceRate    decimal.Decimal
	Rounding       pricing.RoundingRule
	PaymentMethods []PaymentMethod
	OrderMode      OrderMode
	IsActive       bool
}

func (o Outlet) PricingSettings() pricing.Settings {
	return pricing.Settings{TaxRate: o.TaxRate, ServiceRate: o.ServiceRate, Rounding: o.Rounding}
}

func (o Outlet) MethodEnabled(method PaymentMethod) bool {
	for _, m := range o.PaymentMethods {
		if m == method {
			return true
		}
	}
	return false
}

type Table struct {
	ID       int64
	OutletID int64
	Label    string
	QRToken  string
	IsActive bool
}

type MenuVariant struct {
	ID         int64
	Name       string
	PriceDelta decimal.Decimal
	IsActive   bool
}

type MenuAddon struct {
	ID       int64
	Name     string
	Price    decimal.Decimal
	IsActive bool
}

// MenuItem is the live catalogue row. Orders never reference it after
// creation; they copy what they need into LineItem.
type MenuItem struct {
	ID       int64
	OutletID int64
	Name     string
	Price    decimal.Decimal
	IsActive bool
	Stock    *int
	Variants []MenuVariant
	Addons   []MenuAddon
}

func (m MenuItem) Variant(id int64) (MenuVariant, bool) {
	for _, v := range m.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return MenuVariant{}, false
}

func (m MenuItem) Addon(id int64) (MenuAddon, bool) {
	for _, a := range m.Addons {
		if a.ID == id {
			return a, true
		}
	}
	return MenuAddon{}, false
}

type AddonSnapshot struct {
	AddonID int64           `json:"addonId"`
	Name    string          `json:"nameSnapshot"`
	Price   decimal.Decimal `json:"priceSnapshot"`
}

type LineItem struct {
	ID                int64           `json:"id"`
	MenuItemID        int64           `json:"menuItemId"`
	Quantity          int32           `json:"quantity"`
	NameSnapshot      string          `json:"nameSnapshot"`
	BasePriceSnapshot decimal.Decimal `json:"basePriceSnapshot"`
	VariantID         *int64          `json:"variantId"`
	VariantSnapshot   *string         `json:"variantNameSnapshot"`
	VariantDelta      decimal.Decimal `json:"variantPriceSnapshot"`
	AddonsSnapshot    []AddonSnapshot `json:"addonsSnapshot"`
	UnitPrice         decimal.Decimal `json:"unitPrice"`
	LineTotal         decimal.Decimal `json:"lineTotal"`
	Note              *string         `json:"note"`
}

func (l LineItem) PricingLine() pricing.Line {
	addons := make([]decimal.Decimal, 0, len(l.AddonsSnapshot))
	for _, a := range l.AddonsSnapshot {
		addons = append(addons, a.Price)
	}
	return pricing.Line{
		BasePrice:    l.BasePriceSnapshot,
		VariantDelta: l.VariantDelta,
		AddonPrices:  addons,
		Quantity:     l.Quantity,
	}
}

type Order struct {
	ID            int64                `json:"id"`
	Code          string               `json:"orderCode"`
	OutletID      int64                `json:"outletId"`
	TableID       *int64               `json:"tableId"`
	Channel       Channel              `json:"channel"`
	CustomerName  string               `json:"customerName"`
	CustomerPhone *string              `json:"customerPhone"`
	Items         []LineItem           `json:"items"`
	Subtotal      decimal.Decimal      `json:"subtotal"`
	Discount      decimal.Decimal      `json:"discount"`
	Tax           decimal.Decimal      `json:"tax"`
	Service       decimal.Decimal      `json:"service"`
	Total         decimal.Decimal      `json:"total"`
	TaxRate       decimal.Decimal      `json:"taxRate"`
	ServiceRate   decimal.Decimal      `json:"serviceRate"`
	Rounding      pricing.RoundingRule `json:"rounding"`
	Status        Status               `json:"status"`
	PaymentStatus PaymentStatus        `json:"paymentStatus"`
	PaymentMethod PaymentMethod        `json:"paymentMethod"`
	Note          *string              `json:"note"`
	CreatedBy     *string              `json:"createdBy"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

func (o *Order) ApplyTotals(t pricing.Totals) {
	o.Subtotal = t.Subtotal
	o.Discount = t.Discount
	o.Tax = t.Tax
	o.Service = t.Service
	o.Total = t.Total
}

// Recalculate is the explicit path for recomputing totals from the stored
// snapshots and the rates captured at creation.
func (o *Order) Recalculate() error {
	lines := make([]pricing.Line, 0, len(o.Items))
	for _, item := range o.Items {
		lines = append(lines, item.PricingLine())
	}
	totals, err := pricing.ComputeTotals(lines, pricing.Settings{
		TaxRate:     o.TaxRate,
		ServiceRate: o.ServiceRate,
		Rounding:    o.Rounding,
	}, o.Discount)
	if err != nil {
		return err
	}
	o.ApplyTotals(totals)
	return nil
}

type Payment struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"orderId"`
	Method      PaymentMethod   `json:"method"`
	Status      PaymentStatus   `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	ConfirmedAt *time.Time      `json:"confirmedAt"`
	ConfirmedBy *string         `json:"confirmedBy"`
	RefundedAt  *time.Time      `json:"refundedAt"`
	RefundedBy  *string         `json:"refundedBy"`
	ProofURL    *string         `json:"proofUrl"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}
