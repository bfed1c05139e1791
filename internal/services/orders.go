package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"qrpos-order-services/internal/order"
	"qrpos-order-services/internal/pricing"
	"qrpos-order-services/internal/realtime"
	"qrpos-order-services/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, evt realtime.Event) error
}

type OrderServiceOptions struct {
	DecrementStock bool
	Now            func() time.Time
}

// OrderService owns every write to orders and payments. Writes to one order
// go through the repository's row lock, and events leave only after commit.
type OrderService struct {
	repo           store.Repository
	events         Publisher
	logger         *zap.Logger
	now            func() time.Time
	decrementStock bool
}

func NewOrderService(repo store.Repository, events Publisher, logger *zap.Logger, opts OrderServiceOptions) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &OrderService{
		repo:           repo,
		events:         events,
		logger:         logger,
		now:            now,
		decrementStock: opts.DecrementStock,
	}
}

type ItemRequest struct {
	MenuItemID int64   `json:"menuItemId" validate:"required,gt=0"`
	Quantity   int32   `json:"qty" validate:"required,gt=0,lte=999"`
	VariantID  *int64  `json:"variantId" validate:"omitempty,gt=0"`
	AddonIDs   []int64 `json:"addonIds" validate:"omitempty,dive,gt=0"`
	Note       *string `json:"note" validate:"omitempty,max=255"`
}

type CustomerInfo struct {
	Name  *string `json:"name" validate:"omitempty,max=100"`
	Phone *string `json:"phone" validate:"omitempty,max=32"`
}

type QROrderRequest struct {
	OutletID      int64         `json:"outletId" validate:"omitempty,gt=0"`
	TableID       *int64        `json:"tableId" validate:"omitempty,gt=0"`
	QRToken       string        `json:"qrToken" validate:"required,max=128"`
	Items         []ItemRequest `json:"items" validate:"dive"`
	Customer      *CustomerInfo `json:"customer"`
	PaymentMethod string        `json:"paymentMethod" validate:"required"`
	Note          *string       `json:"note" validate:"omitempty,max=500"`
}

type POSOrderRequest struct {
	TableID       *int64           `json:"tableId" validate:"omitempty,gt=0"`
	Items         []ItemRequest    `json:"items" validate:"dive"`
	Customer      *CustomerInfo    `json:"customer"`
	PaymentMethod string           `json:"paymentMethod" validate:"required"`
	MarkAsPaid    bool             `json:"markAsPaid"`
	Discount      *decimal.Decimal `json:"discount"`
	Note          *string          `json:"note" validate:"omitempty,max=500"`
}

type OrderResult struct {
	Order   order.Order   `json:"order"`
	Payment order.Payment `json:"payment"`
}

type PaymentInstructions struct {
	Method             order.PaymentMethod `json:"method"`
	Amount             decimal.Decimal     `json:"amount"`
	Currency           string              `json:"currency"`
	Message            string              `json:"message"`
	ProofUploadAllowed bool                `json:"proofUploadAllowed"`
}

type QROrderResult struct {
	OrderResult
	PaymentInstructions PaymentInstructions `json:"paymentInstructions"`
}

func (s *OrderService) CreateQROrder(ctx context.Context, req QROrderRequest) (QROrderResult, error) {
	if len(req.Items) == 0 {
		return QROrderResult{}, order.ErrEmptyOrder
	}

	table, err := s.repo.GetTableByQRToken(ctx, strings.TrimSpace(req.QRToken))
	if err != nil {
		return QROrderResult{}, lookupErr(err, "Table")
	}
	if !table.IsActive || (req.OutletID != 0 && req.OutletID != table.OutletID) ||
		(req.TableID != nil && *req.TableID != table.ID) {
		return QROrderResult{}, order.NotFound("Table")
	}

	outlet, err := s.loadOutlet(ctx, table.OutletID, order.ChannelQR)
	if err != nil {
		return QROrderResult{}, err
	}
	method, err := enabledMethod(outlet, req.PaymentMethod)
	if err != nil {
		return QROrderResult{}, err
	}

	items, totals, err := s.priceItems(ctx, outlet, req.Items, decimal.Zero)
	if err != nil {
		return QROrderResult{}, err
	}

	tableID := table.ID
	o := newOrder(outlet, order.ChannelQR, items, totals)
	o.TableID = &tableID
	o.CustomerName, o.CustomerPhone = customerFields(req.Customer)
	o.Note = trimmedPtr(req.Note)
	o.PaymentMethod = method
	o.Status = order.StatusNew
	o.PaymentStatus = order.PaymentPending

	p := &order.Payment{Method: method, Status: order.PaymentPending, Amount: totals.Total}

	if err := s.create(ctx, o, p); err != nil {
		return QROrderResult{}, err
	}

	return QROrderResult{
		OrderResult:         OrderResult{Order: *o, Payment: *p},
		PaymentInstructions: instructionsFor(outlet, *p),
	}, nil
}

func (s *OrderService) CreatePOSOrder(ctx context.Context, outletID int64, req POSOrderRequest, actor string) (OrderResult, error) {
	if len(req.Items) == 0 {
		return OrderResult{}, order.ErrEmptyOrder
	}

	outlet, err := s.loadOutlet(ctx, outletID, order.ChannelPOS)
	if err != nil {
		return OrderResult{}, err
	}
	method, err := enabledMethod(outlet, req.PaymentMethod)
	if err != nil {
		return OrderResult{}, err
	}

	var tableID *int64
	if req.TableID != nil {
		table, err := s.repo.GetTable(ctx, outlet.ID, *req.TableID)
		if err != nil {
			return OrderResult{}, lookupErr(err, "Table")
		}
		if !table.IsActive {
			return OrderResult{}, order.NotFound("Table")
		}
		id := table.ID
		tableID = &id
	}

	discount := decimal.Zero
	if req.Discount != nil {
		discount = *req.Discount
	}
	items, totals, err := s.priceItems(ctx, outlet, req.Items, discount)
	if err != nil {
		return OrderResult{}, err
	}

	o := newOrder(outlet, order.ChannelPOS, items, totals)
	o.TableID = tableID
	o.CustomerName, o.CustomerPhone = customerFields(req.Customer)
	o.Note = trimmedPtr(req.Note)
	o.PaymentMethod = method
	o.CreatedBy = &actor

	p := &order.Payment{Method: method, Amount: totals.Total}
	switch {
	case req.MarkAsPaid:
		now := s.now()
		p.Status = order.PaymentPaid
		p.ConfirmedAt = &now
		p.ConfirmedBy = &actor
		o.Status = order.StatusAccepted
	case method == order.MethodCash:
		p.Status = order.PaymentUnpaid
		o.Status = order.StatusNew
	default:
		p.Status = order.PaymentPending
		o.Status = order.StatusNew
	}
	o.PaymentStatus = p.Status

	if err := s.create(ctx, o, p); err != nil {
		return OrderResult{}, err
	}
	return OrderResult{Order: *o, Payment: *p}, nil
}

func (s *OrderService) create(ctx context.Context, o *order.Order, p *order.Payment) error {
	if err := s.repo.CreateOrder(ctx, o, p, s.decrementStock); err != nil {
		var stockErr *store.StockError
		if errors.As(err, &stockErr) {
			for i, item := range o.Items {
				if item.MenuItemID == stockErr.MenuItemID {
					return order.InvalidItem("Insufficient stock for "+item.NameSnapshot, i)
				}
			}
			return order.InvalidItem("Insufficient stock", -1)
		}
		return fmt.Errorf("create order: %w", err)
	}

	s.logger.Info("order created",
		zap.Int64("outletId", o.OutletID),
		zap.Int64("orderId", o.ID),
		zap.String("orderCode", o.Code),
		zap.String("channel", string(o.Channel)),
		zap.String("paymentStatus", string(p.Status)),
	)
	s.publish(ctx, realtime.EventOrderCreated, *o, *p)
	return nil
}

func (s *OrderService) loadOutlet(ctx context.Context, outletID int64, channel order.Channel) (order.Outlet, error) {
	outlet, err := s.repo.GetOutlet(ctx, outletID)
	if err != nil {
		return order.Outlet{}, lookupErr(err, "Outlet")
	}
	if !outlet.IsActive {
		return order.Outlet{}, order.NotFound("Outlet")
	}
	if !outlet.OrderMode.Allows(channel) {
		return order.Outlet{}, order.ErrChannelNotEnabled
	}
	return outlet, nil
}

func enabledMethod(outlet order.Outlet, raw string) (order.PaymentMethod, error) {
	method, ok := order.ParsePaymentMethod(raw)
	if !ok {
		return "", order.Validation("Unknown payment method: " + raw)
	}
	if !outlet.MethodEnabled(method) {
		return "", order.ErrPaymentMethodNotEnabled
	}
	return method, nil
}

// priceItems validates the requested lines against the live menu, copies
// what the order needs into snapshots and prices the result.
func (s *OrderService) priceItems(ctx context.Context, outlet order.Outlet, reqs []ItemRequest, discount decimal.Decimal) ([]order.LineItem, pricing.Totals, error) {
	ids := make([]int64, 0, len(reqs))
	seen := make(map[int64]bool, len(reqs))
	for _, req := range reqs {
		if !seen[req.MenuItemID] {
			seen[req.MenuItemID] = true
			ids = append(ids, req.MenuItemID)
		}
	}
	menu, err := s.repo.GetMenuItems(ctx, outlet.ID, ids)
	if err != nil {
		return nil, pricing.Totals{}, fmt.Errorf("load menu: %w", err)
	}

	wanted := make(map[int64]int, len(ids))
	items := make([]order.LineItem, 0, len(reqs))
	lines := make([]pricing.Line, 0, len(reqs))
	for i, req := range reqs {
		if req.Quantity <= 0 {
			return nil, pricing.Totals{}, order.InvalidItem("Quantity must be at least 1", i)
		}
		menuItem, ok := menu[req.MenuItemID]
		if !ok {
			return nil, pricing.Totals{}, order.InvalidItem("Menu item not found", i)
		}
		if !menuItem.IsActive {
			return nil, pricing.Totals{}, order.InvalidItem(menuItem.Name+" is not available", i)
		}
		wanted[menuItem.ID] += int(req.Quantity)
		if menuItem.Stock != nil && *menuItem.Stock < wanted[menuItem.ID] {
			return nil, pricing.Totals{}, order.InvalidItem(menuItem.Name+" is out of stock", i)
		}

		item, err := snapshotItem(menuItem, req, i)
		if err != nil {
			return nil, pricing.Totals{}, err
		}
		line := item.PricingLine()
		item.UnitPrice = line.UnitPrice()
		item.LineTotal = line.Total()
		items = append(items, item)
		lines = append(lines, line)
	}

	totals, err := pricing.ComputeTotals(lines, outlet.PricingSettings(), discount)
	if err != nil {
		var lineErr *pricing.LineError
		switch {
		case errors.As(err, &lineErr):
			return nil, pricing.Totals{}, order.InvalidItem(lineErr.Reason, lineErr.Index)
		case errors.Is(err, pricing.ErrInvalidDiscount):
			return nil, pricing.Totals{}, order.ErrInvalidDiscount
		}
		return nil, pricing.Totals{}, err
	}
	return items, totals, nil
}

func snapshotItem(menuItem order.MenuItem, req ItemRequest, index int) (order.LineItem, error) {
	item := order.LineItem{
		MenuItemID:        menuItem.ID,
		Quantity:          req.Quantity,
		NameSnapshot:      menuItem.Name,
		BasePriceSnapshot: menuItem.Price,
		VariantDelta:      decimal.Zero,
		AddonsSnapshot:    []order.AddonSnapshot{},
		Note:              trimmedPtr(req.Note),
	}

	if req.VariantID != nil {
		variant, ok := menuItem.Variant(*req.VariantID)
		if !ok || !variant.IsActive {
			return order.LineItem{}, order.InvalidItem("Variant is not available for "+menuItem.Name, index)
		}
		id, name := variant.ID, variant.Name
		item.VariantID = &id
		item.VariantSnapshot = &name
		item.VariantDelta = variant.PriceDelta
	}

	for _, addonID := range req.AddonIDs {
		addon, ok := menuItem.Addon(addonID)
		if !ok || !addon.IsActive {
			return order.LineItem{}, order.InvalidItem("Addon is not available for "+menuItem.Name, index)
		}
		item.AddonsSnapshot = append(item.AddonsSnapshot, order.AddonSnapshot{
			AddonID: addon.ID,
			Name:    addon.Name,
			Price:   addon.Price,
		})
	}
	return item, nil
}

func newOrder(outlet order.Outlet, channel order.Channel, items []order.LineItem, totals pricing.Totals) *order.Order {
	o := &order.Order{
		OutletID:    outlet.ID,
		Channel:     channel,
		Items:       items,
		TaxRate:     outlet.TaxRate,
		ServiceRate: outlet.ServiceRate,
		Rounding:    outlet.Rounding,
	}
	o.ApplyTotals(totals)
	return o
}

func customerFields(c *CustomerInfo) (string, *string) {
	if c == nil {
		return order.GuestCustomerName, nil
	}
	name := order.GuestCustomerName
	if c.Name != nil && strings.TrimSpace(*c.Name) != "" {
		name = strings.TrimSpace(*c.Name)
	}
	return name, trimmedPtr(c.Phone)
}

func instructionsFor(outlet order.Outlet, p order.Payment) PaymentInstructions {
	out := PaymentInstructions{Method: p.Method, Amount: p.Amount, Currency: outlet.Currency}
	switch p.Method {
	case order.MethodCash:
		out.Message = "Please pay at the cashier. Your order goes to the kitchen once payment is confirmed."
	case order.MethodTransfer:
		out.Message = "Transfer the exact amount, then upload your receipt. The cashier will confirm it."
		out.ProofUploadAllowed = true
	case order.MethodQR:
		out.Message = "Scan the QRIS code at the cashier and show the payment screen."
		out.ProofUploadAllowed = true
	}
	return out
}

func lookupErr(err error, what string) error {
	if _, ok := order.AsError(err); ok {
		return err
	}
	if errors.Is(err, store.ErrNotFound) {
		return order.NotFound(what)
	}
	return fmt.Errorf("load %s: %w", strings.ToLower(what), err)
}

func (s *OrderService) publish(ctx context.Context, name string, o order.Order, p order.Payment) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, realtime.NewEvent(name, o, p)); err != nil {
		s.logger.Debug("event delivery incomplete", zap.String("event", name), zap.Int64("orderId", o.ID), zap.Error(err))
	}
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
