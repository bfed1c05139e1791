package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"qrpos-order-services/internal/order"
	"qrpos-order-services/internal/pricing"

	"github.com/shopspring/decimal"
)

// Memory keeps everything in process. It backs the tests and development
// runs without DATABASE_URL.
type Memory struct {
	mu        sync.Mutex
	outlets   map[int64]order.Outlet
	tables    map[int64]order.Table
	menu      map[int64]order.MenuItem
	orders    map[int64]*order.Order
	payments  map[int64]*order.Payment
	byOrder   map[int64]int64
	sequences map[string]int64
	nextID    int64
	now       func() time.Time
}

var _ Repository = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		outlets:   make(map[int64]order.Outlet),
		tables:    make(map[int64]order.Table),
		menu:      make(map[int64]order.MenuItem),
		orders:    make(map[int64]*order.Order),
		payments:  make(map[int64]*order.Payment),
		byOrder:   make(map[int64]int64),
		sequences: make(map[string]int64),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// NewSeededMemory returns a store with one demo outlet, two tables and a
// small menu.
func NewSeededMemory() *Memory {
	m := NewMemory()
	m.PutOutlet(order.Outlet{
		ID:             1,
		Code:           "DEMO",
		Name:           "Warung Demo",
		Currency:       "IDR",
		Timezone:       "Asia/Jakarta",
		TaxRate:        decimal.NewFromInt(10),
		ServiceRate:    decimal.NewFromInt(5),
		Rounding:       pricing.RoundingNearest100,
		PaymentMethods: []order.PaymentMethod{order.MethodCash, order.MethodTransfer, order.MethodQR},
		OrderMode:      order.ModeQRAndPOS,
		IsActive:       true,
	})
	m.PutTable(order.Table{ID: 1, OutletID: 1, Label: "T1", QRToken: "demo-table-1", IsActive: true})
	m.PutTable(order.Table{ID: 2, OutletID: 1, Label: "T2", QRToken: "demo-table-2", IsActive: true})
	m.PutMenuItem(order.MenuItem{
		ID: 1, OutletID: 1, Name: "Nasi Goreng", Price: decimal.NewFromInt(25000), IsActive: true,
		Variants: []order.MenuVariant{{ID: 1, Name: "Jumbo", PriceDelta: decimal.NewFromInt(5000), IsActive: true}},
		Addons:   []order.MenuAddon{{ID: 1, Name: "Telur Ceplok", Price: decimal.NewFromInt(4000), IsActive: true}},
	})
	m.PutMenuItem(order.MenuItem{ID: 2, OutletID: 1, Name: "Es Teh", Price: decimal.NewFromInt(8000), IsActive: true})
	return m
}

func (m *Memory) PutOutlet(o order.Outlet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.PaymentMethods = slices.Clone(o.PaymentMethods)
	m.outlets[o.ID] = o
}

func (m *Memory) PutTable(t order.Table) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[t.ID] = t
}

// PutMenuItem inserts or replaces a catalogue row, the way menu management
// would.
func (m *Memory) PutMenuItem(item order.MenuItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.menu[item.ID] = cloneMenuItem(item)
}

func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) GetOutlet(_ context.Context, outletID int64) (order.Outlet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.outlets[outletID]
	if !ok {
		return order.Outlet{}, ErrNotFound
	}
	o.PaymentMethods = slices.Clone(o.PaymentMethods)
	return o, nil
}

func (m *Memory) GetTable(_ context.Context, outletID, tableID int64) (order.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[tableID]
	if !ok || t.OutletID != outletID {
		return order.Table{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) GetTableByQRToken(_ context.Context, qrToken string) (order.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tables {
		if t.QRToken == qrToken {
			return t, nil
		}
	}
	return order.Table{}, ErrNotFound
}

func (m *Memory) GetMenuItems(_ context.Context, outletID int64, ids []int64) (map[int64]order.MenuItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]order.MenuItem, len(ids))
	for _, id := range ids {
		item, ok := m.menu[id]
		if !ok || item.OutletID != outletID {
			continue
		}
		out[id] = cloneMenuItem(item)
	}
	return out, nil
}

func (m *Memory) CreateOrder(_ context.Context, o *order.Order, p *order.Payment, decrementStock bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if decrementStock {
		need := make(map[int64]int)
		for _, item := range o.Items {
			need[item.MenuItemID] += int(item.Quantity)
		}
		for id, qty := range need {
			item, ok := m.menu[id]
			if ok && item.Stock != nil && *item.Stock < qty {
				return &StockError{MenuItemID: id}
			}
		}
		for id, qty := range need {
			item := m.menu[id]
			if item.Stock != nil {
				left := *item.Stock - qty
				item.Stock = &left
				m.menu[id] = item
			}
		}
	}

	seqKey := fmt.Sprintf("%d:%s", o.OutletID, o.Channel)
	m.sequences[seqKey]++

	o.ID = m.newID()
	o.Code = order.FormatCode(o.Channel, m.sequences[seqKey])
	stampCreated(o, p, m.now())
	for i := range o.Items {
		o.Items[i].ID = m.newID()
	}

	p.ID = m.newID()
	p.OrderID = o.ID

	stored := cloneOrder(*o)
	payment := *p
	m.orders[o.ID] = &stored
	m.payments[p.ID] = &payment
	m.byOrder[o.ID] = p.ID
	return nil
}

func (m *Memory) GetOrder(_ context.Context, outletID, orderID int64) (order.Order, order.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked(outletID, orderID)
}

func (m *Memory) GetOrderByCode(_ context.Context, outletID int64, code string) (order.Order, order.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, o := range m.orders {
		if o.OutletID == outletID && o.Code == code {
			return m.loadLocked(outletID, id)
		}
	}
	return order.Order{}, order.Payment{}, ErrNotFound
}

func (m *Memory) GetPayment(_ context.Context, outletID, paymentID int64) (order.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentID]
	if !ok {
		return order.Payment{}, ErrNotFound
	}
	if o, ok := m.orders[p.OrderID]; !ok || o.OutletID != outletID {
		return order.Payment{}, ErrNotFound
	}
	return *p, nil
}

func (m *Memory) ListActiveOrders(_ context.Context, outletID int64) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]order.Order, 0)
	for _, o := range m.orders {
		if o.OutletID == outletID && !o.Status.Terminal() {
			out = append(out, cloneOrder(*o))
		}
	}
	sortByCreated(out)
	return out, nil
}

func (m *Memory) ListStaleOrders(_ context.Context, cutoff time.Time, limit int) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]order.Order, 0)
	for _, o := range m.orders {
		if isStale(o, cutoff) {
			out = append(out, cloneOrder(*o))
		}
	}
	sortByCreated(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) MutateOrder(_ context.Context, outletID, orderID int64, fn MutateFunc) (order.Order, order.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, p, err := m.loadLocked(outletID, orderID)
	if err != nil {
		return order.Order{}, order.Payment{}, err
	}
	changed, err := fn(&o, &p)
	if err != nil {
		return order.Order{}, order.Payment{}, err
	}
	if changed {
		stampUpdated(&o, &p, m.now())
		stored := cloneOrder(o)
		payment := p
		m.orders[o.ID] = &stored
		m.payments[p.ID] = &payment
	}
	return o, p, nil
}

func (m *Memory) loadLocked(outletID, orderID int64) (order.Order, order.Payment, error) {
	o, ok := m.orders[orderID]
	if !ok || o.OutletID != outletID {
		return order.Order{}, order.Payment{}, ErrNotFound
	}
	p, ok := m.payments[m.byOrder[orderID]]
	if !ok {
		return order.Order{}, order.Payment{}, ErrNotFound
	}
	return cloneOrder(*o), *p, nil
}

func (m *Memory) newID() int64 {
	m.nextID++
	return m.nextID
}

func isStale(o *order.Order, cutoff time.Time) bool {
	if o.Status != order.StatusNew || !o.CreatedAt.Before(cutoff) {
		return false
	}
	return o.PaymentStatus == order.PaymentUnpaid || o.PaymentStatus == order.PaymentPending
}

func sortByCreated(orders []order.Order) {
	slices.SortStableFunc(orders, func(a, b order.Order) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

func cloneOrder(o order.Order) order.Order {
	items := make([]order.LineItem, len(o.Items))
	for i, item := range o.Items {
		item.AddonsSnapshot = slices.Clone(item.AddonsSnapshot)
		items[i] = item
	}
	o.Items = items
	return o
}

func cloneMenuItem(item order.MenuItem) order.MenuItem {
	item.Variants = slices.Clone(item.Variants)
	item.Addons = slices.Clone(item.Addons)
	if item.Stock != nil {
		stock := *item.Stock
		item.Stock = &stock
	}
	return item
}
