// Package store persists orders and payments and reads the outlet, table and
// menu data they are built from.
package store

import (
	"context"
	"errors"
	"time"

	"qrpos-order-services/internal/order"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// StockError names the menu item that ran out while decrementing stock.
type StockError struct {
	MenuItemID int64
}

func (e *StockError) Error() string {
	return "insufficient stock"
}

func (e *StockError) Unwrap() error {
	return ErrInsufficientStock
}

// MutateFunc runs while the order row is locked. It reports whether the order
// or payment changed and must be written back.
type MutateFunc func(o *order.Order, p *order.Payment) (bool, error)

type Repository interface {
	GetOutlet(ctx context.Context, outletID int64) (order.Outlet, error)
	GetTable(ctx context.Context, outletID, tableID int64) (order.Table, error)
	GetTableByQRToken(ctx context.Context, qrToken string) (order.Table, error)
	GetMenuItems(ctx context.Context, outletID int64, ids []int64) (map[int64]order.MenuItem, error)

	// CreateOrder stores the order, its items and its payment atomically and
	// fills in ids, the order code and timestamps.
	CreateOrder(ctx context.Context, o *order.Order, p *order.Payment, decrementStock bool) error
	GetOrder(ctx context.Context, outletID, orderID int64) (order.Order, order.Payment, error)
	GetOrderByCode(ctx context.Context, outletID int64, code string) (order.Order, order.Payment, error)
	GetPayment(ctx context.Context, outletID, paymentID int64) (order.Payment, error)
	ListActiveOrders(ctx context.Context, outletID int64) ([]order.Order, error)
	ListStaleOrders(ctx context.Context, cutoff time.Time, limit int) ([]order.Order, error)

	// MutateOrder serializes writers of one order.
	MutateOrder(ctx context.Context, outletID, orderID int64, fn MutateFunc) (order.Order, order.Payment, error)
}

func stampCreated(o *order.Order, p *order.Payment, at time.Time) {
	o.CreatedAt, o.UpdatedAt = at, at
	p.CreatedAt, p.UpdatedAt = at, at
}

func stampUpdated(o *order.Order, p *order.Payment, at time.Time) {
	o.UpdatedAt = at
	p.UpdatedAt = at
}
