package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"qrpos-order-services/internal/order"
	"qrpos-order-services/internal/pricing"
	"qrpos-order-services/internal/utils"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Postgres struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ Repository = (*Postgres)(nil)

// NewPostgres stamps createdAt/updatedAt from now, so both repositories
// share the service clock. A nil clock means UTC wall time.
func NewPostgres(pool *pgxpool.Pool, now func() time.Time) *Postgres {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Postgres{pool: pool, now: now}
}

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Postgres) withTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *Postgres) GetOutlet(ctx context.Context, outletID int64) (order.Outlet, error) {
	var (
		out         order.Outlet
		taxRate     pgtype.Numeric
		serviceRate pgtype.Numeric
		rounding    string
		methods     []string
		mode        string
	)
	err := s.pool.QueryRow(ctx, `
		select id, code, name, currency, timezone, tax_rate, service_rate, rounding_rule,
		       payment_methods, order_mode, is_active
		from outlets
		where id = $1
	`, outletID).Scan(&out.ID, &out.Code, &out.Name, &out.Currency, &out.Timezone, &taxRate, &serviceRate,
		&rounding, &methods, &mode, &out.IsActive)
	if err != nil {
		return order.Outlet{}, notFound(err)
	}

	rule, err := pricing.ParseRoundingRule(rounding)
	if err != nil {
		return order.Outlet{}, fmt.Errorf("outlet %d: %w", outletID, err)
	}
	out.Rounding = rule
	out.TaxRate = utils.NumericToDecimal(taxRate)
	out.ServiceRate = utils.NumericToDecimal(serviceRate)
	out.OrderMode = order.OrderMode(mode)
	for _, m := range methods {
		if method, ok := order.ParsePaymentMethod(m); ok {
			out.PaymentMethods = append(out.PaymentMethods, method)
		}
	}
	return out, nil
}

func (s *Postgres) GetTable(ctx context.Context, outletID, tableID int64) (order.Table, error) {
	var t order.Table
	err := s.pool.QueryRow(ctx, `
		select id, outlet_id, label, qr_token, is_active
		from outlet_tables
		where id = $1 and outlet_id = $2
	`, tableID, outletID).Scan(&t.ID, &t.OutletID, &t.Label, &t.QRToken, &t.IsActive)
	return t, notFound(err)
}

func (s *Postgres) GetTableByQRToken(ctx context.Context, qrToken string) (order.Table, error) {
	var t order.Table
	err := s.pool.QueryRow(ctx, `
		select id, outlet_id, label, qr_token, is_active
		from outlet_tables
		where qr_token = $1
	`, qrToken).Scan(&t.ID, &t.OutletID, &t.Label, &t.QRToken, &t.IsActive)
	return t, notFound(err)
}

func (s *Postgres) GetMenuItems(ctx context.Context, outletID int64, ids []int64) (map[int64]order.MenuItem, error) {
	out := make(map[int64]order.MenuItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, `
		select id, outlet_id, name, price, is_active, stock
		from menu_items
		where outlet_id = $1 and id = any($2)
	`, outletID, ids)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var (
			item  order.MenuItem
			price pgtype.Numeric
			stock *int32
		)
		if err := rows.Scan(&item.ID, &item.OutletID, &item.Name, &price, &item.IsActive, &stock); err != nil {
			rows.Close()
			return nil, err
		}
		item.Price = utils.NumericToDecimal(price)
		if stock != nil {
			v := int(*stock)
			item.Stock = &v
		}
		out[item.ID] = item
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	variantRows, err := s.pool.Query(ctx, `
		select id, menu_item_id, name, price_delta, is_active
		from menu_variants
		where menu_item_id = any($1)
		order by id
	`, ids)
	if err != nil {
		return nil, err
	}
	for variantRows.Next() {
		var (
			v      order.MenuVariant
			itemID int64
			delta  pgtype.Numeric
		)
		if err := variantRows.Scan(&v.ID, &itemID, &v.Name, &delta, &v.IsActive); err != nil {
			variantRows.Close()
			return nil, err
		}
		v.PriceDelta = utils.NumericToDecimal(delta)
		if item, ok := out[itemID]; ok {
			item.Variants = append(item.Variants, v)
			out[itemID] = item
		}
	}
	variantRows.Close()
	if err := variantRows.Err(); err != nil {
		return nil, err
	}

	addonRows, err := s.pool.Query(ctx, `
		select id, menu_item_id, name, price, is_active
		from menu_addons
		where menu_item_id = any($1)
		order by id
	`, ids)
	if err != nil {
		return nil, err
	}
	defer addonRows.Close()
	for addonRows.Next() {
		var (
			a      order.MenuAddon
			itemID int64
			price  pgtype.Numeric
		)
		if err := addonRows.Scan(&a.ID, &itemID, &a.Name, &price, &a.IsActive); err != nil {
			return nil, err
		}
		a.Price = utils.NumericToDecimal(price)
		if item, ok := out[itemID]; ok {
			item.Addons = append(item.Addons, a)
			out[itemID] = item
		}
	}
	return out, addonRows.Err()
}

func (s *Postgres) CreateOrder(ctx context.Context, o *order.Order, p *order.Payment, decrementStock bool) error {
	return s.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if decrementStock {
			if err := decrementMenuStock(ctx, tx, o); err != nil {
				return err
			}
		}

		var seq int64
		if err := tx.QueryRow(ctx, `
			insert into outlet_order_sequences (outlet_id, channel, last_value)
			values ($1, $2, 1)
			on conflict (outlet_id, channel)
			do update set last_value = outlet_order_sequences.last_value + 1
			returning last_value
		`, o.OutletID, string(o.Channel)).Scan(&seq); err != nil {
			return err
		}
		o.Code = order.FormatCode(o.Channel, seq)
		stampCreated(o, p, s.now())

		if err := tx.QueryRow(ctx, `
			insert into orders (
				order_code, outlet_id, table_id, channel, customer_name, customer_phone,
				subtotal, discount, tax, service, total, tax_rate, service_rate, rounding_rule,
				status, payment_status, payment_method, note, created_by, created_at, updated_at
			)
			values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
			returning id
		`,
			o.Code, o.OutletID, o.TableID, string(o.Channel), o.CustomerName, o.CustomerPhone,
			utils.DecimalToNumeric(o.Subtotal), utils.DecimalToNumeric(o.Discount),
			utils.DecimalToNumeric(o.Tax), utils.DecimalToNumeric(o.Service), utils.DecimalToNumeric(o.Total),
			utils.DecimalToNumeric(o.TaxRate), utils.DecimalToNumeric(o.ServiceRate), string(o.Rounding),
			string(o.Status), string(o.PaymentStatus), string(o.PaymentMethod), o.Note, o.CreatedBy,
			o.CreatedAt, o.UpdatedAt,
		).Scan(&o.ID); err != nil {
			return err
		}

		for i := range o.Items {
			item := &o.Items[i]
			addons, err := json.Marshal(item.AddonsSnapshot)
			if err != nil {
				return err
			}
			if err := tx.QueryRow(ctx, `
				insert into order_items (
					order_id, menu_item_id, quantity, name_snapshot, base_price_snapshot,
					variant_id, variant_name_snapshot, variant_price_snapshot, addons_snapshot,
					unit_price, line_total, note
				)
				values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
				returning id
			`,
				o.ID, item.MenuItemID, item.Quantity, item.NameSnapshot, utils.DecimalToNumeric(item.BasePriceSnapshot),
				item.VariantID, item.VariantSnapshot, utils.DecimalToNumeric(item.VariantDelta), addons,
				utils.DecimalToNumeric(item.UnitPrice), utils.DecimalToNumeric(item.LineTotal), item.Note,
			).Scan(&item.ID); err != nil {
				return err
			}
		}

		p.OrderID = o.ID
		return tx.QueryRow(ctx, `
			insert into payments (order_id, method, status, amount, confirmed_at, confirmed_by, created_at, updated_at)
			values ($1,$2,$3,$4,$5,$6,$7,$8)
			returning id
		`, o.ID, string(p.Method), string(p.Status), utils.DecimalToNumeric(p.Amount), p.ConfirmedAt, p.ConfirmedBy,
			p.CreatedAt, p.UpdatedAt,
		).Scan(&p.ID)
	})
}

// decrementMenuStock walks menu ids in ascending order so concurrent orders
// lock rows in the same sequence.
func decrementMenuStock(ctx context.Context, tx pgx.Tx, o *order.Order) error {
	need := make(map[int64]int32)
	for _, item := range o.Items {
		need[item.MenuItemID] += item.Quantity
	}
	ids := make([]int64, 0, len(need))
	for id := range need {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		tag, err := tx.Exec(ctx, `
			update menu_items
			set stock = stock - $1, updated_at = now()
			where id = $2 and outlet_id = $3 and (stock is null or stock >= $1)
		`, need[id], id, o.OutletID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return &StockError{MenuItemID: id}
		}
	}
	return nil
}

const orderColumns = `
	id, order_code, outlet_id, table_id, channel, customer_name, customer_phone,
	subtotal, discount, tax, service, total, tax_rate, service_rate, rounding_rule,
	status, payment_status, payment_method, note, created_by, created_at, updated_at`

func scanOrder(row pgx.Row) (order.Order, error) {
	var (
		o                                       order.Order
		subtotal, discount, tax, service, total pgtype.Numeric
		taxRate, serviceRate                    pgtype.Numeric
		channel, rounding, status, payStatus    string
		method                                  string
	)
	err := row.Scan(
		&o.ID, &o.Code, &o.OutletID, &o.TableID, &channel, &o.CustomerName, &o.CustomerPhone,
		&subtotal, &discount, &tax, &service, &total, &taxRate, &serviceRate, &rounding,
		&status, &payStatus, &method, &o.Note, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return order.Order{}, err
	}
	o.Channel = order.Channel(channel)
	o.Subtotal = utils.NumericToDecimal(subtotal)
	o.Discount = utils.NumericToDecimal(discount)
	o.Tax = utils.NumericToDecimal(tax)
	o.Service = utils.NumericToDecimal(service)
	o.Total = utils.NumericToDecimal(total)
	o.TaxRate = utils.NumericToDecimal(taxRate)
	o.ServiceRate = utils.NumericToDecimal(serviceRate)
	o.Rounding = pricing.RoundingRule(rounding)
	o.Status = order.Status(status)
	o.PaymentStatus = order.PaymentStatus(payStatus)
	o.PaymentMethod = order.PaymentMethod(method)
	return o, nil
}

const paymentColumns = `
	id, order_id, method, status, amount, confirmed_at, confirmed_by,
	refunded_at, refunded_by, proof_url, created_at, updated_at`

func scanPayment(row pgx.Row) (order.Payment, error) {
	var (
		p              order.Payment
		amount         pgtype.Numeric
		method, status string
	)
	err := row.Scan(&p.ID, &p.OrderID, &method, &status, &amount, &p.ConfirmedAt, &p.ConfirmedBy,
		&p.RefundedAt, &p.RefundedBy, &p.ProofURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return order.Payment{}, err
	}
	p.Method = order.PaymentMethod(method)
	p.Status = order.PaymentStatus(status)
	p.Amount = utils.NumericToDecimal(amount)
	return p, nil
}

func loadItems(ctx context.Context, q querier, orderIDs []int64) (map[int64][]order.LineItem, error) {
	out := make(map[int64][]order.LineItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `
		select id, order_id, menu_item_id, quantity, name_snapshot, base_price_snapshot,
		       variant_id, variant_name_snapshot, variant_price_snapshot, addons_snapshot,
		       unit_price, line_total, note
		from order_items
		where order_id = any($1)
		order by id
	`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item                         order.LineItem
			orderID                      int64
			base, delta, unit, lineTotal pgtype.Numeric
			addons                       []byte
		)
		if err := rows.Scan(&item.ID, &orderID, &item.MenuItemID, &item.Quantity, &item.NameSnapshot, &base,
			&item.VariantID, &item.VariantSnapshot, &delta, &addons, &unit, &lineTotal, &item.Note); err != nil {
			return nil, err
		}
		item.BasePriceSnapshot = utils.NumericToDecimal(base)
		item.VariantDelta = utils.NumericToDecimal(delta)
		item.UnitPrice = utils.NumericToDecimal(unit)
		item.LineTotal = utils.NumericToDecimal(lineTotal)
		if len(addons) > 0 {
			if err := json.Unmarshal(addons, &item.AddonsSnapshot); err != nil {
				return nil, fmt.Errorf("order item %d addons: %w", item.ID, err)
			}
		}
		out[orderID] = append(out[orderID], item)
	}
	return out, rows.Err()
}

func (s *Postgres) loadFull(ctx context.Context, q querier, o order.Order, lock bool) (order.Order, order.Payment, error) {
	items, err := loadItems(ctx, q, []int64{o.ID})
	if err != nil {
		return order.Order{}, order.Payment{}, err
	}
	o.Items = items[o.ID]

	query := `select ` + paymentColumns + ` from payments where order_id = $1`
	if lock {
		query += ` for update`
	}
	p, err := scanPayment(q.QueryRow(ctx, query, o.ID))
	if err != nil {
		return order.Order{}, order.Payment{}, notFound(err)
	}
	return o, p, nil
}

func (s *Postgres) GetOrder(ctx context.Context, outletID, orderID int64) (order.Order, order.Payment, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx,
		`select `+orderColumns+` from orders where id = $1 and outlet_id = $2`, orderID, outletID))
	if err != nil {
		return order.Order{}, order.Payment{}, notFound(err)
	}
	return s.loadFull(ctx, s.pool, o, false)
}

func (s *Postgres) GetOrderByCode(ctx context.Context, outletID int64, code string) (order.Order, order.Payment, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx,
		`select `+orderColumns+` from orders where order_code = $1 and outlet_id = $2`, code, outletID))
	if err != nil {
		return order.Order{}, order.Payment{}, notFound(err)
	}
	return s.loadFull(ctx, s.pool, o, false)
}

func (s *Postgres) GetPayment(ctx context.Context, outletID, paymentID int64) (order.Payment, error) {
	p, err := scanPayment(s.pool.QueryRow(ctx, `
		select `+paymentColumns+`
		from payments
		where id = $1 and order_id in (select id from orders where outlet_id = $2)
	`, paymentID, outletID))
	return p, notFound(err)
}

func (s *Postgres) listOrders(ctx context.Context, where string, args ...any) ([]order.Order, error) {
	rows, err := s.pool.Query(ctx, `select `+orderColumns+` from orders where `+where, args...)
	if err != nil {
		return nil, err
	}
	out := make([]order.Order, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := loadItems(ctx, s.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

func (s *Postgres) ListActiveOrders(ctx context.Context, outletID int64) ([]order.Order, error) {
	return s.listOrders(ctx, `
		outlet_id = $1 and status not in ('CLOSED', 'CANCELLED')
		order by created_at, id
	`, outletID)
}

func (s *Postgres) ListStaleOrders(ctx context.Context, cutoff time.Time, limit int) ([]order.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.listOrders(ctx, `
		status = 'NEW' and payment_status in ('UNPAID', 'PENDING') and created_at < $1
		order by created_at, id
		limit $2
	`, cutoff, limit)
}

// MutateOrder locks the order row and its payment with SELECT ... FOR UPDATE
// so concurrent confirmations queue behind each other.
func (s *Postgres) MutateOrder(ctx context.Context, outletID, orderID int64, fn MutateFunc) (order.Order, order.Payment, error) {
	var (
		resultOrder   order.Order
		resultPayment order.Payment
	)
	err := s.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		o, err := scanOrder(tx.QueryRow(ctx,
			`select `+orderColumns+` from orders where id = $1 and outlet_id = $2 for update`, orderID, outletID))
		if err != nil {
			return notFound(err)
		}
		o, p, err := s.loadFull(ctx, tx, o, true)
		if err != nil {
			return err
		}

		changed, err := fn(&o, &p)
		if err != nil {
			return err
		}
		if changed {
			stampUpdated(&o, &p, s.now())
			if _, err := tx.Exec(ctx, `
				update orders
				set status = $1, payment_status = $2, updated_at = $3
				where id = $4
			`, string(o.Status), string(o.PaymentStatus), o.UpdatedAt, o.ID); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				update payments
				set status = $1, confirmed_at = $2, confirmed_by = $3, refunded_at = $4,
				    refunded_by = $5, proof_url = $6, updated_at = $7
				where id = $8
			`, string(p.Status), p.ConfirmedAt, p.ConfirmedBy, p.RefundedAt, p.RefundedBy, p.ProofURL,
				p.UpdatedAt, p.ID); err != nil {
				return err
			}
		}
		resultOrder, resultPayment = o, p
		return nil
	})
	if err != nil {
		return order.Order{}, order.Payment{}, err
	}
	return resultOrder, resultPayment, nil
}

