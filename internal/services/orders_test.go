package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"qrpos-order-services/internal/order"
	"qrpos-order-services/internal/pricing"
	"qrpos-order-services/internal/realtime"
	"qrpos-order-services/internal/store"

	"github.com/shopspring/decimal"
)

type fixture struct {
	repo   *store.Memory
	events *realtime.Recorder
	svc    *OrderService
	clock  time.Time
}

func newFixture(t *testing.T, opts OrderServiceOptions) *fixture {
	t.Helper()
	f := &fixture{
		repo:   store.NewSeededMemory(),
		events: &realtime.Recorder{},
		clock:  time.Date(2026, 4, 1, 11, 0, 0, 0, time.UTC),
	}
	now := func() time.Time { return f.clock }
	f.repo.SetClock(now)
	opts.Now = now
	f.svc = NewOrderService(f.repo, f.events, nil, opts)
	return f
}

func nasiGorengEsTeh() []ItemRequest {
	return []ItemRequest{
		{MenuItemID: 1, Quantity: 1},
		{MenuItemID: 2, Quantity: 1},
	}
}

func (f *fixture) qrOrder(t *testing.T, method string) QROrderResult {
	t.Helper()
	res, err := f.svc.CreateQROrder(context.Background(), QROrderRequest{
		OutletID:      1,
		QRToken:       "demo-table-1",
		Items:         nasiGorengEsTeh(),
		PaymentMethod: method,
	})
	if err != nil {
		t.Fatalf("create qr order: %v", err)
	}
	return res
}

func (f *fixture) board(t *testing.T) order.Board {
	t.Helper()
	board, err := f.svc.KitchenBoard(context.Background(), 1)
	if err != nil {
		t.Fatalf("kitchen board: %v", err)
	}
	return board
}

func TestCreateQROrderPricesWithOutletSettings(t *testing.T) {
	f := newFixture(t, OrderServiceOptions{})
	res := f.qrOrder(t, "CASH")

	o := res.Order
	checks := map[string][2]decimal.Decimal{
		"subtotal": {o.Subtotal, decimal.NewFromInt(33000)},
		"tax":      {o.Tax, decimal.NewFromInt(3300)},
		"service":  {o.Service, decimal.NewFromInt(1650)},
		"total":    {o.Total, decimal.NewFromInt(38000)},
		"payment":  {res.Payment.Amount, decimal.NewFromInt(38000)},
	}
	for name, pair := range checks {
		if !pair[0].Equal(pair[1]) {
			t.Fatalf("%s: expected %s, got %s", name, pair[1], pair[0])
		}
	}
	if o.Rounding != pricing.RoundingNearest100 || !o.TaxRate.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("rates not snapshotted on order: %+v", o)
	}
	if o.CustomerName != order.GuestCustomerName {
		t.Fatalf("expected anonymous guest, got %q", o.CustomerName)
	}
	if o.Code != "Q-00001" || o.TableID == nil || *o.TableID != 1 {
		t.Fatalf("unexpected code/table: %s %v", o.Code, o.TableID)
	}
}

func TestQRTransferOrderWaitsForConfirmation(t *testing.T) {
	f := newFixture(t, OrderServiceOptions{})
	res := f.qrOrder(t, "TRANSFER")

	if res.Payment.Status != order.PaymentPending || res.Order.Status != order.StatusNew {
		t.Fatalf("expected NEW/PENDING, got %s/%s", res.Order.Status, res.Payment.Status)
	}
	if !res.PaymentInstructions.ProofUploadAllowed {
		t.Fatalf("transfer instructions should allow proof upload")
	}
	if f.board(t).Len() != 0 {
		t.Fatalf("unconfirmed order visible in kitchen")
	}
	if f.events.Count(realtime.EventOrderCreated) != 1 {
		t.Fatalf("expected one order.created event")
	}

	if _, err := f.svc.ConfirmPayment(context.Background(), 1, res.Payment.ID, "cashier-1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	board := f.board(t)
	if len(board.Incoming) != 1 || board.Incoming[0].ID != res.Order.ID {
		t.Fatalf("confirmed order missing from incoming column")
	}
}

func TestPOSMarkAsPaidGoesStraightToKitchen(t *testing.T) {
	f := newFixture(t, OrderServiceOptions{})
	res, err := f.svc.CreatePOSOrder(context.Background(), 1, POSOrderRequest{
		Items:         nasiGorengEsTeh(),
		PaymentMethod: "CASH",
		MarkAsPaid:    true,
	}, "cashier-7")
	if err != nil {
		t.Fatalf("create pos order: %v", err)
	}

	if res.Payment.Status != order.PaymentPaid || res.Order.PaymentStatus != order.PaymentPaid {
		t.Fatalf("expected PAID, got %s", res.Payment.Status)
	}
	if res.Payment.ConfirmedBy == nil || *res.Payment.ConfirmedBy != "cashier-7" {
		t.Fatalf("confirmedBy not recorded")
	}
	board := f.board(t)
	if len(board.Incoming) != 1 || board.Incoming[0].ID != res.Order.ID {
		t.Fatalf("paid POS order not in incoming column: %+v", board)
	}
}

func TestPOSPaymentStatusByMethod(t *testing.T) {
	cases := []struct {
		method string
		want   order.PaymentStatus
	}{
		{"CASH", order.PaymentUnpaid},
		{"TRANSFER", order.PaymentPending},
		{"QR", order.PaymentPending},
	}
	for _, tc := range cases {
		t.Run(tc.method, func(t *testing.T) {
			f := newFixture(t, OrderServiceOptions{})
			res, err := f.svc.CreatePOSOrder(context.Background(), 1, POSOrderRequest{
				Items:         nasiGorengEsTeh(),
				PaymentMethod: tc.method,
			}, "cashier-1")
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if res.Payment.Status != tc.want || res.Order.Status != order.StatusNew {
				t.Fatalf("expected NEW/%s, got %s/%s", tc.want, res.Order.Status, res.Payment.Status)
			}
		})
	}
}

func TestConcurrentConfirmationTransitionsOnce(t *testing.T) {
	f := newFixture(t, OrderServiceOptions{})
	res := f.qrOrder(t, "TRANSFER")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = f.svc.ConfirmPayment(context.Background(), 1, res.Payment.ID, "cashier-1")
			} else {
				_, err = f.svc.ConfirmPaymentByOrder(context.Background(), 1, res.Order.ID, "cashier-2")
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("confirmation failed: %v", err)
		}
	}

	if got := f.events.Count(realtime.EventPaymentUpdated); got != 1 {
		t.Fatalf("expected one payment.updated, got %d", got)
	}
	if got := f.events.Count(realtime.EventOrderStatusUpdated); got != 1 {
		t.Fatalf("expected one order.status.updated, got %d", got)
	}
	final, err := f.svc.GetOrder(context.Background(), 1, res.Order.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.Payment.Status != order.PaymentPaid || final.Order.Status != order.StatusAccepted {
		t.Fatalf("unexpected final state %s/%s", final.Order.Status, final.Payment.Status)
	}
}

func TestConfirmationEmitsPaymentBeforeStatus(t *testing.T) {
	f := newFixture(t, OrderServiceOptions{})
	res := f.qrOrder(t, "QR")
	if _, err := f.svc.ConfirmPaymentByOrder(context.Background(), 1, res.Order.ID, "cashier-1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	events := f.events.Events()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[1].Name != realtime.EventPaymentUpdated || events[2].Name != realtime.EventOrderStatusUpdated {
		t.Fatalf("unexpected order: %s, %s", events[1].Name, events[2].Name)
	}
	if events[2].Status != string(order.StatusAccepted) || events[1].PaymentStatus != string(order.PaymentPaid) {
		t.Fatalf("unexpected payloads: %+v", events)
	}
}

func TestNewToServedUnpaidIsRejected(t *testing.T) {
	f := newFixture(t, OrderServiceOptions{})
	res, err := f.svc.CreatePOSOrder(context.Background(), 1, POSOrderRequest{
		Items:         nasiGorengEsTeh(),
		PaymentMethod: "CASH",
	}, "cashier-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = f.svc.UpdateStatus(context.Background(), 1, res.Order.ID, order.StatusServed, "kitchen-1")
	e, ok := order.AsError(err)
	if !ok || e.Kind != order.KindConflict || !errors.Is(err, order.ErrIllegalStateTransition) {
		t.Fatalf("expected illegal transition conflict, got %v", err)
	}
	current, _ := f.svc.GetOrder(context.Background(), 1, res.Order.ID)
	if current.Order.Status != order.StatusNew {
		t.Fatalf("order moved to %s", current.Order.Status)
	}
	if f.events.Count(realtime.EventOrderStatusUpdated) != 0 {
		t.Fatalf("rejected transition emitted an event")
	}
}

func TestUpdateStatusThroughKitchen(t *testing.T) {
	f := newFixture(t, OrderServiceOptions{})
	res, err := f.svc.CreatePOSOrder(context.Background(), 1, POSOrderRequest{
		Items:         nasiGorengEsTeh(),
		PaymentMethod: "CASH",
		MarkAsPaid:    true,
	}, "cashier-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	steps := []order.Status{order.StatusInProgress, order.StatusInProgress, order.StatusReady, order.StatusServed, order.StatusClosed}
	for _, to := range steps {
		if _, err := f.svc.UpdateStatus(context.Background(), 1, res.Order.ID, to, "kitchen-1"); err != nil {
			t.Fatalf("move to %s: %v", to, err)
		}
	}
	if got := f.events.Count(realtime.EventOrderStatusUpdated); got != 4 {
		t.Fatalf("expected 4 status events (repeat is silent), got %d", got)
	}
	if f.board(t).Len() != 0 {
		t.Fatalf("closed order still on the board")
	}
}

func TestMenuEditsDoNotTouchExistingOrders(t *testing.T) {
	f := newFixture(t, OrderServiceOptions{})
	res := f.qrOrder(t, "CASH")

	f.repo.PutMenuItem(order.MenuItem{ID: 1, OutletID: 1, Name: "Nasi Goreng Spesial", Price: decimal.NewFromInt(40000), IsActive: true})

	stored, err := f.svc.GetOrder(context.Background(), 1, res.Order.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	item := stored.Order.Items[0]
	if item.NameSnapshot != "Nasi Goreng" || !item.BasePriceSnapshot.Equal(decimal.NewFromInt(25000)) {
		t.Fatalf("snapshot changed: %+v", item)
	}
	if !stored.Order.Total.Equal(decimal.NewFromInt(38000)) {
		t.Fatalf("total changed to %s", stored.Order.Total)
	}
	if err := stored.Order.Recalculate(); err != nil || !stored.Order.Total.Equal(decimal.NewFromInt(38000)) {
		t.Fatalf("recalculation from snapshots drifted: %s %v", stored.Order.Total, err)
	}
}

func TestSnapshotsVariantsAndAddons(t *testing.T) {
	f := newFixture(t, OrderServiceOptions{})
	variant := int64(1)
	res, err := f.svc.CreatePOSOrder(context.Background(), 1, POSOrderRequest{
		Items:         []ItemRequest{{MenuItemID: 1, Quantity: 2, VariantID: &variant, AddonIDs: []int64{1}}},
		PaymentMethod: "CASH",
	}, "cashier-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	item := res.Order.Items[0]
	if item.VariantSnapshot == nil || *item.VariantSnapshot != "Jumbo" || len(item.AddonsSnapshot) != 1 {
		t.Fatalf("variant/addon not snapshotted: %+v", item)
	}
	if !item.UnitPrice.Equal(decimal.NewFromInt(34000)) || !item.LineTotal.Equal(decimal.NewFromInt(68000)) {
		t.Fatalf("unexpected line pricing %s x2 = %s", item.UnitPrice, item.LineTotal)
	}
}

func TestCreateOrderRejections(t *testing.T) {
	inactive := func(f *fixture) {
		f.repo.PutMenuItem(order.MenuItem{ID: 2, OutletID: 1, Name: "Es Teh", Price: decimal.NewFromInt(8000), IsActive: false})
	}
	soldOut := func(f *fixture) {
		zero := 0
		f.repo.PutMenuItem(order.MenuItem{ID: 2, OutletID: 1, Name: "Es Teh", Price: decimal.NewFromInt(8000), IsActive: true, Stock: &zero})
	}
	cashOnly := func(f *fixture) {
		outlet, _ := f.repo.GetOutlet(context.Background(), 1)
		outlet.PaymentMethods = []order.PaymentMethod{order.MethodCash}
		f.repo.PutOutlet(outlet)
	}
	posOnly := func(f *fixture) {
		outlet, _ := f.repo.GetOutlet(context.Background(), 1)
		outlet.OrderMode = order.ModePOSOnly
		f.repo.PutOutlet(outlet)
	}
	badVariant := int64(99)

	cases := []struct {
		name  string
		setup func(*fixture)
		req   QROrderRequest
		want  error
	}{
		{"empty", nil, QROrderRequest{QRToken: "demo-table-1", PaymentMethod: "CASH"}, order.ErrEmptyOrder},
		{"unknown qr", nil, QROrderRequest{QRToken: "nope", Items: nasiGorengEsTeh(), PaymentMethod: "CASH"}, order.ErrNotFound},
		{"qr of other outlet", nil, QROrderRequest{OutletID: 2, QRToken: "demo-table-1", Items: nasiGorengEsTeh(), PaymentMethod: "CASH"}, order.ErrNotFound},
		{"unknown menu item", nil, QROrderRequest{QRToken: "demo-table-1", Items: []ItemRequest{{MenuItemID: 42, Quantity: 1}}, PaymentMethod: "CASH"}, order.ErrInvalidOrderItem},
		{"inactive menu item", inactive, QROrderRequest{QRToken: "demo-table-1", Items: nasiGorengEsTeh(), PaymentMethod: "CASH"}, order.ErrInvalidOrderItem},
		{"out of stock", soldOut, QROrderRequest{QRToken: "demo-table-1", Items: nasiGorengEsTeh(), PaymentMethod: "CASH"}, order.ErrInvalidOrderItem},
		{"bad variant", nil, QROrderRequest{QRToken: "demo-table-1", Items: []ItemRequest{{MenuItemID: 1, Quantity: 1, VariantID: &badVariant}}, PaymentMethod: "CASH"}, order.ErrInvalidOrderItem},
		{"zero quantity", nil, QROrderRequest{QRToken: "demo-table-1", Items: []ItemRequest{{MenuItemID: 1, Quantity: 0}}, PaymentMethod: "CASH"}, order.ErrInvalidOrderItem},
		{"method disabled", cashOnly, QROrderRequest{QRToken: "demo-table-1", Items: nasiGorengEsTeh(), PaymentMethod: "TRANSFER"}, order.ErrPaymentMethodNotEnabled},
		{"channel disabled", posOnly, QROrderRequest{QRToken: "demo-table-1", Items: nasiGorengEsTeh(), PaymentMethod: "CASH"}, order.ErrChannelNotEnabled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, OrderServiceOptions{})
			if tc.setup != nil {
				tc.setup(f)
			}
			_, err := f.svc.CreateQROrder(context.Background(), tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if len(f.events.Events()) != 0 {
				t.Fatalf("rejected order emitted events")
			}
		})
	}
}

func TestPOSDiscountValidation(t *testing.T) {
	f := newFixture(t, OrderServiceOptions{})
	tooMuch := decimal.NewFromInt(50000)
	_, err := f.svc.CreatePOSOrder(context.Background(), 1, POSOrderRequest{
		Items:         nasiGorengEsTeh(),
		PaymentMethod: "CASH",
		Discount:      &tooMuch,
	}, "cashier-1")
	if !errors.Is(err, order.ErrInvalidDiscount) {
		t.Fatalf("expected invalid discount, got %v", err)
	}

	ok := decimal.NewFromInt(3000)
	res, err := f.svc.CreatePOSOrder(context.Background(), 1, POSOrderRequest{
		Items:         nasiGorengEsTeh(),
		PaymentMethod: "CASH",
		Discount:      &ok,
	}, "cashier-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !res.Order.Total.Equal(decimal.NewFromInt(35000)) {
		t.Fatalf("expected 35000 after discount, got %s", res.Order.Total)
	}
}

func TestStockDecrementFlag(t *testing.T) {
	f := newFixture(t, OrderServiceOptions{DecrementStock: true})
	stock := 1
	f.repo.PutMenuItem(order.MenuItem{ID: 2, OutletID: 1, Name: "Es Teh", Price: decimal.NewFromInt(8000), IsActive: true, Stock: &stock})

	f.qrOrder(t, "CASH")
	_, err := f.svc.CreateQROrder(context.Background(), QROrderRequest{
		QRToken:       "demo-table-1",
		Items:         nasiGorengEsTeh(),
		PaymentMethod: "CASH",
	})
	if !errors.Is(err, order.ErrInvalidOrderItem) {
		t.Fatalf("expected stock rejection after decrement, got %v", err)
	}
}

func TestConfirmCancelledOrderIsInvalid(t *testing.T) {
	f := newFixture(t, OrderServiceOptions{})
	res := f.qrOrder(t, "TRANSFER")
	if _, err := f.svc.UpdateStatus(context.Background(), 1, res.Order.ID, order.StatusCancelled, "cashier-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, err := f.svc.ConfirmPayment(context.Background(), 1, res.Payment.ID, "cashier-1")
	if !errors.Is(err, order.ErrInvalidOperation) {
		t.Fatalf("expected invalid operation, got %v", err)
	}
}

func TestConfirmUnknownPayment(t *testing.T) {
	f := newFixture(t, OrderServiceOptions{})
	if _, err := f.svc.ConfirmPayment(context.Background(), 1, 999, "cashier-1"); !errors.Is(err, order.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMarkPaymentSubmittedAndProof(t *testing.T) {
	f := newFixture(t, OrderServiceOptions{})
	res, err := f.svc.CreatePOSOrder(context.Background(), 1, POSOrderRequest{
		Items:         nasiGorengEsTeh(),
		PaymentMethod: "TRANSFER",
	}, "cashier-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, replaced, err := f.svc.AttachPaymentProof(context.Background(), 1, res.Order.ID, "https://cdn.example.com/proof.jpg")
	if err != nil {
		t.Fatalf("attach proof: %v", err)
	}
	if updated.Payment.ProofURL == nil || updated.Payment.Status != order.PaymentPending || replaced != "" {
		t.Fatalf("proof not stored: %+v replaced=%q", updated.Payment, replaced)
	}

	cash := f.qrOrder(t, "CASH")
	if _, _, err := f.svc.AttachPaymentProof(context.Background(), 1, cash.Order.ID, "x"); !errors.Is(err, order.ErrInvalidOperation) {
		t.Fatalf("expected cash proof rejection, got %v", err)
	}
	if _, err := f.svc.MarkPaymentSubmitted(context.Background(), 1, cash.Order.Code); err != nil {
		t.Fatalf("mark submitted: %v", err)
	}
}

func TestProofReplacementAndSettledPayments(t *testing.T) {
	f := newFixture(t, OrderServiceOptions{})
	ctx := context.Background()
	res := f.qrOrder(t, "TRANSFER")

	if _, _, err := f.svc.AttachPaymentProof(ctx, 1, res.Order.ID, "https://cdn.example.com/first.jpg"); err != nil {
		t.Fatalf("first proof: %v", err)
	}
	_, replaced, err := f.svc.AttachPaymentProof(ctx, 1, res.Order.ID, "https://cdn.example.com/second.jpg")
	if err != nil || replaced != "https://cdn.example.com/first.jpg" {
		t.Fatalf("second proof: replaced=%q err=%v", replaced, err)
	}

	if _, err := f.svc.ConfirmPaymentByOrder(ctx, 1, res.Order.ID, "cashier-1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	_, replaced, err = f.svc.AttachPaymentProof(ctx, 1, res.Order.ID, "https://cdn.example.com/third.jpg")
	if !errors.Is(err, order.ErrInvalidOperation) || replaced != "" {
		t.Fatalf("expected settled rejection, got replaced=%q err=%v", replaced, err)
	}
	current, err := f.svc.GetOrder(ctx, 1, res.Order.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if current.Payment.ProofURL == nil || *current.Payment.ProofURL != "https://cdn.example.com/second.jpg" {
		t.Fatalf("settled payment lost its proof: %+v", current.Payment.ProofURL)
	}
}

func TestRefundCancelsKitchenOrder(t *testing.T) {
	f := newFixture(t, OrderServiceOptions{})
	res, err := f.svc.CreatePOSOrder(context.Background(), 1, POSOrderRequest{
		Items:         nasiGorengEsTeh(),
		PaymentMethod: "CASH",
		MarkAsPaid:    true,
	}, "cashier-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.UpdateStatus(context.Background(), 1, res.Order.ID, order.StatusInProgress, "kitchen-1"); err != nil {
		t.Fatalf("start cooking: %v", err)
	}

	refunded, err := f.svc.RefundPayment(context.Background(), 1, res.Payment.ID, "manager-1")
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.Payment.Status != order.PaymentRefunded || refunded.Order.Status != order.StatusCancelled {
		t.Fatalf("unexpected state %s/%s", refunded.Order.Status, refunded.Payment.Status)
	}
	if f.board(t).Len() != 0 {
		t.Fatalf("refunded order still on the board")
	}
	if _, err := f.svc.RefundPayment(context.Background(), 1, res.Payment.ID, "manager-1"); err != nil {
		t.Fatalf("second refund should be a no-op: %v", err)
	}
}

func TestExpireStaleOrders(t *testing.T) {
	f := newFixture(t, OrderServiceOptions{})
	stale := f.qrOrder(t, "TRANSFER")
	paid := f.qrOrder(t, "TRANSFER")
	if _, err := f.svc.ConfirmPayment(context.Background(), 1, paid.Payment.ID, "cashier-1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	f.clock = f.clock.Add(2 * time.Hour)
	fresh := f.qrOrder(t, "TRANSFER")

	n, err := f.svc.ExpireStaleOrders(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired order, got %d", n)
	}
	for id, want := range map[int64]order.Status{
		stale.Order.ID: order.StatusCancelled,
		paid.Order.ID:  order.StatusAccepted,
		fresh.Order.ID: order.StatusNew,
	} {
		got, _ := f.svc.GetOrder(context.Background(), 1, id)
		if got.Order.Status != want {
			t.Fatalf("order %d: expected %s, got %s", id, want, got.Order.Status)
		}
	}
}
