package order

import (
	"math/rand"
	"testing"
	"time"
)

func TestKitchenBoardColumns(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	orders := []Order{
		{ID: 1, Status: StatusNew, PaymentStatus: PaymentPending, CreatedAt: base},
		{ID: 2, Status: StatusAccepted, PaymentStatus: PaymentPaid, CreatedAt: base.Add(2 * time.Minute)},
		{ID: 3, Status: StatusNew, PaymentStatus: PaymentPaid, CreatedAt: base.Add(time.Minute)},
		{ID: 4, Status: StatusInProgress, PaymentStatus: PaymentPaid, CreatedAt: base},
		{ID: 5, Status: StatusReady, PaymentStatus: PaymentPaid, CreatedAt: base},
		{ID: 6, Status: StatusServed, PaymentStatus: PaymentPaid, CreatedAt: base},
		{ID: 7, Status: StatusCancelled, PaymentStatus: PaymentPaid, CreatedAt: base},
		{ID: 8, Status: StatusAccepted, PaymentStatus: PaymentUnpaid, CreatedAt: base},
	}

	board := KitchenBoard(orders)
	if len(board.Incoming) != 2 || board.Incoming[0].ID != 3 || board.Incoming[1].ID != 2 {
		t.Fatalf("unexpected incoming column: %+v", ids(board.Incoming))
	}
	if len(board.Cooking) != 1 || board.Cooking[0].ID != 4 {
		t.Fatalf("unexpected cooking column: %+v", ids(board.Cooking))
	}
	if len(board.Ready) != 1 || board.Ready[0].ID != 5 {
		t.Fatalf("unexpected ready column: %+v", ids(board.Ready))
	}
}

func TestForKitchenNeverLeaksUnpaidOrFinished(t *testing.T) {
	statuses := []Status{StatusNew, StatusAccepted, StatusInProgress, StatusReady, StatusServed, StatusClosed, StatusCancelled}
	payments := []PaymentStatus{PaymentUnpaid, PaymentPending, PaymentPaid, PaymentRefunded}
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 100; round++ {
		orders := make([]Order, 40)
		for i := range orders {
			orders[i] = Order{
				ID:            int64(i + 1),
				Status:        statuses[rng.Intn(len(statuses))],
				PaymentStatus: payments[rng.Intn(len(payments))],
			}
		}
		for _, o := range ForKitchen(orders) {
			if o.PaymentStatus != PaymentPaid {
				t.Fatalf("order %d with payment %s in kitchen queue", o.ID, o.PaymentStatus)
			}
			if o.Status == StatusServed || o.Status == StatusClosed || o.Status == StatusCancelled {
				t.Fatalf("order %d with status %s in kitchen queue", o.ID, o.Status)
			}
		}
	}
}

func TestKitchenBoardEmpty(t *testing.T) {
	board := KitchenBoard(nil)
	if board.Incoming == nil || board.Cooking == nil || board.Ready == nil {
		t.Fatalf("columns must be non-nil for JSON rendering")
	}
	if board.Len() != 0 {
		t.Fatalf("expected empty board, got %d", board.Len())
	}
}

func ids(orders []Order) []int64 {
	out := make([]int64, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.ID)
	}
	return out
}
