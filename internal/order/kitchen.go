package order

import "sort"

// ForKitchen keeps the orders the kitchen may work on: paid and not yet
// served, closed or cancelled.
func ForKitchen(orders []Order) []Order {
	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		if o.PaymentStatus != PaymentPaid {
			continue
		}
		switch o.Status {
		case StatusServed, StatusClosed, StatusCancelled:
			continue
		}
		out = append(out, o)
	}
	return out
}

type Board struct {
	Incoming []Order `json:"incoming"`
	Cooking  []Order `json:"cooking"`
	Ready    []Order `json:"ready"`
}

func (b Board) Len() int {
	return len(b.Incoming) + len(b.Cooking) + len(b.Ready)
}

// KitchenBoard groups the kitchen queue into display columns, oldest first.
func KitchenBoard(orders []Order) Board {
	board := Board{Incoming: []Order{}, Cooking: []Order{}, Ready: []Order{}}
	for _, o := range ForKitchen(orders) {
		switch o.Status {
		case StatusNew, StatusAccepted:
			board.Incoming = append(board.Incoming, o)
		case StatusInProgress:
			board.Cooking = append(board.Cooking, o)
		case StatusReady:
			board.Ready = append(board.Ready, o)
		}
	}
	oldestFirst(board.Incoming)
	oldestFirst(board.Cooking)
	oldestFirst(board.Ready)
	return board
}

func oldestFirst(orders []Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
}
