package exec

import (
	"errors"

	"main/internal/schema"
)

var (
	ErrDuplicateOrder    = errors.New("order already exists")
	ErrUnknownOrder      = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order state transition")
	ErrInvalidFill       = errors.New("invalid fill quantity")
)

// Order holds the coordinator's view of an order lifecycle.
type Order struct {
	ID         uint64
	StrategyID uint32
	SymbolID   uint32
	Side       schema.OrderSide
	Type       schema.OrderType
	Price      schema.Price
	Qty        schema.Quantity
	LeavesQty  schema.Quantity
	State      schema.OrderState
}

// Tracker updates order lifecycle state from submissions, fills and
// cancels. Not safe for concurrent use; callers hold their own lock.
type Tracker struct {
	orders map[uint64]*Order
}

// NewTracker creates an empty order tracker.
func NewTracker() *Tracker {
	return &Tracker{orders: make(map[uint64]*Order)}
}

// Order returns the current order state.
func (t *Tracker) Order(id uint64) (*Order, bool) {
	o, ok := t.orders[id]
	return o, ok
}

// Track registers an approved order in Submitted state.
func (t *Tracker) Track(approved schema.OrderApproved) (*Order, error) {
	if approved.OrderID == 0 {
		return nil, ErrUnknownOrder
	}
	if _, ok := t.orders[approved.OrderID]; ok {
		return nil, ErrDuplicateOrder
	}
	o := &Order{
		ID:         approved.OrderID,
		StrategyID: approved.StrategyID,
		SymbolID:   approved.SymbolID,
		Side:       approved.Side,
		Type:       approved.Type,
		Price:      approved.Price,
		Qty:        approved.Qty,
		LeavesQty:  approved.Qty,
		State:      schema.OrderStateSubmitted,
	}
	t.orders[o.ID] = o
	return o, nil
}

// ApplyFill accumulates a fill. Partial fills keep the order open until
// filled quantity reaches the requested quantity.
func (t *Tracker) ApplyFill(fill schema.Fill) (*Order, error) {
	o, ok := t.orders[fill.OrderID]
	if !ok {
		return nil, ErrUnknownOrder
	}
	if isTerminal(o.State) {
		return o, ErrInvalidTransition
	}
	qty := int64(fill.Qty)
	if qty <= 0 {
		return o, ErrInvalidFill
	}
	leaves := int64(o.LeavesQty) - qty
	if leaves <= 0 {
		o.LeavesQty = 0
		o.State = schema.OrderStateFilled
	} else {
		o.LeavesQty = schema.Quantity(leaves)
		o.State = schema.OrderStatePartFilled
	}
	return o, nil
}

// Cancel moves an open order to Canceled.
func (t *Tracker) Cancel(id uint64) (*Order, error) {
	o, ok := t.orders[id]
	if !ok {
		return nil, ErrUnknownOrder
	}
	if isTerminal(o.State) {
		return o, ErrInvalidTransition
	}
	o.State = schema.OrderStateCanceled
	return o, nil
}

// Reject moves an open order to Rejected.
func (t *Tracker) Reject(id uint64) (*Order, error) {
	o, ok := t.orders[id]
	if !ok {
		return nil, ErrUnknownOrder
	}
	if isTerminal(o.State) {
		return o, ErrInvalidTransition
	}
	o.State = schema.OrderStateRejected
	return o, nil
}

// Open returns all non-terminal orders.
func (t *Tracker) Open() []*Order {
	out := make([]*Order, 0, len(t.orders))
	for _, o := range t.orders {
		if !isTerminal(o.State) {
			out = append(out, o)
		}
	}
	return out
}

func isTerminal(state schema.OrderState) bool {
	switch state {
	case schema.OrderStateFilled, schema.OrderStateCanceled, schema.OrderStateRejected:
		return true
	default:
		return false
	}
}
