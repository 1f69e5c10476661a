package schema

// Price is a scaled integer. The scale is defined per symbol in the registry.
type Price int64

// Quantity is a scaled integer. The scale is defined per symbol in the registry.
type Quantity int64

// Notional is a scaled integer. The scale is defined per symbol in the registry.
type Notional int64

// Fee is a scaled integer. The scale is defined per symbol in the registry.
type Fee int64

// OrderSide describes order direction.
type OrderSide uint16

const (
	OrderSideUnknown OrderSide = iota
	OrderSideBuy
	OrderSideSell
)

// OrderType describes order type.
type OrderType uint16

const (
	OrderTypeUnknown OrderType = iota
	OrderTypeMarket
	OrderTypeLimit
)

// OrderState tracks the lifecycle of an order. Pending->Approved/Rejected
// transitions belong to the risk engine; everything after Approved belongs
// to the execution coordinator.
type OrderState uint16

const (
	OrderStateUnknown OrderState = iota
	OrderStatePending
	OrderStateApproved
	OrderStateRejected
	OrderStateSubmitted
	OrderStatePartFilled
	OrderStateFilled
	OrderStateCanceled
)

// MarketTick is the payload for EventMarketTick.
type MarketTick struct {
	SymbolID uint32
	Flags    uint16
	Price    Price
	Size     Quantity
	BidPrice Price
	BidSize  Quantity
	AskPrice Price
	AskSize  Quantity
}

// Bar is the payload for EventBar.
type Bar struct {
	SymbolID uint32
	Flags    uint16
	Open     Price
	High     Price
	Low      Price
	Close    Price
	Volume   Quantity
}

// OrderIntent is the payload for EventOrderIntent.
type OrderIntent struct {
	OrderID    uint64
	StrategyID uint32
	SymbolID   uint32
	Side       OrderSide
	Type       OrderType
	Flags      uint16
	Price      Price
	Qty        Quantity
}

// OrderApproved is the payload for EventOrderApproved. Qty may differ from
// OrigQty when the risk engine resized the order.
type OrderApproved struct {
	OrderID    uint64
	StrategyID uint32
	SymbolID   uint32
	Side       OrderSide
	Type       OrderType
	Flags      uint16
	Price      Price
	Qty        Quantity
	OrigQty    Quantity
}

// RejectReason is a coarse reason code for order rejections.
type RejectReason uint16

const (
	RejectReasonNone RejectReason = iota
	RejectReasonDrawdownBreach
	RejectReasonVaRBreach
	RejectReasonCorrelationBreach
	RejectReasonPositionSizeBreach
	RejectReasonBrokerTimeout
	RejectReasonBrokerReject
	RejectReasonValidation
)

// RejectReasonCount is the number of known reject reasons including none.
const RejectReasonCount = int(RejectReasonValidation) + 1

// OrderRejected is the payload for EventOrderRejected.
type OrderRejected struct {
	OrderID    uint64
	StrategyID uint32
	SymbolID   uint32
	Reason     RejectReason
	Flags      uint16
}

// Fill is the payload for EventFill. FillID is the idempotency key for
// ledger application.
type Fill struct {
	FillID   uint64
	OrderID  uint64
	SymbolID uint32
	Side     OrderSide
	Flags    uint16
	Price    Price
	Qty      Quantity
	Fee      Fee
}

// Timer is the payload for EventTimer.
type Timer struct {
	TimerID uint64
	FireTs  int64
}

// RiskMetric identifies a risk limit.
type RiskMetric uint16

const (
	RiskMetricUnknown RiskMetric = iota
	RiskMetricDrawdown
	RiskMetricVaR
	RiskMetricCorrelation
	RiskMetricPositionSize
)

// BreachAction describes what the risk engine did about a breach.
type BreachAction uint16

const (
	BreachActionUnknown BreachAction = iota
	BreachActionRejected
	BreachActionResized
)

// RiskBreach is the payload for EventRiskBreach, emitted whenever the risk
// engine rejects or resizes an order.
type RiskBreach struct {
	OrderID  uint64
	SymbolID uint32
	Metric   RiskMetric
	Action   BreachAction
	Observed float64
	Limit    float64
}

// SystemErrorCode classifies isolated component faults.
type SystemErrorCode uint16

const (
	SystemErrorUnknown SystemErrorCode = iota
	SystemErrorSubscriberPanic
	SystemErrorSubscriberError
	SystemErrorClockFault
	SystemErrorStaleTick
)

// SystemError is the payload for EventSystemError. The fault is isolated to
// the reporting component; the run continues.
type SystemError struct {
	Source uint16
	Code   SystemErrorCode
	Seq    uint64
}

func (MarketTick) EventType() EventType    { return EventMarketTick }
func (Bar) EventType() EventType           { return EventBar }
func (OrderIntent) EventType() EventType   { return EventOrderIntent }
func (OrderApproved) EventType() EventType { return EventOrderApproved }
func (OrderRejected) EventType() EventType { return EventOrderRejected }
func (Fill) EventType() EventType          { return EventFill }
func (Timer) EventType() EventType         { return EventTimer }
func (RiskBreach) EventType() EventType    { return EventRiskBreach }
func (SystemError) EventType() EventType   { return EventSystemError }

func (r RejectReason) String() string {
	switch r {
	case RejectReasonNone:
		return "none"
	case RejectReasonDrawdownBreach:
		return "drawdown_breach"
	case RejectReasonVaRBreach:
		return "var_breach"
	case RejectReasonCorrelationBreach:
		return "correlation_breach"
	case RejectReasonPositionSizeBreach:
		return "position_size_breach"
	case RejectReasonBrokerTimeout:
		return "broker_timeout"
	case RejectReasonBrokerReject:
		return "broker_reject"
	case RejectReasonValidation:
		return "validation"
	default:
		return "unknown"
	}
}

func (s OrderSide) String() string {
	switch s {
	case OrderSideBuy:
		return "buy"
	case OrderSideSell:
		return "sell"
	default:
		return "unknown"
	}
}
