package schema

// SchemaVersion is the current event schema version.
const SchemaVersion uint16 = 1

// EventType defines the category of an event flowing through the bus.
type EventType uint16

const (
	EventUnknown EventType = iota
	EventMarketTick
	EventBar
	EventOrderIntent
	EventOrderApproved
	EventOrderRejected
	EventFill
	EventTimer
	EventRiskBreach
	EventSystemError
)

// EventTypeCount is the number of known event types including EventUnknown.
const EventTypeCount = int(EventSystemError) + 1

// EventHeader is the common metadata attached to every event.
// Seq is assigned by the bus at publish time and is the authoritative
// tie-break for events carrying the same timestamp.
type EventHeader struct {
	Type    EventType
	Version uint16
	Source  uint16
	Flags   uint16
	Seq     uint64
	TsEvent int64
	TsRecv  int64
	TraceID uint64
}

// NewHeader builds a header with the current schema version.
func NewHeader(eventType EventType, source uint16, tsEvent, tsRecv int64) EventHeader {
	return EventHeader{
		Type:    eventType,
		Version: SchemaVersion,
		Source:  source,
		TsEvent: tsEvent,
		TsRecv:  tsRecv,
	}
}

// Payload is implemented by every event payload struct.
type Payload interface {
	EventType() EventType
}

func (t EventType) String() string {
	switch t {
	case EventMarketTick:
		return "market_tick"
	case EventBar:
		return "bar"
	case EventOrderIntent:
		return "order_intent"
	case EventOrderApproved:
		return "order_approved"
	case EventOrderRejected:
		return "order_rejected"
	case EventFill:
		return "fill"
	case EventTimer:
		return "timer"
	case EventRiskBreach:
		return "risk_breach"
	case EventSystemError:
		return "system_error"
	default:
		return "unknown"
	}
}
