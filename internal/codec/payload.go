package codec

import (
	"errors"

	"main/internal/schema"
)

var ErrUnknownPayload = errors.New("unknown payload type")

// EncodePayload serializes any known payload for journaling.
func EncodePayload(dst []byte, payload schema.Payload) ([]byte, error) {
	switch p := payload.(type) {
	case schema.MarketTick:
		return EncodeMarketTick(dst, p), nil
	case schema.Bar:
		return EncodeBar(dst, p), nil
	case schema.OrderIntent:
		return EncodeOrderIntent(dst, p), nil
	case schema.OrderApproved:
		return EncodeOrderApproved(dst, p), nil
	case schema.OrderRejected:
		return EncodeOrderRejected(dst, p), nil
	case schema.Fill:
		return EncodeFill(dst, p), nil
	case schema.Timer:
		return EncodeTimer(dst, p), nil
	case schema.RiskBreach:
		return EncodeRiskBreach(dst, p), nil
	case schema.SystemError:
		return EncodeSystemError(dst, p), nil
	default:
		return nil, ErrUnknownPayload
	}
}

// DecodePayload parses a journaled payload by event type.
func DecodePayload(eventType schema.EventType, src []byte) (schema.Payload, bool) {
	switch eventType {
	case schema.EventMarketTick:
		return decode(DecodeMarketTick(src))
	case schema.EventBar:
		return decode(DecodeBar(src))
	case schema.EventOrderIntent:
		return decode(DecodeOrderIntent(src))
	case schema.EventOrderApproved:
		return decode(DecodeOrderApproved(src))
	case schema.EventOrderRejected:
		return decode(DecodeOrderRejected(src))
	case schema.EventFill:
		return decode(DecodeFill(src))
	case schema.EventTimer:
		return decode(DecodeTimer(src))
	case schema.EventRiskBreach:
		return decode(DecodeRiskBreach(src))
	case schema.EventSystemError:
		return decode(DecodeSystemError(src))
	default:
		return nil, false
	}
}

func decode[T schema.Payload](payload T, ok bool) (schema.Payload, bool) {
	if !ok {
		return nil, false
	}
	return payload, true
}
