package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const OrderIntentPayloadSize = 40

// EncodeOrderIntent serializes an order intent into a fixed-size payload.
func EncodeOrderIntent(dst []byte, intent schema.OrderIntent) []byte {
	if cap(dst) < OrderIntentPayloadSize {
		dst = make([]byte, OrderIntentPayloadSize)
	} else {
		dst = dst[:OrderIntentPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], intent.OrderID)
	binary.LittleEndian.PutUint32(dst[8:12], intent.StrategyID)
	binary.LittleEndian.PutUint32(dst[12:16], intent.SymbolID)
	binary.LittleEndian.PutUint16(dst[16:18], uint16(intent.Side))
	binary.LittleEndian.PutUint16(dst[18:20], uint16(intent.Type))
	binary.LittleEndian.PutUint16(dst[20:22], intent.Flags)
	binary.LittleEndian.PutUint16(dst[22:24], 0)
	binary.LittleEndian.PutUint64(dst[24:32], uint64(intent.Price))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(intent.Qty))

	return dst
}

// DecodeOrderIntent parses a fixed-size order intent payload.
func DecodeOrderIntent(src []byte) (schema.OrderIntent, bool) {
	if len(src) < OrderIntentPayloadSize {
		return schema.OrderIntent{}, false
	}
	return schema.OrderIntent{
		OrderID:    binary.LittleEndian.Uint64(src[0:8]),
		StrategyID: binary.LittleEndian.Uint32(src[8:12]),
		SymbolID:   binary.LittleEndian.Uint32(src[12:16]),
		Side:       schema.OrderSide(binary.LittleEndian.Uint16(src[16:18])),
		Type:       schema.OrderType(binary.LittleEndian.Uint16(src[18:20])),
		Flags:      binary.LittleEndian.Uint16(src[20:22]),
		Price:      schema.Price(int64(binary.LittleEndian.Uint64(src[24:32]))),
		Qty:        schema.Quantity(int64(binary.LittleEndian.Uint64(src[32:40]))),
	}, true
}

const OrderApprovedPayloadSize = 48

// EncodeOrderApproved serializes an approval into a fixed-size payload.
func EncodeOrderApproved(dst []byte, approved schema.OrderApproved) []byte {
	if cap(dst) < OrderApprovedPayloadSize {
		dst = make([]byte, OrderApprovedPayloadSize)
	} else {
		dst = dst[:OrderApprovedPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], approved.OrderID)
	binary.LittleEndian.PutUint32(dst[8:12], approved.StrategyID)
	binary.LittleEndian.PutUint32(dst[12:16], approved.SymbolID)
	binary.LittleEndian.PutUint16(dst[16:18], uint16(approved.Side))
	binary.LittleEndian.PutUint16(dst[18:20], uint16(approved.Type))
	binary.LittleEndian.PutUint16(dst[20:22], approved.Flags)
	binary.LittleEndian.PutUint16(dst[22:24], 0)
	binary.LittleEndian.PutUint64(dst[24:32], uint64(approved.Price))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(approved.Qty))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(approved.OrigQty))

	return dst
}

// DecodeOrderApproved parses a fixed-size approval payload.
func DecodeOrderApproved(src []byte) (schema.OrderApproved, bool) {
	if len(src) < OrderApprovedPayloadSize {
		return schema.OrderApproved{}, false
	}
	return schema.OrderApproved{
		OrderID:    binary.LittleEndian.Uint64(src[0:8]),
		StrategyID: binary.LittleEndian.Uint32(src[8:12]),
		SymbolID:   binary.LittleEndian.Uint32(src[12:16]),
		Side:       schema.OrderSide(binary.LittleEndian.Uint16(src[16:18])),
		Type:       schema.OrderType(binary.LittleEndian.Uint16(src[18:20])),
		Flags:      binary.LittleEndian.Uint16(src[20:22]),
		Price:      schema.Price(int64(binary.LittleEndian.Uint64(src[24:32]))),
		Qty:        schema.Quantity(int64(binary.LittleEndian.Uint64(src[32:40]))),
		OrigQty:    schema.Quantity(int64(binary.LittleEndian.Uint64(src[40:48]))),
	}, true
}

const OrderRejectedPayloadSize = 24

// EncodeOrderRejected serializes a rejection into a fixed-size payload.
func EncodeOrderRejected(dst []byte, rejected schema.OrderRejected) []byte {
	if cap(dst) < OrderRejectedPayloadSize {
		dst = make([]byte, OrderRejectedPayloadSize)
	} else {
		dst = dst[:OrderRejectedPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], rejected.OrderID)
	binary.LittleEndian.PutUint32(dst[8:12], rejected.StrategyID)
	binary.LittleEndian.PutUint32(dst[12:16], rejected.SymbolID)
	binary.LittleEndian.PutUint16(dst[16:18], uint16(rejected.Reason))
	binary.LittleEndian.PutUint16(dst[18:20], rejected.Flags)
	binary.LittleEndian.PutUint32(dst[20:24], 0)

	return dst
}

// DecodeOrderRejected parses a fixed-size rejection payload.
func DecodeOrderRejected(src []byte) (schema.OrderRejected, bool) {
	if len(src) < OrderRejectedPayloadSize {
		return schema.OrderRejected{}, false
	}
	return schema.OrderRejected{
		OrderID:    binary.LittleEndian.Uint64(src[0:8]),
		StrategyID: binary.LittleEndian.Uint32(src[8:12]),
		SymbolID:   binary.LittleEndian.Uint32(src[12:16]),
		Reason:     schema.RejectReason(binary.LittleEndian.Uint16(src[16:18])),
		Flags:      binary.LittleEndian.Uint16(src[18:20]),
	}, true
}
