package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const FillPayloadSize = 48

// EncodeFill serializes a fill into a fixed-size payload.
func EncodeFill(dst []byte, fill schema.Fill) []byte {
	if cap(dst) < FillPayloadSize {
		dst = make([]byte, FillPayloadSize)
	} else {
		dst = dst[:FillPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], fill.FillID)
	binary.LittleEndian.PutUint64(dst[8:16], fill.OrderID)
	binary.LittleEndian.PutUint32(dst[16:20], fill.SymbolID)
	binary.LittleEndian.PutUint16(dst[20:22], uint16(fill.Side))
	binary.LittleEndian.PutUint16(dst[22:24], fill.Flags)
	binary.LittleEndian.PutUint64(dst[24:32], uint64(fill.Price))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(fill.Qty))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(fill.Fee))

	return dst
}

// DecodeFill parses a fixed-size fill payload.
func DecodeFill(src []byte) (schema.Fill, bool) {
	if len(src) < FillPayloadSize {
		return schema.Fill{}, false
	}
	return schema.Fill{
		FillID:   binary.LittleEndian.Uint64(src[0:8]),
		OrderID:  binary.LittleEndian.Uint64(src[8:16]),
		SymbolID: binary.LittleEndian.Uint32(src[16:20]),
		Side:     schema.OrderSide(binary.LittleEndian.Uint16(src[20:22])),
		Flags:    binary.LittleEndian.Uint16(src[22:24]),
		Price:    schema.Price(int64(binary.LittleEndian.Uint64(src[24:32]))),
		Qty:      schema.Quantity(int64(binary.LittleEndian.Uint64(src[32:40]))),
		Fee:      schema.Fee(int64(binary.LittleEndian.Uint64(src[40:48]))),
	}, true
}

const TimerPayloadSize = 16

// EncodeTimer serializes a timer event into a fixed-size payload.
func EncodeTimer(dst []byte, timer schema.Timer) []byte {
	if cap(dst) < TimerPayloadSize {
		dst = make([]byte, TimerPayloadSize)
	} else {
		dst = dst[:TimerPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], timer.TimerID)
	binary.LittleEndian.PutUint64(dst[8:16], uint64(timer.FireTs))

	return dst
}

// DecodeTimer parses a fixed-size timer payload.
func DecodeTimer(src []byte) (schema.Timer, bool) {
	if len(src) < TimerPayloadSize {
		return schema.Timer{}, false
	}
	return schema.Timer{
		TimerID: binary.LittleEndian.Uint64(src[0:8]),
		FireTs:  int64(binary.LittleEndian.Uint64(src[8:16])),
	}, true
}
