package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const MarketTickPayloadSize = 56

// EncodeMarketTick serializes a tick into a fixed-size payload.
func EncodeMarketTick(dst []byte, tick schema.MarketTick) []byte {
	if cap(dst) < MarketTickPayloadSize {
		dst = make([]byte, MarketTickPayloadSize)
	} else {
		dst = dst[:MarketTickPayloadSize]
	}

	binary.LittleEndian.PutUint32(dst[0:4], tick.SymbolID)
	binary.LittleEndian.PutUint16(dst[4:6], tick.Flags)
	binary.LittleEndian.PutUint16(dst[6:8], 0)
	binary.LittleEndian.PutUint64(dst[8:16], uint64(tick.Price))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(tick.Size))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(tick.BidPrice))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(tick.BidSize))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(tick.AskPrice))
	binary.LittleEndian.PutUint64(dst[48:56], uint64(tick.AskSize))

	return dst
}

// DecodeMarketTick parses a fixed-size tick payload.
func DecodeMarketTick(src []byte) (schema.MarketTick, bool) {
	if len(src) < MarketTickPayloadSize {
		return schema.MarketTick{}, false
	}
	return schema.MarketTick{
		SymbolID: binary.LittleEndian.Uint32(src[0:4]),
		Flags:    binary.LittleEndian.Uint16(src[4:6]),
		Price:    schema.Price(int64(binary.LittleEndian.Uint64(src[8:16]))),
		Size:     schema.Quantity(int64(binary.LittleEndian.Uint64(src[16:24]))),
		BidPrice: schema.Price(int64(binary.LittleEndian.Uint64(src[24:32]))),
		BidSize:  schema.Quantity(int64(binary.LittleEndian.Uint64(src[32:40]))),
		AskPrice: schema.Price(int64(binary.LittleEndian.Uint64(src[40:48]))),
		AskSize:  schema.Quantity(int64(binary.LittleEndian.Uint64(src[48:56]))),
	}, true
}

const BarPayloadSize = 48

// EncodeBar serializes a bar into a fixed-size payload.
func EncodeBar(dst []byte, bar schema.Bar) []byte {
	if cap(dst) < BarPayloadSize {
		dst = make([]byte, BarPayloadSize)
	} else {
		dst = dst[:BarPayloadSize]
	}

	binary.LittleEndian.PutUint32(dst[0:4], bar.SymbolID)
	binary.LittleEndian.PutUint16(dst[4:6], bar.Flags)
	binary.LittleEndian.PutUint16(dst[6:8], 0)
	binary.LittleEndian.PutUint64(dst[8:16], uint64(bar.Open))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(bar.High))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(bar.Low))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(bar.Close))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(bar.Volume))

	return dst
}

// DecodeBar parses a fixed-size bar payload.
func DecodeBar(src []byte) (schema.Bar, bool) {
	if len(src) < BarPayloadSize {
		return schema.Bar{}, false
	}
	return schema.Bar{
		SymbolID: binary.LittleEndian.Uint32(src[0:4]),
		Flags:    binary.LittleEndian.Uint16(src[4:6]),
		Open:     schema.Price(int64(binary.LittleEndian.Uint64(src[8:16]))),
		High:     schema.Price(int64(binary.LittleEndian.Uint64(src[16:24]))),
		Low:      schema.Price(int64(binary.LittleEndian.Uint64(src[24:32]))),
		Close:    schema.Price(int64(binary.LittleEndian.Uint64(src[32:40]))),
		Volume:   schema.Quantity(int64(binary.LittleEndian.Uint64(src[40:48]))),
	}, true
}
