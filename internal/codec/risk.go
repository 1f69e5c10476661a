package codec

import (
	"encoding/binary"
	"math"

	"main/internal/schema"
)

const RiskBreachPayloadSize = 32

// EncodeRiskBreach serializes a risk breach into a fixed-size payload.
func EncodeRiskBreach(dst []byte, breach schema.RiskBreach) []byte {
	if cap(dst) < RiskBreachPayloadSize {
		dst = make([]byte, RiskBreachPayloadSize)
	} else {
		dst = dst[:RiskBreachPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], breach.OrderID)
	binary.LittleEndian.PutUint32(dst[8:12], breach.SymbolID)
	binary.LittleEndian.PutUint16(dst[12:14], uint16(breach.Metric))
	binary.LittleEndian.PutUint16(dst[14:16], uint16(breach.Action))
	binary.LittleEndian.PutUint64(dst[16:24], math.Float64bits(breach.Observed))
	binary.LittleEndian.PutUint64(dst[24:32], math.Float64bits(breach.Limit))

	return dst
}

// DecodeRiskBreach parses a fixed-size risk breach payload.
func DecodeRiskBreach(src []byte) (schema.RiskBreach, bool) {
	if len(src) < RiskBreachPayloadSize {
		return schema.RiskBreach{}, false
	}
	return schema.RiskBreach{
		OrderID:  binary.LittleEndian.Uint64(src[0:8]),
		SymbolID: binary.LittleEndian.Uint32(src[8:12]),
		Metric:   schema.RiskMetric(binary.LittleEndian.Uint16(src[12:14])),
		Action:   schema.BreachAction(binary.LittleEndian.Uint16(src[14:16])),
		Observed: math.Float64frombits(binary.LittleEndian.Uint64(src[16:24])),
		Limit:    math.Float64frombits(binary.LittleEndian.Uint64(src[24:32])),
	}, true
}

const SystemErrorPayloadSize = 16

// EncodeSystemError serializes a system error into a fixed-size payload.
func EncodeSystemError(dst []byte, sysErr schema.SystemError) []byte {
	if cap(dst) < SystemErrorPayloadSize {
		dst = make([]byte, SystemErrorPayloadSize)
	} else {
		dst = dst[:SystemErrorPayloadSize]
	}

	binary.LittleEndian.PutUint16(dst[0:2], sysErr.Source)
	binary.LittleEndian.PutUint16(dst[2:4], uint16(sysErr.Code))
	binary.LittleEndian.PutUint32(dst[4:8], 0)
	binary.LittleEndian.PutUint64(dst[8:16], sysErr.Seq)

	return dst
}

// DecodeSystemError parses a fixed-size system error payload.
func DecodeSystemError(src []byte) (schema.SystemError, bool) {
	if len(src) < SystemErrorPayloadSize {
		return schema.SystemError{}, false
	}
	return schema.SystemError{
		Source: binary.LittleEndian.Uint16(src[0:2]),
		Code:   schema.SystemErrorCode(binary.LittleEndian.Uint16(src[2:4])),
		Seq:    binary.LittleEndian.Uint64(src[8:16]),
	}, true
}
