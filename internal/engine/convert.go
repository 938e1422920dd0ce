package engine

import (
	"math"

	"github.com/avrabe/wrt/api"
	"github.com/avrabe/wrt/internal/moduleimage"
	"github.com/avrabe/wrt/internal/werr"
)

// Conversion tags carried in Op.B1 for OpKindConversion. Grounded on a
// production interpreter's OperationKindI32WrapFromI64/I64ExtendFromI32/.../F64PromoteFromF32
// dispatch cases, flattened into one tag space private to this package.
const (
	convWrapI64ToI32 byte = iota
	convExtendI32ToI64S
	convExtendI32ToI64U
	convTruncF32ToI32S
	convTruncF32ToI32U
	convTruncF64ToI32S
	convTruncF64ToI32U
	convTruncF32ToI64S
	convTruncF32ToI64U
	convTruncF64ToI64S
	convTruncF64ToI64U
	convConvertI32ToF32S
	convConvertI32ToF32U
	convConvertI64ToF32S
	convConvertI64ToF32U
	convConvertI32ToF64S
	convConvertI32ToF64U
	convConvertI64ToF64S
	convConvertI64ToF64U
	convDemoteF64ToF32
	convPromoteF32ToF64
	convReinterpretF32ToI32
	convReinterpretI32ToF32
	convReinterpretF64ToI64
	convReinterpretI64ToF64
)

// convert pops one operand, converts it per op.B1, and pushes the
// result -- float-to-integer truncation out of range or of a NaN traps
// TrapIntegerOverflow rather than producing Go's saturating/undefined
// conversion result, matching Wasm's trapping truncation semantics.
func (e *Engine) convert(op moduleimage.Op) error {
	v, err := e.operand.Pop()
	if err != nil {
		return err
	}

	switch op.B1 {
	case convWrapI64ToI32:
		return e.operand.Push(moduleimage.I32(uint32(v.Lo)))
	case convExtendI32ToI64S:
		return e.operand.Push(moduleimage.I64(uint64(int64(int32(uint32(v.Lo))))))
	case convExtendI32ToI64U:
		return e.operand.Push(moduleimage.I64(uint64(uint32(v.Lo))))

	case convTruncF32ToI32S:
		return e.truncToI32(op.PC, float64(math.Float32frombits(uint32(v.Lo))), -2147483648, 2147483647, true)
	case convTruncF32ToI32U:
		return e.truncToI32(op.PC, float64(math.Float32frombits(uint32(v.Lo))), 0, 4294967295, false)
	case convTruncF64ToI32S:
		return e.truncToI32(op.PC, math.Float64frombits(v.Lo), -2147483648, 2147483647, true)
	case convTruncF64ToI32U:
		return e.truncToI32(op.PC, math.Float64frombits(v.Lo), 0, 4294967295, false)
	case convTruncF32ToI64S:
		return e.truncToI64(op.PC, float64(math.Float32frombits(uint32(v.Lo))), math.MinInt64, math.MaxInt64, true)
	case convTruncF32ToI64U:
		return e.truncToI64(op.PC, float64(math.Float32frombits(uint32(v.Lo))), 0, math.MaxUint64, false)
	case convTruncF64ToI64S:
		return e.truncToI64(op.PC, math.Float64frombits(v.Lo), math.MinInt64, math.MaxInt64, true)
	case convTruncF64ToI64U:
		return e.truncToI64(op.PC, math.Float64frombits(v.Lo), 0, math.MaxUint64, false)

	case convConvertI32ToF32S:
		return e.operand.Push(moduleimage.F32(math.Float32bits(float32(int32(uint32(v.Lo))))))
	case convConvertI32ToF32U:
		return e.operand.Push(moduleimage.F32(math.Float32bits(float32(uint32(v.Lo)))))
	case convConvertI64ToF32S:
		return e.operand.Push(moduleimage.F32(math.Float32bits(float32(int64(v.Lo)))))
	case convConvertI64ToF32U:
		return e.operand.Push(moduleimage.F32(math.Float32bits(float32(v.Lo))))
	case convConvertI32ToF64S:
		return e.operand.Push(moduleimage.F64(math.Float64bits(float64(int32(uint32(v.Lo))))))
	case convConvertI32ToF64U:
		return e.operand.Push(moduleimage.F64(math.Float64bits(float64(uint32(v.Lo)))))
	case convConvertI64ToF64S:
		return e.operand.Push(moduleimage.F64(math.Float64bits(float64(int64(v.Lo)))))
	case convConvertI64ToF64U:
		return e.operand.Push(moduleimage.F64(math.Float64bits(float64(v.Lo))))

	case convDemoteF64ToF32:
		return e.operand.Push(moduleimage.F32(math.Float32bits(float32(math.Float64frombits(v.Lo)))))
	case convPromoteF32ToF64:
		return e.operand.Push(moduleimage.F64(math.Float64bits(float64(math.Float32frombits(uint32(v.Lo))))))

	case convReinterpretF32ToI32, convReinterpretI32ToF32:
		return e.operand.Push(moduleimage.Value{Type: reinterpretedType(op.B1), Lo: v.Lo})
	case convReinterpretF64ToI64, convReinterpretI64ToF64:
		return e.operand.Push(moduleimage.Value{Type: reinterpretedType(op.B1), Lo: v.Lo})
	}
	return e.trapNow(werr.TrapUnreachable, op.PC)
}

func reinterpretedType(kind byte) api.ValueType {
	switch kind {
	case convReinterpretF32ToI32:
		return api.ValueTypeI32
	case convReinterpretI32ToF32:
		return api.ValueTypeF32
	case convReinterpretF64ToI64:
		return api.ValueTypeI64
	default:
		return api.ValueTypeF64
	}
}

// truncToI32/truncToI64 convert f to a 32-/64-bit integer, trapping
// TrapIntegerOverflow on NaN or on a magnitude out of [lo, hi] --
// Wasm's trunc instructions trap rather than saturate, unlike Go's
// float-to-int conversion.
func (e *Engine) truncToI32(pc uint32, f, lo, hi float64, signed bool) error {
	if math.IsNaN(f) || f < lo || f > hi {
		return e.trapNow(werr.TrapIntegerOverflow, pc)
	}
	if signed {
		return e.operand.Push(moduleimage.I32(uint32(int32(f))))
	}
	return e.operand.Push(moduleimage.I32(uint32(f)))
}

func (e *Engine) truncToI64(pc uint32, f, lo, hi float64, signed bool) error {
	// hi (MaxInt64/MaxUint64) rounds up to 2^63/2^64 as a float64, itself
	// out of range, so the upper bound is exclusive here.
	if math.IsNaN(f) || f < lo || f >= hi {
		return e.trapNow(werr.TrapIntegerOverflow, pc)
	}
	if signed {
		return e.operand.Push(moduleimage.I64(uint64(int64(f))))
	}
	return e.operand.Push(moduleimage.I64(uint64(f)))
}
