package converter

import (
	"errors"
	"fmt"
	"math"

	"modbusgateway/pkg/runtime/constant"
	"modbusgateway/pkg/utils/binutil"
)

var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrRegisterCount    = errors.New("register count too small for data type")
	ErrNotFinite        = errors.New("value is not a finite number")
	ErrUnsupportedValue = errors.New("unsupported value")
)

const (
	readCoils          = 0x01
	readDiscreteInputs = 0x02
)

// BytesToValue decodes one value from the data bytes of a read response.
// For bit reads offset is a bit index, otherwise a register index.
func BytesToValue(data []byte, offset, registerCount int, dataType constant.DataType, layout constant.MemoryLayout, functionCode uint8) (interface{}, error) {
	if offset < 0 {
		return nil, fmt.Errorf("%w: negative offset %d", ErrInsufficientData, offset)
	}
	if functionCode == readCoils || functionCode == readDiscreteInputs {
		if offset/8 >= len(data) {
			return nil, fmt.Errorf("%w: bit %d of %d bytes", ErrInsufficientData, offset, len(data))
		}
		return binutil.BitAt(data, offset), nil
	}

	dataType = RegisterValueType(dataType, registerCount)
	words := dataType.RegisterCount()
	if registerCount < words {
		return nil, fmt.Errorf("%w: %s needs %d registers, got %d", ErrRegisterCount, dataType, words, registerCount)
	}
	start := offset * 2
	end := start + words*2
	if end > len(data) {
		return nil, fmt.Errorf("%w: need bytes [%d,%d) of %d", ErrInsufficientData, start, end, len(data))
	}
	b := canonical(binutil.Dup(data[start:end]), dataType, layout)
	return decode(b, dataType)
}

// ValueToRegisterBytes encodes value into registerCount registers laid out in the device byte order.
func ValueToRegisterBytes(value interface{}, registerCount int, dataType constant.DataType, layout constant.MemoryLayout) ([]byte, error) {
	dataType = RegisterValueType(dataType, registerCount)
	words := dataType.RegisterCount()
	if registerCount < words {
		return nil, fmt.Errorf("%w: %s needs %d registers, got %d", ErrRegisterCount, dataType, words, registerCount)
	}
	b := make([]byte, words*2)
	if err := encode(b, value, dataType); err != nil {
		return nil, err
	}
	out := make([]byte, registerCount*2)
	copy(out, canonical(b, dataType, layout))
	return out, nil
}

// RegisterValueType is the type a value spanning registerCount registers is handled as. When the
// count differs from the width of dataType, 1, 2 and 4 registers are unsigned 16, signed 32 and
// signed 64 bit; other counts keep dataType.
func RegisterValueType(dataType constant.DataType, registerCount int) constant.DataType {
	if registerCount == dataType.RegisterCount() {
		return dataType
	}
	switch registerCount {
	case 1:
		return constant.UINT
	case 2:
		return constant.DINT
	case 4:
		return constant.LINT
	default:
		return dataType
	}
}

// canonical converts between the device layout and ABCD, both directions are the same permutation.
func canonical(b []byte, dataType constant.DataType, layout constant.MemoryLayout) []byte {
	if !layout.BigEndianBytes() {
		binutil.SwapBytesInWords(b)
	}
	if layout.HighWordFirst() == dataType.IsSwapped() {
		binutil.ReverseWords(b)
	}
	return b
}

func decode(b []byte, dataType constant.DataType) (interface{}, error) {
	switch dataType.Base() {
	case constant.BOOL:
		return binutil.ParseUint16(b) != 0, nil
	case constant.SINT:
		return int8(b[1]), nil
	case constant.USINT, constant.BYTE:
		return b[1], nil
	case constant.INT:
		return int16(binutil.ParseUint16(b)), nil
	case constant.UINT, constant.WORD:
		return binutil.ParseUint16(b), nil
	case constant.CHAR:
		return string(rune(b[1])), nil
	case constant.WCHAR:
		return string(rune(binutil.ParseUint16(b))), nil
	case constant.DINT:
		return int32(binutil.ParseUint32(b)), nil
	case constant.UDINT, constant.DWORD:
		return binutil.ParseUint32(b), nil
	case constant.REAL:
		v := math.Float32frombits(binutil.ParseUint32(b))
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, ErrNotFinite
		}
		return v, nil
	case constant.LINT:
		return int64(binutil.ParseUint64(b)), nil
	case constant.ULINT, constant.LWORD:
		return binutil.ParseUint64(b), nil
	case constant.LREAL:
		v := math.Float64frombits(binutil.ParseUint64(b))
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, ErrNotFinite
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%w: data type %s", ErrUnsupportedValue, dataType)
	}
}

func encode(b []byte, value interface{}, dataType constant.DataType) error {
	switch dataType.Base() {
	case constant.BOOL:
		on, err := AsBool(value)
		if err != nil {
			return err
		}
		if on {
			binutil.WriteUint16(b, 1)
		}
	case constant.SINT, constant.USINT, constant.BYTE:
		v, err := AsInt64(value)
		if err != nil {
			return err
		}
		b[1] = byte(v)
	case constant.CHAR, constant.WCHAR:
		r, err := asRune(value)
		if err != nil {
			return err
		}
		if dataType == constant.CHAR {
			b[1] = byte(r)
		} else {
			binutil.WriteUint16(b, uint16(r))
		}
	case constant.INT, constant.UINT, constant.WORD:
		v, err := AsInt64(value)
		if err != nil {
			return err
		}
		binutil.WriteUint16(b, uint16(v))
	case constant.DINT, constant.UDINT, constant.DWORD:
		v, err := AsInt64(value)
		if err != nil {
			return err
		}
		binutil.WriteUint32(b, uint32(v))
	case constant.REAL:
		v, err := AsFloat64(value)
		if err != nil {
			return err
		}
		binutil.WriteUint32(b, math.Float32bits(float32(v)))
	case constant.LINT:
		v, err := AsInt64(value)
		if err != nil {
			return err
		}
		binutil.WriteUint64(b, uint64(v))
	case constant.ULINT, constant.LWORD:
		v, err := AsUint64(value)
		if err != nil {
			return err
		}
		binutil.WriteUint64(b, v)
	case constant.LREAL:
		v, err := AsFloat64(value)
		if err != nil {
			return err
		}
		binutil.WriteUint64(b, math.Float64bits(v))
	default:
		return fmt.Errorf("%w: data type %s", ErrUnsupportedValue, dataType)
	}
	return nil
}
