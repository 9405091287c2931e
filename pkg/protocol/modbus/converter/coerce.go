package converter

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"
)

// AsBool accepts booleans, numbers (non zero is true) and their string forms.
func AsBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b, nil
		}
	}
	f, err := AsFloat64(value)
	if err != nil {
		return false, fmt.Errorf("%w: %v (%T) as bool", ErrUnsupportedValue, value, value)
	}
	return f != 0, nil
}

func AsInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		if i, err := strconv.ParseInt(v, 0, 64); err == nil {
			return i, nil
		}
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
	}
	f, err := AsFloat64(value)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

func AsUint64(value interface{}) (uint64, error) {
	switch v := value.(type) {
	case uint64:
		return v, nil
	case string:
		if u, err := strconv.ParseUint(v, 0, 64); err == nil {
			return u, nil
		}
	case json.Number:
		if u, err := strconv.ParseUint(v.String(), 10, 64); err == nil {
			return u, nil
		}
	case float32, float64:
		f, _ := AsFloat64(v)
		if f >= math.MaxInt64 {
			return uint64(f), nil
		}
	}
	i, err := AsInt64(value)
	return uint64(i), err
}

func AsFloat64(value interface{}) (float64, error) {
	var f float64
	switch v := value.(type) {
	case float32:
		f = float64(v)
	case float64:
		f = v
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, bool:
		i, _ := AsInt64(v)
		if u, ok := v.(uint64); ok {
			return float64(u), nil
		}
		return float64(i), nil
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnsupportedValue, err)
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrUnsupportedValue, v)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("%w: %v (%T)", ErrUnsupportedValue, value, value)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrNotFinite
	}
	return f, nil
}

func asRune(value interface{}) (rune, error) {
	if s, ok := value.(string); ok {
		r, size := utf8.DecodeRuneInString(s)
		if size == 0 {
			return 0, fmt.Errorf("%w: empty string", ErrUnsupportedValue)
		}
		return r, nil
	}
	i, err := AsInt64(value)
	return rune(i), err
}
