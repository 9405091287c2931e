package constant

import (
	"encoding/json"
	"fmt"
	"strings"
)

type MemoryArea int8

const (
	COIL MemoryArea = iota
	DISCRETE
	HOLDING
	INPUT
)

var MemoryAreaToString = map[MemoryArea]string{
	COIL:     "COIL",
	DISCRETE: "DISCRETE",
	HOLDING:  "HOLDING",
	INPUT:    "INPUT",
}

var StringToMemoryArea = map[string]MemoryArea{
	"COIL":     COIL,
	"DISCRETE": DISCRETE,
	"HOLDING":  HOLDING,
	"INPUT":    INPUT,
}

// 读功能码
var memoryAreaReadFunction = map[MemoryArea]uint8{
	COIL:     0x01,
	DISCRETE: 0x02,
	HOLDING:  0x03,
	INPUT:    0x04,
}

func ParseMemoryArea(s string) (MemoryArea, error) {
	if v, ok := StringToMemoryArea[strings.ToUpper(s)]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("unknown memory area %s", s)
}

func (ma MemoryArea) String() string {
	if s, ok := MemoryAreaToString[ma]; ok {
		return s
	}
	return fmt.Sprintf("MemoryArea(%d)", int8(ma))
}

func (ma MemoryArea) ReadFunctionCode() uint8 {
	return memoryAreaReadFunction[ma]
}

// IsBit reports whether the area is addressed in single bits.
func (ma MemoryArea) IsBit() bool {
	return ma == COIL || ma == DISCRETE
}

func (ma MemoryArea) Writable() bool {
	return ma == COIL || ma == HOLDING
}

func (ma MemoryArea) MarshalJSON() ([]byte, error) {
	if s, ok := MemoryAreaToString[ma]; ok {
		return json.Marshal(s)
	}
	return nil, fmt.Errorf("unknown memory area %d", ma)
}

func (ma *MemoryArea) UnmarshalJSON(bytes []byte) error {
	var s string
	if err := json.Unmarshal(bytes, &s); err != nil {
		return err
	}
	v, err := ParseMemoryArea(s)
	if err != nil {
		return err
	}
	*ma = v
	return nil
}
