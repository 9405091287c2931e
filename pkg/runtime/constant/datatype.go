package constant

import (
	"encoding/json"
	"fmt"
	"strings"
)

type DataType int8

const (
	BOOL DataType = iota
	SINT
	USINT
	BYTE
	INT
	UINT
	WORD
	CHAR
	WCHAR
	DINT
	UDINT
	DWORD
	REAL
	LINT
	ULINT
	LWORD
	LREAL
	DINT_SWAP
	UDINT_SWAP
	DWORD_SWAP
	REAL_SWAP
	LINT_SWAP
	ULINT_SWAP
	LWORD_SWAP
	LREAL_SWAP
)

var DataTypeToString = map[DataType]string{
	BOOL:       "BOOL",
	SINT:       "SINT",
	USINT:      "USINT",
	BYTE:       "BYTE",
	INT:        "INT",
	UINT:       "UINT",
	WORD:       "WORD",
	CHAR:       "CHAR",
	WCHAR:      "WCHAR",
	DINT:       "DINT",
	UDINT:      "UDINT",
	DWORD:      "DWORD",
	REAL:       "REAL",
	LINT:       "LINT",
	ULINT:      "ULINT",
	LWORD:      "LWORD",
	LREAL:      "LREAL",
	DINT_SWAP:  "DINT_SWAP",
	UDINT_SWAP: "UDINT_SWAP",
	DWORD_SWAP: "DWORD_SWAP",
	REAL_SWAP:  "REAL_SWAP",
	LINT_SWAP:  "LINT_SWAP",
	ULINT_SWAP: "ULINT_SWAP",
	LWORD_SWAP: "LWORD_SWAP",
	LREAL_SWAP: "LREAL_SWAP",
}

// StringToDataType also accepts the go style aliases used by older configs.
var StringToDataType = map[string]DataType{
	"BOOL":       BOOL,
	"SINT":       SINT,
	"USINT":      USINT,
	"BYTE":       BYTE,
	"INT":        INT,
	"UINT":       UINT,
	"WORD":       WORD,
	"CHAR":       CHAR,
	"WCHAR":      WCHAR,
	"DINT":       DINT,
	"UDINT":      UDINT,
	"DWORD":      DWORD,
	"REAL":       REAL,
	"LINT":       LINT,
	"ULINT":      ULINT,
	"LWORD":      LWORD,
	"LREAL":      LREAL,
	"DINT_SWAP":  DINT_SWAP,
	"UDINT_SWAP": UDINT_SWAP,
	"DWORD_SWAP": DWORD_SWAP,
	"REAL_SWAP":  REAL_SWAP,
	"LINT_SWAP":  LINT_SWAP,
	"ULINT_SWAP": ULINT_SWAP,
	"LWORD_SWAP": LWORD_SWAP,
	"LREAL_SWAP": LREAL_SWAP,
	"bool":       BOOL,
	"int8":       SINT,
	"uint8":      USINT,
	"int16":      INT,
	"uint16":     UINT,
	"int32":      DINT,
	"uint32":     UDINT,
	"float32":    REAL,
	"int64":      LINT,
	"uint64":     ULINT,
	"float64":    LREAL,
}

// DataTypeWord 每种类型占用的寄存器数量
var DataTypeWord = map[DataType]int{
	BOOL:       1,
	SINT:       1,
	USINT:      1,
	BYTE:       1,
	INT:        1,
	UINT:       1,
	WORD:       1,
	CHAR:       1,
	WCHAR:      1,
	DINT:       2,
	UDINT:      2,
	DWORD:      2,
	REAL:       2,
	LINT:       4,
	ULINT:      4,
	LWORD:      4,
	LREAL:      4,
	DINT_SWAP:  2,
	UDINT_SWAP: 2,
	DWORD_SWAP: 2,
	REAL_SWAP:  2,
	LINT_SWAP:  4,
	ULINT_SWAP: 4,
	LWORD_SWAP: 4,
	LREAL_SWAP: 4,
}

var swapBase = map[DataType]DataType{
	DINT_SWAP:  DINT,
	UDINT_SWAP: UDINT,
	DWORD_SWAP: DWORD,
	REAL_SWAP:  REAL,
	LINT_SWAP:  LINT,
	ULINT_SWAP: ULINT,
	LWORD_SWAP: LWORD,
	LREAL_SWAP: LREAL,
}

func ParseDataType(s string) (DataType, error) {
	if v, ok := StringToDataType[s]; ok {
		return v, nil
	}
	if v, ok := StringToDataType[strings.ToUpper(s)]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("unknown data type %s", s)
}

func (dt DataType) String() string {
	if s, ok := DataTypeToString[dt]; ok {
		return s
	}
	return fmt.Sprintf("DataType(%d)", int8(dt))
}

// RegisterCount returns how many 16-bit registers one value occupies.
func (dt DataType) RegisterCount() int {
	if n, ok := DataTypeWord[dt]; ok {
		return n
	}
	return 1
}

// IsSwapped reports whether the type inverts the configured word order.
func (dt DataType) IsSwapped() bool {
	_, ok := swapBase[dt]
	return ok
}

// Base strips the _SWAP suffix.
func (dt DataType) Base() DataType {
	if b, ok := swapBase[dt]; ok {
		return b
	}
	return dt
}

func (dt DataType) MarshalJSON() ([]byte, error) {
	if s, ok := DataTypeToString[dt]; ok {
		return json.Marshal(s)
	}
	return nil, fmt.Errorf("unknown data type %d", dt)
}

func (dt *DataType) UnmarshalJSON(bytes []byte) error {
	var s string
	if err := json.Unmarshal(bytes, &s); err != nil {
		return err
	}

	v, err := ParseDataType(s)
	if err != nil {
		return err
	}
	*dt = v
	return nil
}
