package constant

import (
	"encoding/json"
	"fmt"
	"strings"
)

type MemoryLayout byte

const (
	DCBA MemoryLayout = iota // little-endian
	CDAB                     // big-endian word swap
	BADC                     // little-endian word swap
	ABCD                     // big-endian
)

var MemoryLayoutToString = map[MemoryLayout]string{
	DCBA: "DCBA",
	CDAB: "CDAB",
	BADC: "BADC",
	ABCD: "ABCD",
}

var StringToMemoryLayout = map[string]MemoryLayout{
	"DCBA":                    DCBA,
	"CDAB":                    CDAB,
	"BADC":                    BADC,
	"ABCD":                    ABCD,
	"BIG_ENDIAN":              ABCD,
	"LITTLE_ENDIAN":           DCBA,
	"BIG_ENDIAN_BYTE_SWAP":    CDAB,
	"LITTLE_ENDIAN_BYTE_SWAP": BADC,
}

func ParseMemoryLayout(s string) (MemoryLayout, error) {
	if v, ok := StringToMemoryLayout[strings.ToUpper(s)]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("unknown memory layout type %s", s)
}

func (ml MemoryLayout) String() string {
	if s, ok := MemoryLayoutToString[ml]; ok {
		return s
	}
	return fmt.Sprintf("MemoryLayout(%d)", byte(ml))
}

// BigEndianBytes reports whether the high byte of every register is sent first.
func (ml MemoryLayout) BigEndianBytes() bool {
	return ml == ABCD || ml == CDAB
}

// HighWordFirst reports whether the most significant register is sent first.
func (ml MemoryLayout) HighWordFirst() bool {
	return ml == ABCD || ml == BADC
}

func (ml MemoryLayout) MarshalJSON() ([]byte, error) {
	if s, ok := MemoryLayoutToString[ml]; ok {
		return json.Marshal(s)
	}
	return nil, fmt.Errorf("unknown memory layout type %d", ml)
}

func (ml *MemoryLayout) UnmarshalJSON(bytes []byte) error {
	var s string
	if err := json.Unmarshal(bytes, &s); err != nil {
		return err
	}

	v, err := ParseMemoryLayout(s)
	if err != nil {
		return err
	}
	*ml = v
	return nil
}
