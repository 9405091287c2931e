package constant

import (
	"encoding/json"
	"fmt"
)

type AccessMode int8

const (
	AccessModeReadOnly AccessMode = iota
	AccessModeReadWrite
	AccessModeWriteOnly
	AccessModeNone
)

var AccessModeToString = map[AccessMode]string{
	AccessModeReadOnly:  "r",
	AccessModeReadWrite: "rw",
	AccessModeWriteOnly: "w",
	AccessModeNone:      "-",
}

func (am AccessMode) String() string {
	return AccessModeToString[am]
}

func (am AccessMode) MarshalJSON() ([]byte, error) {
	if s, ok := AccessModeToString[am]; ok {
		return json.Marshal(s)
	}
	return nil, fmt.Errorf("unknown accessMode %d", am)
}
