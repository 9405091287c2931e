package constant

import (
	"encoding/json"
	"fmt"
)

type ConnectionStatus int32

const (
	DISCONNECTED ConnectionStatus = iota
	CONNECTING
	CONNECTED
	ERROR
)

var ConnectionStatusToString = map[ConnectionStatus]string{
	DISCONNECTED: "DISCONNECTED",
	CONNECTING:   "CONNECTING",
	CONNECTED:    "CONNECTED",
	ERROR:        "ERROR",
}

func (cs ConnectionStatus) String() string {
	if s, ok := ConnectionStatusToString[cs]; ok {
		return s
	}
	return fmt.Sprintf("ConnectionStatus(%d)", int32(cs))
}

func (cs ConnectionStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(cs.String())
}
