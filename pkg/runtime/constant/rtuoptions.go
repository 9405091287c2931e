package constant

import (
	"encoding/json"
	"fmt"
)

type StopBits int

const (
	// OneStopBit sets 1 stop bit (default)
	OneStopBit StopBits = iota
	// OnePointFiveStopBits sets 1.5 stop bits
	OnePointFiveStopBits
	// TwoStopBits sets 2 stop bits
	TwoStopBits
)

var StopBitsToString = map[StopBits]string{
	OneStopBit:           "1",
	OnePointFiveStopBits: "1.5",
	TwoStopBits:          "2",
}

var StringToStopBits = map[string]StopBits{
	"1":   OneStopBit,
	"1.5": OnePointFiveStopBits,
	"2":   TwoStopBits,
}

type Parity int

const (
	// NoParity disable parity control (default)
	NoParity Parity = iota
	// OddParity enable odd-parity check
	OddParity
	// EvenParity enable even-parity check
	EvenParity
	// MarkParity enable mark-parity (always 1) check
	MarkParity
	// SpaceParity enable space-parity (always 0) check
	SpaceParity
)

var ParityToString = map[Parity]string{
	NoParity:    "noParity",
	OddParity:   "oddParity",
	EvenParity:  "evenParity",
	MarkParity:  "markParity",
	SpaceParity: "spaceParity",
}

var StringToParity = map[string]Parity{
	"noParity":    NoParity,
	"oddParity":   OddParity,
	"evenParity":  EvenParity,
	"markParity":  MarkParity,
	"spaceParity": SpaceParity,
	"NONE":        NoParity,
	"ODD":         OddParity,
	"EVEN":        EvenParity,
	"MARK":        MarkParity,
	"SPACE":       SpaceParity,
}

func (sb StopBits) MarshalJSON() ([]byte, error) {
	if s, ok := StopBitsToString[sb]; ok {
		return json.Marshal(s)
	}
	return nil, fmt.Errorf("unknown stop bits %d", sb)
}

func (sb *StopBits) UnmarshalJSON(bytes []byte) error {
	var s string
	if err := json.Unmarshal(bytes, &s); err != nil {
		return err
	}
	v, ok := StringToStopBits[s]
	if !ok {
		return fmt.Errorf("unknown stop bits %s", s)
	}
	*sb = v
	return nil
}

func (p Parity) MarshalJSON() ([]byte, error) {
	if s, ok := ParityToString[p]; ok {
		return json.Marshal(s)
	}
	return nil, fmt.Errorf("unknown parity %d", p)
}

func (p *Parity) UnmarshalJSON(bytes []byte) error {
	var s string
	if err := json.Unmarshal(bytes, &s); err != nil {
		return err
	}
	v, ok := StringToParity[s]
	if !ok {
		return fmt.Errorf("unknown parity %s", s)
	}
	*p = v
	return nil
}
