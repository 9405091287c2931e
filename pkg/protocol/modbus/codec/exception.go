package codec

import "fmt"

var exceptionDescriptions = map[uint8]string{
	0x01: "Illegal Function",
	0x02: "Illegal Data Address",
	0x03: "Illegal Data Value",
	0x04: "Slave Device Failure",
	0x05: "Acknowledge",
	0x06: "Slave Device Busy",
	0x07: "Negative Acknowledge",
	0x08: "Memory Parity Error",
	0x0A: "Gateway Path Unavailable",
	0x0B: "Gateway Target Device Failed to Respond",
}

func GetModbusExceptionDescription(code uint8) string {
	if s, ok := exceptionDescriptions[code]; ok {
		return s
	}
	return fmt.Sprintf("Unknown Exception (code 0x%02X)", code)
}

// ExceptionError is returned for a response carrying the exception flag.
type ExceptionError struct {
	FunctionCode  FunctionCode
	ExceptionCode uint8
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus exception 0x%02X for function %s: %s",
		e.ExceptionCode, e.FunctionCode&^ExceptionFlag, GetModbusExceptionDescription(e.ExceptionCode))
}

func NewExceptionError(frame Frame) *ExceptionError {
	return &ExceptionError{FunctionCode: frame.FunctionCode(), ExceptionCode: frame.ExceptionCode()}
}
