package model

import (
	"fmt"
	"time"

	"modbusgateway/pkg/protocol/modbus/codec"
	modbus "modbusgateway/pkg/protocol/modbus/runtime"
	"modbusgateway/pkg/runtime/constant"
)

var _ ModbusModeler = (*ModbusTcp)(nil)
var _ ModbusModeler = (*ModbusRtu)(nil)
var _ ModbusModeler = (*ModbusRtuOverTcp)(nil)

const (
	ModelModbusTcp        = "modbusTcp"
	ModelModbusRtu        = "modbusRtu"
	ModelModbusRtuOverTcp = "modbusRtuOverTcp"
)

// ModbusModelers tcp modelers carry a transaction counter, so each protocol gets its own instance.
var ModbusModelers = map[string]func() ModbusModeler{
	ModelModbusTcp:        func() ModbusModeler { return NewModbusTcp() },
	ModelModbusRtu:        func() ModbusModeler { return &ModbusRtu{} },
	ModelModbusRtuOverTcp: func() ModbusModeler { return &ModbusRtuOverTcp{} },
}

type ModbusModeler interface {
	NewClients(address *modbus.Address, timeout time.Duration) (*modbus.Clients, error)
	// Pack wraps pdu into an adu, the returned correlation is handed back to Match.
	Pack(unitId uint8, pdu []byte) ([]byte, uint16)
	NewDecoder() codec.Decoder
	// Match returns an error when frame does not answer the packed request.
	Match(correlation uint16, unitId uint8, frame codec.Frame) error
}

func NewModeler(model string) (ModbusModeler, error) {
	newModeler, ok := ModbusModelers[model]
	if !ok {
		return nil, fmt.Errorf("%w %q", constant.ErrProtocolModel, model)
	}
	return newModeler(), nil
}
