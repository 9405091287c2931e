package model

import (
	"time"

	modbus "modbusgateway/pkg/protocol/modbus/runtime"
)

// ModbusRtuOverTcp rtu framing carried by a tcp stream, usually a serial device server.
type ModbusRtuOverTcp struct {
	ModbusRtu
}

func (m *ModbusRtuOverTcp) NewClients(address *modbus.Address, timeout time.Duration) (*modbus.Clients, error) {
	return newTcpClients(address, timeout)
}
