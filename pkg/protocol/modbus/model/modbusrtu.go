package model

import (
	"time"

	"go.bug.st/serial"
	"k8s.io/klog/v2"

	"modbusgateway/pkg/protocol/modbus/codec"
	modbus "modbusgateway/pkg/protocol/modbus/runtime"
	"modbusgateway/pkg/runtime/constant"
)

const (
	DefaultBaudRate = 9600
	DefaultDataBits = 8
)

var StopBitsToStopBits = map[constant.StopBits]serial.StopBits{
	constant.OneStopBit:           serial.OneStopBit,
	constant.OnePointFiveStopBits: serial.OnePointFiveStopBits,
	constant.TwoStopBits:          serial.TwoStopBits,
}

var ParityToParity = map[constant.Parity]serial.Parity{
	constant.NoParity:    serial.NoParity,
	constant.OddParity:   serial.OddParity,
	constant.EvenParity:  serial.EvenParity,
	constant.MarkParity:  serial.MarkParity,
	constant.SpaceParity: serial.SpaceParity,
}

func serialMode(option *modbus.Option) *serial.Mode {
	mode := &serial.Mode{
		BaudRate: DefaultBaudRate,
		DataBits: DefaultDataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if option == nil {
		return mode
	}
	if option.BaudRate > 0 {
		mode.BaudRate = option.BaudRate
	}
	if option.DataBits > 0 {
		mode.DataBits = option.DataBits
	}
	mode.Parity = ParityToParity[option.Parity]
	mode.StopBits = StopBitsToStopBits[option.StopBits]
	return mode
}

type ModbusRtu struct {
}

func (m *ModbusRtu) NewClients(address *modbus.Address, _ time.Duration) (*modbus.Clients, error) {
	mode := serialMode(address.Option)
	return modbus.NewClients(func() (modbus.Messenger, error) {
		port, err := serial.Open(address.Location, mode)
		if err != nil {
			klog.V(2).InfoS("Failed to connect serial port", "address", address.Location, "error", err)
			return nil, err
		}
		klog.V(1).InfoS("Opened serial port", "address", address.Location, "baudRate", mode.BaudRate)
		return modbus.NewSerialClient(port), nil
	}, 1)
}

// Pack unitId + pdu + crc16
func (m *ModbusRtu) Pack(unitId uint8, pdu []byte) ([]byte, uint16) {
	return codec.PackRtu(unitId, pdu), uint16(unitId)
}

func (m *ModbusRtu) NewDecoder() codec.Decoder {
	return codec.NewRtuDecoder()
}

func (m *ModbusRtu) Match(correlation uint16, unitId uint8, frame codec.Frame) error {
	if frame.UnitId() != unitId {
		return modbus.ErrMessageSlave
	}
	return nil
}
