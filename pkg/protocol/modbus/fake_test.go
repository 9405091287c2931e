package modbus

import (
	"context"
	"sync"

	"go.uber.org/atomic"

	"modbusgateway/pkg/attribute"
	"modbusgateway/pkg/protocol/modbus/codec"
	modbus "modbusgateway/pkg/protocol/modbus/runtime"
	"modbusgateway/pkg/runtime"
	"modbusgateway/pkg/runtime/constant"
	"modbusgateway/pkg/utils/binutil"
)

// fakeDevice answers pdus from an in memory register bank, 0 based addresses.
type fakeDevice struct {
	mux        sync.Mutex
	registers  map[uint16]uint16
	coils      map[uint16]bool
	exceptions map[uint16]bool
	failures   int
	requests   [][]byte
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		registers:  make(map[uint16]uint16),
		coils:      make(map[uint16]bool),
		exceptions: make(map[uint16]bool),
	}
}

func (d *fakeDevice) setRegisters(address uint16, values ...uint16) {
	d.mux.Lock()
	defer d.mux.Unlock()
	for i, v := range values {
		d.registers[address+uint16(i)] = v
	}
}

func (d *fakeDevice) requestLog() [][]byte {
	d.mux.Lock()
	defer d.mux.Unlock()
	return append([][]byte(nil), d.requests...)
}

func (d *fakeDevice) handle(unitId uint8, pdu []byte) (codec.Frame, error) {
	d.mux.Lock()
	defer d.mux.Unlock()
	d.requests = append(d.requests, binutil.Dup(pdu))
	if d.failures > 0 {
		d.failures--
		return nil, modbus.ErrTimeout
	}
	fc := codec.FunctionCode(pdu[0])
	address := binutil.ParseUint16(pdu[1:])
	if d.exceptions[address] {
		return codec.NewRtuFrame(unitId, []byte{byte(fc | codec.ExceptionFlag), 0x02}), nil
	}
	switch fc {
	case codec.ReadCoils, codec.ReadDiscreteInputs:
		quantity := binutil.ParseUint16(pdu[3:])
		data := make([]byte, (quantity+7)/8)
		for i := uint16(0); i < quantity; i++ {
			if d.coils[address+i] {
				data[i/8] |= 1 << (i % 8)
			}
		}
		return codec.NewRtuFrame(unitId, append([]byte{byte(fc), byte(len(data))}, data...)), nil
	case codec.ReadHoldingRegisters, codec.ReadInputRegisters:
		quantity := binutil.ParseUint16(pdu[3:])
		data := make([]byte, 2*quantity)
		for i := uint16(0); i < quantity; i++ {
			binutil.WriteUint16(data[2*i:], d.registers[address+i])
		}
		return codec.NewRtuFrame(unitId, append([]byte{byte(fc), byte(len(data))}, data...)), nil
	case codec.WriteSingleCoil:
		d.coils[address] = binutil.ParseUint16(pdu[3:]) == 0xFF00
		return codec.NewRtuFrame(unitId, binutil.Dup(pdu)), nil
	case codec.WriteSingleRegister:
		d.registers[address] = binutil.ParseUint16(pdu[3:])
		return codec.NewRtuFrame(unitId, binutil.Dup(pdu)), nil
	case codec.WriteMultipleRegisters:
		quantity := binutil.ParseUint16(pdu[3:])
		for i := uint16(0); i < quantity; i++ {
			d.registers[address+i] = binutil.ParseUint16(pdu[6+2*i:])
		}
		return codec.NewRtuFrame(unitId, binutil.Dup(pdu[:5])), nil
	}
	return codec.NewRtuFrame(unitId, []byte{byte(fc | codec.ExceptionFlag), 0x01}), nil
}

type fakeCallback struct {
	*attribute.Store
	device    *fakeDevice
	status    *atomic.Int32
	scheduler *Scheduler

	configMux sync.Mutex
	config    modbus.DeviceConfigMap
}

func newFakeCallback(device *fakeDevice) *fakeCallback {
	return &fakeCallback{
		Store:     attribute.NewStore(),
		device:    device,
		status:    atomic.NewInt32(int32(constant.CONNECTED)),
		scheduler: NewScheduler(context.Background()),
		config:    modbus.DeviceConfigMap{},
	}
}

func (f *fakeCallback) GetProtocolName() string { return "Modbus fake" }
func (f *fakeCallback) GetAgentId() string      { return "agent" }

func (f *fakeCallback) GetConnectionStatus() constant.ConnectionStatus {
	return constant.ConnectionStatus(f.status.Load())
}

func (f *fakeCallback) SendModbusRequest(_ context.Context, unitId uint8, pdu []byte) (codec.Frame, error) {
	return f.device.handle(unitId, pdu)
}

func (f *fakeCallback) GetDeviceConfig() modbus.DeviceConfigMap {
	f.configMux.Lock()
	defer f.configMux.Unlock()
	return f.config
}

func (f *fakeCallback) SetDeviceConfig(config modbus.DeviceConfigMap) {
	f.configMux.Lock()
	defer f.configMux.Unlock()
	f.config = config
}

func (f *fakeCallback) GetScheduler() runtime.Scheduler { return f.scheduler }
