package model

import (
	"net"
	"strconv"
	"time"

	"go.uber.org/atomic"
	"k8s.io/klog/v2"

	"modbusgateway/pkg/protocol/modbus/codec"
	modbus "modbusgateway/pkg/protocol/modbus/runtime"
)

const DefaultTcpPort = 502

type ModbusTcp struct {
	transactionId *atomic.Uint32
}

func NewModbusTcp() *ModbusTcp {
	return &ModbusTcp{transactionId: atomic.NewUint32(0)}
}

func tcpAddress(address *modbus.Address) string {
	port := DefaultTcpPort
	if address.Option != nil && address.Option.Port > 0 {
		port = address.Option.Port
	}
	return net.JoinHostPort(address.Location, strconv.Itoa(port))
}

func newTcpClients(address *modbus.Address, timeout time.Duration) (*modbus.Clients, error) {
	addr := tcpAddress(address)
	return modbus.NewClients(func() (modbus.Messenger, error) {
		tunnel, err := net.DialTimeout("tcp", addr, timeout)
		if err != nil {
			klog.V(2).InfoS("Failed to connect modbus server", "address", addr, "error", err)
			return nil, err
		}
		klog.V(1).InfoS("Connected modbus server", "address", addr)
		return modbus.NewTcpClient(tunnel), nil
	}, 1)
}

func (m *ModbusTcp) NewClients(address *modbus.Address, timeout time.Duration) (*modbus.Clients, error) {
	return newTcpClients(address, timeout)
}

// Pack
// 00 01 00 00 00 06 18 03 00 02 00 02
// 00 01  事务处理标识符, 每次通信加 1
// 00 00  协议标识符, 00 00 为 modbus 协议
// 00 06  长度, 接下来的字节数
// 18     单元标识符
// 03 00 02 00 02  pdu
func (m *ModbusTcp) Pack(unitId uint8, pdu []byte) ([]byte, uint16) {
	transactionId := uint16(m.transactionId.Inc())
	return codec.PackTcp(transactionId, unitId, pdu), transactionId
}

func (m *ModbusTcp) NewDecoder() codec.Decoder {
	return codec.NewTcpDecoder()
}

func (m *ModbusTcp) Match(correlation uint16, unitId uint8, frame codec.Frame) error {
	tcpFrame, ok := frame.(*codec.TcpFrame)
	if !ok || tcpFrame.TransactionId != correlation {
		return modbus.ErrMessageTransaction
	}
	return nil
}
