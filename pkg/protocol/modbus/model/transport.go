package model

import (
	"context"
	"errors"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"k8s.io/klog/v2"

	"modbusgateway/pkg/protocol/modbus/codec"
	modbus "modbusgateway/pkg/protocol/modbus/runtime"
	"modbusgateway/pkg/runtime/constant"
)

const readBufferSize = 512

// Transport runs one request/response exchange at a time over the modeler's connection.
type Transport struct {
	modeler ModbusModeler
	address *modbus.Address
	timeout time.Duration

	mu      sync.RWMutex
	clients *modbus.Clients
}

func NewTransport(modeler ModbusModeler, address *modbus.Address, timeout time.Duration) *Transport {
	return &Transport{modeler: modeler, address: address, timeout: timeout}
}

// Connect opens the connection, or replaces the broken messengers of an open one.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.clients != nil {
		if err := t.clients.Reconnect(ctx); err != nil {
			return pkgerrors.Wrap(constant.ErrConnectDevice, err.Error())
		}
		return nil
	}
	clients, err := t.modeler.NewClients(t.address, t.timeout)
	if err != nil {
		return pkgerrors.Wrap(constant.ErrConnectDevice, err.Error())
	}
	t.clients = clients
	return nil
}

func (t *Transport) Close(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.clients != nil {
		t.clients.Destroy(ctx)
		t.clients = nil
	}
	return nil
}

func (t *Transport) getClients() *modbus.Clients {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.clients
}

// SendModbusRequest sends pdu to unitId and waits for the matching response until the
// transport timeout. Responses that fail to decode or belong to another request are dropped.
func (t *Transport) SendModbusRequest(ctx context.Context, unitId uint8, pdu []byte) (codec.Frame, error) {
	clients := t.getClients()
	if clients == nil {
		return nil, pkgerrors.Wrap(modbus.ErrBadConn, "not connected")
	}
	deadline := time.Now().Add(t.timeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	messenger, err := clients.GetMessenger(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, pkgerrors.Wrap(modbus.ErrTimeout, "wait for connection")
		}
		return nil, err
	}
	defer clients.ReleaseMessenger(messenger)
	if !messenger.Available() {
		return nil, pkgerrors.Wrap(modbus.ErrBadConn, "connection unavailable")
	}

	request, correlation := t.modeler.Pack(unitId, pdu)
	klog.V(4).InfoS("Send modbus request", "unitId", unitId, "functionCode", codec.FunctionCode(pdu[0]))
	if err := messenger.Write(request); err != nil {
		return nil, err
	}

	decoder := t.modeler.NewDecoder()
	buf := make([]byte, readBufferSize)
	for {
		n, err := messenger.Read(buf, deadline)
		if n > 0 {
			decoder.Feed(buf[:n])
			for {
				frame, ferr := decoder.Next()
				if ferr != nil {
					klog.V(2).InfoS("Failed to decode modbus response", "unitId", unitId, "error", ferr)
					continue
				}
				if frame == nil {
					break
				}
				if merr := t.modeler.Match(correlation, unitId, frame); merr != nil {
					klog.V(3).InfoS("Discard unexpected modbus response", "unitId", unitId, "reason", merr)
					continue
				}
				return frame, nil
			}
		}
		if err != nil {
			return nil, err
		}
	}
}
