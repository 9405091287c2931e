package modbus

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"
	"k8s.io/klog/v2"

	"modbusgateway/pkg/protocol/modbus/codec"
	"modbusgateway/pkg/protocol/modbus/model"
	modbus "modbusgateway/pkg/protocol/modbus/runtime"
	"modbusgateway/pkg/runtime"
	"modbusgateway/pkg/runtime/constant"
)

const (
	DefaultTimeout           = 3000 * time.Millisecond
	DefaultReconnectInterval = 15 * time.Second
)

var _ Callback = (*Protocol)(nil)

// Protocol owns the connection of one agent and the executor polling it.
type Protocol struct {
	agent     *modbus.ModbusAgent
	transport *model.Transport
	store     runtime.LinkableAttributeStore
	scheduler *Scheduler
	executor  *Executor
	status    *atomic.Int32

	configMux    sync.RWMutex
	deviceConfig modbus.DeviceConfigMap

	linkMux sync.RWMutex
	links   map[runtime.AttributeRef]*modbus.AttributeLink

	lifecycleMux sync.Mutex
	ctx          context.Context
}

func NewProtocol(agent *modbus.ModbusAgent, store runtime.LinkableAttributeStore) (*Protocol, error) {
	modeler, err := model.NewModeler(agent.Model)
	if err != nil {
		return nil, err
	}
	if agent.Timeout <= 0 {
		agent.Timeout = DefaultTimeout
	}
	if agent.ReconnectInterval <= 0 {
		agent.ReconnectInterval = DefaultReconnectInterval
	}
	p := &Protocol{
		agent:        agent,
		transport:    model.NewTransport(modeler, agent.Address, agent.Timeout),
		store:        store,
		scheduler:    NewScheduler(context.Background()),
		status:       atomic.NewInt32(int32(constant.DISCONNECTED)),
		deviceConfig: agent.DeviceConfig.DeepCopy(),
		links:        make(map[runtime.AttributeRef]*modbus.AttributeLink),
	}
	p.executor = NewExecutor(p)
	return p, nil
}

// Start connects once inline, then keeps reconnecting every ReconnectInterval while the
// connection is down. A stopped protocol can not be started again.
func (p *Protocol) Start(ctx context.Context) {
	p.lifecycleMux.Lock()
	defer p.lifecycleMux.Unlock()
	p.ctx = ctx
	p.executor.OnStart()
	p.checkConnection()
	p.scheduler.ScheduleWithFixedDelay(p.checkConnection, p.agent.ReconnectInterval)
	klog.V(1).InfoS("Started modbus protocol", "agent", p.agent.Id, "model", p.agent.Model)
}

func (p *Protocol) Stop(ctx context.Context) error {
	p.lifecycleMux.Lock()
	defer p.lifecycleMux.Unlock()
	p.executor.OnStop()
	p.scheduler.Shutdown()
	err := p.transport.Close(ctx)
	p.setStatus(constant.DISCONNECTED)

	p.linkMux.Lock()
	for ref := range p.links {
		p.store.Unlink(ref)
		delete(p.links, ref)
	}
	p.linkMux.Unlock()
	klog.V(1).InfoS("Stopped modbus protocol", "agent", p.agent.Id)
	return err
}

func (p *Protocol) checkConnection() {
	if p.GetConnectionStatus() == constant.CONNECTED {
		return
	}
	p.setStatus(constant.CONNECTING)
	if err := p.transport.Connect(p.ctx); err != nil {
		klog.V(2).InfoS("Failed to connect modbus device", "agent", p.agent.Id, "address", p.agent.Address.Location, "error", err)
		p.setStatus(constant.ERROR)
		return
	}
	p.setStatus(constant.CONNECTED)

	// refresh the links that are only read on demand
	p.linkMux.RLock()
	defer p.linkMux.RUnlock()
	for ref, link := range p.links {
		if link.HasReadConfig() && !link.IsPeriodicRead() {
			p.executor.ScheduleOneTimeRead(ref, link)
		}
	}
}

func (p *Protocol) setStatus(status constant.ConnectionStatus) {
	if old := constant.ConnectionStatus(p.status.Swap(int32(status))); old != status {
		klog.V(1).InfoS("Connection status changed", "agent", p.agent.Id, "from", old, "to", status)
	}
}

// LinkAttribute replaces any previous link of ref, the link table and the executor change under one lock.
func (p *Protocol) LinkAttribute(ref runtime.AttributeRef, link *modbus.AttributeLink) {
	p.linkMux.Lock()
	defer p.linkMux.Unlock()
	if old, ok := p.links[ref]; ok {
		p.executor.Unlink(ref, old)
	}
	p.links[ref] = link
	p.store.Link(ref)
	p.executor.Link(ref, link)
	klog.V(3).InfoS("Linked attribute", "agent", p.agent.Id, "attribute", ref, "accessMode", link.AccessMode())
}

func (p *Protocol) UnlinkAttribute(ref runtime.AttributeRef) error {
	p.linkMux.Lock()
	defer p.linkMux.Unlock()
	link, ok := p.links[ref]
	if !ok {
		return constant.ErrAttributeUnknown
	}
	delete(p.links, ref)
	p.executor.Unlink(ref, link)
	p.store.Unlink(ref)
	klog.V(3).InfoS("Unlinked attribute", "agent", p.agent.Id, "attribute", ref)
	return nil
}

func (p *Protocol) WriteAttribute(ref runtime.AttributeRef, value interface{}) error {
	link, ok := p.GetLink(ref)
	if !ok {
		return constant.ErrAttributeUnknown
	}
	return p.executor.HandleWrite(ref, link, AttributeEvent{Ref: ref, Value: value, Source: SourceUser})
}

func (p *Protocol) GetLink(ref runtime.AttributeRef) (*modbus.AttributeLink, bool) {
	p.linkMux.RLock()
	defer p.linkMux.RUnlock()
	link, ok := p.links[ref]
	return link, ok
}

func (p *Protocol) GetLinks() map[runtime.AttributeRef]*modbus.AttributeLink {
	p.linkMux.RLock()
	defer p.linkMux.RUnlock()
	out := make(map[runtime.AttributeRef]*modbus.AttributeLink, len(p.links))
	for ref, link := range p.links {
		out[ref] = link
	}
	return out
}

func (p *Protocol) GetAgent() *modbus.ModbusAgent {
	return p.agent
}

func (p *Protocol) GetBatchPlans() map[string][]*modbus.BatchReadRequest {
	return p.executor.Plans()
}

func (p *Protocol) GetProtocolName() string {
	return "Modbus " + p.agent.Model
}

func (p *Protocol) GetAgentId() string {
	return p.agent.Id
}

func (p *Protocol) GetConnectionStatus() constant.ConnectionStatus {
	return constant.ConnectionStatus(p.status.Load())
}

func (p *Protocol) SendModbusRequest(ctx context.Context, unitId uint8, pdu []byte) (codec.Frame, error) {
	if p.GetConnectionStatus() != constant.CONNECTED {
		return nil, constant.ErrNotConnected
	}
	frame, err := p.transport.SendModbusRequest(ctx, unitId, pdu)
	if err != nil && errors.Is(err, modbus.ErrBadConn) {
		p.setStatus(constant.ERROR)
	}
	return frame, err
}

// GetDeviceConfig the returned map must not be modified, SetDeviceConfig replaces it.
func (p *Protocol) GetDeviceConfig() modbus.DeviceConfigMap {
	p.configMux.RLock()
	defer p.configMux.RUnlock()
	return p.deviceConfig
}

func (p *Protocol) SetDeviceConfig(config modbus.DeviceConfigMap) {
	p.configMux.Lock()
	p.deviceConfig = config
	p.configMux.Unlock()
	p.executor.InvalidatePlans()
	klog.V(2).InfoS("Device config changed", "agent", p.agent.Id, "units", len(config))
}

func (p *Protocol) GetScheduler() runtime.Scheduler {
	return p.scheduler
}

func (p *Protocol) UpdateLinkedAttribute(ref runtime.AttributeRef, value interface{}) {
	p.store.UpdateLinkedAttribute(ref, value)
}

func (p *Protocol) GetLinkedAttribute(ref runtime.AttributeRef) (interface{}, bool) {
	return p.store.GetLinkedAttribute(ref)
}

func (p *Protocol) GetLinkedAttributes() map[runtime.AttributeRef]interface{} {
	return p.store.GetLinkedAttributes()
}
