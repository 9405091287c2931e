package modbus

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"k8s.io/klog/v2"

	"modbusgateway/pkg/protocol/modbus/batch"
	"modbusgateway/pkg/protocol/modbus/codec"
	"modbusgateway/pkg/protocol/modbus/converter"
	modbus "modbusgateway/pkg/protocol/modbus/runtime"
	"modbusgateway/pkg/runtime"
	"modbusgateway/pkg/runtime/constant"
	"modbusgateway/pkg/utils/binutil"
)

// Callback is what the executor needs from the protocol that owns it.
type Callback interface {
	runtime.AttributeStore
	GetProtocolName() string
	GetAgentId() string
	GetConnectionStatus() constant.ConnectionStatus
	SendModbusRequest(ctx context.Context, unitId uint8, pdu []byte) (codec.Frame, error)
	GetDeviceConfig() modbus.DeviceConfigMap
	SetDeviceConfig(config modbus.DeviceConfigMap)
	GetScheduler() runtime.Scheduler
}

type EventSource int

const (
	// SourceUser a write requested from outside, e.g. the http api
	SourceUser EventSource = iota
	// SourceInterval the periodic resend of a write only link
	SourceInterval
)

type AttributeEvent struct {
	Ref    runtime.AttributeRef
	Value  interface{}
	Source EventSource
}

var ErrNoWriteConfig = errors.New("attribute link has no write configuration")

// batchGroup links sharing unit, memory area and interval, polled by one task.
type batchGroup struct {
	unitId   uint8
	area     constant.MemoryArea
	interval time.Duration
	links    map[runtime.AttributeRef]*modbus.AttributeLink
	// batches is the cached plan, nil after any membership or device config change
	batches []*modbus.BatchReadRequest
	cancel  runtime.CancelFunc
}

type Executor struct {
	callback Callback

	mux         sync.Mutex
	batchGroups map[string]*batchGroup
	writeTasks  map[runtime.AttributeRef]runtime.CancelFunc
}

func NewExecutor(callback Callback) *Executor {
	return &Executor{
		callback:    callback,
		batchGroups: make(map[string]*batchGroup),
		writeTasks:  make(map[runtime.AttributeRef]runtime.CancelFunc),
	}
}

func (e *Executor) OnStart() {
	if len(e.callback.GetDeviceConfig()) == 0 {
		klog.V(1).InfoS("Seed default device config", "agent", e.callback.GetAgentId())
		e.callback.SetDeviceConfig(modbus.DeviceConfigMap{modbus.DefaultDeviceConfigKey: modbus.NewDefaultDeviceConfig()})
	}
}

// OnStop cancels every task and forgets all links.
func (e *Executor) OnStop() {
	e.mux.Lock()
	defer e.mux.Unlock()
	for key, g := range e.batchGroups {
		if g.cancel != nil {
			g.cancel()
		}
		delete(e.batchGroups, key)
	}
	for ref, cancel := range e.writeTasks {
		cancel()
		delete(e.writeTasks, ref)
	}
}

func (e *Executor) groupKey(link *modbus.AttributeLink) string {
	return fmt.Sprintf("%s_%d_%s_%d", e.callback.GetAgentId(), link.Unit(), *link.ReadMemoryArea, link.Interval().Milliseconds())
}

func (e *Executor) Link(ref runtime.AttributeRef, link *modbus.AttributeLink) {
	switch {
	case link.IsPeriodicRead():
		e.addToBatchGroup(ref, link)
	case link.HasReadConfig():
		e.ScheduleOneTimeRead(ref, link)
	case link.ReadMemoryArea != nil || link.ReadAddress != nil:
		klog.V(3).InfoS("Attribute read configuration incomplete, unitId, readMemoryArea, readValueType and readAddress are required",
			"attribute", ref)
	default:
		klog.V(3).InfoS("Attribute has no read configuration", "attribute", ref)
	}

	if link.IsPeriodicWrite() {
		e.mux.Lock()
		if cancel, ok := e.writeTasks[ref]; ok {
			cancel()
		}
		e.writeTasks[ref] = e.callback.GetScheduler().ScheduleWithFixedDelay(func() {
			e.periodicWriteTick(ref, link)
		}, link.Interval())
		e.mux.Unlock()
		klog.V(3).InfoS("Scheduled periodic write", "attribute", ref, "interval", link.Interval())
	}
}

func (e *Executor) addToBatchGroup(ref runtime.AttributeRef, link *modbus.AttributeLink) {
	key := e.groupKey(link)
	e.mux.Lock()
	defer e.mux.Unlock()
	g, ok := e.batchGroups[key]
	if !ok {
		g = &batchGroup{
			unitId:   link.Unit(),
			area:     *link.ReadMemoryArea,
			interval: link.Interval(),
			links:    make(map[runtime.AttributeRef]*modbus.AttributeLink),
		}
		e.batchGroups[key] = g
	}
	g.links[ref] = link
	g.batches = nil
	if g.cancel == nil {
		g.cancel = e.callback.GetScheduler().ScheduleWithFixedDelay(func() {
			e.batchReadTick(key)
		}, g.interval)
		klog.V(3).InfoS("Scheduled batch read", "group", key, "interval", g.interval)
	}
	klog.V(3).InfoS("Added attribute to batch group", "attribute", ref, "group", key, "size", len(g.links))
}

func (e *Executor) Unlink(ref runtime.AttributeRef, link *modbus.AttributeLink) {
	e.mux.Lock()
	defer e.mux.Unlock()
	if cancel, ok := e.writeTasks[ref]; ok {
		cancel()
		delete(e.writeTasks, ref)
	}
	if !link.IsPeriodicRead() {
		return
	}
	key := e.groupKey(link)
	g, ok := e.batchGroups[key]
	if !ok {
		return
	}
	delete(g.links, ref)
	g.batches = nil
	if len(g.links) == 0 {
		if g.cancel != nil {
			g.cancel()
		}
		delete(e.batchGroups, key)
		klog.V(3).InfoS("Removed empty batch group", "group", key)
	}
}

// InvalidatePlans drops every cached plan, the next tick of each group plans again.
func (e *Executor) InvalidatePlans() {
	e.mux.Lock()
	defer e.mux.Unlock()
	for _, g := range e.batchGroups {
		g.batches = nil
	}
}

// Plans returns the current plan of every group, keyed by group.
func (e *Executor) Plans() map[string][]*modbus.BatchReadRequest {
	e.mux.Lock()
	defer e.mux.Unlock()
	plans := make(map[string][]*modbus.BatchReadRequest, len(e.batchGroups))
	for key, g := range e.batchGroups {
		plans[key] = e.plan(g)
	}
	return plans
}

// plan must be called with e.mux held.
func (e *Executor) plan(g *batchGroup) []*modbus.BatchReadRequest {
	if g.batches != nil {
		return g.batches
	}
	config := e.callback.GetDeviceConfig().Resolve(g.unitId)
	illegal, err := batch.ParseIllegalRegisters(config.IllegalRegisters)
	if err != nil {
		klog.V(2).InfoS("Ignored invalid illegal registers", "unitId", g.unitId, "error", err)
	}
	g.batches = batch.CreateBatchRequests(g.links, illegal, config.MaxRegisterLength)
	klog.V(3).InfoS("Planned batch reads", "unitId", g.unitId, "area", g.area, "links", len(g.links), "batches", len(g.batches))
	return g.batches
}

func (e *Executor) batchReadTick(key string) {
	defer e.recoverTick("batch read", key)
	if status := e.callback.GetConnectionStatus(); status != constant.CONNECTED {
		klog.V(4).InfoS("Skip batch read, not connected", "group", key, "status", status)
		return
	}

	e.mux.Lock()
	g, ok := e.batchGroups[key]
	if !ok || len(g.links) == 0 {
		e.mux.Unlock()
		return
	}
	batches := e.plan(g)
	links := make(map[runtime.AttributeRef]*modbus.AttributeLink, len(g.links))
	for ref, link := range g.links {
		links[ref] = link
	}
	unitId, area := g.unitId, g.area
	e.mux.Unlock()

	for _, b := range batches {
		e.executeBatchRead(unitId, area, b, links)
	}
}

// ScheduleOneTimeRead reads a single link once, off the caller's goroutine.
func (e *Executor) ScheduleOneTimeRead(ref runtime.AttributeRef, link *modbus.AttributeLink) {
	if !link.HasReadConfig() {
		return
	}
	b := &modbus.BatchReadRequest{StartAddress: *link.ReadAddress, Quantity: link.ReadRegisterCount()}
	b.AddMember(ref, 0)
	links := map[runtime.AttributeRef]*modbus.AttributeLink{ref: link}
	e.callback.GetScheduler().Execute(func() {
		defer e.recoverTick("one time read", ref.String())
		e.executeBatchRead(link.Unit(), *link.ReadMemoryArea, b, links)
	})
}

func (e *Executor) executeBatchRead(unitId uint8, area constant.MemoryArea, b *modbus.BatchReadRequest, links map[runtime.AttributeRef]*modbus.AttributeLink) {
	if status := e.callback.GetConnectionStatus(); status != constant.CONNECTED {
		klog.V(4).InfoS("Skip read, not connected", "unitId", unitId, "status", status)
		return
	}
	fc := codec.FunctionCode(area.ReadFunctionCode())
	address := b.StartAddress - 1
	if address < 0 || address > math.MaxUint16 || b.Quantity <= 0 || b.Quantity > math.MaxUint16 {
		klog.V(2).InfoS("Invalid read range", "unitId", unitId, "area", area, "address", b.StartAddress, "quantity", b.Quantity)
		return
	}
	pdu, err := codec.BuildReadRequestPDU(fc, uint16(address), uint16(b.Quantity))
	if err != nil {
		klog.V(2).InfoS("Failed to build read request", "unitId", unitId, "error", err)
		return
	}
	frame, err := e.callback.SendModbusRequest(context.Background(), unitId, pdu)
	if err != nil {
		if modbus.IsTimeout(err) {
			klog.V(2).InfoS("Timed out reading registers", "unitId", unitId, "area", area, "address", b.StartAddress, "quantity", b.Quantity)
		} else {
			klog.V(2).InfoS("Failed to read registers", "unitId", unitId, "area", area, "address", b.StartAddress, "error", err)
		}
		return
	}
	if frame.IsException() {
		klog.V(2).InfoS("Modbus exception response", "unitId", unitId, "area", area, "address", b.StartAddress,
			"code", frame.ExceptionCode(), "description", codec.GetModbusExceptionDescription(frame.ExceptionCode()))
		return
	}
	data := codec.ExtractDataFromResponsePDU(frame.PDU(), fc)
	if data == nil {
		klog.V(2).InfoS("Invalid read response", "unitId", unitId, "functionCode", fc, "pdu", frame.PDU())
		return
	}

	layout := e.callback.GetDeviceConfig().Resolve(unitId).EndianFormat
	for _, m := range b.Members {
		link, ok := links[m.Ref]
		if !ok {
			continue
		}
		value, err := converter.BytesToValue(data, m.Offset, link.ReadRegisterCount(), link.ReadDataType(), layout, uint8(fc))
		if err != nil {
			klog.V(2).InfoS("Failed to convert value", "attribute", m.Ref, "offset", m.Offset, "error", err)
			continue
		}
		e.callback.UpdateLinkedAttribute(m.Ref, value)
	}
}

func (e *Executor) periodicWriteTick(ref runtime.AttributeRef, link *modbus.AttributeLink) {
	defer e.recoverTick("periodic write", ref.String())
	value, ok := e.callback.GetLinkedAttribute(ref)
	if !ok || value == nil {
		klog.V(4).InfoS("Skip periodic write, no value", "attribute", ref)
		return
	}
	if err := e.HandleWrite(ref, link, AttributeEvent{Ref: ref, Value: value, Source: SourceInterval}); err != nil {
		klog.V(3).InfoS("Periodic write failed", "attribute", ref, "error", err)
	}
}

// HandleWrite writes event.Value to the link's write register. A user write to a write only link
// updates the store directly, one to a link that also reads is confirmed by a read.
// Write areas other than coil and holding panic.
func (e *Executor) HandleWrite(ref runtime.AttributeRef, link *modbus.AttributeLink, event AttributeEvent) error {
	if !link.HasWriteConfig() {
		return ErrNoWriteConfig
	}
	if status := e.callback.GetConnectionStatus(); status != constant.CONNECTED {
		klog.V(3).InfoS("Skip write, not connected", "attribute", ref, "status", status)
		return constant.ErrNotConnected
	}
	unitId := link.Unit()
	address := *link.WriteAddress - 1
	if address < 0 || address > math.MaxUint16 {
		return fmt.Errorf("write address %d out of range", *link.WriteAddress)
	}

	var pdu []byte
	switch area := *link.WriteMemoryArea; area {
	case constant.COIL:
		on, err := converter.AsBool(event.Value)
		if err != nil {
			return err
		}
		pdu = codec.BuildWriteSingleCoilPDU(uint16(address), on)
	case constant.HOLDING:
		var err error
		pdu, err = e.holdingWritePDU(uint16(address), unitId, link, event.Value)
		if err != nil {
			return err
		}
	default:
		panic(pkgerrors.Wrapf(modbus.ErrUnsupportedWriteArea, "%s", area))
	}

	frame, err := e.callback.SendModbusRequest(context.Background(), unitId, pdu)
	if err != nil {
		if modbus.IsTimeout(err) {
			klog.V(2).InfoS("Timed out writing attribute", "attribute", ref, "unitId", unitId)
		} else {
			klog.V(2).InfoS("Failed to write attribute", "attribute", ref, "unitId", unitId, "error", err)
		}
		return err
	}
	if frame.IsException() {
		exception := codec.NewExceptionError(frame)
		klog.V(2).InfoS("Modbus exception response", "attribute", ref, "unitId", unitId,
			"code", exception.ExceptionCode, "description", codec.GetModbusExceptionDescription(exception.ExceptionCode))
		return exception
	}
	if frame.FunctionCode() != codec.FunctionCode(pdu[0]) {
		return fmt.Errorf("unexpected response function code %s for %s", frame.FunctionCode(), codec.FunctionCode(pdu[0]))
	}
	klog.V(4).InfoS("Wrote attribute", "attribute", ref, "unitId", unitId, "value", event.Value)

	if event.Source == SourceUser {
		if link.HasReadConfig() {
			e.ScheduleOneTimeRead(ref, link)
		} else {
			e.callback.UpdateLinkedAttribute(ref, event.Value)
		}
	}
	return nil
}

func (e *Executor) holdingWritePDU(address uint16, unitId uint8, link *modbus.AttributeLink, value interface{}) ([]byte, error) {
	count := link.WriteRegisterCount()
	dataType, typed := link.WriteDataType()
	layout := e.callback.GetDeviceConfig().Resolve(unitId).EndianFormat
	if count == 1 {
		if !typed {
			v, err := converter.AsInt64(value)
			if err != nil {
				return nil, err
			}
			return codec.BuildWriteSingleRegisterPDU(address, uint16(v)), nil
		}
		raw, err := converter.ValueToRegisterBytes(value, 1, dataType, layout)
		if err != nil {
			return nil, err
		}
		return codec.BuildWriteSingleRegisterPDU(address, binutil.ParseUint16(raw)), nil
	}
	if !typed {
		return nil, fmt.Errorf("a value type is required to write %d registers", count)
	}
	raw, err := converter.ValueToRegisterBytes(value, count, dataType, layout)
	if err != nil {
		return nil, err
	}
	return codec.BuildWriteMultipleRegistersPDU(address, raw)
}

func (e *Executor) recoverTick(task, key string) {
	if err := recover(); err != nil {
		klog.V(2).InfoS("Recovered from failed task", "task", task, "key", key, "error", err)
	}
}
