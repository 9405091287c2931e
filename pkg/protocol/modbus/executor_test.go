package modbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modbusgateway/pkg/protocol/modbus/codec"
	modbus "modbusgateway/pkg/protocol/modbus/runtime"
	"modbusgateway/pkg/runtime"
	"modbusgateway/pkg/runtime/constant"
)

const (
	eventually = 2 * time.Second
	tick       = 5 * time.Millisecond
)

func ptr[T any](v T) *T { return &v }

func attr(name string) runtime.AttributeRef {
	return runtime.AttributeRef{AssetId: "asset", Attribute: name}
}

func readLink(area constant.MemoryArea, address int, dataType constant.DataType, intervalMs int64) *modbus.AttributeLink {
	link := &modbus.AttributeLink{UnitId: ptr(1), ReadMemoryArea: ptr(area), ReadAddress: ptr(address), ReadValueType: ptr(dataType)}
	if intervalMs > 0 {
		link.RequestInterval = ptr(intervalMs)
	}
	return link
}

func newTestExecutor(t *testing.T) (*Executor, *fakeCallback, *fakeDevice) {
	device := newFakeDevice()
	callback := newFakeCallback(device)
	e := NewExecutor(callback)
	e.OnStart()
	t.Cleanup(func() {
		e.OnStop()
		callback.scheduler.Shutdown()
	})
	return e, callback, device
}

func link(e *Executor, cb *fakeCallback, ref runtime.AttributeRef, l *modbus.AttributeLink) {
	cb.Link(ref)
	e.Link(ref, l)
}

func waitValue(t *testing.T, cb *fakeCallback, ref runtime.AttributeRef, want interface{}) {
	t.Helper()
	assert.Eventually(t, func() bool {
		v, _ := cb.GetLinkedAttribute(ref)
		return assert.ObjectsAreEqual(want, v)
	}, eventually, tick)
}

func TestOnStartSeedsDefaultConfig(t *testing.T) {
	_, cb, _ := newTestExecutor(t)
	config := cb.GetDeviceConfig()
	require.Contains(t, config, modbus.DefaultDeviceConfigKey)
	assert.Equal(t, modbus.DefaultMaxRegisterLength, config[modbus.DefaultDeviceConfigKey].MaxRegisterLength)

	custom := modbus.DeviceConfigMap{"1": modbus.NewDefaultDeviceConfig()}
	cb.SetDeviceConfig(custom)
	NewExecutor(cb).OnStart()
	assert.NotContains(t, cb.GetDeviceConfig(), modbus.DefaultDeviceConfigKey)
}

func TestOneTimeReadAtLink(t *testing.T) {
	e, cb, device := newTestExecutor(t)
	device.setRegisters(0, 0x002A, 0x0001)

	link(e, cb, attr("counter"), readLink(constant.HOLDING, 1, constant.DINT, 0))
	waitValue(t, cb, attr("counter"), int32(2752513))
	assert.Equal(t, [][]byte{{0x03, 0x00, 0x00, 0x00, 0x02}}, device.requestLog())
	assert.Empty(t, e.Plans())
}

func TestPeriodicBatchRead(t *testing.T) {
	e, cb, device := newTestExecutor(t)
	device.setRegisters(9, 7, 0, 0, 9)

	link(e, cb, attr("a"), readLink(constant.HOLDING, 10, constant.UINT, 20))
	link(e, cb, attr("b"), readLink(constant.HOLDING, 13, constant.INT, 20))
	waitValue(t, cb, attr("a"), uint16(7))
	waitValue(t, cb, attr("b"), int16(9))

	plans := e.Plans()
	require.Len(t, plans, 1)
	for key, batches := range plans {
		assert.Equal(t, "agent_1_HOLDING_20", key)
		require.Len(t, batches, 1)
		assert.Equal(t, 10, batches[0].StartAddress)
		assert.Equal(t, 4, batches[0].Quantity)
	}
	assert.Eventually(t, func() bool {
		for _, r := range device.requestLog() {
			if assert.ObjectsAreEqual([]byte{0x03, 0x00, 0x09, 0x00, 0x04}, r) {
				return true
			}
		}
		return false
	}, eventually, tick)
}

func TestIllegalRegisterSplitsBatch(t *testing.T) {
	e, cb, device := newTestExecutor(t)
	cb.SetDeviceConfig(modbus.DeviceConfigMap{"default": {MaxRegisterLength: 100, IllegalRegisters: "12", EndianFormat: constant.ABCD}})
	device.setRegisters(9, 1, 0, 0, 2)

	link(e, cb, attr("a"), readLink(constant.INPUT, 10, constant.UINT, 20))
	link(e, cb, attr("b"), readLink(constant.INPUT, 13, constant.UINT, 20))
	waitValue(t, cb, attr("a"), uint16(1))
	waitValue(t, cb, attr("b"), uint16(2))

	for _, batches := range e.Plans() {
		require.Len(t, batches, 2)
		assert.Equal(t, 10, batches[0].StartAddress)
		assert.Equal(t, 13, batches[1].StartAddress)
	}
	for _, r := range device.requestLog() {
		// never a request spanning register 12
		assert.NotEqual(t, []byte{0x04, 0x00, 0x09, 0x00, 0x04}, r)
	}

	// changing the config is only seen after plans are invalidated
	cb.SetDeviceConfig(modbus.DeviceConfigMap{})
	e.InvalidatePlans()
	for _, batches := range e.Plans() {
		assert.Len(t, batches, 1)
	}
}

func TestExceptionSkipsOnlyFailedBatch(t *testing.T) {
	e, cb, device := newTestExecutor(t)
	cb.SetDeviceConfig(modbus.DeviceConfigMap{"default": {MaxRegisterLength: 2, EndianFormat: constant.ABCD}})
	device.setRegisters(0, 11)
	device.setRegisters(9, 22)
	device.exceptions[0] = true

	link(e, cb, attr("bad"), readLink(constant.HOLDING, 1, constant.UINT, 20))
	link(e, cb, attr("good"), readLink(constant.HOLDING, 10, constant.UINT, 20))
	waitValue(t, cb, attr("good"), uint16(22))
	v, _ := cb.GetLinkedAttribute(attr("bad"))
	assert.Nil(t, v)
}

func TestFailingTickKeepsSchedule(t *testing.T) {
	e, cb, device := newTestExecutor(t)
	device.failures = 2
	device.setRegisters(0, 5)

	link(e, cb, attr("a"), readLink(constant.HOLDING, 1, constant.UINT, 10))
	waitValue(t, cb, attr("a"), uint16(5))
	assert.GreaterOrEqual(t, len(device.requestLog()), 3)
}

func TestNotConnectedSkips(t *testing.T) {
	e, cb, device := newTestExecutor(t)
	cb.status.Store(int32(constant.ERROR))

	link(e, cb, attr("a"), readLink(constant.HOLDING, 1, constant.UINT, 10))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, device.requestLog())

	coil := &modbus.AttributeLink{WriteMemoryArea: ptr(constant.COIL), WriteAddress: ptr(5)}
	err := e.HandleWrite(attr("c"), coil, AttributeEvent{Value: true})
	assert.ErrorIs(t, err, constant.ErrNotConnected)

	cb.status.Store(int32(constant.CONNECTED))
	assert.Eventually(t, func() bool { return len(device.requestLog()) > 0 }, eventually, tick)
}

func TestUnlinkStopsPolling(t *testing.T) {
	e, cb, device := newTestExecutor(t)
	l := readLink(constant.HOLDING, 1, constant.UINT, 10)
	link(e, cb, attr("a"), l)
	assert.Eventually(t, func() bool { return len(device.requestLog()) >= 2 }, eventually, tick)

	e.Unlink(attr("a"), l)
	assert.Empty(t, e.Plans())
	time.Sleep(30 * time.Millisecond)
	n := len(device.requestLog())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, len(device.requestLog()))
}

func TestUnlinkInvalidatesPlan(t *testing.T) {
	e, cb, _ := newTestExecutor(t)
	a := readLink(constant.HOLDING, 1, constant.UINT, 1000)
	b := readLink(constant.HOLDING, 50, constant.UINT, 1000)
	link(e, cb, attr("a"), a)
	link(e, cb, attr("b"), b)
	for _, batches := range e.Plans() {
		assert.Len(t, batches, 1)
		assert.Equal(t, 50, batches[0].Quantity)
	}
	e.Unlink(attr("b"), b)
	for _, batches := range e.Plans() {
		require.Len(t, batches, 1)
		assert.Equal(t, 1, batches[0].Quantity)
	}
}

func TestWriteCoilWriteOnly(t *testing.T) {
	e, cb, device := newTestExecutor(t)
	ref := attr("switch")
	l := &modbus.AttributeLink{WriteMemoryArea: ptr(constant.COIL), WriteAddress: ptr(5)}
	cb.Link(ref)

	require.NoError(t, e.HandleWrite(ref, l, AttributeEvent{Ref: ref, Value: true, Source: SourceUser}))
	assert.Equal(t, [][]byte{{0x05, 0x00, 0x04, 0xFF, 0x00}}, device.requestLog())
	v, _ := cb.GetLinkedAttribute(ref)
	assert.Equal(t, true, v)
	assert.True(t, device.coils[4])
}

func TestWriteWithVerificationRead(t *testing.T) {
	e, cb, device := newTestExecutor(t)
	ref := attr("setpoint")
	l := readLink(constant.HOLDING, 3, constant.REAL, 0)
	l.WriteMemoryArea = ptr(constant.HOLDING)
	l.WriteAddress = ptr(3)
	l.RegistersAmount = ptr(2)
	cb.Link(ref)

	require.NoError(t, e.HandleWrite(ref, l, AttributeEvent{Ref: ref, Value: float64(12.5), Source: SourceUser}))
	requests := device.requestLog()
	require.NotEmpty(t, requests)
	assert.Equal(t, []byte{0x10, 0x00, 0x02, 0x00, 0x02, 0x04, 0x41, 0x48, 0x00, 0x00}, requests[0])

	// the store is only updated by the read back
	waitValue(t, cb, ref, float32(12.5))
	assert.Eventually(t, func() bool {
		for _, r := range device.requestLog() {
			if assert.ObjectsAreEqual([]byte{0x03, 0x00, 0x02, 0x00, 0x02}, r) {
				return true
			}
		}
		return false
	}, eventually, tick)
}

func TestWriteSingleRegister(t *testing.T) {
	e, cb, device := newTestExecutor(t)
	cb.SetDeviceConfig(modbus.DeviceConfigMap{"default": {MaxRegisterLength: 10, EndianFormat: constant.DCBA}})
	l := &modbus.AttributeLink{WriteMemoryArea: ptr(constant.HOLDING), WriteAddress: ptr(1), WriteValueType: ptr(constant.INT)}

	require.NoError(t, e.HandleWrite(attr("x"), l, AttributeEvent{Value: -2, Source: SourceInterval}))
	assert.Equal(t, [][]byte{{0x06, 0x00, 0x00, 0xFE, 0xFF}}, device.requestLog())

	untyped := &modbus.AttributeLink{WriteMemoryArea: ptr(constant.HOLDING), WriteAddress: ptr(2)}
	require.NoError(t, e.HandleWrite(attr("y"), untyped, AttributeEvent{Value: "258"}))
	assert.Equal(t, []byte{0x06, 0x00, 0x01, 0x01, 0x02}, device.requestLog()[1])

	multi := &modbus.AttributeLink{WriteMemoryArea: ptr(constant.HOLDING), WriteAddress: ptr(2), RegistersAmount: ptr(2)}
	assert.Error(t, e.HandleWrite(attr("y"), multi, AttributeEvent{Value: 1}))
}

func TestWriteDefaultsToSingleRegister(t *testing.T) {
	e, _, device := newTestExecutor(t)
	l := &modbus.AttributeLink{WriteMemoryArea: ptr(constant.HOLDING), WriteAddress: ptr(10), WriteValueType: ptr(constant.DINT)}

	require.NoError(t, e.HandleWrite(attr("x"), l, AttributeEvent{Value: 7, Source: SourceInterval}))
	assert.Equal(t, [][]byte{{0x06, 0x00, 0x09, 0x00, 0x07}}, device.requestLog())
}

func TestRegistersAmountOverridesType(t *testing.T) {
	t.Run("DINT in one register", func(t *testing.T) {
		e, cb, device := newTestExecutor(t)
		device.setRegisters(0, 0xFFFE)
		l := readLink(constant.HOLDING, 1, constant.DINT, 0)
		l.RegistersAmount = ptr(1)
		l.WriteMemoryArea = ptr(constant.HOLDING)
		l.WriteAddress = ptr(1)

		link(e, cb, attr("narrow"), l)
		waitValue(t, cb, attr("narrow"), uint16(0xFFFE))
		assert.Equal(t, []byte{0x03, 0x00, 0x00, 0x00, 0x01}, device.requestLog()[0])

		require.NoError(t, e.HandleWrite(attr("narrow"), l, AttributeEvent{Value: 7, Source: SourceInterval}))
		requests := device.requestLog()
		assert.Equal(t, []byte{0x06, 0x00, 0x00, 0x00, 0x07}, requests[len(requests)-1])
	})

	t.Run("UINT in two registers", func(t *testing.T) {
		e, cb, device := newTestExecutor(t)
		device.setRegisters(4, 0xFFFF, 0xFFFD)
		l := readLink(constant.HOLDING, 5, constant.UINT, 0)
		l.RegistersAmount = ptr(2)
		l.WriteMemoryArea = ptr(constant.HOLDING)
		l.WriteAddress = ptr(5)

		link(e, cb, attr("wide"), l)
		waitValue(t, cb, attr("wide"), int32(-3))
		assert.Equal(t, []byte{0x03, 0x00, 0x04, 0x00, 0x02}, device.requestLog()[0])

		require.NoError(t, e.HandleWrite(attr("wide"), l, AttributeEvent{Value: -2, Source: SourceInterval}))
		requests := device.requestLog()
		assert.Equal(t, []byte{0x10, 0x00, 0x04, 0x00, 0x02, 0x04, 0xFF, 0xFF, 0xFF, 0xFE}, requests[len(requests)-1])
	})
}

func TestIncompleteReadLinkNotScheduled(t *testing.T) {
	e, cb, device := newTestExecutor(t)
	untyped := &modbus.AttributeLink{UnitId: ptr(1), ReadMemoryArea: ptr(constant.HOLDING), ReadAddress: ptr(1), RequestInterval: ptr(int64(10))}
	noUnit := &modbus.AttributeLink{ReadMemoryArea: ptr(constant.COIL), ReadAddress: ptr(1), ReadValueType: ptr(constant.BOOL), RequestInterval: ptr(int64(10))}
	oneShot := &modbus.AttributeLink{ReadMemoryArea: ptr(constant.INPUT), ReadAddress: ptr(1)}

	link(e, cb, attr("untyped"), untyped)
	link(e, cb, attr("noUnit"), noUnit)
	link(e, cb, attr("oneShot"), oneShot)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, device.requestLog())
	assert.Empty(t, e.Plans())
	assert.Equal(t, constant.AccessModeNone, untyped.AccessMode())
}

func TestWriteExceptionAndErrors(t *testing.T) {
	e, _, device := newTestExecutor(t)
	device.exceptions[4] = true
	l := &modbus.AttributeLink{WriteMemoryArea: ptr(constant.COIL), WriteAddress: ptr(5)}

	err := e.HandleWrite(attr("c"), l, AttributeEvent{Value: true, Source: SourceUser})
	var exception *codec.ExceptionError
	require.ErrorAs(t, err, &exception)
	assert.Equal(t, uint8(0x02), exception.ExceptionCode)

	assert.ErrorIs(t, e.HandleWrite(attr("r"), readLink(constant.HOLDING, 1, constant.INT, 0), AttributeEvent{Value: 1}), ErrNoWriteConfig)

	assert.Error(t, e.HandleWrite(attr("c"), l, AttributeEvent{Value: "maybe"}))
}

func TestUnsupportedWriteAreaPanics(t *testing.T) {
	e, _, _ := newTestExecutor(t)
	l := &modbus.AttributeLink{WriteMemoryArea: ptr(constant.INPUT), WriteAddress: ptr(1)}
	assert.Panics(t, func() {
		_ = e.HandleWrite(attr("x"), l, AttributeEvent{Value: 1})
	})
}

func TestPeriodicWrite(t *testing.T) {
	e, cb, device := newTestExecutor(t)
	ref := attr("heartbeat")
	l := &modbus.AttributeLink{WriteMemoryArea: ptr(constant.COIL), WriteAddress: ptr(2), RequestInterval: ptr(int64(10))}
	link(e, cb, ref, l)

	// no value yet, nothing to write
	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, device.requestLog())

	cb.UpdateLinkedAttribute(ref, true)
	assert.Eventually(t, func() bool { return len(device.requestLog()) >= 3 }, eventually, tick)
	for _, r := range device.requestLog() {
		assert.Equal(t, []byte{0x05, 0x00, 0x01, 0xFF, 0x00}, r)
	}

	e.Unlink(ref, l)
	time.Sleep(30 * time.Millisecond)
	n := len(device.requestLog())
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, n, len(device.requestLog()))
}

func TestCoilBatchRead(t *testing.T) {
	e, cb, device := newTestExecutor(t)
	device.coils[0] = true
	device.coils[9] = true

	link(e, cb, attr("c1"), readLink(constant.COIL, 1, constant.BOOL, 20))
	link(e, cb, attr("c2"), readLink(constant.COIL, 2, constant.BOOL, 20))
	link(e, cb, attr("c10"), readLink(constant.COIL, 10, constant.BOOL, 20))
	waitValue(t, cb, attr("c1"), true)
	waitValue(t, cb, attr("c10"), true)
	waitValue(t, cb, attr("c2"), false)
}

func TestOnStopCancelsEverything(t *testing.T) {
	e, cb, device := newTestExecutor(t)
	link(e, cb, attr("a"), readLink(constant.HOLDING, 1, constant.UINT, 10))
	link(e, cb, attr("w"), &modbus.AttributeLink{WriteMemoryArea: ptr(constant.COIL), WriteAddress: ptr(1), RequestInterval: ptr(int64(10))})
	cb.UpdateLinkedAttribute(attr("w"), false)
	assert.Eventually(t, func() bool { return len(device.requestLog()) >= 2 }, eventually, tick)

	e.OnStop()
	assert.Empty(t, e.Plans())
	time.Sleep(30 * time.Millisecond)
	n := len(device.requestLog())
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, n, len(device.requestLog()))
}
