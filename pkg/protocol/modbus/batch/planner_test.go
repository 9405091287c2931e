package batch

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	modbus "modbusgateway/pkg/protocol/modbus/runtime"
	"modbusgateway/pkg/runtime"
	"modbusgateway/pkg/runtime/constant"
)

func ref(name string) runtime.AttributeRef {
	return runtime.AttributeRef{AssetId: "asset", Attribute: name}
}

func holding(address, amount int) *modbus.AttributeLink {
	area, dataType, unit := constant.HOLDING, constant.UINT, 1
	return &modbus.AttributeLink{UnitId: &unit, ReadMemoryArea: &area, ReadValueType: &dataType, ReadAddress: &address, RegistersAmount: &amount}
}

func TestIllegalGapSplits(t *testing.T) {
	links := map[runtime.AttributeRef]*modbus.AttributeLink{
		ref("a"): holding(10, 1),
		ref("b"): holding(13, 1),
	}
	batches := CreateBatchRequests(links, modbus.RegisterRanges{{Start: 12, End: 12}}, 100)
	require.Len(t, batches, 2)
	assert.Equal(t, 10, batches[0].StartAddress)
	assert.Equal(t, 1, batches[0].Quantity)
	assert.Equal(t, 13, batches[1].StartAddress)
	assert.Equal(t, 1, batches[1].Quantity)

	batches = CreateBatchRequests(links, nil, 100)
	require.Len(t, batches, 1)
	assert.Equal(t, 10, batches[0].StartAddress)
	assert.Equal(t, 4, batches[0].Quantity)
	assert.Equal(t, []modbus.BatchMember{{Ref: ref("a"), Offset: 0}, {Ref: ref("b"), Offset: 3}}, batches[0].Members)
}

func TestMaxRegisterLength(t *testing.T) {
	links := map[runtime.AttributeRef]*modbus.AttributeLink{
		ref("a"): holding(1, 1),
		ref("b"): holding(5, 1),
	}
	batches := CreateBatchRequests(links, nil, 5)
	require.Len(t, batches, 1)
	assert.Equal(t, 5, batches[0].Quantity)
	assert.Equal(t, 4, batches[0].Members[1].Offset)

	batches = CreateBatchRequests(links, nil, 4)
	require.Len(t, batches, 2)
	assert.Equal(t, 1, batches[0].StartAddress)
	assert.Equal(t, 5, batches[1].StartAddress)

	batches = CreateBatchRequests(links, nil, 0)
	require.Len(t, batches, 1)
}

func TestOverlappingMembers(t *testing.T) {
	links := map[runtime.AttributeRef]*modbus.AttributeLink{
		ref("wide"):   holding(1, 4),
		ref("inside"): holding(2, 1),
	}
	batches := CreateBatchRequests(links, nil, 10)
	require.Len(t, batches, 1)
	assert.Equal(t, 4, batches[0].Quantity)
	assert.Equal(t, []modbus.BatchMember{{Ref: ref("wide"), Offset: 0}, {Ref: ref("inside"), Offset: 1}}, batches[0].Members)
}

func TestOversizedMemberGetsOwnBatch(t *testing.T) {
	links := map[runtime.AttributeRef]*modbus.AttributeLink{
		ref("big"): holding(1, 8),
		ref("b"):   holding(20, 1),
	}
	batches := CreateBatchRequests(links, nil, 4)
	require.Len(t, batches, 2)
	assert.Equal(t, 8, batches[0].Quantity)
}

func TestSkipsLinksWithoutRead(t *testing.T) {
	coil := constant.COIL
	address := 3
	untyped := holding(5, 1)
	untyped.ReadValueType = nil
	links := map[runtime.AttributeRef]*modbus.AttributeLink{
		ref("write"):   {WriteMemoryArea: &coil, WriteAddress: &address},
		ref("nil"):     nil,
		ref("untyped"): untyped,
	}
	assert.Empty(t, CreateBatchRequests(links, nil, 10))
}

func TestPlanProperties(t *testing.T) {
	links := map[runtime.AttributeRef]*modbus.AttributeLink{}
	for i := 0; i < 40; i++ {
		links[ref(fmt.Sprintf("attr%02d", i))] = holding(1+(i*7)%60, 1+i%4)
	}
	illegal := modbus.RegisterRanges{{Start: 20, End: 22}, {Start: 45, End: 45}}
	const maxLen = 16
	batches := CreateBatchRequests(links, illegal, maxLen)

	seen := map[runtime.AttributeRef]int{}
	for _, b := range batches {
		if len(b.Members) > 1 {
			assert.LessOrEqual(t, b.Quantity, maxLen)
		}
		for _, m := range b.Members {
			seen[m.Ref]++
			link := links[m.Ref]
			assert.Equal(t, *link.ReadAddress-b.StartAddress, m.Offset)
			assert.LessOrEqual(t, m.Offset+link.ReadRegisterCount(), b.Quantity)
		}
	}
	assert.Len(t, seen, len(links))
	for r, n := range seen {
		assert.Equal(t, 1, n, r.String())
	}
}

func TestParseIllegalRegisters(t *testing.T) {
	ranges, err := ParseIllegalRegisters(" 3, 10-15 ,20 - 18,,")
	require.NoError(t, err)
	assert.Equal(t, modbus.RegisterRanges{{Start: 3, End: 3}, {Start: 10, End: 15}, {Start: 18, End: 20}}, ranges)
	assert.True(t, IsIllegalRegister(12, ranges))
	assert.True(t, IsIllegalRegister(19, ranges))
	assert.False(t, IsIllegalRegister(4, ranges))

	ranges, err = ParseIllegalRegisters("5,x,7-y")
	assert.Error(t, err)
	assert.Equal(t, modbus.RegisterRanges{{Start: 5, End: 5}}, ranges)

	ranges, err = ParseIllegalRegisters("")
	assert.NoError(t, err)
	assert.Empty(t, ranges)
}
