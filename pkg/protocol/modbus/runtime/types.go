package runtime

import (
	"time"

	"modbusgateway/pkg/runtime"
	"modbusgateway/pkg/runtime/constant"
)

const DefaultUnitId = 1

// ModbusAgent 采集代理运行时配置
type ModbusAgent struct {
	Id                string
	Name              string
	Model             string
	Address           *Address
	Timeout           time.Duration
	ReconnectInterval time.Duration
	DeviceConfig      DeviceConfigMap
}

type Address struct {
	Location string  `json:"location"` // 地址路径
	Option   *Option `json:"option"`   // 地址其他参数
}

type Option struct {
	Port     int               `json:"port,omitempty"`     // 端口号
	BaudRate int               `json:"baudRate,omitempty"` // 波特率
	DataBits int               `json:"dataBits,omitempty"` // 数据位
	Parity   constant.Parity   `json:"parity,omitempty"`   // 校验位
	StopBits constant.StopBits `json:"stopBits,omitempty"` // 停止位
}

// AttributeLink 属性与寄存器的绑定关系, 地址从 1 开始
type AttributeLink struct {
	UnitId          *int                 `json:"unitId,omitempty"`
	ReadMemoryArea  *constant.MemoryArea `json:"readMemoryArea,omitempty"`
	ReadAddress     *int                 `json:"readAddress,omitempty"`
	ReadValueType   *constant.DataType   `json:"readValueType,omitempty"`
	RegistersAmount *int                 `json:"registersAmount,omitempty"`
	RequestInterval *int64               `json:"requestInterval,omitempty"` // 毫秒
	WriteMemoryArea *constant.MemoryArea `json:"writeMemoryArea,omitempty"`
	WriteAddress    *int                 `json:"writeAddress,omitempty"`
	WriteValueType  *constant.DataType   `json:"writeValueType,omitempty"`
}

// Unit is DefaultUnitId for write-only links without a unit id.
func (l *AttributeLink) Unit() uint8 {
	if l.UnitId == nil {
		return DefaultUnitId
	}
	return uint8(*l.UnitId)
}

// HasReadConfig a link is only read when unit, area, type and address are all set.
func (l *AttributeLink) HasReadConfig() bool {
	return l.UnitId != nil && l.ReadMemoryArea != nil && l.ReadValueType != nil && l.ReadAddress != nil
}

func (l *AttributeLink) HasWriteConfig() bool {
	return l.WriteMemoryArea != nil && l.WriteAddress != nil
}

func (l *AttributeLink) Interval() time.Duration {
	if l.RequestInterval == nil || *l.RequestInterval <= 0 {
		return 0
	}
	return time.Duration(*l.RequestInterval) * time.Millisecond
}

func (l *AttributeLink) IsPeriodicRead() bool {
	return l.HasReadConfig() && l.Interval() > 0
}

// IsPeriodicWrite links without a read address and with an interval resend the stored value.
func (l *AttributeLink) IsPeriodicWrite() bool {
	return l.ReadAddress == nil && l.HasWriteConfig() && l.Interval() > 0
}

// ReadDataType must only be called when HasReadConfig.
func (l *AttributeLink) ReadDataType() constant.DataType {
	return *l.ReadValueType
}

// ReadRegisterCount registersAmount overrides the width of the read type, bit areas read one bit.
func (l *AttributeLink) ReadRegisterCount() int {
	if l.RegistersAmount != nil && *l.RegistersAmount > 0 {
		return *l.RegistersAmount
	}
	if l.ReadMemoryArea != nil && l.ReadMemoryArea.IsBit() {
		return 1
	}
	if l.ReadValueType == nil {
		return 1
	}
	return l.ReadValueType.RegisterCount()
}

// WriteDataType values are encoded with the read type when there is one.
func (l *AttributeLink) WriteDataType() (constant.DataType, bool) {
	if l.ReadValueType != nil {
		return *l.ReadValueType, true
	}
	if l.WriteValueType != nil {
		return *l.WriteValueType, true
	}
	return 0, false
}

// WriteRegisterCount is registersAmount, a single register when absent.
func (l *AttributeLink) WriteRegisterCount() int {
	if l.RegistersAmount != nil && *l.RegistersAmount > 0 {
		return *l.RegistersAmount
	}
	return 1
}

func (l *AttributeLink) AccessMode() constant.AccessMode {
	switch r, w := l.HasReadConfig(), l.HasWriteConfig(); {
	case r && w:
		return constant.AccessModeReadWrite
	case r:
		return constant.AccessModeReadOnly
	case w:
		return constant.AccessModeWriteOnly
	default:
		return constant.AccessModeNone
	}
}

type BatchMember struct {
	Ref    runtime.AttributeRef
	Offset int
}

// BatchReadRequest 一次读请求覆盖的连续寄存器, StartAddress 从 1 开始
type BatchReadRequest struct {
	StartAddress int
	Quantity     int
	Members      []BatchMember
}

func (b *BatchReadRequest) End() int {
	return b.StartAddress + b.Quantity
}

func (b *BatchReadRequest) AddMember(ref runtime.AttributeRef, offset int) {
	b.Members = append(b.Members, BatchMember{Ref: ref, Offset: offset})
}

// RegisterRange closed interval [Start, End]
type RegisterRange struct {
	Start int
	End   int
}

func (r RegisterRange) Contains(register int) bool {
	return register >= r.Start && register <= r.End
}

type RegisterRanges []RegisterRange

func (rs RegisterRanges) Contains(register int) bool {
	for _, r := range rs {
		if r.Contains(register) {
			return true
		}
	}
	return false
}

// Overlaps reports whether any register in [from, to) is contained.
func (rs RegisterRanges) Overlaps(from, to int) bool {
	for _, r := range rs {
		if r.Start < to && r.End >= from {
			return true
		}
	}
	return false
}
