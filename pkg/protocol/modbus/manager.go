package modbus

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"modbusgateway/pkg/protocol/modbus/batch"
	"modbusgateway/pkg/protocol/modbus/codec"
	"modbusgateway/pkg/protocol/modbus/model"
	modbus "modbusgateway/pkg/protocol/modbus/runtime"
	"modbusgateway/pkg/runtime"
	"modbusgateway/pkg/runtime/constant"
	"modbusgateway/pkg/utils/uuidutil"
	v1 "modbusgateway/pkg/v1"
)

const (
	maxNameLength = 64
	maxAddress    = math.MaxUint16 + 1
	maxUnitId     = math.MaxUint8
)

func validateName(name string) error {
	if len(name) > maxNameLength {
		return fmt.Errorf("must be no more than %d characters", maxNameLength)
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("must not contain '/' or '\\'")
	}
	return nil
}

// ConvertAgent validates agent and builds its runtime form, an empty id is generated.
func ConvertAgent(agent *v1.ModbusAgent) (*modbus.ModbusAgent, error) {
	if agent == nil {
		return nil, field.ErrorList{field.Required(field.NewPath("agent"), "")}.ToAggregate()
	}
	path := field.NewPath("agent")
	allErrs := runtime.ValidateObjectMeta(path.Child("name"), agent.Name, validateName)
	if _, ok := model.ModbusModelers[agent.Model]; !ok {
		allErrs = append(allErrs, field.NotSupported(path.Child("model"), agent.Model,
			[]string{model.ModelModbusTcp, model.ModelModbusRtu, model.ModelModbusRtuOverTcp}))
	}
	address, errs := convertAddress(path.Child("address"), agent.Address)
	allErrs = append(allErrs, errs...)
	deviceConfig, errs := ConvertDeviceConfig(path.Child("deviceConfig"), agent.DeviceConfig)
	allErrs = append(allErrs, errs...)
	if len(allErrs) > 0 {
		return nil, allErrs.ToAggregate()
	}

	id := agent.Id
	if len(id) == 0 {
		id = uuidutil.UUID()
	}
	return &modbus.ModbusAgent{
		Id:                id,
		Name:              agent.Name,
		Model:             agent.Model,
		Address:           address,
		Timeout:           time.Duration(agent.Timeout) * time.Millisecond,
		ReconnectInterval: time.Duration(agent.ReconnectInterval) * time.Millisecond,
		DeviceConfig:      deviceConfig,
	}, nil
}

// AgentToV1 the inverse of ConvertAgent.
func AgentToV1(agent *modbus.ModbusAgent) *v1.ModbusAgent {
	out := &v1.ModbusAgent{
		Id:                agent.Id,
		Name:              agent.Name,
		Model:             agent.Model,
		Timeout:           uint(agent.Timeout.Milliseconds()),
		ReconnectInterval: uint(agent.ReconnectInterval.Milliseconds()),
		DeviceConfig:      DeviceConfigToV1(agent.DeviceConfig),
	}
	if agent.Address != nil {
		out.Address = &v1.ModbusAddress{Location: agent.Address.Location}
		if o := agent.Address.Option; o != nil {
			out.Address.Option = &v1.ModbusAddressOption{
				Port:     o.Port,
				BaudRate: o.BaudRate,
				DataBits: o.DataBits,
				Parity:   constant.ParityToString[o.Parity],
				StopBits: constant.StopBitsToString[o.StopBits],
			}
		}
	}
	return out
}

func convertAddress(path *field.Path, address *v1.ModbusAddress) (*modbus.Address, field.ErrorList) {
	var allErrs field.ErrorList
	if address == nil {
		return nil, append(allErrs, field.Required(path, ""))
	}
	if len(address.Location) == 0 {
		allErrs = append(allErrs, field.Required(path.Child("location"), ""))
	}
	out := &modbus.Address{Location: address.Location, Option: &modbus.Option{}}
	if o := address.Option; o != nil {
		optionPath := path.Child("option")
		if o.Port < 0 || o.Port > math.MaxUint16 {
			allErrs = append(allErrs, field.Invalid(optionPath.Child("port"), o.Port, "must be between 0 and 65535"))
		}
		if o.BaudRate < 0 {
			allErrs = append(allErrs, field.Invalid(optionPath.Child("baudRate"), o.BaudRate, "must not be negative"))
		}
		if o.DataBits != 0 && (o.DataBits < 5 || o.DataBits > 8) {
			allErrs = append(allErrs, field.Invalid(optionPath.Child("dataBits"), o.DataBits, "must be between 5 and 8"))
		}
		out.Option.Port, out.Option.BaudRate, out.Option.DataBits = o.Port, o.BaudRate, o.DataBits
		if len(o.Parity) > 0 {
			if parity, ok := constant.StringToParity[o.Parity]; ok {
				out.Option.Parity = parity
			} else {
				allErrs = append(allErrs, field.Invalid(optionPath.Child("parity"), o.Parity, "unknown parity"))
			}
		}
		if len(o.StopBits) > 0 {
			if stopBits, ok := constant.StringToStopBits[o.StopBits]; ok {
				out.Option.StopBits = stopBits
			} else {
				allErrs = append(allErrs, field.NotSupported(optionPath.Child("stopBits"), o.StopBits, []string{"1", "1.5", "2"}))
			}
		}
	}
	return out, allErrs
}

// ConvertDeviceConfig keys must be a unit id or "default", an empty endian format means ABCD.
func ConvertDeviceConfig(path *field.Path, in map[string]*v1.DeviceConfig) (modbus.DeviceConfigMap, field.ErrorList) {
	var allErrs field.ErrorList
	out := make(modbus.DeviceConfigMap, len(in))
	for key, c := range in {
		p := path.Key(key)
		if key != modbus.DefaultDeviceConfigKey {
			if unitId, err := strconv.Atoi(key); err != nil || unitId < 0 || unitId > maxUnitId {
				allErrs = append(allErrs, field.Invalid(p, key, "must be a unit id or \"default\""))
				continue
			}
		}
		if c == nil {
			allErrs = append(allErrs, field.Required(p, ""))
			continue
		}
		config := &modbus.DeviceConfig{
			MaxRegisterLength: c.MaxRegisterLength,
			IllegalRegisters:  c.IllegalRegisters,
			EndianFormat:      modbus.DefaultDeviceEndianFormat,
		}
		if c.MaxRegisterLength < 0 {
			allErrs = append(allErrs, field.Invalid(p.Child("maxRegisterLength"), c.MaxRegisterLength, "must not be negative"))
		}
		if _, err := batch.ParseIllegalRegisters(c.IllegalRegisters); err != nil {
			allErrs = append(allErrs, field.Invalid(p.Child("illegalRegisters"), c.IllegalRegisters, err.Error()))
		}
		if len(c.EndianFormat) > 0 {
			layout, err := constant.ParseMemoryLayout(c.EndianFormat)
			if err != nil {
				allErrs = append(allErrs, field.Invalid(p.Child("endianFormat"), c.EndianFormat, err.Error()))
			}
			config.EndianFormat = layout
		}
		out[key] = config
	}
	return out, allErrs
}

func DeviceConfigToV1(in modbus.DeviceConfigMap) map[string]*v1.DeviceConfig {
	out := make(map[string]*v1.DeviceConfig, len(in))
	for key, c := range in {
		if c == nil {
			continue
		}
		out[key] = &v1.DeviceConfig{
			MaxRegisterLength: c.MaxRegisterLength,
			IllegalRegisters:  c.IllegalRegisters,
			EndianFormat:      c.EndianFormat.String(),
		}
	}
	return out
}

// DecodeAgentLink decodes a loosely typed agent link, "40" and 40.0 are both accepted as 40.
func DecodeAgentLink(raw map[string]interface{}) (*v1.AgentLink, error) {
	link := &v1.AgentLink{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           link,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, err
	}
	return link, nil
}

// ConvertAttributeLink validates l and returns its reference and runtime link.
func ConvertAttributeLink(path *field.Path, l *v1.AttributeLink) (runtime.AttributeRef, *modbus.AttributeLink, field.ErrorList) {
	ref := runtime.AttributeRef{AssetId: l.AssetId, Attribute: l.Attribute}
	allErrs := runtime.ValidateObjectMeta(path.Child("assetId"), l.AssetId, validateName)
	allErrs = append(allErrs, runtime.ValidateObjectMeta(path.Child("attribute"), l.Attribute, validateName)...)
	agentLink, err := DecodeAgentLink(l.AgentLink)
	if err != nil {
		return ref, nil, append(allErrs, field.Invalid(path.Child("agentLink"), l.AgentLink, err.Error()))
	}
	link, errs := ConvertAgentLink(path.Child("agentLink"), agentLink)
	return ref, link, append(allErrs, errs...)
}

// ConvertAgentLink a link needs a read or a write configuration, writes go to coils or holding registers only.
func ConvertAgentLink(path *field.Path, in *v1.AgentLink) (*modbus.AttributeLink, field.ErrorList) {
	var allErrs field.ErrorList
	out := &modbus.AttributeLink{
		UnitId:          in.UnitId,
		ReadAddress:     in.ReadAddress,
		RegistersAmount: in.RegistersAmount,
		RequestInterval: in.RequestInterval,
		WriteAddress:    in.WriteAddress,
	}
	if in.UnitId != nil && (*in.UnitId < 1 || *in.UnitId > maxUnitId) {
		allErrs = append(allErrs, field.Invalid(path.Child("unitId"), *in.UnitId, "must be between 1 and 255"))
	}

	if len(in.ReadMemoryArea) > 0 {
		area, err := constant.ParseMemoryArea(in.ReadMemoryArea)
		if err != nil {
			allErrs = append(allErrs, field.NotSupported(path.Child("readMemoryArea"), in.ReadMemoryArea, memoryAreas(false)))
		} else {
			out.ReadMemoryArea = &area
		}
		allErrs = append(allErrs, validateAddress(path.Child("readAddress"), in.ReadAddress)...)
	} else if in.ReadAddress != nil {
		allErrs = append(allErrs, field.Required(path.Child("readMemoryArea"), "readAddress is set"))
	}
	if len(in.ReadValueType) > 0 {
		dataType, err := constant.ParseDataType(in.ReadValueType)
		if err != nil {
			allErrs = append(allErrs, field.Invalid(path.Child("readValueType"), in.ReadValueType, err.Error()))
		} else {
			out.ReadValueType = &dataType
		}
	}

	if len(in.WriteMemoryArea) > 0 {
		area, err := constant.ParseMemoryArea(in.WriteMemoryArea)
		if err != nil || !area.Writable() {
			allErrs = append(allErrs, field.NotSupported(path.Child("writeMemoryArea"), in.WriteMemoryArea, memoryAreas(true)))
		} else {
			out.WriteMemoryArea = &area
		}
		allErrs = append(allErrs, validateAddress(path.Child("writeAddress"), in.WriteAddress)...)
	} else if in.WriteAddress != nil {
		allErrs = append(allErrs, field.Required(path.Child("writeMemoryArea"), "writeAddress is set"))
	}
	if len(in.WriteValueType) > 0 {
		dataType, err := constant.ParseDataType(in.WriteValueType)
		if err != nil {
			allErrs = append(allErrs, field.Invalid(path.Child("writeValueType"), in.WriteValueType, err.Error()))
		} else {
			out.WriteValueType = &dataType
		}
	}

	if in.RegistersAmount != nil && (*in.RegistersAmount < 1 || *in.RegistersAmount > codec.MaxReadRegisters) {
		allErrs = append(allErrs, field.Invalid(path.Child("registersAmount"), *in.RegistersAmount, fmt.Sprintf("must be between 1 and %d", codec.MaxReadRegisters)))
	}
	if in.RequestInterval != nil && *in.RequestInterval < 0 {
		allErrs = append(allErrs, field.Invalid(path.Child("requestInterval"), *in.RequestInterval, "must not be negative"))
	}
	if len(in.ReadMemoryArea) == 0 && len(in.WriteMemoryArea) == 0 {
		allErrs = append(allErrs, field.Required(path, "a read or write memory area is required"))
	}
	return out, allErrs
}

func validateAddress(path *field.Path, address *int) field.ErrorList {
	if address == nil {
		return field.ErrorList{field.Required(path, "")}
	}
	if *address < 1 || *address > maxAddress {
		return field.ErrorList{field.Invalid(path, *address, fmt.Sprintf("must be between 1 and %d", maxAddress))}
	}
	return nil
}

func memoryAreas(writable bool) []string {
	if writable {
		return []string{constant.COIL.String(), constant.HOLDING.String()}
	}
	return []string{constant.COIL.String(), constant.DISCRETE.String(), constant.HOLDING.String(), constant.INPUT.String()}
}

// AgentLinkToV1 the inverse of ConvertAgentLink.
func AgentLinkToV1(link *modbus.AttributeLink) *v1.AgentLink {
	out := &v1.AgentLink{
		UnitId:          link.UnitId,
		ReadAddress:     link.ReadAddress,
		RegistersAmount: link.RegistersAmount,
		RequestInterval: link.RequestInterval,
		WriteAddress:    link.WriteAddress,
	}
	if link.ReadMemoryArea != nil {
		out.ReadMemoryArea = link.ReadMemoryArea.String()
	}
	if link.ReadValueType != nil {
		out.ReadValueType = link.ReadValueType.String()
	}
	if link.WriteMemoryArea != nil {
		out.WriteMemoryArea = link.WriteMemoryArea.String()
	}
	if link.WriteValueType != nil {
		out.WriteValueType = link.WriteValueType.String()
	}
	return out
}
