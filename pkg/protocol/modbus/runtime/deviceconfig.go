package runtime

import (
	"strconv"

	"modbusgateway/pkg/runtime/constant"
)

const (
	DefaultDeviceConfigKey    = "default"
	DefaultMaxRegisterLength  = 125
	DefaultDeviceEndianFormat = constant.ABCD
)

type DeviceConfig struct {
	MaxRegisterLength int                   `json:"maxRegisterLength"`
	IllegalRegisters  string                `json:"illegalRegisters,omitempty"` // 例如 "3,10-15"
	EndianFormat      constant.MemoryLayout `json:"endianFormat"`
}

func NewDefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		MaxRegisterLength: DefaultMaxRegisterLength,
		EndianFormat:      DefaultDeviceEndianFormat,
	}
}

// DeviceConfigMap keyed by unit id in decimal or "default".
type DeviceConfigMap map[string]*DeviceConfig

// Resolve unit id entry, then "default", then the built in defaults.
func (m DeviceConfigMap) Resolve(unitId uint8) *DeviceConfig {
	if c, ok := m[strconv.Itoa(int(unitId))]; ok && c != nil {
		return c
	}
	if c, ok := m[DefaultDeviceConfigKey]; ok && c != nil {
		return c
	}
	return NewDefaultDeviceConfig()
}

func (m DeviceConfigMap) DeepCopy() DeviceConfigMap {
	if m == nil {
		return nil
	}
	out := make(DeviceConfigMap, len(m))
	for k, v := range m {
		if v == nil {
			out[k] = nil
			continue
		}
		c := *v
		out[k] = &c
	}
	return out
}
