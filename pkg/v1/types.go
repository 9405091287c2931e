package v1

// AgentLink 属性在代理上的读写配置, 地址从 1 开始
type AgentLink struct {
	UnitId          *int   `json:"unitId,omitempty" mapstructure:"unitId"`
	ReadMemoryArea  string `json:"readMemoryArea,omitempty" mapstructure:"readMemoryArea"` // COIL DISCRETE HOLDING INPUT
	ReadAddress     *int   `json:"readAddress,omitempty" mapstructure:"readAddress"`
	ReadValueType   string `json:"readValueType,omitempty" mapstructure:"readValueType"`
	RegistersAmount *int   `json:"registersAmount,omitempty" mapstructure:"registersAmount"`
	RequestInterval *int64 `json:"requestInterval,omitempty" mapstructure:"requestInterval"` // 毫秒
	WriteMemoryArea string `json:"writeMemoryArea,omitempty" mapstructure:"writeMemoryArea"` // COIL HOLDING
	WriteAddress    *int   `json:"writeAddress,omitempty" mapstructure:"writeAddress"`
	WriteValueType  string `json:"writeValueType,omitempty" mapstructure:"writeValueType"`
}

// AttributeLink binds one asset attribute to an agent link. AgentLink is kept loose so config files
// may carry numbers as strings.
type AttributeLink struct {
	AssetId   string                 `json:"assetId" binding:"required,min=1,max=64,excludesall=\u002F\u005C"`
	Attribute string                 `json:"attribute" binding:"required,min=1,max=64,excludesall=\u002F\u005C"`
	AgentLink map[string]interface{} `json:"agentLink" binding:"required"`
}

// LinkedAttribute a link together with its last value.
type LinkedAttribute struct {
	AssetId    string      `json:"assetId"`
	Attribute  string      `json:"attribute"`
	AgentLink  *AgentLink  `json:"agentLink"`
	AccessMode string      `json:"accessMode"`
	Value      interface{} `json:"value,omitempty"`
	Timestamp  string      `json:"timestamp,omitempty"`
}
