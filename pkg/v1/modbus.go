package v1

// ModbusAgent 采集代理, 一个代理对应一条连接
type ModbusAgent struct {
	Id                string                   `json:"id,omitempty"`
	Name              string                   `json:"name" binding:"required,min=1,max=64,excludesall=\u002F\u005C"`       // 代理名称
	Model             string                   `json:"model" binding:"required,oneof=modbusTcp modbusRtu modbusRtuOverTcp"` // 传输模型
	Address           *ModbusAddress           `json:"address" binding:"required"`                                          // IP地址\串口地址
	Timeout           uint                     `json:"timeout,omitempty"`                                                   // 请求超时, 毫秒
	ReconnectInterval uint                     `json:"reconnectInterval,omitempty"`                                         // 重连间隔, 毫秒
	DeviceConfig      map[string]*DeviceConfig `json:"deviceConfig,omitempty" binding:"omitempty,dive"`                     // 按从站号配置, "default" 兜底
}

type ModbusAddress struct {
	Location string               `json:"location" binding:"required"` // 地址路径
	Option   *ModbusAddressOption `json:"option,omitempty"`            // 地址其他参数
}

type ModbusAddressOption struct {
	Port     int    `json:"port,omitempty"`     // 端口号
	BaudRate int    `json:"baudRate,omitempty"` // 波特率
	DataBits int    `json:"dataBits,omitempty"` // 数据位
	Parity   string `json:"parity,omitempty"`   // 校验位
	StopBits string `json:"stopBits,omitempty"` // 停止位
}

type DeviceConfig struct {
	MaxRegisterLength int    `json:"maxRegisterLength" binding:"gte=0"` // 单次读取最大寄存器数
	IllegalRegisters  string `json:"illegalRegisters,omitempty"`        // 不可读寄存器, 例如 "3,10-15"
	EndianFormat      string `json:"endianFormat,omitempty"`            // 内存布局 ABCD CDAB BADC DCBA
}

// ModbusAgentStatus is what GET /agent answers.
type ModbusAgentStatus struct {
	*ModbusAgent
	Protocol string                     `json:"protocol"`
	Status   string                     `json:"status"`
	Batches  map[string][]*BatchRequest `json:"batches,omitempty"`
}

type BatchRequest struct {
	StartAddress int      `json:"startAddress"`
	Quantity     int      `json:"quantity"`
	Attributes   []string `json:"attributes"`
}
