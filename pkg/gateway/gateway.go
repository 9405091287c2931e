package gateway

import "time"

// GatewayMeta identifies this gateway process.
type GatewayMeta struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Hostname  string    `json:"hostname,omitempty"`
	StartTime time.Time `json:"startTime"`
}

type ResponseModel struct {
	Cpus  interface{} `json:"cpus,omitempty"`
	Mem   interface{} `json:"mem,omitempty"`
	Disks interface{} `json:"disk,omitempty"`
}

type CpuUsageInfo struct {
	Cores       int    `json:"cores"`
	UsedPercent string `json:"usedPercent"`
}

type MemUsageInfo struct {
	Total       string `json:"total"`
	Used        string `json:"used"`
	UsedPercent string `json:"usedPercent"`
}

type DiskUsageInfo struct {
	Path        string `json:"path"`
	Total       string `json:"total"`
	Used        string `json:"used"`
	UsedPercent string `json:"usedPercent"`
}
