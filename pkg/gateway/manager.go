package gateway

import (
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"k8s.io/klog/v2"

	"modbusgateway/pkg/utils/uuidutil"
)

const (
	cpuSampleInterval = 200 * time.Millisecond
	mib               = 1 << 20
)

type Option func(*Manager)

func WithID(id string) Option {
	return func(m *Manager) {
		if len(id) > 0 {
			m.gatewayMeta.ID = id
		}
	}
}

func WithDiskPath(path string) Option {
	return func(m *Manager) {
		m.diskPath = path
	}
}

type Manager struct {
	gatewayMeta *GatewayMeta
	diskPath    string
}

func NewGatewayManager(name string, opts ...Option) *Manager {
	hostname, err := os.Hostname()
	if err != nil {
		klog.V(2).InfoS("Failed to get hostname", "err", err)
	}
	m := &Manager{
		gatewayMeta: &GatewayMeta{
			ID:        uuidutil.UUID(),
			Name:      name,
			Hostname:  hostname,
			StartTime: time.Now(),
		},
		diskPath: "/",
	}
	for _, opt := range opts {
		opt(m)
	}
	klog.V(1).InfoS("Gateway created", "gatewayId", m.gatewayMeta.ID, "name", name)
	return m
}

func (m *Manager) GetGatewayMeta() *GatewayMeta {
	return m.gatewayMeta
}

func (m *Manager) getGatewayCpu() (*CpuUsageInfo, error) {
	cores, err := cpu.Counts(true)
	if err != nil {
		return nil, err
	}
	percent, err := cpu.Percent(cpuSampleInterval, false)
	if err != nil {
		return nil, err
	}
	info := &CpuUsageInfo{Cores: cores}
	if len(percent) > 0 {
		info.UsedPercent = fmt.Sprintf("%.2f%%", percent[0])
	}
	return info, nil
}

func (m *Manager) getGatewayMem() (*MemUsageInfo, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return nil, err
	}
	return &MemUsageInfo{
		Total:       fmt.Sprintf("%dMiB", v.Total/mib),
		Used:        fmt.Sprintf("%dMiB", v.Used/mib),
		UsedPercent: fmt.Sprintf("%.2f%%", v.UsedPercent),
	}, nil
}

func (m *Manager) getGatewayDisk() (*DiskUsageInfo, error) {
	u, err := disk.Usage(m.diskPath)
	if err != nil {
		return nil, err
	}
	return &DiskUsageInfo{
		Path:        u.Path,
		Total:       fmt.Sprintf("%dMiB", u.Total/mib),
		Used:        fmt.Sprintf("%dMiB", u.Used/mib),
		UsedPercent: fmt.Sprintf("%.2f%%", u.UsedPercent),
	}, nil
}
