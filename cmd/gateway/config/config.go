package config

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"modbusgateway/pkg/attribute"
	"modbusgateway/pkg/gateway"
	"modbusgateway/pkg/protocol/modbus"
)

type Config struct {
	Protocol   *modbus.Protocol
	Store      *attribute.Store
	GatewayMgr *gateway.Manager
	MqttClient mqtt.Client
	CertFile   string
	KeyFile    string
}
