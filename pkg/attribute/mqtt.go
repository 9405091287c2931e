package attribute

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"k8s.io/klog/v2"

	"modbusgateway/pkg/runtime"
)

const (
	mqttTimeout     = 3 * time.Second
	mqttQos         = 1
	timestampLayout = "2006-01-02T15:04:05.000Z"
)

var _ Publisher = (*MqttPublisher)(nil)

// MqttPublisher publishes each value to data/{agentId}/v1/{assetId}.
type MqttPublisher struct {
	client  mqtt.Client
	agentId string
}

func NewMqttPublisher(client mqtt.Client, agentId string) *MqttPublisher {
	return &MqttPublisher{client: client, agentId: agentId}
}

func Topic(agentId, assetId string) string {
	return fmt.Sprintf("data/%s/v1/%s", agentId, assetId)
}

func NewPublishData(value runtime.AttributeValue) runtime.PublishData {
	return runtime.PublishData{Payload: runtime.Payload{Data: []runtime.TimeSeriesData{{
		Timestamp: value.Timestamp.UTC().Format(timestampLayout),
		Values: []runtime.PointData{{
			DataPointId: value.Attribute,
			Value:       value.Value,
		}},
	}}}}
}

func (p *MqttPublisher) Publish(value runtime.AttributeValue) {
	if !p.client.IsConnected() {
		klog.V(4).InfoS("Skip publish, MQTT not connected", "attribute", value.AttributeRef)
		return
	}
	topic := Topic(p.agentId, value.AssetId)
	publishData := NewPublishData(value)
	marshal, err := json.Marshal(publishData)
	if err != nil {
		klog.V(2).InfoS("Failed to marshal publish data", "attribute", value.AttributeRef, "err", err)
		return
	}
	token := p.client.Publish(topic, mqttQos, false, marshal)
	if token.WaitTimeout(mqttTimeout) && token.Error() == nil {
		klog.V(5).InfoS("Succeed to publish MQTT", "topic", topic, "data", publishData)
	} else {
		klog.V(1).InfoS("Failed to publish MQTT", "topic", topic, "err", token.Error())
	}
}

type MqttOptions struct {
	Broker   string `json:"broker"`
	ClientId string `json:"clientId"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// NewMqttClient connects in the background and keeps reconnecting, publishing is skipped while
// disconnected.
func NewMqttClient(o *MqttOptions) mqtt.Client {
	opts := mqtt.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientId).
		SetUsername(o.Username).
		SetPassword(o.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(mqttTimeout).
		SetOnConnectHandler(func(mqtt.Client) {
			klog.V(1).InfoS("Connected MQTT broker", "broker", o.Broker)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			klog.V(1).InfoS("Lost MQTT connection", "broker", o.Broker, "err", err)
		})
	client := mqtt.NewClient(opts)
	client.Connect()
	return client
}
