package options

import (
	"context"
	"time"

	"github.com/spf13/pflag"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/validation/field"
	"k8s.io/klog/v2"

	"modbusgateway/cmd/gateway/config"
	"modbusgateway/pkg/attribute"
	"modbusgateway/pkg/gateway"
	baseoptions "modbusgateway/pkg/generic/options"
	"modbusgateway/pkg/protocol/modbus"
	"modbusgateway/pkg/protocol/modbus/model"
	"modbusgateway/pkg/utils/uuidutil"
	v1 "modbusgateway/pkg/v1"
)

type Options struct {
	Port     string                 `json:"port"`
	Wait     metav1.Duration        `json:"graceful-timeout"`
	CertFile string                 `json:"certFile,omitempty"`
	KeyFile  string                 `json:"keyFile,omitempty"`
	Agent    *v1.ModbusAgent        `json:"agent"`
	Links    []*v1.AttributeLink    `json:"links,omitempty"`
	Mqtt     *attribute.MqttOptions `json:"mqtt,omitempty"`
	baseoptions.BaseOptions
}

const (
	_defaultPort = "32200"
	_defaultWait = 15 * time.Second
)

func NewDefaultOptions() *Options {
	return &Options{
		Port: _defaultPort,
		Wait: metav1.Duration{Duration: _defaultWait},
		Agent: &v1.ModbusAgent{
			Name:              "modbus",
			Model:             model.ModelModbusTcp,
			Address:           &v1.ModbusAddress{Location: "127.0.0.1", Option: &v1.ModbusAddressOption{Port: model.DefaultTcpPort}},
			Timeout:           uint(modbus.DefaultTimeout.Milliseconds()),
			ReconnectInterval: uint(modbus.DefaultReconnectInterval.Milliseconds()),
		},
		BaseOptions: baseoptions.NewDefaultBaseOptions(),
	}
}

func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.Port, "port", "P", o.Port, "Port exposed")
	fs.DurationVar(&o.Wait.Duration, "graceful-timeout", o.Wait.Duration, "The duration for which the server gracefully wait for existing connections to finish - e.g. 15s or 1m")
	fs.StringVar(&o.CertFile, "tls-cert-file", o.CertFile, "File containing the x509 certificate for HTTPS")
	fs.StringVar(&o.KeyFile, "tls-private-key-file", o.KeyFile, "File containing the x509 private key matching --tls-cert-file")
}

// Config builds the store, the mqtt sink and the protocol, links the configured attributes and
// starts polling.
func (o *Options) Config(ctx context.Context) (*config.Config, error) {
	agent, err := modbus.ConvertAgent(o.Agent)
	if err != nil {
		return nil, err
	}

	c := &config.Config{
		GatewayMgr: gateway.NewGatewayManager(agent.Name),
		CertFile:   o.CertFile,
		KeyFile:    o.KeyFile,
	}
	var publishers []attribute.Publisher
	if o.Mqtt != nil && len(o.Mqtt.Broker) > 0 {
		if len(o.Mqtt.ClientId) == 0 {
			o.Mqtt.ClientId = "modbus-gateway-" + uuidutil.ShortUUID()
		}
		c.MqttClient = attribute.NewMqttClient(o.Mqtt)
		publishers = append(publishers, attribute.NewMqttPublisher(c.MqttClient, agent.Id))
	}
	c.Store = attribute.NewStore(publishers...)

	p, err := modbus.NewProtocol(agent, c.Store)
	if err != nil {
		return nil, err
	}
	c.Protocol = p
	p.Start(ctx)

	for i, l := range o.Links {
		ref, link, errs := modbus.ConvertAttributeLink(field.NewPath("links").Index(i), l)
		if len(errs) > 0 {
			klog.V(1).InfoS("Skipped invalid link", "attribute", ref, "err", errs.ToAggregate())
			continue
		}
		p.LinkAttribute(ref, link)
	}
	return c, nil
}
