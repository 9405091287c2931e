package options

import (
	"k8s.io/apimachinery/pkg/util/validation/field"

	"modbusgateway/pkg/protocol/modbus"
)

func Validate(o *Options) []error {
	var errs []error
	if err := o.BaseOptions.ValidateAndApply(); err != nil {
		errs = append(errs, err)
	}
	if _, err := modbus.ConvertAgent(o.Agent); err != nil {
		errs = append(errs, err)
	}
	for i, l := range o.Links {
		if l == nil {
			errs = append(errs, field.Required(field.NewPath("links").Index(i), ""))
			continue
		}
		if _, _, linkErrs := modbus.ConvertAttributeLink(field.NewPath("links").Index(i), l); len(linkErrs) > 0 {
			errs = append(errs, linkErrs.ToAggregate())
		}
	}
	if o.Mqtt != nil && len(o.Mqtt.Broker) == 0 {
		errs = append(errs, field.Required(field.NewPath("mqtt", "broker"), ""))
	}
	if (len(o.CertFile) == 0) != (len(o.KeyFile) == 0) {
		errs = append(errs, field.Invalid(field.NewPath("keyFile"), o.KeyFile, "certFile and keyFile must be set together"))
	}
	return errs
}
