package batch

import (
	"fmt"
	"strconv"
	"strings"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	modbus "modbusgateway/pkg/protocol/modbus/runtime"
)

// ParseIllegalRegisters parses "3,10-15". Invalid parts are skipped and reported in the
// returned error, the valid ranges are returned either way.
func ParseIllegalRegisters(s string) (modbus.RegisterRanges, error) {
	var ranges modbus.RegisterRanges
	var errs []error
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if from, to, ok := strings.Cut(part, "-"); ok {
			start, err1 := strconv.Atoi(strings.TrimSpace(from))
			end, err2 := strconv.Atoi(strings.TrimSpace(to))
			if err1 != nil || err2 != nil {
				errs = append(errs, fmt.Errorf("invalid illegal register range %q", part))
				continue
			}
			if start > end {
				start, end = end, start
			}
			ranges = append(ranges, modbus.RegisterRange{Start: start, End: end})
			continue
		}
		register, err := strconv.Atoi(part)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid illegal register %q", part))
			continue
		}
		ranges = append(ranges, modbus.RegisterRange{Start: register, End: register})
	}
	return ranges, utilerrors.NewAggregate(errs)
}

func IsIllegalRegister(register int, ranges modbus.RegisterRanges) bool {
	return ranges.Contains(register)
}
