package batch

import (
	"sort"

	"k8s.io/klog/v2"

	modbus "modbusgateway/pkg/protocol/modbus/runtime"
	"modbusgateway/pkg/runtime"
)

type member struct {
	ref     runtime.AttributeRef
	address int
	count   int
}

// CreateBatchRequests merges the links of one memory area into as few contiguous reads as
// possible. A link joins the open batch only when no illegal register lies between the batch
// end and the link address and the grown batch stays within maxRegisterLength, a value <= 0
// means no limit.
func CreateBatchRequests(links map[runtime.AttributeRef]*modbus.AttributeLink, illegal modbus.RegisterRanges, maxRegisterLength int) []*modbus.BatchReadRequest {
	members := make([]member, 0, len(links))
	for ref, link := range links {
		if link == nil || !link.HasReadConfig() {
			continue
		}
		members = append(members, member{ref: ref, address: *link.ReadAddress, count: link.ReadRegisterCount()})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].address != members[j].address {
			return members[i].address < members[j].address
		}
		return members[i].ref.String() < members[j].ref.String()
	})

	var batches []*modbus.BatchReadRequest
	var current *modbus.BatchReadRequest
	for _, m := range members {
		if current != nil {
			end := current.End()
			newEnd := end
			if m.address+m.count > newEnd {
				newEnd = m.address + m.count
			}
			newQuantity := newEnd - current.StartAddress
			gapIllegal := illegal.Overlaps(end, m.address)
			if !gapIllegal && (maxRegisterLength <= 0 || newQuantity <= maxRegisterLength) {
				current.Quantity = newQuantity
				current.AddMember(m.ref, m.address-current.StartAddress)
				continue
			}
			if gapIllegal {
				klog.V(4).InfoS("Split batch on illegal register", "batchStart", current.StartAddress, "address", m.address)
			} else {
				klog.V(4).InfoS("Split batch on max register length", "batchStart", current.StartAddress, "quantity", newQuantity, "maxRegisterLength", maxRegisterLength)
			}
		}
		current = &modbus.BatchReadRequest{StartAddress: m.address, Quantity: m.count}
		current.AddMember(m.ref, 0)
		batches = append(batches, current)
	}
	return batches
}
