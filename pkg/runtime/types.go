package runtime

import (
	"context"
	"time"
)

type LabeledCloser struct {
	Label  string
	Closer func(context.Context) error
}

// AttributeRef 资产属性引用
type AttributeRef struct {
	AssetId   string `json:"assetId"`
	Attribute string `json:"attribute"`
}

func (r AttributeRef) String() string {
	return r.AssetId + ":" + r.Attribute
}

type AttributeValue struct {
	AttributeRef
	Value     interface{} `json:"value"`
	Timestamp time.Time   `json:"timestamp"`
}

// AttributeStore holds the last known value of every linked attribute.
type AttributeStore interface {
	UpdateLinkedAttribute(ref AttributeRef, value interface{})
	GetLinkedAttribute(ref AttributeRef) (interface{}, bool)
	GetLinkedAttributes() map[AttributeRef]interface{}
}

type CancelFunc func()

type Scheduler interface {
	// ScheduleWithFixedDelay runs task immediately, then again delay after each run completes.
	ScheduleWithFixedDelay(task func(), delay time.Duration) CancelFunc
	Execute(task func())
}

type PublishData struct {
	Payload Payload `json:"payload"`
}

type Payload struct {
	Data []TimeSeriesData `json:"data"`
}

type TimeSeriesData struct {
	Timestamp string      `json:"timestamp"`
	Values    []PointData `json:"values"`
}

type PointData struct {
	DataPointId string      `json:"dataPointId"`
	Value       interface{} `json:"value"`
}

// LinkableAttributeStore tracks which attributes are linked, values of others are dropped.
type LinkableAttributeStore interface {
	AttributeStore
	Link(ref AttributeRef)
	Unlink(ref AttributeRef)
}
