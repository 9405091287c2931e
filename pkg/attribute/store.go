package attribute

import (
	"sort"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"modbusgateway/pkg/runtime"
)

var _ runtime.AttributeStore = (*Store)(nil)

// Publisher receives every value written to the store.
type Publisher interface {
	Publish(value runtime.AttributeValue)
}

const publishQueueSize = 1024

// Store keeps the last value of each linked attribute. Values for refs that are not
// linked are dropped. Publishers are called from a single goroutine in update order,
// updates never wait on them and are dropped when the queue is full.
type Store struct {
	mux        sync.RWMutex
	values     map[runtime.AttributeRef]*runtime.AttributeValue
	publishers []Publisher
	queue      chan runtime.AttributeValue
	closed     bool
	done       chan struct{}
}

func NewStore(publishers ...Publisher) *Store {
	s := &Store{
		values:     make(map[runtime.AttributeRef]*runtime.AttributeValue),
		publishers: publishers,
		done:       make(chan struct{}),
	}
	if len(publishers) == 0 {
		close(s.done)
		return s
	}
	s.queue = make(chan runtime.AttributeValue, publishQueueSize)
	go s.publishLoop()
	return s
}

func (s *Store) publishLoop() {
	defer close(s.done)
	for v := range s.queue {
		for _, p := range s.publishers {
			p.Publish(v)
		}
	}
}

// Close stops publishing once the queued values are handed to the publishers.
func (s *Store) Close() {
	s.mux.Lock()
	if !s.closed {
		s.closed = true
		if s.queue != nil {
			close(s.queue)
		}
	}
	s.mux.Unlock()
	<-s.done
}

func (s *Store) Link(ref runtime.AttributeRef) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if _, ok := s.values[ref]; !ok {
		s.values[ref] = &runtime.AttributeValue{AttributeRef: ref}
	}
}

func (s *Store) Unlink(ref runtime.AttributeRef) {
	s.mux.Lock()
	defer s.mux.Unlock()
	delete(s.values, ref)
}

func (s *Store) UpdateLinkedAttribute(ref runtime.AttributeRef, value interface{}) {
	s.mux.Lock()
	v, ok := s.values[ref]
	if !ok {
		s.mux.Unlock()
		klog.V(3).InfoS("Dropped value of unlinked attribute", "attribute", ref)
		return
	}
	v.Value = value
	v.Timestamp = time.Now()
	if s.queue != nil && !s.closed {
		select {
		case s.queue <- *v:
		default:
			klog.V(2).InfoS("Publish queue full, dropped value", "attribute", ref)
		}
	}
	s.mux.Unlock()

	klog.V(5).InfoS("Updated attribute", "attribute", ref, "value", value)
}

func (s *Store) GetLinkedAttribute(ref runtime.AttributeRef) (interface{}, bool) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	v, ok := s.values[ref]
	if !ok {
		return nil, false
	}
	return v.Value, true
}

func (s *Store) GetLinkedAttributes() map[runtime.AttributeRef]interface{} {
	s.mux.RLock()
	defer s.mux.RUnlock()
	out := make(map[runtime.AttributeRef]interface{}, len(s.values))
	for ref, v := range s.values {
		out[ref] = v.Value
	}
	return out
}

func (s *Store) Get(ref runtime.AttributeRef) (runtime.AttributeValue, bool) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	v, ok := s.values[ref]
	if !ok {
		return runtime.AttributeValue{}, false
	}
	return *v, true
}

// List sorted by asset, then attribute
func (s *Store) List() []runtime.AttributeValue {
	s.mux.RLock()
	out := make([]runtime.AttributeValue, 0, len(s.values))
	for _, v := range s.values {
		out = append(out, *v)
	}
	s.mux.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].AssetId != out[j].AssetId {
			return out[i].AssetId < out[j].AssetId
		}
		return out[i].Attribute < out[j].Attribute
	})
	return out
}
