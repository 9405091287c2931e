package runtime

import (
	"container/list"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.bug.st/serial"
	"go.uber.org/atomic"
	"k8s.io/klog/v2"
)

// Clients is a pool of messengers, a caller owns a messenger exclusively between
// GetMessenger and ReleaseMessenger.
type Clients struct {
	NewMessenger func() (Messenger, error)
	Messengers   *list.List
	Max          int
	Idle         int
	Mux          *sync.Mutex
	ConnRequests map[uint64]chan Messenger
	NextRequest  uint64
	closed       bool
}

func NewClients(newMessenger func() (Messenger, error), max int) (*Clients, error) {
	if max <= 0 {
		max = 1
	}
	cs := list.New()
	for i := 0; i < max; i++ {
		m, err := newMessenger()
		if err != nil {
			for e := cs.Front(); e != nil; e = e.Next() {
				e.Value.(Messenger).Close()
			}
			return nil, err
		}
		cs.PushBack(m)
	}
	return &Clients{
		NewMessenger: newMessenger,
		Messengers:   cs,
		Max:          max,
		Idle:         max,
		Mux:          &sync.Mutex{},
		NextRequest:  1,
		ConnRequests: make(map[uint64]chan Messenger),
	}, nil
}

func (t *Clients) GetMessenger(ctx context.Context) (Messenger, error) {
	select {
	default:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	t.Mux.Lock()
	if t.closed {
		t.Mux.Unlock()
		return nil, ErrClientsClosed
	}
	if t.Idle > 0 {
		t.Idle = t.Idle - 1
		front := t.Messengers.Front()
		messenger := front.Value.(Messenger)
		t.Messengers.Remove(front)
		t.Mux.Unlock()
		return messenger, nil
	}

	mCh := make(chan Messenger, 1)
	key := t.nextRequestKey()
	t.ConnRequests[key] = mCh
	t.Mux.Unlock()

	select {
	case <-ctx.Done():
		t.Mux.Lock()
		delete(t.ConnRequests, key)
		t.Mux.Unlock()
		select {
		default:
		case m, ok := <-mCh:
			if ok {
				t.ReleaseMessenger(m)
			}
		}
		return nil, ctx.Err()
	case m, ok := <-mCh:
		if !ok {
			return nil, ErrClientsClosed
		}
		return m, nil
	}
}

func (t *Clients) ReleaseMessenger(messenger Messenger) {
	t.Mux.Lock()
	defer t.Mux.Unlock()
	if t.closed {
		messenger.Close()
		return
	}
	if t.Idle == 0 && len(t.ConnRequests) > 0 {
		var mCh chan Messenger
		var key uint64
		for key, mCh = range t.ConnRequests {
			break
		}
		delete(t.ConnRequests, key)
		mCh <- messenger
	} else {
		t.Messengers.PushBack(messenger)
		t.Idle = t.Idle + 1
	}
}

// Reconnect replaces every broken messenger with a fresh one.
func (t *Clients) Reconnect(ctx context.Context) error {
	for i := 0; i < t.Max; i++ {
		m, err := t.GetMessenger(ctx)
		if err != nil {
			return err
		}
		if !m.Available() {
			nm, err := t.NewMessenger()
			if err != nil {
				t.ReleaseMessenger(m)
				return err
			}
			m.Close()
			m.Reset(nm)
		}
		t.ReleaseMessenger(m)
	}
	return nil
}

func (t *Clients) Destroy(ctx context.Context) {
	t.Mux.Lock()
	defer t.Mux.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for t.Messengers.Len() > 0 {
		e := t.Messengers.Front()
		m := e.Value.(Messenger)
		m.Close()
		t.Messengers.Remove(e)
	}
	t.Idle = 0

	for key, messengersRequest := range t.ConnRequests {
		close(messengersRequest)
		delete(t.ConnRequests, key)
	}
}

func (t *Clients) nextRequestKey() uint64 {
	next := t.NextRequest
	t.NextRequest++
	return next
}

var _ Messenger = (*TcpClient)(nil)
var _ Messenger = (*SerialClient)(nil)

type Messenger interface {
	Write(request []byte) error
	// Read returns whatever bytes arrived before deadline, ErrTimeout if none did.
	Read(buf []byte, deadline time.Time) (int, error)
	Close()
	Available() bool
	Reset(messenger Messenger)
}

type TcpClient struct {
	Tunnel net.Conn
	broken *atomic.Bool
}

func NewTcpClient(tunnel net.Conn) *TcpClient {
	return &TcpClient{Tunnel: tunnel, broken: atomic.NewBool(false)}
}

func (tc *TcpClient) Reset(messenger Messenger) {
	ntc := (messenger).(*TcpClient)
	tc.Tunnel = ntc.Tunnel
	tc.broken.Store(false)
}

func (tc *TcpClient) Available() bool {
	return tc.Tunnel != nil && !tc.broken.Load()
}

func (tc *TcpClient) Close() {
	tc.broken.Store(true)
	if tc.Tunnel != nil {
		_ = tc.Tunnel.Close()
	}
}

func (tc *TcpClient) Write(request []byte) error {
	if _, err := tc.Tunnel.Write(request); err != nil {
		klog.V(2).InfoS("Failed to write message", "error", err)
		tc.broken.Store(true)
		return pkgerrors.Wrap(ErrBadConn, err.Error())
	}
	klog.V(5).InfoS("Succeed to write message", "bytes", request)
	return nil
}

func (tc *TcpClient) Read(buf []byte, deadline time.Time) (int, error) {
	// 设置读超时
	if err := tc.Tunnel.SetReadDeadline(deadline); err != nil {
		tc.broken.Store(true)
		return 0, pkgerrors.Wrap(ErrBadConn, err.Error())
	}
	n, err := tc.Tunnel.Read(buf)
	if err != nil {
		if IsTimeout(err) {
			return n, ErrTimeout
		}
		tc.broken.Store(true)
		if errors.Is(err, io.EOF) {
			return n, pkgerrors.Wrap(ErrBadConn, "connection closed by peer")
		}
		return n, pkgerrors.Wrap(ErrBadConn, err.Error())
	}
	klog.V(5).InfoS("Succeed to read message", "bytes", buf[:n])
	return n, nil
}

type SerialClient struct {
	Port   serial.Port
	broken *atomic.Bool
}

func NewSerialClient(port serial.Port) *SerialClient {
	return &SerialClient{Port: port, broken: atomic.NewBool(false)}
}

func (sc *SerialClient) Reset(messenger Messenger) {
	nsc := (messenger).(*SerialClient)
	sc.Port = nsc.Port
	sc.broken.Store(false)
}

func (sc *SerialClient) Available() bool {
	return sc.Port != nil && !sc.broken.Load()
}

func (sc *SerialClient) Close() {
	sc.broken.Store(true)
	if sc.Port != nil {
		_ = sc.Port.Close()
	}
}

func (sc *SerialClient) Write(request []byte) error {
	// 丢弃上一次超时残留的字节
	if err := sc.Port.ResetInputBuffer(); err != nil {
		klog.V(3).InfoS("Failed to reset serial input buffer", "error", err)
	}
	rql, err := sc.Port.Write(request)
	if err != nil {
		klog.V(2).InfoS("Failed to write byte to serial port", "error", err)
		sc.broken.Store(true)
		return pkgerrors.Wrap(ErrBadConn, err.Error())
	}
	klog.V(5).InfoS("Succeed to write byte to serial port", "bytes", request, "length", rql)
	return nil
}

func (sc *SerialClient) Read(buf []byte, deadline time.Time) (int, error) {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return 0, ErrTimeout
	}
	if err := sc.Port.SetReadTimeout(remaining); err != nil {
		klog.V(2).InfoS("Failed to set serial port read timeout", "error", err)
		return 0, pkgerrors.Wrap(ErrBadConn, err.Error())
	}
	n, err := sc.Port.Read(buf)
	if err != nil {
		klog.V(2).InfoS("Failed to read byte from serial port", "error", err)
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return n, ErrTimeout
		}
		sc.broken.Store(true)
		return n, pkgerrors.Wrap(ErrBadConn, err.Error())
	}
	// serial reports a read timeout as zero bytes without error
	if n == 0 {
		return 0, ErrTimeout
	}
	klog.V(5).InfoS("Succeed to read byte from serial port", "bytes", buf[:n])
	return n, nil
}
