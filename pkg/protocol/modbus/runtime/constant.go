package runtime

import (
	"errors"
	"net"
	"os"
)

var ErrBadConn = errors.New("modbus bad connection")
var ErrTimeout = errors.New("modbus request timeout")
var ErrClientsClosed = errors.New("modbus clients closed")
var ErrMessageTransaction = errors.New("modbus message transaction not match")
var ErrMessageSlave = errors.New("modbus message unit id not match")
var ErrUnsupportedWriteArea = errors.New("unsupported write memory area")

// IsTimeout reports whether err is a request timeout, including deadline errors of the underlying conn.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
