package constant

import "errors"

var (
	ErrProtocolModel    = errors.New("unsupported protocol model")
	ErrConnectDevice    = errors.New("unable to connect to device")
	ErrNotConnected     = errors.New("protocol is not connected")
	ErrProtocolStopped  = errors.New("protocol stopped")
	ErrAttributeUnknown = errors.New("attribute is not linked")
)
