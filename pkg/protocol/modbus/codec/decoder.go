package codec

import (
	"errors"
	"fmt"
)

type DecodeState int

const (
	NeedHeader DecodeState = iota
	NeedLength
	NeedBody
	Complete
)

var decodeStateToString = map[DecodeState]string{
	NeedHeader: "NeedHeader",
	NeedLength: "NeedLength",
	NeedBody:   "NeedBody",
	Complete:   "Complete",
}

func (s DecodeState) String() string {
	return decodeStateToString[s]
}

var ErrFraming = errors.New("modbus framing error")

// Decoder accumulates bytes as they arrive and cuts them into frames.
// A framing error drops the offending bytes, the following call to Next continues
// with whatever is left in the buffer.
type Decoder interface {
	Feed(p []byte)
	Next() (Frame, error)
	State() DecodeState
	Buffered() int
}

type RtuDecoder struct {
	buf []byte
}

func NewRtuDecoder() *RtuDecoder {
	return &RtuDecoder{}
}

// rtuFrameSize 根据功能码推断完整帧长度, 0 表示还需要更多字节
func rtuFrameSize(b []byte) (int, DecodeState, error) {
	if len(b) < 2 {
		return 0, NeedHeader, nil
	}
	fc := FunctionCode(b[1])
	switch {
	case fc.IsException():
		// unit + fc + code + crc
		return 5, NeedBody, nil
	case fc.IsRead():
		if len(b) < 3 {
			return 0, NeedLength, nil
		}
		// unit + fc + count + data + crc
		return 5 + int(b[2]), NeedBody, nil
	case fc == WriteSingleCoil, fc == WriteSingleRegister, fc == WriteMultipleCoils, fc == WriteMultipleRegisters:
		// unit + fc + address + value/quantity + crc
		return 8, NeedBody, nil
	case fc == MaskWriteRegister:
		return 10, NeedBody, nil
	default:
		return 0, NeedHeader, fmt.Errorf("%w: unsupported function %s", ErrFraming, fc)
	}
}

func (d *RtuDecoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

func (d *RtuDecoder) Buffered() int {
	return len(d.buf)
}

func (d *RtuDecoder) State() DecodeState {
	n, state, err := rtuFrameSize(d.buf)
	switch {
	case err != nil:
		return NeedHeader
	case n == 0:
		return state
	case len(d.buf) < n:
		return NeedBody
	default:
		return Complete
	}
}

func (d *RtuDecoder) Next() (Frame, error) {
	n, _, err := rtuFrameSize(d.buf)
	if err != nil {
		// the frame length is unknown, nothing in the buffer can be trusted
		d.buf = d.buf[:0]
		return nil, err
	}
	if n == 0 || len(d.buf) < n {
		return nil, nil
	}
	candidate := d.buf[:n]
	d.buf = append([]byte(nil), d.buf[n:]...)
	frame, err := UnpackRtu(candidate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFraming, err)
	}
	return frame, nil
}

type TcpDecoder struct {
	buf []byte
}

func NewTcpDecoder() *TcpDecoder {
	return &TcpDecoder{}
}

func (d *TcpDecoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

func (d *TcpDecoder) Buffered() int {
	return len(d.buf)
}

func (d *TcpDecoder) State() DecodeState {
	switch {
	case len(d.buf) < 6:
		return NeedHeader
	case len(d.buf) < MBAPHeaderLength:
		return NeedLength
	}
	h, err := DecodeMBAPHeader(d.buf)
	if err != nil {
		return NeedHeader
	}
	if len(d.buf) < MBAPHeaderLength+int(h.Length)-1 {
		return NeedBody
	}
	return Complete
}

func (d *TcpDecoder) Next() (Frame, error) {
	if len(d.buf) < MBAPHeaderLength {
		return nil, nil
	}
	h, err := DecodeMBAPHeader(d.buf)
	if err != nil {
		d.buf = d.buf[:0]
		return nil, fmt.Errorf("%w: %v", ErrFraming, err)
	}
	n := MBAPHeaderLength + int(h.Length) - 1
	if len(d.buf) < n {
		return nil, nil
	}
	frame, err := UnpackTcp(d.buf[:n])
	d.buf = append([]byte(nil), d.buf[n:]...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFraming, err)
	}
	return frame, nil
}
