package codec

import (
	"errors"
	"fmt"

	"modbusgateway/pkg/utils/binutil"
)

const (
	MBAPHeaderLength = 7
	// 1(unit) + MaxPDULength
	maxMBAPLength = 254
)

var ErrMBAPHeader = errors.New("invalid mbap header")

type MBAPHeader struct {
	TransactionId uint16
	ProtocolId    uint16
	Length        uint16
	UnitId        uint8
}

// PackTcp transactionId + protocolId(0) + length + unitId + pdu
func PackTcp(transactionId uint16, unitId uint8, pdu []byte) []byte {
	adu := make([]byte, MBAPHeaderLength, MBAPHeaderLength+len(pdu))
	binutil.WriteUint16(adu[0:], transactionId)
	binutil.WriteUint16(adu[4:], uint16(len(pdu)+1))
	adu[6] = unitId
	return append(adu, pdu...)
}

func DecodeMBAPHeader(b []byte) (MBAPHeader, error) {
	if len(b) < MBAPHeaderLength {
		return MBAPHeader{}, fmt.Errorf("%w: need %d bytes, got %d", ErrMBAPHeader, MBAPHeaderLength, len(b))
	}
	h := MBAPHeader{
		TransactionId: binutil.ParseUint16(b[0:]),
		ProtocolId:    binutil.ParseUint16(b[2:]),
		Length:        binutil.ParseUint16(b[4:]),
		UnitId:        b[6],
	}
	if h.ProtocolId != 0 {
		return h, fmt.Errorf("%w: protocol id %d", ErrMBAPHeader, h.ProtocolId)
	}
	if h.Length < 2 || h.Length > maxMBAPLength {
		return h, fmt.Errorf("%w: length %d", ErrMBAPHeader, h.Length)
	}
	return h, nil
}

// UnpackTcp decodes one complete adu.
func UnpackTcp(adu []byte) (*TcpFrame, error) {
	h, err := DecodeMBAPHeader(adu)
	if err != nil {
		return nil, err
	}
	if len(adu) != MBAPHeaderLength+int(h.Length)-1 {
		return nil, fmt.Errorf("%w: length %d, adu %d bytes", ErrMBAPHeader, h.Length, len(adu))
	}
	return NewTcpFrame(h.TransactionId, h.UnitId, binutil.Dup(adu[MBAPHeaderLength:])), nil
}
