package codec

import (
	"errors"
	"fmt"

	"modbusgateway/pkg/utils/binutil"
	"modbusgateway/pkg/utils/crcutil"
)

const rtuMinFrameLength = 4

var ErrCRC16 = errors.New("crc16 mismatch")

// PackRtu unitId + pdu + crc16(little-endian)
func PackRtu(unitId uint8, pdu []byte) []byte {
	adu := make([]byte, 1, len(pdu)+3)
	adu[0] = unitId
	adu = append(adu, pdu...)
	return crcutil.AppendCrc16(adu)
}

func IsValidCRC(frame []byte) bool {
	return crcutil.ValidCrc16(frame)
}

func UnpackRtu(adu []byte) (*RtuFrame, error) {
	if len(adu) < rtuMinFrameLength {
		return nil, fmt.Errorf("rtu frame too short: %d bytes", len(adu))
	}
	if !IsValidCRC(adu) {
		return nil, ErrCRC16
	}
	return NewRtuFrame(adu[0], binutil.Dup(adu[1:len(adu)-2])), nil
}
