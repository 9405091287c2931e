package codec

import (
	"errors"
	"fmt"

	"modbusgateway/pkg/utils/binutil"
)

type FunctionCode uint8

const (
	ReadCoils              FunctionCode = 0x01
	ReadDiscreteInputs     FunctionCode = 0x02
	ReadHoldingRegisters   FunctionCode = 0x03
	ReadInputRegisters     FunctionCode = 0x04
	WriteSingleCoil        FunctionCode = 0x05
	WriteSingleRegister    FunctionCode = 0x06
	WriteMultipleCoils     FunctionCode = 0x0F
	WriteMultipleRegisters FunctionCode = 0x10
	MaskWriteRegister      FunctionCode = 0x16

	ExceptionFlag FunctionCode = 0x80
)

const (
	// MaxPDULength 253 = 256 - 1(unit) - 2(crc)
	MaxPDULength = 253
	// MaxWriteRegisters limited by the one byte byteCount
	MaxWriteRegisters = 123
	MaxReadRegisters  = 125
	MaxReadBits       = 2000
)

var (
	ErrIllegalFunction = errors.New("illegal function code")
	ErrIllegalQuantity = errors.New("illegal quantity")
)

func (fc FunctionCode) IsRead() bool {
	return fc >= ReadCoils && fc <= ReadInputRegisters
}

func (fc FunctionCode) IsException() bool {
	return fc&ExceptionFlag != 0
}

func (fc FunctionCode) String() string {
	return fmt.Sprintf("0x%02X", uint8(fc))
}

// BuildReadRequestPDU fc + address + quantity
func BuildReadRequestPDU(fc FunctionCode, address uint16, quantity uint16) ([]byte, error) {
	if !fc.IsRead() {
		return nil, fmt.Errorf("%w %s for read request", ErrIllegalFunction, fc)
	}
	if quantity == 0 {
		return nil, fmt.Errorf("%w %d", ErrIllegalQuantity, quantity)
	}
	pdu := make([]byte, 5)
	pdu[0] = byte(fc)
	binutil.WriteUint16(pdu[1:], address)
	binutil.WriteUint16(pdu[3:], quantity)
	return pdu, nil
}

func BuildWriteSingleCoilPDU(address uint16, on bool) []byte {
	pdu := make([]byte, 5)
	pdu[0] = byte(WriteSingleCoil)
	binutil.WriteUint16(pdu[1:], address)
	if on {
		binutil.WriteUint16(pdu[3:], 0xFF00)
	}
	return pdu
}

func BuildWriteSingleRegisterPDU(address uint16, value uint16) []byte {
	pdu := make([]byte, 5)
	pdu[0] = byte(WriteSingleRegister)
	binutil.WriteUint16(pdu[1:], address)
	binutil.WriteUint16(pdu[3:], value)
	return pdu
}

// BuildWriteMultipleRegistersPDU fc + address + quantity + byteCount + registers
func BuildWriteMultipleRegistersPDU(address uint16, registers []byte) ([]byte, error) {
	if len(registers) == 0 || len(registers)%2 != 0 || len(registers)/2 > MaxWriteRegisters {
		return nil, fmt.Errorf("%w: %d register bytes", ErrIllegalQuantity, len(registers))
	}
	pdu := make([]byte, 6, 6+len(registers))
	pdu[0] = byte(WriteMultipleRegisters)
	binutil.WriteUint16(pdu[1:], address)
	binutil.WriteUint16(pdu[3:], uint16(len(registers)/2))
	pdu[5] = byte(len(registers))
	return append(pdu, registers...), nil
}

// ExtractDataFromResponsePDU returns the data bytes of a read response, nil when the pdu
// is not a well-formed response to fc.
func ExtractDataFromResponsePDU(pdu []byte, fc FunctionCode) []byte {
	if !fc.IsRead() || len(pdu) < 2 || FunctionCode(pdu[0]) != fc {
		return nil
	}
	count := int(pdu[1])
	if len(pdu) != 2+count {
		return nil
	}
	return binutil.Dup(pdu[2:])
}
