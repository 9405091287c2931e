package codec

// Frame is a decoded modbus response, independent of the transport framing.
type Frame interface {
	UnitId() uint8
	PDU() []byte
	FunctionCode() FunctionCode
	IsException() bool
	ExceptionCode() uint8
}

type pduFrame struct {
	unitId uint8
	pdu    []byte
}

func (f *pduFrame) UnitId() uint8 { return f.unitId }
func (f *pduFrame) PDU() []byte   { return f.pdu }

func (f *pduFrame) FunctionCode() FunctionCode {
	if len(f.pdu) == 0 {
		return 0
	}
	return FunctionCode(f.pdu[0])
}

func (f *pduFrame) IsException() bool {
	return f.FunctionCode().IsException()
}

// ExceptionCode 0 when not an exception
func (f *pduFrame) ExceptionCode() uint8 {
	if !f.IsException() || len(f.pdu) < 2 {
		return 0
	}
	return f.pdu[1]
}

type TcpFrame struct {
	pduFrame
	TransactionId uint16
	ProtocolId    uint16
}

func NewTcpFrame(transactionId uint16, unitId uint8, pdu []byte) *TcpFrame {
	return &TcpFrame{pduFrame: pduFrame{unitId: unitId, pdu: pdu}, TransactionId: transactionId}
}

type RtuFrame struct {
	pduFrame
}

func NewRtuFrame(unitId uint8, pdu []byte) *RtuFrame {
	return &RtuFrame{pduFrame: pduFrame{unitId: unitId, pdu: pdu}}
}
