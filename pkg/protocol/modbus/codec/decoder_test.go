package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRtuDecoderSplitDelivery(t *testing.T) {
	adu := PackRtu(1, []byte{0x03, 0x04, 0x00, 0x2A, 0x00, 0x01})
	d := NewRtuDecoder()
	assert.Equal(t, NeedHeader, d.State())

	d.Feed(adu[:2])
	assert.Equal(t, NeedLength, d.State())
	frame, err := d.Next()
	require.NoError(t, err)
	assert.Nil(t, frame)

	d.Feed(adu[2:3])
	assert.Equal(t, NeedBody, d.State())

	d.Feed(adu[3:6])
	frame, err = d.Next()
	require.NoError(t, err)
	assert.Nil(t, frame)
	assert.Equal(t, NeedBody, d.State())

	d.Feed(adu[6:])
	assert.Equal(t, Complete, d.State())
	frame, err = d.Next()
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.Equal(t, uint8(1), frame.UnitId())
	assert.Equal(t, []byte{0x03, 0x04, 0x00, 0x2A, 0x00, 0x01}, frame.PDU())
	assert.Equal(t, 0, d.Buffered())
}

func TestRtuDecoderFixedLengths(t *testing.T) {
	cases := map[string]struct {
		pdu  []byte
		size int
	}{
		"exception":       {pdu: []byte{0x83, 0x02}, size: 5},
		"single coil":     {pdu: []byte{0x05, 0x00, 0x04, 0xFF, 0x00}, size: 8},
		"single register": {pdu: []byte{0x06, 0x00, 0x01, 0x12, 0x34}, size: 8},
		"multi registers": {pdu: []byte{0x10, 0x00, 0x01, 0x00, 0x02}, size: 8},
		"mask write":      {pdu: []byte{0x16, 0x00, 0x01, 0x00, 0xF2, 0x00, 0x25}, size: 10},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			adu := PackRtu(2, c.pdu)
			require.Len(t, adu, c.size)
			d := NewRtuDecoder()
			d.Feed(adu[:c.size-1])
			assert.Equal(t, NeedBody, d.State())
			d.Feed(adu[c.size-1:])
			frame, err := d.Next()
			require.NoError(t, err)
			require.NotNil(t, frame)
			assert.Equal(t, c.pdu, frame.PDU())
		})
	}
}

func TestRtuDecoderException(t *testing.T) {
	d := NewRtuDecoder()
	d.Feed(PackRtu(1, []byte{0x83, 0x02}))
	frame, err := d.Next()
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.True(t, frame.IsException())
	assert.Equal(t, uint8(0x02), frame.ExceptionCode())
}

func TestRtuDecoderBadCRCDropsCandidate(t *testing.T) {
	bad := PackRtu(1, []byte{0x03, 0x02, 0x00, 0x01})
	bad[len(bad)-1] ^= 0xFF
	good := PackRtu(1, []byte{0x03, 0x02, 0x00, 0x07})

	d := NewRtuDecoder()
	d.Feed(append(bad, good...))
	frame, err := d.Next()
	assert.ErrorIs(t, err, ErrFraming)
	assert.Nil(t, frame)

	frame, err = d.Next()
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.Equal(t, []byte{0x03, 0x02, 0x00, 0x07}, frame.PDU())
}

func TestRtuDecoderUnknownFunction(t *testing.T) {
	d := NewRtuDecoder()
	d.Feed([]byte{0x01, 0x2B, 0x00, 0x00})
	assert.Equal(t, NeedHeader, d.State())
	_, err := d.Next()
	assert.ErrorIs(t, err, ErrFraming)
	assert.Equal(t, 0, d.Buffered())
}

func TestTcpDecoder(t *testing.T) {
	first := PackTcp(1, 1, []byte{0x03, 0x04, 0x00, 0x2A, 0x00, 0x01})
	second := PackTcp(2, 1, []byte{0x83, 0x02})

	d := NewTcpDecoder()
	d.Feed(first[:5])
	assert.Equal(t, NeedHeader, d.State())
	d.Feed(first[5:6])
	assert.Equal(t, NeedLength, d.State())
	d.Feed(first[6:9])
	assert.Equal(t, NeedBody, d.State())
	frame, err := d.Next()
	require.NoError(t, err)
	assert.Nil(t, frame)

	d.Feed(append(first[9:], second...))
	frame, err = d.Next()
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.Equal(t, uint16(1), frame.(*TcpFrame).TransactionId)
	assert.Equal(t, []byte{0x03, 0x04, 0x00, 0x2A, 0x00, 0x01}, frame.PDU())

	frame, err = d.Next()
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.Equal(t, uint16(2), frame.(*TcpFrame).TransactionId)
	assert.True(t, frame.IsException())
	assert.Equal(t, 0, d.Buffered())
}

func TestTcpDecoderBadProtocol(t *testing.T) {
	d := NewTcpDecoder()
	d.Feed([]byte{0x00, 0x01, 0x00, 0x05, 0x00, 0x03, 0x01, 0x83, 0x02})
	_, err := d.Next()
	assert.ErrorIs(t, err, ErrFraming)
	assert.Equal(t, 0, d.Buffered())
}
