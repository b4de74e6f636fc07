package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFrame_RejectsMismatchedPixelLength(t *testing.T) {
	_, err := NewFrame(0, 4, 4, make([]uint16, 10))
	require.Error(t, err)
}

func TestFrame_Line(t *testing.T) {
	frame, err := NewFrame(0, 3, 2, []uint16{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, []uint16{4, 5, 6}, frame.Line(1))
}

func TestFrame_Equal_IgnoresFrameNumber(t *testing.T) {
	a, _ := NewFrame(1, 2, 2, []uint16{1, 2, 3, 4})
	b, _ := NewFrame(99, 2, 2, []uint16{1, 2, 3, 4})
	assert.True(t, a.Equal(b))
}

func TestFrame_Equal_DetectsPixelDifference(t *testing.T) {
	a, _ := NewFrame(1, 2, 2, []uint16{1, 2, 3, 4})
	b, _ := NewFrame(1, 2, 2, []uint16{1, 2, 3, 5})
	assert.False(t, a.Equal(b))
}

func TestFrameHeader_MarshalUnmarshalRoundTrip(t *testing.T) {
	hdr := &FrameHeader{
		Magic: FrameHeaderMagic, Version: FrameHeaderVersion,
		FrameID: 42, PacketSeq: 1, TotalPackets: 3,
		TimestampNs: 123456789, Rows: 480, Cols: 640,
		CRC16: 0xBEEF, BitDepth: 16, Flags: FlagLastPacket,
	}
	buf := hdr.Marshal()
	assert.Len(t, buf, FrameHeaderSize)

	got, err := UnmarshalFrameHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, hdr, got)
	assert.True(t, got.LastPacket())
}

func TestCsi2DataType_IsShortPacket(t *testing.T) {
	assert.True(t, DataTypeFrameStart.IsShortPacket())
	assert.True(t, DataTypeLineEnd.IsShortPacket())
	assert.False(t, DataTypeRaw16.IsShortPacket())
}

func TestCsi2Packet_Validate_RejectsBadVirtualChannel(t *testing.T) {
	p := &Csi2Packet{VirtualChannel: 7, DataType: DataTypeFrameStart}
	err := p.Validate(4)
	require.Error(t, err)
}

func TestCsi2Packet_Validate_ChecksLongPacketLength(t *testing.T) {
	p := &Csi2Packet{VirtualChannel: 0, DataType: DataTypeRaw16, Payload: make([]byte, 5)}
	err := p.Validate(4)
	require.Error(t, err)

	p.Payload = make([]byte, 4*2+2)
	assert.NoError(t, p.Validate(4))
}
