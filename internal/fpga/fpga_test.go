package fpga

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holee9/panelsim/internal/crcutil"
	"github.com/holee9/panelsim/internal/protocol"
)

func TestLayer_Process_PacketCount(t *testing.T) {
	frame, err := protocol.NewFrame(1, 4, 3, make([]uint16, 12))
	require.NoError(t, err)

	l := NewLayer()
	packets, err := l.Process(frame)
	require.NoError(t, err)

	assert.Len(t, packets, int(frame.Height)+2)
	assert.Equal(t, protocol.DataTypeFrameStart, packets[0].Header.DataType)
	assert.Equal(t, protocol.DataTypeFrameEnd, packets[len(packets)-1].Header.DataType)
	for _, p := range packets[1 : len(packets)-1] {
		assert.Equal(t, protocol.DataTypeRaw16, p.Header.DataType)
	}
}

func TestLayer_Process_LinePayloadHasValidCrc(t *testing.T) {
	pixels := []uint16{10, 20, 30, 40, 50, 60}
	frame, err := protocol.NewFrame(1, 3, 2, pixels)
	require.NoError(t, err)

	l := NewLayer()
	packets, err := l.Process(frame)
	require.NoError(t, err)

	for _, p := range packets {
		if p.Header.DataType != protocol.DataTypeRaw16 {
			continue
		}
		lineBytes := p.Payload[:len(p.Payload)-2]
		assert.Equal(t, uint16(len(lineBytes)), p.Header.WordCount)
		assert.Equal(t, crcutil.ComputeNonReflected(lineBytes), binary.LittleEndian.Uint16(p.Payload[len(p.Payload)-2:]))
	}
}

func TestLayer_Process_RejectsMismatchedPixelCount(t *testing.T) {
	frame := &protocol.Frame{FrameNumber: 1, Width: 4, Height: 4, Pixels: make([]uint16, 4)}

	l := NewLayer()
	_, err := l.Process(frame)
	require.Error(t, err)
}

func TestLayer_Process_RejectsNilFrame(t *testing.T) {
	l := NewLayer()
	_, err := l.Process(nil)
	require.Error(t, err)
}

func TestLayer_GetStatus_CountsFrames(t *testing.T) {
	frame, err := protocol.NewFrame(1, 2, 2, make([]uint16, 4))
	require.NoError(t, err)

	l := NewLayer()
	_, err = l.Process(frame)
	require.NoError(t, err)

	assert.Contains(t, l.GetStatus(), "frames_received=1")
}
