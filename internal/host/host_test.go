package host

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/holee9/panelsim/internal/crcutil"
	"github.com/holee9/panelsim/internal/protocol"
)

func buildPacket(frameID uint32, seq, total uint16, rows, cols uint16, maxPayload int, chunk []byte, last bool) protocol.UdpPacket {
	var flags uint8
	if last {
		flags = protocol.FlagLastPacket
	}
	hdr := &protocol.FrameHeader{
		Magic:        protocol.FrameHeaderMagic,
		Version:      protocol.FrameHeaderVersion,
		FrameID:      frameID,
		PacketSeq:    seq,
		TotalPackets: total,
		Rows:         rows,
		Cols:         cols,
		BitDepth:     16,
		Flags:        flags,
	}
	buf := hdr.Marshal()
	hdr.CRC16 = crcutil.ComputeReflected(buf[:28])
	binary.LittleEndian.PutUint16(buf[28:30], hdr.CRC16)

	data := make([]byte, len(buf)+len(chunk))
	copy(data, buf)
	copy(data[len(buf):], chunk)
	return protocol.UdpPacket{Data: data}
}

func pixelBytes(pixels []uint16) []byte {
	buf := make([]byte, len(pixels)*2)
	for i, px := range pixels {
		binary.LittleEndian.PutUint16(buf[i*2:i*2+2], px)
	}
	return buf
}

func TestLayer_ReceivePacket_SinglePacketFrame(t *testing.T) {
	l := NewLayer()
	require.NoError(t, l.Initialize(Config{MaxPayload: 8192}))

	pixels := []uint16{1, 2, 3, 4}
	pkt := buildPacket(1, 0, 1, 2, 2, 8192, pixelBytes(pixels), true)

	result, err := l.ReceivePacket(pkt, time.Now())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, pixels, result.Frame.Pixels)
	assert.False(t, result.Incomplete)
}

func TestLayer_ReceivePacket_MultiPacketFrame(t *testing.T) {
	l := NewLayer()
	require.NoError(t, l.Initialize(Config{MaxPayload: 4}))

	pixels := []uint16{1, 2, 3, 4}
	full := pixelBytes(pixels)

	pkt0 := buildPacket(1, 0, 2, 1, 4, 4, full[0:4], false)
	pkt1 := buildPacket(1, 1, 2, 1, 4, 4, full[4:8], true)

	res, err := l.ReceivePacket(pkt0, time.Now())
	require.NoError(t, err)
	assert.Nil(t, res)

	res, err = l.ReceivePacket(pkt1, time.Now())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, pixels, res.Frame.Pixels)
}

// For every permutation of the produced UDP fragments, reassembly at
// HostLayer yields the same frame (spec.md §8 testable property 4).
func TestLayer_ReceivePacket_OrderIndependent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		const maxPayload = 4
		packetCount := rapid.IntRange(1, 8).Draw(rt, "packet_count")
		cols := uint16(packetCount * (maxPayload / 2))
		rows := uint16(1)

		pixels := make([]uint16, int(cols)*int(rows))
		for i := range pixels {
			pixels[i] = uint16(i + 1)
		}
		full := pixelBytes(pixels)

		packets := make([]protocol.UdpPacket, packetCount)
		for i := 0; i < packetCount; i++ {
			start := i * maxPayload
			end := start + maxPayload
			packets[i] = buildPacket(7, uint16(i), uint16(packetCount), rows, cols, maxPayload, full[start:end], i == packetCount-1)
		}

		order := make([]int, packetCount)
		for i := range order {
			order[i] = i
		}
		for i := packetCount - 1; i > 0; i-- {
			j := rapid.IntRange(0, i).Draw(rt, "swap")
			order[i], order[j] = order[j], order[i]
		}

		l := NewLayer()
		require.NoError(rt, l.Initialize(Config{MaxPayload: maxPayload}))

		var final *Result
		for _, idx := range order {
			res, err := l.ReceivePacket(packets[idx], time.Now())
			require.NoError(rt, err)
			if res != nil {
				final = res
			}
		}

		require.NotNil(rt, final)
		assert.False(rt, final.Incomplete)
		assert.Equal(rt, pixels, final.Frame.Pixels)
	})
}

func TestLayer_ReceivePacket_RejectsBadMagic(t *testing.T) {
	l := NewLayer()
	require.NoError(t, l.Initialize(Config{}))

	pkt := buildPacket(1, 0, 1, 1, 1, 8192, []byte{1, 2}, true)
	pkt.Data[0] ^= 0xFF

	_, err := l.ReceivePacket(pkt, time.Now())
	require.Error(t, err)
}

func TestLayer_ReceivePacket_RejectsBadHeaderCrc(t *testing.T) {
	l := NewLayer()
	require.NoError(t, l.Initialize(Config{}))

	pkt := buildPacket(1, 0, 1, 1, 1, 8192, []byte{1, 2}, true)
	pkt.Data[12] ^= 0xFF // corrupt packet_seq, crc now stale

	_, err := l.ReceivePacket(pkt, time.Now())
	require.Error(t, err)
}

func TestLayer_Tick_HardDropOnTimeout(t *testing.T) {
	l := NewLayer()
	require.NoError(t, l.Initialize(Config{Timeout: time.Millisecond, MaxPayload: 4}))

	pkt := buildPacket(1, 0, 2, 1, 4, 4, pixelBytes([]uint16{1, 2})[:4], false)
	now := time.Now()
	_, err := l.ReceivePacket(pkt, now)
	require.NoError(t, err)

	results := l.Tick(now.Add(time.Second), nil)
	assert.Empty(t, results)
	assert.Contains(t, l.GetStatus(), "timeouts=1")
}

func TestTiffWriter_WriteFrame_FixedEntryCount(t *testing.T) {
	frame, err := protocol.NewFrame(1, 2, 2, []uint16{1, 2, 3, 4})
	require.NoError(t, err)

	var buf writeBuffer
	require.NoError(t, (TiffWriter{}).WriteFrame(&buf, frame))

	entryCount := binary.LittleEndian.Uint16(buf.data[8:10])
	assert.Equal(t, uint16(ifdEntryCount), entryCount)
	assert.Equal(t, byte('I'), buf.data[0])
}

func TestRawWriter_WriteFrame_ExactByteCount(t *testing.T) {
	frame, err := protocol.NewFrame(1, 2, 2, []uint16{1, 2, 3, 4})
	require.NoError(t, err)

	var buf writeBuffer
	require.NoError(t, (RawWriter{}).WriteFrame(&buf, frame))

	assert.Len(t, buf.data, 8)
}

type writeBuffer struct {
	data []byte
}

func (w *writeBuffer) Write(p []byte) (int, error) {
	w.data = append(w.data, p...)
	return len(p), nil
}
