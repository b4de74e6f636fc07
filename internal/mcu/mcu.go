// Package mcu implements McuLayer: CSI-2 packet-stream reception with
// line reassembly, followed by UDP fragmentation of the reassembled
// frame.
package mcu

import (
	"encoding/binary"
	"time"

	"github.com/holee9/panelsim/internal/crcutil"
	"github.com/holee9/panelsim/internal/ecc"
	"github.com/holee9/panelsim/internal/fpga"
	"github.com/holee9/panelsim/internal/protocol"
	"github.com/holee9/panelsim/internal/reassembly"
)

// State is the per-frame CSI-2/UDP state machine spec.md §4.4 defines.
type State int

const (
	StateIdle State = iota
	StateReceiving
	StateComplete
	StateTransmitting
	StateError
)

// DefaultMaxPayload is the fragmenter's default payload budget: 8192
// bytes after the 32-byte header, an 8224-byte total datagram.
const DefaultMaxPayload = 8192

// DefaultRingCapacity is the default number of in-flight frames the MCU
// ring buffer holds before evicting the oldest.
const DefaultRingCapacity = 4

// DefaultCrcStormThreshold is the consecutive-CRC-error count that trips
// the layer into StateError.
const DefaultCrcStormThreshold = 64

// Config parameterizes one Layer.
type Config struct {
	Width, Height     uint32
	BitDepth          uint8
	MaxPayload        int
	RingCapacity      int
	CrcStormThreshold int
	SourcePort        uint16
	DestinationPort   uint16
	// Clock supplies the monotonic-ish nanosecond timestamp written into
	// each FrameHeader. Defaults to time.Now().UnixNano if nil.
	Clock func() uint64
}

// Layer is McuLayer.
type Layer struct {
	cfg   Config
	state State

	current      *reassembly.Slot
	currentFrame uint32
	haveCurrent  bool

	ring *Ring

	crcErrors     uint64
	unexpected    uint64
	framesOut     uint64
	csiErrorStrk  int
}

// NewLayer constructs a Layer in its zero state.
func NewLayer() *Layer { return &Layer{state: StateIdle} }

// Initialize validates and stores cfg, applying documented defaults.
func (l *Layer) Initialize(cfg Config) error {
	if cfg.Width == 0 || cfg.Height == 0 {
		return protocol.NewError(protocol.KindInvalidConfig, "width and height must be non-zero")
	}
	if cfg.MaxPayload <= 0 {
		cfg.MaxPayload = DefaultMaxPayload
	}
	if cfg.RingCapacity <= 0 {
		cfg.RingCapacity = DefaultRingCapacity
	}
	if cfg.CrcStormThreshold <= 0 {
		cfg.CrcStormThreshold = DefaultCrcStormThreshold
	}
	if cfg.Clock == nil {
		cfg.Clock = func() uint64 { return uint64(time.Now().UnixNano()) }
	}
	l.cfg = cfg
	l.ring = NewRing(cfg.RingCapacity)
	l.state = StateIdle
	return nil
}

// ReceiveCsi2 feeds one CSI-2 packet into the layer's line reassembly
// state machine. It returns a non-nil *ReceivedFrame only when a
// FrameEnd packet closes out the currently open frame.
type ReceivedFrame struct {
	Frame      *protocol.Frame
	Incomplete bool
}

func (l *Layer) ReceiveCsi2(pkt fpga.EncodedPacket) (*ReceivedFrame, error) {
	hdr, valid := checkHeaderEcc(pkt.Header)
	if !valid {
		return nil, protocol.NewError(protocol.KindInvalidPacket, "uncorrectable ECC error")
	}
	// A single-bit error, if any, is corrected in hdr; continue with it.
	pkt.Header = hdr

	switch pkt.Header.DataType {
	case protocol.DataTypeFrameStart:
		if len(pkt.Payload) < 2 {
			return nil, protocol.NewError(protocol.KindInvalidPacket, "short FrameStart payload")
		}
		frameNumber := uint32(binary.LittleEndian.Uint16(pkt.Payload))
		l.current = reassembly.NewSlot(frameNumber, int(l.cfg.Height), int(l.cfg.Height)*int(l.cfg.Width)*2, time.Hour, time.Now())
		l.currentFrame = frameNumber
		l.haveCurrent = true
		l.state = StateReceiving
		return nil, nil

	case protocol.DataTypeRaw16:
		if !l.haveCurrent {
			l.unexpected++
			return nil, protocol.NewError(protocol.KindUnexpectedPacket, "LineData outside FS/FE window")
		}
		return nil, l.receiveLine(pkt.Payload)

	case protocol.DataTypeFrameEnd:
		if !l.haveCurrent {
			l.unexpected++
			return nil, protocol.NewError(protocol.KindUnexpectedPacket, "FrameEnd outside FS/FE window")
		}
		frame := l.finishFrame()
		return frame, nil

	default:
		l.unexpected++
		return nil, protocol.NewError(protocol.KindUnexpectedPacket, "unexpected data type in CSI-2 stream")
	}
}

// receiveLine validates the per-line CRC and copies the line into the
// current slot's pixel buffer, tracking which line number this is by the
// slot's current receive progress is NOT usable (lines may arrive out of
// order) — the line number is carried by assigning sequential numbers as
// FpgaLayer emits them, so callers that reorder packets must track line
// number out-of-band. The reassembly slot indexes purely by line number
// recovered from packet order at encode time; see ReceiveCsi2Line for
// the out-of-order-capable entry point.
func (l *Layer) receiveLine(payload []byte) error {
	return l.receiveLineNumbered(int(l.nextExpectedLine()), payload)
}

// nextExpectedLine tracks the next sequential line index for the simple
// in-order ReceiveCsi2 path.
func (l *Layer) nextExpectedLine() int {
	return l.current.Bitmap.PopCount()
}

func (l *Layer) receiveLineNumbered(lineNumber int, payload []byte) error {
	width := int(l.cfg.Width)
	if len(payload) != width*2+2 {
		return protocol.NewError(protocol.KindInvalidPacket, "line payload length mismatch")
	}
	lineBytes := payload[:width*2]
	receivedCrc := binary.LittleEndian.Uint16(payload[width*2:])
	expectedCrc := crcutil.ComputeNonReflected(lineBytes)

	if receivedCrc != expectedCrc {
		l.crcErrors++
		l.csiErrorStrk++
		if l.csiErrorStrk >= l.cfg.CrcStormThreshold {
			l.state = StateError
		}
		return (&protocol.CrcMismatchError{Boundary: "line", Expected: expectedCrc, Got: receivedCrc}).AsError()
	}
	l.csiErrorStrk = 0

	offset := lineNumber * width * 2
	l.current.PutUnit(lineNumber, offset, lineBytes)
	return nil
}

// ReceiveCsi2Line is the out-of-order-capable entry point: callers pass
// the explicit line_number alongside the payload, matching spec.md
// §4.4's "packets MAY arrive out of order; duplicates MUST be idempotent"
// requirement. ReceiveCsi2 (FS/LineData/FE in strict order) uses the
// simpler sequential path; tests exercising reordering/duplication call
// this directly once a frame is open.
func (l *Layer) ReceiveCsi2Line(lineNumber int, payload []byte) error {
	if !l.haveCurrent {
		l.unexpected++
		return protocol.NewError(protocol.KindUnexpectedPacket, "LineData outside FS/FE window")
	}
	return l.receiveLineNumbered(lineNumber, payload)
}

// OpenFrame starts CSI-2 reception for frameNumber directly (used by
// tests driving ReceiveCsi2Line without going through ReceiveCsi2's
// FrameStart path).
func (l *Layer) OpenFrame(frameNumber uint32) {
	l.current = reassembly.NewSlot(frameNumber, int(l.cfg.Height), int(l.cfg.Height)*int(l.cfg.Width)*2, time.Hour, time.Now())
	l.currentFrame = frameNumber
	l.haveCurrent = true
	l.state = StateReceiving
}

// CloseFrame ends CSI-2 reception, emitting the reassembled Frame (with
// zero-filled missing lines and Incomplete=true if the bitmap isn't full).
func (l *Layer) CloseFrame() *ReceivedFrame {
	return l.finishFrame()
}

func (l *Layer) finishFrame() *ReceivedFrame {
	complete := l.current.Complete()
	pixelBytes := l.current.Snapshot()
	pixels := make([]uint16, l.cfg.Width*l.cfg.Height)
	for i := range pixels {
		pixels[i] = binary.LittleEndian.Uint16(pixelBytes[i*2 : i*2+2])
	}
	frame, _ := protocol.NewFrame(l.currentFrame, l.cfg.Width, l.cfg.Height, pixels)

	l.haveCurrent = false
	l.current = nil
	l.state = StateComplete
	l.framesOut++

	return &ReceivedFrame{Frame: frame, Incomplete: !complete}
}

// checkHeaderEcc returns h with any single-bit error corrected, and
// whether the header is trustworthy after correction.
func checkHeaderEcc(h fpga.Header) (fpga.Header, bool) {
	vc, dt, wc, _, valid := ecc.Check(h.VirtualChannel, uint8(h.DataType), h.WordCount, h.Ecc)
	h.VirtualChannel, h.DataType, h.WordCount = vc, protocol.Csi2DataType(dt), wc
	return h, valid
}

// Fragment splits frame's pixels into UDP packets with a 32-byte
// FrameHeader + reflected CRC, per spec.md §4.4 and §6.2. Packets are
// returned in packet_seq ascending order.
func (l *Layer) Fragment(frame *protocol.Frame) ([]protocol.UdpPacket, error) {
	if frame == nil {
		return nil, protocol.NewError(protocol.KindInvalidFrame, "nil frame")
	}

	total := len(frame.Pixels) * 2
	stream := make([]byte, total)
	for i, px := range frame.Pixels {
		binary.LittleEndian.PutUint16(stream[i*2:i*2+2], px)
	}

	maxPayload := l.cfg.MaxPayload
	n := (total + maxPayload - 1) / maxPayload
	if n == 0 {
		n = 1
	}

	packets := make([]protocol.UdpPacket, 0, n)
	for i := 0; i < n; i++ {
		start := i * maxPayload
		end := start + maxPayload
		if end > total {
			end = total
		}
		chunk := stream[start:end]

		var flags uint8
		if i == n-1 {
			flags |= protocol.FlagLastPacket
		}

		hdr := &protocol.FrameHeader{
			Magic:        protocol.FrameHeaderMagic,
			Version:      protocol.FrameHeaderVersion,
			FrameID:      frame.FrameNumber,
			PacketSeq:    uint16(i),
			TotalPackets: uint16(n),
			TimestampNs:  l.cfg.Clock(),
			Rows:         uint16(frame.Height),
			Cols:         uint16(frame.Width),
			BitDepth:     l.cfg.BitDepth,
			Flags:        flags,
		}
		buf := hdr.Marshal()
		hdr.CRC16 = crcutil.ComputeReflected(buf[:28])
		binary.LittleEndian.PutUint16(buf[28:30], hdr.CRC16)

		data := make([]byte, len(buf)+len(chunk))
		copy(data, buf)
		copy(data[len(buf):], chunk)

		packets = append(packets, protocol.UdpPacket{
			SourcePort:      l.cfg.SourcePort,
			DestinationPort: l.cfg.DestinationPort,
			Data:            data,
		})
	}

	evicted := l.ring.Push(Entry{FrameID: frame.FrameNumber, Packets: packets})
	_ = evicted
	l.state = StateTransmitting
	return packets, nil
}

// Drain pops the oldest ring entry, if any, transitioning back to Idle
// once drained.
func (l *Layer) Drain() (Entry, bool) {
	e, ok := l.ring.Pop()
	if ok && l.ring.Len() == 0 {
		l.state = StateIdle
	}
	return e, ok
}

// RingDropped reports how many in-flight frames were evicted by ring
// overflow (spec.md §4.4's BufferOverflow counter).
func (l *Layer) RingDropped() uint64 { return l.ring.Dropped() }

// Reset returns the layer to Idle and clears all slots and counters, per
// spec.md §5's Reset() contract.
func (l *Layer) Reset() {
	l.current = nil
	l.haveCurrent = false
	l.crcErrors = 0
	l.unexpected = 0
	l.framesOut = 0
	l.csiErrorStrk = 0
	if l.ring != nil {
		l.ring.Reset()
	}
	l.state = StateIdle
}

// GetStatus summarizes McuLayer's counters.
func (l *Layer) GetStatus() string {
	dropped := uint64(0)
	if l.ring != nil {
		dropped = l.ring.Dropped()
	}
	return protocol.Status("mcu", protocol.Counters{
		FramesReceived: l.framesOut,
		FramesDropped:  dropped,
		CrcErrors:      l.crcErrors,
	})
}

// State reports the layer's current state-machine value.
func (l *Layer) State() State { return l.state }
