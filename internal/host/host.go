// Package host implements HostLayer: UDP fragment reassembly back into a
// complete Frame, plus frame storage.
package host

import (
	"encoding/binary"
	"time"

	"github.com/holee9/panelsim/internal/crcutil"
	"github.com/holee9/panelsim/internal/protocol"
	"github.com/holee9/panelsim/internal/reassembly"
)

// DefaultTimeout is the reassembly deadline spec.md §4.5 defaults to.
const DefaultTimeout = 2 * time.Second

// DefaultMaxPayload mirrors mcu.DefaultMaxPayload: the per-packet pixel
// payload budget the fragmenter and reassembler must agree on out of
// band, since the wire header carries no stride field of its own.
const DefaultMaxPayload = 8192

// Config parameterizes one Layer.
type Config struct {
	Timeout time.Duration
	// MaxPayload must match the MCU-side fragmenter's configured stride;
	// it is how HostLayer derives each fragment's byte offset from its
	// packet_seq without needing an explicit stride field on the wire.
	MaxPayload int
	// ZeroFillOnTimeout opts into emitting a partial, zero-filled frame
	// when a slot's deadline elapses instead of the hard-drop default
	// spec.md §9 resolves timeout-policy ambiguity in favor of.
	ZeroFillOnTimeout bool
}

// Layer is HostLayer.
type Layer struct {
	cfg     Config
	tracker *reassembly.Tracker
	store   *Storage

	framesReceived uint64
	framesDropped  uint64
	crcErrors      uint64
	timeouts       uint64
}

// NewLayer constructs a Layer backed by an in-memory Storage.
func NewLayer() *Layer {
	return &Layer{tracker: reassembly.NewTracker(), store: NewStorage()}
}

// Initialize applies cfg, defaulting Timeout to DefaultTimeout.
func (l *Layer) Initialize(cfg Config) error {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxPayload <= 0 {
		cfg.MaxPayload = DefaultMaxPayload
	}
	l.cfg = cfg
	return nil
}

// Result reports the outcome of feeding one UDP packet into the layer.
type Result struct {
	Frame      *protocol.Frame
	Incomplete bool
}

// ReceivePacket validates and reassembles one UDP datagram, returning a
// non-nil Result only once the frame identified by the packet's header
// is complete. It does not check slot deadlines: expired slots, including
// zero-filled partial frames under ZeroFillOnTimeout, are handled only by
// Tick.
func (l *Layer) ReceivePacket(pkt protocol.UdpPacket, now time.Time) (*Result, error) {
	if len(pkt.Data) < protocol.FrameHeaderSize {
		return nil, protocol.NewError(protocol.KindInvalidPacket, "datagram shorter than FrameHeaderSize")
	}

	hdr, err := protocol.UnmarshalFrameHeader(pkt.Data)
	if err != nil {
		return nil, err
	}
	if hdr.Magic != protocol.FrameHeaderMagic {
		return nil, protocol.NewError(protocol.KindInvalidPacket, "bad magic")
	}
	if hdr.Version != protocol.FrameHeaderVersion {
		return nil, protocol.NewError(protocol.KindInvalidPacket, "unsupported version")
	}

	headerBytes := pkt.Data[:28]
	expectedCrc := crcutil.ComputeReflected(headerBytes)
	if hdr.CRC16 != expectedCrc {
		l.crcErrors++
		return nil, (&protocol.CrcMismatchError{Boundary: "header", Expected: expectedCrc, Got: hdr.CRC16}).AsError()
	}

	chunk := pkt.Data[protocol.FrameHeaderSize:]
	bufferSize := int(hdr.Rows) * int(hdr.Cols) * 2

	slot := l.tracker.GetOrCreate(hdr.FrameID, func() *reassembly.Slot {
		return reassembly.NewSlot(hdr.FrameID, int(hdr.TotalPackets), bufferSize, l.cfg.Timeout, now)
	})

	offset := int(hdr.PacketSeq) * l.cfg.MaxPayload

	complete, _ := slot.PutUnit(int(hdr.PacketSeq), offset, chunk)
	if !complete {
		return nil, nil
	}

	l.tracker.Delete(hdr.FrameID)
	return l.finishFrame(hdr, slot, false), nil
}

// Tick scans for expired in-flight slots. Per the hard-drop default,
// expired slots are simply discarded (counted in FramesDropped); when
// ZeroFillOnTimeout is set, each expired slot instead yields a partial
// Result with Incomplete=true.
func (l *Layer) Tick(now time.Time, headers map[uint32]*protocol.FrameHeader) []*Result {
	expired := l.tracker.Tick(now)
	var out []*Result
	for _, id := range expired {
		slot, ok := l.tracker.Get(id)
		if !ok {
			continue
		}
		l.tracker.Delete(id)
		l.timeouts++

		if !l.cfg.ZeroFillOnTimeout {
			l.framesDropped++
			continue
		}
		hdr := headers[id]
		if hdr == nil {
			l.framesDropped++
			continue
		}
		out = append(out, l.finishFrame(hdr, slot, true))
	}
	return out
}

func (l *Layer) finishFrame(hdr *protocol.FrameHeader, slot *reassembly.Slot, incomplete bool) *Result {
	pixelBytes := slot.Snapshot()
	pixels := make([]uint16, int(hdr.Rows)*int(hdr.Cols))
	for i := range pixels {
		if i*2+2 > len(pixelBytes) {
			break
		}
		pixels[i] = binary.LittleEndian.Uint16(pixelBytes[i*2 : i*2+2])
	}
	frame, _ := protocol.NewFrame(hdr.FrameID, uint32(hdr.Cols), uint32(hdr.Rows), pixels)

	l.store.Put(frame)
	l.framesReceived++
	return &Result{Frame: frame, Incomplete: incomplete || !slot.Complete()}
}

// Storage exposes the layer's underlying frame store for readers.
func (l *Layer) Storage() *Storage { return l.store }

// Reset drops all in-flight slots and counters. Stored frames persist —
// callers that want a clean store call Storage().Clear() separately.
func (l *Layer) Reset() {
	l.tracker.Reset()
	l.framesReceived = 0
	l.framesDropped = 0
	l.crcErrors = 0
	l.timeouts = 0
}

// GetStatus summarizes HostLayer's counters.
func (l *Layer) GetStatus() string {
	return protocol.Status("host", protocol.Counters{
		FramesReceived: l.framesReceived,
		FramesDropped:  l.framesDropped,
		CrcErrors:      l.crcErrors,
		Timeouts:       l.timeouts,
	})
}
