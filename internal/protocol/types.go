// Package protocol holds the data model shared by every layer of the
// simulator: frames and lines, the CSI-2 packet and UDP wire types, the
// 32-byte frame header, and the tagged error values layers return.
package protocol

import "encoding/binary"

// Frame is one complete 2-D pixel array at a fixed resolution and bit
// depth. A Frame is never mutated after construction; layers that need to
// change pixels build a new Frame.
type Frame struct {
	FrameNumber uint32
	Width       uint32
	Height      uint32
	Pixels      []uint16 // row-major, length == Width*Height
}

// NewFrame validates and constructs a Frame. It returns KindInvalidFrame
// if the pixel slice length does not match Width*Height.
func NewFrame(frameNumber, width, height uint32, pixels []uint16) (*Frame, error) {
	if width == 0 || height == 0 {
		return nil, NewError(KindInvalidConfig, "width and height must be non-zero")
	}
	if uint32(len(pixels)) != width*height {
		return nil, NewError(KindInvalidFrame, "pixel length does not match width*height")
	}
	return &Frame{FrameNumber: frameNumber, Width: width, Height: height, Pixels: pixels}, nil
}

// Line returns the row-major slice of pixels for a single line.
func (f *Frame) Line(row uint32) []uint16 {
	start := row * f.Width
	return f.Pixels[start : start+f.Width]
}

// Equal reports pixel-for-pixel equality, ignoring FrameNumber — used by
// the PipelineBuilder's boundary checkpoints (spec.md §8 items 2-3).
func (f *Frame) Equal(other *Frame) bool {
	if f == nil || other == nil {
		return f == other
	}
	if f.Width != other.Width || f.Height != other.Height {
		return false
	}
	if len(f.Pixels) != len(other.Pixels) {
		return false
	}
	for i, p := range f.Pixels {
		if other.Pixels[i] != p {
			return false
		}
	}
	return true
}

// Line is one row of a Frame — the unit of CSI-2 long-packet payload.
type Line struct {
	FrameNumber uint32
	LineNumber  uint32
	Pixels      []uint16
}

// NewLine validates that line_number < height and pixels is non-empty.
func NewLine(frameNumber, lineNumber, height uint32, pixels []uint16) (*Line, error) {
	if lineNumber >= height {
		return nil, NewError(KindInvalidFrame, "line_number out of range")
	}
	if len(pixels) == 0 {
		return nil, NewError(KindInvalidFrame, "line pixels must be non-empty")
	}
	return &Line{FrameNumber: frameNumber, LineNumber: lineNumber, Pixels: pixels}, nil
}

// Csi2DataType is a closed enumeration of MIPI CSI-2 data-type codepoints.
// It is a distinct type, never a bare uint8, so call sites cannot
// accidentally substitute one tag for another (spec.md §9).
type Csi2DataType uint8

const (
	DataTypeFrameStart Csi2DataType = 0x00
	DataTypeFrameEnd   Csi2DataType = 0x01
	DataTypeLineStart  Csi2DataType = 0x02
	DataTypeLineEnd    Csi2DataType = 0x03
	DataTypeRaw8       Csi2DataType = 0x2A
	DataTypeRaw10      Csi2DataType = 0x2B
	DataTypeRaw12      Csi2DataType = 0x2C
	DataTypeRaw14      Csi2DataType = 0x2D
	// DataTypeRaw16 is the primary long-packet payload type. spec.md §9
	// notes the source disagreed between 0x2C and 0x2E for RAW16; this
	// follows the most recently updated protocol document and fixes 0x2E.
	DataTypeRaw16 Csi2DataType = 0x2E
)

// IsShortPacket reports whether dt is one of the four short-packet tags.
func (dt Csi2DataType) IsShortPacket() bool {
	switch dt {
	case DataTypeFrameStart, DataTypeFrameEnd, DataTypeLineStart, DataTypeLineEnd:
		return true
	default:
		return false
	}
}

// Csi2Packet is one packet in the in-memory CSI-2 stream FpgaLayer
// produces and McuLayer consumes.
type Csi2Packet struct {
	DataType       Csi2DataType
	VirtualChannel uint8 // 0..3
	Payload        []byte
}

// Validate checks the virtual-channel range and, for long packets, the
// fixed `width*2 + 2` payload length spec.md §3 requires.
func (p *Csi2Packet) Validate(width uint32) error {
	if p.VirtualChannel > 3 {
		return NewError(KindInvalidPacket, "virtual_channel out of range")
	}
	if !p.DataType.IsShortPacket() {
		want := int(width)*2 + 2
		if len(p.Payload) != want {
			return NewError(KindInvalidPacket, "long packet payload length mismatch")
		}
	}
	return nil
}

// UdpPacket is a simulated UDP datagram: ports plus an opaque data blob.
// For frame-streaming traffic, Data begins with a 32-byte FrameHeader and
// ends with a pixel-data chunk.
type UdpPacket struct {
	SourcePort      uint16
	DestinationPort uint16
	Data            []byte
}

// FrameHeaderSize is the wire size of FrameHeader in bytes (spec.md §6.2).
const FrameHeaderSize = 32

// FrameHeaderMagic is the fixed magic value at offset 0.
const FrameHeaderMagic = 0xD7E01234

// FrameHeaderVersion is the fixed version value at offset 4.
const FrameHeaderVersion = 0x01

// Flag bits within FrameHeader.Flags.
const (
	FlagLastPacket  = 0x01
	FlagErrorFrame  = 0x02
	FlagCalibration = 0x04
)

// FrameHeader is the 32-byte little-endian header prefixing every UDP
// payload chunk in the Mcu<->Host frame-streaming protocol.
type FrameHeader struct {
	Magic         uint32
	Version       uint8
	FrameID       uint32
	PacketSeq     uint16
	TotalPackets  uint16
	TimestampNs   uint64
	Rows          uint16
	Cols          uint16
	CRC16         uint16
	BitDepth      uint8
	Flags         uint8
}

// Marshal writes the header to a fresh 32-byte little-endian buffer. The
// crc16 field (bytes 28-29) is written as given — callers that need a
// valid header compute it themselves and set CRC16 before calling.
func (h *FrameHeader) Marshal() []byte {
	buf := make([]byte, FrameHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	// bytes 5-7 reserved, left zero
	binary.LittleEndian.PutUint32(buf[8:12], h.FrameID)
	binary.LittleEndian.PutUint16(buf[12:14], h.PacketSeq)
	binary.LittleEndian.PutUint16(buf[14:16], h.TotalPackets)
	binary.LittleEndian.PutUint64(buf[16:24], h.TimestampNs)
	binary.LittleEndian.PutUint16(buf[24:26], h.Rows)
	binary.LittleEndian.PutUint16(buf[26:28], h.Cols)
	binary.LittleEndian.PutUint16(buf[28:30], h.CRC16)
	buf[30] = h.BitDepth
	buf[31] = h.Flags
	return buf
}

// UnmarshalFrameHeader parses a 32-byte buffer into a FrameHeader. It does
// not validate magic/version/crc — callers check those fields themselves
// (HostLayer checks magic, then version, then crc) so the specific failure
// (bad magic vs. bad crc) can be reported distinctly.
func UnmarshalFrameHeader(buf []byte) (*FrameHeader, error) {
	if len(buf) < FrameHeaderSize {
		return nil, NewError(KindInvalidPacket, "buffer shorter than FrameHeaderSize")
	}
	h := &FrameHeader{
		Magic:        binary.LittleEndian.Uint32(buf[0:4]),
		Version:      buf[4],
		FrameID:      binary.LittleEndian.Uint32(buf[8:12]),
		PacketSeq:    binary.LittleEndian.Uint16(buf[12:14]),
		TotalPackets: binary.LittleEndian.Uint16(buf[14:16]),
		TimestampNs:  binary.LittleEndian.Uint64(buf[16:24]),
		Rows:         binary.LittleEndian.Uint16(buf[24:26]),
		Cols:         binary.LittleEndian.Uint16(buf[26:28]),
		CRC16:        binary.LittleEndian.Uint16(buf[28:30]),
		BitDepth:     buf[30],
		Flags:        buf[31],
	}
	return h, nil
}

// LastPacket reports whether Flags has bit 0 set.
func (h *FrameHeader) LastPacket() bool { return h.Flags&FlagLastPacket != 0 }

// SpiCommand is the control-plane command kind carried by SpiTransaction.
type SpiCommand uint8

const (
	SpiRead SpiCommand = iota
	SpiWrite
	SpiReset
)

// SpiTransaction is an opaque control-plane value used only by the
// AuthVerifier and control collaborators; it never participates in the
// frame data path.
type SpiTransaction struct {
	Command SpiCommand
	Data    []byte
}
