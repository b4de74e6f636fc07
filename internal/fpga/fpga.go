// Package fpga implements FpgaLayer: encoding a Frame into an ordered
// CSI-2 packet stream (FrameStart, N LineData, FrameEnd).
package fpga

import (
	"encoding/binary"

	"github.com/holee9/panelsim/internal/crcutil"
	"github.com/holee9/panelsim/internal/ecc"
	"github.com/holee9/panelsim/internal/protocol"
)

// Layer is FpgaLayer.
type Layer struct {
	framesEncoded uint64
}

// NewLayer constructs a Layer.
func NewLayer() *Layer { return &Layer{} }

// Initialize is a no-op: FpgaLayer has no configuration of its own beyond
// what each Frame already carries.
func (l *Layer) Initialize() error { return nil }

// Header describes the MIPI short/long packet header this layer emits
// alongside each Csi2Packet, so McuLayer can reconstruct and verify the
// wire-level ECC independently of the in-memory Csi2Packet value.
type Header struct {
	VirtualChannel uint8
	DataType       protocol.Csi2DataType
	WordCount      uint16 // long packets: line bytes, excluding the CRC footer; FS/FE: frame counter
	Ecc            byte
}

// EncodedPacket pairs a Csi2Packet with the header ECC FpgaLayer computed
// for it, mirroring the MIPI wire format's [header][payload] shape
// (spec.md §6.1).
type EncodedPacket struct {
	Header  Header
	Payload []byte
}

func buildHeader(vc uint8, dt protocol.Csi2DataType, wc uint16) Header {
	h := Header{VirtualChannel: vc, DataType: dt, WordCount: wc}
	h.Ecc = ecc.Generate(vc, uint8(dt), wc)
	return h
}

// Process encodes frame into the ordered CSI-2 stream FS, rows
// ascending, FE. Total packet count is height+2 (spec.md §4.3).
func (l *Layer) Process(frame *protocol.Frame) ([]EncodedPacket, error) {
	if frame == nil {
		return nil, protocol.NewError(protocol.KindInvalidFrame, "nil frame")
	}
	if uint32(len(frame.Pixels)) != frame.Width*frame.Height {
		return nil, protocol.NewError(protocol.KindInvalidFrame, "pixel length does not match width*height")
	}

	out := make([]EncodedPacket, 0, frame.Height+2)

	frameCounter := make([]byte, 2)
	binary.LittleEndian.PutUint16(frameCounter, uint16(frame.FrameNumber))
	out = append(out, EncodedPacket{
		Header:  buildHeader(0, protocol.DataTypeFrameStart, uint16(frame.FrameNumber)),
		Payload: frameCounter,
	})

	for row := uint32(0); row < frame.Height; row++ {
		line := frame.Line(row)
		lineBytes := make([]byte, frame.Width*2)
		for i, px := range line {
			binary.LittleEndian.PutUint16(lineBytes[i*2:i*2+2], px)
		}
		crc := crcutil.ComputeNonReflected(lineBytes)

		payload := make([]byte, len(lineBytes)+2)
		copy(payload, lineBytes)
		binary.LittleEndian.PutUint16(payload[len(lineBytes):], crc)

		out = append(out, EncodedPacket{
			Header:  buildHeader(0, protocol.DataTypeRaw16, uint16(frame.Width*2)),
			Payload: payload,
		})
	}

	out = append(out, EncodedPacket{
		Header:  buildHeader(0, protocol.DataTypeFrameEnd, uint16(frame.FrameNumber)),
		Payload: frameCounter,
	})

	l.framesEncoded++
	return out, nil
}

// Reset clears the encode counter.
func (l *Layer) Reset() { l.framesEncoded = 0 }

// GetStatus summarizes FpgaLayer's counters.
func (l *Layer) GetStatus() string {
	return protocol.Status("fpga", protocol.Counters{FramesReceived: l.framesEncoded})
}
