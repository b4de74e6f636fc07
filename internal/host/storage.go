package host

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/holee9/panelsim/internal/protocol"
)

// Storage holds completed frames in memory, keyed by frame number, and
// exposes them to Writer implementations for persistence.
type Storage struct {
	mu     sync.Mutex
	frames map[uint32]*protocol.Frame
	order  []uint32
}

// NewStorage returns an empty Storage.
func NewStorage() *Storage {
	return &Storage{frames: make(map[uint32]*protocol.Frame)}
}

// Put stores frame, keyed by its FrameNumber, overwriting any prior frame
// with the same number.
func (s *Storage) Put(frame *protocol.Frame) {
	if frame == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.frames[frame.FrameNumber]; !exists {
		s.order = append(s.order, frame.FrameNumber)
	}
	s.frames[frame.FrameNumber] = frame
}

// Get returns the stored frame for frameNumber, if any.
func (s *Storage) Get(frameNumber uint32) (*protocol.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.frames[frameNumber]
	return f, ok
}

// Len reports the number of distinct frames stored.
func (s *Storage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// Clear empties the store.
func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = make(map[uint32]*protocol.Frame)
	s.order = nil
}

// Writer persists a single Frame to an io.Writer in some on-disk format.
type Writer interface {
	WriteFrame(w io.Writer, frame *protocol.Frame) error
}

// RawWriter writes a frame as rows*cols*2 bytes of little-endian pixel
// data with no header at all, per spec.md §6.5's raw output mode.
type RawWriter struct{}

func (RawWriter) WriteFrame(w io.Writer, frame *protocol.Frame) error {
	if frame == nil {
		return protocol.NewError(protocol.KindInvalidFrame, "nil frame")
	}
	buf := make([]byte, len(frame.Pixels)*2)
	for i, px := range frame.Pixels {
		binary.LittleEndian.PutUint16(buf[i*2:i*2+2], px)
	}
	if _, err := w.Write(buf); err != nil {
		return protocol.WrapError(protocol.KindIoError, "raw frame write", err)
	}
	return nil
}

// TiffWriter writes a frame as a single-strip, 16-bit grayscale TIFF:
// exactly 12 IFD entries, little-endian byte order, matching spec.md
// §6.5's fixed layout.
type TiffWriter struct{}

const (
	tiffTagImageWidth      = 0x0100
	tiffTagImageLength     = 0x0101
	tiffTagBitsPerSample   = 0x0102
	tiffTagCompression     = 0x0103
	tiffTagPhotometric     = 0x0106
	tiffTagStripOffsets    = 0x0111
	tiffTagSamplesPerPixel = 0x0115
	tiffTagRowsPerStrip    = 0x0116
	tiffTagStripByteCounts = 0x0117
	tiffTagXResolution     = 0x011A
	tiffTagYResolution     = 0x011B
	tiffTagResolutionUnit  = 0x0128

	tiffTypeShort = 3
	tiffTypeLong  = 4
	tiffTypeRational = 5

	ifdEntryCount = 12
)

func (TiffWriter) WriteFrame(w io.Writer, frame *protocol.Frame) error {
	if frame == nil {
		return protocol.NewError(protocol.KindInvalidFrame, "nil frame")
	}

	const headerSize = 8
	const ifdHeaderSize = 2 + ifdEntryCount*12 + 4
	const resolutionValueSize = 8 // one rational: num,den uint32 each

	ifdOffset := uint32(headerSize)
	resolutionOffset := ifdOffset + ifdHeaderSize
	pixelOffset := resolutionOffset + resolutionValueSize*2 // x and y resolution

	buf := make([]byte, pixelOffset+uint32(len(frame.Pixels))*2)

	// TIFF header: byte order, magic 42, offset to first IFD.
	buf[0], buf[1] = 'I', 'I'
	binary.LittleEndian.PutUint16(buf[2:4], 42)
	binary.LittleEndian.PutUint32(buf[4:8], ifdOffset)

	entries := []struct {
		tag, typ uint16
		count    uint32
		value    uint32
	}{
		{tiffTagImageWidth, tiffTypeLong, 1, frame.Width},
		{tiffTagImageLength, tiffTypeLong, 1, frame.Height},
		{tiffTagBitsPerSample, tiffTypeShort, 1, 16},
		{tiffTagCompression, tiffTypeShort, 1, 1}, // uncompressed
		{tiffTagPhotometric, tiffTypeShort, 1, 1}, // BlackIsZero
		{tiffTagStripOffsets, tiffTypeLong, 1, pixelOffset},
		{tiffTagSamplesPerPixel, tiffTypeShort, 1, 1},
		{tiffTagRowsPerStrip, tiffTypeLong, 1, frame.Height},
		{tiffTagStripByteCounts, tiffTypeLong, 1, uint32(len(frame.Pixels)) * 2},
		{tiffTagXResolution, tiffTypeRational, 1, resolutionOffset},
		{tiffTagYResolution, tiffTypeRational, 1, resolutionOffset + 8},
		{tiffTagResolutionUnit, tiffTypeShort, 1, 2}, // inches
	}
	if len(entries) != ifdEntryCount {
		return fmt.Errorf("tiff writer: expected %d IFD entries, built %d", ifdEntryCount, len(entries))
	}

	pos := ifdOffset
	binary.LittleEndian.PutUint16(buf[pos:pos+2], uint16(ifdEntryCount))
	pos += 2
	for _, e := range entries {
		binary.LittleEndian.PutUint16(buf[pos:pos+2], e.tag)
		binary.LittleEndian.PutUint16(buf[pos+2:pos+4], e.typ)
		binary.LittleEndian.PutUint32(buf[pos+4:pos+8], e.count)
		binary.LittleEndian.PutUint32(buf[pos+8:pos+12], e.value)
		pos += 12
	}
	binary.LittleEndian.PutUint32(buf[pos:pos+4], 0) // no next IFD
	pos += 4

	// Resolution rationals: 72/1 for both x and y.
	binary.LittleEndian.PutUint32(buf[resolutionOffset:resolutionOffset+4], 72)
	binary.LittleEndian.PutUint32(buf[resolutionOffset+4:resolutionOffset+8], 1)
	binary.LittleEndian.PutUint32(buf[resolutionOffset+8:resolutionOffset+12], 72)
	binary.LittleEndian.PutUint32(buf[resolutionOffset+12:resolutionOffset+16], 1)

	for i, px := range frame.Pixels {
		o := pixelOffset + uint32(i)*2
		binary.LittleEndian.PutUint16(buf[o:o+2], px)
	}

	if _, err := w.Write(buf); err != nil {
		return protocol.WrapError(protocol.KindIoError, "tiff frame write", err)
	}
	return nil
}
