package protocol

import "fmt"

// Counters is the common counter set spec.md §7 requires every layer's
// GetStatus() to summarize.
type Counters struct {
	FramesReceived uint64
	FramesDropped  uint64
	CrcErrors      uint64
	Timeouts       uint64
}

// Status formats name and c into the "name: frames_received=.. ..."
// summary string every layer's GetStatus() returns.
func Status(name string, c Counters) string {
	return fmt.Sprintf("%s: frames_received=%d frames_dropped=%d crc_errors=%d timeouts=%d",
		name, c.FramesReceived, c.FramesDropped, c.CrcErrors, c.Timeouts)
}
