package mcu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holee9/panelsim/internal/protocol"
)

func TestRing_PushPop_FIFOOrder(t *testing.T) {
	r := NewRing(4)
	r.Push(Entry{FrameID: 1})
	r.Push(Entry{FrameID: 2})

	e, ok := r.Pop()
	assert.True(t, ok)
	assert.Equal(t, uint32(1), e.FrameID)

	e, ok = r.Pop()
	assert.True(t, ok)
	assert.Equal(t, uint32(2), e.FrameID)

	_, ok = r.Pop()
	assert.False(t, ok)
}

func TestRing_Push_OverflowDropsOldest(t *testing.T) {
	r := NewRing(2)
	r.Push(Entry{FrameID: 1})
	r.Push(Entry{FrameID: 2})
	evicted := r.Push(Entry{FrameID: 3})

	assert.True(t, evicted)
	assert.Equal(t, uint64(1), r.Dropped())
	assert.Equal(t, 2, r.Len())

	e, _ := r.Pop()
	assert.Equal(t, uint32(2), e.FrameID)
}

func TestRing_DefaultCapacity(t *testing.T) {
	r := NewRing(0)
	for i := 0; i < 4; i++ {
		r.Push(Entry{FrameID: uint32(i)})
	}
	assert.Equal(t, 4, r.Len())

	evicted := r.Push(Entry{FrameID: 4})
	assert.True(t, evicted)
	assert.Equal(t, uint64(1), r.Dropped())
}

func TestRing_Reset(t *testing.T) {
	r := NewRing(1)
	r.Push(Entry{FrameID: 1, Packets: []protocol.UdpPacket{{SourcePort: 1}}})
	r.Push(Entry{FrameID: 2})
	require.Equal(t, uint64(1), r.Dropped())

	r.Reset()
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, uint64(0), r.Dropped())
}
