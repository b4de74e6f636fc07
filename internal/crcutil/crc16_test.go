package crcutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeNonReflected_CheckValue(t *testing.T) {
	assert.Equal(t, uint16(0x29B1), ComputeNonReflected([]byte("123456789")))
}

func TestComputeReflected_CheckValue(t *testing.T) {
	assert.Equal(t, uint16(0x6F91), ComputeReflected([]byte("123456789")))
}

func TestComputeNonReflected_Empty(t *testing.T) {
	assert.Equal(t, uint16(0xFFFF), ComputeNonReflected(nil))
}

func TestComputeReflected_Empty(t *testing.T) {
	assert.Equal(t, uint16(0xFFFF), ComputeReflected(nil))
}

func TestNonReflected_IncrementalMatchesOneShot(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")

	ctx := NewNonReflected()
	ctx.Update(data[:10])
	ctx.Update(data[10:])

	assert.Equal(t, ComputeNonReflected(data), ctx.Final())
}

func TestReflected_IncrementalMatchesOneShot(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")

	ctx := NewReflected()
	ctx.Update(data[:10])
	ctx.Update(data[10:])

	assert.Equal(t, ComputeReflected(data), ctx.Final())
}

func TestNonReflectedAndReflected_DistinctForSameInput(t *testing.T) {
	data := []byte("distinguishable")
	assert.NotEqual(t, ComputeNonReflected(data), ComputeReflected(data))
}
