package ecc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheck_NoError(t *testing.T) {
	vc, dt, wc := uint8(0), uint8(0x2E), uint16(4096)
	code := Generate(vc, dt, wc)

	gotVc, gotDt, gotWc, corrected, ok := Check(vc, dt, wc, code)
	assert.True(t, ok)
	assert.False(t, corrected)
	assert.Equal(t, vc, gotVc)
	assert.Equal(t, dt, gotDt)
	assert.Equal(t, wc, gotWc)
}

func TestCheck_CorrectsSingleBitEccError(t *testing.T) {
	vc, dt, wc := uint8(1), uint8(0x2A), uint16(128)
	code := Generate(vc, dt, wc)
	corruptedCode := code ^ 0x01

	gotVc, gotDt, gotWc, corrected, ok := Check(vc, dt, wc, corruptedCode)
	assert.True(t, ok)
	assert.True(t, corrected)
	assert.Equal(t, vc, gotVc)
	assert.Equal(t, dt, gotDt)
	assert.Equal(t, wc, gotWc)
}

func TestCheck_CorrectsSingleDataBitError(t *testing.T) {
	vc, dt, wc := uint8(2), uint8(0x2E), uint16(1000)
	code := Generate(vc, dt, wc)

	// Flip one bit of wc (a data bit, not an ECC bit) and recompute what a
	// receiver would see.
	corruptedWc := wc ^ 0x01

	gotVc, gotDt, gotWc, corrected, ok := Check(vc, dt, corruptedWc, code)
	assert.True(t, ok)
	assert.True(t, corrected)
	assert.Equal(t, vc, gotVc)
	assert.Equal(t, dt, gotDt)
	assert.Equal(t, wc, gotWc)
}

func TestGenerate_Deterministic(t *testing.T) {
	a := Generate(1, 0x2E, 512)
	b := Generate(1, 0x2E, 512)
	assert.Equal(t, a, b)
}
