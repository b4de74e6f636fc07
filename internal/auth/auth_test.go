package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerify_AcceptsValidSignature(t *testing.T) {
	key := []byte("shared-secret")
	message := []byte("SPI_WRITE 0x40 0x01")
	sig := Sign(message, key)

	v := NewVerifier()
	assert.Equal(t, Accepted, v.Verify(message, sig, key))
}

func TestVerify_RejectsWrongKey(t *testing.T) {
	message := []byte("SPI_WRITE 0x40 0x01")
	sig := Sign(message, []byte("correct-key"))

	v := NewVerifier()
	assert.Equal(t, Rejected, v.Verify(message, sig, []byte("wrong-key")))
}

func TestVerify_RejectsTamperedMessage(t *testing.T) {
	key := []byte("shared-secret")
	sig := Sign([]byte("original"), key)

	v := NewVerifier()
	assert.Equal(t, Rejected, v.Verify([]byte("tampered"), sig, key))
}

func TestVerify_RejectsShortSignature(t *testing.T) {
	v := NewVerifier()
	assert.Equal(t, Rejected, v.Verify([]byte("msg"), []byte{0x01, 0x02}, []byte("key")))
}

func TestVerify_RejectsEmptyKey(t *testing.T) {
	sig := Sign([]byte("msg"), []byte("some-key"))
	v := NewVerifier()
	assert.Equal(t, Rejected, v.Verify([]byte("msg"), sig, nil))
}

func TestVerify_RejectsFlippedSignatureBit(t *testing.T) {
	key := []byte("shared-secret")
	message := []byte("SPI_WRITE 0x40 0x01")
	sig := Sign(message, key)
	sig[0] ^= 0x01

	v := NewVerifier()
	assert.Equal(t, Rejected, v.Verify(message, sig, key))
}

func TestResult_String(t *testing.T) {
	assert.Equal(t, "Accepted", Accepted.String())
	assert.Equal(t, "Rejected", Rejected.String())
}
