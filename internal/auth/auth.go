// Package auth implements command authentication: HMAC-SHA256 over a
// command's canonical byte encoding, verified in constant time. spec.md
// §9 specifically bans "any naive byte-wise loop that returns early" —
// this uses crypto/hmac's Equal, which is built on
// crypto/subtle.ConstantTimeCompare, never a hand-rolled comparison.
package auth

import "crypto/hmac"
import "crypto/sha256"

// Result is the verifier's accept/reject outcome.
type Result int

const (
	Rejected Result = iota
	Accepted
)

func (r Result) String() string {
	if r == Accepted {
		return "Accepted"
	}
	return "Rejected"
}

// signatureSize is the expected HMAC-SHA256 tag length.
const signatureSize = sha256.Size

// Verifier validates HMAC-SHA256 signatures over a shared key.
type Verifier struct{}

// NewVerifier returns a ready-to-use Verifier. There is no per-call state;
// the type exists to mirror the Simulator-style component shape used by
// the rest of the pipeline and to give Verify a stable receiver for
// future extension (e.g. key rotation).
func NewVerifier() *Verifier { return &Verifier{} }

// Verify checks that signature is the correct HMAC-SHA256 tag over
// message under key. Any signature whose length is not 32 bytes, or a
// nil/empty signature, is Rejected without comparison. The comparison
// itself is constant-time: it never exits early on the first differing
// byte.
func (v *Verifier) Verify(message, signature, key []byte) Result {
	if len(signature) != signatureSize {
		return Rejected
	}
	if len(key) == 0 {
		return Rejected
	}

	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	expected := mac.Sum(nil)

	if hmac.Equal(expected, signature) {
		return Accepted
	}
	return Rejected
}

// Sign computes the HMAC-SHA256 tag for message under key. It exists so
// tests (and the AuthVerifier's canonical test-vector suite) can produce
// valid signatures without duplicating the MAC construction.
func Sign(message, key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return mac.Sum(nil)
}
