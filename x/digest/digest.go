// Package digest implements the hash-chain step function shared by the
// sequencer and the verifier. Every operation is pure: the same inputs always
// produce the same output, and there is no error path.
//
// Chain steps are domain-separated so that a tick without a mix-in can never
// collide with a tick carrying one, not even a zero-length one:
//
//	plain tick: H(0x00 || prev)
//	mix-in:     H(0x01 || prev || payload)
//
// A nil payload means "no mix-in"; an empty non-nil payload is a real mix-in
// of length zero and hashes through the second form.
package digest

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	sha256 "github.com/minio/sha256-simd"
	"lukechampine.com/blake3"
)

// HashSize is the width of every chain digest in bytes.
const HashSize = 32

// Domain-separation tags. The tag is the first byte hashed on every step.
const (
	tagTick  = 0x00
	tagMixin = 0x01
)

// Hash is a fixed-width chain digest. Immutable once produced.
type Hash [HashSize]byte

// Algorithm selects the hash function driving the chain. The sequencer and
// the verifier of one chain must agree on it.
type Algorithm uint8

const (
	// SHA256 is the default algorithm.
	SHA256 Algorithm = iota
	// BLAKE3 trades SHA-NI hardware support for a faster software path.
	BLAKE3
)

// String returns the canonical algorithm name.
func (a Algorithm) String() string {
	switch a {
	case BLAKE3:
		return "BLAKE3"
	default:
		return "SHA-256"
	}
}

// ParseAlgorithm maps a configured name onto an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", "SHA-256", "SHA256":
		return SHA256, nil
	case "BLAKE3":
		return BLAKE3, nil
	default:
		return SHA256, fmt.Errorf("unknown hash algorithm %q", name)
	}
}

// Seed derives a genesis hash from arbitrary seed bytes.
func (a Algorithm) Seed(seed []byte) Hash {
	return a.sum(seed)
}

// Step advances the chain by one hash. A nil mixin is a plain tick.
func (a Algorithm) Step(prev Hash, mixin []byte) Hash {
	if mixin == nil {
		var buf [1 + HashSize]byte
		buf[0] = tagTick
		copy(buf[1:], prev[:])
		return a.sum(buf[:])
	}

	var out Hash
	switch a {
	case BLAKE3:
		h := blake3.New(HashSize, nil)
		h.Write([]byte{tagMixin})
		h.Write(prev[:])
		h.Write(mixin)
		copy(out[:], h.Sum(nil))
	default:
		h := sha256.New()
		h.Write([]byte{tagMixin})
		h.Write(prev[:])
		h.Write(mixin)
		copy(out[:], h.Sum(nil))
	}
	return out
}

// Extend applies n plain steps. The loop reuses one stack buffer; this is the
// inner loop of every multi-hash tick and of verification replay.
func (a Algorithm) Extend(h Hash, n uint64) Hash {
	var buf [1 + HashSize]byte
	buf[0] = tagTick
	for i := uint64(0); i < n; i++ {
		copy(buf[1:], h[:])
		h = a.sum(buf[:])
	}
	return h
}

// StepExtend performs one tick's worth of hashing: a single Step folding in
// the mixin (or not), then iterations-1 plain steps. iterations < 1 is
// treated as 1 so a tick always advances the chain.
func (a Algorithm) StepExtend(prev Hash, mixin []byte, iterations uint64) Hash {
	h := a.Step(prev, mixin)
	if iterations > 1 {
		h = a.Extend(h, iterations-1)
	}
	return h
}

// VerifyStep recomputes one tick and compares against the recorded hash in
// constant time.
func (a Algorithm) VerifyStep(prev, next Hash, mixin []byte, iterations uint64) bool {
	return Equal(a.StepExtend(prev, mixin, iterations), next)
}

func (a Algorithm) sum(data []byte) Hash {
	if a == BLAKE3 {
		return blake3.Sum256(data)
	}
	return sha256.Sum256(data)
}

// Equal compares two hashes in constant time.
func Equal(a, b Hash) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// Hex returns the full lowercase hex rendering.
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first eight bytes in hex, for logs.
func (h Hash) Short() string {
	return hex.EncodeToString(h[:8])
}

// MarshalText renders the hash as hex for JSON and YAML surfaces.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

// UnmarshalText parses a hex rendering produced by MarshalText.
func (h *Hash) UnmarshalText(text []byte) error {
	raw, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("decode hash: %w", err)
	}
	if len(raw) != HashSize {
		return fmt.Errorf("decode hash: got %d bytes, want %d", len(raw), HashSize)
	}
	copy(h[:], raw)
	return nil
}

// DefaultSeed is the conventional genesis seed: 64 ASCII zero bytes.
var DefaultSeed = []byte(strings.Repeat("0", 64))
