package ledger

import (
	"github.com/rvnrstnsyh/rhythm/x/digest"
)

// Entry is one tick of the recorded chain. Entries are immutable once
// appended; readers must not modify Mixin.
//
// Mixin is nil on a plain tick. A non-nil empty Mixin is a real mix-in of
// length zero and hashes differently from a plain tick, so the two survive
// every encoding in this package distinctly.
type Entry struct {
	Seq       uint64      `json:"seq"`
	Hash      digest.Hash `json:"hash"`
	Mixin     []byte      `json:"mixin"`
	Tick      bool        `json:"tick"`
	Slot      uint64      `json:"slot"`
	Epoch     uint64      `json:"epoch"`
	Timestamp uint64      `json:"timestamp_ms"` // milliseconds since chain genesis
}

// Clone returns a copy whose Mixin does not share memory with the original.
// Nil stays nil and empty stays empty non-nil.
func (e Entry) Clone() Entry {
	e.Mixin = CloneMixin(e.Mixin)
	return e
}

// CloneMixin copies mix-in bytes preserving the nil / empty distinction.
func CloneMixin(mixin []byte) []byte {
	if mixin == nil {
		return nil
	}
	out := make([]byte, len(mixin))
	copy(out, mixin)
	return out
}
