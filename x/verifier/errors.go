package verifier

import (
	"fmt"
	"time"

	"github.com/rvnrstnsyh/rhythm/x/digest"
)

// StructuralError reports an entry that breaks the record's shape: sequence
// continuity, tick and mix-in consistency, or slot and epoch arithmetic.
// Structure is checked before any hashing.
type StructuralError struct {
	Seq    uint64
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("structural violation at seq %d: %s", e.Seq, e.Reason)
}

// MismatchError reports a hash chain break: the recorded hash is not what
// replaying the step produces.
type MismatchError struct {
	Seq  uint64
	Want digest.Hash // recorded
	Got  digest.Hash // recomputed
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("hash mismatch at seq %d: recorded %s, recomputed %s", e.Seq, e.Want.Hex(), e.Got.Hex())
}

// TimestampError reports a recorded timestamp drifting past tolerance from
// the instant the cadence predicts.
type TimestampError struct {
	Seq       uint64
	Recorded  uint64 // milliseconds since genesis, as recorded
	Expected  uint64 // milliseconds since genesis, per the cadence
	Drift     time.Duration
	Tolerance time.Duration
}

func (e *TimestampError) Error() string {
	return fmt.Sprintf("timestamp drift at seq %d: recorded %dms, expected %dms (drift %s, tolerance %s)",
		e.Seq, e.Recorded, e.Expected, e.Drift, e.Tolerance)
}
