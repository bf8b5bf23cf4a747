// Package verifier replays tick records against a trusted anchor and checks
// that every hash, sequence number and flag is exactly what the generator
// must have produced. Verification is where the proof pays off: generating
// the chain is inherently serial, but checking it can be split across cores
// because every entry carries the hash its successor builds on.
package verifier

import (
	"fmt"
	"time"

	"github.com/rvnrstnsyh/rhythm/log"
	"github.com/rvnrstnsyh/rhythm/x/cadence"
	"github.com/rvnrstnsyh/rhythm/x/digest"
	"github.com/rvnrstnsyh/rhythm/x/ledger"
)

// DefaultTimestampTolerance bounds the scheduling jitter VerifyTimestamps
// accepts per entry.
const DefaultTimestampTolerance = 8 * time.Millisecond

// Config carries the chain parameters the verifier replays with. They must
// match the generator's settings or every entry fails.
type Config struct {
	Algorithm string         `mapstructure:"algorithm" yaml:"algorithm"`
	Cadence   cadence.Config `mapstructure:"cadence"   yaml:"cadence"`
}

// DefaultConfig returns verifier settings matching the default generator.
func DefaultConfig() Config {
	return Config{
		Algorithm: digest.SHA256.String(),
		Cadence:   cadence.DefaultConfig(),
	}
}

// Checkpoint is a trusted (seq, hash) pair, normally taken from an entry
// verified earlier. It anchors verification of the suffix that follows it.
type Checkpoint struct {
	Seq  uint64      `json:"seq"`
	Hash digest.Hash `json:"hash"`
}

// Verifier replays entry ranges. It is stateless and safe for concurrent
// use.
type Verifier struct {
	config  Config
	algo    digest.Algorithm
	log     log.Logger
	metrics *Metrics
}

// New creates a verifier. Zero cadence fields fall back to defaults.
func New(config Config, logger log.Logger) (*Verifier, error) {
	algo, err := digest.ParseAlgorithm(config.Algorithm)
	if err != nil {
		return nil, err
	}
	defaults := cadence.DefaultConfig()
	if config.Cadence.Interval <= 0 {
		config.Cadence.Interval = defaults.Interval
	}
	if config.Cadence.TicksPerSlot == 0 {
		config.Cadence.TicksPerSlot = defaults.TicksPerSlot
	}
	if config.Cadence.SlotsPerEpoch == 0 {
		config.Cadence.SlotsPerEpoch = defaults.SlotsPerEpoch
	}
	if config.Cadence.HashesPerTick == 0 {
		config.Cadence.HashesPerTick = defaults.HashesPerTick
	}
	return &Verifier{
		config:  config,
		algo:    algo,
		log:     logger.Component("verifier"),
		metrics: newMetrics(),
	}, nil
}

// Verify replays entries from the genesis hash. Entries must start at seq 0
// and be contiguous. For each entry the structural checks run first, then
// the hash replay; the scan stops at the first violation. An empty range
// verifies trivially.
func (v *Verifier) Verify(genesis digest.Hash, entries []ledger.Entry) error {
	return v.verifyAnchored(genesis, 0, entries)
}

// VerifyFrom replays entries continuing directly after the checkpoint, so a
// reader that trusts a prefix only pays for the suffix.
func (v *Verifier) VerifyFrom(cp Checkpoint, entries []ledger.Entry) error {
	return v.verifyAnchored(cp.Hash, cp.Seq+1, entries)
}

func (v *Verifier) verifyAnchored(anchor digest.Hash, nextSeq uint64, entries []ledger.Entry) error {
	start := time.Now()
	prev := anchor
	for i := range entries {
		entry := &entries[i]
		if err := v.checkEntry(entry, prev, nextSeq+uint64(i)); err != nil {
			v.observe(start, i, err)
			return err
		}
		prev = entry.Hash
	}
	v.observe(start, len(entries), nil)
	return nil
}

func (v *Verifier) checkEntry(entry *ledger.Entry, prev digest.Hash, wantSeq uint64) error {
	if entry.Seq != wantSeq {
		return &StructuralError{Seq: entry.Seq, Reason: fmt.Sprintf("sequence %d, want %d", entry.Seq, wantSeq)}
	}
	if entry.Tick != (entry.Mixin == nil) {
		return &StructuralError{Seq: entry.Seq, Reason: "tick flag disagrees with mix-in presence"}
	}
	if slot := v.config.Cadence.SlotOf(entry.Seq); entry.Slot != slot {
		return &StructuralError{Seq: entry.Seq, Reason: fmt.Sprintf("slot %d, want %d", entry.Slot, slot)}
	}
	if epoch := v.config.Cadence.EpochOf(entry.Slot); entry.Epoch != epoch {
		return &StructuralError{Seq: entry.Seq, Reason: fmt.Sprintf("epoch %d, want %d", entry.Epoch, epoch)}
	}
	got := v.algo.StepExtend(prev, entry.Mixin, v.config.Cadence.HashesPerTick)
	if !digest.Equal(got, entry.Hash) {
		return &MismatchError{Seq: entry.Seq, Want: entry.Hash, Got: got}
	}
	return nil
}

// VerifyTimestamps checks recorded timestamps against the cadence: entry seq
// is expected at (seq+1) intervals past genesis. Drift beyond tolerance
// fails with a TimestampError; a non-positive tolerance takes the default.
// Timestamps are informational and not covered by the hash chain, so this
// check is separate from Verify.
func (v *Verifier) VerifyTimestamps(entries []ledger.Entry, tolerance time.Duration) error {
	if tolerance <= 0 {
		tolerance = DefaultTimestampTolerance
	}
	interval := v.config.Cadence.Interval
	for i := range entries {
		entry := &entries[i]
		expected := time.Duration(entry.Seq+1) * interval
		recorded := time.Duration(entry.Timestamp) * time.Millisecond
		drift := recorded - expected
		if drift < 0 {
			drift = -drift
		}
		if drift > tolerance {
			return &TimestampError{
				Seq:       entry.Seq,
				Recorded:  entry.Timestamp,
				Expected:  uint64(expected.Milliseconds()),
				Drift:     drift,
				Tolerance: tolerance,
			}
		}
	}
	return nil
}

func (v *Verifier) observe(start time.Time, verified int, err error) {
	elapsed := time.Since(start)
	v.metrics.Verifications.WithLabelValues(resultLabel(err)).Inc()
	v.metrics.Duration.Observe(elapsed.Seconds())
	v.metrics.Entries.Add(float64(verified))
	if err != nil {
		return
	}
	v.log.Debug().
		Int("entries", verified).
		Dur("took", elapsed).
		Msg("Range verified")
}
