package verifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvnrstnsyh/rhythm/log"
	"github.com/rvnrstnsyh/rhythm/x/cadence"
	"github.com/rvnrstnsyh/rhythm/x/digest"
	"github.com/rvnrstnsyh/rhythm/x/ledger"
)

func newTestVerifier(t *testing.T, config Config) *Verifier {
	t.Helper()

	v, err := New(config, log.Nop())
	require.NoError(t, err)
	return v
}

// buildChain produces a well formed record of n entries from genesis, with
// the given mix-ins keyed by seq. Timestamps follow the cadence exactly.
func buildChain(config Config, genesis digest.Hash, n int, mixins map[int][]byte) []ledger.Entry {
	algo, err := digest.ParseAlgorithm(config.Algorithm)
	if err != nil {
		panic(err)
	}
	cad := config.Cadence

	entries := make([]ledger.Entry, n)
	prev := genesis
	for i := 0; i < n; i++ {
		mixin := mixins[i]
		hash := algo.StepExtend(prev, mixin, cad.HashesPerTick)
		seq := uint64(i)
		slot := cad.SlotOf(seq)
		entries[i] = ledger.Entry{
			Seq:       seq,
			Hash:      hash,
			Mixin:     mixin,
			Tick:      mixin == nil,
			Slot:      slot,
			Epoch:     cad.EpochOf(slot),
			Timestamp: uint64((time.Duration(seq+1) * cad.Interval).Milliseconds()),
		}
		prev = hash
	}
	return entries
}

func fastConfig() Config {
	config := DefaultConfig()
	config.Cadence.TicksPerSlot = 4
	config.Cadence.SlotsPerEpoch = 8
	return config
}

func TestNewRejectsUnknownAlgorithm(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Algorithm: "md5"}, log.Nop())
	require.Error(t, err)
}

func TestNewNormalizesZeroCadence(t *testing.T) {
	t.Parallel()

	v := newTestVerifier(t, Config{Algorithm: "sha-256"})
	defaults := cadence.DefaultConfig()
	assert.Equal(t, defaults.Interval, v.config.Cadence.Interval)
	assert.Equal(t, defaults.TicksPerSlot, v.config.Cadence.TicksPerSlot)
	assert.Equal(t, defaults.SlotsPerEpoch, v.config.Cadence.SlotsPerEpoch)
	assert.Equal(t, defaults.HashesPerTick, v.config.Cadence.HashesPerTick)
}

func TestVerifyValidChain(t *testing.T) {
	t.Parallel()

	config := fastConfig()
	v := newTestVerifier(t, config)
	genesis := digest.SHA256.Seed([]byte("verify-valid"))
	entries := buildChain(config, genesis, 20, map[int][]byte{
		3:  []byte("evt1"),
		7:  {},
		11: []byte("evt2"),
	})

	require.NoError(t, v.Verify(genesis, entries))
}

func TestVerifyEmptyRange(t *testing.T) {
	t.Parallel()

	v := newTestVerifier(t, fastConfig())
	require.NoError(t, v.Verify(digest.SHA256.Seed(nil), nil))
}

func TestVerifyMultipleIterationsPerTick(t *testing.T) {
	t.Parallel()

	config := fastConfig()
	config.Cadence.HashesPerTick = 25
	v := newTestVerifier(t, config)
	genesis := digest.SHA256.Seed([]byte("iterations"))
	entries := buildChain(config, genesis, 10, map[int][]byte{4: []byte("evt")})

	require.NoError(t, v.Verify(genesis, entries))

	// The same record fails under a verifier expecting a different count.
	slow := config
	slow.Cadence.HashesPerTick = 24
	var mismatch *MismatchError
	err := newTestVerifier(t, slow).Verify(genesis, entries)
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, uint64(0), mismatch.Seq)
}

func TestVerifyDetectsTamperedHash(t *testing.T) {
	t.Parallel()

	config := fastConfig()
	v := newTestVerifier(t, config)
	genesis := digest.SHA256.Seed([]byte("tamper-hash"))
	entries := buildChain(config, genesis, 10, nil)
	entries[6].Hash[0] ^= 0xff

	var mismatch *MismatchError
	err := v.Verify(genesis, entries)
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, uint64(6), mismatch.Seq)
	assert.Contains(t, err.Error(), mismatch.Want.Hex())
	assert.Contains(t, err.Error(), mismatch.Got.Hex())
}

func TestVerifyDetectsTamperedMixin(t *testing.T) {
	t.Parallel()

	config := fastConfig()
	v := newTestVerifier(t, config)
	genesis := digest.SHA256.Seed([]byte("tamper-mixin"))

	t.Run("altered payload", func(t *testing.T) {
		t.Parallel()

		entries := buildChain(config, genesis, 10, map[int][]byte{5: []byte("original")})
		entries[5].Mixin = []byte("forged ")

		var mismatch *MismatchError
		err := v.Verify(genesis, entries)
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, uint64(5), mismatch.Seq)
	})

	t.Run("dropped payload", func(t *testing.T) {
		t.Parallel()

		entries := buildChain(config, genesis, 10, map[int][]byte{5: []byte("original")})
		entries[5].Mixin = nil
		entries[5].Tick = true

		var mismatch *MismatchError
		err := v.Verify(genesis, entries)
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, uint64(5), mismatch.Seq)
	})
}

func TestVerifyStructuralViolations(t *testing.T) {
	t.Parallel()

	config := fastConfig()
	genesis := digest.SHA256.Seed([]byte("structural"))

	tests := []struct {
		name    string
		corrupt func(entries []ledger.Entry)
		wantSeq uint64
		reason  string
	}{
		{
			name:    "sequence gap",
			corrupt: func(entries []ledger.Entry) { entries[4].Seq = 9 },
			wantSeq: 9,
			reason:  "sequence",
		},
		{
			name:    "tick flag disagrees",
			corrupt: func(entries []ledger.Entry) { entries[4].Tick = false },
			wantSeq: 4,
			reason:  "tick flag",
		},
		{
			name:    "wrong slot",
			corrupt: func(entries []ledger.Entry) { entries[6].Slot++ },
			wantSeq: 6,
			reason:  "slot",
		},
		{
			name:    "wrong epoch",
			corrupt: func(entries []ledger.Entry) { entries[6].Epoch = 99 },
			wantSeq: 6,
			reason:  "epoch",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			v := newTestVerifier(t, config)
			entries := buildChain(config, genesis, 10, nil)
			tt.corrupt(entries)

			var structural *StructuralError
			err := v.Verify(genesis, entries)
			require.ErrorAs(t, err, &structural)
			assert.Equal(t, tt.wantSeq, structural.Seq)
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestVerifyStructuralChecksPrecedeHashing(t *testing.T) {
	t.Parallel()

	config := fastConfig()
	v := newTestVerifier(t, config)
	genesis := digest.SHA256.Seed([]byte("precedence"))
	entries := buildChain(config, genesis, 10, nil)
	entries[3].Slot = 77
	entries[3].Hash[0] ^= 0xff

	var structural *StructuralError
	err := v.Verify(genesis, entries)
	require.ErrorAs(t, err, &structural)
	assert.Equal(t, uint64(3), structural.Seq)
}

func TestVerifyRequiresGenesisAnchoredRange(t *testing.T) {
	t.Parallel()

	config := fastConfig()
	v := newTestVerifier(t, config)
	genesis := digest.SHA256.Seed([]byte("anchored"))
	entries := buildChain(config, genesis, 10, nil)

	var structural *StructuralError
	err := v.Verify(genesis, entries[2:])
	require.ErrorAs(t, err, &structural)
	assert.Equal(t, uint64(2), structural.Seq)
}

func TestVerifyFromCheckpoint(t *testing.T) {
	t.Parallel()

	config := fastConfig()
	v := newTestVerifier(t, config)
	genesis := digest.SHA256.Seed([]byte("checkpoint"))
	entries := buildChain(config, genesis, 5, map[int][]byte{3: []byte("evt1")})
	require.NoError(t, v.Verify(genesis, entries))

	cp := Checkpoint{Seq: entries[2].Seq, Hash: entries[2].Hash}
	require.NoError(t, v.VerifyFrom(cp, entries[3:]))
	require.NoError(t, v.VerifyFrom(cp, nil))

	t.Run("tampered suffix", func(t *testing.T) {
		t.Parallel()

		suffix := []ledger.Entry{entries[3].Clone(), entries[4].Clone()}
		suffix[1].Hash[0] ^= 0xff

		var mismatch *MismatchError
		err := v.VerifyFrom(cp, suffix)
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, uint64(4), mismatch.Seq)
	})

	t.Run("suffix not adjacent to checkpoint", func(t *testing.T) {
		t.Parallel()

		var structural *StructuralError
		err := v.VerifyFrom(cp, entries[4:])
		require.ErrorAs(t, err, &structural)
		assert.Equal(t, uint64(4), structural.Seq)
	})

	t.Run("forged checkpoint hash", func(t *testing.T) {
		t.Parallel()

		forged := cp
		forged.Hash[0] ^= 0xff

		var mismatch *MismatchError
		err := v.VerifyFrom(forged, entries[3:])
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, uint64(3), mismatch.Seq)
	})
}

func TestVerifyParallelMatchesSerial(t *testing.T) {
	t.Parallel()

	config := fastConfig()
	v := newTestVerifier(t, config)
	genesis := digest.SHA256.Seed([]byte("parallel"))
	entries := buildChain(config, genesis, 1000, map[int][]byte{
		17:  []byte("a"),
		256: []byte("b"),
		999: []byte("c"),
	})

	require.NoError(t, v.Verify(genesis, entries))
	require.NoError(t, v.VerifyParallel(context.Background(), genesis, entries, 4))
	require.NoError(t, v.VerifyParallel(context.Background(), genesis, entries, 0))
	require.NoError(t, v.VerifyParallel(context.Background(), genesis, entries, 64))
}

func TestVerifyParallelReportsLowestSeq(t *testing.T) {
	t.Parallel()

	config := fastConfig()
	v := newTestVerifier(t, config)
	genesis := digest.SHA256.Seed([]byte("parallel-lowest"))

	tests := []struct {
		name string
		seq  int
	}{
		{name: "interior", seq: 777},
		{name: "first entry of a chunk", seq: 250},
		{name: "anchor of the next chunk", seq: 249},
		{name: "first entry", seq: 0},
		{name: "last entry", seq: 999},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			entries := buildChain(config, genesis, 1000, nil)
			entries[tt.seq].Hash[0] ^= 0xff

			var mismatch *MismatchError
			err := v.VerifyParallel(context.Background(), genesis, entries, 4)
			require.ErrorAs(t, err, &mismatch)
			assert.Equal(t, uint64(tt.seq), mismatch.Seq)
		})
	}
}

func TestVerifyParallelSmallRangeRunsSerial(t *testing.T) {
	t.Parallel()

	config := fastConfig()
	v := newTestVerifier(t, config)
	genesis := digest.SHA256.Seed([]byte("parallel-small"))
	entries := buildChain(config, genesis, 10, nil)

	require.NoError(t, v.VerifyParallel(context.Background(), genesis, entries, 8))
	require.NoError(t, v.VerifyParallel(context.Background(), genesis, nil, 8))
}

func TestVerifyParallelHonorsContext(t *testing.T) {
	t.Parallel()

	config := fastConfig()
	v := newTestVerifier(t, config)
	genesis := digest.SHA256.Seed([]byte("parallel-ctx"))
	entries := buildChain(config, genesis, 1000, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := v.VerifyParallel(ctx, genesis, entries, 4)
	require.ErrorIs(t, err, context.Canceled)
}

func TestVerifyTimestamps(t *testing.T) {
	t.Parallel()

	config := fastConfig()
	v := newTestVerifier(t, config)
	genesis := digest.SHA256.Seed([]byte("timestamps"))
	entries := buildChain(config, genesis, 20, nil)

	require.NoError(t, v.VerifyTimestamps(entries, 0))

	t.Run("drift within tolerance", func(t *testing.T) {
		t.Parallel()

		jittered := make([]ledger.Entry, len(entries))
		copy(jittered, entries)
		jittered[10].Timestamp += 7

		require.NoError(t, v.VerifyTimestamps(jittered, 0))
	})

	t.Run("drift beyond tolerance", func(t *testing.T) {
		t.Parallel()

		late := make([]ledger.Entry, len(entries))
		copy(late, entries)
		late[10].Timestamp += 10

		var drift *TimestampError
		err := v.VerifyTimestamps(late, 0)
		require.ErrorAs(t, err, &drift)
		assert.Equal(t, uint64(10), drift.Seq)
		assert.Equal(t, DefaultTimestampTolerance, drift.Tolerance)
	})

	t.Run("custom tolerance", func(t *testing.T) {
		t.Parallel()

		late := make([]ledger.Entry, len(entries))
		copy(late, entries)
		late[4].Timestamp += 3

		require.NoError(t, v.VerifyTimestamps(late, 0))
		require.Error(t, v.VerifyTimestamps(late, time.Millisecond))
	})

	t.Run("hash chain ignores timestamps", func(t *testing.T) {
		t.Parallel()

		late := make([]ledger.Entry, len(entries))
		copy(late, entries)
		late[10].Timestamp += 10_000

		require.NoError(t, v.Verify(genesis, late))
		require.Error(t, v.VerifyTimestamps(late, 0))
	})
}

func TestVerifyBlake3Chain(t *testing.T) {
	t.Parallel()

	config := fastConfig()
	config.Algorithm = "blake3"
	v := newTestVerifier(t, config)
	genesis := digest.BLAKE3.Seed([]byte("blake3-chain"))
	entries := buildChain(config, genesis, 16, map[int][]byte{2: []byte("evt")})

	require.NoError(t, v.Verify(genesis, entries))

	// A SHA-256 verifier rejects the same record at the first entry.
	var mismatch *MismatchError
	sha := newTestVerifier(t, fastConfig())
	err := sha.Verify(genesis, entries)
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, uint64(0), mismatch.Seq)
}

func TestErrorMessages(t *testing.T) {
	t.Parallel()

	structural := &StructuralError{Seq: 7, Reason: "sequence 7, want 5"}
	assert.Contains(t, structural.Error(), "seq 7")

	drift := &TimestampError{Seq: 3, Recorded: 40, Expected: 25, Drift: 15 * time.Millisecond, Tolerance: 8 * time.Millisecond}
	assert.Contains(t, drift.Error(), "seq 3")
	assert.Contains(t, drift.Error(), "15ms")

	var asStructural *StructuralError
	require.True(t, errors.As(error(structural), &asStructural))
}
