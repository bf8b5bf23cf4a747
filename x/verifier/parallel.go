package verifier

import (
	"context"
	"errors"
	"math"
	"runtime"
	"sync"

	"github.com/rvnrstnsyh/rhythm/x/digest"
	"github.com/rvnrstnsyh/rhythm/x/ledger"
)

// parallelMinChunk is the smallest range worth handing to its own worker.
// Below it the goroutine hand-off costs more than the hashing saves.
const parallelMinChunk = 64

// VerifyParallel splits entries into contiguous chunks and replays them
// concurrently. The first chunk anchors on genesis; every later chunk
// anchors on the recorded hash of the entry just before it, so the chunks
// need no coordination. Entries must start at seq 0, as with Verify.
//
// When chunks disagree the violation with the lowest seq wins, which is the
// same error a serial scan would report. workers <= 0 uses GOMAXPROCS.
func (v *Verifier) VerifyParallel(ctx context.Context, genesis digest.Hash, entries []ledger.Entry, workers int) error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if maxWorkers := len(entries) / parallelMinChunk; workers > maxWorkers {
		workers = maxWorkers
	}
	if workers <= 1 {
		return v.Verify(genesis, entries)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	chunkSize := (len(entries) + workers - 1) / workers

	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for start := 0; start < len(entries); start += chunkSize {
		end := start + chunkSize
		if end > len(entries) {
			end = len(entries)
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				errCh <- err
				return
			}
			var err error
			if start == 0 {
				err = v.Verify(genesis, entries[:end])
			} else {
				prev := &entries[start-1]
				err = v.VerifyFrom(Checkpoint{Seq: prev.Seq, Hash: prev.Hash}, entries[start:end])
			}
			if err != nil {
				errCh <- err
			}
		}(start, end)
	}
	wg.Wait()
	close(errCh)

	return firstFailure(errCh)
}

// firstFailure picks the violation with the lowest seq. Errors that carry no
// seq, like a canceled context, only surface when no chunk found a concrete
// violation.
func firstFailure(errCh <-chan error) error {
	var (
		first    error
		firstSeq uint64 = math.MaxUint64
		fallback error
	)
	for err := range errCh {
		seq, ok := errSeq(err)
		switch {
		case ok && seq < firstSeq:
			first, firstSeq = err, seq
		case !ok && fallback == nil:
			fallback = err
		}
	}
	if first != nil {
		return first
	}
	return fallback
}

func errSeq(err error) (uint64, bool) {
	var structural *StructuralError
	if errors.As(err, &structural) {
		return structural.Seq, true
	}
	var mismatch *MismatchError
	if errors.As(err, &mismatch) {
		return mismatch.Seq, true
	}
	return 0, false
}
