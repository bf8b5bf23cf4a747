// Package sequencer drives the chain. A single goroutine ticks at a fixed
// cadence; each tick folds in at most one queued mix-in, extends the hash
// chain, appends the resulting entry to the ledger, and resolves the
// producer's receipt with the assigned sequence number. An empty queue never
// stalls the loop: the tick happens anyway and records a plain hash step.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/rvnrstnsyh/rhythm/log"
	"github.com/rvnrstnsyh/rhythm/x/cadence"
	"github.com/rvnrstnsyh/rhythm/x/digest"
	"github.com/rvnrstnsyh/rhythm/x/ledger"
	"github.com/rvnrstnsyh/rhythm/x/mixin"
)

var (
	// ErrAlreadyRunning rejects a second concurrent Run or Start.
	ErrAlreadyRunning = errors.New("sequencer already running")

	// ErrNotRunning rejects Stop on a sequencer that is not running.
	ErrNotRunning = errors.New("sequencer not running")

	// ErrStopped marks a sequencer whose run has ended. It rejects restart
	// attempts and resolves the receipts of mix-ins still queued at stop.
	ErrStopped = errors.New("sequencer stopped")
)

// Sequencer owns the chain state and the tick loop. It runs at most once;
// after the run ends the produced chain stays readable through Ledger.
type Sequencer struct {
	mu sync.RWMutex

	config  Config
	log     log.Logger
	metrics *Metrics

	algo    digest.Algorithm
	genesis digest.Hash
	clk     clock.Clock

	queue  *mixin.Queue
	ledger *ledger.Log

	running  bool
	stopped  bool
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	workerWg sync.WaitGroup
}

// New builds a sequencer on the wall clock.
func New(config Config, logger log.Logger) (*Sequencer, error) {
	return NewWithClock(config, clock.New(), logger)
}

// NewWithClock builds a sequencer on an injected clock. Tests drive a
// clock.Mock to make the cadence deterministic.
func NewWithClock(config Config, clk clock.Clock, logger log.Logger) (*Sequencer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if clk == nil {
		clk = clock.New()
	}

	algo, err := digest.ParseAlgorithm(config.Algorithm)
	if err != nil {
		return nil, err
	}
	genesis, err := config.Genesis()
	if err != nil {
		return nil, err
	}

	return &Sequencer{
		config:  config,
		log:     logger.Component("sequencer"),
		metrics: newMetrics(),
		algo:    algo,
		genesis: genesis,
		clk:     clk,
		queue:   mixin.NewQueue(config.Queue),
		ledger:  ledger.NewLog(config.Ledger, logger),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Run drives the tick loop until Stop or ctx cancellation. Both are honored
// at tick boundaries only: an in-flight tick always completes and its entry
// is appended. Run returns nil on a clean stop.
func (s *Sequencer) Run(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()
	return s.loop(ctx)
}

// Start runs the loop on an internal goroutine and returns immediately.
func (s *Sequencer) Start(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}

	s.workerWg.Add(1)
	go func() {
		defer s.workerWg.Done()
		defer s.end()
		if err := s.loop(ctx); err != nil {
			s.log.Error().Err(err).Msg("Sequencer loop failed")
		}
	}()

	return nil
}

// Stop ends the run at the next tick boundary and waits for the loop to
// finish. Mix-ins still queued when the loop exits have their receipts
// resolved with ErrStopped.
func (s *Sequencer) Stop() error {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()
	if !running {
		return ErrNotRunning
	}

	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.done
	s.workerWg.Wait()
	return nil
}

func (s *Sequencer) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	if s.stopped {
		return ErrStopped
	}
	s.running = true
	return nil
}

func (s *Sequencer) end() {
	s.mu.Lock()
	s.running = false
	s.stopped = true
	s.mu.Unlock()
	close(s.done)
}

func (s *Sequencer) loop(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	sched := cadence.NewSchedule(s.config.Cadence, s.clk)
	hashes := s.config.Cadence.HashesPerTick

	s.log.Info().
		Str("algorithm", s.algo.String()).
		Str("genesis", s.genesis.Short()).
		Dur("interval", sched.Interval()).
		Uint64("hashes_per_tick", hashes).
		Msg("Sequencer started")

	current := s.genesis
	seq := uint64(0)

	defer func() {
		s.failPending()
		s.log.Info().
			Uint64("entries", seq).
			Str("hash", current.Short()).
			Msg("Sequencer stopped")
	}()

	for {
		// Ticks fire late under load, never early, and lateness on one tick
		// does not move later deadlines.
		if err := sched.WaitTick(ctx, seq); err != nil {
			return nil
		}

		tickStart := s.clk.Now()

		var payload []byte
		req, consumed := s.queue.Poll()
		if consumed {
			payload = ledger.CloneMixin(req.Payload)
		}

		next := s.algo.StepExtend(current, payload, hashes)

		slot := s.config.Cadence.SlotOf(seq)
		entry := ledger.Entry{
			Seq:       seq,
			Hash:      next,
			Mixin:     payload,
			Tick:      payload == nil,
			Slot:      slot,
			Epoch:     s.config.Cadence.EpochOf(slot),
			Timestamp: uint64(s.clk.Now().Sub(sched.Start()).Milliseconds()),
		}

		if err := s.ledger.Append(entry); err != nil {
			if consumed {
				req.Fail(err)
			}
			s.log.Error().Err(err).Uint64("seq", seq).Msg("Append rejected, stopping")
			return err
		}

		if consumed {
			req.Fulfill(seq)
		}

		now := s.clk.Now()
		kind := "tick"
		if !entry.Tick {
			kind = "mixin"
			s.metrics.MixinSize.Observe(float64(len(payload)))
		}
		s.metrics.Ticks.WithLabelValues(kind).Inc()
		s.metrics.Hashes.Add(float64(hashes))
		s.metrics.TickDuration.Observe(now.Sub(tickStart).Seconds())
		s.metrics.QueueDepth.Set(float64(s.queue.Len()))

		if sched.Missed(seq, now) {
			s.metrics.CadenceMisses.Inc()
			s.log.Warn().
				Uint64("seq", seq).
				Dur("behind", sched.Behind(seq, now)).
				Msg("Cadence missed")
		}

		current = next
		seq++
	}
}

// failPending closes the queue and resolves every receipt still waiting in
// it.
func (s *Sequencer) failPending() {
	s.queue.Close()

	failed := 0
	for {
		req, ok := s.queue.Poll()
		if !ok {
			break
		}
		req.Fail(ErrStopped)
		failed++
	}
	if failed > 0 {
		s.log.Info().Int("requests", failed).Msg("Resolved undrained mix-in requests")
	}
}

// Submit hands a payload to the tick loop, blocking while the queue is full.
// The receipt resolves with the sequence number the payload was mixed in at.
func (s *Sequencer) Submit(ctx context.Context, payload []byte) (*mixin.Receipt, error) {
	return s.queue.Submit(ctx, payload)
}

// TrySubmit hands a payload to the tick loop without blocking; mixin.ErrFull
// tells the producer to back off and retry.
func (s *Sequencer) TrySubmit(payload []byte) (*mixin.Receipt, error) {
	return s.queue.TrySubmit(payload)
}

// Running reports whether the tick loop is active.
func (s *Sequencer) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Genesis returns the chain's genesis hash.
func (s *Sequencer) Genesis() digest.Hash {
	return s.genesis
}

// Algorithm returns the chain's hash algorithm.
func (s *Sequencer) Algorithm() digest.Algorithm {
	return s.algo
}

// Seq returns the next sequence number to be assigned.
func (s *Sequencer) Seq() uint64 {
	return s.ledger.Len()
}

// CurrentHash returns the chain tip: the latest entry's hash, or the genesis
// hash before the first tick.
func (s *Sequencer) CurrentHash() digest.Hash {
	if e, ok := s.ledger.Latest(); ok {
		return e.Hash
	}
	return s.genesis
}

// Ledger exposes the produced chain for readers, verifiers, and subscribers.
func (s *Sequencer) Ledger() *ledger.Log {
	return s.ledger
}

// Queue exposes the mix-in hand-off for producers.
func (s *Sequencer) Queue() *mixin.Queue {
	return s.queue
}

// Stats reports a point-in-time snapshot for debugging surfaces.
func (s *Sequencer) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"running":   s.Running(),
		"seq":       s.Seq(),
		"hash":      s.CurrentHash().Hex(),
		"genesis":   s.genesis.Hex(),
		"algorithm": s.algo.String(),
		"queue_len": s.queue.Len(),
		"queue_cap": s.queue.Cap(),
	}
	if latest, ok := s.ledger.Latest(); ok {
		stats["slot"] = latest.Slot
		stats["epoch"] = latest.Epoch
	}
	return stats
}
