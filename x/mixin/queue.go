// Package mixin is the hand-off between event producers and the generator's
// tick loop. The queue is a bounded FIFO: submission order is insertion order
// is mix-in order. Each submission returns a one-shot Receipt resolved with
// the sequence number the payload was folded into the chain at, or with the
// reason it never was.
package mixin

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrFull rejects a non-blocking submit while the queue is at capacity.
	// Producers retry, back off, or switch to the blocking Submit.
	ErrFull = errors.New("mixin queue full")

	// ErrClosed rejects submissions after Close.
	ErrClosed = errors.New("mixin queue closed")
)

// Receipt is the producer's handle on a submitted payload. It resolves exactly
// once: either with the sequence number the payload entered the chain at, or
// with an error explaining why it never did.
type Receipt struct {
	once sync.Once
	done chan struct{}
	seq  uint64
	err  error
}

func newReceipt() *Receipt {
	return &Receipt{done: make(chan struct{})}
}

// Done is closed once the payload's fate is known.
func (r *Receipt) Done() <-chan struct{} {
	return r.done
}

// Seq returns the assigned sequence number. Meaningful only after Done is
// closed and Err returns nil.
func (r *Receipt) Seq() uint64 {
	return r.seq
}

// Err reports why the payload never entered the chain. Nil after success, and
// nil before resolution.
func (r *Receipt) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Wait blocks until the receipt resolves or ctx is done.
func (r *Receipt) Wait(ctx context.Context) (uint64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-r.done:
		return r.seq, r.err
	}
}

func (r *Receipt) resolve(seq uint64, err error) {
	r.once.Do(func() {
		r.seq = seq
		r.err = err
		close(r.done)
	})
}

// Request is the consumer's side of a submission. Only the goroutine that
// dequeued it holds one, and it must resolve the receipt exactly once.
type Request struct {
	Payload []byte

	receipt *Receipt
}

// Fulfill resolves the receipt with the sequence number the payload was mixed
// in at.
func (r *Request) Fulfill(seq uint64) {
	r.receipt.resolve(seq, nil)
}

// Fail resolves the receipt with the reason the payload never entered the
// chain.
func (r *Request) Fail(err error) {
	r.receipt.resolve(0, err)
}

// Queue is a bounded FIFO hand-off. Any number of producers submit; a single
// consumer polls. Backed by a buffered channel, so ordering and blocking
// semantics are the channel's.
type Queue struct {
	ch        chan *Request
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue builds a queue with the configured capacity. Non-positive
// capacities fall back to the default.
func NewQueue(config Config) *Queue {
	capacity := config.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		ch:   make(chan *Request, capacity),
		done: make(chan struct{}),
	}
}

// Submit enqueues a payload, blocking while the queue is full. It returns the
// payload's receipt, or an error if ctx ended or the queue closed first. When
// a close races the send, both are returned: the payload is already enqueued,
// and its receipt resolves with whatever actually became of it.
// A nil payload is treated as an empty one.
func (q *Queue) Submit(ctx context.Context, payload []byte) (*Receipt, error) {
	select {
	case <-q.done:
		return nil, ErrClosed
	default:
	}

	if payload == nil {
		payload = []byte{}
	}
	req := &Request{Payload: payload, receipt: newReceipt()}
	select {
	case q.ch <- req:
		return q.afterEnqueue(req)
	case <-q.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// afterEnqueue re-checks for a close that raced the send. The request sits in
// the buffer either way; whichever of this check, the consumer, and the final
// drain runs first resolves the receipt. The receipt is returned alongside
// ErrClosed because it carries the payload's actual fate: a consumer that got
// to the request first fulfilled it with a real sequence number.
func (q *Queue) afterEnqueue(req *Request) (*Receipt, error) {
	select {
	case <-q.done:
		req.receipt.resolve(0, ErrClosed)
		return req.receipt, ErrClosed
	default:
		return req.receipt, nil
	}
}

// TrySubmit enqueues a payload without blocking. ErrFull means the producer
// should back off and retry. A nil payload is treated as an empty one.
func (q *Queue) TrySubmit(payload []byte) (*Receipt, error) {
	select {
	case <-q.done:
		return nil, ErrClosed
	default:
	}

	if payload == nil {
		payload = []byte{}
	}
	req := &Request{Payload: payload, receipt: newReceipt()}
	select {
	case q.ch <- req:
		return q.afterEnqueue(req)
	default:
		return nil, ErrFull
	}
}

// Poll dequeues the oldest pending request without blocking. The consumer
// calls this once per tick; false means the tick runs without a mix-in.
func (q *Queue) Poll() (*Request, bool) {
	select {
	case req := <-q.ch:
		return req, true
	default:
		return nil, false
	}
}

// Len is the number of queued requests.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap is the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}

// Close rejects all further submissions and unblocks producers waiting in
// Submit. Requests already queued stay queued; the consumer drains them and
// resolves their receipts.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}
