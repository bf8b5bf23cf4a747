package ledger

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
)

// DefaultMaxEntrySize bounds a single encoded entry on the stream surfaces.
const DefaultMaxEntrySize = 1 << 20

var (
	// ErrEntryTooLarge rejects encoding or decoding past the size limit.
	ErrEntryTooLarge = errors.New("entry too large")

	// ErrEntryMalformed rejects bytes that do not decode to a valid entry.
	ErrEntryMalformed = errors.New("malformed entry encoding")
)

// Binary layout, big-endian:
//
//	seq u64 | timestamp_ms u64 | slot u64 | epoch u64 | hash [32] | flag u8
//	flag 0x00: plain tick, nothing follows
//	flag 0x01: mix-in, followed by len u32 | payload
const (
	flagTick  = 0x00
	flagMixin = 0x01

	entryFixedSize = 4*8 + 32 + 1
)

// MarshalBinary encodes the entry in the fixed binary layout.
func (e Entry) MarshalBinary() ([]byte, error) {
	if e.Tick != (e.Mixin == nil) {
		return nil, fmt.Errorf("%w: tick flag disagrees with mix-in presence at seq %d", ErrEntryMalformed, e.Seq)
	}
	if len(e.Mixin) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: mix-in size %d exceeds uint32 range", ErrEntryTooLarge, len(e.Mixin))
	}

	size := entryFixedSize
	if e.Mixin != nil {
		size += 4 + len(e.Mixin)
	}

	buf := make([]byte, size)
	binary.BigEndian.PutUint64(buf[0:8], e.Seq)
	binary.BigEndian.PutUint64(buf[8:16], e.Timestamp)
	binary.BigEndian.PutUint64(buf[16:24], e.Slot)
	binary.BigEndian.PutUint64(buf[24:32], e.Epoch)
	copy(buf[32:64], e.Hash[:])

	if e.Mixin == nil {
		buf[64] = flagTick
		return buf, nil
	}

	buf[64] = flagMixin
	binary.BigEndian.PutUint32(buf[65:69], uint32(len(e.Mixin)))
	copy(buf[69:], e.Mixin)
	return buf, nil
}

// UnmarshalBinary decodes an entry produced by MarshalBinary. It rejects
// truncated or trailing bytes and unknown flags.
func (e *Entry) UnmarshalBinary(data []byte) error {
	if len(data) < entryFixedSize {
		return fmt.Errorf("%w: %d bytes, want at least %d", ErrEntryMalformed, len(data), entryFixedSize)
	}

	e.Seq = binary.BigEndian.Uint64(data[0:8])
	e.Timestamp = binary.BigEndian.Uint64(data[8:16])
	e.Slot = binary.BigEndian.Uint64(data[16:24])
	e.Epoch = binary.BigEndian.Uint64(data[24:32])
	copy(e.Hash[:], data[32:64])

	switch data[64] {
	case flagTick:
		if len(data) != entryFixedSize {
			return fmt.Errorf("%w: %d trailing bytes after tick entry", ErrEntryMalformed, len(data)-entryFixedSize)
		}
		e.Mixin = nil
		e.Tick = true

	case flagMixin:
		if len(data) < entryFixedSize+4 {
			return fmt.Errorf("%w: truncated mix-in length", ErrEntryMalformed)
		}
		length := binary.BigEndian.Uint32(data[65:69])
		rest := data[69:]
		if uint64(len(rest)) != uint64(length) {
			return fmt.Errorf("%w: mix-in length %d, %d bytes present", ErrEntryMalformed, length, len(rest))
		}
		e.Mixin = make([]byte, length)
		copy(e.Mixin, rest)
		e.Tick = false

	default:
		return fmt.Errorf("%w: unknown flag 0x%02x", ErrEntryMalformed, data[64])
	}

	return nil
}

// Writer frames encoded entries onto an io.Writer with a big-endian uint32
// length prefix. Safe for concurrent use.
type Writer struct {
	mu   sync.Mutex
	buf  *bufio.Writer
	max  int
	size [4]byte
}

// NewWriter wraps w. A non-positive maxEntrySize takes the default.
func NewWriter(w io.Writer, maxEntrySize int) *Writer {
	if maxEntrySize <= 0 {
		maxEntrySize = DefaultMaxEntrySize
	}
	return &Writer{
		buf: bufio.NewWriterSize(w, 8192),
		max: maxEntrySize,
	}
}

// Write frames one entry and flushes it.
func (w *Writer) Write(e Entry) error {
	data, err := e.MarshalBinary()
	if err != nil {
		return err
	}
	if len(data) > w.max {
		return fmt.Errorf("%w: encoded size %d exceeds max %d", ErrEntryTooLarge, len(data), w.max)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	binary.BigEndian.PutUint32(w.size[:], uint32(len(data)))
	if _, err := w.buf.Write(w.size[:]); err != nil {
		return err
	}
	if _, err := w.buf.Write(data); err != nil {
		return err
	}
	return w.buf.Flush()
}

// Reader decodes a stream produced by Writer. Read returns io.EOF at a clean
// stream end.
type Reader struct {
	r   *bufio.Reader
	max int
}

// NewReader wraps r. A non-positive maxEntrySize takes the default.
func NewReader(r io.Reader, maxEntrySize int) *Reader {
	if maxEntrySize <= 0 {
		maxEntrySize = DefaultMaxEntrySize
	}
	return &Reader{
		r:   bufio.NewReaderSize(r, 8192),
		max: maxEntrySize,
	}
}

// Read decodes the next entry from the stream.
func (r *Reader) Read() (Entry, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r.r, prefix[:]); err != nil {
		return Entry{}, err
	}

	length := binary.BigEndian.Uint32(prefix[:])
	if int64(length) > int64(r.max) {
		return Entry{}, fmt.Errorf("%w: frame size %d exceeds max %d", ErrEntryTooLarge, length, r.max)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r.r, data); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Entry{}, fmt.Errorf("truncated entry frame: %w", err)
	}

	var e Entry
	if err := e.UnmarshalBinary(data); err != nil {
		return Entry{}, err
	}
	return e, nil
}
