package ingest

import "github.com/gojue/ecaptureQ/internal/packet"

// DefaultBatchSize is the count bound of a batch.
const DefaultBatchSize = 20

// Batcher accumulates records up to a count bound.
type Batcher struct {
	max int
	buf []packet.Record
}

// NewBatcher returns a Batcher that fills up at max records.
func NewBatcher(max int) *Batcher {
	if max <= 0 {
		max = DefaultBatchSize
	}
	return &Batcher{max: max, buf: make([]packet.Record, 0, max)}
}

// Add buffers rec. When the buffer reaches the bound it is returned and the
// batcher starts empty again; otherwise Add returns nil.
func (b *Batcher) Add(rec packet.Record) []packet.Record {
	b.buf = append(b.buf, rec)
	if len(b.buf) >= b.max {
		return b.Drain()
	}
	return nil
}

// Drain returns the buffered records and empties the batcher.
func (b *Batcher) Drain() []packet.Record {
	if len(b.buf) == 0 {
		return nil
	}
	out := b.buf
	b.buf = make([]packet.Record, 0, b.max)
	return out
}

func (b *Batcher) Len() int { return len(b.buf) }
