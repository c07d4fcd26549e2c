package push

import (
	"sync/atomic"

	"github.com/gojue/ecaptureQ/internal/query"
)

// Cursor is the highest row index already delivered to one consumer. The
// zero value has delivered nothing. Each consumer owns its cursor; sharing
// one between differently filtered consumers skips rows.
type Cursor struct {
	// last delivered index + 1, 0 when nothing was delivered
	next atomic.Uint64
}

// Value returns the last delivered index, or 0 when nothing was delivered.
func (c *Cursor) Value() uint64 {
	if n := c.next.Load(); n > 0 {
		return n - 1
	}
	return 0
}

// Delivered reports whether any row has been delivered since the last reset.
func (c *Cursor) Delivered() bool { return c.next.Load() > 0 }

// Position is the value handed to the query builder.
func (c *Cursor) Position() uint64 {
	if n := c.next.Load(); n > 0 {
		return n - 1
	}
	return query.Beginning
}

// Advance moves the cursor to index if that is further along. It never moves
// backwards.
func (c *Cursor) Advance(index uint64) bool {
	for {
		cur := c.next.Load()
		if index+1 <= cur {
			return false
		}
		if c.next.CompareAndSwap(cur, index+1) {
			return true
		}
	}
}

// Reset forgets every delivered row.
func (c *Cursor) Reset() { c.next.Store(0) }
