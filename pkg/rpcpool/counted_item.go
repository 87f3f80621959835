package rpcpool

import (
	"sync"
	"sync/atomic"
	"time"
)

// lastSuccess is the shared, best-effort liveness marker for a single
// pooled channel slot. Reads and writes race benignly: callers only need
// monotonic-in-intent freshness, not a strict ordering.
type lastSuccess struct {
	nanos atomic.Int64
}

func newLastSuccess() *lastSuccess {
	ls := &lastSuccess{}
	ls.touch()
	return ls
}

func (ls *lastSuccess) touch() {
	ls.nanos.Store(time.Now().UnixNano())
}

func (ls *lastSuccess) age() time.Duration {
	return time.Duration(time.Now().UnixNano() - ls.nanos.Load())
}

// CountedItem is a scoped borrow of a Channel handed out by choose(). It
// carries the shared last-success bookkeeping for its slot and a release
// hook that returns capacity to the owning pool exactly once. Capacity is
// returned only when Release is called; the retry engine calls it for every
// item it acquires once an attempt's race resolves, whichever branch won.
type CountedItem struct {
	channel Channel
	success *lastSuccess
	pool    *dynamicChannelPool
	slot    *slotState
	once    sync.Once
}

// Item returns the underlying Channel. Clone it before handing it to
// concurrent callers if you intend to keep using the CountedItem yourself.
func (c *CountedItem) Item() Channel {
	return c.channel
}

// ReportSuccess marks the channel as having just completed a successful
// call, resetting LastSuccessAge to (approximately) zero.
func (c *CountedItem) ReportSuccess() {
	c.success.touch()
}

// LastSuccessAge returns how long it has been since the last reported
// success on this channel slot, shared across every caller borrowing from
// the same slot.
func (c *CountedItem) LastSuccessAge() time.Duration {
	return c.success.age()
}

// Release returns the borrowed capacity to the pool. Safe to call more than
// once and safe to call from a deferred cleanup after a cancelled race
// branch; only the first call has any effect.
func (c *CountedItem) Release() {
	c.once.Do(func() {
		if c.pool != nil && c.slot != nil {
			c.pool.releaseSlot(c.slot)
		}
	})
}
