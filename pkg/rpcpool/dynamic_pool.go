package rpcpool

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// slotState is one fixed capacity slot in a dynamicChannelPool. Slots never
// move or get resized after construction; only their contents change as
// channels are dialed, evicted, and redialed.
type slotState struct {
	mu      sync.Mutex
	channel Channel
	success *lastSuccess
	present bool
	refs    int
}

// dynamicChannelPool owns a fixed-size set of Channels to one peer address,
// selecting uniformly at random among its slots with no LRU.
type dynamicChannelPool struct {
	addr           Address
	dial           dialer
	connectTimeout time.Duration
	callTimeout    time.Duration
	slots          []*slotState
}

// newDynamicChannelPool constructs the slot table and performs the initial
// connect on the first slot. It fails with a transport error if that first
// channel cannot be established; the remaining slots are dialed lazily on
// first Choose.
func newDynamicChannelPool(ctx context.Context, addr Address, connectTimeout, callTimeout time.Duration, d dialer, capacity int) (*dynamicChannelPool, error) {
	if capacity < 1 {
		capacity = 1
	}

	p := &dynamicChannelPool{
		addr:           addr,
		dial:           d,
		connectTimeout: connectTimeout,
		callTimeout:    callTimeout,
		slots:          make([]*slotState, capacity),
	}
	for i := range p.slots {
		p.slots[i] = &slotState{}
	}

	ch, err := d.Dial(ctx, addr, connectTimeout, callTimeout)
	if err != nil {
		return nil, err
	}
	first := p.slots[0]
	first.channel = ch
	first.success = newLastSuccess()
	first.present = true

	return p, nil
}

// choose picks uniformly at random among the pool's slots. If the chosen
// slot was evicted below capacity it transparently dials a replacement.
// The redial happens under that slot's own mutex only, so callers of other
// slots never wait on it; a concurrent caller of the same empty slot waits
// for the redial and then borrows the newly dialed channel.
func (p *dynamicChannelPool) choose(ctx context.Context) (*CountedItem, error) {
	idx := rand.IntN(len(p.slots))
	slot := p.slots[idx]

	slot.mu.Lock()
	if !slot.present {
		ch, err := p.dial.Dial(ctx, p.addr, p.connectTimeout, p.callTimeout)
		if err != nil {
			slot.mu.Unlock()
			return nil, err
		}
		slot.channel = ch
		slot.success = newLastSuccess()
		slot.present = true
	}
	slot.refs++
	channel := slot.channel
	success := slot.success
	slot.mu.Unlock()

	return &CountedItem{
		channel: channel,
		success: success,
		pool:    p,
		slot:    slot,
	}, nil
}

// releaseSlot returns one borrow to its slot, closing the underlying
// connection only once it has been evicted (present == false) and no
// other borrower still holds it.
func (p *dynamicChannelPool) releaseSlot(slot *slotState) {
	slot.mu.Lock()
	slot.refs--
	var toClose Channel
	shouldClose := !slot.present && slot.refs <= 0
	if shouldClose {
		toClose = slot.channel
		slot.channel = Channel{}
	}
	slot.mu.Unlock()

	if shouldClose && toClose.conn != nil {
		_ = toClose.conn.Close()
	}
}

// dropChannel evicts the slot backing item so no later choose() returns it,
// then releases item's own borrow. Already-outstanding CountedItems from
// other callers that share the same (now-evicted) slot remain usable until
// they too are released.
func (p *dynamicChannelPool) dropChannel(item *CountedItem) {
	if item.slot != nil {
		item.slot.mu.Lock()
		item.slot.present = false
		item.slot.mu.Unlock()
	}
	item.Release()
}

// closeAll tears down every live slot, used when the owning
// TransportChannelPool drops this address's pool entirely. Slots dial to
// independent connections, so one slot failing to close cleanly must not
// stop the others from being torn down; multierr collects every failure
// into a single error instead of short-circuiting on the first one.
func (p *dynamicChannelPool) closeAll() error {
	var err error
	for _, slot := range p.slots {
		slot.mu.Lock()
		ch := slot.channel
		present := slot.present
		slot.present = false
		slot.channel = Channel{}
		slot.mu.Unlock()

		if present && ch.conn != nil {
			err = multierr.Append(err, ch.conn.Close())
		}
	}
	return err
}
