package subscriptions

import (
	"sync"

	"github.com/rzbill/courier/internal/envelope"
)

// batch is one allocated sequence range; envs is nil for an abandoned range.
type batch struct {
	first, last uint64
	envs        []envelope.StoredEnvelope
}

// dispatcher puts ranges back into sequence order and delivers them on a
// single goroutine. enqueue never blocks, so Append latency is independent
// of subscriber speed.
type dispatcher struct {
	reg *Registry

	mu      sync.Mutex
	next    uint64
	pending map[uint64]batch
	ready   []batch
	stopped bool

	signal chan struct{}
	quit   chan struct{}
	exited chan struct{}
}

func newDispatcher(reg *Registry, next uint64) *dispatcher {
	return &dispatcher{
		reg:     reg,
		next:    next,
		pending: make(map[uint64]batch),
		signal:  make(chan struct{}, 1),
		quit:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
}

func (d *dispatcher) enqueue(b batch) {
	d.mu.Lock()
	if d.stopped || b.last < d.next {
		d.mu.Unlock()
		return
	}
	d.pending[b.first] = b
	moved := false
	for {
		nb, ok := d.pending[d.next]
		if !ok {
			break
		}
		delete(d.pending, d.next)
		d.next = nb.last + 1
		if nb.envs != nil {
			d.ready = append(d.ready, nb)
			moved = true
		}
	}
	d.mu.Unlock()

	if moved {
		select {
		case d.signal <- struct{}{}:
		default:
		}
	}
}

func (d *dispatcher) run() {
	defer close(d.exited)
	for {
		select {
		case <-d.quit:
			return
		case <-d.signal:
		}
		d.mu.Lock()
		work := d.ready
		d.ready = nil
		d.mu.Unlock()
		for _, b := range work {
			d.reg.deliver(b.envs)
		}
	}
}

// stop halts delivery; ranges not yet delivered are discarded.
func (d *dispatcher) stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.ready = nil
	d.mu.Unlock()
	close(d.quit)
	<-d.exited
}

// backlog returns how many ranges are waiting, for tests and stats.
func (d *dispatcher) backlog() (pending, ready int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending), len(d.ready)
}
