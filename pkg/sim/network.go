package sim

import (
	"errors"
	"fmt"
	"math/rand"
)

var (
	// ErrUnknownRecipient is returned when sending to an address with no endpoint.
	ErrUnknownRecipient = errors.New("unknown recipient")

	// ErrAddressInUse is returned when registering an address twice.
	ErrAddressInUse = errors.New("address already registered")
)

// Address identifies an endpoint on the simulated network.
type Address = uint64

// Latency describes message delay: Base ticks plus a uniform jitter in
// [0, Jitter]. Base is clamped to at least one tick so a reply never
// overtakes the request that caused it.
type Latency struct {
	Base   Time
	Jitter Time
}

// Drop describes a message that could not be delivered.
type Drop[M any] struct {
	From   Address
	To     Address
	Msg    M
	Reason string
}

type pair struct {
	from, to Address
}

type endpoint[M any] struct {
	mailbox *Mailbox[M]
	notify  func()
}

// Network delivers messages between registered endpoints through a
// Scheduler. Delivery is reliable and never duplicates; messages between the
// same sender and recipient arrive in send order.
type Network[M any] struct {
	sched     *Scheduler
	latency   Latency
	rng       *rand.Rand
	endpoints map[Address]*endpoint[M]
	last      map[pair]Time
	onDrop    func(Drop[M])
	sent      uint64
	delivered uint64
	dropped   uint64
}

// NewNetwork creates a network driven by sched. The seed makes jitter
// reproducible.
func NewNetwork[M any](sched *Scheduler, latency Latency, seed int64) *Network[M] {
	if latency.Base == 0 {
		latency.Base = 1
	}
	return &Network[M]{
		sched:     sched,
		latency:   latency,
		rng:       rand.New(rand.NewSource(seed)),
		endpoints: make(map[Address]*endpoint[M]),
		last:      make(map[pair]Time),
	}
}

// OnDrop installs a hook called for every message dropped at delivery time.
func (n *Network[M]) OnDrop(fn func(Drop[M])) {
	n.onDrop = fn
}

// Register attaches an endpoint. notify runs after each delivery into the
// returned mailbox.
func (n *Network[M]) Register(addr Address, notify func()) (*Mailbox[M], error) {
	if _, exists := n.endpoints[addr]; exists {
		return nil, fmt.Errorf("register %d: %w", addr, ErrAddressInUse)
	}
	mb := NewMailbox[M]()
	n.endpoints[addr] = &endpoint[M]{mailbox: mb, notify: notify}
	return mb, nil
}

// Unregister detaches an endpoint. Messages still in flight toward it are
// dropped when they arrive.
func (n *Network[M]) Unregister(addr Address) {
	delete(n.endpoints, addr)
	for p := range n.last {
		if p.from == addr || p.to == addr {
			delete(n.last, p)
		}
	}
}

// Registered reports whether addr currently has an endpoint.
func (n *Network[M]) Registered(addr Address) bool {
	_, ok := n.endpoints[addr]
	return ok
}

// Send schedules delivery of msg from one address to another. It fails fast
// when the recipient is not registered at send time.
func (n *Network[M]) Send(from, to Address, msg M) error {
	if _, ok := n.endpoints[to]; !ok {
		return fmt.Errorf("send %d -> %d: %w", from, to, ErrUnknownRecipient)
	}

	delay := n.latency.Base
	if n.latency.Jitter > 0 {
		delay += Time(n.rng.Int63n(int64(n.latency.Jitter) + 1))
	}
	at := n.sched.Now() + delay

	// Per-pair FIFO: never deliver before an earlier message on the same pair.
	// Equal times keep send order through the scheduler's sequence numbers.
	p := pair{from: from, to: to}
	if prev, ok := n.last[p]; ok && prev > at {
		at = prev
	}
	n.last[p] = at
	n.sent++

	n.sched.deliver(at, func() {
		ep, ok := n.endpoints[to]
		if !ok {
			n.dropped++
			if n.onDrop != nil {
				n.onDrop(Drop[M]{From: from, To: to, Msg: msg, Reason: "recipient departed"})
			}
			return
		}
		n.delivered++
		ep.mailbox.Push(msg)
		if ep.notify != nil {
			ep.notify()
		}
	})
	return nil
}

// NetworkStats counts traffic since the network was created.
type NetworkStats struct {
	Sent      uint64 `json:"sent"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
}

// Stats returns traffic counters.
func (n *Network[M]) Stats() NetworkStats {
	return NetworkStats{Sent: n.sent, Delivered: n.delivered, Dropped: n.dropped}
}
