package sim

// Mailbox is an unbounded FIFO queue of messages owned by one actor.
// Any sender may push; only the owner pops.
type Mailbox[M any] struct {
	items []M
}

// NewMailbox creates an empty mailbox.
func NewMailbox[M any]() *Mailbox[M] {
	return &Mailbox[M]{}
}

// Push appends msg at the tail.
func (m *Mailbox[M]) Push(msg M) {
	m.items = append(m.items, msg)
}

// Pop removes and returns the head message.
func (m *Mailbox[M]) Pop() (M, bool) {
	var zero M
	if len(m.items) == 0 {
		return zero, false
	}
	msg := m.items[0]
	m.items[0] = zero
	m.items = m.items[1:]
	return msg, true
}

// TakeFirst removes and returns the oldest message accepted by match,
// leaving every other message in place and in order. It is the selective
// receive used by actors waiting for one specific reply.
func (m *Mailbox[M]) TakeFirst(match func(M) bool) (M, bool) {
	var zero M
	for i, msg := range m.items {
		if match(msg) {
			copy(m.items[i:], m.items[i+1:])
			m.items[len(m.items)-1] = zero
			m.items = m.items[:len(m.items)-1]
			return msg, true
		}
	}
	return zero, false
}

// Len returns the number of queued messages.
func (m *Mailbox[M]) Len() int {
	return len(m.items)
}

// Drain removes and returns every queued message in order.
func (m *Mailbox[M]) Drain() []M {
	items := m.items
	m.items = nil
	return items
}
