package chord

// Transport delivers messages between nodes. The node logic depends only on
// this interface so it never reaches into the simulated network directly.
type Transport interface {
	// Send queues msg for delivery to msg.Recipient. It fails when the
	// recipient is not reachable at send time.
	Send(msg Message) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(msg Message) error

// Send calls f(msg).
func (f TransportFunc) Send(msg Message) error {
	return f(msg)
}
