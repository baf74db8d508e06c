package chord

import (
	"context"
	"fmt"

	"github.com/zde37/chordsim/internal/config"
	"github.com/zde37/chordsim/pkg"
	"github.com/zde37/chordsim/pkg/chord"
	"github.com/zde37/chordsim/pkg/hash"
	"github.com/zde37/chordsim/pkg/sim"
)

// environment is what a node shares with the rest of its cluster.
type environment struct {
	space     *hash.Space
	hasher    hash.KeyHasher
	config    *config.Config
	logger    *pkg.Logger
	sched     *sim.Scheduler
	transport chord.Transport
	registry  *Registry
	oracle    Oracle

	onResult   func(Result)
	onDelivery func(Delivery)
	onEvent    func(RingUpdateEvent)
}

// Node is one ring member. All of its methods run on the scheduler's
// goroutine; it is not safe for concurrent use.
type Node struct {
	id  NodeID
	env *environment

	logger  *pkg.Logger
	mailbox *sim.Mailbox[chord.Message]
	storage *chord.ChordStorage
	router  *Router

	state State
	left  NodeID
	right NodeID

	timers []*sim.Timer

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc

	handled   uint64
	forwarded uint64
	dropped   uint64
}

func newNode(id NodeID, env *environment) *Node {
	ctx, cancel := context.WithCancel(context.Background())
	return &Node{
		id:      id,
		env:     env,
		logger:  env.logger.ForNode(uint64(id)),
		storage: chord.NewChordStorage(env.space, env.hasher),
		router:  NewRouter(id, env.space, env.config.Routing, env.oracle),
		state:   StateDetached,
		left:    id,
		right:   id,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// ID returns the node's identifier.
func (n *Node) ID() NodeID {
	return n.id
}

// State returns the lifecycle state.
func (n *Node) State() State {
	return n.state
}

// Left returns the left neighbour id.
func (n *Node) Left() NodeID {
	return n.left
}

// Right returns the right neighbour id.
func (n *Node) Right() NodeID {
	return n.right
}

// Record returns the node's adjacency.
func (n *Node) Record() NodeRecord {
	return NodeRecord{ID: n.id, Left: n.left, Right: n.right}
}

// Snapshot returns a read-only view of the node.
func (n *Node) Snapshot() Snapshot {
	return Snapshot{
		ID:              n.id,
		Left:            n.left,
		Right:           n.right,
		State:           n.state,
		PrimaryKeys:     n.storage.PrimaryKeys(),
		ReplicaKeys:     n.storage.ReplicaKeys(),
		LongLinkTargets: n.router.Targets(),
		Fingers:         n.router.Fingers(),
		KnownPeers:      n.router.KnownPeers(),
		Stats: NodeStats{
			Storage:   n.storage.Stats(),
			Handled:   n.handled,
			Forwarded: n.forwarded,
			Dropped:   n.dropped,
		},
	}
}

func (n *Node) now() sim.Time {
	return n.env.sched.Now()
}

func (n *Node) emit(ev RingUpdateEvent) {
	ev.NodeID = n.id
	ev.Time = n.now()
	if n.env.onEvent != nil {
		n.env.onEvent(ev)
	}
}

// send queues a message to another node.
func (n *Node) send(to NodeID, p chord.Payload) error {
	msg := chord.NewMessage(n.id, to, p)
	if err := n.env.transport.Send(msg); err != nil {
		n.logger.Warn().
			Err(err).
			Stringer("kind", msg.Kind).
			Uint64("to", uint64(to)).
			Msg("Failed to send message")
		return fmt.Errorf("send %s to %d: %w", msg.Kind, to, err)
	}
	return nil
}

// neighbours returns the distinct neighbours other than self.
func (n *Node) neighbours() []NodeID {
	switch {
	case n.left == n.id && n.right == n.id:
		return nil
	case n.left == n.right || n.left == n.id:
		return []NodeID{n.right}
	case n.right == n.id:
		return []NodeID{n.left}
	default:
		return []NodeID{n.left, n.right}
	}
}

func (n *Node) responsible(id NodeID) bool {
	return chord.IsResponsibleFor(n.env.space, n.id, n.left, id)
}

// deliver runs after the network pushes a message into the mailbox. A
// joining node only consumes JOIN_REPLY; everything else waits in the
// mailbox, in order, until the node is active.
func (n *Node) deliver() {
	for {
		var (
			msg chord.Message
			ok  bool
		)
		switch n.state {
		case StateJoining:
			msg, ok = n.mailbox.TakeFirst(func(m chord.Message) bool {
				return m.Kind == chord.KindJoinReply
			})
		case StateDetached:
			for _, m := range n.mailbox.Drain() {
				n.violation(m, "message at detached node")
			}
			return
		default:
			msg, ok = n.mailbox.Pop()
		}
		if !ok {
			return
		}
		n.handle(msg)
	}
}

// handle is the single dispatch point for inbound messages.
func (n *Node) handle(msg chord.Message) {
	if err := msg.Validate(); err != nil {
		n.violation(msg, err.Error())
		return
	}
	n.handled++
	n.router.Learn(msg.Sender, n.now())

	switch p := msg.Payload.(type) {
	case chord.JoinRequest:
		n.handleJoinRequest(msg)
	case chord.JoinReply:
		n.handleJoinReply(msg, p)
	case chord.UpdateLeft:
		n.handleUpdateLeft(p)
	case chord.UpdateRight:
		n.handleUpdateRight(p)
	case chord.Put:
		n.handlePut(p)
	case chord.PutConfirm:
		n.handlePutConfirm(p)
	case chord.Get:
		n.handleGet(p)
	case chord.GetResponse:
		n.handleGetResponse(p)
	case chord.Replicate:
		n.handleReplicate(p)
	case chord.TransferData:
		n.handleTransferData(msg.Sender, p)
	case chord.LongLinkRequest:
		n.handleLongLinkRequest(msg.Sender, p)
	case chord.LongLinkConfirm:
		n.handleLongLinkConfirm(msg.Sender, p)
	case chord.Route:
		n.handleRoute(p)
	case chord.RoutingInfo:
		n.handleRoutingInfo(p)
	default:
		n.violation(msg, "unhandled message kind")
	}
}

// violation logs and drops a message that does not fit the protocol.
func (n *Node) violation(msg chord.Message, reason string) {
	n.dropped++
	n.logger.Warn().
		Stringer("kind", msg.Kind).
		Uint64("from", uint64(msg.Sender)).
		Stringer("state", n.state).
		Str("reason", reason).
		Msg("Dropping message")
}

// becomeActive finishes create or join and starts link maintenance.
func (n *Node) becomeActive() {
	n.state = StateActive
	n.logger.Info().
		Uint64("left", uint64(n.left)).
		Uint64("right", uint64(n.right)).
		Msg("Node active")
	n.emit(RingUpdateEvent{
		Type:    EventNodeJoin,
		Message: fmt.Sprintf("node %d joined between %d and %d", n.id, n.left, n.right),
	})
	n.startMaintenance()
}

// shutdown releases the node after it has left the ring.
func (n *Node) shutdown() {
	for _, t := range n.timers {
		t.Stop()
	}
	n.timers = nil
	n.router.Clear()
	n.cancel()
	if err := n.storage.Close(); err != nil {
		n.logger.Error().Err(err).Msg("Failed to close storage")
	}
}
