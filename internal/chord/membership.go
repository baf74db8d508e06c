package chord

import (
	"fmt"

	"github.com/zde37/chordsim/internal/config"
	"github.com/zde37/chordsim/pkg"
	"github.com/zde37/chordsim/pkg/chord"
)

// create makes this node the only member of a new ring.
func (n *Node) create() error {
	if n.state != StateDetached {
		return fmt.Errorf("create on %s node %d: %w", n.state, n.id, pkg.ErrInvalidState)
	}
	n.left, n.right = n.id, n.id
	n.becomeActive()
	return nil
}

// join asks bootstrap to place this node. It returns once the request is
// sent; the node becomes active when JOIN_REPLY arrives.
func (n *Node) join(bootstrap NodeID) error {
	if n.state != StateDetached {
		return fmt.Errorf("join on %s node %d: %w", n.state, n.id, pkg.ErrInvalidState)
	}
	if bootstrap == n.id {
		return fmt.Errorf("node %d cannot bootstrap from itself: %w", n.id, pkg.ErrInvalidState)
	}

	n.state = StateJoining
	if err := n.send(bootstrap, chord.JoinRequest{}); err != nil {
		n.state = StateDetached
		return fmt.Errorf("join via %d: %w", bootstrap, err)
	}

	n.logger.Info().Uint64("bootstrap", uint64(bootstrap)).Msg("Joining ring")
	return nil
}

// locate walks right-neighbour links from this node until it finds the
// pair (current, current.right) that newID falls between. The walk visits
// each registered node at most once.
func (n *Node) locate(newID NodeID) (left, right NodeID) {
	space := n.env.space
	cur := n.Record()

	for i := 0; i <= n.env.registry.Len(); i++ {
		if space.IsBetween(uint64(cur.ID), uint64(newID), uint64(cur.Right)) {
			return cur.ID, cur.Right
		}
		next, ok := n.env.registry.Record(cur.Right)
		if !ok {
			n.logger.Warn().
				Uint64("at", uint64(cur.ID)).
				Uint64("missing", uint64(cur.Right)).
				Msg("Join walk reached an unregistered node")
			return cur.ID, cur.Right
		}
		if next.ID == n.id {
			break
		}
		cur = next
	}

	n.logger.Warn().Uint64("joiner", uint64(newID)).Msg("Join walk found no gap, answering as a single-node ring")
	return n.id, n.id
}

func (n *Node) handleJoinRequest(msg chord.Message) {
	if n.state != StateActive {
		n.violation(msg, "join request at inactive node")
		return
	}
	from := msg.Sender

	left, right := n.locate(from)
	n.logger.Debug().
		Uint64("joiner", uint64(from)).
		Uint64("left", uint64(left)).
		Uint64("right", uint64(right)).
		Msg("Placing joining node")

	if err := n.send(from, chord.JoinReply{Left: left, Right: right}); err != nil {
		return
	}
	if n.router.Strategy() == config.StrategyGossip {
		_ = n.send(from, chord.RoutingInfo{Peers: append(n.router.KnownPeers(), n.id)})
	}
}

func (n *Node) handleJoinReply(msg chord.Message, p chord.JoinReply) {
	if n.state != StateJoining {
		n.violation(msg, "join reply while not joining")
		return
	}

	n.left, n.right = p.Left, p.Right
	_ = n.send(p.Left, chord.UpdateRight{Node: n.id})
	_ = n.send(p.Right, chord.UpdateLeft{Node: n.id})
	n.becomeActive()
}

// leave hands this node's data to its right neighbour and relinks its
// neighbours around it.
func (n *Node) leave() error {
	if n.state != StateActive {
		return fmt.Errorf("leave on %s node %d: %w", n.state, n.id, pkg.ErrInvalidState)
	}
	n.state = StateLeaving

	records, err := n.storage.PrimaryRecords(n.ctx)
	if err != nil {
		n.logger.Error().Err(err).Msg("Failed to read primary records before leaving")
	}

	if n.left == n.id && n.right == n.id {
		if len(records) > 0 {
			n.logger.Warn().Int("keys", len(records)).Msg("Last node leaving, data is lost")
		}
	} else {
		_ = n.send(n.left, chord.UpdateRight{Node: n.right})
		_ = n.send(n.right, chord.UpdateLeft{Node: n.left})
		if len(records) > 0 {
			if err := n.send(n.right, chord.TransferData{Records: records}); err == nil {
				n.emit(RingUpdateEvent{
					Type:    EventDataTransfer,
					Peer:    peerRef(n.right),
					Message: fmt.Sprintf("node %d handed %d keys to %d", n.id, len(records), n.right),
				})
			}
		}
	}

	if err := n.storage.DropReplicas(); err != nil {
		n.logger.Error().Err(err).Msg("Failed to drop replicas")
	}

	n.logger.Info().
		Uint64("left", uint64(n.left)).
		Uint64("right", uint64(n.right)).
		Int("transferred", len(records)).
		Msg("Node left ring")
	n.emit(RingUpdateEvent{
		Type:    EventNodeLeave,
		Message: fmt.Sprintf("node %d left, %d and %d are now adjacent", n.id, n.left, n.right),
	})

	n.state = StateDetached
	n.shutdown()
	return nil
}

func (n *Node) handleUpdateLeft(p chord.UpdateLeft) {
	old := n.left
	n.left = p.Node
	n.neighbourChanged("left", old, p.Node)

	// A node now sits between the old left and us: it owns part of our range.
	if old != p.Node && n.env.space.Between(uint64(old), uint64(p.Node), uint64(n.id)) {
		n.migrate(old, p.Node)
	}
	n.replicateAllTo(p.Node)
}

func (n *Node) handleUpdateRight(p chord.UpdateRight) {
	old := n.right
	n.right = p.Node
	n.neighbourChanged("right", old, p.Node)
	n.replicateAllTo(p.Node)
}

func (n *Node) neighbourChanged(side string, old, updated NodeID) {
	n.logger.Debug().
		Str("side", side).
		Uint64("old", uint64(old)).
		Uint64("new", uint64(updated)).
		Msg("Neighbour updated")
	n.emit(RingUpdateEvent{
		Type:    EventNeighborUpdate,
		Peer:    peerRef(updated),
		Message: fmt.Sprintf("%s neighbour of %d changed from %d to %d", side, n.id, old, updated),
	})
	if n.state == StateActive && n.router.Strategy() == config.StrategyOracle {
		n.router.ResolveFingers(n.now())
	}
}
