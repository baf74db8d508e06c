package chord

import (
	"errors"
	"fmt"

	"github.com/zde37/chordsim/internal/config"
	"github.com/zde37/chordsim/pkg/chord"
	"github.com/zde37/chordsim/pkg/sim"
)

// routeTo starts a ROUTE at this node.
func (n *Node) routeTo(req RequestID, target NodeID, payload string) {
	n.handleRoute(chord.Route{Request: req, Origin: n.id, Target: target, Payload: payload})
}

func (n *Node) handleRoute(p chord.Route) {
	exact := p.Target == n.id
	if exact || n.responsible(p.Target) {
		n.logger.Debug().
			Uint64("target", uint64(p.Target)).
			Int("hops", p.Hops).
			Bool("exact", exact).
			Msg("Route delivered")
		if n.env.onDelivery != nil {
			n.env.onDelivery(Delivery{
				Request: p.Request,
				Origin:  p.Origin,
				Target:  p.Target,
				Node:    n.id,
				Payload: p.Payload,
				Hops:    p.Hops,
				Exact:   exact,
				At:      n.now(),
			})
		}
		n.emit(RingUpdateEvent{
			Type:    EventRouteDelivered,
			Peer:    peerRef(p.Origin),
			Hops:    p.Hops,
			Message: fmt.Sprintf("route for %d delivered at %d after %d hops", p.Target, n.id, p.Hops),
		})
		return
	}

	if p.Hops+1 > n.env.config.Routing.MaxHops {
		n.dropped++
		n.logger.Warn().
			Uint64("target", uint64(p.Target)).
			Uint64("origin", uint64(p.Origin)).
			Int("hops", p.Hops).
			Msg("Dropping route past max hops")
		n.emit(RingUpdateEvent{
			Type:    EventRouteDropped,
			Peer:    peerRef(p.Origin),
			Hops:    p.Hops,
			Message: fmt.Sprintf("route for %d dropped at %d after %d hops", p.Target, n.id, p.Hops),
		})
		return
	}

	p.Hops++
	hop := func() NodeID { return n.router.BestNextHop(n.left, n.right, p.Target) }
	if !n.sendVia(hop, p) {
		n.dropped++
		n.emit(RingUpdateEvent{
			Type:    EventRouteDropped,
			Peer:    peerRef(p.Origin),
			Hops:    p.Hops - 1,
			Message: fmt.Sprintf("route for %d has no reachable next hop at %d", p.Target, n.id),
		})
	}
}

// sendVia sends p to the hop chosen by next. A long link to a peer the
// network no longer knows is forgotten and the next best hop is tried.
func (n *Node) sendVia(next func() NodeID, p chord.Payload) bool {
	for {
		to := next()
		if to == n.id {
			return false
		}
		err := n.send(to, p)
		if err == nil {
			n.forwarded++
			return true
		}
		if !errors.Is(err, sim.ErrUnknownRecipient) || !n.router.Forget(to) {
			return false
		}
	}
}

func (n *Node) handleRoutingInfo(p chord.RoutingInfo) {
	now := n.now()
	for _, peer := range p.Peers {
		n.router.Learn(peer, now)
	}
}

func (n *Node) handleLongLinkRequest(from NodeID, p chord.LongLinkRequest) {
	n.router.AcceptLink(from, n.now())
	_ = n.send(from, chord.LongLinkConfirm{Finger: p.Finger})
}

func (n *Node) handleLongLinkConfirm(from NodeID, p chord.LongLinkConfirm) {
	if p.Finger < 0 {
		n.router.AcceptLink(from, n.now())
	} else {
		n.router.ConfirmFinger(from, p.Finger, n.now())
	}
	n.logger.Debug().
		Uint64("peer", uint64(from)).
		Int("finger", p.Finger).
		Msg("Long link established")
	n.emit(RingUpdateEvent{
		Type:    EventLongLink,
		Peer:    peerRef(from),
		Message: fmt.Sprintf("node %d linked to %d for finger %d", n.id, from, p.Finger),
	})
}

// startMaintenance schedules long-link upkeep for the configured strategy.
func (n *Node) startMaintenance() {
	rc := n.env.config.Routing
	switch rc.Strategy {
	case config.StrategyOracle:
		n.router.ResolveFingers(n.now())
		if rc.RefreshInterval > 0 {
			n.timers = append(n.timers, n.env.sched.Every(sim.Time(rc.RefreshInterval), func() {
				n.router.ResolveFingers(n.now())
			}))
		}
	case config.StrategyGossip:
		n.timers = append(n.timers,
			n.env.sched.After(sim.Time(rc.StabilizeDelay), n.refreshLinks),
			n.env.sched.Every(sim.Time(rc.RefreshInterval), n.refreshLinks),
		)
	}
}

// refreshLinks runs one gossip round: prune stale entries, share known peers
// with both neighbours and request links for fingers that need them.
func (n *Node) refreshLinks() {
	if n.state != StateActive {
		return
	}
	now := n.now()
	n.router.Prune(now)

	peers := append(n.router.KnownPeers(), n.id)
	for _, to := range n.neighbours() {
		_ = n.send(to, chord.RoutingInfo{Peers: peers})
	}

	for _, req := range n.router.PlanLinks(now) {
		err := n.send(req.peer, chord.LongLinkRequest{Finger: req.finger})
		if errors.Is(err, sim.ErrUnknownRecipient) {
			n.router.Forget(req.peer)
		}
	}
}
