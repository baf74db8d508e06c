package chord

import (
	"math"

	"github.com/zde37/chordsim/internal/config"
	"github.com/zde37/chordsim/pkg/hash"
	"github.com/zde37/chordsim/pkg/sim"
	"golang.org/x/exp/slices"
)

// linkRequest is a LONG_LINK_REQUEST the gossip strategy wants to send.
type linkRequest struct {
	peer   NodeID
	finger int
}

// Router holds a node's long-link table and picks next hops.
type Router struct {
	self     NodeID
	space    *hash.Space
	strategy string
	ttl      sim.Time
	maxLinks int
	oracle   Oracle

	// finger[i] points at the successor of (self + 2^i) mod M
	fingers map[int]LongLink
	// explicit peer links accepted through the handshake
	links map[NodeID]LongLink
	// peers learned from traffic and ROUTING_INFO, with the time last seen
	known map[NodeID]sim.Time
}

// NewRouter creates an empty table. oracle is only consulted by the oracle
// strategy.
func NewRouter(self NodeID, space *hash.Space, cfg config.RoutingConfig, oracle Oracle) *Router {
	return &Router{
		self:     self,
		space:    space,
		strategy: cfg.Strategy,
		ttl:      sim.Time(cfg.LinkTTL),
		maxLinks: cfg.MaxLinks,
		oracle:   oracle,
		fingers:  make(map[int]LongLink),
		links:    make(map[NodeID]LongLink),
		known:    make(map[NodeID]sim.Time),
	}
}

// Strategy returns the configured routing strategy.
func (r *Router) Strategy() string {
	return r.strategy
}

// Accelerated reports whether long links are in use.
func (r *Router) Accelerated() bool {
	return r.strategy != config.StrategyRing
}

// BestNextHop picks the candidate closest to target without passing it.
// Candidates are both neighbours and every long link; on equal distance a
// long link wins. With no candidate in (self, target] it returns right.
func (r *Router) BestNextHop(left, right, target NodeID) NodeID {
	best := right
	bestDist := uint64(math.MaxUint64)
	bestLong := false

	consider := func(c NodeID, long bool) {
		if c == r.self || !r.space.IsBetween(uint64(r.self), uint64(c), uint64(target)) {
			return
		}
		d := r.space.ForwardDistance(uint64(c), uint64(target))
		if d < bestDist || (d == bestDist && long && !bestLong) {
			best, bestDist, bestLong = c, d, long
		}
	}

	consider(left, false)
	consider(right, false)
	for _, l := range r.fingers {
		consider(l.Peer, true)
	}
	for peer := range r.links {
		consider(peer, true)
	}
	return best
}

// Learn records peer as known at time now. Only the gossip strategy keeps
// a known-peer cache.
func (r *Router) Learn(peer NodeID, now sim.Time) {
	if r.strategy != config.StrategyGossip || peer == r.self {
		return
	}
	r.known[peer] = now
}

// Forget removes peer from every table. It reports whether a long link
// pointed at it.
func (r *Router) Forget(peer NodeID) bool {
	removed := false
	for i, l := range r.fingers {
		if l.Peer == peer {
			delete(r.fingers, i)
			removed = true
		}
	}
	if _, ok := r.links[peer]; ok {
		delete(r.links, peer)
		removed = true
	}
	delete(r.known, peer)
	return removed
}

// ResolveFingers points each finger at the true successor of its target.
func (r *Router) ResolveFingers(now sim.Time) {
	if r.oracle == nil {
		return
	}
	for i := 0; i < r.space.Bits(); i++ {
		target := NodeID(r.space.AddPowerOfTwo(uint64(r.self), i))
		succ, ok := r.oracle.Successor(target)
		if !ok || succ == r.self {
			delete(r.fingers, i)
			continue
		}
		r.fingers[i] = LongLink{Peer: succ, Finger: i, Learned: now}
	}
}

// PlanLinks returns a request for every finger whose best known candidate
// is not already linked, or whose link is past half its TTL. The candidate
// for finger i is the known peer at or after (self + 2^i) mod M.
func (r *Router) PlanLinks(now sim.Time) []linkRequest {
	if len(r.known) == 0 {
		return nil
	}
	peers := r.KnownPeers()

	var out []linkRequest
	for i := 0; i < r.space.Bits(); i++ {
		target := r.space.AddPowerOfTwo(uint64(r.self), i)
		best := peers[0]
		bestDist := r.space.ForwardDistance(target, uint64(best))
		for _, p := range peers[1:] {
			if d := r.space.ForwardDistance(target, uint64(p)); d < bestDist {
				best, bestDist = p, d
			}
		}
		if cur, ok := r.fingers[i]; ok && cur.Peer == best && (r.ttl == 0 || now-cur.Learned <= r.ttl/2) {
			continue
		}
		out = append(out, linkRequest{peer: best, finger: i})
	}
	return out
}

// ConfirmFinger installs peer as finger i.
func (r *Router) ConfirmFinger(peer NodeID, finger int, now sim.Time) {
	if peer == r.self || finger < 0 || finger >= r.space.Bits() {
		return
	}
	r.fingers[finger] = LongLink{Peer: peer, Finger: finger, Learned: now}
}

// AcceptLink records an explicit link to peer, evicting the oldest link when
// the table is full.
func (r *Router) AcceptLink(peer NodeID, now sim.Time) {
	if peer == r.self {
		return
	}
	r.links[peer] = LongLink{Peer: peer, Finger: -1, Learned: now}
	for r.maxLinks > 0 && len(r.links) > r.maxLinks {
		var oldest *LongLink
		for _, l := range r.links {
			if oldest == nil || l.Learned < oldest.Learned ||
				(l.Learned == oldest.Learned && l.Peer < oldest.Peer) {
				l := l
				oldest = &l
			}
		}
		delete(r.links, oldest.Peer)
	}
}

// Prune drops links and known peers older than the TTL.
func (r *Router) Prune(now sim.Time) {
	if r.ttl == 0 {
		return
	}
	expired := func(at sim.Time) bool { return now > at && now-at > r.ttl }
	for i, l := range r.fingers {
		if expired(l.Learned) {
			delete(r.fingers, i)
		}
	}
	for id, l := range r.links {
		if expired(l.Learned) {
			delete(r.links, id)
		}
	}
	for id, at := range r.known {
		if expired(at) {
			delete(r.known, id)
		}
	}
}

// KnownPeers returns the gossip cache in ascending order.
func (r *Router) KnownPeers() []NodeID {
	peers := make([]NodeID, 0, len(r.known))
	for id := range r.known {
		peers = append(peers, id)
	}
	slices.Sort(peers)
	return peers
}

// Targets returns the distinct peers reachable through long links.
func (r *Router) Targets() []NodeID {
	set := make(map[NodeID]struct{}, len(r.fingers)+len(r.links))
	for _, l := range r.fingers {
		set[l.Peer] = struct{}{}
	}
	for id := range r.links {
		set[id] = struct{}{}
	}
	out := make([]NodeID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Fingers returns a copy of the finger table.
func (r *Router) Fingers() map[int]NodeID {
	out := make(map[int]NodeID, len(r.fingers))
	for i, l := range r.fingers {
		out[i] = l.Peer
	}
	return out
}

// Clear empties every table.
func (r *Router) Clear() {
	clear(r.fingers)
	clear(r.links)
	clear(r.known)
}
