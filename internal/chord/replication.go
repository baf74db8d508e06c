package chord

import (
	"fmt"

	"github.com/zde37/chordsim/pkg/chord"
)

// submitPut starts a PUT at this node on behalf of a client.
func (n *Node) submitPut(req RequestID, key, value string) {
	n.handlePut(chord.Put{Request: req, Origin: n.id, Key: key, Value: value})
}

// submitGet starts a GET at this node on behalf of a client.
func (n *Node) submitGet(req RequestID, key string) {
	n.handleGet(chord.Get{Request: req, Origin: n.id, Key: key})
}

func (n *Node) handlePut(p chord.Put) {
	keyID := n.storage.KeyID(p.Key)
	if !n.responsible(keyID) {
		n.forward(keyID, p.Hops, "put", p.Key, func(hops int) chord.Payload {
			p.Hops = hops
			return p
		})
		return
	}

	if err := n.storage.SetPrimary(n.ctx, p.Key, p.Value); err != nil {
		n.logger.Error().Err(err).Str("key", p.Key).Msg("Failed to store key")
		return
	}
	n.logger.Debug().
		Str("key", p.Key).
		Uint64("key_id", uint64(keyID)).
		Int("hops", p.Hops).
		Msg("Stored primary")
	n.replicate(chord.Record{Key: p.Key, Value: p.Value})

	confirm := chord.PutConfirm{Request: p.Request, Key: p.Key, Holder: n.id, Hops: p.Hops}
	if p.Origin == n.id {
		n.handlePutConfirm(confirm)
		return
	}
	_ = n.send(p.Origin, confirm)
}

func (n *Node) handleGet(p chord.Get) {
	keyID := n.storage.KeyID(p.Key)
	if !n.responsible(keyID) {
		n.forward(keyID, p.Hops, "get", p.Key, func(hops int) chord.Payload {
			p.Hops = hops
			return p
		})
		return
	}

	resp := chord.GetResponse{Request: p.Request, Key: p.Key, Holder: n.id, Hops: p.Hops}
	rec, found, err := n.storage.Lookup(n.ctx, p.Key)
	if err != nil {
		n.logger.Error().Err(err).Str("key", p.Key).Msg("Failed to read key")
	}
	if found {
		resp.Value, resp.Found = rec.Value, true
	}

	if p.Origin == n.id {
		n.handleGetResponse(resp)
		return
	}
	_ = n.send(p.Origin, resp)
}

func (n *Node) handlePutConfirm(p chord.PutConfirm) {
	if n.env.onResult != nil {
		n.env.onResult(Result{
			Request: p.Request,
			Kind:    ResultPut,
			Origin:  n.id,
			Key:     p.Key,
			Found:   true,
			Holder:  p.Holder,
			Hops:    p.Hops,
			Done:    true,
			At:      n.now(),
		})
	}
	n.emit(RingUpdateEvent{
		Type:    EventPutConfirmed,
		Peer:    peerRef(p.Holder),
		Key:     p.Key,
		Hops:    p.Hops,
		Message: fmt.Sprintf("%q stored at %d after %d hops", p.Key, p.Holder, p.Hops),
	})
}

func (n *Node) handleGetResponse(p chord.GetResponse) {
	if n.env.onResult != nil {
		n.env.onResult(Result{
			Request: p.Request,
			Kind:    ResultGet,
			Origin:  n.id,
			Key:     p.Key,
			Value:   p.Value,
			Found:   p.Found,
			Holder:  p.Holder,
			Hops:    p.Hops,
			Done:    true,
			At:      n.now(),
		})
	}
	n.emit(RingUpdateEvent{
		Type:    EventGetResponse,
		Peer:    peerRef(p.Holder),
		Key:     p.Key,
		Hops:    p.Hops,
		Message: fmt.Sprintf("%q read from %d (found=%t) after %d hops", p.Key, p.Holder, p.Found, p.Hops),
	})
}

// forward passes a PUT or GET toward the owner of keyID. The ring strategy
// always uses the right neighbour; accelerated strategies use the router.
func (n *Node) forward(keyID NodeID, hops int, op, key string, build func(hops int) chord.Payload) {
	next := hops + 1
	if limit := n.env.config.ForwardHopLimit(); next > limit {
		n.dropped++
		n.logger.Warn().
			Str("op", op).
			Str("key", key).
			Int("hops", hops).
			Int("limit", limit).
			Msg("Abandoning request past hop limit")
		n.emit(RingUpdateEvent{
			Type:    EventRequestDropped,
			Key:     key,
			Hops:    hops,
			Message: fmt.Sprintf("%s %q dropped at %d after %d hops", op, key, n.id, hops),
		})
		return
	}

	hop := func() NodeID {
		if !n.router.Accelerated() {
			return n.right
		}
		return n.router.BestNextHop(n.left, n.right, keyID)
	}
	if n.sendVia(hop, build(next)) {
		return
	}
	n.dropped++
	n.emit(RingUpdateEvent{
		Type:    EventRequestDropped,
		Key:     key,
		Hops:    hops,
		Message: fmt.Sprintf("%s %q has no reachable next hop at %d", op, key, n.id),
	})
}

func (n *Node) handleReplicate(p chord.Replicate) {
	if err := n.storage.SetReplica(n.ctx, p.Key, p.Value); err != nil {
		n.logger.Error().Err(err).Str("key", p.Key).Msg("Failed to store replica")
	}
}

func (n *Node) handleTransferData(from NodeID, p chord.TransferData) {
	for _, rec := range p.Records {
		if err := n.storage.SetPrimary(n.ctx, rec.Key, rec.Value); err != nil {
			n.logger.Error().Err(err).Str("key", rec.Key).Msg("Failed to take over key")
			continue
		}
		n.replicate(rec)
	}

	n.logger.Info().
		Uint64("from", uint64(from)).
		Int("keys", len(p.Records)).
		Msg("Took over keys")
	n.emit(RingUpdateEvent{
		Type:    EventDataTransfer,
		Peer:    peerRef(from),
		Message: fmt.Sprintf("node %d took over %d keys from %d", n.id, len(p.Records), from),
	})
}

// migrate hands keys in (oldLeft, newLeft] to the node that joined as our
// new left neighbour. We keep them as replicas since we are its right
// neighbour.
func (n *Node) migrate(oldLeft, newLeft NodeID) {
	moved, err := n.storage.HandOff(n.ctx, oldLeft, newLeft)
	if err != nil {
		n.logger.Error().Err(err).Msg("Failed to hand off keys")
		return
	}
	if len(moved) == 0 {
		return
	}
	if err := n.send(newLeft, chord.TransferData{Records: moved}); err != nil {
		return
	}
	n.logger.Info().
		Uint64("to", uint64(newLeft)).
		Int("keys", len(moved)).
		Msg("Handed keys to new left neighbour")
}

// replicate copies one owned record to both neighbours.
func (n *Node) replicate(rec chord.Record) {
	for _, to := range n.neighbours() {
		_ = n.send(to, chord.Replicate{Key: rec.Key, Value: rec.Value})
	}
}

// replicateAllTo refreshes every owned record at a new neighbour.
func (n *Node) replicateAllTo(to NodeID) {
	if to == n.id {
		return
	}
	records, err := n.storage.PrimaryRecords(n.ctx)
	if err != nil {
		n.logger.Error().Err(err).Msg("Failed to list primaries for replication")
		return
	}
	for _, rec := range records {
		if err := n.send(to, chord.Replicate{Key: rec.Key, Value: rec.Value}); err != nil {
			return
		}
	}
}
