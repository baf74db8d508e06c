package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zde37/chordsim/internal/chord"
	"github.com/zde37/chordsim/pkg"
)

type keyValue struct {
	key   string
	value string
}

// scenario is the scripted run: build the ring, store keys, remove nodes and
// read everything back.
type scenario struct {
	nodes  []chord.NodeID
	keys   []keyValue
	leaves []chord.NodeID
}

func parseScenario(nodes, keys, leaves string, m uint64) (scenario, error) {
	var sc scenario
	var err error

	if sc.nodes, err = parseIDs(nodes, m); err != nil {
		return sc, fmt.Errorf("nodes: %w", err)
	}
	if len(sc.nodes) == 0 {
		return sc, fmt.Errorf("nodes: at least one node is required")
	}
	if sc.keys, err = parseKeys(keys); err != nil {
		return sc, fmt.Errorf("keys: %w", err)
	}
	if sc.leaves, err = parseIDs(leaves, m); err != nil {
		return sc, fmt.Errorf("leave: %w", err)
	}

	members := make(map[chord.NodeID]bool, len(sc.nodes))
	for _, id := range sc.nodes {
		if members[id] {
			return sc, fmt.Errorf("nodes: duplicate id %d", id)
		}
		members[id] = true
	}
	for _, id := range sc.leaves {
		if !members[id] {
			return sc, fmt.Errorf("leave: %d is not a ring member", id)
		}
		delete(members, id)
	}
	if len(members) == 0 && len(sc.keys) > 0 {
		return sc, fmt.Errorf("leave: every node leaves, nothing left to read keys from")
	}
	return sc, nil
}

func parseIDs(s string, m uint64) ([]chord.NodeID, error) {
	var ids []chord.NodeID
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		id, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", field)
		}
		if id >= m {
			return nil, fmt.Errorf("id %d: %w", id, pkg.ErrIDOutOfRange)
		}
		ids = append(ids, chord.NodeID(id))
	}
	return ids, nil
}

func parseKeys(s string) ([]keyValue, error) {
	var out []keyValue
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		key, value, ok := strings.Cut(field, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", field)
		}
		out = append(out, keyValue{key: key, value: value})
	}
	return out, nil
}

// runScenario drives the cluster through sc. publish, when set, receives a
// snapshot after every phase.
func runScenario(c *chord.Cluster, sc scenario, logger *pkg.Logger, publish func(chord.ClusterSnapshot)) error {
	phase := func(name string) error {
		if err := c.Settle(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		snap := c.Snapshot()
		logger.Info().
			Str("phase", name).
			Interface("ring", snap.Ring).
			Uint64("messages", snap.Network.Delivered).
			Msg("Phase complete")
		if publish != nil {
			publish(snap)
		}
		return nil
	}

	bootstrap := sc.nodes[0]
	if err := c.Create(bootstrap); err != nil {
		return fmt.Errorf("create ring at %d: %w", bootstrap, err)
	}
	for _, id := range sc.nodes[1:] {
		if err := c.Join(id, bootstrap); err != nil {
			return fmt.Errorf("join %d: %w", id, err)
		}
		if err := c.Settle(); err != nil {
			return fmt.Errorf("join %d: %w", id, err)
		}
	}
	if err := c.VerifyRing(); err != nil {
		return err
	}
	if err := phase("join"); err != nil {
		return err
	}

	for _, kv := range sc.keys {
		if err := c.Put(bootstrap, kv.key, kv.value); err != nil {
			return fmt.Errorf("put %q: %w", kv.key, err)
		}
		logger.Info().
			Str("key", kv.key).
			Uint64("key_id", uint64(c.KeyID(kv.key))).
			Msg("Stored key")
	}
	if err := phase("put"); err != nil {
		return err
	}

	for _, id := range sc.leaves {
		if err := c.Leave(id); err != nil {
			return fmt.Errorf("leave %d: %w", id, err)
		}
		if err := c.Settle(); err != nil {
			return fmt.Errorf("leave %d: %w", id, err)
		}
	}
	if err := c.VerifyRing(); err != nil {
		return err
	}
	if err := phase("leave"); err != nil {
		return err
	}

	live := c.Nodes()
	if len(live) == 0 {
		return nil
	}
	reader := live[0]
	for _, kv := range sc.keys {
		value, found, err := c.Get(reader, kv.key)
		if err != nil {
			return fmt.Errorf("get %q: %w", kv.key, err)
		}
		if !found || value != kv.value {
			return fmt.Errorf("get %q from %d returned %q (found=%t), want %q: %w",
				kv.key, reader, value, found, kv.value, pkg.ErrKeyNotFound)
		}
		logger.Info().
			Str("key", kv.key).
			Str("value", value).
			Uint64("via", uint64(reader)).
			Msg("Read key")
	}

	total, longest := 0, 0
	for _, target := range live {
		req, err := c.RouteTo(reader, target, "probe")
		if err != nil {
			return err
		}
		if err := c.Settle(); err != nil {
			return err
		}
		d, ok := c.Delivery(req)
		if !ok {
			logger.Warn().Uint64("target", uint64(target)).Msg("Route probe dropped")
			continue
		}
		total += d.Hops
		longest = max(longest, d.Hops)
	}
	logger.Info().
		Int("probes", len(live)).
		Int("total_hops", total).
		Int("max_hops", longest).
		Msg("Routing probes complete")

	return phase("read")
}
