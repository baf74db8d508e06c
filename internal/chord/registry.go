package chord

import (
	"fmt"

	"github.com/zde37/chordsim/pkg"
	"github.com/zde37/chordsim/pkg/hash"
	"golang.org/x/exp/slices"
)

// Oracle resolves ring positions against the true live-node set. It is a
// privileged capability for harnesses and tests.
type Oracle interface {
	// Successor returns the first active node at or after id.
	Successor(id NodeID) (NodeID, bool)
}

// OracleFunc adapts a function to Oracle.
type OracleFunc func(id NodeID) (NodeID, bool)

// Successor calls f(id).
func (f OracleFunc) Successor(id NodeID) (NodeID, bool) {
	return f(id)
}

// Registry owns every node of a cluster, keyed by id.
type Registry struct {
	space *hash.Space
	nodes map[NodeID]*Node
}

// NewRegistry creates an empty registry over space.
func NewRegistry(space *hash.Space) *Registry {
	return &Registry{
		space: space,
		nodes: make(map[NodeID]*Node),
	}
}

// Add registers n. Ids must be unique and inside the identifier space.
func (r *Registry) Add(n *Node) error {
	if !r.space.Contains(uint64(n.id)) {
		return fmt.Errorf("node %d (modulus %d): %w", n.id, r.space.Modulus(), pkg.ErrIDOutOfRange)
	}
	if _, exists := r.nodes[n.id]; exists {
		return fmt.Errorf("node %d: %w", n.id, pkg.ErrNodeExists)
	}
	r.nodes[n.id] = n
	return nil
}

// Remove drops the node with the given id.
func (r *Registry) Remove(id NodeID) {
	delete(r.nodes, id)
}

// Lookup returns the node with the given id.
func (r *Registry) Lookup(id NodeID) (*Node, bool) {
	n, ok := r.nodes[id]
	return n, ok
}

// Record returns the adjacency of the node with the given id.
func (r *Registry) Record(id NodeID) (NodeRecord, bool) {
	n, ok := r.nodes[id]
	if !ok {
		return NodeRecord{}, false
	}
	return n.Record(), true
}

// Len returns the number of registered nodes.
func (r *Registry) Len() int {
	return len(r.nodes)
}

// IDs returns all registered ids in ascending order.
func (r *Registry) IDs() []NodeID {
	ids := make([]NodeID, 0, len(r.nodes))
	for id := range r.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ActiveIDs returns the ids of active nodes in ascending order.
func (r *Registry) ActiveIDs() []NodeID {
	ids := make([]NodeID, 0, len(r.nodes))
	for id, n := range r.nodes {
		if n.State() == StateActive {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Successor implements Oracle over the active nodes.
func (r *Registry) Successor(id NodeID) (NodeID, bool) {
	return successorOf(r.ActiveIDs(), id)
}

// successorOf returns the first id in sorted at or after id, wrapping around.
func successorOf(sorted []NodeID, id NodeID) (NodeID, bool) {
	if len(sorted) == 0 {
		return 0, false
	}
	i, _ := slices.BinarySearch(sorted, id)
	if i == len(sorted) {
		return sorted[0], true
	}
	return sorted[i], true
}
