package chord

import (
	"fmt"

	"github.com/zde37/chordsim/pkg/chord"
	"github.com/zde37/chordsim/pkg/sim"
)

// NodeID aliases the ring position type shared with the wire messages.
type NodeID = chord.NodeID

// RequestID aliases the request correlation id.
type RequestID = chord.RequestID

// State is a node's lifecycle position.
type State uint8

const (
	StateDetached State = iota
	StateJoining
	StateActive
	StateLeaving
)

func (s State) String() string {
	switch s {
	case StateDetached:
		return "detached"
	case StateJoining:
		return "joining"
	case StateActive:
		return "active"
	case StateLeaving:
		return "leaving"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// MarshalText renders the state name in JSON snapshots.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	for st := StateDetached; st <= StateLeaving; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown node state %q", text)
}

// NodeRecord is the ring adjacency of one node. Neighbours are ids resolved
// through the Registry.
type NodeRecord struct {
	ID    NodeID `json:"id"`
	Left  NodeID `json:"left"`
	Right NodeID `json:"right"`
}

// LongLink is an advisory routing shortcut. Finger is the finger index the
// link serves, or -1 for an explicit peer link.
type LongLink struct {
	Peer    NodeID   `json:"peer"`
	Finger  int      `json:"finger"`
	Learned sim.Time `json:"learned"`
}

// NodeStats counts a node's traffic and storage activity.
type NodeStats struct {
	Storage   chord.StorageStats `json:"storage"`
	Handled   uint64             `json:"handled"`
	Forwarded uint64             `json:"forwarded"`
	Dropped   uint64             `json:"dropped"`
}

// Snapshot is a read-only view of one node.
type Snapshot struct {
	ID              NodeID         `json:"id"`
	Left            NodeID         `json:"left"`
	Right           NodeID         `json:"right"`
	State           State          `json:"state"`
	PrimaryKeys     []string       `json:"primary_keys"`
	ReplicaKeys     []string       `json:"replica_keys"`
	LongLinkTargets []NodeID       `json:"long_link_targets"`
	Fingers         map[int]NodeID `json:"fingers,omitempty"`
	KnownPeers      []NodeID       `json:"known_peers,omitempty"`
	Stats           NodeStats      `json:"stats"`
}

// ResultKind says which client operation a Result answers.
type ResultKind string

const (
	ResultPut ResultKind = "put"
	ResultGet ResultKind = "get"
)

// Result is the outcome of a PUT or GET submitted through the Cluster.
type Result struct {
	Request RequestID  `json:"request"`
	Kind    ResultKind `json:"kind"`
	Origin  NodeID     `json:"origin"`
	Key     string     `json:"key"`
	Value   string     `json:"value,omitempty"`
	Found   bool       `json:"found"`
	Holder  NodeID     `json:"holder"`
	Hops    int        `json:"hops"`
	Done    bool       `json:"done"`
	At      sim.Time   `json:"at"`
}

// Delivery records a ROUTE payload reaching its destination. Exact is false
// when no node has the target id and the target's successor took it.
type Delivery struct {
	Request RequestID `json:"request"`
	Origin  NodeID    `json:"origin"`
	Target  NodeID    `json:"target"`
	Node    NodeID    `json:"node"`
	Payload string    `json:"payload"`
	Hops    int       `json:"hops"`
	Exact   bool      `json:"exact"`
	At      sim.Time  `json:"at"`
}

// ClusterSnapshot is a whole-ring view.
type ClusterSnapshot struct {
	Time    sim.Time         `json:"time"`
	Ring    []NodeID         `json:"ring"`
	Nodes   []Snapshot       `json:"nodes"`
	Network sim.NetworkStats `json:"network"`
}
