package chord

import "github.com/zde37/chordsim/pkg/sim"

// Ring update event types
const (
	EventNodeJoin       = "node_join"
	EventNodeLeave      = "node_leave"
	EventNeighborUpdate = "neighbor_update"
	EventDataTransfer   = "data_transfer"
	EventPutConfirmed   = "put_confirmed"
	EventGetResponse    = "get_response"
	EventRouteDelivered = "route_delivered"
	EventRouteDropped   = "route_dropped"
	EventRequestDropped = "request_dropped"
	EventLongLink       = "long_link"
)

// RingUpdateBroadcaster is an interface for broadcasting ring updates.
// This allows the Cluster to notify external systems (like WebSocket clients)
// when the ring changes without creating circular dependencies.
type RingUpdateBroadcaster interface {
	// BroadcastRingUpdate sends a ring update notification.
	BroadcastRingUpdate(update any) error
}

// BroadcasterFunc adapts a function to RingUpdateBroadcaster.
type BroadcasterFunc func(update any) error

// BroadcastRingUpdate calls f(update).
func (f BroadcasterFunc) BroadcastRingUpdate(update any) error {
	return f(update)
}

// RingUpdateEvent represents a ring change or a completed operation.
type RingUpdateEvent struct {
	Type    string   `json:"type"`
	NodeID  NodeID   `json:"node_id"`
	Peer    *NodeID  `json:"peer,omitempty"`
	Key     string   `json:"key,omitempty"`
	Hops    int      `json:"hops,omitempty"`
	Time    sim.Time `json:"time"`
	Message string   `json:"message"`
}

func peerRef(id NodeID) *NodeID {
	return &id
}
