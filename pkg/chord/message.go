package chord

import (
	"errors"
	"fmt"
)

// NodeID is a position on the identifier ring.
type NodeID uint64

// RequestID correlates a client request with its reply.
type RequestID uint64

// Kind tags a Message.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindJoinRequest
	KindJoinReply
	KindUpdateLeft
	KindUpdateRight
	KindPut
	KindPutConfirm
	KindGet
	KindGetResponse
	KindReplicate
	KindTransferData
	KindLongLinkRequest
	KindLongLinkConfirm
	KindRoute
	KindRoutingInfo
)

var kindNames = [...]string{
	KindInvalid:         "INVALID",
	KindJoinRequest:     "JOIN_REQUEST",
	KindJoinReply:       "JOIN_REPLY",
	KindUpdateLeft:      "UPDATE_LEFT",
	KindUpdateRight:     "UPDATE_RIGHT",
	KindPut:             "PUT",
	KindPutConfirm:      "PUT_CONFIRM",
	KindGet:             "GET",
	KindGetResponse:     "GET_RESPONSE",
	KindReplicate:       "REPLICATE",
	KindTransferData:    "TRANSFER_DATA",
	KindLongLinkRequest: "LONG_LINK_REQUEST",
	KindLongLinkConfirm: "LONG_LINK_CONFIRM",
	KindRoute:           "ROUTE",
	KindRoutingInfo:     "ROUTING_INFO",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ErrMalformedMessage is returned by Validate for messages whose payload does
// not match their kind.
var ErrMalformedMessage = errors.New("malformed message")

// Payload is implemented by the per-kind message bodies below.
type Payload interface {
	Kind() Kind
}

// Message is the unit exchanged between nodes.
type Message struct {
	Kind      Kind
	Sender    NodeID
	Recipient NodeID
	Payload   Payload
}

// NewMessage builds a message whose kind is taken from the payload.
func NewMessage(sender, recipient NodeID, p Payload) Message {
	m := Message{Sender: sender, Recipient: recipient, Payload: p}
	if p != nil {
		m.Kind = p.Kind()
	}
	return m
}

// Validate checks that the payload is present and matches the kind.
func (m Message) Validate() error {
	if m.Payload == nil {
		return fmt.Errorf("%s without payload: %w", m.Kind, ErrMalformedMessage)
	}
	if got := m.Payload.Kind(); got != m.Kind || got == KindInvalid {
		return fmt.Errorf("%s carrying %s payload: %w", m.Kind, got, ErrMalformedMessage)
	}
	return nil
}

func (m Message) String() string {
	return fmt.Sprintf("%s %d->%d", m.Kind, m.Sender, m.Recipient)
}

// JoinRequest asks the recipient to locate the joining sender's neighbours.
type JoinRequest struct{}

// JoinReply tells a joining node where to sit.
type JoinReply struct {
	Left  NodeID
	Right NodeID
}

// UpdateLeft replaces the recipient's left neighbour.
type UpdateLeft struct {
	Node NodeID
}

// UpdateRight replaces the recipient's right neighbour.
type UpdateRight struct {
	Node NodeID
}

// Put stores a value at the node responsible for Key.
type Put struct {
	Request RequestID
	Origin  NodeID
	Key     string
	Value   string
	Hops    int
}

// PutConfirm acknowledges a Put to its origin.
type PutConfirm struct {
	Request RequestID
	Key     string
	Holder  NodeID
	Hops    int
}

// Get reads a value from the node responsible for Key.
type Get struct {
	Request RequestID
	Origin  NodeID
	Key     string
	Hops    int
}

// GetResponse answers a Get. Found is false when neither the primary nor the
// replica map holds the key.
type GetResponse struct {
	Request RequestID
	Key     string
	Value   string
	Found   bool
	Holder  NodeID
	Hops    int
}

// Replicate stores a copy of a key at a neighbour.
type Replicate struct {
	Key   string
	Value string
}

// TransferData hands primary ownership of records to the recipient.
type TransferData struct {
	Records []Record
}

// LongLinkRequest asks the recipient to become a routing shortcut. Finger is
// the requester's finger index, or -1 for an explicit peer link.
type LongLinkRequest struct {
	Finger int
}

// LongLinkConfirm accepts a LongLinkRequest.
type LongLinkConfirm struct {
	Finger int
}

// Route carries an opaque payload toward a target id.
type Route struct {
	Request RequestID
	Origin  NodeID
	Target  NodeID
	Payload string
	Hops    int
}

// RoutingInfo shares peers the sender knows about.
type RoutingInfo struct {
	Peers []NodeID
}

func (JoinRequest) Kind() Kind     { return KindJoinRequest }
func (JoinReply) Kind() Kind       { return KindJoinReply }
func (UpdateLeft) Kind() Kind      { return KindUpdateLeft }
func (UpdateRight) Kind() Kind     { return KindUpdateRight }
func (Put) Kind() Kind             { return KindPut }
func (PutConfirm) Kind() Kind      { return KindPutConfirm }
func (Get) Kind() Kind             { return KindGet }
func (GetResponse) Kind() Kind     { return KindGetResponse }
func (Replicate) Kind() Kind       { return KindReplicate }
func (TransferData) Kind() Kind    { return KindTransferData }
func (LongLinkRequest) Kind() Kind { return KindLongLinkRequest }
func (LongLinkConfirm) Kind() Kind { return KindLongLinkConfirm }
func (Route) Kind() Kind           { return KindRoute }
func (RoutingInfo) Kind() Kind     { return KindRoutingInfo }
