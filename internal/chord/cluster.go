package chord

import (
	"fmt"

	"github.com/zde37/chordsim/internal/config"
	"github.com/zde37/chordsim/pkg"
	"github.com/zde37/chordsim/pkg/chord"
	"github.com/zde37/chordsim/pkg/hash"
	"github.com/zde37/chordsim/pkg/sim"
)

const (
	// settleLimit bounds the events Settle runs before giving up.
	settleLimit = 1_000_000

	// waitLimit bounds the events a synchronous Put or Get runs.
	waitLimit = 1_000_000
)

// Option configures a Cluster.
type Option func(*Cluster)

// WithKeyHasher replaces the hasher selected by config.KeyHash.
func WithKeyHasher(h hash.KeyHasher) Option {
	return func(c *Cluster) {
		c.hasher = h
	}
}

// WithObserver streams ring events to b.
func WithObserver(b RingUpdateBroadcaster) Option {
	return func(c *Cluster) {
		c.observer = b
	}
}

// WithOracle replaces the registry as the oracle used by the oracle routing
// strategy.
func WithOracle(o Oracle) Option {
	return func(c *Cluster) {
		c.oracle = o
	}
}

// Cluster owns the scheduler, network and registry of one simulated ring and
// exposes the harness API. It is not safe for concurrent use.
type Cluster struct {
	config   *config.Config
	space    *hash.Space
	hasher   hash.KeyHasher
	logger   *pkg.Logger
	sched    *sim.Scheduler
	network  *sim.Network[chord.Message]
	registry *Registry
	oracle   Oracle
	observer RingUpdateBroadcaster
	env      *environment

	nextRequest RequestID
	results     map[RequestID]*Result
	deliveries  []Delivery
}

// NewCluster creates an empty cluster.
func NewCluster(cfg *config.Config, logger *pkg.Logger, opts ...Option) (*Cluster, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	space, err := hash.NewSpace(cfg.M)
	if err != nil {
		return nil, err
	}

	sched := sim.NewScheduler()
	c := &Cluster{
		config:   cfg,
		space:    space,
		sched:    sched,
		registry: NewRegistry(space),
		results:  make(map[RequestID]*Result),
	}
	c.oracle = c.registry
	for _, opt := range opts {
		opt(c)
	}
	if c.hasher == nil {
		if c.hasher, err = hash.NewKeyHasher(cfg.KeyHash, space); err != nil {
			return nil, err
		}
	}

	clocked := logger.WithClock(func() uint64 { return uint64(sched.Now()) })
	c.logger = clocked.Component("cluster")

	c.network = sim.NewNetwork[chord.Message](sched, sim.Latency{
		Base:   sim.Time(cfg.Latency.Base),
		Jitter: sim.Time(cfg.Latency.Jitter),
	}, cfg.Seed)
	c.network.OnDrop(func(d sim.Drop[chord.Message]) {
		c.logger.Warn().
			Uint64("from", d.From).
			Uint64("to", d.To).
			Stringer("kind", d.Msg.Kind).
			Str("reason", d.Reason).
			Msg("Message dropped")
	})

	c.env = &environment{
		space:  space,
		hasher: c.hasher,
		config: cfg,
		logger: clocked,
		sched:  sched,
		transport: chord.TransportFunc(func(msg chord.Message) error {
			return c.network.Send(uint64(msg.Sender), uint64(msg.Recipient), msg)
		}),
		registry:   c.registry,
		oracle:     c.oracle,
		onResult:   c.recordResult,
		onDelivery: c.recordDelivery,
		onEvent:    c.publish,
	}

	c.logger.Info().
		Uint64("m", cfg.M).
		Str("strategy", cfg.Routing.Strategy).
		Int64("seed", cfg.Seed).
		Msg("Cluster created")
	return c, nil
}

func (c *Cluster) recordResult(r Result) {
	c.results[r.Request] = &r
}

func (c *Cluster) recordDelivery(d Delivery) {
	c.deliveries = append(c.deliveries, d)
}

func (c *Cluster) publish(ev RingUpdateEvent) {
	if c.observer == nil {
		return
	}
	if err := c.observer.BroadcastRingUpdate(ev); err != nil {
		c.logger.Warn().Err(err).Str("event", ev.Type).Msg("Failed to broadcast ring update")
	}
}

// Space returns the identifier space.
func (c *Cluster) Space() *hash.Space {
	return c.space
}

// KeyID returns the ring position of key.
func (c *Cluster) KeyID(key string) NodeID {
	return NodeID(c.space.Reduce(c.hasher.Hash(key)))
}

// CreateNode registers a detached node with the given id.
func (c *Cluster) CreateNode(id NodeID) (*Node, error) {
	n := newNode(id, c.env)
	if err := c.registry.Add(n); err != nil {
		return nil, err
	}
	mb, err := c.network.Register(uint64(id), n.deliver)
	if err != nil {
		c.registry.Remove(id)
		return nil, err
	}
	n.mailbox = mb
	return n, nil
}

// node returns the node with id, creating it when absent.
func (c *Cluster) node(id NodeID) (*Node, error) {
	if n, ok := c.registry.Lookup(id); ok {
		return n, nil
	}
	return c.CreateNode(id)
}

func (c *Cluster) lookup(id NodeID) (*Node, error) {
	n, ok := c.registry.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("node %d: %w", id, pkg.ErrNodeNotFound)
	}
	return n, nil
}

func (c *Cluster) active(id NodeID) (*Node, error) {
	n, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	if n.State() != StateActive {
		return nil, fmt.Errorf("node %d is %s: %w", id, n.State(), pkg.ErrInvalidState)
	}
	return n, nil
}

// Create starts a new ring with id as its only member.
func (c *Cluster) Create(id NodeID) error {
	n, err := c.node(id)
	if err != nil {
		return err
	}
	return n.create()
}

// Join asks bootstrap to place id in the ring. It returns once JOIN_REQUEST
// is sent; the node becomes active after Settle.
func (c *Cluster) Join(id, bootstrap NodeID) error {
	if _, err := c.active(bootstrap); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	n, err := c.node(id)
	if err != nil {
		return err
	}
	return n.join(bootstrap)
}

// Leave runs the leave protocol for id and removes it from the cluster.
func (c *Cluster) Leave(id NodeID) error {
	n, err := c.lookup(id)
	if err != nil {
		return err
	}
	if err := n.leave(); err != nil {
		return err
	}
	c.network.Unregister(uint64(id))
	c.registry.Remove(id)
	return nil
}

// SubmitPut starts a PUT at node id without waiting for the reply.
func (c *Cluster) SubmitPut(id NodeID, key, value string) (RequestID, error) {
	n, err := c.active(id)
	if err != nil {
		return 0, err
	}
	req := c.newRequest(ResultPut, id, key)
	n.submitPut(req, key, value)
	return req, nil
}

// SubmitGet starts a GET at node id without waiting for the reply.
func (c *Cluster) SubmitGet(id NodeID, key string) (RequestID, error) {
	n, err := c.active(id)
	if err != nil {
		return 0, err
	}
	req := c.newRequest(ResultGet, id, key)
	n.submitGet(req, key)
	return req, nil
}

func (c *Cluster) newRequest(kind ResultKind, origin NodeID, key string) RequestID {
	c.nextRequest++
	req := c.nextRequest
	c.results[req] = &Result{Request: req, Kind: kind, Origin: origin, Key: key}
	return req
}

// Result returns the state of a submitted request.
func (c *Cluster) Result(req RequestID) (Result, bool) {
	r, ok := c.results[req]
	if !ok {
		return Result{}, false
	}
	return *r, true
}

// Put stores key at the ring through node id and runs the simulation until
// PUT_CONFIRM arrives.
func (c *Cluster) Put(id NodeID, key, value string) error {
	req, err := c.SubmitPut(id, key, value)
	if err != nil {
		return err
	}
	_, err = c.wait(req)
	return err
}

// Get reads key through node id. A missing key is reported as found=false.
func (c *Cluster) Get(id NodeID, key string) (string, bool, error) {
	req, err := c.SubmitGet(id, key)
	if err != nil {
		return "", false, err
	}
	r, err := c.wait(req)
	if err != nil {
		return "", false, err
	}
	return r.Value, r.Found, nil
}

// wait steps the scheduler until req completes. It gives up when no message
// is left in flight.
func (c *Cluster) wait(req RequestID) (Result, error) {
	for i := 0; ; i++ {
		r := c.results[req]
		if r.Done {
			return *r, nil
		}
		if c.sched.InFlight() == 0 || i >= waitLimit {
			return *r, fmt.Errorf("%s %q (request %d): %w", r.Kind, r.Key, req, pkg.ErrRequestLost)
		}
		c.sched.Step()
	}
}

// RouteTo sends payload from node id toward target. Delivery is best effort;
// see Deliveries.
func (c *Cluster) RouteTo(id, target NodeID, payload string) (RequestID, error) {
	if !c.space.Contains(uint64(target)) {
		return 0, fmt.Errorf("target %d (modulus %d): %w", target, c.space.Modulus(), pkg.ErrIDOutOfRange)
	}
	n, err := c.active(id)
	if err != nil {
		return 0, err
	}
	c.nextRequest++
	req := c.nextRequest
	n.routeTo(req, target, payload)
	return req, nil
}

// Deliveries returns every ROUTE delivery so far, in delivery order.
func (c *Cluster) Deliveries() []Delivery {
	out := make([]Delivery, len(c.deliveries))
	copy(out, c.deliveries)
	return out
}

// Delivery returns the delivery of a routed request.
func (c *Cluster) Delivery(req RequestID) (Delivery, bool) {
	for _, d := range c.deliveries {
		if d.Request == req {
			return d, true
		}
	}
	return Delivery{}, false
}

// Inspect returns a snapshot of node id.
func (c *Cluster) Inspect(id NodeID) (Snapshot, error) {
	n, err := c.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	return n.Snapshot(), nil
}

// Node returns the handle for id.
func (c *Cluster) Node(id NodeID) (*Node, bool) {
	return c.registry.Lookup(id)
}

// Nodes returns every registered id in ascending order.
func (c *Cluster) Nodes() []NodeID {
	return c.registry.IDs()
}

// Ring follows right neighbours from start until it returns to start, hits
// an unknown node or has visited more nodes than are registered.
func (c *Cluster) Ring(start NodeID) []NodeID {
	cur, ok := c.registry.Record(start)
	if !ok {
		return nil
	}
	ring := []NodeID{start}
	for len(ring) <= c.registry.Len() {
		if cur.Right == start {
			return ring
		}
		next, ok := c.registry.Record(cur.Right)
		if !ok {
			return ring
		}
		ring = append(ring, next.ID)
		cur = next
	}
	return ring
}

// VerifyRing checks that the active nodes form one closed ring in id order
// with mutually consistent neighbour pointers.
func (c *Cluster) VerifyRing() error {
	ids := c.registry.ActiveIDs()
	for i, id := range ids {
		rec, _ := c.registry.Record(id)
		want := ids[(i+1)%len(ids)]
		if rec.Right != want {
			return fmt.Errorf("node %d has right %d, want %d: %w", id, rec.Right, want, pkg.ErrRingCorrupted)
		}
		next, ok := c.registry.Record(rec.Right)
		if !ok {
			return fmt.Errorf("node %d points at missing node %d: %w", id, rec.Right, pkg.ErrRingCorrupted)
		}
		if next.Left != id {
			return fmt.Errorf("node %d has left %d, want %d: %w", next.ID, next.Left, id, pkg.ErrRingCorrupted)
		}
	}
	return nil
}

// Settle runs the simulation until no message is in flight. Pending timers
// stay scheduled.
func (c *Cluster) Settle() error {
	if !c.sched.Quiesce(settleLimit) {
		return fmt.Errorf("%d messages in flight after %d events: %w",
			c.sched.InFlight(), settleLimit, pkg.ErrNotSettled)
	}
	return nil
}

// Advance runs every event due in the next d ticks, timers included.
func (c *Cluster) Advance(d sim.Time) {
	c.sched.RunFor(d)
}

// Now returns the simulated clock.
func (c *Cluster) Now() sim.Time {
	return c.sched.Now()
}

// NetworkStats returns message counters.
func (c *Cluster) NetworkStats() sim.NetworkStats {
	return c.network.Stats()
}

// Snapshot returns a whole-cluster view.
func (c *Cluster) Snapshot() ClusterSnapshot {
	snap := ClusterSnapshot{
		Time:    c.sched.Now(),
		Network: c.network.Stats(),
	}
	if ids := c.registry.ActiveIDs(); len(ids) > 0 {
		snap.Ring = c.Ring(ids[0])
	}
	for _, id := range c.registry.IDs() {
		n, _ := c.registry.Lookup(id)
		snap.Nodes = append(snap.Nodes, n.Snapshot())
	}
	return snap
}

// Close stops every node's timers and releases its storage.
func (c *Cluster) Close() {
	for _, id := range c.registry.IDs() {
		n, _ := c.registry.Lookup(id)
		n.state = StateDetached
		n.shutdown()
		c.network.Unregister(uint64(id))
		c.registry.Remove(id)
	}
	c.logger.Info().Msg("Cluster closed")
}
