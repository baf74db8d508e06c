package sim

import (
	"container/heap"
	"math"
)

// Time is a simulated clock reading in abstract ticks.
type Time uint64

// Forever is a horizon no simulation reaches.
const Forever = Time(math.MaxUint64)

type eventKind uint8

const (
	kindTimer eventKind = iota
	kindDelivery
)

// event is one scheduled action. Events at the same time run in submission
// order (seq), which keeps runs reproducible.
type event struct {
	at       Time
	seq      uint64
	kind     eventKind
	fn       func()
	canceled bool
	index    int
}

type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *eventQueue) Push(x any) {
	ev := x.(*event)
	ev.index = len(*q)
	*q = append(*q, ev)
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	ev.index = -1
	*q = old[:n-1]
	return ev
}

// Scheduler is a single-threaded discrete-event clock. It is not safe for
// concurrent use; every actor runs inside Step.
type Scheduler struct {
	now      Time
	seq      uint64
	queue    eventQueue
	inFlight int
	executed uint64
}

// NewScheduler creates a scheduler with the clock at zero.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Now returns the current simulated time.
func (s *Scheduler) Now() Time {
	return s.now
}

// Pending returns the number of scheduled events, timers included.
func (s *Scheduler) Pending() int {
	return len(s.queue)
}

// InFlight returns the number of message deliveries not yet executed.
func (s *Scheduler) InFlight() int {
	return s.inFlight
}

// Executed returns how many events have run so far.
func (s *Scheduler) Executed() uint64 {
	return s.executed
}

func (s *Scheduler) schedule(at Time, kind eventKind, fn func()) *event {
	if at < s.now {
		at = s.now
	}
	s.seq++
	ev := &event{at: at, seq: s.seq, kind: kind, fn: fn}
	heap.Push(&s.queue, ev)
	if kind == kindDelivery {
		s.inFlight++
	}
	return ev
}

// At schedules fn to run at time t. Times in the past run at Now.
func (s *Scheduler) At(t Time, fn func()) *Timer {
	return &Timer{sched: s, ev: s.schedule(t, kindTimer, fn)}
}

// After schedules fn to run d ticks from now.
func (s *Scheduler) After(d Time, fn func()) *Timer {
	return s.At(s.now+d, fn)
}

// Every runs fn every d ticks, starting d ticks from now, until the returned
// timer is stopped. A zero period is rejected by returning a stopped timer.
func (s *Scheduler) Every(d Time, fn func()) *Timer {
	t := &Timer{sched: s}
	if d == 0 {
		t.stopped = true
		return t
	}
	var tick func()
	tick = func() {
		fn()
		if !t.stopped {
			t.ev = s.schedule(s.now+d, kindTimer, tick)
		}
	}
	t.ev = s.schedule(s.now+d, kindTimer, tick)
	return t
}

// deliver schedules a message delivery; deliveries count toward InFlight.
func (s *Scheduler) deliver(at Time, fn func()) {
	s.schedule(at, kindDelivery, fn)
}

// Step runs the next event. It reports false when the queue is empty.
func (s *Scheduler) Step() bool {
	for len(s.queue) > 0 {
		ev := heap.Pop(&s.queue).(*event)
		if ev.kind == kindDelivery {
			s.inFlight--
		}
		if ev.canceled {
			continue
		}
		s.now = ev.at
		s.executed++
		ev.fn()
		return true
	}
	return false
}

// peek returns the next live event without running it.
func (s *Scheduler) peek() *event {
	for len(s.queue) > 0 {
		ev := s.queue[0]
		if !ev.canceled {
			return ev
		}
		heap.Pop(&s.queue)
		if ev.kind == kindDelivery {
			s.inFlight--
		}
	}
	return nil
}

// RunUntil runs events until done reports true, the queue drains or the next
// event lies beyond horizon. It returns the final value of done.
func (s *Scheduler) RunUntil(done func() bool, horizon Time) bool {
	for {
		if done != nil && done() {
			return true
		}
		ev := s.peek()
		if ev == nil || ev.at > horizon {
			return done != nil && done()
		}
		s.Step()
	}
}

// RunFor runs every event due within the next d ticks and then moves the
// clock to now+d.
func (s *Scheduler) RunFor(d Time) {
	end := s.now + d
	s.RunUntil(nil, end)
	if s.now < end {
		s.now = end
	}
}

// Quiesce runs events until no message delivery is in flight, or until
// maxEvents events have run when maxEvents > 0. Timers scheduled later than
// the last delivery stay pending. It reports whether quiescence was reached.
func (s *Scheduler) Quiesce(maxEvents int) bool {
	ran := 0
	for s.inFlight > 0 {
		if maxEvents > 0 && ran >= maxEvents {
			return false
		}
		if !s.Step() {
			break
		}
		ran++
	}
	return s.inFlight == 0
}

// Timer is a handle to a scheduled action.
type Timer struct {
	sched   *Scheduler
	ev      *event
	stopped bool
}

// Stop cancels the timer. It reports whether the timer was still pending.
func (t *Timer) Stop() bool {
	if t == nil || t.stopped {
		return false
	}
	t.stopped = true
	if t.ev == nil || t.ev.canceled || t.ev.index < 0 {
		return false
	}
	t.ev.canceled = true
	return true
}

// Stopped reports whether Stop has been called.
func (t *Timer) Stopped() bool {
	return t == nil || t.stopped
}
