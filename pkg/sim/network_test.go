package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mb  *Mailbox[int]
	got []int
	at  []Time
}

func register(t *testing.T, net *Network[int], s *Scheduler, addr Address) *recorder {
	t.Helper()
	r := &recorder{}
	mb, err := net.Register(addr, func() {
		for {
			msg, ok := r.mb.Pop()
			if !ok {
				return
			}
			r.got = append(r.got, msg)
			r.at = append(r.at, s.Now())
		}
	})
	require.NoError(t, err)
	r.mb = mb
	return r
}

func TestNetwork_PerPairFIFO(t *testing.T) {
	tests := []struct {
		name    string
		latency Latency
		seed    int64
	}{
		{name: "fixed latency", latency: Latency{Base: 3}},
		{name: "jitter seed 1", latency: Latency{Base: 1, Jitter: 20}, seed: 1},
		{name: "jitter seed 42", latency: Latency{Base: 2, Jitter: 50}, seed: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler()
			net := NewNetwork[int](s, tt.latency, tt.seed)
			register(t, net, s, 1)
			dst := register(t, net, s, 2)

			want := make([]int, 0, 100)
			for i := 0; i < 100; i++ {
				require.NoError(t, net.Send(1, 2, i))
				want = append(want, i)
				if i%10 == 0 {
					s.RunFor(1)
				}
			}
			require.True(t, s.Quiesce(0))

			assert.Equal(t, want, dst.got)
			for i := 1; i < len(dst.at); i++ {
				assert.LessOrEqual(t, dst.at[i-1], dst.at[i])
			}
			assert.Equal(t, NetworkStats{Sent: 100, Delivered: 100}, net.Stats())
		})
	}
}

func TestNetwork_LatencyBounds(t *testing.T) {
	s := NewScheduler()
	net := NewNetwork[int](s, Latency{Base: 5, Jitter: 3}, 7)
	register(t, net, s, 1)

	// One sender per message so the FIFO clamp never applies.
	for i := 0; i < 50; i++ {
		addr := Address(100 + i)
		register(t, net, s, addr)
		require.NoError(t, net.Send(addr, 1, i))
	}
	start := s.Now()
	var times []Time
	for s.Step() {
		times = append(times, s.Now())
	}
	require.Len(t, times, 50)
	for _, at := range times {
		assert.GreaterOrEqual(t, at-start, Time(5))
		assert.LessOrEqual(t, at-start, Time(8))
	}
}

func TestNetwork_ZeroBaseLatency(t *testing.T) {
	s := NewScheduler()
	net := NewNetwork[int](s, Latency{}, 1)
	dst := register(t, net, s, 1)

	require.NoError(t, net.Send(1, 1, 9))
	require.True(t, s.Quiesce(0))
	assert.Equal(t, []Time{1}, dst.at)
}

func TestNetwork_Errors(t *testing.T) {
	s := NewScheduler()
	net := NewNetwork[int](s, Latency{Base: 1}, 1)
	register(t, net, s, 1)

	t.Run("unknown recipient", func(t *testing.T) {
		err := net.Send(1, 99, 0)
		assert.ErrorIs(t, err, ErrUnknownRecipient)
		assert.Zero(t, s.InFlight())
	})

	t.Run("address in use", func(t *testing.T) {
		_, err := net.Register(1, nil)
		assert.ErrorIs(t, err, ErrAddressInUse)
	})

	t.Run("registered", func(t *testing.T) {
		assert.True(t, net.Registered(1))
		assert.False(t, net.Registered(99))
	})
}

func TestNetwork_DropOnDeparture(t *testing.T) {
	s := NewScheduler()
	net := NewNetwork[int](s, Latency{Base: 4}, 1)
	register(t, net, s, 1)
	dst := register(t, net, s, 2)

	var drops []Drop[int]
	net.OnDrop(func(d Drop[int]) { drops = append(drops, d) })

	require.NoError(t, net.Send(1, 2, 7))
	net.Unregister(2)
	require.True(t, s.Quiesce(0))

	assert.Empty(t, dst.got)
	require.Len(t, drops, 1)
	assert.Equal(t, Drop[int]{From: 1, To: 2, Msg: 7, Reason: "recipient departed"}, drops[0])
	assert.Equal(t, uint64(1), net.Stats().Dropped)
}
