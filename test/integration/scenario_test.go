package integration

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zde37/chordsim/internal/api"
	"github.com/zde37/chordsim/internal/chord"
	"github.com/zde37/chordsim/internal/config"
	"github.com/zde37/chordsim/pkg"
	"github.com/zde37/chordsim/pkg/hash"
)

// testLogger keeps test output quiet.
func testLogger(t *testing.T) *pkg.Logger {
	t.Helper()
	lc := pkg.DefaultConfig()
	lc.Level = "error"
	lc.Format = "json"
	logger, err := pkg.New(lc)
	require.NoError(t, err)
	return logger
}

// helloAt37 places "hello" at ring position 37 and hashes every other key
// with SHA-1.
func helloAt37(space *hash.Space) hash.KeyHasher {
	sha := hash.SHA1(space)
	return hash.HasherFunc(func(key string) uint64 {
		if key == "hello" {
			return 37
		}
		return sha.Hash(key)
	})
}

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestScenario_FiveNodeRing(t *testing.T) {
	configs := map[string]string{
		"ring.toml": `
m = 100
seed = 3
[routing]
strategy = "ring"
`,
		"oracle.yaml": `
m: 100
seed: 4
latency:
  base: 2
  jitter: 3
routing:
  strategy: oracle
`,
		"gossip.toml": `
m = 100
[routing]
strategy = "gossip"
refresh_interval = 20
link_ttl = 100
`,
	}

	for name, body := range configs {
		t.Run(name, func(t *testing.T) {
			cfg, err := config.Load(writeConfig(t, name, body))
			require.NoError(t, err)

			c, err := chord.NewCluster(cfg, testLogger(t), chord.WithKeyHasher(helloAt37(hash.MustSpace(cfg.M))))
			require.NoError(t, err)
			defer c.Close()

			require.NoError(t, c.Create(0))
			for _, id := range []chord.NodeID{20, 40, 60, 80} {
				require.NoError(t, c.Join(id, 0))
				require.NoError(t, c.Settle())
			}
			assert.Equal(t, []chord.NodeID{0, 20, 40, 60, 80}, c.Ring(0))
			c.Advance(50)

			require.NoError(t, c.Put(0, "hello", "world"))
			require.NoError(t, c.Settle())

			owner, err := c.Inspect(40)
			require.NoError(t, err)
			assert.Contains(t, owner.PrimaryKeys, "hello")
			for _, id := range []chord.NodeID{20, 60} {
				snap, err := c.Inspect(id)
				require.NoError(t, err)
				assert.Contains(t, snap.ReplicaKeys, "hello")
			}

			require.NoError(t, c.Leave(40))
			require.NoError(t, c.Settle())
			assert.Equal(t, []chord.NodeID{0, 20, 60, 80}, c.Ring(0))
			require.NoError(t, c.VerifyRing())

			heir, err := c.Inspect(60)
			require.NoError(t, err)
			assert.Contains(t, heir.PrimaryKeys, "hello")

			for _, from := range c.Nodes() {
				value, found, err := c.Get(from, "hello")
				require.NoError(t, err)
				assert.True(t, found)
				assert.Equal(t, "world", value, "read via %d", from)
			}
		})
	}
}

func TestScenario_Churn(t *testing.T) {
	for _, strategy := range []string{config.StrategyRing, config.StrategyOracle, config.StrategyGossip} {
		t.Run(strategy, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Routing.Strategy = strategy
			cfg.Routing.MaxHops = 100

			c, err := chord.NewCluster(cfg, testLogger(t))
			require.NoError(t, err)
			defer c.Close()

			rng := rand.New(rand.NewSource(21))
			free := rng.Perm(100)
			take := func() chord.NodeID {
				id := free[0]
				free = free[1:]
				return chord.NodeID(id)
			}

			require.NoError(t, c.Create(take()))
			for i := 0; i < 9; i++ {
				require.NoError(t, c.Join(take(), c.Nodes()[0]))
				require.NoError(t, c.Settle())
			}

			values := make(map[string]string)
			for i := 0; i < 50; i++ {
				key := fmt.Sprintf("user:%d", i)
				values[key] = fmt.Sprintf("profile-%d", i)
				live := c.Nodes()
				require.NoError(t, c.Put(live[rng.Intn(len(live))], key, values[key]))
			}
			require.NoError(t, c.Settle())

			for round := 0; round < 12; round++ {
				live := c.Nodes()
				if round%2 == 0 && len(live) > 3 {
					require.NoError(t, c.Leave(live[rng.Intn(len(live))]))
				} else {
					require.NoError(t, c.Join(take(), live[rng.Intn(len(live))]))
				}
				require.NoError(t, c.Settle())
				c.Advance(25)
				require.NoError(t, c.Settle())
				require.NoError(t, c.VerifyRing(), "round %d", round)

				live = c.Nodes()
				for key, want := range values {
					got, found, err := c.Get(live[rng.Intn(len(live))], key)
					require.NoError(t, err)
					require.True(t, found, "%s in round %d", key, round)
					assert.Equal(t, want, got)
				}
			}

			require.NoError(t, c.Settle())
			stats := c.NetworkStats()
			assert.Equal(t, stats.Sent, stats.Delivered+stats.Dropped)
		})
	}
}

func TestScenario_HTTPObserver(t *testing.T) {
	logger := testLogger(t)
	server, err := api.NewServer(logger)
	require.NoError(t, err)

	hub := server.Hub()
	go hub.Run()
	defer hub.Stop()

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	c, err := chord.NewCluster(config.DefaultConfig(), logger, chord.WithObserver(hub))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Create(10))
	require.NoError(t, c.Join(50, 10))
	require.NoError(t, c.Settle())
	server.Publish(c.Snapshot())

	joined := map[chord.NodeID]bool{}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for len(joined) < 2 {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var ev chord.RingUpdateEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		if ev.Type == chord.EventNodeJoin {
			joined[ev.NodeID] = true
		}
	}
	assert.Equal(t, map[chord.NodeID]bool{10: true, 50: true}, joined)

	resp, err := http.Get(ts.URL + "/api/ring")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap chord.ClusterSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, []chord.NodeID{10, 50}, snap.Ring)
	require.Len(t, snap.Nodes, 2)
	assert.Equal(t, chord.StateActive, snap.Nodes[0].State)
}
