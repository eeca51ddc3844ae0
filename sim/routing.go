package sim

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Selection policy names.
const (
	PolicyRoundRobin         = "round_robin"
	PolicyLeastConnections   = "least_connections"
	PolicyRandom             = "random"
	PolicyWeightedRoundRobin = "weighted_round_robin"
	PolicyConsistentHash     = "consistent_hash"
)

// ValidSelectionPolicies is the set of recognized selection policy names.
// Shared by Config.Validate and NewSelectionPolicy.
var ValidSelectionPolicies = map[string]bool{
	PolicyRoundRobin:         true,
	PolicyLeastConnections:   true,
	PolicyRandom:             true,
	PolicyWeightedRoundRobin: true,
	PolicyConsistentHash:     true,
}

// SelectionPolicy decides which server should receive a request.
// Implementations only read the pool; admission control is the caller's job,
// so a returned server may be at capacity. A nil result means no server.
type SelectionPolicy interface {
	Select(req Request, pool []*Server) *Server
	Name() string
}

// healthyServers filters the pool to healthy servers, preserving pool order.
func healthyServers(pool []*Server) []*Server {
	healthy := make([]*Server, 0, len(pool))
	for _, s := range pool {
		if s.Healthy {
			healthy = append(healthy, s)
		}
	}
	return healthy
}

// RoundRobin rotates across healthy servers with a cursor shared across calls.
type RoundRobin struct {
	cursor int
}

// Select implements SelectionPolicy for RoundRobin.
func (rr *RoundRobin) Select(_ Request, pool []*Server) *Server {
	healthy := healthyServers(pool)
	if len(healthy) == 0 {
		return nil
	}
	target := healthy[rr.cursor%len(healthy)]
	rr.cursor++
	return target
}

func (rr *RoundRobin) Name() string { return PolicyRoundRobin }

// LeastConnections picks the healthy server with the fewest in-flight requests.
// Ties are broken by first occurrence in pool order.
type LeastConnections struct{}

// Select implements SelectionPolicy for LeastConnections.
func (lc *LeastConnections) Select(_ Request, pool []*Server) *Server {
	var target *Server
	for _, s := range pool {
		if !s.Healthy {
			continue
		}
		if target == nil || s.Load() < target.Load() {
			target = s
		}
	}
	return target
}

func (lc *LeastConnections) Name() string { return PolicyLeastConnections }

// Random picks a healthy server uniformly at random.
type Random struct {
	rng *rand.Rand
}

// Select implements SelectionPolicy for Random.
func (r *Random) Select(_ Request, pool []*Server) *Server {
	healthy := healthyServers(pool)
	if len(healthy) == 0 {
		return nil
	}
	return healthy[r.rng.Intn(len(healthy))]
}

func (r *Random) Name() string { return PolicyRandom }

// WeightedRoundRobin is nginx's smooth weighted round robin: every call adds
// each healthy server's weight to its running score, picks the highest score
// (first in pool order on ties) and subtracts the total weight from the winner.
type WeightedRoundRobin struct {
	current map[string]int
}

// Select implements SelectionPolicy for WeightedRoundRobin.
func (w *WeightedRoundRobin) Select(_ Request, pool []*Server) *Server {
	var (
		best  *Server
		total int
	)
	for _, s := range pool {
		if !s.Healthy {
			continue
		}
		w.current[s.ID] += s.Weight
		total += s.Weight
		if best == nil || w.current[s.ID] > w.current[best.ID] {
			best = s
		}
	}
	if best == nil {
		return nil
	}
	w.current[best.ID] -= total
	return best
}

func (w *WeightedRoundRobin) Name() string { return PolicyWeightedRoundRobin }

// virtualNodesPerWeight is the number of ring points per unit of server weight.
const virtualNodesPerWeight = 64

type ringNode struct {
	hash   uint64
	server *Server
}

// ConsistentHash maps request ids onto a hash ring of virtual server nodes.
// A request goes to the first healthy node clockwise from its hash, so taking
// one server down only moves that server's share of requests.
// The ring is built from the pool on first use; the pool is fixed for a run.
type ConsistentHash struct {
	ring []ringNode
}

func (ch *ConsistentHash) build(pool []*Server) {
	ch.ring = ch.ring[:0]
	var buf [8]byte
	h := xxhash.New()
	for _, s := range pool {
		for i := 0; i < s.Weight*virtualNodesPerWeight; i++ {
			h.Reset()
			_, _ = h.WriteString(s.ID)
			binary.BigEndian.PutUint64(buf[:], uint64(i))
			_, _ = h.Write(buf[:])
			ch.ring = append(ch.ring, ringNode{hash: h.Sum64(), server: s})
		}
	}
	sort.Slice(ch.ring, func(i, j int) bool { return ch.ring[i].hash < ch.ring[j].hash })
}

// Select implements SelectionPolicy for ConsistentHash.
func (ch *ConsistentHash) Select(req Request, pool []*Server) *Server {
	if len(ch.ring) == 0 {
		ch.build(pool)
	}
	if len(ch.ring) == 0 {
		return nil
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(req.ID))
	key := xxhash.Sum64(buf[:])
	start := sort.Search(len(ch.ring), func(i int) bool { return ch.ring[i].hash >= key })
	for i := 0; i < len(ch.ring); i++ {
		node := ch.ring[(start+i)%len(ch.ring)]
		if node.server.Healthy {
			return node.server
		}
	}
	return nil
}

func (ch *ConsistentHash) Name() string { return PolicyConsistentHash }

// NewSelectionPolicy creates a selection policy by name.
// rng is used only by randomized policies.
// Panics on unrecognized names; Config.Validate rejects them first.
func NewSelectionPolicy(name string, rng *rand.Rand) SelectionPolicy {
	if !ValidSelectionPolicies[name] {
		panic(fmt.Sprintf("unknown selection policy %q", name))
	}
	switch name {
	case PolicyRoundRobin:
		return &RoundRobin{}
	case PolicyLeastConnections:
		return &LeastConnections{}
	case PolicyRandom:
		if rng == nil {
			panic("NewSelectionPolicy: random policy requires an rng")
		}
		return &Random{rng: rng}
	case PolicyWeightedRoundRobin:
		return &WeightedRoundRobin{current: make(map[string]int)}
	case PolicyConsistentHash:
		return &ConsistentHash{}
	default:
		panic(fmt.Sprintf("unhandled selection policy %q", name))
	}
}
