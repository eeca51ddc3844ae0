package sim

import (
	"hash/fnv"
	"math/rand"
)

// === Subsystem Constants ===

const (
	// SubsystemArrival is the RNG subsystem for the arrival process.
	// Uses the master seed directly.
	SubsystemArrival = "arrival"

	// SubsystemRouter is the RNG subsystem for randomized selection policies.
	SubsystemRouter = "router"
)

// SubsystemServer returns the subsystem name for a server's processing-time draws.
func SubsystemServer(id string) string {
	return "server_" + id
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem,
// so adding a server or switching policy does not perturb the arrival stream.
//
// Derivation formula:
//   - SubsystemArrival: masterSeed
//   - all other subsystems: masterSeed XOR fnv1a64(subsystemName)
//
// Thread-safety: NOT thread-safe. Owned by one Simulator.
type PartitionedRNG struct {
	seed       int64
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a master seed.
func NewPartitionedRNG(seed int64) *PartitionedRNG {
	return &PartitionedRNG{
		seed:       seed,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same name always returns the same *rand.Rand instance. Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}

	derivedSeed := p.seed
	if name != SubsystemArrival {
		derivedSeed = p.seed ^ fnv1a64(name)
	}

	rng := rand.New(rand.NewSource(derivedSeed))
	p.subsystems[name] = rng
	return rng
}

// Seed returns the master seed.
func (p *PartitionedRNG) Seed() int64 {
	return p.seed
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
