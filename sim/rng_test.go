package sim

import "testing"

func TestPartitionedRNG_SameSeed_SameStreams(t *testing.T) {
	// GIVEN two PartitionedRNGs with the same seed
	a := NewPartitionedRNG(42)
	b := NewPartitionedRNG(42)

	// WHEN each subsystem draws
	// THEN the sequences are identical
	for _, name := range []string{SubsystemArrival, SubsystemRouter, SubsystemServer("server_0")} {
		for i := 0; i < 100; i++ {
			if x, y := a.ForSubsystem(name).Int63(), b.ForSubsystem(name).Int63(); x != y {
				t.Fatalf("subsystem %s draw %d differs: %d vs %d", name, i, x, y)
			}
		}
	}
}

func TestPartitionedRNG_SubsystemsIsolated(t *testing.T) {
	// GIVEN two RNGs with the same seed
	a := NewPartitionedRNG(7)
	b := NewPartitionedRNG(7)

	// WHEN a draws heavily from a server stream first
	for i := 0; i < 1000; i++ {
		a.ForSubsystem(SubsystemServer("s0")).Float64()
	}

	// THEN the arrival stream is unaffected
	for i := 0; i < 100; i++ {
		if x, y := a.ForSubsystem(SubsystemArrival).Float64(), b.ForSubsystem(SubsystemArrival).Float64(); x != y {
			t.Fatalf("arrival draw %d perturbed by server stream: %v vs %v", i, x, y)
		}
	}
}

func TestPartitionedRNG_ForSubsystem_Cached(t *testing.T) {
	p := NewPartitionedRNG(1)
	if p.ForSubsystem(SubsystemRouter) != p.ForSubsystem(SubsystemRouter) {
		t.Error("ForSubsystem should return the same instance for the same name")
	}
	if p.ForSubsystem(SubsystemServer("a")) == p.ForSubsystem(SubsystemServer("b")) {
		t.Error("different servers should get different RNG instances")
	}
	if p.Seed() != 1 {
		t.Errorf("Seed() = %d, want 1", p.Seed())
	}
}
