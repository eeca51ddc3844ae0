// Package sim provides the discrete-event engine for simulating request
// dispatch across a pool of backend servers behind a load balancer.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - event.go: Event kinds (arrival, completion, health check) and their payloads
//   - event_queue.go: the time-ordered scheduler with FIFO tie-breaking
//   - simulator.go: the run loop, admission control and completion bookkeeping
//
// # Architecture
//
// A Simulator owns everything for one run: the server pool (server.go), the
// selection policy (routing.go), the arrival process (arrival.go), the
// per-server processing-time samplers (distribution.go) and the statistics
// (metrics.go). Randomness comes from a PartitionedRNG (rng.go) so the arrival
// stream, each server's service times and randomized policies draw from
// isolated, seed-derived streams.
//
// # Key Interfaces
//
//   - SelectionPolicy: choose a server for a request (round_robin,
//     least_connections, random, weighted_round_robin, consistent_hash)
//   - GapSampler: inter-arrival gaps (poisson, gamma, weibull)
//   - ProcessingTimeSampler: per-request service times
//
// Requests that find no healthy server, or whose chosen server is at
// capacity, are dropped; there is no backlog queue.
//
// Sub-package sim/trace records per-request dispatch decisions.
package sim
