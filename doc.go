// Package aether implements a pattern evolution engine: it matches a live
// operating context against a population of learned behavioral patterns,
// scores confidence, selects the best candidate, and evolves the
// population from observed outcomes.
//
// The engine learns which operating states work for which contexts:
//   - Present a (context, state vector) pair and get back the best
//     matching pattern, or nil when nothing is confident enough
//   - Report whether acting on a pattern helped, and the engine adjusts
//     the pattern's fitness, stability, and adaptability
//   - Patterns that prove themselves get promoted through a lifecycle
//     (EVOLVING -> STABLE -> PROTECTED); erratic ones demote to UNSTABLE
//     and eventually lose their slot in the capacity-bounded population
//
// Key Components:
//
//   - Core: the canonical Pattern entity plus the StateVector, Context,
//     and Metrics value types shared by every package.
//
//   - Store: the capacity-bounded in-memory population with composite
//     score eviction, snapshot reads, and a change feed. A SQLite-backed
//     Archive can mirror every change for audit and warm starts.
//
//   - Matcher: confidence scoring (tag overlap, state-vector proximity,
//     lifecycle bonus) and best-first ranking above a threshold.
//
//   - Evolver: feedback application over a rolling window, RNG-driven
//     state-vector mutation scaled by fitness, and lifecycle transitions.
//
//   - Engine: the Manager façade tying it all together, with a bounded
//     context history log and an asynchronous subscriber feed.
//
// Example usage can be found in the examples directory.
package aether
