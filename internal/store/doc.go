// Package store provides the SQLite-backed sync journal.
//
// The journal is append-only:
//   - Passes: one row per engine pass (token, logical seq, trigger, abort error)
//   - Mutations: the render-target calls issued by a pass, in issue order
//
// # Invariants
//
// Token idempotency:
//   - Writing a pass whose token is already journaled is a no-op
//   - Writing a different pass under a journaled token is an error
//     (ErrConflictingPass), detected by the mutation fingerprint
//
// Logical time:
//   - All ordering uses seq (the engine's logical clock), never timestamps
//   - Queries order by seq ASC, token ASC COLLATE BINARY
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Fingerprints are computed by ir.Fingerprint over canonical JSON.
package store
