// Package ir provides the shared value types for mapsync.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal, which keeps it the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Backing layers and source specs are opaque: the engine passes paint,
//     layout and filter values through without inspecting them
//   - Feature state equality is decided on canonical JSON, never on Go
//     identity, so 1 and 1.0 compare equal
//   - All JSON tags use snake_case
package ir
