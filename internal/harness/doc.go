// Package harness runs scripted scenarios against an engine driving an
// in-memory render target.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	scene: scenes/parcels.cue        # optional, relative to the scenario file
//	base: [background, water, "Country border", "Country labels"]
//	styles:
//	  openstreetmap: [land, "Disputed border", "Place labels"]
//	steps:
//	  - do: load
//	  - do: register_group
//	    id: base
//	    above: $background
//	  - do: ensure_layer
//	    id: parcels-fill
//	    type: fill
//	    source: parcels
//	    group: base
//	  - do: advance
//	assertions:
//	  - type: layer_order
//	    layers: [background, water, "Country border", parcels-fill, "Country labels"]
//	  - type: call_count
//	    op: add_layer
//	    count: 1
//	  - type: expr
//	    expr: 'pos("parcels-fill") > pos("Country border")'
//
// # Assertion Types
//
//   - layer_order: the final target layer ids, exactly
//   - call_order: mutation calls appear in this order (not necessarily adjacent)
//   - call_count: calls with an op (and optionally id) occur exactly N times
//   - pass_count: the journal holds exactly N passes
//   - expr: a boolean expr-lang expression over the final state
//
// # Deterministic Testing
//
// Every scenario runs with a manual scheduler (debounce timers fire only on
// advance steps), sequential pass tokens and a fresh in-memory SQLite
// journal, so the same scenario always produces the same trace.
package harness
