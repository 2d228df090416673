// Package harness provides conformance testing for skiff's convergence
// guarantees.
//
// The harness loads multi-peer scenarios, executes write/delete/sync/
// compact steps against one workspace per peer, and verifies that every
// peer converges to the same final state.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	peers: [a, b]
//	steps:
//	  - peer: a
//	    set: { table: posts, row: { id: p1, title: "Hi" } }
//	  - peer: b
//	    delete: { table: posts, id: p2 }
//	  - sync: { from: a, to: b }
//	  - compact: { peer: b }
//	expect:
//	  tables:
//	    posts:
//	      p1: { status: valid, row: { id: p1, title: "Hi", views: 0 } }
//	      p2: { status: not_found }
//
// Table definitions (validators and migrations are code, not data) are
// supplied by the test that runs the scenario.
//
// # Deterministic Testing
//
// Peers use their names as fixed actor identifiers, so conflict
// resolution - and therefore the final converged state - is identical
// across runs. Final states serialize canonically for golden snapshot
// comparison (go test ./internal/harness -update to regenerate).
package harness
