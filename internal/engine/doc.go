// Package engine implements the phase orchestrator.
//
// A run walks the ledger and, for every (product, store) pair that still has
// work, drives it through the fixed phase sequence:
//
//	Discover -> Filter -> Replicate -> Translate -> Finalize -> Archive
//
// The orchestrator keeps no job queue between runs. What to do next is
// derived from the pair's status cell alone, so a crashed or interrupted run
// is resumed by running again:
//
//   - PENDING without a GID: replicate, then translate
//   - PENDING with a GID: verify and price the existing clone, then translate
//   - CLONED: translate
//   - terminal success, ERROR_* and SKIPPED_*: leave alone
//
// Every status write is checked against the transition graph in package
// status before it reaches the ledger.
//
// Products are processed one at a time. An injected guard.InFlight makes an
// overlapping run on the same Orchestrator skip products the first run is
// still working on. Once a run holds a product it re-reads the row and
// decides every pair again, so a pair finished by another run since the
// Filter step is skipped. The guard is process-local; one engine process per
// ledger is a deployment requirement.
//
// Remote mutations are not cancelled once started. Cancellation is observed
// between products and between stores; a started clone or translation runs
// to completion and its status is recorded.
package engine
