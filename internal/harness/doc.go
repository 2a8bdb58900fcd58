// Package harness runs end-to-end workflow scenarios.
//
// A scenario seeds a source store, one or more target stores and an
// optional initial ledger, then drives the real orchestrator through a
// sequence of steps. Stores, the translator and the order feed are
// in-memory fakes; the ledger is an in-memory SQLite database.
//
// # Scenario Format
//
//	name: weekly-run
//	description: "Discover, clone and translate one best seller"
//	now: "2024-03-11T09:00:00Z"
//	stores:
//	  - key: store_es
//	    language: es
//	    multiplier: "2"
//	    collection_id: "4411"
//	source:
//	  products:
//	    - id: "1001"
//	      handle: linen-shirt
//	      title: "Brand | Linen Shirt"
//	      variants:
//	        - { id: "50", price: "23.50" }
//	  orders:
//	    - id: "9001"
//	      items:
//	        - { product_id: "1001", title: "Brand | Linen Shirt", quantity: 2 }
//	steps:
//	  - run: { expect: { succeeded: 1 } }
//	  - fail: { target: translator, field: title }
//	  - reset: { product_id: "1001", store: store_es }
//	assertions:
//	  - { type: status, product_id: "1001", store: store_es, expect: DONE_ES }
//	  - { type: archived, product_id: "1001" }
//
// # Assertion Types
//
//   - status: the raw ledger status of a pair, active or archived
//   - archived, not_archived: whether a row moved to the archive sheet
//   - product_count: how many products a target store holds
//   - product: handle, title, tags and variant prices of a pair's clone
//   - collection: membership of the store's configured collection
//
// # Determinism
//
// The clock is fixed per scenario and advances one day after every run.
// Run ids are fixed, retries never sleep and outcome sequence numbers keep
// increasing across runs, so Snapshot output is byte-stable and can be
// compared with golden files.
package harness
