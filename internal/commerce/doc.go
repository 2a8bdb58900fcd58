// Package commerce defines the contracts between the workflow engine and its
// external collaborators: the commerce platform of each store, the
// translation providers and the source store's order feed.
//
// Only data shapes and interfaces live here. The engine depends on these
// interfaces; internal/shopify and internal/translate provide implementations
// and internal/testutil provides in-memory fakes.
package commerce
