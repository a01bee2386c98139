// Package index turns a flattened node sequence into embedding vectors and
// an HNSW graph over them.
//
// The Builder embeds nodes concurrently on an ants worker pool. Every result
// is written into the slot matching the node's position, so vectors[i]
// always belongs to nodes[i] regardless of completion order. Blank text maps
// to the zero sentinel vector without a model call.
//
// By default a node that cannot be embedded after retries aborts the build
// with core.ErrEmbeddingFailure. WithSkipFailures switches to storing the
// zero sentinel vector and counting the node in the build summary.
//
// Restore rebuilds the graph from stored vectors using the same graph
// configuration, which yields identical search results.
package index
