// Package ingestion populates a document tree from a document source.
//
// The Ingester fetches documents concurrently on an ants worker pool, one
// window of identifiers at a time, and then adds the fetched documents to the
// tree sequentially in identifier list order. The resulting tree, and with it
// the flattened node order, depends only on the identifier list and the
// source contents, never on fetch timing.
//
// Identifiers the source has no document for are skipped and counted as
// absent. Fetch errors are logged, counted as failed and skipped. Malformed
// or duplicate identifiers abort ingestion unless WithSkipInvalid is set.
package ingestion
