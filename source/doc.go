// Package source supplies provision text for identifiers.
//
// A DocumentSource reports an identifier it has no document for as absent
// rather than as an error; ingestion skips absent identifiers and counts
// them. The identifier list file holds one identifier per line.
package source
