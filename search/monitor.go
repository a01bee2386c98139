package search

import (
	"github.com/poiesic/lexsearch/ann"
	"github.com/poiesic/lexsearch/core"
)

// QueryMonitor provides hooks to observe a query.
// Implement this interface to inspect the query vector and raw graph matches.
type QueryMonitor interface {
	Start(query string, topK int)
	AfterEmbedding(vector []float32)
	AfterSearch(matches []ann.Match)
	Finish(results []core.SearchResult)
}

// noopMonitor is a no-op implementation of QueryMonitor
type noopMonitor struct{}

var _ QueryMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ int)        {}
func (n *noopMonitor) AfterEmbedding(_ []float32)   {}
func (n *noopMonitor) AfterSearch(_ []ann.Match)    {}
func (n *noopMonitor) Finish(_ []core.SearchResult) {}
