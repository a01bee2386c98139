package index

import "github.com/poiesic/lexsearch/core"

// Outcome describes how a node received its vector.
type Outcome int

const (
	// OutcomeEmbedded means the model embedded the node's text.
	OutcomeEmbedded Outcome = iota
	// OutcomeReused means the node's existing embedding was taken under
	// WithReuseEmbeddings.
	OutcomeReused
	// OutcomeEmpty means the node had blank text and got the zero sentinel vector.
	OutcomeEmpty
	// OutcomeSkipped means embedding failed and the node got the zero sentinel vector.
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEmbedded:
		return "embedded"
	case OutcomeReused:
		return "reused"
	case OutcomeEmpty:
		return "empty"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Observer receives build progress. NodeDone is called from pool workers
// and must be safe for concurrent use.
type Observer interface {
	BuildStarted(total int)
	NodeDone(position int, node *core.Node, outcome Outcome)
	BuildFinished(summary core.BuildSummary)
}

type noopObserver struct{}

func (noopObserver) BuildStarted(int)                  {}
func (noopObserver) NodeDone(int, *core.Node, Outcome) {}
func (noopObserver) BuildFinished(core.BuildSummary)   {}
