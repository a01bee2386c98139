package ann

// candidate is a node position paired with its similarity to the current query.
type candidate struct {
	pos   int
	score float32
}

// better orders candidates by similarity, breaking ties by lower position.
func better(a, b candidate) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return a.pos < b.pos
}

// bestFirst is a container/heap of candidates with the best on top.
type bestFirst []candidate

func (h bestFirst) Len() int           { return len(h) }
func (h bestFirst) Less(i, j int) bool { return better(h[i], h[j]) }
func (h bestFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *bestFirst) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *bestFirst) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

// worstFirst is a container/heap of candidates with the worst on top.
type worstFirst []candidate

func (h worstFirst) Len() int           { return len(h) }
func (h worstFirst) Less(i, j int) bool { return better(h[j], h[i]) }
func (h worstFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *worstFirst) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *worstFirst) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}
