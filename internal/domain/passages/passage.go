package passages

// ContextPassage is one retrieved snippet. Slices of passages keep the
// relevance order given by the vector index.
type ContextPassage struct {
	Text  string `json:"text"`
	Label string `json:"label,omitempty"`
}
