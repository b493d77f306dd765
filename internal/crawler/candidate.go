package crawler

// Candidate is one crawled article not yet checked for duplication.
type Candidate struct {
	Title  string   `json:"title"`
	Link   string   `json:"link"`
	Images []string `json:"images,omitempty"`
	Source string   `json:"source,omitempty"`
}
