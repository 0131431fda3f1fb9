package models

// SearchHit is one archived page matching a query.
type SearchHit struct {
	// Key is the archive key of the page (pages/<key>.xml).
	Key        string            `json:"key"`
	Title      string            `json:"title"`
	Page       string            `json:"page"`
	Authors    []string          `json:"authors"`
	Categories []string          `json:"categories"`
	Created    int64             `json:"created"`
	Score      float64           `json:"score"`
	Highlights map[string]string `json:"highlights,omitempty"`
	Rank       int               `json:"rank"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Hits      []*SearchHit `json:"hits"`
	Total     uint64       `json:"total"`
	QueryTime int64        `json:"query_time_ms"`
	Query     string       `json:"query"`
}
