package wxr

// Summary counts what one export run emitted.
type Summary struct {
	Posts    int
	Comments int
	// Images and Attachments count emitted media items, not references.
	Images          int
	Attachments     int
	URLs            int
	Authors         int
	Categories      int
	Clashes         int
	SkippedPosts    int
	SkippedComments int
}

// Counts returns the summary keyed by object kind.
func (s *Summary) Counts() map[string]int {
	return map[string]int{
		"posts":            s.Posts,
		"comments":         s.Comments,
		"images":           s.Images,
		"attachments":      s.Attachments,
		"urls":             s.URLs,
		"authors":          s.Authors,
		"categories":       s.Categories,
		"clashes":          s.Clashes,
		"skipped_posts":    s.SkippedPosts,
		"skipped_comments": s.SkippedComments,
	}
}
