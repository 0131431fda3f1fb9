package archiver

import "sort"

// Summary counts what one archive run produced.
type Summary struct {
	Pages      int
	Orphans    int
	Duplicates int
	Skipped    int
	// Media is the number of distinct stored files; Images and Attachments count references.
	Media       int
	Images      int
	Attachments int
	URLs        int
	Unmatched   int
	Authors     int
	Categories  int
}

// Counts returns the summary keyed by object kind.
func (s *Summary) Counts() map[string]int {
	return map[string]int{
		"pages":       s.Pages,
		"orphans":     s.Orphans,
		"duplicates":  s.Duplicates,
		"skipped":     s.Skipped,
		"media":       s.Media,
		"images":      s.Images,
		"attachments": s.Attachments,
		"urls":        s.URLs,
		"unmatched":   s.Unmatched,
		"authors":     s.Authors,
		"categories":  s.Categories,
	}
}

// orderedSet keeps the first occurrence of each value in insertion order.
type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (s *orderedSet) add(values ...string) {
	for _, v := range values {
		if _, ok := s.seen[v]; ok {
			continue
		}
		s.seen[v] = struct{}{}
		s.items = append(s.items, v)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
