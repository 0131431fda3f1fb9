// Package cli formats command output: run summaries and search results.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hyperjump/lotuswxr/internal/models"
	"github.com/hyperjump/lotuswxr/pkg/utils"
)

// OutputFormat selects text or JSON output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// Counter is implemented by the run summaries of every pipeline.
type Counter interface {
	Counts() map[string]int
}

// WriteSummary writes a heading and the counts of s, one per line in key order.
func WriteSummary(w io.Writer, heading string, s Counter, format OutputFormat) error {
	counts := s.Counts()
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(counts)
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(w, "%s\n", heading)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, k := range keys {
		fmt.Fprintf(tw, "  %s\t%d\n", strings.ReplaceAll(k, "_", " "), counts[k])
	}
	return tw.Flush()
}

// WriteSearchResults writes search results to w in the given format. Dates are shown in loc.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat, loc *time.Location) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	}
	if loc == nil {
		loc = time.UTC
	}
	fmt.Fprintf(w, "\nFound %d pages for %q in %dms\n\n", response.Total, response.Query, response.QueryTime)
	for _, hit := range response.Hits {
		writeHit(w, hit, loc)
	}
	return nil
}

func writeHit(w io.Writer, hit *models.SearchHit, loc *time.Location) {
	fmt.Fprintf(w, "-----------------------------------------------------------\n")
	fmt.Fprintf(w, "%d. %s (page %s) score %.4f\n", hit.Rank, hit.Title, hit.Page, hit.Score)
	fmt.Fprintf(w, "   key:        %s\n", hit.Key)
	if hit.Created != 0 {
		fmt.Fprintf(w, "   created:    %s\n", time.Unix(hit.Created, 0).In(loc).Format("2006-01-02"))
	}
	if len(hit.Authors) > 0 {
		fmt.Fprintf(w, "   authors:    %s\n", strings.Join(hit.Authors, ", "))
	}
	if len(hit.Categories) > 0 {
		fmt.Fprintf(w, "   categories: %s\n", strings.Join(hit.Categories, ", "))
	}
	if frag := hit.Highlights["content"]; frag != "" {
		fmt.Fprintf(w, "\n   %s\n", utils.Truncate(utils.CollapseSpace(frag), 200))
	}
	fmt.Fprintln(w)
}
