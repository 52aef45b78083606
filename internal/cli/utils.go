// Package cli provides output helpers for the command-line client.
package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"

	"github.com/nrcae/ai-s3-search/internal/ingest"
	"github.com/nrcae/ai-s3-search/internal/models"
	"github.com/nrcae/ai-s3-search/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
	// OutputCompact prints one line per hit: score, source and a short snippet.
	OutputCompact OutputFormat = "compact"
)

// ParseOutputFormat maps a flag value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON, OutputCompact:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or compact)", s)
	}
}

// SearchResults is one query and its hits, best first.
type SearchResults struct {
	Query   string        `json:"query"`
	Took    time.Duration `json:"-"`
	TookMs  int64         `json:"took_ms"`
	Results []models.Hit  `json:"results"`
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, res *SearchResults, format OutputFormat) error {
	if res.Results == nil {
		res.Results = []models.Hit{}
	}
	res.TookMs = res.Took.Milliseconds()
	switch format {
	case OutputJSON:
		return writeJSON(w, res)
	case OutputCompact:
		for _, h := range res.Results {
			fmt.Fprintf(w, "%.4f\t%s\t%s\n", h.Score, h.SourceID, utils.Truncate(utils.CollapseSpace(h.Text), 80))
		}
		return nil
	default:
		writeSearchResultsText(w, res)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, res *SearchResults) {
	fmt.Fprintf(w, "\nFound %d results for %q in %dms\n\n", len(res.Results), res.Query, res.TookMs)
	for i, h := range res.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", i+1, h.Score)
		fmt.Fprintf(w, "Source: %s\n", h.SourceID)
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(utils.CollapseSpace(h.Text), 200))
	}
}

// WriteStatus writes index status to w.
func WriteStatus(w io.Writer, st models.Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "Ready:        %t\n", st.Ready)
	fmt.Fprintf(w, "Records:      %d\n", st.RecordCount)
	if st.LastIndexed != nil {
		fmt.Fprintf(w, "Last indexed: %s\n", st.LastIndexed.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Indexing:     %t\n", st.Indexing)
	if st.Degraded {
		fmt.Fprintln(w, "Degraded:     true (last run had failures)")
	}
	return nil
}

// WriteReport writes an ingestion run summary to w.
func WriteReport(w io.Writer, rep *ingest.Report, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, rep)
	}
	fmt.Fprintf(w, "Documents: %d (%d skipped, %d extracted, %d empty, %d failed)\n",
		rep.Documents, rep.Skipped, rep.Extracted, rep.Empty, rep.Failed)
	fmt.Fprintf(w, "Chunks:    %d in %d batches (%d failed)\n",
		rep.Chunks, rep.BatchesOK+rep.BatchesFailed, rep.BatchesFailed)
	fmt.Fprintf(w, "Records:   %d added in %s\n", rep.RecordsAdded, rep.Duration.Round(time.Millisecond))
	if rep.Cancelled {
		fmt.Fprintln(w, "Run was cancelled before completion.")
	}
	if rep.Fatal != "" {
		fmt.Fprintf(w, "Run aborted: %s\n", rep.Fatal)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
