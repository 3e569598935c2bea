package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/blamescope/blamescope/internal/blame"
	"github.com/blamescope/blamescope/internal/cache"
)

// BlameFormatter formats line attribution output
type BlameFormatter struct {
	format string // "table", "json", "csv"
}

// NewBlameFormatter creates a new blame formatter
func NewBlameFormatter(format string) *BlameFormatter {
	return &BlameFormatter{format: format}
}

// FormatHunks formats grouped attribution for a file
func (f *BlameFormatter) FormatHunks(w io.Writer, filePath, revision string, hunks []blame.Hunk) error {
	switch f.format {
	case "json":
		return f.hunksJSON(w, filePath, revision, hunks)
	case "csv":
		return f.hunksCSV(w, hunks)
	default:
		return f.hunksTable(w, filePath, revision, hunks)
	}
}

// FormatLine formats the full attribution record of a single line
func (f *BlameFormatter) FormatLine(w io.Writer, rec blame.LineAttribution) error {
	if f.format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(lineJSON(rec))
	}

	revision := rec.Revision
	if rec.IsUncommitted() {
		revision = "uncommitted"
	}
	fmt.Fprintf(w, "Line %d: %s\n", rec.FinalLine, revision)
	fmt.Fprintf(w, "  Author:  %s\n", rec.Author)
	fmt.Fprintf(w, "  Date:    %s\n", formatAuthorTime(rec.AuthorTime, rec.AuthorTZ))
	fmt.Fprintf(w, "  Summary: %s\n", rec.Summary)
	if rec.Filename != "" && rec.Filename != "-" {
		fmt.Fprintf(w, "  File:    %s (line %d at that revision)\n", rec.Filename, rec.OrigLine)
	}
	return nil
}

// FormatStats formats cache statistics
func (f *BlameFormatter) FormatStats(w io.Writer, stats cache.Stats) error {
	if f.format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Fprintln(w, "Cache:")
	fmt.Fprintf(w, "  Attribution: %d/%d entries (%d hits, %d misses, %d evictions)\n",
		stats.AttributionCount, stats.AttributionCapacity,
		stats.Attribution.Hits, stats.Attribution.Misses, stats.Attribution.Evictions)
	fmt.Fprintf(w, "  Content:     %d/%d entries (%d hits, %d misses, %d evictions)\n",
		stats.ContentCount, stats.ContentCapacity,
		stats.Content.Hits, stats.Content.Misses, stats.Content.Evictions)
	return nil
}

func (f *BlameFormatter) hunksTable(w io.Writer, filePath, revision string, hunks []blame.Hunk) error {
	if len(hunks) == 0 {
		fmt.Fprintf(w, "No attributed lines in %s\n", filePath)
		return nil
	}

	at := "working copy"
	if revision != "" {
		at = revision
	}
	fmt.Fprintf(w, "File: %s @ %s (%d hunks)\n\n", filePath, at, len(hunks))

	fmt.Fprintf(w, "%-12s %-10s %-20s %-40s\n", "Lines", "Revision", "Author", "Summary")
	fmt.Fprintln(w, strings.Repeat("─", 86))

	for _, h := range hunks {
		lines := fmt.Sprintf("%d-%d", h.StartLine, h.StartLine+h.Count-1)
		if h.Count == 1 {
			lines = strconv.Itoa(h.StartLine)
		}

		revision := shortRevision(h.Revision)
		author := h.Author
		if len(author) > 19 {
			author = author[:16] + "..."
		}
		summary := h.Summary
		if len(summary) > 40 {
			summary = summary[:37] + "..."
		}

		fmt.Fprintf(w, "%-12s %-10s %-20s %-40s\n", lines, revision, author, summary)
	}
	return nil
}

func (f *BlameFormatter) hunksJSON(w io.Writer, filePath, revision string, hunks []blame.Hunk) error {
	type hunkJSON struct {
		StartLine   int    `json:"start_line"`
		Count       int    `json:"count"`
		Revision    string `json:"revision"`
		Uncommitted bool   `json:"uncommitted,omitempty"`
		Author      string `json:"author"`
		Summary     string `json:"summary"`
	}

	out := struct {
		File     string     `json:"file"`
		Revision string     `json:"revision,omitempty"`
		Hunks    []hunkJSON `json:"hunks"`
	}{File: filePath, Revision: revision, Hunks: make([]hunkJSON, 0, len(hunks))}

	for _, h := range hunks {
		out.Hunks = append(out.Hunks, hunkJSON{
			StartLine:   h.StartLine,
			Count:       h.Count,
			Revision:    h.Revision,
			Uncommitted: blame.IsUncommittedRevision(h.Revision),
			Author:      h.Author,
			Summary:     h.Summary,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func (f *BlameFormatter) hunksCSV(w io.Writer, hunks []blame.Hunk) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"start_line", "count", "revision", "author", "summary"}); err != nil {
		return err
	}
	for _, h := range hunks {
		row := []string{
			strconv.Itoa(h.StartLine),
			strconv.Itoa(h.Count),
			h.Revision,
			h.Author,
			h.Summary,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func lineJSON(rec blame.LineAttribution) any {
	return struct {
		Line        int    `json:"line"`
		Revision    string `json:"revision"`
		Uncommitted bool   `json:"uncommitted"`
		Author      string `json:"author"`
		Date        string `json:"date"`
		Summary     string `json:"summary"`
		Previous    string `json:"previous,omitempty"`
		Filename    string `json:"filename,omitempty"`
		OrigLine    int    `json:"orig_line"`
	}{
		Line:        rec.FinalLine,
		Revision:    rec.Revision,
		Uncommitted: rec.IsUncommitted(),
		Author:      rec.Author,
		Date:        formatAuthorTime(rec.AuthorTime, rec.AuthorTZ),
		Summary:     rec.Summary,
		Previous:    rec.Previous,
		Filename:    rec.Filename,
		OrigLine:    rec.OrigLine,
	}
}

func shortRevision(revision string) string {
	if blame.IsUncommittedRevision(revision) {
		return "working"
	}
	if len(revision) > 8 {
		return revision[:8]
	}
	return revision
}

func formatAuthorTime(unix int64, tz string) string {
	if unix == 0 {
		return "unknown"
	}
	t := time.Unix(unix, 0).UTC()
	if loc := parseTZ(tz); loc != nil {
		t = t.In(loc)
	}
	return t.Format("2006-01-02 15:04:05 -0700")
}

// parseTZ converts a "+0530" style zone offset into a fixed location.
func parseTZ(tz string) *time.Location {
	if len(tz) != 5 || (tz[0] != '+' && tz[0] != '-') {
		return nil
	}
	hours, err := strconv.Atoi(tz[1:3])
	if err != nil {
		return nil
	}
	mins, err := strconv.Atoi(tz[3:5])
	if err != nil {
		return nil
	}
	offset := hours*3600 + mins*60
	if tz[0] == '-' {
		offset = -offset
	}
	return time.FixedZone(tz, offset)
}
