package blame

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// headerRe matches a record header: <revision> <orig-line> <final-line>
// with an optional run length. Git emits 40-hex hashes; 64 covers
// sha256 repositories.
var headerRe = regexp.MustCompile(`^([0-9a-f]{7,64}) (\d+) (\d+)(?: (\d+))?$`)

// commitMeta is the per-revision metadata snapshot the incremental
// report emits once, the first time a revision appears. A fixed struct
// on purpose: unknown keys are ignored, never stored.
type commitMeta struct {
	author     string
	authorTime int64
	authorTZ   string
	summary    string
	previous   string
	filename   string
}

// pendingLine is a materialized record slot awaiting the final
// metadata snapshot for its revision.
type pendingLine struct {
	revision  string
	origLine  int
	finalLine int
	content   string
}

// Parse consumes an incremental attribution report and returns the
// ordered record sequence, dense over whatever line range the report
// covered. Records may arrive out of final-line order and a commit's
// metadata block may trail its first header, so lines accumulate in a
// sparse map and are emitted by ascending final line at the end.
// Malformed lines are skipped, not fatal: partial attribution beats none.
func Parse(lines []string) []LineAttribution {
	byLine := make(map[int]*pendingLine)
	metas := make(map[string]*commitMeta)

	var current string // revision of the most recent header
	var runStart int   // final line the current run began at

	for _, line := range lines {
		// Content lines carry the text for the first line of the
		// current run and appear only in non-incremental reports.
		if strings.HasPrefix(line, "\t") {
			if current != "" {
				if p, ok := byLine[runStart]; ok {
					p.content = line[1:]
				}
			}
			continue
		}

		if m := headerRe.FindStringSubmatch(line); m != nil {
			orig, _ := strconv.Atoi(m[2])
			final, _ := strconv.Atoi(m[3])
			count := 1
			if m[4] != "" {
				count, _ = strconv.Atoi(m[4])
			}
			current = m[1]
			runStart = final
			if _, ok := metas[current]; !ok {
				metas[current] = &commitMeta{}
			}
			for i := 0; i < count; i++ {
				byLine[final+i] = &pendingLine{
					revision:  current,
					origLine:  orig + i,
					finalLine: final + i,
				}
			}
			continue
		}

		if current == "" {
			// Metadata before any header is a grammar violation; skip.
			continue
		}

		meta := metas[current]
		key, value, found := strings.Cut(line, " ")
		if !found {
			key = line
		}
		switch key {
		case "author":
			meta.author = value
		case "author-time":
			if t, err := strconv.ParseInt(value, 10, 64); err == nil {
				meta.authorTime = t
			}
		case "author-tz":
			meta.authorTZ = value
		case "summary":
			meta.summary = value
		case "previous":
			// "previous <revision> <filename>"; only the revision matters here.
			rev, _, _ := strings.Cut(value, " ")
			meta.previous = rev
		case "filename":
			meta.filename = value
		default:
			// committer-*, boundary, and anything newer git grows.
		}
	}

	// Emit by ascending final line. Holes from partial scans are
	// skipped, not zero-filled.
	keys := make([]int, 0, len(byLine))
	for k := range byLine {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	records := make([]LineAttribution, 0, len(keys))
	for _, k := range keys {
		p := byLine[k]
		meta := metas[p.revision]
		records = append(records, LineAttribution{
			Revision:   p.revision,
			Author:     meta.author,
			AuthorTime: meta.authorTime,
			AuthorTZ:   meta.authorTZ,
			Summary:    meta.summary,
			Previous:   meta.previous,
			Filename:   meta.filename,
			OrigLine:   p.origLine,
			FinalLine:  p.finalLine,
			Content:    p.content,
		})
	}
	return records
}
