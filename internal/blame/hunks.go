package blame

// Hunk is a display-only view: a maximal run of consecutive lines
// sharing one revision, author, and summary. Cheap to recompute, so
// never cached.
type Hunk struct {
	Revision  string
	Author    string
	Summary   string
	StartLine int // final line number of the first line in the run
	Count     int
}

// GroupHunks collapses an ordered attribution sequence into hunks.
// Revision, author, and summary are all compared: a revision is not
// assumed to imply identical author or summary (amended metadata).
// Comparison is exact; no normalization. Single pass, order preserved.
func GroupHunks(records []LineAttribution) []Hunk {
	if len(records) == 0 {
		return nil
	}

	hunks := make([]Hunk, 0, 8)
	cur := Hunk{
		Revision:  records[0].Revision,
		Author:    records[0].Author,
		Summary:   records[0].Summary,
		StartLine: records[0].FinalLine,
		Count:     1,
	}

	for i := 1; i < len(records); i++ {
		r := records[i]
		contiguous := r.FinalLine == records[i-1].FinalLine+1
		same := r.Revision == cur.Revision && r.Author == cur.Author && r.Summary == cur.Summary
		if same && contiguous {
			cur.Count++
			continue
		}
		hunks = append(hunks, cur)
		cur = Hunk{
			Revision:  r.Revision,
			Author:    r.Author,
			Summary:   r.Summary,
			StartLine: r.FinalLine,
			Count:     1,
		}
	}
	return append(hunks, cur)
}
