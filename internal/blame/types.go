package blame

import "strings"

// LineAttribution is one line's authorship fact at one revision:
// which commit last touched the line, by whom, when, and under what
// path the file was known at that commit. Immutable once produced.
type LineAttribution struct {
	Revision   string // full hash, or all zeros for uncommitted content
	Author     string
	AuthorTime int64  // seconds since epoch
	AuthorTZ   string // e.g. "+0200"
	Summary    string
	Previous   string // parent revision recorded by the report, if any
	Filename   string // path the file had at Revision
	OrigLine   int    // 1-based line number in the blamed commit
	FinalLine  int    // 1-based line number in the requested revision
	Content    string // empty in incremental mode
}

// IsUncommitted reports whether the record belongs to working-tree
// content that no commit owns. Such records are non-navigable: no
// parent, no commit detail.
func (a LineAttribution) IsUncommitted() bool {
	return IsUncommittedRevision(a.Revision)
}

// IsUncommittedRevision matches git's all-zero sentinel hash of any length.
func IsUncommittedRevision(revision string) bool {
	return revision != "" && strings.TrimLeft(revision, "0") == ""
}
