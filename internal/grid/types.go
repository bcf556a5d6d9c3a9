// Package grid is the client for the hosted base platform's fusion API.
// It exposes the three operations paramlens needs: ordered field metadata,
// paginated record fetch, and record write-back. Everything else the
// platform offers is out of scope.
package grid

// SegmentKind discriminates the shapes a cell value segment can take.
// The checker only ever interprets KindText; all other kinds are carried
// opaquely and written back untouched.
type SegmentKind string

const (
	KindText    SegmentKind = "text"
	KindURL     SegmentKind = "url"
	KindMention SegmentKind = "mention"
)

// Segment is one element of a cell value list.
type Segment struct {
	Kind SegmentKind `json:"type"`
	Text string      `json:"text,omitempty"`
}

// TextSegment builds a plain text cell segment.
func TextSegment(text string) Segment {
	return Segment{Kind: KindText, Text: text}
}

// Field is datasheet field metadata. Order is the field's position in the
// view, which the comparator uses to pick the baseline field.
type Field struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"-"`
}

// Record is a single datasheet row. Cells maps field ID to the cell's
// segment list; absent fields simply have no entry.
type Record struct {
	ID    string               `json:"recordId"`
	Name  string               `json:"name"`
	Cells map[string][]Segment `json:"fields"`
}

// Text returns the text content of the record's cell for fieldID. The cell
// qualifies only when it is a non-empty segment list whose first segment is
// of text kind; everything else reports false and is excluded from
// comparison for that record.
func (r Record) Text(fieldID string) (string, bool) {
	segs, ok := r.Cells[fieldID]
	if !ok || len(segs) == 0 {
		return "", false
	}
	if segs[0].Kind != KindText {
		return "", false
	}
	return segs[0].Text, true
}
