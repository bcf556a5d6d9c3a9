package compare

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paramlens/internal/grid"
)

var testFields = []grid.Field{
	{ID: "fldA", Name: "German", Order: 0},
	{ID: "fldB", Name: "English", Order: 1},
	{ID: "fldC", Name: "French", Order: 2},
}

func textRecord(id string, cells map[string]string) grid.Record {
	rec := grid.Record{ID: id, Name: id, Cells: make(map[string][]grid.Segment)}
	for fieldID, text := range cells {
		rec.Cells[fieldID] = []grid.Segment{grid.TextSegment(text)}
	}
	return rec
}

func TestExtractRecord(t *testing.T) {
	rec := textRecord("rec1", map[string]string{
		"fldA": "hat {2} und {1}",
		"fldB": "no tokens here",
		"fldC": "{1} and {2}",
	})

	infos := ExtractRecord(rec, testFields)
	require.Len(t, infos, 2, "token-free fields are excluded")

	assert.Equal(t, "fldA", infos[0].FieldID)
	assert.Equal(t, []int{1, 2}, infos[0].Parameters)
	assert.Equal(t, "hat {2} und {1}", infos[0].Text)
	assert.Equal(t, "fldC", infos[1].FieldID)
}

func TestExtractRecordIgnoresNonTextCells(t *testing.T) {
	rec := grid.Record{ID: "rec1", Cells: map[string][]grid.Segment{
		"fldA": {{Kind: grid.KindURL, Text: "{1}"}},
		"fldB": {grid.TextSegment("{1}")},
	}}

	infos := ExtractRecord(rec, testFields)
	require.Len(t, infos, 1)
	assert.Equal(t, "fldB", infos[0].FieldID)
}

func TestCompareRecordOrderIgnored(t *testing.T) {
	rec := textRecord("rec1", map[string]string{
		"fldA": "{1} {2}",
		"fldB": "{2} {1}",
	})
	infos := ExtractRecord(rec, testFields)

	rc := CompareRecord(rec, infos, nil)
	assert.Nil(t, rc, "equal token multisets must not be flagged")
}

func TestCompareRecordDiscrepancy(t *testing.T) {
	rec := textRecord("rec1", map[string]string{
		"fldA": "{1} {2}",
		"fldB": "{1} {3}",
	})
	infos := ExtractRecord(rec, testFields)

	rc := CompareRecord(rec, infos, nil)
	require.NotNil(t, rc)
	assert.Equal(t, "rec1", rc.RecordID)

	// Baseline first, then the deviating field with its full token list.
	require.Len(t, rc.Differences, 2)
	assert.Equal(t, "fldA", rc.Differences[0].FieldID)
	assert.Equal(t, []int{1, 2}, rc.Differences[0].Parameters)
	assert.Equal(t, "fldB", rc.Differences[1].FieldID)
	assert.Equal(t, []int{1, 3}, rc.Differences[1].Parameters)
}

func TestCompareRecordDifferingCount(t *testing.T) {
	rec := textRecord("rec1", map[string]string{
		"fldA": "{1} {2}",
		"fldB": "{1}",
	})
	infos := ExtractRecord(rec, testFields)

	rc := CompareRecord(rec, infos, nil)
	require.NotNil(t, rc)
	assert.False(t, rc.Editable(), "differing token counts disable editing")
}

func TestCompareRecordSingleFieldSkipped(t *testing.T) {
	rec := textRecord("rec1", map[string]string{
		"fldA": "{1} {2}",
		"fldB": "token free",
	})
	infos := ExtractRecord(rec, testFields)

	assert.Nil(t, CompareRecord(rec, infos, nil),
		"one token-bearing field leaves nothing to compare")
	assert.Nil(t, CompareRecord(rec, infos, map[string]bool{"fldA": true, "fldB": true}))
}

func TestCompareRecordSelectionRestricts(t *testing.T) {
	rec := textRecord("rec1", map[string]string{
		"fldA": "{1}",
		"fldB": "{2}",
		"fldC": "{1}",
	})
	infos := ExtractRecord(rec, testFields)

	// Only fldC selected: the deviating fldB is not compared.
	rc := CompareRecord(rec, infos, map[string]bool{"fldC": true})
	assert.Nil(t, rc)

	rc = CompareRecord(rec, infos, map[string]bool{"fldB": true})
	require.NotNil(t, rc)
	require.Len(t, rc.Differences, 2)
	assert.Equal(t, "fldB", rc.Differences[1].FieldID)
}

func TestEditable(t *testing.T) {
	rc := &RecordComparison{Differences: []FieldTokens{
		{FieldID: "fldA", Parameters: []int{1, 2}},
		{FieldID: "fldB", Parameters: []int{1, 3}},
	}}
	assert.True(t, rc.Editable())

	rc.Differences = append(rc.Differences, FieldTokens{FieldID: "fldC", Parameters: []int{1}})
	assert.False(t, rc.Editable())

	empty := &RecordComparison{}
	assert.False(t, empty.Editable())
}

func TestGroups(t *testing.T) {
	rc := &RecordComparison{Differences: []FieldTokens{
		{FieldID: "fldA", Parameters: []int{1, 2}},
		{FieldID: "fldB", Parameters: []int{1, 3}},
		{FieldID: "fldC", Parameters: []int{1, 2}},
	}}

	groups := rc.Groups()
	require.Len(t, groups, 2)

	assert.Equal(t, []int{1, 2}, groups[0].Parameters)
	require.Len(t, groups[0].Fields, 2)
	assert.Equal(t, "fldA", groups[0].Fields[0].FieldID)
	assert.Equal(t, "fldC", groups[0].Fields[1].FieldID)

	assert.Equal(t, []int{1, 3}, groups[1].Parameters)
	if diff := cmp.Diff([]string{"fldB"}, fieldIDs(groups[1].Fields)); diff != "" {
		t.Errorf("group fields mismatch (-want +got):\n%s", diff)
	}
}

func fieldIDs(fields []FieldTokens) []string {
	ids := make([]string, len(fields))
	for i, f := range fields {
		ids[i] = f.FieldID
	}
	return ids
}
