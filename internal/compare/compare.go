// Package compare detects parameter-token inconsistencies across the text
// fields of datasheet records. The first token-bearing field of a record,
// in view order, is the baseline; every other selected field's token
// multiset is checked against it, order inside the cell ignored.
package compare

import (
	"fmt"
	"sort"

	"paramlens/internal/grid"
	"paramlens/internal/token"
)

// ParameterInfo is the token extraction result for one (record, field)
// pair. One is produced only when the field's cell text carries at least
// one token.
type ParameterInfo struct {
	FieldID    string
	FieldName  string
	Order      int   // field position in the view, baseline tie-break
	Parameters []int // sorted ascending, duplicates preserved
	Text       string
}

// FieldTokens is one entry of a RecordComparison. It carries the field's
// full token list, not only the mismatching values, so the editor can show
// and rewrite every related field together.
type FieldTokens struct {
	FieldID    string
	FieldName  string
	Parameters []int
	Text       string
}

// RecordComparison reports a record with at least one discrepancy.
// Differences lists every selected token-bearing field of the record,
// baseline first.
type RecordComparison struct {
	RecordID    string
	RecordName  string
	Differences []FieldTokens
}

// ParameterGroup collects fields of one record that share an identical
// sorted token list. One substitution mapping applies to the whole group.
type ParameterGroup struct {
	Parameters []int
	Fields     []FieldTokens
}

// Editable reports whether the edit UI may offer the save path. Fields
// with differing token counts cannot share a renumbering, so editing is
// disabled for the record rather than failing later.
func (rc *RecordComparison) Editable() bool {
	if len(rc.Differences) == 0 {
		return false
	}
	n := len(rc.Differences[0].Parameters)
	for _, d := range rc.Differences[1:] {
		if len(d.Parameters) != n {
			return false
		}
	}
	return true
}

// Groups partitions the record's fields by identical token list, preserving
// the field order within each group. Group order follows first appearance.
func (rc *RecordComparison) Groups() []ParameterGroup {
	var groups []ParameterGroup
	index := make(map[string]int)
	for _, d := range rc.Differences {
		key := tokenKey(d.Parameters)
		if i, ok := index[key]; ok {
			groups[i].Fields = append(groups[i].Fields, d)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, ParameterGroup{Parameters: d.Parameters, Fields: []FieldTokens{d}})
	}
	return groups
}

// tokenKey canonicalizes a sorted token list for grouping.
func tokenKey(params []int) string {
	return fmt.Sprintf("%v", params)
}

// ExtractRecord produces ParameterInfo entries for every token-bearing text
// field of the record, ordered by view position. Cells without text or
// without tokens are silently excluded.
func ExtractRecord(rec grid.Record, fields []grid.Field) []ParameterInfo {
	infos := make([]ParameterInfo, 0, len(fields))
	for _, f := range fields {
		text, ok := rec.Text(f.ID)
		if !ok {
			continue
		}
		params := token.Extract(text)
		if len(params) == 0 {
			continue
		}
		infos = append(infos, ParameterInfo{
			FieldID:    f.ID,
			FieldName:  f.Name,
			Order:      f.Order,
			Parameters: params,
			Text:       text,
		})
	}
	sort.SliceStable(infos, func(i, j int) bool { return infos[i].Order < infos[j].Order })
	return infos
}

// CompareRecord checks one record's extracted fields against the baseline.
// selected restricts which field IDs participate; an empty set means all.
// Returns nil when the record has fewer than two token-bearing fields or
// when no selected field disagrees with the baseline.
func CompareRecord(rec grid.Record, infos []ParameterInfo, selected map[string]bool) *RecordComparison {
	if len(infos) < 2 {
		return nil
	}

	// Baseline is positional: the first token-bearing field in view order,
	// independent of the selection.
	baseline := infos[0]

	included := []FieldTokens{{
		FieldID:    baseline.FieldID,
		FieldName:  baseline.FieldName,
		Parameters: baseline.Parameters,
		Text:       baseline.Text,
	}}
	mismatch := false
	for _, info := range infos[1:] {
		if len(selected) > 0 && !selected[info.FieldID] {
			continue
		}
		if !token.Equal(info.Parameters, baseline.Parameters) {
			mismatch = true
		}
		included = append(included, FieldTokens{
			FieldID:    info.FieldID,
			FieldName:  info.FieldName,
			Parameters: info.Parameters,
			Text:       info.Text,
		})
	}
	if !mismatch {
		return nil
	}
	return &RecordComparison{
		RecordID:    rec.ID,
		RecordName:  rec.Name,
		Differences: included,
	}
}
