package draft

import "strings"

// DiffKind classifies the effect of applying a draft.
type DiffKind string

const (
	DiffUnchanged DiffKind = "unchanged"
	DiffSet       DiffKind = "set"
	DiffChange    DiffKind = "change"
	DiffClear     DiffKind = "clear"
)

// Diff describes what applying a draft would do to the live value.
type Diff struct {
	Kind    DiffKind `json:"kind"`
	Summary string   `json:"summary"`
	Before  string   `json:"before"`
	After   string   `json:"after"`
}

// Preview compares the live value with the proposed final value.
func Preview(liveValue, finalSuggestion string) Diff {
	d := Diff{Before: liveValue, After: finalSuggestion}
	liveEmpty := strings.TrimSpace(liveValue) == ""
	finalEmpty := strings.TrimSpace(finalSuggestion) == ""

	switch {
	case liveValue == finalSuggestion || (liveEmpty && finalEmpty):
		d.Kind, d.Summary = DiffUnchanged, "no change"
	case finalEmpty:
		d.Kind, d.Summary = DiffClear, "will clear this field"
	case liveEmpty:
		d.Kind, d.Summary = DiffSet, "will set this field"
	default:
		d.Kind, d.Summary = DiffChange, "will replace the current value"
	}
	return d
}
