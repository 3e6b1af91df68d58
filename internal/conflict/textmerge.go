package conflict

// TextEdit is a character-range edit to a free-text field: delete Deleted
// characters at Offset, then insert Inserted there.
type TextEdit struct {
	Offset    int    `json:"offset"`
	Deleted   int    `json:"deleted"`
	Inserted  string `json:"inserted"`
	Timestamp int64  `json:"timestamp"`
	UserID    string `json:"userId"`
}

// delta is how much the edit shifts text after its offset
func (e TextEdit) delta() int {
	return len(e.Inserted) - e.Deleted
}

// ApplyTextEdit applies one edit to a string, clamping out-of-range offsets
func ApplyTextEdit(s string, e TextEdit) string {
	off := e.Offset
	if off < 0 {
		off = 0
	}
	if off > len(s) {
		off = len(s)
	}
	end := off + e.Deleted
	if end > len(s) {
		end = len(s)
	}
	return s[:off] + e.Inserted + s[end:]
}

// TransformTextEdit shifts a concurrent edit's offset by the length delta
// of an earlier-applied edit, so it still lands on the text it targeted.
// Edits at the same offset are shifted too, putting the earlier edit's
// insertion first.
func TransformTextEdit(later, earlier TextEdit) TextEdit {
	if later.Offset >= earlier.Offset {
		later.Offset += earlier.delta()
		if later.Offset < 0 {
			later.Offset = 0
		}
	}
	return later
}

// MergeTextEdits merges exactly two concurrent edits to the same text.
// The earlier edit (by timestamp, user id tiebreak) applies first and the
// later one is transformed around it. This does not generalize to three
// or more concurrent editors; callers fall back to last-write-wins there.
func MergeTextEdits(base string, a, b TextEdit) string {
	first, second := a, b
	if (stamp{ts: a.Timestamp, userID: a.UserID}).beats(stamp{ts: b.Timestamp, userID: b.UserID}) {
		first, second = b, a
	}
	out := ApplyTextEdit(base, first)
	return ApplyTextEdit(out, TransformTextEdit(second, first))
}
