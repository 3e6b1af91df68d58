package conflict

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyTextEdit(t *testing.T) {
	assert.Equal(t, "hello brave world", ApplyTextEdit("hello world", TextEdit{Offset: 6, Inserted: "brave "}))
	assert.Equal(t, "held", ApplyTextEdit("hello world", TextEdit{Offset: 3, Deleted: 7}))
	assert.Equal(t, "hello worldX", ApplyTextEdit("hello world", TextEdit{Offset: 99, Inserted: "X"}))
	assert.Equal(t, "Xhello world", ApplyTextEdit("hello world", TextEdit{Offset: -5, Inserted: "X"}))
	assert.Equal(t, "hello ", ApplyTextEdit("hello world", TextEdit{Offset: 6, Deleted: 99}))
}

func TestMergeTextEditsDisjointRegions(t *testing.T) {
	base := "the quick fox"
	a := TextEdit{Offset: 4, Inserted: "very ", Timestamp: 100, UserID: "alice"}
	b := TextEdit{Offset: 10, Inserted: "brown ", Timestamp: 200, UserID: "bob"}

	assert.Equal(t, "the very quick brown fox", MergeTextEdits(base, a, b))
}

func TestMergeTextEditsOrderIndependent(t *testing.T) {
	base := "the quick fox"
	a := TextEdit{Offset: 4, Inserted: "very ", Timestamp: 100, UserID: "alice"}
	b := TextEdit{Offset: 10, Inserted: "brown ", Timestamp: 200, UserID: "bob"}

	// Both argument orders converge on the same text.
	assert.Equal(t, MergeTextEdits(base, a, b), MergeTextEdits(base, b, a))
}

func TestMergeTextEditsSameOffsetEarlierFirst(t *testing.T) {
	base := "ac"
	a := TextEdit{Offset: 1, Inserted: "b", Timestamp: 100, UserID: "alice"}
	b := TextEdit{Offset: 1, Inserted: "x", Timestamp: 200, UserID: "bob"}

	// The earlier edit's insertion lands first at the shared offset.
	assert.Equal(t, "abxc", MergeTextEdits(base, a, b))
}

func TestMergeTextEditsDeleteAndInsert(t *testing.T) {
	base := "hello cruel world"
	del := TextEdit{Offset: 6, Deleted: 6, Timestamp: 100, UserID: "alice"}
	ins := TextEdit{Offset: 17, Inserted: "!", Timestamp: 200, UserID: "bob"}

	assert.Equal(t, "hello world!", MergeTextEdits(base, del, ins))
}

func TestMergeTextEditsTimestampTieUsesUserID(t *testing.T) {
	base := "x"
	a := TextEdit{Offset: 1, Inserted: "a", Timestamp: 100, UserID: "alice"}
	b := TextEdit{Offset: 1, Inserted: "b", Timestamp: 100, UserID: "bob"}

	// Equal stamps: "alice" wins the deterministic tie, so her edit counts
	// as the later one and applies second on every client.
	assert.Equal(t, "xba", MergeTextEdits(base, a, b))
	assert.Equal(t, "xba", MergeTextEdits(base, b, a))
}
