package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashTokenizer_Tokenize(t *testing.T) {
	ids, attn, types := HashTokenizer{}.Tokenize("Hello, world", 10)
	require.Len(t, ids, 10)
	require.Len(t, attn, 10)
	require.Len(t, types, 10)

	// [CLS] hello , world [SEP]
	assert.Equal(t, int64(tokenCLS), ids[0])
	assert.Equal(t, int64(tokenSEP), ids[4])
	assert.Equal(t, []int64{1, 1, 1, 1, 1, 0, 0, 0, 0, 0}, attn)
	assert.Equal(t, int64(tokenPAD), ids[5])
	for _, id := range ids[1:4] {
		assert.GreaterOrEqual(t, id, int64(reservedIDs))
		assert.Less(t, id, int64(vocabSize))
	}
}

func TestHashTokenizer_CaseInsensitive(t *testing.T) {
	a, _, _ := HashTokenizer{}.Tokenize("Revenue REPORT", 8)
	b, _, _ := HashTokenizer{}.Tokenize("revenue report", 8)
	assert.Equal(t, a, b)
}

func TestHashTokenizer_Truncates(t *testing.T) {
	ids, attn, _ := HashTokenizer{}.Tokenize("a b c d e f g h", 4)
	require.Len(t, ids, 4)
	assert.Equal(t, int64(tokenCLS), ids[0])
	assert.Equal(t, int64(tokenSEP), ids[3])
	assert.Equal(t, []int64{1, 1, 1, 1}, attn)
}

func TestPieces(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"one two", []string{"one", "two"}},
		{"Q1-2024: $5M", []string{"q1", "-", "2024", ":", "$", "5m"}},
		{"Ünïcode ok", []string{"ünïcode", "ok"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, pieces(tt.in), "pieces(%q)", tt.in)
	}
}

func TestHashString(t *testing.T) {
	assert.Equal(t, HashString("abc"), HashString("abc"))
	assert.NotEqual(t, HashString("abc"), HashString("abd"))
	assert.GreaterOrEqual(t, HashString("anything"), 0)
}
