package index

import (
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	idx, err := Build([]Document{
		{ID: "doc1", Text: "стоимость обучения высокая, обучения много"},
		{ID: "doc2", Text: "формат обучения онлайн"},
		{ID: "empty", Text: ""},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, idx.DocumentCount())
	assert.Equal(t, []string{"стоимость", "обучения", "высокая", "обучения", "много"}, idx.Terms(0))
	assert.Equal(t, 5, idx.DocLength(0))
	assert.Equal(t, 0, idx.DocLength(2))

	// Set semantics: doc1 mentions "обучения" twice but counts once.
	assert.Equal(t, 2, idx.DocumentFrequency("обучения"))
	assert.Equal(t, 1, idx.DocumentFrequency("онлайн"))
	assert.Equal(t, 0, idx.DocumentFrequency("бюджет"))

	assert.Equal(t, PostingList{{Doc: 0, Frequency: 2}, {Doc: 1, Frequency: 1}}, idx.Postings("обучения"))
	assert.Nil(t, idx.Postings("бюджет"))

	assert.InDelta(t, 8.0/3.0, idx.AverageDocumentLength(), 1e-12)
	assert.False(t, idx.Degenerate())

	stats := idx.Stats()
	assert.Equal(t, 3, stats.Documents)
	assert.Equal(t, 6, stats.Terms)
	assert.Equal(t, 8, stats.TotalTokens)
}

func TestBuildDuplicateID(t *testing.T) {
	idx, err := Build([]Document{
		{ID: "ai", Text: "искусственный интеллект"},
		{ID: "ai_product", Text: "продукты"},
		{ID: "ai", Text: "повтор"},
	})
	assert.Nil(t, idx)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateDocument)
	assert.Contains(t, err.Error(), `"ai"`)
}

func TestBuildEmptyCorpus(t *testing.T) {
	idx, err := Build(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, idx.DocumentCount())
	assert.Equal(t, 0.0, idx.AverageDocumentLength())
	assert.True(t, idx.Degenerate())
}

func TestBuildCopiesInput(t *testing.T) {
	docs := []Document{{ID: "a", Text: "онлайн формат"}}
	idx := MustBuild(docs)
	docs[0].ID = "mutated"
	assert.Equal(t, "a", idx.Document(0).ID)
}

func TestMustBuildPanicsOnDuplicate(t *testing.T) {
	assert.Panics(t, func() {
		MustBuild([]Document{{ID: "x"}, {ID: "x"}})
	})
}
