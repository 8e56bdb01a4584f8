package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortResults(t *testing.T) {
	results := []Result{
		{ID: "c", Similarity: 0.5},
		{ID: "b", Similarity: 0.9},
		{ID: "a", Similarity: 0.5},
	}
	sortResults(results)
	assert.Equal(t, []string{"b", "a", "c"}, []string{results[0].ID, results[1].ID, results[2].ID})
}

func TestProjectCollection(t *testing.T) {
	name := projectCollection("3F2504E0-4F89-11D3-9A0C-0305E82C3301")
	assert.Equal(t, "project_3f2504e04f8911d39a0c0305e82c3301", name)
	assert.NoError(t, ValidateCollectionName(name))
}

func TestNormalizeK(t *testing.T) {
	assert.Equal(t, DefaultK, normalizeK(0))
	assert.Equal(t, DefaultK, normalizeK(-3))
	assert.Equal(t, 12, normalizeK(12))
}
