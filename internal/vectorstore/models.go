package vectorstore

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultK is used when a caller passes k <= 0.
const DefaultK = 5

// Payload keys shared by the chromem and qdrant backends.
const (
	keyChunkID   = "chunk_id"
	keyProjectID = "project_id"
	keyGroupID   = "group_id"
	keyTitle     = "title"
	keyContent   = "content"
	keyCreatedAt = "created_at"
)

// sortResults orders by similarity descending, then id ascending.
func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].ID < results[j].ID
	})
}

func checkDocuments(docs []Document, dimension int) error {
	if len(docs) == 0 {
		return ErrEmptyDocuments
	}
	for i, d := range docs {
		if d.ID == "" || d.ProjectID == "" {
			return fmt.Errorf("%w: document %d needs id and project id", ErrInvalidConfig, i)
		}
		if len(d.Vector) != dimension {
			return fmt.Errorf("%w: document %d has %d values, want %d", ErrDimensionMismatch, i, len(d.Vector), dimension)
		}
	}
	return nil
}

func normalizeK(k int) int {
	if k <= 0 {
		return DefaultK
	}
	return k
}

// projectCollection names the per-project chromem collection.
func projectCollection(projectID string) string {
	return "project_" + strings.ToLower(strings.ReplaceAll(projectID, "-", ""))
}
