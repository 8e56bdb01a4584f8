package vectorstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestFindBrokenCollections(t *testing.T) {
	path := t.TempDir()
	write := func(dir, file string) {
		require.NoError(t, os.MkdirAll(filepath.Join(path, dir), 0o755))
		if file != "" {
			require.NoError(t, os.WriteFile(filepath.Join(path, dir, file), []byte("x"), 0o644))
		}
	}

	write("0a1b2c3d", chromemMetadataFile)
	write("0a1b2c3d", "9f8e7d6c.gob")
	write("deadbeef", "9f8e7d6c.gob")
	write("cafef00d", "")
	write("NotAHash", "9f8e7d6c.gob")
	write(quarantineDir, "9f8e7d6c.gob")

	broken, err := findBrokenCollections(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"deadbeef"}, broken)
}

func TestOpenPersistentChromem_QuarantinesBrokenCollection(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir()
	projectID := uuid.NewString()

	s, err := NewChromemStore(ChromemConfig{Path: path, VectorSize: testDim}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, []Document{doc(projectID, "g1", 1, 0, 0, 0)}))
	require.NoError(t, s.Close())

	dirs, err := os.ReadDir(path)
	require.NoError(t, err)
	var collection string
	for _, d := range dirs {
		if d.IsDir() && chromemDirPattern.MatchString(d.Name()) {
			collection = d.Name()
		}
	}
	require.NotEmpty(t, collection)
	require.NoError(t, os.Remove(filepath.Join(path, collection, chromemMetadataFile)))

	reopened, err := NewChromemStore(ChromemConfig{Path: path, VectorSize: testDim}, zaptest.NewLogger(t))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(path, quarantineDir, collection))
	assert.NoError(t, err)

	results, err := reopened.Search(ctx, projectID, []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}
