package vectorstore

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// chromem stores each collection in a directory named after the first 8 hex
// characters of the name's SHA-256, with its metadata in 00000000.gob.
const chromemMetadataFile = "00000000.gob"

var chromemDirPattern = regexp.MustCompile(`^[a-f0-9]{8}$`)

// quarantineDir receives project collections that cannot be loaded.
const quarantineDir = ".quarantine"

// openPersistentChromem opens the index at path. A project collection whose
// metadata file went missing (a crash mid-write) makes chromem refuse the
// whole directory; such collections are moved to .quarantine and the load is
// retried once. Their chunks stay in the relational store and are indexed
// again on the next ingestion of the group.
func openPersistentChromem(path string, compress bool, logger *zap.Logger) (*chromem.DB, error) {
	db, err := chromem.NewPersistentDB(path, compress)
	if err == nil {
		return db, nil
	}
	if !strings.Contains(err.Error(), "collection metadata file not found") {
		return nil, err
	}

	broken, scanErr := findBrokenCollections(path)
	if scanErr != nil || len(broken) == 0 {
		return nil, err
	}

	target := filepath.Join(path, quarantineDir)
	if mkErr := os.MkdirAll(target, 0o755); mkErr != nil {
		return nil, fmt.Errorf("creating quarantine directory: %w", mkErr)
	}
	for _, dir := range broken {
		if mvErr := os.Rename(filepath.Join(path, dir), filepath.Join(target, dir)); mvErr != nil {
			logger.Error("failed to quarantine chromem collection", zap.String("dir", dir), zap.Error(mvErr))
			continue
		}
		logger.Warn("quarantined chromem collection without metadata", zap.String("dir", dir))
	}

	db, err = chromem.NewPersistentDB(path, compress)
	if err != nil {
		return nil, fmt.Errorf("loading chromem after quarantine: %w", err)
	}
	return db, nil
}

// findBrokenCollections lists collection directories that hold document
// files but no metadata file. Hidden and oddly named entries are skipped so
// nothing outside chromem's own layout is ever moved.
func findBrokenCollections(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var broken []string
	for _, entry := range entries {
		if !entry.IsDir() || !chromemDirPattern.MatchString(entry.Name()) {
			continue
		}
		dir := filepath.Join(path, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, chromemMetadataFile)); !os.IsNotExist(err) {
			continue
		}
		files, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, f := range files {
			if !f.IsDir() && strings.HasSuffix(f.Name(), ".gob") {
				broken = append(broken, entry.Name())
				break
			}
		}
	}
	return broken, nil
}
