package dataset

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// labelsFileName is the per-split label index and is never a recording.
const labelsFileName = "labels.csv"

// DiscoverRecordings returns sorted absolute paths to recording CSVs beneath
// root.
func DiscoverRecordings(root string) ([]string, error) {
	entries := make([]string, 0)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if name == labelsFileName || !strings.HasSuffix(name, ".csv") {
			return nil
		}
		entries = append(entries, path)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "discover recordings")
	}
	sort.Strings(entries)
	return entries, nil
}

// SplitDir resolves a split subdirectory beneath the data root.
func SplitDir(root, split string) string {
	return filepath.Join(root, split)
}
