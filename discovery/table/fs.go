package table

import (
	"errors"
	"io/fs"
	"os"
)

// osFileExists is the default Filesystem contract implementation:
// an os.Stat probe (spec.md §6). It reports false only when the file
// is confirmed missing; any other stat error counts as present, so a
// failed probe never evicts an entry.
func osFileExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}
