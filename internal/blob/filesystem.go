package blob

import "fedaidash/internal/infra/blob/fs"

// NewFilesystem returns a store rooted at dir.
func NewFilesystem(dir string) (Store, error) {
	return fs.New(dir)
}
