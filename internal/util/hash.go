package util

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"sort"
)

// HashFiles returns the hex sha256 over the contents of the given files,
// read in sorted path order so the result is stable across declarations.
// Missing files contribute only their path to the hash.
func HashFiles(root string, paths []string) (string, error) {
	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)

	h := sha256.New()
	for _, p := range sorted {
		io.WriteString(h, p)
		f, err := os.Open(joinRoot(root, p))
		if err != nil {
			continue
		}
		if _, err := io.Copy(h, f); err != nil {
			f.Close()
			return "", err
		}
		f.Close()
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func joinRoot(root, p string) string {
	if root == "" {
		return p
	}
	return root + string(os.PathSeparator) + p
}
