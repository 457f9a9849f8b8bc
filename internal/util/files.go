package util

import (
	"archive/zip"
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

func PathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	return false, err
}

// ArchivePaths zips the given files/directories relative to root into a
// single payload. Paths that do not exist are skipped.
func ArchivePaths(root string, paths []string) ([]byte, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	for _, p := range paths {
		abs := filepath.Join(root, p)
		info, err := os.Stat(abs)
		if err != nil {
			continue
		}
		if info.IsDir() {
			err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() {
					return nil
				}
				return copyToArchive(zw, root, path)
			})
			if err != nil {
				return nil, err
			}
		} else {
			if err := copyToArchive(zw, root, abs); err != nil {
				return nil, err
			}
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func copyToArchive(zw *zip.Writer, root, p string) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()

	rel, err := filepath.Rel(root, p)
	if err != nil {
		return err
	}

	zf, err := zw.Create(filepath.ToSlash(rel))
	if err != nil {
		return err
	}

	if _, err := io.Copy(zf, f); err != nil {
		return err
	}
	return nil
}

// ExtractArchive unpacks a payload produced by ArchivePaths into root.
func ExtractArchive(root string, payload []byte) error {
	zr, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return err
	}

	for _, zf := range zr.File {
		name := filepath.FromSlash(zf.Name)
		if strings.Contains(name, "..") {
			continue
		}
		dst := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		if err := extractFile(zf, dst); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(zf *zip.File, dst string) error {
	rc, err := zf.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(f, rc)
	return err
}
