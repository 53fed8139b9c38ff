package storage

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Storage persists uploaded document files on local disk. File names are
// uuid-prefixed so concurrent uploads of the same original name never collide.
type Storage struct {
	Dir string
}

func New(dir string) (*Storage, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("storage dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{Dir: dir}, nil
}

// SaveUpload streams a multipart file to disk and returns the stored file
// name, the absolute path and the number of bytes written.
func (s *Storage) SaveUpload(fh *multipart.FileHeader) (name string, path string, size int64, err error) {
	src, err := fh.Open()
	if err != nil {
		return "", "", 0, err
	}
	defer src.Close()

	name = uuid.NewString() + sanitizeExt(fh.Filename)
	path = filepath.Join(s.Dir, name)
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", "", 0, err
	}
	defer dst.Close()

	size, err = io.Copy(dst, src)
	if err != nil {
		_ = os.Remove(path)
		return "", "", 0, err
	}
	return name, path, size, nil
}

// Open returns a reader and the file size, or an error if the file is gone.
func (s *Storage) Open(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, st.Size(), nil
}

// Remove deletes a stored file. Missing files are not an error.
func (s *Storage) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func sanitizeExt(original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	if ext == "" || len(ext) > 8 || strings.ContainsAny(ext, "/\\") {
		return ""
	}
	return ext
}
