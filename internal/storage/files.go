// Package storage keeps uploaded files for the room. Files are stored flat
// in one directory under "<id>_<original name>".
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const (
	idLen       = 8
	unnamedFile = "unnamed"
)

var (
	ErrTooLarge = errors.New("file too large")
	ErrNotFound = errors.New("file not found")
)

type Stored struct {
	Filename   string
	StoredName string
	Size       int64
}

type FileStore struct {
	fs      afero.Fs
	dir     string
	maxSize int64
}

func NewFileStore(fs afero.Fs, dir string, maxSize int64) *FileStore {
	return &FileStore{fs: fs, dir: filepath.Clean(dir), maxSize: maxSize}
}

func (s *FileStore) MaxSize() int64 { return s.maxSize }

// Init creates the upload directory.
func (s *FileStore) Init() error {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	return nil
}

// Cleanup removes the upload directory and everything in it.
func (s *FileStore) Cleanup() error {
	return s.fs.RemoveAll(s.dir)
}

// Save copies at most maxSize bytes of r. A larger body is discarded and
// ErrTooLarge returned.
func (s *FileStore) Save(filename string, r io.Reader) (Stored, error) {
	name := sanitize(filename)
	stored := strings.ReplaceAll(uuid.NewString(), "-", "")[:idLen] + "_" + name
	path := filepath.Join(s.dir, stored)

	f, err := s.fs.Create(path)
	if err != nil {
		return Stored{}, fmt.Errorf("create %s: %w", stored, err)
	}
	n, err := io.Copy(f, io.LimitReader(r, s.maxSize+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > s.maxSize {
		err = ErrTooLarge
	}
	if err != nil {
		if rmErr := s.fs.Remove(path); rmErr != nil {
			log.Warn().Err(rmErr).Str("module", "storage").Str("stored_name", stored).Msg("remove partial upload")
		}
		return Stored{}, err
	}

	log.Info().Str("module", "storage").Str("stored_name", stored).Int64("size", n).Msg("file stored")
	return Stored{Filename: name, StoredName: stored, Size: n}, nil
}

// Open returns the stored file and the name it was uploaded under.
func (s *FileStore) Open(storedName string) (afero.File, string, error) {
	if storedName == "" || storedName != filepath.Base(storedName) || storedName == "." || storedName == ".." {
		return nil, "", ErrNotFound
	}
	path := filepath.Join(s.dir, storedName)
	if rel, err := filepath.Rel(s.dir, path); err != nil || strings.HasPrefix(rel, "..") {
		return nil, "", ErrNotFound
	}

	f, err := s.fs.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}
	if fi, err := f.Stat(); err != nil || fi.IsDir() {
		_ = f.Close()
		return nil, "", ErrNotFound
	}
	return f, OriginalName(storedName), nil
}

// OriginalName strips the id prefix.
func OriginalName(storedName string) string {
	if _, name, ok := strings.Cut(storedName, "_"); ok {
		return name
	}
	return storedName
}

func sanitize(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		return unnamedFile
	}
	return name
}
