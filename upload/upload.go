// Package upload stores avatar and document uploads on local disk.
package upload

import (
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Upload errors.
var (
	ErrTooLarge    = errors.New("file too large")
	ErrInvalidType = errors.New("invalid file type")
	ErrInvalidName = errors.New("invalid file name")
	ErrNotFound    = errors.New("file not found")
)

// allowedTypes are the accepted declared MIME types.
var allowedTypes = map[string]bool{
	"image/jpeg":         true,
	"image/png":          true,
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// allowedNames is matched against the lower-cased original file name.
const allowedNames = "*.{jpg,jpeg,png,pdf,doc,docx}"

// Kind is an upload slot: the multipart field name and its size limit.
type Kind struct {
	Field   string
	MaxSize int64
}

var (
	Avatar   = Kind{Field: "avatar", MaxSize: 2 << 20}
	Document = Kind{Field: "document", MaxSize: 5 << 20}
)

// storedNames matches names produced by Save.
var storedNames = fmt.Sprintf("{%s,%s}-*-*.*", Avatar.Field, Document.Field)

// File describes a stored upload.
type File struct {
	Name         string `json:"filename"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
	ContentType  string `json:"mimetype"`
	URL          string `json:"url"`
}

// Store writes uploads to a directory served under URLPrefix.
type Store struct {
	dir       string
	urlPrefix string
	now       func() time.Time
}

// NewStore creates dir if needed.
func NewStore(dir, urlPrefix string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if urlPrefix == "" {
		urlPrefix = "/uploads"
	}
	return &Store{dir: dir, urlPrefix: strings.TrimRight(urlPrefix, "/"), now: time.Now}, nil
}

// Dir is the directory files are written to.
func (s *Store) Dir() string { return s.dir }

// Check validates type and declared size without reading the content.
func Check(kind Kind, originalName, contentType string, size int64) error {
	if size > kind.MaxSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, size, kind.MaxSize)
	}
	if !allowedTypes[strings.ToLower(contentType)] {
		return fmt.Errorf("%w: %s", ErrInvalidType, contentType)
	}
	ok, err := doublestar.Match(allowedNames, strings.ToLower(filepath.Base(originalName)))
	if err != nil || !ok {
		return fmt.Errorf("%w: %s", ErrInvalidType, originalName)
	}
	return nil
}

// Save validates and stores r as <field>-<unix-ms>-<random><ext>.
// Content longer than the kind's limit is rejected even when the declared
// size was smaller.
func (s *Store) Save(kind Kind, originalName, contentType string, size int64, r io.Reader) (*File, error) {
	if err := Check(kind, originalName, contentType, size); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(originalName))
	name := fmt.Sprintf("%s-%d-%d%s", kind.Field, s.now().UnixMilli(), rand.Int64N(1e9), ext)
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	n, err := io.Copy(f, io.LimitReader(r, kind.MaxSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > kind.MaxSize {
		err = ErrTooLarge
	}
	if err != nil {
		os.Remove(path)
		if errors.Is(err, ErrTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("write %s: %w", name, err)
	}

	return &File{
		Name:         name,
		OriginalName: originalName,
		Size:         n,
		ContentType:  contentType,
		URL:          s.urlPrefix + "/" + name,
	}, nil
}

// Delete removes a stored file by name. Only names produced by Save are
// accepted.
func (s *Store) Delete(name string) error {
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return ErrInvalidName
	}
	if ok, _ := doublestar.Match(storedNames, name); !ok {
		return ErrInvalidName
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}
