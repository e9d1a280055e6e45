// Package blob stores uploaded media on local disk.
package blob

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// URLPrefix is the path under which stored blobs are served.
const URLPrefix = "/uploads"

var whitespace = regexp.MustCompile(`\s+`)

// Blob describes a stored upload.
type Blob struct {
	Name         string
	URL          string
	OriginalName string
	MIME         string
	Size         int64
}

type DiskStore struct {
	dir string
	now func() time.Time
}

// NewDiskStore creates dir if needed.
func NewDiskStore(dir string) (*DiskStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("uploads dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	return &DiskStore{dir: dir, now: time.Now}, nil
}

func (s *DiskStore) Dir() string {
	return s.dir
}

// Save writes r under a name derived from originalName with a millisecond
// timestamp appended, and returns its retrieval URL.
func (s *DiskStore) Save(originalName string, r io.Reader) (Blob, error) {
	head := make([]byte, 3072)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return Blob{}, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	mtype := mimetype.Detect(head)

	name := s.fileName(originalName, mtype)
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Blob{}, fmt.Errorf("create blob: %w", err)
	}
	size, err := io.Copy(f, io.MultiReader(bytes.NewReader(head), r))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(filepath.Join(s.dir, name))
		return Blob{}, fmt.Errorf("write blob: %w", err)
	}

	return Blob{
		Name:         name,
		URL:          path.Join(URLPrefix, name),
		OriginalName: originalName,
		MIME:         mtype.String(),
		Size:         size,
	}, nil
}

// fileName turns "my clip.webm" into "my_clip_<unixMillis>.webm". Uploads with
// no extension take the one matching their sniffed content type.
func (s *DiskStore) fileName(originalName string, mtype *mimetype.MIME) string {
	base := filepath.Base(filepath.ToSlash(strings.ReplaceAll(originalName, `\`, "/")))
	if base == "." || base == "/" {
		base = ""
	}
	ext := filepath.Ext(base)
	base = strings.TrimSuffix(base, ext)
	base = whitespace.ReplaceAllString(base, "_")
	if base == "" {
		base = "upload"
	}
	if ext == "" {
		ext = mtype.Extension()
	}
	return fmt.Sprintf("%s_%d%s", base, s.now().UnixMilli(), ext)
}
