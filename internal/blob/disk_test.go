package blob

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *DiskStore {
	t.Helper()
	s, err := NewDiskStore(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)
	s.now = func() time.Time { return time.UnixMilli(1700000000123) }
	return s
}

func TestSaveDisambiguatesName(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)

	b, err := s.Save("my voice note.webm", strings.NewReader("audio bytes"))
	req.NoError(err)
	req.Equal("my_voice_note_1700000000123.webm", b.Name)
	req.Equal("/uploads/my_voice_note_1700000000123.webm", b.URL)
	req.Equal(int64(len("audio bytes")), b.Size)

	content, err := os.ReadFile(filepath.Join(s.Dir(), b.Name))
	req.NoError(err)
	req.Equal("audio bytes", string(content))
}

func TestSaveStripsDirectories(t *testing.T) {
	s := newTestStore(t)
	b, err := s.Save("../../etc/passwd", strings.NewReader("x"))
	require.NoError(t, err)
	require.Equal(t, "passwd_1700000000123.txt", b.Name)
}

func TestSaveSniffsMissingExtension(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	b, err := s.Save("screenshot", strings.NewReader(string(png)))
	req.NoError(err)
	req.Equal("image/png", b.MIME)
	req.Equal("screenshot_1700000000123.png", b.Name)

	b, err = s.Save("", strings.NewReader("plain"))
	req.NoError(err)
	req.True(strings.HasPrefix(b.Name, "upload_"))
}

func TestSaveRefusesToOverwrite(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Save("a.txt", strings.NewReader("one"))
	require.NoError(t, err)
	_, err = s.Save("a.txt", strings.NewReader("two"))
	require.Error(t, err)
}

func TestNewDiskStoreRequiresDir(t *testing.T) {
	_, err := NewDiskStore("")
	require.Error(t, err)
}
