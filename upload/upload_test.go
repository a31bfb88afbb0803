package upload

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "uploads"), "")
	require.NoError(t, err)
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return s
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name        string
		kind        Kind
		file        string
		contentType string
		size        int64
		wantErr     error
	}{
		{"png avatar", Avatar, "me.PNG", "image/png", 1024, nil},
		{"docx document", Document, "plan.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", 4 << 20, nil},
		{"avatar too large", Avatar, "me.jpg", "image/jpeg", 3 << 20, ErrTooLarge},
		{"document at limit", Document, "a.pdf", "application/pdf", 5 << 20, nil},
		{"gif rejected", Avatar, "me.gif", "image/gif", 10, ErrInvalidType},
		{"mismatched extension", Document, "run.exe", "application/pdf", 10, ErrInvalidType},
		{"no extension", Document, "README", "application/pdf", 10, ErrInvalidType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.kind, tt.file, tt.contentType, tt.size)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestSaveAndDelete(t *testing.T) {
	s := newTestStore(t)

	f, err := s.Save(Avatar, "Me.JPG", "image/jpeg", 5, strings.NewReader("hello"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(f.Name, "avatar-1700000000000-"))
	assert.True(t, strings.HasSuffix(f.Name, ".jpg"))
	assert.Equal(t, "/uploads/"+f.Name, f.URL)
	assert.EqualValues(t, 5, f.Size)

	data, err := os.ReadFile(filepath.Join(s.Dir(), f.Name))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, s.Delete(f.Name))
	assert.ErrorIs(t, s.Delete(f.Name), ErrNotFound)
}

func TestSave_ContentOverLimit(t *testing.T) {
	s := newTestStore(t)
	big := bytes.Repeat([]byte("x"), int(Avatar.MaxSize)+1)

	_, err := s.Save(Avatar, "a.png", "image/png", 10, bytes.NewReader(big))
	assert.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "partial file removed")
}

func TestDelete_RejectsForeignNames(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"../etc/passwd", "config.yaml", ".avatar-1-2.png", "sub/avatar-1-2.png"} {
		assert.ErrorIs(t, s.Delete(name), ErrInvalidName, name)
	}
}
