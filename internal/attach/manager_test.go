// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attach

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/parley-tui/internal/api"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// =============================================================================
// KIND MAPPING
// =============================================================================

func TestKindForFile(t *testing.T) {
	tests := []struct {
		name    string
		want    api.AttachmentKind
		wantErr bool
	}{
		{"report.pdf", api.KindPDF, false},
		{"REPORT.PDF", api.KindPDF, false},
		{"shot.png", api.KindImage, false},
		{"photo.JPEG", api.KindImage, false},
		{"notes.txt", "", true},
		{"archive.zip", "", true},
		{"noext", "", true},
	}
	for _, tt := range tests {
		kind, err := KindForFile(tt.name)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnsupportedType, tt.name)
			continue
		}
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, kind, tt.name)
	}
}

// =============================================================================
// STAGING
// =============================================================================

func TestStage(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "doc.pdf", "pdf content")

	m := NewManager(nil, 10)
	defer m.Clear()

	s, err := m.Stage(path)
	require.NoError(t, err)
	assert.Equal(t, "doc.pdf", s.Name)
	assert.Equal(t, api.KindPDF, s.Kind)
	assert.Equal(t, int64(len("pdf content")), s.Size)
	assert.Len(t, m.List(), 1)
}

func TestStage_Duplicate(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "doc.pdf", "x")

	m := NewManager(nil, 10)
	defer m.Clear()

	_, err := m.Stage(path)
	require.NoError(t, err)
	_, err = m.Stage(path)
	assert.ErrorIs(t, err, ErrAlreadyStaged)
}

func TestStage_UnsupportedType(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", "x")

	m := NewManager(nil, 10)
	_, err := m.Stage(path)
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestStage_CapacityLimit(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(nil, 1)
	defer m.Clear()

	_, err := m.Stage(writeFile(t, dir, "a.pdf", "a"))
	require.NoError(t, err)
	_, err = m.Stage(writeFile(t, dir, "b.pdf", "b"))
	assert.ErrorIs(t, err, ErrStagingFull)
}

func TestRemove_ReleasesHandle(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "doc.pdf", "x")

	m := NewManager(nil, 10)
	s, err := m.Stage(path)
	require.NoError(t, err)

	require.NoError(t, m.Remove("doc.pdf"))
	assert.Empty(t, m.List())

	// The handle is closed: further reads on it fail.
	buf := make([]byte, 1)
	_, err = s.file.Read(buf)
	assert.ErrorIs(t, err, os.ErrClosed)

	assert.Error(t, m.Remove("doc.pdf"), "removing twice fails")
}

func TestClear_ReleasesAllHandles(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(nil, 10)

	a, _ := m.Stage(writeFile(t, dir, "a.pdf", "a"))
	b, _ := m.Stage(writeFile(t, dir, "b.png", "b"))
	m.Clear()

	assert.Empty(t, m.List())
	buf := make([]byte, 1)
	_, err := a.file.Read(buf)
	assert.ErrorIs(t, err, os.ErrClosed)
	_, err = b.file.Read(buf)
	assert.ErrorIs(t, err, os.ErrClosed)
}

// =============================================================================
// UPLOAD
// =============================================================================

func TestUpload_UniformBatch(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		json.NewEncoder(w).Encode(api.UploadResult{
			Extractions: []api.Extraction{{RawText: "extracted", Name: "doc.pdf"}},
		})
	}))
	defer srv.Close()

	dir := t.TempDir()
	m := NewManager(api.NewClient(srv.URL), 10)
	_, err := m.Stage(writeFile(t, dir, "a.pdf", "pdf a"))
	require.NoError(t, err)
	_, err = m.Stage(writeFile(t, dir, "b.pdf", "pdf b"))
	require.NoError(t, err)

	require.NoError(t, m.Upload(context.Background(), 42))

	assert.Equal(t, []string{"/upload/pdf"}, paths)
	assert.Empty(t, m.List(), "upload consumes the staging area")

	ex := m.TakeExtractions()
	assert.Len(t, ex, 1)
	assert.Empty(t, m.TakeExtractions(), "extractions feed exactly one exchange")
}

func TestUpload_MixedKindsRejected(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(nil, 10)
	defer m.Clear()

	_, err := m.Stage(writeFile(t, dir, "doc.pdf", "pdf"))
	require.NoError(t, err)
	s, err := m.Stage(writeFile(t, dir, "shot.png", "png"))
	require.NoError(t, err)

	err = m.Upload(context.Background(), 42)
	assert.ErrorIs(t, err, ErrMixedKinds)

	// Rejected before network I/O: staging area and handles untouched.
	assert.Len(t, m.List(), 2)
	buf := make([]byte, 1)
	_, rerr := s.file.Read(buf)
	assert.NoError(t, rerr)
}

func TestUpload_NothingStaged(t *testing.T) {
	m := NewManager(nil, 10)
	assert.ErrorIs(t, m.Upload(context.Background(), 1), ErrNothingStaged)
}

func TestUpload_FailureStillConsumesHandles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"too large"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	dir := t.TempDir()
	m := NewManager(api.NewClient(srv.URL), 10)
	s, err := m.Stage(writeFile(t, dir, "doc.pdf", "pdf"))
	require.NoError(t, err)

	err = m.Upload(context.Background(), 1)
	assert.ErrorIs(t, err, api.ErrBadRequest)
	assert.Empty(t, m.List())

	buf := make([]byte, 1)
	_, rerr := s.file.Read(buf)
	assert.ErrorIs(t, rerr, os.ErrClosed, "handles are closed even when upload fails")
	assert.Empty(t, m.TakeExtractions())
}

// =============================================================================
// WATCHER
// =============================================================================

func TestWatcher_AutoStages(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(nil, 10)
	defer m.Clear()

	w, err := NewWatcher(m, dir, 20*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	staged := make(chan *Staged, 1)
	w.OnStaged = func(s *Staged) { staged <- s }
	require.NoError(t, w.Watch())

	writeFile(t, dir, "dropped.pdf", "content")

	select {
	case s := <-staged:
		assert.Equal(t, "dropped.pdf", s.Name)
	case <-time.After(3 * time.Second):
		t.Fatal("file was not auto-staged")
	}
	assert.Len(t, m.List(), 1)
}

func TestWatcher_IgnoresUnsupported(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(nil, 10)

	w, err := NewWatcher(m, dir, 10*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Watch())

	writeFile(t, dir, "ignore.txt", "x")
	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, m.List())
}
