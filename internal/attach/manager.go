// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attach

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jeranaias/parley-tui/internal/api"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnsupportedType indicates the file's extension maps to no
	// known attachment kind.
	ErrUnsupportedType = errors.New("unsupported attachment type")

	// ErrAlreadyStaged indicates the file is already in the staging
	// area.
	ErrAlreadyStaged = errors.New("file already staged")

	// ErrStagingFull indicates the staging area is at capacity.
	ErrStagingFull = errors.New("staging area full")

	// ErrNothingStaged indicates an upload was requested with an empty
	// staging area.
	ErrNothingStaged = errors.New("nothing staged")

	// ErrMixedKinds indicates the staging area holds both documents
	// and images. Upload batches must be uniform; unstage one kind
	// first.
	ErrMixedKinds = errors.New("staged files mix documents and images")
)

// =============================================================================
// KINDS
// =============================================================================

// KindForFile maps a filename to its attachment kind by extension.
func KindForFile(name string) (api.AttachmentKind, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return api.KindPDF, nil
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return api.KindImage, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(name))
}

// =============================================================================
// STAGED FILES
// =============================================================================

// Staged is one file queued for upload. The handle stays open while
// the file is staged so the content the user previewed is the content
// that uploads, even if the file is replaced on disk meanwhile.
type Staged struct {
	Name string
	Path string
	Kind api.AttachmentKind
	Size int64

	file *os.File
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager owns the staging area and retained extractions. All methods
// are safe for concurrent use.
type Manager struct {
	client    *api.Client
	maxStaged int

	mu          sync.Mutex
	staged      []*Staged
	extractions []api.Extraction
}

// NewManager creates a staging area that uploads through client and
// holds at most maxStaged files.
func NewManager(client *api.Client, maxStaged int) *Manager {
	if maxStaged <= 0 {
		maxStaged = 20
	}
	return &Manager{client: client, maxStaged: maxStaged}
}

// Stage opens the file at path and adds it to the staging area.
func (m *Manager) Stage(path string) (*Staged, error) {
	kind, err := KindForFile(path)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.staged) >= m.maxStaged {
		return nil, ErrStagingFull
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	for _, s := range m.staged {
		if s.Path == abs {
			return nil, ErrAlreadyStaged
		}
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stage %s: %w", path, err)
	}

	s := &Staged{
		Name: filepath.Base(abs),
		Path: abs,
		Kind: kind,
		Size: info.Size(),
		file: f,
	}
	m.staged = append(m.staged, s)
	return s, nil
}

// Remove drops one staged file by name and releases its handle.
func (m *Manager) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, s := range m.staged {
		if s.Name == name {
			s.file.Close()
			m.staged = append(m.staged[:i], m.staged[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("not staged: %s", name)
}

// Clear empties the staging area, releasing every handle.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.staged {
		s.file.Close()
	}
	m.staged = nil
}

// List returns a snapshot of the staging area.
func (m *Manager) List() []*Staged {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Staged(nil), m.staged...)
}

// =============================================================================
// UPLOAD
// =============================================================================

// Upload sends the staged files for the given conversation as one
// batch. The batch must be uniform in kind; a mixed staging area fails
// with ErrMixedKinds before any network I/O, leaving the staged files
// (and their handles) intact so the user can unstage one kind. On an
// actual upload attempt the handles are consumed whether or not it
// succeeds. Text extracted by the service is retained for the next
// exchange.
func (m *Manager) Upload(ctx context.Context, serial int) error {
	m.mu.Lock()
	if len(m.staged) == 0 {
		m.mu.Unlock()
		return ErrNothingStaged
	}
	kind := m.staged[0].Kind
	for _, s := range m.staged[1:] {
		if s.Kind != kind {
			m.mu.Unlock()
			return ErrMixedKinds
		}
	}
	staged := m.staged
	m.staged = nil
	m.mu.Unlock()

	files := make([]api.UploadFile, len(staged))
	for i, s := range staged {
		files[i] = api.UploadFile{Name: s.Name, Content: s.file}
	}

	result, err := m.client.Upload(ctx, kind, serial, files)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.extractions = append(m.extractions, result.Extractions...)
	m.mu.Unlock()
	return nil
}

// TakeExtractions returns the retained extractions and clears them.
// Each batch of extracted text feeds exactly one exchange.
func (m *Manager) TakeExtractions() []api.Extraction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.extractions
	m.extractions = nil
	return out
}
