// Package workspace owns the scratch directories programs run in.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	appErr "nitz/pkg/errors"

	"github.com/google/uuid"
)

// Manager hands out per-submission scratch areas under one root.
type Manager struct {
	root string
}

// NewManager creates root if needed.
func NewManager(root string) (*Manager, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "nitz-judge")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create work root: %w", err)
	}
	return &Manager{root: root}, nil
}

// Root returns the directory every scratch area lives in.
func (m *Manager) Root() string {
	return m.root
}

// Acquire creates <root>/<submissionID>-<uuid>. The caller must Release it.
func (m *Manager) Acquire(submissionID string) (*Area, error) {
	if submissionID == "" {
		return nil, appErr.ValidationError("submission_id", "required")
	}
	dir := filepath.Join(m.root, fmt.Sprintf("%s-%s", filepath.Base(submissionID), uuid.NewString()))
	if err := os.Mkdir(dir, 0755); err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeSystemError, "create submission work root failed")
	}
	return &Area{dir: dir}, nil
}

// Area is one submission's scratch directory.
type Area struct {
	dir     string
	once    sync.Once
	release error
}

// Path returns the area root.
func (a *Area) Path() string {
	return a.dir
}

// Dir creates a uniquely named <label>-<uuid> directory inside the area.
func (a *Area) Dir(label string) (string, error) {
	dir := filepath.Join(a.dir, fmt.Sprintf("%s-%s", filepath.Base(label), uuid.NewString()))
	if err := os.Mkdir(dir, 0755); err != nil {
		return "", appErr.Wrapf(err, appErr.JudgeSystemError, "create %s workdir failed", label)
	}
	return dir, nil
}

// Release removes the area and everything in it. Later calls return the first result.
func (a *Area) Release() error {
	a.once.Do(func() {
		a.release = os.RemoveAll(a.dir)
	})
	return a.release
}
