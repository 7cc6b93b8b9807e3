package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/nbsync/internal/models"
)

const (
	notebookExt = ".ipynb"
	scriptExt   = ".py"
)

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to workspace directory
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// safePath resolves a relative path against the workspace root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	joined := filepath.Join(f.root, cleaned)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes workspace root: %s", rel)
	}
	return abs, nil
}

// List walks the workspace and merges notebook and script artifacts into one
// entry per stem. Jupyter checkpoint directories are skipped.
func (f *FS) List() ([]models.DocumentMetadata, error) {
	byName := make(map[string]*models.DocumentMetadata)

	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if d.Name() == ".ipynb_checkpoints" || (p != f.root && strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(d.Name())
		if ext != notebookExt && ext != scriptExt {
			return nil
		}
		rel, relErr := filepath.Rel(f.root, p)
		if relErr != nil {
			return relErr
		}
		name := filepath.ToSlash(strings.TrimSuffix(rel, ext))

		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		m, ok := byName[name]
		if !ok {
			m = &models.DocumentMetadata{Name: name}
			byName[name] = m
		}
		if ext == notebookExt {
			m.HasNotebook = true
		} else {
			m.HasScript = true
		}
		if info.ModTime().After(m.UpdatedAt) {
			m.UpdatedAt = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}

	out := make([]models.DocumentMetadata, 0, len(byName))
	for _, m := range byName {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ReadNotebook returns the raw bytes of the structured form.
func (f *FS) ReadNotebook(name string) ([]byte, error) {
	return f.read(name + notebookExt)
}

// ReadScript returns the raw bytes of the flat form.
func (f *FS) ReadScript(name string) ([]byte, error) {
	return f.read(name + scriptExt)
}

// WriteNotebook atomically writes the structured form.
func (f *FS) WriteNotebook(name string, content []byte) error {
	return f.write(name+notebookExt, content)
}

// WriteScript atomically writes the flat form.
func (f *FS) WriteScript(name string, content []byte) error {
	return f.write(name+scriptExt, content)
}

func (f *FS) read(path string) ([]byte, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// write stores content via tmp file → fsync → rename.
func (f *FS) write(path string, content []byte) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".nbsync-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}
