// Package loader defines the template lookup capability. Include targets
// and asset filenames resolve through a Loader; the engine appends the
// command-specific extension before calling it.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
)

// ErrNotFound reports a name that no search location could resolve. Match
// it with errors.Is.
var ErrNotFound = errors.New("loader: template not found")

// Loader resolves a file name to raw source text.
type Loader interface {
	Load(ctx context.Context, name string) (string, error)
}

// Dir builds a loader searching directories on disk in order.
func Dir(dirs ...string) Loader {
	return &fsLoader{fsys: osFS{}, dirs: dirs}
}

// FS builds a loader over an fs.FS, optionally scoped to subdirectories
// searched in order. With no dirs the FS root is searched directly.
func FS(fsys fs.FS, dirs ...string) Loader {
	return &fsLoader{fsys: fsys, dirs: dirs}
}

type fsLoader struct {
	fsys fs.FS
	dirs []string
}

var _ Loader = (*fsLoader)(nil)

func (l *fsLoader) Load(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	search := l.dirs
	if len(search) == 0 {
		search = []string{"."}
	}
	for _, dir := range search {
		data, err := fs.ReadFile(l.fsys, path.Join(dir, name))
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("loader: read %s: %w", name, err)
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// osFS adapts the host filesystem so Dir can accept absolute and relative
// paths alike.
type osFS struct{}

func (osFS) Open(name string) (fs.File, error) { return os.Open(name) }

// Map is an in-memory loader keyed by file name, used by tests and for
// embedding small template sets.
type Map map[string]string

var _ Loader = Map(nil)

func (m Map) Load(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if src, ok := m[name]; ok {
		return src, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}
