package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
)

func TestMap(t *testing.T) {
	m := Map{"a.wyrm": "alpha"}

	src, err := m.Load(context.Background(), "a.wyrm")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if src != "alpha" {
		t.Errorf("src = %q", src)
	}

	_, err = m.Load(context.Background(), "b.wyrm")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDirSearchOrder(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()

	write := func(dir, name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}
	write(first, "shared.wyrm", "from first")
	write(second, "shared.wyrm", "from second")
	write(second, "only.wyrm", "only here")

	l := Dir(first, second)

	src, err := l.Load(context.Background(), "shared.wyrm")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if src != "from first" {
		t.Errorf("earlier directory should win, got %q", src)
	}

	src, err = l.Load(context.Background(), "only.wyrm")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if src != "only here" {
		t.Errorf("src = %q", src)
	}

	_, err = l.Load(context.Background(), "nowhere.wyrm")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestFS(t *testing.T) {
	fsys := fstest.MapFS{
		"layouts/base.wyrm": {Data: []byte("base")},
		"root.wyrm":         {Data: []byte("root")},
	}

	t.Run("scoped to subdirectory", func(t *testing.T) {
		l := FS(fsys, "layouts")
		src, err := l.Load(context.Background(), "base.wyrm")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if src != "base" {
			t.Errorf("src = %q", src)
		}
	})

	t.Run("root search by default", func(t *testing.T) {
		l := FS(fsys)
		src, err := l.Load(context.Background(), "root.wyrm")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if src != "root" {
			t.Errorf("src = %q", src)
		}
	})
}

func TestLoadCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := Map{"a": "x"}
	if _, err := m.Load(ctx, "a"); err == nil {
		t.Fatal("expected a context error")
	}
}
