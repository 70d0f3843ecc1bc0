// Package testsupport holds shared helpers for the engine's tests: golden
// file plumbing, a deterministic mock evaluator, and small fixture
// builders.
package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-wyrm/pkg/eval"
)

// Context returns a background context for tests.
func Context() context.Context {
	return context.Background()
}

// CompareGolden diffs want against got, returning an empty string on match.
func CompareGolden(want, got any) string {
	return cmp.Diff(want, got)
}

// MustReadGolden reads a golden file.
func MustReadGolden(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read golden: %v", err)
	}
	return string(data)
}

// WriteMaybeGolden updates a golden file when UPDATE_GOLDENS is set.
// Returns true if the golden was written (test should exit early).
func WriteMaybeGolden(t *testing.T, path string, data []byte) bool {
	t.Helper()
	if os.Getenv("UPDATE_GOLDENS") == "" {
		return false
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir golden dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write golden: %v", err)
	}
	return true
}

// MockEvaluator is a deliberately tiny evaluator for tests that need to
// isolate the engine from a real expression language. It understands
// variable names, single-quoted and double-quoted string literals, and
// integer literals; everything else evaluates to the expression text
// itself. Go-native values pass through.
type MockEvaluator struct {
	// Fail maps expression text to a forced error.
	Fail map[string]error
}

var _ eval.Evaluator = (*MockEvaluator)(nil)

func (m *MockEvaluator) Evaluate(_ context.Context, expr string, scope map[string]eval.Value) (eval.Value, error) {
	expr = strings.TrimSpace(expr)
	if err := m.Fail[expr]; err != nil {
		return nil, err
	}
	if v, ok := scope[expr]; ok {
		return v, nil
	}
	if len(expr) >= 2 && (expr[0] == '\'' || expr[0] == '"') && expr[len(expr)-1] == expr[0] {
		return expr[1 : len(expr)-1], nil
	}
	if n, err := strconv.Atoi(expr); err == nil {
		return n, nil
	}
	if isMockIdent(expr) {
		// Undefined name: the empty-string default.
		return "", nil
	}
	return expr, nil
}

func (m *MockEvaluator) Truthy(v eval.Value) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case int:
		return v != 0
	case []eval.Value:
		return len(v) > 0
	}
	return true
}

func (m *MockEvaluator) Iterate(v eval.Value) ([]eval.Value, error) {
	switch v := v.(type) {
	case []eval.Value:
		return v, nil
	case []int:
		out := make([]eval.Value, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out, nil
	case []string:
		out := make([]eval.Value, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, nil
	}
	return nil, eval.ErrNotIterable
}

func (m *MockEvaluator) Unpack(v eval.Value, n int) ([]eval.Value, error) {
	items, err := m.Iterate(v)
	if err != nil {
		return nil, &eval.ArityError{Want: n, Got: 1}
	}
	if len(items) != n {
		return nil, &eval.ArityError{Want: n, Got: len(items)}
	}
	return items, nil
}

func (m *MockEvaluator) Display(v eval.Value) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case bool:
		if v {
			return "true"
		}
		return "false"
	}
	return ""
}

func (m *MockEvaluator) Attribute(v eval.Value) eval.AttrValue {
	switch v := v.(type) {
	case nil:
		return eval.AttrValue{}
	case bool:
		if v {
			return eval.AttrValue{Present: true, Repeat: true}
		}
		return eval.AttrValue{}
	}
	return eval.AttrValue{Present: true, Value: m.Display(v)}
}

func isMockIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
