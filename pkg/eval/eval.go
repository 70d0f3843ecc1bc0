// Package eval defines the expression capability the engine calls into. The
// core never parses expression text itself; everything inside `{...}`, `=`
// lines, and command arguments flows through an Evaluator. The default
// implementation lives in the starlarkeval subpackage.
package eval

import (
	"context"
	"errors"
	"fmt"
)

// Value is an opaque expression result. Implementations may pass their own
// value types through unchanged; the engine only inspects values via the
// Evaluator that produced them.
type Value = any

// ErrNotIterable reports a `for` target that does not yield a sequence.
var ErrNotIterable = errors.New("eval: value is not iterable")

// ArityError reports a multi-name `for` unpacking mismatch.
type ArityError struct {
	Want int
	Got  int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("eval: cannot unpack %d values into %d names", e.Got, e.Want)
}

// AttrValue reports how a value renders as an HTML attribute. Present false
// omits the attribute entirely; Repeat marks a boolean true, which the
// renderer emits as name="name".
type AttrValue struct {
	Present bool
	Repeat  bool
	Value   string
}

// Evaluator is the sole boundary between the engine and a full expression
// grammar. Scope maps every visible variable name to its value; names
// absent from the scope evaluate as an empty string unless the template
// guards them with `require`.
type Evaluator interface {
	Evaluate(ctx context.Context, expr string, scope map[string]Value) (Value, error)

	// Truthy is the coercion used by if/elif conditions.
	Truthy(v Value) bool

	// Iterate materializes a finite sequence, or ErrNotIterable.
	Iterate(v Value) ([]Value, error)

	// Unpack splits v into exactly n values, or *ArityError.
	Unpack(v Value, n int) ([]Value, error)

	// Display is the string form used for interpolation and `=` output.
	Display(v Value) string

	// Attribute is the coercion used for tag attribute values.
	Attribute(v Value) AttrValue
}
