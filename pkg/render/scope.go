package render

import "github.com/goliatone/go-wyrm/pkg/eval"

// LoopRecord is the per-iteration metadata exposed as `loop` inside a
// `for` body. Parent links to the enclosing loop's record when loops nest.
type LoopRecord struct {
	Counter     int
	Counter1    int
	Revcounter  int
	Revcounter1 int
	First       bool
	Last        bool
	Parent      *LoopRecord
}

func newLoopRecord(i, length int, parent *LoopRecord) *LoopRecord {
	return &LoopRecord{
		Counter:     i,
		Counter1:    i + 1,
		Revcounter:  length - i - 1,
		Revcounter1: length - i,
		First:       i == 0,
		Last:        i == length-1,
		Parent:      parent,
	}
}

// scope is one frame of the chained render context. only marks a barrier:
// lookups stop there instead of continuing to the parent, implementing
// `with only` isolation.
type scope struct {
	vars   map[string]eval.Value
	parent *scope
	only   bool
}

func newScope(vars map[string]eval.Value) *scope {
	return &scope{vars: vars}
}

func (s *scope) child(vars map[string]eval.Value, only bool) *scope {
	return &scope{vars: vars, parent: s, only: only}
}

func (s *scope) lookup(name string) (eval.Value, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
		if cur.only {
			break
		}
	}
	return nil, false
}

// flatten materializes every visible binding, inner frames shadowing outer
// ones, for handing to the evaluator.
func (s *scope) flatten() map[string]eval.Value {
	var frames []*scope
	for cur := s; cur != nil; cur = cur.parent {
		frames = append(frames, cur)
		if cur.only {
			break
		}
	}
	out := make(map[string]eval.Value)
	for i := len(frames) - 1; i >= 0; i-- {
		for k, v := range frames[i].vars {
			out[k] = v
		}
	}
	return out
}

// loopRecord reports the innermost visible loop record, if any.
func (s *scope) loopRecord() *LoopRecord {
	v, ok := s.lookup("loop")
	if !ok {
		return nil
	}
	rec, _ := v.(*LoopRecord)
	return rec
}
