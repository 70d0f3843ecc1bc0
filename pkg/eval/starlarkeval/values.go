package starlarkeval

import (
	"fmt"
	"reflect"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// toStarlark converts a Go value from the render context into a Starlark
// value. Starlark values pass through unchanged. Structs become
// starlarkstruct values with lower-cased field names so templates can write
// `loop.counter` against the renderer's loop record.
func toStarlark(v any) (starlark.Value, error) {
	switch v := v.(type) {
	case nil:
		return starlark.None, nil
	case starlark.Value:
		return v, nil
	case bool:
		return starlark.Bool(v), nil
	case string:
		return starlark.String(v), nil
	case int:
		return starlark.MakeInt(v), nil
	case int8:
		return starlark.MakeInt64(int64(v)), nil
	case int16:
		return starlark.MakeInt64(int64(v)), nil
	case int32:
		return starlark.MakeInt64(int64(v)), nil
	case int64:
		return starlark.MakeInt64(v), nil
	case uint:
		return starlark.MakeUint64(uint64(v)), nil
	case uint8:
		return starlark.MakeUint64(uint64(v)), nil
	case uint16:
		return starlark.MakeUint64(uint64(v)), nil
	case uint32:
		return starlark.MakeUint64(uint64(v)), nil
	case uint64:
		return starlark.MakeUint64(v), nil
	case float32:
		return starlark.Float(float64(v)), nil
	case float64:
		return starlark.Float(v), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return starlark.None, nil
		}
		return toStarlark(rv.Elem().Interface())

	case reflect.Slice, reflect.Array:
		items := make([]starlark.Value, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			item, err := toStarlark(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			items[i] = item
		}
		return starlark.NewList(items), nil

	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("unsupported map key type %s", rv.Type().Key())
		}
		dict := starlark.NewDict(rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			val, err := toStarlark(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(iter.Key().String()), val); err != nil {
				return nil, err
			}
		}
		return dict, nil

	case reflect.Struct:
		fields := make(starlark.StringDict, rv.NumField())
		t := rv.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			val, err := toStarlark(rv.Field(i).Interface())
			if err != nil {
				return nil, err
			}
			fields[lowerFirst(f.Name)] = val
		}
		return starlarkstruct.FromStringDict(starlarkstruct.Default, fields), nil
	}

	return nil, fmt.Errorf("unsupported value type %T", v)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	c := s[0]
	if c >= 'A' && c <= 'Z' {
		return string(c+('a'-'A')) + s[1:]
	}
	return s
}
