package store

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FieldOp is a server-side field transform applied at write time
type FieldOp interface {
	apply(cur any, exists bool) (value any, keep bool, err error)
}

type incrementOp struct{ n int64 }

// Increment adds n to an integer field, treating a missing field as 0
func Increment(n int64) FieldOp { return incrementOp{n: n} }

func (o incrementOp) apply(cur any, exists bool) (any, bool, error) {
	if !exists || cur == nil {
		return json.Number(strconv.FormatInt(o.n, 10)), true, nil
	}
	num, ok := cur.(json.Number)
	if !ok {
		return nil, false, fmt.Errorf("increment: field is %T, not a number", cur)
	}
	if i, err := num.Int64(); err == nil {
		return json.Number(strconv.FormatInt(i+o.n, 10)), true, nil
	}
	d, err := decimal.NewFromString(num.String())
	if err != nil {
		return nil, false, fmt.Errorf("increment: %w", err)
	}
	return json.Number(d.Add(decimal.NewFromInt(o.n)).String()), true, nil
}

type incrementDecimalOp struct{ d decimal.Decimal }

// IncrementDecimal adds d to a decimal field stored as a string
func IncrementDecimal(d decimal.Decimal) FieldOp { return incrementDecimalOp{d: d} }

func (o incrementDecimalOp) apply(cur any, exists bool) (any, bool, error) {
	base, err := AsDecimal(cur)
	if err != nil {
		return nil, false, fmt.Errorf("increment decimal: %w", err)
	}
	return base.Add(o.d).String(), true, nil
}

type arrayUnionOp struct{ values []any }

// ArrayUnion appends each value that is not already present
func ArrayUnion(values ...any) FieldOp { return arrayUnionOp{values: values} }

func (o arrayUnionOp) apply(cur any, exists bool) (any, bool, error) {
	var arr []any
	if exists && cur != nil {
		a, ok := cur.([]any)
		if !ok {
			return nil, false, fmt.Errorf("array union: field is %T, not an array", cur)
		}
		arr = append(arr, a...)
	}
	for _, v := range o.values {
		nv, err := normalize(v)
		if err != nil {
			return nil, false, err
		}
		found := false
		for _, have := range arr {
			if reflect.DeepEqual(have, nv) {
				found = true
				break
			}
		}
		if !found {
			arr = append(arr, nv)
		}
	}
	if arr == nil {
		arr = []any{}
	}
	return arr, true, nil
}

type deleteOp struct{}

// Delete removes the field
var Delete FieldOp = deleteOp{}

func (deleteOp) apply(any, bool) (any, bool, error) { return nil, false, nil }

// Apply returns a copy of doc with updates applied in path order
func Apply(doc Doc, updates Updates) (Doc, error) {
	out := Clone(doc)
	if out == nil {
		out = Doc{}
	}
	paths := make([]string, 0, len(updates))
	for p := range updates {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		if err := applyPath(out, p, updates[p]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func applyPath(doc Doc, path string, value any) error {
	parts := strings.Split(path, ".")
	for _, part := range parts {
		if part == "" {
			return fmt.Errorf("invalid field path %q", path)
		}
	}

	m := map[string]any(doc)
	for _, part := range parts[:len(parts)-1] {
		next, ok := m[part]
		if !ok || next == nil {
			child := map[string]any{}
			m[part] = child
			m = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("field path %q crosses non-object %q", path, part)
		}
		m = child
	}
	return setLeaf(m, parts[len(parts)-1], value)
}

func setLeaf(m map[string]any, key string, value any) error {
	if op, ok := value.(FieldOp); ok {
		cur, exists := m[key]
		v, keep, err := op.apply(cur, exists)
		if err != nil {
			return err
		}
		if keep {
			m[key] = v
		} else {
			delete(m, key)
		}
		return nil
	}
	v, err := normalize(value)
	if err != nil {
		return err
	}
	m[key] = v
	return nil
}

// Merge deep-merges data into doc, objects merge key by key and FieldOps are applied
func Merge(doc Doc, data Doc) (Doc, error) {
	out := Clone(doc)
	if out == nil {
		out = Doc{}
	}
	if err := mergeInto(out, data); err != nil {
		return nil, err
	}
	return out, nil
}

func mergeInto(dst map[string]any, src map[string]any) error {
	for k, v := range src {
		switch sv := v.(type) {
		case FieldOp:
			if err := setLeaf(dst, k, sv); err != nil {
				return err
			}
		case map[string]any:
			if dm, ok := dst[k].(map[string]any); ok {
				if err := mergeInto(dm, sv); err != nil {
					return err
				}
				continue
			}
			child := map[string]any{}
			if err := mergeInto(child, sv); err != nil {
				return err
			}
			dst[k] = child
		case Doc:
			if err := mergeInto(dst, map[string]any{k: map[string]any(sv)}); err != nil {
				return err
			}
		default:
			if err := setLeaf(dst, k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// Replace builds a fresh document from data, resolving FieldOps against nothing
func Replace(data Doc) (Doc, error) {
	return Merge(nil, data)
}

// Lookup reads a dotted path
func Lookup(doc Doc, path string) (any, bool) {
	var cur any = map[string]any(doc)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// AsDecimal reads a number or numeric string, nil is zero
func AsDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case nil:
		return decimal.Zero, nil
	case string:
		return decimal.NewFromString(t)
	case json.Number:
		return decimal.NewFromString(t.String())
	case float64:
		return decimal.NewFromFloat(t), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	}
	return decimal.Zero, fmt.Errorf("%T is not numeric", v)
}

// Compare orders two document values: numbers numerically, timestamps by
// time, everything else by its string form. Missing values sort first.
func Compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if an, ok := a.(json.Number); ok {
		if bn, ok := b.(json.Number); ok {
			da, errA := decimal.NewFromString(an.String())
			db, errB := decimal.NewFromString(bn.String())
			if errA == nil && errB == nil {
				return da.Cmp(db)
			}
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		ta, errA := time.Parse(time.RFC3339Nano, as)
		tb, errB := time.Parse(time.RFC3339Nano, bs)
		if errA == nil && errB == nil {
			return ta.Compare(tb)
		}
		return strings.Compare(as, bs)
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// Equal compares a document value with a filter value
func Equal(docValue, filterValue any) bool {
	nv, err := normalize(filterValue)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(docValue, nv)
}
