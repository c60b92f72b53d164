package quote

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
)

// Body is a vendor response decoded into one of three shapes: Primitive,
// Object or Sequence.
type Body interface {
	raw() any
}

// Primitive is a scalar response: string, number, bool or null. Bodies that are
// not valid JSON are kept as a Primitive holding the raw text.
type Primitive struct {
	Value any
}

// Object is a key-keyed structure; a candidate for the rate record.
type Object map[string]any

// Sequence is a list-indexed structure.
type Sequence []Body

func (p Primitive) raw() any { return p.Value }

func (o Object) raw() any { return map[string]any(o) }

func (s Sequence) raw() any {
	out := make([]any, len(s))
	for i, b := range s {
		out[i] = b.raw()
	}
	return out
}

// DecodeBody decodes a vendor response. It never fails.
func DecodeBody(data []byte) Body {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return Primitive{Value: string(data)}
	}
	return classify(v)
}

// classify maps a decoded JSON value onto a Body. Objects whose keys are
// exactly "0".."n-1" are list-indexed and become a Sequence.
func classify(v any) Body {
	switch t := v.(type) {
	case map[string]any:
		if items, ok := indexedItems(t); ok {
			return sequenceOf(items)
		}
		return Object(t)
	case []any:
		return sequenceOf(t)
	case Body:
		return t
	default:
		return Primitive{Value: v}
	}
}

func sequenceOf(items []any) Sequence {
	seq := make(Sequence, len(items))
	for i, item := range items {
		seq[i] = classify(item)
	}
	return seq
}

func indexedItems(m map[string]any) ([]any, bool) {
	if len(m) == 0 {
		return nil, false
	}
	keys := make([]int, 0, len(m))
	for k := range m {
		n, err := strconv.Atoi(k)
		if err != nil || strconv.Itoa(n) != k {
			return nil, false
		}
		keys = append(keys, n)
	}
	sort.Ints(keys)
	items := make([]any, len(keys))
	for i, n := range keys {
		if n != i {
			return nil, false
		}
		items[i] = m[strconv.Itoa(n)]
	}
	return items, true
}

// SelectCandidate picks the rate record out of a body. An object is its own
// candidate; a sequence yields its last non-empty object element.
func SelectCandidate(b Body) (Object, bool) {
	switch t := b.(type) {
	case Object:
		if len(t) == 0 {
			return nil, false
		}
		return t, true
	case Sequence:
		for i := len(t) - 1; i >= 0; i-- {
			if obj, ok := t[i].(Object); ok && len(obj) > 0 {
				return obj, true
			}
		}
	}
	return nil, false
}
