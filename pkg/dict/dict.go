// Package dict implements the Caelus/OpenFOAM dictionary file format:
// an insertion-ordered key/value model, a lexer and parser for the input
// grammar, and a printer that emits standard formatted input files.
package dict

import (
	"fmt"
	"strings"
)

// Literal is a double-quoted string value, e.g. "(U|T|k|epsilon)".
type Literal string

// Macro is a $variable reference that is substituted by the solver.
type Macro string

// Code is the body of a #{ ... #} code block.
type Code string

// List is a parenthesized value list: ( 0 0 0 ).
type List []any

// Dimensions is a bracketed dimension set: [0 2 -2 0 0 0 0].
type Dimensions []any

// Tokens is a multi-token entry value printed space separated without
// delimiters, e.g. "Gauss linearUpwind grad(U)".
type Tokens []any

// Entry is a single keyword/value pair within a dictionary. Keys beginning
// with '#' are directives (#include etc.) and may repeat.
type Entry struct {
	Key   string
	Value any
}

// Dict is an insertion-ordered dictionary. Plain keys are unique; directive
// keys may appear multiple times and are kept in file order.
type Dict struct {
	entries []Entry
	index   map[string]int
}

// New returns an empty dictionary.
func New() *Dict {
	return &Dict{index: make(map[string]int)}
}

func isDirective(key string) bool {
	return strings.HasPrefix(key, "#")
}

// Set stores value under key, replacing an existing entry and preserving its
// position. Directive keys always append.
func (d *Dict) Set(key string, value any) {
	if d.index == nil {
		d.index = make(map[string]int)
	}
	if !isDirective(key) {
		if i, ok := d.index[key]; ok {
			d.entries[i].Value = value
			return
		}
	}
	d.entries = append(d.entries, Entry{Key: key, Value: value})
	d.index[key] = len(d.entries) - 1
}

// Get returns the value stored under key. For repeated directive keys the
// last occurrence wins.
func (d *Dict) Get(key string) (any, bool) {
	if d == nil || d.index == nil {
		return nil, false
	}
	i, ok := d.index[key]
	if !ok {
		return nil, false
	}
	return d.entries[i].Value, true
}

// GetDict returns the sub-dictionary stored under key, or nil.
func (d *Dict) GetDict(key string) *Dict {
	v, ok := d.Get(key)
	if !ok {
		return nil
	}
	sub, _ := v.(*Dict)
	return sub
}

// GetString returns the value under key rendered as a bare token string.
// Quoted literals are returned without their quotes.
func (d *Dict) GetString(key string) string {
	v, ok := d.Get(key)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case Literal:
		return string(t)
	case Macro:
		return string(t)
	default:
		return formatValue(v)
	}
}

// Has reports whether key is present.
func (d *Dict) Has(key string) bool {
	_, ok := d.Get(key)
	return ok
}

// Delete removes all entries stored under key.
func (d *Dict) Delete(key string) {
	if d.index == nil {
		return
	}
	out := d.entries[:0]
	for _, e := range d.entries {
		if e.Key != key {
			out = append(out, e)
		}
	}
	d.entries = out
	d.reindex()
}

// Pop removes key and returns its previous value.
func (d *Dict) Pop(key string) (any, bool) {
	v, ok := d.Get(key)
	if ok {
		d.Delete(key)
	}
	return v, ok
}

// Keys returns the keys in insertion order, directives included.
func (d *Dict) Keys() []string {
	keys := make([]string, 0, len(d.entries))
	for _, e := range d.entries {
		keys = append(keys, e.Key)
	}
	return keys
}

// Entries returns the ordered entries. The slice must not be mutated.
func (d *Dict) Entries() []Entry {
	if d == nil {
		return nil
	}
	return d.entries
}

// Len returns the number of entries.
func (d *Dict) Len() int {
	if d == nil {
		return 0
	}
	return len(d.entries)
}

func (d *Dict) reindex() {
	d.index = make(map[string]int, len(d.entries))
	for i, e := range d.entries {
		d.index[e.Key] = i
	}
}

// Merge recursively updates d from the given dictionaries. New keys are
// appended; existing sub-dictionaries are merged, everything else is
// overwritten. Later arguments win.
func (d *Dict) Merge(others ...*Dict) {
	for _, other := range others {
		if other == nil {
			continue
		}
		for _, e := range other.entries {
			cur, ok := d.Get(e.Key)
			if ok {
				curDict, isDict := cur.(*Dict)
				otherDict, otherIsDict := e.Value.(*Dict)
				if isDict && otherIsDict && curDict != otherDict {
					curDict.Merge(otherDict)
					continue
				}
			}
			d.Set(e.Key, e.Value)
		}
	}
}

// Copy returns a deep copy of the dictionary.
func (d *Dict) Copy() *Dict {
	out := New()
	for _, e := range d.entries {
		out.entries = append(out.entries, Entry{Key: e.Key, Value: copyValue(e.Value)})
	}
	out.reindex()
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case *Dict:
		return t.Copy()
	case List:
		return List(copySlice(t))
	case Dimensions:
		return Dimensions(copySlice(t))
	case Tokens:
		return Tokens(copySlice(t))
	default:
		return v
	}
}

func copySlice(items []any) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = copyValue(item)
	}
	return out
}

// Equal reports deep equality of two dictionaries, honoring entry order.
func (d *Dict) Equal(other *Dict) bool {
	if d.Len() != other.Len() {
		return false
	}
	for i, e := range d.entries {
		oe := other.entries[i]
		if e.Key != oe.Key || !valueEqual(e.Value, oe.Value) {
			return false
		}
	}
	return true
}

func valueEqual(a, b any) bool {
	switch ta := a.(type) {
	case *Dict:
		tb, ok := b.(*Dict)
		return ok && ta.Equal(tb)
	case List:
		tb, ok := b.(List)
		return ok && sliceEqual(ta, tb)
	case Dimensions:
		tb, ok := b.(Dimensions)
		return ok && sliceEqual(ta, tb)
	case Tokens:
		tb, ok := b.(Tokens)
		return ok && sliceEqual(ta, tb)
	default:
		return a == b
	}
}

func sliceEqual(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !valueEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// String renders the dictionary body without a file header.
func (d *Dict) String() string {
	var sb strings.Builder
	p := newPrinter(&sb)
	p.printDict(d)
	return sb.String()
}

// FromPairs builds a dictionary from alternating key/value arguments. It is
// a convenience for tests and default tables.
func FromPairs(pairs ...any) *Dict {
	if len(pairs)%2 != 0 {
		panic(fmt.Sprintf("dict.FromPairs: odd argument count %d", len(pairs)))
	}
	d := New()
	for i := 0; i < len(pairs); i += 2 {
		d.Set(pairs[i].(string), pairs[i+1])
	}
	return d
}
