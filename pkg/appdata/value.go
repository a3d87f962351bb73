// Package appdata implements the per-module status-variable persistence
// store: one file per (module class name, base, instance name) tuple,
// holding a map from declared status-variable name to a serialized value.
package appdata

import "fmt"

// Kind tags the variant a Value holds, since the store must round-trip
// integers, floats, complex numbers, booleans, strings, nulls, ordered
// sequences, sets, frozen sets, maps with scalar keys, dense numeric
// arrays, and enumerations referenced by fully qualified name.
type Kind string

const (
	KindNull      Kind = "null"
	KindBool      Kind = "bool"
	KindInt       Kind = "int"
	KindFloat     Kind = "float"
	KindComplex   Kind = "complex"
	KindString    Kind = "string"
	KindSequence  Kind = "sequence"
	KindSet       Kind = "set"
	KindFrozenSet Kind = "frozenset"
	KindMap       Kind = "map"
	KindArray     Kind = "array"
	KindEnum      Kind = "enum"
)

// Value is a tagged variant capable of representing every status-variable
// payload the store must persist. Only the fields relevant to Kind are
// populated; the rest are zero.
type Value struct {
	Kind Kind `yaml:"kind" json:"kind"`

	Bool    bool       `yaml:"bool,omitempty" json:"bool,omitempty"`
	Int     int64      `yaml:"int,omitempty" json:"int,omitempty"`
	Float   float64    `yaml:"float,omitempty" json:"float,omitempty"`
	Real    float64    `yaml:"real,omitempty" json:"real,omitempty"`
	Imag    float64    `yaml:"imag,omitempty" json:"imag,omitempty"`
	Str     string     `yaml:"str,omitempty" json:"str,omitempty"`
	Seq     []Value    `yaml:"seq,omitempty" json:"seq,omitempty"`
	MapKeys []Value    `yaml:"map_keys,omitempty" json:"map_keys,omitempty"`
	MapVals []Value    `yaml:"map_vals,omitempty" json:"map_vals,omitempty"`
	Enum    string     `yaml:"enum,omitempty" json:"enum,omitempty"` // fully qualified name
	Array   *ArrayData `yaml:"array,omitempty" json:"array,omitempty"`
}

// ArrayData holds a dense numeric array, either inlined as base64-encoded
// bytes or as a path to a sidecar binary file. The store decides which
// based on size at dump time.
type ArrayData struct {
	DType   string `yaml:"dtype"`
	Shape   []int  `yaml:"shape"`
	Inline  []byte `yaml:"inline,omitempty"`
	Sidecar string `yaml:"sidecar,omitempty"`
}

func Null() Value               { return Value{Kind: KindNull} }
func Bool(v bool) Value         { return Value{Kind: KindBool, Bool: v} }
func Int(v int64) Value         { return Value{Kind: KindInt, Int: v} }
func Float(v float64) Value     { return Value{Kind: KindFloat, Float: v} }
func Complex(re, im float64) Value {
	return Value{Kind: KindComplex, Real: re, Imag: im}
}
func String(v string) Value { return Value{Kind: KindString, Str: v} }
func Sequence(vs ...Value) Value {
	return Value{Kind: KindSequence, Seq: vs}
}
func Set(vs ...Value) Value       { return Value{Kind: KindSet, Seq: vs} }
func FrozenSet(vs ...Value) Value { return Value{Kind: KindFrozenSet, Seq: vs} }
func Map(keys, vals []Value) Value {
	return Value{Kind: KindMap, MapKeys: keys, MapVals: vals}
}
func Enum(qualifiedName string) Value {
	return Value{Kind: KindEnum, Enum: qualifiedName}
}
func Array(a ArrayData) Value { return Value{Kind: KindArray, Array: &a} }

// Equal reports deep value equality, used by round-trip tests. Sequence
// equality is order-sensitive; Set/FrozenSet equality is not.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindBool:
		return a.Bool == b.Bool
	case KindInt:
		return a.Int == b.Int
	case KindFloat:
		return a.Float == b.Float
	case KindComplex:
		return a.Real == b.Real && a.Imag == b.Imag
	case KindString:
		return a.Str == b.Str
	case KindEnum:
		return a.Enum == b.Enum
	case KindSequence:
		return sequenceEqual(a.Seq, b.Seq)
	case KindSet, KindFrozenSet:
		return setEqual(a.Seq, b.Seq)
	case KindMap:
		return mapEqual(a, b)
	case KindArray:
		return arrayEqual(a.Array, b.Array)
	default:
		return false
	}
}

func sequenceEqual(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func setEqual(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
	for _, av := range a {
		found := false
		for i, bv := range b {
			if used[i] {
				continue
			}
			if Equal(av, bv) {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func mapEqual(a, b Value) bool {
	if len(a.MapKeys) != len(b.MapKeys) {
		return false
	}
	for i, ak := range a.MapKeys {
		found := false
		for j, bk := range b.MapKeys {
			if Equal(ak, bk) && Equal(a.MapVals[i], b.MapVals[j]) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func arrayEqual(a, b *ArrayData) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.DType != b.DType || len(a.Shape) != len(b.Shape) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	ad, bd := a.Inline, b.Inline
	if len(ad) != len(bd) {
		return false
	}
	for i := range ad {
		if ad[i] != bd[i] {
			return false
		}
	}
	return true
}

func (v Value) String() string {
	return fmt.Sprintf("Value{%s}", v.Kind)
}
