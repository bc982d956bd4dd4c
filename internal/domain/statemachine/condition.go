package statemachine

import (
	"fmt"
	"reflect"
	"strings"
)

// Condition is a predicate over a document. Conditions describe document
// shape, so a state can be recognized from field values alone instead of a
// stored tag.
type Condition interface {
	Match(doc interface{}) bool
	Explain(doc interface{}) string
}

// FieldCondition matches when the dotted path resolves to a present
// (NotSet=false) or absent (NotSet=true) value. A broken path counts as
// absent.
type FieldCondition struct {
	Path   string
	NotSet bool
}

// ValueCondition matches when the dotted path resolves to a value equal to
// Value.
type ValueCondition struct {
	Path  string
	Value interface{}
}

// RequireCondition matches when every child condition matches.
type RequireCondition struct {
	Conds []Condition
}

// Field returns a condition requiring the dotted path to be set.
func Field(path string) FieldCondition {
	return FieldCondition{Path: path}
}

// FieldNotSet returns a condition requiring the dotted path to be absent.
func FieldNotSet(path string) FieldCondition {
	return FieldCondition{Path: path, NotSet: true}
}

// Value returns a condition requiring the dotted path to equal v.
func Value(path string, v interface{}) ValueCondition {
	return ValueCondition{Path: path, Value: v}
}

// Require combines conditions; all must match.
func Require(conds ...Condition) RequireCondition {
	return RequireCondition{Conds: conds}
}

func (c FieldCondition) Match(doc interface{}) bool {
	_, ok := Lookup(doc, c.Path)
	return ok != c.NotSet
}

func (c FieldCondition) Explain(doc interface{}) string {
	return explain(c, doc)
}

func (c FieldCondition) String() string {
	if c.NotSet {
		return fmt.Sprintf("field(%s) is not set", c.Path)
	}
	return fmt.Sprintf("field(%s) is set", c.Path)
}

func (c ValueCondition) Match(doc interface{}) bool {
	val, ok := Lookup(doc, c.Path)
	return ok && equalValues(val, c.Value)
}

func (c ValueCondition) Explain(doc interface{}) string {
	return explain(c, doc)
}

func (c ValueCondition) String() string {
	return fmt.Sprintf("value(%s) == %v", c.Path, c.Value)
}

func (c RequireCondition) Match(doc interface{}) bool {
	for _, cond := range c.Conds {
		if !cond.Match(doc) {
			return false
		}
	}
	return true
}

func (c RequireCondition) Explain(doc interface{}) string {
	lines := make([]string, 0, len(c.Conds)+1)
	lines = append(lines, "require:")
	for _, cond := range c.Conds {
		lines = append(lines, cond.Explain(doc))
	}
	return strings.Join(lines, "\n")
}

func explain(c Condition, doc interface{}) string {
	if c.Match(doc) {
		return fmt.Sprintf("%v: match", c)
	}
	return fmt.Sprintf("%v: not match", c)
}

// Lookup resolves a dotted path against a document by reflection, walking
// exported struct fields by their json tag name (falling back to the Go
// field name). Pointers and interfaces are dereferenced along the way; a nil
// value or a missing segment resolves to absent.
func Lookup(doc interface{}, path string) (interface{}, bool) {
	v := reflect.ValueOf(doc)
	for _, seg := range strings.Split(path, ".") {
		var ok bool
		if v, ok = deref(v); !ok {
			return nil, false
		}
		if v.Kind() != reflect.Struct {
			return nil, false
		}
		if v, ok = fieldByName(v, seg); !ok {
			return nil, false
		}
	}
	v, ok := deref(v)
	if !ok {
		return nil, false
	}
	return v.Interface(), true
}

func deref(v reflect.Value) (reflect.Value, bool) {
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return v, false
		}
		v = v.Elem()
	}
	return v, v.IsValid()
}

func fieldByName(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("json")
		if idx := strings.Index(tag, ","); idx >= 0 {
			tag = tag[:idx]
		}
		if tag == name || (tag == "" && f.Name == name) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// equalValues compares a resolved document value with an expected one.
// String-kinded values (including typed string aliases like status enums)
// compare equal by their string value.
func equalValues(got, want interface{}) bool {
	gv, wv := reflect.ValueOf(got), reflect.ValueOf(want)
	if gv.IsValid() && wv.IsValid() && gv.Kind() == reflect.String && wv.Kind() == reflect.String {
		return gv.String() == wv.String()
	}
	return reflect.DeepEqual(got, want)
}
