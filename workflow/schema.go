package workflow

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Schema validates the state of a run. Graphs use one as the root schema
// checked at run start, and strict steps check theirs before the handler
// runs.
type Schema[S any] interface {
	Validate(state *S) error
}

// SchemaFunc adapts a function to Schema.
type SchemaFunc[S any] func(state *S) error

func (f SchemaFunc[S]) Validate(state *S) error {
	return f(state)
}

// MissingFieldsError lists required fields that were absent.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}

// Required returns a schema asserting that the named fields of S are
// present. Fields are matched by Go name or by json tag name. A field is
// absent when it holds its zero value, so use pointer, slice or map types
// for values whose zero is meaningful.
//
// S must be a struct type and every name must resolve; otherwise the schema
// is rejected by AddStrictStep and Graph.SetSchema.
func Required[S any](fields ...string) Schema[S] {
	r := &requiredSchema[S]{}

	t := reflect.TypeFor[S]()
	if t.Kind() != reflect.Struct {
		r.err = fmt.Errorf("required fields need a struct state, got %s", t)
		return r
	}

	byName := make(map[string]reflect.StructField)
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() {
			continue
		}
		byName[f.Name] = f
		if tag := jsonName(f); tag != "" {
			byName[tag] = f
		}
	}

	var unknown []string
	for _, name := range fields {
		f, ok := byName[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		r.fields = append(r.fields, requiredField{name: name, index: f.Index})
	}
	if len(unknown) > 0 {
		r.err = fmt.Errorf("unknown fields for %s: %s", t, strings.Join(unknown, ", "))
	}

	return r
}

type requiredField struct {
	name  string
	index []int
}

type requiredSchema[S any] struct {
	fields []requiredField
	err    error
}

func (r *requiredSchema[S]) check() error {
	return r.err
}

func (r *requiredSchema[S]) Validate(state *S) error {
	if r.err != nil {
		return r.err
	}
	if state == nil {
		return errors.New("state is nil")
	}

	v := reflect.ValueOf(state).Elem()

	var missing []string
	for _, f := range r.fields {
		fv, err := v.FieldByIndexErr(f.index)
		if err != nil || fv.IsZero() {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}
	return nil
}

// All combines schemas; the first failure wins.
func All[S any](schemas ...Schema[S]) Schema[S] {
	return allSchema[S](schemas)
}

type allSchema[S any] []Schema[S]

func (a allSchema[S]) check() error {
	for _, s := range a {
		if err := checkSchema(s); err != nil {
			return err
		}
	}
	return nil
}

func (a allSchema[S]) Validate(state *S) error {
	for _, s := range a {
		if err := s.Validate(state); err != nil {
			return err
		}
	}
	return nil
}

// checker is implemented by schemas that can be malformed at construction.
type checker interface {
	check() error
}

func checkSchema(s any) error {
	if c, ok := s.(checker); ok {
		return c.check()
	}
	return nil
}

func jsonName(f reflect.StructField) string {
	tag, ok := f.Tag.Lookup("json")
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "-" {
		return ""
	}
	return name
}
