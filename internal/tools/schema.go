package tools

import (
	"reflect"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// scalarTypes are the JSON types accepted as build parameter values.
var scalarTypes = []string{"string", "number", "integer", "boolean"}

// inputSchema builds the JSON Schema for T with the base generator and then
// narrows map fields tagged `values:"scalar"` so that their values must be
// JSON scalars.
func inputSchema[T any]() *jsonschema.Schema {
	sch, err := jsonschema.For[T](nil)
	if err != nil {
		panic(err)
	}

	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		panic("tool input must be a struct, got " + t.String())
	}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || f.Tag.Get("values") != "scalar" {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" {
			name = f.Name
		}
		p, ok := sch.Properties[name]
		if !ok || p == nil {
			continue
		}
		p.AdditionalProperties = &jsonschema.Schema{Types: scalarTypes}
	}
	return sch
}
