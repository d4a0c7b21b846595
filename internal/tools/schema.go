package tools

import (
	"errors"
	"reflect"
	"strings"
)

// Struct tags understood by typeToJSONSchema, in addition to `json`:
//
//	desc:"..."   property description shown to the model
//	enum:"a,b"   allowed string values
//
// Fields are required unless they are pointers, slices, maps, interfaces or
// carry the omitempty json option.
func typeToJSONSchema(t reflect.Type) (map[string]interface{}, error) {
	if t == nil {
		return nil, errors.New("nil input type")
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Struct:
		props := map[string]interface{}{}
		var requiredFields []string

		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.PkgPath != "" {
				continue
			}

			jsonName, omitEmpty := jsonFieldName(f)
			if jsonName == "" {
				continue
			}

			fieldSchema, err := typeToJSONSchema(f.Type)
			if err != nil {
				return nil, err
			}
			if desc := f.Tag.Get("desc"); desc != "" {
				fieldSchema["description"] = desc
			}
			if enum := f.Tag.Get("enum"); enum != "" {
				fieldSchema["enum"] = strings.Split(enum, ",")
			}

			props[jsonName] = fieldSchema

			if !omitEmpty && isRequiredKind(f.Type.Kind()) {
				requiredFields = append(requiredFields, jsonName)
			}
		}

		objSchema := map[string]interface{}{
			"type":       "object",
			"properties": props,
		}
		if len(requiredFields) > 0 {
			objSchema["required"] = requiredFields
		}
		return objSchema, nil

	case reflect.String:
		return map[string]interface{}{"type": "string"}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]interface{}{"type": "integer"}, nil
	case reflect.Float32, reflect.Float64:
		return map[string]interface{}{"type": "number"}, nil
	case reflect.Bool:
		return map[string]interface{}{"type": "boolean"}, nil
	case reflect.Slice, reflect.Array:
		elemSchema, err := typeToJSONSchema(t.Elem())
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"type":  "array",
			"items": elemSchema,
		}, nil
	case reflect.Map:
		valSchema, err := typeToJSONSchema(t.Elem())
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"type":                 "object",
			"additionalProperties": valSchema,
		}, nil
	case reflect.Interface:
		return map[string]interface{}{}, nil
	default:
		return map[string]interface{}{"type": "string"}, nil
	}
}

func isRequiredKind(k reflect.Kind) bool {
	switch k {
	case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Interface:
		return false
	}
	return true
}

func jsonFieldName(f reflect.StructField) (string, bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false
	}
	if tag == "" {
		return strings.ToLower(f.Name), false
	}
	parts := strings.Split(tag, ",")
	omitEmpty := false
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitEmpty = true
		}
	}
	name := parts[0]
	if name == "" {
		name = strings.ToLower(f.Name)
	}
	return name, omitEmpty
}
