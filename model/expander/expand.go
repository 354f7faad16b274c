// Package expander replaces ${...} references inside step inputs with values
// taken from a lookup map (predecessor outputs keyed by step name and id, and
// the "global" variables).
package expander

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/viant/structology/visitor"
)

// expand resolves references in a single string. A string made only of one
// reference keeps the referenced value type; embedded references are
// interpolated as text. Unresolved references are left untouched.
func expand(value string, from map[string]interface{}) interface{} {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") && findMatchingClosingBrace(value) == len(value)-1 {
		expr := strings.TrimSpace(value[2 : len(value)-1])
		if resolved, ok := Lookup(expr, from); ok {
			return resolved
		}
		return value
	}

	var result strings.Builder
	rest := value
	for {
		start := strings.Index(rest, "${")
		if start == -1 {
			result.WriteString(rest)
			break
		}
		end := findMatchingClosingBrace(rest[start:])
		if end == -1 {
			result.WriteString(rest)
			break
		}
		end = start + end + 1
		result.WriteString(rest[:start])
		expr := strings.TrimSpace(rest[start+2 : end-1])
		if resolved, ok := Lookup(expr, from); ok {
			result.WriteString(stringifyValue(resolved))
		} else {
			result.WriteString(rest[start:end])
		}
		rest = rest[end:]
	}
	return result.String()
}

// findMatchingClosingBrace finds the position of the brace closing the
// expression starting with "${", accounting for nested braces.
func findMatchingClosingBrace(s string) int {
	if !strings.HasPrefix(s, "${") {
		return -1
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '{' {
			depth++
		} else if s[i] == '}' {
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// stringifyValue converts a value to its string representation for interpolation
func stringifyValue(val interface{}) string {
	if val == nil {
		return ""
	}
	v := reflect.ValueOf(val)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64)
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.String:
		return v.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

// Lookup resolves a dotted path such as "build.files[0].name" against from.
// The root segment may itself contain dots when it matches a key exactly,
// so step names like "v1.build" still resolve.
func Lookup(expr string, from map[string]interface{}) (interface{}, bool) {
	if expr == "" {
		return nil, false
	}
	if value, ok := from[expr]; ok {
		return value, true
	}
	for i := len(expr) - 1; i > 0; i-- {
		if expr[i] != '.' && expr[i] != '[' {
			continue
		}
		root, ok := from[expr[:i]]
		if !ok {
			continue
		}
		return processPath(root, expr[i:])
	}
	return nil, false
}

// processPath evaluates a path expression like ".users[1].name" or "[0].email"
func processPath(obj interface{}, path string) (interface{}, bool) {
	current := obj
	i := 0
	for i < len(path) {
		if path[i] == '.' {
			i++
			continue
		}
		if path[i] == '[' {
			closeBracket := strings.Index(path[i:], "]")
			if closeBracket < 0 {
				return nil, false
			}
			closeBracket += i
			index, err := strconv.Atoi(path[i+1 : closeBracket])
			if err != nil {
				return nil, false
			}
			var ok bool
			if current, ok = getArrayElement(current, index); !ok {
				return nil, false
			}
			i = closeBracket + 1
			continue
		}
		propEnd := len(path)
		if next := strings.IndexAny(path[i:], ".["); next >= 0 {
			propEnd = i + next
		}
		var ok bool
		if current, ok = getProperty(current, path[i:propEnd]); !ok {
			return nil, false
		}
		i = propEnd
	}
	return current, true
}

// getProperty reads a map entry or an exported struct field.
func getProperty(obj interface{}, prop string) (interface{}, bool) {
	if obj == nil {
		return nil, false
	}
	if mapObj, ok := obj.(map[string]interface{}); ok {
		val, exists := mapObj[prop]
		return val, exists
	}
	val := reflect.ValueOf(obj)
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil, false
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return nil, false
	}
	field := val.FieldByName(prop)
	if !field.IsValid() {
		typ := val.Type()
		for i := 0; i < typ.NumField(); i++ {
			if strings.EqualFold(typ.Field(i).Name, prop) {
				field = val.Field(i)
				break
			}
		}
	}
	if !field.IsValid() || !field.CanInterface() {
		return nil, false
	}
	return field.Interface(), true
}

// getArrayElement extracts an element from an array or slice
func getArrayElement(obj interface{}, index int) (interface{}, bool) {
	if arr, ok := obj.([]interface{}); ok {
		if index >= 0 && index < len(arr) {
			return arr[index], true
		}
		return nil, false
	}
	val := reflect.ValueOf(obj)
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil, false
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Array && val.Kind() != reflect.Slice {
		return nil, false
	}
	if index < 0 || index >= val.Len() {
		return nil, false
	}
	elementVal := val.Index(index)
	if !elementVal.CanInterface() {
		return nil, false
	}
	return elementVal.Interface(), true
}

func hasExpr(value string) bool {
	return strings.Contains(value, "${")
}

// Expand recursively traverses maps and slices, expanding any string containing variable references.
func Expand(value interface{}, from map[string]interface{}) (interface{}, error) {
	var err error
	switch actual := value.(type) {
	case map[string]interface{}:
		expandedMap := make(map[string]interface{}, len(actual))
		visit := visitor.MapVisitorOf[string, interface{}](actual)
		err = visit(func(key string, element interface{}) (bool, error) {
			if element, err = Expand(element, from); err != nil {
				return false, err
			}
			expandedMap[key] = element
			return true, nil
		})
		return expandedMap, err
	case []interface{}:
		expandedSlice := make([]interface{}, len(actual))
		for i, item := range actual {
			if expandedSlice[i], err = Expand(item, from); err != nil {
				return nil, err
			}
		}
		return expandedSlice, nil
	case string:
		if hasExpr(actual) {
			return expand(actual, from), nil
		}
		return actual, nil
	default:
		return actual, nil
	}
}

// ExpandMap expands every value of input.
func ExpandMap(input map[string]interface{}, from map[string]interface{}) (map[string]interface{}, error) {
	if input == nil {
		return nil, nil
	}
	expanded, err := Expand(input, from)
	if err != nil {
		return nil, err
	}
	return expanded.(map[string]interface{}), nil
}
