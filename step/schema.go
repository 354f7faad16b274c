package step

import (
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
)

type schema struct {
	schema   *jsonschema.Schema
	resolved *jsonschema.Resolved
}

// compileSchema converts a schema document held as a generic map.
func compileSchema(document map[string]interface{}) (*schema, error) {
	if len(document) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(document)
	if err != nil {
		return nil, err
	}
	ret := &schema{schema: &jsonschema.Schema{}}
	if err = json.Unmarshal(data, ret.schema); err != nil {
		return nil, err
	}
	if ret.resolved, err = ret.schema.Resolve(nil); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *schema) source() *jsonschema.Schema {
	if s == nil {
		return nil
	}
	return s.schema
}

// validate checks a JSON compatible copy of value.
func (s *schema) validate(value interface{}) error {
	if s == nil {
		return nil
	}
	normalized, err := normalize(value)
	if err != nil {
		return err
	}
	return s.resolved.Validate(normalized)
}

func normalize(value interface{}) (interface{}, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var ret interface{}
	err = json.Unmarshal(data, &ret)
	return ret, err
}
