package expander

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	from := map[string]interface{}{
		"build": map[string]interface{}{
			"files": []interface{}{
				map[string]interface{}{"name": "main.go"},
			},
			"count": 3,
		},
		"v1.gen": map[string]interface{}{"generated_code": "package main"},
		"global": map[string]interface{}{"project": "raco"},
	}
	testCases := []struct {
		description string
		input       interface{}
		expect      interface{}
	}{
		{description: "pure reference keeps type", input: "${build.count}", expect: 3},
		{description: "array path", input: "${build.files[0].name}", expect: "main.go"},
		{description: "embedded", input: "project ${global.project} has ${build.count} files", expect: "project raco has 3 files"},
		{description: "dotted step name", input: "${v1.gen.generated_code}", expect: "package main"},
		{description: "unresolved pure", input: "${missing.value}", expect: "${missing.value}"},
		{description: "unresolved embedded", input: "x=${missing}", expect: "x=${missing}"},
		{description: "plain dollar", input: "echo $HOME", expect: "echo $HOME"},
		{description: "nested slice", input: []interface{}{"${global.project}", 1}, expect: []interface{}{"raco", 1}},
		{
			description: "nested map",
			input:       map[string]interface{}{"path": "${global.project}/README.md", "n": map[string]interface{}{"c": "${build.count}"}},
			expect:      map[string]interface{}{"path": "raco/README.md", "n": map[string]interface{}{"c": 3}},
		},
	}
	for _, testCase := range testCases {
		actual, err := Expand(testCase.input, from)
		require.NoError(t, err, testCase.description)
		assert.EqualValues(t, testCase.expect, actual, testCase.description)
	}
}

func TestLookup_Struct(t *testing.T) {
	type info struct{ Name string }
	value, ok := Lookup("step.name", map[string]interface{}{"step": &info{Name: "demo"}})
	require.True(t, ok)
	assert.Equal(t, "demo", value)

	_, ok = Lookup("step.missing", map[string]interface{}{"step": &info{}})
	assert.False(t, ok)
}

func TestExpandMap_Nil(t *testing.T) {
	actual, err := ExpandMap(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, actual)
}
