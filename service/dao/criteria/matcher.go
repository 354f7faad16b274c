package criteria

import (
	"github.com/avrabe/raco/service/dao"
)

const (
	// StatusParameter is the parameter name matched by FilterByStatus.
	StatusParameter = "Status"
	// InstanceParameter selects records of one workflow instance.
	InstanceParameter = "InstanceID"
)

// FilterByStatus reports whether status matches the Status parameter (a string
// or []string). Records always match when no Status parameter is given.
func FilterByStatus(status string, parameters []*dao.Parameter) bool {
	return FilterBy(StatusParameter, status, parameters)
}

// FilterBy reports whether value matches every parameter called name.
func FilterBy(name, value string, parameters []*dao.Parameter) bool {
	for _, parameter := range parameters {
		if parameter == nil || parameter.Name != name {
			continue
		}
		if !matches(value, parameter.Value) {
			return false
		}
	}
	return true
}

func matches(value string, expected interface{}) bool {
	switch actual := expected.(type) {
	case string:
		return value == actual
	case []string:
		if len(actual) == 0 {
			return true
		}
		for _, s := range actual {
			if value == s {
				return true
			}
		}
		return false
	}
	return true
}
