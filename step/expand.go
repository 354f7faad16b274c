package step

import (
	"github.com/avrabe/raco/model/expander"
)

// ExpandInput resolves ${...} references in input using c.References().
func ExpandInput(input map[string]interface{}, c *Context) (map[string]interface{}, error) {
	return expander.ExpandMap(input, c.References())
}
