// Package yml adds helpers on top of yaml.v3 nodes for case-insensitive
// document parsing.
package yml

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Node yaml.Node

// Root unwraps a document node.
func (n *Node) Root() *Node {
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		return (*Node)(n.Content[0])
	}
	return n
}

// Lookup returns the value of a mapping key, matched case-insensitively.
func (n *Node) Lookup(name string) *Node {
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if strings.EqualFold(n.Content[i].Value, name) {
			return (*Node)(n.Content[i+1])
		}
	}
	return nil
}

// Items iterates sequence elements.
func (n *Node) Items(callback func(index int, node *Node) error) error {
	for i, value := range n.Content {
		if err := callback(i, (*Node)(value)); err != nil {
			return err
		}
	}
	return nil
}

// Pairs iterates mapping entries in document order.
func (n *Node) Pairs(callback func(key string, node *Node) error) error {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if err := callback(n.Content[i].Value, (*Node)(n.Content[i+1])); err != nil {
			return err
		}
	}
	return nil
}

// Strings returns a scalar as a one element slice or a sequence of scalars.
func (n *Node) Strings() ([]string, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		return []string{n.Value}, nil
	case yaml.SequenceNode:
		ret := make([]string, 0, len(n.Content))
		for _, item := range n.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: expected a scalar", item.Line)
			}
			ret = append(ret, item.Value)
		}
		return ret, nil
	}
	return nil, fmt.Errorf("line %d: expected a string or a list of strings", n.Line)
}

// Decode decodes the node into v.
func (n *Node) Decode(v interface{}) error {
	return (*yaml.Node)(n).Decode(v)
}

// Interface converts the node into plain Go values: map[string]interface{},
// []interface{}, string, bool, int, float64 or nil.
func (n *Node) Interface() interface{} {
	switch n.Kind {
	case yaml.DocumentNode:
		return n.Root().Interface()
	case yaml.AliasNode:
		if n.Alias != nil {
			return (*Node)(n.Alias).Interface()
		}
		return nil
	case yaml.ScalarNode:
		switch n.Tag {
		case "!!bool":
			return strings.EqualFold(n.Value, "true")
		case "!!null":
			return nil
		case "!!float":
			f, err := strconv.ParseFloat(n.Value, 64)
			if err != nil {
				return n.Value
			}
			return f
		case "!!int":
			i, err := strconv.Atoi(n.Value)
			if err != nil {
				return n.Value
			}
			return i
		default:
			return n.Value
		}
	case yaml.MappingNode:
		aMap := make(map[string]interface{}, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			aMap[n.Content[i].Value] = (*Node)(n.Content[i+1]).Interface()
		}
		return aMap
	case yaml.SequenceNode:
		aSlice := make([]interface{}, 0, len(n.Content))
		for _, item := range n.Content {
			aSlice = append(aSlice, (*Node)(item).Interface())
		}
		return aSlice
	}
	return nil
}
