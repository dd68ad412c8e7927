// Package jsontree wraps decoded response bodies in a read-only,
// name-keyed view with typed getters. Missing keys and type mismatches
// yield the caller's default rather than an error, which keeps response
// parsing linear at the call sites.
package jsontree

import (
	"encoding/json"
	"fmt"
	"io"
)

// Node is one object level of a decoded response. The zero value acts
// as an empty object: every getter returns its default.
type Node struct {
	fields map[string]interface{}
}

// Decode reads a JSON object from r.
func Decode(r io.Reader) (Node, error) {
	var fields map[string]interface{}
	if err := json.NewDecoder(r).Decode(&fields); err != nil {
		return Node{}, fmt.Errorf("failed to decode response body: %w", err)
	}
	return Node{fields: fields}, nil
}

// Parse decodes a JSON object from raw bytes.
func Parse(data []byte) (Node, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return Node{}, fmt.Errorf("failed to parse response body: %w", err)
	}
	return Node{fields: fields}, nil
}

// FromMap wraps an already-decoded object. Used by tests and by array
// iteration.
func FromMap(fields map[string]interface{}) Node {
	return Node{fields: fields}
}

// Has reports whether the key is present at this level.
func (n Node) Has(key string) bool {
	_, ok := n.fields[key]
	return ok
}

// Str returns the string at key, or def.
func (n Node) Str(key, def string) string {
	if v, ok := n.fields[key].(string); ok {
		return v
	}
	return def
}

// Int returns the integer at key, or def.
func (n Node) Int(key string, def int) int {
	return int(n.Int64(key, int64(def)))
}

// Int64 returns the integer at key, or def. JSON numbers decode as
// float64; anything else is a mismatch.
func (n Node) Int64(key string, def int64) int64 {
	switch v := n.fields[key].(type) {
	case float64:
		return int64(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
	}
	return def
}

// Bool returns the boolean at key, or def.
func (n Node) Bool(key string, def bool) bool {
	if v, ok := n.fields[key].(bool); ok {
		return v
	}
	return def
}

// Obj returns the nested object at key. A missing key yields an empty
// node, so chains like n.Obj("user").Str("name", "") stay safe.
func (n Node) Obj(key string) Node {
	if v, ok := n.fields[key].(map[string]interface{}); ok {
		return Node{fields: v}
	}
	return Node{}
}

// Objs returns the array of objects at key. Non-object elements are
// skipped.
func (n Node) Objs(key string) []Node {
	arr, ok := n.fields[key].([]interface{})
	if !ok {
		return nil
	}
	nodes := make([]Node, 0, len(arr))
	for _, el := range arr {
		if m, ok := el.(map[string]interface{}); ok {
			nodes = append(nodes, Node{fields: m})
		}
	}
	return nodes
}
