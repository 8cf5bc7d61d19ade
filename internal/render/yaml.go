package render

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/embedtree/pkg/multimap"
	"github.com/Sumatoshi-tech/embedtree/pkg/persist"
	"github.com/Sumatoshi-tech/embedtree/pkg/rbtree"
)

const yamlIndent = 2

// Document is the structured form of a map.
type Document struct {
	Sentinel  multimap.Handle `json:"sentinel"       yaml:"sentinel"`
	Values    int             `json:"values"         yaml:"values"`
	Positions int             `json:"positions"      yaml:"positions"`
	Root      *NodeDocument   `json:"root,omitempty" yaml:"root,omitempty"`
}

// NodeDocument is one tree position and its subtrees.
type NodeDocument struct {
	Key    uint32        `json:"key"             yaml:"key"`
	Color  string        `json:"color"           yaml:"color"`
	Values []uint32      `json:"values"          yaml:"values,flow"`
	Left   *NodeDocument `json:"left,omitempty"  yaml:"left,omitempty"`
	Right  *NodeDocument `json:"right,omitempty" yaml:"right,omitempty"`
}

// NewDocument captures the structure of m.
func NewDocument(m *multimap.Map) Document {
	return Document{
		Sentinel:  m.Sentinel(),
		Values:    m.Len(),
		Positions: m.Positions(),
		Root:      nodeDocument(m.Arena(), rbtree.Root(m.Arena(), m.Sentinel())),
	}
}

func nodeDocument(arena *multimap.Arena, pos rbtree.Ref) *NodeDocument {
	if pos == rbtree.Nil {
		return nil
	}

	doc := &NodeDocument{
		Key:   arena.Item(pos).Key,
		Color: arena.Node(pos).Color().String(),
		Left:  nodeDocument(arena, rbtree.Left(arena, pos)),
		Right: nodeDocument(arena, rbtree.Right(arena, pos)),
	}

	for handle := range rbtree.Values(arena, pos) {
		doc.Values = append(doc.Values, arena.Item(handle).Value)
	}

	return doc
}

// JSON writes the documents of maps as one indented JSON array.
func JSON(w io.Writer, maps ...*multimap.Map) error {
	docs := make([]Document, len(maps))
	for idx, m := range maps {
		docs[idx] = NewDocument(m)
	}

	err := persist.NewJSONCodec().Encode(w, docs)
	if err != nil {
		return fmt.Errorf("encode maps: %w", err)
	}

	return nil
}

// YAML writes the documents of maps as a YAML stream.
func YAML(w io.Writer, maps ...*multimap.Map) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(yamlIndent)

	for _, m := range maps {
		err := encoder.Encode(NewDocument(m))
		if err != nil {
			return fmt.Errorf("encode map %d: %w", m.Sentinel(), err)
		}
	}

	err := encoder.Close()
	if err != nil {
		return fmt.Errorf("close yaml stream: %w", err)
	}

	return nil
}
