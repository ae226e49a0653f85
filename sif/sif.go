// Package sif is a small tree-of-attributes document store used for the
// persisted service configuration. A document is a tree of typed nodes,
// each carrying an ordered set of string attributes; on disk it is
// rendered as XML with one element per node.
package sif

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Node is one node of a document tree.
type Node struct {
	typ      string
	attrs    []attr
	children []*Node
}

type attr struct {
	key   string
	value string
}

// New returns the root node of an empty document.
func New() *Node {
	return &Node{typ: "sif"}
}

// Type returns the node type.
func (n *Node) Type() string {
	return n.typ
}

// SetAttr sets an attribute, replacing any previous value.
func (n *Node) SetAttr(key, value string) {
	for i := range n.attrs {
		if n.attrs[i].key == key {
			n.attrs[i].value = value
			return
		}
	}
	n.attrs = append(n.attrs, attr{key: key, value: value})
}

// Attr returns the value of an attribute.
func (n *Node) Attr(key string) (string, bool) {
	for _, a := range n.attrs {
		if a.key == key {
			return a.value, true
		}
	}
	return "", false
}

// AppendChild adds a child node of the given type and returns it.
func (n *Node) AppendChild(typ string) *Node {
	c := &Node{typ: typ}
	n.children = append(n.children, c)
	return c
}

// Children returns the node's children in document order.
func (n *Node) Children() []*Node {
	return n.children
}

func (n *Node) encode(enc *xml.Encoder) error {
	start := xml.StartElement{Name: xml.Name{Local: n.typ}}
	for _, a := range n.attrs {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: a.key}, Value: a.value})
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	for _, c := range n.children {
		if err := c.encode(enc); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

func decode(dec *xml.Decoder, start xml.StartElement) (*Node, error) {
	n := &Node{typ: start.Name.Local}
	for _, a := range start.Attr {
		n.attrs = append(n.attrs, attr{key: a.Name.Local, value: a.Value})
	}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			c, err := decode(dec, t)
			if err != nil {
				return nil, err
			}
			n.children = append(n.children, c)
		case xml.EndElement:
			return n, nil
		}
	}
}

// Read parses a document from r.
func Read(r io.Reader) (*Node, error) {
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				return nil, fmt.Errorf("sif: empty document")
			}
			return nil, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return decode(dec, start)
		}
	}
}

// Write renders a document to w.
func Write(root *Node, w io.Writer) error {
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := root.encode(enc); err != nil {
		return err
	}
	return enc.Flush()
}

// Load reads the document stored at path.
func Load(path string) (*Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Save writes the document to path. The write goes through a temporary
// file and a rename, so a crash never leaves a torn document behind.
func Save(root *Node, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".sif-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := Write(root, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
