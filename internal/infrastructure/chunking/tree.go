package chunking

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

type nodeKind int

const (
	nodeText nodeKind = iota
	nodeElement
	// nodeSiblings groups top-level nodes of a document.
	nodeSiblings
)

type node struct {
	kind     nodeKind
	name     string
	space    string
	attrs    map[string]string
	text     string
	children []*node
}

func (n *node) child(name string) *node {
	for _, c := range n.children {
		if c.kind == nodeElement && c.name == name {
			return c
		}
	}
	return nil
}

// innerText concatenates every text node beneath n.
func (n *node) innerText() string {
	var b strings.Builder
	var walk func(*node)
	walk = func(cur *node) {
		if cur.kind == nodeText {
			b.WriteString(cur.text)
			b.WriteByte(' ')
			return
		}
		for _, c := range cur.children {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func parseTree(r io.Reader) (*node, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel
	dec.Entity = xml.HTMLEntity

	root := &node{kind: nodeSiblings}
	stack := []*node{root}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode xml: %w", err)
		}

		parent := stack[len(stack)-1]
		switch t := tok.(type) {
		case xml.StartElement:
			el := &node{kind: nodeElement, name: t.Name.Local, space: t.Name.Space}
			if len(t.Attr) > 0 {
				el.attrs = make(map[string]string, len(t.Attr))
				for _, a := range t.Attr {
					el.attrs[a.Name.Local] = a.Value
				}
			}
			parent.children = append(parent.children, el)
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if strings.TrimSpace(string(t)) == "" {
				continue
			}
			parent.children = append(parent.children, &node{kind: nodeText, text: string(t)})
		}
	}
	if len(stack) != 1 {
		return nil, fmt.Errorf("decode xml: %d unclosed elements", len(stack)-1)
	}
	return root, nil
}
