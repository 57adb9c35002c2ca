// Package xmlmap decodes XML documents into a normalized field mapping.
// It has no protocol knowledge: element and attribute names are lower-cased
// with namespace prefixes stripped, and surrounding whitespace in text is
// trimmed. Both the ticket validation and the single-logout paths decode
// through it.
package xmlmap

import (
	"io"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"

	"github.com/schl3ck/cas-authentication-middleware/internal/core/domain"
)

// Node is one normalized element: lower-cased local name, normalized
// attribute map, trimmed text, and child elements in document order.
type Node struct {
	Name     string
	Attr     map[string]string
	Text     string
	Children []*Node
}

// Decode parses an XML document and returns its normalized root node.
// Returns a malformed_document error when the input is not well-formed XML.
func Decode(data []byte) (*Node, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charsetReader

	if err := doc.ReadFromBytes(data); err != nil {
		return nil, domain.MalformedDocumentError("document is not well-formed XML", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, domain.MalformedDocumentError("document has no root element", nil)
	}
	return fromElement(root), nil
}

// First returns the first direct child with the given normalized name,
// or nil if none exists.
func (n *Node) First(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// All returns every direct child with the given normalized name.
func (n *Node) All(name string) []*Node {
	var nodes []*Node
	for _, c := range n.Children {
		if c.Name == name {
			nodes = append(nodes, c)
		}
	}
	return nodes
}

// FirstText returns the text of the first direct child with the given name,
// or "" if the child is absent.
func (n *Node) FirstText(name string) string {
	if c := n.First(name); c != nil {
		return c.Text
	}
	return ""
}

func fromElement(el *etree.Element) *Node {
	n := &Node{
		Name: normalizeName(el.Tag),
		Text: strings.TrimSpace(el.Text()),
	}
	if len(el.Attr) > 0 {
		n.Attr = make(map[string]string, len(el.Attr))
		for _, a := range el.Attr {
			if a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns") {
				continue
			}
			n.Attr[normalizeName(a.Key)] = a.Value
		}
	}
	for _, child := range el.ChildElements() {
		n.Children = append(n.Children, fromElement(child))
	}
	return n
}

// normalizeName lower-cases a name and strips any namespace prefix that
// survived tokenization.
func normalizeName(name string) string {
	if i := strings.LastIndex(name, ":"); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToLower(name)
}

// charsetReader decodes non-UTF-8 documents declared via the XML prolog.
// Unknown charsets fall through undecoded rather than failing the parse.
func charsetReader(cs string, input io.Reader) (io.Reader, error) {
	if enc, _ := charset.Lookup(cs); enc != nil {
		return transform.NewReader(input, enc.NewDecoder()), nil
	}
	return transform.NewReader(input, encoding.Nop.NewDecoder()), nil
}
