package vdom

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/repro/idgen"
)

// FromHTML parses an HTML document into a tree, assigning a fresh synthetic
// id from gen to every node. Comments are dropped.
func FromHTML(r io.Reader, gen idgen.Generator) (VTree, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return VTree{}, fmt.Errorf("vdom: parse html: %w", err)
	}
	t := VTree{Nodes: make(map[SyntheticID]VNode)}
	t.RootID = convert(doc, "", gen, t.Nodes)
	return t, nil
}

// FromHTMLNode converts an already parsed node (and its descendants).
func FromHTMLNode(n *html.Node, gen idgen.Generator) VTree {
	t := VTree{Nodes: make(map[SyntheticID]VNode)}
	t.RootID = convert(n, "", gen, t.Nodes)
	return t
}

func convert(n *html.Node, parent SyntheticID, gen idgen.Generator, out map[SyntheticID]VNode) SyntheticID {
	id := SyntheticID(gen())
	switch n.Type {
	case html.DocumentNode:
		d := &Document{ID: id, ParentID: parent}
		out[id] = d
		d.Children = convertChildren(n, id, gen, out)
	case html.DoctypeNode:
		dt := &DocType{ID: id, ParentID: parent, Name: n.Data}
		for _, a := range n.Attr {
			switch a.Key {
			case "public":
				dt.PublicID = a.Val
			case "system":
				dt.SystemID = a.Val
			}
		}
		out[id] = dt
	case html.ElementNode:
		el := &Element{ID: id, ParentID: parent, TagName: strings.ToLower(n.Data)}
		if len(n.Attr) > 0 {
			el.Attributes = make(map[string]*string, len(n.Attr))
			for _, a := range n.Attr {
				el.Attributes[attrName(a)] = Str(a.Val)
			}
		}
		out[id] = el
		el.Children = convertChildren(n, id, gen, out)
	case html.TextNode:
		out[id] = &Text{ID: id, ParentID: parent, Value: n.Data}
	default:
		return ""
	}
	return id
}

func convertChildren(n *html.Node, parent SyntheticID, gen idgen.Generator, out map[SyntheticID]VNode) []SyntheticID {
	var ids []SyntheticID
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if id := convert(c, parent, gen, out); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func attrName(a html.Attribute) string {
	if a.Namespace != "" {
		return a.Namespace + ":" + a.Key
	}
	return a.Key
}

// ToHTMLNode converts the tree into an x/net/html node tree. Live
// properties are reflected as attributes so the rendered markup shows the
// state the user saw.
func ToHTMLNode(t VTree) *html.Node {
	if t.Root() == nil {
		return &html.Node{Type: html.DocumentNode}
	}
	return toNode(t, t.RootID)
}

func toNode(t VTree, id SyntheticID) *html.Node {
	switch n := t.Get(id).(type) {
	case *Document:
		out := &html.Node{Type: html.DocumentNode}
		appendChildren(t, out, n.Children)
		return out
	case *DocType:
		out := &html.Node{Type: html.DoctypeNode, Data: n.Name}
		if n.PublicID != "" {
			out.Attr = append(out.Attr, html.Attribute{Key: "public", Val: n.PublicID})
		}
		if n.SystemID != "" {
			out.Attr = append(out.Attr, html.Attribute{Key: "system", Val: n.SystemID})
		}
		return out
	case *Element:
		out := &html.Node{Type: html.ElementNode, Data: n.TagName}
		names := make([]string, 0, len(n.Attributes))
		for name := range n.Attributes {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			v := ""
			if p := n.Attributes[name]; p != nil {
				v = *p
			}
			out.Attr = append(out.Attr, html.Attribute{Key: name, Val: v})
		}
		out.Attr = reflectProperties(out.Attr, n.Properties)
		appendChildren(t, out, n.Children)
		return out
	case *Text:
		return &html.Node{Type: html.TextNode, Data: n.Value}
	}
	return nil
}

func appendChildren(t VTree, parent *html.Node, ids []SyntheticID) {
	for _, c := range ids {
		if child := toNode(t, c); child != nil {
			parent.AppendChild(child)
		}
	}
}

func reflectProperties(attrs []html.Attribute, p Properties) []html.Attribute {
	set := func(key, val string) {
		for i := range attrs {
			if attrs[i].Key == key {
				attrs[i].Val = val
				return
			}
		}
		attrs = append(attrs, html.Attribute{Key: key, Val: val})
	}
	if p.Value != nil {
		set("value", *p.Value)
	}
	if p.Checked != nil {
		if *p.Checked {
			set("checked", "")
		} else {
			attrs = removeAttr(attrs, "checked")
		}
	}
	return attrs
}

func removeAttr(attrs []html.Attribute, key string) []html.Attribute {
	out := attrs[:0]
	for _, a := range attrs {
		if a.Key != key {
			out = append(out, a)
		}
	}
	return out
}

// Render writes the tree as HTML.
func Render(w io.Writer, t VTree) error {
	if err := html.Render(w, ToHTMLNode(t)); err != nil {
		return fmt.Errorf("vdom: render: %w", err)
	}
	return nil
}

// RenderString is Render into a string.
func RenderString(t VTree) (string, error) {
	var sb strings.Builder
	if err := Render(&sb, t); err != nil {
		return "", err
	}
	return sb.String(), nil
}
