// Package vdom is the in-memory document model shared by capture and
// playback: an addressable, parent-linked tree of nodes keyed by synthetic
// identifiers.
//
// Nodes are treated as immutable once they belong to a VTree. Every
// operation that changes a tree returns a new VTree sharing the untouched
// nodes, so earlier trees stay valid for history and undo. The Editor type
// batches several changes behind a single copy.
package vdom

import "maps"

// SyntheticID identifies a node (or any logical entity) within one
// recording. It is generated by the capture side and never reused.
type SyntheticID string

// NodeType discriminates VNode variants.
type NodeType uint8

const (
	DocumentNode NodeType = iota
	DocTypeNode
	ElementNode
	TextNode
)

func (t NodeType) String() string {
	switch t {
	case DocumentNode:
		return "document"
	case DocTypeNode:
		return "doctype"
	case ElementNode:
		return "element"
	case TextNode:
		return "text"
	}
	return "unknown"
}

// VNode is one of *Document, *DocType, *Element or *Text.
type VNode interface {
	NodeID() SyntheticID
	Parent() SyntheticID
	Type() NodeType
	// clone returns a deep copy safe to mutate.
	clone() VNode
	setParent(SyntheticID)
}

// Document is the tree root of a page.
type Document struct {
	ID       SyntheticID
	ParentID SyntheticID
	Children []SyntheticID
}

// DocType is the <!DOCTYPE> declaration.
type DocType struct {
	ID       SyntheticID
	ParentID SyntheticID
	Name     string
	PublicID string
	SystemID string
}

// Properties are live DOM properties that are not reflected in attributes.
// A nil field means "never observed".
type Properties struct {
	Value         *string
	Checked       *bool
	SelectedIndex *int32
}

// Element is an HTML element. A nil attribute value means the attribute is
// present without a value (e.g. <input disabled>).
type Element struct {
	ID         SyntheticID
	ParentID   SyntheticID
	TagName    string
	Attributes map[string]*string
	Properties Properties
	Children   []SyntheticID
}

// Text is a character data node.
type Text struct {
	ID       SyntheticID
	ParentID SyntheticID
	Value    string
}

func (n *Document) NodeID() SyntheticID { return n.ID }
func (n *Document) Parent() SyntheticID { return n.ParentID }
func (n *Document) Type() NodeType      { return DocumentNode }
func (n *Document) setParent(p SyntheticID) {
	n.ParentID = p
}
func (n *Document) clone() VNode {
	c := *n
	c.Children = append([]SyntheticID(nil), n.Children...)
	return &c
}

func (n *DocType) NodeID() SyntheticID     { return n.ID }
func (n *DocType) Parent() SyntheticID     { return n.ParentID }
func (n *DocType) Type() NodeType          { return DocTypeNode }
func (n *DocType) setParent(p SyntheticID) { n.ParentID = p }
func (n *DocType) clone() VNode {
	c := *n
	return &c
}

func (n *Element) NodeID() SyntheticID     { return n.ID }
func (n *Element) Parent() SyntheticID     { return n.ParentID }
func (n *Element) Type() NodeType          { return ElementNode }
func (n *Element) setParent(p SyntheticID) { n.ParentID = p }
func (n *Element) clone() VNode {
	c := *n
	c.Children = append([]SyntheticID(nil), n.Children...)
	if n.Attributes != nil {
		c.Attributes = maps.Clone(n.Attributes)
	}
	c.Properties = n.Properties.clone()
	return &c
}

func (n *Text) NodeID() SyntheticID     { return n.ID }
func (n *Text) Parent() SyntheticID     { return n.ParentID }
func (n *Text) Type() NodeType          { return TextNode }
func (n *Text) setParent(p SyntheticID) { n.ParentID = p }
func (n *Text) clone() VNode {
	c := *n
	return &c
}

func (p Properties) clone() Properties {
	var c Properties
	if p.Value != nil {
		v := *p.Value
		c.Value = &v
	}
	if p.Checked != nil {
		v := *p.Checked
		c.Checked = &v
	}
	if p.SelectedIndex != nil {
		v := *p.SelectedIndex
		c.SelectedIndex = &v
	}
	return c
}

// Clone returns a deep copy of n that the caller may mutate freely.
func Clone(n VNode) VNode {
	if n == nil {
		return nil
	}
	return n.clone()
}

// ChildrenOf returns the ordered children of a container node (Document or
// Element) and nil for leaves.
func ChildrenOf(n VNode) []SyntheticID {
	switch n := n.(type) {
	case *Document:
		return n.Children
	case *Element:
		return n.Children
	}
	return nil
}

// IsContainer reports whether n can hold children.
func IsContainer(n VNode) bool {
	switch n.(type) {
	case *Document, *Element:
		return true
	}
	return false
}

func setChildren(n VNode, children []SyntheticID) {
	switch n := n.(type) {
	case *Document:
		n.Children = children
	case *Element:
		n.Children = children
	}
}

// Str returns a pointer to s, for attribute and property literals.
func Str(s string) *string { return &s }
