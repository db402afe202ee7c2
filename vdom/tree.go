package vdom

import (
	"fmt"
	"maps"
	"slices"
)

// VTree is a document tree: a root id plus the flat node map. The zero
// value is an empty tree.
type VTree struct {
	RootID SyntheticID
	Nodes  map[SyntheticID]VNode
}

// NewTree builds a tree from a root node and its descendants. Parent links
// are taken as given; call Validate to check them.
func NewTree(root VNode, rest ...VNode) VTree {
	t := VTree{RootID: root.NodeID(), Nodes: make(map[SyntheticID]VNode, len(rest)+1)}
	t.Nodes[root.NodeID()] = root
	for _, n := range rest {
		t.Nodes[n.NodeID()] = n
	}
	return t
}

// Len returns the number of nodes.
func (t VTree) Len() int { return len(t.Nodes) }

// IsEmpty reports whether the tree holds no root.
func (t VTree) IsEmpty() bool { return t.RootID == "" || len(t.Nodes) == 0 }

// Get returns the node with the given id or nil.
func (t VTree) Get(id SyntheticID) VNode {
	if t.Nodes == nil {
		return nil
	}
	return t.Nodes[id]
}

// Root returns the root node or nil.
func (t VTree) Root() VNode { return t.Get(t.RootID) }

// Children returns the ordered child ids of id (nil for leaves or absent ids).
func (t VTree) Children(id SyntheticID) []SyntheticID {
	return ChildrenOf(t.Get(id))
}

// IndexOf returns the position of child in parent's children, or -1.
func (t VTree) IndexOf(parentID, childID SyntheticID) int {
	return slices.Index(t.Children(parentID), childID)
}

// Edit starts a batch of in-place changes on a private copy of t.
func (t VTree) Edit() *Editor {
	return newEditor(t)
}

// Replace returns a tree where id is replaced by n. The parent link of n is
// forced to the previous node's parent. Replacing an absent id adds n as a
// detached entry only if it is the root.
func (t VTree) Replace(id SyntheticID, n VNode) VTree {
	e := t.Edit()
	e.Replace(id, n)
	return e.Tree()
}

// InsertSubtrees returns a tree where subtrees are inserted as children of
// parentID starting at index. An index outside [0, len] appends.
func (t VTree) InsertSubtrees(parentID SyntheticID, subtrees []VTree, index int) (VTree, error) {
	e := t.Edit()
	if err := e.InsertSubtrees(parentID, subtrees, index); err != nil {
		return t, err
	}
	return e.Tree(), nil
}

// RemoveSubtrees returns a tree where the given children of parentID and
// all their descendants are gone. Ids that are not present are ignored, so
// the operation is idempotent.
func (t VTree) RemoveSubtrees(parentID SyntheticID, ids []SyntheticID) VTree {
	e := t.Edit()
	e.RemoveSubtrees(parentID, ids)
	return e.Tree()
}

// Subtree extracts the subtree rooted at id. The returned root keeps its
// ParentID so a later insertion can restore it exactly.
func (t VTree) Subtree(id SyntheticID) (VTree, bool) {
	root := t.Get(id)
	if root == nil {
		return VTree{}, false
	}
	sub := VTree{RootID: id, Nodes: make(map[SyntheticID]VNode)}
	for _, nid := range t.Descendants(id) {
		sub.Nodes[nid] = t.Nodes[nid]
	}
	return sub, true
}

// Descendants returns id and every node below it in breadth-first order.
// Missing children are skipped.
func (t VTree) Descendants(id SyntheticID) []SyntheticID {
	if t.Get(id) == nil {
		return nil
	}
	out := []SyntheticID{id}
	for i := 0; i < len(out); i++ {
		for _, c := range t.Children(out[i]) {
			if t.Get(c) != nil {
				out = append(out, c)
			}
		}
	}
	return out
}

// Clone returns a tree with its own node map and deep-copied nodes.
func (t VTree) Clone() VTree {
	c := VTree{RootID: t.RootID, Nodes: make(map[SyntheticID]VNode, len(t.Nodes))}
	for id, n := range t.Nodes {
		c.Nodes[id] = n.clone()
	}
	return c
}

// Validate checks the tree invariants: the set reachable from the root
// equals the key set, and every parent link agrees with the unique parent
// listing the node as a child.
func (t VTree) Validate() error {
	if t.IsEmpty() {
		if len(t.Nodes) != 0 {
			return fmt.Errorf("vdom: %d nodes without a root", len(t.Nodes))
		}
		return nil
	}
	root := t.Get(t.RootID)
	if root == nil {
		return fmt.Errorf("vdom: root %q not in node map", t.RootID)
	}
	if root.Parent() != "" {
		return fmt.Errorf("vdom: root %q has parent %q", t.RootID, root.Parent())
	}
	seen := map[SyntheticID]bool{t.RootID: true}
	queue := []SyntheticID{t.RootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, c := range t.Children(id) {
			child := t.Get(c)
			if child == nil {
				return fmt.Errorf("vdom: %q lists missing child %q", id, c)
			}
			if seen[c] {
				return fmt.Errorf("vdom: node %q listed twice", c)
			}
			if child.Parent() != id {
				return fmt.Errorf("vdom: node %q has parent %q, listed under %q", c, child.Parent(), id)
			}
			seen[c] = true
			queue = append(queue, c)
		}
	}
	if len(seen) != len(t.Nodes) {
		for id := range t.Nodes {
			if !seen[id] {
				return fmt.Errorf("vdom: orphan node %q", id)
			}
		}
	}
	return nil
}

// Equal reports whether two trees have the same root and structurally equal
// nodes.
func Equal(a, b VTree) bool {
	if a.RootID != b.RootID || len(a.Nodes) != len(b.Nodes) {
		return false
	}
	for id, na := range a.Nodes {
		nb, ok := b.Nodes[id]
		if !ok || !NodeEqual(na, nb) {
			return false
		}
	}
	return true
}

// NodeEqual compares two nodes field by field.
func NodeEqual(a, b VNode) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.NodeID() != b.NodeID() || a.Parent() != b.Parent() || a.Type() != b.Type() {
		return false
	}
	switch a := a.(type) {
	case *Document:
		return slices.Equal(a.Children, b.(*Document).Children)
	case *DocType:
		bb := b.(*DocType)
		return a.Name == bb.Name && a.PublicID == bb.PublicID && a.SystemID == bb.SystemID
	case *Text:
		return a.Value == b.(*Text).Value
	case *Element:
		bb := b.(*Element)
		return a.TagName == bb.TagName &&
			slices.Equal(a.Children, bb.Children) &&
			maps.EqualFunc(a.Attributes, bb.Attributes, ptrEqual[string]) &&
			ptrEqual(a.Properties.Value, bb.Properties.Value) &&
			ptrEqual(a.Properties.Checked, bb.Properties.Checked) &&
			ptrEqual(a.Properties.SelectedIndex, bb.Properties.SelectedIndex)
	}
	return false
}

func ptrEqual[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
