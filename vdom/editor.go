package vdom

import (
	"fmt"
	"maps"
	"slices"
)

// Editor applies several changes to a tree behind a single map copy.
// Nodes inherited from the source tree are cloned before their first
// mutation, so the source tree is never modified. Not safe for concurrent
// use; callers serialise writes.
type Editor struct {
	root   SyntheticID
	nodes  map[SyntheticID]VNode
	owned  map[SyntheticID]bool
	shared bool
}

func newEditor(t VTree) *Editor {
	return &Editor{root: t.RootID, nodes: t.Nodes, owned: map[SyntheticID]bool{}, shared: true}
}

// NewEditor starts from an empty tree.
func NewEditor() *Editor {
	return newEditor(VTree{})
}

// Tree returns the current state. Later edits do not affect the returned
// tree.
func (e *Editor) Tree() VTree {
	e.shared = true
	e.owned = map[SyntheticID]bool{}
	return VTree{RootID: e.root, Nodes: e.nodes}
}

// Reset discards all state and continues from t.
func (e *Editor) Reset(t VTree) {
	*e = *newEditor(t)
}

// Get returns a node for reading. Callers must not mutate it; use Mutable.
func (e *Editor) Get(id SyntheticID) VNode {
	if e.nodes == nil {
		return nil
	}
	return e.nodes[id]
}

// Len returns the number of nodes.
func (e *Editor) Len() int { return len(e.nodes) }

func (e *Editor) unshare() {
	if !e.shared {
		return
	}
	e.nodes = maps.Clone(e.nodes)
	if e.nodes == nil {
		e.nodes = make(map[SyntheticID]VNode)
	}
	e.shared = false
}

// Mutable returns a private copy of node id that may be modified in place,
// or nil if absent.
func (e *Editor) Mutable(id SyntheticID) VNode {
	n := e.Get(id)
	if n == nil {
		return nil
	}
	e.unshare()
	if !e.owned[id] {
		n = n.clone()
		e.nodes[id] = n
		e.owned[id] = true
	}
	return n
}

// put stores a node the editor exclusively owns.
func (e *Editor) put(n VNode) {
	e.unshare()
	e.nodes[n.NodeID()] = n
	e.owned[n.NodeID()] = true
}

// Replace swaps node id for n, preserving its parent link. If id is absent
// and the tree has no root, n becomes the root.
func (e *Editor) Replace(id SyntheticID, n VNode) {
	old := e.Get(id)
	n = n.clone()
	if old != nil {
		n.setParent(old.Parent())
	} else if e.root == "" {
		n.setParent("")
		e.root = n.NodeID()
	} else {
		return
	}
	if n.NodeID() != id {
		e.unshare()
		delete(e.nodes, id)
		if e.root == id {
			e.root = n.NodeID()
		}
		if p := e.Mutable(n.Parent()); p != nil {
			children := ChildrenOf(p)
			if i := slices.Index(children, id); i >= 0 {
				children[i] = n.NodeID()
			}
		}
	}
	e.put(n)
}

// SetRoot replaces the whole tree.
func (e *Editor) SetRoot(t VTree) {
	e.root = t.RootID
	e.nodes = t.Nodes
	e.shared = true
	e.owned = map[SyntheticID]bool{}
}

// InsertSubtrees inserts subtree roots as consecutive children of parentID
// starting at index. A subtree root that already exists elsewhere in the
// tree is detached from its old position first.
func (e *Editor) InsertSubtrees(parentID SyntheticID, subtrees []VTree, index int) error {
	parent := e.Get(parentID)
	if parent == nil {
		return fmt.Errorf("vdom: insert: parent %q not found", parentID)
	}
	if !IsContainer(parent) {
		return fmt.Errorf("vdom: insert: parent %q is a %s", parentID, parent.Type())
	}
	for _, sub := range subtrees {
		if e.Get(sub.RootID) != nil {
			old := e.Get(sub.RootID).Parent()
			e.RemoveSubtrees(old, []SyntheticID{sub.RootID})
		}
	}

	p := e.Mutable(parentID)
	children := ChildrenOf(p)
	if index < 0 || index > len(children) {
		index = len(children)
	}
	ids := make([]SyntheticID, 0, len(subtrees))
	for _, sub := range subtrees {
		if sub.Get(sub.RootID) == nil {
			continue
		}
		for id, n := range sub.Nodes {
			if id == sub.RootID {
				n = n.clone()
				n.setParent(parentID)
				e.put(n)
				continue
			}
			e.unshare()
			e.nodes[id] = n
		}
		ids = append(ids, sub.RootID)
	}
	setChildren(p, slices.Insert(children, index, ids...))
	return nil
}

// RemoveSubtrees detaches the given children of parentID and purges every
// descendant from the node map. Absent ids are ignored.
func (e *Editor) RemoveSubtrees(parentID SyntheticID, ids []SyntheticID) {
	for _, id := range ids {
		if p := e.Get(parentID); p != nil && slices.Contains(ChildrenOf(p), id) {
			mp := e.Mutable(parentID)
			setChildren(mp, slices.DeleteFunc(ChildrenOf(mp), func(c SyntheticID) bool { return c == id }))
		}
		n := e.Get(id)
		if n == nil || n.Parent() != parentID {
			continue
		}
		e.purge(id)
	}
}

// purge deletes id and all descendants, walking breadth-first.
func (e *Editor) purge(id SyntheticID) {
	e.unshare()
	queue := []SyntheticID{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		n := e.nodes[cur]
		if n == nil {
			continue
		}
		queue = append(queue, ChildrenOf(n)...)
		delete(e.nodes, cur)
		delete(e.owned, cur)
	}
	if id == e.root {
		e.root = ""
	}
}

// Subtree extracts a deep copy of the subtree rooted at id.
func (e *Editor) Subtree(id SyntheticID) (VTree, bool) {
	sub, ok := VTree{RootID: e.root, Nodes: e.nodes}.Subtree(id)
	if !ok {
		return sub, false
	}
	return sub.Clone(), true
}
