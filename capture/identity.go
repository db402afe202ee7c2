package capture

import (
	"strings"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/repro/idgen"
	"github.com/hazyhaar/repro/vdom"
)

// identity is the table between Chrome's backend node ids and synthetic
// ids. It lives as long as the tab, so a node keeps its id across reads
// of the document.
type identity struct {
	gen idgen.Generator
	ids map[proto.DOMBackendNodeID]vdom.SyntheticID
}

func newIdentity(gen idgen.Generator) *identity {
	return &identity{gen: gen, ids: make(map[proto.DOMBackendNodeID]vdom.SyntheticID)}
}

func (m *identity) id(b proto.DOMBackendNodeID) vdom.SyntheticID {
	id, ok := m.ids[b]
	if !ok {
		id = vdom.SyntheticID(m.gen())
		m.ids[b] = id
	}
	return id
}

// tree converts a DOM.getDocument result. Node kinds other than document,
// doctype, element and text are dropped, as are ids of nodes no longer in
// the document.
func (m *identity) tree(root *proto.DOMNode) vdom.VTree {
	t := vdom.VTree{Nodes: make(map[vdom.SyntheticID]vdom.VNode)}
	seen := make(map[proto.DOMBackendNodeID]bool)
	t.RootID = m.walk(root, "", t.Nodes, seen)
	for b := range m.ids {
		if !seen[b] {
			delete(m.ids, b)
		}
	}
	return t
}

func (m *identity) walk(n *proto.DOMNode, parent vdom.SyntheticID, out map[vdom.SyntheticID]vdom.VNode, seen map[proto.DOMBackendNodeID]bool) vdom.SyntheticID {
	if n == nil {
		return ""
	}
	var node vdom.VNode
	id := vdom.SyntheticID("")
	switch n.NodeType {
	case 9:
		id = m.id(n.BackendNodeID)
		node = &vdom.Document{ID: id, ParentID: parent, Children: m.children(n, id, out, seen)}
	case 10:
		id = m.id(n.BackendNodeID)
		node = &vdom.DocType{ID: id, ParentID: parent, Name: n.NodeName, PublicID: n.PublicID, SystemID: n.SystemID}
	case 1:
		id = m.id(n.BackendNodeID)
		el := &vdom.Element{ID: id, ParentID: parent, TagName: strings.ToLower(n.NodeName)}
		if len(n.Attributes) > 1 {
			el.Attributes = make(map[string]*string, len(n.Attributes)/2)
			for i := 0; i+1 < len(n.Attributes); i += 2 {
				el.Attributes[n.Attributes[i]] = vdom.Str(n.Attributes[i+1])
			}
		}
		el.Children = m.children(n, id, out, seen)
		node = el
	case 3:
		id = m.id(n.BackendNodeID)
		node = &vdom.Text{ID: id, ParentID: parent, Value: n.NodeValue}
	default:
		return ""
	}
	seen[n.BackendNodeID] = true
	out[id] = node
	return id
}

func (m *identity) children(n *proto.DOMNode, id vdom.SyntheticID, out map[vdom.SyntheticID]vdom.VNode, seen map[proto.DOMBackendNodeID]bool) []vdom.SyntheticID {
	var ids []vdom.SyntheticID
	for _, c := range n.Children {
		if cid := m.walk(c, id, out, seen); cid != "" {
			ids = append(ids, cid)
		}
	}
	return ids
}
