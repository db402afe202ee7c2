package patch

import (
	"fmt"
	"slices"

	"github.com/hazyhaar/repro/vdom"
)

// Apply returns t with p applied. Patches addressed to nodes that no longer
// exist are dropped silently: during seeking, patches are replayed out of
// strict causal order and a later patch may already have removed the
// target.
func Apply(t vdom.VTree, p Patch) (vdom.VTree, error) {
	e := t.Edit()
	if err := ApplyTo(e, p); err != nil {
		return t, err
	}
	return e.Tree(), nil
}

// Revert returns t with p undone. Revert(Apply(t, p), p) equals t.
func Revert(t vdom.VTree, p Patch) (vdom.VTree, error) {
	return Apply(t, Inverse(p))
}

// RevertTo undoes p on an editor in place.
func RevertTo(e *vdom.Editor, p Patch) error {
	return ApplyTo(e, Inverse(p))
}

// ApplyTo applies p on an editor in place.
func ApplyTo(e *vdom.Editor, p Patch) error {
	switch p := p.(type) {
	case Attribute:
		el, ok := e.Mutable(p.TargetID).(*vdom.Element)
		if !ok {
			return nil
		}
		if !p.Present {
			delete(el.Attributes, p.Name)
			return nil
		}
		if el.Attributes == nil {
			el.Attributes = make(map[string]*string)
		}
		el.Attributes[p.Name] = copyPtr(p.Value)

	case Text:
		if txt, ok := e.Mutable(p.TargetID).(*vdom.Text); ok {
			txt.Value = p.Value
		}

	case TextProperty:
		if el, ok := e.Mutable(p.TargetID).(*vdom.Element); ok && p.Name == PropValue {
			el.Properties.Value = copyPtr(p.Value)
		}

	case NumberProperty:
		if el, ok := e.Mutable(p.TargetID).(*vdom.Element); ok && p.Name == PropSelectedIndex {
			el.Properties.SelectedIndex = copyPtr(p.Value)
		}

	case BooleanProperty:
		if el, ok := e.Mutable(p.TargetID).(*vdom.Element); ok && p.Name == PropChecked {
			el.Properties.Checked = copyPtr(p.Value)
		}

	case AddNodes:
		parent := e.Get(p.ParentID)
		if parent == nil {
			return nil
		}
		if !vdom.IsContainer(parent) {
			return fmt.Errorf("patch: add nodes under %s %q", parent.Type(), p.ParentID)
		}
		idx := insertionIndex(vdom.ChildrenOf(parent), p.PreviousSiblingID, p.NextSiblingID)
		return e.InsertSubtrees(p.ParentID, p.Nodes, idx)

	case RemoveNodes:
		ids := make([]vdom.SyntheticID, 0, len(p.Nodes))
		for _, n := range p.Nodes {
			ids = append(ids, n.RootID)
		}
		e.RemoveSubtrees(p.ParentID, ids)

	case Unknown:
		// Unrecognised patches carry no applicable meaning for this build.

	default:
		return fmt.Errorf("patch: unsupported patch %T", p)
	}
	return nil
}

// insertionIndex locates the position right after prev. When prev is gone
// the next anchor is tried, then the end of the list.
func insertionIndex(children []vdom.SyntheticID, prev, next vdom.SyntheticID) int {
	if prev == "" {
		return 0
	}
	if i := slices.Index(children, prev); i >= 0 {
		return i + 1
	}
	if next != "" {
		if i := slices.Index(children, next); i >= 0 {
			return i
		}
	}
	return len(children)
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
