package patch

import (
	"fmt"
	"slices"
	"sort"

	"github.com/hazyhaar/repro/vdom"
)

// Diff describes how to turn old into new as an ordered patch list. Nodes
// are matched by id; a node whose type or tag changed is replaced wholesale.
// Applying the result to old in order yields a tree equal to new.
func Diff(old, new vdom.VTree) ([]Patch, error) {
	if old.RootID != new.RootID {
		return nil, fmt.Errorf("patch: diff: root changed from %q to %q", old.RootID, new.RootID)
	}
	d := &differ{work: old.Edit(), target: new}
	if new.Root() == nil {
		return nil, nil
	}
	queue := []vdom.SyntheticID{new.RootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		kept, err := d.node(id)
		if err != nil {
			return nil, err
		}
		queue = append(queue, kept...)
	}
	return d.out, nil
}

type differ struct {
	work   *vdom.Editor
	target vdom.VTree
	out    []Patch
}

func (d *differ) emit(p Patch) error {
	if err := ApplyTo(d.work, p); err != nil {
		return err
	}
	d.out = append(d.out, p)
	return nil
}

// node diffs the properties of id and its child list and returns the
// children that exist on both sides and must be diffed in turn.
func (d *differ) node(id vdom.SyntheticID) ([]vdom.SyntheticID, error) {
	cur := d.work.Get(id)
	want := d.target.Get(id)
	switch w := want.(type) {
	case *vdom.Text:
		if c, ok := cur.(*vdom.Text); ok && c.Value != w.Value {
			return nil, d.emit(Text{TargetID: id, Value: w.Value, OldValue: c.Value})
		}
		return nil, nil
	case *vdom.Element:
		c, ok := cur.(*vdom.Element)
		if !ok {
			return nil, nil
		}
		if err := d.attributes(c, w); err != nil {
			return nil, err
		}
		if err := d.properties(c, w); err != nil {
			return nil, err
		}
	}
	return d.children(id)
}

func (d *differ) attributes(cur, want *vdom.Element) error {
	names := make([]string, 0, len(cur.Attributes)+len(want.Attributes))
	for n := range cur.Attributes {
		names = append(names, n)
	}
	for n := range want.Attributes {
		if _, ok := cur.Attributes[n]; !ok {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		oldV, had := cur.Attributes[name]
		newV, has := want.Attributes[name]
		switch {
		case had && !has:
			if err := d.emit(RemoveAttribute(cur.ID, name, copyPtr(oldV))); err != nil {
				return err
			}
		case has && (!had || !strPtrEqual(oldV, newV)):
			if err := d.emit(SetAttribute(cur.ID, name, copyPtr(newV), copyPtr(oldV), had)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *differ) properties(cur, want *vdom.Element) error {
	cp, wp := cur.Properties, want.Properties
	if !ptrEq(cp.Value, wp.Value) {
		if err := d.emit(TextProperty{TargetID: cur.ID, Name: PropValue, Value: copyPtr(wp.Value), OldValue: copyPtr(cp.Value)}); err != nil {
			return err
		}
	}
	if !ptrEq(cp.Checked, wp.Checked) {
		if err := d.emit(BooleanProperty{TargetID: cur.ID, Name: PropChecked, Value: copyPtr(wp.Checked), OldValue: copyPtr(cp.Checked)}); err != nil {
			return err
		}
	}
	if !ptrEq(cp.SelectedIndex, wp.SelectedIndex) {
		if err := d.emit(NumberProperty{TargetID: cur.ID, Name: PropSelectedIndex, Value: copyPtr(wp.SelectedIndex), OldValue: copyPtr(cp.SelectedIndex)}); err != nil {
			return err
		}
	}
	return nil
}

// children reconciles the child list of id. Children that keep their
// relative order and node identity stay in place; everything else is
// removed and re-added from the target tree.
func (d *differ) children(id vdom.SyntheticID) ([]vdom.SyntheticID, error) {
	curChildren := slices.Clone(vdom.ChildrenOf(d.work.Get(id)))
	wantChildren := d.target.Children(id)

	wantPos := make(map[vdom.SyntheticID]int, len(wantChildren))
	for i, c := range wantChildren {
		if compatible(d.work.Get(c), d.target.Get(c)) {
			wantPos[c] = i
		}
	}

	// Candidates to keep, in current order, then the longest run whose
	// target positions increase.
	var cand []vdom.SyntheticID
	for _, c := range curChildren {
		if _, ok := wantPos[c]; ok {
			cand = append(cand, c)
		}
	}
	keep := make(map[vdom.SyntheticID]bool, len(cand))
	for _, c := range longestIncreasing(cand, wantPos) {
		keep[c] = true
	}

	for _, c := range curChildren {
		if keep[c] {
			continue
		}
		live := vdom.ChildrenOf(d.work.Get(id))
		sub, ok := d.work.Subtree(c)
		if !ok {
			continue
		}
		prev, next := anchors(live, slices.Index(live, c))
		if err := d.emit(RemoveNodes{ParentID: id, PreviousSiblingID: prev, NextSiblingID: next, Nodes: []vdom.VTree{sub}}); err != nil {
			return nil, err
		}
	}

	var kept []vdom.SyntheticID
	for i, c := range wantChildren {
		if keep[c] {
			kept = append(kept, c)
			continue
		}
		sub, ok := d.target.Subtree(c)
		if !ok {
			continue
		}
		var prev vdom.SyntheticID
		if i > 0 {
			prev = wantChildren[i-1]
		}
		var next vdom.SyntheticID
		if i+1 < len(wantChildren) && keep[wantChildren[i+1]] {
			next = wantChildren[i+1]
		}
		if err := d.emit(AddNodes{ParentID: id, PreviousSiblingID: prev, NextSiblingID: next, Nodes: []vdom.VTree{sub.Clone()}}); err != nil {
			return nil, err
		}
	}
	return kept, nil
}

func compatible(a, b vdom.VNode) bool {
	if a == nil || b == nil || a.Type() != b.Type() {
		return false
	}
	if ea, ok := a.(*vdom.Element); ok {
		return ea.TagName == b.(*vdom.Element).TagName
	}
	return true
}

func anchors(list []vdom.SyntheticID, i int) (prev, next vdom.SyntheticID) {
	if i > 0 {
		prev = list[i-1]
	}
	if i >= 0 && i+1 < len(list) {
		next = list[i+1]
	}
	return prev, next
}

// longestIncreasing returns the longest subsequence of ids whose positions
// in pos are strictly increasing (patience sorting, O(n log n)).
func longestIncreasing(ids []vdom.SyntheticID, pos map[vdom.SyntheticID]int) []vdom.SyntheticID {
	if len(ids) == 0 {
		return nil
	}
	tails := []int{}
	prevIdx := make([]int, len(ids))
	for i, id := range ids {
		p := pos[id]
		j := sort.Search(len(tails), func(k int) bool { return pos[ids[tails[k]]] >= p })
		if j > 0 {
			prevIdx[i] = tails[j-1]
		} else {
			prevIdx[i] = -1
		}
		if j == len(tails) {
			tails = append(tails, i)
		} else {
			tails[j] = i
		}
	}
	out := make([]vdom.SyntheticID, len(tails))
	for k, i := len(tails)-1, tails[len(tails)-1]; k >= 0; k, i = k-1, prevIdx[i] {
		out[k] = ids[i]
	}
	return out
}

func strPtrEqual(a, b *string) bool { return ptrEq(a, b) }

func ptrEq[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
