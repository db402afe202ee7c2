package patch

import (
	"testing"

	"github.com/hazyhaar/repro/vdom"
)

func applyAll(t *testing.T, tree vdom.VTree, patches []Patch) vdom.VTree {
	t.Helper()
	for _, p := range patches {
		var err error
		tree, err = Apply(tree, p)
		if err != nil {
			t.Fatalf("apply %s: %v", p.Kind(), err)
		}
	}
	return tree
}

func TestDiff_Identical(t *testing.T) {
	patches, err := Diff(withText(), withText())
	if err != nil {
		t.Fatal(err)
	}
	if len(patches) != 0 {
		t.Fatalf("expected no patches, got %d", len(patches))
	}
}

func TestDiff_AttributesTextProperties(t *testing.T) {
	old := withText()
	want := old.Clone()
	a := want.Nodes["a"].(*vdom.Element)
	a.Attributes = map[string]*string{"id": vdom.Str("main")}
	want.Nodes["t"].(*vdom.Text).Value = "bye"
	want.Nodes["c"].(*vdom.Element).Properties.Value = vdom.Str("typed")

	patches, err := Diff(old, want)
	if err != nil {
		t.Fatal(err)
	}
	if len(patches) != 4 {
		t.Fatalf("expected 4 patches (remove class, add id, value, text), got %d", len(patches))
	}
	if got := applyAll(t, old, patches); !vdom.Equal(got, want) {
		t.Fatal("applying diff did not reach target")
	}
}

func TestDiff_ChildrenReorderAddRemove(t *testing.T) {
	old := vdom.NewTree(
		&vdom.Element{ID: "root", TagName: "ul", Children: []vdom.SyntheticID{"1", "2", "3", "4"}},
		&vdom.Element{ID: "1", ParentID: "root", TagName: "li"},
		&vdom.Element{ID: "2", ParentID: "root", TagName: "li"},
		&vdom.Element{ID: "3", ParentID: "root", TagName: "li"},
		&vdom.Element{ID: "4", ParentID: "root", TagName: "li"},
	)
	want := vdom.NewTree(
		&vdom.Element{ID: "root", TagName: "ul", Children: []vdom.SyntheticID{"4", "1", "5", "3"}},
		&vdom.Element{ID: "1", ParentID: "root", TagName: "li"},
		&vdom.Element{ID: "3", ParentID: "root", TagName: "li"},
		&vdom.Element{ID: "4", ParentID: "root", TagName: "li", Children: []vdom.SyntheticID{"4t"}},
		&vdom.Text{ID: "4t", ParentID: "4", Value: "four"},
		&vdom.Element{ID: "5", ParentID: "root", TagName: "li"},
	)
	patches, err := Diff(old, want)
	if err != nil {
		t.Fatal(err)
	}
	got := applyAll(t, old, patches)
	if !vdom.Equal(got, want) {
		t.Fatalf("diff result mismatch: children %v", got.Children("root"))
	}

	// The whole sequence reverts back to the original tree.
	for i := len(patches) - 1; i >= 0; i-- {
		got, err = Revert(got, patches[i])
		if err != nil {
			t.Fatal(err)
		}
	}
	if !vdom.Equal(got, old) {
		t.Fatal("reverting the diff did not restore the original")
	}
}

func TestDiff_RootChanged(t *testing.T) {
	a := vdom.NewTree(&vdom.Element{ID: "a", TagName: "div"})
	b := vdom.NewTree(&vdom.Element{ID: "b", TagName: "div"})
	if _, err := Diff(a, b); err == nil {
		t.Fatal("expected error")
	}
}
