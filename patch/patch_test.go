package patch

import (
	"testing"

	"github.com/hazyhaar/repro/vdom"
)

func base() vdom.VTree {
	return vdom.NewTree(
		&vdom.Document{ID: "doc", Children: []vdom.SyntheticID{"body"}},
		&vdom.Element{ID: "body", ParentID: "doc", TagName: "body", Children: []vdom.SyntheticID{"a", "c"}},
		&vdom.Element{ID: "a", ParentID: "body", TagName: "div", Attributes: map[string]*string{"class": vdom.Str("x")}},
		&vdom.Element{ID: "c", ParentID: "body", TagName: "input"},
	)
}

func withText() vdom.VTree {
	t := base().Clone()
	t.Nodes["a"].(*vdom.Element).Children = []vdom.SyntheticID{"t"}
	t.Nodes["t"] = &vdom.Text{ID: "t", ParentID: "a", Value: "hi"}
	return t
}

func subtree(root vdom.SyntheticID) vdom.VTree {
	return vdom.NewTree(
		&vdom.Element{ID: root, TagName: "section", Children: []vdom.SyntheticID{root + "-child"}},
		&vdom.Text{ID: root + "-child", ParentID: root, Value: "nested"},
	)
}

func b(v bool) *bool    { return &v }
func i32(v int32) *int32 { return &v }

func TestApplyRevert_Symmetry(t *testing.T) {
	tree := withText()
	if err := tree.Validate(); err != nil {
		t.Fatal(err)
	}
	removed, _ := tree.Subtree("c")

	cases := []struct {
		name string
		p    Patch
	}{
		{"attr set", SetAttribute("a", "class", vdom.Str("y"), vdom.Str("x"), true)},
		{"attr add", SetAttribute("a", "id", vdom.Str("main"), nil, false)},
		{"attr remove", RemoveAttribute("a", "class", vdom.Str("x"))},
		{"text", Text{TargetID: "t", Value: "bye", OldValue: "hi"}},
		{"value prop", TextProperty{TargetID: "c", Name: PropValue, Value: vdom.Str("typed")}},
		{"checked prop", BooleanProperty{TargetID: "c", Name: PropChecked, Value: b(true)}},
		{"selected prop", NumberProperty{TargetID: "c", Name: PropSelectedIndex, Value: i32(2)}},
		{"add first", AddNodes{ParentID: "body", NextSiblingID: "a", Nodes: []vdom.VTree{subtree("n")}}},
		{"add middle", AddNodes{ParentID: "body", PreviousSiblingID: "a", NextSiblingID: "c", Nodes: []vdom.VTree{subtree("n"), subtree("m")}}},
		{"remove", RemoveNodes{ParentID: "body", PreviousSiblingID: "a", Nodes: []vdom.VTree{removed}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			applied, err := Apply(tree, tc.p)
			if err != nil {
				t.Fatal(err)
			}
			if err := applied.Validate(); err != nil {
				t.Fatalf("applied tree invalid: %v", err)
			}
			if vdom.Equal(applied, tree) {
				t.Fatal("apply had no effect")
			}
			reverted, err := Revert(applied, tc.p)
			if err != nil {
				t.Fatal(err)
			}
			if !vdom.Equal(reverted, tree) {
				t.Fatal("revert(apply(t, p), p) != t")
			}
		})
	}
}

func TestApply_MissingTargetIsNoop(t *testing.T) {
	tree := withText()
	for _, p := range []Patch{
		SetAttribute("ghost", "class", vdom.Str("y"), nil, false),
		Text{TargetID: "ghost", Value: "x"},
		BooleanProperty{TargetID: "ghost", Name: PropChecked, Value: b(true)},
		AddNodes{ParentID: "ghost", Nodes: []vdom.VTree{subtree("n")}},
		RemoveNodes{ParentID: "ghost", Nodes: []vdom.VTree{subtree("n")}},
		Unknown{Tag: 99},
	} {
		got, err := Apply(tree, p)
		if err != nil {
			t.Fatalf("%T: %v", p, err)
		}
		if !vdom.Equal(got, tree) {
			t.Fatalf("%T changed the tree", p)
		}
	}
}

func TestApply_AddNodesAfterPreviousSibling(t *testing.T) {
	got, err := Apply(base(), AddNodes{ParentID: "body", PreviousSiblingID: "a", Nodes: []vdom.VTree{subtree("n")}})
	if err != nil {
		t.Fatal(err)
	}
	children := got.Children("body")
	if len(children) != 3 || children[1] != "n" {
		t.Fatalf("children: %v", children)
	}
}

func TestApply_AddNodesFallsBackToNextSibling(t *testing.T) {
	got, err := Apply(base(), AddNodes{ParentID: "body", PreviousSiblingID: "gone", NextSiblingID: "c", Nodes: []vdom.VTree{subtree("n")}})
	if err != nil {
		t.Fatal(err)
	}
	if children := got.Children("body"); children[1] != "n" {
		t.Fatalf("children: %v", children)
	}
}

func TestApply_AddUnderTextFails(t *testing.T) {
	if _, err := Apply(withText(), AddNodes{ParentID: "t", Nodes: []vdom.VTree{subtree("n")}}); err == nil {
		t.Fatal("expected error")
	}
}

func TestAddThenRemove_PurgesNodeMap(t *testing.T) {
	tree := vdom.NewTree(&vdom.Element{ID: "a", TagName: "div"})
	add := AddNodes{ParentID: "a", Nodes: []vdom.VTree{subtree("b")}}
	tree, err := Apply(tree, add)
	if err != nil {
		t.Fatal(err)
	}
	if tree.Len() != 3 {
		t.Fatalf("after add: %d nodes", tree.Len())
	}
	tree, err = Apply(tree, RemoveNodes{ParentID: "a", Nodes: []vdom.VTree{subtree("b")}})
	if err != nil {
		t.Fatal(err)
	}
	if len(tree.Children("a")) != 0 {
		t.Fatalf("children left: %v", tree.Children("a"))
	}
	if tree.Get("b") != nil || tree.Get("b-child") != nil {
		t.Fatal("removed nodes leaked in node map")
	}
}

func TestInverse_StructuralSwap(t *testing.T) {
	add := AddNodes{ParentID: "p", PreviousSiblingID: "x", Nodes: []vdom.VTree{subtree("n")}}
	inv, ok := Inverse(add).(RemoveNodes)
	if !ok {
		t.Fatalf("Inverse(AddNodes): got %T", Inverse(add))
	}
	if inv.ParentID != "p" || inv.PreviousSiblingID != "x" || len(inv.Nodes) != 1 {
		t.Fatalf("inverse fields: %+v", inv)
	}
	if _, ok := Inverse(inv).(AddNodes); !ok {
		t.Fatal("Inverse(RemoveNodes) is not AddNodes")
	}
}
