package event

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hazyhaar/repro/binview"
	"github.com/hazyhaar/repro/patch"
	"github.com/hazyhaar/repro/vdom"
)

// Descriptors for the document tree and patches. Tags are part of the
// recording format: never renumber, only add.

var (
	idDesc       = binview.String[vdom.SyntheticID]()
	idsDesc      = binview.Vector(idDesc)
	strDesc      = binview.String[string]()
	optStrDesc   = binview.Nullable(strDesc)
	optBoolDesc  = binview.Nullable(binview.Bool())
	optInt32Desc = binview.Nullable(binview.Int32())
)

// pointer adapts a value descriptor to pointer values; nil is rejected.
func pointer[T any](d binview.Descriptor[T]) binview.Descriptor[*T] {
	return binview.Convert(d,
		func(p *T) (T, error) {
			if p == nil {
				var zero T
				return zero, errors.New("nil value")
			}
			return *p, nil
		},
		func(v T) (*T, error) { return &v, nil },
	)
}

var documentDesc = binview.Struct[vdom.Document]("document",
	binview.Field(1, "id", idDesc, func(n *vdom.Document) *vdom.SyntheticID { return &n.ID }, ""),
	binview.Field(2, "parent_id", idDesc, func(n *vdom.Document) *vdom.SyntheticID { return &n.ParentID }, ""),
	binview.Field(3, "children", idsDesc, func(n *vdom.Document) *[]vdom.SyntheticID { return &n.Children }, nil),
)

var docTypeDesc = binview.Struct[vdom.DocType]("doctype",
	binview.Field(1, "id", idDesc, func(n *vdom.DocType) *vdom.SyntheticID { return &n.ID }, ""),
	binview.Field(2, "parent_id", idDesc, func(n *vdom.DocType) *vdom.SyntheticID { return &n.ParentID }, ""),
	binview.Field(3, "name", strDesc, func(n *vdom.DocType) *string { return &n.Name }, ""),
	binview.Field(4, "public_id", strDesc, func(n *vdom.DocType) *string { return &n.PublicID }, ""),
	binview.Field(5, "system_id", strDesc, func(n *vdom.DocType) *string { return &n.SystemID }, ""),
)

var propertiesDesc = binview.Struct[vdom.Properties]("properties",
	binview.Field(1, "value", optStrDesc, func(p *vdom.Properties) **string { return &p.Value }, nil),
	binview.Field(2, "checked", optBoolDesc, func(p *vdom.Properties) **bool { return &p.Checked }, nil),
	binview.Field(3, "selected_index", optInt32Desc, func(p *vdom.Properties) **int32 { return &p.SelectedIndex }, nil),
)

var elementDesc = binview.Struct[vdom.Element]("element",
	binview.Field(1, "id", idDesc, func(n *vdom.Element) *vdom.SyntheticID { return &n.ID }, ""),
	binview.Field(2, "parent_id", idDesc, func(n *vdom.Element) *vdom.SyntheticID { return &n.ParentID }, ""),
	binview.Field(3, "tag_name", strDesc, func(n *vdom.Element) *string { return &n.TagName }, ""),
	binview.Field(4, "attributes", binview.Map(strDesc, optStrDesc),
		func(n *vdom.Element) *map[string]*string { return &n.Attributes }, nil),
	binview.Field(5, "properties", propertiesDesc, func(n *vdom.Element) *vdom.Properties { return &n.Properties }, vdom.Properties{}),
	binview.Field(6, "children", idsDesc, func(n *vdom.Element) *[]vdom.SyntheticID { return &n.Children }, nil),
)

var textDesc = binview.Struct[vdom.Text]("text",
	binview.Field(1, "id", idDesc, func(n *vdom.Text) *vdom.SyntheticID { return &n.ID }, ""),
	binview.Field(2, "parent_id", idDesc, func(n *vdom.Text) *vdom.SyntheticID { return &n.ParentID }, ""),
	binview.Field(3, "value", strDesc, func(n *vdom.Text) *string { return &n.Value }, ""),
)

// Node types nobody knows yet cannot be placed in a tree.
var nodeDesc = binview.Union[vdom.VNode]("vnode", binview.Unknown[vdom.VNode]{},
	binview.Variant[vdom.VNode](uint16(vdom.DocumentNode), "document", pointer(documentDesc)),
	binview.Variant[vdom.VNode](uint16(vdom.DocTypeNode), "doctype", pointer(docTypeDesc)),
	binview.Variant[vdom.VNode](uint16(vdom.ElementNode), "element", pointer(elementDesc)),
	binview.Variant[vdom.VNode](uint16(vdom.TextNode), "text", pointer(textDesc)),
)

// nodeListDesc stores the node map as a list ordered by id.
var nodeListDesc = binview.Convert(binview.Vector(nodeDesc),
	func(m map[vdom.SyntheticID]vdom.VNode) ([]vdom.VNode, error) {
		out := make([]vdom.VNode, 0, len(m))
		for id, n := range m {
			if n == nil || n.NodeID() != id {
				return nil, fmt.Errorf("node map entry %q holds %v", id, n)
			}
			out = append(out, n)
		}
		slices.SortFunc(out, func(a, b vdom.VNode) int { return strings.Compare(string(a.NodeID()), string(b.NodeID())) })
		return out, nil
	},
	func(list []vdom.VNode) (map[vdom.SyntheticID]vdom.VNode, error) {
		if len(list) == 0 {
			return nil, nil
		}
		m := make(map[vdom.SyntheticID]vdom.VNode, len(list))
		for _, n := range list {
			if _, dup := m[n.NodeID()]; dup {
				return nil, fmt.Errorf("duplicate node %q", n.NodeID())
			}
			m[n.NodeID()] = n
		}
		return m, nil
	},
)

var treeDesc = binview.Struct[vdom.VTree]("vtree",
	binview.Field(1, "root_id", idDesc, func(t *vdom.VTree) *vdom.SyntheticID { return &t.RootID }, ""),
	binview.Field(2, "nodes", nodeListDesc, func(t *vdom.VTree) *map[vdom.SyntheticID]vdom.VNode { return &t.Nodes }, nil),
)

var treesDesc = binview.Vector(treeDesc)

var attributePatchDesc = binview.Struct[patch.Attribute]("attribute",
	binview.Field(1, "target_id", idDesc, func(p *patch.Attribute) *vdom.SyntheticID { return &p.TargetID }, ""),
	binview.Field(2, "name", strDesc, func(p *patch.Attribute) *string { return &p.Name }, ""),
	binview.Field(3, "value", optStrDesc, func(p *patch.Attribute) **string { return &p.Value }, nil),
	binview.Field(4, "old_value", optStrDesc, func(p *patch.Attribute) **string { return &p.OldValue }, nil),
	binview.Field(5, "present", binview.Bool(), func(p *patch.Attribute) *bool { return &p.Present }, true),
	binview.Field(6, "old_present", binview.Bool(), func(p *patch.Attribute) *bool { return &p.OldPresent }, false),
)

var textPatchDesc = binview.Struct[patch.Text]("text",
	binview.Field(1, "target_id", idDesc, func(p *patch.Text) *vdom.SyntheticID { return &p.TargetID }, ""),
	binview.Field(2, "value", strDesc, func(p *patch.Text) *string { return &p.Value }, ""),
	binview.Field(3, "old_value", strDesc, func(p *patch.Text) *string { return &p.OldValue }, ""),
)

var textPropertyDesc = binview.Struct[patch.TextProperty]("text_property",
	binview.Field(1, "target_id", idDesc, func(p *patch.TextProperty) *vdom.SyntheticID { return &p.TargetID }, ""),
	binview.Field(2, "name", strDesc, func(p *patch.TextProperty) *string { return &p.Name }, ""),
	binview.Field(3, "value", optStrDesc, func(p *patch.TextProperty) **string { return &p.Value }, nil),
	binview.Field(4, "old_value", optStrDesc, func(p *patch.TextProperty) **string { return &p.OldValue }, nil),
)

var numberPropertyDesc = binview.Struct[patch.NumberProperty]("number_property",
	binview.Field(1, "target_id", idDesc, func(p *patch.NumberProperty) *vdom.SyntheticID { return &p.TargetID }, ""),
	binview.Field(2, "name", strDesc, func(p *patch.NumberProperty) *string { return &p.Name }, ""),
	binview.Field(3, "value", optInt32Desc, func(p *patch.NumberProperty) **int32 { return &p.Value }, nil),
	binview.Field(4, "old_value", optInt32Desc, func(p *patch.NumberProperty) **int32 { return &p.OldValue }, nil),
)

var booleanPropertyDesc = binview.Struct[patch.BooleanProperty]("boolean_property",
	binview.Field(1, "target_id", idDesc, func(p *patch.BooleanProperty) *vdom.SyntheticID { return &p.TargetID }, ""),
	binview.Field(2, "name", strDesc, func(p *patch.BooleanProperty) *string { return &p.Name }, ""),
	binview.Field(3, "value", optBoolDesc, func(p *patch.BooleanProperty) **bool { return &p.Value }, nil),
	binview.Field(4, "old_value", optBoolDesc, func(p *patch.BooleanProperty) **bool { return &p.OldValue }, nil),
)

var addNodesDesc = binview.Struct[patch.AddNodes]("add_nodes",
	binview.Field(1, "parent_id", idDesc, func(p *patch.AddNodes) *vdom.SyntheticID { return &p.ParentID }, ""),
	binview.Field(2, "previous_sibling_id", idDesc, func(p *patch.AddNodes) *vdom.SyntheticID { return &p.PreviousSiblingID }, ""),
	binview.Field(3, "next_sibling_id", idDesc, func(p *patch.AddNodes) *vdom.SyntheticID { return &p.NextSiblingID }, ""),
	binview.Field(4, "nodes", treesDesc, func(p *patch.AddNodes) *[]vdom.VTree { return &p.Nodes }, nil),
)

var removeNodesDesc = binview.Struct[patch.RemoveNodes]("remove_nodes",
	binview.Field(1, "parent_id", idDesc, func(p *patch.RemoveNodes) *vdom.SyntheticID { return &p.ParentID }, ""),
	binview.Field(2, "previous_sibling_id", idDesc, func(p *patch.RemoveNodes) *vdom.SyntheticID { return &p.PreviousSiblingID }, ""),
	binview.Field(3, "next_sibling_id", idDesc, func(p *patch.RemoveNodes) *vdom.SyntheticID { return &p.NextSiblingID }, ""),
	binview.Field(4, "nodes", treesDesc, func(p *patch.RemoveNodes) *[]vdom.VTree { return &p.Nodes }, nil),
)

var patchDesc = binview.Union("patch",
	binview.Unknown[patch.Patch]{
		Wrap: func(tag uint16, raw []byte) patch.Patch { return patch.Unknown{Tag: tag, Raw: raw} },
		Unwrap: func(p patch.Patch) (uint16, []byte, bool) {
			u, ok := p.(patch.Unknown)
			return u.Tag, u.Raw, ok
		},
	},
	binview.Variant[patch.Patch](uint16(patch.KindAttribute), "attribute", attributePatchDesc),
	binview.Variant[patch.Patch](uint16(patch.KindText), "text", textPatchDesc),
	binview.Variant[patch.Patch](uint16(patch.KindTextProperty), "text_property", textPropertyDesc),
	binview.Variant[patch.Patch](uint16(patch.KindNumberProperty), "number_property", numberPropertyDesc),
	binview.Variant[patch.Patch](uint16(patch.KindBooleanProperty), "boolean_property", booleanPropertyDesc),
	binview.Variant[patch.Patch](uint16(patch.KindAddNodes), "add_nodes", addNodesDesc),
	binview.Variant[patch.Patch](uint16(patch.KindRemoveNodes), "remove_nodes", removeNodesDesc),
)

// TreeDescriptor describes a VTree on its own, as stored in snapshots.
func TreeDescriptor() binview.Descriptor[vdom.VTree] { return treeDesc }

// PatchDescriptor describes a single patch.
func PatchDescriptor() binview.Descriptor[patch.Patch] { return patchDesc }
