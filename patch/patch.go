// Package patch describes single, revertible mutations of a vdom tree and
// applies them in either direction.
//
// Every patch carries both the new and the previous value, so Revert never
// needs the tree's history. Structural patches carry sibling anchors so a
// reverted removal re-inserts nodes at their exact original position.
package patch

import "github.com/hazyhaar/repro/vdom"

// Kind discriminates Patch variants. Values are stable wire tags.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindAttribute
	KindText
	KindTextProperty
	KindNumberProperty
	KindBooleanProperty
	KindAddNodes
	KindRemoveNodes
)

func (k Kind) String() string {
	switch k {
	case KindAttribute:
		return "attribute"
	case KindText:
		return "text"
	case KindTextProperty:
		return "text_property"
	case KindNumberProperty:
		return "number_property"
	case KindBooleanProperty:
		return "boolean_property"
	case KindAddNodes:
		return "add_nodes"
	case KindRemoveNodes:
		return "remove_nodes"
	}
	return "unknown"
}

// Patch is one of Attribute, Text, TextProperty, NumberProperty,
// BooleanProperty, AddNodes, RemoveNodes or Unknown.
type Patch interface {
	Kind() Kind
	// Target is the node the patch is addressed to. For structural patches
	// it is the parent.
	Target() vdom.SyntheticID
	sealed()
}

// Attribute sets (Value != nil) or removes (Value == nil) an attribute.
// A removed attribute that had no value is not distinguishable from one
// that was absent; Present/OldPresent carry that bit.
type Attribute struct {
	TargetID   vdom.SyntheticID
	Name       string
	Value      *string
	OldValue   *string
	Present    bool
	OldPresent bool
}

// Text replaces the value of a Text node.
type Text struct {
	TargetID vdom.SyntheticID
	Value    string
	OldValue string
}

// TextProperty sets a string DOM property (only "value" is tracked).
// A nil value means the property was never observed on the node.
type TextProperty struct {
	TargetID vdom.SyntheticID
	Name     string
	Value    *string
	OldValue *string
}

// NumberProperty sets a numeric DOM property (only "selectedIndex").
type NumberProperty struct {
	TargetID vdom.SyntheticID
	Name     string
	Value    *int32
	OldValue *int32
}

// BooleanProperty sets a boolean DOM property (only "checked").
type BooleanProperty struct {
	TargetID vdom.SyntheticID
	Name     string
	Value    *bool
	OldValue *bool
}

// AddNodes inserts subtrees under ParentID right after PreviousSiblingID
// (or first when it is empty).
type AddNodes struct {
	ParentID          vdom.SyntheticID
	PreviousSiblingID vdom.SyntheticID
	NextSiblingID     vdom.SyntheticID
	Nodes             []vdom.VTree
}

// RemoveNodes removes the subtrees rooted at each Nodes[i].RootID. The full
// subtrees are kept so the removal can be reverted.
type RemoveNodes struct {
	ParentID          vdom.SyntheticID
	PreviousSiblingID vdom.SyntheticID
	NextSiblingID     vdom.SyntheticID
	Nodes             []vdom.VTree
}

// Unknown holds a patch whose discriminator this build does not know. It
// applies and reverts as a no-op.
type Unknown struct {
	Tag uint16
	Raw []byte
}

// Property names understood by the property patches.
const (
	PropValue         = "value"
	PropChecked       = "checked"
	PropSelectedIndex = "selectedIndex"
)

func (Attribute) Kind() Kind       { return KindAttribute }
func (Text) Kind() Kind            { return KindText }
func (TextProperty) Kind() Kind    { return KindTextProperty }
func (NumberProperty) Kind() Kind  { return KindNumberProperty }
func (BooleanProperty) Kind() Kind { return KindBooleanProperty }
func (AddNodes) Kind() Kind        { return KindAddNodes }
func (RemoveNodes) Kind() Kind     { return KindRemoveNodes }
func (Unknown) Kind() Kind         { return KindUnknown }

func (p Attribute) Target() vdom.SyntheticID       { return p.TargetID }
func (p Text) Target() vdom.SyntheticID            { return p.TargetID }
func (p TextProperty) Target() vdom.SyntheticID    { return p.TargetID }
func (p NumberProperty) Target() vdom.SyntheticID  { return p.TargetID }
func (p BooleanProperty) Target() vdom.SyntheticID { return p.TargetID }
func (p AddNodes) Target() vdom.SyntheticID        { return p.ParentID }
func (p RemoveNodes) Target() vdom.SyntheticID     { return p.ParentID }
func (Unknown) Target() vdom.SyntheticID           { return "" }

func (Attribute) sealed()       {}
func (Text) sealed()            {}
func (TextProperty) sealed()    {}
func (NumberProperty) sealed()  {}
func (BooleanProperty) sealed() {}
func (AddNodes) sealed()        {}
func (RemoveNodes) sealed()     {}
func (Unknown) sealed()         {}

// SetAttribute builds an Attribute patch that sets name to value.
func SetAttribute(target vdom.SyntheticID, name string, value, old *string, oldPresent bool) Attribute {
	return Attribute{TargetID: target, Name: name, Value: value, OldValue: old, Present: true, OldPresent: oldPresent}
}

// RemoveAttribute builds an Attribute patch that deletes name.
func RemoveAttribute(target vdom.SyntheticID, name string, old *string) Attribute {
	return Attribute{TargetID: target, Name: name, OldValue: old, OldPresent: true}
}

// Inverse returns the patch that undoes p.
func Inverse(p Patch) Patch {
	switch p := p.(type) {
	case Attribute:
		return Attribute{TargetID: p.TargetID, Name: p.Name,
			Value: p.OldValue, OldValue: p.Value, Present: p.OldPresent, OldPresent: p.Present}
	case Text:
		return Text{TargetID: p.TargetID, Value: p.OldValue, OldValue: p.Value}
	case TextProperty:
		return TextProperty{TargetID: p.TargetID, Name: p.Name, Value: p.OldValue, OldValue: p.Value}
	case NumberProperty:
		return NumberProperty{TargetID: p.TargetID, Name: p.Name, Value: p.OldValue, OldValue: p.Value}
	case BooleanProperty:
		return BooleanProperty{TargetID: p.TargetID, Name: p.Name, Value: p.OldValue, OldValue: p.Value}
	case AddNodes:
		return RemoveNodes(p)
	case RemoveNodes:
		return AddNodes(p)
	}
	return p
}
