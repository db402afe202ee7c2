package patch

// Compress coalesces runs of value patches without changing the result of
// applying the list:
//   - consecutive Attribute patches on the same (target, name) keep the last
//     value and the first old value
//   - consecutive Text patches on the same target likewise
//   - consecutive property patches on the same (target, name) likewise
//   - AddNodes and RemoveNodes are structurally significant and never merged
func Compress(patches []Patch) []Patch {
	if len(patches) <= 1 {
		return patches
	}

	result := make([]Patch, 0, len(patches))
	for i := 0; i < len(patches); i++ {
		cur := patches[i]
		j := i + 1
		for j < len(patches) {
			merged, ok := merge(cur, patches[j])
			if !ok {
				break
			}
			cur = merged
			j++
		}
		result = append(result, cur)
		i = j - 1
	}
	return result
}

// merge folds next into first when both address the same value.
func merge(first, next Patch) (Patch, bool) {
	switch f := first.(type) {
	case Attribute:
		n, ok := next.(Attribute)
		if !ok || n.TargetID != f.TargetID || n.Name != f.Name {
			return nil, false
		}
		n.OldValue, n.OldPresent = f.OldValue, f.OldPresent
		return n, true
	case Text:
		n, ok := next.(Text)
		if !ok || n.TargetID != f.TargetID {
			return nil, false
		}
		n.OldValue = f.OldValue
		return n, true
	case TextProperty:
		n, ok := next.(TextProperty)
		if !ok || n.TargetID != f.TargetID || n.Name != f.Name {
			return nil, false
		}
		n.OldValue = f.OldValue
		return n, true
	case NumberProperty:
		n, ok := next.(NumberProperty)
		if !ok || n.TargetID != f.TargetID || n.Name != f.Name {
			return nil, false
		}
		n.OldValue = f.OldValue
		return n, true
	case BooleanProperty:
		n, ok := next.(BooleanProperty)
		if !ok || n.TargetID != f.TargetID || n.Name != f.Name {
			return nil, false
		}
		n.OldValue = f.OldValue
		return n, true
	}
	return nil, false
}
