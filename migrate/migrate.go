// Package migrate moves data between codec versions through an ordered list
// of up/down steps.
package migrate

import (
	"fmt"
	"slices"
)

// Migration converts data written at Version-1 into Version (Up) and back
// (Down).
type Migration[T any] struct {
	Version uint16
	Name    string
	Up      func(T) (T, error)
	Down    func(T) (T, error)
}

// Run converts data from version from to version to. Going up it applies,
// in ascending order, every migration with from < Version <= to; going
// down, in descending order, every migration with to < Version <= from.
// Equal versions return data untouched.
func Run[T any](data T, from, to uint16, migrations []Migration[T]) (T, error) {
	if from == to {
		return data, nil
	}
	steps := slices.Clone(migrations)
	slices.SortFunc(steps, func(a, b Migration[T]) int { return int(a.Version) - int(b.Version) })

	lo, hi := min(from, to), max(from, to)
	var selected []Migration[T]
	for _, m := range steps {
		if m.Version > lo && m.Version <= hi {
			selected = append(selected, m)
		}
	}
	if len(selected) != int(hi-lo) {
		return data, fmt.Errorf("migrate: no complete path from version %d to %d", from, to)
	}

	var err error
	if from < to {
		for _, m := range selected {
			if m.Up == nil {
				return data, fmt.Errorf("migrate: version %d (%s) has no up step", m.Version, m.Name)
			}
			if data, err = m.Up(data); err != nil {
				return data, fmt.Errorf("migrate: up to %d (%s): %w", m.Version, m.Name, err)
			}
		}
		return data, nil
	}
	for _, m := range slices.Backward(selected) {
		if m.Down == nil {
			return data, fmt.Errorf("migrate: version %d (%s) has no down step", m.Version, m.Name)
		}
		if data, err = m.Down(data); err != nil {
			return data, fmt.Errorf("migrate: down from %d (%s): %w", m.Version, m.Name, err)
		}
	}
	return data, nil
}
