package event

import "github.com/hazyhaar/repro/migrate"

// Migrations lists the format changes since version 1. Newer variants are
// additive, so going up is free; going down rewrites or drops what an
// older reader cannot represent.
var Migrations = []migrate.Migration[[]SourceEvent]{
	{
		Version: 2,
		Name:    "network and console payloads",
		Up:      keep,
		Down: func(events []SourceEvent) ([]SourceEvent, error) {
			return filter(events, func(e SourceEvent) (SourceEvent, bool) {
				t := e.Type()
				return e, t != TypeNetwork && t != TypeConsole
			}), nil
		},
	},
	{
		Version: 3,
		Name:    "double click and page transition interactions",
		Up:      keep,
		Down: func(events []SourceEvent) ([]SourceEvent, error) {
			return filter(events, func(e SourceEvent) (SourceEvent, bool) {
				ie, ok := e.Data.(InteractionEvent)
				if !ok {
					return e, true
				}
				switch i := ie.Interaction.(type) {
				case DoubleClick:
					e.Data = InteractionEvent{Interaction: Click(i)}
				case PageTransition:
					return e, false
				}
				return e, true
			}), nil
		},
	},
}

// Migrate converts a decoded event sequence between codec versions.
func Migrate(events []SourceEvent, from, to uint16) ([]SourceEvent, error) {
	return migrate.Run(events, from, to, Migrations)
}

func keep(events []SourceEvent) ([]SourceEvent, error) { return events, nil }

func filter(events []SourceEvent, fn func(SourceEvent) (SourceEvent, bool)) []SourceEvent {
	out := make([]SourceEvent, 0, len(events))
	for _, e := range events {
		if e, ok := fn(e); ok {
			out = append(out, e)
		}
	}
	return out
}
