// Package report turns a recording into a bug report: the page as it was
// at a moment, sanitised, converted to Markdown, and annotated with the
// console output and failed requests that led up to it.
package report

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/repro/event"
	"github.com/hazyhaar/repro/eventlog"
	"github.com/hazyhaar/repro/playback"
	"github.com/hazyhaar/repro/recording"
	"github.com/hazyhaar/repro/vdom"
)

// Exchange is a request that failed, errored or was still in flight.
type Exchange struct {
	Method  string `json:"method"`
	URL     string `json:"url"`
	Status  uint16 `json:"status,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Pending bool   `json:"pending,omitempty"`
}

// Report is the state of a recording at one time offset.
type Report struct {
	RecordingID string                    `json:"recordingId,omitempty"`
	At          uint32                    `json:"at"`
	Duration    uint32                    `json:"duration"`
	URL         string                    `json:"url,omitempty"`
	Title       string                    `json:"title,omitempty"`
	Interaction playback.InteractionState `json:"interaction"`
	Console     []event.ConsoleMessage    `json:"console,omitempty"`
	Network     []Exchange                `json:"network,omitempty"`
	HTML        string                    `json:"html"`
	Markdown    string                    `json:"markdown"`
}

// Builder renders reports.
type Builder struct {
	policy   *bluemonday.Policy
	md       *converter.Converter
	console  int
	minLevel event.ConsoleLevel
	logger   *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithPolicy replaces the default UGC sanitisation policy.
func WithPolicy(p *bluemonday.Policy) Option { return func(b *Builder) { b.policy = p } }

// WithConsoleLimit keeps only the last n console messages. Default 50.
func WithConsoleLimit(n int) Option { return func(b *Builder) { b.console = n } }

// WithMinLevel drops console messages below level. Default warn.
func WithMinLevel(l event.ConsoleLevel) Option { return func(b *Builder) { b.minLevel = l } }

func WithLogger(l *slog.Logger) Option { return func(b *Builder) { b.logger = l } }

// New creates a Builder.
func New(opts ...Option) *Builder {
	b := &Builder{
		policy:   bluemonday.UGCPolicy(),
		console:  50,
		minLevel: event.ConsoleWarn,
		logger:   slog.Default(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// FromRecording builds the report of r at offset at.
func (b *Builder) FromRecording(r *recording.Recording, at uint32) (*Report, error) {
	rep, err := b.Build(r.Events(), at)
	if err != nil {
		return nil, err
	}
	rep.RecordingID = r.ID()
	return rep, nil
}

// Build reconstructs events at offset at. An offset past the end is
// clamped to the duration.
func (b *Builder) Build(events *eventlog.List[event.SourceEvent], at uint32) (*Report, error) {
	eng, err := playback.New(events, playback.WithLogger(b.logger))
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	at = min(at, eng.Duration())
	if err := eng.SeekToTime(at); err != nil {
		return nil, fmt.Errorf("report: seek %d: %w", at, err)
	}

	rep := &Report{At: at, Duration: eng.Duration(), Interaction: eng.Interaction()}
	if err := b.scan(events, at, rep); err != nil {
		return nil, err
	}

	tree := eng.Tree()
	if tree == nil {
		return rep, nil
	}
	rep.Title = title(*tree)
	raw, err := vdom.RenderString(*tree)
	if err != nil {
		return nil, fmt.Errorf("report: render: %w", err)
	}
	rep.HTML = b.policy.Sanitize(raw)

	var opts []converter.ConvertOptionFunc
	if rep.URL != "" {
		opts = append(opts, converter.WithDomain(rep.URL))
	}
	md, err := b.md.ConvertString(rep.HTML, opts...)
	if err != nil {
		b.logger.Warn("report: markdown conversion failed", "error", err)
	}
	rep.Markdown = strings.TrimSpace(md)
	return rep, nil
}

// scan collects console output, navigation and network outcomes up to at.
func (b *Builder) scan(events *eventlog.List[event.SourceEvent], at uint32, rep *Report) error {
	type pending struct {
		req   event.Request
		order int
	}
	open := make(map[string]pending)
	seq := 0
	track := func(r event.Request) {
		open[r.CorrelationID] = pending{r, seq}
		seq++
	}
	for _, e := range events.All() {
		if e.Time > at {
			break
		}
		switch p := e.Data.(type) {
		case event.Snapshot:
			if p.Network != nil {
				clear(open)
				for _, r := range p.Network.InFlight {
					track(r)
				}
			}
		case event.InteractionEvent:
			if t, ok := p.Interaction.(event.PageTransition); ok {
				rep.URL = t.To
			}
		case event.ConsoleEvent:
			if p.Message.Level >= b.minLevel {
				rep.Console = append(rep.Console, p.Message)
			}
		case event.NetworkEvent:
			switch m := p.Message.(type) {
			case event.Request:
				track(m)
				if rep.URL == "" {
					rep.URL = m.URL
				}
			case event.Response:
				r, ok := open[m.CorrelationID]
				delete(open, m.CorrelationID)
				if ok && m.Status >= 400 {
					rep.Network = append(rep.Network, Exchange{Method: r.req.Method, URL: r.req.URL, Status: m.Status})
				}
			case event.Failure:
				r := open[m.CorrelationID]
				delete(open, m.CorrelationID)
				rep.Network = append(rep.Network, Exchange{Method: r.req.Method, URL: r.req.URL, Reason: m.Reason})
			}
		}
	}
	if err := events.Err(); err != nil {
		return fmt.Errorf("report: scan: %w", err)
	}

	left := slices.SortedFunc(maps.Values(open), func(a, b pending) int { return a.order - b.order })
	for _, p := range left {
		rep.Network = append(rep.Network, Exchange{Method: p.req.Method, URL: p.req.URL, Pending: true})
	}
	if n := len(rep.Console) - b.console; n > 0 && b.console > 0 {
		rep.Console = rep.Console[n:]
	}
	return nil
}

// title returns the text of the first <title> element in document order.
func title(t vdom.VTree) string {
	var walk func(id vdom.SyntheticID) (string, bool)
	walk = func(id vdom.SyntheticID) (string, bool) {
		el, ok := t.Get(id).(*vdom.Element)
		if ok && el.TagName == "title" {
			var sb strings.Builder
			for _, c := range el.Children {
				if txt, ok := t.Get(c).(*vdom.Text); ok {
					sb.WriteString(txt.Value)
				}
			}
			return strings.TrimSpace(sb.String()), true
		}
		for _, c := range t.Children(id) {
			if s, ok := walk(c); ok {
				return s, true
			}
		}
		return "", false
	}
	s, _ := walk(t.RootID)
	return s
}
