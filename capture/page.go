package capture

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/repro/capture/internal/browser"
	"github.com/hazyhaar/repro/event"
	"github.com/hazyhaar/repro/idgen"
	"github.com/hazyhaar/repro/patch"
	"github.com/hazyhaar/repro/recorder"
	"github.com/hazyhaar/repro/vdom"
)

//go:embed interaction.js
var interactionJS string

const bindingName = "__repro_binding"

// Page records a Chrome tab. DOM events only mark the document dirty; the
// debounced loop re-reads it and pushes the difference as patches.
type Page struct {
	url    string
	mgr    *browser.Manager
	ids    idgen.Generator
	window time.Duration
	max    int
	logger *slog.Logger

	tab    *browser.Tab
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (p *Page) Name() string { return "browser " + p.url }

func (p *Page) Attach(ctx context.Context, e recorder.Emitter) error {
	tab, err := p.mgr.OpenTab(ctx, p.url)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	s := &session{
		tab:    tab,
		emit:   e,
		ids:    newIdentity(p.ids),
		deb:    newDebouncer(p.window, p.max),
		dirty:  make(chan struct{}, 4096),
		reset:  make(chan struct{}, 1),
		logger: p.logger,
	}
	if err := s.install(ctx); err != nil {
		tab.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	p.tab, p.cancel = tab, cancel
	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		s.listen(runCtx)
	}()
	go func() {
		defer p.wg.Done()
		s.loop(runCtx)
	}()
	p.logger.Info("capture: page attached", "url", p.url)
	return nil
}

func (p *Page) Detach() error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	p.wg.Wait()
	err := p.tab.Close()
	p.tab, p.cancel = nil, nil
	if err != nil {
		return fmt.Errorf("capture: close %s: %w", p.url, err)
	}
	return nil
}

// session is the state of one attached tab.
type session struct {
	tab    *browser.Tab
	emit   recorder.Emitter
	ids    *identity
	deb    *debouncer
	dirty  chan struct{}
	reset  chan struct{}
	logger *slog.Logger

	mu   sync.Mutex
	tree vdom.VTree
}

// install enables the CDP domains, injects the input listener and pushes
// the first snapshot.
func (s *session) install(ctx context.Context) error {
	page := s.tab.Page.Context(ctx)
	if err := (proto.DOMEnable{}).Call(page); err != nil {
		return fmt.Errorf("capture: DOM.enable: %w", err)
	}
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		return fmt.Errorf("capture: Network.enable: %w", err)
	}
	if err := (proto.RuntimeEnable{}).Call(page); err != nil {
		return fmt.Errorf("capture: Runtime.enable: %w", err)
	}
	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(page); err != nil {
		return fmt.Errorf("capture: add binding: %w", err)
	}
	script := "(" + interactionJS + ")()"
	if _, err := (proto.PageAddScriptToEvaluateOnNewDocument{Source: script}).Call(page); err != nil {
		return fmt.Errorf("capture: register input script: %w", err)
	}
	if _, err := page.Eval(interactionJS); err != nil {
		return fmt.Errorf("capture: inject input script: %w", err)
	}

	root, err := s.tab.Document(ctx)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	return s.snapshot(s.convert(root))
}

// listen forwards CDP events until ctx is done.
func (s *session) listen(ctx context.Context) {
	touch := func() {
		select {
		case s.dirty <- struct{}{}:
		default:
		}
	}
	wait := s.tab.Page.Context(ctx).EachEvent(
		func(*proto.DOMChildNodeInserted) { touch() },
		func(*proto.DOMChildNodeRemoved) { touch() },
		func(*proto.DOMAttributeModified) { touch() },
		func(*proto.DOMAttributeRemoved) { touch() },
		func(*proto.DOMCharacterDataModified) { touch() },
		func(*proto.DOMChildNodeCountUpdated) { touch() },
		func(*proto.DOMDocumentUpdated) {
			select {
			case s.reset <- struct{}{}:
			default:
			}
		},
		func(e *proto.NetworkRequestWillBeSent) {
			s.push(event.NetworkEvent{Message: requestMessage(e)})
		},
		func(e *proto.NetworkResponseReceived) {
			s.push(event.NetworkEvent{Message: responseMessage(e)})
		},
		func(e *proto.NetworkLoadingFailed) {
			s.push(event.NetworkEvent{Message: failureMessage(e)})
		},
		func(e *proto.RuntimeConsoleAPICalled) {
			s.push(event.ConsoleEvent{Message: consoleMessage(e)})
		},
		func(e *proto.RuntimeBindingCalled) {
			if e.Name != bindingName {
				return
			}
			var in jsInput
			if err := json.Unmarshal([]byte(e.Payload), &in); err != nil {
				s.logger.Warn("capture: parse input record", "error", err)
				return
			}
			i, ok := in.interaction(s.documentID())
			if !ok {
				return
			}
			switch v := i.(type) {
			case event.Click:
				v.Targets = s.targets(ctx, v.At)
				i = v
			case event.DoubleClick:
				v.Targets = s.targets(ctx, v.At)
				i = v
			}
			s.push(event.InteractionEvent{Interaction: i})
		},
	)
	wait()
}

// loop re-reads the document when the debouncer says so.
func (s *session) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.deb.take()
			return
		case <-s.dirty:
			if s.deb.add() {
				s.flush(ctx)
			}
		case <-s.deb.timerC():
			s.flush(ctx)
		case <-s.reset:
			s.deb.take()
			s.resync(ctx)
		}
	}
}

// flush diffs the live document against the last pushed tree.
func (s *session) flush(ctx context.Context) {
	if !s.deb.take() {
		return
	}
	root, err := s.tab.Document(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("capture: read document", "url", s.tab.URL, "error", err)
		}
		return
	}
	next := s.convert(root)

	s.mu.Lock()
	prev := s.tree
	s.mu.Unlock()

	patches, err := patch.Diff(prev, next)
	if err != nil {
		s.logger.Debug("capture: document replaced", "url", s.tab.URL, "error", err)
		s.pushSnapshot(next)
		return
	}
	for _, p := range patch.Compress(patches) {
		if err := s.emit.Push(event.DOMPatch{Patch: p}); err != nil {
			s.logger.Warn("capture: patch rejected, resnapshotting", "url", s.tab.URL, "error", err)
			s.pushSnapshot(next)
			return
		}
	}
	s.mu.Lock()
	s.tree = next
	s.mu.Unlock()
}

// resync handles a new document: the old node ids are gone, so the page is
// recorded again from a snapshot.
func (s *session) resync(ctx context.Context) {
	root, err := s.tab.Document(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("capture: read document", "url", s.tab.URL, "error", err)
		}
		return
	}
	s.pushSnapshot(s.convert(root))
}

func (s *session) pushSnapshot(t vdom.VTree) {
	if err := s.snapshot(t); err != nil {
		s.logger.Warn("capture: push snapshot", "url", s.tab.URL, "error", err)
	}
}

// snapshot pushes t as a DOM-only snapshot; the recorder completes it
// with the live interaction and network state.
func (s *session) snapshot(t vdom.VTree) error {
	if err := s.emit.Push(event.Snapshot{DOM: &t}); err != nil {
		return err
	}
	s.mu.Lock()
	s.tree = t
	s.mu.Unlock()
	return nil
}

func (s *session) push(p event.Payload) {
	if err := s.emit.Push(p); err != nil {
		s.logger.Debug("capture: push", "type", event.TypeOf(p), "error", err)
	}
}

// convert maps a CDP document onto synthetic ids.
func (s *session) convert(root *proto.DOMNode) vdom.VTree {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ids.tree(root)
}

// targets resolves the node under a viewport point and its ancestors,
// innermost first. Nodes not yet in a pushed tree are skipped.
func (s *session) targets(ctx context.Context, at event.Point) []vdom.SyntheticID {
	res, err := proto.DOMGetNodeForLocation{X: int(at.X), Y: int(at.Y)}.Call(s.tab.Page.Context(ctx))
	if err != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []vdom.SyntheticID
	for id := s.ids.ids[res.BackendNodeID]; id != ""; {
		n := s.tree.Get(id)
		if n == nil {
			break
		}
		out = append(out, id)
		id = n.Parent()
	}
	return out
}

func (s *session) documentID() vdom.SyntheticID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.RootID
}

var (
	_ recorder.Source = (*Page)(nil)
	_ recorder.Source = (*Static)(nil)
)
