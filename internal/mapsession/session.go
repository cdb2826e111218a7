// Package mapsession runs one campus map per browser tab. Every browser
// callback is applied on the session's own event loop, one at a time.
package mapsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-campus/internal/draw"
	"github.com/joeblew999/plat-campus/internal/feature"
	"github.com/joeblew999/plat-campus/internal/reconcile"
	"github.com/joeblew999/plat-campus/internal/selection"
	"github.com/joeblew999/plat-campus/internal/service"
	"github.com/joeblew999/plat-campus/internal/surface"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("map session closed")

// Session-level command ops, next to the surface ones.
const (
	// OpDrawSet seeds the browser draw tool with the current buildings.
	OpDrawSet = "drawSet"
	// OpResync asks a page whose stream reattached to report what its map
	// holds through the style-loaded callback.
	OpResync = "resync"
)

// Config is the per-session configuration.
type Config struct {
	Style     string
	Authoring bool
	Selection selection.Options
}

// Deps are the process-wide services sessions share.
type Deps struct {
	Catalog *service.CatalogService
	Paint   *service.PaintService
	Log     *slog.Logger
}

// UpdateKind tells the stream how to render an Update.
type UpdateKind int

const (
	UpdateCommand UpdateKind = iota
	UpdateSelection
	UpdateMatches
	UpdateStatus
	UpdateSaved
	UpdateFailed
)

// Update is one thing the browser must be told.
type Update struct {
	Kind    UpdateKind
	Command surface.Command
	Feature *geojson.Feature
	Matches []*geojson.Feature
	Term    string
	Status  string
}

// Session is one browser tab's map.
type Session struct {
	ID        string
	authoring bool

	store   *feature.Store
	engine  *surface.RemoteEngine
	adapter *surface.Adapter
	rec     *reconcile.Reconciler
	ctrl    *selection.Controller
	mirror  *draw.Mirror
	draw    *draw.Reconciler
	catalog *service.CatalogService
	log     *slog.Logger

	ops       chan func()
	done      chan struct{}
	closeOnce sync.Once
	offBus    func()
	attached  int // loop-owned

	omu     sync.Mutex
	pending []Update
	wake    chan struct{}

	seenMu   sync.Mutex
	lastSeen time.Time
}

// New creates a session seeded from the shared catalog and starts its
// event loop.
func New(id string, cfg Config, deps Deps) (*Session, error) {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("session", id)

	s := &Session{
		ID:        id,
		authoring: cfg.Authoring,
		catalog:   deps.Catalog,
		log:       log,
		ops:       make(chan func()),
		done:      make(chan struct{}),
		wake:      make(chan struct{}, 1),
		lastSeen:  time.Now(),
	}

	s.store = feature.NewStore(log)
	s.engine = surface.NewRemoteEngine(cfg.Style, s.emit)
	s.adapter = surface.NewAdapter(s.engine, cfg.Style, log)

	ctrl, err := selection.New(s.store, s.adapter, cfg.Selection, log)
	if err != nil {
		return nil, err
	}
	s.ctrl = ctrl
	ctrl.OnSelect(func(f *geojson.Feature) {
		s.push(Update{Kind: UpdateSelection, Feature: f})
	})

	var paint reconcile.PaintSource
	if deps.Paint != nil {
		paint = deps.Paint
	}
	s.rec = reconcile.New(s.adapter, ctrl, paint, log)
	s.rec.AddBinder(ctrl)

	if cfg.Authoring {
		s.mirror = draw.NewMirror()
		s.draw = draw.New(s.mirror, s.store, s.adapter, ctrl, log)
		s.engine.AdoptLayers(draw.FillLayers...)
	}

	if deps.Catalog != nil {
		if snap := deps.Catalog.Snapshot(); snap != nil {
			s.store.Load(snap)
		}
		events, off := deps.Catalog.Bus().Subscribe()
		s.offBus = off
		go s.follow(events)
	}

	if err := s.rec.Start(); err != nil {
		s.log.Debug("initial reconciliation deferred", "reason", err)
	}

	go s.loop()
	return s, nil
}

func (s *Session) loop() {
	for {
		select {
		case fn := <-s.ops:
			fn()
		case <-s.done:
			return
		}
	}
}

// Do runs fn on the event loop and returns its error.
func (s *Session) Do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	op := func() {
		select {
		case <-s.done:
			result <- ErrClosed
		default:
			result <- fn()
		}
	}

	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.ops <- op:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the event loop and releases subscriptions.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.offBus != nil {
			s.offBus()
		}
		s.ctrl.Close()
	})
}

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} { return s.done }

// Authoring reports whether the session runs the draw tool.
func (s *Session) Authoring() bool { return s.authoring }

func (s *Session) touch() {
	s.seenMu.Lock()
	s.lastSeen = time.Now()
	s.seenMu.Unlock()
}

// LastSeen returns when the browser last talked to the session.
func (s *Session) LastSeen() time.Time {
	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	return s.lastSeen
}

func (s *Session) emit(cmd surface.Command) {
	s.push(Update{Kind: UpdateCommand, Command: cmd})
}

func (s *Session) push(u Update) {
	s.omu.Lock()
	s.pending = append(s.pending, u)
	s.omu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Next blocks until updates are queued and returns all of them in order.
// Each call counts as browser activity.
func (s *Session) Next(ctx context.Context) ([]Update, error) {
	s.touch()
	for {
		s.omu.Lock()
		batch := s.pending
		s.pending = nil
		s.omu.Unlock()
		if len(batch) > 0 {
			return batch, nil
		}

		select {
		case <-s.wake:
		case <-s.done:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// follow applies catalog changes made elsewhere.
func (s *Session) follow(events <-chan service.CatalogEvent) {
	for e := range events {
		e := e
		err := s.Do(context.Background(), func() error {
			return s.apply(e)
		})
		if errors.Is(err, ErrClosed) {
			return
		}
		if err != nil {
			s.log.Warn("applying catalog event", "collection", e.Collection, "action", e.Action, "error", err)
		}
	}
}

func (s *Session) apply(e service.CatalogEvent) error {
	switch e.Action {
	case "paint":
		return s.repaint(e.Collection)
	case "updated":
		if e.Origin == s.ID || s.authoring {
			return nil
		}
		fc := s.catalog.Snapshot()[e.Collection]
		return s.store.Replace(e.Collection, fc)
	}
	return nil
}

// repaint drops a collection's layers and lets the reconciler add them back
// with the current paint, in place.
func (s *Session) repaint(c feature.Collection) error {
	if !s.adapter.IsReady() {
		return nil
	}
	for _, l := range reconcile.Layers {
		if l.Collection != c {
			continue
		}
		if err := s.adapter.RemoveLayer(l.ID); err != nil {
			return err
		}
	}
	return s.rec.Reconcile()
}

// Connected is called when a browser stream attaches. A session lives as
// long as its page, so the mirror is never reset here: the first stream
// receives everything queued since the page loaded, and a later one asks
// the page to report its map because updates written to a dropped stream
// may never have arrived.
func (s *Session) Connected(ctx context.Context) error {
	s.touch()
	return s.Do(ctx, func() error {
		if s.attached > 0 {
			s.log.Debug("stream reattached", "streams", s.attached+1)
			s.emit(surface.Command{Op: OpResync})
		}
		s.attached++
		s.push(Update{Kind: UpdateStatus, Status: "connected"})
		if s.authoring {
			s.seedDraw()
		}
		return nil
	})
}

func (s *Session) seedDraw() {
	buildings := draw.Seed(s.store.Get(feature.Buildings))
	s.mirror.Sync(buildings)
	s.emit(surface.Command{Op: OpDrawSet, Data: buildings})
}

// Inventory is what a live page reports its map holds.
type Inventory struct {
	Sources []string
	Layers  []string
}

// StyleLoaded reports a completed style load in the browser. A page
// answering a resync passes its inventory; the mirror takes it as the truth
// and the reconciler fills in whatever is missing without rebinding.
func (s *Session) StyleLoaded(ctx context.Context, style string, inv *Inventory) error {
	s.touch()
	return s.Do(ctx, func() error {
		if inv != nil {
			s.resync(style, *inv)
		}
		s.engine.StyleLoadedEvent(style)
		return nil
	})
}

func (s *Session) resync(style string, inv Inventory) {
	owned := map[string]bool{}
	for _, src := range reconcile.Sources {
		owned[src.ID] = true
	}
	for _, l := range reconcile.Layers {
		owned[l.ID] = true
	}
	keep := func(ids []string) []string {
		var out []string
		for _, id := range ids {
			if owned[id] {
				out = append(out, id)
			}
		}
		return out
	}
	s.engine.Observe(style, keep(inv.Sources), keep(inv.Layers))

	if want := s.rec.Session().RequestedStyle(); style != want {
		// the page missed a style change
		if err := s.adapter.SetStyle(want); err != nil {
			s.log.Warn("resending style", "style", want, "error", err)
		}
	}
}

// SwitchStyle starts a base style change.
func (s *Session) SwitchStyle(ctx context.Context, uri string) error {
	s.touch()
	return s.Do(ctx, func() error {
		return s.rec.SwitchStyle(uri)
	})
}

// Search applies a search term and publishes the matches.
func (s *Session) Search(ctx context.Context, term string) error {
	s.touch()
	return s.Do(ctx, func() error {
		err := s.ctrl.SetSearchTerm(term)
		s.push(Update{Kind: UpdateMatches, Term: term, Matches: s.ctrl.Matches()})
		return err
	})
}

// ClearSelection drops the selection.
func (s *Session) ClearSelection(ctx context.Context) error {
	s.touch()
	return s.Do(ctx, func() error {
		s.ctrl.ClearSelection()
		return nil
	})
}

// Select selects the canonical feature id, as a search result click does.
func (s *Session) Select(ctx context.Context, id string) error {
	s.touch()
	return s.Do(ctx, func() error {
		if _, ok := s.ctrl.HandleSurfaceClick("", id); !ok {
			return fmt.Errorf("feature %s not found", id)
		}
		return nil
	})
}

// Click dispatches a browser click with the browser's hit test at p.
func (s *Session) Click(ctx context.Context, p surface.ScreenPoint, hits []surface.RenderedFeature) error {
	s.touch()
	return s.Do(ctx, func() error {
		if s.draw != nil {
			s.engine.RecordHits(p, hits)
			if _, ok := s.draw.HandleClick(p); ok {
				return nil
			}
		}
		s.engine.Click(p, hits)
		return nil
	})
}

// Hover dispatches a browser mouseenter or mouseleave.
func (s *Session) Hover(ctx context.Context, layerID string, entered bool) error {
	s.touch()
	return s.Do(ctx, func() error {
		s.engine.Hover(layerID, entered)
		return nil
	})
}

// DrawChanged applies a draw create, update or delete. fc is the tool's
// full feature set.
func (s *Session) DrawChanged(ctx context.Context, fc *geojson.FeatureCollection, mode draw.Mode) error {
	s.touch()
	return s.Do(ctx, func() error {
		if s.draw == nil {
			return fmt.Errorf("session is not in authoring mode")
		}
		s.mirror.Sync(fc)
		s.mirror.SetMode(mode)
		return s.draw.HandleChange()
	})
}

// DrawModeChanged follows the draw tool's mode.
func (s *Session) DrawModeChanged(ctx context.Context, mode draw.Mode) error {
	s.touch()
	return s.Do(ctx, func() error {
		if s.draw == nil {
			return fmt.Errorf("session is not in authoring mode")
		}
		s.mirror.SetMode(mode)
		s.draw.HandleModeChange(mode)
		return nil
	})
}

// Save persists the session's buildings. The write runs off the event loop.
func (s *Session) Save(ctx context.Context) error {
	s.touch()
	if s.catalog == nil {
		return fmt.Errorf("no catalog configured")
	}
	var buildings *geojson.FeatureCollection
	if err := s.Do(ctx, func() error {
		buildings = s.store.Get(feature.Buildings)
		return nil
	}); err != nil {
		return err
	}
	if err := s.catalog.SaveBuildings(ctx, buildings, s.ID); err != nil {
		s.push(Update{Kind: UpdateFailed, Status: "save failed: " + err.Error()})
		return err
	}
	s.push(Update{Kind: UpdateSaved, Status: fmt.Sprintf("saved %d buildings", len(buildings.Features))})
	return nil
}

// Snapshot is a read-only view of session state.
type Snapshot struct {
	Style          string
	Term           string
	Selected       *geojson.Feature
	ListenersBound bool
	Passes         int
	DrawState      string
}

// Snapshot reads the session state on the event loop.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.Do(ctx, func() error {
		snap = Snapshot{
			Style:          s.rec.Session().RequestedStyle(),
			Term:           s.ctrl.Term(),
			Selected:       s.ctrl.Selection(),
			ListenersBound: s.rec.Session().ListenersBound(),
			Passes:         s.rec.Session().Passes(),
		}
		if s.draw != nil {
			snap.DrawState = s.draw.State().String()
		}
		return nil
	})
	return snap, err
}
