package reconcile

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-campus/internal/feature"
	"github.com/joeblew999/plat-campus/internal/service"
	"github.com/joeblew999/plat-campus/internal/surface"
)

var (
	// ErrSkipped is returned when the data provider is not ready yet. The
	// next trigger runs the pass again.
	ErrSkipped = errors.New("reconcile: data not ready")
	// ErrNotReady is returned when the surface cannot be mutated.
	ErrNotReady = errors.New("reconcile: surface not ready")
)

// Provider supplies the data a pass materializes.
type Provider interface {
	Ready() bool
	SourceData(c feature.Collection) *geojson.FeatureCollection
}

// Binder attaches interaction listeners once a pass completes and returns
// their unsubscribe handles.
type Binder interface {
	Bind(a *surface.Adapter) []surface.Unsubscribe
}

// PaintSource resolves the paint of a collection.
type PaintSource interface {
	Get(c feature.Collection) service.PaintConfig
}

// StoreProvider serves a Feature Store unfiltered.
type StoreProvider struct {
	Store *feature.Store
}

func (p StoreProvider) Ready() bool { return p.Store.Loaded() }

func (p StoreProvider) SourceData(c feature.Collection) *geojson.FeatureCollection {
	return p.Store.Get(c)
}

// Reconciler runs the ensure-present pass on (a) initial readiness and (b)
// every style reload that belongs to the latest requested style.
type Reconciler struct {
	adapter  *surface.Adapter
	provider Provider
	paint    PaintSource
	binders  []Binder
	session  *Session
	log      *slog.Logger

	offReload surface.Unsubscribe
}

// New creates a reconciler. paint may be nil for default paint.
func New(adapter *surface.Adapter, provider Provider, paint PaintSource, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		adapter:  adapter,
		provider: provider,
		paint:    paint,
		session:  newSession(adapter.Style()),
		log:      log.With("component", "reconciler"),
	}
}

// AddBinder registers b. Binders run in registration order.
func (r *Reconciler) AddBinder(b Binder) {
	r.binders = append(r.binders, b)
}

// Session returns the reconciliation session.
func (r *Reconciler) Session() *Session { return r.session }

// Start subscribes to style reloads and runs the first pass if the surface
// is already ready.
func (r *Reconciler) Start() error {
	if r.offReload == nil {
		r.offReload = r.adapter.OnStyleReloaded(r.styleReloaded)
	}
	if !r.adapter.IsReady() {
		return nil
	}
	return r.Reconcile()
}

// Stop releases the reload subscription and every listener binding.
func (r *Reconciler) Stop() {
	if r.offReload != nil {
		r.offReload()
		r.offReload = nil
	}
	r.session.BeginStyleChange(r.session.RequestedStyle())
}

// SwitchStyle starts a style change to uri. Listener state is reset now;
// the pass and rebinding happen when the new style has loaded.
func (r *Reconciler) SwitchStyle(uri string) error {
	r.session.BeginStyleChange(uri)
	r.log.Info("style change", "style", uri, "generation", r.session.Generation())
	return r.adapter.SetStyle(uri)
}

func (r *Reconciler) styleReloaded(style string) {
	if !r.session.Current(style) {
		r.log.Debug("ignoring stale style load", "style", style, "requested", r.session.RequestedStyle())
		return
	}
	if err := r.Reconcile(); err != nil {
		r.report(err)
	}
}

func (r *Reconciler) report(err error) {
	switch {
	case errors.Is(err, ErrSkipped), errors.Is(err, ErrNotReady):
		r.log.Debug("reconciliation deferred", "reason", err)
	default:
		r.log.Warn("reconciliation failed", "error", err)
	}
}

// Reconcile runs one ensure-present pass. It is idempotent: a second call
// with no intervening change leaves the surface untouched apart from data
// updates. Listeners are bound once per style generation, after the pass.
func (r *Reconciler) Reconcile() error {
	if !r.provider.Ready() {
		return ErrSkipped
	}
	if !r.adapter.IsReady() {
		return ErrNotReady
	}

	for _, s := range Sources {
		data := r.provider.SourceData(s.Collection)
		if data == nil {
			data = geojson.NewFeatureCollection()
		}
		if err := r.adapter.AddSource(s.ID, data); err != nil {
			return fmt.Errorf("ensuring source %s: %w", s.ID, err)
		}
	}

	for i, l := range Layers {
		if r.adapter.HasLayer(l.ID) {
			continue
		}
		spec := l.Spec(r.paintFor(l.Collection))
		spec.BeforeID = r.nextPresent(i)
		if err := r.adapter.AddLayer(spec); err != nil {
			return fmt.Errorf("ensuring layer %s: %w", l.ID, err)
		}
	}

	if !r.session.ListenersBound() {
		var handles []surface.Unsubscribe
		for _, b := range r.binders {
			handles = append(handles, b.Bind(r.adapter)...)
		}
		r.session.bound(handles)
	}
	r.session.completed()
	r.log.Debug("reconciled", "style", r.session.RequestedStyle(), "pass", r.session.Passes())
	return nil
}

// nextPresent returns the first layer above index i that is on the surface.
func (r *Reconciler) nextPresent(i int) string {
	for _, l := range Layers[i+1:] {
		if r.adapter.HasLayer(l.ID) {
			return l.ID
		}
	}
	return ""
}

func (r *Reconciler) paintFor(c feature.Collection) service.PaintConfig {
	if r.paint != nil {
		return r.paint.Get(c)
	}
	return service.DefaultPaint[c]
}
