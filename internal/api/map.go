package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-campus/internal/draw"
	"github.com/joeblew999/plat-campus/internal/feature"
	"github.com/joeblew999/plat-campus/internal/humastar"
	"github.com/joeblew999/plat-campus/internal/mapsession"
	"github.com/joeblew999/plat-campus/internal/surface"
	"github.com/joeblew999/plat-campus/internal/templates"
)

// MapEvent is the DOM event the page listens on for engine commands.
const MapEvent = "campus-map"

// keepAlive bounds each wait on the session outbox so an idle but open
// stream still counts as activity.
const keepAlive = 15 * time.Second

// blank empties a patch target.
const blank = `<template></template>`

// MapHandler serves the map session stream and the browser callbacks.
type MapHandler struct {
	humastar.Handler
	registry *mapsession.Registry
	log      *slog.Logger
}

func NewMapHandler(registry *mapsession.Registry, renderer *templates.Renderer, log *slog.Logger) *MapHandler {
	if log == nil {
		log = slog.Default()
	}
	return &MapHandler{
		Handler:  humastar.Handler{Renderer: renderer},
		registry: registry,
		log:      log,
	}
}

func (h *MapHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/map/{id}", h.GetState, huma.OperationTags("map"))
	huma.Delete(api, "/api/v1/map/{id}", h.Delete, huma.OperationTags("map"))
	huma.Get(api, "/api/v1/map/{id}/stream", h.Connect, huma.OperationTags("map"))

	huma.Post(api, "/api/v1/map/{id}/search", h.Search, huma.OperationTags("map"))
	huma.Post(api, "/api/v1/map/{id}/clear", h.Clear, huma.OperationTags("map"))
	huma.Post(api, "/api/v1/map/{id}/select/{featureId}", h.Select, huma.OperationTags("map"))
	huma.Post(api, "/api/v1/map/{id}/style", h.Style, huma.OperationTags("map"))
	huma.Post(api, "/api/v1/map/{id}/style-loaded", h.StyleLoaded, huma.OperationTags("map"))
	huma.Post(api, "/api/v1/map/{id}/click", h.Click, huma.OperationTags("map"))
	huma.Post(api, "/api/v1/map/{id}/hover", h.Hover, huma.OperationTags("map"))
	huma.Post(api, "/api/v1/map/{id}/draw", h.Draw, huma.OperationTags("map"))
	huma.Post(api, "/api/v1/map/{id}/draw-mode", h.DrawMode, huma.OperationTags("map"))
	huma.Post(api, "/api/v1/map/{id}/save", h.Save, huma.OperationTags("map"))
}

// Inputs

type SessionInput struct {
	ID string `path:"id" doc:"Map session ID"`
}

type StreamInput struct {
	ID string `path:"id" doc:"Map session ID"`
}

type CallbackInput struct {
	ID string `path:"id" doc:"Map session ID"`
	humastar.SignalsInput
}

type SelectInput struct {
	ID        string `path:"id" doc:"Map session ID"`
	FeatureID string `path:"featureId" doc:"Canonical feature id" example:"1"`
}

// Outputs

// MapStateBody is a read-only view of a map session. Its actions depend on
// the session's mode and selection.
type MapStateBody struct {
	ID             string            `json:"id" doc:"Map session ID"`
	Style          string            `json:"style" doc:"Requested base style"`
	Term           string            `json:"term" doc:"Active search term"`
	Selected       string            `json:"selected,omitempty" doc:"Selected feature id"`
	ListenersBound bool              `json:"listenersBound" doc:"Whether layer listeners are bound"`
	Passes         int               `json:"passes" doc:"Completed reconciliation passes"`
	Authoring      bool              `json:"authoring" doc:"Whether the draw tool runs"`
	DrawState      string            `json:"drawState,omitempty" doc:"Draw reconciler state" enum:"idle,drawing_polygon,feature_selected"`
	Links          []humastar.Action `json:"-"`
}

var (
	viewerActions = []humastar.ActionDef{
		{Rel: "stream", Pattern: "/api/v1/map/%s/stream", Method: "GET", Title: "Command stream"},
		{Rel: "search", Pattern: "/api/v1/map/%s/search", Method: "POST", Title: "Search"},
		{Rel: "style", Pattern: "/api/v1/map/%s/style", Method: "POST", Title: "Switch style"},
	}
	selectedActions = []humastar.ActionDef{
		{Rel: "clear", Pattern: "/api/v1/map/%s/clear", Method: "POST", Title: "Clear selection"},
	}
	authoringActions = []humastar.ActionDef{
		{Rel: "save", Pattern: "/api/v1/map/%s/save", Method: "POST", Title: "Save buildings"},
	}
)

// Actions implements [humastar.Actor].
func (b MapStateBody) Actions() []humastar.Action {
	return b.Links
}

// Handlers

func (h *MapHandler) session(id string) (*mapsession.Session, error) {
	s, ok := h.registry.Get(id)
	if !ok {
		return nil, huma.Error404NotFound("map session not found")
	}
	return s, nil
}

// fail maps a session error to an HTTP error.
func fail(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mapsession.ErrClosed):
		return huma.Error404NotFound("map session closed")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return huma.Error503ServiceUnavailable("map session busy")
	default:
		return huma.Error400BadRequest(err.Error())
	}
}

func (h *MapHandler) GetState(ctx context.Context, input *SessionInput) (*struct{ Body MapStateBody }, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, fail(err)
	}
	body := MapStateBody{
		ID:             s.ID,
		Style:          snap.Style,
		Term:           snap.Term,
		ListenersBound: snap.ListenersBound,
		Passes:         snap.Passes,
		Authoring:      s.Authoring(),
		DrawState:      snap.DrawState,
	}
	body.Links = humastar.ActionsFor(s.ID, viewerActions)
	if snap.Selected != nil {
		body.Selected, _ = feature.ID(snap.Selected)
		body.Links = append(body.Links, humastar.ActionsFor(s.ID, selectedActions)...)
	}
	if s.Authoring() {
		body.Links = append(body.Links, humastar.ActionsFor(s.ID, authoringActions)...)
	}
	return &struct{ Body MapStateBody }{Body: body}, nil
}

func (h *MapHandler) Delete(ctx context.Context, input *SessionInput) (*struct{}, error) {
	if _, err := h.session(input.ID); err != nil {
		return nil, err
	}
	h.registry.Remove(input.ID)
	return nil, nil
}

// Connect attaches the page's long-lived stream. Every queued update is
// forwarded in order until the browser goes away or the session closes.
func (h *MapHandler) Connect(ctx context.Context, input *StreamInput) (*huma.StreamResponse, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	return h.Stream(func(sse humastar.SSE) {
		ctx := sse.Context()
		if err := s.Connected(ctx); err != nil {
			sse.Error(err.Error())
			return
		}
		for {
			wait, cancel := context.WithTimeout(ctx, keepAlive)
			updates, err := s.Next(wait)
			cancel()
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				continue
			}
			if err != nil {
				h.log.Debug("map stream ended", "session", s.ID, "reason", err)
				return
			}
			for _, u := range updates {
				h.write(sse, s.ID, u)
			}
		}
	}), nil
}

func (h *MapHandler) write(sse humastar.SSE, sessionID string, u mapsession.Update) {
	switch u.Kind {
	case mapsession.UpdateCommand:
		sse.Dispatch(MapEvent, u.Command)
	case mapsession.UpdateSelection:
		if u.Feature == nil {
			sse.Patch(blank, "#detail-panel")
			return
		}
		html, err := h.Renderer.Render("detail-panel", templates.NewFeatureData(sessionID, u.Feature))
		if err != nil {
			h.log.Warn("rendering detail panel", "error", err)
			return
		}
		sse.Patch(html, "#detail-panel")
	case mapsession.UpdateMatches:
		if u.Term == "" {
			sse.Patch(blank, "#search-results")
			return
		}
		items := make([]any, len(u.Matches))
		for i, f := range u.Matches {
			items[i] = templates.NewFeatureData(sessionID, f)
		}
		sse.Patch(h.RenderList("search-result", items, "No matches", "No building or parcel is named like that."), "#search-results")
	case mapsession.UpdateStatus:
		sse.Signals(map[string]any{"status": u.Status})
	case mapsession.UpdateSaved:
		sse.Success(u.Status)
	case mapsession.UpdateFailed:
		sse.Error(u.Status)
	}
}

func (h *MapHandler) Search(ctx context.Context, input *CallbackInput) (*struct{}, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	return nil, fail(s.Search(ctx, signals.String("term")))
}

func (h *MapHandler) Clear(ctx context.Context, input *SessionInput) (*struct{}, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	return nil, fail(s.ClearSelection(ctx))
}

func (h *MapHandler) Select(ctx context.Context, input *SelectInput) (*struct{}, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	if err := s.Select(ctx, input.FeatureID); err != nil {
		if errors.Is(err, mapsession.ErrClosed) {
			return nil, fail(err)
		}
		return nil, huma.Error404NotFound(err.Error())
	}
	return nil, nil
}

func (h *MapHandler) Style(ctx context.Context, input *CallbackInput) (*struct{}, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	style := signals.String("style")
	if style == "" {
		return nil, huma.Error400BadRequest("style is required")
	}
	return nil, fail(s.SwitchStyle(ctx, style))
}

func (h *MapHandler) StyleLoaded(ctx context.Context, input *CallbackInput) (*struct{}, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	var inv *mapsession.Inventory
	if signals.Bool("resync") {
		inv = &mapsession.Inventory{}
		if err := signals.Decode("sources", &inv.Sources); err != nil {
			return nil, huma.Error400BadRequest("Invalid sources: " + err.Error())
		}
		if err := signals.Decode("layers", &inv.Layers); err != nil {
			return nil, huma.Error400BadRequest("Invalid layers: " + err.Error())
		}
	}
	return nil, fail(s.StyleLoaded(ctx, signals.String("style"), inv))
}

func (h *MapHandler) Click(ctx context.Context, input *CallbackInput) (*struct{}, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	var hits []surface.RenderedFeature
	if signals.Has("hits") {
		if err := signals.Decode("hits", &hits); err != nil {
			return nil, huma.Error400BadRequest("Invalid hits: " + err.Error())
		}
	}
	p := surface.ScreenPoint{X: signals.Float("x"), Y: signals.Float("y")}
	return nil, fail(s.Click(ctx, p, hits))
}

func (h *MapHandler) Hover(ctx context.Context, input *CallbackInput) (*struct{}, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	return nil, fail(s.Hover(ctx, signals.String("layer"), signals.Bool("entered")))
}

func (h *MapHandler) Draw(ctx context.Context, input *CallbackInput) (*struct{}, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	fc := geojson.NewFeatureCollection()
	if signals.Has("features") {
		if err := signals.Decode("features", fc); err != nil {
			return nil, huma.Error400BadRequest("Invalid features: " + err.Error())
		}
	}
	return nil, fail(s.DrawChanged(ctx, fc, draw.Mode(signals.String("mode"))))
}

func (h *MapHandler) DrawMode(ctx context.Context, input *CallbackInput) (*struct{}, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	return nil, fail(s.DrawModeChanged(ctx, draw.Mode(signals.String("mode"))))
}

// Save persists authoring-mode buildings. The outcome reaches the page as a
// success or error signal on the stream.
func (h *MapHandler) Save(ctx context.Context, input *SessionInput) (*struct{}, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	if !s.Authoring() {
		return nil, huma.Error400BadRequest("session is not in authoring mode")
	}
	if err := s.Save(ctx); err != nil {
		if errors.Is(err, mapsession.ErrClosed) {
			return nil, fail(err)
		}
		return nil, huma.Error500InternalServerError("saving buildings", err)
	}
	return nil, nil
}
