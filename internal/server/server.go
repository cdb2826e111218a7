package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-campus/internal/api"
	"github.com/joeblew999/plat-campus/internal/db"
	"github.com/joeblew999/plat-campus/internal/feature"
	"github.com/joeblew999/plat-campus/internal/logger"
	"github.com/joeblew999/plat-campus/internal/mapsession"
	"github.com/joeblew999/plat-campus/internal/selection"
	"github.com/joeblew999/plat-campus/internal/service"
	"github.com/joeblew999/plat-campus/internal/templates"
)

// Config holds the server configuration.
type Config struct {
	Host         string
	Port         string
	DataDir      string
	TemplatesDir string // optional: reload page templates from disk
	Style        string // default base style URI
	Styles       []service.Style
	Authoring    bool // serve the /editor page
	SessionTTL   time.Duration
	Log          *slog.Logger
}

// Server is the campus map HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	humaAPI  huma.API
	db       *sql.DB
	services *api.Services
	registry *mapsession.Registry
	renderer *templates.Renderer
	log      *slog.Logger
	stop     context.CancelFunc
}

// New creates a new campus map server.
func New(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = logger.L()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 10 * time.Minute
	}
	if len(cfg.Styles) == 0 && cfg.Style != "" {
		cfg.Styles = []service.Style{{ID: "default", Name: "Default", URI: cfg.Style}}
	}

	mux := http.NewServeMux()

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("plat-campus API", "1.0.0")
	humaConfig.Info.Description = "Campus map API: collections, search, paint and live map sessions."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())

	humaAPI := humago.New(mux, humaConfig)

	ctx, stop := context.WithCancel(context.Background())
	s := &Server{
		config:  cfg,
		mux:     mux,
		humaAPI: humaAPI,
		log:     log,
		stop:    stop,
	}

	// Initialize DuckDB connection
	var buildings service.BuildingSource
	conn, err := db.Get(db.Config{
		DataDir: cfg.DataDir,
		DBName:  "campus",
	})
	if err != nil {
		log.Warn("building database unavailable", "error", err)
	} else {
		s.db = conn
		repo, err := db.NewBuildingRepo(ctx, conn)
		if err != nil {
			log.Warn("building store unavailable", "error", err)
		} else {
			buildings = repo
		}
	}

	bus := service.NewEventBus()
	catalog := service.NewCatalogService(cfg.DataDir, buildings, bus, log)
	if _, err := catalog.Load(ctx); err != nil {
		log.Error("loading campus collections", "error", err)
	}

	index := feature.NewStore(log)
	if snap := catalog.Snapshot(); snap != nil {
		for _, err := range index.Load(snap) {
			log.Warn("dropped feature", "error", err)
		}
	}
	go followCatalog(ctx, catalog, index, log)

	s.services = &api.Services{
		Catalog: catalog,
		Paint:   service.NewPaintService(cfg.DataDir),
		Index:   index,
		Styles:  cfg.Styles,
	}

	s.registry = mapsession.NewRegistry(mapsession.Deps{
		Catalog: catalog,
		Paint:   s.services.Paint,
		Log:     log,
	}, cfg.SessionTTL)
	go s.registry.Run(ctx, cfg.SessionTTL/2)

	renderer, err := templates.New()
	if err != nil {
		panic(fmt.Sprintf("parsing embedded templates: %v", err))
	}
	if cfg.TemplatesDir != "" {
		if err := renderer.Reload(cfg.TemplatesDir); err != nil {
			log.Warn("template reload failed, using embedded", "dir", cfg.TemplatesDir, "error", err)
		} else {
			log.Info("loaded templates", "dir", cfg.TemplatesDir)
		}
	}
	s.renderer = renderer

	s.routes()
	return s
}

// followCatalog keeps the shared search index in step with saved buildings.
func followCatalog(ctx context.Context, catalog *service.CatalogService, index *feature.Store, log *slog.Logger) {
	events, off := catalog.Bus().Subscribe()
	defer off()
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			if e.Action != "updated" {
				continue
			}
			if err := index.Replace(e.Collection, catalog.Snapshot()[e.Collection]); err != nil {
				log.Warn("search index not updated", "collection", e.Collection, "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Registry returns the live map sessions.
func (s *Server) Registry() *mapsession.Registry { return s.registry }

// Close closes server resources.
func (s *Server) Close() error {
	s.stop()
	s.registry.Close()
	return db.Close()
}

func (s *Server) routes() {
	// Register Huma REST API routes (OpenAPI-documented JSON endpoints)
	huma.AutoRegister(s.humaAPI, api.NewAPIHandler(s.services))
	api.NewInfoHandler(s.config.DataDir, s.db != nil, s.services.Index, s.registry).RegisterRoutes(s.humaAPI)
	api.NewDBHandler(s.db).RegisterRoutes(s.humaAPI)

	// Map session stream and browser callbacks (Huma + Datastar SDK)
	api.NewMapHandler(s.registry, s.renderer, s.log).RegisterRoutes(s.humaAPI)

	// Page routes
	s.mux.HandleFunc("/viewer", s.handlePage(false))
	if s.config.Authoring {
		s.mux.HandleFunc("/editor", s.handlePage(true))
	}
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-campus",
		"status":  "running",
	})
}

// handlePage starts a map session and renders the page bound to it. The
// editor runs the session in authoring mode.
func (s *Server) handlePage(authoring bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		style := s.config.Style
		if q := r.URL.Query().Get("style"); q != "" {
			style = q
		}

		sess, err := s.registry.Create(mapsession.Config{
			Style:     style,
			Authoring: authoring,
			Selection: selection.DefaultOptions(),
		})
		if err != nil {
			http.Error(w, "Failed to start map session: "+err.Error(), http.StatusInternalServerError)
			return
		}

		title := "Campus map"
		if authoring {
			title = "Campus editor"
		}
		center, zoom := s.camera()
		html, err := s.renderer.Render("page", templates.PageData{
			Title:     title,
			SessionID: sess.ID,
			Style:     style,
			Styles:    s.config.Styles,
			Authoring: authoring,
			Center:    center,
			Zoom:      zoom,
		})
		if err != nil {
			s.registry.Remove(sess.ID)
			http.Error(w, "Failed to render page: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(html))
	}
}

// camera centers the initial view on the campus boundary, falling back to
// every loaded feature, then to the world.
func (s *Server) camera() ([2]float64, float64) {
	index := s.services.Index
	for _, c := range []feature.Collection{feature.Boundary, feature.Buildings, feature.Parcels, feature.Roads} {
		if b, ok := bound(index.Get(c)); ok {
			p := b.Center()
			return [2]float64{p.X(), p.Y()}, 15
		}
	}
	return [2]float64{0, 0}, 1
}

func bound(fc *geojson.FeatureCollection) (orb.Bound, bool) {
	var b orb.Bound
	found := false
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		if !found {
			b = f.Geometry.Bound()
			found = true
			continue
		}
		b = b.Union(f.Geometry.Bound())
	}
	return b, found
}
