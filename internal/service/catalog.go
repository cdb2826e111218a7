package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/errgroup"

	"github.com/joeblew999/plat-campus/internal/feature"
)

// BuildingSource is a remote content store for building records.
type BuildingSource interface {
	// ListBuildings returns every building, or an empty collection when the
	// store holds none.
	ListBuildings(ctx context.Context) (*geojson.FeatureCollection, error)
	// SaveBuildings replaces every stored building.
	SaveBuildings(ctx context.Context, fc *geojson.FeatureCollection) error
}

// CatalogService loads the four campus collections and shares them across
// map sessions.
type CatalogService struct {
	sourcesDir string
	buildings  BuildingSource
	bus        *EventBus
	log        *slog.Logger

	mu   sync.RWMutex
	data map[feature.Collection]*geojson.FeatureCollection
}

// NewCatalogService creates a catalog reading <dataDir>/sources. buildings
// may be nil.
func NewCatalogService(dataDir string, buildings BuildingSource, bus *EventBus, log *slog.Logger) *CatalogService {
	if log == nil {
		log = slog.Default()
	}
	if bus == nil {
		bus = NewEventBus()
	}
	return &CatalogService{
		sourcesDir: filepath.Join(dataDir, "sources"),
		buildings:  buildings,
		bus:        bus,
		log:        log,
	}
}

// FileName returns the GeoJSON file name for a collection.
func FileName(c feature.Collection) string {
	return string(c) + ".geojson"
}

// Load fetches every collection concurrently and proceeds once all have
// resolved. A missing file yields an empty collection. Buildings come from
// the BuildingSource when it holds any.
func (s *CatalogService) Load(ctx context.Context) (map[feature.Collection]*geojson.FeatureCollection, error) {
	results := make([]*geojson.FeatureCollection, len(feature.Collections))

	g, ctx := errgroup.WithContext(ctx)
	for i, c := range feature.Collections {
		g.Go(func() error {
			fc, err := s.loadFile(c)
			if err != nil {
				return err
			}
			if c == feature.Buildings && s.buildings != nil {
				remote, err := s.buildings.ListBuildings(ctx)
				if err != nil {
					s.log.Warn("building store unavailable, using file", "error", err)
				} else if len(remote.Features) > 0 {
					fc = remote
				}
			}
			results[i] = fc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	data := make(map[feature.Collection]*geojson.FeatureCollection, len(results))
	for i, c := range feature.Collections {
		data[c] = results[i]
	}

	s.mu.Lock()
	s.data = data
	s.mu.Unlock()

	for _, c := range feature.Collections {
		s.log.Info("collection loaded", "collection", c, "features", len(data[c].Features))
	}
	return data, nil
}

func (s *CatalogService) loadFile(c feature.Collection) (*geojson.FeatureCollection, error) {
	raw, err := os.ReadFile(filepath.Join(s.sourcesDir, FileName(c)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return geojson.NewFeatureCollection(), nil
		}
		return nil, fmt.Errorf("reading %s: %w", c, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", c, err)
	}
	return fc, nil
}

// Snapshot returns the last loaded collections, or nil before Load.
func (s *CatalogService) Snapshot() map[feature.Collection]*geojson.FeatureCollection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data == nil {
		return nil
	}
	out := make(map[feature.Collection]*geojson.FeatureCollection, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// SaveBuildings persists buildings drawn in an authoring session and shares
// them with other sessions.
func (s *CatalogService) SaveBuildings(ctx context.Context, fc *geojson.FeatureCollection, origin string) error {
	if s.buildings == nil {
		return fmt.Errorf("no building store configured")
	}
	if err := s.buildings.SaveBuildings(ctx, fc); err != nil {
		return fmt.Errorf("saving buildings: %w", err)
	}

	s.mu.Lock()
	if s.data == nil {
		s.data = map[feature.Collection]*geojson.FeatureCollection{}
	}
	s.data[feature.Buildings] = fc
	s.mu.Unlock()

	s.bus.Publish(CatalogEvent{Collection: feature.Buildings, Action: "updated", Origin: origin})
	return nil
}

// Bus returns the catalog's event bus.
func (s *CatalogService) Bus() *EventBus { return s.bus }

// List describes the source files present on disk.
func (s *CatalogService) List() ([]SourceFile, error) {
	snap := s.Snapshot()
	var files []SourceFile
	for _, c := range feature.Collections {
		info, err := os.Stat(filepath.Join(s.sourcesDir, FileName(c)))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		sf := SourceFile{
			Collection: string(c),
			Name:       FileName(c),
			Size:       formatSize(info.Size()),
		}
		if fc := snap[c]; fc != nil {
			sf.Features = len(fc.Features)
		}
		files = append(files, sf)
	}
	return files, nil
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
