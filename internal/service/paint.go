package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/joeblew999/plat-campus/internal/feature"
)

// DefaultPaint is the paint used for collections without saved config.
var DefaultPaint = map[feature.Collection]PaintConfig{
	feature.Boundary:  {Fill: "#f4f1e8", Stroke: "#7a6f5a", Opacity: 0.3, Width: 2},
	feature.Roads:     {Stroke: "#9aa0a6", Width: 3},
	feature.Parcels:   {Fill: "#b7dfa0", Stroke: "#5f8f4a", Opacity: 0.5, Width: 1},
	feature.Buildings: {Fill: "#3388ff", Stroke: "#2266cc", Opacity: 0.7, Width: 1.5},
}

// PaintService manages per-collection paint, persisted as paint.json.
type PaintService struct {
	dataDir string
	paint   map[feature.Collection]PaintConfig
	mu      sync.RWMutex
}

// NewPaintService creates a paint service seeded with DefaultPaint and any
// saved overrides.
func NewPaintService(dataDir string) *PaintService {
	s := &PaintService{
		dataDir: dataDir,
		paint:   make(map[feature.Collection]PaintConfig, len(DefaultPaint)),
	}
	for c, p := range DefaultPaint {
		p.Collection = string(c)
		s.paint[c] = p
	}
	s.loadFromDisk()
	return s
}

// List returns the paint of every collection.
func (s *PaintService) List() map[feature.Collection]PaintConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[feature.Collection]PaintConfig, len(s.paint))
	for k, v := range s.paint {
		result[k] = v
	}
	return result
}

// Get returns the paint for c.
func (s *PaintService) Get(c feature.Collection) PaintConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paint[c]
}

// Update replaces the paint for a collection.
func (s *PaintService) Update(c feature.Collection, p PaintConfig) (PaintConfig, error) {
	if _, err := feature.ParseCollection(string(c)); err != nil {
		return PaintConfig{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p.Collection = string(c)
	s.paint[c] = p
	if err := s.saveToDisk(); err != nil {
		return PaintConfig{}, fmt.Errorf("saving paint: %w", err)
	}
	return p, nil
}

func (s *PaintService) configFile() string {
	return filepath.Join(s.dataDir, "paint.json")
}

func (s *PaintService) loadFromDisk() {
	data, err := os.ReadFile(s.configFile())
	if err != nil {
		return // nothing saved yet
	}

	var saved map[feature.Collection]PaintConfig
	if err := json.Unmarshal(data, &saved); err != nil {
		return
	}
	for c, p := range saved {
		if _, err := feature.ParseCollection(string(c)); err != nil {
			continue
		}
		p.Collection = string(c)
		s.paint[c] = p
	}
}

func (s *PaintService) saveToDisk() error {
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s.paint, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.configFile(), data, 0644)
}
