package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-campus/internal/feature"
)

// SessionCounter reports live map sessions.
type SessionCounter interface {
	Len() int
}

type InfoHandler struct {
	dataDir  string
	dbOK     bool
	index    *feature.Store
	sessions SessionCounter
}

func NewInfoHandler(dataDir string, dbOK bool, index *feature.Store, sessions SessionCounter) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, dbOK: dbOK, index: index, sessions: sessions}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name        string         `json:"name" doc:"Service name"`
	Version     string         `json:"version" doc:"Service version"`
	DataDir     string         `json:"data_dir" doc:"Data directory path"`
	DB          bool           `json:"db" doc:"Whether the building database is available"`
	Sessions    int            `json:"sessions" doc:"Live map sessions"`
	Collections map[string]int `json:"collections" doc:"Features loaded per collection"`
	Features    []string       `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	body := InfoBody{
		Name:        "plat-campus",
		Version:     "0.1.0",
		DataDir:     h.dataDir,
		DB:          h.dbOK,
		Collections: map[string]int{},
		Features:    []string{"geojson", "search", "selection", "authoring", "duckdb"},
	}
	if h.index != nil {
		for _, c := range feature.Collections {
			body.Collections[string(c)] = len(h.index.Get(c).Features)
		}
	}
	if h.sessions != nil {
		body.Sessions = h.sessions.Len()
	}
	return &struct{ Body InfoBody }{Body: body}, nil
}
