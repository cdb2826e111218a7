package api

import (
	"context"
	"database/sql"

	"github.com/danielgtaylor/huma/v2"
)

// DBHandler handles database-related endpoints.
type DBHandler struct {
	db *sql.DB
}

// NewDBHandler creates a new database handler.
func NewDBHandler(db *sql.DB) *DBHandler {
	return &DBHandler{db: db}
}

// RegisterRoutes registers database routes with Huma.
func (h *DBHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/tables", h.ListTables, huma.OperationTags("database"))
}

// TableBody describes one DuckDB table.
type TableBody struct {
	Name string `json:"name" doc:"Table name" example:"campus_buildings"`
	Rows int64  `json:"rows" doc:"Row count"`
}

// TablesOutput is the response for listing tables.
type TablesOutput struct {
	Body struct {
		Tables []TableBody `json:"tables" doc:"Tables in the building database"`
	}
}

// ListTables returns every DuckDB table with its row count.
func (h *DBHandler) ListTables(ctx context.Context, input *struct{}) (*TablesOutput, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}

	rows, err := h.db.QueryContext(ctx, "SELECT table_name, estimated_size FROM duckdb_tables() ORDER BY table_name")
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list tables", err)
	}
	defer rows.Close()

	out := &TablesOutput{}
	out.Body.Tables = []TableBody{}
	for rows.Next() {
		var t TableBody
		if err := rows.Scan(&t.Name, &t.Rows); err == nil {
			out.Body.Tables = append(out.Body.Tables, t)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, huma.Error500InternalServerError("Failed to list tables", err)
	}
	return out, nil
}
