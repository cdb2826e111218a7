package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-campus/internal/feature"
)

const buildingsSchema = `
CREATE TABLE IF NOT EXISTS campus_buildings (
	id         VARCHAR PRIMARY KEY,
	name       VARCHAR,
	koordinat  VARCHAR NOT NULL,
	attributes VARCHAR
)`

// Record is a building row as the content system stores it: geometry lives
// in koordinat as GeoJSON text, everything else in attributes.
type Record struct {
	ID         string
	Name       string
	Koordinat  string
	Attributes map[string]any
}

// ToFeature splits a record into geometry and properties.
func (r Record) ToFeature() (*geojson.Feature, error) {
	g, err := geojson.UnmarshalGeometry([]byte(r.Koordinat))
	if err != nil {
		return nil, fmt.Errorf("building %s: koordinat: %w", r.ID, err)
	}
	f := geojson.NewFeature(g.Geometry())
	for k, v := range r.Attributes {
		f.Properties[k] = v
	}
	f.Properties["id"] = r.ID
	if r.Name != "" {
		f.Properties["name"] = r.Name
	}
	return f, nil
}

// RecordFromFeature is the inverse of Record.ToFeature.
func RecordFromFeature(f *geojson.Feature) (Record, error) {
	id, ok := feature.ID(f)
	if !ok {
		return Record{}, fmt.Errorf("feature without id")
	}
	if f.Geometry == nil {
		return Record{}, fmt.Errorf("building %s: no geometry", id)
	}
	koordinat, err := geojson.NewGeometry(f.Geometry).MarshalJSON()
	if err != nil {
		return Record{}, fmt.Errorf("building %s: %w", id, err)
	}
	attrs := map[string]any{}
	for k, v := range f.Properties {
		if k == "id" || k == "name" {
			continue
		}
		attrs[k] = v
	}
	return Record{ID: id, Name: feature.Name(f), Koordinat: string(koordinat), Attributes: attrs}, nil
}

// BuildingRepo reads and writes building records.
type BuildingRepo struct {
	db *sql.DB
}

// NewBuildingRepo creates the table if needed.
func NewBuildingRepo(ctx context.Context, conn *sql.DB) (*BuildingRepo, error) {
	if _, err := conn.ExecContext(ctx, buildingsSchema); err != nil {
		return nil, fmt.Errorf("creating campus_buildings: %w", err)
	}
	return &BuildingRepo{db: conn}, nil
}

// ListBuildings returns every stored building as a feature collection.
func (r *BuildingRepo) ListBuildings(ctx context.Context) (*geojson.FeatureCollection, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, coalesce(name, ''), koordinat, coalesce(attributes, '{}') FROM campus_buildings ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing buildings: %w", err)
	}
	defer rows.Close()

	fc := geojson.NewFeatureCollection()
	for rows.Next() {
		var rec Record
		var attrs string
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Koordinat, &attrs); err != nil {
			return nil, fmt.Errorf("scanning building: %w", err)
		}
		if err := json.Unmarshal([]byte(attrs), &rec.Attributes); err != nil {
			return nil, fmt.Errorf("building %s: attributes: %w", rec.ID, err)
		}
		f, err := rec.ToFeature()
		if err != nil {
			return nil, err
		}
		fc.Append(f)
	}
	return fc, rows.Err()
}

// SaveBuildings replaces every stored building in one transaction.
func (r *BuildingRepo) SaveBuildings(ctx context.Context, fc *geojson.FeatureCollection) error {
	records := make([]Record, 0, len(fc.Features))
	for _, f := range fc.Features {
		rec, err := RecordFromFeature(f)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM campus_buildings"); err != nil {
		return fmt.Errorf("clearing buildings: %w", err)
	}
	for _, rec := range records {
		attrs, err := json.Marshal(rec.Attributes)
		if err != nil {
			return fmt.Errorf("building %s: %w", rec.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO campus_buildings (id, name, koordinat, attributes) VALUES (?, ?, ?, ?)",
			rec.ID, rec.Name, rec.Koordinat, string(attrs)); err != nil {
			return fmt.Errorf("inserting building %s: %w", rec.ID, err)
		}
	}
	return tx.Commit()
}
