package servicearea

import (
	"fmt"

	"github.com/mountly/mountly-backend/internal/db"
	"gorm.io/gorm"
)

// Init creates the schema, PostGIS and the service-area tables.
func Init(d *gorm.DB) error {
	if err := db.EnsureSchema(d, schema); err != nil {
		return fmt.Errorf("ensure schema %s: %w", schema, err)
	}
	if err := db.EnsurePostGIS(d); err != nil {
		return fmt.Errorf("enable postgis: %w", err)
	}
	if err := d.AutoMigrate(&ServiceArea{}, &ServiceAreaZip{}); err != nil {
		return fmt.Errorf("auto-migrate service area tables: %w", err)
	}

	// Spatial index for coordinate coverage lookups
	if err := d.Exec(`
		CREATE INDEX IF NOT EXISTS idx_service_areas_geometry
		ON mountly.service_areas USING GIST (geometry);
	`).Error; err != nil {
		return fmt.Errorf("create idx_service_areas_geometry: %w", err)
	}
	return nil
}
