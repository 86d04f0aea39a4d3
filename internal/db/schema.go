package db

import "gorm.io/gorm"

func EnsureSchema(d *gorm.DB, schema string) error {
	return d.Exec(`CREATE SCHEMA IF NOT EXISTS "` + schema + `"`).Error
}

// EnsurePostGIS enables the geometry types used for coverage lookups.
func EnsurePostGIS(d *gorm.DB) error {
	return d.Exec(`CREATE EXTENSION IF NOT EXISTS postgis`).Error
}
