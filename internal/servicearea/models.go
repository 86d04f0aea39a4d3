package servicearea

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mountly/mountly-backend/internal/geo"
)

const schema = "mountly"

// Vertices is a drawn ring stored as jsonb.
type Vertices []geo.Point

func (v Vertices) Value() (driver.Value, error) {
	if v == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]geo.Point(v))
	return string(b), err
}

func (v *Vertices) Scan(src any) error {
	var b []byte
	switch s := src.(type) {
	case nil:
		*v = nil
		return nil
	case []byte:
		b = s
	case string:
		b = []byte(s)
	default:
		return errors.New("servicearea: unsupported polygon column type")
	}
	return json.Unmarshal(b, (*[]geo.Point)(v))
}

// ServiceArea is one drawn coverage polygon owned by a worker.
type ServiceArea struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	WorkerID string    `gorm:"index;not null" json:"workerId"`
	AreaName string    `json:"areaName"`
	Polygon  Vertices  `gorm:"type:jsonb;not null" json:"polygon"`

	// Written with raw SQL after every save; gorm neither reads nor writes it.
	Geometry string `gorm:"type:geometry(Geometry,4326);->:false;<-:false" json:"-"`

	IsActive bool `gorm:"not null;default:true" json:"isActive"`
	ZipCount int  `gorm:"not null;default:0" json:"zipCount"`
	// LastSyncTimestamp is the client's Unix-millisecond timestamp of the
	// newest sync applied. Older syncs are rejected.
	LastSyncTimestamp int64     `gorm:"not null;default:0" json:"lastSyncTimestamp"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func (ServiceArea) TableName() string { return schema + ".service_areas" }

// ServiceAreaZip is one postal code assigned to an area.
type ServiceAreaZip struct {
	AreaID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Zip      string    `gorm:"size:5;primaryKey;index"`
	WorkerID string    `gorm:"index;not null"`
}

func (ServiceAreaZip) TableName() string { return schema + ".service_area_zips" }
