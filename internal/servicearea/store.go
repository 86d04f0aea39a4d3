package servicearea

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mountly/mountly-backend/internal/areasync"
	"github.com/mountly/mountly-backend/internal/geo"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound       = errors.New("service area not found")
	ErrWorkerMismatch = errors.New("service area belongs to another worker")
	ErrStaleSync      = errors.New("a newer sync has already been applied")
)

// SaveInput is a validated sync ready to be stored. An empty AreaID creates
// a new area.
type SaveInput struct {
	AreaID        string
	WorkerID      string
	AreaName      string
	Polygon       []geo.Point
	ZipCodes      []string
	SyncTimestamp int64
}

type SaveResult struct {
	Area ServiceArea
	// PreviousZips were assigned before this save replaced them.
	PreviousZips []string
}

type Store interface {
	SaveArea(ctx context.Context, in SaveInput) (*SaveResult, error)
	GetArea(ctx context.Context, id string) (*ServiceArea, error)
	ListAreasByWorker(ctx context.Context, workerID string) ([]ServiceArea, error)
	ListZips(ctx context.Context, areaID string) ([]string, error)
	CountZips(ctx context.Context, areaID string) (int, error)
	SetActive(ctx context.Context, areaID, workerID string, active bool) (*ServiceArea, error)
	// DeleteArea returns the postal codes the area covered.
	DeleteArea(ctx context.Context, areaID, workerID string) ([]string, error)
	CoverageByZips(ctx context.Context, zips []string) (map[string][]areasync.Provider, error)
	CoverageByPoint(ctx context.Context, p geo.Point) ([]areasync.Provider, error)
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{db: db} }

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *GormStore) SaveArea(ctx context.Context, in SaveInput) (*SaveResult, error) {
	shape, err := geojson.NewGeometry(orb.Polygon{geo.ToOrbRing(in.Polygon)}).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode polygon: %w", err)
	}

	var res SaveResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var area ServiceArea
		if in.AreaID == "" {
			area = ServiceArea{ID: uuid.New(), WorkerID: in.WorkerID, IsActive: true}
		} else {
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				First(&area, "id = ?", in.AreaID).Error; err != nil {
				return notFound(err)
			}
			if area.WorkerID != in.WorkerID {
				return ErrWorkerMismatch
			}
			if in.SyncTimestamp < area.LastSyncTimestamp {
				return ErrStaleSync
			}
			if err := tx.Model(&ServiceAreaZip{}).
				Where("area_id = ?", area.ID).
				Order("zip").
				Pluck("zip", &res.PreviousZips).Error; err != nil {
				return fmt.Errorf("load previous zips: %w", err)
			}
		}

		area.AreaName = in.AreaName
		area.Polygon = Vertices(in.Polygon)
		area.ZipCount = len(in.ZipCodes)
		area.LastSyncTimestamp = in.SyncTimestamp

		if in.AreaID == "" {
			if err := tx.Create(&area).Error; err != nil {
				return fmt.Errorf("create area: %w", err)
			}
		} else {
			if err := tx.Save(&area).Error; err != nil {
				return fmt.Errorf("update area: %w", err)
			}
			if err := tx.Where("area_id = ?", area.ID).Delete(&ServiceAreaZip{}).Error; err != nil {
				return fmt.Errorf("clear zips: %w", err)
			}
		}

		if len(in.ZipCodes) > 0 {
			rows := lo.Map(in.ZipCodes, func(z string, _ int) ServiceAreaZip {
				return ServiceAreaZip{AreaID: area.ID, Zip: z, WorkerID: area.WorkerID}
			})
			if err := tx.CreateInBatches(rows, 500).Error; err != nil {
				return fmt.Errorf("insert zips: %w", err)
			}
		}

		if err := tx.Exec(
			`UPDATE mountly.service_areas SET geometry = ST_MakeValid(ST_SetSRID(ST_GeomFromGeoJSON(?), 4326)) WHERE id = ?`,
			string(shape), area.ID,
		).Error; err != nil {
			return fmt.Errorf("store geometry: %w", err)
		}

		res.Area = area
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *GormStore) GetArea(ctx context.Context, id string) (*ServiceArea, error) {
	var area ServiceArea
	if err := s.db.WithContext(ctx).First(&area, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &area, nil
}

func (s *GormStore) ListAreasByWorker(ctx context.Context, workerID string) ([]ServiceArea, error) {
	areas := []ServiceArea{}
	err := s.db.WithContext(ctx).
		Where("worker_id = ?", workerID).
		Order("created_at").
		Find(&areas).Error
	return areas, err
}

func (s *GormStore) ListZips(ctx context.Context, areaID string) ([]string, error) {
	zips := []string{}
	err := s.db.WithContext(ctx).Model(&ServiceAreaZip{}).
		Where("area_id = ?", areaID).
		Order("zip").
		Pluck("zip", &zips).Error
	return zips, err
}

func (s *GormStore) CountZips(ctx context.Context, areaID string) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&ServiceAreaZip{}).
		Where("area_id = ?", areaID).
		Count(&n).Error
	return int(n), err
}

func (s *GormStore) SetActive(ctx context.Context, areaID, workerID string, active bool) (*ServiceArea, error) {
	area, err := s.GetArea(ctx, areaID)
	if err != nil {
		return nil, err
	}
	if area.WorkerID != workerID {
		return nil, ErrWorkerMismatch
	}
	area.IsActive = active
	area.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Model(area).
		Updates(map[string]any{"is_active": active, "updated_at": area.UpdatedAt}).Error; err != nil {
		return nil, fmt.Errorf("update area: %w", err)
	}
	return area, nil
}

func (s *GormStore) DeleteArea(ctx context.Context, areaID, workerID string) ([]string, error) {
	var zips []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var area ServiceArea
		if err := tx.First(&area, "id = ?", areaID).Error; err != nil {
			return notFound(err)
		}
		if area.WorkerID != workerID {
			return ErrWorkerMismatch
		}
		if err := tx.Model(&ServiceAreaZip{}).Where("area_id = ?", area.ID).Pluck("zip", &zips).Error; err != nil {
			return err
		}
		if err := tx.Where("area_id = ?", area.ID).Delete(&ServiceAreaZip{}).Error; err != nil {
			return err
		}
		return tx.Delete(&area).Error
	})
	return zips, err
}

// CoverageByZips lists the active areas covering each postal code. Codes
// nobody covers are absent from the map.
func (s *GormStore) CoverageByZips(ctx context.Context, zips []string) (map[string][]areasync.Provider, error) {
	out := make(map[string][]areasync.Provider, len(zips))
	if len(zips) == 0 {
		return out, nil
	}

	query := `
		SELECT z.zip, z.worker_id, a.id, a.area_name
		FROM mountly.service_area_zips z
		JOIN mountly.service_areas a ON a.id = z.area_id
		WHERE z.zip = ANY($1) AND a.is_active
		ORDER BY z.zip, z.worker_id, a.id
	`
	rows, err := s.db.WithContext(ctx).Raw(query, pq.Array(zips)).Rows()
	if err != nil {
		return nil, fmt.Errorf("coverage by zip query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var zip string
		var p areasync.Provider
		if err := rows.Scan(&zip, &p.WorkerID, &p.AreaID, &p.AreaName); err != nil {
			return nil, fmt.Errorf("scan coverage row: %w", err)
		}
		out[zip] = append(out[zip], p)
	}
	return out, rows.Err()
}

// CoverageByPoint finds active areas whose drawn polygon contains p.
func (s *GormStore) CoverageByPoint(ctx context.Context, p geo.Point) ([]areasync.Provider, error) {
	query := `
		SELECT worker_id, id, area_name
		FROM mountly.service_areas
		WHERE is_active
		  AND geometry IS NOT NULL
		  AND ST_Contains(geometry, ST_SetSRID(ST_MakePoint($1, $2), 4326))
		ORDER BY worker_id, id
	`
	rows, err := s.db.WithContext(ctx).Raw(query, p.Lng, p.Lat).Rows()
	if err != nil {
		return nil, fmt.Errorf("coverage by point query failed: %w", err)
	}
	defer rows.Close()

	providers := []areasync.Provider{}
	for rows.Next() {
		var pr areasync.Provider
		if err := rows.Scan(&pr.WorkerID, &pr.AreaID, &pr.AreaName); err != nil {
			return nil, fmt.Errorf("scan coverage row: %w", err)
		}
		providers = append(providers, pr)
	}
	return providers, rows.Err()
}
