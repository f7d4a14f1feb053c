package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/dealerhub/platform/shared/apperrors"
	"github.com/dealerhub/platform/shared/models"
	sharedredis "github.com/dealerhub/platform/shared/redis"
	goredis "github.com/redis/go-redis/v9"
)

const vehicleViewKeyPrefix = "vehicle:view:"

// VehicleReadRepository handles vehicle reads. Single vehicles are cached in
// Redis; listings always hit PostgreSQL.
type VehicleReadRepository struct {
	db    *sql.DB
	cache *sharedredis.ViewCache[models.Vehicle]
}

func NewVehicleReadRepository(conn *sql.DB, redisClient goredis.Cmdable, ttl time.Duration) *VehicleReadRepository {
	return &VehicleReadRepository{
		db:    conn,
		cache: sharedredis.NewViewCache[models.Vehicle](redisClient, vehicleViewKeyPrefix, ttl),
	}
}

func (r *VehicleReadRepository) GetByID(ctx context.Context, id int64) (*models.Vehicle, error) {
	return r.cache.GetOrLoad(ctx, strconv.FormatInt(id, 10), func(ctx context.Context) (*models.Vehicle, error) {
		query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE id = $1 AND deleted_at IS NULL`
		v, err := scanVehicle(r.db.QueryRowContext(ctx, query, id))
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("Vehicle not found")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get vehicle: %w", err)
		}
		return v, nil
	})
}

// List applies VehicleFilters, sorting and pagination from params.
func (r *VehicleReadRepository) List(ctx context.Context, params url.Values) (models.Page[models.Vehicle], error) {
	opts, verr := ParseListOptions(params)
	if verr != nil {
		return models.Page[models.Vehicle]{}, verr
	}
	where, verr := buildVehicleWhere(params, opts)
	if verr != nil {
		return models.Page[models.Vehicle]{}, verr
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vehicles`+where.String(), where.args...).Scan(&total); err != nil {
		return models.Page[models.Vehicle]{}, fmt.Errorf("failed to count vehicles: %w", err)
	}

	// Sort field and direction come from a whitelist in ParseListOptions.
	query := `SELECT ` + vehicleColumns + ` FROM vehicles` + where.String() +
		` ORDER BY ` + opts.SortField + ` ` + opts.SortDirection + `, id ` + opts.SortDirection
	query += ` LIMIT ` + where.placeholder(opts.PerPage) + ` OFFSET ` + where.placeholder((opts.Page-1)*opts.PerPage)

	rows, err := r.db.QueryContext(ctx, query, where.args...)
	if err != nil {
		return models.Page[models.Vehicle]{}, fmt.Errorf("failed to list vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []models.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return models.Page[models.Vehicle]{}, fmt.Errorf("failed to scan vehicle: %w", err)
		}
		vehicles = append(vehicles, *v)
	}
	if err := rows.Err(); err != nil {
		return models.Page[models.Vehicle]{}, fmt.Errorf("failed to list vehicles: %w", err)
	}

	return models.NewPage(vehicles, opts.Page, opts.PerPage, total), nil
}

func (r *VehicleReadRepository) Invalidate(ctx context.Context, id int64) {
	r.cache.Invalidate(ctx, strconv.FormatInt(id, 10))
}
