package repository

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/dealerhub/platform/shared/models"
	sharedredis "github.com/dealerhub/platform/shared/redis"
	"github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"
)

const imageListKeyPrefix = "vehicle:images:"

type imageList struct {
	Images []models.VehicleImage `json:"images"`
}

// ImageReadRepository serves a vehicle's ordered image list from Redis,
// falling back to PostgreSQL on a miss.
type ImageReadRepository struct {
	db    *sql.DB
	cache *sharedredis.ViewCache[imageList]
}

func NewImageReadRepository(conn *sql.DB, redisClient goredis.Cmdable, ttl time.Duration) *ImageReadRepository {
	return &ImageReadRepository{
		db:    conn,
		cache: sharedredis.NewViewCache[imageList](redisClient, imageListKeyPrefix, ttl),
	}
}

func (r *ImageReadRepository) VehicleExists(ctx context.Context, vehicleID int64) (bool, error) {
	return vehicleExists(ctx, r.db, vehicleID)
}

func (r *ImageReadRepository) ListByVehicle(ctx context.Context, vehicleID int64) ([]models.VehicleImage, error) {
	list, err := r.cache.GetOrLoad(ctx, strconv.FormatInt(vehicleID, 10), func(ctx context.Context) (*imageList, error) {
		images, err := listImages(ctx, r.db, vehicleID)
		if err != nil {
			return nil, err
		}
		return &imageList{Images: images}, nil
	})
	if err != nil {
		return nil, err
	}
	return list.Images, nil
}

// MainImages returns the main image of each listed vehicle that has one.
func (r *ImageReadRepository) MainImages(ctx context.Context, vehicleIDs []int64) (map[int64]models.VehicleImage, error) {
	out := make(map[int64]models.VehicleImage, len(vehicleIDs))
	if len(vehicleIDs) == 0 {
		return out, nil
	}
	query := `SELECT ` + imageColumns + ` FROM vehicle_images WHERE vehicle_id = ANY($1) AND is_main`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(vehicleIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		out[img.VehicleID] = *img
	}
	return out, rows.Err()
}

// Invalidate drops the cached list after a committed mutation.
func (r *ImageReadRepository) Invalidate(ctx context.Context, vehicleID int64) {
	r.cache.Invalidate(ctx, strconv.FormatInt(vehicleID, 10))
}
