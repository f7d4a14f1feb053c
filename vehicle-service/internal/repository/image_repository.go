package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dealerhub/platform/shared/apperrors"
	"github.com/dealerhub/platform/shared/db"
	"github.com/dealerhub/platform/shared/models"
	"github.com/lib/pq"
)

const imageColumns = `id, vehicle_id, file_name, file_path, original_name, file_size,
	mime_type, checksum, is_main, "order", created_at, updated_at`

// ImageWriteRepository mutates vehicle_images. Every method runs on the
// transaction carried by ctx when there is one.
type ImageWriteRepository struct {
	db *sql.DB
}

func NewImageWriteRepository(conn *sql.DB) *ImageWriteRepository {
	return &ImageWriteRepository{db: conn}
}

func (r *ImageWriteRepository) exec(ctx context.Context) db.Executor {
	return db.GetExecutor(ctx, r.db)
}

// WithVehicleLock runs fn in a transaction holding a row lock on the live
// vehicle, serializing all image mutations for that vehicle.
func (r *ImageWriteRepository) WithVehicleLock(ctx context.Context, vehicleID int64, fn func(ctx context.Context) error) error {
	return r.withLock(ctx, vehicleID, false, fn)
}

// WithTrashedVehicleLock is WithVehicleLock for vehicles that may already be
// soft-deleted. Used by the purge path.
func (r *ImageWriteRepository) WithTrashedVehicleLock(ctx context.Context, vehicleID int64, fn func(ctx context.Context) error) error {
	return r.withLock(ctx, vehicleID, true, fn)
}

func (r *ImageWriteRepository) withLock(ctx context.Context, vehicleID int64, withTrashed bool, fn func(ctx context.Context) error) error {
	query := `SELECT id FROM vehicles WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`
	if withTrashed {
		query = `SELECT id FROM vehicles WHERE id = $1 FOR UPDATE`
	}
	return db.RunInTransaction(ctx, r.db, func(ctx context.Context) error {
		var id int64
		err := r.exec(ctx).QueryRowContext(ctx, query, vehicleID).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("Vehicle not found")
		}
		if err != nil {
			return fmt.Errorf("failed to lock vehicle %d: %w", vehicleID, err)
		}
		return fn(ctx)
	})
}

func (r *ImageWriteRepository) VehicleExists(ctx context.Context, vehicleID int64) (bool, error) {
	return vehicleExists(ctx, r.exec(ctx), vehicleID)
}

func (r *ImageWriteRepository) List(ctx context.Context, vehicleID int64) ([]models.VehicleImage, error) {
	return listImages(ctx, r.exec(ctx), vehicleID)
}

// Get returns the image only if it belongs to vehicleID.
func (r *ImageWriteRepository) Get(ctx context.Context, vehicleID, imageID int64) (*models.VehicleImage, error) {
	query := `SELECT ` + imageColumns + ` FROM vehicle_images WHERE id = $1 AND vehicle_id = $2`
	img, err := scanImage(r.exec(ctx).QueryRowContext(ctx, query, imageID, vehicleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("Image not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get image %d: %w", imageID, err)
	}
	return img, nil
}

func (r *ImageWriteRepository) Count(ctx context.Context, vehicleID int64) (int, error) {
	var n int
	err := r.exec(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vehicle_images WHERE vehicle_id = $1`, vehicleID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count images: %w", err)
	}
	return n, nil
}

// Create inserts img and fills in its id and timestamps.
func (r *ImageWriteRepository) Create(ctx context.Context, img *models.VehicleImage) error {
	query := `
		INSERT INTO vehicle_images (vehicle_id, file_name, file_path, original_name, file_size,
			mime_type, checksum, is_main, "order")
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	err := r.exec(ctx).QueryRowContext(ctx, query,
		img.VehicleID, img.FileName, img.FilePath, img.OriginalName, img.FileSize,
		img.MimeType, img.Checksum, img.IsMain, img.Order,
	).Scan(&img.ID, &img.CreatedAt, &img.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "vehicle_images_one_main") {
			return fmt.Errorf("vehicle %d already has a main image: %w", img.VehicleID, err)
		}
		return fmt.Errorf("failed to create image: %w", err)
	}
	return nil
}

func (r *ImageWriteRepository) ClearMain(ctx context.Context, vehicleID int64) error {
	_, err := r.exec(ctx).ExecContext(ctx,
		`UPDATE vehicle_images SET is_main = FALSE, updated_at = NOW() WHERE vehicle_id = $1 AND is_main`,
		vehicleID)
	if err != nil {
		return fmt.Errorf("failed to clear main image: %w", err)
	}
	return nil
}

func (r *ImageWriteRepository) MarkMain(ctx context.Context, vehicleID, imageID int64) error {
	return r.updateOne(ctx, "mark main",
		`UPDATE vehicle_images SET is_main = TRUE, updated_at = NOW() WHERE id = $1 AND vehicle_id = $2`,
		imageID, vehicleID)
}

func (r *ImageWriteRepository) UpdateOriginalName(ctx context.Context, vehicleID, imageID int64, name string) error {
	return r.updateOne(ctx, "rename",
		`UPDATE vehicle_images SET original_name = $3, updated_at = NOW() WHERE id = $1 AND vehicle_id = $2`,
		imageID, vehicleID, name)
}

func (r *ImageWriteRepository) SetOrder(ctx context.Context, vehicleID, imageID int64, order int) error {
	return r.updateOne(ctx, "reorder",
		`UPDATE vehicle_images SET "order" = $3, updated_at = NOW() WHERE id = $1 AND vehicle_id = $2`,
		imageID, vehicleID, order)
}

// CountOwned reports how many of ids are images of vehicleID.
func (r *ImageWriteRepository) CountOwned(ctx context.Context, vehicleID int64, ids []int64) (int, error) {
	var n int
	err := r.exec(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vehicle_images WHERE vehicle_id = $1 AND id = ANY($2)`,
		vehicleID, pq.Array(ids)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to check image ownership: %w", err)
	}
	return n, nil
}

func (r *ImageWriteRepository) Delete(ctx context.Context, vehicleID, imageID int64) error {
	return r.updateOne(ctx, "delete",
		`DELETE FROM vehicle_images WHERE id = $1 AND vehicle_id = $2`,
		imageID, vehicleID)
}

func (r *ImageWriteRepository) updateOne(ctx context.Context, op, query string, args ...any) error {
	result, err := r.exec(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s image: %w", op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("Image not found")
	}
	return nil
}

func listImages(ctx context.Context, exec db.Executor, vehicleID int64) ([]models.VehicleImage, error) {
	query := `SELECT ` + imageColumns + ` FROM vehicle_images WHERE vehicle_id = $1 ORDER BY "order" ASC, id ASC`
	rows, err := exec.QueryContext(ctx, query, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	defer rows.Close()

	images := []models.VehicleImage{}
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		images = append(images, *img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	return images, nil
}

func vehicleExists(ctx context.Context, exec db.Executor, vehicleID int64) (bool, error) {
	var exists bool
	err := exec.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM vehicles WHERE id = $1 AND deleted_at IS NULL)`,
		vehicleID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check vehicle: %w", err)
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImage(row rowScanner) (*models.VehicleImage, error) {
	var img models.VehicleImage
	err := row.Scan(
		&img.ID, &img.VehicleID, &img.FileName, &img.FilePath, &img.OriginalName, &img.FileSize,
		&img.MimeType, &img.Checksum, &img.IsMain, &img.Order, &img.CreatedAt, &img.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &img, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
