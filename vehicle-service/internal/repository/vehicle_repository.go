package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dealerhub/platform/shared/apperrors"
	"github.com/dealerhub/platform/shared/db"
	"github.com/dealerhub/platform/shared/models"
	"github.com/lib/pq"
)

const vehicleColumns = `id, vin, registration_number, brand_id, model_id, year, color, mileage,
	price, cost, condition, status, fuel_type, transmission, description, location,
	created_at, updated_at, deleted_at`

// VehicleWriteRepository handles all state-mutating operations for vehicles.
type VehicleWriteRepository struct {
	db *sql.DB
}

func NewVehicleWriteRepository(conn *sql.DB) *VehicleWriteRepository {
	return &VehicleWriteRepository{db: conn}
}

func (r *VehicleWriteRepository) Create(ctx context.Context, v *models.Vehicle) error {
	query := `
		INSERT INTO vehicles (vin, registration_number, brand_id, model_id, year, color, mileage,
			price, cost, condition, status, fuel_type, transmission, description, location)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at
	`
	err := db.GetExecutor(ctx, r.db).QueryRowContext(ctx, query,
		v.VIN, nullString(v.RegistrationNumber), v.BrandID, v.ModelID, v.Year, nullString(v.Color), v.Mileage,
		v.Price, nullFloat(v.Cost), v.Condition, v.Status, nullString(v.FuelType), nullString(v.Transmission),
		nullString(v.Description), nullString(v.Location),
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "vehicles_vin_unique") {
			return apperrors.Invalid("vin", "The vin has already been taken.")
		}
		return fmt.Errorf("failed to create vehicle: %w", err)
	}
	return nil
}

func (r *VehicleWriteRepository) GetByID(ctx context.Context, id int64) (*models.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE id = $1 AND deleted_at IS NULL`
	v, err := scanVehicle(db.GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("Vehicle not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}
	return v, nil
}

// Update writes every mutable column of v.
func (r *VehicleWriteRepository) Update(ctx context.Context, v *models.Vehicle) error {
	query := `
		UPDATE vehicles SET vin = $2, registration_number = $3, brand_id = $4, model_id = $5, year = $6,
			color = $7, mileage = $8, price = $9, cost = $10, condition = $11, status = $12,
			fuel_type = $13, transmission = $14, description = $15, location = $16, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at
	`
	err := db.GetExecutor(ctx, r.db).QueryRowContext(ctx, query,
		v.ID, v.VIN, nullString(v.RegistrationNumber), v.BrandID, v.ModelID, v.Year, nullString(v.Color), v.Mileage,
		v.Price, nullFloat(v.Cost), v.Condition, v.Status, nullString(v.FuelType), nullString(v.Transmission),
		nullString(v.Description), nullString(v.Location),
	).Scan(&v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound("Vehicle not found")
	}
	if err != nil {
		if isUniqueViolation(err, "vehicles_vin_unique") {
			return apperrors.Invalid("vin", "The vin has already been taken.")
		}
		return fmt.Errorf("failed to update vehicle: %w", err)
	}
	return nil
}

func (r *VehicleWriteRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	result, err := db.GetExecutor(ctx, r.db).ExecContext(ctx,
		`UPDATE vehicles SET status = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`,
		id, status)
	return checkAffected(result, err, "update vehicle status")
}

func (r *VehicleWriteRepository) SoftDelete(ctx context.Context, id int64) error {
	result, err := db.GetExecutor(ctx, r.db).ExecContext(ctx,
		`UPDATE vehicles SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`,
		id)
	return checkAffected(result, err, "delete vehicle")
}

// TrashedWithImages lists soft-deleted vehicles that still own images.
func (r *VehicleWriteRepository) TrashedWithImages(ctx context.Context, limit int) ([]int64, error) {
	query := `
		SELECT v.id FROM vehicles v
		WHERE v.deleted_at IS NOT NULL
		  AND EXISTS (SELECT 1 FROM vehicle_images i WHERE i.vehicle_id = v.id)
		ORDER BY v.deleted_at
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find trashed vehicles: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan vehicle id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PurgeTrashed physically removes up to limit vehicles soft-deleted before
// cutoff that no longer own images, and returns their ids.
func (r *VehicleWriteRepository) PurgeTrashed(ctx context.Context, cutoff time.Time, limit int) ([]int64, error) {
	query := `
		DELETE FROM vehicles
		WHERE id IN (
			SELECT v.id FROM vehicles v
			WHERE v.deleted_at IS NOT NULL AND v.deleted_at < $1
			  AND NOT EXISTS (SELECT 1 FROM vehicle_images i WHERE i.vehicle_id = v.id)
			ORDER BY v.deleted_at
			LIMIT $2
		)
		RETURNING id
	`
	rows, err := r.db.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to purge vehicles: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func checkAffected(result sql.Result, err error, op string) error {
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("Vehicle not found")
	}
	return nil
}

func scanVehicle(row rowScanner) (*models.Vehicle, error) {
	var v models.Vehicle
	var reg, color, fuel, transmission, desc, loc sql.NullString
	var cost sql.NullFloat64
	var deletedAt pq.NullTime
	err := row.Scan(
		&v.ID, &v.VIN, &reg, &v.BrandID, &v.ModelID, &v.Year, &color, &v.Mileage,
		&v.Price, &cost, &v.Condition, &v.Status, &fuel, &transmission, &desc, &loc,
		&v.CreatedAt, &v.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}
	v.RegistrationNumber = reg.String
	v.Color = color.String
	v.FuelType = fuel.String
	v.Transmission = transmission.String
	v.Description = desc.String
	v.Location = loc.String
	v.Cost = cost.Float64
	if deletedAt.Valid {
		t := deletedAt.Time
		v.DeletedAt = &t
	}
	return &v, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullFloat(f float64) sql.NullFloat64 {
	if f == 0 {
		return sql.NullFloat64{Valid: false}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}
