// Package cleanup finishes what vehicle soft-deletes leave behind.
package cleanup

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

type VehicleStore interface {
	TrashedWithImages(ctx context.Context, limit int) ([]int64, error)
	PurgeTrashed(ctx context.Context, cutoff time.Time, limit int) ([]int64, error)
}

type ImagePurger interface {
	PurgeVehicleImages(ctx context.Context, vehicleID int64) (int, error)
}

type Config struct {
	Schedule      string
	RetentionDays int
	MaxBatch      int
}

// Result summarises one run.
type Result struct {
	ImagesPurged   int
	VehiclesPurged int
	FailedVehicles []int64
}

// Reaper periodically purges images of trashed vehicles the event subscriber
// missed, then removes trashed vehicles past retention that own no images.
type Reaper struct {
	cron     *cron.Cron
	vehicles VehicleStore
	images   ImagePurger
	cfg      Config
	now      func() time.Time

	mu      sync.Mutex
	running bool
}

func NewReaper(vehicles VehicleStore, images ImagePurger, cfg Config) *Reaper {
	return &Reaper{
		cron:     cron.New(),
		vehicles: vehicles,
		images:   images,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Start schedules the reaper; runs never overlap.
func (r *Reaper) Start(ctx context.Context) error {
	_, err := r.cron.AddFunc(r.cfg.Schedule, func() {
		if _, err := r.RunOnce(ctx); err != nil {
			log.Error().Err(err).Msg("cleanup: run failed")
		}
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	log.Info().Str("schedule", r.cfg.Schedule).Int("retention_days", r.cfg.RetentionDays).Msg("cleanup: reaper started")
	return nil
}

// Stop waits for a running job to finish.
func (r *Reaper) Stop() {
	<-r.cron.Stop().Done()
	log.Info().Msg("cleanup: reaper stopped")
}

func (r *Reaper) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		log.Warn().Msg("cleanup: previous run still in progress, skipping")
		return res, nil
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	trashed, err := r.vehicles.TrashedWithImages(ctx, r.cfg.MaxBatch)
	if err != nil {
		return res, err
	}
	for _, id := range trashed {
		n, err := r.images.PurgeVehicleImages(ctx, id)
		res.ImagesPurged += n
		if err != nil {
			log.Warn().Err(err).Int64("vehicle_id", id).Msg("cleanup: image purge failed")
			res.FailedVehicles = append(res.FailedVehicles, id)
		}
	}

	cutoff := r.now().AddDate(0, 0, -r.cfg.RetentionDays)
	purged, err := r.vehicles.PurgeTrashed(ctx, cutoff, r.cfg.MaxBatch)
	if err != nil {
		return res, err
	}
	res.VehiclesPurged = len(purged)

	log.Info().
		Int("images_purged", res.ImagesPurged).
		Int("vehicles_purged", res.VehiclesPurged).
		Int("failed", len(res.FailedVehicles)).
		Msg("cleanup: run completed")
	return res, nil
}
