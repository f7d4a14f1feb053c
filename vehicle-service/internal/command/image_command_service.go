package command

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/dealerhub/platform/shared/apperrors"
	"github.com/dealerhub/platform/shared/blob"
	"github.com/dealerhub/platform/shared/cqrs"
	"github.com/dealerhub/platform/shared/events"
	"github.com/dealerhub/platform/shared/models"
	"github.com/dealerhub/platform/shared/utils"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// ImageStore is the transactional image metadata store. Calls made inside a
// WithVehicleLock callback join that callback's transaction.
type ImageStore interface {
	WithVehicleLock(ctx context.Context, vehicleID int64, fn func(ctx context.Context) error) error
	WithTrashedVehicleLock(ctx context.Context, vehicleID int64, fn func(ctx context.Context) error) error
	VehicleExists(ctx context.Context, vehicleID int64) (bool, error)
	List(ctx context.Context, vehicleID int64) ([]models.VehicleImage, error)
	Get(ctx context.Context, vehicleID, imageID int64) (*models.VehicleImage, error)
	Count(ctx context.Context, vehicleID int64) (int, error)
	Create(ctx context.Context, img *models.VehicleImage) error
	ClearMain(ctx context.Context, vehicleID int64) error
	MarkMain(ctx context.Context, vehicleID, imageID int64) error
	UpdateOriginalName(ctx context.Context, vehicleID, imageID int64, name string) error
	SetOrder(ctx context.Context, vehicleID, imageID int64, order int) error
	CountOwned(ctx context.Context, vehicleID int64, ids []int64) (int, error)
	Delete(ctx context.Context, vehicleID, imageID int64) error
}

// ViewCache is a read-side projection that must be dropped after a
// committed change.
type ViewCache interface {
	Invalidate(ctx context.Context, vehicleID int64)
}

type EventPublisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

// UploadLimits bounds a single upload request.
type UploadLimits struct {
	MaxFileSize  int64
	MaxFiles     int
	AllowedTypes []string
}

// ImageCommandService owns the image set of each vehicle: ordering, the
// single main image, and keeping rows and blobs in step.
type ImageCommandService struct {
	store     ImageStore
	blobs     blob.Store
	cache     ViewCache
	publisher EventPublisher
	limits    UploadLimits
}

func NewImageCommandService(
	store ImageStore,
	blobs blob.Store,
	cache ViewCache,
	publisher EventPublisher,
	limits UploadLimits,
) *ImageCommandService {
	return &ImageCommandService{
		store:     store,
		blobs:     blobs,
		cache:     cache,
		publisher: publisher,
		limits:    limits,
	}
}

type preparedUpload struct {
	originalName string
	size         int64
	mimeType     string
	fileName     string
	key          string
	checksum     string
	content      io.ReadSeeker
}

// UploadImages validates the whole batch before touching storage. Blobs are
// written first, then rows are inserted under the vehicle lock; if the
// insert fails the written blobs are removed again.
func (s *ImageCommandService) UploadImages(ctx context.Context, cmd cqrs.UploadImagesCommand) ([]models.VehicleImageView, error) {
	exists, err := s.store.VehicleExists(ctx, cmd.VehicleID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.NotFound("Vehicle not found")
	}

	uploads, err := s.prepare(cmd.VehicleID, cmd.Files)
	if err != nil {
		return nil, err
	}

	written := make([]string, 0, len(uploads))
	for _, u := range uploads {
		if err := s.blobs.Put(ctx, u.key, u.content, u.size, u.mimeType); err != nil {
			s.discardBlobs(ctx, written)
			return nil, &apperrors.StorageError{Op: "put", Key: u.key, Err: err}
		}
		written = append(written, u.key)
	}

	var created []models.VehicleImage
	err = s.store.WithVehicleLock(ctx, cmd.VehicleID, func(ctx context.Context) error {
		created = created[:0]
		existing, err := s.store.Count(ctx, cmd.VehicleID)
		if err != nil {
			return err
		}
		for i, u := range uploads {
			img := models.VehicleImage{
				VehicleID:    cmd.VehicleID,
				FileName:     u.fileName,
				FilePath:     u.key,
				OriginalName: u.originalName,
				FileSize:     u.size,
				MimeType:     u.mimeType,
				Checksum:     u.checksum,
				Order:        existing + i,
			}
			switch {
			case cmd.RequestedMain && i == 0:
				if err := s.store.ClearMain(ctx, cmd.VehicleID); err != nil {
					return err
				}
				img.IsMain = true
			case existing == 0 && i == 0:
				img.IsMain = true
			}
			if err := s.store.Create(ctx, &img); err != nil {
				return err
			}
			created = append(created, img)
		}
		return nil
	})
	if err != nil {
		s.discardBlobs(ctx, written)
		return nil, err
	}

	s.cache.Invalidate(ctx, cmd.VehicleID)

	payload := events.ImageUploadedEvent{VehicleID: cmd.VehicleID}
	for _, img := range created {
		payload.ImageIDs = append(payload.ImageIDs, img.ID)
		if img.IsMain {
			payload.MainID = img.ID
		}
	}
	s.publish(ctx, events.ImageUploaded, payload)

	return s.views(created), nil
}

func (s *ImageCommandService) prepare(vehicleID int64, files []cqrs.UploadFile) ([]preparedUpload, error) {
	verr := apperrors.NewValidationError()
	if len(files) == 0 {
		verr.Add("images", "The images field is required.")
		return nil, verr
	}
	if s.limits.MaxFiles > 0 && len(files) > s.limits.MaxFiles {
		verr.Add("images", fmt.Sprintf("The images field must not have more than %d items.", s.limits.MaxFiles))
		return nil, verr
	}

	uploads := make([]preparedUpload, 0, len(files))
	for i, f := range files {
		field := fmt.Sprintf("images.%d", i)
		if f.Content == nil || f.Size <= 0 {
			verr.Add(field, "The "+field+" field must be an image.")
			continue
		}
		if f.Size > s.limits.MaxFileSize {
			verr.Add(field, fmt.Sprintf("The %s field must not be greater than %d kilobytes.", field, s.limits.MaxFileSize/1024))
			continue
		}

		mt, err := mimetype.DetectReader(f.Content)
		if err != nil || !s.allowed(mt) {
			verr.Add(field, "The "+field+" field must be a file of type: jpeg, png, jpg.")
			continue
		}
		if _, err := f.Content.Seek(0, io.SeekStart); err != nil {
			verr.Add(field, "The "+field+" failed to upload.")
			continue
		}
		checksum, err := utils.Checksum(f.Content)
		if err != nil {
			verr.Add(field, "The "+field+" failed to upload.")
			continue
		}
		if _, err := f.Content.Seek(0, io.SeekStart); err != nil {
			verr.Add(field, "The "+field+" failed to upload.")
			continue
		}

		fileName := utils.NewStoredName(mt.Extension())
		uploads = append(uploads, preparedUpload{
			originalName: originalName(f.OriginalName, fileName),
			size:         f.Size,
			mimeType:     baseMIME(mt.String()),
			fileName:     fileName,
			key:          utils.VehicleImageKey(vehicleID, fileName),
			checksum:     checksum,
			content:      f.Content,
		})
	}

	if verr.HasErrors() {
		return nil, verr
	}
	return uploads, nil
}

func (s *ImageCommandService) allowed(mt *mimetype.MIME) bool {
	for _, t := range s.limits.AllowedTypes {
		if mt.Is(t) {
			return true
		}
	}
	return false
}

// SetMainImage makes imageID the only main image of the vehicle.
func (s *ImageCommandService) SetMainImage(ctx context.Context, cmd cqrs.SetMainImageCommand) (*models.VehicleImageView, error) {
	var img *models.VehicleImage
	err := s.store.WithVehicleLock(ctx, cmd.VehicleID, func(ctx context.Context) error {
		if _, err := s.store.Get(ctx, cmd.VehicleID, cmd.ImageID); err != nil {
			return err
		}
		if err := s.makeMain(ctx, cmd.VehicleID, cmd.ImageID); err != nil {
			return err
		}
		var err error
		img, err = s.store.Get(ctx, cmd.VehicleID, cmd.ImageID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, cmd.VehicleID)
	s.publish(ctx, events.ImageMainChanged, events.ImageMainChangedEvent{VehicleID: cmd.VehicleID, ImageID: cmd.ImageID})

	view := s.view(*img)
	return &view, nil
}

// UpdateImageMetadata applies the fields present in cmd. IsMain=false is
// ignored: the main image only moves by promoting another one.
func (s *ImageCommandService) UpdateImageMetadata(ctx context.Context, cmd cqrs.UpdateImageMetadataCommand) (*models.VehicleImageView, error) {
	var img *models.VehicleImage
	var mainChanged bool
	err := s.store.WithVehicleLock(ctx, cmd.VehicleID, func(ctx context.Context) error {
		current, err := s.store.Get(ctx, cmd.VehicleID, cmd.ImageID)
		if err != nil {
			return err
		}
		if cmd.OriginalName != nil {
			if err := s.store.UpdateOriginalName(ctx, cmd.VehicleID, cmd.ImageID, *cmd.OriginalName); err != nil {
				return err
			}
		}
		if cmd.IsMain != nil && *cmd.IsMain && !current.IsMain {
			if err := s.makeMain(ctx, cmd.VehicleID, cmd.ImageID); err != nil {
				return err
			}
			mainChanged = true
		}
		img, err = s.store.Get(ctx, cmd.VehicleID, cmd.ImageID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, cmd.VehicleID)
	s.publish(ctx, events.ImageUpdated, events.ImageUpdatedEvent{VehicleID: cmd.VehicleID, ImageID: cmd.ImageID})
	if mainChanged {
		s.publish(ctx, events.ImageMainChanged, events.ImageMainChangedEvent{VehicleID: cmd.VehicleID, ImageID: cmd.ImageID})
	}

	view := s.view(*img)
	return &view, nil
}

// DeleteImage removes the row, promotes a new main if needed, and deletes the
// blob last, all under the vehicle lock. A blob failure rolls the row back;
// a blob that is already gone counts as removed. When the main image goes,
// the remaining image with the lowest order takes over.
//
// Blob and row live in separate stores: if the commit itself fails after the
// blob is gone, the row survives without its blob.
func (s *ImageCommandService) DeleteImage(ctx context.Context, cmd cqrs.DeleteImageCommand) error {
	payload := events.ImageDeletedEvent{VehicleID: cmd.VehicleID, ImageID: cmd.ImageID}
	err := s.store.WithVehicleLock(ctx, cmd.VehicleID, func(ctx context.Context) error {
		img, err := s.store.Get(ctx, cmd.VehicleID, cmd.ImageID)
		if err != nil {
			return err
		}
		payload.FilePath = img.FilePath

		if err := s.store.Delete(ctx, cmd.VehicleID, cmd.ImageID); err != nil {
			return err
		}
		if img.IsMain {
			remaining, err := s.store.List(ctx, cmd.VehicleID)
			if err != nil {
				return err
			}
			if len(remaining) > 0 {
				if err := s.store.MarkMain(ctx, cmd.VehicleID, remaining[0].ID); err != nil {
					return err
				}
				payload.PromotedID = remaining[0].ID
			}
		}

		if err := s.blobs.Delete(ctx, img.FilePath); err != nil {
			return &apperrors.StorageError{Op: "delete", Key: img.FilePath, Err: err}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.Invalidate(ctx, cmd.VehicleID)
	s.publish(ctx, events.ImageDeleted, payload)
	return nil
}

// ReorderImages sets order to each id's index in cmd.Order. The ids must be
// distinct images of the vehicle; otherwise nothing changes.
func (s *ImageCommandService) ReorderImages(ctx context.Context, cmd cqrs.ReorderImagesCommand) ([]models.VehicleImageView, error) {
	if len(cmd.Order) == 0 {
		return nil, apperrors.Invalid("order", "The order field is required.")
	}
	seen := make(map[int64]struct{}, len(cmd.Order))
	for _, id := range cmd.Order {
		if _, dup := seen[id]; dup {
			return nil, apperrors.Invalid("order", "The order field has a duplicate value.")
		}
		seen[id] = struct{}{}
	}

	var images []models.VehicleImage
	err := s.store.WithVehicleLock(ctx, cmd.VehicleID, func(ctx context.Context) error {
		owned, err := s.store.CountOwned(ctx, cmd.VehicleID, cmd.Order)
		if err != nil {
			return err
		}
		if owned != len(cmd.Order) {
			return apperrors.Invalid("order", "Invalid image IDs provided")
		}
		for i, id := range cmd.Order {
			if err := s.store.SetOrder(ctx, cmd.VehicleID, id, i); err != nil {
				return err
			}
		}
		images, err = s.store.List(ctx, cmd.VehicleID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, cmd.VehicleID)
	s.publish(ctx, events.ImageReordered, events.ImageReorderedEvent{VehicleID: cmd.VehicleID, Order: cmd.Order})
	return s.views(images), nil
}

// PurgeVehicleImages removes every image of a vehicle, live or trashed. Each
// image is its own transaction, so a blob failure stops the purge with the
// remaining rows and their blobs intact for the next attempt.
func (s *ImageCommandService) PurgeVehicleImages(ctx context.Context, vehicleID int64) (int, error) {
	images, err := s.store.List(ctx, vehicleID)
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, img := range images {
		removed := false
		err := s.store.WithTrashedVehicleLock(ctx, vehicleID, func(ctx context.Context) error {
			current, err := s.store.Get(ctx, vehicleID, img.ID)
			if apperrors.IsNotFound(err) {
				return nil
			}
			if err != nil {
				return err
			}
			if err := s.store.Delete(ctx, vehicleID, img.ID); err != nil {
				return err
			}
			if err := s.blobs.Delete(ctx, current.FilePath); err != nil {
				return &apperrors.StorageError{Op: "delete", Key: current.FilePath, Err: err}
			}
			removed = true
			return nil
		})
		if apperrors.IsNotFound(err) {
			// The vehicle row is gone; the FK cascade already removed the rows.
			break
		}
		if err != nil {
			s.cache.Invalidate(ctx, vehicleID)
			return purged, err
		}
		if removed {
			purged++
		}
	}

	s.cache.Invalidate(ctx, vehicleID)
	if purged > 0 {
		s.publish(ctx, events.ImagesPurged, events.ImagesPurgedEvent{VehicleID: vehicleID, Count: purged})
	}
	return purged, nil
}

// HandleVehicleEvent is the Redis stream subscriber handler. A returned
// error leaves the message pending so it is retried.
func (s *ImageCommandService) HandleVehicleEvent(ctx context.Context, event events.Event) error {
	if event.Type != events.VehicleDeleted {
		return nil
	}
	data, err := events.DecodeData[events.VehicleDeletedEvent](event)
	if err != nil {
		return err
	}
	n, err := s.PurgeVehicleImages(ctx, data.VehicleID)
	if err != nil {
		return fmt.Errorf("purge images of vehicle %d: %w", data.VehicleID, err)
	}
	log.Info().Int64("vehicle_id", data.VehicleID).Int("purged", n).Msg("purged images of deleted vehicle")
	return nil
}

func (s *ImageCommandService) makeMain(ctx context.Context, vehicleID, imageID int64) error {
	if err := s.store.ClearMain(ctx, vehicleID); err != nil {
		return err
	}
	return s.store.MarkMain(ctx, vehicleID, imageID)
}

// discardBlobs undoes blob writes whose rows never committed. It runs even
// when the request context is already cancelled.
func (s *ImageCommandService) discardBlobs(ctx context.Context, keys []string) {
	ctx = context.WithoutCancel(ctx)
	for _, key := range keys {
		if err := s.blobs.Delete(ctx, key); err != nil {
			log.Error().Err(err).Str("key", key).Msg("failed to remove orphaned blob")
		}
	}
}

func (s *ImageCommandService) publish(ctx context.Context, eventType string, data any) {
	if err := s.publisher.Publish(ctx, events.VehicleEventsStream, eventType, data); err != nil {
		log.Warn().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}

func (s *ImageCommandService) view(img models.VehicleImage) models.VehicleImageView {
	return models.VehicleImageView{VehicleImage: img, URL: s.blobs.URL(img.FilePath)}
}

func (s *ImageCommandService) views(images []models.VehicleImage) []models.VehicleImageView {
	out := make([]models.VehicleImageView, 0, len(images))
	for _, img := range images {
		out = append(out, s.view(img))
	}
	return out
}

// maxOriginalNameLen matches the VARCHAR(255) column, which counts characters.
const maxOriginalNameLen = 255

func originalName(name, fallback string) string {
	name = strings.TrimSpace(strings.ToValidUTF8(name, ""))
	if name == "" {
		return fallback
	}
	if utf8.RuneCountInString(name) > maxOriginalNameLen {
		name = string([]rune(name)[:maxOriginalNameLen])
	}
	return name
}

// baseMIME strips parameters such as "; charset=binary".
func baseMIME(m string) string {
	if i := strings.IndexByte(m, ';'); i >= 0 {
		return strings.TrimSpace(m[:i])
	}
	return m
}
