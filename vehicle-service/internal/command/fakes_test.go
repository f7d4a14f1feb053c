package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/dealerhub/platform/shared/apperrors"
	"github.com/dealerhub/platform/shared/cqrs"
	"github.com/dealerhub/platform/shared/models"
	"github.com/dealerhub/platform/shared/utils"
)

// ---- image store ----

var errDuplicateMain = errors.New("duplicate key value violates unique constraint \"vehicle_images_one_main\"")

// fakeImageStore keeps rows in memory. A failing lock callback restores the
// snapshot taken when the lock was acquired, like a rolled back transaction.
type fakeImageStore struct {
	mu         sync.Mutex
	vehicles   map[int64]bool // id -> live
	images     map[int64]models.VehicleImage
	nextID     int64
	failCreate error
	failDelete error
}

func newFakeImageStore(vehicleIDs ...int64) *fakeImageStore {
	f := &fakeImageStore{
		vehicles: map[int64]bool{},
		images:   map[int64]models.VehicleImage{},
	}
	for _, id := range vehicleIDs {
		f.vehicles[id] = true
	}
	return f
}

func (f *fakeImageStore) trash(vehicleID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vehicles[vehicleID] = false
}

func (f *fakeImageStore) WithVehicleLock(ctx context.Context, vehicleID int64, fn func(ctx context.Context) error) error {
	return f.withLock(ctx, vehicleID, false, fn)
}

func (f *fakeImageStore) WithTrashedVehicleLock(ctx context.Context, vehicleID int64, fn func(ctx context.Context) error) error {
	return f.withLock(ctx, vehicleID, true, fn)
}

func (f *fakeImageStore) withLock(ctx context.Context, vehicleID int64, withTrashed bool, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	live, ok := f.vehicles[vehicleID]
	if !ok || (!live && !withTrashed) {
		f.mu.Unlock()
		return apperrors.NotFound("Vehicle not found")
	}
	snapshot := make(map[int64]models.VehicleImage, len(f.images))
	for k, v := range f.images {
		snapshot[k] = v
	}
	f.mu.Unlock()

	if err := fn(ctx); err != nil {
		f.mu.Lock()
		f.images = snapshot
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeImageStore) VehicleExists(ctx context.Context, vehicleID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.vehicles[vehicleID], nil
}

func (f *fakeImageStore) List(ctx context.Context, vehicleID int64) ([]models.VehicleImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.VehicleImage{}
	for _, img := range f.images {
		if img.VehicleID == vehicleID {
			out = append(out, img)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (f *fakeImageStore) Get(ctx context.Context, vehicleID, imageID int64) (*models.VehicleImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.images[imageID]
	if !ok || img.VehicleID != vehicleID {
		return nil, apperrors.NotFound("Image not found")
	}
	return &img, nil
}

func (f *fakeImageStore) Count(ctx context.Context, vehicleID int64) (int, error) {
	images, _ := f.List(ctx, vehicleID)
	return len(images), nil
}

func (f *fakeImageStore) hasOtherMain(vehicleID, imageID int64) bool {
	for _, img := range f.images {
		if img.VehicleID == vehicleID && img.IsMain && img.ID != imageID {
			return true
		}
	}
	return false
}

func (f *fakeImageStore) Create(ctx context.Context, img *models.VehicleImage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate != nil {
		return f.failCreate
	}
	if img.IsMain && f.hasOtherMain(img.VehicleID, 0) {
		return errDuplicateMain
	}
	f.nextID++
	img.ID = f.nextID
	img.CreatedAt = time.Now()
	img.UpdatedAt = img.CreatedAt
	f.images[img.ID] = *img
	return nil
}

func (f *fakeImageStore) ClearMain(ctx context.Context, vehicleID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, img := range f.images {
		if img.VehicleID == vehicleID && img.IsMain {
			img.IsMain = false
			f.images[id] = img
		}
	}
	return nil
}

func (f *fakeImageStore) update(vehicleID, imageID int64, mutate func(*models.VehicleImage) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.images[imageID]
	if !ok || img.VehicleID != vehicleID {
		return apperrors.NotFound("Image not found")
	}
	if err := mutate(&img); err != nil {
		return err
	}
	f.images[imageID] = img
	return nil
}

func (f *fakeImageStore) MarkMain(ctx context.Context, vehicleID, imageID int64) error {
	return f.update(vehicleID, imageID, func(img *models.VehicleImage) error {
		if f.hasOtherMain(vehicleID, imageID) {
			return errDuplicateMain
		}
		img.IsMain = true
		return nil
	})
}

func (f *fakeImageStore) UpdateOriginalName(ctx context.Context, vehicleID, imageID int64, name string) error {
	return f.update(vehicleID, imageID, func(img *models.VehicleImage) error {
		img.OriginalName = name
		return nil
	})
}

func (f *fakeImageStore) SetOrder(ctx context.Context, vehicleID, imageID int64, order int) error {
	return f.update(vehicleID, imageID, func(img *models.VehicleImage) error {
		img.Order = order
		return nil
	})
}

func (f *fakeImageStore) CountOwned(ctx context.Context, vehicleID int64, ids []int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[int64]bool{}
	for _, id := range ids {
		if img, ok := f.images[id]; ok && img.VehicleID == vehicleID {
			seen[id] = true
		}
	}
	return len(seen), nil
}

func (f *fakeImageStore) Delete(ctx context.Context, vehicleID, imageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete != nil {
		return f.failDelete
	}
	img, ok := f.images[imageID]
	if !ok || img.VehicleID != vehicleID {
		return apperrors.NotFound("Image not found")
	}
	delete(f.images, imageID)
	return nil
}

// ---- blob store ----

type fakeBlobStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	putErr    error
	deleteErr error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: map[string][]byte{}}
}

func (b *fakeBlobStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if b.putErr != nil {
		return b.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return fmt.Errorf("short body for %s", key)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return nil
}

func (b *fakeBlobStore) Delete(ctx context.Context, key string) error {
	if b.deleteErr != nil {
		return b.deleteErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func (b *fakeBlobStore) URL(key string) string {
	return utils.JoinURL("https://cdn.test", key)
}

func (b *fakeBlobStore) has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok
}

func (b *fakeBlobStore) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

// ---- cache and publisher ----

type fakeCache struct {
	invalidated []int64
}

func (c *fakeCache) Invalidate(ctx context.Context, vehicleID int64) {
	c.invalidated = append(c.invalidated, vehicleID)
}

type fakePublisher struct {
	published []string
	err       error
}

func (p *fakePublisher) Publish(ctx context.Context, stream, eventType string, data any) error {
	p.published = append(p.published, eventType)
	return p.err
}

// ---- upload payloads ----

func pngBytes() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

func jpegBytes() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, nil)
	return buf.Bytes()
}

func uploadFile(name string, data []byte) cqrs.UploadFile {
	return cqrs.UploadFile{OriginalName: name, Size: int64(len(data)), Content: bytes.NewReader(data)}
}

func pngFile(name string) cqrs.UploadFile {
	return uploadFile(name, pngBytes())
}
