package command

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/dealerhub/platform/shared/apperrors"
	"github.com/dealerhub/platform/shared/cqrs"
	"github.com/dealerhub/platform/shared/events"
	"github.com/dealerhub/platform/shared/models"
)

type imageFixture struct {
	store     *fakeImageStore
	blobs     *fakeBlobStore
	cache     *fakeCache
	publisher *fakePublisher
	svc       *ImageCommandService
}

func newImageFixture(vehicleIDs ...int64) *imageFixture {
	f := &imageFixture{
		store:     newFakeImageStore(vehicleIDs...),
		blobs:     newFakeBlobStore(),
		cache:     &fakeCache{},
		publisher: &fakePublisher{},
	}
	f.svc = NewImageCommandService(f.store, f.blobs, f.cache, f.publisher, UploadLimits{
		MaxFileSize:  5 << 20,
		MaxFiles:     10,
		AllowedTypes: []string{"image/jpeg", "image/png"},
	})
	return f
}

func (f *imageFixture) upload(t *testing.T, vehicleID int64, requestedMain bool, files ...cqrs.UploadFile) []models.VehicleImageView {
	t.Helper()
	views, err := f.svc.UploadImages(context.Background(), cqrs.UploadImagesCommand{
		VehicleID: vehicleID, Files: files, RequestedMain: requestedMain,
	})
	if err != nil {
		t.Fatalf("UploadImages: %v", err)
	}
	return views
}

func (f *imageFixture) list(t *testing.T, vehicleID int64) []models.VehicleImage {
	t.Helper()
	images, err := f.store.List(context.Background(), vehicleID)
	if err != nil {
		t.Fatal(err)
	}
	return images
}

func mainIDs(images []models.VehicleImage) []int64 {
	var ids []int64
	for _, img := range images {
		if img.IsMain {
			ids = append(ids, img.ID)
		}
	}
	return ids
}

func orderOf(images []models.VehicleImage) map[int64]int {
	out := map[int64]int{}
	for _, img := range images {
		out[img.ID] = img.Order
	}
	return out
}

func TestUploadFirstImageIsAlwaysMain(t *testing.T) {
	for _, requested := range []bool{false, true} {
		f := newImageFixture(1)
		views := f.upload(t, 1, requested, pngFile("front.png"))

		if len(views) != 1 {
			t.Fatalf("expected 1 created image, got %d", len(views))
		}
		if !views[0].IsMain || views[0].Order != 0 {
			t.Errorf("requested=%v: expected main image at order 0, got main=%v order=%d", requested, views[0].IsMain, views[0].Order)
		}
		if ids := mainIDs(f.list(t, 1)); len(ids) != 1 {
			t.Errorf("requested=%v: expected exactly one main image, got %v", requested, ids)
		}
	}
}

func TestUploadStoresUnderVehicleKeyWithDerivedURL(t *testing.T) {
	f := newImageFixture(42)
	views := f.upload(t, 42, false, pngFile("../../etc/passwd"), uploadFile("photo.png", jpegBytes()))

	for i, v := range views {
		if !strings.HasPrefix(v.FilePath, "vehicles/42/") {
			t.Errorf("image %d: expected vehicle-scoped key, got %q", i, v.FilePath)
		}
		if strings.Contains(v.FilePath, "passwd") || strings.Contains(v.FilePath, "photo") {
			t.Errorf("image %d: client name leaked into key %q", i, v.FilePath)
		}
		if v.URL != "https://cdn.test/"+v.FilePath {
			t.Errorf("image %d: unexpected url %q", i, v.URL)
		}
		if !f.blobs.has(v.FilePath) {
			t.Errorf("image %d: blob %q not written", i, v.FilePath)
		}
		if v.Checksum == "" {
			t.Errorf("image %d: expected checksum", i)
		}
	}
	if views[0].MimeType != "image/png" || !strings.HasSuffix(views[0].FileName, ".png") {
		t.Errorf("expected png, got %s %s", views[0].MimeType, views[0].FileName)
	}
	// Content decides the type, not the client's file name.
	if views[1].MimeType != "image/jpeg" || !strings.HasSuffix(views[1].FileName, ".jpg") {
		t.Errorf("expected jpeg, got %s %s", views[1].MimeType, views[1].FileName)
	}
	if views[1].OriginalName != "photo.png" {
		t.Errorf("expected original name kept, got %q", views[1].OriginalName)
	}
}

func TestUploadKeepsMultibyteOriginalNameIntact(t *testing.T) {
	f := newImageFixture(1)
	accented := strings.Repeat("é", 200) + ".png"
	long := strings.Repeat("日", 300) + ".png"
	views := f.upload(t, 1, false, pngFile(accented), pngFile(long), pngFile("bad\xffname.png"))

	if views[0].OriginalName != accented {
		t.Errorf("expected 204-character name kept whole, got %d characters", utf8.RuneCountInString(views[0].OriginalName))
	}
	if n := utf8.RuneCountInString(views[1].OriginalName); n != 255 {
		t.Errorf("expected name cut to 255 characters, got %d", n)
	}
	for i, v := range views {
		if !utf8.ValidString(v.OriginalName) {
			t.Errorf("image %d: original name is not valid UTF-8: %q", i, v.OriginalName)
		}
	}
	if views[2].OriginalName != "badname.png" {
		t.Errorf("expected invalid bytes dropped, got %q", views[2].OriginalName)
	}
}

func TestUploadBatchWithRequestedMain(t *testing.T) {
	f := newImageFixture(1)
	existing := f.upload(t, 1, false, pngFile("a.png"), pngFile("b.png"))
	previousCount := len(existing)

	views := f.upload(t, 1, true, pngFile("c.png"), pngFile("d.png"), pngFile("e.png"))

	if !views[0].IsMain {
		t.Errorf("expected first file of the batch to be main")
	}
	for i, v := range views {
		if i > 0 && v.IsMain {
			t.Errorf("expected file %d to be non-main", i)
		}
		if v.Order != previousCount+i {
			t.Errorf("expected file %d at order %d, got %d", i, previousCount+i, v.Order)
		}
	}

	ids := mainIDs(f.list(t, 1))
	if len(ids) != 1 || ids[0] != views[0].ID {
		t.Errorf("expected only %d to be main, got %v", views[0].ID, ids)
	}
}

func TestUploadBatchWithoutRequestedMainKeepsCurrentMain(t *testing.T) {
	f := newImageFixture(1)
	first := f.upload(t, 1, false, pngFile("a.png"))
	f.upload(t, 1, false, pngFile("b.png"), pngFile("c.png"))

	ids := mainIDs(f.list(t, 1))
	if len(ids) != 1 || ids[0] != first[0].ID {
		t.Errorf("expected original main %d to stay, got %v", first[0].ID, ids)
	}
}

func TestUploadValidation(t *testing.T) {
	tests := []struct {
		name           string
		files          []cqrs.UploadFile
		expectedFields []string
	}{
		{
			name:           "empty batch",
			files:          nil,
			expectedFields: []string{"images"},
		},
		{
			name: "every bad file reported together",
			files: []cqrs.UploadFile{
				pngFile("ok.png"),
				uploadFile("notes.png", []byte("plain text pretending to be a png")),
				{OriginalName: "huge.jpg", Size: 6 << 20, Content: bytes.NewReader(jpegBytes())},
				{OriginalName: "empty.png", Size: 0, Content: bytes.NewReader(nil)},
			},
			expectedFields: []string{"images.1", "images.2", "images.3"},
		},
		{
			name:           "gif is not allowed",
			files:          []cqrs.UploadFile{uploadFile("anim.gif", []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;"))},
			expectedFields: []string{"images.0"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newImageFixture(1)
			_, err := f.svc.UploadImages(context.Background(), cqrs.UploadImagesCommand{VehicleID: 1, Files: tt.files})
			verr, ok := apperrors.AsValidation(err)
			if !ok {
				t.Fatalf("[%s] expected validation error, got %v", tt.name, err)
			}
			for _, field := range tt.expectedFields {
				if len(verr.Fields[field]) == 0 {
					t.Errorf("[%s] expected error for %s, got %v", tt.name, field, verr.Fields)
				}
			}
			if _, ok := verr.Fields["images.0"]; ok && tt.name == "every bad file reported together" {
				t.Errorf("[%s] valid file should not be reported", tt.name)
			}
			if f.blobs.count() != 0 {
				t.Errorf("[%s] expected no blobs written, got %d", tt.name, f.blobs.count())
			}
			if n := len(f.list(t, 1)); n != 0 {
				t.Errorf("[%s] expected no rows, got %d", tt.name, n)
			}
		})
	}
}

func TestUploadUnknownVehicle(t *testing.T) {
	f := newImageFixture(1)
	_, err := f.svc.UploadImages(context.Background(), cqrs.UploadImagesCommand{VehicleID: 99, Files: []cqrs.UploadFile{pngFile("a.png")}})
	if !apperrors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUploadRemovesBlobsWhenInsertFails(t *testing.T) {
	f := newImageFixture(1)
	f.store.failCreate = errors.New("connection reset")

	_, err := f.svc.UploadImages(context.Background(), cqrs.UploadImagesCommand{
		VehicleID: 1, Files: []cqrs.UploadFile{pngFile("a.png"), pngFile("b.png")},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if f.blobs.count() != 0 {
		t.Errorf("expected written blobs to be removed, %d left", f.blobs.count())
	}
	if len(f.publisher.published) != 0 {
		t.Errorf("expected no events, got %v", f.publisher.published)
	}
}

func TestUploadBlobFailureIsStorageError(t *testing.T) {
	f := newImageFixture(1)
	f.blobs.putErr = errors.New("bucket unavailable")

	_, err := f.svc.UploadImages(context.Background(), cqrs.UploadImagesCommand{
		VehicleID: 1, Files: []cqrs.UploadFile{pngFile("a.png")},
	})
	if _, ok := apperrors.AsStorage(err); !ok {
		t.Fatalf("expected storage error, got %v", err)
	}
	if n := len(f.list(t, 1)); n != 0 {
		t.Errorf("expected no rows, got %d", n)
	}
}

func TestSetMainImage(t *testing.T) {
	f := newImageFixture(1, 2)
	views := f.upload(t, 1, false, pngFile("a.png"), pngFile("b.png"), pngFile("c.png"))
	other := f.upload(t, 2, false, pngFile("x.png"))

	got, err := f.svc.SetMainImage(context.Background(), cqrs.SetMainImageCommand{VehicleID: 1, ImageID: views[2].ID})
	if err != nil {
		t.Fatalf("SetMainImage: %v", err)
	}
	if !got.IsMain {
		t.Errorf("expected returned image to be main")
	}
	if ids := mainIDs(f.list(t, 1)); len(ids) != 1 || ids[0] != views[2].ID {
		t.Errorf("expected only %d main, got %v", views[2].ID, ids)
	}

	// An image of another vehicle is not found through this vehicle.
	_, err = f.svc.SetMainImage(context.Background(), cqrs.SetMainImageCommand{VehicleID: 1, ImageID: other[0].ID})
	if !apperrors.IsNotFound(err) {
		t.Errorf("expected not found for foreign image, got %v", err)
	}
	if ids := mainIDs(f.list(t, 2)); len(ids) != 1 || ids[0] != other[0].ID {
		t.Errorf("expected vehicle 2 main untouched, got %v", ids)
	}
}

func TestReorderImages(t *testing.T) {
	f := newImageFixture(1)
	views := f.upload(t, 1, false, pngFile("1.png"), pngFile("2.png"), pngFile("3.png"))
	id1, id2, id3 := views[0].ID, views[1].ID, views[2].ID

	got, err := f.svc.ReorderImages(context.Background(), cqrs.ReorderImagesCommand{VehicleID: 1, Order: []int64{id3, id1, id2}})
	if err != nil {
		t.Fatalf("ReorderImages: %v", err)
	}

	expected := map[int64]int{id3: 0, id1: 1, id2: 2}
	orders := orderOf(f.list(t, 1))
	for id, want := range expected {
		if orders[id] != want {
			t.Errorf("expected image %d at %d, got %d", id, want, orders[id])
		}
	}
	if len(got) != 3 || got[0].ID != id3 || got[1].ID != id1 || got[2].ID != id2 {
		t.Errorf("expected listing [%d %d %d], got %+v", id3, id1, id2, got)
	}
	if ids := mainIDs(f.list(t, 1)); len(ids) != 1 || ids[0] != id1 {
		t.Errorf("expected main unchanged, got %v", ids)
	}
}

func TestReorderRejectsForeignOrDuplicateIDs(t *testing.T) {
	f := newImageFixture(1, 2)
	views := f.upload(t, 1, false, pngFile("1.png"), pngFile("2.png"))
	foreign := f.upload(t, 2, false, pngFile("x.png"))
	before := orderOf(f.list(t, 1))

	tests := []struct {
		name  string
		order []int64
	}{
		{name: "foreign id", order: []int64{views[1].ID, foreign[0].ID}},
		{name: "unknown id", order: []int64{views[1].ID, views[0].ID, 999}},
		{name: "duplicate id", order: []int64{views[1].ID, views[1].ID}},
		{name: "empty", order: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ReorderImages(context.Background(), cqrs.ReorderImagesCommand{VehicleID: 1, Order: tt.order})
			verr, ok := apperrors.AsValidation(err)
			if !ok {
				t.Fatalf("[%s] expected validation error, got %v", tt.name, err)
			}
			if len(verr.Fields["order"]) == 0 {
				t.Errorf("[%s] expected order error, got %v", tt.name, verr.Fields)
			}
			after := orderOf(f.list(t, 1))
			for id, o := range before {
				if after[id] != o {
					t.Errorf("[%s] image %d moved from %d to %d", tt.name, id, o, after[id])
				}
			}
		})
	}
}

func TestDeleteMainPromotesLowestOrder(t *testing.T) {
	f := newImageFixture(1)
	views := f.upload(t, 1, false, pngFile("1.png"), pngFile("2.png"), pngFile("3.png"))
	id1, id2, id3 := views[0].ID, views[1].ID, views[2].ID

	// Put 3 ahead of 2 so promotion follows order, not id.
	if _, err := f.svc.ReorderImages(context.Background(), cqrs.ReorderImagesCommand{VehicleID: 1, Order: []int64{id1, id3, id2}}); err != nil {
		t.Fatal(err)
	}

	if err := f.svc.DeleteImage(context.Background(), cqrs.DeleteImageCommand{VehicleID: 1, ImageID: id1}); err != nil {
		t.Fatalf("DeleteImage: %v", err)
	}
	if f.blobs.has(views[0].FilePath) {
		t.Errorf("expected blob of deleted image to be removed")
	}
	ids := mainIDs(f.list(t, 1))
	if len(ids) != 1 || ids[0] != id3 {
		t.Errorf("expected %d promoted, got %v", id3, ids)
	}
}

func TestDeleteNonMainLeavesMain(t *testing.T) {
	f := newImageFixture(1)
	views := f.upload(t, 1, false, pngFile("1.png"), pngFile("2.png"))

	if err := f.svc.DeleteImage(context.Background(), cqrs.DeleteImageCommand{VehicleID: 1, ImageID: views[1].ID}); err != nil {
		t.Fatalf("DeleteImage: %v", err)
	}
	if ids := mainIDs(f.list(t, 1)); len(ids) != 1 || ids[0] != views[0].ID {
		t.Errorf("expected main unchanged, got %v", ids)
	}
}

func TestDeleteLastImageLeavesNoMain(t *testing.T) {
	f := newImageFixture(1)
	views := f.upload(t, 1, false, pngFile("1.png"))

	if err := f.svc.DeleteImage(context.Background(), cqrs.DeleteImageCommand{VehicleID: 1, ImageID: views[0].ID}); err != nil {
		t.Fatalf("DeleteImage: %v", err)
	}
	if images := f.list(t, 1); len(images) != 0 {
		t.Errorf("expected no images, got %d", len(images))
	}
}

func TestDeleteKeepsRowWhenBlobDeleteFails(t *testing.T) {
	f := newImageFixture(1)
	views := f.upload(t, 1, false, pngFile("1.png"), pngFile("2.png"))
	f.blobs.deleteErr = errors.New("timeout")

	err := f.svc.DeleteImage(context.Background(), cqrs.DeleteImageCommand{VehicleID: 1, ImageID: views[0].ID})
	if _, ok := apperrors.AsStorage(err); !ok {
		t.Fatalf("expected storage error, got %v", err)
	}
	images := f.list(t, 1)
	if len(images) != 2 {
		t.Fatalf("expected both rows kept, got %d", len(images))
	}
	if ids := mainIDs(images); len(ids) != 1 || ids[0] != views[0].ID {
		t.Errorf("expected main unchanged, got %v", ids)
	}
}

func TestDeleteKeepsBlobWhenRowDeleteFails(t *testing.T) {
	f := newImageFixture(1)
	views := f.upload(t, 1, false, pngFile("1.png"), pngFile("2.png"))
	f.store.failDelete = errors.New("connection reset")

	err := f.svc.DeleteImage(context.Background(), cqrs.DeleteImageCommand{VehicleID: 1, ImageID: views[0].ID})
	if err == nil {
		t.Fatal("expected error")
	}
	if !f.blobs.has(views[0].FilePath) {
		t.Errorf("blob %q removed although its row was kept", views[0].FilePath)
	}
	if images := f.list(t, 1); len(images) != 2 {
		t.Errorf("expected both rows kept, got %d", len(images))
	}
}

func TestDeleteWithBlobAlreadyGone(t *testing.T) {
	f := newImageFixture(1)
	views := f.upload(t, 1, false, pngFile("1.png"))
	_ = f.blobs.Delete(context.Background(), views[0].FilePath)

	if err := f.svc.DeleteImage(context.Background(), cqrs.DeleteImageCommand{VehicleID: 1, ImageID: views[0].ID}); err != nil {
		t.Fatalf("expected delete to succeed, got %v", err)
	}
}

func TestDeleteUnknownImage(t *testing.T) {
	f := newImageFixture(1)
	err := f.svc.DeleteImage(context.Background(), cqrs.DeleteImageCommand{VehicleID: 1, ImageID: 5})
	if !apperrors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateImageMetadata(t *testing.T) {
	f := newImageFixture(1)
	views := f.upload(t, 1, false, pngFile("1.png"), pngFile("2.png"))
	name := "Front three-quarter"

	got, err := f.svc.UpdateImageMetadata(context.Background(), cqrs.UpdateImageMetadataCommand{
		VehicleID: 1, ImageID: views[1].ID, OriginalName: &name,
	})
	if err != nil {
		t.Fatalf("UpdateImageMetadata: %v", err)
	}
	if got.OriginalName != name {
		t.Errorf("expected name %q, got %q", name, got.OriginalName)
	}
	if got.IsMain != views[1].IsMain || got.Order != views[1].Order {
		t.Errorf("expected is_main/order unchanged, got main=%v order=%d", got.IsMain, got.Order)
	}

	yes := true
	got, err = f.svc.UpdateImageMetadata(context.Background(), cqrs.UpdateImageMetadataCommand{
		VehicleID: 1, ImageID: views[1].ID, IsMain: &yes,
	})
	if err != nil {
		t.Fatalf("UpdateImageMetadata: %v", err)
	}
	if got.OriginalName != name {
		t.Errorf("expected name kept when absent, got %q", got.OriginalName)
	}
	if ids := mainIDs(f.list(t, 1)); len(ids) != 1 || ids[0] != views[1].ID {
		t.Errorf("expected %d to be the only main, got %v", views[1].ID, ids)
	}

	no := false
	if _, err := f.svc.UpdateImageMetadata(context.Background(), cqrs.UpdateImageMetadataCommand{
		VehicleID: 1, ImageID: views[1].ID, IsMain: &no,
	}); err != nil {
		t.Fatalf("UpdateImageMetadata: %v", err)
	}
	if ids := mainIDs(f.list(t, 1)); len(ids) != 1 {
		t.Errorf("expected the vehicle to keep a main image, got %v", ids)
	}
}

func TestHandleVehicleDeletedPurgesImages(t *testing.T) {
	f := newImageFixture(1)
	views := f.upload(t, 1, false, pngFile("1.png"), pngFile("2.png"))
	f.store.trash(1)

	event := events.Event{Type: events.VehicleDeleted, Data: map[string]any{"vehicle_id": 1}}
	if err := f.svc.HandleVehicleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleVehicleEvent: %v", err)
	}
	if n := len(f.list(t, 1)); n != 0 {
		t.Errorf("expected rows purged, %d left", n)
	}
	for _, v := range views {
		if f.blobs.has(v.FilePath) {
			t.Errorf("expected blob %s removed", v.FilePath)
		}
	}
}

func TestPurgeStopsOnBlobFailure(t *testing.T) {
	f := newImageFixture(1)
	f.upload(t, 1, false, pngFile("1.png"), pngFile("2.png"))
	f.store.trash(1)
	f.blobs.deleteErr = errors.New("forbidden")

	n, err := f.svc.PurgeVehicleImages(context.Background(), 1)
	if err == nil {
		t.Fatal("expected error")
	}
	if n != 0 {
		t.Errorf("expected nothing purged, got %d", n)
	}
	if left := len(f.list(t, 1)); left != 2 {
		t.Errorf("expected rows kept for retry, got %d", left)
	}
}

func TestHandleVehicleEventIgnoresOtherTypes(t *testing.T) {
	f := newImageFixture(1)
	f.upload(t, 1, false, pngFile("1.png"))

	if err := f.svc.HandleVehicleEvent(context.Background(), events.Event{Type: events.VehicleCreated}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len(f.list(t, 1)); n != 1 {
		t.Errorf("expected images untouched, got %d", n)
	}
}
