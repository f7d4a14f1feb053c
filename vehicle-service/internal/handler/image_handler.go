package handler

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/dealerhub/platform/shared/apperrors"
	"github.com/dealerhub/platform/shared/cqrs"
	"github.com/dealerhub/platform/shared/middleware"
	"github.com/dealerhub/platform/shared/models"
	"github.com/dealerhub/platform/shared/utils"
	"github.com/gin-gonic/gin"
)

// ImageCommander defines the write-side operations used by ImageHandler.
type ImageCommander interface {
	UploadImages(ctx context.Context, cmd cqrs.UploadImagesCommand) ([]models.VehicleImageView, error)
	SetMainImage(ctx context.Context, cmd cqrs.SetMainImageCommand) (*models.VehicleImageView, error)
	UpdateImageMetadata(ctx context.Context, cmd cqrs.UpdateImageMetadataCommand) (*models.VehicleImageView, error)
	DeleteImage(ctx context.Context, cmd cqrs.DeleteImageCommand) error
	ReorderImages(ctx context.Context, cmd cqrs.ReorderImagesCommand) ([]models.VehicleImageView, error)
}

// ImageQuerier defines the read-side operations used by ImageHandler.
type ImageQuerier interface {
	ListImages(ctx context.Context, q cqrs.ListImagesQuery) ([]models.VehicleImageView, error)
	GetMainImage(ctx context.Context, q cqrs.GetMainImageQuery) (*models.VehicleImageView, error)
}

type ImageHandler struct {
	commands       ImageCommander
	queries        ImageQuerier
	maxUploadBytes int64
}

type ReorderImagesRequest struct {
	Order []int64 `json:"order" validate:"required,min=1,unique,dive,gt=0"`
}

type UpdateImageMetadataRequest struct {
	OriginalName *string `json:"original_name" validate:"omitempty,max=255"`
	IsMain       *bool   `json:"is_main"`
}

type ReorderImagesResponse struct {
	Message string                    `json:"message"`
	Images  []models.VehicleImageView `json:"images"`
}

// NewImageHandler builds the image endpoints. maxUploadBytes caps the whole
// multipart body; zero disables the cap.
func NewImageHandler(commands ImageCommander, queries ImageQuerier, maxUploadBytes int64) *ImageHandler {
	return &ImageHandler{commands: commands, queries: queries, maxUploadBytes: maxUploadBytes}
}

// Register mounts the image routes on a /vehicles group.
func (h *ImageHandler) Register(vehicles *gin.RouterGroup) {
	images := vehicles.Group("/:id/images")
	images.GET("", h.ListImages)
	images.POST("", h.UploadImages)
	images.GET("/main", h.GetMainImage)
	images.PUT("/reorder", h.ReorderImages)
	images.PUT("/:imageId/main", h.SetMainImage)
	images.PUT("/:imageId", h.UpdateImageMetadata)
	images.DELETE("/:imageId", h.DeleteImage)
}

func (h *ImageHandler) ListImages(c *gin.Context) {
	vehicleID, ok := vehicleParam(c)
	if !ok {
		return
	}
	images, err := h.queries.ListImages(c.Request.Context(), cqrs.ListImagesQuery{VehicleID: vehicleID})
	if err != nil {
		respondError(c, err, "Failed to list images")
		return
	}
	c.JSON(http.StatusOK, images)
}

func (h *ImageHandler) GetMainImage(c *gin.Context) {
	vehicleID, ok := vehicleParam(c)
	if !ok {
		return
	}
	image, err := h.queries.GetMainImage(c.Request.Context(), cqrs.GetMainImageQuery{VehicleID: vehicleID})
	if err != nil {
		respondError(c, err, "Failed to get main image")
		return
	}
	c.JSON(http.StatusOK, image)
}

func (h *ImageHandler) UploadImages(c *gin.Context) {
	vehicleID, ok := vehicleParam(c)
	if !ok {
		return
	}
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.RespondWithError(c, http.StatusRequestEntityTooLarge, "The upload is too large.")
			return
		}
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			middleware.RespondWithValidationError(c, apperrors.Invalid("images", "The images field is required."))
			return
		}
		badRequest(c, "Invalid multipart body")
		return
	}

	requestedMain, err := utils.ParseBool(firstValue(form, "is_main"))
	if err != nil {
		middleware.RespondWithValidationError(c, apperrors.Invalid("is_main", "The is_main field must be true or false."))
		return
	}

	headers := form.File["images[]"]
	if len(headers) == 0 {
		headers = form.File["images"]
	}

	files := make([]cqrs.UploadFile, 0, len(headers))
	defer func() {
		for _, f := range files {
			if closer, ok := f.Content.(multipart.File); ok {
				closer.Close()
			}
		}
	}()
	for _, fh := range headers {
		content, err := fh.Open()
		if err != nil {
			badRequest(c, "Failed to read uploaded file")
			return
		}
		files = append(files, cqrs.UploadFile{OriginalName: fh.Filename, Size: fh.Size, Content: content})
	}

	images, err := h.commands.UploadImages(c.Request.Context(), cqrs.UploadImagesCommand{
		VehicleID:     vehicleID,
		Files:         files,
		RequestedMain: requestedMain,
	})
	if err != nil {
		respondError(c, err, "Failed to upload images")
		return
	}
	c.JSON(http.StatusCreated, images)
}

func (h *ImageHandler) SetMainImage(c *gin.Context) {
	vehicleID, imageID, ok := imageParams(c)
	if !ok {
		return
	}
	image, err := h.commands.SetMainImage(c.Request.Context(), cqrs.SetMainImageCommand{VehicleID: vehicleID, ImageID: imageID})
	if err != nil {
		respondError(c, err, "Failed to set main image")
		return
	}
	c.JSON(http.StatusOK, image)
}

func (h *ImageHandler) UpdateImageMetadata(c *gin.Context) {
	vehicleID, imageID, ok := imageParams(c)
	if !ok {
		return
	}

	var req UpdateImageMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	image, err := h.commands.UpdateImageMetadata(c.Request.Context(), cqrs.UpdateImageMetadataCommand{
		VehicleID:    vehicleID,
		ImageID:      imageID,
		OriginalName: req.OriginalName,
		IsMain:       req.IsMain,
	})
	if err != nil {
		respondError(c, err, "Failed to update image")
		return
	}
	c.JSON(http.StatusOK, image)
}

func (h *ImageHandler) DeleteImage(c *gin.Context) {
	vehicleID, imageID, ok := imageParams(c)
	if !ok {
		return
	}
	if err := h.commands.DeleteImage(c.Request.Context(), cqrs.DeleteImageCommand{VehicleID: vehicleID, ImageID: imageID}); err != nil {
		respondError(c, err, "Failed to delete image")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Image deleted successfully"})
}

func (h *ImageHandler) ReorderImages(c *gin.Context) {
	vehicleID, ok := vehicleParam(c)
	if !ok {
		return
	}

	var req ReorderImagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	images, err := h.commands.ReorderImages(c.Request.Context(), cqrs.ReorderImagesCommand{VehicleID: vehicleID, Order: req.Order})
	if err != nil {
		respondError(c, err, "Failed to reorder images")
		return
	}
	c.JSON(http.StatusOK, ReorderImagesResponse{Message: "Images reordered successfully", Images: images})
}

// vehicleParam answers 404 itself when the path id is not a valid id.
func vehicleParam(c *gin.Context) (int64, bool) {
	id, ok := utils.ParseID(c.Param("id"))
	if !ok {
		middleware.RespondWithError(c, http.StatusNotFound, "Vehicle not found")
	}
	return id, ok
}

func imageParams(c *gin.Context) (int64, int64, bool) {
	vehicleID, ok := vehicleParam(c)
	if !ok {
		return 0, 0, false
	}
	imageID, ok := utils.ParseID(c.Param("imageId"))
	if !ok {
		middleware.RespondWithError(c, http.StatusNotFound, "Image not found")
		return 0, 0, false
	}
	return vehicleID, imageID, true
}

func firstValue(form *multipart.Form, key string) string {
	if values := form.Value[key]; len(values) > 0 {
		return values[0]
	}
	return ""
}
