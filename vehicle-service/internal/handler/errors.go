package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/dealerhub/platform/shared/apperrors"
	"github.com/dealerhub/platform/shared/middleware"
	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// respondError maps service errors onto the JSON error bodies the SPA reads.
// Unexpected failures are reported to Sentry; the client only gets fallback.
func respondError(c *gin.Context, err error, fallback string) {
	if verr, ok := apperrors.AsValidation(err); ok {
		middleware.RespondWithValidationError(c, verr)
		return
	}
	switch {
	case apperrors.IsNotFound(err):
		middleware.RespondWithError(c, http.StatusNotFound, err.Error())
	case isStorage(err):
		report(c, err)
		middleware.RespondWithError(c, http.StatusBadGateway, "Image storage is unavailable")
	default:
		report(c, err)
		middleware.RespondWithError(c, http.StatusInternalServerError, fallback)
	}
}

func isStorage(err error) bool {
	_, ok := apperrors.AsStorage(err)
	return ok
}

func report(c *gin.Context, err error) {
	log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	if errors.Is(err, context.Canceled) {
		return
	}
	hub := sentry.CurrentHub().Clone()
	hub.Scope().SetTag("route", c.FullPath())
	hub.CaptureException(err)
}

func badRequest(c *gin.Context, message string) {
	middleware.RespondWithError(c, http.StatusBadRequest, message)
}
