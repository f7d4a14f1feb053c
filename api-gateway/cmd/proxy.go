package main

import (
	"io"
	"net/http"
	"time"

	"github.com/dealerhub/platform/shared/middleware"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var upstream = &http.Client{Timeout: 2 * time.Minute}

// hopHeaders are connection-scoped and must not be forwarded.
var hopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// proxyTo forwards the request unchanged, streaming bodies in both
// directions so multipart uploads are not buffered here.
func proxyTo(serviceURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Build target URL
		targetURL := serviceURL + c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			targetURL += "?" + c.Request.URL.RawQuery
		}

		req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, targetURL, c.Request.Body)
		if err != nil {
			middleware.RespondWithError(c, http.StatusInternalServerError, "Failed to create request")
			return
		}
		req.ContentLength = c.Request.ContentLength
		copyHeaders(req.Header, c.Request.Header)
		req.Header.Set("X-Forwarded-For", c.ClientIP())

		resp, err := upstream.Do(req)
		if err != nil {
			log.Error().Err(err).Str("target", targetURL).Msg("error proxying request")
			middleware.RespondWithError(c, http.StatusBadGateway, "Service unavailable")
			return
		}
		defer resp.Body.Close()

		copyHeaders(c.Writer.Header(), resp.Header)
		c.Status(resp.StatusCode)
		if _, err := io.Copy(c.Writer, resp.Body); err != nil {
			log.Warn().Err(err).Str("target", targetURL).Msg("response copy interrupted")
		}
	}
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		if hopHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}
