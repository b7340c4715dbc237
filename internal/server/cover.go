package server

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
)

const (
	defaultCoverWidth = 600
	maxCoverWidth     = 2000
)

// handleCover proxies a provider cover image, downscaled to the
// requested width and re-encoded as JPEG. Upstream covers vary wildly
// in size and format; clients get a predictable artifact.
func (s *Server) handleCover(c *gin.Context) {
	rawURL := c.Query("url")
	if rawURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url must be absolute http(s)"})
		return
	}

	width := defaultCoverWidth
	if raw := c.Query("width"); raw != "" {
		width, err = strconv.Atoi(raw)
		if err != nil || width <= 0 || width > maxCoverWidth {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("width must be 1-%d", maxCoverWidth)})
			return
		}
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, rawURL, nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid url"})
		return
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Warn("Cover fetch failed", "url", rawURL, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "cover fetch failed"})
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("upstream returned %d", resp.StatusCode)})
		return
	}

	img, err := imaging.Decode(resp.Body, imaging.AutoOrientation(true))
	if err != nil {
		s.logger.Warn("Cover decode failed", "url", rawURL, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "cover decode failed"})
		return
	}

	if img.Bounds().Dx() > width {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cover encode failed"})
		return
	}

	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, "image/jpeg", buf.Bytes())
}
