package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/enrollment-backend/internal/http/response"
)

const rawBodyKey = "raw_body"

// CaptureRawBody reads the request body once, up to maxBytes, keeps the bytes
// on the gin context and restores Request.Body for binding.
func CaptureRawBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body == nil {
			c.Set(rawBodyKey, []byte{})
			c.Next()
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.AbortError(c, http.StatusRequestEntityTooLarge, "body_too_large", err)
				return
			}
			response.AbortError(c, http.StatusBadRequest, "invalid_body", err)
			return
		}
		c.Set(rawBodyKey, body)
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}

// RawBody returns the bytes captured by CaptureRawBody, reading the body
// directly when the middleware did not run.
func RawBody(c *gin.Context) ([]byte, error) {
	if v, ok := c.Get(rawBodyKey); ok {
		if b, ok := v.([]byte); ok {
			return b, nil
		}
	}
	if c.Request.Body == nil {
		return []byte{}, nil
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, err
	}
	c.Set(rawBodyKey, body)
	return body, nil
}
