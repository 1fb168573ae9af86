package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/enrollment-backend/internal/http/response"
	"github.com/yungbote/enrollment-backend/internal/platform/logger"
)

const HeaderSignature = "X-Signature"

var errBadSignature = errors.New("invalid webhook signature")

// SignBody returns the hex HMAC-SHA256 of body under secret.
func SignBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature checks X-Signature against the raw body. An empty
// secret disables the check. Must run after CaptureRawBody.
func VerifyWebhookSignature(baseLog *logger.Logger, secret string) gin.HandlerFunc {
	log := baseLog.With("middleware", "WebhookSignature")
	secret = strings.TrimSpace(secret)
	if secret == "" {
		log.Warn("webhook signature verification disabled: no signing secret configured")
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		body, err := RawBody(c)
		if err != nil {
			response.AbortError(c, http.StatusBadRequest, "invalid_body", err)
			return
		}
		got, err := hex.DecodeString(strings.TrimSpace(c.GetHeader(HeaderSignature)))
		if err != nil || len(got) == 0 {
			log.Warn("webhook rejected: missing or malformed signature", "client_ip", c.ClientIP())
			response.AbortError(c, http.StatusUnauthorized, "invalid_signature", errBadSignature)
			return
		}
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		if !hmac.Equal(mac.Sum(nil), got) {
			log.Warn("webhook rejected: signature mismatch", "client_ip", c.ClientIP())
			response.AbortError(c, http.StatusUnauthorized, "invalid_signature", errBadSignature)
			return
		}
		c.Next()
	}
}
