package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/enrollment-backend/internal/http/response"
	"github.com/yungbote/enrollment-backend/internal/platform/credential"
	"github.com/yungbote/enrollment-backend/internal/platform/logger"
)

const adminSubjectKey = "admin_subject"

type AdminAuth struct {
	log    *logger.Logger
	secret string
}

func NewAdminAuth(baseLog *logger.Logger, secret string) *AdminAuth {
	return &AdminAuth{log: baseLog.With("middleware", "AdminAuth"), secret: strings.TrimSpace(secret)}
}

// RequireAdmin rejects requests without a valid admin bearer token. With no
// secret configured every admin request is rejected.
func (a *AdminAuth) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.secret == "" {
			response.AbortError(c, http.StatusUnauthorized, "unauthorized", errors.New("admin access is not configured"))
			return
		}
		tokenString := bearerToken(c)
		if tokenString == "" {
			response.AbortError(c, http.StatusUnauthorized, "unauthorized", errors.New("missing or invalid token"))
			return
		}
		claims, err := credential.ParseAdminToken(a.secret, tokenString)
		if err != nil {
			status := http.StatusUnauthorized
			code := "unauthorized"
			if errors.Is(err, credential.ErrNotAdmin) {
				status, code = http.StatusForbidden, "forbidden"
			}
			a.log.Warn("admin request rejected", "path", c.FullPath(), "error", err)
			response.AbortError(c, status, code, err)
			return
		}
		c.Set(adminSubjectKey, claims.Subject)
		c.Next()
	}
}

// AdminSubject is the subject of the admin token that authorized c.
func AdminSubject(c *gin.Context) string {
	return c.GetString(adminSubjectKey)
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
