package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/enrollment-backend/internal/platform/credential"
	"github.com/yungbote/enrollment-backend/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func adminRouter(t *testing.T, secret string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", NewAdminAuth(testLogger(t), secret).RequireAdmin(), func(c *gin.Context) {
		c.String(http.StatusOK, AdminSubject(c))
	})
	return r
}

func TestRequireAdmin(t *testing.T) {
	admin, err := credential.SignAdminToken("s3cret", "ops", time.Minute)
	if err != nil {
		t.Fatalf("SignAdminToken: %v", err)
	}

	cases := []struct {
		name   string
		secret string
		header string
		want   int
	}{
		{"valid", "s3cret", "Bearer " + admin, http.StatusOK},
		{"missing header", "s3cret", "", http.StatusUnauthorized},
		{"wrong secret", "other", "Bearer " + admin, http.StatusUnauthorized},
		{"not configured", "", "Bearer " + admin, http.StatusUnauthorized},
		{"basic scheme", "s3cret", "Basic abc", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			adminRouter(t, tc.secret).ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status: want=%d got=%d body=%s", tc.want, rec.Code, rec.Body.String())
			}
			if tc.want == http.StatusOK && rec.Body.String() != "ops" {
				t.Fatalf("subject: want=ops got=%q", rec.Body.String())
			}
			if tc.want != http.StatusOK && !strings.Contains(rec.Body.String(), `"code":"unauthorized"`) {
				t.Fatalf("error envelope: %s", rec.Body.String())
			}
		})
	}
}

func signatureRouter(t *testing.T, secret string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/hook", CaptureRawBody(1<<10), VerifyWebhookSignature(testLogger(t), secret), func(c *gin.Context) {
		// The body must still be readable after verification.
		b, _ := io.ReadAll(c.Request.Body)
		c.String(http.StatusOK, string(b))
	})
	return r
}

func TestVerifyWebhookSignature(t *testing.T) {
	body := `{"type":"payment","data":{"id":"1"}}`
	cases := []struct {
		name      string
		secret    string
		signature string
		want      int
	}{
		{"valid", "whsec", SignBody("whsec", []byte(body)), http.StatusOK},
		{"uppercase hex", "whsec", strings.ToUpper(SignBody("whsec", []byte(body))), http.StatusOK},
		{"wrong secret", "whsec", SignBody("other", []byte(body)), http.StatusUnauthorized},
		{"missing", "whsec", "", http.StatusUnauthorized},
		{"not hex", "whsec", "zz", http.StatusUnauthorized},
		{"disabled", "", "", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(body))
			if tc.signature != "" {
				req.Header.Set(HeaderSignature, tc.signature)
			}
			rec := httptest.NewRecorder()
			signatureRouter(t, tc.secret).ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status: want=%d got=%d", tc.want, rec.Code)
			}
			if tc.want == http.StatusOK && rec.Body.String() != body {
				t.Fatalf("body not restored: got=%q", rec.Body.String())
			}
		})
	}
}

func TestCaptureRawBodyRejectsOversizedBodies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/hook", CaptureRawBody(8), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(strings.Repeat("x", 64)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status: want=%d got=%d", http.StatusRequestEntityTooLarge, rec.Code)
	}
}

func TestAttachTraceContextEchoesIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "req-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Body.String() != "req-1" || rec.Header().Get("X-Request-Id") != "req-1" {
		t.Fatalf("request id: body=%q header=%q", rec.Body.String(), rec.Header().Get("X-Request-Id"))
	}
	if rec.Header().Get("X-Trace-Id") == "" {
		t.Fatalf("trace id should be generated")
	}
}

func TestAttachTraceContextReplacesMalformedIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	for _, bad := range []string{strings.Repeat("a", maxCorrelationIDLen+1), "has space", "tab\tid"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-Id", bad)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if got := rec.Header().Get("X-Request-Id"); got == bad || got == "" {
			t.Fatalf("malformed id %q should be replaced, got %q", bad, got)
		}
	}
}
