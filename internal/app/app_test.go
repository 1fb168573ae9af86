package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	repotest "github.com/yungbote/enrollment-backend/internal/data/repos/testutil"
	"github.com/yungbote/enrollment-backend/internal/domain/jobs"
	"github.com/yungbote/enrollment-backend/internal/observability"
	"github.com/yungbote/enrollment-backend/internal/services"
)

func testConfig(mode services.PaymentMode) Config {
	return Config{
		Port:             "8080",
		PaymentMode:      mode,
		PublicBaseURL:    "http://localhost:8080",
		AdminJWTSecret:   "admin-test",
		HealthThresholds: observability.DefaultHealthThresholds(),
	}
}

func TestWireMockMode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := repotest.Logger(t)
	db := repotest.DB(t)
	cfg := testConfig(services.PaymentModeMock)

	clients, err := wireClients(log, cfg)
	if err != nil {
		t.Fatalf("wireClients: %v", err)
	}
	if clients.QueueSignal != nil || clients.Preferences != nil {
		t.Fatalf("mock mode without redis should wire no external clients")
	}

	svc, err := wireServices(db, log, cfg, wireRepos(db, log), clients, nil)
	if err != nil {
		t.Fatalf("wireServices: %v", err)
	}
	if _, ok := svc.JobRegistry.Get(jobs.JobTypePaymentWebhook); !ok {
		t.Fatalf("payment webhook pipeline not registered: %v", svc.JobRegistry.Types())
	}

	handlers := wireHandlers(log, cfg, svc)
	if handlers.MockCheckout == nil {
		t.Fatalf("mock checkout handler should be wired in mock mode")
	}
	server := wireServer(log, cfg, nil, handlers, wireMiddleware(log, cfg))

	rec := httptest.NewRecorder()
	server.Engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthcheck: want=200 got=%d", rec.Code)
	}

	rec = httptest.NewRecorder()
	server.Engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/queue", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("queue health on an empty queue: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	server.Engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/webhook-queue/stats", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("admin without token: want=401 got=%d", rec.Code)
	}
}

func TestWireMidtransMode(t *testing.T) {
	log := repotest.Logger(t)
	db := repotest.DB(t)
	cfg := testConfig(services.PaymentModeMidtrans)
	cfg.MidtransServerKey = "SB-Mid-server-test"

	clients, err := wireClients(log, cfg)
	if err != nil {
		t.Fatalf("wireClients: %v", err)
	}
	if clients.Preferences == nil {
		t.Fatalf("midtrans mode should wire a preference client")
	}
	svc, err := wireServices(db, log, cfg, wireRepos(db, log), clients, nil)
	if err != nil {
		t.Fatalf("wireServices: %v", err)
	}
	if h := wireHandlers(log, cfg, svc); h.MockCheckout != nil {
		t.Fatalf("mock checkout must not be wired in midtrans mode")
	}
}

func TestWireServicesBadScheduleFile(t *testing.T) {
	log := repotest.Logger(t)
	db := repotest.DB(t)
	cfg := testConfig(services.PaymentModeMock)
	cfg.PricingScheduleFile = t.TempDir() + "/missing.yaml"

	if _, err := wireServices(db, log, cfg, wireRepos(db, log), Clients{}, nil); err == nil {
		t.Fatalf("missing pricing schedule should fail wiring")
	}
}
