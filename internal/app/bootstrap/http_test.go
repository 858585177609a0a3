package bootstrap

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	appconfig "github.com/wolfman30/whatsapp-tour-booking/internal/config"
	"github.com/wolfman30/whatsapp-tour-booking/pkg/logging"
)

func TestBuildRouterWithoutInfraServesHealth(t *testing.T) {
	h := BuildRouter(&appconfig.Config{}, HTTPDeps{}, testLogger())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", nil))
	if rr.Code == http.StatusOK {
		t.Fatalf("expected webhook routes to be absent without infra")
	}
}

func TestWarnUnsignedWebhooks(t *testing.T) {
	var buf bytes.Buffer
	warnUnsignedWebhooks(&appconfig.Config{WhatsAppAppSecret: "app-secret"}, logging.NewWithWriter("warn", &buf))
	out := buf.String()
	if strings.Contains(out, "WHATSAPP_APP_SECRET") {
		t.Fatalf("unexpected whatsapp warning: %s", out)
	}
	if !strings.Contains(out, "STRIPE_WEBHOOK_SECRET not set") {
		t.Fatalf("expected stripe warning, got: %s", out)
	}

	buf.Reset()
	warnUnsignedWebhooks(&appconfig.Config{WhatsAppAppSecret: "a", StripeWebhookSecret: "whsec_x"}, logging.NewWithWriter("warn", &buf))
	if buf.Len() != 0 {
		t.Fatalf("expected no warnings, got: %s", buf.String())
	}
}
