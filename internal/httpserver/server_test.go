package httpserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestServer_Healthz(t *testing.T) {
	e := New(Options{})
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Fatalf("unexpected body %q", w.Body.String())
	}
}

func TestServer_MetricsOnlyWhenConfigured(t *testing.T) {
	e := New(Options{})
	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without metrics, got %d", w.Code)
	}

	e = New(Options{Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("turns_total 3\n"))
	})})
	w = httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "turns_total") {
		t.Fatalf("metrics not served: %d %q", w.Code, w.Body.String())
	}
}

type pingRoute struct{ token string }

func (p *pingRoute) Register(e *echo.Echo, authToken string) {
	p.token = authToken
	e.POST("/twilio/ping", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
}

func TestServer_RegistersRoutes(t *testing.T) {
	route := &pingRoute{}
	e := New(Options{TwilioAuthToken: "tok", Routes: []Route{route}})
	if route.token != "tok" {
		t.Fatalf("route got token %q", route.token)
	}
	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/twilio/ping", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
}

func TestServer_RecoversPanics(t *testing.T) {
	e := New(Options{})
	e.GET("/boom", func(echo.Context) error { panic("boom") })
	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}
