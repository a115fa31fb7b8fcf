package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	var seen string
	r.GET("/ping", func(c *gin.Context) {
		v, _ := c.Get(requestIDKey)
		seen, _ = v.(string)
		c.Status(http.StatusNoContent)
	})

	// Generated when absent.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	rid := w.Header().Get(requestIDHeader)
	if rid == "" || rid != seen {
		t.Fatalf("generated id mismatch: header=%q ctx=%q", rid, seen)
	}

	// Reused when the client supplies one.
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(requestIDHeader, "client-supplied-1")
	r.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != "client-supplied-1" {
		t.Fatalf("expected propagated id, got %q", got)
	}
	if seen != "client-supplied-1" {
		t.Fatalf("ctx id = %q", seen)
	}
}

func TestLogger_AttachesRequestScopedLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Logger())
	var hadLogger bool
	r.GET("/ping", func(c *gin.Context) {
		_, hadLogger = c.Get("logger")
		lg := LoggerFrom(c)
		if lg == nil {
			t.Error("LoggerFrom returned nil")
		}
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping?q=1", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	if !hadLogger {
		t.Fatalf("request-scoped logger not attached")
	}
}

func TestLoggerFrom_FallbackWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if LoggerFrom(c) == nil {
		t.Fatalf("expected fallback logger, got nil")
	}
}

func TestRecovery_PanicBecomesJSON500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "internal_error") || !strings.Contains(body, "request_id") {
		t.Fatalf("unexpected body: %s", body)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatalf("missing %s on panic response", requestIDHeader)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 10); got != "hello" {
		t.Fatalf("truncate short = %q", got)
	}
	if got := truncate("hello", 0); got != "hello" {
		t.Fatalf("truncate disabled = %q", got)
	}
	if got := truncate("hello-world", 5); got != "hello…" {
		t.Fatalf("truncate long = %q", got)
	}
}

func TestAsString(t *testing.T) {
	if got := asString("x"); got != "x" {
		t.Fatalf("asString(string) = %q", got)
	}
	if got := asString(42); got != "" {
		t.Fatalf("asString(int) = %q", got)
	}
	if got := asString(nil); got != "" {
		t.Fatalf("asString(nil) = %q", got)
	}
}
