package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name   string
		env    string
		allow  []string
		origin string
		want   string
	}{
		{"dev allows any", "dev", nil, "http://evil.test", "http://evil.test"},
		{"prod same host", "prod", nil, "http://example.com", "http://example.com"},
		{"prod listed", "prod", []string{"https://desk.example.org"}, "https://desk.example.org", "https://desk.example.org"},
		{"prod foreign", "prod", []string{"https://desk.example.org"}, "http://evil.test", ""},
		{"prod suffix trick", "prod", nil, "http://example.com.evil.test", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(CORS(tt.env, tt.allow))
			r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
			req := httptest.NewRequest(http.MethodGet, "http://example.com/x", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCORS_Preflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS("dev", nil))
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(NewLimiters(Policy{Rate: 0, Burst: 2}, time.Minute), "/free"))
	r.GET("/limited", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/free", func(c *gin.Context) { c.Status(http.StatusOK) })

	hit := func(path string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.0.0.1:5555"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	for i := 0; i < 2; i++ {
		if code := hit("/limited"); code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, code)
		}
	}
	if code := hit("/limited"); code != http.StatusTooManyRequests {
		t.Errorf("over burst status = %d, want 429", code)
	}
	for i := 0; i < 5; i++ {
		if code := hit("/free"); code != http.StatusOK {
			t.Errorf("skipped route status = %d, want 200", code)
		}
	}
}

func TestLimiters_PerKeyBucketsAndSweep(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiters(Policy{Rate: 0, Burst: 1}, time.Minute)
	l.now = func() time.Time { return now }
	defer l.Stop()

	if !l.Allow("conn-a") || l.Allow("conn-a") {
		t.Fatal("conn-a should get exactly one token")
	}
	if !l.Allow("conn-b") {
		t.Error("conn-b should have its own bucket")
	}
	if l.Get("conn-a") != l.Get("conn-a") {
		t.Error("Get() should return the same bucket for a key")
	}

	now = now.Add(30 * time.Second)
	l.Get("conn-b")
	now = now.Add(45 * time.Second)
	if n := l.Sweep(); n != 1 || l.Len() != 1 {
		t.Errorf("Sweep() removed %d, left %d; want 1 and 1", n, l.Len())
	}
	if !l.Allow("conn-a") {
		t.Error("a swept key should start with a full bucket")
	}

	l.Forget("conn-b")
	if l.Len() != 1 {
		t.Errorf("Len() after Forget = %d, want 1", l.Len())
	}
	l.Stop()
}
