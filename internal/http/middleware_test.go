package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Veirt/weathr/internal/lifecycle"
	"github.com/Veirt/weathr/internal/observability"
	"github.com/Veirt/weathr/internal/traffic"
)

func newTestRouter(sess Session, limiter *rate.Limiter, outcomes *traffic.Tracker) http.Handler {
	handler := NewHandler(sess, nil, zap.NewNop())
	return NewRouter(handler, zap.NewNop(), RouterConfig{RefreshLimiter: limiter, Outcomes: outcomes})
}

func TestMiddleware_CorrelationIDGenerated(t *testing.T) {
	lifecycle.Reset()
	router := newTestRouter(&fakeSession{snap: readySnapshot()}, nil, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/weather", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Header().Get("X-Correlation-ID") == "" {
		t.Error("X-Correlation-ID header missing")
	}
}

func TestMiddleware_CorrelationIDPropagatedToErrors(t *testing.T) {
	router := newTestRouter(&fakeSession{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/weather", nil)
	req.Header.Set("X-Correlation-ID", "client-provided-id")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Correlation-ID"); got != "client-provided-id" {
		t.Errorf("X-Correlation-ID = %q, want client-provided-id", got)
	}
	if id := decodeError(t, w)["requestId"]; id != "client-provided-id" {
		t.Errorf("requestId = %v, want client-provided-id", id)
	}
}

func TestMiddleware_MethodNotAllowed(t *testing.T) {
	router := newTestRouter(&fakeSession{snap: readySnapshot()}, nil, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/refresh", nil))

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /refresh status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestMiddleware_RateLimitsRefresh(t *testing.T) {
	lifecycle.Reset()
	outcomes := traffic.New()
	sess := &fakeSession{snap: readySnapshot(), refreshOK: true}
	router := newTestRouter(sess, rate.NewLimiter(rate.Every(time.Hour), 2), outcomes)

	var codes []int
	for i := 0; i < 4; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/refresh", nil))
		codes = append(codes, w.Code)
		if w.Code == http.StatusTooManyRequests {
			if code := decodeError(t, w)["code"]; code != "RATE_LIMITED" {
				t.Errorf("error code = %v, want RATE_LIMITED", code)
			}
			if w.Header().Get("Retry-After") != "3600" {
				t.Errorf("Retry-After = %q, want 3600", w.Header().Get("Retry-After"))
			}
		}
	}

	want := []int{http.StatusAccepted, http.StatusAccepted, http.StatusTooManyRequests, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("request %d status = %d, want %d", i, codes[i], want[i])
		}
	}
	if sess.refreshes != 2 {
		t.Errorf("Refresh() calls = %d, want 2", sess.refreshes)
	}
	if n := outcomes.DenialCount(time.Minute); n != 2 {
		t.Errorf("DenialCount() = %d, want 2", n)
	}
}

func TestMiddleware_RateLimitDoesNotApplyToReads(t *testing.T) {
	lifecycle.Reset()
	router := newTestRouter(&fakeSession{snap: readySnapshot()}, rate.NewLimiter(rate.Every(time.Hour), 1), nil)

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/weather", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("GET /weather #%d status = %d, want 200", i, w.Code)
		}
	}
}

func TestMiddleware_MetricsExposed(t *testing.T) {
	lifecycle.Reset()
	router := newTestRouter(&fakeSession{snap: readySnapshot()}, nil, nil)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/weather", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "httpRequestsTotal") {
		t.Error("metrics missing httpRequestsTotal")
	}
	if !strings.Contains(body, `route="/weather"`) {
		t.Error("metrics missing route=\"/weather\" label")
	}
}

func TestTimeoutMiddleware_SetsDeadline(t *testing.T) {
	var hasDeadline bool
	h := TimeoutMiddleware(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !hasDeadline {
		t.Error("request context has no deadline")
	}
}

func TestCorrelationIDMiddleware_LoggerInContext(t *testing.T) {
	var id string
	var gotLogger bool
	h := CorrelationIDMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id = observability.CorrelationID(r.Context())
		gotLogger = observability.LoggerFromContext(r.Context(), nil) != nil
		_ = json.NewEncoder(w).Encode(map[string]string{"ok": "1"})
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if id == "" || id != w.Header().Get("X-Correlation-ID") {
		t.Errorf("context id = %q, header = %q, want equal and non-empty", id, w.Header().Get("X-Correlation-ID"))
	}
	if !gotLogger {
		t.Error("logger missing from context")
	}
}

func TestStatusCodeString(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{202, "2xx"},
		{409, "4xx"},
		{429, "4xx"},
		{503, "5xx"},
	}
	for _, tt := range tests {
		if got := statusCodeString(tt.code); got != tt.want {
			t.Errorf("statusCodeString(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
