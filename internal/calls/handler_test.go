package calls

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"callscreen_backend/internal/carrier"
	"callscreen_backend/internal/detector"
	"callscreen_backend/internal/events"
	"callscreen_backend/platform/httpkit"
	"callscreen_backend/platform/logger"
	"callscreen_backend/platform/validator"
)

type handlerFixture struct {
	engine *gin.Engine
	store  *MemoryStore
	dialer *stubDialer
	userID uuid.UUID
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := NewMemoryStore()
	dialer := &stubDialer{result: carrier.DialResult{CarrierCallID: "CA777"}}
	log := logger.New("development")
	bus := events.NewInMemoryBus(log)
	val := validator.New()
	userID := uuid.New()

	service := NewService(store, dialer, stubCarrierConfig{configured: true}, bus, log)
	query := NewQueryService(store, log)
	reconciler := NewReconciler(store, detector.NewRegistry(), &captureDispatcher{}, NoopDeduper{}, bus, log)
	reconciler.lookupAttempts = 1
	reconciler.lookupDelay = time.Millisecond
	handler := NewHandler(service, query, reconciler, val, log)

	engine := gin.New()
	v1 := engine.Group("/api/v1")
	protected := v1.Group("")
	protected.Use(func(c *gin.Context) {
		if c.GetHeader("Authorization") == "Bearer test-token" {
			c.Set(httpkit.ContextUserIDKey, userID)
		}
		c.Next()
	})

	callsGroup := protected.Group("/calls")
	callsGroup.POST("/dial", handler.Dial)
	callsGroup.GET("", handler.List)
	callsGroup.GET("/aggregate", handler.Aggregate)
	callsGroup.GET("/:id/status", handler.GetStatus)
	callsGroup.DELETE("/:id", handler.Delete)

	webhooks := v1.Group("/webhooks/calls")
	webhooks.POST("/status", handler.StatusWebhook)
	webhooks.POST("/amd", handler.StatusWebhook)
	webhooks.POST("/recording", handler.RecordingWebhook)

	return &handlerFixture{engine: engine, store: store, dialer: dialer, userID: userID}
}

func (f *handlerFixture) request(t *testing.T, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer test-token")
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func (f *handlerFixture) postWebhook(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func TestDialEndpoint_CreatesCall(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.request(t, http.MethodPost, "/api/v1/calls/dial", `{"phoneNumber": "+14155550100", "strategy": "heuristic"}`, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["status"] != "initiated" || resp["amdStrategy"] != "heuristic" {
		t.Fatalf("unexpected response %v", resp)
	}
	if resp["carrierCallId"] != "CA777" {
		t.Fatalf("expected carrier call id in response, got %v", resp["carrierCallId"])
	}
}

func TestDialEndpoint_RequiresAuth(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.request(t, http.MethodPost, "/api/v1/calls/dial", `{"phoneNumber": "+14155550100", "strategy": "heuristic"}`, false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestDialEndpoint_ValidationErrors(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.request(t, http.MethodPost, "/api/v1/calls/dial", `{"strategy": "heuristic"}`, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing phone, got %d", rec.Code)
	}

	rec = f.request(t, http.MethodPost, "/api/v1/calls/dial", `{"phoneNumber": "+14155550100", "strategy": "telepathy"}`, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad strategy, got %d", rec.Code)
	}
}

func TestStatusEndpoint_PollingAfterWebhook(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.request(t, http.MethodPost, "/api/v1/calls/dial", `{"phoneNumber": "+14155550100", "strategy": "native"}`, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var created map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &created)
	callID := created["id"].(string)

	form := url.Values{}
	form.Set("CallSid", "CA777")
	form.Set("CallStatus", "completed")
	form.Set("CallDuration", "42")
	whRec := f.postWebhook(t, "/api/v1/webhooks/calls/status?callId="+callID, form)
	if whRec.Code != http.StatusOK {
		t.Fatalf("webhook must ack 200, got %d", whRec.Code)
	}

	rec = f.request(t, http.MethodGet, "/api/v1/calls/"+callID+"/status", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var status map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &status)
	if status["status"] != "completed" {
		t.Fatalf("expected completed, got %v", status["status"])
	}
	if status["duration"] != float64(42) {
		t.Fatalf("expected duration 42, got %v", status["duration"])
	}
}

func TestWebhooks_AlwaysAck(t *testing.T) {
	f := newHandlerFixture(t)

	// Unknown call.
	form := url.Values{}
	form.Set("CallStatus", "completed")
	if rec := f.postWebhook(t, "/api/v1/webhooks/calls/status?callId="+uuid.NewString(), form); rec.Code != http.StatusOK {
		t.Fatalf("unknown call must still ack 200, got %d", rec.Code)
	}

	// Garbage call ID.
	if rec := f.postWebhook(t, "/api/v1/webhooks/calls/status?callId=garbage", form); rec.Code != http.StatusOK {
		t.Fatalf("garbage callId must still ack 200, got %d", rec.Code)
	}

	// Missing call ID entirely.
	if rec := f.postWebhook(t, "/api/v1/webhooks/calls/recording", url.Values{}); rec.Code != http.StatusOK {
		t.Fatalf("missing callId must still ack 200, got %d", rec.Code)
	}
}

func TestDeleteEndpoint(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.request(t, http.MethodPost, "/api/v1/calls/dial", `{"phoneNumber": "+14155550100", "strategy": "heuristic"}`, true)
	var created map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &created)
	callID := created["id"].(string)

	if rec := f.request(t, http.MethodDelete, "/api/v1/calls/"+callID, "", true); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := f.request(t, http.MethodDelete, "/api/v1/calls/"+callID, "", true); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestListEndpoint_Pagination(t *testing.T) {
	f := newHandlerFixture(t)
	for i := 0; i < 3; i++ {
		if rec := f.request(t, http.MethodPost, "/api/v1/calls/dial", `{"phoneNumber": "+14155550100", "strategy": "heuristic"}`, true); rec.Code != http.StatusCreated {
			t.Fatalf("seed dial failed: %d", rec.Code)
		}
	}

	rec := f.request(t, http.MethodGet, "/api/v1/calls?page=1&pageSize=2", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Calls    []map[string]any `json:"calls"`
		Total    int              `json:"total"`
		Page     int              `json:"page"`
		PageSize int              `json:"pageSize"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Total != 3 || len(resp.Calls) != 2 || resp.Page != 1 || resp.PageSize != 2 {
		t.Fatalf("unexpected page %+v", resp)
	}
}
