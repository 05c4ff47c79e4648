package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"inventory/internal/catalog"
	"inventory/internal/clock"
	intconfig "inventory/internal/config"
	"inventory/internal/domain"
	"inventory/internal/domain/models"
	"inventory/internal/holdtoken"
	h "inventory/internal/http/handlers"
	"inventory/internal/ledger"
	"inventory/internal/repositories"
	"inventory/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	clock  *clock.Manual
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cat, err := catalog.NewStatic(
		models.Resource{ID: "R1", Name: "Deluxe", Capacity: 2, BasePrice: 100, Currency: "IDR"},
		models.Resource{ID: "FL-1", Name: "CGK-DPS", Kind: models.ResourceKindSeatBlock, Capacity: 3, BasePrice: 1000},
	)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	store := repositories.NewMemoryInventory()
	clk := clock.NewManual(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	inv := &h.Inventory{
		Availability: services.NewAvailabilityService(cat, ledger.New(store), nil),
		Holds:        services.NewHoldService(store, cat, clk),
		Tokens:       holdtoken.NewIssuer("test-secret", clk),
		Store:        store,
	}
	return &testServer{router: NewRouter(intconfig.Env{}, inv), clock: clk}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func holdBody(start, end string, qty int) map[string]any {
	return map[string]any{"resourceId": "R1", "startDate": start, "endDate": end, "quantity": qty}
}

func TestHoldLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/holds", holdBody("2024-06-01", "2024-06-04", 2), nil)
	expectStatus(t, rec, http.StatusCreated)
	first := decode[h.HoldDTO](t, rec)
	if first.Status != "HELD" || first.HoldID == "" || first.HoldToken == "" {
		t.Fatalf("unexpected hold: %+v", first)
	}
	if first.ExpiresAt != nil {
		t.Fatalf("expected no deadline without ttl, got %v", *first.ExpiresAt)
	}

	rec = s.do(t, http.MethodPost, "/holds", holdBody("2024-06-02", "2024-06-03", 1), nil)
	expectStatus(t, rec, http.StatusConflict)
	rejected := decode[h.ErrorResponse](t, rec)
	if rejected.Error != "CapacityExceeded" {
		t.Fatalf("expected CapacityExceeded, got %+v", rejected)
	}
	if !reflect.DeepEqual(rejected.UnavailableDates, []string{"2024-06-02"}) {
		t.Fatalf("unexpected unavailable dates %v", rejected.UnavailableDates)
	}

	token := map[string]string{"X-Hold-Token": first.HoldToken}
	rec = s.do(t, http.MethodPost, "/holds/"+first.HoldID+"/release", nil, token)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[h.HoldDTO](t, rec).Status; got != "RELEASED" {
		t.Fatalf("expected RELEASED, got %s", got)
	}

	rec = s.do(t, http.MethodPost, "/holds/"+first.HoldID+"/release", nil, token)
	expectStatus(t, rec, http.StatusOK)

	rec = s.do(t, http.MethodPost, "/holds", holdBody("2024-06-02", "2024-06-03", 1), nil)
	expectStatus(t, rec, http.StatusCreated)
	second := decode[h.HoldDTO](t, rec)

	rec = s.do(t, http.MethodPost, "/holds/"+second.HoldID+"/commit", nil, nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[h.HoldDTO](t, rec).Status; got != "COMMITTED" {
		t.Fatalf("expected COMMITTED, got %s", got)
	}

	rec = s.do(t, http.MethodPost, "/holds/"+first.HoldID+"/commit", nil, nil)
	expectStatus(t, rec, http.StatusConflict)
	if got := decode[h.ErrorResponse](t, rec).Error; got != "InvalidState" {
		t.Fatalf("expected InvalidState, got %s", got)
	}
}

func TestCommitAfterDeadlineExpiresHold(t *testing.T) {
	s := newTestServer(t)
	body := holdBody("2024-06-01", "2024-06-02", 1)
	body["holdTtlSeconds"] = 60

	rec := s.do(t, http.MethodPost, "/api/holds", body, nil)
	expectStatus(t, rec, http.StatusCreated)
	hold := decode[h.HoldDTO](t, rec)
	if hold.ExpiresAt == nil || *hold.ExpiresAt != "2024-05-01T09:01:00Z" {
		t.Fatalf("unexpected deadline %v", hold.ExpiresAt)
	}

	s.clock.Advance(2 * time.Minute)
	rec = s.do(t, http.MethodPost, "/api/holds/"+hold.HoldID+"/commit", nil, nil)
	expectStatus(t, rec, http.StatusConflict)

	rec = s.do(t, http.MethodGet, "/api/holds/"+hold.HoldID, nil, nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[h.HoldDTO](t, rec).Status; got != "EXPIRED" {
		t.Fatalf("expected EXPIRED, got %s", got)
	}
}

func TestHoldTokenMismatchRejected(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/holds", holdBody("2024-06-01", "2024-06-02", 1), nil)
	expectStatus(t, rec, http.StatusCreated)
	a := decode[h.HoldDTO](t, rec)
	rec = s.do(t, http.MethodPost, "/holds", holdBody("2024-06-02", "2024-06-03", 1), nil)
	expectStatus(t, rec, http.StatusCreated)
	b := decode[h.HoldDTO](t, rec)

	rec = s.do(t, http.MethodPost, "/holds/"+a.HoldID+"/release", nil, map[string]string{"X-Hold-Token": b.HoldToken})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = s.do(t, http.MethodGet, "/holds/"+a.HoldID, nil, nil)
	if got := decode[h.HoldDTO](t, rec).Status; got != "HELD" {
		t.Fatalf("hold must stay HELD after a rejected release, got %s", got)
	}
}

func TestIdempotencyKeyHeaderReplays(t *testing.T) {
	s := newTestServer(t)
	key := map[string]string{"Idempotency-Key": "order-42"}

	rec := s.do(t, http.MethodPost, "/holds", holdBody("2024-06-01", "2024-06-03", 1), key)
	expectStatus(t, rec, http.StatusCreated)
	first := decode[h.HoldDTO](t, rec)

	rec = s.do(t, http.MethodPost, "/holds", holdBody("2024-06-01", "2024-06-03", 1), key)
	expectStatus(t, rec, http.StatusCreated)
	if got := decode[h.HoldDTO](t, rec).HoldID; got != first.HoldID {
		t.Fatalf("expected replay of %s, got %s", first.HoldID, got)
	}

	rec = s.do(t, http.MethodPost, "/holds", holdBody("2024-06-01", "2024-06-03", 2), key)
	expectStatus(t, rec, http.StatusConflict)
	if got := decode[h.ErrorResponse](t, rec).Error; got != "Conflict" {
		t.Fatalf("expected Conflict, got %s", got)
	}
}

func TestCheckAvailabilityOverHTTP(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/availability/check", map[string]any{
		"resourceId": "R1", "startDate": "2024-06-01", "endDate": "2024-06-03", "quantity": 3,
	}, nil)
	expectStatus(t, rec, http.StatusOK)
	got := decode[models.AvailabilityResult](t, rec)
	if got.IsFullyAvailable {
		t.Fatalf("expected unavailable")
	}
	if !reflect.DeepEqual(got.UnavailableDates, []string{"2024-06-01", "2024-06-02"}) {
		t.Fatalf("unexpected unavailable dates %v", got.UnavailableDates)
	}
	if got.PricePerUnit != 200 || got.TotalPrice != 600 {
		t.Fatalf("unexpected prices %d/%d", got.PricePerUnit, got.TotalPrice)
	}
}

type calendarView struct {
	ResourceID string                    `json:"resourceId"`
	Dates      []models.DateAvailability `json:"dates"`
}

func TestUpdateDayAndCalendar(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPut, "/availability/R1/2024-06-02", map[string]any{"blocked": true, "priceOverride": 150}, nil)
	expectStatus(t, rec, http.StatusOK)
	day := decode[models.DateAvailability](t, rec)
	if !day.Blocked || day.Price != 150 || day.Sellable {
		t.Fatalf("unexpected day %+v", day)
	}

	rec = s.do(t, http.MethodGet, "/availability/R1?startDate=2024-06-01&endDate=2024-06-04", nil, nil)
	expectStatus(t, rec, http.StatusOK)
	cal := decode[calendarView](t, rec)
	if cal.ResourceID != "R1" || len(cal.Dates) != 3 {
		t.Fatalf("unexpected calendar %+v", cal)
	}
	if !cal.Dates[1].Blocked || cal.Dates[0].Blocked {
		t.Fatalf("expected only 2024-06-02 blocked: %+v", cal.Dates)
	}

	rec = s.do(t, http.MethodPost, "/holds", holdBody("2024-06-01", "2024-06-04", 1), nil)
	expectStatus(t, rec, http.StatusConflict)
	if got := decode[h.ErrorResponse](t, rec).UnavailableDates; !reflect.DeepEqual(got, []string{"2024-06-02"}) {
		t.Fatalf("unexpected unavailable dates %v", got)
	}
}

func TestSeatBlockSingleDate(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/holds", map[string]any{"resourceId": "FL-1", "startDate": "2024-07-10", "quantity": 3}, nil)
	expectStatus(t, rec, http.StatusCreated)
	hold := decode[h.HoldDTO](t, rec)
	if hold.StartDate != "2024-07-10" || hold.EndDate != "2024-07-11" {
		t.Fatalf("unexpected departure range %s..%s", hold.StartDate, hold.EndDate)
	}

	rec = s.do(t, http.MethodPost, "/holds", map[string]any{"resourceId": "FL-1", "startDate": "2024-07-10", "endDate": "2024-07-12", "quantity": 1}, nil)
	expectStatus(t, rec, http.StatusBadRequest)
	if got := decode[h.ErrorResponse](t, rec).Error; got != "InvalidRange" {
		t.Fatalf("expected InvalidRange, got %s", got)
	}
}

func TestRequestErrors(t *testing.T) {
	s := newTestServer(t)
	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"empty body", http.MethodPost, "/holds", nil, http.StatusBadRequest, "ValidationError"},
		{"malformed json", http.MethodPost, "/holds", "{not json", http.StatusBadRequest, "ValidationError"},
		{"bad date", http.MethodPost, "/holds", holdBody("2024-13-01", "2024-06-02", 1), http.StatusBadRequest, "InvalidRange"},
		{"reversed range", http.MethodPost, "/availability/check", holdBody("2024-06-03", "2024-06-01", 1), http.StatusBadRequest, "InvalidRange"},
		{"zero quantity", http.MethodPost, "/holds", holdBody("2024-06-01", "2024-06-02", 0), http.StatusBadRequest, "InvalidRange"},
		{"unknown resource", http.MethodPost, "/holds", map[string]any{"resourceId": "nope", "startDate": "2024-06-01", "endDate": "2024-06-02", "quantity": 1}, http.StatusNotFound, "NotFound"},
		{"unknown hold", http.MethodGet, "/holds/does-not-exist", nil, http.StatusNotFound, "NotFound"},
		{"bad day param", http.MethodPut, "/availability/R1/June", map[string]any{"blocked": true}, http.StatusBadRequest, "InvalidRange"},
		{"negative ttl", http.MethodPost, "/holds", map[string]any{"resourceId": "R1", "startDate": "2024-06-01", "endDate": "2024-06-02", "quantity": 1, "holdTtlSeconds": -5}, http.StatusBadRequest, "ValidationError"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, tc.method, tc.path, tc.body, nil)
			expectStatus(t, rec, tc.status)
			resp := decode[h.ErrorResponse](t, rec)
			if resp.Error != tc.code {
				t.Fatalf("expected %s, got %+v", tc.code, resp)
			}
			if resp.RequestID == "" {
				t.Fatalf("expected request_id in error payload")
			}
		})
	}
}

type downStore struct{}

func (downStore) Ping(context.Context) error {
	return domain.StorageUnavailableError{Op: "ping", Err: errors.New("connection refused")}
}

func TestDBCheckUnavailableSetsRetryAfter(t *testing.T) {
	r := NewRouter(intconfig.Env{}, &h.Inventory{Store: downStore{}})
	req := httptest.NewRequest(http.MethodGet, "/api/db-check", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	expectStatus(t, rec, http.StatusServiceUnavailable)
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	if got := decode[h.ErrorResponse](t, rec).Error; got != "StorageUnavailable" {
		t.Fatalf("expected StorageUnavailable, got %s", got)
	}
}

func TestSystemRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", nil, map[string]string{"X-Request-ID": "abc-123"})
	expectStatus(t, rec, http.StatusOK)
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Fatalf("expected request id echoed, got %q", got)
	}

	rec = s.do(t, http.MethodGet, "/api/db-check", nil, nil)
	expectStatus(t, rec, http.StatusOK)

	rec = s.do(t, http.MethodGet, "/metrics", nil, nil)
	expectStatus(t, rec, http.StatusOK)

	rec = s.do(t, http.MethodGet, "/api/routes", nil, nil)
	expectStatus(t, rec, http.StatusOK)

	rec = s.do(t, http.MethodGet, "/nowhere", nil, nil)
	expectStatus(t, rec, http.StatusNotFound)
}
