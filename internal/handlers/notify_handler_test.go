package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"rent_notifications/internal/service"

	"github.com/go-chi/chi/v5"
)

type fakeDispatcher struct {
	summary  *service.RunSummary
	err      error
	lastDays int
}

func (f *fakeDispatcher) RunRentDue(ctx context.Context) (*service.RunSummary, error) {
	return f.summary, f.err
}

func (f *fakeDispatcher) RunContractExpiry(ctx context.Context, days int) (*service.RunSummary, error) {
	f.lastDays = days
	return f.summary, f.err
}

type fakeReminders struct {
	results []service.ReminderResult
}

func (f *fakeReminders) Run(ctx context.Context) []service.ReminderResult {
	return f.results
}

func newTestRouter(d DispatchRunner, rem ReminderRunner, secret string) http.Handler {
	h := NewNotifyHandler(d, rem, 30, nil)
	r := chi.NewRouter()
	RegisterNotificationRoutes(r, h, RequireCronSecret(secret, nil))
	return r
}

func doGet(t *testing.T, h http.Handler, url, token string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json %q: %v", rr.Body.String(), err)
	}
	return rr, body
}

func TestRentDueResponseShape(t *testing.T) {
	d := &fakeDispatcher{summary: &service.RunSummary{
		PropertiesFound:              3,
		TenantsSent:                  2,
		OwnersSent:                   2,
		OwnersWithMultipleProperties: 1,
	}}
	h := newTestRouter(d, &fakeReminders{}, "")

	rr, body := doGet(t, h, "/api/notifications/rent-due", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if body["success"] != true || body["message"] != "SMS notifications sent" {
		t.Fatalf("body = %v", body)
	}
	if body["propertiesFound"] != float64(3) || body["tenantsSent"] != float64(2) {
		t.Fatalf("counts = %v", body)
	}
	if body["ownersWithMultipleProperties"] != float64(1) {
		t.Fatalf("counts = %v", body)
	}
}

func TestRentDueEmptyDayMessage(t *testing.T) {
	d := &fakeDispatcher{summary: &service.RunSummary{}}
	h := newTestRouter(d, &fakeReminders{}, "")

	rr, body := doGet(t, h, "/api/notifications/rent-due", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if body["message"] != "No properties due today" || body["propertiesFound"] != float64(0) {
		t.Fatalf("body = %v", body)
	}
}

func TestRentDueResolverFailure(t *testing.T) {
	d := &fakeDispatcher{err: errors.New("connection refused")}
	h := newTestRouter(d, &fakeReminders{}, "")

	rr, body := doGet(t, h, "/api/notifications/rent-due", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if body["error"] != "Failed to fetch properties" || body["details"] == nil {
		t.Fatalf("body = %v", body)
	}
}

func TestContractsExpiringDaysParam(t *testing.T) {
	d := &fakeDispatcher{summary: &service.RunSummary{PropertiesFound: 1, TenantsSent: 1}}
	h := newTestRouter(d, &fakeReminders{}, "")

	rr, body := doGet(t, h, "/api/notifications/contracts-expiring?days=15", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if d.lastDays != 15 {
		t.Fatalf("days = %d, want 15", d.lastDays)
	}
	if body["contractsFound"] != float64(1) {
		t.Fatalf("body = %v", body)
	}

	// Default threshold when the param is absent.
	doGet(t, h, "/api/notifications/contracts-expiring", "")
	if d.lastDays != 30 {
		t.Fatalf("default days = %d, want 30", d.lastDays)
	}
}

func TestContractsExpiringRejectsBadDays(t *testing.T) {
	d := &fakeDispatcher{summary: &service.RunSummary{}}
	h := newTestRouter(d, &fakeReminders{}, "")

	for _, q := range []string{"days=0", "days=-3", "days=abc"} {
		rr, body := doGet(t, h, "/api/notifications/contracts-expiring?"+q, "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", q, rr.Code)
		}
		if body["error"] == nil {
			t.Errorf("%s: body = %v", q, body)
		}
	}
}

func TestRemindersResponse(t *testing.T) {
	rem := &fakeReminders{results: []service.ReminderResult{
		{Type: "due_today", Count: 2},
		{Type: "overdue_1_day", Count: 1},
	}}
	h := newTestRouter(&fakeDispatcher{}, rem, "")

	rr, body := doGet(t, h, "/api/notifications/reminders", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if body["success"] != true {
		t.Fatalf("body = %v", body)
	}
	list, ok := body["notifications"].([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("notifications = %v", body["notifications"])
	}
	first := list[0].(map[string]any)
	if first["type"] != "due_today" || first["count"] != float64(2) {
		t.Fatalf("first = %v", first)
	}
}
