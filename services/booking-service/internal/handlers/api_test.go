package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/gobarber/libs/auth"
	"github.com/md-rashed-zaman/gobarber/libs/httpx"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/notifications"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/scheduling"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/storage"
)

const testSecret = "test-secret"

type stubScheduler struct {
	err      error
	lastBook scheduling.BookCommand
	lastList scheduling.ListQuery
	lastCan  scheduling.CancelCommand
}

func (s *stubScheduler) Book(_ context.Context, cmd scheduling.BookCommand) (model.Appointment, error) {
	s.lastBook = cmd
	if s.err != nil {
		return model.Appointment{}, s.err
	}
	return model.Appointment{ID: 7, RequesterID: cmd.CallerID, ProviderID: cmd.ProviderID, Date: cmd.Date}, nil
}

func (s *stubScheduler) List(_ context.Context, q scheduling.ListQuery) ([]model.AppointmentListing, error) {
	s.lastList = q
	return []model.AppointmentListing{}, s.err
}

func (s *stubScheduler) Cancel(_ context.Context, cmd scheduling.CancelCommand) (model.Appointment, error) {
	s.lastCan = cmd
	if s.err != nil {
		return model.Appointment{}, s.err
	}
	now := time.Now()
	return model.Appointment{ID: cmd.AppointmentID, CanceledAt: &now}, nil
}

type stubFeed struct{ err error }

func (f stubFeed) List(_ context.Context, recipientID int64) ([]model.Notification, error) {
	return []model.Notification{{ID: "n1", RecipientID: recipientID, Content: "hi"}}, f.err
}

func (f stubFeed) MarkRead(_ context.Context, recipientID int64, id string) (model.Notification, error) {
	if f.err != nil {
		return model.Notification{}, f.err
	}
	return model.Notification{ID: id, RecipientID: recipientID, Read: true}, nil
}

type stubUsers map[int64]model.User

func (u stubUsers) FindUser(_ context.Context, id int64) (model.User, error) {
	if usr, ok := u[id]; ok {
		return usr, nil
	}
	return model.User{}, storage.ErrNotFound
}

func newTestServer(t *testing.T, sched *stubScheduler, feed stubFeed) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := stubUsers{1: {ID: 1, Name: "Ana"}, 2: {ID: 2, Name: "Bruno", Provider: true}}
	mux := http.NewServeMux()
	NewAPI(sched, feed, users, logger).Register(mux, auth.Middleware(testSecret, logger))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path string, caller int64, body string) (*http.Response, httpx.ErrorBody) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if caller > 0 {
		token, err := auth.SignHS256(caller, testSecret, time.Hour)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var eb httpx.ErrorBody
	_ = json.Unmarshal(raw, &eb)
	return resp, eb
}

func TestBookAppointment_OK(t *testing.T) {
	sched := &stubScheduler{}
	srv := newTestServer(t, sched, stubFeed{})
	resp, _ := do(t, srv, http.MethodPost, "/api/v1/appointments", 1, `{"provider_id":2,"date":"2026-03-05T10:00:00Z"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if sched.lastBook.CallerID != 1 || sched.lastBook.ProviderID != 2 {
		t.Fatalf("unexpected command %+v", sched.lastBook)
	}
}

func TestBookAppointment_BadInput(t *testing.T) {
	srv := newTestServer(t, &stubScheduler{}, stubFeed{})
	for _, body := range []string{
		`{"provider_id":2}`,
		`{"date":"2026-03-05T10:00:00Z"}`,
		`{"provider_id":2,"date":"tomorrow"}`,
		`{"provider_id":2,"date":"2026-03-05T10:00:00Z","extra":1}`,
	} {
		resp, eb := do(t, srv, http.MethodPost, "/api/v1/appointments", 1, body)
		if resp.StatusCode != http.StatusBadRequest || eb.Error == "" {
			t.Fatalf("%s: expected 400 with error body, got %d %+v", body, resp.StatusCode, eb)
		}
	}
}

func TestRoutes_RequireToken(t *testing.T) {
	srv := newTestServer(t, &stubScheduler{}, stubFeed{})
	resp, eb := do(t, srv, http.MethodGet, "/api/v1/appointments", 0, "")
	if resp.StatusCode != http.StatusUnauthorized || eb.Error == "" {
		t.Fatalf("expected 401, got %d %+v", resp.StatusCode, eb)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{scheduling.ErrNotAProvider, http.StatusUnauthorized},
		{scheduling.ErrSelfBooking, http.StatusUnauthorized},
		{scheduling.ErrPastDate, http.StatusBadRequest},
		{scheduling.ErrSlotUnavailable, http.StatusBadRequest},
		{scheduling.ErrNotFound, http.StatusNotFound},
		{scheduling.ErrAlreadyCanceled, http.StatusNotFound},
		{scheduling.ErrForbidden, http.StatusUnauthorized},
		{scheduling.ErrCancellationWindowClosed, http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		srv := newTestServer(t, &stubScheduler{err: tc.err}, stubFeed{})
		resp, eb := do(t, srv, http.MethodDelete, "/api/v1/appointments/5", 1, "")
		if resp.StatusCode != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, resp.StatusCode)
		}
		if tc.want == http.StatusInternalServerError && strings.Contains(eb.Error, "boom") {
			t.Fatal("internal errors must not leak")
		}
	}
}

func TestCancelAppointment_PathAndPaging(t *testing.T) {
	sched := &stubScheduler{}
	srv := newTestServer(t, sched, stubFeed{})

	resp, _ := do(t, srv, http.MethodDelete, "/api/v1/appointments/42", 1, "")
	if resp.StatusCode != http.StatusOK || sched.lastCan.AppointmentID != 42 {
		t.Fatalf("cancel: %d %+v", resp.StatusCode, sched.lastCan)
	}
	resp, _ = do(t, srv, http.MethodDelete, "/api/v1/appointments/abc", 1, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", resp.StatusCode)
	}

	resp, _ = do(t, srv, http.MethodGet, "/api/v1/appointments?page=3", 1, "")
	if resp.StatusCode != http.StatusOK || sched.lastList.Page != 3 {
		t.Fatalf("list: %d %+v", resp.StatusCode, sched.lastList)
	}
	resp, _ = do(t, srv, http.MethodGet, "/api/v1/appointments?page=x", 1, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad page, got %d", resp.StatusCode)
	}
}

func TestNotifications_ProviderOnly(t *testing.T) {
	srv := newTestServer(t, &stubScheduler{}, stubFeed{})

	resp, _ := do(t, srv, http.MethodGet, "/api/v1/notifications", 2, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("provider: expected 200, got %d", resp.StatusCode)
	}
	resp, eb := do(t, srv, http.MethodGet, "/api/v1/notifications", 1, "")
	if resp.StatusCode != http.StatusUnauthorized || eb.Error != errProviderOnly.Error() {
		t.Fatalf("customer: expected 401, got %d %+v", resp.StatusCode, eb)
	}
	resp, _ = do(t, srv, http.MethodGet, "/api/v1/notifications", 99, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unknown user: expected 401, got %d", resp.StatusCode)
	}
}

func TestMarkNotificationRead(t *testing.T) {
	srv := newTestServer(t, &stubScheduler{}, stubFeed{})
	resp, _ := do(t, srv, http.MethodPut, "/api/v1/notifications/abc", 2, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	srv = newTestServer(t, &stubScheduler{}, stubFeed{err: notifications.ErrNotFound})
	resp, _ = do(t, srv, http.MethodPut, "/api/v1/notifications/abc", 2, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
