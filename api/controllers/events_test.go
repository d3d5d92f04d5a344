package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/angelmondragon/kiosk-backend/internal/checkins"
	"github.com/angelmondragon/kiosk-backend/internal/events"
	"github.com/angelmondragon/kiosk-backend/pkg/enums"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type fakeEventsService struct {
	createFn         func(ctx context.Context, params events.CreateParams) (*events.Event, error)
	getFn            func(ctx context.Context, id uuid.UUID) (*events.Event, error)
	listFn           func(ctx context.Context, orgGuid string) ([]events.Event, error)
	addParticipantFn func(ctx context.Context, eventID, personID uuid.UUID) error
	canAccessFn      func(ctx context.Context, eventID, personID uuid.UUID, role enums.MemberRole) (bool, error)
}

func (f *fakeEventsService) Create(ctx context.Context, params events.CreateParams) (*events.Event, error) {
	return f.createFn(ctx, params)
}
func (f *fakeEventsService) Get(ctx context.Context, id uuid.UUID) (*events.Event, error) {
	return f.getFn(ctx, id)
}
func (f *fakeEventsService) List(ctx context.Context, orgGuid string) ([]events.Event, error) {
	return f.listFn(ctx, orgGuid)
}
func (f *fakeEventsService) AddParticipant(ctx context.Context, eventID, personID uuid.UUID) error {
	return f.addParticipantFn(ctx, eventID, personID)
}
func (f *fakeEventsService) CanAccess(ctx context.Context, eventID, personID uuid.UUID, role enums.MemberRole) (bool, error) {
	return f.canAccessFn(ctx, eventID, personID, role)
}

type fakeCheckinsService struct {
	createFn func(ctx context.Context, params checkins.CreateParams) (*checkins.Checkin, error)
	listFn   func(ctx context.Context, eventID uuid.UUID) ([]checkins.Checkin, error)
	statsFn  func(ctx context.Context, eventID uuid.UUID) (*checkins.Stats, error)
}

func (f *fakeCheckinsService) Create(ctx context.Context, params checkins.CreateParams) (*checkins.Checkin, error) {
	return f.createFn(ctx, params)
}
func (f *fakeCheckinsService) List(ctx context.Context, eventID uuid.UUID) ([]checkins.Checkin, error) {
	return f.listFn(ctx, eventID)
}
func (f *fakeCheckinsService) Stats(ctx context.Context, eventID uuid.UUID) (*checkins.Stats, error) {
	return f.statsFn(ctx, eventID)
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestCreateEventRequiresManager(t *testing.T) {
	handler := CreateEvent(&fakeEventsService{}, testLogger())

	body, _ := json.Marshal(map[string]any{"name": "demo", "startDate": time.Now()})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest(http.MethodPost, "/events", body, uuid.New(), enums.MemberRoleAttendee))

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", w.Code)
	}
}

func TestCreateEventSetsManagerFromCaller(t *testing.T) {
	personID := uuid.New()
	svc := &fakeEventsService{
		createFn: func(ctx context.Context, params events.CreateParams) (*events.Event, error) {
			if params.ManagerID != personID {
				t.Fatalf("manager should come from the token, got %s", params.ManagerID)
			}
			if params.OrgGuid != "org-1" {
				t.Fatalf("unexpected org %s", params.OrgGuid)
			}
			return &events.Event{ID: uuid.New(), OrgGuid: params.OrgGuid, Name: params.Name}, nil
		},
	}
	handler := CreateEvent(svc, testLogger())

	body, _ := json.Marshal(map[string]any{
		"name":      "  launch night  ",
		"startDate": time.Date(2026, 9, 12, 18, 0, 0, 0, time.UTC),
	})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest(http.MethodPost, "/events", body, personID, enums.MemberRoleManager))

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetEventHidesForeignOrgs(t *testing.T) {
	eventID := uuid.New()
	svc := &fakeEventsService{
		getFn: func(ctx context.Context, id uuid.UUID) (*events.Event, error) {
			return &events.Event{ID: id, OrgGuid: "org-2"}, nil
		},
	}
	handler := GetEvent(svc, testLogger())

	req := authedRequest(http.MethodGet, "/events/"+eventID.String(), nil, uuid.New(), enums.MemberRoleAttendee)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, withURLParam(req, "id", eventID.String()))

	if w.Code != http.StatusNotFound {
		t.Fatalf("foreign events must read as missing, got %d", w.Code)
	}
}

func TestCreateCheckinDefaultsToCaller(t *testing.T) {
	personID := uuid.New()
	eventID := uuid.New()
	eventsSvc := &fakeEventsService{
		getFn: func(ctx context.Context, id uuid.UUID) (*events.Event, error) {
			return &events.Event{ID: id, OrgGuid: "org-1"}, nil
		},
		addParticipantFn: func(ctx context.Context, eid, pid uuid.UUID) error {
			if pid != personID {
				t.Fatalf("participant should be the caller, got %s", pid)
			}
			return nil
		},
	}
	checkinsSvc := &fakeCheckinsService{
		createFn: func(ctx context.Context, params checkins.CreateParams) (*checkins.Checkin, error) {
			if params.PersonID != personID {
				t.Fatalf("check-in should target the caller, got %s", params.PersonID)
			}
			return &checkins.Checkin{ID: uuid.New(), EventID: params.EventID, PersonID: params.PersonID}, nil
		},
	}
	handler := CreateCheckin(eventsSvc, checkinsSvc, testLogger())

	req := authedRequest(http.MethodPost, "/events/"+eventID.String()+"/checkin", []byte(`{}`), personID, enums.MemberRoleAttendee)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, withURLParam(req, "id", eventID.String()))

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateCheckinForOthersRequiresManager(t *testing.T) {
	eventID := uuid.New()
	other := uuid.New()
	handler := CreateCheckin(&fakeEventsService{}, &fakeCheckinsService{}, testLogger())

	body, _ := json.Marshal(map[string]any{"personID": other})
	req := authedRequest(http.MethodPost, "/events/"+eventID.String()+"/checkin", body, uuid.New(), enums.MemberRoleAttendee)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, withURLParam(req, "id", eventID.String()))

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", w.Code)
	}
}

func TestEventStatsRequiresManager(t *testing.T) {
	eventID := uuid.New()
	handler := EventStats(&fakeEventsService{}, &fakeCheckinsService{}, testLogger())

	req := authedRequest(http.MethodGet, "/events/"+eventID.String()+"/stats", nil, uuid.New(), enums.MemberRoleAttendee)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, withURLParam(req, "id", eventID.String()))

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", w.Code)
	}
}

func TestEventStatsReturnsAggregates(t *testing.T) {
	eventID := uuid.New()
	eventsSvc := &fakeEventsService{
		getFn: func(ctx context.Context, id uuid.UUID) (*events.Event, error) {
			return &events.Event{ID: id, OrgGuid: "org-1"}, nil
		},
	}
	checkinsSvc := &fakeCheckinsService{
		statsFn: func(ctx context.Context, id uuid.UUID) (*checkins.Stats, error) {
			return &checkins.Stats{
				EventID: id,
				Total:   4,
				ByStatus: map[enums.CheckinStatus]int64{
					enums.CheckinStatusCheckedIn: 3,
					enums.CheckinStatusWalkIn:    1,
				},
			}, nil
		},
	}
	handler := EventStats(eventsSvc, checkinsSvc, testLogger())

	req := authedRequest(http.MethodGet, "/events/"+eventID.String()+"/stats", nil, uuid.New(), enums.MemberRoleAdmin)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, withURLParam(req, "id", eventID.String()))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
}
