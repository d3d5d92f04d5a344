package events

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/kiosk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kiosk-backend/pkg/errors"
	"github.com/angelmondragon/kiosk-backend/pkg/logger"
	"github.com/google/uuid"
)

type fakeRepo struct {
	createFn         func(ctx context.Context, event *Event) error
	getFn            func(ctx context.Context, id uuid.UUID) (*Event, error)
	listByOrgFn      func(ctx context.Context, orgGuid string) ([]Event, error)
	addParticipantFn func(ctx context.Context, eventID, personID uuid.UUID) error
	isParticipantFn  func(ctx context.Context, eventID, personID uuid.UUID) (bool, error)
	isManagerFn      func(ctx context.Context, eventID, personID uuid.UUID) (bool, error)
}

func (f *fakeRepo) Create(ctx context.Context, event *Event) error { return f.createFn(ctx, event) }
func (f *fakeRepo) Get(ctx context.Context, id uuid.UUID) (*Event, error) {
	return f.getFn(ctx, id)
}
func (f *fakeRepo) ListByOrg(ctx context.Context, orgGuid string) ([]Event, error) {
	return f.listByOrgFn(ctx, orgGuid)
}
func (f *fakeRepo) AddParticipant(ctx context.Context, eventID, personID uuid.UUID) error {
	return f.addParticipantFn(ctx, eventID, personID)
}
func (f *fakeRepo) IsParticipant(ctx context.Context, eventID, personID uuid.UUID) (bool, error) {
	return f.isParticipantFn(ctx, eventID, personID)
}
func (f *fakeRepo) IsManager(ctx context.Context, eventID, personID uuid.UUID) (bool, error) {
	return f.isManagerFn(ctx, eventID, personID)
}

func newTestService(repo Repository) Service {
	return NewService(repo, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(&fakeRepo{})

	cases := []struct {
		name   string
		params CreateParams
	}{
		{"missing org", CreateParams{Name: "demo day", StartDate: time.Now(), ManagerID: uuid.New()}},
		{"missing name", CreateParams{OrgGuid: "org-1", StartDate: time.Now(), ManagerID: uuid.New()}},
		{"missing start date", CreateParams{OrgGuid: "org-1", Name: "demo day", ManagerID: uuid.New()}},
		{"missing manager", CreateParams{OrgGuid: "org-1", Name: "demo day", StartDate: time.Now()}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.params)
			appErr := pkgerrors.As(err)
			if appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreatePersistsEvent(t *testing.T) {
	var stored *Event
	repo := &fakeRepo{
		createFn: func(ctx context.Context, event *Event) error {
			stored = event
			return nil
		},
	}
	svc := newTestService(repo)

	managerID := uuid.New()
	event, err := svc.Create(context.Background(), CreateParams{
		OrgGuid:   "org-1",
		Name:      "launch night",
		Location:  "hall b",
		StartDate: time.Date(2026, 9, 12, 18, 0, 0, 0, time.UTC),
		ManagerID: managerID,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored == nil || stored.ID != event.ID {
		t.Fatal("expected event to be persisted")
	}
	if event.ID == uuid.Nil {
		t.Fatal("expected a generated event id")
	}
	if event.ManagerID != managerID {
		t.Fatalf("unexpected manager id %s", event.ManagerID)
	}
	if event.Participants == nil {
		t.Fatal("expected participants to be initialized")
	}
}

func TestGetMapsNotFound(t *testing.T) {
	repo := &fakeRepo{
		getFn: func(ctx context.Context, id uuid.UUID) (*Event, error) {
			return nil, errNotFound
		},
	}
	svc := newTestService(repo)

	_, err := svc.Get(context.Background(), uuid.New())
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestCanAccessChecksParticipantFirst(t *testing.T) {
	managerCalled := false
	repo := &fakeRepo{
		isParticipantFn: func(ctx context.Context, eventID, personID uuid.UUID) (bool, error) {
			return true, nil
		},
		isManagerFn: func(ctx context.Context, eventID, personID uuid.UUID) (bool, error) {
			managerCalled = true
			return false, nil
		},
	}
	svc := newTestService(repo)

	ok, err := svc.CanAccess(context.Background(), uuid.New(), uuid.New(), enums.MemberRoleAttendee)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected participant to have access")
	}
	if managerCalled {
		t.Fatal("manager check should be skipped for participants")
	}
}

func TestCanAccessFallsBackToManager(t *testing.T) {
	repo := &fakeRepo{
		isParticipantFn: func(ctx context.Context, eventID, personID uuid.UUID) (bool, error) {
			return false, nil
		},
		isManagerFn: func(ctx context.Context, eventID, personID uuid.UUID) (bool, error) {
			return true, nil
		},
	}
	svc := newTestService(repo)

	ok, err := svc.CanAccess(context.Background(), uuid.New(), uuid.New(), enums.MemberRoleManager)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected manager to have access")
	}
}

func TestCanAccessDeniesAttendeeOutsiders(t *testing.T) {
	repo := &fakeRepo{
		isParticipantFn: func(ctx context.Context, eventID, personID uuid.UUID) (bool, error) {
			return false, nil
		},
		isManagerFn: func(ctx context.Context, eventID, personID uuid.UUID) (bool, error) {
			t.Fatal("manager check should not run for attendees")
			return false, nil
		},
	}
	svc := newTestService(repo)

	ok, err := svc.CanAccess(context.Background(), uuid.New(), uuid.New(), enums.MemberRoleAttendee)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected access to be denied")
	}
}

func TestCanAccessAdminBypass(t *testing.T) {
	repo := &fakeRepo{
		isParticipantFn: func(ctx context.Context, eventID, personID uuid.UUID) (bool, error) {
			return false, nil
		},
	}
	svc := newTestService(repo)

	ok, err := svc.CanAccess(context.Background(), uuid.New(), uuid.New(), enums.MemberRoleAdmin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected admin to have access")
	}
}
