package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/kiosk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kiosk-backend/pkg/errors"
	"github.com/angelmondragon/kiosk-backend/pkg/logger"
	"github.com/google/uuid"
)

// CreateParams carries the caller-supplied fields for a new event.
type CreateParams struct {
	OrgGuid   string    `json:"orgGuid" validate:"required"`
	Name      string    `json:"name" validate:"required"`
	Location  string    `json:"location"`
	StartDate time.Time `json:"startDate" validate:"required"`
	ManagerID uuid.UUID `json:"managerID" validate:"required"`
}

// Service exposes event operations.
type Service interface {
	Create(ctx context.Context, params CreateParams) (*Event, error)
	Get(ctx context.Context, id uuid.UUID) (*Event, error)
	List(ctx context.Context, orgGuid string) ([]Event, error)
	AddParticipant(ctx context.Context, eventID, personID uuid.UUID) error
	// CanAccess reports whether the person may receive channel traffic for the
	// event. Participant membership is checked before manager rights.
	CanAccess(ctx context.Context, eventID, personID uuid.UUID, role enums.MemberRole) (bool, error)
}

type serviceImpl struct {
	repo Repository
	logg *logger.Logger
}

// NewService constructs the events service.
func NewService(repo Repository, logg *logger.Logger) Service {
	return &serviceImpl{repo: repo, logg: logg}
}

func (s *serviceImpl) Create(ctx context.Context, params CreateParams) (*Event, error) {
	if strings.TrimSpace(params.OrgGuid) == "" || strings.TrimSpace(params.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event requires orgGuid and name")
	}
	if params.StartDate.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event requires a start date")
	}
	if params.ManagerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event requires a manager")
	}

	event := &Event{
		ID:           uuid.New(),
		OrgGuid:      params.OrgGuid,
		Name:         params.Name,
		Location:     params.Location,
		StartDate:    params.StartDate.UTC(),
		ManagerID:    params.ManagerID,
		Participants: []uuid.UUID{},
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to create event")
	}
	return event, nil
}

func (s *serviceImpl) Get(ctx context.Context, id uuid.UUID) (*Event, error) {
	event, err := s.repo.Get(ctx, id)
	if errors.Is(err, errNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to load event")
	}
	return event, nil
}

func (s *serviceImpl) List(ctx context.Context, orgGuid string) ([]Event, error) {
	events, err := s.repo.ListByOrg(ctx, orgGuid)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to list events")
	}
	return events, nil
}

func (s *serviceImpl) AddParticipant(ctx context.Context, eventID, personID uuid.UUID) error {
	err := s.repo.AddParticipant(ctx, eventID, personID)
	if errors.Is(err, errNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to add participant")
	}
	return nil
}

func (s *serviceImpl) CanAccess(ctx context.Context, eventID, personID uuid.UUID, role enums.MemberRole) (bool, error) {
	ok, err := s.repo.IsParticipant(ctx, eventID, personID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to check event participants")
	}
	if ok {
		return true, nil
	}

	if !role.CanManage() {
		return false, nil
	}
	if role == enums.MemberRoleAdmin {
		// Admins see every event in their organization.
		return true, nil
	}
	ok, err = s.repo.IsManager(ctx, eventID, personID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to check event manager")
	}
	return ok, nil
}
