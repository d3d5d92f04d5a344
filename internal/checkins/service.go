package checkins

import (
	"context"
	"strings"
	"time"

	"github.com/angelmondragon/kiosk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kiosk-backend/pkg/errors"
	"github.com/angelmondragon/kiosk-backend/pkg/logger"
	"github.com/google/uuid"
)

// CreateParams carries the caller-supplied fields for a new check-in.
type CreateParams struct {
	EventID  uuid.UUID
	PersonID uuid.UUID
	OrgGuid  string
	Status   enums.CheckinStatus
}

// Service exposes check-in operations.
type Service interface {
	Create(ctx context.Context, params CreateParams) (*Checkin, error)
	List(ctx context.Context, eventID uuid.UUID) ([]Checkin, error)
	Stats(ctx context.Context, eventID uuid.UUID) (*Stats, error)
}

type serviceImpl struct {
	repo Repository
	logg *logger.Logger
}

// NewService constructs the check-ins service.
func NewService(repo Repository, logg *logger.Logger) Service {
	return &serviceImpl{repo: repo, logg: logg}
}

func (s *serviceImpl) Create(ctx context.Context, params CreateParams) (*Checkin, error) {
	if params.EventID == uuid.Nil || params.PersonID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "check-in requires event and person")
	}
	if strings.TrimSpace(params.OrgGuid) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "check-in requires an organization")
	}
	status := params.Status
	if status == "" {
		status = enums.CheckinStatusCheckedIn
	}
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid check-in status")
	}

	existing, err := s.repo.FindActive(ctx, params.EventID, params.PersonID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to check existing check-in")
	}
	if existing != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "person is already checked in")
	}

	checkin := &Checkin{
		ID:          uuid.New(),
		EventID:     params.EventID,
		PersonID:    params.PersonID,
		OrgGuid:     params.OrgGuid,
		Status:      status,
		CheckedInAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, checkin); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to create check-in")
	}
	return checkin, nil
}

func (s *serviceImpl) List(ctx context.Context, eventID uuid.UUID) ([]Checkin, error) {
	checkins, err := s.repo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to list check-ins")
	}
	return checkins, nil
}

func (s *serviceImpl) Stats(ctx context.Context, eventID uuid.UUID) (*Stats, error) {
	stats, err := s.repo.Stats(ctx, eventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to aggregate check-in stats")
	}
	return stats, nil
}
