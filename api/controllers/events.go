package controllers

import (
	"net/http"
	"time"

	"github.com/angelmondragon/kiosk-backend/api/middleware"
	"github.com/angelmondragon/kiosk-backend/api/responses"
	"github.com/angelmondragon/kiosk-backend/api/validators"
	"github.com/angelmondragon/kiosk-backend/internal/checkins"
	"github.com/angelmondragon/kiosk-backend/internal/events"
	"github.com/angelmondragon/kiosk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kiosk-backend/pkg/errors"
	"github.com/angelmondragon/kiosk-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type createEventRequest struct {
	Name      string    `json:"name" validate:"required"`
	Location  string    `json:"location"`
	StartDate time.Time `json:"startDate" validate:"required"`
}

type createCheckinRequest struct {
	PersonID *uuid.UUID `json:"personID,omitempty"`
	Status   string     `json:"status,omitempty"`
}

func eventIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "event id must be a uuid")
	}
	return id, nil
}

func requireManager(r *http.Request) error {
	role := enums.MemberRole(middleware.RoleFromContext(r.Context()))
	if !role.CanManage() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "manager access required")
	}
	return nil
}

// ListEvents returns the caller's organization events.
func ListEvents(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, orgGuid, err := caller(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items, err := svc.List(r.Context(), orgGuid)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

// CreateEvent registers a new event managed by the caller.
func CreateEvent(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		personID, orgGuid, err := caller(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := requireManager(r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createEventRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		event, err := svc.Create(r.Context(), events.CreateParams{
			OrgGuid:   orgGuid,
			Name:      validators.SanitizeString(req.Name, 200),
			Location:  validators.SanitizeString(req.Location, 200),
			StartDate: req.StartDate,
			ManagerID: personID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, event)
	}
}

// GetEvent returns one event in the caller's organization.
func GetEvent(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, orgGuid, err := caller(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := eventIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		event, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if event.OrgGuid != orgGuid {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "event not found"))
			return
		}
		responses.WriteSuccess(w, event)
	}
}

// CreateCheckin records the caller (or a named person, for managers) as
// checked in to the event.
func CreateCheckin(eventsSvc events.Service, checkinsSvc checkins.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		personID, orgGuid, err := caller(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		eventID, err := eventIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createCheckinRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		subject := personID
		if req.PersonID != nil && *req.PersonID != personID {
			if err := requireManager(r); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			subject = *req.PersonID
		}

		event, err := eventsSvc.Get(r.Context(), eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if event.OrgGuid != orgGuid {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "event not found"))
			return
		}

		status := enums.CheckinStatus(req.Status)
		checkin, err := checkinsSvc.Create(r.Context(), checkins.CreateParams{
			EventID:  eventID,
			PersonID: subject,
			OrgGuid:  orgGuid,
			Status:   status,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := eventsSvc.AddParticipant(r.Context(), eventID, subject); err != nil {
			logg.Error(r.Context(), "failed to record event participant", err)
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, checkin)
	}
}

// ListCheckins returns the event's check-in log. Manager access required.
func ListCheckins(eventsSvc events.Service, checkinsSvc checkins.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, orgGuid, err := caller(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := requireManager(r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		eventID, err := eventIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		event, err := eventsSvc.Get(r.Context(), eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if event.OrgGuid != orgGuid {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "event not found"))
			return
		}

		items, err := checkinsSvc.List(r.Context(), eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

// EventStats returns aggregate check-in counts. Manager access required.
func EventStats(eventsSvc events.Service, checkinsSvc checkins.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, orgGuid, err := caller(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := requireManager(r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		eventID, err := eventIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		event, err := eventsSvc.Get(r.Context(), eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if event.OrgGuid != orgGuid {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "event not found"))
			return
		}

		stats, err := checkinsSvc.Stats(r.Context(), eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}
