package controllers

import (
	"net/http"
	"time"

	"github.com/angelmondragon/kiosk-backend/api/middleware"
	"github.com/angelmondragon/kiosk-backend/api/responses"
	"github.com/angelmondragon/kiosk-backend/api/validators"
	"github.com/angelmondragon/kiosk-backend/internal/notifications"
	"github.com/angelmondragon/kiosk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kiosk-backend/pkg/errors"
	"github.com/angelmondragon/kiosk-backend/pkg/logger"
	"github.com/google/uuid"
)

const (
	maxPageLimit     = 100
	defaultPageLimit = 0 // unpaged unless the client asks
)

type sendNotificationRequest struct {
	Type        string     `json:"type" validate:"required"`
	Action      string     `json:"action" validate:"required"`
	Content     any        `json:"content" validate:"required"`
	RecipientID *uuid.UUID `json:"recipientID,omitempty"`
	EventID     *uuid.UUID `json:"eventID,omitempty"`
	// Store is persisted-by-default; a client sends false for fire-and-forget
	// messages that should reach live connections but never the feed.
	Store *bool `json:"store,omitempty"`
}

type markSeenRequest struct {
	LastSeenDate time.Time `json:"lastSeenDate"`
}

func caller(r *http.Request) (uuid.UUID, string, error) {
	personID, err := uuid.Parse(middleware.PersonIDFromContext(r.Context()))
	if err != nil {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	orgGuid := middleware.OrgGuidFromContext(r.Context())
	if orgGuid == "" {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	return personID, orgGuid, nil
}

func pageFromQuery(r *http.Request) (notifications.PageParams, error) {
	limit, err := validators.ParseQueryInt(r, "limit", defaultPageLimit, 0, maxPageLimit)
	if err != nil {
		return notifications.PageParams{}, err
	}
	page, err := validators.ParseQueryInt(r, "page", 0, 0, 1<<20)
	if err != nil {
		return notifications.PageParams{}, err
	}
	return notifications.PageParams{Limit: limit, Page: page}, nil
}

// OrgNotifications returns the caller's unseen organization notifications.
func OrgNotifications(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		personID, orgGuid, err := caller(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := pageFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items, err := svc.UnseenOrg(r.Context(), personID, orgGuid, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

// EventNotifications returns notifications scoped to one event.
func EventNotifications(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		personID, orgGuid, err := caller(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		eventID, err := validators.ParseQueryUUID(r, "event")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := pageFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items, err := svc.EventNotifications(r.Context(), personID, orgGuid, eventID, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

// SendNotification publishes and stores a notification for the caller's org.
func SendNotification(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		personID, orgGuid, err := caller(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req sendNotificationRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		messageType, err := enums.ParseNotificationType(req.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid notification type"))
			return
		}

		notification, err := svc.Send(r.Context(), notifications.SendParams{
			PosterID:    personID,
			OrgGuid:     orgGuid,
			RecipientID: req.RecipientID,
			EventID:     req.EventID,
			Message: notifications.Message{
				Type:    messageType,
				Action:  req.Action,
				Content: req.Content,
			},
			Store: req.Store == nil || *req.Store,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, notification)
	}
}

// MarkNotificationsSeen advances the caller's last-seen watermark.
func MarkNotificationsSeen(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		personID, orgGuid, err := caller(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req markSeenRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.MarkSeen(r.Context(), personID, orgGuid, req.LastSeenDate); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}
