package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/kiosk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kiosk-backend/pkg/errors"
	"github.com/angelmondragon/kiosk-backend/pkg/logger"
	"github.com/angelmondragon/kiosk-backend/pkg/metrics"
	"github.com/google/uuid"
)

// Publisher pushes a payload onto a named channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// SendParams carries the caller-supplied fields for a new notification.
// Store controls persistence only; the message is published either way.
type SendParams struct {
	PosterID    uuid.UUID
	OrgGuid     string
	RecipientID *uuid.UUID
	EventID     *uuid.UUID
	Message     Message
	Store       bool
}

// PageParams narrows list responses. A zero Limit disables pagination.
type PageParams struct {
	Limit int
	Page  int
}

// Service defines notification send/list operations.
type Service interface {
	Send(ctx context.Context, params SendParams) (*Notification, error)
	Get(ctx context.Context, id uuid.UUID) (*Notification, error)
	UnseenOrg(ctx context.Context, personID uuid.UUID, orgGuid string, page PageParams) ([]Notification, error)
	EventNotifications(ctx context.Context, personID uuid.UUID, orgGuid string, eventID uuid.UUID, page PageParams) ([]Notification, error)
	MarkSeen(ctx context.Context, personID uuid.UUID, orgGuid string, at time.Time) error
}

type service struct {
	repo      Repository
	transport Publisher
	metrics   *metrics.SocketMetrics
	logg      *logger.Logger
	now       func() time.Time
}

// NewService wires notification dependencies.
func NewService(repo Repository, transport Publisher, socketMetrics *metrics.SocketMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if transport == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications transport required")
	}
	return &service{
		repo:      repo,
		transport: transport,
		metrics:   socketMetrics,
		logg:      logg,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Send(ctx context.Context, params SendParams) (*Notification, error) {
	if err := validateSend(params); err != nil {
		return nil, err
	}

	notification := &Notification{
		ID:          uuid.New(),
		OrgGuid:     params.OrgGuid,
		PosterID:    params.PosterID,
		RecipientID: params.RecipientID,
		EventID:     params.EventID,
		Message:     params.Message,
		DatePosted:  s.now(),
	}
	channelID := channelFor(notification)

	payload, err := json.Marshal(ChannelPayload{
		NotificationID: notification.ID,
		Channel:        channelID,
		PosterID:       notification.PosterID,
		RecipientID:    notification.RecipientID,
		Message:        notification.Message,
		DatePosted:     notification.DatePosted,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding notification payload")
	}

	ctx = s.logg.WithChannel(ctx, channelID)
	publishErr := s.transport.Publish(ctx, channelID, payload)
	if publishErr != nil {
		s.logg.Error(ctx, "failed to publish notification", publishErr)
	} else {
		s.metrics.IncPublished(string(notification.Message.Type))
	}

	// Persistence is decoupled from delivery: a storage outage must not
	// silence the live fan-out, and vice versa.
	if params.Store {
		if err := s.repo.Insert(ctx, notification); err != nil {
			s.logg.Error(ctx, "failed to persist notification", err)
		}
	}

	if publishErr != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, publishErr, "publish notification")
	}
	return notification, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Notification, error) {
	notification, err := s.repo.Get(ctx, id)
	if errors.Is(err, errNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load notification")
	}
	return notification, nil
}

func (s *service) UnseenOrg(ctx context.Context, personID uuid.UUID, orgGuid string, page PageParams) ([]Notification, error) {
	if personID == uuid.Nil || strings.TrimSpace(orgGuid) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "person and organization required")
	}

	watermark, err := s.repo.GetLastSeen(ctx, personID, orgGuid)
	if errors.Is(err, errNotFound) {
		// First visit: start the watermark now so the next call only
		// returns notifications posted after this point.
		if err := s.repo.UpsertLastSeen(ctx, personID, orgGuid, s.now()); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "initialize last-seen watermark")
		}
		return []Notification{}, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load last-seen watermark")
	}

	after := watermark.LastSeenDate
	items, err := s.repo.List(ctx, ListFilter{
		PersonID: personID,
		OrgGuid:  orgGuid,
		Type:     enums.NotificationTypeOrg,
		After:    &after,
		Limit:    page.Limit,
		Page:     page.Page,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list organization notifications")
	}
	return items, nil
}

func (s *service) EventNotifications(ctx context.Context, personID uuid.UUID, orgGuid string, eventID uuid.UUID, page PageParams) ([]Notification, error) {
	if personID == uuid.Nil || strings.TrimSpace(orgGuid) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "person and organization required")
	}
	if eventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event required")
	}

	items, err := s.repo.List(ctx, ListFilter{
		PersonID: personID,
		OrgGuid:  orgGuid,
		Type:     enums.NotificationTypeEvent,
		EventID:  &eventID,
		Limit:    page.Limit,
		Page:     page.Page,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list event notifications")
	}
	return items, nil
}

func (s *service) MarkSeen(ctx context.Context, personID uuid.UUID, orgGuid string, at time.Time) error {
	if personID == uuid.Nil || strings.TrimSpace(orgGuid) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "person and organization required")
	}
	if at.IsZero() {
		at = s.now()
	}
	if err := s.repo.UpsertLastSeen(ctx, personID, orgGuid, at); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update last-seen watermark")
	}
	return nil
}

func validateSend(params SendParams) error {
	if params.PosterID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification requires a poster")
	}
	if strings.TrimSpace(params.OrgGuid) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification requires an organization")
	}
	msg := params.Message
	if !msg.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid notification type")
	}
	if strings.TrimSpace(msg.Action) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification message requires an action")
	}
	if msg.Content == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification message requires content")
	}
	if msg.Type == enums.NotificationTypeEvent && params.EventID == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "event notifications require an event")
	}
	return nil
}

// channelFor picks the fan-out channel: event notifications ride the event
// channel, everything else the organization channel.
func channelFor(notification *Notification) string {
	if notification.Message.Type == enums.NotificationTypeEvent && notification.EventID != nil {
		return notification.EventID.String()
	}
	return notification.OrgGuid
}
