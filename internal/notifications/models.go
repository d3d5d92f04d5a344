package notifications

import (
	"time"

	"github.com/angelmondragon/kiosk-backend/pkg/enums"
	"github.com/google/uuid"
)

// Message is the caller-supplied body carried by every notification.
type Message struct {
	Type    enums.NotificationType `bson:"type" json:"type"`
	Action  string                 `bson:"action" json:"action"`
	Content any                    `bson:"content" json:"content"`
}

// Notification is the document persisted for each sent message.
type Notification struct {
	ID          uuid.UUID  `bson:"_id" json:"id"`
	OrgGuid     string     `bson:"org_guid" json:"orgGuid"`
	PosterID    uuid.UUID  `bson:"poster_id" json:"posterID"`
	RecipientID *uuid.UUID `bson:"recipient_id" json:"recipientID,omitempty"`
	EventID     *uuid.UUID `bson:"event_id,omitempty" json:"eventID,omitempty"`
	Message     Message    `bson:"message" json:"message"`
	DatePosted  time.Time  `bson:"date_posted" json:"datePosted"`
}

// LastSeen is the per-person watermark for organization notifications.
type LastSeen struct {
	PersonID     uuid.UUID `bson:"person_id" json:"personID"`
	OrgGuid      string    `bson:"org_guid" json:"orgGuid"`
	LastSeenDate time.Time `bson:"last_seen_date" json:"lastSeenDate"`
}

// ChannelPayload is the JSON document published to the transport for fan-out.
type ChannelPayload struct {
	NotificationID uuid.UUID  `json:"notificationID"`
	Channel        string     `json:"channel"`
	PosterID       uuid.UUID  `json:"posterID"`
	RecipientID    *uuid.UUID `json:"recipientID,omitempty"`
	Message        Message    `json:"message"`
	DatePosted     time.Time  `json:"datePosted"`
}
