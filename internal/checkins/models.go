package checkins

import (
	"time"

	"github.com/angelmondragon/kiosk-backend/pkg/enums"
	"github.com/google/uuid"
)

// Checkin records one person's arrival at an event.
type Checkin struct {
	ID          uuid.UUID           `bson:"_id" json:"id"`
	EventID     uuid.UUID           `bson:"event_id" json:"eventID"`
	PersonID    uuid.UUID           `bson:"person_id" json:"personID"`
	OrgGuid     string              `bson:"org_guid" json:"orgGuid"`
	Status      enums.CheckinStatus `bson:"status" json:"status"`
	CheckedInAt time.Time           `bson:"checked_in_at" json:"checkedInAt"`
}

// Stats summarizes check-in volume for a single event.
type Stats struct {
	EventID  uuid.UUID                   `json:"eventID"`
	Total    int64                       `json:"total"`
	ByStatus map[enums.CheckinStatus]int64 `json:"byStatus"`
}
