package events

import (
	"time"

	"github.com/google/uuid"
)

// Event is the document persisted for each organization event.
type Event struct {
	ID           uuid.UUID   `bson:"_id" json:"id"`
	OrgGuid      string      `bson:"org_guid" json:"orgGuid"`
	Name         string      `bson:"name" json:"name"`
	Location     string      `bson:"location,omitempty" json:"location,omitempty"`
	StartDate    time.Time   `bson:"start_date" json:"startDate"`
	ManagerID    uuid.UUID   `bson:"manager_id" json:"managerID"`
	Participants []uuid.UUID `bson:"participants" json:"participants"`
	CreatedAt    time.Time   `bson:"created_at" json:"createdAt"`
}
