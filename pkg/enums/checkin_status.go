package enums

import "fmt"

// CheckinStatus tracks the lifecycle of an attendee check-in.
type CheckinStatus string

const (
	CheckinStatusCheckedIn CheckinStatus = "CHECKED_IN"
	CheckinStatusWalkIn    CheckinStatus = "WALK_IN"
	CheckinStatusCanceled  CheckinStatus = "CANCELED"
)

var validCheckinStatuses = []CheckinStatus{
	CheckinStatusCheckedIn,
	CheckinStatusWalkIn,
	CheckinStatusCanceled,
}

// String implements fmt.Stringer.
func (c CheckinStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CheckinStatus.
func (c CheckinStatus) IsValid() bool {
	for _, candidate := range validCheckinStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCheckinStatus converts the raw string to CheckinStatus.
func ParseCheckinStatus(value string) (CheckinStatus, error) {
	for _, candidate := range validCheckinStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid checkin status %q", value)
}
