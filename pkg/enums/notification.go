package enums

import "fmt"

// NotificationType scopes a notification to its channel kind.
type NotificationType string

const (
	NotificationTypeOrg   NotificationType = "ORG"
	NotificationTypeEvent NotificationType = "EVENT"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOrg,
	NotificationTypeEvent,
}

// String implements fmt.Stringer.
func (n NotificationType) String() string {
	return string(n)
}

// IsValid reports whether the value is a known NotificationType.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts the raw string to NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
