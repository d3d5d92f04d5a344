package enums

import "fmt"

// MemberRole is the role a person holds inside an organization.
type MemberRole string

const (
	MemberRoleAttendee MemberRole = "ATTENDEE"
	MemberRoleManager  MemberRole = "MANAGER"
	MemberRoleAdmin    MemberRole = "ADMIN"
)

var validMemberRoles = []MemberRole{
	MemberRoleAttendee,
	MemberRoleManager,
	MemberRoleAdmin,
}

// IsValid reports whether the value is a known MemberRole.
func (m MemberRole) IsValid() bool {
	for _, candidate := range validMemberRoles {
		if candidate == m {
			return true
		}
	}
	return false
}

// CanManage reports whether the role grants manager-level access.
func (m MemberRole) CanManage() bool {
	return m == MemberRoleManager || m == MemberRoleAdmin
}

// ParseMemberRole converts the raw string to MemberRole.
func ParseMemberRole(value string) (MemberRole, error) {
	for _, candidate := range validMemberRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid member role %q", value)
}
