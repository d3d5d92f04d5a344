package identity

import (
	"strings"

	"github.com/angelmondragon/kiosk-backend/pkg/enums"
)

// Provider role names do not match the internal enum casing, so normalize
// before parsing.
func parseRole(value string) (enums.MemberRole, error) {
	return enums.ParseMemberRole(strings.ToUpper(strings.TrimSpace(value)))
}
