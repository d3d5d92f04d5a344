package auth

import (
	"github.com/angelmondragon/kiosk-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	PersonID uuid.UUID
	OrgGuid  string
	Role     enums.MemberRole
	JTI      string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	PersonID uuid.UUID        `json:"person_id"`
	OrgGuid  string           `json:"org_guid"`
	Role     enums.MemberRole `json:"role"`
	jwt.RegisteredClaims
}
