package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/eventreg-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting an operator token.
type AccessTokenPayload struct {
	Subject string
	Role    enums.OperatorRole
	JTI     string
}

// AccessTokenClaims is the typed JWT accepted on the admin API.
type AccessTokenClaims struct {
	Role enums.OperatorRole `json:"role"`
	jwt.RegisteredClaims
}
