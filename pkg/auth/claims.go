package auth

import (
	"github.com/dmcastano/evdex-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// IdentityClaims is the typed JWT minted by the upstream identity service.
// This backend only verifies and reads it.
type IdentityClaims struct {
	UserID uuid.UUID      `json:"user_id"`
	Role   enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}
