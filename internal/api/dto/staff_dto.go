package dto

import (
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

// StaffLoginRequest payload.
type StaffLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// StaffLoginResponse includes the operator's role so clients can shape
// their UI around tier permissions.
type StaffLoginResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	Role      domain.StaffRole `json:"role"`
	Tier      int              `json:"tier"`
}
