package domain

import "time"

// StaffRole enumerates internal operator roles.
type StaffRole string

const (
	StaffRoleAgent      StaffRole = "AGENT"
	StaffRoleSpecialist StaffRole = "SPECIALIST"
	StaffRoleTeamLead   StaffRole = "TEAM_LEAD"
	StaffRoleManager    StaffRole = "MANAGER"
)

// Tier maps a role to its support tier. Managers own the top tier and may
// escalate past the one-level rule.
func (r StaffRole) Tier() int {
	switch r {
	case StaffRoleAgent:
		return 1
	case StaffRoleSpecialist:
		return 2
	case StaffRoleTeamLead:
		return 3
	case StaffRoleManager:
		return MaxLevel
	default:
		return 0
	}
}

// StaffMember models a support agent or manager.
type StaffMember struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         StaffRole
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
