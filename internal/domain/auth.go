package domain

// SubjectType differentiates users, staff and system actors.
type SubjectType string

const (
	SubjectTypeUser   SubjectType = "USER"
	SubjectTypeStaff  SubjectType = "STAFF"
	SubjectTypeSystem SubjectType = "SYSTEM"
)
