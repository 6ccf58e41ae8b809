package models

// Role controls what a team member can do. Viewers can read but never
// mutate conversations or send mail.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleAgent  Role = "agent"
	RoleViewer Role = "viewer"
)

// Profile is a team member as known to the API layer.
type Profile struct {
	ID     string  `json:"id"`
	Email  string  `json:"email"`
	Name   *string `json:"name"`
	Role   Role    `json:"role"`
	TeamID string  `json:"team_id"`
}
