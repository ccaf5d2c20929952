// internal/models/user.go
package models

// Roles supplied by the identity provider.
const (
	RoleVolunteer = "volunteer"
	RoleNGO       = "ngo"
)

// Identity is the authenticated tuple supplied by the identity collaborator.
// The lifecycle components trust it without re-validating.
type Identity struct {
	ID   string `json:"id"`
	Role string `json:"role"` // "volunteer" or "ngo"
	Name string `json:"name"`
}

type Volunteer struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	Email               string  `json:"email"`
	Phone               string  `json:"phone,omitempty"`
	City                string  `json:"city,omitempty"`
	Skills              string  `json:"skills,omitempty"`
	TotalValueGenerated float64 `json:"totalValueGenerated"`
	CreatedAt           string  `json:"createdAt"`
}

type NGO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	City      string `json:"city,omitempty"`
	CreatedAt string `json:"createdAt"`
}
