// internal/workers/auth/resolve-identity/models.go
package resolveidentity

type Input struct {
	Token string `json:"token"`
}

type Output struct {
	IdentityID   string `json:"identityId"`
	Role         string `json:"role"` // "volunteer" or "ngo"
	ResolvedName string `json:"resolvedName"`
}
