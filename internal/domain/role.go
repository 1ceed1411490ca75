package domain

// Roles carried in the backend-issued access token's role claim.
const (
	RoleAuthenticated = "authenticated"
	RoleServiceRole   = "service_role"
)
