package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	// RoleAdmin manages the DNC registry and every campaign.
	RoleAdmin = "admin"
	// RoleSupervisor spawns and controls campaigns.
	RoleSupervisor = "supervisor"
	// RoleAnalyst reads instances, calls and stats.
	RoleAnalyst = "analyst"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

func Known(role string) bool {
	switch role {
	case RoleAdmin, RoleSupervisor, RoleAnalyst:
		return true
	default:
		return false
	}
}
