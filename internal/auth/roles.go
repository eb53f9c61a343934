package auth

// Role represents a user role.
type Role string

const (
	RoleMember    Role = "member"
	RoleTreasurer Role = "treasurer"
)

// NormalizeRole validates and normalizes a role string.
func NormalizeRole(value string) (Role, bool) {
	switch Role(value) {
	case RoleMember, RoleTreasurer:
		return Role(value), true
	default:
		return "", false
	}
}

// RoleAtLeast returns true when role satisfies required role.
func RoleAtLeast(role Role, required Role) bool {
	return roleRank(role) >= roleRank(required)
}

func roleRank(role Role) int {
	switch role {
	case RoleMember:
		return 1
	case RoleTreasurer:
		return 2
	default:
		return 0
	}
}
