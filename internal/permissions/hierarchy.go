package permissions

import "strings"

const (
	RoleAssociate   = "Associate Software Engineer"
	RoleSenior      = "Senior Software Engineer"
	RoleLead        = "Lead Software Engineer"
	RolePrincipal   = "Principal Software Engineer"
	RoleStaff       = "Staff Software Engineer"
	RoleSeniorStaff = "Senior Staff Software Engineer"
)

// roleLevels is the total order driving permission inheritance. A role
// inherits the explicit grants of every role with a lower or equal level.
var roleLevels = map[string]int{
	RoleAssociate:   1,
	RoleSenior:      2,
	RoleLead:        3,
	RolePrincipal:   4,
	RoleStaff:       5,
	RoleSeniorStaff: 6,
}

// Roles returns all known roles ordered from lowest to highest level.
func Roles() []string {
	return []string{RoleAssociate, RoleSenior, RoleLead, RolePrincipal, RoleStaff, RoleSeniorStaff}
}

// RoleLevel reports the hierarchy level of a role, or 0 for unknown roles.
func RoleLevel(role string) int {
	return roleLevels[strings.TrimSpace(role)]
}

func IsKnownRole(role string) bool {
	return RoleLevel(role) > 0
}
