// Package auth provides token and API-key authentication with a
// viewer/operator/admin role hierarchy, plus per-client rate limiting.
package auth

// Role is a permission level. Roles are strictly ordered: each role
// includes everything below it.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

var roleRank = map[Role]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// Valid reports whether the role is one of the known levels.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// HasPermission reports whether this role satisfies the required one.
// Unknown roles never satisfy anything.
func (r Role) HasPermission(required Role) bool {
	have, ok := roleRank[r]
	if !ok {
		return false
	}
	want, ok := roleRank[required]
	if !ok {
		return false
	}
	return have >= want
}
