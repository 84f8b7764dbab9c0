package enums

// UserRole is carried in access tokens and checked by RequireRole.
type UserRole string

const (
	UserRoleCustomer UserRole = "customer"
	UserRoleAdmin    UserRole = "admin"
)

var userRoles = []UserRole{UserRoleCustomer, UserRoleAdmin}

func (r UserRole) String() string { return string(r) }
func (r UserRole) IsValid() bool  { return member(userRoles, r) }

func ParseUserRole(value string) (UserRole, error) {
	return parse(userRoles, "user role", value)
}
