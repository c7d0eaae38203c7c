package domain

// PrincipalType classifies a directory object that can hold a role assignment.
type PrincipalType string

const (
	PrincipalTypeUser             PrincipalType = "User"
	PrincipalTypeGroup            PrincipalType = "Group"
	PrincipalTypeServicePrincipal PrincipalType = "ServicePrincipal"
	PrincipalTypeUnknown          PrincipalType = "Unknown"
)

// Principal is a read-only directory snapshot of a user, group, or service
// principal. Fetched once per scan; never mutated.
type Principal struct {
	ID                string
	Type              PrincipalType
	DisplayName       string
	UserPrincipalName string // empty for non-user principals
}

// IsGroup reports whether the principal is a group and therefore expandable.
func (p *Principal) IsGroup() bool { return p.Type == PrincipalTypeGroup }

// IsUser reports whether the principal is a user and therefore a removal
// candidate when covered by a group assignment.
func (p *Principal) IsUser() bool { return p.Type == PrincipalTypeUser }
