package domain

// Role enumerates actor privilege tiers, lowest first.
type Role string

const (
	RoleRequester Role = "REQUESTER"
	RoleAgent     Role = "AGENT"
	RoleTeamLead  Role = "TEAM_LEAD"
	RoleAdmin     Role = "ADMIN"
)

var roleRank = map[Role]int{
	RoleRequester: 0,
	RoleAgent:     1,
	RoleTeamLead:  2,
	RoleAdmin:     3,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r is min or above.
func (r Role) AtLeast(min Role) bool {
	rank, ok := roleRank[r]
	if !ok {
		return false
	}
	return rank >= roleRank[min]
}

// Elevated reports administrator-tier roles.
func (r Role) Elevated() bool {
	return r.AtLeast(RoleTeamLead)
}

// Actor is the resolved identity behind a request.
type Actor struct {
	ID   string
	Role Role
}
