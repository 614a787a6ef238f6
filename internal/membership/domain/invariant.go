package domain

import "fmt"

// CheckOwnership verifies the ownership invariant for one team: exactly one membership has
// role Owner and it belongs to ownerID. memberships must be every membership of the team.
func CheckOwnership(teamID, ownerID string, memberships []*Membership) error {
	var owners []*Membership
	for _, m := range memberships {
		if m == nil {
			continue
		}
		if m.TeamID != teamID {
			return &InvariantViolation{TeamID: teamID, Detail: fmt.Sprintf("membership %s belongs to team %s", m.ID, m.TeamID)}
		}
		if m.Role == RoleOwner {
			owners = append(owners, m)
		}
		if m.UserID == ownerID && m.Role != RoleOwner {
			return &InvariantViolation{TeamID: teamID, Detail: fmt.Sprintf("team owner %s holds role %s", ownerID, m.Role)}
		}
	}
	switch len(owners) {
	case 0:
		return &InvariantViolation{TeamID: teamID, Detail: "no owner membership"}
	case 1:
	default:
		return &InvariantViolation{TeamID: teamID, Detail: fmt.Sprintf("%d owner memberships", len(owners))}
	}
	if owners[0].UserID != ownerID {
		return &InvariantViolation{TeamID: teamID, Detail: fmt.Sprintf("owner membership held by %s, team owner is %s", owners[0].UserID, ownerID)}
	}
	return nil
}
