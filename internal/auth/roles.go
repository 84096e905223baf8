package auth

import (
	"fmt"

	"triage-chatbot/pkg"
)

// Capability names an action that is gated by role.
type Capability string

const (
	ViewDashboard     Capability = "view_dashboard"
	CloseSession      Capability = "close_session"
	JoinClinicianRoom Capability = "join_clinician_room"
)

var grants = map[pkg.Role]map[Capability]bool{
	pkg.RoleClinician: {
		ViewDashboard:     true,
		CloseSession:      true,
		JoinClinicianRoom: true,
	},
	pkg.RoleStaff: {},
}

// Can reports whether role has capability c.
func Can(role pkg.Role, c Capability) bool {
	return grants[role][c]
}

// Authorize returns ErrForbidden when u lacks capability c.
func Authorize(u *pkg.User, c Capability) error {
	if u == nil {
		return ErrUnauthenticated
	}
	if !Can(u.Role, c) {
		return fmt.Errorf("%w: role %q cannot %s", ErrForbidden, u.Role, c)
	}
	return nil
}
