package core

import (
	"fmt"
	"strings"

	"github.com/PaulFidika/mealkit/reject"
)

// Role is the closed set of caller roles.
type Role string

const (
	RoleStudent Role = "student"
	RoleStaff   Role = "staff"
	RoleAdmin   Role = "admin"
)

// ParseRole accepts a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleStudent, RoleStaff, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Capability is an action a caller may be allowed to take.
type Capability string

const (
	CapScan           Capability = "scan"
	CapEnroll         Capability = "enroll"
	CapRevoke         Capability = "revoke"
	CapManualOverride Capability = "manual_override"
	CapViewAttendance Capability = "view_attendance"
	CapManagePoints   Capability = "manage_service_points"
)

type scope int

const (
	scopeSelf scope = iota + 1
	scopeAny
)

// capabilities is the whole authorization policy. Anything absent is denied.
var capabilities = map[Role]map[Capability]scope{
	RoleStudent: {
		CapScan:   scopeSelf,
		CapEnroll: scopeSelf,
		CapRevoke: scopeSelf,

		CapViewAttendance: scopeSelf,
	},
	RoleStaff: {
		CapScan:           scopeAny,
		CapManualOverride: scopeAny,
		CapViewAttendance: scopeAny,
	},
	RoleAdmin: {
		CapScan:           scopeAny,
		CapEnroll:         scopeAny,
		CapRevoke:         scopeAny,
		CapManualOverride: scopeAny,
		CapViewAttendance: scopeAny,
		CapManagePoints:   scopeAny,
	},
}

// Principal is an authenticated caller.
type Principal struct {
	ID   string
	Role Role
}

// Authorize reports whether p may exercise c on subject, the identity the
// action affects. It returns a Forbidden rejection otherwise.
func Authorize(p Principal, c Capability, subject string) error {
	sc := capabilities[p.Role][c]
	switch {
	case p.ID == "":
	case sc == scopeAny:
		return nil
	case sc == scopeSelf && subject == p.ID:
		return nil
	}
	return reject.New(reject.Forbidden, "capability", string(c))
}
