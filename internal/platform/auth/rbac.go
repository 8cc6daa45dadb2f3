package auth

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Account roles.
const (
	RoleAdministrator = "administrator"
	RoleTherapist     = "therapist"
	RoleBoth          = "both"
)

type Capability string

const (
	ManageAccounts   Capability = "manage_accounts"
	ManagePatients   Capability = "manage_patients"
	ViewPatients     Capability = "view_patients"
	RecordTreatments Capability = "record_treatments"
	ViewStatistics   Capability = "view_statistics"
)

// roleCapabilities is the only place roles are mapped to what they may do.
var roleCapabilities = map[string][]Capability{
	RoleAdministrator: {ManageAccounts, ManagePatients, ViewPatients, ViewStatistics},
	RoleTherapist:     {ViewPatients, RecordTreatments, ViewStatistics},
	RoleBoth:          {ManageAccounts, ManagePatients, ViewPatients, RecordTreatments, ViewStatistics},
}

func ValidRole(role string) bool {
	_, ok := roleCapabilities[role]
	return ok
}

// Capabilities returns the capability set of role; unknown roles have none.
func Capabilities(role string) []Capability {
	caps := roleCapabilities[role]
	out := make([]Capability, len(caps))
	copy(out, caps)
	return out
}

// Allowed reports whether any of roles grants c.
func Allowed(roles []string, c Capability) bool {
	for _, r := range roles {
		for _, have := range roleCapabilities[r] {
			if have == c {
				return true
			}
		}
	}
	return false
}

// RequireCapability rejects callers whose roles do not grant c.
func RequireCapability(c Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if !Allowed(RolesFromContext(ctx.Request().Context()), c) {
				return echo.NewHTTPError(http.StatusForbidden, fmt.Sprintf("required capability: %s", c))
			}
			return next(ctx)
		}
	}
}
