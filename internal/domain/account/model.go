package account

import (
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/therapy/clinic/internal/platform/apperr"
	"github.com/therapy/clinic/internal/platform/auth"
)

const (
	minPasswordLen = 8
	maxUsernameLen = 80
)

// Account is a clinic staff member. Role decides what the account may do;
// therapists are referenced by treatment visits.
type Account struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	MobileNo     string    `json:"mobile_no"`
	Address      string    `json:"address"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsTherapist reports whether the account may perform treatments.
func (a *Account) IsTherapist() bool {
	return a.Role == auth.RoleTherapist || a.Role == auth.RoleBoth
}

type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	MobileNo string `json:"mobile_no"`
	Address  string `json:"address"`
	Role     string `json:"role"`
}

func (r *SignupRequest) normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)
	r.MobileNo = strings.TrimSpace(r.MobileNo)
	r.Address = strings.TrimSpace(r.Address)
	r.Role = strings.TrimSpace(r.Role)
}

func (r *SignupRequest) Validate() error {
	r.normalize()
	if err := validateUsername(r.Username); err != nil {
		return err
	}
	if err := validateEmail(r.Email); err != nil {
		return err
	}
	if len(r.Password) < minPasswordLen {
		return apperr.Validationf("account", "password must be at least %d characters", minPasswordLen)
	}
	if !auth.ValidRole(r.Role) {
		return apperr.Validationf("account", "role must be one of %s, %s or %s", auth.RoleAdministrator, auth.RoleTherapist, auth.RoleBoth)
	}
	return nil
}

// UpdateRequest changes only the fields that are present.
type UpdateRequest struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
	MobileNo *string `json:"mobile_no"`
	Address  *string `json:"address"`
	Role     *string `json:"role"`
}

func (r *UpdateRequest) Validate() error {
	if r.Email != nil {
		*r.Email = strings.TrimSpace(*r.Email)
		if err := validateEmail(*r.Email); err != nil {
			return err
		}
	}
	if r.Password != nil && len(*r.Password) < minPasswordLen {
		return apperr.Validationf("account", "password must be at least %d characters", minPasswordLen)
	}
	if r.Role != nil && !auth.ValidRole(strings.TrimSpace(*r.Role)) {
		return apperr.Validationf("account", "unknown role %q", *r.Role)
	}
	return nil
}

func validateUsername(u string) error {
	if u == "" {
		return apperr.Validationf("account", "username is required")
	}
	if len(u) > maxUsernameLen {
		return apperr.Validationf("account", "username must be at most %d characters", maxUsernameLen)
	}
	if strings.IndexFunc(u, unicode.IsSpace) >= 0 {
		return apperr.Validationf("account", "username must not contain spaces")
	}
	return nil
}

func validateEmail(e string) error {
	if e == "" {
		return apperr.Validationf("account", "email is required")
	}
	addr, err := mail.ParseAddress(e)
	if err != nil || addr.Address != e {
		return apperr.Validationf("account", "invalid email %q", e)
	}
	return nil
}
