package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/pixelforegllc/quantummftools-dash/core"
)

// Roles
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleUser    = "user"
)

var (
	AllRoles = []string{RoleAdmin, RoleManager, RoleUser}

	rolePriorities = map[string]int{
		RoleAdmin:   3,
		RoleManager: 2,
		RoleUser:    1,
	}

	Roles = []Role{
		{Name: "User", Value: RoleUser},
		{Name: "Manager", Value: RoleManager},
		{Name: "Admin", Value: RoleAdmin},
	}
)

func RolePriority(role string) int {
	return rolePriorities[role]
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID           string     `json:"_id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	Role         string     `json:"role"`
	ADUsername   string     `json:"adUsername,omitempty"`
	IsActive     bool       `json:"isActive"`
	Permissions  []string   `json:"permissions"`
	PasswordHash []byte     `json:"-"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"` // UTC
	CreatedAt    time.Time  `json:"createdAt"`           // UTC
	UpdatedAt    time.Time  `json:"updatedAt"`           // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsADUser reports whether the User is linked to an Active Directory account.
func (u *User) IsADUser() bool {
	return u.ADUsername != ""
}

func (u *User) HasAnyRole(roles ...string) bool {
	return core.StringInSlice(u.Role, roles)
}

// HasPermission reports whether the User holds perm. Admins hold every permission.
func (u *User) HasPermission(perm string) bool {
	return u.IsAdmin() || core.StringInSlice(perm, u.Permissions)
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Username        string   `json:"username" validate:"required,min=3,max=50,alphanum_"`
	Email           string   `json:"email" validate:"required,email"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"passwordConfirm" validate:"required,eqfield=Password"`
	Role            string   `json:"role" validate:"omitempty,userrole"`
	Permissions     []string `json:"permissions" validate:"omitempty,dive,required"`
	ADUsername      string   `json:"adUsername" validate:"omitempty,max=255"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nu.Username = core.CleanString(nu.Username)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Role = core.CleanString(nu.Role, true /* lower */)
	nu.ADUsername = core.CleanString(nu.ADUsername)
	nu.Permissions = core.CleanStrings(nu.Permissions)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Username, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
// nil fields are left unchanged.
type UpdateUser struct {
	Email           *string  `json:"email" validate:"omitempty,email"`
	Role            *string  `json:"role" validate:"omitempty,userrole"`
	IsActive        *bool    `json:"isActive"`
	Permissions     []string `json:"permissions" validate:"omitempty,dive,required"`
	ADUsername      *string  `json:"adUsername" validate:"omitempty,max=255"`
	Password        string   `json:"password" validate:"omitempty"`
	PasswordConfirm string   `json:"passwordConfirm" validate:"required_with=Password,eqfield=Password"`

	username string // for the password policy
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc Service) error {
	email := origUsr.Email
	if uu.Email != nil {
		email = core.CleanString(*uu.Email, true /* lower */)
		uu.Email = &email
	}
	if uu.Role != nil {
		role := core.CleanString(*uu.Role, true /* lower */)
		uu.Role = &role
	}
	if uu.ADUsername != nil {
		adUname := core.CleanString(*uu.ADUsername)
		uu.ADUsername = &adUname
	}
	if uu.Permissions != nil {
		uu.Permissions = core.CleanStrings(uu.Permissions)
	}
	uu.username = origUsr.Username

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, origUsr.Username, email, origUsr)
}

// ChangePassword is the payload of a password change by the User themselves.
type ChangePassword struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`

	username string
	email    string
}

func (cp *ChangePassword) Validate(usr User, validate *validator.Validate) error {
	cp.username = usr.Username
	cp.email = usr.Email
	return validate.Struct(cp)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp *ResetUserPassword) Validate(validate *validator.Validate) error {
	rp.Token = core.CleanString(rp.Token)
	rp.UID = core.CleanString(rp.UID)
	return validate.Struct(rp)
}

type QueryFilter struct {
	Search   string   `query:"search"`
	Roles    []string `query:"role"`
	IsActive *bool    `query:"isActive"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && len(qf.Roles) == 0 && qf.IsActive == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Roles = core.CleanStrings(qf.Roles, true /* lower */)
}

// GetFilter selects a single User. Empty fields are ignored.
type GetFilter struct {
	ID              string
	Username        string
	Email           string
	UsernameOrEmail string
}
