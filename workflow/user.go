package workflow

import (
	"strings"
	"time"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 6

// User is an account that can own projects, join them as a member and
// author tasks and comments.
type User struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`

	// PasswordHash is the bcrypt hash. It never leaves the storage layer.
	PasswordHash string `json:"-"`

	Phone  string `json:"phone,omitempty"`
	Avatar string `json:"avatar,omitempty"`

	// GlobalRole is the ID of the user's Role document.
	GlobalRole string `json:"globalRole"`

	// RoleName caches the name of GlobalRole. Authentication replaces it
	// with the stored role's current name, so it can be stale at rest.
	RoleName string `json:"roleName"`

	IsActive        bool       `json:"isActive"`
	IsEmailVerified bool       `json:"isEmailVerified"`
	LastLogin       *time.Time `json:"lastLogin,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// FullName returns "First Last".
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsAdmin reports whether the user holds the global Admin role.
func (u *User) IsAdmin() bool {
	return u.RoleName == RoleAdmin
}

// Validate checks the profile fields. Password rules are checked separately
// by ValidatePassword because the hash is all that is stored.
func (u *User) Validate() error {
	var errs ValidationErrors
	if errs.required("firstName", u.FirstName) {
		errs.length("firstName", u.FirstName, 0, 50)
	}
	if errs.required("lastName", u.LastName) {
		errs.length("lastName", u.LastName, 0, 50)
	}
	if errs.required("email", u.Email) && !ValidEmail(u.Email) {
		errs.add("email", "email is not valid")
	}
	if u.Phone != "" && !phonePattern.MatchString(u.Phone) {
		errs.add("phone", "phone is not valid")
	}
	return errs.Err()
}

// ValidatePassword enforces the minimum password length.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ValidationErrors{{
			Field:   "password",
			Message: "password must be at least 6 characters",
		}}
	}
	return nil
}

// Role is a global role document.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Validate checks the role name and description.
func (r *Role) Validate() error {
	var errs ValidationErrors
	if errs.required("name", r.Name) && !IsKnownRole(r.Name) {
		errs.add("name", "name must be one of Admin, Project Manager, Developer, Viewer")
	}
	errs.length("description", r.Description, 10, 200)
	return errs.Err()
}

// Category groups projects by kind ("Web", "Mobile", ...).
type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"createdBy,omitempty"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Validate checks the category name.
func (c *Category) Validate() error {
	var errs ValidationErrors
	if errs.required("name", c.Name) {
		errs.length("name", c.Name, 2, 50)
	}
	errs.length("description", c.Description, 0, 200)
	return errs.Err()
}
