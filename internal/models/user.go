package models

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of actor kinds known to the authorization resolver
type Role string

const (
	// RoleStudent submits feedback and follows their own tickets
	RoleStudent Role = "student"
	// RoleCategoryAdmin manages tickets of a single category scope
	RoleCategoryAdmin Role = "category_admin"
	// RoleSuperAdmin manages every ticket
	RoleSuperAdmin Role = "super_admin"
)

// AllRoles lists every role in display order
var AllRoles = []Role{RoleStudent, RoleCategoryAdmin, RoleSuperAdmin}

// ParseRole converts a stored or submitted role string into a Role
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleCategoryAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// IsAdmin reports whether r is one of the admin roles
func (r Role) IsAdmin() bool {
	return r == RoleCategoryAdmin || r == RoleSuperAdmin
}

// CategoryScope names the category a category admin manages. It compares
// case-insensitively against category names.
type CategoryScope string

// NewCategoryScope normalizes a category name into a scope
func NewCategoryScope(name string) CategoryScope {
	return CategoryScope(strings.ToLower(strings.TrimSpace(name)))
}

// Matches reports whether the scope covers the named category
func (s CategoryScope) Matches(categoryName string) bool {
	return s != "" && s == NewCategoryScope(categoryName)
}

// ValidateRoleScope enforces that only category admins carry a scope and that they always do
func ValidateRoleScope(role Role, scope CategoryScope) error {
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}
	if role == RoleCategoryAdmin && scope == "" {
		return fmt.Errorf("role %s requires a category scope", role)
	}
	if role != RoleCategoryAdmin && scope != "" {
		return fmt.Errorf("role %s cannot carry a category scope", role)
	}
	return nil
}

// User represents a user in the system
type User struct {
	ID            int            `json:"id" yaml:"id"`
	Email         string         `json:"email" yaml:"email"`
	FirstName     string         `json:"first_name" yaml:"first_name"`
	LastName      string         `json:"last_name" yaml:"last_name"`
	PasswordHash  sql.NullString `json:"-" yaml:"-"`
	Role          Role           `json:"role" yaml:"role"`
	CategoryScope CategoryScope  `json:"category_scope,omitempty" yaml:"category_scope,omitempty"`
	StudentID     sql.NullString `json:"student_id" yaml:"student_id"`
	Department    sql.NullString `json:"department" yaml:"department"`
	IsActive      bool           `json:"is_active" yaml:"is_active"`
	LastLoginAt   sql.NullTime   `json:"last_login_at" yaml:"last_login_at"`
	CreatedAt     time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" yaml:"updated_at"`
}

// FullName joins first and last name, falling back to the email
func (u *User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// IsAdmin reports whether the user holds an admin role
func (u *User) IsAdmin() bool {
	return u != nil && u.Role.IsAdmin()
}

// MarshalJSON renders nullable columns as JSON null and omits the password hash
func (u User) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID            int        `json:"id"`
		Email         string     `json:"email"`
		FirstName     string     `json:"first_name"`
		LastName      string     `json:"last_name"`
		FullName      string     `json:"full_name"`
		Role          Role       `json:"role"`
		CategoryScope *string    `json:"category_scope"`
		StudentID     *string    `json:"student_id"`
		Department    *string    `json:"department"`
		IsActive      bool       `json:"is_active"`
		LastLoginAt   *time.Time `json:"last_login_at"`
		CreatedAt     time.Time  `json:"created_at"`
		UpdatedAt     time.Time  `json:"updated_at"`
	}{
		ID:            u.ID,
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		FullName:      u.FullName(),
		Role:          u.Role,
		CategoryScope: nullStringToPointer(NullString(string(u.CategoryScope))),
		StudentID:     nullStringToPointer(u.StudentID),
		Department:    nullStringToPointer(u.Department),
		IsActive:      u.IsActive,
		LastLoginAt:   nullTimeToPointer(u.LastLoginAt),
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	})
}
