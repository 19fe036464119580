package models

import "time"

// UserRole represents the available roles for route authorization.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleStudent UserRole = "STUDENT"
)

// User is an application user. Credential and profile mechanics live in the
// auth subsystem; billing only needs identity and contact fields.
type User struct {
	ID             string    `db:"id" json:"id"`
	Email          string    `db:"email" json:"email"`
	FullName       string    `db:"full_name" json:"full_name"`
	RegisterNumber string    `db:"register_number" json:"register_number"`
	Mobile         string    `db:"mobile" json:"mobile"`
	Role           UserRole  `db:"role" json:"role"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
