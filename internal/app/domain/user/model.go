package user

import "time"

const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)

// User is an account listed in the admin dashboard.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Role         string     `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	LastSignInAt *time.Time `json:"last_sign_in_at,omitempty"`
}

// Page is a paged user listing.
type Page struct {
	Users []User `json:"users"`
	Total int    `json:"total"`
}
