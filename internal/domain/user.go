package domain

import "time"

const RoleUser = "user"

// User is a permanent account, owned by the user repository.
type User struct {
	UserID    string    `json:"id" dynamodbav:"user_id"`
	Name      string    `json:"name" dynamodbav:"name"`
	Email     string    `json:"email" dynamodbav:"email"`
	MobileNo  string    `json:"mobile_no" dynamodbav:"mobile_no"`
	Password  string    `json:"-" dynamodbav:"password_hash"`
	Role      string    `json:"role" dynamodbav:"role"`
	IsActive  bool      `json:"is_active" dynamodbav:"is_active"`
	CreatedAt time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

// CreateUserData is the validated input the registration engine hands to the
// user repository once both channels are verified. Password is already hashed.
type CreateUserData struct {
	Name     string
	Email    string
	MobileNo string
	Password string
}

// ConflictCheck is the outcome of probing for an existing account.
type ConflictCheck struct {
	Exists        bool
	ConflictField string // "email" | "mobile" when Exists
}
