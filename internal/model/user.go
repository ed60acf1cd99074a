// Package model defines domain entities for the application.
package model

// User is the identity carried by a verified session token.
// Users are owned by the identity provider and referenced here by id.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}
