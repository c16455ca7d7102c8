package models

import "strings"

// User is the read-side view of an account managed by the auth service.
type User struct {
	ID        int64   `json:"id"`
	Email     string  `json:"email"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	IsWriter  bool    `json:"is_writer"`
}

// FullName returns "first last" when both names are known, otherwise the local
// part of the e-mail address.
func (u User) FullName() string {
	if u.FirstName != nil && u.LastName != nil && *u.FirstName != "" && *u.LastName != "" {
		return *u.FirstName + " " + *u.LastName
	}
	local, _, _ := strings.Cut(u.Email, "@")
	return local
}
