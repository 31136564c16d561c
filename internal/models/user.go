package models

// User represents an account in the system.
type User struct {
	Username       string `json:"username"`
	Email          string `json:"email"`
	PasswordDigest string `json:"password"` // Stored under "password" for compatibility with existing users files
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
}

// PublicUser is the client-safe view of a User.
type PublicUser struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Public strips the password digest.
func (u User) Public() PublicUser {
	return PublicUser{
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}
