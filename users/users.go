package users

import (
	"fmt"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID           string    `json:"id,omitempty"`         // Unique identifier, the local subject
	Email        string    `json:"email,omitempty"`      // User's email address
	Username     string    `json:"username,omitempty"`   // Unique username
	PasswordHash string    `json:"-"`                    // Hashed version of the user's password - never serialize
	FirstName    string    `json:"first_name,omitempty"` // First name of the user
	LastName     string    `json:"last_name,omitempty"`  // Last name of the user
	PhoneNumber  string    `json:"phone_number,omitempty"`
	DateJoined   time.Time `json:"date_joined,omitempty"` // Date and time when the user registered
	LastLogin    time.Time `json:"last_login,omitempty"`  // Last time the user logged in

	// Attributes are directory attributes such as uid, mail or inum that custom
	// authentication parameters are matched against.
	Attributes map[string]string `json:"attributes,omitempty"`

	Verified bool `json:"verified,omitempty"` // Verified, has the user verified who they are
	Blocked  bool `json:"blocked,omitempty"`  // Blocked, has the user been blocked from logging in
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// Attribute returns a directory attribute, falling back to the well known fields.
func (u *User) Attribute(name string) string {
	if v, ok := u.Attributes[name]; ok {
		return v
	}
	switch name {
	case "uid", "username":
		return u.Username
	case "mail", "email":
		return u.Email
	}
	return ""
}

// Claims returns the standard OIDC claims released for scopes.
func (u *User) Claims(scopes []string) map[string]any {
	claims := map[string]any{}
	for _, scope := range scopes {
		switch scope {
		case "profile":
			if name := fullName(u.FirstName, u.LastName); name != "" {
				claims["name"] = name
			}
			if u.FirstName != "" {
				claims["given_name"] = u.FirstName
			}
			if u.LastName != "" {
				claims["family_name"] = u.LastName
			}
			if u.Username != "" {
				claims["preferred_username"] = u.Username
			}
		case "email":
			if u.Email != "" {
				claims["email"] = u.Email
				claims["email_verified"] = u.Verified
			}
		case "phone":
			if u.PhoneNumber != "" {
				claims["phone_number"] = u.PhoneNumber
			}
		}
	}
	return claims
}

func fullName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	}
	return first + " " + last
}
