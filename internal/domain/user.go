// Package domain contains entity without logic, just meta-data
package domain

import "strconv"

// UserID is the opaque numeric identity carried by the bearer credential.
type UserID int64

func (u UserID) String() string { return strconv.FormatInt(int64(u), 10) }

// ParseUserID parses the wire form of an identity.
func ParseUserID(s string) (UserID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return UserID(n), nil
}

type User struct {
	ID          UserID `json:"id"`
	FullName    string `json:"full_name"`
	CompanyName string `json:"company_name"`
}

// DisplayName renders the chat author prefix shown to other room members.
func (u *User) DisplayName() string {
	return u.FullName + " (" + u.CompanyName + ")"
}
