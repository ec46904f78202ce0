package model

import (
	"fmt"
	"strings"
)

// Address is a mailbox with an optional display name.
type Address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// String formats the address as `Name <email>`, or just the email when no
// name is set.
func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Email)
}

// Domain returns the lowercased part after the last '@', or "" when the
// address has none.
func (a Address) Domain() string {
	at := strings.LastIndex(a.Email, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(a.Email[at+1:])
}

// SameMailbox reports whether two addresses name the same mailbox,
// ignoring case and display names.
func (a Address) SameMailbox(other string) bool {
	return strings.EqualFold(
		strings.TrimSpace(a.Email), strings.TrimSpace(other),
	)
}
