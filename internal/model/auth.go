package model

// Caller is the authenticated identity behind a request or socket.
type Caller struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// Recipient returns the notification inbox of the caller.
func (c Caller) Recipient() Recipient {
	return Recipient{ID: c.ID, Role: c.Role}
}

// IssueTokenRequest describes a development token to mint.
type IssueTokenRequest struct {
	Subject string
	Name    string
	Role    Role
}
