package models

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type Identity struct {
	UserID string
	Role   string
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }
