package models

// User represents a registered account. Passwords are stored as bcrypt hashes only.
type User struct {
	Username     string        `json:"username"`
	PasswordHash string        `json:"passwordHash"`
	Tags         []string      `json:"tags"`
	Wallet       float64       `json:"wallet"`
	Transactions []Transaction `json:"transactions"`
}

// Clone returns a deep copy safe to hand out of a store lock.
func (u *User) Clone() User {
	c := *u
	c.Tags = append([]string(nil), u.Tags...)
	c.Transactions = append([]Transaction(nil), u.Transactions...)
	return c
}
