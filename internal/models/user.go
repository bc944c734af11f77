package models

import "time"

// User statuses
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// User is owned by the account service; the ledger only reads it to decide
// whether a wallet may be funded.
type User struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	Name         string    `gorm:"not null" json:"name"`
	Phone        string    `gorm:"index" json:"phone"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Role         string    `gorm:"default:'user'" json:"role"`
	Status       string    `gorm:"default:'active'" json:"status"`
	Approved     bool      `gorm:"default:false" json:"approved"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) IsDisabled() bool {
	return u.Status == UserStatusDisabled
}

// CanFund reports whether the user may receive deposits.
func (u *User) CanFund() bool {
	return !u.IsDisabled() && u.Approved
}
