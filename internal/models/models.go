package models

import "time"

const DefaultAvatar = "cowled"

// User is an identity. Guests carry no password hash. UsernameKey is the
// lowercased username and the store-level uniqueness guard.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:12;not null" json:"username"`
	UsernameKey  string    `gorm:"uniqueIndex;size:12;not null" json:"-"`
	PasswordHash *string   `gorm:"size:72" json:"-"`
	Avatar       string    `gorm:"size:64;not null" json:"avatar"`
	IsGuest      bool      `gorm:"index;not null;default:false" json:"isGuest"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Score belongs to a User; the foreign key cascades deletes and rejects
// inserts for identities that no longer exist.
type Score struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"index;not null" json:"userId"`
	User        User      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	GameID      string    `gorm:"index:idx_score_game_value,priority:1;size:64;not null" json:"gameId"`
	Value       int64     `gorm:"index:idx_score_game_value,priority:2,sort:desc;not null" json:"score"`
	SubmittedAt time.Time `gorm:"index;not null" json:"timestamp"`
}
