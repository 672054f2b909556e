package users

import (
	"regexp"
	"strings"
	"time"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)

const defaultProfilePicture = "default.jpg"

// User is the account record every other table hangs off.
type User struct {
	ID           string    `gorm:"column:id;primaryKey;size:190;not null"`
	Username     string    `gorm:"column:username;size:80;not null;uniqueIndex"`
	Email        string    `gorm:"column:email;size:320;not null;uniqueIndex"`
	FullName     string    `gorm:"column:full_name;size:255"`
	Bio          string    `gorm:"column:bio;type:text"`
	PasswordHash string    `gorm:"column:password_hash;size:255;not null"`
	ProfilePic   string    `gorm:"column:profile_pic;type:text"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user accounts.
func (User) TableName() string {
	return "users"
}

// ProfilePicture returns the stored picture or the placeholder used by clients.
func (u User) ProfilePicture() string {
	if u.ProfilePic == "" {
		return defaultProfilePicture
	}
	return u.ProfilePic
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
