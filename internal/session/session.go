// Package session reads the login sessions and roles written by the auth
// service. The tables live in the app_auth schema and are not migrated here.
package session

import (
	"context"
	"time"

	"github.com/mountly/mountly-backend/internal/utils"
	"gorm.io/gorm"
)

type Session struct {
	SessionID string `gorm:"primaryKey"`
	UserID    string `gorm:"not null"`
	ExpiresAt time.Time
}

type User struct {
	UserID string `gorm:"primaryKey"`
	Role   string
}

func (Session) TableName() string { return "app_auth.sessions" }
func (User) TableName() string    { return "app_auth.users" }

// Info implements middleware.SessionFetcher and middleware.RoleFetcher.
type Info struct {
	DB *gorm.DB
}

func (si Info) FindSessionByID(id string) (utils.SessionData, error) {
	var s Session
	if err := si.DB.First(&s, "session_id = ?", id).Error; err != nil {
		return utils.SessionData{}, err
	}
	return utils.SessionData{UserID: s.UserID, ExpiresAt: s.ExpiresAt}, nil
}

func (si Info) FindRole(ctx context.Context, userID string) (string, error) {
	var u User
	if err := si.DB.WithContext(ctx).Select("user_id", "role").First(&u, "user_id = ?", userID).Error; err != nil {
		return "", err
	}
	return u.Role, nil
}
