package model

import "time"

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User 对应 users 表，由认证子系统维护。
type User struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"type:varchar(100)" json:"name"`
	Email         string    `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	PrimaryWallet *string   `gorm:"type:char(42)" json:"primaryWallet"`
	Role          string    `gorm:"type:varchar(20);not null;default:USER" json:"role"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (User) TableName() string {
	return "users"
}

// AuthorSummary 是回答列表中作者的最小投影。
type AuthorSummary struct {
	ID            uint    `gorm:"primaryKey" json:"id"`
	Name          string  `gorm:"type:varchar(100)" json:"name"`
	PrimaryWallet *string `gorm:"type:char(42)" json:"primaryWallet"`
}

// TableName 与 User 共用 users 表。
func (AuthorSummary) TableName() string {
	return "users"
}
