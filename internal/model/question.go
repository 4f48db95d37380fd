// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// QuestionStatus 是问题的状态。
type QuestionStatus string

const (
	QuestionOpen     QuestionStatus = "Open"
	QuestionClosed   QuestionStatus = "Closed"
	QuestionResolved QuestionStatus = "Resolved"
)

// Question 对应 questions 表。问题由问题子系统维护，本服务只读取。
type Question struct {
	ID       uint           `gorm:"primaryKey" json:"id"`
	AuthorID uint           `gorm:"not null;index" json:"authorId"`
	Title    string         `gorm:"type:varchar(255);not null" json:"title"`
	Status   QuestionStatus `gorm:"type:varchar(20);not null;default:Open" json:"status"`
	// ChainQuestionID 在问题同步上链后才有值。
	ChainQuestionID *uint64   `gorm:"column:chain_question_id" json:"chainQuestionId"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Question) TableName() string {
	return "questions"
}
