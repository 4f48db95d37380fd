// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"

	"chainqa-go/internal/model"

	"gorm.io/gorm"
)

// QuestionRepository 接口定义了问题数据的只读操作。
type QuestionRepository interface {
	// FindByID 查询不到时返回 gorm.ErrRecordNotFound。
	FindByID(ctx context.Context, id uint) (*model.Question, error)
}

type questionRepository struct {
	db *gorm.DB
}

// NewQuestionRepository 创建一个新的 QuestionRepository 实例。
func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}

// FindByID 只取编排流程需要的列。
func (r *questionRepository) FindByID(ctx context.Context, id uint) (*model.Question, error) {
	var question model.Question
	err := r.db.WithContext(ctx).
		Select("id", "author_id", "status", "chain_question_id").
		First(&question, id).Error
	if err != nil {
		return nil, err
	}
	return &question, nil
}
