package repository

import (
	"context"
	"fmt"
	"time"

	"chainqa-go/internal/model"

	"gorm.io/gorm"
)

// AnswerRepository 接口定义了回答的持久化操作。
// 临时写入和链上回填是两次独立的写操作，不跨越 pin 和链上交易开启事务。
type AnswerRepository interface {
	Create(ctx context.Context, answer *model.Answer) error
	// UpdateChainID 回填链上结果。chainAnswerID 为 nil 表示交易已确认但没有解析到事件。
	UpdateChainID(ctx context.Context, answerID uint, chainAnswerID *uint64, txHash string) error
	MarkSyncFailed(ctx context.Context, answerID uint, txHash string) error
	FindByID(ctx context.Context, answerID uint) (*model.Answer, error)
	FindByQuestionID(ctx context.Context, questionID uint) ([]model.Answer, error)
	FindUnsynced(ctx context.Context, olderThan time.Time, limit int) ([]model.Answer, error)
}

type answerRepository struct {
	db *gorm.DB
}

// NewAnswerRepository 创建一个新的 AnswerRepository 实例。
func NewAnswerRepository(db *gorm.DB) AnswerRepository {
	return &answerRepository{db: db}
}

// Create 写入临时记录，ID 和时间戳由数据库生成。
func (r *answerRepository) Create(ctx context.Context, answer *model.Answer) error {
	answer.ChainAnswerID = nil
	answer.SyncStatus = model.SyncPending
	return r.db.WithContext(ctx).Create(answer).Error
}

func (r *answerRepository) UpdateChainID(ctx context.Context, answerID uint, chainAnswerID *uint64, txHash string) error {
	status := model.SyncUnindexed
	if chainAnswerID != nil {
		status = model.SyncSynced
	}
	// 使用 map 更新，保证 nil 会被写成 NULL 而不是被 GORM 忽略
	updates := map[string]interface{}{
		"chain_answer_id": chainAnswerID,
		"sync_status":     status,
	}
	if txHash != "" {
		updates["tx_hash"] = txHash
	}
	return r.update(ctx, answerID, updates)
}

// MarkSyncFailed 标记提交或确认失败，chain_answer_id 保持 NULL。
func (r *answerRepository) MarkSyncFailed(ctx context.Context, answerID uint, txHash string) error {
	updates := map[string]interface{}{
		"sync_status": model.SyncFailed,
	}
	if txHash != "" {
		updates["tx_hash"] = txHash
	}
	return r.update(ctx, answerID, updates)
}

func (r *answerRepository) update(ctx context.Context, answerID uint, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&model.Answer{}).Where("id = ?", answerID).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("answer %d: %w", answerID, gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *answerRepository) FindByID(ctx context.Context, answerID uint) (*model.Answer, error) {
	var answer model.Answer
	if err := r.db.WithContext(ctx).First(&answer, answerID).Error; err != nil {
		return nil, err
	}
	return &answer, nil
}

// FindByQuestionID 按创建时间倒序返回问题下的全部回答，并附带作者的最小投影。
func (r *answerRepository) FindByQuestionID(ctx context.Context, questionID uint) ([]model.Answer, error) {
	var answers []model.Answer
	err := r.db.WithContext(ctx).
		Preload("Author", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "name", "primary_wallet")
		}).
		Where("question_id = ?", questionID).
		Order("created_at desc").
		Order("id desc").
		Find(&answers).Error
	return answers, err
}

// FindUnsynced 返回 olderThan 之前创建、仍处于 pending 或 failed 的记录，供对账使用。
func (r *answerRepository) FindUnsynced(ctx context.Context, olderThan time.Time, limit int) ([]model.Answer, error) {
	var answers []model.Answer
	query := r.db.WithContext(ctx).
		Where("sync_status IN ?", []model.SyncStatus{model.SyncPending, model.SyncFailed}).
		Where("created_at < ?", olderThan).
		Order("created_at asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&answers).Error
	return answers, err
}
