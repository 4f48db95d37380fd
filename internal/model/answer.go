package model

import "time"

// SyncStatus 记录回答与链上状态的同步进度。
type SyncStatus string

const (
	// SyncPending 表示临时记录已写入，链上结果尚未落库。
	SyncPending SyncStatus = "pending"
	// SyncSynced 表示交易已确认并解析出 AnswerPosted 事件。
	SyncSynced SyncStatus = "synced"
	// SyncUnindexed 表示交易已确认，但收据中没有匹配的事件。
	SyncUnindexed SyncStatus = "unindexed"
	// SyncFailed 表示提交或确认失败，等待对账任务重试。
	SyncFailed SyncStatus = "failed"
)

// Answer 对应 answers 表。
type Answer struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	QuestionID  uint   `gorm:"not null;index" json:"questionId"`
	AuthorID    uint   `gorm:"not null;index" json:"authorId"`
	BodyMd      string `gorm:"type:text;not null" json:"bodyMd"`
	ContentHash string `gorm:"type:char(66);not null" json:"contentHash"`
	IpfsCID     string `gorm:"column:ipfs_cid;type:varchar(128);not null" json:"ipfsCid"`
	// ChainAnswerID 只有在交易确认并解析出事件后才会回填。
	ChainAnswerID *uint64    `gorm:"column:chain_answer_id" json:"chainAnswerId"`
	TxHash        *string    `gorm:"type:char(66)" json:"txHash"`
	SyncStatus    SyncStatus `gorm:"type:varchar(20);not null;default:pending;index" json:"syncStatus"`
	CreatedAt     time.Time  `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`

	Author *AuthorSummary `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Answer) TableName() string {
	return "answers"
}
