// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chainqa-go/internal/model"
	"chainqa-go/internal/repository"
	"chainqa-go/pkg/chain"
	"chainqa-go/pkg/hashing"
	"chainqa-go/pkg/ipfs"
	"chainqa-go/pkg/log"
	"chainqa-go/pkg/notify"

	"gorm.io/gorm"
)

const (
	defaultUnsyncedLimit = 100
	maxUnsyncedLimit     = 500
)

// CreateAnswerInput 是创建回答的请求参数。
type CreateAnswerInput struct {
	QuestionID uint
	UserID     uint
	BodyMd     string
	Files      []string
}

// AnswerResult 是创建成功后返回给调用方的结果。ChainAnswerID 在收据中没有事件时为 nil。
type AnswerResult struct {
	ID            uint    `json:"id"`
	QuestionID    uint    `json:"questionId"`
	ChainAnswerID *uint64 `json:"chainAnswerId"`
	TxHash        string  `json:"txHash"`
	IpfsCID       string  `json:"ipfsCid"`
	ContentHash   string  `json:"contentHash"`
}

// AnswerList 是某个问题下的回答列表。
type AnswerList struct {
	QuestionID uint           `json:"questionId"`
	Total      int            `json:"total"`
	Answers    []model.Answer `json:"answers"`
}

// AnswerCreatedEvent 是 answer:created 事件的负载。
type AnswerCreatedEvent struct {
	ID            uint    `json:"id"`
	QuestionID    uint    `json:"questionId"`
	ChainAnswerID *uint64 `json:"chainAnswerId"`
	TxHash        string  `json:"txHash"`
}

// AnswerService 接口定义了回答相关的业务操作。
type AnswerService interface {
	// CreateAnswer 固定内容、写入临时记录、提交链上交易并等待确认，最后回填链上 ID。
	CreateAnswer(ctx context.Context, in CreateAnswerInput) (*AnswerResult, error)
	ListAnswers(ctx context.Context, questionID uint) (*AnswerList, error)
	// ListUnsynced 返回创建时间早于 olderThan 之前、仍处于 pending 或 failed 的回答，供对账使用。
	ListUnsynced(ctx context.Context, olderThan time.Duration, limit int) ([]model.Answer, error)
}

type answerService struct {
	questionRepo repository.QuestionRepository
	answerRepo   repository.AnswerRepository
	pinner       ipfs.Pinner
	gateway      chain.Gateway
	publisher    notify.Publisher
}

// NewAnswerService 创建一个新的 AnswerService 实例。
func NewAnswerService(
	questionRepo repository.QuestionRepository,
	answerRepo repository.AnswerRepository,
	pinner ipfs.Pinner,
	gateway chain.Gateway,
	publisher notify.Publisher,
) AnswerService {
	return &answerService{
		questionRepo: questionRepo,
		answerRepo:   answerRepo,
		pinner:       pinner,
		gateway:      gateway,
		publisher:    publisher,
	}
}

func (s *answerService) CreateAnswer(ctx context.Context, in CreateAnswerInput) (*AnswerResult, error) {
	// 1. 校验参数和问题状态，任何一项失败都不会产生副作用
	body := strings.TrimSpace(in.BodyMd)
	question, err := s.validate(ctx, in, body)
	if err != nil {
		log.Warnw("[AnswerService.CreateAnswer] 校验失败",
			"questionId", in.QuestionID, "userId", in.UserID, "error", err)
		return nil, err
	}
	contentHash := hashing.ContentHash(body)

	// 2. 固定内容到 IPFS，失败时不写数据库
	if err := ctx.Err(); err != nil {
		return nil, newError(KindPinningFailure, StagePinning, "request cancelled before pinning", err)
	}
	s.logStage(StagePinning, 0, question.ID, "")
	payload := ipfs.NewAnswerPayload(question.ID, body, in.Files)
	cid, err := s.pinner.PinJSON(ctx, fmt.Sprintf("answer-q%d-u%d", question.ID, in.UserID), payload)
	if err != nil {
		log.Errorw("[AnswerService.CreateAnswer] 固定内容失败", "questionId", question.ID, "error", err)
		return nil, newError(KindPinningFailure, StagePinning, "failed to pin answer content", err)
	}

	// 3. 写入临时记录，它是这次提交的持久化意图
	if err := ctx.Err(); err != nil {
		return nil, newError(KindPersistenceFailure, StagePersistingProvisional, "request cancelled before persisting", err)
	}
	answer := &model.Answer{
		QuestionID:  question.ID,
		AuthorID:    in.UserID,
		BodyMd:      body,
		ContentHash: contentHash.Hex(),
		IpfsCID:     cid,
	}
	if err := s.answerRepo.Create(ctx, answer); err != nil {
		log.Errorw("[AnswerService.CreateAnswer] 写入临时记录失败", "questionId", question.ID, "cid", cid, "error", err)
		return nil, newError(KindPersistenceFailure, StagePersistingProvisional, "failed to save answer", err)
	}
	s.logStage(StagePersistingProvisional, answer.ID, question.ID, "")

	// 交易发出后不再跟随请求取消，确认等待由网关自己的超时约束
	detached := context.WithoutCancel(ctx)

	// 4. 提交交易。请求已取消时不发送交易
	if err := ctx.Err(); err != nil {
		s.markFailed(detached, answer.ID, "")
		return nil, newError(KindSubmissionFailure, StageSubmitting, "request cancelled before submission", err)
	}
	pending, err := s.gateway.SubmitAnswer(ctx, *question.ChainQuestionID, contentHash)
	if err != nil {
		// 广播失败时交易可能已到达节点，保留哈希供对账
		var sentHash string
		if pending != nil {
			sentHash = pending.Hash.Hex()
		}
		log.Errorw("[AnswerService.CreateAnswer] 提交交易失败",
			"answerId", answer.ID, "questionId", question.ID, "txHash", sentHash, "error", err)
		s.markFailed(detached, answer.ID, sentHash)
		return nil, newError(KindSubmissionFailure, StageSubmitting, "failed to submit answer transaction", err)
	}
	txHash := pending.Hash.Hex()
	s.logStage(StageSubmitting, answer.ID, question.ID, txHash)

	// 5. 等待确认
	receipt, err := s.gateway.AwaitConfirmation(detached, pending)
	if err != nil {
		log.Errorw("[AnswerService.CreateAnswer] 交易确认失败",
			"answerId", answer.ID, "questionId", question.ID, "txHash", txHash, "error", err)
		s.markFailed(detached, answer.ID, txHash)
		return nil, newError(KindConfirmationFailure, StageConfirming, "failed to confirm answer transaction", err)
	}
	s.logStage(StageConfirming, answer.ID, question.ID, txHash)

	// 6. 解析 AnswerPosted 事件，没有事件不是错误
	var chainAnswerID *uint64
	if ev, ok := s.gateway.DecodeEvent(receipt, chain.EventAnswerPosted); ok {
		if id, ok := ev.Uint64("answerId"); ok {
			chainAnswerID = &id
		} else {
			log.Warnw("[AnswerService.CreateAnswer] AnswerPosted 事件中的 answerId 无效", "answerId", answer.ID, "txHash", txHash)
		}
	} else {
		log.Warnw("[AnswerService.CreateAnswer] 收据中没有 AnswerPosted 事件", "answerId", answer.ID, "txHash", txHash)
	}
	s.logStage(StageDecodingEvent, answer.ID, question.ID, txHash)

	// 7. 回填链上 ID
	if err := s.answerRepo.UpdateChainID(detached, answer.ID, chainAnswerID, txHash); err != nil {
		log.Errorw("[AnswerService.CreateAnswer] 交易已上链，但回填链上 ID 失败",
			"answerId", answer.ID, "questionId", question.ID, "txHash", txHash, "error", err)
		return nil, newError(KindPersistenceFailure, StageFinalizing, "failed to record chain result", err)
	}
	s.logStage(StageFinalizing, answer.ID, question.ID, txHash)

	// 8. 发布事件，失败只记录日志
	event := AnswerCreatedEvent{ID: answer.ID, QuestionID: question.ID, ChainAnswerID: chainAnswerID, TxHash: txHash}
	if err := s.publisher.Publish(detached, notify.TopicAnswerCreated, event); err != nil {
		log.Warnw("[AnswerService.CreateAnswer] 发布事件失败", "answerId", answer.ID, "error", err)
	}
	s.logStage(StagePublishing, answer.ID, question.ID, txHash)
	s.logStage(StageDone, answer.ID, question.ID, txHash)

	return &AnswerResult{
		ID:            answer.ID,
		QuestionID:    question.ID,
		ChainAnswerID: chainAnswerID,
		TxHash:        txHash,
		IpfsCID:       cid,
		ContentHash:   answer.ContentHash,
	}, nil
}

// validate 按顺序检查：参数、正文、问题存在、不能回答自己的问题、问题开放、问题已上链。
func (s *answerService) validate(ctx context.Context, in CreateAnswerInput, body string) (*model.Question, error) {
	if in.QuestionID == 0 {
		return nil, newError(KindValidation, StageValidating, "invalid question id", nil)
	}
	if in.UserID == 0 {
		return nil, newError(KindValidation, StageValidating, "invalid user", nil)
	}
	if body == "" {
		return nil, newError(KindValidation, StageValidating, "answer body must not be empty", nil)
	}

	question, err := s.questionRepo.FindByID(ctx, in.QuestionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(KindNotFound, StageValidating, "question not found", err)
		}
		return nil, newError(KindPersistenceFailure, StageValidating, "failed to load question", err)
	}
	if question.AuthorID == in.UserID {
		return nil, newError(KindForbidden, StageValidating, "you cannot answer your own question", nil)
	}
	if question.Status != model.QuestionOpen {
		return nil, newError(KindStateConflict, StageValidating, "question is not open for answers", nil)
	}
	if question.ChainQuestionID == nil {
		return nil, newError(KindStateConflict, StageValidating, "question is not synced to the blockchain yet", nil)
	}
	return question, nil
}

// markFailed 把临时记录标记为 failed，记录保留供对账任务处理。
func (s *answerService) markFailed(ctx context.Context, answerID uint, txHash string) {
	if err := s.answerRepo.MarkSyncFailed(ctx, answerID, txHash); err != nil {
		log.Errorw("[AnswerService.markFailed] 标记同步失败出错", "answerId", answerID, "txHash", txHash, "error", err)
	}
}

func (s *answerService) logStage(stage Stage, answerID, questionID uint, txHash string) {
	log.Infow("[AnswerService.CreateAnswer] stage completed",
		"stage", stage,
		"answerId", answerID,
		"questionId", questionID,
		"txHash", txHash,
	)
}

func (s *answerService) ListAnswers(ctx context.Context, questionID uint) (*AnswerList, error) {
	if questionID == 0 {
		return nil, newError(KindValidation, StageListing, "invalid question id", nil)
	}
	answers, err := s.answerRepo.FindByQuestionID(ctx, questionID)
	if err != nil {
		log.Errorf("[AnswerService.ListAnswers] 查询回答失败, questionId: %d, error: %v", questionID, err)
		return nil, newError(KindPersistenceFailure, StageListing, "failed to load answers", err)
	}
	if answers == nil {
		answers = []model.Answer{}
	}
	return &AnswerList{QuestionID: questionID, Total: len(answers), Answers: answers}, nil
}

func (s *answerService) ListUnsynced(ctx context.Context, olderThan time.Duration, limit int) ([]model.Answer, error) {
	if olderThan < 0 {
		return nil, newError(KindValidation, StageListing, "olderThan must not be negative", nil)
	}
	if limit <= 0 {
		limit = defaultUnsyncedLimit
	}
	if limit > maxUnsyncedLimit {
		limit = maxUnsyncedLimit
	}
	answers, err := s.answerRepo.FindUnsynced(ctx, time.Now().Add(-olderThan), limit)
	if err != nil {
		log.Errorf("[AnswerService.ListUnsynced] 查询未同步回答失败: %v", err)
		return nil, newError(KindPersistenceFailure, StageListing, "failed to load unsynced answers", err)
	}
	if answers == nil {
		answers = []model.Answer{}
	}
	return answers, nil
}
