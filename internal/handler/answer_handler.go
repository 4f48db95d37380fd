// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"chainqa-go/internal/model"
	"chainqa-go/internal/service"
	"chainqa-go/pkg/log"

	"github.com/gin-gonic/gin"
)

const defaultUnsyncedMinutes = 10

// AnswerHandler 负责处理回答相关的 API 请求。
type AnswerHandler struct {
	answerService service.AnswerService
}

// NewAnswerHandler 创建一个新的 AnswerHandler 实例。
func NewAnswerHandler(answerService service.AnswerService) *AnswerHandler {
	return &AnswerHandler{answerService: answerService}
}

// CreateAnswerRequest 定义了创建回答 API 的请求体结构。
type CreateAnswerRequest struct {
	BodyMd string   `json:"bodyMd"`
	Files  []string `json:"files"`
}

// Create 处理创建回答的请求，成功时交易已经上链确认。
func (h *AnswerHandler) Create(c *gin.Context) {
	questionID, ok := parseQuestionID(c)
	if !ok {
		return
	}
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "Invalid user.", "data": nil})
		return
	}

	var req CreateAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("[AnswerHandler.Create] 无效的请求体, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载", "data": nil})
		return
	}

	result, err := h.answerService.CreateAnswer(c.Request.Context(), service.CreateAnswerInput{
		QuestionID: questionID,
		UserID:     user.ID,
		BodyMd:     req.BodyMd,
		Files:      req.Files,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": result})
}

// List 返回某个问题下的全部回答，按创建时间倒序。
func (h *AnswerHandler) List(c *gin.Context) {
	questionID, ok := parseQuestionID(c)
	if !ok {
		return
	}
	list, err := h.answerService.ListAnswers(c.Request.Context(), questionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": list})
}

// ListUnsynced 返回仍未完成链上同步的回答，供管理员排查和对账。
func (h *AnswerHandler) ListUnsynced(c *gin.Context) {
	minutes, err := strconv.Atoi(c.DefaultQuery("olderThanMinutes", strconv.Itoa(defaultUnsyncedMinutes)))
	if err != nil || minutes < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的 olderThanMinutes 参数", "data": nil})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的 limit 参数", "data": nil})
		return
	}

	answers, err := h.answerService.ListUnsynced(c.Request.Context(), time.Duration(minutes)*time.Minute, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{
		"total":   len(answers),
		"answers": answers,
	}})
}

func parseQuestionID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("qId"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "Invalid question ID", "data": nil})
		return 0, false
	}
	return uint(id), true
}

func currentUser(c *gin.Context) (*model.User, bool) {
	v, exists := c.Get("user")
	if !exists {
		return nil, false
	}
	user, ok := v.(*model.User)
	return user, ok && user != nil && user.ID != 0
}

// respondError 把服务层错误映射为 HTTP 响应。链上失败只返回通用信息，细节写入日志。
func respondError(c *gin.Context, err error) {
	status, message := http.StatusInternalServerError, "internal server error"

	var se *service.Error
	if errors.As(err, &se) {
		switch se.Kind {
		case service.KindValidation:
			status, message = http.StatusBadRequest, se.Message
		case service.KindNotFound:
			status, message = http.StatusNotFound, se.Message
		case service.KindForbidden:
			status, message = http.StatusForbidden, se.Message
		case service.KindStateConflict:
			status, message = http.StatusConflict, se.Message
		case service.KindPinningFailure:
			status, message = http.StatusBadGateway, "failed to store answer content"
		case service.KindSubmissionFailure, service.KindConfirmationFailure:
			status, message = http.StatusBadGateway, "failed to sync answer to blockchain"
		case service.KindPersistenceFailure:
			status, message = http.StatusInternalServerError, "failed to save answer"
		}
	}

	if status >= http.StatusInternalServerError {
		log.Errorw("[AnswerHandler] 请求失败", "path", c.Request.URL.Path, "status", status, "error", err)
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"code": status, "message": message, "data": nil})
}
