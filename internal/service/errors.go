package service

import (
	"errors"
	"fmt"
)

// Kind 是业务错误的分类，handler 根据它决定 HTTP 状态码。
type Kind string

const (
	KindValidation          Kind = "validation"
	KindNotFound            Kind = "not_found"
	KindForbidden           Kind = "forbidden"
	KindStateConflict       Kind = "state_conflict"
	KindPinningFailure      Kind = "pinning_failure"
	KindSubmissionFailure   Kind = "submission_failure"
	KindConfirmationFailure Kind = "confirmation_failure"
	KindPersistenceFailure  Kind = "persistence_failure"
)

// Stage 是创建回答流程中的阶段。
type Stage string

const (
	StageValidating            Stage = "Validating"
	StagePinning               Stage = "Pinning"
	StagePersistingProvisional Stage = "PersistingProvisional"
	StageSubmitting            Stage = "Submitting"
	StageConfirming            Stage = "Confirming"
	StageDecodingEvent         Stage = "DecodingEvent"
	StageFinalizing            Stage = "FinalizingPersistence"
	StagePublishing            Stage = "Publishing"
	StageDone                  Stage = "Done"

	// StageListing 标记只读查询中的失败，不属于创建流程。
	StageListing Stage = "Listing"
)

// Error 是服务层返回的业务错误，记录失败的类型和阶段。
type Error struct {
	Kind    Kind
	Stage   Stage
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s at %s: %s: %v", e.Kind, e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s at %s: %s", e.Kind, e.Stage, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf 返回错误链中第一个 *Error 的 Kind，不是业务错误时返回空字符串。
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

func newError(kind Kind, stage Stage, message string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Message: message, Err: err}
}
