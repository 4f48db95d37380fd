// Package ipfs 提供把 JSON 内容固定（pin）到内容寻址存储的客户端。
package ipfs

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"
)

// Pinner 把 JSON 负载固定到内容寻址存储，返回内容标识符（CID）。
// 相同负载多次固定应得到相同的 CID。
type Pinner interface {
	PinJSON(ctx context.Context, name string, payload interface{}) (string, error)
}

// AnswerPayload 是回答固定到存储中的内容，字段名会影响 CID，不能随意修改。
type AnswerPayload struct {
	QuestionID uint     `json:"questionId"`
	BodyMd     string   `json:"bodyMd"`
	Files      []string `json:"files"`
}

// NewAnswerPayload 保证 files 序列化为数组而不是 null。
func NewAnswerPayload(questionID uint, bodyMd string, files []string) AnswerPayload {
	if files == nil {
		files = []string{}
	}
	return AnswerPayload{QuestionID: questionID, BodyMd: bodyMd, Files: files}
}

// canonicalJSON 返回负载的规范 JSON 字节。结构体字段按声明顺序编码，结果是确定的。
func canonicalJSON(payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal pin payload: %w", err)
	}
	return data, nil
}

// digest 返回数据的 BLAKE3 十六进制摘要。
func digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
