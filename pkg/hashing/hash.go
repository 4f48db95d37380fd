// Package hashing 计算回答内容的哈希，结果会作为 bytes32 写入合约。
package hashing

import (
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Hash 是 32 字节的 keccak-256 摘要，与合约中的 bytes32 一一对应。
type Hash [32]byte

// ContentHash 对传入文本的 UTF-8 字节做 keccak-256（以太坊的 keccak256，不是 NIST SHA3）。
// 不做任何空白或大小写归一化，调用方负责先裁剪。
func ContentHash(body string) Hash {
	var h Hash
	d := sha3.NewLegacyKeccak256()
	d.Write([]byte(body))
	d.Sum(h[:0])
	return h
}

// Hex 返回带 0x 前缀的小写十六进制表示，长度固定 66。
func (h Hash) Hex() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Hash) String() string {
	return h.Hex()
}

// ParseHash 解析 Hex 的输出，0x 前缀可选。
func ParseHash(s string) (Hash, error) {
	var h Hash
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 64 {
		return h, errors.New("hashing: content hash must be 32 bytes")
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, err
	}
	return h, nil
}
