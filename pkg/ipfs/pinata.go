package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chainqa-go/internal/config"
	"chainqa-go/pkg/log"
)

type pinataClient struct {
	baseURL string
	jwt     string
	client  *http.Client
}

// NewPinataClient 创建一个调用 Pinata pinJSONToIPFS 接口的 Pinner。
func NewPinataClient(cfg config.PinataConfig) Pinner {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &pinataClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		jwt:     cfg.JWT,
		client:  &http.Client{Timeout: timeout},
	}
}

type pinataRequest struct {
	PinataContent  interface{}    `json:"pinataContent"`
	PinataMetadata pinataMetadata `json:"pinataMetadata"`
}

type pinataMetadata struct {
	Name string `json:"name,omitempty"`
}

type pinataResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// PinJSON 上传 JSON 并返回 IPFS CID。
func (c *pinataClient) PinJSON(ctx context.Context, name string, payload interface{}) (string, error) {
	reqBytes, err := json.Marshal(pinataRequest{
		PinataContent:  payload,
		PinataMetadata: pinataMetadata{Name: name},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal pinata request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/pinning/pinJSONToIPFS", bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create pinata request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.jwt)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call pinata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("pinata returned [%d]: %s", resp.StatusCode, string(body))
	}

	var pinResp pinataResponse
	if err := json.NewDecoder(resp.Body).Decode(&pinResp); err != nil {
		return "", fmt.Errorf("failed to decode pinata response: %w", err)
	}
	if pinResp.IpfsHash == "" {
		return "", fmt.Errorf("pinata response has no IpfsHash")
	}

	log.Infof("[PinataClient] 内容已固定, name: %s, cid: %s, size: %d", name, pinResp.IpfsHash, pinResp.PinSize)
	return pinResp.IpfsHash, nil
}
