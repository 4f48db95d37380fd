package ipfs

import (
	"bytes"
	"context"
	"fmt"

	"chainqa-go/pkg/log"

	"github.com/minio/minio-go/v7"
)

// objectPinner 把 MinIO 当作内容寻址存储：对象名由内容摘要决定，已存在则不再上传。
type objectPinner struct {
	client *minio.Client
	bucket string
}

// NewObjectPinner 创建一个基于 MinIO 的 Pinner，CID 形如 b3-<blake3 hex>。
func NewObjectPinner(client *minio.Client, bucket string) Pinner {
	return &objectPinner{client: client, bucket: bucket}
}

// ObjectCID 返回负载在对象存储后端下的 CID。
func ObjectCID(payload interface{}) (string, error) {
	data, err := canonicalJSON(payload)
	if err != nil {
		return "", err
	}
	return "b3-" + digest(data), nil
}

func objectName(cid string) string {
	return fmt.Sprintf("pins/%s.json", cid)
}

func (p *objectPinner) PinJSON(ctx context.Context, name string, payload interface{}) (string, error) {
	data, err := canonicalJSON(payload)
	if err != nil {
		return "", err
	}
	cid := "b3-" + digest(data)
	object := objectName(cid)

	if _, err := p.client.StatObject(ctx, p.bucket, object, minio.StatObjectOptions{}); err == nil {
		log.Infof("[ObjectPinner] 内容已存在, cid: %s", cid)
		return cid, nil
	} else if minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return "", fmt.Errorf("stat pinned object %s: %w", object, err)
	}

	_, err = p.client.PutObject(ctx, p.bucket, object, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  "application/json",
		UserMetadata: map[string]string{"name": name},
	})
	if err != nil {
		return "", fmt.Errorf("put pinned object %s: %w", object, err)
	}
	log.Infof("[ObjectPinner] 内容已固定, name: %s, cid: %s, size: %d", name, cid, len(data))
	return cid, nil
}
