package ipfs

import (
	"context"
	"errors"
	"time"

	"chainqa-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// CIDCache 缓存负载摘要到 CID 的映射。未命中时返回空字符串和 nil。
type CIDCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, cid string, ttl time.Duration) error
}

type redisCIDCache struct {
	client *redis.Client
}

// NewRedisCIDCache 创建基于 Redis 的 CIDCache。
func NewRedisCIDCache(client *redis.Client) CIDCache {
	return &redisCIDCache{client: client}
}

func (c *redisCIDCache) Get(ctx context.Context, key string) (string, error) {
	cid, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return cid, err
}

func (c *redisCIDCache) Set(ctx context.Context, key, cid string, ttl time.Duration) error {
	return c.client.Set(ctx, key, cid, ttl).Err()
}

type cachedPinner struct {
	backend string
	next    Pinner
	cache   CIDCache
	ttl     time.Duration
}

// NewCachedPinner 为 Pinner 增加 CID 缓存，相同内容命中缓存时不会再次上传。
// backend 是后端名称，不同后端的 CID 互不复用。缓存读写失败只记录日志，不影响固定结果。
func NewCachedPinner(backend string, next Pinner, cache CIDCache, ttl time.Duration) Pinner {
	return &cachedPinner{backend: backend, next: next, cache: cache, ttl: ttl}
}

func cacheKey(backend string, data []byte) string {
	return "pin:" + backend + ":" + digest(data)
}

func (p *cachedPinner) PinJSON(ctx context.Context, name string, payload interface{}) (string, error) {
	data, err := canonicalJSON(payload)
	if err != nil {
		return "", err
	}
	key := cacheKey(p.backend, data)

	if cid, err := p.cache.Get(ctx, key); err != nil {
		log.Warnf("[CachedPinner] 读取 CID 缓存失败, key: %s, error: %v", key, err)
	} else if cid != "" {
		log.Infof("[CachedPinner] 命中 CID 缓存, cid: %s", cid)
		return cid, nil
	}

	cid, err := p.next.PinJSON(ctx, name, payload)
	if err != nil {
		return "", err
	}
	if err := p.cache.Set(ctx, key, cid, p.ttl); err != nil {
		log.Warnf("[CachedPinner] 写入 CID 缓存失败, key: %s, error: %v", key, err)
	}
	return cid, nil
}
