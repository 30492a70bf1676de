package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/easyops/convref-go/pkg/core/message"
	"github.com/redis/go-redis/v9"
)

// CachedProvider 使用 Redis 缓存生成结果的 Provider 装饰器
//
// 相同模型、消息与采样参数的请求直接返回缓存结果，用于评估重跑时避免重复调用。
// 缓存读写失败不影响调用本身，错误交给 OnCacheError 处理。
type CachedProvider struct {
	provider     Provider
	client       *redis.Client
	ttl          time.Duration
	prefix       string
	onCacheError func(error)
}

// CacheOption CachedProvider 配置选项
type CacheOption func(*CachedProvider)

// WithCacheTTL 设置缓存过期时间，0 表示永不过期
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *CachedProvider) {
		c.ttl = ttl
	}
}

// WithCachePrefix 设置缓存键前缀
func WithCachePrefix(prefix string) CacheOption {
	return func(c *CachedProvider) {
		c.prefix = prefix
	}
}

// OnCacheError 设置缓存错误回调
func OnCacheError(fn func(error)) CacheOption {
	return func(c *CachedProvider) {
		c.onCacheError = fn
	}
}

// NewCachedProvider 创建带缓存的 Provider
func NewCachedProvider(provider Provider, client *redis.Client, opts ...CacheOption) *CachedProvider {
	c := &CachedProvider{
		provider:     provider,
		client:       client,
		prefix:       "convref:llm:",
		onCacheError: func(error) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// cacheKeyPayload 参与缓存键计算的请求字段
type cacheKeyPayload struct {
	Model       string            `json:"model"`
	Messages    []message.Message `json:"messages"`
	Temperature *float64          `json:"temperature,omitempty"`
	MaxTokens   *int              `json:"max_tokens,omitempty"`
	TopP        *float64          `json:"top_p,omitempty"`
	Stop        []string          `json:"stop,omitempty"`
}

// Key 计算请求的缓存键
func (c *CachedProvider) Key(req Request) (string, error) {
	payload, err := json.Marshal(cacheKeyPayload{
		Model:       c.provider.Model(),
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
		Stop:        req.Stop,
	})
	if err != nil {
		return "", fmt.Errorf("marshal cache key: %w", err)
	}
	sum := sha256.Sum256(payload)
	return c.prefix + hex.EncodeToString(sum[:]), nil
}

// Generate 优先读取缓存，未命中时调用底层 Provider 并写回
func (c *CachedProvider) Generate(ctx context.Context, req Request) (Response, error) {
	key, err := c.Key(req)
	if err != nil {
		return Response{}, err
	}

	cached, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var resp Response
		jsonErr := json.Unmarshal(cached, &resp)
		if jsonErr == nil {
			return resp, nil
		}
		c.onCacheError(fmt.Errorf("decode cached response: %w", jsonErr))
	case !stderrors.Is(err, redis.Nil):
		c.onCacheError(fmt.Errorf("read cache: %w", err))
	}

	resp, err := c.provider.Generate(ctx, req)
	if err != nil {
		return Response{}, err
	}

	data, err := json.Marshal(resp)
	if err != nil {
		c.onCacheError(fmt.Errorf("encode response: %w", err))
		return resp, nil
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.onCacheError(fmt.Errorf("write cache: %w", err))
	}
	return resp, nil
}

// Embed 直接委托底层 Provider
func (c *CachedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return c.provider.Embed(ctx, texts)
}

// Name 返回底层提供商名称
func (c *CachedProvider) Name() string {
	return c.provider.Name()
}

// Model 返回底层模型名称
func (c *CachedProvider) Model() string {
	return c.provider.Model()
}

// Close 关闭 Redis 连接与底层 Provider
func (c *CachedProvider) Close() error {
	cacheErr := c.client.Close()
	if err := c.provider.Close(); err != nil {
		return err
	}
	return cacheErr
}

// Unwrap 返回被装饰的 Provider
func (c *CachedProvider) Unwrap() Provider {
	return c.provider
}

var _ Provider = (*CachedProvider)(nil)
